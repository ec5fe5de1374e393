package i18n

import (
	"os"
	"path/filepath"
	"slices"
	"testing"

	logx "joinmotd/pkg/logx"
)

const zhCN = `msgid ""
msgstr ""
"Content-Type: text/plain; charset=UTF-8\n"
"Language: zh_CN\n"

msgid "command.reloaded"
msgstr "已重载 %d 个方案"

msgid "command.list.empty"
msgstr ""

msgid "motd.uptime"
msgstr "100% 在线"
`

func writeCatalogs(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "zh_CN.po"), []byte(zhCN), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "README.txt"), []byte("not a catalog"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return dir
}

func TestLookupOrder(t *testing.T) {
	t.Parallel()
	dir := writeCatalogs(t)

	tests := []struct {
		name     string
		lang     string
		fallback string
		key      string
		args     []any
		want     string
	}{
		{"configured language", "zh-CN", "", CmdReloaded, []any{3}, "已重载 3 个方案"},
		{"fallback language", "fr_fr", "zh_cn", CmdReloaded, []any{2}, "已重载 2 个方案"},
		{"empty translation uses builtin", "zh_cn", "", CmdListEmpty, nil, "No schemes found"},
		{"builtin english", "zh_cn", "", NoScheme, nil, builtin[NoScheme]},
		{"unknown key echoes", "zh_cn", "", "motd.custom", nil, "motd.custom"},
		{"percent kept without args", "zh_cn", "", "motd.uptime", nil, "100% 在线"},
		{"fallback catalog key", "fr_fr", "zh_cn", "motd.uptime", nil, "100% 在线"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			tr := New(dir, tt.lang, tt.fallback, logx.Nop())
			if err := tr.Reload(); err != nil {
				t.Fatalf("Reload: %v", err)
			}
			if got := tr.Tr(tt.key, tt.args...); got != tt.want {
				t.Fatalf("Tr(%q)=%q want %q", tt.key, got, tt.want)
			}
		})
	}
}

func TestReloadAndLanguages(t *testing.T) {
	t.Parallel()
	dir := writeCatalogs(t)
	tr := New(dir, "", "", logx.Nop())
	if tr.Language() != DefaultLanguage {
		t.Fatalf("Language=%q", tr.Language())
	}
	if err := tr.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if got := tr.Languages(); !slices.Equal(got, []string{"zh_cn"}) {
		t.Fatalf("Languages=%v", got)
	}

	missing := New(filepath.Join(dir, "nope"), "", "", logx.Nop())
	if err := missing.Reload(); err != nil {
		t.Fatalf("missing dir: %v", err)
	}
	if got := missing.Tr(HoverRun, "/spawn"); got != "Click to run /spawn" {
		t.Fatalf("Tr=%q", got)
	}

	var nilTr *Translator
	if got := nilTr.Tr(CmdUsage, "x"); got != "Usage: x" {
		t.Fatalf("nil Tr=%q", got)
	}
}
