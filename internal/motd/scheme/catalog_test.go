package scheme

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	yaml "go.yaml.in/yaml/v3"

	"joinmotd/internal/motd/chat"
	"joinmotd/internal/motd/motderr"
	logx "joinmotd/pkg/logx"
)

func openCatalog(t *testing.T, files map[string]string) *Catalog {
	t.Helper()
	dir := t.TempDir()
	for name, body := range files {
		path := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	c, err := Open(dir, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return c
}

func TestOpenWritesDefaults(t *testing.T) {
	t.Parallel()
	c := openCatalog(t, nil)

	names, err := c.Names()
	if err != nil || !slices.Equal(names, []string{DefaultSchemeName}) {
		t.Fatalf("Names=%v err=%v", names, err)
	}
	s, err := c.Scheme(DefaultSchemeName)
	if err != nil {
		t.Fatalf("default scheme: %v", err)
	}
	if s.EffectivePriority() != DefaultPriority || !strings.Contains(s.Format, "%player%") {
		t.Fatalf("default scheme=%+v", s)
	}
	if v := c.Globals()["server_name"]; v.Kind != KindLiteral || v.Text != "My Server" {
		t.Fatalf("server_name=%+v", v)
	}
	if pool, ok := c.Pool("original"); !ok || len(pool) != 5 {
		t.Fatalf("pool=%v ok=%v", pool, ok)
	}
	if len(c.Schedules()) != 0 {
		t.Fatalf("schedules=%v", c.Schedules())
	}
}

func TestInitDefaultsKeepsExistingFiles(t *testing.T) {
	t.Parallel()
	c := openCatalog(t, map[string]string{
		"schemes/default.yaml": "format: custom\n",
		VariablesFile:          "server_name: Mine\n",
	})
	if _, err := os.Stat(filepath.Join(c.Dir(), SchemesDir, "default.yml")); !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("default.yml written next to default.yaml: %v", err)
	}
	s, err := c.Scheme(DefaultSchemeName)
	if err != nil || s.Format != "custom" {
		t.Fatalf("scheme=%+v err=%v", s, err)
	}
	if c.Globals()["server_name"].Text != "Mine" {
		t.Fatalf("variables overwritten")
	}
}

func TestAllOrdering(t *testing.T) {
	t.Parallel()
	c := openCatalog(t, map[string]string{
		"schemes/event.yml":  "priority: 2000\nformat: hi\n",
		"schemes/low.yml":    "priority: 10\nformat: hi\n",
		"schemes/broken.yml": "format: hi\nbogus: 1\n",
		"schemes/notes.txt":  "ignored",
	})
	all, err := c.All()
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	var got []string
	for _, l := range all {
		got = append(got, l.Name)
	}
	if want := []string{"event", "default", "low", "broken"}; !slices.Equal(got, want) {
		t.Fatalf("order=%v want %v", got, want)
	}
	if !errors.Is(all[3].Err, motderr.ErrSchemeLoad) {
		t.Fatalf("broken err=%v", all[3].Err)
	}
	if c.Priority("broken") != DefaultPriority || c.Priority("event") != 2000 {
		t.Fatalf("priority fallback wrong")
	}
}

func TestSchemeLookupErrors(t *testing.T) {
	t.Parallel()
	c := openCatalog(t, nil)

	_, err := c.Scheme("missing")
	if !errors.Is(err, motderr.ErrSchemeLoad) || !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("missing: %v", err)
	}
	if _, err := c.Scheme("../default"); !errors.Is(err, motderr.ErrSchemeLoad) {
		t.Fatalf("traversal: %v", err)
	}

	// A scheme created after a miss is picked up without a reload.
	path := filepath.Join(c.Dir(), SchemesDir, "missing.yml")
	if err := os.WriteFile(path, []byte("format: late\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if s, err := c.Scheme("missing"); err != nil || s.Format != "late" || s.Source != path {
		t.Fatalf("late scheme=%+v err=%v", s, err)
	}
}

func TestEvictAndReload(t *testing.T) {
	t.Parallel()
	c := openCatalog(t, map[string]string{"schemes/a.yml": "format: one\n"})
	var hooks []string
	c.OnReload(func(what string) { hooks = append(hooks, what) })

	if s, _ := c.Scheme("a"); s.Format != "one" {
		t.Fatalf("format=%q", s.Format)
	}
	path := filepath.Join(c.Dir(), SchemesDir, "a.yml")
	if err := os.WriteFile(path, []byte("format: two\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if s, _ := c.Scheme("a"); s.Format != "one" {
		t.Fatalf("cache bypassed: %q", s.Format)
	}
	c.Evict("a")
	if s, _ := c.Scheme("a"); s.Format != "two" {
		t.Fatalf("evict ignored: %q", s.Format)
	}

	if err := os.WriteFile(filepath.Join(c.Dir(), SchedulesFile), []byte("- scheme: a\n  month: 13\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := c.Reload(); err == nil || !strings.Contains(err.Error(), "schedules[0]") {
		t.Fatalf("Reload=%v", err)
	}
	if !slices.Equal(hooks, []string{"schemes"}) {
		t.Fatalf("hooks=%v", hooks)
	}
}

func TestParseScheme(t *testing.T) {
	t.Parallel()
	s, err := ParseScheme("x", []byte(`
description: test
format: "{greeting} %player%"
servers: [lobby]
variables:
  greeting:
    text: Hello
    color: gold
    styles: [bold]
    hover: hi
    click: {action: suggest, value: /help}
`))
	if err != nil {
		t.Fatalf("ParseScheme: %v", err)
	}
	v := s.Variables["greeting"]
	if v.Text != "Hello" || v.Color != chat.ColorGold || v.Styles != chat.StyleBold || v.Click.Action != chat.ClickSuggestCommand {
		t.Fatalf("variable=%+v", v)
	}
	if s.Priority != nil || s.EffectivePriority() != DefaultPriority {
		t.Fatalf("priority=%v", s.Priority)
	}

	for _, bad := range []string{
		"format: ''\n",
		"format: x\nunknown: 1\n",
		"format: x\nvariables:\n  'a b': hi\n",
	} {
		if _, err := ParseScheme("bad", []byte(bad)); err == nil {
			t.Fatalf("accepted %q", bad)
		}
	}
}

func TestVariableUnmarshal(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		in      string
		kind    VariableKind
		wantErr bool
	}{
		{"scalar", "hello", KindLiteral, false},
		{"list", "[a, {text: b}]", KindList, false},
		{"fetch", "{fetch: {url: 'http://x', json_path: a.b}}", KindFetched, false},
		{"url shorthand", "{url: 'http://x'}", KindFetched, false},
		{"translate", "{translate: motd.hello}", KindTranslated, false},
		{"no source", "{color: red}", 0, true},
		{"two sources", "{text: a, translate: b}", 0, true},
		{"empty fetch url", "{fetch: {url: ''}}", 0, true},
		{"bad color", "{text: a, color: pink}", 0, true},
		{"bad click", "{text: a, click: {action: teleport, value: x}}", 0, true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var v Variable
			err := yaml.Unmarshal([]byte(tt.in), &v)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %+v", v)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unmarshal: %v", err)
			}
			if v.Kind != tt.kind {
				t.Fatalf("kind=%v want %v", v.Kind, tt.kind)
			}
		})
	}
}

func TestMergeVariables(t *testing.T) {
	t.Parallel()
	global := map[string]Variable{"a": Literal("g"), "b": Literal("g")}
	local := map[string]Variable{"b": Literal("l")}
	got := MergeVariables(global, local)
	if got["a"].Text != "g" || got["b"].Text != "l" || global["b"].Text != "g" {
		t.Fatalf("merge=%v", got)
	}
}
