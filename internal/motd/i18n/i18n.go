// Package i18n looks up operator-facing and player-facing strings in gettext
// .po catalogs stored under <data_dir>/lang/<language>.po.
//
// Lookup order: configured language, fallback language, built-in English,
// then the key itself.
package i18n

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/leonelquinteros/gotext"

	logx "joinmotd/pkg/logx"
)

const (
	DefaultLanguage = "en_us"
	catalogExt      = ".po"
)

// Translator is safe for concurrent use. Reload swaps the catalog set.
type Translator struct {
	dir      string
	lang     string
	fallback string
	log      logx.Logger

	mu       sync.RWMutex
	catalogs map[string]map[string]string
}

// New builds a translator reading dir. Call Reload to load catalogs; an
// unloaded translator still answers with built-in strings.
func New(dir, lang, fallback string, log logx.Logger) *Translator {
	if log.IsZero() {
		log = logx.Nop()
	}
	lang = normalize(lang)
	if lang == "" {
		lang = DefaultLanguage
	}
	fallback = normalize(fallback)
	if fallback == "" {
		fallback = DefaultLanguage
	}
	return &Translator{dir: dir, lang: lang, fallback: fallback, log: log, catalogs: map[string]map[string]string{}}
}

func normalize(lang string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(lang), "-", "_"))
}

func (t *Translator) Language() string { return t.lang }

// Reload parses every .po file in the directory. A missing directory is not
// an error; the built-in strings are used.
func (t *Translator) Reload() error {
	cats := map[string]map[string]string{}
	if t.dir != "" {
		ents, err := os.ReadDir(t.dir)
		if err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("i18n: %w", err)
		}
		for _, e := range ents {
			if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), catalogExt) {
				continue
			}
			lang := normalize(strings.TrimSuffix(e.Name(), filepath.Ext(e.Name())))
			po := gotext.NewPo()
			po.ParseFile(filepath.Join(t.dir, e.Name()))
			cats[lang] = messages(po)
		}
	}
	t.mu.Lock()
	t.catalogs = cats
	t.mu.Unlock()
	t.log.Debug("translations loaded", logx.Strings("languages", t.Languages()))
	return nil
}

// Languages lists the loaded catalogs, sorted.
func (t *Translator) Languages() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]string, 0, len(t.catalogs))
	for k := range t.catalogs {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}

// Tr translates key and formats args into it.
func (t *Translator) Tr(key string, args ...any) string {
	if t != nil {
		t.mu.RLock()
		for _, lang := range []string{t.lang, t.fallback} {
			if s, ok := t.catalogs[lang][key]; ok {
				t.mu.RUnlock()
				return format(s, args)
			}
		}
		t.mu.RUnlock()
	}
	if s, ok := builtin[key]; ok {
		return format(s, args)
	}
	return key
}

// messages flattens the singular translations of po. Untranslated entries
// are left out so lookups fall through to the next language.
func messages(po *gotext.Po) map[string]string {
	out := map[string]string{}
	for id, tr := range po.GetDomain().GetTranslations() {
		if id == "" || !tr.IsTranslated() {
			continue
		}
		if s := tr.Get(); s != "" && s != id {
			out[id] = s
		}
	}
	return out
}

func format(s string, args []any) string {
	if len(args) == 0 {
		return s
	}
	return fmt.Sprintf(s, args...)
}

// Keys with built-in English text.
const (
	HoverRun       = "hover.run_command"
	HoverSuggest   = "hover.suggest_command"
	HoverCopy      = "hover.copy_to_clipboard"
	HoverOpenURL   = "hover.open_url"
	HoverServer    = "hover.server"
	NoScheme       = "error.no_applicable_scheme"
	CmdHelp        = "command.help"
	CmdReloaded    = "command.reloaded"
	CmdReloadFail  = "command.reload_failed"
	CmdNoPerm      = "command.no_permission"
	CmdUnknown     = "command.unknown"
	CmdListHeader  = "command.list.header"
	CmdListEmpty   = "command.list.empty"
	CmdInfo        = "command.info"
	CmdInfoMissing = "command.info.missing"
	CmdUsable      = "command.info.usable"
	CmdUnusable    = "command.info.unusable"
	CmdSeen        = "command.seen"
	CmdSeenNever   = "command.seen.never"
	CmdPreviewFail = "command.preview_failed"
	CmdUsage       = "command.usage"
	CmdError       = "command.error"
)

var builtin = map[string]string{
	HoverRun:     "Click to run %s",
	HoverSuggest: "Click to fill in %s",
	HoverCopy:    "Click to copy to clipboard",
	HoverOpenURL: "Click to open %s",
	HoverServer:  "Click to switch to server %s",
	NoScheme:     "Join message unavailable, please report this to an administrator",
	CmdHelp: "%[1]s help - show this help\n" +
		"%[1]s reload - reload schemes and translations\n" +
		"%[1]s list - list schemes by priority\n" +
		"%[1]s info <scheme> - show scheme details\n" +
		"%[1]s preview [scheme] - render a scheme for yourself\n" +
		"%[1]s seen <player> - show join statistics",
	CmdReloaded:    "Reloaded %d schemes",
	CmdReloadFail:  "Reload finished with errors: %s",
	CmdNoPerm:      "You do not have permission to use this command",
	CmdUnknown:     "Unknown command, try %s help",
	CmdListHeader:  "Schemes (highest priority first):",
	CmdListEmpty:   "No schemes found",
	CmdInfo:        "Scheme %s: priority %d, file %s",
	CmdInfoMissing: "Scheme %s not found or broken: %s",
	CmdUsable:      "Currently applicable for %s",
	CmdUnusable:    "Not applicable for %s right now",
	CmdSeen:        "%s joined %d times, first seen %s, last seen %s",
	CmdSeenNever:   "%s has never joined",
	CmdPreviewFail: "Preview failed: %s",
	CmdUsage:       "Usage: %s",
	CmdError:       "Command failed: %s",
}
