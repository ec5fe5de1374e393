// Package commands implements the in-game "!!ajm" command family. The same
// handler serves the ops console with an operator caller.
package commands

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"joinmotd/internal/motd/chat"
	"joinmotd/internal/motd/greeter"
	"joinmotd/internal/motd/i18n"
	"joinmotd/internal/motd/scheme"
	"joinmotd/internal/storage"
	logx "joinmotd/pkg/logx"
)

// Permission levels.
const (
	PermAny      = "any"
	PermOperator = "operator"
)

var DefaultPrefixes = []string{"!!ajm", "!!joinMOTD"}

// Subcommand names.
const (
	CmdHelp    = "help"
	CmdReload  = "reload"
	CmdList    = "list"
	CmdInfo    = "info"
	CmdPreview = "preview"
	CmdSeen    = "seen"
)

// Results reported to the Observer.
const (
	ResultOK      = "ok"
	ResultDenied  = "denied"
	ResultError   = "error"
	ResultUnknown = "unknown"
	ResultUsage   = "usage"
)

var defaultRequirements = map[string]string{
	CmdHelp:    PermAny,
	CmdReload:  PermOperator,
	CmdList:    PermOperator,
	CmdInfo:    PermOperator,
	CmdPreview: PermAny,
	CmdSeen:    PermAny,
}

type Config struct {
	Enabled         bool
	Prefixes        []string
	Operators       []string
	Requirements    map[string]string
	PermissionCheck bool
}

func (c Config) withDefaults() Config {
	if len(c.Prefixes) == 0 {
		c.Prefixes = DefaultPrefixes
	}
	req := make(map[string]string, len(defaultRequirements))
	for k, v := range defaultRequirements {
		req[k] = v
	}
	for k, v := range c.Requirements {
		req[strings.ToLower(strings.TrimSpace(k))] = strings.ToLower(strings.TrimSpace(v))
	}
	c.Requirements = req
	return c
}

// Caller is whoever issued a command.
type Caller struct {
	Name     string
	Operator bool
}

type Catalog interface {
	Reload() error
	Names() ([]string, error)
	All() ([]scheme.Listing, error)
}

type Composer interface {
	Compose(ctx context.Context, player string, now time.Time) (greeter.Result, error)
	ComposeScheme(ctx context.Context, name, player string, now time.Time) (greeter.Result, error)
	Applicable(name, player string, now time.Time) bool
}

type Stats interface {
	Joins(ctx context.Context, player string) (storage.JoinStats, error)
}

type Translator interface {
	Tr(key string, args ...any) string
	Reload() error
}

type Deliverer interface {
	Tell(ctx context.Context, player string, msg chat.Message) error
}

type Observer interface {
	ObserveCommand(command, result string)
}

// Deps are the collaborators a Handler needs. Stats and Observer may be nil.
type Deps struct {
	Catalog    Catalog
	Greeter    Composer
	Stats      Stats
	Translator Translator
	Out        Deliverer
	Observer   Observer
}

type Handler struct {
	mu    sync.RWMutex
	cfg   Config
	deps  Deps
	log   logx.Logger
	clock func() time.Time
}

func New(cfg Config, deps Deps, log logx.Logger) *Handler {
	if log.IsZero() {
		log = logx.Nop()
	}
	if deps.Translator == nil {
		deps.Translator = i18n.New("", "", "", log)
	}
	return &Handler{cfg: cfg.withDefaults(), deps: deps, log: log.With(logx.String("comp", "commands")), clock: time.Now}
}

// Apply swaps the config; used by config hot reload.
func (h *Handler) Apply(cfg Config) {
	cfg = cfg.withDefaults()
	h.mu.Lock()
	h.cfg = cfg
	h.mu.Unlock()
}

func (h *Handler) config() Config {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.cfg
}

// Match splits text into a prefix and arguments when it starts with one of
// the configured prefixes followed by a space or the end of the line.
func (h *Handler) Match(text string) (prefix string, args []string, ok bool) {
	text = strings.TrimSpace(text)
	for _, p := range h.config().Prefixes {
		if text == p {
			return p, nil, true
		}
		if strings.HasPrefix(text, p+" ") {
			return p, strings.Fields(text[len(p):]), true
		}
	}
	return "", nil, false
}

// IsOperator reports whether player is in the operator list.
func (h *Handler) IsOperator(player string) bool {
	return slices.ContainsFunc(h.config().Operators, func(op string) bool {
		return strings.EqualFold(strings.TrimSpace(op), player)
	})
}

// HandleChat runs a chat line as a command and replies to the player. It
// returns false when the line is not a command.
func (h *Handler) HandleChat(ctx context.Context, player, text string) bool {
	if !h.config().Enabled {
		return false
	}
	prefix, args, ok := h.Match(text)
	if !ok {
		return false
	}
	msgs := h.Run(ctx, Caller{Name: player, Operator: h.IsOperator(player)}, prefix, args)
	if len(msgs) == 0 || h.deps.Out == nil {
		return true
	}
	if err := h.deps.Out.Tell(ctx, player, chat.Join("\n", msgs...)); err != nil {
		h.log.Warn("command reply not delivered", logx.String("player", player), logx.Err(err))
	}
	return true
}

// Run executes one command and returns the reply lines.
func (h *Handler) Run(ctx context.Context, caller Caller, prefix string, args []string) []chat.Message {
	cfg := h.config()
	if prefix == "" {
		prefix = cfg.Prefixes[0]
	}
	sub := CmdHelp
	if len(args) > 0 {
		sub = strings.ToLower(args[0])
		args = args[1:]
	}
	tr := h.deps.Translator

	var (
		out    []chat.Message
		result = ResultOK
	)
	switch {
	case !known(sub):
		result = ResultUnknown
		out = []chat.Message{errorLine(tr.Tr(i18n.CmdUnknown, prefix))}
	case !allowed(cfg, caller, sub):
		result = ResultDenied
		out = []chat.Message{errorLine(tr.Tr(i18n.CmdNoPerm))}
	default:
		var err error
		out, err = h.dispatch(ctx, caller, prefix, sub, args)
		switch {
		case errors.Is(err, errUsage):
			result = ResultUsage
		case err != nil:
			result = ResultError
		}
	}

	h.log.Info("command",
		logx.String("caller", caller.Name),
		logx.String("command", sub),
		logx.Strings("args", args),
		logx.String("result", result),
	)
	if h.deps.Observer != nil {
		h.deps.Observer.ObserveCommand(sub, result)
	}
	return out
}

var errUsage = errors.New("usage")

func known(sub string) bool {
	_, ok := defaultRequirements[sub]
	return ok
}

func allowed(cfg Config, caller Caller, sub string) bool {
	if !cfg.PermissionCheck || caller.Operator {
		return true
	}
	return cfg.Requirements[sub] != PermOperator
}

func (h *Handler) dispatch(ctx context.Context, caller Caller, prefix, sub string, args []string) ([]chat.Message, error) {
	tr := h.deps.Translator
	usage := func(u string) ([]chat.Message, error) {
		return []chat.Message{errorLine(tr.Tr(i18n.CmdUsage, prefix+" "+u))}, errUsage
	}
	switch sub {
	case CmdReload:
		return h.reload()
	case CmdList:
		return h.list(prefix)
	case CmdInfo:
		if len(args) != 1 {
			return usage("info <scheme>")
		}
		return h.info(caller, args[0])
	case CmdPreview:
		if len(args) > 1 {
			return usage("preview [scheme]")
		}
		return h.preview(ctx, caller, args)
	case CmdSeen:
		if len(args) != 1 {
			return usage("seen <player>")
		}
		return h.seen(ctx, args[0])
	default:
		return h.help(prefix), nil
	}
}

func (h *Handler) help(prefix string) []chat.Message {
	tr := h.deps.Translator
	lines := strings.Split(tr.Tr(i18n.CmdHelp, prefix), "\n")
	out := make([]chat.Message, 0, len(lines))
	for _, line := range lines {
		f := strings.Fields(line)
		if len(f) < 2 {
			out = append(out, chat.Text(line))
			continue
		}
		suggest := f[0] + " " + f[1] + " "
		out = append(out, chat.Text(line).
			WithColor(chat.ColorGray).
			WithClick(chat.ClickSuggestCommand, suggest).
			WithHover(chat.Text(tr.Tr(i18n.HoverSuggest, strings.TrimSpace(suggest)))))
	}
	return out
}

func (h *Handler) reload() ([]chat.Message, error) {
	tr := h.deps.Translator
	err := errors.Join(h.deps.Catalog.Reload(), tr.Reload())
	names, nerr := h.deps.Catalog.Names()
	err = errors.Join(err, nerr)
	if err != nil {
		h.log.Warn("reload finished with errors", logx.Err(err))
		return []chat.Message{errorLine(tr.Tr(i18n.CmdReloadFail, err.Error()))}, err
	}
	return []chat.Message{chat.Text(tr.Tr(i18n.CmdReloaded, len(names))).WithColor(chat.ColorGreen)}, nil
}

func (h *Handler) list(prefix string) ([]chat.Message, error) {
	tr := h.deps.Translator
	all, err := h.deps.Catalog.All()
	if err != nil {
		return []chat.Message{errorLine(tr.Tr(i18n.CmdError, err.Error()))}, err
	}
	if len(all) == 0 {
		return []chat.Message{chat.Text(tr.Tr(i18n.CmdListEmpty)).WithColor(chat.ColorGray)}, nil
	}
	out := make([]chat.Message, 0, len(all)+1)
	out = append(out, chat.Text(tr.Tr(i18n.CmdListHeader)).WithColor(chat.ColorGold))
	for i, l := range all {
		idx := chat.Text(fmt.Sprintf("%d. ", i+1)).WithColor(chat.ColorGray)
		if l.Err != nil {
			name := chat.Text(l.Name).WithColor(chat.ColorRed).WithHover(chat.Text(l.Err.Error()))
			out = append(out, chat.Concat(idx, name))
			continue
		}
		cmd := prefix + " info " + l.Name
		name := chat.Text(l.Name).
			WithColor(chat.ColorYellow).
			WithClick(chat.ClickRunCommand, cmd).
			WithHover(chat.Text(tr.Tr(i18n.HoverRun, cmd)))
		prio := chat.Text(fmt.Sprintf(" (%d)", l.Scheme.EffectivePriority())).WithColor(chat.ColorGray)
		out = append(out, chat.Concat(idx, name, prio))
	}
	return out, nil
}

func (h *Handler) info(caller Caller, name string) ([]chat.Message, error) {
	tr := h.deps.Translator
	all, err := h.deps.Catalog.All()
	if err != nil {
		return []chat.Message{errorLine(tr.Tr(i18n.CmdError, err.Error()))}, err
	}
	i := slices.IndexFunc(all, func(l scheme.Listing) bool { return l.Name == name })
	if i < 0 || all[i].Err != nil {
		reason := "not found"
		if i >= 0 {
			reason = all[i].Err.Error()
		}
		return []chat.Message{errorLine(tr.Tr(i18n.CmdInfoMissing, name, reason))}, nil
	}
	s := all[i].Scheme
	out := []chat.Message{
		chat.Text(tr.Tr(i18n.CmdInfo, name, s.EffectivePriority(), s.Source)).WithColor(chat.ColorGold),
	}
	if d := strings.TrimSpace(s.Description); d != "" {
		out = append(out, chat.Text(d).WithColor(chat.ColorGray))
	}
	if h.deps.Greeter.Applicable(name, caller.Name, h.clock()) {
		out = append(out, chat.Text(tr.Tr(i18n.CmdUsable, caller.Name)).WithColor(chat.ColorGreen))
	} else {
		out = append(out, chat.Text(tr.Tr(i18n.CmdUnusable, caller.Name)).WithColor(chat.ColorGray))
	}
	return out, nil
}

func (h *Handler) preview(ctx context.Context, caller Caller, args []string) ([]chat.Message, error) {
	var (
		res greeter.Result
		err error
	)
	if len(args) == 1 {
		res, err = h.deps.Greeter.ComposeScheme(ctx, args[0], caller.Name, h.clock())
	} else {
		res, err = h.deps.Greeter.Compose(ctx, caller.Name, h.clock())
	}
	if err != nil {
		return []chat.Message{errorLine(h.deps.Translator.Tr(i18n.CmdPreviewFail, err.Error()))}, err
	}
	return []chat.Message{res.Message}, nil
}

func (h *Handler) seen(ctx context.Context, player string) ([]chat.Message, error) {
	tr := h.deps.Translator
	if h.deps.Stats == nil {
		return []chat.Message{errorLine(tr.Tr(i18n.CmdError, storage.ErrDisabled.Error()))}, storage.ErrDisabled
	}
	st, err := h.deps.Stats.Joins(ctx, player)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return []chat.Message{chat.Text(tr.Tr(i18n.CmdSeenNever, player)).WithColor(chat.ColorGray)}, nil
	case err != nil:
		return []chat.Message{errorLine(tr.Tr(i18n.CmdError, err.Error()))}, err
	}
	line := tr.Tr(i18n.CmdSeen, st.Player, st.Count, humanize.Time(st.FirstSeen), humanize.Time(st.LastSeen))
	return []chat.Message{chat.Text(line).WithColor(chat.ColorAqua)}, nil
}

func errorLine(s string) chat.Message { return chat.Text(s).WithColor(chat.ColorRed) }
