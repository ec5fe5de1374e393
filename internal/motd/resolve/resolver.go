// Package resolve expands the content of one %...% escape span into a chat
// message. Tags are matched against an explicit ordered rule table; the first
// rule that matches wins and unknown content passes through unchanged.
package resolve

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"joinmotd/internal/motd/chat"
	"joinmotd/internal/motd/i18n"
	"joinmotd/internal/motd/motderr"
	"joinmotd/internal/motd/scheme"
	logx "joinmotd/pkg/logx"
)

// Fetcher returns the body of url as text.
type Fetcher interface {
	FetchText(ctx context.Context, url string) (string, error)
}

// DayCounter reports how many days the server has been running.
type DayCounter interface {
	DayCount(ctx context.Context, now time.Time) (int, bool)
}

// PlayerLister reports the players currently online.
type PlayerLister interface {
	OnlinePlayers(ctx context.Context) ([]string, bool)
}

// VersionLookup finds an installed version by identifier.
type VersionLookup interface {
	ServerVersion(ctx context.Context, id string) (string, bool)
}

type Translator interface {
	Tr(key string, args ...any) string
}

// PoolSource serves %random:<pool>% lines.
type PoolSource interface {
	Pool(name string) ([]string, bool)
}

// Deps are the collaborators consulted by rules. Any of them may be nil; the
// affected tags then fall back as if the collaborator were unavailable. A nil
// Tr uses the built-in English strings.
type Deps struct {
	Fetch    Fetcher
	Days     DayCounter
	Players  PlayerLister
	Versions VersionLookup
	Tr       Translator
	Pools    PoolSource

	// HostVersion is reported by %mcdrVersion%, EngineVersion by
	// %pluginVersion%.
	HostVersion   string
	EngineVersion string

	// Intn picks a random index in [0,n). Defaults to math/rand.
	Intn func(n int) int
}

// Request carries the per-render inputs. Now is captured once per render.
type Request struct {
	Player     string
	Now        time.Time
	Loc        *time.Location
	Servers    []string
	ServerList scheme.ServerListFormat
}

func (r *Request) location() *time.Location {
	if r == nil || r.Loc == nil {
		return time.Local
	}
	return r.Loc
}

// Rule pairs a tag predicate with its strategy. A strategy error means the
// span renders as its raw text.
type Rule struct {
	Name    string
	Match   func(content string) bool
	Resolve func(ctx context.Context, r *Resolver, req *Request, content string) (chat.Message, error)
}

type Resolver struct {
	deps  Deps
	rules []Rule
	log   logx.Logger
}

func New(deps Deps, log logx.Logger) *Resolver {
	if log.IsZero() {
		log = logx.Nop()
	}
	if deps.Intn == nil {
		deps.Intn = rand.Intn
	}
	if deps.Tr == nil {
		deps.Tr = i18n.New("", "", "", log)
	}
	return &Resolver{deps: deps, rules: defaultRules(), log: log}
}

// Rules returns the rule table in match order.
func (r *Resolver) Rules() []Rule { return r.rules }

// Match returns the name of the rule that would handle content, or "" when
// the content passes through.
func (r *Resolver) Match(content string) string {
	content = strings.TrimSpace(content)
	for _, rule := range r.rules {
		if rule.Match(content) {
			return rule.Name
		}
	}
	return ""
}

// Resolve expands one span. It never fails the caller: on error the returned
// message is the raw span (or empty, for rules that blank on failure) and the
// error (wrapping motderr.ErrResolution or motderr.ErrExternalUnavailable) is
// returned for logging and counting only.
func (r *Resolver) Resolve(ctx context.Context, req *Request, content string) (chat.Message, error) {
	raw := chat.Text("%" + content + "%")
	trimmed := strings.TrimSpace(content)
	for _, rule := range r.rules {
		if !rule.Match(trimmed) {
			continue
		}
		msg, err := rule.Resolve(ctx, r, req, trimmed)
		if err != nil {
			err = fmt.Errorf("%%%s%% (%s): %w", content, rule.Name, err)
			var b blankError
			if errors.As(err, &b) {
				return chat.Text(""), err
			}
			return raw, err
		}
		return msg, nil
	}
	return raw, nil
}

// blankError marks a failure that renders as nothing instead of the raw span.
type blankError struct{ err error }

func (e blankError) Error() string { return e.err.Error() }
func (e blankError) Unwrap() error { return e.err }

func errUnavailable(what string) error {
	return fmt.Errorf("%w: %s", motderr.ErrExternalUnavailable, what)
}

func errResolve(format string, args ...any) error {
	return fmt.Errorf("%w: %s", motderr.ErrResolution, fmt.Sprintf(format, args...))
}

func (r *Resolver) tr(key string, args ...any) string {
	return r.deps.Tr.Tr(key, args...)
}

func exact(tag string) func(string) bool {
	return func(c string) bool { return c == tag }
}

func prefix(tags ...string) func(string) bool {
	return func(c string) bool {
		for _, t := range tags {
			if strings.HasPrefix(c, t) {
				return true
			}
		}
		return false
	}
}

// argAfter strips the first matching tag and trims the remainder.
func argAfter(c string, tags ...string) string {
	for _, t := range tags {
		if strings.HasPrefix(c, t) {
			return strings.TrimSpace(c[len(t):])
		}
	}
	return c
}

// clickPrefix matches a single-character click tag followed by a payload.
func clickPrefix(ch byte) func(string) bool {
	return func(c string) bool { return len(c) > 1 && c[0] == ch }
}

// defaultRules is the precedence table. Multi-character tags come before the
// single-character click prefixes they would otherwise shadow ("api:" before
// "a", "playerlist" before "player").
func defaultRules() []Rule {
	return []Rule{
		{Name: "playerlist", Match: exact("playerlist"), Resolve: resolvePlayerList},
		{Name: "since", Match: prefix("since:"), Resolve: resolveSince},
		{Name: "serverlist", Match: func(c string) bool { return c == "serverlist" || strings.HasPrefix(c, "serverlist:") }, Resolve: resolveServerList},
		{Name: "api", Match: prefix("API:", "api:"), Resolve: resolveAPI},
		{Name: "mcdrVersion", Match: exact("mcdrVersion"), Resolve: resolveHostVersion},
		{Name: "pluginVersion", Match: exact("pluginVersion"), Resolve: resolveEngineVersion},
		{Name: "version", Match: prefix("version:"), Resolve: resolveVersion},
		{Name: "random", Match: prefix("random:"), Resolve: resolveRandom},
		{Name: "day:ordinal", Match: exact("day:ordinal"), Resolve: resolveDayOrdinal},
		{Name: "day", Match: exact("day"), Resolve: resolveDay},
		{Name: "player", Match: exact("player"), Resolve: resolvePlayer},
		{Name: "run_command", Match: clickPrefix('7'), Resolve: clickRule(clickRun)},
		{Name: "suggest_command", Match: clickPrefix('8'), Resolve: clickRule(clickSuggest)},
		{Name: "copy_to_clipboard", Match: clickPrefix('a'), Resolve: clickRule(clickCopy)},
		{Name: "open_url", Match: clickPrefix('n'), Resolve: clickRule(clickOpenURL)},
	}
}
