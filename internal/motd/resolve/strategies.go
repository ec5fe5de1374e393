package resolve

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"joinmotd/internal/motd/chat"
	"joinmotd/internal/motd/i18n"
	"joinmotd/internal/motd/motderr"
)

const sinceLayout = "2006-01-02"

func resolvePlayer(_ context.Context, _ *Resolver, req *Request, _ string) (chat.Message, error) {
	return chat.Text(req.Player), nil
}

func resolvePlayerList(ctx context.Context, r *Resolver, _ *Request, _ string) (chat.Message, error) {
	if r.deps.Players == nil {
		return chat.Message{}, errUnavailable("player list")
	}
	players, ok := r.deps.Players.OnlinePlayers(ctx)
	if !ok {
		return chat.Message{}, errUnavailable("player list")
	}
	return chat.Text(strings.Join(players, ", ")), nil
}

func dayCount(ctx context.Context, r *Resolver, req *Request) (int, error) {
	if r.deps.Days == nil {
		return 0, errUnavailable("day count")
	}
	n, ok := r.deps.Days.DayCount(ctx, req.Now)
	if !ok {
		return 0, errUnavailable("day count")
	}
	return n, nil
}

func resolveDay(ctx context.Context, r *Resolver, req *Request, _ string) (chat.Message, error) {
	n, err := dayCount(ctx, r, req)
	if err != nil {
		return chat.Message{}, err
	}
	return chat.Text(strconv.Itoa(n)), nil
}

func resolveDayOrdinal(ctx context.Context, r *Resolver, req *Request, _ string) (chat.Message, error) {
	n, err := dayCount(ctx, r, req)
	if err != nil {
		return chat.Message{}, err
	}
	return chat.Text(humanize.Ordinal(n)), nil
}

// resolveSince counts whole calendar days between the date and now, both
// taken in the request location.
func resolveSince(_ context.Context, _ *Resolver, req *Request, content string) (chat.Message, error) {
	arg := argAfter(content, "since:")
	loc := req.location()
	d, err := time.ParseInLocation(sinceLayout, arg, loc)
	if err != nil {
		return chat.Message{}, errResolve("since: bad date %q", arg)
	}
	return chat.Text(strconv.Itoa(DaysBetween(d, req.Now.In(loc)))), nil
}

// DaysBetween returns the absolute number of calendar days between a and b,
// ignoring the time of day and DST shifts.
func DaysBetween(a, b time.Time) int {
	ua := time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, time.UTC)
	ub := time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, time.UTC)
	days := int(ub.Sub(ua).Hours() / 24)
	if days < 0 {
		days = -days
	}
	return days
}

// API failures render as nothing rather than the raw span, but are still
// reported.
func resolveAPI(ctx context.Context, r *Resolver, _ *Request, content string) (chat.Message, error) {
	url := argAfter(content, "API:", "api:")
	if r.deps.Fetch == nil || url == "" {
		return chat.Text(""), nil
	}
	body, err := r.deps.Fetch.FetchText(ctx, url)
	if err != nil {
		return chat.Text(""), blankError{fmt.Errorf("%w: api %s: %w", motderr.ErrExternalUnavailable, url, err)}
	}
	return chat.Text(strings.TrimSpace(body)), nil
}

func resolveHostVersion(_ context.Context, r *Resolver, _ *Request, _ string) (chat.Message, error) {
	return chat.Text(r.deps.HostVersion), nil
}

func resolveEngineVersion(_ context.Context, r *Resolver, _ *Request, _ string) (chat.Message, error) {
	return chat.Text(r.deps.EngineVersion), nil
}

func resolveVersion(ctx context.Context, r *Resolver, _ *Request, content string) (chat.Message, error) {
	id := argAfter(content, "version:")
	if r.deps.Versions == nil {
		return chat.Message{}, errUnavailable("version lookup")
	}
	v, ok := r.deps.Versions.ServerVersion(ctx, id)
	if !ok {
		return chat.Message{}, errResolve("version %q not found", id)
	}
	return chat.Text(v), nil
}

func resolveRandom(_ context.Context, r *Resolver, _ *Request, content string) (chat.Message, error) {
	name := argAfter(content, "random:")
	if r.deps.Pools == nil {
		return chat.Message{}, errUnavailable("random pools")
	}
	pool, ok := r.deps.Pools.Pool(name)
	if !ok {
		return chat.Message{}, errResolve("random pool %q is empty or missing", name)
	}
	return chat.Text(pool[r.deps.Intn(len(pool))]), nil
}

// serverEntry matches "[label](target)" or a bare name. Names are separated
// by commas or whitespace.
var serverEntry = regexp.MustCompile(`\[([^\]]*)\]\(([^)]*)\)|[^\s,]+`)

type server struct{ label, target string }

func parseServers(s string) []server {
	var out []server
	for _, m := range serverEntry.FindAllStringSubmatch(s, -1) {
		if clickLink.MatchString(m[0]) {
			label, target := strings.TrimSpace(m[1]), strings.TrimSpace(m[2])
			if target == "" {
				target = chat.StripCodes(label)
			}
			out = append(out, server{label: label, target: target})
			continue
		}
		out = append(out, server{label: m[0], target: chat.StripCodes(m[0])})
	}
	return out
}

func resolveServerList(_ context.Context, r *Resolver, req *Request, content string) (chat.Message, error) {
	entries := parseServers(argAfter(content, "serverlist:", "serverlist"))
	for _, extra := range req.Servers {
		entries = append(entries, parseServers(extra)...)
	}
	f := req.ServerList.WithDefaults()
	parts := make([]chat.Message, 0, len(entries))
	for _, e := range entries {
		repl := strings.NewReplacer("{name}", e.label, "{target}", e.target)
		hover := r.tr(i18n.HoverServer, e.target)
		if f.Hover != "" {
			hover = repl.Replace(f.Hover)
		}
		parts = append(parts, chat.Text(repl.Replace(f.Label)).
			WithHover(chat.Text(hover)).
			WithClick(chat.ClickRunCommand, repl.Replace(f.Command)))
	}
	return chat.Join(f.Separator, parts...), nil
}

// clickLink matches the "[display](payload)" click form.
var clickLink = regexp.MustCompile(`^\[([^\]]*)\]\(([^)]*)\)$`)

type clickKind struct {
	action chat.ClickAction
	color  chat.Color
	styles chat.Style
	hover  string
	// hoverArg includes the payload in the hover text.
	hoverArg bool
	suffix   string
}

var (
	clickRun     = clickKind{action: chat.ClickRunCommand, color: chat.ColorGray, hover: i18n.HoverRun, hoverArg: true}
	clickSuggest = clickKind{action: chat.ClickSuggestCommand, color: chat.ColorGray, hover: i18n.HoverSuggest, hoverArg: true, suffix: " "}
	clickCopy    = clickKind{action: chat.ClickCopyClipboard, color: chat.ColorGreen, hover: i18n.HoverCopy}
	clickOpenURL = clickKind{action: chat.ClickOpenURL, styles: chat.StyleUnderlined, hover: i18n.HoverOpenURL, hoverArg: true}
)

// ParseClick splits the payload of a click tag (tag character removed) into
// display text and click value. The bare form uses the text for both, with
// style codes stripped from the value only.
func ParseClick(body string) (display, payload string) {
	if m := clickLink.FindStringSubmatch(body); m != nil {
		return m[1], chat.StripCodes(m[2])
	}
	return body, chat.StripCodes(body)
}

func clickRule(k clickKind) func(context.Context, *Resolver, *Request, string) (chat.Message, error) {
	return func(_ context.Context, r *Resolver, _ *Request, content string) (chat.Message, error) {
		display, payload := ParseClick(content[1:])
		if payload == "" {
			return chat.Message{}, errResolve("empty click payload")
		}
		var hover string
		if k.hoverArg {
			hover = r.tr(k.hover, payload)
		} else {
			hover = r.tr(k.hover)
		}
		msg := chat.Text(display).
			WithColor(k.color).
			WithStyles(k.styles).
			WithHover(chat.Text(hover)).
			WithClick(k.action, payload+k.suffix)
		return msg, nil
	}
}
