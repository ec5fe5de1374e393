// Package render turns a scheme into a chat message: it splits the format into
// lines, drops comments, expands %...% spans through the resolver and {name}
// placeholders from the merged variable map.
package render

import (
	"context"
	"fmt"
	"regexp"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"joinmotd/internal/motd/chat"
	"joinmotd/internal/motd/markup"
	"joinmotd/internal/motd/motderr"
	"joinmotd/internal/motd/resolve"
	"joinmotd/internal/motd/scheme"
	logx "joinmotd/pkg/logx"
)

// MaxDepth bounds variable nesting. Deeper references render as literal
// "{name}", as do cycles.
const MaxDepth = 8

var placeholder = regexp.MustCompile(`\{([A-Za-z0-9_.\-]+)\}`)

// VariableSource supplies the global variables merged under every scheme.
type VariableSource interface {
	Globals() map[string]scheme.Variable
}

type Options struct {
	Resolver *resolve.Resolver
	Globals  VariableSource
	// Fetch serves Fetched variables. Usually the same fetcher the resolver
	// uses for %api:%.
	Fetch      resolve.Fetcher
	Translator resolve.Translator
	Location   *time.Location
	Log        logx.Logger
}

type Renderer struct {
	res     *resolve.Resolver
	globals VariableSource
	fetch   resolve.Fetcher
	tr      resolve.Translator
	loc     *time.Location
	log     logx.Logger
}

func New(opts Options) *Renderer {
	if opts.Log.IsZero() {
		opts.Log = logx.Nop()
	}
	if opts.Resolver == nil {
		opts.Resolver = resolve.New(resolve.Deps{Fetch: opts.Fetch, Tr: opts.Translator}, opts.Log)
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	return &Renderer{
		res:     opts.Resolver,
		globals: opts.Globals,
		fetch:   opts.Fetch,
		tr:      opts.Translator,
		loc:     opts.Location,
		log:     opts.Log.With(logx.String("comp", "render")),
	}
}

// LineError records one line that failed and was rendered raw.
type LineError struct {
	Line int
	Err  error
}

// Report summarizes one render for logs and metrics.
type Report struct {
	ID         string
	LineErrors []LineError
	// SpanErrors counts spans that fell back to their raw text or to "".
	SpanErrors int
}

// Render renders s for player at now. Only a nil scheme is an error: failures
// inside a line degrade that line to its raw text and rendering continues.
func (r *Renderer) Render(ctx context.Context, s *scheme.Scheme, player string, now time.Time) (chat.Message, Report, error) {
	rep := Report{ID: uuid.NewString()}
	if s == nil {
		return chat.Message{}, rep, fmt.Errorf("%w: nil scheme", motderr.ErrSchemeLoad)
	}
	log := r.log.With(logx.String("render_id", rep.ID), logx.String("scheme", s.Name), logx.String("player", player))

	var globals map[string]scheme.Variable
	if r.globals != nil {
		globals = r.globals.Globals()
	}
	st := &state{
		r:   r,
		log: log,
		rep: &rep,
		req: &resolve.Request{
			Player:     player,
			Now:        now,
			Loc:        r.loc,
			Servers:    s.Servers,
			ServerList: s.ServerList,
		},
		vars:     scheme.MergeVariables(globals, s.Variables),
		visiting: map[string]bool{},
	}

	var lines []chat.Message
	for i, raw := range markup.SplitLines(s.Format) {
		text, comment := markup.Unescape(raw)
		if comment {
			continue
		}
		msg, err := st.line(ctx, text)
		if err != nil {
			rep.LineErrors = append(rep.LineErrors, LineError{Line: i + 1, Err: err})
			log.Warn("line render failed; using raw text", logx.Int("line", i+1), logx.Err(err))
			msg = chat.Text(text)
		}
		lines = append(lines, msg)
	}
	return chat.Join("\n", lines...), rep, nil
}

// state is per-render and never shared between goroutines.
type state struct {
	r        *Renderer
	log      logx.Logger
	rep      *Report
	req      *resolve.Request
	vars     map[string]scheme.Variable
	visiting map[string]bool
}

func (st *state) line(ctx context.Context, text string) (msg chat.Message, err error) {
	defer func() {
		if p := recover(); p != nil {
			st.log.Debug("line panic", logx.String("stack", string(debug.Stack())))
			err = fmt.Errorf("%w: panic: %v", motderr.ErrResolution, p)
		}
	}()
	for k := range st.visiting {
		delete(st.visiting, k)
	}
	return st.markup(ctx, text, 0), nil
}

// markup expands one piece of template text: spans through the resolver,
// placeholders in the literal parts.
func (st *state) markup(ctx context.Context, text string, depth int) chat.Message {
	ln := markup.Parse(text)
	parts := make([]chat.Message, 0, len(ln.Literals)+len(ln.Spans))
	for i, lit := range ln.Literals {
		parts = append(parts, st.placeholders(ctx, lit, depth)...)
		if i >= len(ln.Spans) {
			break
		}
		content := st.substitute(ln.Spans[i].Content, depth)
		m, err := st.r.res.Resolve(ctx, st.req, content)
		if err != nil {
			st.rep.SpanErrors++
			st.log.Debug("span unresolved", logx.String("span", content), logx.Err(err))
		}
		parts = append(parts, m)
	}
	if len(parts) == 1 {
		return parts[0]
	}
	return chat.Concat(parts...)
}

func (st *state) placeholders(ctx context.Context, lit string, depth int) []chat.Message {
	locs := placeholder.FindAllStringSubmatchIndex(lit, -1)
	if len(locs) == 0 {
		if lit == "" {
			return nil
		}
		return []chat.Message{chat.Text(lit)}
	}
	var out []chat.Message
	last := 0
	for _, loc := range locs {
		if loc[0] > last {
			out = append(out, chat.Text(lit[last:loc[0]]))
		}
		name := lit[loc[2]:loc[3]]
		out = append(out, st.variable(ctx, name, lit[loc[0]:loc[1]], depth))
		last = loc[1]
	}
	if last < len(lit) {
		out = append(out, chat.Text(lit[last:]))
	}
	return out
}

func (st *state) variable(ctx context.Context, name, raw string, depth int) chat.Message {
	v, ok := st.vars[name]
	if !ok || depth >= MaxDepth || st.visiting[name] {
		if ok {
			st.log.Debug("variable not expanded", logx.String("variable", name), logx.Int("depth", depth))
		}
		return chat.Text(raw)
	}
	st.visiting[name] = true
	defer delete(st.visiting, name)
	return st.eval(ctx, v, depth+1)
}

// eval renders one variable tree node and applies its styling.
func (st *state) eval(ctx context.Context, v scheme.Variable, depth int) chat.Message {
	var msg chat.Message
	switch v.Kind {
	case scheme.KindLiteral:
		msg = st.markup(ctx, v.Text, depth)
	case scheme.KindFetched:
		msg = chat.Text(st.fetched(ctx, v.Fetch))
	case scheme.KindTranslated:
		text := v.Translate
		if st.r.tr != nil {
			text = st.r.tr.Tr(v.Translate)
		}
		msg = st.markup(ctx, text, depth)
	case scheme.KindList:
		children := make([]chat.Message, 0, len(v.List))
		for _, c := range v.List {
			if depth >= MaxDepth {
				break
			}
			children = append(children, st.eval(ctx, c, depth+1))
		}
		msg = chat.Concat(children...)
	}
	if v.Color != chat.ColorNone {
		msg = msg.WithColor(v.Color)
	}
	if v.Styles != 0 {
		msg = msg.WithStyles(v.Styles)
	}
	if v.Hover != "" {
		msg = msg.WithHover(chat.Text(st.substitute(v.Hover, depth)))
	}
	if v.Click != nil {
		msg = msg.WithClick(v.Click.Action, st.substitute(v.Click.Value, depth))
	}
	return msg
}

func (st *state) fetched(ctx context.Context, src *scheme.FetchSource) string {
	if src == nil || st.r.fetch == nil {
		st.rep.SpanErrors++
		return ""
	}
	body, err := st.r.fetch.FetchText(ctx, src.URL)
	if err != nil {
		st.rep.SpanErrors++
		st.log.Debug("fetched variable failed", logx.String("url", src.URL), logx.Err(err))
		return ""
	}
	if src.JSONPath == "" {
		return strings.TrimSpace(body)
	}
	if !gjson.Valid(body) {
		st.rep.SpanErrors++
		st.log.Debug("fetched body is not json", logx.String("url", src.URL))
		return ""
	}
	return strings.TrimSpace(gjson.Get(body, src.JSONPath).String())
}

// substitute replaces {name} with the plain text of literal variables. Used
// where only text is accepted: span arguments, hover text, click values.
func (st *state) substitute(text string, depth int) string {
	if depth >= MaxDepth || !strings.Contains(text, "{") {
		return text
	}
	return placeholder.ReplaceAllStringFunc(text, func(m string) string {
		name := m[1 : len(m)-1]
		v, ok := st.vars[name]
		if !ok || v.Kind != scheme.KindLiteral || st.visiting[name] {
			return m
		}
		st.visiting[name] = true
		defer delete(st.visiting, name)
		return st.substitute(v.Text, depth+1)
	})
}
