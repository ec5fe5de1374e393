package render

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"joinmotd/internal/motd/chat"
	"joinmotd/internal/motd/motderr"
	"joinmotd/internal/motd/resolve"
	"joinmotd/internal/motd/scheme"
	logx "joinmotd/pkg/logx"
)

type globals map[string]scheme.Variable

func (g globals) Globals() map[string]scheme.Variable { return g }

type fakeFetch struct {
	body string
	err  error
}

func (f fakeFetch) FetchText(context.Context, string) (string, error) { return f.body, f.err }

type fakePools map[string][]string

func (f fakePools) Pool(name string) ([]string, bool) {
	p, ok := f[name]
	return p, ok && len(p) > 0
}

type upper struct{}

func (upper) Tr(key string, _ ...any) string { return strings.ToUpper(key) }

var now = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func render(t *testing.T, r *Renderer, s *scheme.Scheme) (string, Report) {
	t.Helper()
	msg, rep, err := r.Render(context.Background(), s, "Steve", now)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	return msg.PlainString(), rep
}

func TestRenderLines(t *testing.T) {
	t.Parallel()
	r := New(Options{Globals: globals{"server": scheme.Literal("Lobby"), "who": scheme.Literal("global")}, Location: time.UTC, Log: logx.Nop()})

	s := &scheme.Scheme{
		Name:      "x",
		Format:    "Hi %player%, welcome to {server}\n# hidden\n\\#tag {who} {missing}",
		Variables: map[string]scheme.Variable{"who": scheme.Literal("local")},
	}
	got, rep := render(t, r, s)
	if want := "Hi Steve, welcome to Lobby\n#tag local {missing}"; got != want {
		t.Fatalf("got %q want %q", got, want)
	}
	if rep.ID == "" || rep.SpanErrors != 0 || len(rep.LineErrors) != 0 {
		t.Fatalf("report=%+v", rep)
	}
}

func TestUnresolvedSpanCounted(t *testing.T) {
	t.Parallel()
	r := New(Options{Log: logx.Nop()})
	got, rep := render(t, r, &scheme.Scheme{Name: "x", Format: "day %day%"})
	if got != "day %day%" || rep.SpanErrors != 1 {
		t.Fatalf("got %q report=%+v", got, rep)
	}
}

func TestCyclesAndDepth(t *testing.T) {
	t.Parallel()
	vars := map[string]scheme.Variable{
		"a": scheme.Literal("{b}"),
		"b": scheme.Literal("{a}"),
	}
	names := []string{"v0", "v1", "v2", "v3", "v4", "v5", "v6", "v7", "v8", "v9"}
	for i, n := range names[:len(names)-1] {
		vars[n] = scheme.Literal("{" + names[i+1] + "}")
	}
	vars["v9"] = scheme.Literal("end")

	r := New(Options{Log: logx.Nop()})
	got, _ := render(t, r, &scheme.Scheme{Name: "x", Format: "{a}|{v0}", Variables: vars})
	if want := "{a}|{v8}"; got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestFetchedVariable(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name      string
		fetch     fakeFetch
		path      string
		want      string
		spanError int
	}{
		{"plain body", fakeFetch{body: " hello \n"}, "", "hello", 0},
		{"json path", fakeFetch{body: `{"motd":{"text":" hi "}}`}, "motd.text", "hi", 0},
		{"not json", fakeFetch{body: "oops"}, "motd.text", "", 1},
		{"fetch error", fakeFetch{err: errors.New("down")}, "", "", 1},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			r := New(Options{Fetch: tt.fetch, Log: logx.Nop()})
			s := &scheme.Scheme{Name: "x", Format: "[{news}]", Variables: map[string]scheme.Variable{
				"news": {Kind: scheme.KindFetched, Fetch: &scheme.FetchSource{URL: "http://example.invalid", JSONPath: tt.path}},
			}}
			got, rep := render(t, r, s)
			if got != "["+tt.want+"]" || rep.SpanErrors != tt.spanError {
				t.Fatalf("got %q spanErrors=%d", got, rep.SpanErrors)
			}
		})
	}
}

func TestStyledAndTranslatedVariables(t *testing.T) {
	t.Parallel()
	r := New(Options{Translator: upper{}, Log: logx.Nop()})
	s := &scheme.Scheme{Name: "x", Format: "{rules} {title}", Variables: map[string]scheme.Variable{
		"rules": {
			Kind:  scheme.KindLiteral,
			Text:  "Rules",
			Color: chat.ColorGold,
			Hover: "read {page}",
			Click: &chat.ClickEvent{Action: chat.ClickRunCommand, Value: "/rules {page}"},
		},
		"page":  scheme.Literal("1"),
		"title": {Kind: scheme.KindTranslated, Translate: "motd.title"},
	}}
	msg, _, err := r.Render(context.Background(), s, "Steve", now)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if got := msg.PlainString(); got != "Rules MOTD.TITLE" {
		t.Fatalf("plain=%q", got)
	}
	b, err := msg.MarshalJSON()
	if err != nil {
		t.Fatalf("MarshalJSON: %v", err)
	}
	for _, want := range []string{`"color":"gold"`, `/rules 1`, `read 1`} {
		if !strings.Contains(string(b), want) {
			t.Fatalf("json %s missing %s", b, want)
		}
	}
}

func TestSpanArgumentsSubstituted(t *testing.T) {
	t.Parallel()
	res := resolve.New(resolve.Deps{Pools: fakePools{"tips": {"first", "second"}}, Intn: func(int) int { return 1 }}, logx.Nop())
	r := New(Options{Resolver: res, Log: logx.Nop()})
	s := &scheme.Scheme{Name: "x", Format: "%random:{pool}%", Variables: map[string]scheme.Variable{"pool": scheme.Literal("tips")}}
	if got, _ := render(t, r, s); got != "second" {
		t.Fatalf("got %q", got)
	}
}

func TestNilScheme(t *testing.T) {
	t.Parallel()
	_, _, err := New(Options{}).Render(context.Background(), nil, "Steve", now)
	if !errors.Is(err, motderr.ErrSchemeLoad) {
		t.Fatalf("err=%v", err)
	}
}

func TestTrailingNewlineAddsNoBlankLine(t *testing.T) {
	t.Parallel()
	r := New(Options{Log: logx.Nop()})
	if got, _ := render(t, r, &scheme.Scheme{Name: "x", Format: "one\ntwo\n"}); got != "one\ntwo" {
		t.Fatalf("got %q", got)
	}

	cat, err := scheme.Open(t.TempDir(), logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	def, err := cat.Scheme(scheme.DefaultSchemeName)
	if err != nil {
		t.Fatalf("default scheme: %v", err)
	}
	if !strings.HasSuffix(def.Format, "\n") {
		t.Fatalf("default format no longer a block scalar")
	}
	res := resolve.New(resolve.Deps{Pools: cat, Intn: func(int) int { return 0 }}, logx.Nop())
	got, _ := render(t, New(Options{Resolver: res, Globals: cat, Log: logx.Nop()}), def)
	if strings.HasSuffix(got, "\n") {
		t.Fatalf("default scheme ends with a blank line: %q", got)
	}
	if want := "Knowledge is the armor you should wear."; !strings.HasSuffix(got, want) {
		t.Fatalf("last line of %q is not %q", got, want)
	}
}

func TestAPIFailureCountsAsSpanError(t *testing.T) {
	t.Parallel()
	res := resolve.New(resolve.Deps{Fetch: fakeFetch{err: context.DeadlineExceeded}}, logx.Nop())
	r := New(Options{Resolver: res, Log: logx.Nop()})
	got, rep := render(t, r, &scheme.Scheme{Name: "x", Format: "a\n[%api: http://x%]\nc %player%"})
	if got != "a\n[]\nc Steve" {
		t.Fatalf("got %q", got)
	}
	if rep.SpanErrors != 1 || len(rep.LineErrors) != 0 {
		t.Fatalf("report = %+v", rep)
	}
}
