package resolve

import (
	"context"
	"errors"
	"testing"
	"time"

	"joinmotd/internal/motd/chat"
	"joinmotd/internal/motd/motderr"
	logx "joinmotd/pkg/logx"
)

type fakeFetch struct {
	body string
	err  error
}

func (f fakeFetch) FetchText(ctx context.Context, url string) (string, error) {
	return f.body, f.err
}

type fakeDays struct {
	n  int
	ok bool
}

func (f fakeDays) DayCount(context.Context, time.Time) (int, bool) { return f.n, f.ok }

type fakePlayers struct {
	list []string
	ok   bool
}

func (f fakePlayers) OnlinePlayers(context.Context) ([]string, bool) { return f.list, f.ok }

type fakeVersions map[string]string

func (f fakeVersions) ServerVersion(_ context.Context, id string) (string, bool) {
	v, ok := f[id]
	return v, ok
}

type fakePools map[string][]string

func (f fakePools) Pool(name string) ([]string, bool) {
	p, ok := f[name]
	return p, ok && len(p) > 0
}

func newTestResolver(d Deps) *Resolver {
	return New(d, logx.Nop())
}

func testReq() *Request {
	return &Request{Player: "Steve", Now: time.Date(2020, 1, 11, 15, 0, 0, 0, time.UTC), Loc: time.UTC}
}

func TestRulePrecedence(t *testing.T) {
	t.Parallel()
	r := newTestResolver(Deps{})
	tests := []struct {
		content string
		want    string
	}{
		{"playerlist", "playerlist"},
		{"player", "player"},
		{"api: http://x", "api"},
		{"API: http://x", "api"},
		{"abc", "copy_to_clipboard"},
		{"day", "day"},
		{"day:ordinal", "day:ordinal"},
		{"days", ""},
		{"serverlist", "serverlist"},
		{"serverlist: a b", "serverlist"},
		{"since: 2020-01-01", "since"},
		{"version:server", "version"},
		{"mcdrVersion", "mcdrVersion"},
		{"pluginVersion", "pluginVersion"},
		{"random:original", "random"},
		{"7say hi", "run_command"},
		{"8/msg", "suggest_command"},
		{"nhttps://example.org", "open_url"},
		{"7", ""},
		{"unknown tag", ""},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.content, func(t *testing.T) {
			t.Parallel()
			if got := r.Match(tt.content); got != tt.want {
				t.Fatalf("Match(%q) = %q, want %q", tt.content, got, tt.want)
			}
		})
	}
}

func TestSince(t *testing.T) {
	t.Parallel()
	r := newTestResolver(Deps{})
	msg, err := r.Resolve(context.Background(), testReq(), "since: 2020-01-01")
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}
	if got := msg.PlainString(); got != "10" {
		t.Fatalf("since = %q, want 10", got)
	}

	// Dates in the future count the same way.
	msg, _ = r.Resolve(context.Background(), testReq(), "since:2020-01-21")
	if got := msg.PlainString(); got != "10" {
		t.Fatalf("future since = %q, want 10", got)
	}

	msg, err = r.Resolve(context.Background(), testReq(), "since: yesterday")
	if !errors.Is(err, motderr.ErrResolution) {
		t.Fatalf("bad date err = %v, want ErrResolution", err)
	}
	if got := msg.PlainString(); got != "%since: yesterday%" {
		t.Fatalf("bad date passthrough = %q", got)
	}
}

func TestUnknownTagPassesThrough(t *testing.T) {
	t.Parallel()
	r := newTestResolver(Deps{})
	msg, err := r.Resolve(context.Background(), testReq(), "hello world")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if got := msg.PlainString(); got != "%hello world%" {
		t.Fatalf("passthrough = %q", got)
	}
}

func TestDayFallbacks(t *testing.T) {
	t.Parallel()
	r := newTestResolver(Deps{})
	msg, err := r.Resolve(context.Background(), testReq(), "day")
	if !errors.Is(err, motderr.ErrExternalUnavailable) {
		t.Fatalf("err = %v, want ErrExternalUnavailable", err)
	}
	if msg.PlainString() != "%day%" {
		t.Fatalf("day passthrough = %q", msg.PlainString())
	}

	r = newTestResolver(Deps{Days: fakeDays{n: 22, ok: true}})
	msg, _ = r.Resolve(context.Background(), testReq(), "day")
	if msg.PlainString() != "22" {
		t.Fatalf("day = %q", msg.PlainString())
	}
	msg, _ = r.Resolve(context.Background(), testReq(), "day:ordinal")
	if msg.PlainString() != "22nd" {
		t.Fatalf("day:ordinal = %q", msg.PlainString())
	}
}

func TestPlayerList(t *testing.T) {
	t.Parallel()
	r := newTestResolver(Deps{Players: fakePlayers{list: []string{"Alex", "Steve"}, ok: true}})
	msg, _ := r.Resolve(context.Background(), testReq(), "playerlist")
	if msg.PlainString() != "Alex, Steve" {
		t.Fatalf("playerlist = %q", msg.PlainString())
	}

	r = newTestResolver(Deps{Players: fakePlayers{ok: false}})
	msg, _ = r.Resolve(context.Background(), testReq(), "playerlist")
	if msg.PlainString() != "%playerlist%" {
		t.Fatalf("unavailable playerlist = %q", msg.PlainString())
	}

	r = newTestResolver(Deps{Players: fakePlayers{ok: true}})
	msg, _ = r.Resolve(context.Background(), testReq(), "playerlist")
	if msg.PlainString() != "" {
		t.Fatalf("empty playerlist = %q", msg.PlainString())
	}
}

func TestServerList(t *testing.T) {
	t.Parallel()
	r := newTestResolver(Deps{})
	msg, err := r.Resolve(context.Background(), testReq(), "serverlist: survival mirror")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	var spans []chat.Message
	for _, e := range msg.Extra {
		if e.Click != nil {
			spans = append(spans, e)
		}
	}
	if len(spans) != 2 {
		t.Fatalf("got %d clickable spans, want 2", len(spans))
	}
	for i, want := range []string{"survival", "mirror"} {
		s := spans[i]
		if got := s.PlainString(); got != "["+want+"]" {
			t.Fatalf("label[%d] = %q", i, got)
		}
		if s.Click.Action != chat.ClickRunCommand || s.Click.Value != "/server "+want {
			t.Fatalf("click[%d] = %+v", i, *s.Click)
		}
	}
	if got := msg.PlainString(); got != "[survival] [mirror]" {
		t.Fatalf("joined = %q", got)
	}
}

func TestServerListDisplayForm(t *testing.T) {
	t.Parallel()
	r := newTestResolver(Deps{})
	req := testReq()
	req.Servers = []string{"lobby"}
	msg, _ := r.Resolve(context.Background(), req, "serverlist: [Survival](smp), creative")
	if got := msg.PlainString(); got != "[Survival] [creative] [lobby]" {
		t.Fatalf("plain = %q", got)
	}
	if v := msg.Extra[0].Click.Value; v != "/server smp" {
		t.Fatalf("first target = %q", v)
	}
}

func TestClickBareForm(t *testing.T) {
	t.Parallel()
	r := newTestResolver(Deps{})
	msg, err := r.Resolve(context.Background(), testReq(), "7say hi")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if msg.Click == nil || msg.Click.Action != chat.ClickRunCommand || msg.Click.Value != "say hi" {
		t.Fatalf("click = %+v", msg.Click)
	}
	if msg.PlainString() != "say hi" {
		t.Fatalf("label = %q", msg.PlainString())
	}
	if msg.Color != chat.ColorGray {
		t.Fatalf("color = %q", msg.Color)
	}
	if msg.Hover == nil || msg.Hover.PlainString() == "" {
		t.Fatal("expected hover text")
	}
}

func TestClickVariants(t *testing.T) {
	t.Parallel()
	r := newTestResolver(Deps{})
	tests := []struct {
		content string
		action  chat.ClickAction
		display string
		payload string
	}{
		{"8/tp §aSpawn", chat.ClickSuggestCommand, "/tp §aSpawn", "/tp Spawn "},
		{"a[Copy me](secret)", chat.ClickCopyClipboard, "Copy me", "secret"},
		{"n[site](https://example.org)", chat.ClickOpenURL, "site", "https://example.org"},
		{"nhttps://example.org", chat.ClickOpenURL, "https://example.org", "https://example.org"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.content, func(t *testing.T) {
			t.Parallel()
			msg, err := r.Resolve(context.Background(), testReq(), tt.content)
			if err != nil {
				t.Fatalf("Resolve: %v", err)
			}
			if msg.Text != tt.display {
				t.Fatalf("display = %q, want %q", msg.Text, tt.display)
			}
			if msg.Click == nil || msg.Click.Action != tt.action || msg.Click.Value != tt.payload {
				t.Fatalf("click = %+v, want %s %q", msg.Click, tt.action, tt.payload)
			}
		})
	}
}

func TestAPIFailureIsEmpty(t *testing.T) {
	t.Parallel()
	r := newTestResolver(Deps{Fetch: fakeFetch{err: context.DeadlineExceeded}})
	msg, err := r.Resolve(context.Background(), testReq(), "API: http://slow.invalid")
	if !errors.Is(err, motderr.ErrExternalUnavailable) || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("api failure must be reported, got %v", err)
	}
	if msg.PlainString() != "" {
		t.Fatalf("api failure = %q, want empty", msg.PlainString())
	}

	r = newTestResolver(Deps{Fetch: fakeFetch{body: "  hello\n"}})
	msg, err = r.Resolve(context.Background(), testReq(), "api: http://ok")
	if err != nil || msg.PlainString() != "hello" {
		t.Fatalf("api = %q", msg.PlainString())
	}
}

func TestVersionAndRandom(t *testing.T) {
	t.Parallel()
	r := newTestResolver(Deps{
		Versions:      fakeVersions{"server": "1.20.4"},
		Pools:         fakePools{"tips": {"a", "b", "c"}},
		Intn:          func(n int) int { return n - 1 },
		HostVersion:   "0.9.0",
		EngineVersion: "1.2.3",
	})
	cases := map[string]string{
		"version: server": "1.20.4",
		"version:proxy":   "%version:proxy%",
		"random:tips":     "c",
		"random:missing":  "%random:missing%",
		"mcdrVersion":     "0.9.0",
		"pluginVersion":   "1.2.3",
	}
	for in, want := range cases {
		msg, _ := r.Resolve(context.Background(), testReq(), in)
		if got := msg.PlainString(); got != want {
			t.Fatalf("%q => %q, want %q", in, got, want)
		}
	}
}

func TestDaysBetween(t *testing.T) {
	t.Parallel()
	loc := time.FixedZone("X", 8*3600)
	a := time.Date(2024, 3, 9, 23, 59, 0, 0, loc)
	b := time.Date(2024, 3, 10, 0, 1, 0, 0, loc)
	if got := DaysBetween(a, b); got != 1 {
		t.Fatalf("DaysBetween = %d, want 1", got)
	}
	if got := DaysBetween(b, b); got != 0 {
		t.Fatalf("same day = %d", got)
	}
}
