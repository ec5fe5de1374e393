package telegram

import (
	"context"
	"strings"
	"testing"

	"joinmotd/internal/commands"
	"joinmotd/internal/motd/chat"
	logx "joinmotd/pkg/logx"
)

type fakeRunner struct {
	caller commands.Caller
	args   []string
}

func (r *fakeRunner) Run(_ context.Context, caller commands.Caller, _ string, args []string) []chat.Message {
	r.caller, r.args = caller, args
	return []chat.Message{chat.Text("line one").WithColor(chat.ColorGold), chat.Text("line two")}
}

func newConsole(t *testing.T, r Runner) *Console {
	t.Helper()
	c, err := New(Config{Token: "123:abc", Owners: []int64{42}, Offline: true}, r, func() string { return "up" }, logx.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestNewRequiresToken(t *testing.T) {
	t.Parallel()
	if _, err := New(Config{Offline: true}, nil, nil, logx.Nop()); err == nil {
		t.Fatalf("expected error for empty token")
	}
}

func TestHandleRoutesToRunner(t *testing.T) {
	t.Parallel()
	r := &fakeRunner{}
	c := newConsole(t, r)

	got := c.handle(context.Background(), 42, "motd_info", []string{"event"})
	if got != "line one\nline two" {
		t.Fatalf("reply=%q", got)
	}
	if !r.caller.Operator || r.caller.Name != CallerName {
		t.Fatalf("caller=%+v", r.caller)
	}
	if strings.Join(r.args, " ") != "info event" {
		t.Fatalf("args=%v", r.args)
	}
}

func TestHandleStatusAndOwners(t *testing.T) {
	t.Parallel()
	r := &fakeRunner{}
	c := newConsole(t, r)

	if got := c.handle(context.Background(), 42, "motd_status", nil); got != "up" {
		t.Fatalf("status=%q", got)
	}
	if got := c.handle(context.Background(), 7, "motd_reload", nil); got != "not allowed" {
		t.Fatalf("non-owner reply=%q", got)
	}
	if r.args != nil {
		t.Fatalf("runner called for non-owner: %v", r.args)
	}
}

func TestSplitText(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		in    string
		limit int
		want  []string
	}{
		{"short", "hello", 10, []string{"hello"}},
		{"newline boundary", "aaaa\nbbbb\ncccc", 10, []string{"aaaa\nbbbb", "cccc"}},
		{"hard cut", "abcdefghij", 4, []string{"abcd", "efgh", "ij"}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := splitText(tt.in, tt.limit)
			if strings.Join(got, "|") != strings.Join(tt.want, "|") {
				t.Fatalf("splitText=%q want %q", got, tt.want)
			}
		})
	}
}
