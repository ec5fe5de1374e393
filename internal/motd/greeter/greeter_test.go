package greeter

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"sync"
	"testing"
	"time"

	"joinmotd/internal/eventbus"
	"joinmotd/internal/motd/chat"
	"joinmotd/internal/motd/motderr"
	"joinmotd/internal/motd/render"
	"joinmotd/internal/motd/schedule"
	"joinmotd/internal/motd/scheme"
	"joinmotd/internal/task/engine"
	logx "joinmotd/pkg/logx"
)

type fakeCatalog struct {
	schemes   map[string]string
	schedules []schedule.Schedule
}

func (c fakeCatalog) Schedules() []schedule.Schedule { return c.schedules }

func (c fakeCatalog) Scheme(name string) (*scheme.Scheme, error) {
	format, ok := c.schemes[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s: %w", motderr.ErrSchemeLoad, name, fs.ErrNotExist)
	}
	return &scheme.Scheme{Name: name, Format: format}, nil
}

func (c fakeCatalog) Priority(string) int { return scheme.DefaultPriority }

type delivery struct {
	player string
	text   string
	color  chat.Color
}

type recorder struct {
	mu  sync.Mutex
	got []delivery
	err error
}

func (r *recorder) Tell(_ context.Context, player string, msg chat.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, delivery{player: player, text: msg.PlainString(), color: msg.Color})
	return r.err
}

type outcome struct {
	scheme, code string
}

type observer struct{ got []outcome }

func (o *observer) ObserveGreeting(name, code string, _ time.Duration, _ int) {
	o.got = append(o.got, outcome{name, code})
}

type queue struct{ tasks []engine.Task }

func (q *queue) Enqueue(t engine.Task) error {
	q.tasks = append(q.tasks, t)
	return nil
}

var june = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func newGreeter(cat fakeCatalog, out *recorder, opts Options) *Greeter {
	opts.Location = time.UTC
	opts.Log = logx.Nop()
	return New(cat, render.New(render.Options{Location: time.UTC}), out, opts)
}

func TestComposeSelection(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name      string
		cat       fakeCatalog
		wantText  string
		wantFall  bool
		attempts  int
		wantSched string
	}{
		{
			name:     "default when nothing scheduled",
			cat:      fakeCatalog{schemes: map[string]string{"default": "hi %player%"}},
			wantText: "hi Steve", wantFall: true,
		},
		{
			name: "scheduled scheme wins",
			cat: fakeCatalog{
				schemes:   map[string]string{"default": "hi", "summer": "summer %player%"},
				schedules: []schedule.Schedule{{Name: "june", Scheme: "summer", Month: schedule.Int(6)}},
			},
			wantText: "summer Steve", wantSched: "june",
		},
		{
			name: "broken scheduled scheme falls back",
			cat: fakeCatalog{
				schemes:   map[string]string{"default": "hi"},
				schedules: []schedule.Schedule{{Scheme: "gone", Month: schedule.Int(6)}},
			},
			wantText: "hi", wantFall: true, attempts: 1,
		},
		{
			name: "next candidate before default",
			cat: fakeCatalog{
				schemes: map[string]string{"default": "hi", "b": "b"},
				schedules: []schedule.Schedule{
					{Scheme: "gone", Month: schedule.Int(6), Priority: schedule.Int(5000)},
					{Scheme: "b", Month: schedule.Int(6)},
				},
			},
			wantText: "b", wantSched: "b", attempts: 1,
		},
		{
			name: "blacklisted player gets default",
			cat: fakeCatalog{
				schemes:   map[string]string{"default": "hi", "vip": "vip"},
				schedules: []schedule.Schedule{{Scheme: "vip", Blacklist: []string{"steve"}}},
			},
			wantText: "hi", wantFall: true,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			g := newGreeter(tt.cat, &recorder{}, Options{})
			res, err := g.Compose(context.Background(), "Steve", june)
			if err != nil {
				t.Fatalf("Compose: %v", err)
			}
			if got := res.Message.PlainString(); got != tt.wantText {
				t.Fatalf("text=%q want %q", got, tt.wantText)
			}
			if res.Fallback != tt.wantFall || len(res.Attempts) != tt.attempts || res.Schedule != tt.wantSched {
				t.Fatalf("result=%+v", res)
			}
		})
	}
}

func TestGreetDeliversAndPublishes(t *testing.T) {
	t.Parallel()
	bus := eventbus.New()
	events, unsub := bus.Subscribe(8)
	defer unsub()
	out := &recorder{}
	obs := &observer{}
	g := newGreeter(fakeCatalog{schemes: map[string]string{"default": "hi %player%"}}, out, Options{Bus: bus, Observer: obs})

	if err := g.Greet(context.Background(), "Steve", june); err != nil {
		t.Fatalf("Greet: %v", err)
	}
	if len(out.got) != 1 || out.got[0] != (delivery{player: "Steve", text: "hi Steve"}) {
		t.Fatalf("deliveries=%+v", out.got)
	}
	if len(obs.got) != 1 || obs.got[0] != (outcome{"default", "ok"}) {
		t.Fatalf("observed=%+v", obs.got)
	}
	ev := <-events
	d, ok := ev.Data.(Delivered)
	if ev.Type != EventDelivered || !ok || !d.Fallback || d.RenderID == "" {
		t.Fatalf("event=%+v", ev)
	}
}

func TestGreetNoApplicableScheme(t *testing.T) {
	t.Parallel()
	out := &recorder{}
	obs := &observer{}
	g := newGreeter(fakeCatalog{}, out, Options{Observer: obs})

	err := g.Greet(context.Background(), "Steve", june)
	if !errors.Is(err, motderr.ErrNoApplicableScheme) || !errors.Is(err, motderr.ErrSchemeLoad) {
		t.Fatalf("err=%v", err)
	}
	if len(out.got) != 1 || out.got[0].color != chat.ColorRed || out.got[0].text != g.ErrorMessage().PlainString() {
		t.Fatalf("deliveries=%+v", out.got)
	}
	if obs.got[0].code != "no_applicable_scheme" {
		t.Fatalf("observed=%+v", obs.got)
	}
}

func TestGreetDeliveryFailure(t *testing.T) {
	t.Parallel()
	out := &recorder{err: errors.New("rcon down")}
	obs := &observer{}
	g := newGreeter(fakeCatalog{schemes: map[string]string{"default": "hi"}}, out, Options{Observer: obs})

	err := g.Greet(context.Background(), "Steve", june)
	if !errors.Is(err, motderr.ErrExternalUnavailable) {
		t.Fatalf("err=%v", err)
	}
	if obs.got[0] != (outcome{"default", "external_unavailable"}) {
		t.Fatalf("observed=%+v", obs.got)
	}
}

func TestHandleJoin(t *testing.T) {
	t.Parallel()
	cat := fakeCatalog{schemes: map[string]string{"default": "hi %player%"}}

	inline := &recorder{}
	if err := newGreeter(cat, inline, Options{}).HandleJoin("Steve"); err != nil {
		t.Fatalf("inline: %v", err)
	}
	if len(inline.got) != 1 {
		t.Fatalf("inline deliveries=%+v", inline.got)
	}

	q := &queue{}
	queued := &recorder{}
	g := newGreeter(cat, queued, Options{Queue: q, Timeout: time.Second})
	if err := g.HandleJoin("Steve"); err != nil {
		t.Fatalf("queued: %v", err)
	}
	if len(q.tasks) != 1 || len(queued.got) != 0 {
		t.Fatalf("tasks=%d deliveries=%d", len(q.tasks), len(queued.got))
	}
	task := q.tasks[0]
	if task.ConcurrencyKey != "greet:steve" || task.Timeout != time.Second {
		t.Fatalf("task=%+v", task)
	}
	if err := task.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(queued.got) != 1 || queued.got[0].text != "hi Steve" {
		t.Fatalf("queued deliveries=%+v", queued.got)
	}
}

func TestApplicableAndComposeScheme(t *testing.T) {
	t.Parallel()
	cat := fakeCatalog{
		schemes:   map[string]string{"default": "hi", "summer": "summer"},
		schedules: []schedule.Schedule{{Scheme: "summer", Month: schedule.Int(7)}},
	}
	g := newGreeter(cat, &recorder{}, Options{})
	if !g.Applicable("default", "Steve", june) || g.Applicable("summer", "Steve", june) {
		t.Fatalf("Applicable wrong in june")
	}
	july := june.AddDate(0, 1, 0)
	if !g.Applicable("summer", "Steve", july) {
		t.Fatalf("summer not applicable in july")
	}
	res, err := g.ComposeScheme(context.Background(), "summer", "Steve", june)
	if err != nil || res.Message.PlainString() != "summer" {
		t.Fatalf("ComposeScheme=%+v err=%v", res, err)
	}
	if _, err := g.ComposeScheme(context.Background(), "nope", "Steve", june); !errors.Is(err, motderr.ErrSchemeLoad) {
		t.Fatalf("missing scheme err=%v", err)
	}
}
