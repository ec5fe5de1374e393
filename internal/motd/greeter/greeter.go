// Package greeter runs the join flow: pick the applicable schemes, render the
// first one that works, fall back to the default scheme, and deliver the
// result to the player.
package greeter

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"joinmotd/internal/eventbus"
	"joinmotd/internal/motd/chat"
	"joinmotd/internal/motd/i18n"
	"joinmotd/internal/motd/motderr"
	"joinmotd/internal/motd/render"
	"joinmotd/internal/motd/schedule"
	"joinmotd/internal/motd/scheme"
	"joinmotd/internal/task/engine"
	logx "joinmotd/pkg/logx"
)

// Event types published on the bus.
const (
	EventPlayerJoined = "player.joined"
	EventDelivered    = "motd.delivered"
	EventFailed       = "motd.failed"
)

type Catalog interface {
	Schedules() []schedule.Schedule
	Scheme(name string) (*scheme.Scheme, error)
	Priority(name string) int
}

// Deliverer hands a finished message to a player.
type Deliverer interface {
	Tell(ctx context.Context, player string, msg chat.Message) error
}

// Observer receives one call per completed greeting. outcome is a
// motderr.Code label.
type Observer interface {
	ObserveGreeting(scheme, outcome string, took time.Duration, spanErrors int)
}

// Submitter queues work off the caller's goroutine.
type Submitter interface {
	Enqueue(t engine.Task) error
}

type Options struct {
	DefaultScheme string
	Location      *time.Location
	Translator    Translator
	Bus           eventbus.Bus
	Observer      Observer
	Queue         Submitter
	// Timeout bounds one queued greeting, fetches included.
	Timeout time.Duration
	Log     logx.Logger
}

type Translator interface {
	Tr(key string, args ...any) string
}

type Greeter struct {
	cat   Catalog
	r     *render.Renderer
	out   Deliverer
	opts  Options
	log   logx.Logger
	clock func() time.Time
}

func New(cat Catalog, r *render.Renderer, out Deliverer, opts Options) *Greeter {
	if opts.Log.IsZero() {
		opts.Log = logx.Nop()
	}
	if strings.TrimSpace(opts.DefaultScheme) == "" {
		opts.DefaultScheme = scheme.DefaultSchemeName
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Translator == nil {
		opts.Translator = i18n.New("", "", "", opts.Log)
	}
	return &Greeter{cat: cat, r: r, out: out, opts: opts, log: opts.Log.With(logx.String("comp", "greeter")), clock: time.Now}
}

// Attempt is one scheme tried during a greeting.
type Attempt struct {
	Scheme   string
	Schedule string
	Err      error
}

type Result struct {
	Scheme   string
	Schedule string
	Message  chat.Message
	Report   render.Report
	Attempts []Attempt
	// Fallback is set when the default scheme was used because nothing
	// selected rendered.
	Fallback bool
}

// Compose selects and renders without delivering. The error wraps
// motderr.ErrNoApplicableScheme when every candidate and the default failed.
func (g *Greeter) Compose(ctx context.Context, player string, now time.Time) (Result, error) {
	var res Result
	tried := map[string]bool{}
	for _, rk := range g.Select(player, now) {
		if tried[rk.Scheme] {
			continue
		}
		tried[rk.Scheme] = true
		if g.try(ctx, &res, rk.Scheme, rk.Label(), player, now) {
			return res, nil
		}
	}
	def := g.opts.DefaultScheme
	if !tried[def] && g.try(ctx, &res, def, "", player, now) {
		res.Fallback = true
		return res, nil
	}
	errs := make([]error, 0, len(res.Attempts))
	for _, a := range res.Attempts {
		errs = append(errs, a.Err)
	}
	return res, fmt.Errorf("%w: %w", motderr.ErrNoApplicableScheme, errors.Join(errs...))
}

// ComposeScheme renders one named scheme, ignoring schedules.
func (g *Greeter) ComposeScheme(ctx context.Context, name, player string, now time.Time) (Result, error) {
	var res Result
	if g.try(ctx, &res, name, "", player, now) {
		return res, nil
	}
	return res, res.Attempts[len(res.Attempts)-1].Err
}

func (g *Greeter) try(ctx context.Context, res *Result, name, sched, player string, now time.Time) bool {
	s, err := g.cat.Scheme(name)
	if err == nil {
		var msg chat.Message
		var rep render.Report
		msg, rep, err = g.r.Render(ctx, s, player, now)
		if err == nil {
			res.Scheme, res.Schedule, res.Message, res.Report = name, sched, msg, rep
			return true
		}
	}
	g.log.Warn("scheme unusable; trying next", logx.String("scheme", name), logx.String("player", player), logx.Err(err))
	res.Attempts = append(res.Attempts, Attempt{Scheme: name, Schedule: sched, Err: err})
	return false
}

// Select ranks the schedules applicable to player at now.
func (g *Greeter) Select(player string, now time.Time) []schedule.Ranked {
	var p *string
	if player != "" {
		p = &player
	}
	return schedule.Select(g.cat.Schedules(), now, p, g.opts.Location, g.cat.Priority)
}

// Applicable reports whether name would be considered for player at now:
// some matching schedule references it, or it is the default scheme.
func (g *Greeter) Applicable(name, player string, now time.Time) bool {
	if name == g.opts.DefaultScheme {
		return true
	}
	for _, rk := range g.Select(player, now) {
		if rk.Scheme == name {
			return true
		}
	}
	return false
}

func (g *Greeter) DefaultScheme() string { return g.opts.DefaultScheme }

// ErrorMessage is what a player sees when nothing could be rendered.
func (g *Greeter) ErrorMessage() chat.Message {
	return chat.Text(g.opts.Translator.Tr(i18n.NoScheme)).WithColor(chat.ColorRed)
}

// Delivered is the payload of EventDelivered.
type Delivered struct {
	Player   string        `json:"player"`
	Scheme   string        `json:"scheme"`
	Schedule string        `json:"schedule,omitempty"`
	RenderID string        `json:"render_id"`
	Fallback bool          `json:"fallback,omitempty"`
	Took     time.Duration `json:"took"`
}

// Failed is the payload of EventFailed.
type Failed struct {
	Player string `json:"player"`
	Code   string `json:"code"`
	Error  string `json:"error"`
}

// Greet composes and delivers the join message. It never panics out; the
// returned error is informational.
func (g *Greeter) Greet(ctx context.Context, player string, now time.Time) (err error) {
	start := g.clock()
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("greet %s: panic: %v", player, p)
			g.log.Error("greeting panicked", logx.String("player", player), logx.Any("panic", p))
		}
	}()

	res, err := g.Compose(ctx, player, now)
	took := g.clock().Sub(start)
	if err != nil {
		g.log.Error("no applicable scheme", logx.String("player", player), logx.Err(err))
		g.observe("", err, took, res.Report)
		g.publish(EventFailed, Failed{Player: player, Code: motderr.Code(err), Error: err.Error()})
		if derr := g.out.Tell(ctx, player, g.ErrorMessage()); derr != nil {
			g.log.Warn("error notice not delivered", logx.String("player", player), logx.Err(derr))
		}
		return err
	}

	if err := g.out.Tell(ctx, player, res.Message); err != nil {
		err = fmt.Errorf("%w: deliver: %w", motderr.ErrExternalUnavailable, err)
		g.log.Warn("join message not delivered", logx.String("player", player), logx.String("scheme", res.Scheme), logx.Err(err))
		g.observe(res.Scheme, err, took, res.Report)
		g.publish(EventFailed, Failed{Player: player, Code: motderr.Code(err), Error: err.Error()})
		return err
	}
	g.log.Info("join message delivered",
		logx.String("player", player),
		logx.String("scheme", res.Scheme),
		logx.String("render_id", res.Report.ID),
		logx.Bool("fallback", res.Fallback),
		logx.Duration("took", took),
	)
	g.observe(res.Scheme, nil, took, res.Report)
	g.publish(EventDelivered, Delivered{
		Player:   player,
		Scheme:   res.Scheme,
		Schedule: res.Schedule,
		RenderID: res.Report.ID,
		Fallback: res.Fallback,
		Took:     took,
	})
	return nil
}

// HandleJoin queues a greeting. now is captured here, once, so the selection
// reflects the join instant even if the queue is busy.
func (g *Greeter) HandleJoin(player string) error {
	now := g.clock()
	g.publish(EventPlayerJoined, map[string]string{"player": player})
	if g.opts.Queue == nil {
		ctx := context.Background()
		if g.opts.Timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, g.opts.Timeout)
			defer cancel()
		}
		_ = g.Greet(ctx, player, now)
		return nil
	}
	return g.opts.Queue.Enqueue(engine.Task{
		Name:           "greet",
		ConcurrencyKey: "greet:" + strings.ToLower(player),
		Timeout:        g.opts.Timeout,
		Run: func(ctx context.Context) error {
			// The greeting has already been reported; don't let the engine
			// count render fallbacks as task failures.
			_ = g.Greet(ctx, player, now)
			return nil
		},
	})
}

func (g *Greeter) observe(name string, err error, took time.Duration, rep render.Report) {
	if g.opts.Observer == nil {
		return
	}
	g.opts.Observer.ObserveGreeting(name, motderr.Code(err), took, rep.SpanErrors+len(rep.LineErrors))
}

func (g *Greeter) publish(typ string, data any) {
	if g.opts.Bus == nil {
		return
	}
	g.opts.Bus.Publish(eventbus.Event{Type: typ, Data: data})
}
