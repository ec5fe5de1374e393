package app

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"joinmotd/internal/eventbus"
	rtsup "joinmotd/internal/runtime/supervisor"
)

// HealthReport is served on /healthz and summarized by /motd_status.
type HealthReport struct {
	OK          bool             `json:"ok"`
	Version     string           `json:"version"`
	StartedAt   time.Time        `json:"started_at"`
	Uptime      string           `json:"uptime"`
	ServerUp    bool             `json:"server_up"`
	LastLogLine *time.Time       `json:"last_log_line,omitempty"`
	Schemes     int              `json:"schemes"`
	SchemeError string           `json:"scheme_error,omitempty"`
	Languages   []string         `json:"languages"`
	Storage     bool             `json:"storage"`
	Queue       QueueHealth      `json:"queue"`
	EventsLost  uint64           `json:"events_dropped"`
	Supervisor  rtsup.Snapshot   `json:"supervisor"`
	Components  map[string]int64 `json:"active_goroutines"`
}

type QueueHealth struct {
	Enabled  bool   `json:"enabled"`
	Len      int    `json:"len"`
	Cap      int    `json:"cap"`
	InFlight int    `json:"in_flight"`
	Dropped  uint64 `json:"dropped"`
	Skipped  uint64 `json:"skipped"`
}

func (a *App) Health() HealthReport {
	es := a.engine.Snapshot()
	r := HealthReport{
		Version:   Version,
		StartedAt: a.startedAt,
		Uptime:    time.Since(a.startedAt).Truncate(time.Second).String(),
		ServerUp:  a.serverUp.Load(),
		Languages: a.tr.Languages(),
		Storage:   a.store != nil,
		Queue: QueueHealth{
			Enabled:  es.Enabled,
			Len:      es.QueueLen,
			Cap:      es.QueueCap,
			InFlight: es.InFlight,
			Dropped:  es.Dropped,
			Skipped:  es.Skipped,
		},
		EventsLost: eventbus.Dropped(a.bus),
		Supervisor: a.sup.Snapshot(),
		Components: map[string]int64{},
	}
	if ns := a.lastLogLine.Load(); ns > 0 {
		t := time.Unix(0, ns)
		r.LastLogLine = &t
	}
	if names, err := a.catalog.Names(); err != nil {
		r.SchemeError = err.Error()
	} else {
		r.Schemes = len(names)
	}
	for name, sup := range map[string]*rtsup.Supervisor{
		"taskengine": a.engine.Supervisor(),
		"ops":        a.ops.Supervisor(),
		"telegram":   a.consoleSupervisor(),
	} {
		if sup != nil {
			r.Components[name] = sup.Snapshot().Active
		}
	}
	r.OK = r.Supervisor.FirstError == "" && r.SchemeError == ""
	return r
}

func (a *App) consoleSupervisor() *rtsup.Supervisor {
	if a.console == nil {
		return nil
	}
	return a.console.Supervisor()
}

// Healthy gates systemd watchdog pings.
func (a *App) Healthy() bool {
	return a.sup != nil && a.sup.Err() == nil
}

// StatusText is the plain-text status for the ops console.
func (a *App) StatusText() string {
	h := a.Health()
	var b strings.Builder
	state := "ok"
	if !h.OK {
		state = "degraded"
	}
	fmt.Fprintf(&b, "joinmotd %s: %s\n", h.Version, state)
	fmt.Fprintf(&b, "up since %s\n", humanize.Time(h.StartedAt))
	server := "waiting for server start"
	if h.ServerUp {
		server = "server online"
	}
	if h.LastLogLine != nil {
		server += ", last log event " + humanize.Time(*h.LastLogLine)
	}
	b.WriteString(server + "\n")
	if h.SchemeError != "" {
		fmt.Fprintf(&b, "schemes: %s\n", h.SchemeError)
	} else {
		fmt.Fprintf(&b, "schemes: %d, languages: %s\n", h.Schemes, strings.Join(h.Languages, ", "))
	}
	fmt.Fprintf(&b, "queue: %d/%d, in flight %d, dropped %s, skipped %s\n",
		h.Queue.Len, h.Queue.Cap, h.Queue.InFlight,
		humanize.Comma(int64(h.Queue.Dropped)), humanize.Comma(int64(h.Queue.Skipped)))
	if h.Supervisor.FirstError != "" {
		fmt.Fprintf(&b, "first error: %s\n", h.Supervisor.FirstError)
	}
	return strings.TrimRight(b.String(), "\n")
}
