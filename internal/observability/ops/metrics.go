package ops

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Metrics owns a private registry so tests and reloads never collide on the
// global one.
type Metrics struct {
	reg *prometheus.Registry

	greetings    *prometheus.CounterVec
	greetingTime *prometheus.HistogramVec
	spanErrors   *prometheus.CounterVec
	joins        prometheus.Counter
	commands     *prometheus.CounterVec
	reloads      *prometheus.CounterVec
	started      prometheus.Gauge
}

func NewMetrics() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		greetings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "joinmotd_greetings_total",
			Help: "Greetings attempted, by scheme and outcome.",
		}, []string{"scheme", "outcome"}),
		greetingTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "joinmotd_greeting_duration_seconds",
			Help:    "Time from join to delivery.",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}, []string{"scheme"}),
		spanErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "joinmotd_render_span_errors_total",
			Help: "Escape spans that failed and rendered raw.",
		}, []string{"scheme"}),
		joins: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "joinmotd_joins_total",
			Help: "Player joins seen in the server log.",
		}),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "joinmotd_commands_total",
			Help: "Chat commands handled, by subcommand and result.",
		}, []string{"command", "result"}),
		reloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "joinmotd_catalog_reloads_total",
			Help: "Scheme catalog reloads, by what changed.",
		}, []string{"what"}),
		started: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "joinmotd_start_time_seconds",
			Help: "Unix time the daemon started.",
		}),
	}
	m.started.Set(float64(time.Now().Unix()))
	m.reg.MustRegister(
		m.greetings, m.greetingTime, m.spanErrors, m.joins, m.commands, m.reloads, m.started,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// ObserveGreeting records one greeting attempt.
func (m *Metrics) ObserveGreeting(scheme, outcome string, took time.Duration, spanErrors int) {
	if scheme == "" {
		scheme = "none"
	}
	m.greetings.WithLabelValues(scheme, outcome).Inc()
	m.greetingTime.WithLabelValues(scheme).Observe(took.Seconds())
	if spanErrors > 0 {
		m.spanErrors.WithLabelValues(scheme).Add(float64(spanErrors))
	}
}

func (m *Metrics) ObserveJoin() { m.joins.Inc() }

func (m *Metrics) ObserveCommand(command, result string) {
	m.commands.WithLabelValues(command, result).Inc()
}

func (m *Metrics) ObserveReload(what string) { m.reloads.WithLabelValues(what).Inc() }

// GaugeFunc registers a gauge read at scrape time (queue length, dropped
// events).
func (m *Metrics) GaugeFunc(name, help string, fn func() float64) {
	m.reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{Name: name, Help: help}, fn))
}
