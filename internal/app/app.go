// Package app wires the daemon: it follows the server log, greets joining
// players and serves the operator surfaces.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"joinmotd/internal/collab"
	"joinmotd/internal/commands"
	"joinmotd/internal/config"
	"joinmotd/internal/eventbus"
	"joinmotd/internal/motd/greeter"
	"joinmotd/internal/motd/i18n"
	"joinmotd/internal/motd/render"
	"joinmotd/internal/motd/resolve"
	"joinmotd/internal/motd/scheme"
	"joinmotd/internal/observability/ops"
	rtsup "joinmotd/internal/runtime/supervisor"
	"joinmotd/internal/storage"
	"joinmotd/internal/task/engine"
	"joinmotd/internal/transport/rcon"
	"joinmotd/internal/transport/serverlog"
	"joinmotd/internal/transport/telegram"
	logx "joinmotd/pkg/logx"
	"joinmotd/pkg/systemd"
)

// Version is reported by %pluginVersion% and /healthz. Set with -ldflags.
var Version = "dev"

// EventCatalogReloaded is published after the data directory is reloaded.
const EventCatalogReloaded = "catalog.reloaded"

type App struct {
	cfgm *config.ConfigManager
	sup  *rtsup.Supervisor

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store

	metrics  *ops.Metrics
	ops      *ops.Service
	engine   *engine.Service
	rcon     *rcon.Client
	tr       *i18n.Translator
	catalog  *scheme.Catalog
	versions *collab.VersionBook
	greeter  *greeter.Greeter
	commands *commands.Handler
	tailer   *serverlog.Tailer
	console  *telegram.Console
	sd       *systemd.Notifier

	startedAt   time.Time
	lastLogLine atomic.Int64 // unix nanos of the last parsed server log event
	serverUp    atomic.Bool
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(mapLogConfig(cfg), nil)
	appLog := log.With(logx.String("comp", "app"))
	bus := eventbus.New()

	// Map every section up front so a bad value fails before anything opens.
	engCfg, err := mapTaskEngineConfig(cfg)
	if err != nil {
		return nil, err
	}
	opsCfg, err := mapOpsConfig(cfg)
	if err != nil {
		return nil, err
	}
	rconCfg, err := mapRCONConfig(cfg)
	if err != nil {
		return nil, err
	}
	slCfg, err := mapServerLogConfig(cfg)
	if err != nil {
		return nil, err
	}
	fetchCfg, err := mapFetchConfig(cfg)
	if err != nil {
		return nil, err
	}
	tgCfg, tgEnabled, err := mapTelegramConfig(cfg)
	if err != nil {
		return nil, err
	}
	greetTimeout, err := config.ParseDurationOrDefault("motd.greet_timeout", cfg.MOTD.GreetTimeout, 10*time.Second)
	if err != nil {
		return nil, err
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	var store storage.Store
	if sc, enabled, err := mapStorageConfig(cfg); err != nil {
		return nil, err
	} else if enabled {
		st, err := storage.Open(sc, log.With(logx.String("comp", "storage")))
		if err != nil {
			return nil, err
		}
		store = st
		first, err := storage.MarkFirstStart(context.Background(), store, time.Now())
		if err != nil {
			appLog.Warn("first start not recorded", logx.Err(err))
		}
		appLog.Info("storage enabled", logx.String("driver", sc.Driver), logx.Time("first_start", first))
	}

	dataDir := cfg.MOTD.DataDir
	tr := i18n.New(filepath.Join(dataDir, scheme.TranslationsDir), cfg.MOTD.Language, cfg.MOTD.FallbackLanguage, log)
	cat, err := scheme.Open(dataDir, log)
	if err != nil {
		closeStore(store)
		return nil, err
	}
	// After Open so a first run's default data directory exists.
	if err := tr.Reload(); err != nil {
		appLog.Warn("translations not loaded", logx.Err(err))
	}

	days, err := collab.NewDayCounter(cfg.MOTD.ServerStartDate, loc, store, log)
	if err != nil {
		closeStore(store)
		return nil, err
	}
	rc := rcon.New(rconCfg, log)
	fetcher := collab.NewHTTPFetcher(fetchCfg, log)
	versions := collab.NewVersionBook(cfg.MOTD.Versions, store, log)
	versions.Load(context.Background())

	res := resolve.New(resolve.Deps{
		Fetch:         fetcher,
		Days:          days,
		Players:       collab.NewPlayerLister(rc, rconCfg.Deadline, log),
		Versions:      versions,
		Tr:            tr,
		Pools:         cat,
		HostVersion:   cfg.MOTD.HostVersion,
		EngineVersion: Version,
	}, log.With(logx.String("comp", "resolve")))
	renderer := render.New(render.Options{
		Resolver:   res,
		Globals:    cat,
		Fetch:      fetcher,
		Translator: tr,
		Location:   loc,
		Log:        log,
	})

	metrics := ops.NewMetrics()
	eng := engine.New(engCfg, log, bus)
	out := rcon.Router{Remote: rc, Console: rcon.NewConsole(os.Stdout)}
	g := greeter.New(cat, renderer, out, greeter.Options{
		DefaultScheme: cfg.MOTD.DefaultScheme,
		Location:      loc,
		Translator:    tr,
		Bus:           bus,
		Observer:      metrics,
		Queue:         eng,
		Timeout:       greetTimeout,
		Log:           log,
	})

	var stats commands.Stats
	if store != nil {
		stats = store
	}
	cmds := commands.New(mapCommandsConfig(cfg), commands.Deps{
		Catalog:    cat,
		Greeter:    g,
		Stats:      stats,
		Translator: tr,
		Out:        out,
		Observer:   metrics,
	}, log)

	a := &App{
		cfgm:      cfgm,
		log:       appLog,
		logs:      logSvc,
		bus:       bus,
		store:     store,
		metrics:   metrics,
		engine:    eng,
		rcon:      rc,
		tr:        tr,
		catalog:   cat,
		versions:  versions,
		greeter:   g,
		commands:  cmds,
		tailer:    serverlog.NewTailer(slCfg, log),
		sd:        systemd.New(log.With(logx.String("comp", "systemd"))),
		startedAt: time.Now(),
	}
	a.ops = ops.New(opsCfg, metrics, func() any { return a.Health() }, log)

	cat.OnReload(func(what string) {
		metrics.ObserveReload(what)
		bus.Publish(eventbus.Event{Type: EventCatalogReloaded, Data: what})
	})
	metrics.GaugeFunc("joinmotd_task_queue_length", "Greetings waiting in the task engine queue.", func() float64 {
		return float64(eng.Snapshot().QueueLen)
	})
	metrics.GaugeFunc("joinmotd_eventbus_dropped_total", "Events dropped because a subscriber was full.", func() float64 {
		return float64(eventbus.Dropped(bus))
	})

	if tgEnabled {
		console, err := telegram.New(tgCfg, cmds, a.StatusText, log)
		if err != nil {
			closeStore(store)
			return nil, fmt.Errorf("telegram: %w", err)
		}
		a.console = console
		logSvc.SetAlertSender(console)
	}
	return a, nil
}

func closeStore(st storage.Store) {
	if st != nil {
		_ = st.Close()
	}
}

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.NewSupervisor(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))
	cfg := a.cfgm.Get()

	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, c *config.Config) error {
		if err := config.Validate(c); err != nil {
			return err
		}
		// the mappers catch what Validate leaves to apply time
		if _, err := mapTaskEngineConfig(c); err != nil {
			return err
		}
		if _, err := mapOpsConfig(c); err != nil {
			return err
		}
		_, err := mapRCONConfig(c)
		return err
	})

	if a.engine.Enabled() {
		a.engine.Start(a.sup.Context())
	}
	a.ops.Start(a.sup.Context())
	if a.console != nil {
		if err := a.console.Start(a.sup.Context()); err != nil {
			return err
		}
	}

	if config.Bool(cfg.MOTD.WatchData, true) {
		a.sup.GoRestart("catalog.watch", a.catalog.Watch,
			rtsup.WithRestartBackoff(time.Second, 30*time.Second),
		)
	}

	if strings.TrimSpace(cfg.ServerLog.Path) == "" {
		a.log.Warn("server_log.path not set; joins will not be detected")
	} else {
		a.sup.GoRestart("serverlog.tail", func(c context.Context) error {
			return a.tailer.Run(c, a.onLogEvent)
		}, rtsup.WithRestartBackoff(time.Second, 30*time.Second))
	}

	events, unsub := a.bus.Subscribe(128)
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				// Greetings are frequent; keep this at debug.
				a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time), logx.Any("data", e.Data))
			}
		}
	})

	a.startConfigReload()
	a.sup.Go("config.watch", a.cfgm.Watch)

	a.sup.Go("systemd.watchdog", func(c context.Context) error {
		return a.sd.Watchdog(c, a.Healthy)
	})
	a.sd.Ready()
	a.sd.Status("waiting for players")

	a.log.Info("app started",
		logx.String("version", Version),
		logx.String("data_dir", a.catalog.Dir()),
		logx.String("server_log", cfg.ServerLog.Path),
		logx.Bool("telegram", a.console != nil),
	)
	return nil
}

// onLogEvent runs on the tail goroutine; anything slow goes to the engine.
func (a *App) onLogEvent(ev serverlog.Event) {
	a.lastLogLine.Store(time.Now().UnixNano())
	switch ev.Kind {
	case serverlog.KindJoin:
		a.metrics.ObserveJoin()
		a.recordJoin(ev.Player)
		if err := a.greeter.HandleJoin(ev.Player); err != nil {
			a.onQueueRejected("greet", ev.Player, err, func(c context.Context) {
				_ = a.greeter.Greet(c, ev.Player, time.Now())
			})
		}
	case serverlog.KindChat:
		if _, _, ok := a.commands.Match(ev.Text); !ok {
			return
		}
		err := a.engine.Enqueue(engine.Task{
			Name:           "command",
			ConcurrencyKey: "cmd:" + strings.ToLower(ev.Player),
			Run: func(c context.Context) error {
				a.commands.HandleChat(c, ev.Player, ev.Text)
				return nil
			},
		})
		if err != nil {
			a.onQueueRejected("command", ev.Player, err, func(c context.Context) {
				a.commands.HandleChat(c, ev.Player, ev.Text)
			})
		}
	case serverlog.KindVersion:
		ctx, cancel := context.WithTimeout(a.sup.Context(), 2*time.Second)
		a.versions.SetDetected(ctx, ev.Version)
		cancel()
	case serverlog.KindStarted:
		a.serverUp.Store(true)
		a.log.Info("server started")
		a.sd.Status("server online")
	}
}

// onQueueRejected runs fn on its own goroutine when the engine is off.
// Overlap skips are dropped quietly; a full queue drops the task with a
// warning.
func (a *App) onQueueRejected(what, player string, err error, fn func(context.Context)) {
	switch {
	case errors.Is(err, engine.ErrQueueFull):
		a.log.Warn("task queue full; task dropped", logx.String("task", what), logx.String("player", player), logx.Err(err))
		return
	case !errors.Is(err, engine.ErrDisabled) && !errors.Is(err, engine.ErrStopped):
		a.log.Debug("task not queued", logx.String("task", what), logx.String("player", player), logx.Err(err))
		return
	}
	a.sup.Go0(what+".inline", func(c context.Context) {
		c, cancel := context.WithTimeout(c, 10*time.Second)
		defer cancel()
		fn(c)
	})
}

func (a *App) recordJoin(player string) {
	if a.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(a.sup.Context(), 2*time.Second)
	defer cancel()
	st, err := a.store.RecordJoin(ctx, player, time.Now())
	if err != nil {
		a.log.Warn("join not recorded", logx.String("player", player), logx.Err(err))
		return
	}
	a.log.Debug("join recorded", logx.String("player", player), logx.Int64("count", st.Count))
}

// Preview renders scheme (or runs the full selection when empty) for player
// and prints it as ANSI text. It needs no running app.
func (a *App) Preview(ctx context.Context, name, player string) error {
	if strings.TrimSpace(player) == "" {
		player = rcon.ConsolePlayer
	}
	var (
		res greeter.Result
		err error
	)
	if name == "" {
		res, err = a.greeter.Compose(ctx, player, time.Now())
	} else {
		res, err = a.greeter.ComposeScheme(ctx, name, player, time.Now())
	}
	for _, at := range res.Attempts {
		a.log.Warn("scheme skipped", logx.String("scheme", at.Scheme), logx.String("schedule", at.Schedule), logx.Err(at.Err))
	}
	if err != nil {
		return err
	}
	a.log.Info("preview",
		logx.String("scheme", res.Scheme),
		logx.String("schedule", res.Schedule),
		logx.Bool("fallback", res.Fallback),
		logx.Int("span_errors", res.Report.SpanErrors),
	)
	return rcon.NewConsole(os.Stdout).Tell(ctx, player, res.Message)
}

// Close releases what New opened, for callers that never Start.
func (a *App) Close() {
	closeStore(a.store)
	_ = a.rcon.Close()
	if a.logs != nil {
		_ = a.logs.Close()
	}
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	a.sd.Stopping()

	// Cancel first so background loops start unwinding immediately.
	a.sup.Cancel()

	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		a.log.Debug("stop step begin", logx.String("name", name), logx.Duration("max", max))

		stepCtx := ctx
		if dl, ok := ctx.Deadline(); ok {
			// never extend the caller's deadline
			max = min(max, time.Until(dl))
		}
		if max > 0 {
			var cancel context.CancelFunc
			stepCtx, cancel = context.WithTimeout(ctx, max)
			defer cancel()
		}

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()

		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
			if took := time.Since(start); took >= 500*time.Millisecond {
				a.log.Info("stop step end", logx.String("name", name), logx.Duration("took", took))
			} else {
				a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", took))
			}
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)",
				logx.String("name", name),
				logx.Err(stepCtx.Err()),
				logx.Duration("elapsed", time.Since(start)),
			)
			go func() {
				if err := <-done; err != nil {
					a.log.Warn("stop step finished after deadline", logx.String("name", name), logx.Err(err))
				}
			}()
		}
	}

	step("console", 2*time.Second, func(c context.Context) error {
		if a.console != nil {
			return a.console.Stop(c)
		}
		return nil
	})
	step("taskengine", 3*time.Second, func(c context.Context) error { a.engine.Stop(c); return nil })
	step("ops", time.Second, func(c context.Context) error { a.ops.Stop(c); return nil })
	step("rcon", time.Second, func(context.Context) error { return a.rcon.Close() })
	step("supervisor", 2*time.Second, func(c context.Context) error { return a.sup.Wait(c) })
	step("storage", time.Second, func(context.Context) error {
		if a.store != nil {
			return a.store.Close()
		}
		return nil
	})

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}
