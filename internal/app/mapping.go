package app

import (
	"fmt"
	"strings"
	"time"

	"joinmotd/internal/collab"
	"joinmotd/internal/commands"
	"joinmotd/internal/config"
	"joinmotd/internal/observability/ops"
	"joinmotd/internal/storage"
	"joinmotd/internal/task/engine"
	"joinmotd/internal/transport/rcon"
	"joinmotd/internal/transport/serverlog"
	"joinmotd/internal/transport/telegram"
	logx "joinmotd/pkg/logx"
)

func mapLogConfig(cfg *config.Config) logx.Config {
	l := cfg.Logging
	return logx.Config{
		Level:   l.Level,
		Console: l.Console,
		File:    logx.FileConfig{Enabled: l.File.Enabled, Path: l.File.Path},
		Alerts: logx.AlertConfig{
			// alerts need somewhere to go
			Enabled:    l.Alerts.Enabled && cfg.Telegram != nil,
			MinLevel:   l.Alerts.MinLevel,
			RatePerSec: l.Alerts.RatePerSec,
		},
	}
}

func mapStorageConfig(cfg *config.Config) (storage.Config, bool, error) {
	if cfg == nil || cfg.Storage == nil {
		return storage.Config{}, false, nil
	}
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	if driver == "" || driver == "none" {
		return storage.Config{}, false, nil
	}
	path := strings.TrimSpace(sc.Path)
	if path == "" {
		return storage.Config{}, false, fmt.Errorf("storage.path is required when storage.driver=%s", driver)
	}
	busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, time.Second)
	if err != nil {
		return storage.Config{}, false, err
	}
	return storage.Config{Driver: driver, Path: path, BusyTimeout: busy}, true, nil
}

func mapTaskEngineConfig(cfg *config.Config) (engine.Config, error) {
	te := config.TaskEngineConfig{}
	if cfg.TaskEngine != nil {
		te = *cfg.TaskEngine
	}
	defTimeout, err := config.ParseDurationOrDefault("task_engine.default_timeout", te.DefaultTimeout, 10*time.Second)
	if err != nil {
		return engine.Config{}, err
	}
	maxDelay, err := config.ParseDurationOrDefault("task_engine.max_queue_delay", te.MaxQueueDelay, 30*time.Second)
	if err != nil {
		return engine.Config{}, err
	}
	return engine.Config{
		Enabled:        config.Bool(te.Enabled, true),
		Workers:        te.Workers,
		QueueSize:      te.QueueSize,
		DefaultTimeout: defTimeout,
		MaxQueueDelay:  maxDelay,
		HistorySize:    te.HistorySize,
	}, nil
}

func mapOpsConfig(cfg *config.Config) (ops.Config, error) {
	if cfg.OpsHTTP == nil {
		return ops.Config{}, nil
	}
	o := cfg.OpsHTTP
	rt, err := config.ParseDurationField("ops_http.read_timeout", o.ReadTimeout)
	if err != nil {
		return ops.Config{}, err
	}
	wt, err := config.ParseDurationField("ops_http.write_timeout", o.WriteTimeout)
	if err != nil {
		return ops.Config{}, err
	}
	it, err := config.ParseDurationField("ops_http.idle_timeout", o.IdleTimeout)
	if err != nil {
		return ops.Config{}, err
	}
	return ops.Config{
		Enabled:              o.Enabled,
		Addr:                 o.Addr,
		Token:                o.Token,
		AllowInsecure:        o.AllowInsecure,
		Pprof:                o.Pprof,
		PprofPrefix:          o.PprofPrefix,
		ReadTimeout:          rt,
		WriteTimeout:         wt,
		IdleTimeout:          it,
		MutexProfileFraction: o.MutexProfileFraction,
		BlockProfileRate:     o.BlockProfileRate,
	}, nil
}

func mapRCONConfig(cfg *config.Config) (rcon.Config, error) {
	dial, err := config.ParseDurationField("rcon.dial_timeout", cfg.RCON.DialTimeout)
	if err != nil {
		return rcon.Config{}, err
	}
	deadline, err := config.ParseDurationField("rcon.deadline", cfg.RCON.Deadline)
	if err != nil {
		return rcon.Config{}, err
	}
	return rcon.Config{Address: cfg.RCON.Address, Password: cfg.RCON.Password, DialTimeout: dial, Deadline: deadline}, nil
}

func mapServerLogConfig(cfg *config.Config) (serverlog.Config, error) {
	poll, err := config.ParseDurationField("server_log.poll", cfg.ServerLog.Poll)
	if err != nil {
		return serverlog.Config{}, err
	}
	return serverlog.Config{Path: cfg.ServerLog.Path, FromStart: cfg.ServerLog.FromStart, Poll: poll}, nil
}

func mapFetchConfig(cfg *config.Config) (collab.FetchConfig, error) {
	f := cfg.MOTD.Fetch
	timeout, err := config.ParseDurationField("motd.fetch.timeout", f.Timeout)
	if err != nil {
		return collab.FetchConfig{}, err
	}
	return collab.FetchConfig{Timeout: timeout, RatePerSec: f.RatePerSec, Burst: f.Burst, MaxBody: f.MaxBody, UserAgent: f.UserAgent}, nil
}

func mapCommandsConfig(cfg *config.Config) commands.Config {
	c := cfg.Commands
	return commands.Config{
		Enabled:         config.Bool(c.Enabled, true),
		Prefixes:        c.Prefixes,
		Operators:       c.Operators,
		Requirements:    c.PermissionRequirements,
		PermissionCheck: config.Bool(c.EnablePermissionCheck, true),
	}
}

func mapTelegramConfig(cfg *config.Config) (telegram.Config, bool, error) {
	t := cfg.Telegram
	if t == nil || strings.TrimSpace(t.Token) == "" {
		return telegram.Config{}, false, nil
	}
	poll, err := config.ParseDurationOrDefault("telegram.poll_timeout", t.PollTimeout, 10*time.Second)
	if err != nil {
		return telegram.Config{}, false, err
	}
	return telegram.Config{
		Token:       t.Token,
		Owners:      append([]int64(nil), t.OwnerUserIDs...),
		ChatID:      t.ChatID,
		ThreadID:    t.ThreadID,
		PollTimeout: poll,
	}, true, nil
}
