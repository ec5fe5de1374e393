package config

import (
	"reflect"
	"sort"
	"strings"

	logx "joinmotd/pkg/logx"
)

// SummarizeConfigChange returns the changed top-level sections plus safe
// structured attrs for logging. Secrets (tokens, passwords) are never
// included, only whether they are set.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}
	var (
		changed []string
		attrs   []logx.Field
	)

	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
			logx.Bool("logging.alerts_enabled", newCfg.Logging.Alerts.Enabled),
		)
	}

	ot, nt := derefTelegram(oldCfg.Telegram), derefTelegram(newCfg.Telegram)
	if (oldCfg.Telegram == nil) != (newCfg.Telegram == nil) ||
		ot.ChatID != nt.ChatID || ot.ThreadID != nt.ThreadID ||
		strings.TrimSpace(ot.PollTimeout) != strings.TrimSpace(nt.PollTimeout) ||
		!reflect.DeepEqual(ot.OwnerUserIDs, nt.OwnerUserIDs) ||
		ot.Token != nt.Token {
		changed = append(changed, "telegram")
		attrs = append(attrs,
			logx.Bool("telegram.present", newCfg.Telegram != nil),
			logx.Int("telegram.owner_count", len(nt.OwnerUserIDs)),
			logx.Bool("telegram.chat_set", nt.ChatID != 0),
		)
	}

	if oldCfg.RCON != newCfg.RCON {
		changed = append(changed, "rcon")
		attrs = append(attrs,
			logx.String("rcon.address", newCfg.RCON.Address),
			logx.Bool("rcon.password_set", newCfg.RCON.Password != ""),
		)
	}

	if oldCfg.ServerLog != newCfg.ServerLog {
		changed = append(changed, "server_log")
		attrs = append(attrs, logx.String("server_log.path", newCfg.ServerLog.Path))
	}

	oldS, newS := derefStorage(oldCfg.Storage), derefStorage(newCfg.Storage)
	if oldS != newS {
		changed = append(changed, "storage")
		attrs = append(attrs, logx.String("storage.driver", newS.Driver), logx.Bool("storage.path_set", newS.Path != ""))
	}

	oo, no := derefOps(oldCfg.OpsHTTP), derefOps(newCfg.OpsHTTP)
	if oo != no {
		changed = append(changed, "ops_http")
		attrs = append(attrs,
			logx.Bool("ops_http.enabled", no.Enabled),
			logx.String("ops_http.addr", no.Addr),
			logx.Bool("ops_http.pprof", no.Pprof),
			logx.Bool("ops_http.token_set", no.Token != ""),
		)
	}

	if !reflect.DeepEqual(oldCfg.TaskEngine, newCfg.TaskEngine) {
		te := derefTaskEngine(newCfg.TaskEngine)
		changed = append(changed, "task_engine")
		attrs = append(attrs,
			logx.Bool("task_engine.enabled", Bool(te.Enabled, true)),
			logx.Int("task_engine.workers", te.Workers),
			logx.Int("task_engine.queue_size", te.QueueSize),
		)
	}

	if !reflect.DeepEqual(oldCfg.MOTD, newCfg.MOTD) {
		changed = append(changed, "motd")
		attrs = append(attrs,
			logx.String("motd.data_dir", newCfg.MOTD.DataDir),
			logx.String("motd.default_scheme", newCfg.MOTD.DefaultScheme),
			logx.String("motd.timezone", newCfg.MOTD.Timezone),
			logx.String("motd.language", newCfg.MOTD.Language),
		)
	}

	if !reflect.DeepEqual(oldCfg.Commands, newCfg.Commands) {
		changed = append(changed, "commands")
		attrs = append(attrs,
			logx.Strings("commands.prefixes", newCfg.Commands.Prefixes),
			logx.Int("commands.operator_count", len(newCfg.Commands.Operators)),
		)
	}

	sort.Strings(changed)
	return changed, attrs
}

// RestartRequired lists changed sections that are only read at startup.
func RestartRequired(sections []string) []string {
	var out []string
	for _, s := range sections {
		switch s {
		case "storage", "server_log", "telegram", "rcon":
			out = append(out, s)
		}
	}
	return out
}

func derefTelegram(t *TelegramConfig) TelegramConfig {
	if t == nil {
		return TelegramConfig{}
	}
	return *t
}

func derefStorage(s *StorageConfig) StorageConfig {
	if s == nil {
		return StorageConfig{}
	}
	return *s
}

func derefOps(o *OpsHTTPConfig) OpsHTTPConfig {
	if o == nil {
		return OpsHTTPConfig{}
	}
	return *o
}

func derefTaskEngine(te *TaskEngineConfig) TaskEngineConfig {
	if te == nil {
		return TaskEngineConfig{}
	}
	return *te
}
