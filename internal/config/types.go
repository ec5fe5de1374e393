// Package config loads the daemon configuration (JSON or YAML), validates it
// and publishes hot reloads to subscribers.
package config

// Config is the root document.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
type Config struct {
	Logging    LoggingConfig     `json:"logging"`
	Telegram   *TelegramConfig   `json:"telegram,omitempty"`
	RCON       RCONConfig        `json:"rcon"`
	ServerLog  ServerLogConfig   `json:"server_log"`
	Storage    *StorageConfig    `json:"storage,omitempty"`
	OpsHTTP    *OpsHTTPConfig    `json:"ops_http,omitempty"`
	TaskEngine *TaskEngineConfig `json:"task_engine,omitempty"`
	MOTD       MOTDConfig        `json:"motd"`
	Commands   CommandsConfig    `json:"commands"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
	// Alerts forwards warnings and errors to the Telegram ops chat.
	Alerts LoggingAlerts `json:"alerts"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type LoggingAlerts struct {
	Enabled    bool   `json:"enabled"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// TelegramConfig enables the ops console. Omit the section to run without it.
type TelegramConfig struct {
	Token        string  `json:"token"`
	OwnerUserIDs []int64 `json:"owner_user_ids"`
	// ChatID receives log alerts and greeting failures.
	ChatID      int64  `json:"chat_id"`
	ThreadID    int    `json:"thread_id,omitempty"`
	PollTimeout string `json:"poll_timeout"`
}

type RCONConfig struct {
	Address     string `json:"address"`
	Password    string `json:"password"`
	DialTimeout string `json:"dial_timeout,omitempty"`
	Deadline    string `json:"deadline,omitempty"`
}

type ServerLogConfig struct {
	Path      string `json:"path"`
	FromStart bool   `json:"from_start,omitempty"`
	Poll      string `json:"poll,omitempty"`
}

// StorageConfig controls persistence of join statistics.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./data/joinmotd.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite only
}

// OpsHTTPConfig controls the metrics/health/pprof listener.
//
// Security note:
//   - Prefer binding to localhost (e.g. "127.0.0.1:9465").
//   - If you bind to a non-loopback address, set a token or explicitly allow_insecure.
type OpsHTTPConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty"`
	Token         string `json:"token,omitempty"` // do not log
	AllowInsecure bool   `json:"allow_insecure,omitempty"`

	Pprof       bool   `json:"pprof,omitempty"`
	PprofPrefix string `json:"pprof_prefix,omitempty"`

	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"`
	IdleTimeout  string `json:"idle_timeout,omitempty"`

	MutexProfileFraction int `json:"mutex_profile_fraction,omitempty"`
	BlockProfileRate     int `json:"block_profile_rate,omitempty"`
}

// TaskEngineConfig sizes the greeting worker pool.
//
// Defaults (when fields are omitted/zero):
//   - enabled: true
//   - workers: 4
//   - queue_size: 256
//   - default_timeout: "10s"
//   - max_queue_delay: "30s"
//   - history_size: 200
type TaskEngineConfig struct {
	Enabled        *bool  `json:"enabled,omitempty"`
	Workers        int    `json:"workers,omitempty"`
	QueueSize      int    `json:"queue_size,omitempty"`
	DefaultTimeout string `json:"default_timeout,omitempty"`
	MaxQueueDelay  string `json:"max_queue_delay,omitempty"`
	HistorySize    int    `json:"history_size,omitempty"`
}

type MOTDConfig struct {
	// DataDir holds schemes/, schedules.yml, variables.yml, random_text.yml
	// and lang/.
	DataDir       string `json:"data_dir"`
	DefaultScheme string `json:"default_scheme,omitempty"`
	// Timezone used for schedule matching and %day%. Empty means local.
	Timezone         string `json:"timezone,omitempty"`
	Language         string `json:"language,omitempty"`
	FallbackLanguage string `json:"fallback_language,omitempty"`
	// ServerStartDate ("YYYY-MM-DD") anchors %day%. Without it the first
	// recorded start is used.
	ServerStartDate string `json:"server_start_date,omitempty"`
	// Versions feeds %version:<id>%.
	Versions map[string]string `json:"versions,omitempty"`
	// HostVersion is reported by %mcdrVersion%.
	HostVersion string `json:"host_version,omitempty"`

	GreetTimeout string      `json:"greet_timeout,omitempty"`
	WatchData    *bool       `json:"watch_data,omitempty"`
	Fetch        FetchConfig `json:"fetch"`
}

type FetchConfig struct {
	Timeout    string  `json:"timeout,omitempty"`
	RatePerSec float64 `json:"rate_per_sec,omitempty"`
	Burst      int     `json:"burst,omitempty"`
	MaxBody    int64   `json:"max_body,omitempty"`
	UserAgent  string  `json:"user_agent,omitempty"`
}

// CommandsConfig controls in-game chat commands.
type CommandsConfig struct {
	Enabled  *bool    `json:"enabled,omitempty"`
	Prefixes []string `json:"prefixes,omitempty"`
	// Operators may run commands that require "operator".
	Operators []string `json:"operators,omitempty"`
	// PermissionRequirements maps a subcommand to "any" or "operator".
	PermissionRequirements map[string]string `json:"permission_requirements,omitempty"`
	EnablePermissionCheck  *bool             `json:"enable_permission_check,omitempty"`
}

// Bool dereferences p, returning def when unset.
func Bool(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
}
