package config

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"time"
)

// ParseDurationField parses a Go duration string; empty means 0.
func ParseDurationField(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	return d, nil
}

// ParseDurationOrDefault is ParseDurationField with def for empty or zero.
func ParseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	d, err := ParseDurationField(path, raw)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return def, nil
	}
	return d, nil
}

// Location resolves motd.timezone. Empty means time.Local.
func (c *Config) Location() (*time.Location, error) {
	tz := strings.TrimSpace(c.MOTD.Timezone)
	if tz == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("motd.timezone: invalid %q: %w", tz, err)
	}
	return loc, nil
}

// Permission levels for commands.permission_requirements.
const (
	PermAny      = "any"
	PermOperator = "operator"
)

// Validate rejects configs that would fail at apply time. It runs before a
// hot reload is committed, so a bad edit keeps the previous config live.
func Validate(c *Config) error {
	if c == nil {
		return errors.New("config is nil")
	}
	var errs []error
	dur := func(path, raw string) {
		if _, err := ParseDurationField(path, raw); err != nil {
			errs = append(errs, err)
		}
	}

	if strings.TrimSpace(c.MOTD.DataDir) == "" {
		errs = append(errs, errors.New("motd.data_dir is required"))
	}
	if _, err := c.Location(); err != nil {
		errs = append(errs, err)
	}
	if s := strings.TrimSpace(c.MOTD.ServerStartDate); s != "" {
		if _, err := time.Parse("2006-01-02", s); err != nil {
			errs = append(errs, fmt.Errorf("motd.server_start_date: want YYYY-MM-DD, got %q", s))
		}
	}
	dur("motd.greet_timeout", c.MOTD.GreetTimeout)
	dur("motd.fetch.timeout", c.MOTD.Fetch.Timeout)
	if c.MOTD.Fetch.RatePerSec < 0 || c.MOTD.Fetch.Burst < 0 || c.MOTD.Fetch.MaxBody < 0 {
		errs = append(errs, errors.New("motd.fetch: rate_per_sec, burst and max_body must be >= 0"))
	}

	if a := strings.TrimSpace(c.RCON.Address); a != "" {
		if _, _, err := net.SplitHostPort(a); err != nil {
			errs = append(errs, fmt.Errorf("rcon.address: %w", err))
		}
	}
	dur("rcon.dial_timeout", c.RCON.DialTimeout)
	dur("rcon.deadline", c.RCON.Deadline)
	dur("server_log.poll", c.ServerLog.Poll)

	if s := c.Storage; s != nil {
		switch strings.ToLower(strings.TrimSpace(s.Driver)) {
		case "", "none":
		case "sqlite", "sqlite3", "bolt", "bbolt":
			if strings.TrimSpace(s.Path) == "" {
				errs = append(errs, fmt.Errorf("storage.path is required when storage.driver=%s", s.Driver))
			}
		default:
			errs = append(errs, fmt.Errorf("unknown storage.driver: %s", s.Driver))
		}
		dur("storage.busy_timeout", s.BusyTimeout)
	}

	if te := c.TaskEngine; te != nil {
		if te.Workers < 0 || te.QueueSize < 0 || te.HistorySize < 0 {
			errs = append(errs, errors.New("task_engine: workers, queue_size and history_size must be >= 0"))
		}
		dur("task_engine.default_timeout", te.DefaultTimeout)
		dur("task_engine.max_queue_delay", te.MaxQueueDelay)
	}

	if o := c.OpsHTTP; o != nil {
		dur("ops_http.read_timeout", o.ReadTimeout)
		dur("ops_http.write_timeout", o.WriteTimeout)
		dur("ops_http.idle_timeout", o.IdleTimeout)
	}

	if t := c.Telegram; t != nil {
		if strings.TrimSpace(t.Token) == "" {
			errs = append(errs, errors.New("telegram.token is required when the telegram section is present"))
		}
		dur("telegram.poll_timeout", t.PollTimeout)
	}

	for cmd, level := range c.Commands.PermissionRequirements {
		switch strings.ToLower(strings.TrimSpace(level)) {
		case PermAny, PermOperator:
		default:
			errs = append(errs, fmt.Errorf("commands.permission_requirements.%s: want %q or %q, got %q", cmd, PermAny, PermOperator, level))
		}
	}
	for _, p := range c.Commands.Prefixes {
		if strings.TrimSpace(p) == "" || strings.ContainsAny(p, " \t") {
			errs = append(errs, fmt.Errorf("commands.prefixes: invalid prefix %q", p))
		}
	}
	return errors.Join(errs...)
}
