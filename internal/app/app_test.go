package app

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"joinmotd/internal/config"
	rtsup "joinmotd/internal/runtime/supervisor"
	"joinmotd/internal/task/engine"
	"joinmotd/internal/transport/serverlog"
	logx "joinmotd/pkg/logx"
)

func writeConfig(t *testing.T, extra string) string {
	t.Helper()
	dir := t.TempDir()
	body := "logging:\n  level: error\n" +
		"motd:\n  data_dir: " + filepath.Join(dir, "data") + "\n" +
		"storage:\n  driver: bolt\n  path: " + filepath.Join(dir, "joins.db") + "\n" +
		"task_engine:\n  enabled: false\n" + extra
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestMapStorageConfig(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		in      *config.StorageConfig
		enabled bool
		driver  string
		wantErr bool
	}{
		{"absent", nil, false, "", false},
		{"none", &config.StorageConfig{Driver: "none"}, false, "", false},
		{"sqlite", &config.StorageConfig{Driver: "SQLite", Path: "x.db"}, true, "sqlite", false},
		{"bolt", &config.StorageConfig{Driver: "bolt", Path: "x.db"}, true, "bolt", false},
		{"missing path", &config.StorageConfig{Driver: "bolt"}, false, "", true},
		{"bad busy timeout", &config.StorageConfig{Driver: "sqlite", Path: "x", BusyTimeout: "soon"}, false, "", true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			sc, enabled, err := mapStorageConfig(&config.Config{Storage: tt.in})
			if (err != nil) != tt.wantErr {
				t.Fatalf("err=%v wantErr=%v", err, tt.wantErr)
			}
			if enabled != tt.enabled || sc.Driver != tt.driver {
				t.Fatalf("got %+v enabled=%v", sc, enabled)
			}
		})
	}
}

func TestMapTaskEngineDefaults(t *testing.T) {
	t.Parallel()
	ec, err := mapTaskEngineConfig(&config.Config{})
	if err != nil {
		t.Fatal(err)
	}
	if !ec.Enabled || ec.DefaultTimeout != 10*time.Second || ec.MaxQueueDelay != 30*time.Second {
		t.Fatalf("defaults=%+v", ec)
	}
	off := false
	ec, err = mapTaskEngineConfig(&config.Config{TaskEngine: &config.TaskEngineConfig{Enabled: &off, Workers: 2, DefaultTimeout: "3s"}})
	if err != nil {
		t.Fatal(err)
	}
	if ec.Enabled || ec.Workers != 2 || ec.DefaultTimeout != 3*time.Second {
		t.Fatalf("mapped=%+v", ec)
	}
}

func TestMapCommandsAndTelegram(t *testing.T) {
	t.Parallel()
	cc := mapCommandsConfig(&config.Config{})
	if !cc.Enabled || !cc.PermissionCheck {
		t.Fatalf("commands defaults=%+v", cc)
	}
	if _, ok, err := mapTelegramConfig(&config.Config{}); ok || err != nil {
		t.Fatalf("telegram without section: ok=%v err=%v", ok, err)
	}
	tc, ok, err := mapTelegramConfig(&config.Config{Telegram: &config.TelegramConfig{Token: "t", OwnerUserIDs: []int64{1}}})
	if !ok || err != nil || tc.PollTimeout != 10*time.Second || len(tc.Owners) != 1 {
		t.Fatalf("telegram=%+v ok=%v err=%v", tc, ok, err)
	}
	lc := mapLogConfig(&config.Config{Logging: config.LoggingConfig{Alerts: config.LoggingAlerts{Enabled: true}}})
	if lc.Alerts.Enabled {
		t.Fatalf("alerts enabled without telegram")
	}
}

func TestNewAndPreview(t *testing.T) {
	a, err := New(writeConfig(t, ""))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Close()

	if _, err := os.Stat(filepath.Join(a.catalog.Dir(), "schemes", "default.yml")); err != nil {
		t.Fatalf("default scheme not created: %v", err)
	}
	if err := a.Preview(context.Background(), "", "Steve"); err != nil {
		t.Fatalf("Preview: %v", err)
	}
	if err := a.Preview(context.Background(), "missing", "Steve"); err == nil {
		t.Fatalf("expected error for missing scheme")
	}
}

func TestOnLogEvent(t *testing.T) {
	a, err := New(writeConfig(t, ""))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Close()
	a.sup = rtsup.NewSupervisor(context.Background())
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = a.sup.Stop(ctx)
	}()

	a.onLogEvent(serverlog.Event{Kind: serverlog.KindVersion, Version: "1.20.4"})
	if v, ok := a.versions.ServerVersion(context.Background(), "server"); !ok || v != "1.20.4" {
		t.Fatalf("version=%q ok=%v", v, ok)
	}

	a.onLogEvent(serverlog.Event{Kind: serverlog.KindJoin, Player: "Steve"})
	st, err := a.store.Joins(context.Background(), "steve")
	if err != nil || st.Count != 1 {
		t.Fatalf("joins=%+v err=%v", st, err)
	}

	a.onLogEvent(serverlog.Event{Kind: serverlog.KindStarted})
	h := a.Health()
	if !h.ServerUp || h.LastLogLine == nil || !h.Storage || h.Schemes == 0 {
		t.Fatalf("health=%+v", h)
	}
	if s := a.StatusText(); !strings.Contains(s, "server online") {
		t.Fatalf("status=%q", s)
	}
}

func TestQueueRejectedLogging(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		err   error
		level string
	}{
		{"queue full", engine.ErrQueueFull, `"level":"warn"`},
		{"overlap", engine.ErrOverlapSkip, `"level":"debug"`},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var buf bytes.Buffer
			a := &App{log: logx.NewWriter(&buf, "debug")}
			ran := false
			a.onQueueRejected("greet", "Steve", tt.err, func(context.Context) { ran = true })
			out := buf.String()
			if ran {
				t.Fatalf("rejected task must not run")
			}
			if !strings.Contains(out, tt.level) || !strings.Contains(out, `"player":"Steve"`) {
				t.Fatalf("log = %s", out)
			}
		})
	}
}
