package config

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"
)

const sampleYAML = `
logging:
  level: debug
  console: true
rcon:
  address: 127.0.0.1:25575
  password: ${JOINMOTD_TEST_RCON}
server_log:
  path: /srv/mc/logs/latest.log
storage:
  driver: bolt
  path: ./data/joins.bolt
motd:
  data_dir: ./data
  timezone: UTC
  server_start_date: "2024-01-01"
  versions:
    fabric: 0.15.3
commands:
  prefixes: ["!!ajm", "!!joinMOTD"]
  permission_requirements:
    reload: operator
    preview: any
`

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestLoadYAML(t *testing.T) {
	t.Setenv("JOINMOTD_TEST_RCON", "pa$$word")
	m := NewConfigManager(writeFile(t, "config.yaml", sampleYAML))
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.RCON.Password != "pa$$word" {
		t.Fatalf("password=%q", cfg.RCON.Password)
	}
	if cfg.MOTD.Versions["fabric"] != "0.15.3" {
		t.Fatalf("versions=%v", cfg.MOTD.Versions)
	}
	if !slices.Equal(cfg.Commands.Prefixes, []string{"!!ajm", "!!joinMOTD"}) {
		t.Fatalf("prefixes=%v", cfg.Commands.Prefixes)
	}
	if m.Get() != cfg {
		t.Fatalf("Load did not commit")
	}
	loc, err := cfg.Location()
	if err != nil || loc.String() != "UTC" {
		t.Fatalf("location=%v err=%v", loc, err)
	}
}

func TestParseRejects(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name, file, body string
	}{
		{"unknown field", "c.yaml", "motd:\n  data_dir: x\n  colour: red\n"},
		{"trailing json", "c.json", `{"motd":{"data_dir":"x"}} {}`},
		{"bad yaml", "c.yml", "motd: [\n"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if _, err := NewConfigManager(writeFile(t, tt.file, tt.body)).Parse(); err == nil {
				t.Fatalf("expected parse error")
			}
		})
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()
	valid := func() *Config {
		return &Config{MOTD: MOTDConfig{DataDir: "./data"}}
	}
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"minimal", func(*Config) {}, ""},
		{"no data dir", func(c *Config) { c.MOTD.DataDir = "" }, "motd.data_dir"},
		{"bad tz", func(c *Config) { c.MOTD.Timezone = "Mars/Olympus" }, "motd.timezone"},
		{"bad start date", func(c *Config) { c.MOTD.ServerStartDate = "2024/01/01" }, "server_start_date"},
		{"bad duration", func(c *Config) { c.MOTD.GreetTimeout = "soon" }, "motd.greet_timeout"},
		{"bad rcon addr", func(c *Config) { c.RCON.Address = "localhost" }, "rcon.address"},
		{"sqlite no path", func(c *Config) { c.Storage = &StorageConfig{Driver: "sqlite"} }, "storage.path"},
		{"unknown driver", func(c *Config) { c.Storage = &StorageConfig{Driver: "mongo"} }, "storage.driver"},
		{"telegram no token", func(c *Config) { c.Telegram = &TelegramConfig{} }, "telegram.token"},
		{"bad perm", func(c *Config) {
			c.Commands.PermissionRequirements = map[string]string{"reload": "admin"}
		}, "permission_requirements.reload"},
		{"bad prefix", func(c *Config) { c.Commands.Prefixes = []string{"!! ajm"} }, "commands.prefixes"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := valid()
			tt.mutate(c)
			err := Validate(c)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("err=%v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestSummarizeConfigChange(t *testing.T) {
	t.Parallel()
	a := &Config{MOTD: MOTDConfig{DataDir: "./data"}, RCON: RCONConfig{Password: "x"}}
	b := &Config{MOTD: MOTDConfig{DataDir: "./data2"}, RCON: RCONConfig{Password: "y"}, Storage: &StorageConfig{Driver: "bolt", Path: "p"}}
	sections, attrs := SummarizeConfigChange(a, b)
	if !slices.Equal(sections, []string{"motd", "rcon", "storage"}) {
		t.Fatalf("sections=%v", sections)
	}
	if len(attrs) == 0 {
		t.Fatalf("expected attrs")
	}
	if got := RestartRequired(sections); !slices.Equal(got, []string{"rcon", "storage"}) {
		t.Fatalf("restart=%v", got)
	}
	if s, _ := SummarizeConfigChange(a, a); len(s) != 0 {
		t.Fatalf("identical configs reported %v", s)
	}
}

func TestWatchPublishesValidReloads(t *testing.T) {
	t.Parallel()
	path := writeFile(t, "config.json", `{"motd":{"data_dir":"./a"}}`)
	m := NewConfigManager(path)
	if _, err := m.Load(); err != nil {
		t.Fatalf("load: %v", err)
	}
	sub := m.Subscribe(4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = m.Watch(ctx) }()
	time.Sleep(100 * time.Millisecond)

	// Invalid edits are rejected and never published.
	if err := os.WriteFile(path, []byte(`{"motd":{"data_dir":""}}`), 0o644); err != nil {
		t.Fatal(err)
	}
	time.Sleep(500 * time.Millisecond)
	if err := os.WriteFile(path, []byte(`{"motd":{"data_dir":"./b"}}`), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case cfg := <-sub:
		if cfg.MOTD.DataDir != "./b" {
			t.Fatalf("published data_dir=%q", cfg.MOTD.DataDir)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("no reload published")
	}
	if m.Get().MOTD.DataDir != "./b" {
		t.Fatalf("not committed")
	}
}
