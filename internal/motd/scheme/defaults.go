package scheme

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	logx "joinmotd/pkg/logx"
)

// DefaultSchemeName is the scheme written on first start and used as the
// last fallback when nothing else renders.
const DefaultSchemeName = "default"

const defaultScheme = `# Generated on first start. Edit freely; the file is hot-reloaded.
description: Built-in welcome message
priority: 1000
servers: []
format: |
  # Lines starting with '#' are comments. Use \# for a literal '#'.
  # Escapes (never span lines):
  #   %day%                server age in days      %day:ordinal%   1st, 2nd, ...
  #   %player%             joining player          %playerlist%    online players
  #   %since:2024-01-01%   days since a date       %random:<pool>% line from random_text.yml
  #   %serverlist: a b%    clickable server list   %api: <url>%    text fetched from url
  #   %version:server%     detected server version
  #   %7<cmd>% run  %8<cmd>% suggest  %a<text>% copy  %n<url>% open link
  #   any of the last four also accept [label](payload)
  # Variables: {name} from variables.yml or this file's variables section.
  §7=======§r Welcome back to §e{server_name}§7, §e%player%§7 =======§r
  Today is day §e%day%§r of the server
  §7-------§r Server List §7-------§r
  %serverlist: survival mirror creative%
  §7%random:original%
`

const defaultSchedules = `# Each schedule binds a scheme to time and player rules. A schedule with no
# rule at all never matches. Unset priority falls back to the scheme's.
#
# - name: new-year
#   scheme: newyear
#   month: 1
#   day: 1
#   priority: 2000
# - name: weekend
#   scheme: weekend
#   cron: "* * * * 0,6"
[]
`

const defaultVariables = `# Global variables, merged into every scheme. Scheme-local names win.
server_name: My Server
`

const defaultRandomText = `original:
  - Knowledge is the armor you should wear.
  - Have you checked the server rules today?
  - Rumor has it someone here is not playing vanilla.
  - Still cannot build a working farm? Same.
  - Be nice to the server admins.
`

// InitDefaults creates the data directory layout and writes any missing
// default file. Existing files are never touched.
func InitDefaults(dir string, log logx.Logger) error {
	for _, d := range []string{dir, filepath.Join(dir, SchemesDir), filepath.Join(dir, TranslationsDir)} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return fmt.Errorf("init data dir: %w", err)
		}
	}
	files := []struct {
		path string
		body string
	}{
		{filepath.Join(dir, SchemesDir, DefaultSchemeName+".yml"), defaultScheme},
		{filepath.Join(dir, SchedulesFile), defaultSchedules},
		{filepath.Join(dir, VariablesFile), defaultVariables},
		{filepath.Join(dir, RandomTextFile), defaultRandomText},
	}
	for _, f := range files {
		if f.path == filepath.Join(dir, SchemesDir, DefaultSchemeName+".yml") && hasScheme(dir, DefaultSchemeName) {
			continue
		}
		created, err := writeIfMissing(f.path, f.body)
		if err != nil {
			return fmt.Errorf("init %s: %w", filepath.Base(f.path), err)
		}
		if created {
			log.Info("default file created", logx.String("path", f.path))
		}
	}
	return nil
}

func hasScheme(dir, name string) bool {
	for _, ext := range schemeExts {
		if _, err := os.Stat(filepath.Join(dir, SchemesDir, name+ext)); err == nil {
			return true
		}
	}
	return false
}

func writeIfMissing(path, body string) (bool, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if errors.Is(err, fs.ErrExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if _, err := f.WriteString(body); err != nil {
		_ = f.Close()
		return false, err
	}
	return true, f.Close()
}
