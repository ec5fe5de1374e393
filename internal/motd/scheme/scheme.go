// Package scheme loads message templates ("schemes"), their schedules and the
// shared variables and random text pools from a data directory, and caches
// them for concurrent readers.
//
// Layout of the data directory:
//
//	schemes/<name>.yml   one scheme per file
//	schedules.yml        list of schedules
//	variables.yml        global variables merged into every scheme
//	random_text.yml      pool name -> lines for %random:<pool>%
//	lang/<lang>.po       translations (see package i18n)
package scheme

import (
	"bytes"
	"fmt"
	"strings"

	yaml "go.yaml.in/yaml/v3"
)

// DefaultPriority applies when a scheme file does not set one.
const DefaultPriority = 1000

// ServerListFormat controls how %serverlist% entries render. {name} is the
// displayed label and {target} the server switched to. Empty fields fall
// back to built-in defaults.
type ServerListFormat struct {
	Label     string `yaml:"label,omitempty"`
	Hover     string `yaml:"hover,omitempty"`
	Command   string `yaml:"command,omitempty"`
	Separator string `yaml:"separator,omitempty"`
}

const (
	DefaultServerLabel   = "[§7{name}§r]"
	DefaultServerCommand = "/server {target}"
)

// WithDefaults fills unset fields.
func (f ServerListFormat) WithDefaults() ServerListFormat {
	if f.Label == "" {
		f.Label = DefaultServerLabel
	}
	if f.Command == "" {
		f.Command = DefaultServerCommand
	}
	if f.Separator == "" {
		f.Separator = " "
	}
	return f
}

// Scheme is a named template. It is immutable once loaded; reloads replace
// the cached pointer instead of mutating it.
type Scheme struct {
	Name        string              `yaml:"-"`
	Source      string              `yaml:"-"`
	Description string              `yaml:"description,omitempty"`
	Format      string              `yaml:"format"`
	Variables   map[string]Variable `yaml:"variables,omitempty"`
	Servers     []string            `yaml:"servers,omitempty"`
	ServerList  ServerListFormat    `yaml:"server_list,omitempty"`
	Priority    *int                `yaml:"priority,omitempty"`
}

// EffectivePriority returns Priority or DefaultPriority.
func (s *Scheme) EffectivePriority() int {
	if s == nil || s.Priority == nil {
		return DefaultPriority
	}
	return *s.Priority
}

// ParseScheme decodes one scheme document. Unknown keys are rejected so a
// typo surfaces as a load error instead of a silently ignored field.
func ParseScheme(name string, data []byte) (*Scheme, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var s Scheme
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("scheme %q: %w", name, err)
	}
	if strings.TrimSpace(s.Format) == "" {
		return nil, fmt.Errorf("scheme %q: format is empty", name)
	}
	if err := validateVariables(s.Variables); err != nil {
		return nil, fmt.Errorf("scheme %q: %w", name, err)
	}
	s.Name = name
	return &s, nil
}
