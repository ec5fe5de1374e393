// Package schedule decides which schemes apply at a given instant.
//
// A Schedule binds a scheme name to optional predicates: an absolute
// [from, to] window in Unix seconds, calendar fields compared in a configured
// location, a cron expression, and player allow/deny lists. Unset predicates
// always match; a schedule with no predicate at all never matches.
package schedule

import (
	"fmt"
	"strings"
)

type Schedule struct {
	// Name is informational (logs, commands). Defaults to the scheme name.
	Name   string `yaml:"name,omitempty" json:"name,omitempty"`
	Scheme string `yaml:"scheme" json:"scheme"`

	From *int64 `yaml:"from,omitempty" json:"from,omitempty"`
	To   *int64 `yaml:"to,omitempty" json:"to,omitempty"`

	Year    *int `yaml:"year,omitempty" json:"year,omitempty"`
	Month   *int `yaml:"month,omitempty" json:"month,omitempty"`
	Day     *int `yaml:"day,omitempty" json:"day,omitempty"`
	Hour    *int `yaml:"hour,omitempty" json:"hour,omitempty"`
	Minute  *int `yaml:"minute,omitempty" json:"minute,omitempty"`
	Second  *int `yaml:"second,omitempty" json:"second,omitempty"`
	Weekday *int `yaml:"wday,omitempty" json:"wday,omitempty"` // 0=Sunday..6=Saturday
	YearDay *int `yaml:"yday,omitempty" json:"yday,omitempty"` // 1..366

	// Cron is an optional robfig/cron expression (5 fields, or 6 with seconds).
	Cron string `yaml:"cron,omitempty" json:"cron,omitempty"`

	Whitelist []string `yaml:"whitelist,omitempty" json:"whitelist,omitempty"`
	Blacklist []string `yaml:"blacklist,omitempty" json:"blacklist,omitempty"`

	// Priority overrides the referenced scheme's priority when set.
	Priority *int `yaml:"priority,omitempty" json:"priority,omitempty"`

	cron cronSpec
}

// Label returns Name, falling back to the scheme name.
func (s Schedule) Label() string {
	if s.Name != "" {
		return s.Name
	}
	return s.Scheme
}

// HasPredicate reports whether any matching field is set.
func (s Schedule) HasPredicate() bool {
	if s.From != nil || s.To != nil {
		return true
	}
	for _, f := range s.calendarFields() {
		if f.want != nil {
			return true
		}
	}
	return strings.TrimSpace(s.Cron) != "" || s.Whitelist != nil || s.Blacklist != nil
}

type calendarField struct {
	name string
	want *int
	min  int
	max  int
}

func (s Schedule) calendarFields() []calendarField {
	return []calendarField{
		{"year", s.Year, 1, 9999},
		{"month", s.Month, 1, 12},
		{"day", s.Day, 1, 31},
		{"hour", s.Hour, 0, 23},
		{"minute", s.Minute, 0, 59},
		{"second", s.Second, 0, 60},
		{"wday", s.Weekday, 0, 6},
		{"yday", s.YearDay, 1, 366},
	}
}

// Validate checks field ranges and compiles the cron expression. Schedules
// loaded from disk must be validated before use; an invalid cron expression
// would otherwise be treated as "no cron predicate".
func (s *Schedule) Validate() error {
	if strings.TrimSpace(s.Scheme) == "" {
		return fmt.Errorf("schedule %q: scheme is required", s.Name)
	}
	if s.From != nil && s.To != nil && *s.From > *s.To {
		return fmt.Errorf("schedule %q: from (%d) is after to (%d)", s.Label(), *s.From, *s.To)
	}
	for _, f := range s.calendarFields() {
		if f.want == nil {
			continue
		}
		if *f.want < f.min || *f.want > f.max {
			return fmt.Errorf("schedule %q: %s=%d out of range [%d, %d]", s.Label(), f.name, *f.want, f.min, f.max)
		}
	}
	spec, err := parseCron(s.Cron)
	if err != nil {
		return fmt.Errorf("schedule %q: %w", s.Label(), err)
	}
	s.cron = spec
	return nil
}

// EffectivePriority resolves the schedule priority, falling back to the
// scheme priority supplied by the caller.
func (s Schedule) EffectivePriority(schemePriority func(name string) int) int {
	if s.Priority != nil {
		return *s.Priority
	}
	if schemePriority == nil {
		return 0
	}
	return schemePriority(s.Scheme)
}

// tieBreakKey lists the predicate fields in comparison order (unset = 0).
func (s Schedule) tieBreakKey() [10]int64 {
	v := func(p *int) int64 {
		if p == nil {
			return 0
		}
		return int64(*p)
	}
	v64 := func(p *int64) int64 {
		if p == nil {
			return 0
		}
		return *p
	}
	return [10]int64{
		v64(s.From), v64(s.To),
		v(s.Year), v(s.Month), v(s.Day),
		v(s.Hour), v(s.Minute), v(s.Second),
		v(s.Weekday), v(s.YearDay),
	}
}

// Int and Int64 build optional fields in code and tests.
func Int(v int) *int       { return &v }
func Int64(v int64) *int64 { return &v }
