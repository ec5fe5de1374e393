package schedule

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// cronSpec is a compiled cron predicate. The zero value means "unset".
type cronSpec struct {
	sched   cron.Schedule
	seconds bool
}

func parseCron(raw string) (cronSpec, error) {
	expr := strings.TrimSpace(raw)
	if expr == "" {
		return cronSpec{}, nil
	}
	if strings.HasPrefix(strings.ToLower(expr), "cron:") {
		expr = strings.TrimSpace(expr[len("cron:"):])
	}
	if strings.HasPrefix(expr, "@every") {
		return cronSpec{}, fmt.Errorf("cron %q: @every has no fixed activation instants", raw)
	}
	sched, err := cronParser.Parse(expr)
	if err != nil {
		return cronSpec{}, fmt.Errorf("cron %q: %w", raw, err)
	}
	return cronSpec{sched: sched, seconds: len(strings.Fields(expr)) == 6}, nil
}

func (c cronSpec) set() bool { return c.sched != nil }

// matches reports whether now falls on an activation instant of the spec, at
// minute resolution for 5-field expressions and second resolution otherwise.
func (c cronSpec) matches(now time.Time) bool {
	if c.sched == nil {
		return true
	}
	step := time.Minute
	if c.seconds {
		step = time.Second
	}
	slot := now.Truncate(step)
	// Truncate works on absolute time; realign minute slots to the location.
	if step == time.Minute {
		slot = time.Date(now.Year(), now.Month(), now.Day(), now.Hour(), now.Minute(), 0, 0, now.Location())
	}
	return c.sched.Next(slot.Add(-time.Second)).Equal(slot)
}
