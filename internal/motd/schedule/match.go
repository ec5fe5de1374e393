package schedule

import (
	"slices"
	"strings"
	"time"
)

// Matches reports whether s applies at now for player. player is nil when
// the render has no player (console preview); list predicates are then
// skipped. loc is the location calendar fields are evaluated in (nil = Local).
func Matches(s Schedule, now time.Time, player *string, loc *time.Location) bool {
	if player != nil {
		if s.Blacklist != nil && containsPlayer(s.Blacklist, *player) {
			return false
		}
		if s.Whitelist != nil && !containsPlayer(s.Whitelist, *player) {
			return false
		}
	}

	unix := now.Unix()
	if s.From != nil && unix < *s.From {
		return false
	}
	if s.To != nil && unix > *s.To {
		return false
	}

	if loc == nil {
		loc = time.Local
	}
	local := now.In(loc)
	got := [...]int{
		local.Year(), int(local.Month()), local.Day(),
		local.Hour(), local.Minute(), local.Second(),
		int(local.Weekday()), local.YearDay(),
	}
	for i, f := range s.calendarFields() {
		if f.want != nil && *f.want != got[i] {
			return false
		}
	}

	if strings.TrimSpace(s.Cron) != "" {
		spec := s.cron
		if !spec.set() {
			var err error
			if spec, err = parseCron(s.Cron); err != nil {
				return false
			}
		}
		if !spec.matches(local) {
			return false
		}
	}

	return s.HasPredicate()
}

// Player names are matched case-insensitively, as the server does.
func containsPlayer(list []string, player string) bool {
	return slices.ContainsFunc(list, func(p string) bool {
		return strings.EqualFold(strings.TrimSpace(p), player)
	})
}
