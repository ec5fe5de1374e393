package schedule

import (
	"cmp"
	"slices"
	"time"
)

// Ranked is a matching schedule with its resolved priority.
type Ranked struct {
	Schedule
	Priority int
}

// Select filters schedules with Matches and orders the survivors highest
// priority first. Ties are broken by the predicate fields
// (from, to, year, month, day, hour, minute, second, wday, yday; unset = 0)
// ascending, then by scheme name, then by schedule name. The order depends
// only on the inputs, never on their original positions.
//
// schemePriority supplies the fallback priority for schedules without one.
func Select(schedules []Schedule, now time.Time, player *string, loc *time.Location, schemePriority func(string) int) []Ranked {
	out := make([]Ranked, 0, len(schedules))
	for _, s := range schedules {
		if !Matches(s, now, player, loc) {
			continue
		}
		out = append(out, Ranked{Schedule: s, Priority: s.EffectivePriority(schemePriority)})
	}
	slices.SortStableFunc(out, Compare)
	return out
}

// Compare orders two ranked schedules the way Select does.
func Compare(a, b Ranked) int {
	if c := cmp.Compare(b.Priority, a.Priority); c != 0 {
		return c
	}
	ka, kb := a.tieBreakKey(), b.tieBreakKey()
	for i := range ka {
		if c := cmp.Compare(ka[i], kb[i]); c != 0 {
			return c
		}
	}
	if c := cmp.Compare(a.Scheme, b.Scheme); c != 0 {
		return c
	}
	return cmp.Compare(a.Name, b.Name)
}

// Schemes returns the distinct scheme names of ranked in order.
func Schemes(ranked []Ranked) []string {
	seen := make(map[string]struct{}, len(ranked))
	out := make([]string, 0, len(ranked))
	for _, r := range ranked {
		if _, dup := seen[r.Scheme]; dup {
			continue
		}
		seen[r.Scheme] = struct{}{}
		out = append(out, r.Scheme)
	}
	return out
}
