package collab

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"joinmotd/internal/motd/resolve"
	"joinmotd/internal/storage"
	logx "joinmotd/pkg/logx"
)

const startDateLayout = "2006-01-02"

// DayCounter counts days since the configured start date or, without one,
// since the first start recorded in storage.
type DayCounter struct {
	start time.Time
	store storage.Store
	log   logx.Logger
}

// NewDayCounter parses startDate ("YYYY-MM-DD", may be empty) in loc.
func NewDayCounter(startDate string, loc *time.Location, store storage.Store, log logx.Logger) (*DayCounter, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	if loc == nil {
		loc = time.Local
	}
	d := &DayCounter{store: store, log: log.With(logx.String("comp", "days"))}
	if s := strings.TrimSpace(startDate); s != "" {
		t, err := time.ParseInLocation(startDateLayout, s, loc)
		if err != nil {
			return nil, fmt.Errorf("server_start_date %q: %w", s, err)
		}
		d.start = t
	}
	return d, nil
}

func (d *DayCounter) DayCount(ctx context.Context, now time.Time) (int, bool) {
	start := d.start
	if start.IsZero() {
		if d.store == nil {
			return 0, false
		}
		v, err := d.store.GetMeta(ctx, storage.MetaFirstStart)
		if err != nil {
			if !errors.Is(err, storage.ErrNotFound) {
				d.log.Warn("first start lookup failed", logx.Err(err))
			}
			return 0, false
		}
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			d.log.Warn("bad first start", logx.String("value", v), logx.Err(err))
			return 0, false
		}
		start = t.In(now.Location())
	}
	if now.Before(start) {
		return 0, true
	}
	return resolve.DaysBetween(start, now), true
}
