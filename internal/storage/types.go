package storage

import (
	"context"
	"errors"
	"strings"
	"time"
)

var (
	ErrDisabled = errors.New("storage disabled")
	ErrNotFound = errors.New("storage: not found")
)

// Config configures storage.
//
// Driver values:
//   - "sqlite": SQLite database file
//   - "bolt": bbolt database file
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// JoinStats aggregates every recorded join of one player.
type JoinStats struct {
	Player    string
	Count     int64
	FirstSeen time.Time
	LastSeen  time.Time
}

// Meta keys.
const (
	MetaFirstStart    = "first_start"
	MetaServerVersion = "server_version"
)

// Store is the persistence API used by the greeter, commands and collaborators.
type Store interface {
	// RecordJoin bumps the player's counter and returns the updated stats.
	RecordJoin(ctx context.Context, player string, at time.Time) (JoinStats, error)
	// Joins returns ErrNotFound for a player never seen.
	Joins(ctx context.Context, player string) (JoinStats, error)
	PutMeta(ctx context.Context, key, value string) error
	// GetMeta returns ErrNotFound for a missing key.
	GetMeta(ctx context.Context, key string) (string, error)
	Close() error
}

// playerKey folds names so "Steve" and "steve" share stats.
func playerKey(player string) string {
	return strings.ToLower(strings.TrimSpace(player))
}

// MarkFirstStart stores at as the first start unless one is already known,
// and returns the effective first start.
func MarkFirstStart(ctx context.Context, st Store, at time.Time) (time.Time, error) {
	if st == nil {
		return time.Time{}, ErrDisabled
	}
	v, err := st.GetMeta(ctx, MetaFirstStart)
	if err == nil {
		if t, perr := time.Parse(time.RFC3339, v); perr == nil {
			return t, nil
		}
	} else if !errors.Is(err, ErrNotFound) {
		return time.Time{}, err
	}
	if err := st.PutMeta(ctx, MetaFirstStart, at.Format(time.RFC3339)); err != nil {
		return time.Time{}, err
	}
	return at, nil
}
