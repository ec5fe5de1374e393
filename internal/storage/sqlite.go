package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	logx "joinmotd/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log}

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite migrate: %w", err)
	}
	log.Debug("storage opened", logx.String("path", path))
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) RecordJoin(ctx context.Context, player string, at time.Time) (JoinStats, error) {
	if s == nil || s.db == nil {
		return JoinStats{}, ErrDisabled
	}
	key := playerKey(player)
	if key == "" {
		return JoinStats{}, errors.New("player is required")
	}
	if at.IsZero() {
		at = time.Now()
	}
	ms := at.UnixMilli()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO joins(player, name, count, first_seen, last_seen) VALUES(?,?,1,?,?)
		 ON CONFLICT(player) DO UPDATE SET name=excluded.name, count=count+1, last_seen=excluded.last_seen`,
		key, strings.TrimSpace(player), ms, ms,
	)
	if err != nil {
		return JoinStats{}, err
	}
	return s.Joins(ctx, player)
}

func (s *sqliteStore) Joins(ctx context.Context, player string) (JoinStats, error) {
	if s == nil || s.db == nil {
		return JoinStats{}, ErrDisabled
	}
	var (
		js          JoinStats
		first, last int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT name, count, first_seen, last_seen FROM joins WHERE player = ?`, playerKey(player),
	).Scan(&js.Player, &js.Count, &first, &last)
	if errors.Is(err, sql.ErrNoRows) {
		return JoinStats{}, ErrNotFound
	}
	if err != nil {
		return JoinStats{}, err
	}
	js.FirstSeen, js.LastSeen = time.UnixMilli(first), time.UnixMilli(last)
	return js, nil
}

func (s *sqliteStore) PutMeta(ctx context.Context, key, value string) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO meta(key, value) VALUES(?,?)
		 ON CONFLICT(key) DO UPDATE SET value=excluded.value`,
		key, value,
	)
	return err
}

func (s *sqliteStore) GetMeta(ctx context.Context, key string) (string, error) {
	if s == nil || s.db == nil {
		return "", ErrDisabled
	}
	var v string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	return v, err
}
