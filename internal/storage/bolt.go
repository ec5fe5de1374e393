package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	bbolt "go.etcd.io/bbolt"

	logx "joinmotd/pkg/logx"
)

var (
	bucketJoins = []byte("joins")
	bucketMeta  = []byte("meta")
)

type boltStore struct {
	db  *bbolt.DB
	log logx.Logger
}

// boltJoin is the JSON value stored under the folded player name.
type boltJoin struct {
	Name      string `json:"name"`
	Count     int64  `json:"count"`
	FirstSeen int64  `json:"first_seen"`
	LastSeen  int64  `json:"last_seen"`
}

func openBolt(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("bolt path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("bolt open %s: %w", path, err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{bucketJoins, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bolt create buckets: %w", err)
	}
	log.Debug("storage opened", logx.String("path", path))
	return &boltStore{db: db, log: log}, nil
}

func (s *boltStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *boltStore) RecordJoin(ctx context.Context, player string, at time.Time) (JoinStats, error) {
	if s == nil || s.db == nil {
		return JoinStats{}, ErrDisabled
	}
	if err := ctx.Err(); err != nil {
		return JoinStats{}, err
	}
	key := playerKey(player)
	if key == "" {
		return JoinStats{}, errors.New("player is required")
	}
	if at.IsZero() {
		at = time.Now()
	}
	var rec boltJoin
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketJoins)
		if raw := b.Get([]byte(key)); raw != nil {
			if err := json.Unmarshal(raw, &rec); err != nil {
				return fmt.Errorf("decode join %q: %w", key, err)
			}
		}
		ms := at.UnixMilli()
		if rec.Count == 0 {
			rec.FirstSeen = ms
		}
		rec.Name = strings.TrimSpace(player)
		rec.Count++
		rec.LastSeen = ms
		data, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		return b.Put([]byte(key), data)
	})
	if err != nil {
		return JoinStats{}, err
	}
	return rec.stats(), nil
}

func (s *boltStore) Joins(ctx context.Context, player string) (JoinStats, error) {
	if s == nil || s.db == nil {
		return JoinStats{}, ErrDisabled
	}
	if err := ctx.Err(); err != nil {
		return JoinStats{}, err
	}
	var rec boltJoin
	err := s.db.View(func(tx *bbolt.Tx) error {
		raw := tx.Bucket(bucketJoins).Get([]byte(playerKey(player)))
		if raw == nil {
			return ErrNotFound
		}
		return json.Unmarshal(raw, &rec)
	})
	if err != nil {
		return JoinStats{}, err
	}
	return rec.stats(), nil
}

func (s *boltStore) PutMeta(ctx context.Context, key, value string) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketMeta).Put([]byte(key), []byte(value))
	})
}

func (s *boltStore) GetMeta(ctx context.Context, key string) (string, error) {
	if s == nil || s.db == nil {
		return "", ErrDisabled
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	var v string
	err := s.db.View(func(tx *bbolt.Tx) error {
		raw := tx.Bucket(bucketMeta).Get([]byte(key))
		if raw == nil {
			return ErrNotFound
		}
		// raw is only valid inside the transaction.
		v = string(raw)
		return nil
	})
	return v, err
}

func (r boltJoin) stats() JoinStats {
	return JoinStats{
		Player:    r.Name,
		Count:     r.Count,
		FirstSeen: time.UnixMilli(r.FirstSeen),
		LastSeen:  time.UnixMilli(r.LastSeen),
	}
}
