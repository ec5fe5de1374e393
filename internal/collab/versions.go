package collab

import (
	"context"
	"errors"
	"strings"
	"sync"

	"joinmotd/internal/storage"
	logx "joinmotd/pkg/logx"
)

// VersionBook answers %version:<id>%. "server" and "minecraft" map to the
// version detected from the server log; other ids come from config.
type VersionBook struct {
	store storage.Store
	log   logx.Logger

	mu       sync.RWMutex
	static   map[string]string
	detected string
}

func NewVersionBook(static map[string]string, store storage.Store, log logx.Logger) *VersionBook {
	if log.IsZero() {
		log = logx.Nop()
	}
	b := &VersionBook{store: store, log: log.With(logx.String("comp", "versions"))}
	b.SetStatic(static)
	return b
}

// Load restores the last detected version from storage.
func (b *VersionBook) Load(ctx context.Context) {
	if b.store == nil {
		return
	}
	v, err := b.store.GetMeta(ctx, storage.MetaServerVersion)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			b.log.Warn("load server version failed", logx.Err(err))
		}
		return
	}
	b.mu.Lock()
	if b.detected == "" {
		b.detected = v
	}
	b.mu.Unlock()
}

// SetStatic replaces the configured versions (on config reload).
func (b *VersionBook) SetStatic(m map[string]string) {
	cp := make(map[string]string, len(m))
	for k, v := range m {
		cp[strings.ToLower(strings.TrimSpace(k))] = v
	}
	b.mu.Lock()
	b.static = cp
	b.mu.Unlock()
}

// SetDetected records the server version parsed from the log and persists it.
func (b *VersionBook) SetDetected(ctx context.Context, v string) {
	v = strings.TrimSpace(v)
	if v == "" {
		return
	}
	b.mu.Lock()
	changed := b.detected != v
	b.detected = v
	b.mu.Unlock()
	if !changed {
		return
	}
	b.log.Info("server version detected", logx.String("version", v))
	if b.store != nil {
		if err := b.store.PutMeta(ctx, storage.MetaServerVersion, v); err != nil {
			b.log.Warn("persist server version failed", logx.Err(err))
		}
	}
}

func (b *VersionBook) ServerVersion(_ context.Context, id string) (string, bool) {
	id = strings.ToLower(strings.TrimSpace(id))
	b.mu.RLock()
	defer b.mu.RUnlock()
	if v, ok := b.static[id]; ok && v != "" {
		return v, true
	}
	if (id == "server" || id == "minecraft") && b.detected != "" {
		return b.detected, true
	}
	return "", false
}
