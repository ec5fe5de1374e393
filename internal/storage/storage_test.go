package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	logx "joinmotd/pkg/logx"
)

func openAll(t *testing.T) map[string]Store {
	t.Helper()
	dir := t.TempDir()
	out := map[string]Store{}
	for _, tc := range []struct{ driver, file string }{
		{"sqlite", "joins.db"},
		{"bolt", "joins.bolt"},
	} {
		st, err := Open(Config{Driver: tc.driver, Path: filepath.Join(dir, tc.file)}, logx.Nop())
		if err != nil {
			t.Fatalf("open %s: %v", tc.driver, err)
		}
		t.Cleanup(func() { _ = st.Close() })
		out[tc.driver] = st
	}
	return out
}

func TestOpenDisabled(t *testing.T) {
	t.Parallel()
	for _, d := range []string{"", "none", " NONE "} {
		st, err := Open(Config{Driver: d}, logx.Nop())
		if err != nil || st != nil {
			t.Fatalf("driver %q: got (%v, %v), want (nil, nil)", d, st, err)
		}
	}
	if _, err := Open(Config{Driver: "redis"}, logx.Nop()); err == nil {
		t.Fatalf("expected unknown driver error")
	}
}

func TestRecordJoin(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	t0 := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	for driver, st := range openAll(t) {
		if _, err := st.Joins(ctx, "Steve"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("%s: unseen player err=%v, want ErrNotFound", driver, err)
		}
		if _, err := st.RecordJoin(ctx, "Steve", t0); err != nil {
			t.Fatalf("%s: record: %v", driver, err)
		}
		js, err := st.RecordJoin(ctx, "steve", t0.Add(time.Hour))
		if err != nil {
			t.Fatalf("%s: record: %v", driver, err)
		}
		if js.Count != 2 {
			t.Fatalf("%s: count=%d, want 2", driver, js.Count)
		}
		if !js.FirstSeen.Equal(t0) || !js.LastSeen.Equal(t0.Add(time.Hour)) {
			t.Fatalf("%s: first=%v last=%v", driver, js.FirstSeen, js.LastSeen)
		}
		got, err := st.Joins(ctx, "STEVE")
		if err != nil || got.Count != 2 || got.Player != "steve" {
			t.Fatalf("%s: joins=%+v err=%v", driver, got, err)
		}
	}
}

func TestMeta(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	first := time.Date(2023, 12, 25, 0, 0, 0, 0, time.UTC)
	for driver, st := range openAll(t) {
		if _, err := st.GetMeta(ctx, MetaServerVersion); !errors.Is(err, ErrNotFound) {
			t.Fatalf("%s: missing meta err=%v", driver, err)
		}
		if err := st.PutMeta(ctx, MetaServerVersion, "1.20.4"); err != nil {
			t.Fatalf("%s: put: %v", driver, err)
		}
		if err := st.PutMeta(ctx, MetaServerVersion, "1.21"); err != nil {
			t.Fatalf("%s: put: %v", driver, err)
		}
		if v, err := st.GetMeta(ctx, MetaServerVersion); err != nil || v != "1.21" {
			t.Fatalf("%s: got %q err=%v", driver, v, err)
		}

		got, err := MarkFirstStart(ctx, st, first)
		if err != nil || !got.Equal(first) {
			t.Fatalf("%s: first start=%v err=%v", driver, got, err)
		}
		got, err = MarkFirstStart(ctx, st, first.AddDate(1, 0, 0))
		if err != nil || !got.Equal(first) {
			t.Fatalf("%s: second mark moved first start to %v (err=%v)", driver, got, err)
		}
	}
}
