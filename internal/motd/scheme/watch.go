package scheme

import (
	"context"
	"math/rand"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	logx "joinmotd/pkg/logx"
)

const watchDebounce = 250 * time.Millisecond

// Watch hot-reloads the catalog until ctx is done. Scheme file changes evict
// and re-read only that scheme; shared file changes reload the shared set.
// Like the config watcher, a broken fsnotify watcher is recreated with a
// jittered backoff.
func (c *Catalog) Watch(ctx context.Context) error {
	const (
		restartBackoffBase = 250 * time.Millisecond
		restartBackoffMax  = 5 * time.Second
	)
	backoff := restartBackoffBase
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	nextWait := func() time.Duration {
		wait := backoff + time.Duration(rng.Int63n(int64(backoff/2)+1))
		backoff = min(backoff*2, restartBackoffMax)
		return wait
	}

	deb := newDebouncer(watchDebounce)
	defer deb.stop()

	schemesDir := filepath.Join(c.dir, SchemesDir)
	for {
		if ctx.Err() != nil {
			return nil
		}
		w, err := fsnotify.NewWatcher()
		if err == nil {
			if err = w.Add(c.dir); err == nil {
				err = w.Add(schemesDir)
			}
			if err != nil {
				_ = w.Close()
			}
		}
		if err != nil {
			c.log.Warn("catalog watch init failed", logx.Err(err), logx.String("dir", c.dir))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(nextWait()):
				continue
			}
		}

		backoff = restartBackoffBase
		c.log.Debug("catalog watcher started", logx.String("dir", c.dir))

		broken := false
		for !broken {
			select {
			case <-ctx.Done():
				_ = w.Close()
				return nil
			case ev, ok := <-w.Events:
				if !ok {
					broken = true
					break
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
					continue
				}
				c.route(ev.Name, deb)
			case err, ok := <-w.Errors:
				if !ok {
					broken = true
					break
				}
				if err == nil {
					continue
				}
				c.log.Warn("catalog watch error", logx.Err(err))
				if strings.Contains(strings.ToLower(err.Error()), "overflow") {
					deb.trigger("all", c.reloadAll)
				}
			}
		}
		_ = w.Close()
		wait := nextWait()
		c.log.Warn("catalog watcher stopped; restarting", logx.Duration("backoff", wait))
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(wait):
		}
	}
}

func (c *Catalog) route(path string, deb *debouncer) {
	dir, base := filepath.Split(path)
	if filepath.Clean(dir) == filepath.Join(c.dir, SchemesDir) {
		ext := strings.ToLower(filepath.Ext(base))
		if ext != ".yml" && ext != ".yaml" {
			return
		}
		name := strings.TrimSuffix(base, filepath.Ext(base))
		deb.trigger("scheme:"+name, func() {
			c.Evict(name)
			if _, err := c.Scheme(name); err != nil {
				c.log.Warn("scheme reload failed", logx.String("scheme", name), logx.Err(err))
			} else {
				c.log.Info("scheme reloaded", logx.String("scheme", name))
			}
			c.notify("scheme:" + name)
		})
		return
	}
	var load func() error
	var what string
	switch base {
	case SchedulesFile:
		load, what = c.loadSchedules, "schedules"
	case VariablesFile:
		load, what = c.loadGlobals, "variables"
	case RandomTextFile:
		load, what = c.loadPools, "random_text"
	default:
		return
	}
	deb.trigger(what, func() {
		if err := load(); err != nil {
			c.log.Warn("catalog reload failed; keeping previous", logx.String("file", base), logx.Err(err))
			return
		}
		c.log.Info("catalog file reloaded", logx.String("file", base))
		c.notify(what)
	})
}

func (c *Catalog) reloadAll() {
	if err := c.Reload(); err != nil {
		c.log.Warn("catalog reload failed", logx.Err(err))
	}
}

// debouncer coalesces bursts of events per key (editors often write twice).
type debouncer struct {
	delay  time.Duration
	mu     sync.Mutex
	timers map[string]*time.Timer
}

func newDebouncer(delay time.Duration) *debouncer {
	return &debouncer{delay: delay, timers: map[string]*time.Timer{}}
}

func (d *debouncer) trigger(key string, fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if t, ok := d.timers[key]; ok {
		t.Stop()
	}
	d.timers[key] = time.AfterFunc(d.delay, func() {
		d.mu.Lock()
		delete(d.timers, key)
		d.mu.Unlock()
		fn()
	})
}

func (d *debouncer) stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for k, t := range d.timers {
		t.Stop()
		delete(d.timers, k)
	}
}
