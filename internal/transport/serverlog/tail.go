package serverlog

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	logx "joinmotd/pkg/logx"
)

const defaultPoll = time.Second

type Config struct {
	Path string
	// FromStart replays the existing file instead of seeking to its end.
	FromStart bool
	// Poll is the fallback read interval when no fsnotify event arrives.
	Poll time.Duration
}

type Tailer struct {
	cfg Config
	log logx.Logger
}

func NewTailer(cfg Config, log logx.Logger) *Tailer {
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.Poll <= 0 {
		cfg.Poll = defaultPoll
	}
	return &Tailer{cfg: cfg, log: log.With(logx.String("comp", "serverlog"))}
}

// Run follows the log until ctx is done, calling fn for every parsed event.
// Rotation (rename or truncate) reopens the file from its start. fn runs on
// the tail goroutine and must not block for long.
func (t *Tailer) Run(ctx context.Context, fn func(Event)) error {
	path := t.cfg.Path
	if path == "" {
		return errors.New("server_log.path is required")
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("serverlog watcher: %w", err)
	}
	defer w.Close()
	// Watch the directory: the log file itself is replaced on rotation.
	if err := w.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("serverlog watch %s: %w", filepath.Dir(path), err)
	}

	f := &follower{path: path, log: t.log}
	defer f.close()
	if err := f.open(!t.cfg.FromStart); err != nil {
		t.log.Warn("server log not readable yet", logx.String("path", path), logx.Err(err))
	} else {
		t.log.Info("tailing server log", logx.String("path", path), logx.Int64("offset", f.off))
	}

	poll := time.NewTicker(t.cfg.Poll)
	defer poll.Stop()

	for {
		if err := f.drain(fn); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return errors.New("serverlog watcher closed")
			}
			if filepath.Clean(ev.Name) != filepath.Clean(path) {
				continue
			}
			if ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename) || ev.Has(fsnotify.Remove) {
				t.log.Info("server log rotated", logx.String("op", ev.Op.String()))
				f.close()
			}
		case err, ok := <-w.Errors:
			if !ok {
				return errors.New("serverlog watcher closed")
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				t.log.Warn("serverlog watcher overflow", logx.Err(err))
				continue
			}
			return fmt.Errorf("serverlog watcher: %w", err)
		case <-poll.C:
		}
	}
}

type follower struct {
	path string
	log  logx.Logger
	f    *os.File
	r    *bufio.Reader
	off  int64
	part []byte
}

func (f *follower) open(seekEnd bool) error {
	file, err := os.Open(f.path)
	if err != nil {
		return err
	}
	var off int64
	if seekEnd {
		if off, err = file.Seek(0, io.SeekEnd); err != nil {
			_ = file.Close()
			return err
		}
	}
	f.f, f.r, f.off, f.part = file, bufio.NewReader(file), off, nil
	return nil
}

func (f *follower) close() {
	if f.f != nil {
		_ = f.f.Close()
	}
	f.f, f.r, f.part = nil, nil, nil
}

// drain reads every complete line available. A partial last line is kept
// until its newline arrives.
func (f *follower) drain(fn func(Event)) error {
	if f.f == nil {
		// Reopened after rotation: the new file is read from its start.
		if err := f.open(false); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil
			}
			return err
		}
	}
	if st, err := f.f.Stat(); err == nil && st.Size() < f.off {
		f.log.Info("server log truncated", logx.Int64("size", st.Size()), logx.Int64("offset", f.off))
		f.close()
		if err := f.open(false); err != nil {
			return nil
		}
	}
	for {
		chunk, err := f.r.ReadBytes('\n')
		f.off += int64(len(chunk))
		if len(chunk) > 0 {
			f.part = append(f.part, chunk...)
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("read server log: %w", err)
		}
		line := string(f.part)
		f.part = f.part[:0]
		if ev, ok := Parse(line); ok {
			fn(ev)
		}
	}
}
