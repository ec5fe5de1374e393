package scheme

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	yaml "go.yaml.in/yaml/v3"

	"joinmotd/internal/motd/motderr"
	"joinmotd/internal/motd/schedule"
	logx "joinmotd/pkg/logx"
)

const (
	SchemesDir      = "schemes"
	SchedulesFile   = "schedules.yml"
	VariablesFile   = "variables.yml"
	RandomTextFile  = "random_text.yml"
	TranslationsDir = "lang"
)

var schemeExts = []string{".yml", ".yaml"}

// entry caches one scheme lookup. A failed load is cached too so a broken
// file is not re-parsed on every join; the watcher evicts it on change.
type entry struct {
	scheme   *Scheme
	err      error
	loadedAt time.Time
}

// Catalog is the in-memory view of a data directory.
//
// Reads take a read lock only. Writers parse outside the lock and hold the
// write lock just long enough to swap a map entry or a slice header.
type Catalog struct {
	dir string
	log logx.Logger

	mu        sync.RWMutex
	schemes   map[string]entry
	schedules []schedule.Schedule
	globals   map[string]Variable
	pools     map[string][]string

	hookMu   sync.Mutex
	onReload []func(what string)
}

// Open prepares dir (creating defaults on first run) and loads the shared
// files. Schemes are loaded lazily on first use.
func Open(dir string, log logx.Logger) (*Catalog, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("scheme catalog: data dir is required")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	c := &Catalog{
		dir:     dir,
		log:     log,
		schemes: map[string]entry{},
		globals: map[string]Variable{},
		pools:   map[string][]string{},
	}
	if err := InitDefaults(dir, log); err != nil {
		return nil, err
	}
	if err := c.LoadShared(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Catalog) Dir() string { return c.dir }

// OnReload registers fn to run after any reload. what is "schemes",
// "scheme:<name>", "schedules", "variables" or "random_text".
func (c *Catalog) OnReload(fn func(what string)) {
	if fn == nil {
		return
	}
	c.hookMu.Lock()
	c.onReload = append(c.onReload, fn)
	c.hookMu.Unlock()
}

func (c *Catalog) notify(what string) {
	c.hookMu.Lock()
	hooks := slices.Clone(c.onReload)
	c.hookMu.Unlock()
	for _, fn := range hooks {
		fn(what)
	}
}

// LoadShared (re)loads schedules, global variables and random pools. A
// broken file keeps the previous value and returns an error.
func (c *Catalog) LoadShared() error {
	return errors.Join(c.loadSchedules(), c.loadGlobals(), c.loadPools())
}

func (c *Catalog) loadSchedules() error {
	var list []schedule.Schedule
	if err := readYAML(filepath.Join(c.dir, SchedulesFile), &list); err != nil {
		return fmt.Errorf("schedules: %w", err)
	}
	for i := range list {
		if err := list[i].Validate(); err != nil {
			return fmt.Errorf("schedules[%d]: %w", i, err)
		}
	}
	c.mu.Lock()
	c.schedules = list
	c.mu.Unlock()
	c.log.Debug("schedules loaded", logx.Int("count", len(list)))
	return nil
}

func (c *Catalog) loadGlobals() error {
	vars := map[string]Variable{}
	if err := readYAML(filepath.Join(c.dir, VariablesFile), &vars); err != nil {
		return fmt.Errorf("variables: %w", err)
	}
	if err := validateVariables(vars); err != nil {
		return fmt.Errorf("variables: %w", err)
	}
	c.mu.Lock()
	c.globals = vars
	c.mu.Unlock()
	return nil
}

func (c *Catalog) loadPools() error {
	pools := map[string][]string{}
	if err := readYAML(filepath.Join(c.dir, RandomTextFile), &pools); err != nil {
		return fmt.Errorf("random_text: %w", err)
	}
	c.mu.Lock()
	c.pools = pools
	c.mu.Unlock()
	return nil
}

// readYAML decodes path into out. A missing or empty file leaves out as is.
func readYAML(path string, out any) error {
	b, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	if len(bytes.TrimSpace(b)) == 0 {
		return nil
	}
	return yaml.Unmarshal(b, out)
}

// Scheme returns the named scheme, loading it on first use. Errors wrap
// motderr.ErrSchemeLoad.
func (c *Catalog) Scheme(name string) (*Scheme, error) {
	name = strings.TrimSpace(name)
	c.mu.RLock()
	e, ok := c.schemes[name]
	c.mu.RUnlock()
	if ok {
		return e.scheme, e.err
	}
	return c.ReloadScheme(name)
}

// ReloadScheme re-reads one scheme file and replaces its cache entry.
func (c *Catalog) ReloadScheme(name string) (*Scheme, error) {
	s, err := c.readScheme(name)
	if err != nil {
		err = fmt.Errorf("%w: %w", motderr.ErrSchemeLoad, err)
	}
	c.mu.Lock()
	if s == nil && errors.Is(err, fs.ErrNotExist) {
		// Unknown names are not cached; a file may appear later.
		delete(c.schemes, name)
	} else {
		c.schemes[name] = entry{scheme: s, err: err, loadedAt: time.Now()}
	}
	c.mu.Unlock()
	return s, err
}

func (c *Catalog) readScheme(name string) (*Scheme, error) {
	if name == "" || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return nil, fmt.Errorf("invalid scheme name %q", name)
	}
	for _, ext := range schemeExts {
		path := filepath.Join(c.dir, SchemesDir, name+ext)
		b, err := os.ReadFile(path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, err
		}
		s, err := ParseScheme(name, b)
		if err != nil {
			return nil, err
		}
		s.Source = path
		return s, nil
	}
	return nil, fmt.Errorf("scheme %q: %w", name, fs.ErrNotExist)
}

// Evict drops a cached scheme so the next lookup re-reads it.
func (c *Catalog) Evict(name string) {
	c.mu.Lock()
	delete(c.schemes, name)
	c.mu.Unlock()
}

// Names lists scheme names present on disk, sorted.
func (c *Catalog) Names() ([]string, error) {
	ents, err := os.ReadDir(filepath.Join(c.dir, SchemesDir))
	if err != nil {
		return nil, err
	}
	seen := map[string]struct{}{}
	var out []string
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		ext := filepath.Ext(e.Name())
		if !slices.Contains(schemeExts, strings.ToLower(ext)) {
			continue
		}
		name := strings.TrimSuffix(e.Name(), ext)
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	slices.Sort(out)
	return out, nil
}

// Listing is one row of All().
type Listing struct {
	Name   string
	Scheme *Scheme
	Err    error
}

// All loads every scheme on disk and returns them highest priority first,
// then by name. Broken schemes are included with Err set, sorted last.
func (c *Catalog) All() ([]Listing, error) {
	names, err := c.Names()
	if err != nil {
		return nil, err
	}
	out := make([]Listing, 0, len(names))
	for _, n := range names {
		s, err := c.Scheme(n)
		out = append(out, Listing{Name: n, Scheme: s, Err: err})
	}
	slices.SortStableFunc(out, func(a, b Listing) int {
		if (a.Err == nil) != (b.Err == nil) {
			if a.Err == nil {
				return -1
			}
			return 1
		}
		if a.Err == nil {
			if pa, pb := a.Scheme.EffectivePriority(), b.Scheme.EffectivePriority(); pa != pb {
				if pa > pb {
					return -1
				}
				return 1
			}
		}
		return strings.Compare(a.Name, b.Name)
	})
	return out, nil
}

// Schedules returns the current schedule list. Callers must not modify it.
func (c *Catalog) Schedules() []schedule.Schedule {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.schedules
}

// Globals returns the global variable map. Callers must not modify it.
func (c *Catalog) Globals() map[string]Variable {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.globals
}

// Pool returns a random text pool.
func (c *Catalog) Pool(name string) ([]string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.pools[name]
	return p, ok && len(p) > 0
}

// Priority returns the priority of a scheme, or DefaultPriority when it
// cannot be loaded. Used as the schedule fallback priority.
func (c *Catalog) Priority(name string) int {
	s, err := c.Scheme(name)
	if err != nil {
		return DefaultPriority
	}
	return s.EffectivePriority()
}

// Reload drops every cached scheme and reloads the shared files.
func (c *Catalog) Reload() error {
	c.mu.Lock()
	c.schemes = map[string]entry{}
	c.mu.Unlock()
	err := c.LoadShared()
	c.notify("schemes")
	return err
}
