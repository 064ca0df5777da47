// Package resource owns the loaded archives and serves lookups from them on
// a single IO worker.
package resource

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/spf13/afero"

	"github.com/corwinn/h3r-sub000/pkg/logger"
	"github.com/corwinn/h3r-sub000/pkg/task"
	"github.com/corwinn/h3r-sub000/pkg/vfs"
)

// DefaultLookupCacheSize is the number of resolved names remembered.
const DefaultLookupCacheSize = 1024

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the manager's logger. It is also handed to the backends.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.log = l
		}
	}
}

// WithVFSOptions sets the options every backend is opened with. OnProgress is
// owned by the manager and ignored.
func WithVFSOptions(o vfs.Options) Option {
	return func(m *Manager) { m.vopts = o }
}

// WithLookupCache sets the size of the name lookup cache; 0 disables it.
func WithLookupCache(size int) Option {
	return func(m *Manager) { m.cacheSize = size }
}

// WithoutBuiltinFormats starts the manager with an empty format registry.
func WithoutBuiltinFormats() Option {
	return func(m *Manager) { m.builtin = false }
}

// Manager keeps the active archives in load order. Load, LoadDir,
// GetResource and Enumerate run one at a time on the manager's IO worker:
// each returns an *Info immediately and the caller polls TaskComplete.
// Starting an operation while one is in flight panics.
type Manager struct {
	fsys      afero.Fs
	log       *slog.Logger
	vopts     vfs.Options
	formats   vfs.Registry
	builtin   bool
	cacheSize int

	worker  *task.Worker
	closing atomic.Bool

	mu     sync.RWMutex
	active []vfs.VFS
	cache  *lru.Cache[string, int]
}

// New creates a manager reading archives from fsys.
func New(fsys afero.Fs, opts ...Option) *Manager {
	m := &Manager{
		fsys:      fsys,
		log:       logger.Default(),
		builtin:   true,
		cacheSize: DefaultLookupCacheSize,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.vopts.Logger == nil {
		m.vopts.Logger = m.log
	}
	if m.builtin {
		for _, f := range vfs.Builtin() {
			m.formats.Register(f)
		}
	}
	if m.cacheSize > 0 {
		c, err := lru.New[string, int](m.cacheSize)
		if err != nil {
			m.log.Warn("Lookup cache disabled", "size", m.cacheSize, "err", err)
		} else {
			m.cache = c
		}
	}
	m.worker = task.NewWorker("resource-io", task.WithLogger(m.log))
	return m
}

// Register adds a container format, probed after the ones registered before
// it. A duplicate name panics.
func (m *Manager) Register(f vfs.Format) { m.formats.Register(f) }

// Formats returns the registered formats in probe order.
func (m *Manager) Formats() []vfs.Format { return m.formats.Formats() }

// Load opens path with the first registered format that accepts it and
// appends it to the active archives.
func (m *Manager) Load(path string) *Info {
	info := newInfo(path, "loading "+filepath.Base(path))
	m.worker.Assign(&loadTask{m: m, info: info, path: path})
	return info
}

// LoadDir walks dir for archives of the registered formats and loads each
// one in name order.
func (m *Manager) LoadDir(dir string) *Info {
	info := newInfo(dir, "scanning "+dir)
	m.worker.Assign(&loadDirTask{m: m, info: info, dir: dir})
	return info
}

// GetResource looks name up in the active archives, in load order.
func (m *Manager) GetResource(name string) *Info {
	info := newInfo(name, "looking up "+name)
	m.worker.Assign(&getTask{m: m, info: info, name: name})
	return info
}

// Enumerate calls fn for every entry of every active archive until fn returns
// false. fn runs on the IO worker.
func (m *Manager) Enumerate(fn func(v vfs.VFS, e vfs.Entry) bool) *Info {
	info := newInfo("", "enumerating")
	m.worker.Assign(&enumerateTask{m: m, info: info, fn: fn})
	return info
}

// TaskComplete reports whether the last operation has finished.
func (m *Manager) TaskComplete() bool { return m.worker.Done() }

// Wait blocks until the last operation finishes or ctx ends.
func (m *Manager) Wait(ctx context.Context) error { return m.worker.Wait(ctx) }

// Archives returns the active archives in load order.
func (m *Manager) Archives() []vfs.VFS {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]vfs.VFS, len(m.active))
	copy(out, m.active)
	return out
}

// Close stops the IO worker after the operation in flight and closes every
// archive.
func (m *Manager) Close() error {
	m.closing.Store(true)
	m.worker.Stop()

	m.mu.Lock()
	defer m.mu.Unlock()
	var errs []error
	for _, v := range m.active {
		if err := v.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", v.Path(), err))
		}
	}
	m.active = nil
	return errors.Join(errs...)
}

// open probes the candidate formats for path. onProgress receives each
// backend's parse progress.
func (m *Manager) open(path string, onProgress func(*task.State)) (vfs.VFS, error) {
	candidates := m.formats.Candidates(path)
	if len(candidates) == 0 {
		return nil, errors.New("no formats registered")
	}
	var errs []error
	for _, f := range candidates {
		opts := m.vopts
		opts.OnProgress = onProgress
		v := f.Open(m.fsys, path, opts)
		if v.Usable() {
			return v, nil
		}
		errs = append(errs, v.Err())
		v.Close()
	}
	return nil, errors.Join(errs...)
}

func (m *Manager) activate(v vfs.VFS) {
	m.mu.Lock()
	m.active = append(m.active, v)
	m.mu.Unlock()
	if m.cache != nil {
		m.cache.Purge()
	}
	m.log.Info("Archive loaded", "format", v.Format(), "path", v.Path(), "entries", v.Len())
}
