package resource

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/corwinn/h3r-sub000/pkg/stream"
	"github.com/corwinn/h3r-sub000/pkg/task"
	"github.com/corwinn/h3r-sub000/pkg/vfs"
	"github.com/corwinn/h3r-sub000/pkg/walk"
)

// walkPollInterval paces how often LoadDir republishes the walker's status.
const walkPollInterval = 50 * time.Millisecond

type loadTask struct {
	m    *Manager
	info *Info
	path string
}

func (t *loadTask) Run() {
	msg := "loading " + filepath.Base(t.path)
	v, err := t.m.open(t.path, func(s *task.State) {
		t.info.rep.Publish(outer(s), msg, s)
	})
	if err != nil {
		t.info.err = fmt.Errorf("resource: load %s: %w", t.path, err)
		t.m.log.Warn("Archive skipped", "path", t.path, "err", err)
		t.info.rep.Publish(100, "failed "+filepath.Base(t.path), nil)
		return
	}
	t.m.activate(v)
	t.info.success = true
	t.info.loaded = []string{t.path}
	t.info.rep.Publish(100, "loaded "+filepath.Base(t.path), nil)
}

func (t *loadTask) Status() *task.State { return t.info.Status() }

// outer mirrors a backend's parse progress on the enclosing state.
func outer(s *task.State) int {
	if !s.PercentageProgress() {
		return 0
	}
	return s.Progress()
}

type loadDirTask struct {
	m    *Manager
	info *Info
	dir  string
}

func (t *loadDirTask) Run() {
	found, err := t.scan()
	if err != nil {
		t.info.err = fmt.Errorf("resource: scan %s: %w", t.dir, err)
		t.m.log.Warn("Archive scan failed", "dir", t.dir, "err", err)
		t.info.rep.Publish(100, "failed "+t.dir, nil)
		return
	}
	t.m.log.Debug("Archive scan complete", "dir", t.dir, "archives", len(found))

	var errs []error
	for i, path := range found {
		if t.m.closing.Load() {
			errs = append(errs, errors.New("manager closed"))
			break
		}
		pct := i * 100 / len(found)
		msg := fmt.Sprintf("loading %s (%d/%d)", filepath.Base(path), i+1, len(found))
		t.info.rep.Publish(pct, msg, nil)
		v, err := t.m.open(path, func(s *task.State) {
			t.info.rep.Publish(pct, msg, s)
		})
		if err != nil {
			t.m.log.Warn("Archive skipped", "path", path, "err", err)
			errs = append(errs, fmt.Errorf("%s: %w", path, err))
			continue
		}
		t.m.activate(v)
		t.info.loaded = append(t.info.loaded, path)
	}

	if len(errs) > 0 {
		t.info.err = fmt.Errorf("resource: load %s: %w", t.dir, errors.Join(errs...))
	}
	t.info.success = len(errs) == 0
	t.info.rep.Publish(100, fmt.Sprintf("loaded %d of %d archives", len(t.info.loaded), len(found)), nil)
}

// scan runs a walker over the directory and collects archive paths. The
// walker's status is nested under the task's own while it runs.
func (t *loadDirTask) scan() ([]string, error) {
	var (
		found   []string
		walkErr error
	)
	w := walk.New(t.m.fsys, t.dir,
		func(it walk.Item) bool {
			if !it.Dir && t.m.formats.IsArchive(it.Path) {
				found = append(found, it.Path)
			}
			return !t.m.closing.Load()
		},
		func(err error) { walkErr = err },
		walk.WithLogger(t.m.log),
	)
	defer w.Close()

	tick := time.NewTicker(walkPollInterval)
	defer tick.Stop()
	for done := false; !done; {
		select {
		case <-w.Finished():
			done = true
		case <-tick.C:
			// The walker keeps its own state; nest a detached copy.
			t.info.rep.PublishIndeterminate("scanning "+t.dir, w.Status().Clone())
		}
	}
	return found, walkErr
}

func (t *loadDirTask) Status() *task.State { return t.info.Status() }

type getTask struct {
	m    *Manager
	info *Info
	name string
}

func (t *getTask) Run() {
	m := t.m
	active := m.Archives()
	key := strings.ToLower(t.name)

	if m.cache != nil {
		if i, ok := m.cache.Get(key); ok && i < len(active) {
			if s, ok := active[i].Get(t.name); ok {
				t.found(s, active[i])
				return
			}
			m.cache.Remove(key)
		}
	}
	for i, v := range active {
		if s, ok := v.Get(t.name); ok {
			if m.cache != nil {
				m.cache.Add(key, i)
			}
			t.found(s, v)
			return
		}
	}
	t.info.err = fmt.Errorf("resource: %s not found in %d archives", t.name, len(active))
	m.log.Debug("Resource not found", "name", t.name, "archives", len(active))
	t.info.rep.Publish(100, "not found "+t.name, nil)
}

func (t *getTask) found(s stream.Stream, v vfs.VFS) {
	t.info.stream = s
	t.info.success = true
	t.info.rep.Publish(100, "found "+t.name+" in "+filepath.Base(v.Path()), nil)
}

func (t *getTask) Status() *task.State { return t.info.Status() }

type enumerateTask struct {
	m    *Manager
	info *Info
	fn   func(vfs.VFS, vfs.Entry) bool
}

func (t *enumerateTask) Run() {
	active := t.m.Archives()
	total := len(active)
	for i, v := range active {
		t.info.rep.Publish(i*100/total, "enumerating "+filepath.Base(v.Path()), nil)
		if !v.Walk(func(e vfs.Entry) bool { return t.fn(v, e) }) {
			t.info.rep.Publish((i+1)*100/total, "enumeration stopped", nil)
			t.info.success = true
			return
		}
	}
	t.info.success = true
	t.info.rep.Publish(100, fmt.Sprintf("enumerated %d archives", total), nil)
}

func (t *enumerateTask) Status() *task.State { return t.info.Status() }
