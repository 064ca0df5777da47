// Package walk enumerates a directory tree on a background worker and reports
// every entry through a callback.
package walk

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync/atomic"

	"github.com/spf13/afero"

	"github.com/corwinn/h3r-sub000/pkg/logger"
	"github.com/corwinn/h3r-sub000/pkg/task"
)

// Item is one entry found by a Walker.
type Item struct {
	// Seq starts at 1 and strictly increases within one walk.
	Seq  uint64
	Path string
	Name string
	Dir  bool
	Size int64
}

// Option configures a Walker.
type Option func(*Walker)

// WithLogger sets the logger used for skipped directories and entries.
func WithLogger(l *slog.Logger) Option {
	return func(w *Walker) {
		if l != nil {
			w.log = l
		}
	}
}

// Walker lists root depth-first on its own worker. Children of a directory are
// reported in name order before any of its sub-directories is entered.
//
// onItem runs on the walker goroutine; returning false ends the walk. onDone
// is called exactly once when the walk ends, with nil after a complete walk or
// a stop, and with the error when root could not be listed.
type Walker struct {
	fsys   afero.Fs
	root   string
	onItem func(Item) bool
	onDone func(error)
	log    *slog.Logger

	worker   *task.Worker
	job      *walkJob
	stop     atomic.Bool
	complete atomic.Bool
	seq      uint64
}

// New starts walking root.
func New(fsys afero.Fs, root string, onItem func(Item) bool, onDone func(error), opts ...Option) *Walker {
	w := &Walker{
		fsys:   fsys,
		root:   root,
		onItem: onItem,
		onDone: onDone,
		log:    logger.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.job = &walkJob{w: w}
	w.job.rep.PublishIndeterminate("walking "+root, nil)
	w.worker = task.NewWorker("walk", task.WithLogger(w.log))
	w.worker.Assign(w.job)
	return w
}

type walkJob struct {
	w   *Walker
	rep task.Reporter
}

func (j *walkJob) Run() {
	w := j.w
	err := w.walk(&j.rep)
	if err != nil {
		w.log.Warn("Directory walk failed", "root", w.root, "err", err)
		j.rep.PublishIndeterminate("walk failed: "+w.root, nil)
	} else {
		j.rep.PublishIndeterminate(fmt.Sprintf("walked %s (%d entries)", w.root, w.seq), nil)
	}
	if w.onDone != nil {
		w.onDone(err)
	}
	w.complete.Store(true)
}

func (j *walkJob) Status() *task.State { return j.rep.Status() }

func (w *Walker) walk(rep *task.Reporter) error {
	info, err := w.fsys.Stat(w.root)
	if err != nil {
		return fmt.Errorf("walk %s: %w", w.root, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("walk %s: not a directory", w.root)
	}

	stack := []string{w.root}
	for len(stack) > 0 {
		if w.stop.Load() {
			return nil
		}
		dir := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		rep.PublishIndeterminate("listing "+dir, nil)
		names, err := w.list(dir)
		if err != nil {
			if dir == w.root {
				return fmt.Errorf("walk %s: %w", dir, err)
			}
			w.log.Warn("Skipping unreadable directory", "dir", dir, "err", err)
			continue
		}

		var subdirs []string
		for _, name := range names {
			if w.stop.Load() {
				return nil
			}
			p := filepath.Join(dir, name)
			fi, link, err := w.stat(p)
			if err != nil {
				w.log.Debug("Skipping entry", "path", p, "err", err)
				continue
			}
			w.seq++
			it := Item{Seq: w.seq, Path: p, Name: name, Dir: fi.IsDir()}
			if it.Dir {
				if link {
					w.log.Debug("Not following directory link", "path", p)
				} else {
					subdirs = append(subdirs, p)
				}
			} else {
				it.Size = fi.Size()
			}
			if w.onItem != nil && !w.onItem(it) {
				w.stop.Store(true)
				return nil
			}
		}
		// Reverse, so the first sub-directory in name order pops first.
		for i := len(subdirs) - 1; i >= 0; i-- {
			stack = append(stack, subdirs[i])
		}
	}
	return nil
}

// stat describes the target of p and reports whether p is a symlink. Linked
// directories are reported but never descended into.
func (w *Walker) stat(p string) (os.FileInfo, bool, error) {
	ls, ok := w.fsys.(afero.Lstater)
	if !ok {
		fi, err := w.fsys.Stat(p)
		return fi, false, err
	}
	fi, _, err := ls.LstatIfPossible(p)
	if err != nil {
		return nil, false, err
	}
	if fi.Mode()&os.ModeSymlink == 0 {
		return fi, false, nil
	}
	target, err := w.fsys.Stat(p)
	if err != nil {
		return nil, true, err
	}
	return target, true, nil
}

func (w *Walker) list(dir string) ([]string, error) {
	f, err := w.fsys.Open(dir)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	names, err := f.Readdirnames(-1)
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	return names, nil
}

// Stop asks the walk to end before the next entry.
func (w *Walker) Stop() { w.stop.Store(true) }

// Stopped reports whether the walk was stopped early.
func (w *Walker) Stopped() bool { return w.stop.Load() }

// Complete reports whether onDone has returned.
func (w *Walker) Complete() bool { return w.complete.Load() }

// Status returns the walk's indeterminate progress state.
func (w *Walker) Status() *task.State { return w.job.Status() }

// Finished is closed when the walk has ended and onDone returned.
func (w *Walker) Finished() <-chan struct{} { return w.worker.Completed() }

// Wait blocks until the walk ends or ctx is done.
func (w *Walker) Wait(ctx context.Context) error { return w.worker.Wait(ctx) }

// Close stops the walk and its worker.
func (w *Walker) Close() {
	w.Stop()
	w.worker.Stop()
}
