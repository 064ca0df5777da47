package task

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/corwinn/h3r-sub000/pkg/logger"
)

// Task is one unit of work executed by a Worker.
//
// Implementations must be comparable (pointer types): a Task is bound to the
// worker running it and binding is tracked by identity.
type Task interface {
	Run()
	Status() *State
}

var (
	bindingsMu sync.Mutex
	bindings   = make(map[Task]*Worker)
)

func bind(t Task, w *Worker) {
	bindingsMu.Lock()
	defer bindingsMu.Unlock()
	if owner, ok := bindings[t]; ok {
		panic(fmt.Sprintf("task: task %T is already bound to worker %q", t, owner.name))
	}
	bindings[t] = w
}

func unbind(t Task) {
	bindingsMu.Lock()
	delete(bindings, t)
	bindingsMu.Unlock()
}

// Worker owns one background goroutine that runs at most one Task at a time.
// Callers hand a task off with Assign and poll Done from their own loop.
type Worker struct {
	name string
	log  *slog.Logger

	queue    chan Task
	stop     chan struct{}
	ready    chan struct{}
	exited   chan struct{}
	stopOnce sync.Once

	mu      sync.Mutex
	dirty   bool
	stopped bool
	current Task
	done    chan struct{}
}

// Option configures a Worker.
type Option func(*Worker)

// WithLogger sets the logger used for worker diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(w *Worker) {
		if l != nil {
			w.log = l
		}
	}
}

// NewWorker starts a worker goroutine. Call Stop when the owner is torn down.
func NewWorker(name string, opts ...Option) *Worker {
	done := make(chan struct{})
	close(done)
	w := &Worker{
		name:   name,
		log:    logger.Default(),
		queue:  make(chan Task, 1),
		stop:   make(chan struct{}),
		ready:  make(chan struct{}),
		exited: make(chan struct{}),
		done:   done,
	}
	for _, opt := range opts {
		opt(w)
	}
	go w.loop()
	return w
}

func (w *Worker) loop() {
	defer close(w.exited)
	close(w.ready)
	for {
		select {
		case <-w.stop:
			// A task handed off right before Stop still runs.
			select {
			case t := <-w.queue:
				w.run(t)
			default:
			}
			w.log.Debug("Task worker exited", "worker", w.name)
			return
		case t := <-w.queue:
			w.run(t)
		}
	}
}

func (w *Worker) run(t Task) {
	t.Run()
	unbind(t)

	w.mu.Lock()
	w.dirty = false
	close(w.done)
	w.mu.Unlock()
}

// Assign hands t to the worker and returns immediately.
//
// It panics if a task is still in flight, if t is bound to another worker or
// if the worker has been stopped: all three can only come from caller bugs.
func (w *Worker) Assign(t Task) {
	if t == nil {
		panic("task: Assign called with a nil task")
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		panic(fmt.Sprintf("task: worker %q is stopped", w.name))
	}
	if w.dirty {
		panic(fmt.Sprintf("task: worker %q already has a task in flight", w.name))
	}
	bind(t, w)
	w.dirty = true
	w.current = t
	w.done = make(chan struct{})
	w.queue <- t
}

// Done reports whether the last assigned task has finished.
func (w *Worker) Done() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return !w.dirty
}

// Current returns the task in flight or the last one that ran.
func (w *Worker) Current() Task {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Completed returns a channel closed when the current task finishes.
// It is already closed while the worker is idle.
func (w *Worker) Completed() <-chan struct{} {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.done
}

// Wait blocks until the current task finishes or ctx ends. Interactive
// callers poll Done instead.
func (w *Worker) Wait(ctx context.Context) error {
	select {
	case <-w.Completed():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Name returns the worker name used in logs.
func (w *Worker) Name() string { return w.name }

// Stop waits for the worker goroutine to start, asks it to exit and joins
// it. A task in flight finishes first. Stop is idempotent.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() {
		<-w.ready
		w.mu.Lock()
		w.stopped = true
		w.mu.Unlock()
		close(w.stop)
		<-w.exited
	})
}
