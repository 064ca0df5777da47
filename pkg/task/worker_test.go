package task

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/corwinn/h3r-sub000/pkg/logger"
)

// gateTask blocks in Run until release is closed.
type gateTask struct {
	started chan struct{}
	release chan struct{}
	rep     Reporter
}

func newGateTask() *gateTask {
	return &gateTask{started: make(chan struct{}), release: make(chan struct{})}
}

func (g *gateTask) Run() {
	close(g.started)
	<-g.release
	g.rep.Publish(100, "done", nil)
}

func (g *gateTask) Status() *State { return g.rep.Status() }

type recordTask struct {
	id  int
	mu  *sync.Mutex
	log *[]int
	rep Reporter
}

func (r *recordTask) Run() {
	r.mu.Lock()
	*r.log = append(*r.log, r.id)
	r.mu.Unlock()
	r.rep.Publish(100, "recorded", nil)
}

func (r *recordTask) Status() *State { return r.rep.Status() }

func waitDone(t *testing.T, w *Worker) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := w.Wait(ctx); err != nil {
		t.Fatalf("waiting for worker %s: %v", w.Name(), err)
	}
}

func TestWorkerAssignAndDone(t *testing.T) {
	w := NewWorker("test", WithLogger(logger.Discard()))
	defer w.Stop()

	if !w.Done() {
		t.Fatal("idle worker should report Done")
	}

	g := newGateTask()
	w.Assign(g)
	<-g.started
	if w.Done() {
		t.Fatal("worker reports Done while task runs")
	}

	mustPanic(t, "assign while busy", func() { w.Assign(newGateTask()) })

	close(g.release)
	waitDone(t, w)

	if !w.Done() {
		t.Fatal("worker should be Done after Run returned")
	}
	if s := g.Status(); s.Progress() != 100 || s.Message() != "done" {
		t.Errorf("Status() = %v, want done 100%%", s)
	}
	if w.Current() != Task(g) {
		t.Errorf("Current() should be the last task")
	}
}

func TestWorkerTaskReusableAfterDone(t *testing.T) {
	w := NewWorker("reuse", WithLogger(logger.Discard()))
	defer w.Stop()

	var mu sync.Mutex
	var log []int
	task := &recordTask{id: 7, mu: &mu, log: &log}
	for i := 0; i < 3; i++ {
		w.Assign(task)
		waitDone(t, w)
	}
	if len(log) != 3 {
		t.Fatalf("task ran %d times, want 3", len(log))
	}
}

func TestWorkerOwnershipAcrossWorkers(t *testing.T) {
	w1 := NewWorker("one", WithLogger(logger.Discard()))
	defer w1.Stop()
	w2 := NewWorker("two", WithLogger(logger.Discard()))
	defer w2.Stop()

	g := newGateTask()
	w1.Assign(g)
	<-g.started

	mustPanic(t, "bound elsewhere", func() { w2.Assign(g) })
	if !w2.Done() {
		t.Error("failed Assign must leave the second worker idle")
	}

	close(g.release)
	waitDone(t, w1)

	// Released binding: the other worker may take it now.
	g2 := &recordTask{id: 1, mu: &sync.Mutex{}, log: new([]int)}
	w2.Assign(g2)
	waitDone(t, w2)
}

func TestWorkerHandOffOrder(t *testing.T) {
	w := NewWorker("order", WithLogger(logger.Discard()))
	defer w.Stop()

	var mu sync.Mutex
	var log []int
	for i := 1; i <= 20; i++ {
		w.Assign(&recordTask{id: i, mu: &mu, log: &log})
		waitDone(t, w)
	}
	for i, id := range log {
		if id != i+1 {
			t.Fatalf("log[%d] = %d, want %d", i, id, i+1)
		}
	}
}

func TestWorkerStop(t *testing.T) {
	w := NewWorker("stop", WithLogger(logger.Discard()))

	var mu sync.Mutex
	var log []int
	w.Assign(&recordTask{id: 1, mu: &mu, log: &log})
	w.Stop()
	w.Stop()

	if len(log) != 1 {
		t.Fatalf("task handed off before Stop ran %d times, want 1", len(log))
	}
	mustPanic(t, "assign after stop", func() { w.Assign(&recordTask{id: 2, mu: &mu, log: &log}) })
}

func TestWorkerStopImmediately(t *testing.T) {
	// Construction and teardown back to back must not race the goroutine start.
	for i := 0; i < 100; i++ {
		NewWorker("flash", WithLogger(logger.Discard())).Stop()
	}
}
