package task

import (
	"sync"
	"testing"
)

func mustPanic(t *testing.T, name string, fn func()) {
	t.Helper()
	defer func() {
		if recover() == nil {
			t.Fatalf("%s: expected panic", name)
		}
	}()
	fn()
}

func TestStateParentLink(t *testing.T) {
	a := NewState(10, "child", nil)
	b := NewState(50, "parent", a)

	if a.ParentTaskState() != b {
		t.Fatalf("a.ParentTaskState() = %p, want %p", a.ParentTaskState(), b)
	}
	if b.SubTask() != a {
		t.Fatalf("b.SubTask() = %p, want %p", b.SubTask(), a)
	}
	if b.ParentTaskState() != nil {
		t.Errorf("root state should have no parent")
	}

	mustPanic(t, "second parent", func() { NewState(0, "other", a) })
}

func TestStateDepthLimit(t *testing.T) {
	var s *State
	for i := 0; i < MaxDepth; i++ {
		s = NewState(i, "level", s)
	}
	mustPanic(t, "too deep", func() { NewState(0, "overflow", s) })
}

func TestStateProgressClamp(t *testing.T) {
	tests := []struct {
		in   int
		want int
	}{
		{-5, 0},
		{0, 0},
		{42, 42},
		{100, 100},
		{250, 100},
	}
	for _, tt := range tests {
		if got := NewState(tt.in, "", nil).Progress(); got != tt.want {
			t.Errorf("NewState(%d).Progress() = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestIndeterminateState(t *testing.T) {
	s := NewIndeterminateState("scanning", nil)
	if s.PercentageProgress() {
		t.Error("indeterminate state reports percentage progress")
	}
	if s.Progress() != Indeterminate {
		t.Errorf("Progress() = %d, want Indeterminate", s.Progress())
	}
	if !NewState(1, "", nil).PercentageProgress() {
		t.Error("percentage state should default to PercentageProgress() == true")
	}
}

func TestStateCloneDetaches(t *testing.T) {
	inner := NewState(30, "inner", nil)
	outer := NewState(60, "outer", inner)

	c := outer.Clone()
	if c == outer || c.SubTask() == inner {
		t.Fatal("Clone must not share nodes with the original")
	}
	if c.ParentTaskState() != nil {
		t.Error("clone should be parentless")
	}
	if c.SubTask().ParentTaskState() != c {
		t.Error("cloned chain should keep its own back-references")
	}
	// The clone can be nested again even though the original is linked.
	wrapper := NewState(0, "wrapper", outer.Clone())
	if got := wrapper.Snapshot().String(); got != "wrapper 0% > outer 60% > inner 30%" {
		t.Errorf("Snapshot().String() = %q", got)
	}
}

func TestReporterChangedFlag(t *testing.T) {
	var r Reporter
	if s := r.Status(); s == nil || s.Progress() != 0 {
		t.Fatalf("zero Reporter Status() = %v", s)
	}

	first := r.Publish(10, "reading", nil)
	if !first.Changed() {
		t.Error("first publish should be changed")
	}
	same := r.Publish(10, "reading", nil)
	if same.Changed() {
		t.Error("identical publish should not be changed")
	}
	moved := r.Publish(11, "reading", nil)
	if !moved.Changed() {
		t.Error("progress change should be changed")
	}
}

func TestReporterNoTornReads(t *testing.T) {
	var r Reporter
	var wg sync.WaitGroup
	stop := make(chan struct{})

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; ; i++ {
			select {
			case <-stop:
				return
			default:
			}
			p := i % 101
			r.Publish(p, messageFor(p), nil)
		}
	}()

	for i := 0; i < 10000; i++ {
		s := r.Status()
		if s.Message() != "" && s.Message() != messageFor(s.Progress()) {
			close(stop)
			wg.Wait()
			t.Fatalf("torn state: progress=%d message=%q", s.Progress(), s.Message())
		}
	}
	close(stop)
	wg.Wait()
}

func messageFor(p int) string {
	if p%2 == 0 {
		return "even"
	}
	return "odd"
}
