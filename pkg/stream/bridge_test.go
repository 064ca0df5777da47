package stream

import (
	"testing"
	"time"
)

func waitBridge(t *testing.T, b *Bridge) {
	t.Helper()
	select {
	case <-b.Completed():
	case <-time.After(5 * time.Second):
		t.Fatal("bridge call did not complete")
	}
}

func TestBridgeCalls(t *testing.T) {
	results := make(chan Result, 8)
	b := NewBridge(NewMemory([]byte("0123456789")), func(r Result) { results <- r }, nil)
	defer b.Close()

	buf := make([]byte, 4)
	b.Read(buf)
	waitBridge(t, b)
	r := <-results
	if r.Op != OpRead || r.N != 4 || string(buf) != "0123" || r.Pos != 4 || r.Size != 10 || !r.OK {
		t.Fatalf("read result = %+v buf=%q", r, buf)
	}

	b.Seek(8)
	waitBridge(t, b)
	if r = <-results; r.Op != OpSeek || r.Err != nil || r.Pos != 8 {
		t.Fatalf("seek result = %+v", r)
	}

	b.Write([]byte("abcd"))
	waitBridge(t, b)
	if r = <-results; r.N != 4 || r.Size != 12 {
		t.Fatalf("write result = %+v", r)
	}

	b.Tell()
	waitBridge(t, b)
	if r = <-results; r.Op != OpTell || r.Pos != 12 {
		t.Fatalf("tell result = %+v", r)
	}
	if b.Busy() {
		t.Error("bridge should be idle")
	}
	if got := b.Status().Message(); got != "tell complete" {
		t.Errorf("status = %q", got)
	}
}

func TestBridgeCancelBeforeRun(t *testing.T) {
	completed, canceled := 0, make(chan Op, 1)
	b := NewBridge(NewMemory([]byte("data")), func(Result) { completed++ }, func(op Op) { canceled <- op })
	defer b.Close()

	// Request cancellation ahead of the worker picking the call up.
	b.op.kind, b.op.buf = OpRead, make([]byte, 2)
	b.Cancel()
	b.worker.Assign(b.op)
	waitBridge(t, b)

	if op := <-canceled; op != OpRead {
		t.Fatalf("canceled op = %v", op)
	}
	if completed != 0 {
		t.Fatal("a canceled call must not complete")
	}
	if b.Stream().Tell() != 0 {
		t.Error("a canceled read must not touch the stream")
	}

	// The flag is consumed; the next call runs normally.
	b.Read(make([]byte, 2))
	waitBridge(t, b)
	if completed != 1 {
		t.Fatalf("completed = %d, want 1", completed)
	}
}

func TestBridgeOneCallAtATime(t *testing.T) {
	release := make(chan struct{})
	b := NewBridge(NewMemory([]byte("data")), func(Result) { <-release }, nil)
	defer b.Close()

	b.Tell()
	mustPanic(t, "second call", func() { b.Size() })
	mustPanic(t, "SetStream while busy", func() { b.SetStream(NewMemory(nil)) })
	close(release)
	waitBridge(t, b)

	next := NewMemory([]byte("xyz"))
	b.SetStream(next)
	if b.Stream() != Stream(next) {
		t.Error("SetStream did not replace the stream")
	}
}
