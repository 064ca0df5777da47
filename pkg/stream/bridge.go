package stream

import (
	"fmt"
	"io"
	"sync/atomic"

	"github.com/corwinn/h3r-sub000/pkg/task"
)

// Op names a Bridge call.
type Op int

const (
	OpRead Op = iota
	OpWrite
	OpSeek
	OpTell
	OpSize
	OpOK
)

func (o Op) String() string {
	switch o {
	case OpRead:
		return "read"
	case OpWrite:
		return "write"
	case OpSeek:
		return "seek"
	case OpTell:
		return "tell"
	case OpSize:
		return "size"
	case OpOK:
		return "ok"
	default:
		return fmt.Sprintf("op(%d)", int(o))
	}
}

// Result is delivered to the completion callback of a Bridge call.
type Result struct {
	Op Op
	// N is the number of bytes moved by a read or write.
	N int
	// Pos is the stream position after the call.
	Pos  int64
	Size int64
	OK   bool
	Err  error
}

// Bridge runs the calls of a synchronous Stream on its own worker. Every call
// returns immediately; exactly one of the callbacks fires per call, on the
// worker goroutine. Only one call may be outstanding at a time: issuing a
// second one, or calling SetStream, before Busy turns false panics.
//
// Callbacks must not issue the next call themselves: the worker is still
// busy while they run.
type Bridge struct {
	worker     *task.Worker
	op         *bridgeOp
	canceled   atomic.Bool
	stream     Stream
	onComplete func(Result)
	onCanceled func(Op)
}

// NewBridge starts a bridge over s. onCanceled may be nil.
func NewBridge(s Stream, onComplete func(Result), onCanceled func(Op), opts ...task.Option) *Bridge {
	b := &Bridge{
		worker:     task.NewWorker("stream-bridge", opts...),
		stream:     s,
		onComplete: onComplete,
		onCanceled: onCanceled,
	}
	b.op = &bridgeOp{b: b}
	return b
}

// bridgeOp is the single reusable task of a Bridge; its fields are the
// request parameters of the outstanding call.
type bridgeOp struct {
	b    *Bridge
	kind Op
	buf  []byte
	pos  int64
	rep  task.Reporter
}

func (o *bridgeOp) Run() {
	b := o.b
	buf := o.buf
	o.buf = nil
	if b.canceled.Swap(false) {
		o.rep.Publish(100, o.kind.String()+" canceled", nil)
		if b.onCanceled != nil {
			b.onCanceled(o.kind)
		}
		return
	}

	s := b.stream
	res := Result{Op: o.kind}
	switch o.kind {
	case OpRead:
		res.N, res.Err = s.Read(buf)
	case OpWrite:
		res.N, res.Err = s.Write(buf)
	case OpSeek:
		_, res.Err = s.Seek(o.pos, io.SeekStart)
	}
	res.Pos = s.Tell()
	res.Size = s.Size()
	res.OK = s.OK()

	o.rep.Publish(100, o.kind.String()+" complete", nil)
	if b.onComplete != nil {
		b.onComplete(res)
	}
}

func (o *bridgeOp) Status() *task.State { return o.rep.Status() }

func (b *Bridge) dispatch(kind Op, buf []byte, pos int64) {
	if !b.worker.Done() {
		panic(fmt.Sprintf("stream: bridge %s issued while a call is outstanding", kind))
	}
	b.op.kind, b.op.buf, b.op.pos = kind, buf, pos
	b.op.rep.Publish(0, kind.String(), nil)
	b.canceled.Store(false)
	b.worker.Assign(b.op)
}

// Read reads up to len(buf) bytes into buf. buf must not be touched until
// the call completes.
func (b *Bridge) Read(buf []byte) { b.dispatch(OpRead, buf, 0) }

// Write writes buf. buf must not be touched until the call completes.
func (b *Bridge) Write(buf []byte) { b.dispatch(OpWrite, buf, 0) }

// Seek moves to the absolute position pos.
func (b *Bridge) Seek(pos int64) { b.dispatch(OpSeek, nil, pos) }

func (b *Bridge) Tell() { b.dispatch(OpTell, nil, 0) }
func (b *Bridge) Size() { b.dispatch(OpSize, nil, 0) }
func (b *Bridge) OK()   { b.dispatch(OpOK, nil, 0) }

// Cancel asks for the outstanding call to be skipped. It takes effect only if
// the call has not started yet; a running read is never interrupted.
func (b *Bridge) Cancel() { b.canceled.Store(true) }

// Busy reports whether a call is outstanding.
func (b *Bridge) Busy() bool { return !b.worker.Done() }

// Status returns the progress state of the last call.
func (b *Bridge) Status() *task.State { return b.op.Status() }

// Completed is closed when the outstanding call finishes.
func (b *Bridge) Completed() <-chan struct{} { return b.worker.Completed() }

// Stream returns the wrapped stream.
func (b *Bridge) Stream() Stream { return b.stream }

// SetStream replaces the wrapped stream. It panics while a call is outstanding.
func (b *Bridge) SetStream(s Stream) {
	if b.Busy() {
		panic("stream: SetStream while a bridge call is outstanding")
	}
	b.stream = s
}

// Close stops the bridge worker after the outstanding call.
func (b *Bridge) Close() { b.worker.Stop() }
