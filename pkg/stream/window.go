package stream

import (
	"io"
)

// Window is a read-only view of [off, off+size) of an underlying reader.
// It owns no buffer. One Window is reset and reused for every lookup, so a
// previously handed-out view becomes invalid on ResetTo.
type Window struct {
	base io.ReaderAt
	off  int64
	size int64
	pos  int64
	ok   bool
}

// NewWindow creates a view of [off, off+size) of base.
func NewWindow(base io.ReaderAt, off, size int64) *Window {
	return &Window{base: base, off: off, size: size, ok: true}
}

// ResetTo moves the view to [off, off+size) and rewinds it.
func (w *Window) ResetTo(off, size int64) {
	w.off, w.size, w.pos, w.ok = off, size, 0, true
}

// Offset returns the view's start in the underlying reader.
func (w *Window) Offset() int64 { return w.off }

func (w *Window) Read(p []byte) (int, error) {
	if w.pos >= w.size {
		return 0, io.EOF
	}
	if rest := w.size - w.pos; int64(len(p)) > rest {
		p = p[:rest]
	}
	n, err := w.base.ReadAt(p, w.off+w.pos)
	w.pos += int64(n)
	if err == io.EOF {
		if n == len(p) {
			return n, nil
		}
		// The base ended inside the window.
		w.ok = false
		return n, io.ErrUnexpectedEOF
	}
	if err != nil {
		w.ok = false
	}
	return n, err
}

func (w *Window) Write([]byte) (int, error) {
	panic("stream: window streams are read-only")
}

func (w *Window) Seek(offset int64, whence int) (int64, error) {
	pos, err := seekTarget(offset, whence, w.pos, w.size)
	w.pos = pos
	return pos, err
}

func (w *Window) Tell() int64 { return w.pos }
func (w *Window) Size() int64 { return w.size }
func (w *Window) OK() bool    { return w.ok }
