package stream

import (
	"io"
)

// Memory is a growable in-memory Stream. Backends that must decode an entry
// fully (RAR, 7z) fill one Memory per archive and reuse its buffer for every
// lookup.
type Memory struct {
	buf []byte
	pos int64
}

// NewMemory wraps data without copying it.
func NewMemory(data []byte) *Memory {
	return &Memory{buf: data}
}

// Fill replaces the contents with exactly n bytes read from r, reusing the
// existing buffer when it is large enough.
func (m *Memory) Fill(r io.Reader, n int64) error {
	if int64(cap(m.buf)) < n {
		m.buf = make([]byte, n)
	}
	m.buf = m.buf[:n]
	m.pos = 0
	_, err := io.ReadFull(r, m.buf)
	return err
}

// Bytes returns the current contents. Valid until the next Fill or Write.
func (m *Memory) Bytes() []byte { return m.buf }

func (m *Memory) Read(p []byte) (int, error) {
	if m.pos >= int64(len(m.buf)) {
		return 0, io.EOF
	}
	n := copy(p, m.buf[m.pos:])
	m.pos += int64(n)
	return n, nil
}

// ReadAt implements io.ReaderAt.
func (m *Memory) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || off >= int64(len(m.buf)) {
		return 0, io.EOF
	}
	n := copy(p, m.buf[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (m *Memory) Write(p []byte) (int, error) {
	end := m.pos + int64(len(p))
	if end > int64(len(m.buf)) {
		if end > int64(cap(m.buf)) {
			grown := make([]byte, end, 2*end)
			copy(grown, m.buf)
			m.buf = grown
		}
		m.buf = m.buf[:end]
	}
	copy(m.buf[m.pos:], p)
	m.pos = end
	return len(p), nil
}

func (m *Memory) Seek(offset int64, whence int) (int64, error) {
	pos, err := seekTarget(offset, whence, m.pos, int64(len(m.buf)))
	m.pos = pos
	return pos, err
}

func (m *Memory) Tell() int64 { return m.pos }
func (m *Memory) Size() int64 { return int64(len(m.buf)) }
func (m *Memory) OK() bool    { return true }
