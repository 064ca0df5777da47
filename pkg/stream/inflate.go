package stream

import (
	"fmt"
	"io"

	"github.com/klauspost/compress/zlib"
)

// InflateBufferSize is the fixed compressed input buffer of an Inflate.
const InflateBufferSize = 4 << 10

// inflateSource feeds the zlib engine from a fixed buffer and refills it from
// the base reader only once it is drained, never past the compressed size.
// Implementing io.ByteReader keeps zlib from wrapping it in its own bufio.
type inflateSource struct {
	base      io.Reader
	buf       [InflateBufferSize]byte
	r, w      int
	remaining int64
	consumed  int64
}

func (s *inflateSource) fill() error {
	if s.remaining <= 0 {
		return io.EOF
	}
	want := int64(len(s.buf))
	if want > s.remaining {
		want = s.remaining
	}
	n, err := s.base.Read(s.buf[:want])
	s.r, s.w = 0, n
	s.remaining -= int64(n)
	if n > 0 {
		return nil
	}
	switch err {
	case nil:
		return io.ErrNoProgress
	case io.EOF:
		return io.ErrUnexpectedEOF
	}
	return err
}

func (s *inflateSource) Read(p []byte) (int, error) {
	if s.r == s.w {
		if err := s.fill(); err != nil {
			return 0, err
		}
	}
	n := copy(p, s.buf[s.r:s.w])
	s.r += n
	s.consumed += int64(n)
	return n, nil
}

func (s *inflateSource) ReadByte() (byte, error) {
	if s.r == s.w {
		if err := s.fill(); err != nil {
			return 0, err
		}
	}
	b := s.buf[s.r]
	s.r++
	s.consumed++
	return b, nil
}

// Inflate is a read-only zlib decoding decorator over another reader.
// Tell reports compressed bytes consumed and Size the uncompressed size.
// Seek and Write panic.
//
// An Inflate is reset in place with ResetTo and reused across entries; data
// obtained before a reset must be copied out by the caller.
type Inflate struct {
	src    inflateSource
	zr     io.ReadCloser
	primed bool
	size   int64
	out    int64
	err    error
}

// NewInflate decodes size compressed bytes from base into uncompressedSize
// bytes.
func NewInflate(base io.Reader, size, uncompressedSize int64) *Inflate {
	z := &Inflate{}
	z.src.base = base
	z.ResetTo(size, uncompressedSize)
	return z
}

// ResetTo rewinds the decorator for a new entry. The base reader must already
// be positioned at the entry's first compressed byte.
func (z *Inflate) ResetTo(size, uncompressedSize int64) {
	z.src.r, z.src.w = 0, 0
	z.src.remaining = size
	z.src.consumed = 0
	z.size = uncompressedSize
	z.out = 0
	z.err = nil
	z.primed = false
}

func (z *Inflate) prime() error {
	z.primed = true
	if z.zr == nil {
		zr, err := zlib.NewReader(&z.src)
		if err != nil {
			return err
		}
		z.zr = zr
		return nil
	}
	return z.zr.(zlib.Resetter).Reset(&z.src, nil)
}

func (z *Inflate) fail(err error) (int, error) {
	z.err = fmt.Errorf("stream: inflate: %w", err)
	return 0, z.err
}

func (z *Inflate) Read(p []byte) (int, error) {
	if z.err != nil {
		return 0, z.err
	}
	if z.out >= z.size {
		return 0, io.EOF
	}
	if rest := z.size - z.out; int64(len(p)) > rest {
		p = p[:rest]
	}
	if !z.primed {
		if err := z.prime(); err != nil {
			return z.fail(err)
		}
	}

	n := 0
	for n < len(p) {
		m, err := z.zr.Read(p[n:])
		n += m
		if err == io.EOF {
			if n < len(p) {
				z.out += int64(n)
				return z.fail(io.ErrUnexpectedEOF)
			}
			break
		}
		if err != nil {
			z.out += int64(n)
			return z.fail(err)
		}
	}
	z.out += int64(n)
	return n, nil
}

func (z *Inflate) Write([]byte) (int, error) {
	panic("stream: inflate streams are read-only")
}

func (z *Inflate) Seek(int64, int) (int64, error) {
	panic("stream: inflate streams cannot seek")
}

func (z *Inflate) Tell() int64 { return z.src.consumed }
func (z *Inflate) Size() int64 { return z.size }
func (z *Inflate) OK() bool    { return z.err == nil }
