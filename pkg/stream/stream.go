// Package stream holds the stream types handed out by the VFS layer: a
// retrying file stream, reusable window and zlib inflate views over it, a
// reusable memory stream, and Bridge, which runs a synchronous stream's calls
// on a background worker.
package stream

import (
	"errors"
	"fmt"
	"io"
)

// Stream is a positioned byte stream with a known size.
type Stream interface {
	io.Reader
	io.Writer
	io.Seeker
	// Tell returns the current position.
	Tell() int64
	// Size returns the total size in bytes.
	Size() int64
	// OK is false once the stream hit an unrecoverable error.
	OK() bool
}

// ErrSeekRange is returned when a seek lands outside the stream.
var ErrSeekRange = errors.New("stream: seek out of range")

// IOError is the panic value raised when an I/O operation still fails after
// every retry.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("stream: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// seekTarget resolves an io.Seeker request against pos and size.
func seekTarget(offset int64, whence int, pos, size int64) (int64, error) {
	var target int64
	switch whence {
	case io.SeekStart:
		target = offset
	case io.SeekCurrent:
		target = pos + offset
	case io.SeekEnd:
		target = size + offset
	default:
		return pos, errors.New("stream: invalid whence")
	}
	if target < 0 || target > size {
		return pos, fmt.Errorf("%w: %d not in [0,%d]", ErrSeekRange, target, size)
	}
	return target, nil
}
