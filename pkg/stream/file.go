package stream

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/afero"

	"github.com/corwinn/h3r-sub000/pkg/logger"
)

// RetryPolicy controls how often a failing file operation is retried before
// it is escalated to a panic carrying *IOError.
type RetryPolicy struct {
	// Attempts is the total number of tries, including the first. Values
	// below 1 mean 1.
	Attempts int
	// Delay is the pause between tries.
	Delay time.Duration
	// AskRetry, when set, is consulted after each failure; returning false
	// stops retrying early.
	AskRetry func(op string, err error) bool
}

// DefaultRetryPolicy retries three times with a short pause.
var DefaultRetryPolicy = RetryPolicy{Attempts: 3, Delay: 50 * time.Millisecond}

func (p RetryPolicy) attempts() int {
	if p.Attempts < 1 {
		return 1
	}
	return p.Attempts
}

// File is a Stream over a file of an afero filesystem. Reads and writes are
// positional (ReadAt/WriteAt) so a failed call can be retried as is.
type File struct {
	f      afero.File
	name   string
	size   int64
	pos    int64
	ok     bool
	policy RetryPolicy
	log    *slog.Logger
}

// Open opens name read-only. Missing files and permission problems are
// returned as errors; other failures are retried per policy.
func Open(fsys afero.Fs, name string, policy RetryPolicy, log *slog.Logger) (*File, error) {
	return openFile(fsys, name, os.O_RDONLY, policy, log)
}

// Create creates (or truncates) name for writing.
func Create(fsys afero.Fs, name string, policy RetryPolicy, log *slog.Logger) (*File, error) {
	return openFile(fsys, name, os.O_RDWR|os.O_CREATE|os.O_TRUNC, policy, log)
}

func openFile(fsys afero.Fs, name string, flag int, policy RetryPolicy, log *slog.Logger) (*File, error) {
	if log == nil {
		log = logger.Default()
	}
	s := &File{name: name, policy: policy, log: log, ok: true}

	var err error
	for attempt := 1; ; attempt++ {
		s.f, err = fsys.OpenFile(name, flag, 0o644)
		if err == nil {
			break
		}
		if errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrPermission) {
			return nil, fmt.Errorf("open %s: %w", name, err)
		}
		if !s.again("open", err, attempt) {
			panic(&IOError{Op: "open", Path: name, Err: err})
		}
	}

	info, err := s.f.Stat()
	if err != nil {
		s.f.Close()
		return nil, fmt.Errorf("stat %s: %w", name, err)
	}
	if info.IsDir() {
		s.f.Close()
		return nil, fmt.Errorf("open %s: is a directory", name)
	}
	s.size = info.Size()
	return s, nil
}

// again logs a failure and reports whether another attempt should be made.
func (s *File) again(op string, err error, attempt int) bool {
	s.log.Warn("File operation failed", "op", op, "file", s.name, "attempt", attempt, "err", err)
	if attempt >= s.policy.attempts() {
		return false
	}
	if s.policy.AskRetry != nil && !s.policy.AskRetry(op, err) {
		return false
	}
	if s.policy.Delay > 0 {
		time.Sleep(s.policy.Delay)
	}
	return true
}

// do runs fn until it succeeds, returns io.EOF, or the policy gives up.
func (s *File) do(op string, fn func() error) error {
	for attempt := 1; ; attempt++ {
		err := fn()
		if err == nil || errors.Is(err, io.EOF) {
			return err
		}
		if !s.again(op, err, attempt) {
			s.ok = false
			panic(&IOError{Op: op, Path: s.name, Err: err})
		}
	}
}

// ReadAt implements io.ReaderAt with retries. It does not move the position.
func (s *File) ReadAt(p []byte, off int64) (int, error) {
	var n int
	err := s.do("read", func() error {
		var err error
		n, err = s.f.ReadAt(p, off)
		return err
	})
	return n, err
}

func (s *File) Read(p []byte) (int, error) {
	if s.pos >= s.size {
		return 0, io.EOF
	}
	n, err := s.ReadAt(p, s.pos)
	s.pos += int64(n)
	if err == io.EOF && n > 0 {
		err = nil
	}
	return n, err
}

func (s *File) Write(p []byte) (int, error) {
	var n int
	err := s.do("write", func() error {
		var err error
		n, err = s.f.WriteAt(p, s.pos)
		return err
	})
	s.pos += int64(n)
	if s.pos > s.size {
		s.size = s.pos
	}
	return n, err
}

func (s *File) Seek(offset int64, whence int) (int64, error) {
	pos, err := seekTarget(offset, whence, s.pos, s.size)
	s.pos = pos
	return pos, err
}

func (s *File) Tell() int64 { return s.pos }
func (s *File) Size() int64 { return s.size }
func (s *File) OK() bool    { return s.ok }

// Name returns the path the file was opened with.
func (s *File) Name() string { return s.name }

// Close closes the underlying file.
func (s *File) Close() error { return s.f.Close() }
