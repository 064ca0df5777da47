// Package vfs opens game archive containers (LOD, SND, VID, plus RAR and 7z)
// and exposes their entries as streams.
//
// Every backend hands out one reused stream per instance: calling Get
// invalidates the stream returned by the previous Get on the same VFS.
// Callers needing the data across lookups must copy it out first.
package vfs

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"github.com/corwinn/h3r-sub000/pkg/logger"
	"github.com/corwinn/h3r-sub000/pkg/stream"
	"github.com/corwinn/h3r-sub000/pkg/task"
)

var (
	ErrBadSignature = errors.New("vfs: bad signature")
	ErrEntryCount   = errors.New("vfs: entry count out of range")
	ErrEntryBounds  = errors.New("vfs: entry outside the file")
	ErrSizeMismatch = errors.New("vfs: entry size does not match its neighbours")
	ErrTruncated    = errors.New("vfs: file too short")
)

// Entry is one file inside a container. Entry tables are immutable once
// parsed.
type Entry struct {
	Name   string
	Offset int64
	// Size is the uncompressed size.
	Size int64
	// CompressedSize is the stored size of a compressed LOD entry, 0 otherwise.
	CompressedSize int64
	Type           uint32
}

// Compressed reports whether the entry is stored zlib-compressed.
func (e Entry) Compressed() bool {
	return e.CompressedSize > 0 && e.CompressedSize < e.Size
}

// VFS is an opened archive container.
type VFS interface {
	Format() string
	Path() string
	// Usable is false when the container failed validation; Err holds why.
	Usable() bool
	Err() error
	Len() int
	Entries() []Entry
	// Walk calls fn for every entry in table order until fn returns false.
	// It reports whether every entry was visited.
	Walk(fn func(Entry) bool) bool
	// Get looks name up case-insensitively and returns the instance's reused
	// stream positioned at the start of the entry.
	Get(name string) (stream.Stream, bool)
	// Fingerprint is a BLAKE3 digest of the entry table.
	Fingerprint() [32]byte
	Close() error
}

// Options are shared by every backend.
type Options struct {
	// Charset is the encoding label of entry names (default windows-1252).
	Charset string
	Retry   stream.RetryPolicy
	Logger  *slog.Logger
	// OnProgress receives parse progress while the container is opened.
	OnProgress func(*task.State)
}

func (o *Options) logger() *slog.Logger {
	if o.Logger == nil {
		return logger.Default()
	}
	return o.Logger
}

// table holds what every backend shares: the open file, the entry table and
// the validation outcome.
type table struct {
	format  string
	path    string
	file    *stream.File
	entries []Entry
	index   map[string]int
	err     error
	log     *slog.Logger
	names   *nameDecoder
	opts    Options
	lastPct int
}

func newTable(format string, fsys afero.Fs, path string, opts Options, hashed bool) *table {
	t := &table{
		format:  format,
		path:    path,
		log:     opts.logger(),
		opts:    opts,
		lastPct: -1,
	}
	t.names = newNameDecoder(opts.Charset, t.log)
	if hashed {
		t.index = make(map[string]int)
	}
	f, err := stream.Open(fsys, path, opts.Retry, t.log)
	if err != nil {
		t.fail(err)
		return t
	}
	t.file = f
	return t
}

// fail records why the container is not usable.
func (t *table) fail(err error) {
	t.err = fmt.Errorf("%s %s: %w", t.format, filepath.Base(t.path), err)
	t.entries = nil
	t.log.Warn("Archive not usable", "format", t.format, "path", t.path, "err", err)
}

func (t *table) header(n int) ([]byte, error) {
	if t.file.Size() < int64(n) {
		return nil, fmt.Errorf("%w: %d bytes, header needs %d", ErrTruncated, t.file.Size(), n)
	}
	return t.read(0, n)
}

func (t *table) read(off int64, n int) ([]byte, error) {
	buf := make([]byte, n)
	got, err := t.file.ReadAt(buf, off)
	if got == n {
		return buf, nil
	}
	if err == nil || err == io.EOF {
		err = io.ErrUnexpectedEOF
	}
	return nil, fmt.Errorf("%w: %v", ErrTruncated, err)
}

func (t *table) progress(i, count int) {
	if t.opts.OnProgress == nil || count == 0 {
		return
	}
	pct := i * 100 / count
	if pct == t.lastPct {
		return
	}
	t.lastPct = pct
	t.opts.OnProgress(task.NewState(pct, "parsing "+filepath.Base(t.path), nil))
}

func (t *table) add(e Entry) {
	if t.index != nil {
		key := strings.ToLower(e.Name)
		if _, dup := t.index[key]; !dup {
			t.index[key] = len(t.entries)
		}
	}
	t.entries = append(t.entries, e)
}

func (t *table) lookup(name string) (Entry, bool) {
	if t.err != nil {
		return Entry{}, false
	}
	if t.index != nil {
		i, ok := t.index[strings.ToLower(name)]
		if !ok {
			return Entry{}, false
		}
		return t.entries[i], true
	}
	for _, e := range t.entries {
		if strings.EqualFold(e.Name, name) {
			return e, true
		}
	}
	return Entry{}, false
}

func (t *table) Format() string   { return t.format }
func (t *table) Path() string     { return t.path }
func (t *table) Usable() bool     { return t.err == nil }
func (t *table) Err() error       { return t.err }
func (t *table) Len() int         { return len(t.entries) }
func (t *table) Entries() []Entry { return t.entries }

func (t *table) Walk(fn func(Entry) bool) bool {
	for _, e := range t.entries {
		if !fn(e) {
			return false
		}
	}
	return true
}

func (t *table) Fingerprint() [32]byte { return fingerprint(t.format, t.entries) }

func (t *table) Close() error {
	if t.file == nil {
		return nil
	}
	return t.file.Close()
}
