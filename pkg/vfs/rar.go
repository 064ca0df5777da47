package vfs

import (
	"errors"
	"fmt"
	"io"

	"github.com/javi11/rardecode/v2"
	"github.com/spf13/afero"

	"github.com/corwinn/h3r-sub000/pkg/stream"
	"github.com/corwinn/h3r-sub000/pkg/task"
)

// RAR exposes the files of a single-volume RAR archive. RAR data is solid
// and sequential, so Get decodes the entry into the instance's reused memory
// stream. Entry.Offset is the entry's ordinal in the archive.
type RAR struct {
	*table
	fsys afero.Fs
	mem  stream.Memory
}

// OpenRAR lists a RAR archive.
func OpenRAR(fsys afero.Fs, path string, opts Options) VFS {
	r := &RAR{table: newTable("rar", fsys, path, opts, true), fsys: fsys}
	if r.err != nil {
		return r
	}
	if err := r.list(); err != nil {
		r.fail(err)
	}
	return r
}

func (r *RAR) open() (*rardecode.Reader, io.Closer, error) {
	f, err := r.fsys.Open(r.path)
	if err != nil {
		return nil, nil, err
	}
	rr, err := rardecode.NewReader(f)
	if err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("%w: %v", ErrBadSignature, err)
	}
	return rr, f, nil
}

func (r *RAR) list() error {
	rr, c, err := r.open()
	if err != nil {
		return err
	}
	defer c.Close()

	var ord int64
	for {
		h, err := rr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("list: %w", err)
		}
		if !h.IsDir {
			r.add(Entry{Name: h.Name, Offset: ord, Size: h.UnPackedSize})
			if r.opts.OnProgress != nil {
				r.opts.OnProgress(task.NewIndeterminateState(fmt.Sprintf("listing %s (%d)", h.Name, len(r.entries)), nil))
			}
		}
		ord++
	}
	if len(r.entries) == 0 {
		return fmt.Errorf("%w: archive holds no files", ErrEntryCount)
	}
	r.log.Debug("Opened archive", "format", r.format, "path", r.path, "entries", len(r.entries))
	return nil
}

// Get decodes the entry into the reused memory stream.
func (r *RAR) Get(name string) (stream.Stream, bool) {
	e, ok := r.lookup(name)
	if !ok {
		return nil, false
	}
	rr, c, err := r.open()
	if err != nil {
		r.log.Warn("Failed to reopen archive", "path", r.path, "err", err)
		return nil, false
	}
	defer c.Close()

	for ord := int64(0); ; ord++ {
		if _, err := rr.Next(); err != nil {
			r.log.Warn("Failed to seek archive entry", "path", r.path, "entry", e.Name, "err", err)
			return nil, false
		}
		if ord == e.Offset {
			break
		}
	}
	if err := r.mem.Fill(rr, e.Size); err != nil {
		r.log.Warn("Failed to decode archive entry", "path", r.path, "entry", e.Name, "err", err)
		return nil, false
	}
	return &r.mem, true
}
