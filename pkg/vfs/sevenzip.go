package vfs

import (
	"fmt"

	"github.com/javi11/sevenzip"
	"github.com/spf13/afero"

	"github.com/corwinn/h3r-sub000/pkg/stream"
)

// SevenZip exposes the files of a 7z archive. Get decodes the entry into the
// instance's reused memory stream.
type SevenZip struct {
	*table
	f     afero.File
	files []*sevenzip.File
	mem   stream.Memory
}

// OpenSevenZip lists a 7z archive.
func OpenSevenZip(fsys afero.Fs, path string, opts Options) VFS {
	z := &SevenZip{table: newTable("7z", fsys, path, opts, true)}
	if z.err != nil {
		return z
	}
	f, err := fsys.Open(path)
	if err != nil {
		z.fail(err)
		return z
	}
	z.f = f
	if err := z.list(); err != nil {
		z.fail(err)
	}
	return z
}

func (z *SevenZip) list() error {
	r, err := sevenzip.NewReader(z.f, z.file.Size())
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadSignature, err)
	}
	for _, f := range r.File {
		if f.FileInfo().IsDir() {
			continue
		}
		z.add(Entry{Name: f.Name, Offset: int64(len(z.files)), Size: int64(f.UncompressedSize)})
		z.files = append(z.files, f)
		z.progress(len(z.files), len(r.File))
	}
	if len(z.files) == 0 {
		return fmt.Errorf("%w: archive holds no files", ErrEntryCount)
	}
	z.log.Debug("Opened archive", "format", z.format, "path", z.path, "entries", len(z.entries))
	return nil
}

// Get decodes the entry into the reused memory stream.
func (z *SevenZip) Get(name string) (stream.Stream, bool) {
	e, ok := z.lookup(name)
	if !ok {
		return nil, false
	}
	rc, err := z.files[e.Offset].Open()
	if err != nil {
		z.log.Warn("Failed to open archive entry", "path", z.path, "entry", e.Name, "err", err)
		return nil, false
	}
	defer rc.Close()
	if err := z.mem.Fill(rc, e.Size); err != nil {
		z.log.Warn("Failed to decode archive entry", "path", z.path, "entry", e.Name, "err", err)
		return nil, false
	}
	return &z.mem, true
}

// Close releases the archive handles.
func (z *SevenZip) Close() error {
	if z.f != nil {
		z.f.Close()
	}
	return z.table.Close()
}
