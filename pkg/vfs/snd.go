package vfs

import (
	"encoding/binary"
	"fmt"

	"github.com/spf13/afero"

	"github.com/corwinn/h3r-sub000/pkg/stream"
)

const (
	sndEntrySize = 48
	vidEntrySize = 44
	flatNameSize = 40
)

// flat is the SND and VID container: a count, a table of name/offset records
// and the entry data back to back. Lookups scan the table.
type flat struct {
	*table
	window *stream.Window
}

// OpenSND opens a .snd sound container. Each record carries an explicit size
// that must match the gap to the next entry.
func OpenSND(fsys afero.Fs, path string, opts Options) VFS {
	return openFlat("snd", fsys, path, opts, sndEntrySize)
}

// OpenVID opens a .vid video container. Sizes are inferred from the offsets.
func OpenVID(fsys afero.Fs, path string, opts Options) VFS {
	return openFlat("vid", fsys, path, opts, vidEntrySize)
}

func openFlat(format string, fsys afero.Fs, path string, opts Options, recSize int) VFS {
	v := &flat{table: newTable(format, fsys, path, opts, false)}
	if v.err != nil {
		return v
	}
	if err := v.parse(recSize); err != nil {
		v.fail(err)
	}
	return v
}

func (v *flat) parse(recSize int) error {
	hdr, err := v.header(4)
	if err != nil {
		return err
	}
	size := v.file.Size()
	count := int64(binary.LittleEndian.Uint32(hdr))
	tableEnd := 4 + count*int64(recSize)
	if count == 0 || tableEnd > size {
		return fmt.Errorf("%w: %d entries in %d bytes", ErrEntryCount, count, size)
	}
	raw, err := v.read(4, int(tableEnd-4))
	if err != nil {
		return err
	}

	entries := make([]Entry, count)
	declared := make([]int64, count)
	for i := range entries {
		rec := raw[i*recSize : (i+1)*recSize]
		name := rec[:flatNameSize]
		if recSize == sndEntrySize {
			entries[i].Name = v.names.sndName(name)
			declared[i] = int64(binary.LittleEndian.Uint32(rec[44:]))
		} else {
			entries[i].Name = v.names.cString(name)
		}
		entries[i].Offset = int64(binary.LittleEndian.Uint32(rec[40:]))
	}

	for i := range entries {
		e := &entries[i]
		end := size
		if i+1 < len(entries) {
			end = entries[i+1].Offset
		}
		if e.Offset < tableEnd || e.Offset > size || end > size {
			return fmt.Errorf("%w: %q at %d, file is %d bytes", ErrEntryBounds, e.Name, e.Offset, size)
		}
		if end < e.Offset {
			return fmt.Errorf("%w: %q at %d precedes %d", ErrEntryBounds, entries[i+1].Name, end, e.Offset)
		}
		e.Size = end - e.Offset
		if recSize == sndEntrySize && declared[i] != e.Size {
			return fmt.Errorf("%w: %q declares %d bytes, gap is %d", ErrSizeMismatch, e.Name, declared[i], e.Size)
		}
		v.add(*e)
		v.progress(i+1, len(entries))
	}
	v.log.Debug("Opened archive", "format", v.format, "path", v.path, "entries", len(v.entries))
	return nil
}

// Get returns the reused window stream over the entry.
func (v *flat) Get(name string) (stream.Stream, bool) {
	e, ok := v.lookup(name)
	if !ok {
		return nil, false
	}
	if v.window == nil {
		v.window = stream.NewWindow(v.file, e.Offset, e.Size)
	} else {
		v.window.ResetTo(e.Offset, e.Size)
	}
	return v.window, true
}
