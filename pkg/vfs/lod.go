package vfs

import (
	"encoding/binary"
	"fmt"

	"github.com/spf13/afero"

	"github.com/corwinn/h3r-sub000/pkg/stream"
)

const (
	// LODSignature is "LOD\x00" read little-endian.
	LODSignature   = 0x00444F4C
	lodHeaderSize  = 92
	lodEntrySize   = 32
	lodNameSize    = 16
	lodCountOffset = 8
)

// LOD is a HoMM3 .lod container. Entries may be zlib-compressed; lookups use
// a hashed index.
type LOD struct {
	*table
	window  *stream.Window
	inflate *stream.Inflate
}

// OpenLOD opens and validates a LOD container.
func OpenLOD(fsys afero.Fs, path string, opts Options) VFS {
	l := &LOD{table: newTable("lod", fsys, path, opts, true)}
	if l.err != nil {
		return l
	}
	if err := l.parse(); err != nil {
		l.fail(err)
	}
	return l
}

func (l *LOD) parse() error {
	hdr, err := l.header(lodHeaderSize)
	if err != nil {
		return err
	}
	if sig := binary.LittleEndian.Uint32(hdr); sig != LODSignature {
		return fmt.Errorf("%w: %#08x", ErrBadSignature, sig)
	}
	size := l.file.Size()
	count := int64(binary.LittleEndian.Uint32(hdr[lodCountOffset:]))
	if count == 0 || lodHeaderSize+count*lodEntrySize > size {
		return fmt.Errorf("%w: %d entries in %d bytes", ErrEntryCount, count, size)
	}

	raw, err := l.read(lodHeaderSize, int(count*lodEntrySize))
	if err != nil {
		return err
	}
	dataStart := int64(lodHeaderSize + count*lodEntrySize)
	for i := range int(count) {
		rec := raw[i*lodEntrySize : (i+1)*lodEntrySize]
		e := Entry{
			Name:           l.names.cString(rec[:lodNameSize]),
			Offset:         int64(binary.LittleEndian.Uint32(rec[16:])),
			Size:           int64(binary.LittleEndian.Uint32(rec[20:])),
			Type:           binary.LittleEndian.Uint32(rec[24:]),
			CompressedSize: int64(binary.LittleEndian.Uint32(rec[28:])),
		}
		stored := e.Size
		if e.Compressed() {
			stored = e.CompressedSize
		}
		if e.Offset < dataStart || e.Offset+stored > size {
			return fmt.Errorf("%w: %q at %d+%d, file is %d bytes", ErrEntryBounds, e.Name, e.Offset, stored, size)
		}
		l.add(e)
		l.progress(i+1, int(count))
	}
	l.log.Debug("Opened archive", "format", l.format, "path", l.path, "entries", len(l.entries))
	return nil
}

// Get returns the reused window stream for a stored entry, or the reused
// inflate stream wrapping it for a compressed one.
func (l *LOD) Get(name string) (stream.Stream, bool) {
	e, ok := l.lookup(name)
	if !ok {
		return nil, false
	}
	if !e.Compressed() {
		l.view(e.Offset, e.Size)
		return l.window, true
	}
	l.view(e.Offset, e.CompressedSize)
	if l.inflate == nil {
		l.inflate = stream.NewInflate(l.window, e.CompressedSize, e.Size)
	} else {
		l.inflate.ResetTo(e.CompressedSize, e.Size)
	}
	return l.inflate, true
}

func (l *LOD) view(off, size int64) {
	if l.window == nil {
		l.window = stream.NewWindow(l.file, off, size)
		return
	}
	l.window.ResetTo(off, size)
}
