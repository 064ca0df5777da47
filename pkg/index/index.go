// Package index builds a portable description of the loaded archives: their
// entry tables and fingerprints, encoded as deterministic CBOR.
package index

import (
	"encoding/hex"
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"

	"github.com/corwinn/h3r-sub000/pkg/vfs"
)

// Version is bumped when the encoded layout changes.
const Version = 1

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("index: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("index: CBOR decoder initialization failed: " + err.Error())
	}
}

// Index lists archives in load order.
type Index struct {
	Version  int       `cbor:"1,keyasint"`
	Archives []Archive `cbor:"2,keyasint"`
}

// Archive is one loaded container.
type Archive struct {
	Format      string  `cbor:"1,keyasint"`
	Path        string  `cbor:"2,keyasint"`
	Fingerprint []byte  `cbor:"3,keyasint"`
	Entries     []Entry `cbor:"4,keyasint"`
}

// Entry mirrors vfs.Entry.
type Entry struct {
	Name           string `cbor:"1,keyasint"`
	Offset         int64  `cbor:"2,keyasint"`
	Size           int64  `cbor:"3,keyasint"`
	CompressedSize int64  `cbor:"4,keyasint,omitempty"`
	Type           uint32 `cbor:"5,keyasint,omitempty"`
}

// FingerprintHex returns the archive fingerprint as lower-case hex.
func (a Archive) FingerprintHex() string { return hex.EncodeToString(a.Fingerprint) }

// Builder collects entries as they are enumerated. Add must be called with
// the entries of one archive contiguously.
type Builder struct {
	idx  Index
	last vfs.VFS
}

// Add appends e of archive v.
func (b *Builder) Add(v vfs.VFS, e vfs.Entry) bool {
	if v != b.last {
		fp := v.Fingerprint()
		b.idx.Archives = append(b.idx.Archives, Archive{
			Format:      v.Format(),
			Path:        v.Path(),
			Fingerprint: fp[:],
		})
		b.last = v
	}
	a := &b.idx.Archives[len(b.idx.Archives)-1]
	a.Entries = append(a.Entries, Entry{
		Name:           e.Name,
		Offset:         e.Offset,
		Size:           e.Size,
		CompressedSize: e.CompressedSize,
		Type:           e.Type,
	})
	return true
}

// Index returns what was collected so far.
func (b *Builder) Index() *Index {
	b.idx.Version = Version
	return &b.idx
}

// Encode writes idx to w.
func Encode(w io.Writer, idx *Index) error {
	return encMode.NewEncoder(w).Encode(idx)
}

// Marshal encodes idx. The same index always gives the same bytes.
func Marshal(idx *Index) ([]byte, error) {
	return encMode.Marshal(idx)
}

// Unmarshal decodes an index and checks its version.
func Unmarshal(data []byte) (*Index, error) {
	var idx Index
	if err := decMode.Unmarshal(data, &idx); err != nil {
		return nil, fmt.Errorf("index: decode: %w", err)
	}
	if idx.Version != Version {
		return nil, fmt.Errorf("index: unsupported version %d", idx.Version)
	}
	return &idx, nil
}
