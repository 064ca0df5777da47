package vfs

import (
	"encoding/binary"

	"github.com/zeebo/blake3"
)

// fingerprint hashes the entry table. Two opens of the same unmodified file
// give the same digest.
func fingerprint(format string, entries []Entry) [32]byte {
	h := blake3.New()
	h.Write([]byte(format))
	var num [8]byte
	for _, e := range entries {
		binary.LittleEndian.PutUint64(num[:], uint64(len(e.Name)))
		h.Write(num[:])
		h.Write([]byte(e.Name))
		for _, v := range []int64{e.Offset, e.Size, e.CompressedSize, int64(e.Type)} {
			binary.LittleEndian.PutUint64(num[:], uint64(v))
			h.Write(num[:])
		}
	}
	var sum [32]byte
	copy(sum[:], h.Sum(nil))
	return sum
}
