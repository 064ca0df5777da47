package index

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/spf13/afero"

	"github.com/corwinn/h3r-sub000/pkg/logger"
	"github.com/corwinn/h3r-sub000/pkg/vfs"
)

func vidFile(names ...string) []byte {
	var out bytes.Buffer
	binary.Write(&out, binary.LittleEndian, uint32(len(names)))
	off := 4 + 44*len(names)
	for _, n := range names {
		name := make([]byte, 40)
		copy(name, n)
		out.Write(name)
		binary.Write(&out, binary.LittleEndian, uint32(off))
		off += len(n)
	}
	for _, n := range names {
		out.WriteString(n)
	}
	return out.Bytes()
}

func TestBuildEncodeDecode(t *testing.T) {
	fsys := afero.NewMemMapFs()
	afero.WriteFile(fsys, "/a.vid", vidFile("intro.bik", "credits.bik"), 0o644)
	afero.WriteFile(fsys, "/b.vid", vidFile("outro.smk"), 0o644)
	opts := vfs.Options{Logger: logger.Discard()}

	var b Builder
	for _, path := range []string{"/a.vid", "/b.vid"} {
		v := vfs.OpenVID(fsys, path, opts)
		defer v.Close()
		v.Walk(func(e vfs.Entry) bool { return b.Add(v, e) })
	}
	idx := b.Index()
	if len(idx.Archives) != 2 || len(idx.Archives[0].Entries) != 2 || len(idx.Archives[1].Entries) != 1 {
		t.Fatalf("unexpected index shape: %+v", idx)
	}
	if len(idx.Archives[0].FingerprintHex()) != 64 {
		t.Errorf("fingerprint hex = %q", idx.Archives[0].FingerprintHex())
	}

	first, err := Marshal(idx)
	if err != nil {
		t.Fatal(err)
	}
	var streamed bytes.Buffer
	if err := Encode(&streamed, idx); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(first, streamed.Bytes()) {
		t.Error("Marshal and Encode should produce identical bytes")
	}

	back, err := Unmarshal(first)
	if err != nil {
		t.Fatal(err)
	}
	if back.Archives[1].Entries[0].Name != "outro.smk" || back.Archives[0].Path != "/a.vid" {
		t.Errorf("decoded %+v", back)
	}
	again, _ := Marshal(back)
	if !bytes.Equal(first, again) {
		t.Error("re-encoding a decoded index changed the bytes")
	}
}

func TestUnmarshalRejectsOtherVersions(t *testing.T) {
	data, err := Marshal(&Index{Version: Version + 1})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := Unmarshal(data); err == nil {
		t.Fatal("a future version should be rejected")
	}
}
