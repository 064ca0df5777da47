package resource

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/spf13/afero"

	"github.com/corwinn/h3r-sub000/pkg/logger"
	"github.com/corwinn/h3r-sub000/pkg/stream"
	"github.com/corwinn/h3r-sub000/pkg/vfs"
)

type file struct {
	name string
	data string
}

// lod builds a LOD container of stored entries.
func lod(files ...file) []byte {
	var out bytes.Buffer
	binary.Write(&out, binary.LittleEndian, uint32(vfs.LODSignature))
	binary.Write(&out, binary.LittleEndian, uint32(200))
	binary.Write(&out, binary.LittleEndian, uint32(len(files)))
	out.Write(make([]byte, 80))
	off := 92 + 32*len(files)
	for _, f := range files {
		name := make([]byte, 16)
		copy(name, f.name)
		out.Write(name)
		for _, v := range []uint32{uint32(off), uint32(len(f.data)), 1, 0} {
			binary.Write(&out, binary.LittleEndian, v)
		}
		off += len(f.data)
	}
	for _, f := range files {
		out.WriteString(f.data)
	}
	return out.Bytes()
}

// snd builds an SND container; names are given with their dot.
func snd(files ...file) []byte {
	var out bytes.Buffer
	binary.Write(&out, binary.LittleEndian, uint32(len(files)))
	off := 4 + 48*len(files)
	for _, f := range files {
		name := make([]byte, 40)
		copy(name, bytes.Replace([]byte(f.name), []byte("."), []byte{0}, 1))
		out.Write(name)
		binary.Write(&out, binary.LittleEndian, uint32(off))
		binary.Write(&out, binary.LittleEndian, uint32(len(f.data)))
		off += len(f.data)
	}
	for _, f := range files {
		out.WriteString(f.data)
	}
	return out.Bytes()
}

func newManager(t *testing.T, fsys afero.Fs, opts ...Option) *Manager {
	t.Helper()
	opts = append([]Option{
		WithLogger(logger.Discard()),
		WithVFSOptions(vfs.Options{Retry: stream.RetryPolicy{Attempts: 1}}),
	}, opts...)
	m := New(fsys, opts...)
	t.Cleanup(func() { m.Close() })
	return m
}

func wait(t *testing.T, m *Manager) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.Wait(ctx); err != nil {
		t.Fatalf("operation did not finish: %v", err)
	}
	if !m.TaskComplete() {
		t.Fatal("TaskComplete() should be true after Wait")
	}
}

func fixture(t *testing.T) afero.Fs {
	t.Helper()
	fsys := afero.NewMemMapFs()
	put := func(path string, data []byte) {
		if err := afero.WriteFile(fsys, path, data, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	fsys.MkdirAll("/game/Data/Extra", 0o755)
	put("/game/Data/H3bitmap.lod", lod(file{"shared.pcx", "from-bitmap"}, file{"only.def", "def"}))
	put("/game/Data/H3sprite.lod", lod(file{"shared.pcx", "from-sprite"}, file{"sprite.def", "spr"}))
	put("/game/Data/Extra/Heroes3.snd", snd(file{"click.wav", "RIFFclick"}))
	put("/game/readme.txt", []byte("not an archive"))
	return fsys
}

func TestLoadAndGetResource(t *testing.T) {
	m := newManager(t, fixture(t))

	for _, p := range []string{"/game/Data/H3bitmap.lod", "/game/Data/H3sprite.lod"} {
		info := m.Load(p)
		wait(t, m)
		if !info.Success() {
			t.Fatalf("Load(%s): %v", p, info.Err())
		}
		if st := info.Status(); st.Progress() != 100 {
			t.Errorf("Load status = %s", st)
		}
	}
	if n := len(m.Archives()); n != 2 {
		t.Fatalf("%d active archives, want 2", n)
	}

	tests := []struct {
		name string
		want string
		ok   bool
	}{
		{"shared.pcx", "from-bitmap", true},
		{"SHARED.PCX", "from-bitmap", true},
		{"sprite.def", "spr", true},
		{"missing.def", "", false},
	}
	for _, tt := range tests {
		info := m.GetResource(tt.name)
		wait(t, m)
		if info.Success() != tt.ok {
			t.Fatalf("GetResource(%q) success = %v", tt.name, info.Success())
		}
		if !tt.ok {
			if info.Err() == nil {
				t.Errorf("GetResource(%q) should carry an error", tt.name)
			}
			continue
		}
		got, err := io.ReadAll(info.Stream())
		if err != nil || string(got) != tt.want {
			t.Errorf("GetResource(%q) = %q, %v; want %q", tt.name, got, err, tt.want)
		}
	}
}

func TestLoadUnusableArchive(t *testing.T) {
	fsys := fixture(t)
	afero.WriteFile(fsys, "/game/broken.lod", []byte("LOD?garbage"), 0o644)
	m := newManager(t, fsys)

	info := m.Load("/game/broken.lod")
	wait(t, m)
	if info.Success() || info.Err() == nil {
		t.Fatal("loading a broken archive should fail")
	}
	if !errors.Is(info.Err(), vfs.ErrTruncated) {
		t.Errorf("Err() = %v, want ErrTruncated", info.Err())
	}
	if len(m.Archives()) != 0 {
		t.Error("a broken archive must not become active")
	}

	info = m.Load("/game/missing.lod")
	wait(t, m)
	if info.Success() {
		t.Error("loading a missing file should fail")
	}
}

func TestLookupCachePurgedOnLoad(t *testing.T) {
	m := newManager(t, fixture(t), WithLookupCache(8))

	m.Load("/game/Data/H3sprite.lod")
	wait(t, m)
	m.GetResource("sprite.def")
	wait(t, m)
	if m.cache.Len() != 1 {
		t.Fatalf("cache holds %d names, want 1", m.cache.Len())
	}

	m.Load("/game/Data/H3bitmap.lod")
	wait(t, m)
	if m.cache.Len() != 0 {
		t.Fatal("a successful load should purge the lookup cache")
	}

	// Load order decides, not the cache.
	info := m.GetResource("shared.pcx")
	wait(t, m)
	if got, _ := io.ReadAll(info.Stream()); string(got) != "from-sprite" {
		t.Errorf("shared.pcx = %q, want the first loaded archive's copy", got)
	}
}

func TestEnumerate(t *testing.T) {
	m := newManager(t, fixture(t), WithLookupCache(0))
	m.Load("/game/Data/H3bitmap.lod")
	wait(t, m)
	m.Load("/game/Data/Extra/Heroes3.snd")
	wait(t, m)

	var names []string
	info := m.Enumerate(func(v vfs.VFS, e vfs.Entry) bool {
		names = append(names, v.Format()+":"+e.Name)
		return true
	})
	wait(t, m)
	want := []string{"lod:shared.pcx", "lod:only.def", "snd:click.wav"}
	if len(names) != len(want) {
		t.Fatalf("enumerated %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("entry %d = %s, want %s", i, names[i], want[i])
		}
	}
	if !info.Success() || info.Status().Progress() != 100 {
		t.Errorf("enumerate status = %s", info.Status())
	}

	count := 0
	m.Enumerate(func(vfs.VFS, vfs.Entry) bool {
		count++
		return false
	})
	wait(t, m)
	if count != 1 {
		t.Errorf("enumeration continued after fn returned false: %d calls", count)
	}
}

func TestLoadDir(t *testing.T) {
	m := newManager(t, fixture(t))

	info := m.LoadDir("/game")
	wait(t, m)
	if !info.Success() {
		t.Fatalf("LoadDir: %v", info.Err())
	}
	want := []string{"/game/Data/H3bitmap.lod", "/game/Data/H3sprite.lod", "/game/Data/Extra/Heroes3.snd"}
	if got := info.Loaded(); len(got) != len(want) {
		t.Fatalf("loaded %v, want %v", got, want)
	}
	for i, p := range want {
		if info.Loaded()[i] != p {
			t.Errorf("loaded[%d] = %s, want %s", i, info.Loaded()[i], p)
		}
	}

	get := m.GetResource("click.wav")
	wait(t, m)
	if !get.Success() {
		t.Fatal("click.wav should resolve after LoadDir")
	}
}

func TestLoadDirPartialFailure(t *testing.T) {
	fsys := fixture(t)
	afero.WriteFile(fsys, "/game/Data/zz.vid", []byte{1, 2}, 0o644)
	m := newManager(t, fsys)

	info := m.LoadDir("/game")
	wait(t, m)
	if info.Success() {
		t.Fatal("a broken archive should fail the directory load")
	}
	if len(info.Loaded()) != 3 || len(m.Archives()) != 3 {
		t.Errorf("good archives should stay loaded: %v", info.Loaded())
	}

	info = m.LoadDir("/nowhere")
	wait(t, m)
	if info.Success() || info.Err() == nil {
		t.Error("a missing directory should fail")
	}
}

func TestOneOperationAtATime(t *testing.T) {
	m := newManager(t, fixture(t))
	m.Load("/game/Data/H3bitmap.lod")
	wait(t, m)

	release := make(chan struct{})
	m.Enumerate(func(vfs.VFS, vfs.Entry) bool {
		<-release
		return false
	})
	func() {
		defer func() {
			if recover() == nil {
				t.Error("starting a second operation should panic")
			}
		}()
		m.GetResource("only.def")
	}()
	close(release)
	wait(t, m)
}

func TestRegisterDuplicate(t *testing.T) {
	m := newManager(t, afero.NewMemMapFs())
	defer func() {
		if recover() == nil {
			t.Fatal("registering lod twice should panic")
		}
	}()
	m.Register(vfs.Format{Name: "lod", Extensions: []string{".lod"}, Open: vfs.OpenLOD})
}

func TestCustomFormatRegistry(t *testing.T) {
	fsys := fixture(t)
	m := newManager(t, fsys, WithoutBuiltinFormats())
	m.Register(vfs.Format{Name: "sound", Extensions: []string{".snd"}, Open: vfs.OpenSND})

	info := m.LoadDir("/game")
	wait(t, m)
	if !info.Success() || len(info.Loaded()) != 1 {
		t.Fatalf("only the registered format should load: %v %v", info.Loaded(), info.Err())
	}
}
