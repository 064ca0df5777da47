package main

import (
	"bytes"
	"context"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/corwinn/h3r-sub000/pkg/index"
	"github.com/corwinn/h3r-sub000/pkg/stream"
)

func vid(entries map[string]string, order []string) []byte {
	var out bytes.Buffer
	binary.Write(&out, binary.LittleEndian, uint32(len(order)))
	off := 4 + 44*len(order)
	for _, name := range order {
		field := make([]byte, 40)
		copy(field, name)
		out.Write(field)
		binary.Write(&out, binary.LittleEndian, uint32(off))
		off += len(entries[name])
	}
	for _, name := range order {
		out.WriteString(entries[name])
	}
	return out.Bytes()
}

func TestShortFingerprint(t *testing.T) {
	cases := map[string]string{
		"":                     "",
		"abc":                  "abc",
		"0123456789abcdef0123": "0123456789abcdef",
	}
	for in, want := range cases {
		if got := short(in); got != want {
			t.Errorf("short(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestCopyBridged(t *testing.T) {
	data := bytes.Repeat([]byte("0123456789abcdef"), 100)
	var out bytes.Buffer
	n, err := copyBridged(context.Background(), stream.NewMemory(data), &out, 7, false)
	if err != nil {
		t.Fatal(err)
	}
	if n != int64(len(data)) || !bytes.Equal(out.Bytes(), data) {
		t.Fatalf("copied %d bytes, content equal = %v", n, bytes.Equal(out.Bytes(), data))
	}
}

func TestIndexAndCatCommands(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("H3R_DATA_DIR", filepath.Join(dir, "data"))
	game := filepath.Join(dir, "game")
	os.MkdirAll(filepath.Join(game, "Data"), 0o755)
	entries := map[string]string{"intro.bik": "INTRO-VIDEO", "outro.bik": "OUTRO"}
	os.WriteFile(filepath.Join(game, "Data", "VIDEO.VID"), vid(entries, []string{"intro.bik", "outro.bik"}), 0o644)

	cfgPath := filepath.Join(dir, "config.json")
	idxPath := filepath.Join(dir, "out.cbor")
	err := run([]string{"-c", cfgPath, "--game-dir", game, "-q", "--log-level", "ERROR", "index", "-o", idxPath})
	if err != nil {
		t.Fatalf("index: %v", err)
	}
	raw, err := os.ReadFile(idxPath)
	if err != nil {
		t.Fatal(err)
	}
	idx, err := index.Unmarshal(raw)
	if err != nil {
		t.Fatal(err)
	}
	if len(idx.Archives) != 1 || len(idx.Archives[0].Entries) != 2 || idx.Archives[0].Format != "vid" {
		t.Fatalf("index = %+v", idx)
	}

	if _, err := os.Stat(filepath.Join(dir, "data", "state.json")); err != nil {
		t.Errorf("archive fingerprints not recorded: %v", err)
	}

	catPath := filepath.Join(dir, "outro.bik")
	err = run([]string{"-c", cfgPath, "--game-dir", game, "-q", "--log-level", "ERROR", "cat", "OUTRO.BIK", "-o", catPath})
	if err != nil {
		t.Fatalf("cat: %v", err)
	}
	got, _ := os.ReadFile(catPath)
	if string(got) != "OUTRO" {
		t.Errorf("extracted %q", got)
	}

	if err := run([]string{"-c", cfgPath, "--game-dir", game, "-q", "cat", "missing.bik", "-o", catPath}); err == nil {
		t.Error("cat of a missing resource should fail")
	}
}
