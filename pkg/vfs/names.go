package vfs

import (
	"bytes"
	"log/slog"

	"golang.org/x/net/html/charset"
)

// DefaultCharset is the encoding of entry names in the shipped game data.
const DefaultCharset = "windows-1252"

type nameDecoder struct {
	decode func([]byte) ([]byte, error)
}

func newNameDecoder(label string, log *slog.Logger) *nameDecoder {
	if label == "" {
		label = DefaultCharset
	}
	enc, name := charset.Lookup(label)
	if enc == nil {
		log.Warn("Unknown name charset, using default", "charset", label, "default", DefaultCharset)
		enc, name = charset.Lookup(DefaultCharset)
	}
	if name == "utf-8" {
		return &nameDecoder{}
	}
	return &nameDecoder{decode: enc.NewDecoder().Bytes}
}

func (d *nameDecoder) string(raw []byte) string {
	if d.decode == nil || isASCII(raw) {
		return string(raw)
	}
	out, err := d.decode(raw)
	if err != nil {
		return string(raw)
	}
	return string(out)
}

func isASCII(b []byte) bool {
	for _, c := range b {
		if c >= 0x80 {
			return false
		}
	}
	return true
}

// cString decodes a NUL-padded name field.
func (d *nameDecoder) cString(field []byte) string {
	if i := bytes.IndexByte(field, 0); i >= 0 {
		field = field[:i]
	}
	return d.string(field)
}

// sndName decodes an SND name field, where a NUL separates the stem from a
// three letter extension: "abc\x00wav\x00..." is "abc.wav".
func (d *nameDecoder) sndName(field []byte) string {
	i := bytes.IndexByte(field, 0)
	if i < 0 {
		return d.string(field)
	}
	stem, ext := field[:i], field[i+1:]
	if j := bytes.IndexByte(ext, 0); j >= 0 {
		ext = ext[:j]
	}
	if len(ext) > 3 {
		ext = ext[:3]
	}
	if len(ext) == 0 {
		return d.string(stem)
	}
	name := make([]byte, 0, len(stem)+1+len(ext))
	name = append(append(append(name, stem...), '.'), ext...)
	return d.string(name)
}
