package vfs

import (
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/spf13/afero"
)

// OpenFunc opens path as one container format. It never fails: a container
// that does not validate comes back with Usable() == false.
type OpenFunc func(fsys afero.Fs, path string, opts Options) VFS

// Format describes a registered container format.
type Format struct {
	Name string
	// Extensions are lower-case, with the leading dot.
	Extensions []string
	Open       OpenFunc
}

// Matches reports whether path carries one of the format's extensions.
func (f Format) Matches(path string) bool {
	return slices.Contains(f.Extensions, strings.ToLower(filepath.Ext(path)))
}

// Builtin returns the formats shipped with the package, in probe order.
func Builtin() []Format {
	return []Format{
		{Name: "lod", Extensions: []string{".lod", ".pac"}, Open: OpenLOD},
		{Name: "snd", Extensions: []string{".snd"}, Open: OpenSND},
		{Name: "vid", Extensions: []string{".vid"}, Open: OpenVID},
		{Name: "rar", Extensions: []string{".rar"}, Open: OpenRAR},
		{Name: "7z", Extensions: []string{".7z"}, Open: OpenSevenZip},
	}
}

// Registry is an ordered set of formats.
type Registry struct {
	mu      sync.RWMutex
	formats []Format
}

// Register appends f. Registering a second format under an existing name, or
// one without an Open function, panics.
func (r *Registry) Register(f Format) {
	if f.Open == nil || f.Name == "" {
		panic("vfs: format needs a name and an Open function")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, have := range r.formats {
		if strings.EqualFold(have.Name, f.Name) {
			panic(fmt.Sprintf("vfs: format %q registered twice", f.Name))
		}
	}
	r.formats = append(r.formats, f)
}

// Formats returns the registered formats in registration order.
func (r *Registry) Formats() []Format {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.formats)
}

// Candidates returns the formats to probe for path: those whose extension
// matches, or every format when none does.
func (r *Registry) Candidates(path string) []Format {
	all := r.Formats()
	var out []Format
	for _, f := range all {
		if f.Matches(path) {
			out = append(out, f)
		}
	}
	if len(out) == 0 {
		return all
	}
	return out
}

// IsArchive reports whether path has the extension of a registered format.
func (r *Registry) IsArchive(path string) bool {
	for _, f := range r.Formats() {
		if f.Matches(path) {
			return true
		}
	}
	return false
}
