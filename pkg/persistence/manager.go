// Package persistence keeps what h3rvfs remembers between runs in a JSON
// file under the data directory.
package persistence

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/afero"

	"github.com/corwinn/h3r-sub000/pkg/vfs"
)

// StateFile is the name of the state file inside the data directory.
const StateFile = "state.json"

type state struct {
	// Fingerprints maps an archive path to the hex BLAKE3 of its entry table.
	Fingerprints map[string]string `json:"archive_fingerprints"`
}

// ArchiveChange describes an archive whose entry table differs from the one
// recorded on a previous run.
type ArchiveChange struct {
	Path     string
	Previous string
	Current  string
}

// StateManager owns the state file.
type StateManager struct {
	fs       afero.Fs
	filePath string
	state    state
	mu       sync.RWMutex
}

// Open loads the state file from dataDir. A missing file gives an empty state.
func Open(fsys afero.Fs, dataDir string) (*StateManager, error) {
	m := &StateManager{
		fs:       fsys,
		filePath: filepath.Join(dataDir, StateFile),
		state:    state{Fingerprints: map[string]string{}},
	}
	data, err := afero.ReadFile(fsys, m.filePath)
	switch {
	case os.IsNotExist(err):
		return m, nil
	case err != nil:
		return nil, fmt.Errorf("failed to load state: %w", err)
	}
	if err := json.Unmarshal(data, &m.state); err != nil {
		return nil, fmt.Errorf("failed to load state %s: %w", m.filePath, err)
	}
	if m.state.Fingerprints == nil {
		m.state.Fingerprints = map[string]string{}
	}
	return m, nil
}

// Path returns the state file location.
func (m *StateManager) Path() string { return m.filePath }

// Fingerprint returns the recorded fingerprint of the archive at path.
func (m *StateManager) Fingerprint(path string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	fp, ok := m.state.Fingerprints[path]
	return fp, ok
}

// RecordFingerprints stores the fingerprint of every archive and returns the
// ones that changed since they were last recorded. Archives seen for the
// first time are recorded but not reported, as are archives whose stored
// value is not a valid fingerprint.
func (m *StateManager) RecordFingerprints(archives []vfs.VFS) ([]ArchiveChange, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var changed []ArchiveChange
	for _, v := range archives {
		fp := v.Fingerprint()
		cur := hex.EncodeToString(fp[:])
		prev, ok := m.state.Fingerprints[v.Path()]
		if ok && validFingerprint(prev) && prev != cur {
			changed = append(changed, ArchiveChange{Path: v.Path(), Previous: prev, Current: cur})
		}
		m.state.Fingerprints[v.Path()] = cur
	}
	return changed, m.save()
}

func validFingerprint(s string) bool {
	b, err := hex.DecodeString(s)
	return err == nil && len(b) == 32
}

func (m *StateManager) save() error {
	if err := m.fs.MkdirAll(filepath.Dir(m.filePath), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(m.state, "", "  ")
	if err != nil {
		return err
	}
	return afero.WriteFile(m.fs, m.filePath, data, 0o644)
}
