package paths

import (
	"os"
	"path/filepath"

	"github.com/corwinn/h3r-sub000/pkg/env"
)

// GetDataDir returns the directory holding config and log files.
// H3R_DATA_DIR wins; otherwise the user config dir (~/.config/h3rvfs on
// Linux), falling back to the current directory.
func GetDataDir() string {
	if dir := env.DataDirOverride(); dir != "" {
		return dir
	}
	if base, err := os.UserConfigDir(); err == nil {
		return filepath.Join(base, "h3rvfs")
	}
	return "."
}
