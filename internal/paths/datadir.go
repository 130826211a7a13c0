package paths

import (
	"os"
	"path/filepath"
	"strings"
)

// EnvDataDir overrides the default data directory.
const EnvDataDir = "BMNODE_DATA_DIR"

// DefaultDataDir returns a per-user directory appropriate for persisting node state.
// BMNODE_DATA_DIR wins; otherwise it prefers os.UserConfigDir and falls back
// to the current directory.
func DefaultDataDir() string {
	if v := strings.TrimSpace(os.Getenv(EnvDataDir)); v != "" {
		return filepath.Clean(v)
	}
	if dir, err := os.UserConfigDir(); err == nil && dir != "" {
		return filepath.Join(dir, "bmnode")
	}
	return ".bmnode"
}

// EnsureDir makes sure dir exists and returns the cleaned path.
func EnsureDir(dir string) (string, error) {
	dir = filepath.Clean(dir)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", err
	}
	return dir, nil
}
