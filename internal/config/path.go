package config

import (
	"os"
	"path/filepath"
)

// DefaultDataDir returns the per-user directory for persisted client state.
// XDG_STATE_HOME wins when set, then the OS cache dir, then ~/.flagstream.
func DefaultDataDir() string {
	if xdg := os.Getenv("XDG_STATE_HOME"); xdg != "" {
		return filepath.Join(xdg, "flagstream")
	}
	if dir, err := os.UserCacheDir(); err == nil && dir != "" {
		return filepath.Join(dir, "flagstream")
	}
	homeDir, err := os.UserHomeDir()
	if err != nil || homeDir == "" {
		return "./flagstream-data"
	}
	return filepath.Join(homeDir, ".flagstream")
}

// CursorDir is where the cursor store lives under dataDir. An empty dataDir
// uses DefaultDataDir.
func CursorDir(dataDir string) string {
	if dataDir == "" {
		dataDir = DefaultDataDir()
	}
	return filepath.Join(dataDir, "cursors")
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.IsDir()
}
