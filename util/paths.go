package util

import (
	"os"
	"path/filepath"
)

// GetDataDir returns the data directory path
func GetDataDir() string {
	if envDir := os.Getenv("NEBULA_BLUE_DIR"); envDir != "" {
		return envDir
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "nebula-blue-data")
	}
	return filepath.Join(home, ".nebula-blue-data")
}

// GetRunDir returns the directory for one simulation run's artifacts
func GetRunDir(runID string) string {
	return filepath.Join(GetDataDir(), "runs", runID)
}

// EnsureDir creates dir if it does not exist and returns it
func EnsureDir(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	return dir, nil
}
