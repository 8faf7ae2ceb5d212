package util

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetDataDirFromEnv(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("NEBULA_BLUE_DIR", dir)
	assert.Equal(t, dir, GetDataDir())
	assert.Equal(t, filepath.Join(dir, "runs", "abc"), GetRunDir("abc"))
}

func TestGetDataDirDefault(t *testing.T) {
	t.Setenv("NEBULA_BLUE_DIR", "")
	assert.Contains(t, filepath.Base(GetDataDir()), "nebula-blue-data")
}

func TestEnsureDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b")
	got, err := EnsureDir(dir)
	require.NoError(t, err)
	assert.Equal(t, dir, got)
	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}
