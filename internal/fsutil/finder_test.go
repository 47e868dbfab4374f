package fsutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGlob(t *testing.T) {
	// --- Arrange ---
	root := t.TempDir()
	for _, name := range []string{
		"pipeline.hcl",
		"stages/ui.hcl",
		"stages/notes.txt",
		".buildgrid/work/copy.hcl",
		"buildgrid.toml",
	} {
		full := filepath.Join(root, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte("#"), 0o644))
	}

	// --- Act ---
	files, err := Glob(root, "**/*.hcl")

	// --- Assert ---
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(root, "pipeline.hcl"),
		filepath.Join(root, "stages", "ui.hcl"),
	}, files)
}

func TestGlob_InvalidPattern(t *testing.T) {
	_, err := Glob(t.TempDir(), "[")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid pattern")
}
