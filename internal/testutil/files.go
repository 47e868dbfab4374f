package testutil

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// WriteFiles writes a tree of files below dir. Relative names create their
// subdirectories; content starting with a shebang is made executable.
func WriteFiles(t *testing.T, dir string, files map[string]string) {
	t.Helper()

	for name, content := range files {
		filePath := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(filePath), 0755))
		mode := os.FileMode(0644)
		if strings.HasPrefix(content, "#!") {
			mode = 0755
		}
		require.NoError(t, os.WriteFile(filePath, []byte(content), mode))
	}
}

// ReadFile returns the content of a file below dir, failing the test if it
// cannot be read.
func ReadFile(t *testing.T, dir, name string) string {
	t.Helper()

	data, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(name)))
	require.NoError(t, err)
	return string(data)
}

// Exists reports whether a path below dir exists, without following a
// trailing symlink.
func Exists(t *testing.T, dir, name string) bool {
	t.Helper()

	_, err := os.Lstat(filepath.Join(dir, filepath.FromSlash(name)))
	if os.IsNotExist(err) {
		return false
	}
	require.NoError(t, err)
	return true
}
