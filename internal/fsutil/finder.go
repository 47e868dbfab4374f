// Package fsutil provides file system utility functions.
package fsutil

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Glob returns the files below root matching a doublestar pattern such as
// "**/*.hcl", as sorted paths joined onto root. Entries inside hidden
// directories (".buildgrid", ".git") are skipped.
func Glob(root, pattern string) ([]string, error) {
	if !doublestar.ValidatePattern(pattern) {
		return nil, fmt.Errorf("invalid pattern %q", pattern)
	}

	var files []string
	err := doublestar.GlobWalk(os.DirFS(root), pattern, func(p string, d fs.DirEntry) error {
		if d.IsDir() || hidden(p) {
			return nil
		}
		files = append(files, filepath.Join(root, filepath.FromSlash(p)))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to search %s: %w", root, err)
	}
	sort.Strings(files)
	return files, nil
}

func hidden(p string) bool {
	dirs := strings.Split(p, "/")
	for _, part := range dirs[:len(dirs)-1] {
		if strings.HasPrefix(part, ".") {
			return true
		}
	}
	return false
}
