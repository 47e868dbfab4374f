package compose

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/specialistvlad/buildgridgo/internal/config"
	"github.com/specialistvlad/buildgridgo/internal/plan"
)

// CacheGlobs match package manager caches. Patterns are relative to the root.
var CacheGlobs = []string{
	"**/.cache/pip",
	"**/.cache/yarn",
	"**/.yarn-cache",
	"**/.npm/_cacache",
	"**/.cargo/registry",
	"**/.cargo/git",
	"var/cache/apt/archives/*.deb",
}

// CompilerGlobs match compilers that must not ship in a container image.
var CompilerGlobs = []string{
	"usr/bin/cc",
	"usr/bin/c++",
	"usr/bin/gcc",
	"usr/bin/gcc-[0-9]*",
	"usr/bin/g++",
	"usr/bin/g++-[0-9]*",
	"usr/bin/clang",
	"usr/bin/clang-[0-9]*",
	"**/bin/rustc",
	"**/bin/cargo",
	"usr/local/cuda*/bin/nvcc",
}

// Policy describes what a final filesystem must not contain.
type Policy struct {
	// Paths are absolute container paths, typically toolchain locations.
	Paths []string
	// Globs are doublestar patterns relative to the root.
	Globs []string
}

// NewPolicy builds the policy for a composition. Compiler binaries are only
// forbidden when withCompilers is set, since an appliance keeps its
// development base.
func NewPolicy(toolchains []*config.Toolchain, forbid []string, withCompilers bool) (*Policy, error) {
	p := &Policy{}
	for _, tc := range toolchains {
		p.Paths = append(p.Paths, tc.Paths...)
	}
	p.Globs = append(p.Globs, CacheGlobs...)
	if withCompilers {
		p.Globs = append(p.Globs, CompilerGlobs...)
	}
	for _, g := range forbid {
		g = strings.TrimPrefix(g, "/")
		if !doublestar.ValidatePattern(g) {
			return nil, fmt.Errorf("invalid forbid pattern %q", g)
		}
		p.Globs = append(p.Globs, g)
	}
	sort.Strings(p.Paths)
	return p, nil
}

// Scan walks root and returns every forbidden container path. A forbidden
// directory is reported once, without its contents.
func (p *Policy) Scan(root string) ([]string, error) {
	var found []string
	err := filepath.WalkDir(root, func(hostPath string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if hostPath == root {
			return nil
		}
		rel, err := filepath.Rel(root, hostPath)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if p.matches(rel) {
			found = append(found, "/"+rel)
			if d.IsDir() {
				return filepath.SkipDir
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", root, err)
	}
	sort.Strings(found)
	return found, nil
}

func (p *Policy) matches(rel string) bool {
	abs := "/" + rel
	for _, forbidden := range p.Paths {
		if plan.Contains(forbidden, abs) {
			return true
		}
	}
	for _, g := range p.Globs {
		if ok, _ := doublestar.Match(g, rel); ok {
			return true
		}
	}
	return false
}

// Verify fails with ErrForbiddenPath when Scan finds anything.
func (p *Policy) Verify(root string) error {
	found, err := p.Scan(root)
	if err != nil {
		return err
	}
	if len(found) > 0 {
		return fmt.Errorf("%w: %s", ErrForbiddenPath, strings.Join(found, ", "))
	}
	return nil
}

// CheckDisjoint fails with ErrOverlap when two paths are equal or nested.
// Names label the paths in the error.
func CheckDisjoint(names, paths []string) error {
	for i := range paths {
		for j := i + 1; j < len(paths); j++ {
			if plan.Contains(paths[i], paths[j]) || plan.Contains(paths[j], paths[i]) {
				return fmt.Errorf("%w: %s (%s) and %s (%s)", ErrOverlap, names[i], paths[i], names[j], paths[j])
			}
		}
	}
	return nil
}
