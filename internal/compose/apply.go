package compose

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/specialistvlad/buildgridgo/internal/config"
	"github.com/specialistvlad/buildgridgo/internal/ctxlog"
	"github.com/specialistvlad/buildgridgo/internal/nodeid"
	"github.com/specialistvlad/buildgridgo/internal/session"
)

// Resolver returns the host path of a recorded artifact.
type Resolver func(addr nodeid.Address) (string, error)

// Placed is a copy rule after it was applied.
type Placed struct {
	Copy *config.Copy
	// Source is the host path the content came from.
	Source string
	// HostPath is the copy target inside the root.
	HostPath string
}

// Apply copies every rule of c into root in declaration order. Artifact
// sources come from resolve, static sources from contextDir.
func Apply(ctx context.Context, root string, c *config.Compose, resolve Resolver, contextDir string) ([]Placed, error) {
	logger := ctxlog.FromContext(ctx)
	placed := make([]Placed, 0, len(c.Copies))

	for i, cp := range c.Copies {
		var src string
		if cp.From != nil {
			p, err := resolve(*cp.From)
			if err != nil {
				return nil, fmt.Errorf("copy #%d: %w", i+1, err)
			}
			src = p
		} else {
			src = filepath.Join(contextDir, filepath.FromSlash(cp.Source))
		}
		if _, err := os.Lstat(src); err != nil {
			return nil, fmt.Errorf("copy #%d (%s): %w: %s", i+1, describe(cp), ErrMissingArtifact, src)
		}

		dst, err := session.HostPath(root, cp.To)
		if err != nil {
			return nil, fmt.Errorf("copy #%d: %w", i+1, err)
		}
		if filepath.Clean(src) != filepath.Clean(dst) {
			if err := session.CopyTree(src, dst); err != nil {
				return nil, fmt.Errorf("copy #%d (%s): %w", i+1, describe(cp), err)
			}
		}
		if cp.Mode != "" {
			mode, err := strconv.ParseUint(cp.Mode, 8, 32)
			if err != nil {
				return nil, fmt.Errorf("copy #%d: invalid mode %q: %w", i+1, cp.Mode, err)
			}
			if err := os.Chmod(dst, os.FileMode(mode)); err != nil {
				return nil, fmt.Errorf("copy #%d: %w", i+1, err)
			}
		}
		logger.Debug("Copied into final filesystem.", "from", describe(cp), "to", cp.To)
		placed = append(placed, Placed{Copy: cp, Source: src, HostPath: dst})
	}
	return placed, nil
}

func describe(cp *config.Copy) string {
	if cp.From != nil {
		return cp.From.String()
	}
	return cp.Source
}

// CheckTargets asserts every copy target still exists below root.
func CheckTargets(root string, copies []*config.Copy) error {
	for _, cp := range copies {
		dst, err := session.HostPath(root, cp.To)
		if err != nil {
			return err
		}
		if _, err := os.Lstat(dst); err != nil {
			return fmt.Errorf("%w: copy target %s of %s is gone", ErrMissingArtifact, cp.To, describe(cp))
		}
	}
	return nil
}
