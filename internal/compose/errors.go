package compose

import (
	"errors"

	"github.com/specialistvlad/buildgridgo/internal/artifact"
)

var (
	// ErrMissingArtifact reports a copy source that does not exist.
	ErrMissingArtifact = artifact.ErrMissing
	// ErrForbiddenPath reports build tooling found in a final filesystem.
	ErrForbiddenPath = errors.New("forbidden path in final filesystem")
	// ErrOverlap reports environments that are not disjoint subtrees.
	ErrOverlap = errors.New("environments overlap")
)
