// internal/nodeid/parser.go
package nodeid

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/hashicorp/hcl/v2"
)

// segmentRegex matches a single segment of an address, e.g. `gpu-node`.
var segmentRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// isValidSegmentName checks for undesirable but technically valid names.
func isValidSegmentName(name string) bool {
	if name == "-" || name == "_" {
		return false
	}
	return segmentRegex.MatchString(name)
}

// ValidName reports whether name may be used as a block label.
func ValidName(name string) bool {
	return isValidSegmentName(name)
}

// Parse creates a new Address by parsing its canonical string representation.
func Parse(rawID string) (Address, error) {
	if rawID == "" {
		return Address{}, fmt.Errorf("identifier cannot be empty")
	}

	segments := strings.Split(rawID, ".")
	if len(segments) < 2 || len(segments) > 3 {
		return Address{}, fmt.Errorf("identifier %q must have the form kind.name[.attr]", rawID)
	}
	for _, segment := range segments {
		if segment == "" {
			return Address{}, fmt.Errorf("identifier path contains empty segment")
		}
		if !isValidSegmentName(segment) {
			return Address{}, fmt.Errorf("invalid segment name: %q", segment)
		}
	}

	addr := Address{Kind: Kind(segments[0]), Name: segments[1]}
	if len(segments) == 3 {
		addr.Attr = segments[2]
	}
	return addr, nil
}

// FromTraversal converts an absolute HCL traversal such as `stage.host.env`
// into an Address. Only referenceable kinds are accepted.
func FromTraversal(t hcl.Traversal) (Address, error) {
	var parts []string
	for _, step := range t {
		switch s := step.(type) {
		case hcl.TraverseRoot:
			parts = append(parts, s.Name)
		case hcl.TraverseAttr:
			parts = append(parts, s.Name)
		default:
			return Address{}, fmt.Errorf("index and splat operators are not allowed in references")
		}
	}

	addr, err := Parse(strings.Join(parts, "."))
	if err != nil {
		return Address{}, err
	}
	if !referenceKinds[addr.Kind] {
		return Address{}, fmt.Errorf("unknown reference kind %q", addr.Kind)
	}
	return addr, nil
}
