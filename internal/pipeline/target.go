package pipeline

import "fmt"

// Target selects the final-assembly backend.
type Target string

const (
	// TargetContainer builds a layered container image filesystem.
	TargetContainer Target = "container"
	// TargetAppliance provisions one shared filesystem for a virtual machine.
	TargetAppliance Target = "appliance"
)

// ParseTarget validates a target name.
func ParseTarget(s string) (Target, error) {
	switch Target(s) {
	case TargetContainer, TargetAppliance:
		return Target(s), nil
	}
	return "", fmt.Errorf("unknown target %q (want %q or %q)", s, TargetContainer, TargetAppliance)
}
