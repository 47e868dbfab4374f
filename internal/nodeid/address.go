// internal/nodeid/address.go
package nodeid

import "strings"

// String serializes the Address into its canonical dotted representation.
func (a Address) String() string {
	var sb strings.Builder
	sb.WriteString(string(a.Kind))
	if a.Name != "" {
		sb.WriteRune('.')
		sb.WriteString(a.Name)
	}
	if a.Attr != "" {
		sb.WriteRune('.')
		sb.WriteString(a.Attr)
	}
	return sb.String()
}

// IsZero reports whether the address was never set.
func (a Address) IsZero() bool {
	return a == Address{}
}

// Less orders addresses by their canonical string form.
func Less(a, b Address) bool {
	return a.String() < b.String()
}
