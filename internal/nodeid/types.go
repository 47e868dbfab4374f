// internal/nodeid/types.go
package nodeid

// Kind is the first segment of an address.
type Kind string

const (
	KindBase        Kind = "base"
	KindToolchain   Kind = "toolchain"
	KindStage       Kind = "stage"
	KindCompose     Kind = "compose"
	KindService     Kind = "service"
	KindEnvironment Kind = "environment"
	KindPurge       Kind = "purge"
	KindRelease     Kind = "release"
)

// referenceKinds are the kinds a pipeline author may reference from HCL.
var referenceKinds = map[Kind]bool{
	KindBase:      true,
	KindToolchain: true,
	KindStage:     true,
	KindCompose:   true,
}

// Address is the structured representation of a block, graph node or
// artifact identifier. Attr is empty for block and node addresses.
type Address struct {
	Kind Kind
	Name string
	Attr string
}

// New creates a block or node address.
func New(kind Kind, name string) Address {
	return Address{Kind: kind, Name: name}
}

// Artifact creates the address of a named artifact of a stage.
func Artifact(stage, name string) Address {
	return Address{Kind: KindStage, Name: stage, Attr: name}
}

// IsArtifact reports whether the address points at a stage output.
func (a Address) IsArtifact() bool {
	return a.Kind == KindStage && a.Attr != ""
}

// Block drops the attribute, yielding the address of the owning block.
func (a Address) Block() Address {
	return Address{Kind: a.Kind, Name: a.Name}
}
