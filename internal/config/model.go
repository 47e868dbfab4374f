package config

import (
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/specialistvlad/buildgridgo/internal/nodeid"
	"github.com/zclconf/go-cty/cty"
)

// DefaultMode is the launcher argument used when a composition declares no cmd.
const DefaultMode = "run"

// DefaultSearchPath is the executable search path of a runtime base.
const DefaultSearchPath = "/usr/local/sbin:/usr/local/bin:/usr/sbin:/usr/bin:/sbin:/bin"

// Flavor distinguishes bases that carry build tooling from those that ship.
type Flavor string

const (
	FlavorDevelopment Flavor = "development"
	FlavorRuntime     Flavor = "runtime"
)

// Model is the unified, format-agnostic representation of a pipeline
// definition. Slices keep declaration order.
type Model struct {
	Variables  map[string]cty.Value
	Bases      []*Base
	Toolchains []*Toolchain
	Stages     []*Stage
	Composes   []*Compose

	// EvalContext is used to decode stage arguments once their handler is known.
	EvalContext *hcl.EvalContext
}

// Base is the format-agnostic representation of a `base` block.
type Base struct {
	Name     string
	Flavor   Flavor
	Image    string
	Packages []string
	Run      []string
	Env      map[string]string
}

// Toolchain is a build-only tool. Paths lists every location it occupies
// once installed; none of them may survive into a final artifact.
type Toolchain struct {
	Name        string
	Description string
	Install     []string
	Remove      []string
	Paths       []string
	Env         map[string]string
}

// Stage is the format-agnostic representation of a `stage` block.
type Stage struct {
	Name       string
	Kind       string
	Base       nodeid.Address
	Toolchains []nodeid.Address
	Env        map[string]string
	// Arguments is decoded by the stage handler registered for Kind.
	Arguments hcl.Body
}

// Compose is the format-agnostic representation of a `compose` block.
type Compose struct {
	Name       string
	Base       nodeid.Address
	Workdir    string
	Path       []string
	Copies     []*Copy
	Env        map[string]string
	Entrypoint []string
	Cmd        []string
	Forbid     []string
	Appliance  *Appliance
}

// Copy moves either a stage artifact or a static file from the build
// context into the final filesystem.
type Copy struct {
	From   *nodeid.Address
	Source string
	To     string
	Mode   string
}

// Appliance describes the single-filesystem variant of a composition.
type Appliance struct {
	Base        nodeid.Address
	Services    []*Service
	LibraryPath []string
	Profile     string
}

// Service is a persistent unit pointing at the composition's launcher.
type Service struct {
	Name             string
	Description      string
	User             string
	Restart          string
	Args             []string
	WorkingDirectory string
}

// EffectiveCmd returns the default launcher arguments.
func (c *Compose) EffectiveCmd() []string {
	if len(c.Cmd) == 0 {
		return []string{DefaultMode}
	}
	return c.Cmd
}

// SearchPath returns the PATH value the final filesystem runs with: the
// composition's directories ahead of the PATH inherited from its base.
func (c *Compose) SearchPath(inherited string) string {
	return strings.Join(append(append([]string{}, c.Path...), inherited), ":")
}

// SearchPath returns the PATH a base declares, or DefaultSearchPath.
func (b *Base) SearchPath() string {
	if p := b.Env["PATH"]; p != "" {
		return p
	}
	return DefaultSearchPath
}

// Base returns the base with the given name, or nil.
func (m *Model) Base(name string) *Base {
	for _, b := range m.Bases {
		if b.Name == name {
			return b
		}
	}
	return nil
}

// Toolchain returns the toolchain with the given name, or nil.
func (m *Model) Toolchain(name string) *Toolchain {
	for _, tc := range m.Toolchains {
		if tc.Name == name {
			return tc
		}
	}
	return nil
}

// Stage returns the stage with the given name, or nil.
func (m *Model) Stage(name string) *Stage {
	for _, s := range m.Stages {
		if s.Name == name {
			return s
		}
	}
	return nil
}

// Compose returns the composition with the given name, or nil.
func (m *Model) Compose(name string) *Compose {
	for _, c := range m.Composes {
		if c.Name == name {
			return c
		}
	}
	return nil
}
