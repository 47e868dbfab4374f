package hcl_adapter

import "github.com/hashicorp/hcl/v2"

// fileRoot is a struct used to decode all possible top-level blocks from any file.
type fileRoot struct {
	Variables  []*Variable  `hcl:"variable,block"`
	Bases      []*Base      `hcl:"base,block"`
	Toolchains []*Toolchain `hcl:"toolchain,block"`
	Stages     []*Stage     `hcl:"stage,block"`
	Composes   []*Compose   `hcl:"compose,block"`
	Remain     hcl.Body     `hcl:",remain"`
}

// variablesRoot decodes only the variable blocks, leaving everything else
// for the second pass once the evaluation context exists.
type variablesRoot struct {
	Variables []*Variable `hcl:"variable,block"`
	Remain    hcl.Body    `hcl:",remain"`
}

// Variable maps a `variable` block.
type Variable struct {
	Name        string         `hcl:"name,label"`
	Description string         `hcl:"description,optional"`
	Default     hcl.Expression `hcl:"default,optional"`
}

// Base maps a `base` block.
type Base struct {
	Name     string            `hcl:"name,label"`
	Flavor   string            `hcl:"flavor"`
	Image    string            `hcl:"image,optional"`
	Packages []string          `hcl:"packages,optional"`
	Run      []string          `hcl:"run,optional"`
	Env      map[string]string `hcl:"env,optional"`
}

// Toolchain maps a `toolchain` block.
type Toolchain struct {
	Name        string            `hcl:"name,label"`
	Description string            `hcl:"description,optional"`
	Install     []string          `hcl:"install"`
	Remove      []string          `hcl:"remove,optional"`
	Paths       []string          `hcl:"paths"`
	Env         map[string]string `hcl:"env,optional"`
}

// Stage maps a `stage` block. Arguments stay raw until the handler for
// Kind supplies the schema.
type Stage struct {
	Name       string            `hcl:"name,label"`
	Kind       string            `hcl:"kind"`
	Base       hcl.Expression    `hcl:"base"`
	Toolchains hcl.Expression    `hcl:"toolchains,optional"`
	Env        map[string]string `hcl:"env,optional"`
	Arguments  *Arguments        `hcl:"arguments,block"`
}

// Arguments captures the body of an `arguments` block.
type Arguments struct {
	Body hcl.Body `hcl:",remain"`
}

// Compose maps a `compose` block.
type Compose struct {
	Name       string            `hcl:"name,label"`
	Base       hcl.Expression    `hcl:"base"`
	Workdir    string            `hcl:"workdir,optional"`
	Path       []string          `hcl:"path,optional"`
	Copies     []*Copy           `hcl:"copy,block"`
	Env        map[string]string `hcl:"env,optional"`
	Entrypoint []string          `hcl:"entrypoint"`
	Cmd        []string          `hcl:"cmd,optional"`
	Forbid     []string          `hcl:"forbid,optional"`
	Appliance  *Appliance        `hcl:"appliance,block"`
}

// Copy maps a `copy` block inside `compose`.
type Copy struct {
	From   hcl.Expression `hcl:"from,optional"`
	Source string         `hcl:"source,optional"`
	To     string         `hcl:"to"`
	Mode   string         `hcl:"mode,optional"`
}

// Appliance maps the `appliance` block inside `compose`.
type Appliance struct {
	Base        hcl.Expression `hcl:"base"`
	Services    []*Service     `hcl:"service,block"`
	LibraryPath []string       `hcl:"library_path,optional"`
	Profile     string         `hcl:"profile,optional"`
}

// Service maps a `service` block inside `appliance`.
type Service struct {
	Name             string   `hcl:"name,label"`
	Description      string   `hcl:"description,optional"`
	User             string   `hcl:"user,optional"`
	Restart          string   `hcl:"restart,optional"`
	Args             []string `hcl:"args,optional"`
	WorkingDirectory string   `hcl:"working_directory,optional"`
}
