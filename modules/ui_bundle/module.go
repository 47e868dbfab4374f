package ui_bundle

import (
	"context"
	"errors"
	"fmt"
	"path"

	"github.com/specialistvlad/buildgridgo/internal/ctxlog"
	"github.com/specialistvlad/buildgridgo/internal/plan"
	"github.com/specialistvlad/buildgridgo/internal/registry"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Input defines the arguments for the 'arguments' HCL block.
type Input struct {
	Source   string `hcl:"source"`
	Dest     string `hcl:"dest,optional"`
	Lockfile string `hcl:"lockfile,optional"`
	Install  string `hcl:"install,optional"`
	Build    string `hcl:"build,optional"`
	Output   string `hcl:"output,optional"`
}

const (
	defaultDest     = "/app/webui"
	defaultLockfile = "yarn.lock"
	defaultInstall  = "yarn install --frozen-lockfile"
	defaultBuild    = "yarn build"
	defaultOutput   = "dist"
)

func (in *Input) applyDefaults() {
	if in.Dest == "" {
		in.Dest = defaultDest
	}
	if in.Lockfile == "" {
		in.Lockfile = defaultLockfile
	}
	if in.Install == "" {
		in.Install = defaultInstall
	}
	if in.Build == "" {
		in.Build = defaultBuild
	}
	if in.Output == "" {
		in.Output = defaultOutput
	}
}

// PlanUIBundle builds a static UI bundle from a source tree. Dependencies are
// installed strictly from the lockfile; a missing lockfile fails the stage.
func PlanUIBundle(ctx context.Context, stage string, input *Input) (*plan.Plan, error) {
	input.applyDefaults()
	if !plan.IsLocal(input.Output) {
		return nil, fmt.Errorf("output %q must be a clean path relative to dest", input.Output)
	}
	if !plan.IsLocal(input.Lockfile) {
		return nil, errors.New("lockfile must be a path inside the source tree")
	}

	bundle := path.Join(input.Dest, input.Output)
	ctxlog.FromContext(ctx).Debug("Planned UI bundle.", "stage", stage, "bundle", bundle)

	return &plan.Plan{
		Workdir: input.Dest,
		Inputs:  []plan.Input{{Source: input.Source, Dest: input.Dest}},
		Steps: []plan.Step{
			{
				Name: "lockfile",
				Run:  fmt.Sprintf("test -f %s || { echo %s >&2; exit 1; }", plan.Quote(input.Lockfile), plan.Quote("dependency lockfile "+input.Lockfile+" is missing")),
				Kind: plan.KindVerify,
			},
			{Name: "install", Run: input.Install, Kind: plan.KindResolve},
			{Name: "build", Run: input.Build, Kind: plan.KindBuild},
		},
		Artifacts: []plan.Artifact{
			{Name: "bundle", Path: bundle, Dir: true},
		},
	}, nil
}

// Register registers the handler with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterStage("ui_bundle", &registry.StageHandler{
		NewInput: func() any { return new(Input) },
		Plan: func(ctx context.Context, stage string, input any) (*plan.Plan, error) {
			return PlanUIBundle(ctx, stage, input.(*Input))
		},
	})
}
