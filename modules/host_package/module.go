package host_package

import (
	"context"
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
	Source       string `hcl:"source"`
	Dest         string `hcl:"dest,optional"`
	EnvDir       string `hcl:"env_dir,optional"`
	Python       string `hcl:"python,optional"`
	Requirements string `hcl:"requirements,optional"`
	// BuildEnv holds native-compile flags. It applies to the package
	// installation step and nothing else.
	BuildEnv map[string]string `hcl:"build_env,optional"`

	CreateEnv           string `hcl:"create_env,optional"`
	InstallRequirements string `hcl:"install_requirements,optional"`
	InstallPackage      string `hcl:"install_package,optional"`
}

const (
	defaultDest                = "/app/host"
	defaultEnvDir              = "/app/venv"
	defaultPython              = "python3"
	defaultRequirements        = "requirements.txt"
	defaultCreateEnv           = "{python} -m venv {env}"
	defaultInstallRequirements = "{env}/bin/pip install --no-cache-dir -r {requirements}"
	defaultInstallPackage      = "{env}/bin/pip install --no-cache-dir {source}"
)

func (in *Input) applyDefaults() {
	defaults := []struct {
		field *string
		value string
	}{
		{&in.Dest, defaultDest},
		{&in.EnvDir, defaultEnvDir},
		{&in.Python, defaultPython},
		{&in.Requirements, defaultRequirements},
		{&in.CreateEnv, defaultCreateEnv},
		{&in.InstallRequirements, defaultInstallRequirements},
		{&in.InstallPackage, defaultInstallPackage},
	}
	for _, d := range defaults {
		if *d.field == "" {
			*d.field = d.value
		}
	}
}

// PlanHostPackage installs the host coordination package into its own
// isolated environment: pinned requirements first, then the package itself,
// whose native extension is compiled with BuildEnv.
func PlanHostPackage(ctx context.Context, stage string, input *Input) (*plan.Plan, error) {
	input.applyDefaults()
	if !plan.IsLocal(input.Requirements) {
		return nil, fmt.Errorf("requirements %q must be a path inside the source tree", input.Requirements)
	}
	if plan.Contains(input.EnvDir, input.Dest) {
		return nil, fmt.Errorf("env_dir %q must not contain the source destination %q", input.EnvDir, input.Dest)
	}

	values := map[string]string{
		"env":          plan.QuoteRooted(input.EnvDir),
		"python":       input.Python,
		"requirements": plan.QuoteRooted(path.Join(input.Dest, input.Requirements)),
		"source":       plan.QuoteRooted(input.Dest),
	}
	ctxlog.FromContext(ctx).Debug("Planned host package.", "stage", stage, "env", input.EnvDir, "build_env", len(input.BuildEnv))

	return &plan.Plan{
		Workdir: input.Dest,
		Inputs:  []plan.Input{{Source: input.Source, Dest: input.Dest}},
		Steps: []plan.Step{
			{Name: "create-env", Run: plan.Expand(input.CreateEnv, values), Kind: plan.KindResolve},
			{Name: "install-requirements", Run: plan.Expand(input.InstallRequirements, values), Kind: plan.KindResolve},
			{Name: "install-package", Run: plan.Expand(input.InstallPackage, values), Env: input.BuildEnv, Kind: plan.KindCompile},
		},
		Artifacts: []plan.Artifact{
			{Name: "env", Path: input.EnvDir, Dir: true, Environment: true},
		},
	}, nil
}

// Register registers the handler with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterStage("host_package", &registry.StageHandler{
		NewInput: func() any { return new(Input) },
		Plan: func(ctx context.Context, stage string, input any) (*plan.Plan, error) {
			return PlanHostPackage(ctx, stage, input.(*Input))
		},
	})
}
