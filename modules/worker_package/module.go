package worker_package

import (
	"context"
	"errors"
	"fmt"
	"path"
	"regexp"
	"strings"

	"github.com/specialistvlad/buildgridgo/internal/ctxlog"
	"github.com/specialistvlad/buildgridgo/internal/nodeid"
	"github.com/specialistvlad/buildgridgo/internal/plan"
	"github.com/specialistvlad/buildgridgo/internal/registry"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Package is one worker package, installed in declaration order.
type Package struct {
	Name         string `hcl:"name,label"`
	Source       string `hcl:"source"`
	Requirements string `hcl:"requirements,optional"`
}

// Launcher is the executable the node starts worker processes with.
type Launcher struct {
	Source string `hcl:"source"`
	Name   string `hcl:"name,optional"`
}

// Input defines the arguments for the 'arguments' HCL block.
type Input struct {
	Dest     string     `hcl:"dest,optional"`
	EnvDir   string     `hcl:"env_dir,optional"`
	Python   string     `hcl:"python,optional"`
	Packages []*Package `hcl:"package,block"`
	Remove   []string   `hcl:"remove,optional"`
	Launcher *Launcher  `hcl:"launcher,block"`

	CreateEnv           string `hcl:"create_env,optional"`
	InstallRequirements string `hcl:"install_requirements,optional"`
	InstallPackage      string `hcl:"install_package,optional"`
	Uninstall           string `hcl:"uninstall,optional"`
	List                string `hcl:"list,optional"`
}

const (
	defaultDest                = "/app/worker"
	defaultEnvDir              = "/app/worker/venv"
	defaultPython              = "python3"
	defaultRequirements        = "requirements.txt"
	defaultLauncher            = "crynux_worker_process"
	defaultCreateEnv           = "{python} -m venv {env}"
	defaultInstallRequirements = "{env}/bin/pip install --no-cache-dir -r {requirements}"
	defaultInstallPackage      = "{env}/bin/pip install --no-cache-dir {source}"
	defaultUninstall           = "{env}/bin/pip uninstall -y {packages}"
	defaultList                = "{env}/bin/pip list --format=freeze"
)

func (in *Input) applyDefaults() {
	defaults := []struct {
		field *string
		value string
	}{
		{&in.Dest, defaultDest},
		{&in.EnvDir, defaultEnvDir},
		{&in.Python, defaultPython},
		{&in.CreateEnv, defaultCreateEnv},
		{&in.InstallRequirements, defaultInstallRequirements},
		{&in.InstallPackage, defaultInstallPackage},
		{&in.Uninstall, defaultUninstall},
		{&in.List, defaultList},
	}
	for _, d := range defaults {
		if *d.field == "" {
			*d.field = d.value
		}
	}
	for _, pkg := range in.Packages {
		if pkg.Requirements == "" {
			pkg.Requirements = defaultRequirements
		}
	}
	if in.Launcher != nil && in.Launcher.Name == "" {
		in.Launcher.Name = defaultLauncher
	}
}

func (in *Input) validate() error {
	var errs []error
	if len(in.Packages) == 0 {
		errs = append(errs, errors.New("at least one package block is required"))
	}
	seen := make(map[string]bool)
	for _, pkg := range in.Packages {
		if !nodeid.ValidName(pkg.Name) {
			errs = append(errs, fmt.Errorf("package name %q is invalid", pkg.Name))
		}
		if seen[pkg.Name] {
			errs = append(errs, fmt.Errorf("package %q declared more than once", pkg.Name))
		}
		seen[pkg.Name] = true
		if !plan.IsLocal(pkg.Requirements) {
			errs = append(errs, fmt.Errorf("package %q: requirements %q must be a path inside its source", pkg.Name, pkg.Requirements))
		}
	}
	for _, name := range in.Remove {
		if strings.TrimSpace(name) == "" {
			errs = append(errs, errors.New("remove entries must not be empty"))
		}
	}
	if in.Launcher == nil {
		errs = append(errs, errors.New("a launcher block is required"))
	} else if !plan.IsLocal(in.Launcher.Name) || strings.Contains(in.Launcher.Name, "/") {
		errs = append(errs, fmt.Errorf("launcher name %q must be a plain file name", in.Launcher.Name))
	}
	if plan.Contains(in.EnvDir, in.Dest) {
		errs = append(errs, fmt.Errorf("env_dir %q must not contain dest %q", in.EnvDir, in.Dest))
	}
	return errors.Join(errs...)
}

// PlanWorkerPackage installs the worker packages into one environment that
// is isolated from the host package, removes the large transitive packages
// the workers must not ship with, and verifies they are really gone.
func PlanWorkerPackage(ctx context.Context, stage string, input *Input) (*plan.Plan, error) {
	input.applyDefaults()
	if err := input.validate(); err != nil {
		return nil, err
	}

	env := plan.QuoteRooted(input.EnvDir)
	p := &plan.Plan{Workdir: input.Dest}
	p.Steps = append(p.Steps, plan.Step{
		Name: "create-env",
		Run:  plan.Expand(input.CreateEnv, map[string]string{"env": env, "python": input.Python}),
		Kind: plan.KindResolve,
	})

	for _, pkg := range input.Packages {
		src := path.Join(input.Dest, "src", pkg.Name)
		p.Inputs = append(p.Inputs, plan.Input{Source: pkg.Source, Dest: src})
		values := map[string]string{
			"env":          env,
			"python":       input.Python,
			"requirements": plan.QuoteRooted(path.Join(src, pkg.Requirements)),
			"source":       plan.QuoteRooted(src),
		}
		p.Steps = append(p.Steps,
			plan.Step{Name: pkg.Name + "-requirements", Run: plan.Expand(input.InstallRequirements, values), Kind: plan.KindResolve},
			plan.Step{Name: pkg.Name + "-install", Run: plan.Expand(input.InstallPackage, values), Kind: plan.KindCompile},
		)
	}

	if len(input.Remove) > 0 {
		quoted := make([]string, len(input.Remove))
		for i, name := range input.Remove {
			quoted[i] = plan.Quote(name)
		}
		p.Steps = append(p.Steps,
			plan.Step{
				Name: "uninstall",
				Run:  plan.Expand(input.Uninstall, map[string]string{"env": env, "packages": strings.Join(quoted, " ")}),
				Kind: plan.KindResolve,
			},
			plan.Step{
				Name: "verify-removed",
				Run:  verifyRemoved(plan.Expand(input.List, map[string]string{"env": env}), input.Remove),
				Kind: plan.KindVerify,
			},
		)
	}

	launcher := path.Join(input.Dest, input.Launcher.Name)
	p.Inputs = append(p.Inputs, plan.Input{Source: input.Launcher.Source, Dest: launcher})
	p.Steps = append(p.Steps, plan.Step{
		Name: "launcher",
		Run:  "chmod 0755 " + plan.QuoteRooted(launcher),
		Kind: plan.KindBuild,
	})

	p.Artifacts = []plan.Artifact{
		{Name: "env", Path: input.EnvDir, Dir: true, Environment: true},
		{Name: "launcher", Path: launcher},
	}

	ctxlog.FromContext(ctx).Debug("Planned worker package.", "stage", stage, "packages", len(input.Packages), "remove", input.Remove)
	return p, nil
}

// verifyRemoved fails when the package listing still mentions a removed
// name, or when the listing command itself fails. Listings print one
// package per line, optionally followed by a version separator.
func verifyRemoved(list string, names []string) string {
	patterns := make([]string, len(names))
	for i, name := range names {
		patterns[i] = regexp.QuoteMeta(name)
	}
	expr := "^(" + strings.Join(patterns, "|") + ")([[:space:]=]|$)"
	msg := "removed packages are still installed: " + strings.Join(names, ", ")
	return fmt.Sprintf(`listing=$(%s) || exit $?; if printf '%%s\n' "$listing" | grep -i -E %s >/dev/null; then echo %s >&2; exit 1; fi`,
		list, plan.Quote(expr), plan.Quote(msg))
}

// Register registers the handler with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterStage("worker_package", &registry.StageHandler{
		NewInput: func() any { return new(Input) },
		Plan: func(ctx context.Context, stage string, input any) (*plan.Plan, error) {
			return PlanWorkerPackage(ctx, stage, input.(*Input))
		},
	})
}
