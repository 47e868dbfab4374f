package shell

import (
	"context"
	"fmt"

	"github.com/specialistvlad/buildgridgo/internal/ctxlog"
	"github.com/specialistvlad/buildgridgo/internal/plan"
	"github.com/specialistvlad/buildgridgo/internal/registry"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// ContextInput copies a path of the build context into the stage.
type ContextInput struct {
	Source string `hcl:"source"`
	Dest   string `hcl:"dest"`
}

// Step is a user-declared command.
type Step struct {
	Name string            `hcl:"name,label"`
	Run  string            `hcl:"run"`
	Env  map[string]string `hcl:"env,optional"`
	Kind string            `hcl:"kind,optional"`
}

// Artifact is a user-declared stage output.
type Artifact struct {
	Name        string `hcl:"name,label"`
	Path        string `hcl:"path"`
	Dir         bool   `hcl:"dir,optional"`
	Environment bool   `hcl:"environment,optional"`
}

// Input defines the arguments for the 'arguments' HCL block.
type Input struct {
	Workdir   string          `hcl:"workdir,optional"`
	Inputs    []*ContextInput `hcl:"input,block"`
	Steps     []*Step         `hcl:"step,block"`
	Artifacts []*Artifact     `hcl:"artifact,block"`
}

// PlanShell maps the arguments one to one onto a plan. Steps without a kind
// are build steps.
func PlanShell(ctx context.Context, stage string, input *Input) (*plan.Plan, error) {
	p := &plan.Plan{Workdir: input.Workdir}
	for _, in := range input.Inputs {
		p.Inputs = append(p.Inputs, plan.Input{Source: in.Source, Dest: in.Dest})
	}
	for _, s := range input.Steps {
		kind := plan.StepKind(s.Kind)
		if kind == "" {
			kind = plan.KindBuild
		}
		p.Steps = append(p.Steps, plan.Step{Name: s.Name, Run: s.Run, Env: s.Env, Kind: kind})
	}
	for _, a := range input.Artifacts {
		p.Artifacts = append(p.Artifacts, plan.Artifact{
			Name:        a.Name,
			Path:        a.Path,
			Dir:         a.Dir || a.Environment,
			Environment: a.Environment,
		})
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("stage '%s': %w", stage, err)
	}
	ctxlog.FromContext(ctx).Debug("Planned shell stage.", "stage", stage, "steps", len(p.Steps))
	return p, nil
}

// Register registers the handler with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterStage("shell", &registry.StageHandler{
		NewInput: func() any { return new(Input) },
		Plan: func(ctx context.Context, stage string, input any) (*plan.Plan, error) {
			return PlanShell(ctx, stage, input.(*Input))
		},
	})
}
