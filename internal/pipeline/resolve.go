package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/specialistvlad/buildgridgo/internal/compose"
	"github.com/specialistvlad/buildgridgo/internal/config"
	"github.com/specialistvlad/buildgridgo/internal/ctxlog"
	"github.com/specialistvlad/buildgridgo/internal/nodeid"
	"github.com/specialistvlad/buildgridgo/internal/plan"
	"github.com/specialistvlad/buildgridgo/internal/registry"
)

// StagePlan is a stage together with its resolved plan.
type StagePlan struct {
	Stage      *config.Stage
	Plan       *plan.Plan
	Toolchains []*config.Toolchain
}

// Definition is a fully resolved pipeline.
type Definition struct {
	Model  *config.Model
	stages map[string]*StagePlan
}

// Resolve decodes every stage's arguments with its registered handler and
// checks the rules that need all plans at once.
func Resolve(ctx context.Context, model *config.Model, reg *registry.Registry) (*Definition, error) {
	logger := ctxlog.FromContext(ctx)
	if err := reg.ValidateModel(ctx, model); err != nil {
		return nil, err
	}

	def := &Definition{Model: model, stages: make(map[string]*StagePlan)}
	var errs []error
	for _, stage := range model.Stages {
		sp, err := resolveStage(ctx, model, reg, stage)
		if err != nil {
			errs = append(errs, fmt.Errorf("stage '%s': %w", stage.Name, err))
			continue
		}
		def.stages[stage.Name] = sp
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	if err := def.checkArtifacts(); err != nil {
		return nil, err
	}
	logger.Debug("Pipeline resolved.", "stages", len(def.stages))
	return def, nil
}

func resolveStage(ctx context.Context, model *config.Model, reg *registry.Registry, stage *config.Stage) (*StagePlan, error) {
	h, _ := reg.Stage(stage.Kind)
	input := h.NewInput()
	if diags := gohcl.DecodeBody(stage.Arguments, model.EvalContext, input); diags.HasErrors() {
		return nil, diags
	}
	p, err := h.Plan(ctx, stage.Name, input)
	if err != nil {
		return nil, err
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}

	sp := &StagePlan{Stage: stage, Plan: p}
	for _, ref := range stage.Toolchains {
		sp.Toolchains = append(sp.Toolchains, model.Toolchain(ref.Name))
	}
	return sp, nil
}

// checkArtifacts enforces that environments are disjoint subtrees, that no
// artifact lives inside a toolchain path and that every copy rule names a
// declared artifact.
func (d *Definition) checkArtifacts() error {
	var names, paths []string
	for _, stage := range d.Model.Stages {
		sp := d.stages[stage.Name]
		for _, a := range sp.Plan.Artifacts {
			addr := nodeid.Artifact(stage.Name, a.Name)
			for _, tc := range d.Model.Toolchains {
				for _, p := range tc.Paths {
					if plan.Contains(p, a.Path) || plan.Contains(a.Path, p) {
						return fmt.Errorf("%w: artifact %s at %s overlaps toolchain.%s path %s", compose.ErrForbiddenPath, addr, a.Path, tc.Name, p)
					}
				}
			}
			if a.Environment {
				names = append(names, addr.String())
				paths = append(paths, a.Path)
			}
		}
	}
	if err := compose.CheckDisjoint(names, paths); err != nil {
		return err
	}

	for _, c := range d.Model.Composes {
		var envNames, envTargets []string
		for i, cp := range c.Copies {
			if cp.From == nil {
				continue
			}
			a, err := d.Artifact(*cp.From)
			if err != nil {
				return fmt.Errorf("compose %q copy #%d: %w", c.Name, i+1, err)
			}
			if a.Environment {
				envNames = append(envNames, cp.From.String())
				envTargets = append(envTargets, cp.To)
			}
		}
		if err := compose.CheckDisjoint(envNames, envTargets); err != nil {
			return fmt.Errorf("compose %q: %w", c.Name, err)
		}
	}
	return nil
}

// StagePlan returns the resolved stage, or nil.
func (d *Definition) StagePlan(name string) *StagePlan {
	return d.stages[name]
}

// Artifact returns the declaration of an artifact address.
func (d *Definition) Artifact(addr nodeid.Address) (plan.Artifact, error) {
	sp := d.stages[addr.Name]
	if sp == nil || !addr.IsArtifact() {
		return plan.Artifact{}, fmt.Errorf("%w: %s does not name a stage artifact", compose.ErrMissingArtifact, addr)
	}
	a, ok := sp.Plan.Artifact(addr.Attr)
	if !ok {
		return plan.Artifact{}, fmt.Errorf("%w: stage '%s' declares no artifact '%s'", compose.ErrMissingArtifact, addr.Name, addr.Attr)
	}
	return a, nil
}

// Compose returns the named composition. An empty name selects the only
// composition of the pipeline.
func (d *Definition) Compose(name string) (*config.Compose, error) {
	if name == "" {
		if len(d.Model.Composes) != 1 {
			return nil, fmt.Errorf("pipeline declares %d compositions, select one by name", len(d.Model.Composes))
		}
		return d.Model.Composes[0], nil
	}
	c := d.Model.Compose(name)
	if c == nil {
		return nil, fmt.Errorf("compose %q is not declared", name)
	}
	return c, nil
}

// StagesFor returns the stages a composition copies from, in declaration
// order. Stages nothing copies from are not built.
func (d *Definition) StagesFor(c *config.Compose) []*StagePlan {
	used := make(map[string]bool)
	for _, cp := range c.Copies {
		if cp.From != nil {
			used[cp.From.Name] = true
		}
	}
	var out []*StagePlan
	for _, stage := range d.Model.Stages {
		if used[stage.Name] {
			out = append(out, d.stages[stage.Name])
		}
	}
	return out
}

// ToolchainsFor returns the toolchains the given stages use, in order of
// first use.
func ToolchainsFor(stages []*StagePlan) []*config.Toolchain {
	seen := make(map[string]bool)
	var out []*config.Toolchain
	for _, sp := range stages {
		for _, tc := range sp.Toolchains {
			if !seen[tc.Name] {
				seen[tc.Name] = true
				out = append(out, tc)
			}
		}
	}
	return out
}
