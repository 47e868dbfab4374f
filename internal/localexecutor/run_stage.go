package localexecutor

import (
	"context"
	"fmt"
	"os"

	"github.com/specialistvlad/buildgridgo/internal/artifact"
	"github.com/specialistvlad/buildgridgo/internal/compose"
	"github.com/specialistvlad/buildgridgo/internal/ctxlog"
	"github.com/specialistvlad/buildgridgo/internal/nodeid"
	"github.com/specialistvlad/buildgridgo/internal/pipeline"
	"github.com/specialistvlad/buildgridgo/internal/plan"
	"github.com/specialistvlad/buildgridgo/internal/session"
)

// stageSteps returns the steps a stage runs. In a container the stage owns
// its toolchains: they are acquired first and removed last, in reverse order.
func (e *Executor) stageSteps(sp *pipeline.StagePlan) []plan.Step {
	if e.appliance() {
		return sp.Plan.Steps
	}
	var steps []plan.Step
	for _, tc := range sp.Toolchains {
		steps = append(steps, plan.ForToolchain(tc)...)
	}
	steps = append(steps, sp.Plan.Steps...)
	for i := len(sp.Toolchains) - 1; i >= 0; i-- {
		steps = append(steps, plan.ReleaseToolchain(sp.Toolchains[i])...)
	}
	return steps
}

// stageLayers returns the environment layers of a stage: base, stage, then
// each toolchain.
func (e *Executor) stageLayers(sp *pipeline.StagePlan) []map[string]string {
	layers := []map[string]string{e.def.Model.Base(sp.Stage.Base.Name).Env, sp.Stage.Env}
	for _, tc := range sp.Toolchains {
		layers = append(layers, tc.Env)
	}
	return layers
}

// runStage builds a stage and records its artifacts.
func (e *Executor) runStage(ctx context.Context, sp *pipeline.StagePlan) error {
	if sp == nil {
		return fmt.Errorf("stage was not resolved")
	}
	id := nodeid.New(nodeid.KindStage, sp.Stage.Name)
	logger := ctxlog.FromContext(ctx)

	root := e.root()
	if !e.appliance() {
		root = e.sess.StageRoot(sp.Stage.Name)
		if err := e.sess.Seed(ctx, root, e.sess.BaseRoot(sp.Stage.Base.Name)); err != nil {
			return err
		}
	}

	for _, in := range sp.Plan.Inputs {
		if err := e.sess.CopyInput(root, in); err != nil {
			return err
		}
	}
	dir := root
	if sp.Plan.Workdir != "" {
		d, err := session.HostPath(root, sp.Plan.Workdir)
		if err != nil {
			return err
		}
		if err := os.MkdirAll(d, 0o755); err != nil {
			return fmt.Errorf("failed to create workdir: %w", err)
		}
		dir = d
	}

	logger.Info("▶️ Building stage.", "kind", sp.Stage.Kind, "steps", len(sp.Plan.Steps))
	if err := e.runSteps(ctx, id, root, dir, e.stageSteps(sp), e.stageLayers(sp)...); err != nil {
		return err
	}

	if err := e.recordArtifacts(ctx, sp, root); err != nil {
		return err
	}
	if m, ok := milestoneByKind[sp.Stage.Kind]; ok {
		e.progress.Mark(m)
	}
	logger.Info("✅ Stage built.", "artifacts", len(sp.Plan.Artifacts))
	return nil
}

// recordArtifacts checks that every declared artifact exists and stores it
// with its listing.
func (e *Executor) recordArtifacts(ctx context.Context, sp *pipeline.StagePlan, root string) error {
	paths := make([]string, len(sp.Plan.Artifacts))
	for i, a := range sp.Plan.Artifacts {
		hp, err := session.HostPath(root, a.Path)
		if err != nil {
			return err
		}
		info, err := os.Stat(hp)
		if err != nil {
			return fmt.Errorf("%w: stage '%s' did not produce %s at %s", compose.ErrMissingArtifact, sp.Stage.Name, a.Name, a.Path)
		}
		if a.Dir != info.IsDir() {
			return fmt.Errorf("%w: artifact %s at %s has the wrong type (directory: %t)", compose.ErrMissingArtifact, a.Name, a.Path, info.IsDir())
		}
		paths[i] = hp
	}

	listings, err := artifact.ListAll(ctx, paths, e.opts.ListConcurrency)
	if err != nil {
		return err
	}
	for i, a := range sp.Plan.Artifacts {
		rec := &artifact.Record{
			Address:  nodeid.Artifact(sp.Stage.Name, a.Name),
			Artifact: a,
			HostPath: paths[i],
			Listing:  listings[i],
		}
		if err := e.store.Put(rec); err != nil {
			return err
		}
		ctxlog.FromContext(ctx).Debug("Recorded artifact.", "artifact", rec.Address, "entries", len(rec.Listing), "digest", rec.Listing.Digest())
	}
	return nil
}
