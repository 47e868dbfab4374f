package localexecutor

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/specialistvlad/buildgridgo/internal/artifact"
	"github.com/specialistvlad/buildgridgo/internal/compose"
	"github.com/specialistvlad/buildgridgo/internal/ctxlog"
	"github.com/specialistvlad/buildgridgo/internal/dag"
	"github.com/specialistvlad/buildgridgo/internal/nodeid"
	"github.com/specialistvlad/buildgridgo/internal/pipeline"
	"github.com/specialistvlad/buildgridgo/internal/plan"
	"github.com/specialistvlad/buildgridgo/internal/runner"
	"github.com/specialistvlad/buildgridgo/internal/session"
)

// Options tune a local build.
type Options struct {
	Workers int
	// Inherit lists host variables passed to steps on top of runner.DefaultInherit.
	Inherit []string
	// ListConcurrency bounds how many artifact listings are computed at once.
	ListConcurrency int
}

// Status is a point-in-time view of a run.
type Status struct {
	Compose    string            `json:"compose"`
	Target     string            `json:"target"`
	Phase      Phase             `json:"phase"`
	Milestones []Milestone       `json:"milestones"`
	Nodes      map[string]string `json:"nodes"`
}

// Result is the outcome of a run.
type Result struct {
	Compose    string
	Target     pipeline.Target
	ReleaseDir string
	Phase      Phase
	Milestones []Milestone
	States     map[string]dag.State
	Artifacts  []*artifact.Record
	Manifest   *compose.Manifest
}

// Executor runs one layout against one session.
type Executor struct {
	def      *pipeline.Definition
	layout   *pipeline.Layout
	sess     *session.Session
	store    *artifact.Store
	runner   *runner.Runner
	progress *Progress
	scope    *dag.Scope
	opts     Options

	mu       sync.Mutex
	states   map[string]dag.State
	placed   []compose.Placed
	purged   []string
	manifest *compose.Manifest
	release  string
}

// New prepares a local build of a layout.
func New(def *pipeline.Definition, layout *pipeline.Layout, sess *session.Session, opts Options) *Executor {
	if opts.ListConcurrency <= 0 {
		opts.ListConcurrency = 4
	}
	e := &Executor{
		def:      def,
		layout:   layout,
		sess:     sess,
		store:    artifact.NewStore(),
		runner:   runner.New(opts.Inherit...),
		progress: NewProgress(layout.Target),
		scope:    dag.NewScope(),
		opts:     opts,
		states:   make(map[string]dag.State),
	}
	for _, n := range layout.Nodes {
		e.states[n.ID.String()] = dag.Pending
	}
	return e
}

// Progress returns the phase machine of the run.
func (e *Executor) Progress() *Progress {
	return e.progress
}

// Store returns the artifact store of the run.
func (e *Executor) Store() *artifact.Store {
	return e.store
}

// Status returns a snapshot for the health endpoint.
func (e *Executor) Status() Status {
	e.mu.Lock()
	nodes := make(map[string]string, len(e.states))
	for id, s := range e.states {
		nodes[id] = s.String()
	}
	e.mu.Unlock()
	return Status{
		Compose:    e.layout.Compose.Name,
		Target:     string(e.layout.Target),
		Phase:      e.progress.Phase(),
		Milestones: e.progress.Milestones(),
		Nodes:      nodes,
	}
}

func (e *Executor) observe(id string, state dag.State, _ error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.states[id] = state
}

// Run builds the layout. On failure nothing is published and the staging
// directory is removed.
func (e *Executor) Run(ctx context.Context) (*Result, error) {
	logger := ctxlog.FromContext(ctx).With("compose", e.layout.Compose.Name, "target", e.layout.Target)
	ctx = ctxlog.WithLogger(ctx, logger)

	g, err := e.layout.Graph(e.bind)
	if err != nil {
		return nil, fmt.Errorf("failed to build execution graph: %w", err)
	}
	if err := e.preflight(); err != nil {
		return nil, errors.Join(err, e.sess.Discard())
	}
	if err := e.progress.Advance(PhaseBuilding); err != nil {
		return nil, err
	}

	logger.Info("▶️ Starting build.", "nodes", len(e.layout.Nodes), "workers", e.opts.Workers)
	exec := dag.NewExecutor(g, e.opts.Workers, dag.WithObserver(e.observe), dag.WithScope(e.scope))
	runErr := exec.Run(ctx)

	res := e.result(exec.States())
	if runErr != nil {
		e.progress.Fail()
		res.Phase = PhaseFailed
		if discardErr := e.sess.Discard(); discardErr != nil {
			runErr = errors.Join(runErr, discardErr)
		}
		logger.Error("Build failed.", "error", runErr)
		return res, runErr
	}
	logger.Info("🏁 Build finished.", "release", res.ReleaseDir)
	return res, nil
}

func (e *Executor) result(states map[string]dag.State) *Result {
	e.mu.Lock()
	defer e.mu.Unlock()
	return &Result{
		Compose:    e.layout.Compose.Name,
		Target:     e.layout.Target,
		ReleaseDir: e.release,
		Phase:      e.progress.Phase(),
		Milestones: e.progress.Milestones(),
		States:     states,
		Artifacts:  e.store.All(),
		Manifest:   e.manifest,
	}
}

// bind returns the task of a layout node.
func (e *Executor) bind(n pipeline.Node) dag.Task {
	id := n.ID
	name := id.Name
	switch id.Kind {
	case nodeid.KindBase:
		return func(ctx context.Context) error { return e.runBase(ctx, id) }
	case nodeid.KindToolchain:
		return func(ctx context.Context) error { return e.runToolchain(ctx, id) }
	case nodeid.KindStage:
		return func(ctx context.Context) error { return e.runStage(ctx, e.def.StagePlan(name)) }
	case nodeid.KindCompose:
		return e.runCompose
	case nodeid.KindService:
		return e.runService
	case nodeid.KindEnvironment:
		return e.runEnvironment
	case nodeid.KindPurge:
		return e.runPurge
	case nodeid.KindRelease:
		return e.runRelease
	}
	return func(context.Context) error {
		return fmt.Errorf("no task for node kind %q", id.Kind)
	}
}

// root is the filesystem the final artifact is assembled in.
func (e *Executor) root() string {
	return e.sess.StagingRoot(e.layout.Compose.Name)
}

func (e *Executor) appliance() bool {
	return e.layout.Target == pipeline.TargetAppliance
}

// runSteps runs steps in order, stopping at the first failure.
func (e *Executor) runSteps(ctx context.Context, id nodeid.Address, root, dir string, steps []plan.Step, layers ...map[string]string) error {
	for _, step := range steps {
		err := e.runner.Run(ctx, runner.Spec{
			Node:    id.String(),
			Step:    step,
			Dir:     dir,
			Root:    root,
			Layers:  layers,
			LogPath: e.sess.LogPath(id),
		})
		if err != nil {
			return err
		}
	}
	return nil
}
