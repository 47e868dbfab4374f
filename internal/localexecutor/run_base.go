package localexecutor

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/specialistvlad/buildgridgo/internal/ctxlog"
	"github.com/specialistvlad/buildgridgo/internal/nodeid"
	"github.com/specialistvlad/buildgridgo/internal/plan"
)

// ErrImageOnly marks pipeline features only the rendered backends provide.
var ErrImageOnly = errors.New("not supported by local builds")

// preflight rejects layouts a host-side build cannot honour. Distribution
// packages install into the build host, never into a base root.
func (e *Executor) preflight() error {
	for _, n := range e.layout.Nodes {
		if n.ID.Kind != nodeid.KindBase {
			continue
		}
		if b := e.def.Model.Base(n.ID.Name); b != nil && len(b.Packages) > 0 {
			return fmt.Errorf("base '%s' declares packages %v: %w; render it with -mode render instead", b.Name, b.Packages, ErrImageOnly)
		}
	}
	return nil
}

// runBase provisions a base. Container bases get a root of their own; the
// appliance base provisions the root being assembled.
func (e *Executor) runBase(ctx context.Context, id nodeid.Address) error {
	logger := ctxlog.FromContext(ctx)
	b := e.def.Model.Base(id.Name)
	if b == nil {
		return fmt.Errorf("base '%s' is not declared", id.Name)
	}

	root := e.sess.BaseRoot(b.Name)
	if e.appliance() {
		root = e.root()
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return fmt.Errorf("failed to create base root: %w", err)
	}

	logger.Debug("Provisioning base.", "flavor", b.Flavor, "image", b.Image, "root", root)
	if err := e.runSteps(ctx, id, root, root, plan.ForBase(b), b.Env); err != nil {
		return err
	}

	if e.appliance() || id == e.layout.Compose.Base {
		e.progress.Mark(MilestoneBaseReady)
	}
	logger.Info("✅ Base ready.", "base", b.Name)
	return nil
}

// runToolchain acquires an appliance toolchain into the shared root and
// registers its removal with the run scope.
func (e *Executor) runToolchain(ctx context.Context, id nodeid.Address) error {
	logger := ctxlog.FromContext(ctx)
	tc := e.def.Model.Toolchain(id.Name)
	if tc == nil {
		return fmt.Errorf("toolchain '%s' is not declared", id.Name)
	}
	root := e.root()
	base := e.def.Model.Base(e.layout.Compose.Appliance.Base.Name)

	if err := e.runSteps(ctx, id, root, root, plan.ForToolchain(tc), base.Env); err != nil {
		return err
	}

	e.scope.Acquire(id.String(), func(ctx context.Context) error {
		if err := e.runSteps(ctx, id, root, root, plan.ReleaseToolchain(tc), base.Env); err != nil {
			return err
		}
		e.mu.Lock()
		e.purged = append(e.purged, tc.Name)
		e.mu.Unlock()
		return nil
	})
	logger.Info("✅ Toolchain acquired.", "toolchain", tc.Name, "paths", tc.Paths)
	return nil
}
