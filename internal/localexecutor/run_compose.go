package localexecutor

import (
	"context"
	"fmt"
	"os"

	"github.com/specialistvlad/buildgridgo/internal/compose"
	"github.com/specialistvlad/buildgridgo/internal/ctxlog"
	"github.com/specialistvlad/buildgridgo/internal/nodeid"
	"github.com/specialistvlad/buildgridgo/internal/session"
)

// resolve returns the host path of a recorded artifact.
func (e *Executor) resolve(addr nodeid.Address) (string, error) {
	rec, err := e.store.Get(addr)
	if err != nil {
		return "", err
	}
	return rec.HostPath, nil
}

// runCompose assembles the final filesystem. A container starts from a copy
// of its runtime base; an appliance already is its root.
func (e *Executor) runCompose(ctx context.Context) error {
	logger := ctxlog.FromContext(ctx)
	c := e.layout.Compose
	root := e.root()

	if !e.appliance() {
		if err := e.sess.Seed(ctx, root, e.sess.BaseRoot(c.Base.Name)); err != nil {
			return err
		}
	}
	placed, err := compose.Apply(ctx, root, c, e.resolve, e.sess.ContextDir)
	if err != nil {
		return err
	}

	e.mu.Lock()
	e.placed = placed
	e.mu.Unlock()
	if err := e.progress.Advance(PhaseComposed); err != nil {
		return err
	}
	logger.Info("✅ Composed final filesystem.", "copies", len(placed))
	return nil
}

// runService installs and enables every appliance service.
func (e *Executor) runService(ctx context.Context) error {
	logger := ctxlog.FromContext(ctx)
	c := e.layout.Compose
	for _, svc := range c.Appliance.Services {
		unitPath, err := compose.InstallService(e.root(), c, svc)
		if err != nil {
			return err
		}
		logger.Info("✅ Service registered.", "unit", unitPath)
	}
	return e.progress.Advance(PhaseServiceRegistered)
}

// runEnvironment installs the login profile hook.
func (e *Executor) runEnvironment(ctx context.Context) error {
	p, err := compose.InstallProfile(e.root(), e.layout.Compose)
	if err != nil {
		return err
	}
	ctxlog.FromContext(ctx).Info("✅ Environment configured.", "profile", p)
	return e.progress.Advance(PhaseEnvConfigured)
}

// runPurge removes every appliance toolchain, then checks that their paths
// are gone and every composed path survived.
func (e *Executor) runPurge(ctx context.Context) error {
	logger := ctxlog.FromContext(ctx)
	root := e.root()
	if err := e.scope.ReleaseAll(ctx); err != nil {
		return err
	}

	for _, tc := range e.layout.Toolchains {
		for _, p := range tc.Paths {
			hp, err := session.HostPath(root, p)
			if err != nil {
				return err
			}
			if _, err := os.Lstat(hp); err == nil {
				return fmt.Errorf("%w: toolchain.%s path %s survived the purge", compose.ErrForbiddenPath, tc.Name, p)
			}
		}
	}
	if err := compose.CheckTargets(root, e.layout.Compose.Copies); err != nil {
		return err
	}
	logger.Info("✅ Toolchains purged.", "toolchains", len(e.layout.Toolchains))
	return e.progress.Advance(PhaseToolchainPurged)
}
