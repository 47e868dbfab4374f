package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/specialistvlad/buildgridgo/internal/ctxlog"
	"github.com/specialistvlad/buildgridgo/internal/localexecutor"
	"github.com/specialistvlad/buildgridgo/internal/pipeline"
	"github.com/specialistvlad/buildgridgo/internal/render"
	"github.com/specialistvlad/buildgridgo/internal/report"
	"github.com/specialistvlad/buildgridgo/internal/session"
)

// Run executes the main application logic based on the provided configuration.
func (a *App) Run(ctx context.Context) (err error) {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.logger.Debug("App.Run method started.", "mode", a.config.Mode, "target", a.config.Target)

	if a.config.HealthcheckPort > 0 {
		if _, err := a.startHealthCheckServer(a.config.HealthcheckPort); err != nil {
			return err
		}
		defer func() {
			err = errors.Join(err, a.closeHealthCheckServer())
		}()
	}

	model, err := a.loader.Load(ctx, a.config.Vars, a.config.PipelinePath)
	if err != nil {
		return fmt.Errorf("failed to load pipeline: %w", err)
	}
	def, err := pipeline.Resolve(ctx, model, a.registry)
	if err != nil {
		return fmt.Errorf("failed to resolve pipeline: %w", err)
	}
	a.logger.Debug("Pipeline resolved.", "stages", len(model.Stages), "composes", len(model.Composes))

	switch a.config.Mode {
	case ModeValidate:
		return a.validate(ctx, def)
	case ModeRender:
		return a.render(ctx, def)
	}
	return a.build(ctx, def)
}

// renderText renders the backend of the configured target and validates it.
func (a *App) renderText(def *pipeline.Definition) (string, error) {
	if a.config.Target == pipeline.TargetAppliance {
		text, err := render.Script(def, a.config.Compose)
		if err != nil {
			return "", err
		}
		return text, render.ValidateScript(text)
	}
	text, err := render.Dockerfile(def, a.config.Compose)
	if err != nil {
		return "", err
	}
	return text, render.ValidateDockerfile(text)
}

func (a *App) validate(ctx context.Context, def *pipeline.Definition) error {
	layout, err := pipeline.NewLayout(def, a.config.Compose, a.config.Target)
	if err != nil {
		return err
	}
	if _, err := a.renderText(def); err != nil {
		return fmt.Errorf("rendered %s output is invalid: %w", a.config.Target, err)
	}
	ctxlog.FromContext(ctx).Info("✅ Pipeline is valid.", "compose", layout.Compose.Name, "nodes", len(layout.Nodes))
	return nil
}

func (a *App) render(ctx context.Context, def *pipeline.Definition) error {
	text, err := a.renderText(def)
	if err != nil {
		return err
	}
	if a.config.Output == "" {
		_, err := fmt.Fprint(a.outW, text)
		return err
	}

	mode := os.FileMode(0o644)
	if a.config.Target == pipeline.TargetAppliance {
		mode = 0o755
	}
	if err := os.MkdirAll(filepath.Dir(a.config.Output), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(a.config.Output, []byte(text), mode); err != nil {
		return fmt.Errorf("failed to write rendered output: %w", err)
	}
	ctxlog.FromContext(ctx).Info("✅ Rendered.", "target", a.config.Target, "path", a.config.Output)
	return nil
}

func (a *App) build(ctx context.Context, def *pipeline.Definition) error {
	logger := ctxlog.FromContext(ctx)
	layout, err := pipeline.NewLayout(def, a.config.Compose, a.config.Target)
	if err != nil {
		return err
	}

	runID := a.config.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	dirs := make([]string, 3)
	for i, dir := range []string{a.config.WorkDir, a.config.OutDir, a.config.ContextDir} {
		if dirs[i], err = filepath.Abs(dir); err != nil {
			return err
		}
	}
	sess, err := session.New(dirs[0], dirs[1], dirs[2], runID)
	if err != nil {
		return err
	}
	ctx = ctxlog.With(ctx, "run_id", runID)
	logger.Info("🚀 Starting build run.", "run_id", runID, "compose", layout.Compose.Name, "target", layout.Target)

	exec := localexecutor.New(def, layout, sess, localexecutor.Options{
		Workers: a.config.WorkerCount,
		Inherit: a.config.InheritEnv,
	})
	a.setExecutor(exec)

	res, runErr := exec.Run(ctx)
	if err := report.Summary(a.outW, res, runErr); err != nil {
		logger.Warn("Failed to write run summary.", "error", err)
	}
	if err := sess.Close(ctx, a.config.KeepWork); err != nil {
		logger.Warn("Failed to clean up run directories.", "error", err)
	}
	if runErr != nil {
		return fmt.Errorf("build failed (logs: %s): %w", sess.LogDir(), runErr)
	}
	return nil
}
