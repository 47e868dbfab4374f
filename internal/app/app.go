package app

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"github.com/specialistvlad/buildgridgo/internal/config"
	"github.com/specialistvlad/buildgridgo/internal/ctxlog"
	"github.com/specialistvlad/buildgridgo/internal/localexecutor"
	"github.com/specialistvlad/buildgridgo/internal/registry"
)

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	outW     io.Writer
	logger   *slog.Logger
	ctx      context.Context
	config   *Config
	loader   config.Loader
	registry *registry.Registry

	httpServer *http.Server

	mu       sync.Mutex
	executor *localexecutor.Executor
}

// NewApp is the constructor for the main application. It returns a fully
// initialized App instance, including its own isolated logger and registry.
// Without modules the core stage kinds are registered.
func NewApp(outW io.Writer, cfg *Config, loader config.Loader, modules ...registry.Module) *App {
	logger := newLogger(cfg.LogLevel, cfg.LogFormat, outW)
	ctx := ctxlog.WithLogger(context.Background(), logger)
	logger.Debug("Logger configured successfully.")

	if len(modules) == 0 {
		modules = coreModules
	}
	reg := registry.New(modules...)
	logger.Debug("All Go modules registered.", "count", len(modules), "kinds", reg.Kinds())

	return &App{
		outW:     outW,
		logger:   logger,
		ctx:      ctx,
		config:   cfg,
		loader:   loader,
		registry: reg,
	}
}

// Registry returns the application's registry. This is primarily for testing.
func (a *App) Registry() *registry.Registry {
	return a.registry
}

func (a *App) setExecutor(e *localexecutor.Executor) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.executor = e
}

func (a *App) currentExecutor() *localexecutor.Executor {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.executor
}
