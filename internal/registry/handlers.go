package registry

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/specialistvlad/buildgridgo/internal/plan"
)

// StageHandler turns the decoded `arguments` block of a stage into its plan.
type StageHandler struct {
	// NewInput returns a pointer to a gohcl-tagged struct for the arguments.
	NewInput func() any
	// Plan receives the stage name and the decoded input.
	Plan func(ctx context.Context, stage string, input any) (*plan.Plan, error)
}

// RegisterStage registers the handler for a stage kind.
func (r *Registry) RegisterStage(kind string, handler *StageHandler) {
	if _, exists := r.StageHandlers[kind]; exists {
		panic(fmt.Sprintf("stage handler for kind '%s' already registered", kind))
	}
	slog.Debug("Registering stage handler.", "kind", kind)
	r.StageHandlers[kind] = handler
}

// Stage returns the handler for a stage kind.
func (r *Registry) Stage(kind string) (*StageHandler, bool) {
	h, ok := r.StageHandlers[kind]
	return h, ok
}
