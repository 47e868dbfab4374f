package registry

import (
	"context"
	"fmt"
	"strings"

	"github.com/specialistvlad/buildgridgo/internal/config"
	"github.com/specialistvlad/buildgridgo/internal/ctxlog"
)

// ValidateModel performs a parity check between the stage kinds used in a
// pipeline definition and the handlers compiled into the binary.
func (r *Registry) ValidateModel(ctx context.Context, model *config.Model) error {
	logger := ctxlog.FromContext(ctx)

	var errs []string
	for _, stage := range model.Stages {
		h, ok := r.StageHandlers[stage.Kind]
		if !ok {
			errs = append(errs, fmt.Sprintf("stage '%s': unknown kind '%s' (registered: %s)", stage.Name, stage.Kind, strings.Join(r.Kinds(), ", ")))
			continue
		}
		if h.NewInput == nil || h.Plan == nil {
			errs = append(errs, fmt.Sprintf("stage '%s': handler for kind '%s' is incomplete", stage.Name, stage.Kind))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("registry validation failed:\n- %s", strings.Join(errs, "\n- "))
	}
	logger.Debug("Registry validation passed.", "stages", len(model.Stages), "kinds", len(r.StageHandlers))
	return nil
}
