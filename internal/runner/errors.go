package runner

import (
	"fmt"

	"github.com/specialistvlad/buildgridgo/internal/plan"
)

// StepError reports a step that exited non-zero.
type StepError struct {
	Node     string
	Step     string
	Kind     plan.StepKind
	ExitCode int
	LogPath  string
	// Tail holds the last lines of the step's combined output.
	Tail []string
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s step '%s' of %s exited with code %d (log: %s)", e.Kind, e.Step, e.Node, e.ExitCode, e.LogPath)
}

func (e *StepError) Unwrap() error {
	return e.Err
}
