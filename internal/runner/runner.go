package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"time"

	"github.com/specialistvlad/buildgridgo/internal/ctxlog"
	"github.com/specialistvlad/buildgridgo/internal/plan"
)

// DefaultInherit lists the host variables every step sees.
var DefaultInherit = []string{"PATH", "HOME", "LANG", "TMPDIR"}

const (
	defaultTailLines = 20
	waitDelay        = 5 * time.Second
)

// Spec describes one step invocation.
type Spec struct {
	Node string
	Step plan.Step
	// Dir is the host working directory of the process.
	Dir string
	// Root is the host directory ROOT points at.
	Root string
	// Layers are applied in order after ROOT; Step.Env is applied last.
	Layers  []map[string]string
	LogPath string
}

// Runner starts step processes.
type Runner struct {
	inherit   []string
	tailLines int
}

// New creates a runner that passes the given host variables through in
// addition to DefaultInherit.
func New(inherit ...string) *Runner {
	names := append(append([]string{}, DefaultInherit...), inherit...)
	return &Runner{inherit: names, tailLines: defaultTailLines}
}

// Run executes the step and blocks until it exits. A non-zero exit is
// returned as *StepError.
func (r *Runner) Run(ctx context.Context, spec Spec) error {
	logger := ctxlog.FromContext(ctx).With("step", spec.Step.Name, "kind", spec.Step.Kind)

	if err := os.MkdirAll(filepath.Dir(spec.LogPath), 0o755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	logFile, err := os.OpenFile(spec.LogPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open step log: %w", err)
	}
	defer logFile.Close()

	fmt.Fprintf(logFile, "### %s/%s (%s)\n$ %s\n", spec.Node, spec.Step.Name, spec.Step.Kind, spec.Step.Run)

	tail := newTailBuffer(r.tailLines)
	out := io.MultiWriter(logFile, tail)

	name, args := shell(spec.Step.Run)
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = spec.Dir
	cmd.Env = r.Environ(spec)
	cmd.Stdout = out
	cmd.Stderr = out
	cmd.WaitDelay = waitDelay
	setProcessGroup(cmd)

	logger.Debug("▶️ Starting step", "dir", spec.Dir)
	start := time.Now()
	err = cmd.Run()
	duration := time.Since(start)

	if err == nil {
		fmt.Fprintf(logFile, "### exit 0 after %s\n", duration.Round(time.Millisecond))
		logger.Debug("✅ Finished step", "duration", duration)
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		fmt.Fprintf(logFile, "### cancelled after %s\n", duration.Round(time.Millisecond))
		return fmt.Errorf("step '%s' of %s cancelled: %w", spec.Step.Name, spec.Node, ctxErr)
	}

	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		return fmt.Errorf("step '%s' of %s could not start: %w", spec.Step.Name, spec.Node, err)
	}
	fmt.Fprintf(logFile, "### exit %d after %s\n", exitErr.ExitCode(), duration.Round(time.Millisecond))
	return &StepError{
		Node:     spec.Node,
		Step:     spec.Step.Name,
		Kind:     spec.Step.Kind,
		ExitCode: exitErr.ExitCode(),
		LogPath:  spec.LogPath,
		Tail:     tail.Lines(),
		Err:      err,
	}
}

// shell returns the interpreter invocation of a command: bash with pipefail
// when the host has it, plain sh otherwise.
func shell(run string) (string, []string) {
	if bash, err := exec.LookPath("bash"); err == nil {
		return bash, append(append([]string{}, plan.PipefailFlags...), run)
	}
	return "sh", []string{"-c", run}
}

// Environ builds the process environment for a spec. Values may reference
// variables set by earlier layers, e.g. PATH=$ROOT/opt/cargo/bin:$PATH.
func (r *Runner) Environ(spec Spec) []string {
	env := make(map[string]string)
	for _, name := range r.inherit {
		if v, ok := os.LookupEnv(name); ok {
			env[name] = v
		}
	}
	env[plan.RootVar] = spec.Root

	apply := func(layer map[string]string) {
		keys := make([]string, 0, len(layer))
		for k := range layer {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		resolved := make(map[string]string, len(layer))
		for _, k := range keys {
			resolved[k] = os.Expand(layer[k], func(name string) string { return env[name] })
		}
		for k, v := range resolved {
			env[k] = v
		}
	}
	for _, layer := range spec.Layers {
		apply(layer)
	}
	apply(spec.Step.Env)

	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+env[k])
	}
	return out
}
