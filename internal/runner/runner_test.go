package runner

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/specialistvlad/buildgridgo/internal/plan"
	"github.com/specialistvlad/buildgridgo/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSpec(t *testing.T, run string) Spec {
	t.Helper()
	dir := t.TempDir()
	return Spec{
		Node:    "stage.test",
		Step:    plan.Step{Name: "step", Run: run, Kind: plan.KindBuild},
		Dir:     dir,
		Root:    dir,
		LogPath: filepath.Join(dir, "logs", "stage.test.log"),
	}
}

func TestRun_Success(t *testing.T) {
	// --- Arrange ---
	ctx, _ := testutil.NewContext(t)
	spec := newSpec(t, `echo hello && echo "$ROOT" > root.txt`)

	// --- Act ---
	err := New().Run(ctx, spec)

	// --- Assert ---
	require.NoError(t, err)
	log, err := os.ReadFile(spec.LogPath)
	require.NoError(t, err)
	assert.Contains(t, string(log), "### stage.test/step (build)")
	assert.Contains(t, string(log), "hello\n")
	assert.Contains(t, string(log), "### exit 0")

	root, err := os.ReadFile(filepath.Join(spec.Dir, "root.txt"))
	require.NoError(t, err)
	assert.Equal(t, spec.Root+"\n", string(root))
}

func TestRun_NonZeroExit(t *testing.T) {
	// --- Arrange ---
	ctx, _ := testutil.NewContext(t)
	spec := newSpec(t, `for i in 1 2 3; do echo "line $i"; done; echo "No matching distribution found" >&2; exit 3`)
	spec.Step.Kind = plan.KindResolve

	// --- Act ---
	err := New().Run(ctx, spec)

	// --- Assert ---
	var stepErr *StepError
	require.True(t, errors.As(err, &stepErr))
	assert.Equal(t, 3, stepErr.ExitCode)
	assert.Equal(t, plan.KindResolve, stepErr.Kind)
	assert.Equal(t, spec.LogPath, stepErr.LogPath)
	assert.Equal(t, "No matching distribution found", stepErr.Tail[len(stepErr.Tail)-1])
	assert.Contains(t, err.Error(), "resolve step 'step' of stage.test exited with code 3")
}

func TestRun_LogIsAppended(t *testing.T) {
	ctx, _ := testutil.NewContext(t)
	spec := newSpec(t, "echo first")
	r := New()
	require.NoError(t, r.Run(ctx, spec))
	spec.Step = plan.Step{Name: "second", Run: "echo second", Kind: plan.KindBuild}
	require.NoError(t, r.Run(ctx, spec))

	log, err := os.ReadFile(spec.LogPath)
	require.NoError(t, err)
	assert.Less(t, strings.Index(string(log), "first"), strings.Index(string(log), "second"))
}

func TestRun_CancelKillsProcessGroup(t *testing.T) {
	// --- Arrange ---
	ctx, _ := testutil.NewContext(t)
	ctx, cancel := context.WithCancel(ctx)
	spec := newSpec(t, "sleep 30 & sleep 30; wait")
	time.AfterFunc(100*time.Millisecond, cancel)

	// --- Act ---
	start := time.Now()
	err := New().Run(ctx, spec)

	// --- Assert ---
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), 10*time.Second)
}

func TestEnviron(t *testing.T) {
	t.Setenv("BUILDGRID_SECRET", "leak")
	t.Setenv("BUILDGRID_ALLOWED", "yes")
	t.Setenv("PATH", "/usr/bin:/bin")

	spec := Spec{
		Root: "/tmp/root",
		Layers: []map[string]string{
			{"PATH": "$ROOT/opt/cargo/bin:$PATH"},
			{"PATH": "$ROOT/opt/yarn/bin:$PATH", "CARGO_HOME": "$ROOT/opt/cargo"},
		},
		Step: plan.Step{Env: map[string]string{"RUSTFLAGS": "--cfg pyo3_unsafe"}},
	}

	env := New("BUILDGRID_ALLOWED").Environ(spec)

	assert.Contains(t, env, "ROOT=/tmp/root")
	assert.Contains(t, env, "PATH=/tmp/root/opt/yarn/bin:/tmp/root/opt/cargo/bin:/usr/bin:/bin")
	assert.Contains(t, env, "CARGO_HOME=/tmp/root/opt/cargo")
	assert.Contains(t, env, "RUSTFLAGS=--cfg pyo3_unsafe")
	assert.Contains(t, env, "BUILDGRID_ALLOWED=yes")
	for _, kv := range env {
		assert.False(t, strings.HasPrefix(kv, "BUILDGRID_SECRET="), "host variable leaked into step")
	}
}

func TestTailBuffer(t *testing.T) {
	tb := newTailBuffer(2)
	_, _ = tb.Write([]byte("a\nb\n"))
	_, _ = tb.Write([]byte("c\npart"))
	assert.Equal(t, []string{"c", "part"}, tb.Lines())
	_, _ = tb.Write([]byte("ial\n"))
	assert.Equal(t, []string{"c", "partial"}, tb.Lines())
}

func TestRun_FailingPipelineStage(t *testing.T) {
	if _, err := exec.LookPath("bash"); err != nil {
		t.Skip("bash not available")
	}

	// --- Arrange ---
	ctx, _ := testutil.NewContext(t)
	spec := newSpec(t, `(echo "curl: (22) 404" >&2; exit 22) | cat`)
	spec.Step.Kind = plan.KindFetch

	// --- Act ---
	err := New().Run(ctx, spec)

	// --- Assert ---
	var stepErr *StepError
	require.True(t, errors.As(err, &stepErr), "got %v", err)
	assert.Equal(t, 22, stepErr.ExitCode)
	assert.Equal(t, plan.KindFetch, stepErr.Kind)
	assert.Contains(t, strings.Join(stepErr.Tail, "\n"), "curl: (22) 404")
}
