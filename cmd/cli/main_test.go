package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/specialistvlad/buildgridgo/internal/testutil"
	"github.com/stretchr/testify/require"
)

func TestRun_LoadError(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	invalidHCL := `
		base "devel" {
			flavor = "development"
		// Missing closing brace here
	`
	tempDir := t.TempDir()
	filePath := filepath.Join(tempDir, "main.hcl")
	err := os.WriteFile(filePath, []byte(invalidHCL), 0600)
	require.NoError(t, err, "failed to set up test file")
	out := &bytes.Buffer{}

	// --- Act ---
	runErr := run(context.Background(), out, []string{"-mode", "validate", filePath})

	// --- Assert ---
	require.Error(t, runErr)
	require.Contains(t, runErr.Error(), "failed to load pipeline")
	require.Contains(t, runErr.Error(), "failed to parse")
}

func TestRun_ShouldExit(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	args := []string{"-h"}
	out := &bytes.Buffer{}

	// --- Act ---
	err := run(context.Background(), out, args)

	// --- Assert ---
	require.NoError(t, err, "run() should return a nil error when shouldExit is true")
	require.Contains(t, out.String(), "Usage:", "Expected help text to be printed to the output buffer")
}

func TestRun_ParseError(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	args := []string{"--this-is-not-a-valid-flag"}
	out := &bytes.Buffer{}

	// --- Act ---
	err := run(context.Background(), out, args)

	// --- Assert ---
	require.Error(t, err, "run() should return an error when argument parsing fails")
	require.Contains(t, err.Error(), "flag provided but not defined: -this-is-not-a-valid-flag")
}

func TestRun_RenderDockerfile(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	ws := testutil.NewWorkspace(t, testutil.GPUNodePipeline, nil)
	out := &bytes.Buffer{}

	// --- Act ---
	err := run(context.Background(), out, []string{"-mode", "render", "-log-level", "error", ws.Pipeline})

	// --- Assert ---
	require.NoError(t, err)
	require.Contains(t, out.String(), "# syntax=docker/dockerfile:1")
	require.Contains(t, out.String(), `CMD ["run"]`)
}

func TestRun_ValidateExamplePipeline(t *testing.T) {
	t.Parallel()

	for _, target := range []string{"container", "appliance"} {
		target := target
		t.Run(target, func(t *testing.T) {
			t.Parallel()

			// --- Arrange ---
			out := &bytes.Buffer{}
			args := []string{"-mode", "validate", "-target", target, "-log-level", "error", "../../pipelines/gpu-node"}

			// --- Act ---
			err := run(context.Background(), out, args)

			// --- Assert ---
			require.NoError(t, err)
		})
	}
}

func TestRun_RenderExamplePipelineFinalStage(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	out := &bytes.Buffer{}
	args := []string{"-mode", "render", "-log-level", "error", "../../pipelines/gpu-node"}

	// --- Act ---
	err := run(context.Background(), out, args)

	// --- Assert ---
	require.NoError(t, err)
	text := out.String()
	idx := strings.Index(text, " AS final\n")
	require.NotEqual(t, -1, idx, text)
	final := text[idx:]

	last := -1
	for _, target := range []string{
		" /app/config/config.yml\n",
		" /app/start.sh\n",
		" /app/venv\n",
		" /app/worker/venv\n",
		" /app/crynux_worker_process\n",
		" /app/webui/dist\n",
	} {
		pos := strings.Index(final, target)
		require.NotEqual(t, -1, pos, "missing copy to%s", target)
		require.Greater(t, pos, last, "copy to%s is out of order", target)
		last = pos
	}
	require.Contains(t, final, `ENV PATH="/app/venv/bin:${PATH}"`)
}
