package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/specialistvlad/buildgridgo/internal/compose"
	"github.com/specialistvlad/buildgridgo/internal/hcl_adapter"
	"github.com/specialistvlad/buildgridgo/internal/localexecutor"
	"github.com/specialistvlad/buildgridgo/internal/pipeline"
	"github.com/specialistvlad/buildgridgo/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApp_Build(t *testing.T) {
	// --- Arrange ---
	ws := testutil.NewWorkspace(t, testutil.GPUNodePipeline, nil)
	cfg := workspaceConfig(ws)
	cfg.RunID = "run-1"
	a, logs := setupAppTest(t, cfg)

	// --- Act ---
	err := a.Run(context.Background())

	// --- Assert ---
	require.NoError(t, err)
	m, err := compose.ReadManifest(filepath.Join(ws.Out, "gpu-node", "manifest.yaml"))
	require.NoError(t, err)
	assert.Equal(t, []string{"/app/start.sh"}, m.Entrypoint)

	out := logs.String()
	assert.Contains(t, out, "Published "+filepath.Join(ws.Out, "gpu-node"))
	assert.Contains(t, out, "🚀 Starting build run.")
	assert.FileExists(t, filepath.Join(ws.Work, "run-1", "logs", "stage.host.log"), "logs are kept")
	assert.NoDirExists(t, filepath.Join(ws.Work, "run-1", "stages"), "roots are dropped")
}

func TestApp_BuildFailure(t *testing.T) {
	ws := testutil.NewWorkspace(t, testutil.GPUNodePipeline, nil)
	cfg := workspaceConfig(ws)
	cfg.Vars = map[string]string{"ui_install": "exit 7"}
	a, logs := setupAppTest(t, cfg)

	err := a.Run(context.Background())

	require.Error(t, err)
	assert.ErrorContains(t, err, "exited with code 7")
	assert.Contains(t, logs.String(), "Build failed")
	assert.NoDirExists(t, filepath.Join(ws.Out, "gpu-node"))
}

func TestApp_Render(t *testing.T) {
	t.Run("dockerfile to the writer", func(t *testing.T) {
		ws := testutil.NewWorkspace(t, testutil.GPUNodePipeline, nil)
		cfg := workspaceConfig(ws)
		cfg.Mode = ModeRender
		a, out := setupAppTest(t, cfg)

		require.NoError(t, a.Run(context.Background()))
		assert.Contains(t, out.String(), "FROM base-runtime AS final")
		assert.NoDirExists(t, ws.Out, "rendering builds nothing")
	})

	t.Run("appliance script to a file", func(t *testing.T) {
		ws := testutil.NewWorkspace(t, testutil.GPUNodePipeline, nil)
		cfg := workspaceConfig(ws)
		cfg.Mode = ModeRender
		cfg.Target = pipeline.TargetAppliance
		cfg.Output = filepath.Join(ws.Root, "dist", "provision.sh")
		a, _ := setupAppTest(t, cfg)

		require.NoError(t, a.Run(context.Background()))
		info, err := os.Stat(cfg.Output)
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0o755), info.Mode().Perm())
		assert.Contains(t, testutil.ReadFile(t, filepath.Dir(cfg.Output), "provision.sh"), "systemctl")
	})
}

func TestApp_Validate(t *testing.T) {
	testCases := []struct {
		name     string
		pipeline string
		target   pipeline.Target
		wantErr  string
	}{
		{name: "container", pipeline: testutil.GPUNodePipeline, target: pipeline.TargetContainer},
		{name: "appliance", pipeline: testutil.GPUNodePipeline, target: pipeline.TargetAppliance},
		{
			name: "unknown stage kind",
			pipeline: `
base "devel" {
  flavor = "development"
}
base "runtime" {
  flavor = "runtime"
}
stage "native" {
  kind = "bazel"
  base = base.devel
}
compose "app" {
  base       = base.runtime
  entrypoint = ["/app/run"]
}`,
			target:  pipeline.TargetContainer,
			wantErr: "unknown kind 'bazel'",
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// --- Arrange ---
			ws := testutil.NewWorkspace(t, tc.pipeline, nil)
			cfg := workspaceConfig(ws)
			cfg.Mode = ModeValidate
			cfg.Target = tc.target
			a, logs := setupAppTest(t, cfg)

			// --- Act ---
			err := a.Run(context.Background())

			// --- Assert ---
			if tc.wantErr != "" {
				assert.ErrorContains(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Contains(t, logs.String(), "Pipeline is valid.")
		})
	}
}

func TestHealthcheck(t *testing.T) {
	// --- Arrange ---
	ctx, _ := testutil.NewContext(t)
	ws := testutil.NewWorkspace(t, testutil.GPUNodePipeline, nil)
	a, _ := setupAppTest(t, workspaceConfig(ws))
	srv := httptest.NewServer(a.healthMux())
	t.Cleanup(srv.Close)

	// --- Act & Assert ---
	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/status")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode, "no build yet")

	model, err := hcl_adapter.NewLoader().Load(ctx, nil, ws.Pipeline)
	require.NoError(t, err)
	def, err := pipeline.Resolve(ctx, model, a.Registry())
	require.NoError(t, err)
	layout, err := pipeline.NewLayout(def, "", pipeline.TargetContainer)
	require.NoError(t, err)
	a.setExecutor(localexecutor.New(def, layout, nil, localexecutor.Options{}))

	resp, err = http.Get(srv.URL + "/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var status localexecutor.Status
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	assert.Equal(t, "gpu-node", status.Compose)
	assert.Equal(t, localexecutor.PhasePending, status.Phase)
	assert.Equal(t, "pending", status.Nodes["stage.ui"])
}

func TestApp_HealthcheckServerLifecycle(t *testing.T) {
	ws := testutil.NewWorkspace(t, testutil.GPUNodePipeline, nil)
	a, _ := setupAppTest(t, workspaceConfig(ws))

	addr, err := a.startHealthCheckServer(0)
	require.NoError(t, err)
	resp, err := http.Get("http://" + addr + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, a.closeHealthCheckServer())
	require.NoError(t, a.closeHealthCheckServer(), "closing twice is a no-op")
}
