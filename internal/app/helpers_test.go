package app

import (
	"os"
	"testing"

	"github.com/specialistvlad/buildgridgo/internal/hcl_adapter"
	"github.com/specialistvlad/buildgridgo/internal/registry"
	"github.com/specialistvlad/buildgridgo/internal/testutil"
)

// setupAppTest creates a new app instance for system testing. Logs are
// captured and printed when BGGO_TEST_LOGS=true.
func setupAppTest(t *testing.T, cfg Config, modules ...registry.Module) (*App, *testutil.SafeBuffer) {
	t.Helper()

	cfg.LogLevel = "debug"
	validated, err := NewConfig(cfg)
	if err != nil {
		t.Fatalf("invalid test config: %v", err)
	}

	logBuffer := &testutil.SafeBuffer{}
	testApp := NewApp(logBuffer, validated, hcl_adapter.NewLoader(), modules...)

	t.Cleanup(func() {
		if os.Getenv("BGGO_TEST_LOGS") == "true" {
			t.Logf("--- Full Log Output for %s ---\n%s", t.Name(), logBuffer.String())
		}
	})
	return testApp, logBuffer
}

// workspaceConfig points a config at a prepared workspace.
func workspaceConfig(ws *testutil.Workspace) Config {
	cfg := DefaultConfig()
	cfg.PipelinePath = ws.Pipeline
	cfg.ContextDir = ws.Context
	cfg.WorkDir = ws.Work
	cfg.OutDir = ws.Out
	return cfg
}
