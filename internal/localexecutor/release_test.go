package localexecutor

import (
	"path/filepath"
	"testing"

	"github.com/specialistvlad/buildgridgo/internal/artifact"
	"github.com/specialistvlad/buildgridgo/internal/compose"
	"github.com/specialistvlad/buildgridgo/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckEnvironments(t *testing.T) {
	// --- Arrange ---
	root := t.TempDir()
	testutil.WriteFiles(t, root, map[string]string{
		"host/bin/python":          "#!/bin/sh\n",
		"host/lib/web3.py":         "web3\n",
		"host/worker/lib/torch.py": "torch\n",
		"worker/bin/python":        "#!/bin/sh\n",
		"worker/lib/torch.py":      "torch\n",
	})
	list := func(dir string) artifact.Listing {
		l, err := artifact.List(filepath.Join(root, dir))
		require.NoError(t, err)
		return l
	}
	host := placedEnv{name: "stage.host.env", files: list("host").Prefixed("app/venv")}

	testCases := []struct {
		name    string
		worker  placedEnv
		wantErr string
	}{
		{
			name:   "disjoint targets",
			worker: placedEnv{name: "stage.worker.env", files: list("worker").Prefixed("app/worker/venv")},
		},
		{
			name:    "worker files land inside the host environment",
			worker:  placedEnv{name: "stage.worker.env", files: list("worker").Prefixed("app/venv/worker")},
			wantErr: "stage.host.env and stage.worker.env both place app/venv/worker/lib/torch.py",
		},
		{
			name:    "same target",
			worker:  placedEnv{name: "stage.worker.env", files: list("worker").Prefixed("app/venv")},
			wantErr: "both place app/venv/bin/python",
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// --- Act ---
			err := checkEnvironments([]placedEnv{host, tc.worker})

			// --- Assert ---
			if tc.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, compose.ErrOverlap)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}
