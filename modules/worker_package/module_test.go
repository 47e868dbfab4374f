package worker_package

import (
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/specialistvlad/buildgridgo/internal/plan"
	"github.com/specialistvlad/buildgridgo/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const arguments = `
remove = ["triton"]

package "sd_task" {
  source = "worker/sd_task"
}
package "gpt_task" {
  source       = "worker/gpt_task"
  requirements = "requirements-cuda.txt"
}
package "crynux_worker" {
  source = "worker/crynux_worker"
}

launcher {
  source = "worker/crynux_worker_process"
}
`

func decode(t *testing.T, src string) *Input {
	t.Helper()
	file, diags := hclparse.NewParser().ParseHCL([]byte(src), "arguments.hcl")
	require.False(t, diags.HasErrors(), diags.Error())
	input := new(Input)
	diags = gohcl.DecodeBody(file.Body, nil, input)
	require.False(t, diags.HasErrors(), diags.Error())
	return input
}

func stepNames(p *plan.Plan) []string {
	names := make([]string, len(p.Steps))
	for i, s := range p.Steps {
		names[i] = s.Name
	}
	return names
}

func TestPlanWorkerPackage_OrderAndArtifacts(t *testing.T) {
	// --- Arrange ---
	ctx, _ := testutil.NewContext(t)
	input := decode(t, arguments)

	// --- Act ---
	p, err := PlanWorkerPackage(ctx, "worker", input)

	// --- Assert ---
	require.NoError(t, err)
	require.NoError(t, p.Validate())

	assert.Equal(t, []string{
		"create-env",
		"sd_task-requirements", "sd_task-install",
		"gpt_task-requirements", "gpt_task-install",
		"crynux_worker-requirements", "crynux_worker-install",
		"uninstall", "verify-removed", "launcher",
	}, stepNames(p))

	assert.Equal(t, []plan.Input{
		{Source: "worker/sd_task", Dest: "/app/worker/src/sd_task"},
		{Source: "worker/gpt_task", Dest: "/app/worker/src/gpt_task"},
		{Source: "worker/crynux_worker", Dest: "/app/worker/src/crynux_worker"},
		{Source: "worker/crynux_worker_process", Dest: "/app/worker/crynux_worker_process"},
	}, p.Inputs)

	assert.Equal(t, `"${ROOT}/app/worker/venv"/bin/pip install --no-cache-dir -r "${ROOT}/app/worker/src/gpt_task/requirements-cuda.txt"`, p.Steps[3].Run)
	assert.Equal(t, `"${ROOT}/app/worker/venv"/bin/pip uninstall -y triton`, p.Steps[7].Run)
	assert.Equal(t, plan.KindVerify, p.Steps[8].Kind)

	env, _ := p.Artifact("env")
	assert.True(t, env.Environment)
	assert.Equal(t, "/app/worker/venv", env.Path)
	launcher, _ := p.Artifact("launcher")
	assert.Equal(t, "/app/worker/crynux_worker_process", launcher.Path)
	assert.False(t, launcher.Dir)
}

func TestPlanWorkerPackage_NoRemoveSkipsVerification(t *testing.T) {
	ctx, _ := testutil.NewContext(t)
	input := decode(t, `
package "sd_task" {
  source = "worker/sd_task"
}
launcher {
  source = "launcher.sh"
  name   = "run_worker"
}
`)
	p, err := PlanWorkerPackage(ctx, "worker", input)
	require.NoError(t, err)
	assert.Equal(t, []string{"create-env", "sd_task-requirements", "sd_task-install", "launcher"}, stepNames(p))
	launcher, _ := p.Artifact("launcher")
	assert.Equal(t, "/app/worker/run_worker", launcher.Path)
}

func TestPlanWorkerPackage_Errors(t *testing.T) {
	testCases := []struct {
		name    string
		input   *Input
		wantErr string
	}{
		{
			name:    "no packages",
			input:   &Input{Launcher: &Launcher{Source: "l"}},
			wantErr: "at least one package block is required",
		},
		{
			name: "duplicate package",
			input: &Input{
				Packages: []*Package{{Name: "a", Source: "a"}, {Name: "a", Source: "b"}},
				Launcher: &Launcher{Source: "l"},
			},
			wantErr: `package "a" declared more than once`,
		},
		{
			name:    "missing launcher",
			input:   &Input{Packages: []*Package{{Name: "a", Source: "a"}}},
			wantErr: "a launcher block is required",
		},
		{
			name: "launcher name with directory",
			input: &Input{
				Packages: []*Package{{Name: "a", Source: "a"}},
				Launcher: &Launcher{Source: "l", Name: "bin/run"},
			},
			wantErr: "must be a plain file name",
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			ctx, _ := testutil.NewContext(t)
			_, err := PlanWorkerPackage(ctx, "worker", tc.input)
			assert.ErrorContains(t, err, tc.wantErr)
		})
	}
}

func TestVerifyRemoved(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}

	const listFreeze = `cat "${ROOT}/freeze.txt"`
	testCases := []struct {
		name     string
		list     string
		listing  []string
		wantCode int
		wantOut  string
	}{
		{name: "absent", list: listFreeze, listing: []string{"torch==2.1.0", "transformers==4.40.0"}},
		{name: "prefix is not a match", list: listFreeze, listing: []string{"triton-nightly==3.0"}},
		{name: "pinned entry", list: listFreeze, listing: []string{"torch==2.1.0", "triton==2.1.0"}, wantCode: 1, wantOut: "removed packages are still installed: triton"},
		{name: "case insensitive", list: listFreeze, listing: []string{"Triton"}, wantCode: 1, wantOut: "removed packages are still installed: triton"},
		{name: "failing listing hides the package", list: `grep -v triton "${ROOT}/freeze.txt"; exit 3`, listing: []string{"triton==2.1.0"}, wantCode: 3},
		{name: "failing listing without output", list: `cat "${ROOT}/missing.txt"`, wantCode: 1, wantOut: "missing.txt"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// --- Arrange ---
			dir := t.TempDir()
			content := ""
			for _, l := range tc.listing {
				content += l + "\n"
			}
			require.NoError(t, os.WriteFile(filepath.Join(dir, "freeze.txt"), []byte(content), 0o644))
			script := verifyRemoved(tc.list, []string{"triton"})

			// --- Act ---
			cmd := exec.Command("sh", "-c", script)
			cmd.Env = []string{"ROOT=" + dir, "PATH=" + os.Getenv("PATH")}
			out, err := cmd.CombinedOutput()

			// --- Assert ---
			if tc.wantCode == 0 {
				require.NoError(t, err, string(out))
				return
			}
			var exitErr *exec.ExitError
			require.True(t, errors.As(err, &exitErr), "got %v: %s", err, out)
			assert.Equal(t, tc.wantCode, exitErr.ExitCode())
			if tc.wantOut != "" {
				assert.Contains(t, string(out), tc.wantOut)
			}
		})
	}
}
