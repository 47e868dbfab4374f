package compose

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/coreos/go-systemd/v22/unit"
	v1 "github.com/opencontainers/image-spec/specs-go/v1"
	"github.com/specialistvlad/buildgridgo/internal/config"
	"github.com/specialistvlad/buildgridgo/internal/nodeid"
	"github.com/specialistvlad/buildgridgo/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ref(stage, name string) *nodeid.Address {
	a := nodeid.Artifact(stage, name)
	return &a
}

func gpuNode() *config.Compose {
	return &config.Compose{
		Name:    "gpu-node",
		Workdir: "/app",
		Path:    []string{"/app/venv/bin"},
		Copies: []*config.Copy{
			{Source: "start.sh", To: "/app/start.sh", Mode: "0755"},
			{From: ref("host", "env"), To: "/app/venv"},
			{From: ref("worker", "env"), To: "/app/worker/venv"},
		},
		Env:        map[string]string{"CRYNUX_SERVER_CONFIG": "/app/config/config.yml"},
		Entrypoint: []string{"/app/start.sh"},
		Appliance: &config.Appliance{
			LibraryPath: []string{"/usr/local/cuda/lib64"},
			Services:    []*config.Service{{Name: "crynux-node", Description: "Crynux Node"}},
		},
	}
}

func TestApply(t *testing.T) {
	// --- Arrange ---
	ctx, _ := testutil.NewContext(t)
	dir := t.TempDir()
	contextDir := filepath.Join(dir, "context")
	testutil.WriteFiles(t, contextDir, map[string]string{"start.sh": "echo run\n"})
	stages := map[string]string{
		"stage.host.env":   filepath.Join(dir, "host", "app", "venv"),
		"stage.worker.env": filepath.Join(dir, "worker", "app", "worker", "venv"),
	}
	testutil.WriteFiles(t, stages["stage.host.env"], map[string]string{"bin/python": "#!/bin/sh\n"})
	testutil.WriteFiles(t, stages["stage.worker.env"], map[string]string{"lib/torch/__init__.py": ""})
	resolve := func(a nodeid.Address) (string, error) { return stages[a.String()], nil }
	root := filepath.Join(dir, "rootfs")

	// --- Act ---
	placed, err := Apply(ctx, root, gpuNode(), resolve, contextDir)

	// --- Assert ---
	require.NoError(t, err)
	require.Len(t, placed, 3)
	info, err := os.Stat(filepath.Join(root, "app", "start.sh"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o755), info.Mode().Perm())
	assert.True(t, testutil.Exists(t, root, "app/venv/bin/python"))
	assert.True(t, testutil.Exists(t, root, "app/worker/venv/lib/torch/__init__.py"))
	assert.False(t, testutil.Exists(t, root, "app/venv/lib/torch"), "worker packages leaked into the host env")
	require.NoError(t, CheckTargets(root, gpuNode().Copies))

	require.NoError(t, os.RemoveAll(filepath.Join(root, "app", "worker")))
	assert.ErrorIs(t, CheckTargets(root, gpuNode().Copies), ErrMissingArtifact)
}

func TestApply_MissingSource(t *testing.T) {
	ctx, _ := testutil.NewContext(t)
	dir := t.TempDir()
	c := &config.Compose{Name: "x", Copies: []*config.Copy{{From: ref("host", "env"), To: "/app/venv"}}}
	resolve := func(a nodeid.Address) (string, error) { return filepath.Join(dir, "nope"), nil }

	_, err := Apply(ctx, filepath.Join(dir, "rootfs"), c, resolve, dir)
	assert.ErrorIs(t, err, ErrMissingArtifact)
	assert.Contains(t, err.Error(), "stage.host.env")
}

func TestApply_SamePathIsKept(t *testing.T) {
	ctx, _ := testutil.NewContext(t)
	root := t.TempDir()
	testutil.WriteFiles(t, root, map[string]string{"app/venv/bin/python": "#!/bin/sh\n"})
	c := &config.Compose{Name: "x", Copies: []*config.Copy{{From: ref("host", "env"), To: "/app/venv"}}}
	resolve := func(a nodeid.Address) (string, error) { return filepath.Join(root, "app", "venv"), nil }

	_, err := Apply(ctx, root, c, resolve, root)
	require.NoError(t, err)
	assert.True(t, testutil.Exists(t, root, "app/venv/bin/python"))
	assert.False(t, testutil.Exists(t, root, "app/venv/venv"))
}

func TestPolicy(t *testing.T) {
	// --- Arrange ---
	root := t.TempDir()
	testutil.WriteFiles(t, root, map[string]string{
		"app/venv/bin/python":         "#!/bin/sh\n",
		"opt/cargo/bin/rustc":         "#!/bin/sh\n",
		"root/.cache/pip/http/abc":    "x",
		"usr/bin/gcc":                 "#!/bin/sh\n",
		"usr/bin/python3":             "#!/bin/sh\n",
		"app/webui/dist/index.html":   "<html/>",
		"app/webui/node_modules/a.js": "",
	})
	toolchains := []*config.Toolchain{{Name: "rust", Paths: []string{"/opt/cargo"}}}

	testCases := []struct {
		name          string
		forbid        []string
		withCompilers bool
		want          []string
	}{
		{
			name:          "container",
			withCompilers: true,
			want:          []string{"/opt/cargo", "/root/.cache/pip", "/usr/bin/gcc"},
		},
		{
			name: "appliance keeps its compilers",
			want: []string{"/opt/cargo", "/root/.cache/pip"},
		},
		{
			name:   "user globs",
			forbid: []string{"/app/**/node_modules"},
			want:   []string{"/app/webui/node_modules", "/opt/cargo", "/root/.cache/pip"},
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// --- Act ---
			p, err := NewPolicy(toolchains, tc.forbid, tc.withCompilers)
			require.NoError(t, err)
			found, err := p.Scan(root)

			// --- Assert ---
			require.NoError(t, err)
			assert.Equal(t, tc.want, found)
			err = p.Verify(root)
			assert.ErrorIs(t, err, ErrForbiddenPath)
		})
	}

	t.Run("clean root passes", func(t *testing.T) {
		clean := t.TempDir()
		testutil.WriteFiles(t, clean, map[string]string{"app/venv/bin/python": "#!/bin/sh\n"})
		p, err := NewPolicy(toolchains, nil, true)
		require.NoError(t, err)
		assert.NoError(t, p.Verify(clean))
	})

	t.Run("invalid pattern", func(t *testing.T) {
		_, err := NewPolicy(nil, []string{"app/[unterminated"}, false)
		assert.ErrorContains(t, err, "invalid forbid pattern")
	})
}

func TestCheckDisjoint(t *testing.T) {
	names := []string{"stage.host.env", "stage.worker.env"}
	assert.NoError(t, CheckDisjoint(names, []string{"/app/venv", "/app/worker/venv"}))
	err := CheckDisjoint(names, []string{"/app/venv", "/app/venv/worker"})
	assert.ErrorIs(t, err, ErrOverlap)
	assert.ErrorIs(t, CheckDisjoint(names, []string{"/app/venv", "/app/venv"}), ErrOverlap)
}

func TestImageConfig(t *testing.T) {
	// --- Act ---
	base := &config.Base{Name: "runtime", Env: map[string]string{"PATH": "/usr/local/cuda/bin:/usr/bin:/bin"}}
	img := ImageConfig(gpuNode(), base, "sha256:abc")

	// --- Assert ---
	assert.Equal(t, []string{"/app/start.sh"}, img.Config.Entrypoint)
	assert.Equal(t, []string{"run"}, img.Config.Cmd)
	assert.Equal(t, "/app", img.Config.WorkingDir)
	assert.Equal(t, []string{
		"PATH=/app/venv/bin:/usr/local/cuda/bin:/usr/bin:/bin",
		"CRYNUX_SERVER_CONFIG=/app/config/config.yml",
	}, img.Config.Env)
	assert.Equal(t, "gpu-node", img.Config.Labels[v1.AnnotationTitle])

	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, WriteImageConfig(path, img))
	var decoded v1.Image
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, img.Config.Cmd, decoded.Config.Cmd)
	assert.Nil(t, decoded.Created)
}

func TestInstallService(t *testing.T) {
	// --- Arrange ---
	root := t.TempDir()
	c := gpuNode()
	svc := c.Appliance.Services[0]

	// --- Act ---
	unitPath, err := InstallService(root, c, svc)

	// --- Assert ---
	require.NoError(t, err)
	assert.Equal(t, "/etc/systemd/system/crynux-node.service", unitPath)

	f, err := os.Open(filepath.Join(root, "etc", "systemd", "system", "crynux-node.service"))
	require.NoError(t, err)
	defer f.Close()
	opts, err := unit.Deserialize(f)
	require.NoError(t, err)

	values := map[string][]string{}
	for _, o := range opts {
		values[o.Section+"."+o.Name] = append(values[o.Section+"."+o.Name], o.Value)
	}
	assert.Equal(t, []string{"/app/start.sh run"}, values["Service.ExecStart"])
	assert.Equal(t, []string{"always"}, values["Service.Restart"])
	assert.Equal(t, []string{"root"}, values["Service.User"])
	assert.Equal(t, []string{"multi-user.target"}, values["Install.WantedBy"])
	assert.Contains(t, values["Service.Environment"], "LD_LIBRARY_PATH=/usr/local/cuda/lib64")

	target, err := os.Readlink(filepath.Join(root, filepath.FromSlash(WantsLink(svc))))
	require.NoError(t, err)
	assert.Equal(t, unitPath, target)

	// Installing twice keeps a single valid link.
	_, err = InstallService(root, c, svc)
	require.NoError(t, err)
}

func TestServiceUnit_Args(t *testing.T) {
	c := gpuNode()
	svc := &config.Service{Name: "crynux-node", Args: []string{"run", "--config", "/etc/crynux node.yml"}, Restart: "on-failure"}
	content, err := io.ReadAll(unit.Serialize(ServiceUnit(c, svc)))
	require.NoError(t, err)
	text := string(content)
	assert.Contains(t, text, `ExecStart=/app/start.sh run --config "/etc/crynux node.yml"`)
	assert.Contains(t, text, "Restart=on-failure")
	assert.Contains(t, text, "Description=gpu-node")
}

func TestInstallProfile(t *testing.T) {
	root := t.TempDir()
	c := gpuNode()

	p, err := InstallProfile(root, c)
	require.NoError(t, err)
	assert.Equal(t, "/etc/profile.d/gpu-node.sh", p)

	script := testutil.ReadFile(t, root, "etc/profile.d/gpu-node.sh")
	lines := strings.Split(strings.TrimSpace(script), "\n")
	assert.Equal(t, []string{
		"# Runtime environment of gpu-node.",
		`export PATH="/app/venv/bin:$PATH"`,
		`export LD_LIBRARY_PATH="/usr/local/cuda/lib64${LD_LIBRARY_PATH:+:$LD_LIBRARY_PATH}"`,
		"export CRYNUX_SERVER_CONFIG=/app/config/config.yml",
	}, lines)

	c.Appliance.Profile = "crynux"
	assert.Equal(t, "/etc/profile.d/crynux.sh", ProfilePath(c))
}

func TestManifest_RoundTrip(t *testing.T) {
	m := NewManifest(gpuNode(), "container", "base.runtime")
	m.Copies = []ManifestCopy{{From: "stage.host.env", To: "/app/venv", Digest: "sha256:1"}}
	m.RootFS = "sha256:2"
	path := filepath.Join(t.TempDir(), "manifest.yaml")

	require.NoError(t, WriteManifest(path, m))
	first, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, WriteManifest(path, m))
	second, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	got, err := ReadManifest(path)
	require.NoError(t, err)
	assert.Equal(t, m, got)
}
