package testutil

import (
	"path/filepath"
	"testing"
)

// GPUNodePipeline is a complete pipeline whose commands only need a POSIX
// shell: toolchains, package managers and compilers are stand-in scripts
// installed below $ROOT, so every backend path can run in a test.
const GPUNodePipeline = `
variable "python" {
  default = "python3"
}

variable "ui_install" {
  default = "test -f package.json && mkdir -p node_modules/.bin"
}

base "devel" {
  flavor = "development"
  image  = "nvidia/cuda:12.4.1-cudnn-devel-ubuntu22.04"
  run = [
    "mkdir -p $ROOT/usr/bin $ROOT/usr/local/cuda/lib64 $ROOT/etc",
    "echo '#!/bin/sh' > $ROOT/usr/bin/gcc && chmod 0755 $ROOT/usr/bin/gcc",
    "echo devel > $ROOT/etc/flavor",
  ]
}

base "runtime" {
  flavor = "runtime"
  image  = "nvidia/cuda:12.4.1-cudnn-runtime-ubuntu22.04"
  run = [
    "mkdir -p $ROOT/usr/bin $ROOT/usr/local/cuda/lib64 $ROOT/etc",
    "echo runtime > $ROOT/etc/flavor",
  ]
}

toolchain "rust" {
  description = "Rust compiler for the native extension"
  install = [
    "mkdir -p $ROOT/opt/cargo/bin",
    "echo '#!/bin/sh' > $ROOT/opt/cargo/bin/rustc && echo 'echo rustc 1.79.0' >> $ROOT/opt/cargo/bin/rustc && chmod 0755 $ROOT/opt/cargo/bin/rustc",
  ]
  paths = ["/opt/cargo"]
  env = {
    PATH = "$ROOT/opt/cargo/bin:$PATH"
  }
}

toolchain "yarn" {
  description = "UI package manager"
  install = [
    "mkdir -p $ROOT/opt/yarn/bin",
    "echo '#!/bin/sh' > $ROOT/opt/yarn/bin/yarn && chmod 0755 $ROOT/opt/yarn/bin/yarn",
  ]
  remove = ["rm -rf $ROOT/root/.cache/yarn"]
  paths  = ["/opt/yarn"]
  env = {
    PATH = "$ROOT/opt/yarn/bin:$PATH"
  }
}

stage "ui" {
  kind       = "ui_bundle"
  base       = base.devel
  toolchains = [toolchain.yarn]

  arguments {
    source  = "webui"
    install = var.ui_install
    build   = "yarn && mkdir -p dist && cp index.html dist/index.html"
  }
}

stage "host" {
  kind       = "host_package"
  base       = base.devel
  toolchains = [toolchain.rust]

  arguments {
    source               = "host"
    python               = var.python
    create_env           = "mkdir -p {env}/bin {env}/lib"
    install_requirements = "test -z \"$RUSTFLAGS\" && cp {requirements} {env}/lib/requirements.lock"
    install_package      = "rustc && cp -R {source}/pkg {env}/lib/host_pkg && echo \"$RUSTFLAGS\" > {env}/lib/host_pkg/rustflags"
    build_env = {
      RUSTFLAGS = "--cfg pyo3_unsafe"
    }
  }
}

stage "worker" {
  kind = "worker_package"
  base = base.devel

  arguments {
    python               = var.python
    create_env           = "mkdir -p {env}/bin {env}/lib"
    install_requirements = "for dep in $(cat {requirements}); do mkdir -p {env}/lib/$dep; done"
    install_package      = "cp -R {source} {env}/lib/"
    uninstall            = "cd {env}/lib && rm -rf {packages}"
    list                 = "ls -1 {env}/lib"

    package "sd_task" {
      source = "worker/sd_task"
    }
    package "gpt_task" {
      source = "worker/gpt_task"
    }
    package "crynux_worker" {
      source = "worker/crynux_worker"
    }

    remove = ["triton"]

    launcher {
      source = "worker/crynux_worker_process"
    }
  }
}

compose "gpu-node" {
  base    = base.runtime
  workdir = "/app"
  path    = ["/app/venv/bin"]

  copy {
    source = "config/config.yml"
    to     = "/app/config/config.yml"
  }
  copy {
    source = "start.sh"
    to     = "/app/start.sh"
    mode   = "0755"
  }
  copy {
    from = stage.host.env
    to   = "/app/venv"
  }
  copy {
    from = stage.worker.env
    to   = "/app/worker/venv"
  }
  copy {
    from = stage.worker.launcher
    to   = "/app/crynux_worker_process"
    mode = "0755"
  }
  copy {
    from = stage.ui.bundle
    to   = "/app/webui/dist"
  }

  entrypoint = ["/app/start.sh"]
  env = {
    CRYNUX_SERVER_CONFIG = "/app/config/config.yml"
  }

  appliance {
    base         = base.devel
    library_path = ["/usr/local/cuda/lib64"]

    service "crynux-node" {
      description = "Crynux Node"
      user        = "root"
    }
  }
}
`

// GPUNodeContext is the build context matching GPUNodePipeline.
var GPUNodeContext = map[string]string{
	"start.sh":                              "#!/bin/sh\nmode=\"${1:-run}\"\necho \"crynux node mode=$mode\"\n",
	"config/config.yml":                     "log:\n  level: info\n",
	"webui/package.json":                    "{\"name\": \"webui\", \"private\": true}\n",
	"webui/yarn.lock":                       "# yarn lockfile v1\n",
	"webui/index.html":                      "<html><body>crynux</body></html>\n",
	"host/requirements.txt":                 "web3==6.0.0\n",
	"host/pkg/__init__.py":                  "VERSION = \"2.0.0\"\n",
	"worker/crynux_worker_process":          "#!/bin/sh\necho worker\n",
	"worker/sd_task/requirements.txt":       "diffusers\n",
	"worker/sd_task/setup.py":               "name = \"sd_task\"\n",
	"worker/gpt_task/requirements.txt":      "transformers\ntriton\n",
	"worker/gpt_task/setup.py":              "name = \"gpt_task\"\n",
	"worker/crynux_worker/requirements.txt": "websockets\n",
	"worker/crynux_worker/setup.py":         "name = \"crynux_worker\"\n",
}

// Workspace holds the directories of a prepared pipeline test.
type Workspace struct {
	Root     string
	Pipeline string
	Context  string
	Work     string
	Out      string
}

// NewWorkspace writes a pipeline and its build context into a temporary
// directory. Extra context files override or extend GPUNodeContext.
func NewWorkspace(t *testing.T, pipeline string, extraContext map[string]string) *Workspace {
	t.Helper()

	root := t.TempDir()
	ws := &Workspace{
		Root:     root,
		Pipeline: filepath.Join(root, "pipeline"),
		Context:  filepath.Join(root, "context"),
		Work:     filepath.Join(root, "work"),
		Out:      filepath.Join(root, "out"),
	}

	WriteFiles(t, ws.Pipeline, map[string]string{"pipeline.hcl": pipeline})
	WriteFiles(t, ws.Context, GPUNodeContext)
	if len(extraContext) > 0 {
		WriteFiles(t, ws.Context, extraContext)
	}
	return ws
}
