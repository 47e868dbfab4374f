package compose

import (
	"encoding/json"
	"fmt"
	"os"
	"runtime"
	"sort"

	digest "github.com/opencontainers/go-digest"
	v1 "github.com/opencontainers/image-spec/specs-go/v1"
	"github.com/specialistvlad/buildgridgo/internal/config"
)

// LabelRootFS carries the digest of the final filesystem listing.
const LabelRootFS = "io.buildgrid.rootfs.digest"

// Env returns the runtime environment of a composition as sorted KEY=value
// pairs, PATH first. inherited is the PATH of the composition's base.
func Env(c *config.Compose, inherited string) []string {
	env := []string{"PATH=" + c.SearchPath(inherited)}
	keys := make([]string, 0, len(c.Env))
	for k := range c.Env {
		if k != "PATH" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = append(env, k+"="+c.Env[k])
	}
	return env
}

// ImageConfig returns the OCI image configuration of a composition built on
// base. It holds no timestamps, so equal inputs give equal configs.
func ImageConfig(c *config.Compose, base *config.Base, rootfs digest.Digest) v1.Image {
	labels := map[string]string{
		v1.AnnotationTitle: c.Name,
	}
	if rootfs != "" {
		labels[LabelRootFS] = rootfs.String()
	}
	return v1.Image{
		Platform: v1.Platform{
			Architecture: runtime.GOARCH,
			OS:           "linux",
		},
		Config: v1.ImageConfig{
			Env:        Env(c, base.SearchPath()),
			Entrypoint: c.Entrypoint,
			Cmd:        c.EffectiveCmd(),
			WorkingDir: c.Workdir,
			Labels:     labels,
		},
		RootFS: v1.RootFS{
			Type:    "layers",
			DiffIDs: []digest.Digest{},
		},
	}
}

// WriteImageConfig writes img as indented JSON.
func WriteImageConfig(path string, img v1.Image) error {
	data, err := json.MarshalIndent(img, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode image config: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("failed to write image config: %w", err)
	}
	return nil
}
