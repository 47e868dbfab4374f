package compose

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/specialistvlad/buildgridgo/internal/config"
	"github.com/specialistvlad/buildgridgo/internal/plan"
)

const profileDir = "/etc/profile.d"

// ProfilePath is the container path of the login profile hook.
func ProfilePath(c *config.Compose) string {
	name := c.Name
	if c.Appliance != nil && c.Appliance.Profile != "" {
		name = c.Appliance.Profile
	}
	return profileDir + "/" + name + ".sh"
}

// ProfileScript exports the runtime environment for login shells: the search
// path preferring the environment binaries, the GPU toolkit libraries and
// the composition's variables.
func ProfileScript(c *config.Compose) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Runtime environment of %s.\n", c.Name)
	if len(c.Path) > 0 {
		fmt.Fprintf(&b, "export PATH=%s\n", `"`+strings.Join(c.Path, ":")+`:$PATH"`)
	}
	if ld := libraryPath(c); ld != "" {
		fmt.Fprintf(&b, "export LD_LIBRARY_PATH=%s\n", `"`+ld+`${LD_LIBRARY_PATH:+:$LD_LIBRARY_PATH}"`)
	}
	keys := make([]string, 0, len(c.Env))
	for k := range c.Env {
		if k != "PATH" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "export %s=%s\n", k, plan.Quote(c.Env[k]))
	}
	return b.String()
}

// InstallProfile writes the profile hook below root and returns its
// container path.
func InstallProfile(root string, c *config.Compose) (string, error) {
	p := ProfilePath(c)
	hostPath := filepath.Join(root, filepath.FromSlash(p))
	if err := os.MkdirAll(filepath.Dir(hostPath), 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(hostPath, []byte(ProfileScript(c)), 0o644); err != nil {
		return "", fmt.Errorf("failed to write profile hook: %w", err)
	}
	return p, nil
}
