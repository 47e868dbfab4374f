package plan

import (
	"fmt"
	"strings"

	"github.com/specialistvlad/buildgridgo/internal/config"
)

// DefaultPackageInstall provisions distribution packages into a base.
const DefaultPackageInstall = "apt-get update && apt-get install -y --no-install-recommends %s && rm -rf ${ROOT}/var/lib/apt/lists/*"

// ForBase returns the steps that provision a base filesystem.
func ForBase(b *config.Base) []Step {
	var steps []Step
	if len(b.Packages) > 0 {
		steps = append(steps, Step{
			Name: "packages",
			Run:  fmt.Sprintf(DefaultPackageInstall, strings.Join(b.Packages, " ")),
			Kind: KindFetch,
		})
	}
	for i, run := range b.Run {
		steps = append(steps, Step{Name: fmt.Sprintf("run-%d", i+1), Run: run, Kind: KindBuild})
	}
	return steps
}

// ForToolchain returns the steps that acquire a toolchain.
func ForToolchain(tc *config.Toolchain) []Step {
	steps := make([]Step, 0, len(tc.Install))
	for i, run := range tc.Install {
		steps = append(steps, Step{
			Name: fmt.Sprintf("%s-install-%d", tc.Name, i+1),
			Run:  run,
			Kind: KindFetch,
		})
	}
	return steps
}

// ReleaseToolchain returns the steps that remove a toolchain: its own removal
// commands followed by deleting every path it occupies.
func ReleaseToolchain(tc *config.Toolchain) []Step {
	steps := make([]Step, 0, len(tc.Remove)+1)
	for i, run := range tc.Remove {
		steps = append(steps, Step{
			Name: fmt.Sprintf("%s-remove-%d", tc.Name, i+1),
			Run:  run,
			Kind: KindBuild,
		})
	}
	rooted := make([]string, 0, len(tc.Paths))
	for _, p := range tc.Paths {
		rooted = append(rooted, QuoteRooted(p))
	}
	steps = append(steps, Step{
		Name: tc.Name + "-purge",
		Run:  "rm -rf " + strings.Join(rooted, " "),
		Kind: KindBuild,
	})
	return steps
}
