package localexecutor

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/specialistvlad/buildgridgo/internal/artifact"
	"github.com/specialistvlad/buildgridgo/internal/compose"
	"github.com/specialistvlad/buildgridgo/internal/config"
	"github.com/specialistvlad/buildgridgo/internal/ctxlog"
	"github.com/specialistvlad/buildgridgo/internal/pipeline"
)

const (
	manifestFile    = "manifest.yaml"
	imageConfigFile = "config.json"
)

// policy returns what the final filesystem must not contain.
func (e *Executor) policy() (*compose.Policy, error) {
	toolchains := e.layout.Toolchains
	if !e.appliance() {
		toolchains = pipeline.ToolchainsFor(e.layout.Stages)
	}
	return compose.NewPolicy(toolchains, e.layout.Compose.Forbid, !e.appliance())
}

// runRelease verifies the staged filesystem, writes its manifest and
// publishes it.
func (e *Executor) runRelease(ctx context.Context) error {
	logger := ctxlog.FromContext(ctx)
	c := e.layout.Compose
	root := e.root()

	policy, err := e.policy()
	if err != nil {
		return err
	}
	if err := policy.Verify(root); err != nil {
		return err
	}
	if err := compose.CheckTargets(root, c.Copies); err != nil {
		return err
	}

	m, err := e.buildManifest(ctx, c, root)
	if err != nil {
		return err
	}
	staging := e.sess.StagingDir(c.Name)
	if err := compose.WriteManifest(filepath.Join(staging, manifestFile), m); err != nil {
		return err
	}
	if !e.appliance() {
		img := compose.ImageConfig(c, e.def.Model.Base(c.Base.Name), m.RootFS)
		if err := compose.WriteImageConfig(filepath.Join(staging, imageConfigFile), img); err != nil {
			return err
		}
	}

	release, err := e.sess.Publish(ctx, c.Name)
	if err != nil {
		return err
	}
	e.mu.Lock()
	e.manifest = m
	e.release = release
	e.mu.Unlock()
	logger.Debug("Release written.", "rootfs", m.RootFS, "entries", m.Entries)
	return e.progress.Advance(PhaseDone)
}

// placedEnv is an isolated environment as it lands in the final filesystem.
type placedEnv struct {
	name  string
	files artifact.Listing
}

// checkEnvironments fails when two placed environments share a file path.
func checkEnvironments(envs []placedEnv) error {
	for i, env := range envs {
		for _, other := range envs[i+1:] {
			if shared := artifact.Overlap(env.files, other.files); len(shared) > 0 {
				return fmt.Errorf("%w: %s and %s both place %s", compose.ErrOverlap, env.name, other.name, strings.Join(shared, ", "))
			}
		}
	}
	return nil
}

func (e *Executor) buildManifest(ctx context.Context, c *config.Compose, root string) (*compose.Manifest, error) {
	listing, err := artifact.List(root)
	if err != nil {
		return nil, fmt.Errorf("failed to list final filesystem: %w", err)
	}

	base := c.Base.Name
	if e.appliance() {
		base = c.Appliance.Base.Name
	}
	m := compose.NewManifest(c, string(e.layout.Target), base)
	m.RootFS = listing.Digest()
	m.Entries = len(listing)

	e.mu.Lock()
	placed := e.placed
	purged := append([]string(nil), e.purged...)
	e.mu.Unlock()

	hostPaths := make([]string, len(placed))
	for i, p := range placed {
		hostPaths[i] = p.HostPath
	}
	listings, err := artifact.ListAll(ctx, hostPaths, e.opts.ListConcurrency)
	if err != nil {
		return nil, err
	}
	var envs []placedEnv
	for i, p := range placed {
		mc := compose.ManifestCopy{Source: p.Copy.Source, To: p.Copy.To, Mode: p.Copy.Mode, Digest: listings[i].Digest()}
		if p.Copy.From != nil {
			mc.From = p.Copy.From.String()
			a, err := e.def.Artifact(*p.Copy.From)
			if err != nil {
				return nil, err
			}
			if a.Environment {
				envs = append(envs, placedEnv{name: mc.From, files: listings[i].Prefixed(strings.TrimPrefix(p.Copy.To, "/"))})
			}
		}
		m.Copies = append(m.Copies, mc)
	}
	if err := checkEnvironments(envs); err != nil {
		return nil, err
	}

	m.Stages = make(map[string]string, len(e.layout.Stages))
	for _, sp := range e.layout.Stages {
		m.Stages[sp.Stage.Name] = sp.Stage.Kind
	}
	if e.appliance() {
		for _, svc := range c.Appliance.Services {
			m.Services = append(m.Services, compose.UnitName(svc))
		}
		m.Profile = compose.ProfilePath(c)
		m.Purged = purged
	}
	return m, nil
}
