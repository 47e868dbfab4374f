package config

import (
	"errors"
	"fmt"
	"path"
	"strconv"

	"github.com/specialistvlad/buildgridgo/internal/nodeid"
)

// Validate checks the structural rules of a pipeline definition: unique
// names, resolvable references and flavor discipline. Artifact names are
// checked later, once each stage's plan is known.
func (m *Model) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	checkNames := func(kind nodeid.Kind, names []string) {
		seen := make(map[string]bool)
		for _, name := range names {
			if !nodeid.ValidName(name) {
				add("%s %q: invalid name", kind, name)
			}
			if seen[name] {
				add("%s %q: declared more than once", kind, name)
			}
			seen[name] = true
		}
	}

	var names []string
	for _, b := range m.Bases {
		names = append(names, b.Name)
	}
	checkNames(nodeid.KindBase, names)
	names = nil
	for _, tc := range m.Toolchains {
		names = append(names, tc.Name)
	}
	checkNames(nodeid.KindToolchain, names)
	names = nil
	for _, s := range m.Stages {
		names = append(names, s.Name)
	}
	checkNames(nodeid.KindStage, names)
	names = nil
	for _, c := range m.Composes {
		names = append(names, c.Name)
	}
	checkNames(nodeid.KindCompose, names)

	for _, b := range m.Bases {
		if b.Flavor != FlavorDevelopment && b.Flavor != FlavorRuntime {
			add("base %q: flavor must be %q or %q, got %q", b.Name, FlavorDevelopment, FlavorRuntime, b.Flavor)
		}
	}

	for _, tc := range m.Toolchains {
		if len(tc.Install) == 0 {
			add("toolchain %q: at least one install command is required", tc.Name)
		}
		if len(tc.Paths) == 0 {
			add("toolchain %q: paths must list where the toolchain is installed", tc.Name)
		}
		for _, p := range tc.Paths {
			if !isCleanAbs(p) || p == "/" {
				add("toolchain %q: path %q must be a clean absolute path below /", tc.Name, p)
			}
		}
	}

	for _, s := range m.Stages {
		if s.Kind == "" {
			add("stage %q: kind is required", s.Name)
		}
		if err := m.requireBase(s.Base, FlavorDevelopment); err != nil {
			add("stage %q: %w", s.Name, err)
		}
		seen := make(map[string]bool)
		for _, ref := range s.Toolchains {
			if ref.Kind != nodeid.KindToolchain || ref.Attr != "" {
				add("stage %q: %s is not a toolchain reference", s.Name, ref)
				continue
			}
			if m.Toolchain(ref.Name) == nil {
				add("stage %q: reference to undeclared %s", s.Name, ref)
			}
			if seen[ref.Name] {
				add("stage %q: %s listed more than once", s.Name, ref)
			}
			seen[ref.Name] = true
		}
	}

	if len(m.Composes) == 0 {
		add("at least one compose block is required")
	}
	for _, c := range m.Composes {
		errs = append(errs, m.validateCompose(c)...)
	}

	return errors.Join(errs...)
}

func (m *Model) validateCompose(c *Compose) []error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("compose %q: "+format, append([]any{c.Name}, args...)...))
	}

	if err := m.requireBase(c.Base, FlavorRuntime); err != nil {
		add("%w", err)
	}
	if len(c.Entrypoint) == 0 || !path.IsAbs(c.Entrypoint[0]) {
		add("entrypoint must start with an absolute launcher path")
	}
	if c.Workdir != "" && !isCleanAbs(c.Workdir) {
		add("workdir %q must be a clean absolute path", c.Workdir)
	}
	for _, p := range c.Path {
		if !isCleanAbs(p) {
			add("path entry %q must be a clean absolute path", p)
		}
	}

	for i, cp := range c.Copies {
		switch {
		case cp.From == nil && cp.Source == "":
			add("copy #%d: one of from or source is required", i+1)
		case cp.From != nil && cp.Source != "":
			add("copy #%d: from and source are mutually exclusive", i+1)
		case cp.From != nil:
			if !cp.From.IsArtifact() {
				add("copy #%d: %s is not a stage artifact reference", i+1, cp.From)
			} else if m.Stage(cp.From.Name) == nil {
				add("copy #%d: reference to undeclared stage %q", i+1, cp.From.Name)
			}
		case path.IsAbs(cp.Source) || path.Clean(cp.Source) != cp.Source || cp.Source == ".." || hasParent(cp.Source):
			add("copy #%d: source %q must be a clean path inside the build context", i+1, cp.Source)
		}
		if !isCleanAbs(cp.To) || cp.To == "/" {
			add("copy #%d: target %q must be a clean absolute path below /", i+1, cp.To)
		}
		if cp.Mode != "" {
			if _, err := strconv.ParseUint(cp.Mode, 8, 32); err != nil {
				add("copy #%d: mode %q is not an octal permission", i+1, cp.Mode)
			}
		}
	}

	if a := c.Appliance; a != nil {
		if err := m.requireBase(a.Base, FlavorDevelopment); err != nil {
			add("appliance: %w", err)
		}
		seen := make(map[string]bool)
		for _, svc := range a.Services {
			if !nodeid.ValidName(svc.Name) {
				add("appliance: invalid service name %q", svc.Name)
			}
			if seen[svc.Name] {
				add("appliance: service %q declared more than once", svc.Name)
			}
			seen[svc.Name] = true
		}
		for _, p := range a.LibraryPath {
			if !isCleanAbs(p) {
				add("appliance: library path %q must be a clean absolute path", p)
			}
		}
		if a.Profile != "" && !nodeid.ValidName(a.Profile) {
			add("appliance: invalid profile name %q", a.Profile)
		}
	}
	return errs
}

// requireBase checks that ref points at a declared base of the given flavor.
func (m *Model) requireBase(ref nodeid.Address, flavor Flavor) error {
	if ref.Kind != nodeid.KindBase || ref.Attr != "" {
		return fmt.Errorf("%s is not a base reference", ref)
	}
	b := m.Base(ref.Name)
	if b == nil {
		return fmt.Errorf("reference to undeclared %s", ref)
	}
	if b.Flavor != flavor {
		return fmt.Errorf("%s has flavor %q, %q is required here", ref, b.Flavor, flavor)
	}
	return nil
}

func isCleanAbs(p string) bool {
	return path.IsAbs(p) && path.Clean(p) == p
}

func hasParent(p string) bool {
	return len(p) >= 3 && p[:3] == "../"
}
