// Package plan describes what a stage does, independent of where it runs.
//
// A Plan is produced once per stage when the pipeline is resolved and is
// consumed by every backend: the local executor runs its steps against a
// staged root, the Dockerfile renderer turns them into RUN instructions and
// the appliance renderer into script sections. Commands address the stage
// filesystem through Rooted paths, which expand to the staged root locally
// and to "/" everywhere else.
package plan

import (
	"errors"
	"fmt"
	"path"
	"strings"
)

// StepKind is the failure category a step reports when it exits non-zero.
type StepKind string

const (
	KindFetch   StepKind = "fetch"
	KindResolve StepKind = "resolve"
	KindCompile StepKind = "compile"
	KindBuild   StepKind = "build"
	KindVerify  StepKind = "verify"
)

var validKinds = map[StepKind]bool{
	KindFetch: true, KindResolve: true, KindCompile: true, KindBuild: true, KindVerify: true,
}

// RootVar is the variable every command uses to reach the stage filesystem.
const RootVar = "ROOT"

// Bash runs step commands; with PipefailFlags a pipeline fails when any of
// its commands fails.
const Bash = "/bin/bash"

// PipefailFlags precede the command string.
var PipefailFlags = []string{"-o", "pipefail", "-c"}

// Input copies a path from the build context into the stage filesystem.
type Input struct {
	Source string
	Dest   string
}

// Step is one external process invocation. Env applies to this step only.
type Step struct {
	Name string
	Run  string
	Env  map[string]string
	Kind StepKind
}

// Artifact is an output a later stage or a composition may copy.
type Artifact struct {
	Name string
	Path string
	Dir  bool
	// Environment marks an isolated package-installation root.
	Environment bool
}

// Plan is the build procedure of one stage.
type Plan struct {
	Workdir   string
	Inputs    []Input
	Steps     []Step
	Artifacts []Artifact
}

// Rooted returns the shell form of an absolute stage path.
func Rooted(p string) string {
	return "${" + RootVar + "}" + path.Clean("/"+p)
}

// Artifact returns the named artifact.
func (p *Plan) Artifact(name string) (Artifact, bool) {
	for _, a := range p.Artifacts {
		if a.Name == name {
			return a, true
		}
	}
	return Artifact{}, false
}

// Validate checks the invariants every handler must respect.
func (p *Plan) Validate() error {
	var errs []error
	if p.Workdir != "" && !isCleanAbs(p.Workdir) {
		errs = append(errs, fmt.Errorf("workdir %q must be a clean absolute path", p.Workdir))
	}
	for _, in := range p.Inputs {
		if !IsLocal(in.Source) {
			errs = append(errs, fmt.Errorf("input %q must be relative to the build context", in.Source))
		}
		if !isCleanAbs(in.Dest) {
			errs = append(errs, fmt.Errorf("input destination %q must be a clean absolute path", in.Dest))
		}
	}
	stepNames := make(map[string]bool)
	for _, s := range p.Steps {
		if s.Name == "" || s.Run == "" {
			errs = append(errs, errors.New("steps need both a name and a command"))
		}
		if stepNames[s.Name] {
			errs = append(errs, fmt.Errorf("step %q declared more than once", s.Name))
		}
		stepNames[s.Name] = true
		if !validKinds[s.Kind] {
			errs = append(errs, fmt.Errorf("step %q has unknown kind %q", s.Name, s.Kind))
		}
	}
	if len(p.Artifacts) == 0 {
		errs = append(errs, errors.New("a stage must declare at least one artifact"))
	}
	artifactNames := make(map[string]bool)
	for _, a := range p.Artifacts {
		if a.Name == "" {
			errs = append(errs, errors.New("artifact name is required"))
		}
		if artifactNames[a.Name] {
			errs = append(errs, fmt.Errorf("artifact %q declared more than once", a.Name))
		}
		artifactNames[a.Name] = true
		if !isCleanAbs(a.Path) || a.Path == "/" {
			errs = append(errs, fmt.Errorf("artifact %q path %q must be a clean absolute path below /", a.Name, a.Path))
		}
		if a.Environment && !a.Dir {
			errs = append(errs, fmt.Errorf("artifact %q is an environment and must be a directory", a.Name))
		}
	}
	return errors.Join(errs...)
}

// Contains reports whether child is parent or lies below it.
func Contains(parent, child string) bool {
	parent, child = path.Clean(parent), path.Clean(child)
	if parent == child || parent == "/" {
		return true
	}
	return len(child) > len(parent) && child[:len(parent)] == parent && child[len(parent)] == '/'
}

func isCleanAbs(p string) bool {
	return path.IsAbs(p) && path.Clean(p) == p
}

// IsLocal reports whether p is a clean relative path that stays below its base.
func IsLocal(p string) bool {
	return p != "" && !path.IsAbs(p) && path.Clean(p) == p && p != ".." && !strings.HasPrefix(p, "../")
}
