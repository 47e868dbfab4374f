package render

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/moby/buildkit/frontend/dockerfile/parser"
	"github.com/specialistvlad/buildgridgo/internal/config"
	"github.com/specialistvlad/buildgridgo/internal/nodeid"
	"github.com/specialistvlad/buildgridgo/internal/pipeline"
	"github.com/specialistvlad/buildgridgo/internal/plan"
)

// FinalStage is the name of the last Dockerfile stage.
const FinalStage = "final"

func baseStage(name string) string  { return "base-" + name }

func writeShell(b *strings.Builder) error {
	argv, err := json.Marshal(append([]string{plan.Bash}, plan.PipefailFlags...))
	if err != nil {
		return err
	}
	fmt.Fprintf(b, "SHELL %s\n", argv)
	return nil
}
func buildStage(name string) string { return "stage-" + name }

// Dockerfile renders the container target of a composition as a multi-stage
// Dockerfile. Stage steps become RUN instructions; step env is exported on
// its own RUN only. Toolchains are installed first and removed last inside
// each consuming stage. The final stage starts from the runtime base and
// only copies.
func Dockerfile(def *pipeline.Definition, composeName string) (string, error) {
	l, err := pipeline.NewLayout(def, composeName, pipeline.TargetContainer)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# syntax=docker/dockerfile:1\n# Composition %s, container target.\n", l.Compose.Name)
	for _, n := range l.Nodes {
		var err error
		switch n.ID.Kind {
		case nodeid.KindBase:
			err = writeBaseStage(&b, def.Model, n.ID.Name)
		case nodeid.KindStage:
			err = writeBuildStage(&b, def.Model, def.StagePlan(n.ID.Name))
		case nodeid.KindCompose:
			err = writeFinalStage(&b, def, l.Compose)
		}
		if err != nil {
			return "", fmt.Errorf("%s: %w", n.ID, err)
		}
	}
	return b.String(), nil
}

func writeBaseStage(b *strings.Builder, model *config.Model, name string) error {
	base, err := baseOf(model, name)
	if err != nil {
		return err
	}
	if base.Image == "" {
		return fmt.Errorf("base '%s' declares no image", name)
	}
	fmt.Fprintf(b, "\nFROM %s AS %s\n", base.Image, baseStage(name))
	if err := writeShell(b); err != nil {
		return err
	}
	fmt.Fprintf(b, "ARG %s=\"\"\n", plan.RootVar)
	for _, kv := range sortedEnv(base.Env) {
		fmt.Fprintf(b, "ENV %s\n", kv)
	}
	for _, s := range plan.ForBase(base) {
		if err := writeRun(b, "base."+name, s); err != nil {
			return err
		}
	}
	return nil
}

func writeBuildStage(b *strings.Builder, model *config.Model, sp *pipeline.StagePlan) error {
	if sp == nil {
		return errors.New("stage was not resolved")
	}
	fmt.Fprintf(b, "\nFROM %s AS %s\n", baseStage(sp.Stage.Base.Name), buildStage(sp.Stage.Name))
	if err := writeShell(b); err != nil {
		return err
	}
	fmt.Fprintf(b, "ARG %s=\"\"\n", plan.RootVar)
	for _, kv := range sortedEnv(sp.Stage.Env) {
		fmt.Fprintf(b, "ENV %s\n", kv)
	}
	for _, in := range sp.Plan.Inputs {
		fmt.Fprintf(b, "COPY %s %s\n", in.Source, in.Dest)
	}
	if sp.Plan.Workdir != "" {
		fmt.Fprintf(b, "WORKDIR %s\n", sp.Plan.Workdir)
	}

	owner := "stage." + sp.Stage.Name
	for _, tc := range sp.Toolchains {
		for _, s := range plan.ForToolchain(tc) {
			if err := writeRun(b, owner, s); err != nil {
				return err
			}
		}
		for _, kv := range sortedEnv(tc.Env) {
			fmt.Fprintf(b, "ENV %s\n", kv)
		}
	}
	for _, s := range sp.Plan.Steps {
		if err := writeRun(b, owner, s); err != nil {
			return err
		}
	}
	for i := len(sp.Toolchains) - 1; i >= 0; i-- {
		for _, s := range plan.ReleaseToolchain(sp.Toolchains[i]) {
			if err := writeRun(b, owner, s); err != nil {
				return err
			}
		}
	}
	return nil
}

func writeRun(b *strings.Builder, owner string, s plan.Step) error {
	if err := singleLine(owner, s); err != nil {
		return err
	}
	fmt.Fprintf(b, "# %s (%s)\n", s.Name, s.Kind)
	if len(s.Env) == 0 {
		fmt.Fprintf(b, "RUN %s\n", s.Run)
		return nil
	}
	fmt.Fprintf(b, "RUN export %s && %s\n", strings.Join(sortedEnv(s.Env), " "), s.Run)
	return nil
}

func writeFinalStage(b *strings.Builder, def *pipeline.Definition, c *config.Compose) error {
	fmt.Fprintf(b, "\nFROM %s AS %s\n", baseStage(c.Base.Name), FinalStage)
	for _, cp := range c.Copies {
		var flags []string
		src := cp.Source
		if cp.From != nil {
			a, err := def.Artifact(*cp.From)
			if err != nil {
				return err
			}
			flags = append(flags, "--from="+buildStage(cp.From.Name))
			src = a.Path
		}
		if cp.Mode != "" {
			flags = append(flags, "--chmod="+cp.Mode)
		}
		fmt.Fprintf(b, "COPY %s\n", strings.Join(append(flags, src, cp.To), " "))
	}

	env := make(map[string]string, len(c.Env)+1)
	for k, v := range c.Env {
		if k != "PATH" {
			env[k] = v
		}
	}
	if len(c.Path) > 0 {
		env["PATH"] = c.SearchPath("${PATH}")
	}
	for _, kv := range sortedEnv(env) {
		fmt.Fprintf(b, "ENV %s\n", kv)
	}
	if c.Workdir != "" {
		fmt.Fprintf(b, "WORKDIR %s\n", c.Workdir)
	}
	for _, ins := range []struct {
		name  string
		words []string
	}{{"ENTRYPOINT", c.Entrypoint}, {"CMD", c.EffectiveCmd()}} {
		if len(ins.words) == 0 {
			continue
		}
		data, err := json.Marshal(ins.words)
		if err != nil {
			return err
		}
		fmt.Fprintf(b, "%s %s\n", ins.name, data)
	}
	return nil
}

// ValidateDockerfile parses a Dockerfile with the BuildKit parser and checks
// that the last stage only copies and that every COPY --from names an
// earlier stage.
func ValidateDockerfile(text string) error {
	res, err := parser.Parse(strings.NewReader(text))
	if err != nil {
		return fmt.Errorf("dockerfile does not parse: %w", err)
	}

	stages := make(map[string]bool)
	var current string
	var runsInFinal []int
	var errs []error
	lastFrom := 0
	for i, n := range res.AST.Children {
		if strings.EqualFold(n.Value, "from") {
			lastFrom = i
		}
	}
	for i, n := range res.AST.Children {
		switch strings.ToLower(n.Value) {
		case "from":
			current = stageName(n)
			if current != "" {
				stages[current] = true
			}
		case "run":
			if i > lastFrom {
				runsInFinal = append(runsInFinal, n.StartLine)
			}
		case "copy":
			for _, f := range n.Flags {
				from, ok := strings.CutPrefix(f, "--from=")
				if !ok {
					continue
				}
				if !stages[from] || from == current {
					errs = append(errs, fmt.Errorf("line %d: COPY --from=%s names no earlier stage", n.StartLine, from))
				}
			}
		}
	}
	if len(runsInFinal) > 0 {
		errs = append(errs, fmt.Errorf("final stage runs commands at lines %v", runsInFinal))
	}
	return errors.Join(errs...)
}

// stageName returns the AS name of a FROM instruction.
func stageName(n *parser.Node) string {
	var words []string
	for next := n.Next; next != nil; next = next.Next {
		words = append(words, next.Value)
	}
	if len(words) == 3 && strings.EqualFold(words[1], "as") {
		return strings.ToLower(words[2])
	}
	return ""
}
