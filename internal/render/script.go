package render

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/coreos/go-systemd/v22/unit"
	"github.com/specialistvlad/buildgridgo/internal/compose"
	"github.com/specialistvlad/buildgridgo/internal/config"
	"github.com/specialistvlad/buildgridgo/internal/nodeid"
	"github.com/specialistvlad/buildgridgo/internal/pipeline"
	"github.com/specialistvlad/buildgridgo/internal/plan"
	"mvdan.cc/sh/v3/syntax"
)

// ContextVar names the script variable holding the build context directory.
const ContextVar = "CONTEXT"

type script struct {
	b strings.Builder
}

func (s *script) section(id nodeid.Address, note string) {
	fmt.Fprintf(&s.b, "\n# --- %s", id)
	if note != "" {
		fmt.Fprintf(&s.b, ": %s", note)
	}
	s.b.WriteString("\n")
	fmt.Fprintf(&s.b, "echo %s\n", plan.Quote("==> "+id.String()))
}

func (s *script) line(indent string, format string, args ...any) {
	s.b.WriteString(indent)
	fmt.Fprintf(&s.b, format, args...)
	s.b.WriteString("\n")
}

func (s *script) step(indent, owner string, st plan.Step) error {
	if err := singleLine(owner, st); err != nil {
		return err
	}
	s.line(indent, "# %s (%s)", st.Name, st.Kind)
	if len(st.Env) == 0 {
		s.line(indent, "%s", st.Run)
		return nil
	}
	s.line(indent, "(export %s; %s)", strings.Join(sortedEnv(st.Env), " "), st.Run)
	return nil
}

func (s *script) exports(indent string, env map[string]string) {
	for _, kv := range sortedEnv(env) {
		s.line(indent, "export %s", kv)
	}
}

// heredoc writes content to a rooted path without expanding anything in it.
func (s *script) heredoc(p, marker, content string) {
	s.line("", "mkdir -p %s", plan.QuoteRooted(pathDir(p)))
	s.line("", "cat > %s <<'%s'", plan.QuoteRooted(p), marker)
	s.b.WriteString(content)
	if !strings.HasSuffix(content, "\n") {
		s.b.WriteString("\n")
	}
	s.line("", "%s", marker)
}

func pathDir(p string) string {
	if i := strings.LastIndex(p, "/"); i > 0 {
		return p[:i]
	}
	return "/"
}

// Script renders the appliance target of a composition as a bash
// provisioning script run on the machine being provisioned. Stages run in
// subshells so their environment does not leak; toolchains are removed last,
// in reverse acquisition order.
func Script(def *pipeline.Definition, composeName string) (string, error) {
	l, err := pipeline.NewLayout(def, composeName, pipeline.TargetAppliance)
	if err != nil {
		return "", err
	}
	c := l.Compose
	base, err := baseOf(def.Model, c.Appliance.Base.Name)
	if err != nil {
		return "", err
	}

	s := &script{}
	s.line("", "#!/usr/bin/env bash")
	s.line("", "# Provisions composition %s as an appliance.", c.Name)
	s.line("", "set -euo pipefail")
	s.line("", `%s="${%s:-}"`, plan.RootVar, plan.RootVar)
	s.line("", `%s="${%s:-$(pwd)}"`, ContextVar, ContextVar)
	s.line("", "export %s %s", plan.RootVar, ContextVar)

	for _, n := range l.Nodes {
		var err error
		switch n.ID.Kind {
		case nodeid.KindBase:
			err = s.base(n.ID, base)
		case nodeid.KindToolchain:
			err = s.toolchain(n.ID, def.Model.Toolchain(n.ID.Name))
		case nodeid.KindStage:
			err = s.stage(n.ID, def.StagePlan(n.ID.Name))
		case nodeid.KindCompose:
			err = s.compose(n.ID, def, c)
		case nodeid.KindService:
			err = s.services(n.ID, c)
		case nodeid.KindEnvironment:
			s.section(n.ID, "login profile hook")
			s.heredoc(compose.ProfilePath(c), "PROFILE", compose.ProfileScript(c))
		case nodeid.KindPurge:
			err = s.purge(n.ID, l.Toolchains)
		case nodeid.KindRelease:
			s.section(n.ID, "")
			s.line("", "echo %s", plan.Quote("appliance "+c.Name+" provisioned"))
		}
		if err != nil {
			return "", fmt.Errorf("%s: %w", n.ID, err)
		}
	}
	return s.b.String(), nil
}

func (s *script) base(id nodeid.Address, b *config.Base) error {
	s.section(id, string(b.Flavor))
	s.exports("", b.Env)
	for _, st := range plan.ForBase(b) {
		if err := s.step("", id.String(), st); err != nil {
			return err
		}
	}
	return nil
}

func (s *script) toolchain(id nodeid.Address, tc *config.Toolchain) error {
	if tc == nil {
		return errors.New("toolchain is not declared")
	}
	s.section(id, tc.Description)
	for _, st := range plan.ForToolchain(tc) {
		if err := s.step("", id.String(), st); err != nil {
			return err
		}
	}
	return nil
}

func (s *script) stage(id nodeid.Address, sp *pipeline.StagePlan) error {
	if sp == nil {
		return errors.New("stage was not resolved")
	}
	s.section(id, sp.Stage.Kind)
	s.line("", "(")
	const in = "  "
	s.exports(in, sp.Stage.Env)
	for _, tc := range sp.Toolchains {
		s.exports(in, tc.Env)
	}
	for _, input := range sp.Plan.Inputs {
		dst := plan.QuoteRooted(input.Dest)
		s.line(in, "mkdir -p %s", plan.QuoteRooted(pathDir(input.Dest)))
		s.line(in, "rm -rf %s", dst)
		s.line(in, `cp -a "${%s}"/%s %s`, ContextVar, plan.Quote(input.Source), dst)
	}
	if sp.Plan.Workdir != "" {
		s.line(in, "mkdir -p %s", plan.QuoteRooted(sp.Plan.Workdir))
		s.line(in, "cd %s", plan.QuoteRooted(sp.Plan.Workdir))
	}
	for _, st := range sp.Plan.Steps {
		if err := s.step(in, id.String(), st); err != nil {
			return err
		}
	}
	s.line("", ")")
	return nil
}

func (s *script) compose(id nodeid.Address, def *pipeline.Definition, c *config.Compose) error {
	s.section(id, "")
	for _, cp := range c.Copies {
		dst := plan.QuoteRooted(cp.To)
		if cp.From != nil {
			a, err := def.Artifact(*cp.From)
			if err != nil {
				return err
			}
			if a.Path != cp.To {
				s.line("", "mkdir -p %s", plan.QuoteRooted(pathDir(cp.To)))
				s.line("", "rm -rf %s", dst)
				s.line("", "cp -a %s %s", plan.QuoteRooted(a.Path), dst)
			}
		} else {
			s.line("", "mkdir -p %s", plan.QuoteRooted(pathDir(cp.To)))
			s.line("", "rm -rf %s", dst)
			s.line("", `cp -a "${%s}"/%s %s`, ContextVar, plan.Quote(cp.Source), dst)
		}
		if cp.Mode != "" {
			s.line("", "chmod %s %s", cp.Mode, dst)
		}
	}
	return nil
}

func (s *script) services(id nodeid.Address, c *config.Compose) error {
	s.section(id, "")
	for _, svc := range c.Appliance.Services {
		content, err := io.ReadAll(unit.Serialize(compose.ServiceUnit(c, svc)))
		if err != nil {
			return fmt.Errorf("failed to serialize unit %s: %w", svc.Name, err)
		}
		s.heredoc("/etc/systemd/system/"+compose.UnitName(svc), "UNIT", string(content))
		s.line("", `systemctl --root="${%s:-/}" enable %s`, plan.RootVar, plan.Quote(compose.UnitName(svc)))
	}
	return nil
}

func (s *script) purge(id nodeid.Address, toolchains []*config.Toolchain) error {
	s.section(id, "toolchains in reverse acquisition order")
	for i := len(toolchains) - 1; i >= 0; i-- {
		for _, st := range plan.ReleaseToolchain(toolchains[i]) {
			if err := s.step("", id.String(), st); err != nil {
				return err
			}
		}
	}
	return nil
}

// ValidateScript parses a script as bash and rejects template placeholders
// that were never filled.
func ValidateScript(text string) error {
	f, err := syntax.NewParser(syntax.Variant(syntax.LangBash)).Parse(strings.NewReader(text), "provision.sh")
	if err != nil {
		return fmt.Errorf("script does not parse: %w", err)
	}
	var errs []error
	syntax.Walk(f, func(node syntax.Node) bool {
		lit, ok := node.(*syntax.Lit)
		if !ok {
			return true
		}
		for _, p := range []string{"{env}", "{python}", "{requirements}", "{source}", "{packages}"} {
			if strings.Contains(lit.Value, p) {
				errs = append(errs, fmt.Errorf("%s: unexpanded placeholder %s", lit.Pos(), p))
			}
		}
		return true
	})
	return errors.Join(errs...)
}
