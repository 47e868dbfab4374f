// This file contains the logic for translating HCL schema structs into the
// format-agnostic configuration model defined in the config package.

package hcl_adapter

import (
	"github.com/hashicorp/hcl/v2"
	"github.com/specialistvlad/buildgridgo/internal/config"
)

func translateBase(b *Base) *config.Base {
	return &config.Base{
		Name:     b.Name,
		Flavor:   config.Flavor(b.Flavor),
		Image:    b.Image,
		Packages: b.Packages,
		Run:      b.Run,
		Env:      b.Env,
	}
}

func translateToolchain(tc *Toolchain) *config.Toolchain {
	return &config.Toolchain{
		Name:        tc.Name,
		Description: tc.Description,
		Install:     tc.Install,
		Remove:      tc.Remove,
		Paths:       tc.Paths,
		Env:         tc.Env,
	}
}

func translateStage(s *Stage) (*config.Stage, hcl.Diagnostics) {
	base, diags := addressFromExpr(s.Base, "base")
	toolchains, tcDiags := addressesFromExpr(s.Toolchains, "toolchain")
	diags = append(diags, tcDiags...)

	body := hcl.EmptyBody()
	if s.Arguments != nil {
		body = s.Arguments.Body
	}
	return &config.Stage{
		Name:       s.Name,
		Kind:       s.Kind,
		Base:       base,
		Toolchains: toolchains,
		Env:        s.Env,
		Arguments:  body,
	}, diags
}

func translateCompose(c *Compose) (*config.Compose, hcl.Diagnostics) {
	base, diags := addressFromExpr(c.Base, "base")
	out := &config.Compose{
		Name:       c.Name,
		Base:       base,
		Workdir:    c.Workdir,
		Path:       c.Path,
		Env:        c.Env,
		Entrypoint: c.Entrypoint,
		Cmd:        c.Cmd,
		Forbid:     c.Forbid,
	}

	for _, cp := range c.Copies {
		rule := &config.Copy{Source: cp.Source, To: cp.To, Mode: cp.Mode}
		if isExprDefined(cp.From) {
			from, fromDiags := addressFromExpr(cp.From, "artifact")
			diags = append(diags, fromDiags...)
			if !fromDiags.HasErrors() {
				rule.From = &from
			}
		}
		out.Copies = append(out.Copies, rule)
	}

	if a := c.Appliance; a != nil {
		applianceBase, baseDiags := addressFromExpr(a.Base, "base")
		diags = append(diags, baseDiags...)
		appliance := &config.Appliance{
			Base:        applianceBase,
			LibraryPath: a.LibraryPath,
			Profile:     a.Profile,
		}
		for _, svc := range a.Services {
			appliance.Services = append(appliance.Services, &config.Service{
				Name:             svc.Name,
				Description:      svc.Description,
				User:             svc.User,
				Restart:          svc.Restart,
				Args:             svc.Args,
				WorkingDirectory: svc.WorkingDirectory,
			})
		}
		out.Appliance = appliance
	}
	return out, diags
}
