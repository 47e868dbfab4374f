package hcl_adapter

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/specialistvlad/buildgridgo/internal/config"
	"github.com/specialistvlad/buildgridgo/internal/ctxlog"
	"github.com/specialistvlad/buildgridgo/internal/fsutil"
)

// Loader is the HCL-specific implementation of the config.Loader interface.
type Loader struct{}

// NewLoader creates a new HCL configuration loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Load orchestrates the entire HCL loading process. Variables from every file
// are resolved first so that all other blocks can reference them, regardless
// of which file declares them.
func (l *Loader) Load(ctx context.Context, vars map[string]string, paths ...string) (*config.Model, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("HCL loader started.", "path_count", len(paths))

	hclFiles, err := l.findAllHCLFiles(paths)
	if err != nil {
		return nil, err
	}
	if len(hclFiles) == 0 {
		return nil, fmt.Errorf("no .hcl files found in %v", paths)
	}
	logger.Debug("Discovered HCL files.", "count", len(hclFiles))

	parser := hclparse.NewParser()
	bodies := make([]hcl.Body, 0, len(hclFiles))
	var decls []*Variable
	for _, file := range hclFiles {
		hclFile, diags := parser.ParseHCLFile(file)
		if diags.HasErrors() {
			return nil, fmt.Errorf("failed to parse HCL file %s: %w", file, diags)
		}

		var root variablesRoot
		if diags := gohcl.DecodeBody(hclFile.Body, nil, &root); diags.HasErrors() {
			return nil, fmt.Errorf("failed to decode variables in %s: %w", file, diags)
		}
		decls = append(decls, root.Variables...)
		bodies = append(bodies, hclFile.Body)
	}

	values, err := resolveVariables(decls, vars)
	if err != nil {
		return nil, err
	}
	evalCtx := newEvalContext(values)
	logger.Debug("Variables resolved.", "count", len(values))

	model := &config.Model{Variables: values, EvalContext: evalCtx}
	for i, body := range bodies {
		var root fileRoot
		if diags := gohcl.DecodeBody(body, evalCtx, &root); diags.HasErrors() {
			return nil, fmt.Errorf("failed to decode HCL file %s: %w", hclFiles[i], diags)
		}

		// Translate and merge all discovered blocks into the model.
		for _, b := range root.Bases {
			model.Bases = append(model.Bases, translateBase(b))
		}
		for _, tc := range root.Toolchains {
			model.Toolchains = append(model.Toolchains, translateToolchain(tc))
		}
		for _, s := range root.Stages {
			stage, diags := translateStage(s)
			if diags.HasErrors() {
				return nil, fmt.Errorf("stage %q in %s: %w", s.Name, hclFiles[i], diags)
			}
			model.Stages = append(model.Stages, stage)
		}
		for _, c := range root.Composes {
			comp, diags := translateCompose(c)
			if diags.HasErrors() {
				return nil, fmt.Errorf("compose %q in %s: %w", c.Name, hclFiles[i], diags)
			}
			model.Composes = append(model.Composes, comp)
		}
	}

	if err := model.Validate(); err != nil {
		return nil, fmt.Errorf("invalid pipeline definition: %w", err)
	}

	logger.Debug("HCL loading complete.", "bases", len(model.Bases), "toolchains", len(model.Toolchains), "stages", len(model.Stages), "composes", len(model.Composes))
	return model, nil
}

// findAllHCLFiles walks all given paths and returns a sorted, de-duplicated
// list of every .hcl file found.
func (l *Loader) findAllHCLFiles(paths []string) ([]string, error) {
	var allFiles []string
	seen := make(map[string]struct{})
	add := func(p string) {
		if _, wasSeen := seen[p]; !wasSeen {
			allFiles = append(allFiles, p)
			seen[p] = struct{}{}
		}
	}

	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("error accessing path %s: %w", path, err)
		}

		if info.IsDir() {
			found, err := fsutil.Glob(path, "**/*.hcl")
			if err != nil {
				return nil, err
			}
			for _, p := range found {
				add(p)
			}
		} else if filepath.Ext(path) == ".hcl" {
			add(path)
		}
	}
	sort.Strings(allFiles)
	return allFiles, nil
}
