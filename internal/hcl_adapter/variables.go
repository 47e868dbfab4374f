package hcl_adapter

import (
	"fmt"
	"sort"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
	"github.com/zclconf/go-cty/cty/function"
	"github.com/zclconf/go-cty/cty/function/stdlib"
)

// functions are available to every expression in a pipeline definition.
var functions = map[string]function.Function{
	"concat":    stdlib.ConcatFunc,
	"format":    stdlib.FormatFunc,
	"join":      stdlib.JoinFunc,
	"lower":     stdlib.LowerFunc,
	"replace":   stdlib.ReplaceFunc,
	"trimspace": stdlib.TrimSpaceFunc,
	"upper":     stdlib.UpperFunc,
}

// resolveVariables evaluates variable defaults and applies command-line
// overrides. Overrides for non-string variables are parsed as HCL
// expressions and converted to the type of the default.
func resolveVariables(decls []*Variable, overrides map[string]string) (map[string]cty.Value, error) {
	values := make(map[string]cty.Value, len(decls))
	for _, v := range decls {
		if _, dup := values[v.Name]; dup {
			return nil, fmt.Errorf("variable %q declared more than once", v.Name)
		}
		val := cty.NullVal(cty.DynamicPseudoType)
		if isExprDefined(v.Default) {
			def, diags := v.Default.Value(nil)
			if diags.HasErrors() {
				return nil, fmt.Errorf("invalid default for variable %q: %w", v.Name, diags)
			}
			val = def
		}
		values[v.Name] = val
	}

	names := make([]string, 0, len(overrides))
	for name := range overrides {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		current, ok := values[name]
		if !ok {
			return nil, fmt.Errorf("value given for undeclared variable %q", name)
		}
		val, err := overrideValue(name, overrides[name], current.Type())
		if err != nil {
			return nil, err
		}
		values[name] = val
	}

	for name, val := range values {
		if val.IsNull() {
			return nil, fmt.Errorf("variable %q has no default and no value was given", name)
		}
	}
	return values, nil
}

func overrideValue(name, raw string, want cty.Type) (cty.Value, error) {
	if want == cty.DynamicPseudoType || want == cty.String {
		return cty.StringVal(raw), nil
	}
	if want.IsPrimitiveType() {
		val, err := convert.Convert(cty.StringVal(raw), want)
		if err != nil {
			return cty.NilVal, fmt.Errorf("variable %q: %w", name, err)
		}
		return val, nil
	}

	expr, diags := hclsyntax.ParseExpression([]byte(raw), "<var "+name+">", hcl.Pos{Line: 1, Column: 1})
	if diags.HasErrors() {
		return cty.NilVal, fmt.Errorf("variable %q: %w", name, diags)
	}
	val, diags := expr.Value(nil)
	if diags.HasErrors() {
		return cty.NilVal, fmt.Errorf("variable %q: %w", name, diags)
	}
	if !want.IsCollectionType() {
		// Tuple and object defaults only fix the shape of their literal.
		return val, nil
	}
	val, err := convert.Convert(val, want)
	if err != nil {
		return cty.NilVal, fmt.Errorf("variable %q: %w", name, err)
	}
	return val, nil
}

// newEvalContext exposes variables as `var.<name>` together with the
// function table.
func newEvalContext(values map[string]cty.Value) *hcl.EvalContext {
	return &hcl.EvalContext{
		Variables: map[string]cty.Value{"var": cty.ObjectVal(values)},
		Functions: functions,
	}
}
