package render

import (
	"fmt"
	"sort"
	"strings"

	"github.com/specialistvlad/buildgridgo/internal/config"
	"github.com/specialistvlad/buildgridgo/internal/plan"
)

// doubleQuote quotes s for a context that still expands $VAR references.
func doubleQuote(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`, "`", "\\`")
	return `"` + r.Replace(s) + `"`
}

// singleLine rejects commands a line-oriented format cannot carry.
func singleLine(owner string, s plan.Step) error {
	if strings.ContainsAny(s.Run, "\r\n") {
		return fmt.Errorf("%s step '%s' spans several lines", owner, s.Name)
	}
	return nil
}

// sortedEnv returns KEY="value" pairs in key order.
func sortedEnv(env map[string]string) []string {
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+doubleQuote(env[k]))
	}
	return out
}

// baseOf returns the base a node builds on.
func baseOf(model *config.Model, name string) (*config.Base, error) {
	b := model.Base(name)
	if b == nil {
		return nil, fmt.Errorf("base '%s' is not declared", name)
	}
	return b, nil
}
