package plan

import (
	"strings"

	"mvdan.cc/sh/v3/syntax"
)

// Quote returns s as a single POSIX shell word.
func Quote(s string) string {
	q, err := syntax.Quote(s, syntax.LangPOSIX)
	if err != nil {
		return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
	}
	return q
}

// QuoteRooted quotes a Rooted path so the variable still expands.
func QuoteRooted(p string) string {
	return `"` + Rooted(p) + `"`
}

// Expand fills {name} placeholders of a command template.
func Expand(template string, values map[string]string) string {
	pairs := make([]string, 0, len(values)*2)
	for k, v := range values {
		pairs = append(pairs, "{"+k+"}", v)
	}
	return strings.NewReplacer(pairs...).Replace(template)
}
