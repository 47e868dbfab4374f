package hcl_adapter

import (
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/specialistvlad/buildgridgo/internal/nodeid"
)

// isExprDefined checks if an HCL expression was actually present in the source
// code. The decoder populates omitted optional expression fields with
// zero-width placeholders, so a nil check is insufficient: a real attribute
// occupies bytes in the file.
func isExprDefined(expr hcl.Expression) bool {
	if expr == nil {
		return false
	}
	r := expr.Range()
	return r.End.Byte > r.Start.Byte
}

// addressFromExpr resolves a bare reference such as `base.devel` without
// evaluating it.
func addressFromExpr(expr hcl.Expression, attr string) (nodeid.Address, hcl.Diagnostics) {
	traversal, diags := hcl.AbsTraversalForExpr(expr)
	if diags.HasErrors() {
		return nodeid.Address{}, diags
	}
	addr, err := nodeid.FromTraversal(traversal)
	if err != nil {
		r := expr.Range()
		return nodeid.Address{}, hcl.Diagnostics{{
			Severity: hcl.DiagError,
			Summary:  fmt.Sprintf("Invalid %s reference", attr),
			Detail:   err.Error(),
			Subject:  &r,
		}}
	}
	return addr, nil
}

// addressesFromExpr resolves a static list of references such as
// `[toolchain.rust, toolchain.yarn]`.
func addressesFromExpr(expr hcl.Expression, attr string) ([]nodeid.Address, hcl.Diagnostics) {
	if !isExprDefined(expr) {
		return nil, nil
	}
	items, diags := hcl.ExprList(expr)
	if diags.HasErrors() {
		return nil, diags
	}
	addrs := make([]nodeid.Address, 0, len(items))
	for _, item := range items {
		addr, itemDiags := addressFromExpr(item, attr)
		diags = append(diags, itemDiags...)
		if !itemDiags.HasErrors() {
			addrs = append(addrs, addr)
		}
	}
	return addrs, diags
}
