// Package normalize implements §4.8: every sub-node call is rewritten
// so it appears only as the entire right-hand side of an equation, with
// plain-identifier arguments, hoisting fresh local signals wherever a
// call or a call argument isn't already in that shape. Grounded on
// original_source/src/frontend/normalizing/normal_form/{equation,node}.rs.
package normalize

import (
	"fmt"

	"github.com/flowlang/flowc/internal/ast"
	"github.com/flowlang/flowc/internal/hir"
	"github.com/flowlang/flowc/internal/identgen"
	"github.com/flowlang/flowc/internal/symtab"
	"github.com/flowlang/flowc/internal/unitary"
)

// MemIdent maps each (post-normalization) call-site equation to its
// deterministically derived memory identifier (§4.8's last paragraph),
// consumed by the memorizer to name the call's memory slot.
type MemIdent map[*hir.Equation]string

// Run rewrites u.Equations in place (preserving the scheduled order
// already imposed by §4.7: new equations are inserted immediately
// before the equation that needed them) and returns the call-site
// memory identifiers.
func Run(table *symtab.Table, u *unitary.Node) MemIdent {
	names := []string{}
	for _, eq := range u.Equations {
		for _, d := range eq.Defines {
			names = append(names, symName(table, d))
		}
	}
	for _, in := range u.Inputs {
		names = append(names, symName(table, in))
	}
	nz := &normalizer{table: table, ids: identgen.New(names), mem: MemIdent{}}

	var out []*hir.Equation
	for _, eq := range u.Equations {
		newExpr, pre := nz.walk(eq.Expr, true)
		out = append(out, pre...)
		out = append(out, &hir.Equation{Defines: eq.Defines, Pattern: eq.Pattern, Expr: newExpr, Loc: eq.Loc})
	}

	// Every equation whose RHS is now a sub-node call — whether it was
	// already in that shape or was just hoisted above — gets a stable
	// memory identifier for the memorizer.
	for _, eq := range out {
		if eq.Expr == nil || eq.Expr.Kind != ast.ExprCall {
			continue
		}
		enclosing := "?"
		if len(eq.Defines) > 0 {
			enclosing = symName(table, eq.Defines[0])
		}
		nz.mem[eq] = nz.ids.MemoryIdent(calleeName(table, eq.Expr.CalleeID), chosenOutputName(table, eq.Expr), enclosing)
	}

	u.Equations = out
	return nz.mem
}

type normalizer struct {
	table *symtab.Table
	ids   *identgen.Creator
	mem   MemIdent
}

// walk rewrites e bottom-up. top indicates e is the direct RHS of its
// enclosing equation: a call found at top stays as the whole RHS; a
// call found anywhere else is hoisted into a fresh preceding equation.
func (nz *normalizer) walk(e *hir.Expr, top bool) (*hir.Expr, []*hir.Equation) {
	if e == nil {
		return nil, nil
	}
	if e.Kind == ast.ExprCall {
		return nz.walkCall(e, top)
	}

	var pre []*hir.Equation
	out := *e
	if len(e.Children) > 0 {
		out.Children = make([]*hir.Expr, len(e.Children))
		for i, c := range e.Children {
			nc, p := nz.walk(c, false)
			pre = append(pre, p...)
			out.Children[i] = nc
		}
	}
	if e.Scrutinee != nil {
		nc, p := nz.walk(e.Scrutinee, false)
		pre = append(pre, p...)
		out.Scrutinee = nc
	}
	if e.Body != nil {
		nc, p := nz.walk(e.Body, false)
		pre = append(pre, p...)
		out.Body = nc
	}
	if len(e.Arms) > 0 {
		out.Arms = make([]hir.MatchArm, len(e.Arms))
		for i, a := range e.Arms {
			guard, p := nz.walk(a.Guard, false)
			pre = append(pre, p...)
			body, p2 := nz.walk(a.Body, false)
			pre = append(pre, p2...)
			out.Arms[i] = hir.MatchArm{Pattern: a.Pattern, Guard: guard, Body: body}
		}
	}
	return &out, pre
}

func (nz *normalizer) walkCall(e *hir.Expr, top bool) (*hir.Expr, []*hir.Equation) {
	var pre []*hir.Equation
	out := *e
	out.Children = make([]*hir.Expr, len(e.Children))
	for i, c := range e.Children {
		nc, p := nz.walk(c, false)
		pre = append(pre, p...)
		out.Children[i] = nz.ensureIdent(nc, &pre)
	}
	if top {
		return &out, pre
	}
	freshID := nz.freshLocal(&out)
	pre = append(pre, &hir.Equation{Defines: []symtab.ID{freshID}, Expr: &out, Loc: e.Pos})
	return &hir.Expr{Kind: ast.ExprIdent, Pos: e.Pos, ID: freshID}, pre
}

// ensureIdent guarantees a call argument is a plain identifier
// reference, hoisting it into a fresh preceding equation otherwise.
func (nz *normalizer) ensureIdent(e *hir.Expr, pre *[]*hir.Equation) *hir.Expr {
	if e.Kind == ast.ExprIdent {
		return e
	}
	freshID := nz.freshLocal(e)
	*pre = append(*pre, &hir.Equation{Defines: []symtab.ID{freshID}, Expr: e, Loc: e.Pos})
	return &hir.Expr{Kind: ast.ExprIdent, Pos: e.Pos, ID: freshID}
}

func (nz *normalizer) freshLocal(e *hir.Expr) symtab.ID {
	name := nz.ids.Fresh(exprHint(e))
	id, err := nz.table.InsertLocal(name, symtab.ScopeNodeLocal, true, e.Pos)
	if err != nil {
		return 0
	}
	if e.Type != nil {
		nz.table.SetType(id, e.Type)
	}
	return id
}

// exprHint picks a readable base name for a hoisted signal: "call" for
// a call, a generic "t" otherwise.
func exprHint(e *hir.Expr) string {
	if e.Kind == ast.ExprCall {
		return "call"
	}
	return "t"
}

func calleeName(t *symtab.Table, id symtab.ID) string {
	if sym := t.Symbol(id); sym != nil {
		return sym.Name
	}
	return "?"
}

func chosenOutputName(t *symtab.Table, call *hir.Expr) string {
	if call.Output != "" {
		return call.Output
	}
	sym := t.Symbol(call.CalleeID)
	if sym == nil {
		return "?"
	}
	data, _ := sym.Data.(*symtab.NodeData)
	if data == nil || len(data.Outputs) == 0 {
		return "?"
	}
	return symName(t, data.Outputs[0])
}

func symName(t *symtab.Table, id symtab.ID) string {
	if sym := t.Symbol(id); sym != nil {
		return sym.Name
	}
	return fmt.Sprintf("id%d", id)
}
