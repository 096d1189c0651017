// Package inline implements the shifted-causality inliner of §4.6: a
// sub-node call whose result participates in a non-zero-depth
// dependency cycle is replaced by a fresh-renamed copy of the callee's
// equations, collapsing the call boundary so the scheduler can later
// order the combined equations by a single zero-depth subgraph.
//
// Grounded on
// original_source/src/frontend/normalizing/inlining/{equation,unitary_node}.rs.
package inline

import (
	"github.com/flowlang/flowc/internal/ast"
	"github.com/flowlang/flowc/internal/depgraph"
	"github.com/flowlang/flowc/internal/diag"
	"github.com/flowlang/flowc/internal/hir"
	"github.com/flowlang/flowc/internal/identgen"
	"github.com/flowlang/flowc/internal/symtab"
	"github.com/flowlang/flowc/internal/unitary"
)

// Graph is one unitary node's local raw graph, seeded from the source
// node's graph and updated in place as calls are inlined.
type Graph map[symtab.ID][]depgraph.Edge

// Inliner runs the pass over every unitary node of one compilation unit.
type Inliner struct {
	table    *symtab.Table
	sink     *diag.Sink
	analyzer *depgraph.Analyzer
	byKey    map[unitKey]*unitary.Node
}

type unitKey struct {
	source symtab.ID
	output symtab.ID
}

// New constructs an Inliner. units must already be fully projected
// (§4.5) and analyzer must already have run Analyze (§4.4).
func New(table *symtab.Table, sink *diag.Sink, analyzer *depgraph.Analyzer, units []*unitary.Node) *Inliner {
	in := &Inliner{table: table, sink: sink, analyzer: analyzer, byKey: map[unitKey]*unitary.Node{}}
	for _, u := range units {
		in.byKey[unitKey{u.SourceID, u.Output}] = u
	}
	return in
}

// Run inlines shifted-cycle calls in the given unitary nodes and returns,
// per unitary node, the raw graph to hand the scheduler.
func (in *Inliner) Run(units []*unitary.Node) map[*unitary.Node]Graph {
	graphs := map[*unitary.Node]Graph{}
	for _, u := range units {
		graphs[u] = in.runUnit(u)
	}
	return graphs
}

func (in *Inliner) runUnit(u *unitary.Node) Graph {
	g := in.seedGraph(u)
	shiftedSignals := in.shiftedSignalSet(u.SourceID)
	if len(shiftedSignals) == 0 {
		return g
	}

	names := make([]string, 0, len(u.Signals))
	for id := range u.Signals {
		names = append(names, symName(in.table, id))
	}
	ids := identgen.New(names)

	// Repeat until no more directly-called, cycle-participating call
	// sites remain: inlining a callee can expose a new hazard if the
	// callee itself called into a shifted cycle.
	for pass := 0; pass < len(u.Equations)+1; pass++ {
		changed := false
		var rewritten []*hir.Equation
		for _, eq := range u.Equations {
			if in.shouldInline(eq, shiftedSignals) {
				sub := in.inlineCall(eq, ids, g)
				rewritten = append(rewritten, sub...)
				changed = true
				continue
			}
			rewritten = append(rewritten, eq)
		}
		u.Equations = rewritten
		if !changed {
			break
		}
	}
	return g
}

// shouldInline reports whether eq's single definition is a direct
// sub-node call and participates in a recorded shifted-causality cycle.
func (in *Inliner) shouldInline(eq *hir.Equation, shifted map[symtab.ID]bool) bool {
	if eq.Expr == nil || eq.Expr.Kind != ast.ExprCall {
		return false
	}
	for _, d := range eq.Defines {
		if shifted[d] {
			return true
		}
	}
	return false
}

func (in *Inliner) shiftedSignalSet(sourceID symtab.ID) map[symtab.ID]bool {
	out := map[symtab.ID]bool{}
	for _, cyc := range in.analyzer.Shifted[sourceID] {
		for _, id := range cyc.Signals {
			out[id] = true
		}
	}
	return out
}

func (in *Inliner) seedGraph(u *unitary.Node) Graph {
	g := Graph{}
	src := in.analyzer.Graphs[u.SourceID]
	if src == nil {
		return g
	}
	for id := range u.Signals {
		g[id] = append(g[id], src.Edges[id]...)
	}
	return g
}

// inlineCall substitutes a call's callee equations into the caller,
// returning the replacement equations (in place of the original call
// equation). Callee inputs are replaced by the call's argument
// expressions; the callee's output equation becomes the new equation
// for the call's own result signal(s); every other callee-local
// identifier is renamed fresh in the caller (§4.6).
func (in *Inliner) inlineCall(eq *hir.Equation, ids *identgen.Creator, g Graph) []*hir.Equation {
	call := eq.Expr
	sym := in.table.Symbol(call.CalleeID)
	if sym == nil {
		return []*hir.Equation{eq}
	}
	data, _ := sym.Data.(*symtab.NodeData)
	if data == nil {
		return []*hir.Equation{eq}
	}
	outID, ok := chosenOutput(in.table, data, call.Output)
	if !ok {
		return []*hir.Equation{eq}
	}
	callee, ok := in.byKey[unitKey{call.CalleeID, outID}]
	if !ok {
		return []*hir.Equation{eq}
	}

	resultID := eq.Defines[0]
	subst := map[symtab.ID]*hir.Expr{}
	for i, inID := range data.Inputs {
		if i < len(call.Children) {
			subst[inID] = call.Children[i]
		}
	}
	rename := map[symtab.ID]symtab.ID{outID: resultID}
	for id := range callee.Signals {
		if id == outID || subst[id] != nil || containsID(data.Inputs, id) {
			continue
		}
		fresh, err := in.table.InsertLocal(ids.Fresh(symName(in.table, id)), symtab.ScopeNodeLocal, true, eq.Loc)
		if err == nil {
			if ty, ok := in.table.GetType(id); ok {
				in.table.SetType(fresh, ty)
			}
			rename[id] = fresh
		}
	}

	// Drop the call site's own stale edge before splicing the callee's
	// equations in: otherwise the callee's output equation (renamed to
	// define resultID below) repopulates g[resultID] with its real
	// dependencies only for this delete to immediately wipe them out,
	// leaving the scheduler thinking resultID has no zero-depth
	// predecessors at all.
	delete(g, resultID)

	var out []*hir.Equation
	for _, ceq := range callee.Equations {
		newEq := &hir.Equation{Loc: eq.Loc}
		for _, d := range ceq.Defines {
			newEq.Defines = append(newEq.Defines, mapID(rename, d))
		}
		newEq.Expr = rewriteExpr(ceq.Expr, subst, rename)
		out = append(out, newEq)
		for _, d := range newEq.Defines {
			g[d] = depgraph.Deps(in.table, in.analyzer.ReducedOf, newEq.Expr)
		}
	}
	return out
}

func containsID(ids []symtab.ID, target symtab.ID) bool {
	for _, id := range ids {
		if id == target {
			return true
		}
	}
	return false
}

func mapID(rename map[symtab.ID]symtab.ID, id symtab.ID) symtab.ID {
	if r, ok := rename[id]; ok {
		return r
	}
	return id
}

// rewriteExpr deep-copies e, splicing subst in place of any identifier
// reference to a substituted (callee-input) id and renaming any
// identifier reference to a renamed callee-local id.
func rewriteExpr(e *hir.Expr, subst map[symtab.ID]*hir.Expr, rename map[symtab.ID]symtab.ID) *hir.Expr {
	if e == nil {
		return nil
	}
	if e.Kind == ast.ExprIdent {
		if repl, ok := subst[e.ID]; ok {
			return repl
		}
		out := *e
		out.ID = mapID(rename, e.ID)
		return &out
	}
	out := *e
	if len(e.Children) > 0 {
		out.Children = make([]*hir.Expr, len(e.Children))
		for i, c := range e.Children {
			out.Children[i] = rewriteExpr(c, subst, rename)
		}
	}
	out.Scrutinee = rewriteExpr(e.Scrutinee, subst, rename)
	out.Body = rewriteExpr(e.Body, subst, rename)
	if len(e.Arms) > 0 {
		out.Arms = make([]hir.MatchArm, len(e.Arms))
		for i, a := range e.Arms {
			out.Arms[i] = hir.MatchArm{
				Pattern: a.Pattern,
				Guard:   rewriteExpr(a.Guard, subst, rename),
				Body:    rewriteExpr(a.Body, subst, rename),
			}
		}
	}
	if e.EventPat != nil {
		out.EventPat = e.EventPat
	}
	return &out
}

func chosenOutput(t *symtab.Table, data *symtab.NodeData, output string) (symtab.ID, bool) {
	if len(data.Outputs) == 1 {
		return data.Outputs[0], true
	}
	for _, id := range data.Outputs {
		if sym := t.Symbol(id); sym != nil && sym.Name == output {
			return id, true
		}
	}
	return 0, false
}

func symName(t *symtab.Table, id symtab.ID) string {
	if sym := t.Symbol(id); sym != nil {
		return sym.Name
	}
	return "?"
}
