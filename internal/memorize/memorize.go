// Package memorize implements §4.9: every remaining `c fby e` and every
// sub-node call is replaced by a read from an explicit memory record,
// turning the unitary node's equation list into the ordered statement
// list plus memory record that internal/ir's final form needs.
// Grounded on
// original_source/src/frontend/normalizing/memorize/{file,node}.rs.
package memorize

import (
	"fmt"
	"sort"

	"github.com/flowlang/flowc/internal/ast"
	"github.com/flowlang/flowc/internal/hir"
	"github.com/flowlang/flowc/internal/ir"
	"github.com/flowlang/flowc/internal/normalize"
	"github.com/flowlang/flowc/internal/symtab"
	"github.com/flowlang/flowc/internal/types"
	"github.com/flowlang/flowc/internal/unitary"
)

// Run turns u's scheduled, normalized equations into a final ir.UnitaryNode:
// every `fby` becomes a BufferSlot read through ExprMemoryRead, every
// sub-node call becomes a CallSlot read through ExprNodeCall, and the
// ordered statement list otherwise mirrors the equation order the
// scheduler already fixed.
func Run(table *symtab.Table, u *unitary.Node, mem normalize.MemIdent) *ir.UnitaryNode {
	mz := &memorizer{table: table, mem: mem}

	out := &ir.UnitaryNode{
		Name:       u.Name(),
		SourceName: u.SourceName,
		Loc:        u.Loc,
	}
	for _, in := range u.Inputs {
		out.Inputs = append(out.Inputs, mz.param(in))
	}
	out.Output = mz.param(u.Output)

	for _, eq := range u.Equations {
		mz.emit(out, eq)
	}

	outName := symName(table, u.Output)
	out.Statements = append(out.Statements, ir.Stmt{
		Kind: ir.StmtLast,
		Expr: &ir.Expr{Kind: ir.ExprIdent, Name: outName},
	})
	out.Memory = mz.memory
	return out
}

type memorizer struct {
	table  *symtab.Table
	mem    normalize.MemIdent
	memory ir.Memory
}

func (mz *memorizer) param(id symtab.ID) ir.Param {
	ty, _ := mz.table.GetType(id)
	return ir.Param{Name: symName(mz.table, id), Type: ty}
}

// emit appends the ir statement(s) for one scheduled equation, and,
// for a `fby` or a sub-node call, grows the memory record.
func (mz *memorizer) emit(out *ir.UnitaryNode, eq *hir.Equation) {
	name := "_"
	if len(eq.Defines) > 0 {
		name = symName(mz.table, eq.Defines[0])
	}

	switch {
	case eq.Expr != nil && eq.Expr.Kind == ast.ExprFby:
		slot := mz.bufferSlot(name, eq)
		out.Statements = append(out.Statements, ir.Stmt{
			Kind: ir.StmtLet,
			Name: name,
			Expr: &ir.Expr{Kind: ir.ExprMemoryRead, Name: slot.Name, Type: slot.Type},
		})
	case eq.Expr != nil && eq.Expr.Kind == ast.ExprCall:
		slot := mz.callSlot(eq)
		args := make([]*ir.Expr, len(eq.Expr.Children))
		for i, c := range eq.Expr.Children {
			args[i] = mz.expr(c)
		}
		out.Statements = append(out.Statements, ir.Stmt{
			Kind: ir.StmtLet,
			Name: name,
			Expr: &ir.Expr{Kind: ir.ExprNodeCall, Slot: slot.Name, Children: args, Type: eq.Expr.Type},
		})
	default:
		out.Statements = append(out.Statements, ir.Stmt{
			Kind: ir.StmtLet,
			Name: name,
			Expr: mz.expr(eq.Expr),
		})
	}
}

// bufferSlot turns `c fby e` into a named buffer, recording its initial
// constant and per-instant feed in the memory record exactly once.
func (mz *memorizer) bufferSlot(signalName string, eq *hir.Equation) ir.BufferSlot {
	name := "mem" + signalName
	var ty *types.Type
	if len(eq.Defines) > 0 {
		ty, _ = mz.table.GetType(eq.Defines[0])
	}
	slot := ir.BufferSlot{
		Name:  name,
		Type:  ty,
		Const: mz.expr(eq.Expr.Children[0]),
		Feed:  mz.expr(eq.Expr.Children[1]),
	}
	mz.memory.Buffers = append(mz.memory.Buffers, slot)
	return slot
}

// callSlot records one sub-node call's memory slot, named by the
// identifier already derived during normalization (§4.8's last step).
func (mz *memorizer) callSlot(eq *hir.Equation) ir.CallSlot {
	name, ok := mz.mem[eq]
	if !ok {
		name = fmt.Sprintf("mem_call_%d", len(mz.memory.Calls))
	}
	callee := calleeName(mz.table, eq.Expr.CalleeID)
	output := chosenOutputName(mz.table, eq.Expr)
	slot := ir.CallSlot{Name: name, Callee: callee, Output: output}
	mz.memory.Calls = append(mz.memory.Calls, slot)
	return slot
}

// expr converts an hir.Expr into its final-IR shape. It never
// encounters a bare fby or sub-node call at the top of an equation's
// RHS here (emit handles those); a call nested inside a larger
// expression cannot occur post-normalization (§4.8 hoists every such
// call into its own equation). A nested fby is left in place by
// normalization and gets its own buffer slot here, named by its
// position in the memory record.
func (mz *memorizer) expr(e *hir.Expr) *ir.Expr {
	if e == nil {
		return nil
	}
	switch e.Kind {
	case ast.ExprConst:
		return &ir.Expr{Kind: ir.ExprLit, Pos: e.Pos, Type: e.Type, Lit: e.Lit}
	case ast.ExprIdent:
		return &ir.Expr{Kind: ir.ExprIdent, Pos: e.Pos, Type: e.Type, Name: symName(mz.table, e.ID)}
	case ast.ExprUnaryOp:
		return &ir.Expr{Kind: ir.ExprUnary, Pos: e.Pos, Type: e.Type, Op: e.Op, Children: mz.exprs(e.Children)}
	case ast.ExprBinaryOp:
		return &ir.Expr{Kind: ir.ExprBinary, Pos: e.Pos, Type: e.Type, Op: e.Op, Children: mz.exprs(e.Children)}
	case ast.ExprIf:
		return &ir.Expr{Kind: ir.ExprIf, Pos: e.Pos, Type: e.Type, Children: mz.exprs(e.Children)}
	case ast.ExprStruct:
		return &ir.Expr{Kind: ir.ExprStructLit, Pos: e.Pos, Type: e.Type, FieldNames: e.FieldNames, Children: mz.exprs(e.Children)}
	case ast.ExprTuple:
		return &ir.Expr{Kind: ir.ExprTupleLit, Pos: e.Pos, Type: e.Type, Children: mz.exprs(e.Children)}
	case ast.ExprArray:
		return &ir.Expr{Kind: ir.ExprArrayLit, Pos: e.Pos, Type: e.Type, Children: mz.exprs(e.Children)}
	case ast.ExprField:
		return &ir.Expr{Kind: ir.ExprField, Pos: e.Pos, Type: e.Type, Name: e.FieldName, Children: mz.exprs(e.Children)}
	case ast.ExprTupleIndex:
		return &ir.Expr{Kind: ir.ExprTupleIndex, Pos: e.Pos, Type: e.Type, Index: e.Index, Children: mz.exprs(e.Children)}
	case ast.ExprMap:
		return &ir.Expr{Kind: ir.ExprMap, Pos: e.Pos, Type: e.Type, Children: mz.exprs(e.Children)}
	case ast.ExprFold:
		return &ir.Expr{Kind: ir.ExprFold, Pos: e.Pos, Type: e.Type, Children: mz.exprs(e.Children)}
	case ast.ExprSort:
		return &ir.Expr{Kind: ir.ExprSort, Pos: e.Pos, Type: e.Type, Children: mz.exprs(e.Children)}
	case ast.ExprZip:
		return &ir.Expr{Kind: ir.ExprZip, Pos: e.Pos, Type: e.Type, Children: mz.exprs(e.Children)}
	case ast.ExprMatch:
		return &ir.Expr{Kind: ir.ExprMatch, Pos: e.Pos, Type: e.Type, Scrutinee: mz.expr(e.Scrutinee), Arms: mz.arms(e.Arms)}
	case ast.ExprWhen:
		return &ir.Expr{
			Kind:      ir.ExprMatch,
			Pos:       e.Pos,
			Type:      e.Type,
			Scrutinee: mz.expr(e.Scrutinee),
			Arms:      []ir.MatchArm{{Pattern: e.EventPat, Body: mz.expr(e.Body)}},
		}
	case ast.ExprEmit:
		return &ir.Expr{Kind: ir.ExprEmit, Pos: e.Pos, Type: e.Type, Children: mz.exprs(e.Children)}
	case ast.ExprFuncApp:
		return &ir.Expr{Kind: ir.ExprFuncCall, Pos: e.Pos, Type: e.Type, Name: e.Op, Children: mz.exprs(e.Children)}
	case ast.ExprLambda:
		params := make([]string, len(e.Params))
		for i, p := range e.Params {
			params[i] = symName(mz.table, p)
		}
		return &ir.Expr{Kind: ir.ExprLambda, Pos: e.Pos, Type: e.Type, Params: params, Body: mz.expr(e.Body)}
	case ast.ExprFby:
		slot := ir.BufferSlot{Name: fmt.Sprintf("mem_fby_%d", len(mz.memory.Buffers)), Type: e.Type}
		slot.Const = mz.expr(e.Children[0])
		slot.Feed = mz.expr(e.Children[1])
		mz.memory.Buffers = append(mz.memory.Buffers, slot)
		return &ir.Expr{Kind: ir.ExprMemoryRead, Pos: e.Pos, Type: e.Type, Name: slot.Name}
	default:
		return &ir.Expr{Kind: ir.ExprIdent, Pos: e.Pos, Type: e.Type, Name: "?"}
	}
}

func (mz *memorizer) exprs(es []*hir.Expr) []*ir.Expr {
	if len(es) == 0 {
		return nil
	}
	out := make([]*ir.Expr, len(es))
	for i, c := range es {
		out[i] = mz.expr(c)
	}
	return out
}

func (mz *memorizer) arms(arms []hir.MatchArm) []ir.MatchArm {
	if len(arms) == 0 {
		return nil
	}
	out := make([]ir.MatchArm, len(arms))
	for i, a := range arms {
		out[i] = ir.MatchArm{Pattern: a.Pattern, Guard: mz.expr(a.Guard), Body: mz.expr(a.Body)}
	}
	return out
}

// Function converts a pure function's body (§3) into its final-IR
// form. Functions carry no memory: every let is a plain local binding.
func Function(table *symtab.Table, fn *hir.Function) ir.Function {
	mz := &memorizer{table: table}
	out := ir.Function{Name: fn.Name, Result: fn.Result, Loc: fn.Loc}
	for _, id := range fn.Inputs {
		out.Params = append(out.Params, mz.param(id))
	}
	for _, let := range fn.Lets {
		mz.destructure(let.Pattern, mz.expr(let.Expr), &out.Statements)
	}
	out.Return = mz.expr(fn.Return)
	return out
}

// destructure lowers a (possibly nested tuple/struct) binding pattern
// against src into a flat sequence of single-identifier let statements.
func (mz *memorizer) destructure(pat *hir.Pattern, src *ir.Expr, out *[]ir.Stmt) {
	if pat == nil || src == nil {
		return
	}
	switch pat.Kind {
	case ast.PatternIdent:
		*out = append(*out, ir.Stmt{Kind: ir.StmtLet, Name: symName(mz.table, pat.ID), Expr: src})
	case ast.PatternTuple:
		for i, elem := range pat.Elems {
			mz.destructure(elem, &ir.Expr{Kind: ir.ExprTupleIndex, Pos: pat.Pos, Index: i, Children: []*ir.Expr{src}}, out)
		}
	case ast.PatternStruct:
		for _, name := range sortedFieldNames(pat.Fields) {
			mz.destructure(pat.Fields[name], &ir.Expr{Kind: ir.ExprField, Pos: pat.Pos, Name: name, Children: []*ir.Expr{src}}, out)
		}
	case ast.PatternEnum:
		mz.destructure(pat.Payload, src, out)
	}
}

func sortedFieldNames(m map[string]*hir.Pattern) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// TypeDef converts an interned struct/enum/array-alias declaration.
func TypeDef(td *hir.TypeDef) ir.TypeDef {
	return ir.TypeDef{Name: td.Name, Kind: td.Kind, Type: td.Type}
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
