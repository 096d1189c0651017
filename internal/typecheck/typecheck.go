// Package typecheck implements the bottom-up, pointwise-lifting type
// checker of §4.3: every HIR expression is assigned a types.Type, arity
// and structural compatibility are verified, and stream-lifting decides
// signal vs. event for the result of pointwise operators.
package typecheck

import (
	"fmt"

	"github.com/flowlang/flowc/internal/ast"
	"github.com/flowlang/flowc/internal/diag"
	"github.com/flowlang/flowc/internal/hir"
	"github.com/flowlang/flowc/internal/symtab"
	"github.com/flowlang/flowc/internal/types"
)

// Checker types one HIR file against the shared symbol table.
type Checker struct {
	table *symtab.Table
	sink  *diag.Sink
}

// New constructs a Checker.
func New(table *symtab.Table, sink *diag.Sink) *Checker {
	return &Checker{table: table, sink: sink}
}

// Check types every function and every node equation of f. A single
// equation's type failure does not abort the whole pass (§4.3): its
// type remains nil and dependent checks short-circuit silently,
// matching the spec's "terminates only the erroneous sub-tree".
func (c *Checker) Check(f *hir.File) {
	for _, fn := range f.Functions {
		c.checkFunction(fn)
	}
	for _, n := range f.Nodes {
		if n.Import != nil {
			continue
		}
		c.checkNode(n)
	}
}

func (c *Checker) checkFunction(fn *hir.Function) {
	for _, let := range fn.Lets {
		ty := c.typeExpr(let.Expr)
		if let.Pattern != nil {
			c.bindPatternType(let.Pattern, ty)
		}
	}
	retTy := c.typeExpr(fn.Return)
	if retTy != nil && fn.Result != nil && !types.Equal(retTy, fn.Result) {
		c.sink.Add(diag.IncompatibleTypes, fn.Loc, fmt.Sprintf("function %s: expected %s, got %s", fn.Name, fn.Result, retTy))
	}
}

func (c *Checker) checkNode(n *hir.NodeDef) {
	// Input types were stamped during HIR construction (signal<T>); nothing
	// further to check here.
	for _, eq := range n.Equations {
		ty := c.typeExpr(eq.Expr)
		if ty == nil {
			continue
		}
		if eq.Pattern != nil {
			c.bindPatternType(eq.Pattern, ty)
			continue
		}
		for _, s := range eq.Defines {
			c.setOrCheck(s, ty, eq.Loc)
		}
	}
}

// setOrCheck assigns ty to id's symbol type if unset, otherwise checks
// the two are compatible (a signal may be defined by more than one match
// arm with the same type, but never by incompatible types).
func (c *Checker) setOrCheck(id symtab.ID, ty *types.Type, loc diag.Location) {
	if existing, ok := c.table.GetType(id); ok {
		if !types.Equal(existing, ty) {
			c.sink.Add(diag.IncompatibleTypes, loc, "signal redefined with a different type", symName(c.table, id))
		}
		return
	}
	c.table.SetType(id, ty)
}

func (c *Checker) bindPatternType(p *hir.Pattern, ty *types.Type) {
	if p == nil || ty == nil {
		return
	}
	switch p.Kind {
	case ast.PatternIdent:
		c.setOrCheck(p.ID, ty, p.Pos)
	case ast.PatternTuple:
		if ty.Kind != types.Tuple || len(ty.Elems) != len(p.Elems) {
			c.sink.Add(diag.IncompatibleTypes, p.Pos, "tuple pattern arity mismatch")
			return
		}
		for i := range p.Elems {
			c.bindPatternType(p.Elems[i], &ty.Elems[i])
		}
	}
}

func symName(t *symtab.Table, id symtab.ID) string {
	if sym := t.Symbol(id); sym != nil {
		return sym.Name
	}
	return "?"
}

// typeExpr is the bottom-up driver: it types every sub-expression first,
// then derives the outer expression's type per the table in §4.3.
func (c *Checker) typeExpr(e *hir.Expr) *types.Type {
	if e == nil {
		return nil
	}
	var ty *types.Type
	switch e.Kind {
	case ast.ExprConst:
		ty = c.typeLiteral(e)
	case ast.ExprIdent:
		if t, ok := c.table.GetType(e.ID); ok {
			ty = t
		} else {
			c.sink.Add(diag.UntypedReference, e.Pos, "reference to an untyped identifier", symName(c.table, e.ID))
		}
	case ast.ExprUnaryOp:
		ty = c.typeOpApplication(e, 1)
	case ast.ExprBinaryOp:
		ty = c.typeOpApplication(e, 2)
	case ast.ExprIf:
		ty = c.typeIf(e)
	case ast.ExprFby:
		ty = c.typeFby(e)
	case ast.ExprStruct:
		ty = c.typeStruct(e)
	case ast.ExprTuple:
		ty = c.typeTuple(e)
	case ast.ExprArray:
		ty = c.typeArray(e)
	case ast.ExprField:
		ty = c.typeField(e)
	case ast.ExprTupleIndex:
		ty = c.typeTupleIndex(e)
	case ast.ExprMap:
		ty = c.typeMap(e)
	case ast.ExprFold:
		ty = c.typeFold(e)
	case ast.ExprSort:
		ty = c.typeSort(e)
	case ast.ExprZip:
		ty = c.typeZip(e)
	case ast.ExprMatch:
		ty = c.typeMatch(e)
	case ast.ExprWhen:
		ty = c.typeWhen(e)
	case ast.ExprEmit:
		ty = c.typeEmit(e)
	case ast.ExprCall:
		ty = c.typeCall(e)
	case ast.ExprFuncApp:
		ty = c.typeFuncApp(e)
	case ast.ExprLambda:
		ty = c.typeLambda(e)
	}
	e.Type = ty
	return ty
}

func (c *Checker) typeLiteral(e *hir.Expr) *types.Type {
	if e.Lit == nil {
		return types.Unsized(types.Unit)
	}
	switch e.Lit.Kind {
	case "bool":
		return types.Unsized(types.Bool)
	case "int":
		return types.Unsized(types.Int)
	case "float":
		return types.Unsized(types.Float)
	default:
		return types.Unsized(types.Unit)
	}
}

// typeOpApplication types a unary/binary operator application by
// looking up the operator's abstract type and applying it to the
// argument types, lifting the result to signal or event per
// types.LiftResult when any argument is a stream.
func (c *Checker) typeOpApplication(e *hir.Expr, arity int) *types.Type {
	argTys := make([]*types.Type, len(e.Children))
	for i, ch := range e.Children {
		argTys[i] = c.typeExpr(ch)
	}
	if len(argTys) != arity {
		c.sink.Add(diag.ArityMismatch, e.Pos, fmt.Sprintf("operator %s expects %d operand(s), got %d", e.Op, arity, len(argTys)))
		return nil
	}
	opID, err := c.table.GetFunctionID(e.Op, e.Pos)
	if err != nil {
		return nil
	}
	opTy, ok := c.table.GetType(opID)
	if !ok || opTy.Kind != types.Abstract {
		return nil
	}
	baseArgs := make([]*types.Type, len(argTys))
	for i, a := range argTys {
		base, _ := a.Base()
		baseArgs[i] = base
		if base == nil || !types.Equal(base, &opTy.Params[i]) {
			if opTy.Params[i].Kind != types.Any && base != nil {
				c.sink.Add(diag.IncompatibleTypes, e.Pos, fmt.Sprintf("operator %s: argument %d", e.Op, i), base.String(), opTy.Params[i].String())
			}
		}
	}
	anyStream := false
	for _, a := range argTys {
		anyStream = anyStream || a.IsStream()
	}
	if !anyStream {
		return opTy.Result
	}
	resultBase := opTy.Result
	if types.LiftResult(argTys) == types.Signal {
		return types.NewSignal(resultBase)
	}
	return types.NewEvent(resultBase)
}

func (c *Checker) typeIf(e *hir.Expr) *types.Type {
	if len(e.Children) != 3 {
		c.sink.Add(diag.ArityMismatch, e.Pos, "if-then-else requires 3 operands")
		return nil
	}
	cond := c.typeExpr(e.Children[0])
	then := c.typeExpr(e.Children[1])
	els := c.typeExpr(e.Children[2])
	if cond == nil || then == nil || els == nil {
		return nil
	}
	condBase, _ := cond.Base()
	if condBase != nil && condBase.Kind != types.Bool {
		c.sink.Add(diag.IncompatibleTypes, e.Pos, "if condition must be bool")
	}
	thenBase, _ := then.Base()
	elsBase, _ := els.Base()
	if !types.Equal(thenBase, elsBase) {
		c.sink.Add(diag.IncompatibleTypes, e.Pos, "if branches must have equal types", thenBase.String(), elsBase.String())
		return nil
	}
	if types.LiftResult([]*types.Type{cond, then, els}) == types.Signal {
		return types.NewSignal(thenBase)
	}
	return types.NewEvent(thenBase)
}

// typeFby types `c fby e`: c must be a constant of the same type as e;
// result type is e's type (§4.3).
func (c *Checker) typeFby(e *hir.Expr) *types.Type {
	if len(e.Children) != 2 {
		c.sink.Add(diag.ArityMismatch, e.Pos, "fby requires 2 operands")
		return nil
	}
	constTy := c.typeExpr(e.Children[0])
	exprTy := c.typeExpr(e.Children[1])
	if constTy == nil || exprTy == nil {
		return nil
	}
	// c is a plain pointwise constant, never itself a stream; compare it
	// against e's carried type rather than e's stream wrapper (the same
	// Base()-stripping typeIf uses to compare its then/else branches).
	constBase, _ := constTy.Base()
	exprBase, _ := exprTy.Base()
	if !types.Equal(constBase, exprBase) {
		c.sink.Add(diag.IncompatibleTypes, e.Pos, "fby initial value must match the delayed expression's type", constBase.String(), exprBase.String())
	}
	return exprTy
}

func (c *Checker) typeStruct(e *hir.Expr) *types.Type {
	for _, ch := range e.Children {
		c.typeExpr(ch)
	}
	// Each field expression is typed, but not checked against the
	// struct's declared fields: neither a missing nor an unknown field
	// nor a field of the wrong type is reported here.
	return types.NewStruct(e.StructID, "")
}

func (c *Checker) typeTuple(e *hir.Expr) *types.Type {
	elems := make([]types.Type, len(e.Children))
	for i, ch := range e.Children {
		ty := c.typeExpr(ch)
		if ty != nil {
			elems[i] = *ty
		}
	}
	return types.NewTuple(elems)
}

func (c *Checker) typeArray(e *hir.Expr) *types.Type {
	if len(e.Children) == 0 {
		c.sink.Add(diag.ExpectInput, e.Pos, "array literal requires at least one element")
		return nil
	}
	first := c.typeExpr(e.Children[0])
	for _, ch := range e.Children[1:] {
		ty := c.typeExpr(ch)
		if !types.Equal(ty, first) {
			c.sink.Add(diag.IncompatibleTypes, e.Pos, "array elements must share a type")
		}
	}
	return types.NewArray(first, len(e.Children))
}

func (c *Checker) typeField(e *hir.Expr) *types.Type {
	if len(e.Children) != 1 {
		return nil
	}
	base := c.typeExpr(e.Children[0])
	if base == nil || base.Kind != types.Struct {
		c.sink.Add(diag.ExpectArray, e.Pos, "field access on a non-struct type")
		return nil
	}
	structID, err := c.table.GetStructID(base.Name, e.Pos)
	if err != nil {
		return nil
	}
	fieldID, err := c.table.GetFieldID(structID, e.FieldName, e.Pos)
	if err != nil {
		return nil
	}
	ty, _ := c.table.GetType(fieldID)
	return ty
}

func (c *Checker) typeTupleIndex(e *hir.Expr) *types.Type {
	if len(e.Children) != 1 {
		return nil
	}
	base := c.typeExpr(e.Children[0])
	if base == nil || base.Kind != types.Tuple || e.Index >= len(base.Elems) {
		c.sink.Add(diag.ExpectArray, e.Pos, "tuple index out of range or non-tuple expression")
		return nil
	}
	return &base.Elems[e.Index]
}

func (c *Checker) typeMap(e *hir.Expr) *types.Type {
	if len(e.Children) != 2 {
		return nil
	}
	arrTy := c.typeExpr(e.Children[0])
	fnTy := c.typeExpr(e.Children[1])
	if arrTy == nil || arrTy.Kind != types.Array || fnTy == nil || fnTy.Kind != types.Abstract {
		c.sink.Add(diag.ExpectArray, e.Pos, "map requires an array and a unary function")
		return nil
	}
	return types.NewArray(fnTy.Result, arrTy.Len)
}

func (c *Checker) typeFold(e *hir.Expr) *types.Type {
	if len(e.Children) != 3 {
		return nil
	}
	arrTy := c.typeExpr(e.Children[0])
	initTy := c.typeExpr(e.Children[1])
	fnTy := c.typeExpr(e.Children[2])
	if arrTy == nil || arrTy.Kind != types.Array || fnTy == nil || fnTy.Kind != types.Abstract {
		c.sink.Add(diag.ExpectArray, e.Pos, "fold requires an array, an initial value and a binary function")
		return nil
	}
	return initTy
}

func (c *Checker) typeSort(e *hir.Expr) *types.Type {
	if len(e.Children) != 2 {
		return nil
	}
	arrTy := c.typeExpr(e.Children[0])
	c.typeExpr(e.Children[1])
	if arrTy == nil || arrTy.Kind != types.Array {
		c.sink.Add(diag.ExpectArray, e.Pos, "sort requires an array and a comparator function")
		return nil
	}
	return arrTy
}

func (c *Checker) typeZip(e *hir.Expr) *types.Type {
	if len(e.Children) == 0 {
		c.sink.Add(diag.ExpectInput, e.Pos, "zip requires at least one array")
		return nil
	}
	var n int = -1
	elemTypes := make([]types.Type, 0, len(e.Children))
	for _, ch := range e.Children {
		ty := c.typeExpr(ch)
		if ty == nil || ty.Kind != types.Array {
			c.sink.Add(diag.ExpectArray, e.Pos, "zip arguments must be arrays")
			return nil
		}
		if n == -1 {
			n = ty.Len
		} else if ty.Len != n {
			c.sink.Add(diag.IncompatibleLength, e.Pos, "zip arrays must share a length")
		}
		elemTypes = append(elemTypes, *ty.Elem)
	}
	if len(elemTypes) == 1 {
		return types.NewArray(&elemTypes[0], n)
	}
	return types.NewArray(types.NewTuple(elemTypes), n)
}

func (c *Checker) typeMatch(e *hir.Expr) *types.Type {
	scrutTy := c.typeExpr(e.Scrutinee)
	_ = scrutTy
	var resultTy *types.Type
	for i := range e.Arms {
		arm := &e.Arms[i]
		c.bindArmPatternType(arm.Pattern, scrutTy)
		if arm.Guard != nil {
			c.typeExpr(arm.Guard)
		}
		bodyTy := c.typeExpr(arm.Body)
		if bodyTy == nil {
			continue
		}
		if resultTy == nil {
			resultTy = bodyTy
		} else if !types.Equal(resultTy, bodyTy) {
			c.sink.Add(diag.IncompatibleMatchStatements, e.Pos, "match arms disagree in type", resultTy.String(), bodyTy.String())
		}
	}
	if len(e.Arms) == 0 {
		c.sink.Add(diag.MissingMatchStatement, e.Pos, "match has no arms")
	}
	return resultTy
}

// bindArmPatternType binds the types of identifiers a match arm's
// pattern introduces, best-effort against the scrutinee's type (a
// tuple scrutinee's structure maps positionally to a tuple pattern).
func (c *Checker) bindArmPatternType(p *hir.Pattern, scrutTy *types.Type) {
	if p == nil {
		return
	}
	switch p.Kind {
	case ast.PatternIdent:
		if scrutTy != nil {
			c.setOrCheck(p.ID, scrutTy, p.Pos)
		}
	case ast.PatternTuple:
		if scrutTy != nil && scrutTy.Kind == types.Tuple && len(scrutTy.Elems) == len(p.Elems) {
			for i := range p.Elems {
				c.bindArmPatternType(p.Elems[i], &scrutTy.Elems[i])
			}
			return
		}
		for i := range p.Elems {
			c.bindArmPatternType(p.Elems[i], nil)
		}
	case ast.PatternEnum:
		c.bindArmPatternType(p.Payload, nil)
	}
}

// typeWhen types a `when` expression: the event pattern binds into
// scope before the body is typed (§4.3).
func (c *Checker) typeWhen(e *hir.Expr) *types.Type {
	scrutTy := c.typeExpr(e.Scrutinee)
	if scrutTy != nil {
		base, isStream := scrutTy.Base()
		if isStream {
			c.bindArmPatternType(e.EventPat, base)
		}
	}
	return c.typeExpr(e.Body)
}

// typeEmit types `emit x`: x: T yields event<T>.
func (c *Checker) typeEmit(e *hir.Expr) *types.Type {
	if len(e.Children) != 1 {
		return nil
	}
	ty := c.typeExpr(e.Children[0])
	if ty == nil {
		return nil
	}
	base, _ := ty.Base()
	return types.NewEvent(base)
}

// typeCall types a sub-node call: argument count and types must match
// the callee's declared input signature; the result is the chosen
// output's type.
func (c *Checker) typeCall(e *hir.Expr) *types.Type {
	argTys := make([]*types.Type, len(e.Children))
	for i, ch := range e.Children {
		argTys[i] = c.typeExpr(ch)
	}
	sym := c.table.Symbol(e.CalleeID)
	if sym == nil {
		return nil
	}
	data, _ := sym.Data.(*symtab.NodeData)
	if data == nil {
		return nil
	}
	if len(data.Inputs) != len(argTys) {
		c.sink.Add(diag.ArityMismatch, e.Pos, fmt.Sprintf("node %s expects %d input(s), got %d", sym.Name, len(data.Inputs), len(argTys)))
		return nil
	}
	for i, inID := range data.Inputs {
		inTy, _ := c.table.GetType(inID)
		if inTy != nil && argTys[i] != nil && !types.Equal(inTy, argTys[i]) {
			c.sink.Add(diag.IncompatibleTypes, e.Pos, fmt.Sprintf("node %s: input %d", sym.Name, i), inTy.String(), argTys[i].String())
		}
	}
	for _, outID := range data.Outputs {
		if outSym := c.table.Symbol(outID); outSym != nil && (e.Output == "" || outSym.Name == e.Output) {
			ty, _ := c.table.GetType(outID)
			return ty
		}
	}
	return nil
}

// typeFuncApp types a function application: the function symbol's
// abstract type is applied to argument types exactly as §4.3 describes.
func (c *Checker) typeFuncApp(e *hir.Expr) *types.Type {
	argTys := make([]*types.Type, len(e.Children))
	for i, ch := range e.Children {
		argTys[i] = c.typeExpr(ch)
	}
	fnTy, ok := c.table.GetType(e.CalleeID)
	if !ok || fnTy.Kind != types.Abstract {
		return nil
	}
	if len(fnTy.Params) != len(argTys) {
		c.sink.Add(diag.ArityMismatch, e.Pos, fmt.Sprintf("function %s expects %d argument(s), got %d", e.Op, len(fnTy.Params), len(argTys)))
		return nil
	}
	for i := range fnTy.Params {
		if argTys[i] != nil && !types.Equal(&fnTy.Params[i], argTys[i]) {
			c.sink.Add(diag.IncompatibleTypes, e.Pos, fmt.Sprintf("function %s: argument %d", e.Op, i), fnTy.Params[i].String(), argTys[i].String())
		}
	}
	return fnTy.Result
}

// typeLambda specializes an abstraction literal by injecting parameter
// types already declared at the lambda's binding site, then types its
// body.
func (c *Checker) typeLambda(e *hir.Expr) *types.Type {
	params := make([]types.Type, len(e.Params))
	for i, p := range e.Params {
		if ty, ok := c.table.GetType(p); ok {
			params[i] = *ty
		}
	}
	bodyTy := c.typeExpr(e.Body)
	return types.NewAbstract(params, bodyTy)
}
