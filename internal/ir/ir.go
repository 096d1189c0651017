// Package ir models the final imperative output boundary of §6: typed
// functions, and per unitary node a scheduled statement list, a memory
// record, and the slot types a per-call state struct needs. This is
// the hand-off to codegen — out of scope for execution, same as the
// teacher's own interpreted tree is the hand-off to its evaluator, but
// fully modeled here as data.
package ir

import (
	"github.com/flowlang/flowc/internal/ast"
	"github.com/flowlang/flowc/internal/diag"
	"github.com/flowlang/flowc/internal/hir"
	"github.com/flowlang/flowc/internal/types"
)

// ExprKind tags the final IR's expression grammar (§6): literal,
// identifier, unary/binary, if-then-else, memory-access, input-access,
// struct/enum/array/tuple literal, block, function-call, node-call
// (`self.slot.step(...)`), field-access, lambda, match, map, fold,
// sort, zip.
type ExprKind int

const (
	ExprLit ExprKind = iota
	ExprIdent
	ExprUnary
	ExprBinary
	ExprIf
	ExprMemoryRead
	ExprInputRead
	ExprStructLit
	ExprEnumLit
	ExprArrayLit
	ExprTupleLit
	ExprBlock
	ExprFuncCall
	ExprNodeCall
	ExprField
	ExprTupleIndex
	ExprLambda
	ExprMatch
	ExprMap
	ExprFold
	ExprSort
	ExprZip
	ExprEmit
)

// Expr is the final IR's single flat expression node, mirroring the
// shape of hir.Expr and ast.Expr before it.
type Expr struct {
	Kind ExprKind
	Pos  diag.Location
	Type *types.Type

	Lit  *ast.Literal
	Name string // identifier / memory slot / input / field name
	Op   string

	Children []*Expr

	FieldNames []string
	Index      int

	Scrutinee *Expr
	Arms      []MatchArm

	// ExprNodeCall: the memory slot this call reads through.
	Slot string

	Params []string
	Body   *Expr
}

// MatchArm is one arm of a final-IR match expression.
type MatchArm struct {
	Pattern *hir.Pattern
	Guard   *Expr
	Body    *Expr
}

// StmtKind tags a unitary node's statement shape.
type StmtKind int

const (
	StmtLet StmtKind = iota
	StmtLast // the node's final output expression
)

// Stmt is one entry of a unitary node's ordered statement list.
type Stmt struct {
	Kind StmtKind
	Name string // StmtLet: the bound local's name
	Expr *Expr
}

// BufferSlot is a `c fby e` turned into explicit memory (§4.9): holds
// the initial constant and the feed expression computed each instant.
type BufferSlot struct {
	Name  string
	Type  *types.Type
	Const *Expr
	Feed  *Expr
}

// CallSlot is a sub-node call site turned into explicit per-call state:
// the callee's qualified name and the chosen output it steps.
type CallSlot struct {
	Name   string
	Callee string
	Output string
}

// Memory is a unitary node's whole memory record.
type Memory struct {
	Buffers []BufferSlot
	Calls   []CallSlot
}

// Param is one named, typed input.
type Param struct {
	Name string
	Type *types.Type
}

// UnitaryNode is the scheduled, normalized, memorized form of one
// (node, output) projection, ready for codegen.
type UnitaryNode struct {
	Name       string
	SourceName string
	Inputs     []Param
	Output     Param
	Statements []Stmt
	Memory     Memory
	Loc        diag.Location
}

// Function is a pure computation's final form.
type Function struct {
	Name       string
	Params     []Param
	Result     *types.Type
	Statements []Stmt
	Return     *Expr
	Loc        diag.Location
}

// TypeDef is an interned struct/enum/array-alias declaration.
type TypeDef struct {
	Name string
	Kind ast.TypeDefKind
	Type *types.Type
}

// File is the whole compiled unit, the hand-off boundary to codegen.
type File struct {
	TypeDefs  []TypeDef
	Functions []Function
	Nodes     []UnitaryNode
}
