// Package hir defines the higher-level IR produced by lifting a parsed
// syntactic tree (internal/ast) against the symbol table: every
// identifier is a symtab.ID, every equation's defined signals are
// explicit, and match-when/contract forms have been desugared (§4.2,
// §9). This is the IR every later pass (typecheck, depgraph, unitary,
// inline, schedule, normalize, memorize) mutates in place.
package hir

import (
	"github.com/flowlang/flowc/internal/ast"
	"github.com/flowlang/flowc/internal/diag"
	"github.com/flowlang/flowc/internal/symtab"
	"github.com/flowlang/flowc/internal/types"
)

// Expr mirrors ast.Expr's flat-node shape, but with names resolved to
// symbol ids and a Type slot filled in by the type checker.
type Expr struct {
	Kind ast.ExprKind
	Pos  diag.Location
	Type *types.Type

	Lit *ast.Literal

	ID symtab.ID // ExprIdent: resolved identifier/local/input/output id

	Op string // unary/binary op or function-application callee name

	Children []*Expr

	StructID   types.ID // ExprStruct
	FieldNames []string

	FieldName string // ExprField
	Index     int    // ExprTupleIndex

	Scrutinee *Expr      // ExprMatch / ExprWhen
	Arms      []MatchArm
	EventPat  *Pattern // ExprWhen

	CalleeID symtab.ID // ExprCall: resolved node id
	Output   string    // ExprCall: chosen output name (empty for single-output)

	Params []symtab.ID // ExprLambda
	Body   *Expr       // ExprLambda
}

// MatchArm is one arm of a (possibly desugared) match expression.
type MatchArm struct {
	Pattern *Pattern
	Guard   *Expr
	Body    *Expr
}

// Pattern mirrors ast.Pattern with names resolved to ids.
type Pattern struct {
	Kind ast.PatternKind
	Pos  diag.Location

	ID symtab.ID // PatternIdent: the id this occurrence binds

	Lit *ast.Literal // PatternConst

	StructID types.ID
	Fields   map[string]*Pattern
	HasRest  bool

	EnumID  types.ID
	Element symtab.ID
	Payload *Pattern

	Elems []*Pattern // PatternTuple
}

// BoundIdents returns every identifier a pattern binds, in a stable
// left-to-right order, so dependency analysis can remove pattern-bound
// names from a match arm's body dependencies (§4.4's Match rule).
func (p *Pattern) BoundIdents() []symtab.ID {
	if p == nil {
		return nil
	}
	var out []symtab.ID
	switch p.Kind {
	case ast.PatternIdent:
		out = append(out, p.ID)
	case ast.PatternStruct:
		for _, name := range sortedKeys(p.Fields) {
			out = append(out, p.Fields[name].BoundIdents()...)
		}
	case ast.PatternEnum:
		out = append(out, p.Payload.BoundIdents()...)
	case ast.PatternTuple:
		for _, e := range p.Elems {
			out = append(out, e.BoundIdents()...)
		}
	}
	return out
}

func sortedKeys(m map[string]*Pattern) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	// Stable, deterministic order; field declaration order would be
	// preferable but patterns don't carry it, so lexical order keeps
	// diagnostics reproducible.
	for i := 1; i < len(keys); i++ {
		for j := i; j > 0 && keys[j-1] > keys[j]; j-- {
			keys[j-1], keys[j] = keys[j], keys[j-1]
		}
	}
	return keys
}

// Equation is one defining equation of a node, after match/match-when
// desugaring has reduced it to a single (pattern, expr) pair (§4.2).
type Equation struct {
	Defines []symtab.ID // signals this equation defines, declaration order
	Pattern *Pattern    // nil for a single-identifier definition
	Expr    *Expr
	Loc     diag.Location
}

// NodeDef is one node/component declaration before unitary projection.
type NodeDef struct {
	ID          symtab.ID
	Name        string
	IsComponent bool
	Inputs      []symtab.ID
	Outputs     []symtab.ID // in declaration order; len==1 after unitary projection
	Equations   []*Equation
	DefinedBy   map[symtab.ID]*Equation // signal -> its defining equation
	Import      *NodeImport             // non-nil when this is an import, not a definition
	Loc         diag.Location
}

// NodeImport is an externally-defined node's reduced signature: callers
// only need its reduced graph to compute their own dependencies.
type NodeImport struct {
	Path string
}

// LetStmt is one `let pat = expr;` inside a function body.
type LetStmt struct {
	Pattern *Pattern
	Expr    *Expr
}

// Function is a pure computation (§3).
type Function struct {
	ID       symtab.ID
	Name     string
	Inputs   []symtab.ID
	Result   *types.Type
	Contract []*ContractTerm
	Lets     []LetStmt
	Return   *Expr
	Loc      diag.Location
}

// ContractTerm mirrors ast.ContractTerm with names resolved.
type ContractTerm struct {
	Kind  ast.ContractTermKind
	Pos   diag.Location
	Left  *ContractTerm
	Right *ContractTerm

	VarID symtab.ID // ContractForall
	Body  *ContractTerm

	EnumID  types.ID // ContractEnumIs
	Element symtab.ID

	Op string

	Lit *ast.Literal
	ID  symtab.ID // ContractIdent / ContractResult

	EventPat  *Pattern
	EventExpr *Expr
	Then      *ContractTerm
}

// TypeDef is an interned struct/enum/array-alias declaration.
type TypeDef struct {
	ID   types.ID
	Kind ast.TypeDefKind
	Name string
	Type *types.Type
}

// File is the whole lifted compilation unit.
type File struct {
	TypeDefs  []*TypeDef
	Functions []*Function
	Nodes     []*NodeDef
}

// NodeByID is a convenience lookup built once per pass that needs it.
func (f *File) NodeByID(id symtab.ID) *NodeDef {
	for _, n := range f.Nodes {
		if n.ID == id {
			return n
		}
	}
	return nil
}
