package normalize

import (
	"testing"

	"github.com/flowlang/flowc/internal/ast"
	"github.com/flowlang/flowc/internal/depgraph"
	"github.com/flowlang/flowc/internal/diag"
	"github.com/flowlang/flowc/internal/hir"
	"github.com/flowlang/flowc/internal/inline"
	"github.com/flowlang/flowc/internal/schedule"
	"github.com/flowlang/flowc/internal/symtab"
	"github.com/flowlang/flowc/internal/typecheck"
	"github.com/flowlang/flowc/internal/unitary"
)

func intType() ast.TypeRef { return ast.TypeRef{Kind: "int"} }
func intTypeRef() *ast.TypeRef { t := intType(); return &t }

func intLit(n int64) *ast.Expr {
	return &ast.Expr{Kind: ast.ExprConst, Lit: &ast.Literal{Kind: "int", Int: n}}
}

func ident(name string) *ast.Expr {
	return &ast.Expr{Kind: ast.ExprIdent, Ident: name}
}

// nestedCallFile builds `node N(a, b) { out o: int = a + b; }` and
// `node m(v, s) { out x: int = 1 + N(v * 2, s).o; }` — a call buried
// inside a larger expression, with a non-identifier argument of its
// own, the shape §4.8 hoists into its own preceding equations.
func nestedCallFile() *ast.File {
	return &ast.File{
		LanguageVersion: "v1",
		Nodes: []ast.Node{
			{
				Name: "N",
				Inputs: []ast.Param{
					{Name: "a", Type: intType()},
					{Name: "b", Type: intType()},
				},
				Equations: []ast.Equation{
					{
						Kind:    ast.EquationPlain,
						IsOut:   true,
						Pattern: ast.Pattern{Kind: ast.PatternIdent, Name: "o"},
						Type:    intTypeRef(),
						Expr:    &ast.Expr{Kind: ast.ExprBinaryOp, Op: "+", Children: []ast.Expr{*ident("a"), *ident("b")}},
					},
				},
			},
			{
				Name: "m",
				Inputs: []ast.Param{
					{Name: "v", Type: intType()},
					{Name: "s", Type: intType()},
				},
				Equations: []ast.Equation{
					{
						Kind:    ast.EquationPlain,
						IsOut:   true,
						Pattern: ast.Pattern{Kind: ast.PatternIdent, Name: "x"},
						Type:    intTypeRef(),
						Expr: &ast.Expr{
							Kind: ast.ExprBinaryOp,
							Op:   "+",
							Children: []ast.Expr{
								*intLit(1),
								{
									Kind:   ast.ExprCall,
									Callee: "N",
									Output: "o",
									Children: []ast.Expr{
										{Kind: ast.ExprBinaryOp, Op: "*", Children: []ast.Expr{*ident("v"), *intLit(2)}},
										*ident("s"),
									},
								},
							},
						},
					},
				},
			},
		},
	}
}

func findUnit(units []*unitary.Node, name string) *unitary.Node {
	for _, u := range units {
		if u.Name() == name {
			return u
		}
	}
	return nil
}

func TestRunHoistsNestedCallAndItsArgument(t *testing.T) {
	sink := diag.NewSink()
	table := symtab.NewTable(sink)
	file := hir.NewBuilder(table, sink).Build(nestedCallFile())
	if sink.HasErrors() {
		t.Fatal("unexpected diagnostics after HIR build:", sink.Errors())
	}
	typecheck.New(table, sink).Check(file)
	if sink.HasErrors() {
		t.Fatal("unexpected diagnostics after typecheck:", sink.Errors())
	}
	analyzer := depgraph.New(table, sink)
	analyzer.Analyze(file)
	if sink.HasErrors() {
		t.Fatal("unexpected diagnostics after dependency analysis:", sink.Errors())
	}
	units := unitary.New(table, sink, analyzer).Build(file)
	if sink.HasErrors() {
		t.Fatal("unexpected diagnostics after unitary projection:", sink.Errors())
	}

	mx := findUnit(units, "m.x")
	if mx == nil {
		t.Fatalf("expected an m.x unitary node, got %v", units)
	}

	graphs := inline.New(table, sink, analyzer, units).Run(units)
	schedule.Order(sink, mx, graphs[mx])
	if sink.HasErrors() {
		t.Fatal("unexpected diagnostics after scheduling:", sink.Errors())
	}

	mem := Run(table, mx)

	if len(mx.Equations) != 3 {
		t.Fatalf("expected normalization to produce 3 equations, got %d: %v", len(mx.Equations), mx.Equations)
	}

	argEq, callEq, topEq := mx.Equations[0], mx.Equations[1], mx.Equations[2]

	if argEq.Expr.Kind != ast.ExprBinaryOp || argEq.Expr.Op != "*" {
		t.Errorf("expected the first hoisted equation to be the call's `v * 2` argument, got kind=%v op=%q", argEq.Expr.Kind, argEq.Expr.Op)
	}
	if callEq.Expr.Kind != ast.ExprCall {
		t.Fatalf("expected the second equation to be the hoisted call itself, got kind=%v", callEq.Expr.Kind)
	}
	if len(callEq.Expr.Children) != 2 || callEq.Expr.Children[0].Kind != ast.ExprIdent || callEq.Expr.Children[0].ID != argEq.Defines[0] {
		t.Errorf("expected the call's first argument to reference the hoisted argument equation, got %v", callEq.Expr.Children)
	}
	// The call's second argument (s) was already a plain identifier and
	// must pass through unchanged rather than being needlessly hoisted.
	if callEq.Expr.Children[1].Kind != ast.ExprIdent {
		t.Errorf("expected the call's second argument to remain a bare identifier, got kind=%v", callEq.Expr.Children[1].Kind)
	}

	if topEq.Expr.Kind != ast.ExprBinaryOp || topEq.Expr.Op != "+" {
		t.Fatalf("expected the final equation to keep its original `1 + ...` shape, got kind=%v op=%q", topEq.Expr.Kind, topEq.Expr.Op)
	}
	if len(topEq.Expr.Children) != 2 || topEq.Expr.Children[1].Kind != ast.ExprIdent || topEq.Expr.Children[1].ID != callEq.Defines[0] {
		t.Errorf("expected x's equation to reference the hoisted call's result, got %v", topEq.Expr.Children)
	}
	if topEq.Defines[0] != mx.Output {
		t.Errorf("expected the final equation to still define m's output, got %v want %v", topEq.Defines[0], mx.Output)
	}

	if got := mem[callEq]; got == "" {
		t.Errorf("expected a memory identifier for the hoisted call equation, got none (mem=%v)", mem)
	}
}
