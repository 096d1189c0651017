package pipeline

import (
	"testing"

	"github.com/flowlang/flowc/internal/ast"
	"github.com/flowlang/flowc/internal/diag"
	"github.com/flowlang/flowc/internal/ir"
)

func intType() ast.TypeRef { return ast.TypeRef{Kind: "int"} }

func intLit(n int64) *ast.Expr {
	return &ast.Expr{Kind: ast.ExprConst, Lit: &ast.Literal{Kind: "int", Int: n}}
}

func ident(name string) *ast.Expr {
	return &ast.Expr{Kind: ast.ExprIdent, Ident: name}
}

// counterFile builds `node counter(i: int) { out o: int = 0 fby (o + i); }`.
func counterFile() *ast.File {
	return &ast.File{
		LanguageVersion: "v1",
		Nodes: []ast.Node{
			{
				Name:   "counter",
				Inputs: []ast.Param{{Name: "i", Type: intType()}},
				Equations: []ast.Equation{
					{
						Kind:  ast.EquationPlain,
						IsOut: true,
						Pattern: ast.Pattern{Kind: ast.PatternIdent, Name: "o"},
						Type:  typeRefPtr(intType()),
						Expr: &ast.Expr{
							Kind: ast.ExprFby,
							Children: []ast.Expr{
								*intLit(0),
								{Kind: ast.ExprBinaryOp, Op: "+", Children: []ast.Expr{*ident("o"), *ident("i")}},
							},
						},
					},
				},
			},
		},
	}
}

func typeRefPtr(t ast.TypeRef) *ast.TypeRef { return &t }

func TestCompileCounterMemorizesSelfReferentialFby(t *testing.T) {
	sess := NewSession()
	out, errs := sess.Compile(counterFile())
	if len(errs) != 0 {
		t.Fatal("unexpected diagnostics:", errs)
	}
	if len(out.Nodes) != 1 {
		t.Fatal("expected one unitary node, got", len(out.Nodes))
	}
	node := out.Nodes[0]
	if len(node.Memory.Buffers) != 1 {
		t.Fatal("expected one buffer slot, got", len(node.Memory.Buffers))
	}
	if node.Memory.Buffers[0].Name != "memo" {
		t.Error("expected buffer slot memo, got", node.Memory.Buffers[0].Name)
	}
	var sawMemoryRead bool
	for _, stmt := range node.Statements {
		if stmt.Name == "o" && stmt.Expr.Kind == ir.ExprMemoryRead && stmt.Expr.Name == "memo" {
			sawMemoryRead = true
		}
	}
	if !sawMemoryRead {
		t.Error("expected o's statement to read memo, got", node.Statements)
	}
}

// causalFile builds `node bad(i: int) { out o: int = o + i; }`, a
// same-instant self-reference with no fby to shift it.
func causalFile() *ast.File {
	return &ast.File{
		LanguageVersion: "v1",
		Nodes: []ast.Node{
			{
				Name:   "bad",
				Inputs: []ast.Param{{Name: "i", Type: intType()}},
				Equations: []ast.Equation{
					{
						Kind:    ast.EquationPlain,
						IsOut:   true,
						Pattern: ast.Pattern{Kind: ast.PatternIdent, Name: "o"},
						Type:    typeRefPtr(intType()),
						Expr:    &ast.Expr{Kind: ast.ExprBinaryOp, Op: "+", Children: []ast.Expr{*ident("o"), *ident("i")}},
					},
				},
			},
		},
	}
}

func TestCompileReportsNotCausalOnZeroDepthCycle(t *testing.T) {
	sess := NewSession()
	_, errs := sess.Compile(causalFile())
	if len(errs) == 0 {
		t.Fatal("expected a NotCausal diagnostic, got none")
	}
	found := false
	for _, e := range errs {
		if e.Kind == diag.NotCausal {
			found = true
		}
	}
	if !found {
		t.Error("expected NotCausal among diagnostics, got", errs)
	}
}

// unusedFile builds `node u(i: int, j: int) { out o: int = i; }`.
func unusedFile() *ast.File {
	return &ast.File{
		LanguageVersion: "v1",
		Nodes: []ast.Node{
			{
				Name: "u",
				Inputs: []ast.Param{
					{Name: "i", Type: intType()},
					{Name: "j", Type: intType()},
				},
				Equations: []ast.Equation{
					{
						Kind:    ast.EquationPlain,
						IsOut:   true,
						Pattern: ast.Pattern{Kind: ast.PatternIdent, Name: "o"},
						Type:    typeRefPtr(intType()),
						Expr:    ident("i"),
					},
				},
			},
		},
	}
}

func TestCompileReportsUnusedSignal(t *testing.T) {
	sess := NewSession()
	_, errs := sess.Compile(unusedFile())
	if len(errs) == 0 {
		t.Fatal("expected an UnusedSignal diagnostic, got none")
	}
	found := false
	for _, e := range errs {
		if e.Kind == diag.UnusedSignal {
			found = true
		}
	}
	if !found {
		t.Error("expected UnusedSignal among diagnostics, got", errs)
	}
}

func TestCompileRejectsUnsupportedLanguageVersion(t *testing.T) {
	sess := NewSession()
	f := counterFile()
	f.LanguageVersion = "v2"
	_, errs := sess.Compile(f)
	if len(errs) != 1 || errs[0].Kind != diag.UnsupportedVersion {
		t.Fatal("expected a single UnsupportedVersion diagnostic, got", errs)
	}
}
