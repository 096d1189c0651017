package unitary

import (
	"testing"

	"github.com/flowlang/flowc/internal/ast"
	"github.com/flowlang/flowc/internal/depgraph"
	"github.com/flowlang/flowc/internal/diag"
	"github.com/flowlang/flowc/internal/hir"
	"github.com/flowlang/flowc/internal/symtab"
	"github.com/flowlang/flowc/internal/typecheck"
)

func intType() ast.TypeRef { return ast.TypeRef{Kind: "int"} }
func intTypeRef() *ast.TypeRef { t := intType(); return &t }

func ident(name string) *ast.Expr {
	return &ast.Expr{Kind: ast.ExprIdent, Ident: name}
}

// multiOutputFile builds `node f(x, y) { out a: int = x; out b: int = y; }`
// and a caller `node g(p) { out c: int = f(p, p).a; }`, a reduced-graph
// shaped exactly like §4.5's multi-output projection example: each output
// reaches a disjoint half of f's inputs, and g's own call only ever picks
// f's `a` output.
func multiOutputFile() *ast.File {
	return &ast.File{
		LanguageVersion: "v1",
		Nodes: []ast.Node{
			{
				Name: "f",
				Inputs: []ast.Param{
					{Name: "x", Type: intType()},
					{Name: "y", Type: intType()},
				},
				Equations: []ast.Equation{
					{
						Kind:    ast.EquationPlain,
						IsOut:   true,
						Pattern: ast.Pattern{Kind: ast.PatternIdent, Name: "a"},
						Type:    intTypeRef(),
						Expr:    ident("x"),
					},
					{
						Kind:    ast.EquationPlain,
						IsOut:   true,
						Pattern: ast.Pattern{Kind: ast.PatternIdent, Name: "b"},
						Type:    intTypeRef(),
						Expr:    ident("y"),
					},
				},
			},
			{
				Name:   "g",
				Inputs: []ast.Param{{Name: "p", Type: intType()}},
				Equations: []ast.Equation{
					{
						Kind:    ast.EquationPlain,
						IsOut:   true,
						Pattern: ast.Pattern{Kind: ast.PatternIdent, Name: "c"},
						Type:    intTypeRef(),
						Expr: &ast.Expr{
							Kind:     ast.ExprCall,
							Callee:   "f",
							Output:   "a",
							Children: []ast.Expr{*ident("p"), *ident("p")},
						},
					},
				},
			},
		},
	}
}

func TestBuildProjectsOneNodePerOutput(t *testing.T) {
	sink := diag.NewSink()
	table := symtab.NewTable(sink)
	file := hir.NewBuilder(table, sink).Build(multiOutputFile())
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

	units := New(table, sink, analyzer).Build(file)
	if sink.HasErrors() {
		t.Fatal("unexpected diagnostics after unitary projection:", sink.Errors())
	}

	byName := map[string]*Node{}
	for _, u := range units {
		byName[u.Name()] = u
	}
	fa, fb := byName["f.a"], byName["f.b"]
	if fa == nil || fb == nil {
		t.Fatalf("expected f.a and f.b units, got %v", keys(byName))
	}

	if len(fa.Inputs) != 1 || table.Symbol(fa.Inputs[0]).Name != "x" {
		t.Errorf("expected f.a to be restricted to input x, got %v", symNamesFor(table, fa.Inputs))
	}
	if len(fb.Inputs) != 1 || table.Symbol(fb.Inputs[0]).Name != "y" {
		t.Errorf("expected f.b to be restricted to input y, got %v", symNamesFor(table, fb.Inputs))
	}
	if len(fa.Equations) != 1 || len(fb.Equations) != 1 {
		t.Errorf("expected each unit to keep exactly its own equation, got %d and %d", len(fa.Equations), len(fb.Equations))
	}

	gc := byName["g.c"]
	if gc == nil {
		t.Fatalf("expected a g.c unit, got %v", keys(byName))
	}
	if len(gc.Inputs) != 1 || table.Symbol(gc.Inputs[0]).Name != "p" {
		t.Errorf("expected g.c to depend on input p, got %v", symNamesFor(table, gc.Inputs))
	}

	// f's reduced graph must keep a and b's input sets disjoint: this is
	// exactly what lets the inliner/scheduler compute a call's shift
	// depth against only the output the caller actually chose.
	fID := fa.SourceID
	red := analyzer.ReducedOf(fID)
	if red == nil {
		t.Fatal("expected a reduced graph for f")
	}
	aDepth, aHasX := red.Depth[fa.Output][fa.Inputs[0]]
	if !aHasX || aDepth != 0 {
		t.Errorf("expected f.a at depth 0 from x, got depth=%d reachable=%v", aDepth, aHasX)
	}
	if _, reachesY := red.Depth[fa.Output][fb.Inputs[0]]; reachesY {
		t.Errorf("f.a must not reach y in the reduced graph")
	}
}

func TestBuildRejectsMultiOutputComponent(t *testing.T) {
	f := multiOutputFile()
	f.Nodes[0].IsComponent = true

	sink := diag.NewSink()
	table := symtab.NewTable(sink)
	file := hir.NewBuilder(table, sink).Build(f)
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

	New(table, sink, analyzer).Build(file)

	var found bool
	for _, e := range sink.Errors() {
		if e.Kind == diag.ComponentMultipleOutputs {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a ComponentMultipleOutputs diagnostic, got %v", sink.Errors())
	}
}

func keys(m map[string]*Node) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

func symNamesFor(t *symtab.Table, ids []symtab.ID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = t.Symbol(id).Name
	}
	return out
}
