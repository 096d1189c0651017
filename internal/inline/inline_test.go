package inline

import (
	"testing"

	"github.com/flowlang/flowc/internal/ast"
	"github.com/flowlang/flowc/internal/depgraph"
	"github.com/flowlang/flowc/internal/diag"
	"github.com/flowlang/flowc/internal/hir"
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

// shiftedCallFile builds a node `mem` whose output delays its own input
// by one instant, and a node `test` that ties its own output back in as
// that call's argument — `out z: int = mem(z).o` — the shape of a call
// whose result participates in a shifted-causality cycle rather than a
// same-instant one (§4.4/§4.6). `w` is carried along so `v` is used by
// some output and the unused-signal pass has nothing to object to.
func shiftedCallFile() *ast.File {
	return &ast.File{
		LanguageVersion: "v1",
		Nodes: []ast.Node{
			{
				Name:   "mem",
				Inputs: []ast.Param{{Name: "i", Type: intType()}},
				Equations: []ast.Equation{
					{
						Kind:    ast.EquationPlain,
						IsOut:   true,
						Pattern: ast.Pattern{Kind: ast.PatternIdent, Name: "o"},
						Type:    intTypeRef(),
						Expr: &ast.Expr{
							Kind:     ast.ExprFby,
							Children: []ast.Expr{*intLit(0), *ident("i")},
						},
					},
				},
			},
			{
				Name:   "test",
				Inputs: []ast.Param{{Name: "v", Type: intType()}},
				Equations: []ast.Equation{
					{
						Kind:    ast.EquationPlain,
						IsOut:   true,
						Pattern: ast.Pattern{Kind: ast.PatternIdent, Name: "z"},
						Type:    intTypeRef(),
						Expr: &ast.Expr{
							Kind:     ast.ExprCall,
							Callee:   "mem",
							Output:   "o",
							Children: []ast.Expr{*ident("z")},
						},
					},
					{
						Kind:    ast.EquationPlain,
						IsOut:   true,
						Pattern: ast.Pattern{Kind: ast.PatternIdent, Name: "w"},
						Type:    intTypeRef(),
						Expr:    ident("v"),
					},
				},
			},
		},
	}
}

// buildUnits runs every pass up through unitary projection and returns
// the table, sink, analyzer and projected units, failing the test on
// any diagnostic along the way.
func buildUnits(t *testing.T, f *ast.File) (*symtab.Table, *diag.Sink, *depgraph.Analyzer, []*unitary.Node) {
	t.Helper()
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
	units := unitary.New(table, sink, analyzer).Build(file)
	if sink.HasErrors() {
		t.Fatal("unexpected diagnostics after unitary projection:", sink.Errors())
	}
	return table, sink, analyzer, units
}

func findUnit(units []*unitary.Node, name string) *unitary.Node {
	for _, u := range units {
		if u.Name() == name {
			return u
		}
	}
	return nil
}

func TestRunInlinesShiftedCausalityCall(t *testing.T) {
	table, sink, analyzer, units := buildUnits(t, shiftedCallFile())

	testZ := findUnit(units, "test.z")
	if testZ == nil {
		t.Fatal("expected a test.z unitary node, got", units)
	}
	if len(testZ.Equations) != 1 || testZ.Equations[0].Expr.Kind != ast.ExprCall {
		t.Fatal("expected test.z to start as a single call equation, got", testZ.Equations)
	}

	in := New(table, sink, analyzer, units)
	graphs := in.Run(units)

	if len(testZ.Equations) != 1 {
		t.Fatalf("expected the call to be replaced by exactly one equation, got %d: %v", len(testZ.Equations), testZ.Equations)
	}
	rewritten := testZ.Equations[0]
	if rewritten.Expr.Kind != ast.ExprFby {
		t.Fatalf("expected the inlined equation to be a fby, got kind %v", rewritten.Expr.Kind)
	}
	zID := rewritten.Defines[0]

	g := graphs[testZ]
	edges, ok := g[zID]
	if !ok || len(edges) == 0 {
		t.Fatalf("expected g[z] to carry the inlined fby's shifted self-dependency after the stale call edge was dropped, got %v (present=%v)", edges, ok)
	}
	var sawSelfShift bool
	for _, e := range edges {
		if e.To == zID && e.Depth == 1 {
			sawSelfShift = true
		}
	}
	if !sawSelfShift {
		t.Errorf("expected a depth-1 self edge on z (the inlined `0 fby z`), got %v", edges)
	}
}

func TestRunLeavesEquationsOutsideShiftedCycleAlone(t *testing.T) {
	table, sink, analyzer, units := buildUnits(t, shiftedCallFile())
	testW := findUnit(units, "test.w")
	if testW == nil {
		t.Fatal("expected a test.w unitary node, got", units)
	}
	before := len(testW.Equations)

	New(table, sink, analyzer, units).Run(units)

	if len(testW.Equations) != before {
		t.Errorf("w's equations should be untouched by inlining, had %d now has %d", before, len(testW.Equations))
	}
	if testW.Equations[0].Expr.Kind != ast.ExprIdent {
		t.Errorf("expected w's equation to remain a bare identifier reference, got kind %v", testW.Equations[0].Expr.Kind)
	}
}
