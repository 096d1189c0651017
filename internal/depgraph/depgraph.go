// Package depgraph builds, per node, the raw and reduced dependency
// multigraphs of §4.4: a tri-color DFS over each equation's structural
// dependency rule detects same-instant cycles (NotCausal) and shifted
// cycles (recorded for the inliner), then path-aggregation collapses
// the raw graph into a reduced input/output summary callers use to
// analyze their own sub-node calls.
//
// Grounded on original_source/src/ir/node.rs's create_initialized_graph
// / add_all_dependencies / add_signal_dependencies /
// add_signal_inputs_dependencies, and on the funvibe-funxy analyzer's
// walker idiom of accumulating diagnostics while continuing to process
// sibling subtrees rather than aborting the whole pass on first error.
package depgraph

import (
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/flowlang/flowc/internal/ast"
	"github.com/flowlang/flowc/internal/diag"
	"github.com/flowlang/flowc/internal/hir"
	"github.com/flowlang/flowc/internal/symtab"
)

// Edge is one (dependency, depth) pair in a raw graph.
type Edge struct {
	To    symtab.ID
	Depth int
}

// Graph is one node's raw dependency multigraph.
type Graph struct {
	Edges map[symtab.ID][]Edge
}

func newGraph() *Graph { return &Graph{Edges: map[symtab.ID][]Edge{}} }

// Reduced is one node's caller-visible summary: for each output, the
// minimum total depth to reach each input.
type Reduced struct {
	// Depth[output][input] = min-depth path length, absent if unreachable.
	Depth map[symtab.ID]map[symtab.ID]int
}

func newReduced() *Reduced { return &Reduced{Depth: map[symtab.ID]map[symtab.ID]int{}} }

// Cycle is one recorded shifted-causality loop (non-zero total depth),
// kept for the inliner (§4.6) to find calls that must be inlined.
type Cycle struct {
	Signals []symtab.ID
}

type color int

const (
	white color = iota
	grey
	black
)

// Analyzer runs the dependency pass over a whole lifted file.
type Analyzer struct {
	table *symtab.Table
	sink  *diag.Sink
	mu    sync.Mutex

	Graphs  map[symtab.ID]*Graph   // per-node raw graph
	Reduced map[symtab.ID]*Reduced // per-node reduced graph
	Shifted map[symtab.ID][]Cycle  // per-node shifted-causality cycles
}

// New constructs an Analyzer.
func New(table *symtab.Table, sink *diag.Sink) *Analyzer {
	return &Analyzer{
		table:   table,
		sink:    sink,
		Graphs:  map[symtab.ID]*Graph{},
		Reduced: map[symtab.ID]*Reduced{},
		Shifted: map[symtab.ID][]Cycle{},
	}
}

// Analyze builds every node's raw + reduced graph, processing callees
// before callers per the call-graph meta-ordering; on mutual recursion
// RecursiveNode is reported and Analyze returns without analyzing any
// node. Nodes whose
// callees are already finalized (same call-graph rank) are analyzed
// concurrently — analyzeNode only reads the Reduced entries of earlier
// ranks and writes its own node's entry, so fan-out within a rank is
// safe once the rank boundary is a barrier.
func (a *Analyzer) Analyze(f *hir.File) {
	order, ok := a.callOrder(f)
	if !ok {
		return
	}
	for _, rank := range rankOrder(order) {
		var g errgroup.Group
		for _, n := range rank {
			n := n
			g.Go(func() error {
				if n.Import != nil {
					a.analyzeImport(n)
				} else {
					a.analyzeNode(n)
				}
				return nil
			})
		}
		_ = g.Wait()
	}
}

// rankOrder groups a callee-before-caller order into ranks: rank 0 is
// every node with no in-file callees, rank k+1 is every node all of
// whose callees lie in rank <=k. order is already topologically
// sorted, so a single left-to-right pass suffices.
func rankOrder(order []*hir.NodeDef) [][]*hir.NodeDef {
	rankOf := map[symtab.ID]int{}
	var maxRank int
	for _, n := range order {
		r := 0
		if n.Import == nil {
			for _, c := range callees(n) {
				if cr, ok := rankOf[c]; ok && cr+1 > r {
					r = cr + 1
				}
			}
		}
		rankOf[n.ID] = r
		if r > maxRank {
			maxRank = r
		}
	}
	ranks := make([][]*hir.NodeDef, maxRank+1)
	for _, n := range order {
		r := rankOf[n.ID]
		ranks[r] = append(ranks[r], n)
	}
	return ranks
}

// analyzeImport synthesizes a conservative reduced graph for an
// externally-defined node: every declared output is assumed to depend
// on every declared input at depth 0, since the callee's body is not
// available to inspect. This never under-reports a causality hazard.
func (a *Analyzer) analyzeImport(n *hir.NodeDef) {
	red := newReduced()
	for _, out := range n.Outputs {
		m := map[symtab.ID]int{}
		for _, in := range n.Inputs {
			m[in] = 0
		}
		red.Depth[out] = m
	}
	a.mu.Lock()
	a.Reduced[n.ID] = red
	a.mu.Unlock()
}

// callOrder topologically sorts f.Nodes so every callee precedes its
// callers. A cycle in the call graph is RecursiveNode and aborts the
// whole pass (the spec forbids mutual recursion outright).
func (a *Analyzer) callOrder(f *hir.File) ([]*hir.NodeDef, bool) {
	byID := map[symtab.ID]*hir.NodeDef{}
	for _, n := range f.Nodes {
		byID[n.ID] = n
	}
	state := map[symtab.ID]color{}
	var order []*hir.NodeDef
	ok := true
	var visit func(n *hir.NodeDef)
	visit = func(n *hir.NodeDef) {
		if !ok || state[n.ID] == black {
			return
		}
		if state[n.ID] == grey {
			a.sink.Add(diag.RecursiveNode, n.Loc, "recursive or mutually recursive node call", n.Name)
			ok = false
			return
		}
		state[n.ID] = grey
		if n.Import == nil {
			for _, callee := range callees(n) {
				if target, found := byID[callee]; found {
					visit(target)
				}
			}
		}
		state[n.ID] = black
		order = append(order, n)
	}
	for _, n := range f.Nodes {
		visit(n)
		if !ok {
			return nil, false
		}
	}
	return order, true
}

// callees returns the distinct node IDs n's equations call, in a stable
// order (first occurrence).
func callees(n *hir.NodeDef) []symtab.ID {
	seen := map[symtab.ID]bool{}
	var out []symtab.ID
	var walk func(e *hir.Expr)
	walk = func(e *hir.Expr) {
		if e == nil {
			return
		}
		if e.Kind == ast.ExprCall && !seen[e.CalleeID] {
			seen[e.CalleeID] = true
			out = append(out, e.CalleeID)
		}
		for _, c := range e.Children {
			walk(c)
		}
		walk(e.Scrutinee)
		for _, arm := range e.Arms {
			walk(arm.Guard)
			walk(arm.Body)
		}
		walk(e.Body)
	}
	for _, eq := range n.Equations {
		walk(eq.Expr)
	}
	return out
}

func (a *Analyzer) calleeReduced(id symtab.ID) *Reduced {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.Reduced[id]
}

// ReducedOf exposes calleeReduced for passes run after this one (the
// inliner recomputes individual equations' deps via Deps, which needs
// the same reducedOf lookup).
func (a *Analyzer) ReducedOf(id symtab.ID) *Reduced {
	return a.calleeReduced(id)
}

// analyzeNode builds n's raw graph via tri-color DFS and derives its
// reduced graph by shortest-path aggregation.
func (a *Analyzer) analyzeNode(n *hir.NodeDef) {
	na := &nodeAnalyzer{
		a:      a,
		node:   n,
		graph:  newGraph(),
		color:  map[symtab.ID]color{},
		depth:  map[symtab.ID]int{},
	}
	vertices := append([]symtab.ID{}, n.Inputs...)
	vertices = append(vertices, n.Outputs...)
	for s := range n.DefinedBy {
		vertices = append(vertices, s)
	}
	for _, v := range vertices {
		if na.color[v] == white {
			na.visit(v, 0)
		}
	}
	reduced := reduceGraph(na.graph, n.Outputs, n.Inputs)
	a.mu.Lock()
	a.Graphs[n.ID] = na.graph
	a.Reduced[n.ID] = reduced
	if cycles := na.cycles; len(cycles) > 0 {
		a.Shifted[n.ID] = cycles
	}
	a.mu.Unlock()
}

type nodeAnalyzer struct {
	a      *Analyzer
	node   *hir.NodeDef
	graph  *Graph
	color  map[symtab.ID]color
	depth  map[symtab.ID]int
	cycles []Cycle
	path   []symtab.ID
}

func (na *nodeAnalyzer) visit(s symtab.ID, depthSoFar int) {
	na.color[s] = grey
	na.depth[s] = depthSoFar
	na.path = append(na.path, s)
	var edges []Edge
	if eq, ok := na.node.DefinedBy[s]; ok {
		edges = na.deps(eq.Expr)
		na.graph.Edges[s] = edges
	}
	for _, e := range edges {
		switch na.color[e.To] {
		case white:
			na.visit(e.To, depthSoFar+e.Depth)
		case grey:
			weight := (depthSoFar + e.Depth) - na.depth[e.To]
			cyc := Cycle{Signals: cyclePath(na.path, e.To)}
			if weight == 0 {
				na.a.sink.Add(diag.NotCausal, na.node.Loc, "zero-depth dependency cycle", symNames(na.a.table, cyc.Signals)...)
			} else {
				na.cycles = append(na.cycles, cyc)
			}
		case black:
			// fully resolved elsewhere in the graph; nothing further to do.
		}
	}
	na.path = na.path[:len(na.path)-1]
	na.color[s] = black
}

// cyclePath slices the current DFS path back to where target was first
// entered, giving the full signal chain of a detected cycle. target is
// always on path: color[target]==grey is exactly the set of vertices
// currently on the DFS stack.
func cyclePath(path []symtab.ID, target symtab.ID) []symtab.ID {
	for i, id := range path {
		if id == target {
			out := append([]symtab.ID{}, path[i:]...)
			return append(out, target)
		}
	}
	return nil
}

func symNames(t *symtab.Table, ids []symtab.ID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		if sym := t.Symbol(id); sym != nil {
			out[i] = sym.Name
		} else {
			out[i] = "?"
		}
	}
	return out
}

// deps computes the structural dependency multiset of e per §4.4's
// table, relative to the enclosing node (ids not bound by a pattern
// within e itself).
func (na *nodeAnalyzer) deps(e *hir.Expr) []Edge {
	return Deps(na.a.table, na.a.calleeReduced, e)
}

// Deps computes the structural dependency multiset of e per §4.4's
// table. reducedOf resolves a callee node ID to its already-built
// reduced graph (nil if unknown) for the sub-node call rule; it is
// exported so the inliner can recompute an equation's dependencies
// after substitution without re-running the whole analysis.
func Deps(table *symtab.Table, reducedOf func(symtab.ID) *Reduced, e *hir.Expr) []Edge {
	if e == nil {
		return nil
	}
	recur := func(c *hir.Expr) []Edge { return Deps(table, reducedOf, c) }
	switch e.Kind {
	case ast.ExprConst:
		return nil
	case ast.ExprIdent:
		return []Edge{{To: e.ID, Depth: 0}}
	case ast.ExprFby:
		// Children[0] is the constant initializer (no dependencies of its
		// own); Children[1] is the delayed expression, shifted by one.
		if len(e.Children) != 2 {
			return nil
		}
		return shift(recur(e.Children[1]), 1)
	case ast.ExprUnaryOp, ast.ExprBinaryOp, ast.ExprTuple, ast.ExprArray,
		ast.ExprStruct, ast.ExprMap, ast.ExprFold, ast.ExprSort, ast.ExprZip,
		ast.ExprEmit:
		var out []Edge
		for _, c := range e.Children {
			out = append(out, recur(c)...)
		}
		return out
	case ast.ExprField, ast.ExprTupleIndex:
		if len(e.Children) != 1 {
			return nil
		}
		return recur(e.Children[0])
	case ast.ExprIf:
		var out []Edge
		for _, c := range e.Children {
			out = append(out, recur(c)...)
		}
		return out
	case ast.ExprMatch:
		out := recur(e.Scrutinee)
		for i := range e.Arms {
			arm := &e.Arms[i]
			bound := boundSet(arm.Pattern)
			out = append(out, filterBound(recur(arm.Guard), bound)...)
			out = append(out, filterBound(recur(arm.Body), bound)...)
		}
		return out
	case ast.ExprWhen:
		out := recur(e.Scrutinee)
		bound := boundSet(e.EventPat)
		out = append(out, filterBound(recur(e.Body), bound)...)
		return out
	case ast.ExprLambda:
		bound := map[symtab.ID]bool{}
		for _, p := range e.Params {
			bound[p] = true
		}
		return filterBound(recur(e.Body), bound)
	case ast.ExprFuncApp:
		var out []Edge
		for _, c := range e.Children {
			out = append(out, recur(c)...)
		}
		return out
	case ast.ExprCall:
		return callDeps(table, reducedOf, e)
	}
	return nil
}

// callDeps implements §4.4's sub-node call rule: each argument's
// dependencies contribute through the callee's reduced graph, shifted
// by the edge depth from the chosen output to that input; an argument
// with no such edge contributes nothing.
func callDeps(table *symtab.Table, reducedOf func(symtab.ID) *Reduced, e *hir.Expr) []Edge {
	sym := table.Symbol(e.CalleeID)
	if sym == nil {
		return nil
	}
	data, _ := sym.Data.(*symtab.NodeData)
	if data == nil {
		return nil
	}
	outID, ok := chosenOutput(table, data, e.Output)
	if !ok {
		return nil
	}
	red := reducedOf(e.CalleeID)
	if red == nil {
		return nil
	}
	perInput := red.Depth[outID]
	var out []Edge
	for i, inID := range data.Inputs {
		if i >= len(e.Children) {
			break
		}
		d, reachable := perInput[inID]
		if !reachable {
			continue
		}
		out = append(out, shift(Deps(table, reducedOf, e.Children[i]), d)...)
	}
	return out
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

func shift(edges []Edge, by int) []Edge {
	out := make([]Edge, len(edges))
	for i, e := range edges {
		out[i] = Edge{To: e.To, Depth: e.Depth + by}
	}
	return out
}

func boundSet(p *hir.Pattern) map[symtab.ID]bool {
	m := map[symtab.ID]bool{}
	for _, id := range p.BoundIdents() {
		m[id] = true
	}
	return m
}

func filterBound(edges []Edge, bound map[symtab.ID]bool) []Edge {
	var out []Edge
	for _, e := range edges {
		if !bound[e.To] {
			out = append(out, e)
		}
	}
	return out
}

// reduceGraph collapses a node's raw graph into the caller-visible
// output->input depth summary via shortest-path aggregation (§4.4):
// reduced[O][I] = min over paths of the sum of edge depths.
func reduceGraph(g *Graph, outputs, inputs []symtab.ID) *Reduced {
	red := newReduced()
	inputSet := map[symtab.ID]bool{}
	for _, id := range inputs {
		inputSet[id] = true
	}
	for _, o := range outputs {
		dist := shortestPaths(g, o)
		m := map[symtab.ID]int{}
		for id, d := range dist {
			if inputSet[id] {
				m[id] = d
			}
		}
		red.Depth[o] = m
	}
	return red
}

// shortestPaths runs Dijkstra from src over g's non-negative-weight
// edges (safe since NotCausal already rejected any zero-weight cycle,
// and no edge carries negative depth).
func shortestPaths(g *Graph, src symtab.ID) map[symtab.ID]int {
	dist := map[symtab.ID]int{src: 0}
	visited := map[symtab.ID]bool{}
	for {
		var u symtab.ID
		best := -1
		found := false
		for id, d := range dist {
			if visited[id] {
				continue
			}
			if !found || d < best {
				best = d
				u = id
				found = true
			}
		}
		if !found {
			break
		}
		visited[u] = true
		for _, e := range g.Edges[u] {
			nd := dist[u] + e.Depth
			if cur, ok := dist[e.To]; !ok || nd < cur {
				dist[e.To] = nd
			}
		}
	}
	delete(dist, src)
	return dist
}

// DebugString renders a node's reduced graph, useful from pipeline
// diagnostics and tests.
func (r *Reduced) DebugString(t *symtab.Table) string {
	out := ""
	for o, m := range r.Depth {
		for i, d := range m {
			out += fmt.Sprintf("%s -> %s : %d\n", symName(t, o), symName(t, i), d)
		}
	}
	return out
}

func symName(t *symtab.Table, id symtab.ID) string {
	if sym := t.Symbol(id); sym != nil {
		return sym.Name
	}
	return "?"
}
