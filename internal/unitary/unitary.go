// Package unitary implements the per-output node projection of §4.5:
// each original node with k outputs becomes k independent unitary
// nodes, one per output, restricted to the signals that output
// actually reaches. Grounded on
// original_source/src/ir/node.rs::generate_unitary_nodes.
package unitary

import (
	"fmt"

	"github.com/flowlang/flowc/internal/depgraph"
	"github.com/flowlang/flowc/internal/diag"
	"github.com/flowlang/flowc/internal/hir"
	"github.com/flowlang/flowc/internal/symtab"
)

// Node is one unitary (single-output) node.
type Node struct {
	SourceID    symtab.ID // the hir.NodeDef this was projected from
	SourceName  string
	Output      symtab.ID
	OutputName  string
	IsComponent bool
	Inputs      []symtab.ID
	Signals     map[symtab.ID]bool // every vertex reachable from Output
	Equations   []*hir.Equation
	Loc         diag.Location
}

// Name is the unitary node's unique name: SourceName for a component,
// SourceName.OutputName for every other node, single-output ones
// included.
func (n *Node) Name() string {
	if n.IsComponent {
		return n.SourceName
	}
	return fmt.Sprintf("%s.%s", n.SourceName, n.OutputName)
}

// Builder runs the projection over a whole lifted file.
type Builder struct {
	table *symtab.Table
	sink  *diag.Sink
	graph *depgraph.Analyzer
}

// New constructs a Builder; graph must already have run Analyze.
func New(table *symtab.Table, sink *diag.Sink, graph *depgraph.Analyzer) *Builder {
	return &Builder{table: table, sink: sink, graph: graph}
}

// Build projects every non-import node of f into its unitary nodes.
func (b *Builder) Build(f *hir.File) []*Node {
	var out []*Node
	for _, n := range f.Nodes {
		if n.Import != nil {
			continue
		}
		out = append(out, b.buildNode(n)...)
	}
	return out
}

func (b *Builder) buildNode(n *hir.NodeDef) []*Node {
	if n.IsComponent && len(n.Outputs) > 1 {
		b.sink.Add(diag.ComponentMultipleOutputs, n.Loc, "a component may declare at most one output", n.Name)
		return nil
	}
	rawGraph := b.graph.Graphs[n.ID]
	var units []*Node
	reachedAnywhere := map[symtab.ID]bool{}
	for _, out := range n.Outputs {
		signals := reachableFrom(rawGraph, out)
		for id := range signals {
			reachedAnywhere[id] = true
		}
		var inputs []symtab.ID
		for _, in := range n.Inputs {
			if signals[in] {
				inputs = append(inputs, in)
			}
		}
		var eqs []*hir.Equation
		seen := map[*hir.Equation]bool{}
		for _, eq := range n.Equations {
			for _, d := range eq.Defines {
				if signals[d] && !seen[eq] {
					eqs = append(eqs, eq)
					seen[eq] = true
				}
			}
		}
		units = append(units, &Node{
			SourceID:    n.ID,
			SourceName:  n.Name,
			Output:      out,
			OutputName:  symName(b.table, out),
			IsComponent: n.IsComponent,
			Inputs:      inputs,
			Signals:     signals,
			Equations:   eqs,
			Loc:         n.Loc,
		})
	}
	b.reportUnused(n, reachedAnywhere)
	return units
}

// reportUnused emits UnusedSignal for every signal of n that no unitary
// node's output reaches (§4.5).
func (b *Builder) reportUnused(n *hir.NodeDef, reached map[symtab.ID]bool) {
	all := append([]symtab.ID{}, n.Inputs...)
	for s := range n.DefinedBy {
		all = append(all, s)
	}
	for _, s := range all {
		if !reached[s] {
			b.sink.Add(diag.UnusedSignal, n.Loc, "signal is never used by any output", symName(b.table, s))
		}
	}
}

func reachableFrom(g *depgraph.Graph, start symtab.ID) map[symtab.ID]bool {
	visited := map[symtab.ID]bool{start: true}
	queue := []symtab.ID{start}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if g == nil {
			continue
		}
		for _, e := range g.Edges[cur] {
			if !visited[e.To] {
				visited[e.To] = true
				queue = append(queue, e.To)
			}
		}
	}
	return visited
}

func symName(t *symtab.Table, id symtab.ID) string {
	if sym := t.Symbol(id); sym != nil {
		return sym.Name
	}
	return "?"
}
