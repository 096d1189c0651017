// Package schedule implements the topological scheduler of §4.7: each
// unitary node's equations are ordered by Kahn's algorithm over the
// zero-depth subgraph of its (possibly inlined) raw graph; non-zero
// depth edges are past-instant reads and impose no ordering. Grounded
// on original_source/src/frontend/normalizing/scheduling/file.rs.
package schedule

import (
	"github.com/flowlang/flowc/internal/diag"
	"github.com/flowlang/flowc/internal/hir"
	"github.com/flowlang/flowc/internal/inline"
	"github.com/flowlang/flowc/internal/symtab"
	"github.com/flowlang/flowc/internal/unitary"
)

// Order topologically sorts u.Equations in place using only the
// zero-depth edges of g, and returns the ordered slice (u.Equations is
// also updated to match). A leftover same-instant cycle at this stage
// is a NotCausal that escaped §4.4 and aborts scheduling for this unit.
func Order(sink *diag.Sink, u *unitary.Node, g inline.Graph) []*hir.Equation {
	definer := map[symtab.ID]*hir.Equation{}
	for _, eq := range u.Equations {
		for _, d := range eq.Defines {
			definer[d] = eq
		}
	}

	indegree := map[*hir.Equation]int{}
	successors := map[*hir.Equation][]*hir.Equation{}
	for _, eq := range u.Equations {
		indegree[eq] = 0
	}
	for _, eq := range u.Equations {
		seen := map[*hir.Equation]bool{}
		for _, s := range eq.Defines {
			for _, e := range g[s] {
				if e.Depth != 0 {
					continue
				}
				dep, ok := definer[e.To]
				if !ok || dep == eq || seen[dep] {
					continue
				}
				seen[dep] = true
				indegree[eq]++
				successors[dep] = append(successors[dep], eq)
			}
		}
	}

	var ready []*hir.Equation
	for _, eq := range u.Equations {
		if indegree[eq] == 0 {
			ready = append(ready, eq)
		}
	}

	var out []*hir.Equation
	for len(ready) > 0 {
		cur := ready[0]
		ready = ready[1:]
		out = append(out, cur)
		for _, succ := range successors[cur] {
			indegree[succ]--
			if indegree[succ] == 0 {
				ready = append(ready, succ)
			}
		}
	}

	if len(out) != len(u.Equations) {
		sink.Add(diag.NotCausal, u.Loc, "zero-depth cycle survived dependency analysis", u.Name())
		return u.Equations
	}
	u.Equations = out
	return out
}
