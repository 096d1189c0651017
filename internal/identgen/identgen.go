// Package identgen implements the identifier creator shared by the
// inliner (§4.6) and normalizer (§4.8): a per-node allocator that knows
// every name already live in scope and mints fresh ones on conflict.
package identgen

import "fmt"

// Creator tracks names already used within one unitary node and mints
// fresh ones. Zero value is not usable; use New.
type Creator struct {
	used map[string]bool
}

// New seeds a Creator with the names already in scope.
func New(existing []string) *Creator {
	c := &Creator{used: make(map[string]bool, len(existing))}
	for _, n := range existing {
		c.used[n] = true
	}
	return c
}

// Claim marks name as used without minting anything, so a name picked
// by another means (e.g. an inlined callee output taking over the
// caller's own signal name) is still accounted for in later Fresh calls.
func (c *Creator) Claim(name string) {
	c.used[name] = true
}

// Fresh returns base if unused, otherwise base_1, base_2, … until an
// unused name is found. The chosen name is marked used before return.
func (c *Creator) Fresh(base string) string {
	if !c.used[base] {
		c.used[base] = true
		return base
	}
	for i := 1; ; i++ {
		candidate := fmt.Sprintf("%s_%d", base, i)
		if !c.used[candidate] {
			c.used[candidate] = true
			return candidate
		}
	}
}

// MemoryIdent derives a sub-node call's memory identifier deterministically
// from the callee name, its chosen output, and the enclosing signal name
// (§4.8): `mem<Callee>_<output>_<signal>`, disambiguated like Fresh on
// conflict within the same unitary node.
func (c *Creator) MemoryIdent(callee, output, signal string) string {
	base := fmt.Sprintf("mem%s_%s_%s", callee, output, signal)
	return c.Fresh(base)
}
