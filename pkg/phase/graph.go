package phase

import "fmt"

// node holds the static definition of one phase in the graph.
type node struct {
	phase       Phase
	predecessor *Phase
	active      bool
}

// Graph is the immutable phase dependency table. It is constructed once at
// startup and injected into every component that needs phase ordering; no
// component keeps its own copy of the table.
type Graph struct {
	nodes map[Phase]node
	order []Phase
}

// NewGraph returns the default graph: a linear chain
// PreValidation -> Stories -> Infrastructure -> SmokeTest -> Development -> QAMerge
// with every phase active.
func NewGraph() *Graph {
	return NewGraphWithInactive()
}

// NewGraphWithInactive returns the default graph with the named phases
// toggled inactive. Inactive phases keep their place in the chain and their
// storage format; they are simply skipped by range selection. Dependencies
// skip over inactive phases so the chain stays connected.
func NewGraphWithInactive(inactive ...Phase) *Graph {
	skip := make(map[Phase]bool, len(inactive))
	for _, p := range inactive {
		skip[p] = true
	}

	g := &Graph{nodes: make(map[Phase]node)}
	var prev *Phase
	for _, p := range All() {
		n := node{phase: p, active: !skip[p]}
		if n.active {
			n.predecessor = prev
			q := p
			prev = &q
		}
		g.nodes[p] = n
		g.order = append(g.order, p)
	}
	return g
}

// Phases returns every phase in execution order, active or not.
func (g *Graph) Phases() []Phase {
	out := make([]Phase, len(g.order))
	copy(out, g.order)
	return out
}

// IsActive reports whether the phase is enforced in this deployment.
func (g *Graph) IsActive(p Phase) bool {
	return g.nodes[p].active
}

// PredecessorOf returns the phase's declared dependency. The second return
// is false when the phase has no predecessor (head of the chain).
func (g *Graph) PredecessorOf(p Phase) (Phase, bool) {
	n, ok := g.nodes[p]
	if !ok || n.predecessor == nil {
		return 0, false
	}
	return *n.predecessor, true
}

// DownstreamOf returns every active phase that depends on p, directly or
// transitively, in execution order. Used by cascade invalidation.
func (g *Graph) DownstreamOf(p Phase) []Phase {
	dependents := make(map[Phase]bool)
	dependents[p] = true

	var out []Phase
	for _, q := range g.order {
		if q == p || !g.nodes[q].active {
			continue
		}
		pred, ok := g.PredecessorOf(q)
		if ok && dependents[pred] {
			dependents[q] = true
			out = append(out, q)
		}
	}
	return out
}

// ActiveInRange returns the active phases in [from, to] in execution order.
func (g *Graph) ActiveInRange(from, to Phase) ([]Phase, error) {
	if from > to {
		return nil, fmt.Errorf("invalid phase range: %s > %s", from, to)
	}

	var out []Phase
	for _, p := range g.order {
		if p < from || p > to {
			continue
		}
		if g.nodes[p].active {
			out = append(out, p)
		}
	}
	return out, nil
}

// First returns the earliest active phase.
func (g *Graph) First() Phase {
	for _, p := range g.order {
		if g.nodes[p].active {
			return p
		}
	}
	return PreValidation
}

// Last returns the latest active phase.
func (g *Graph) Last() Phase {
	for i := len(g.order) - 1; i >= 0; i-- {
		if g.nodes[g.order[i]].active {
			return g.order[i]
		}
	}
	return QAMerge
}
