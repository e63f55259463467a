package frontend

import (
	"github.com/fieldgraph/engine/graph"
	"github.com/fieldgraph/engine/registry"
)

// analyzeCycles finds every strongly connected component of the
// block-level forward dependency graph and marks it legal iff it
// contains at least one state-holding block (the only way, per §9, to
// cut a dependency cycle into a readState/writeState pair across the
// phase boundary).
func (c *Compiler) analyzeCycles(p *graph.Patch) CycleSummary {
	adj := make(map[graph.BlockID][]graph.BlockID)
	for _, e := range p.Edges {
		adj[e.From.Block] = append(adj[e.From.Block], e.To.Block)
	}

	t := &tarjan{
		adj:     adj,
		index:   make(map[graph.BlockID]int),
		low:     make(map[graph.BlockID]int),
		onStack: make(map[graph.BlockID]bool),
	}
	for _, id := range p.SortedBlockIDs() {
		if _, seen := t.index[id]; !seen {
			t.strongConnect(id)
		}
	}

	summary := CycleSummary{}
	selfLoop := make(map[graph.BlockID]bool)
	for _, e := range p.Edges {
		if e.From.Block == e.To.Block {
			selfLoop[e.From.Block] = true
		}
	}

	for _, scc := range t.sccs {
		if len(scc) == 1 && !selfLoop[scc[0]] {
			continue
		}
		legal := false
		for _, id := range scc {
			if b, ok := p.Blocks[id]; ok {
				if def, ok := c.Registry.Lookup(b.Type); ok && def.State != registry.StateNone {
					legal = true
					break
				}
			}
		}
		summary.Components = append(summary.Components, Component{Blocks: scc, Legal: legal})
	}

	return summary
}

// tarjan is a minimal, recursive Tarjan SCC finder over
// graph.BlockID nodes.
type tarjan struct {
	adj     map[graph.BlockID][]graph.BlockID
	index   map[graph.BlockID]int
	low     map[graph.BlockID]int
	onStack map[graph.BlockID]bool
	stack   []graph.BlockID
	counter int
	sccs    [][]graph.BlockID
}

func (t *tarjan) strongConnect(v graph.BlockID) {
	t.index[v] = t.counter
	t.low[v] = t.counter
	t.counter++
	t.stack = append(t.stack, v)
	t.onStack[v] = true

	for _, w := range t.adj[v] {
		if _, seen := t.index[w]; !seen {
			t.strongConnect(w)
			if t.low[w] < t.low[v] {
				t.low[v] = t.low[w]
			}
		} else if t.onStack[w] {
			if t.index[w] < t.low[v] {
				t.low[v] = t.index[w]
			}
		}
	}

	if t.low[v] == t.index[v] {
		var comp []graph.BlockID
		for {
			n := len(t.stack) - 1
			w := t.stack[n]
			t.stack = t.stack[:n]
			t.onStack[w] = false
			comp = append(comp, w)
			if w == v {
				break
			}
		}
		t.sccs = append(t.sccs, comp)
	}
}
