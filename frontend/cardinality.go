package frontend

import (
	"fmt"

	"github.com/fieldgraph/engine/diag"
	"github.com/fieldgraph/engine/graph"
	"github.com/fieldgraph/engine/gtype"
	"github.com/fieldgraph/engine/registry"
)

// solveCardinality propagates Signal/Field cardinality through the graph
// by fixed-point relaxation: every declared-Elastic port adopts Field if
// any of its block's elastic peers resolves to Field, else Signal.
// State-holding blocks' StateOutput ports are fixed (never Elastic) and
// anchor the fixed point across any cycle.
//
// Returns the resolved output type for every Endpoint that could be
// determined.
func (c *Compiler) solveCardinality(p *graph.Patch, diags *diag.List) map[graph.Endpoint]gtype.Type {
	resolved := make(map[graph.Endpoint]gtype.Type)

	fixedOut := func(id graph.BlockID, port registry.PortID) (gtype.Type, bool) {
		t, ok := c.outputTypeView(p, graph.Endpoint{Block: id, Port: port})
		if !ok || t.Cardinality == gtype.Elastic {
			return gtype.Type{}, false
		}
		return t, true
	}

	ids := p.SortedBlockIDs()
	progressed := true
	for iter := 0; progressed && iter <= len(ids)+1; iter++ {
		progressed = false
		for _, id := range ids {
			b := p.Blocks[id]
			outs := c.blockOutputs(b)
			for _, out := range outs {
				ep := graph.Endpoint{Block: id, Port: out}
				if _, done := resolved[ep]; done {
					continue
				}
				declared, _ := c.outputTypeView(p, ep)
				if declared.Cardinality != gtype.Elastic {
					resolved[ep] = declared
					progressed = true
					continue
				}
				if card, ok := c.resolveElasticOutput(p, b, resolved); ok {
					t := declared
					t.Cardinality = card
					resolved[ep] = t
					progressed = true
				}
			}
			_ = fixedOut
		}
	}

	c.checkCardinalityConflicts(p, resolved, diags)
	return resolved
}

func (c *Compiler) blockOutputs(b *graph.Block) []registry.PortID {
	if b.Type == AdapterBlockType {
		return []registry.PortID{AdapterOutPort}
	}
	def, ok := c.Registry.Lookup(b.Type)
	if !ok {
		return nil
	}
	out := make([]registry.PortID, len(def.Outputs))
	for i, o := range def.Outputs {
		out[i] = o.ID
	}
	return out
}

func (c *Compiler) blockInputs(b *graph.Block) []registry.PortID {
	if b.Type == AdapterBlockType {
		return []registry.PortID{AdapterInPort}
	}
	def, ok := c.Registry.Lookup(b.Type)
	if !ok {
		return nil
	}
	out := make([]registry.PortID, len(def.Inputs))
	for i, in := range def.Inputs {
		out[i] = in.ID
	}
	return out
}

// resolveElasticOutput computes Field-or-Signal for one elastic output by
// looking at every elastic input port on the same block.
func (c *Compiler) resolveElasticOutput(p *graph.Patch, b *graph.Block, resolved map[graph.Endpoint]gtype.Type) (gtype.Cardinality, bool) {
	any := false
	sawField := false
	for _, inPort := range c.blockInputs(b) {
		declared, _ := c.inputTypeView(p, graph.Endpoint{Block: b.ID, Port: inPort})
		if declared.Cardinality != gtype.Elastic {
			continue
		}
		edges := p.EdgesInto(graph.Endpoint{Block: b.ID, Port: inPort})
		if len(edges) == 0 {
			continue
		}
		for _, e := range edges {
			srcResolved, ok := resolved[e.From]
			if !ok {
				return 0, false
			}
			any = true
			if srcResolved.Cardinality == gtype.Field {
				sawField = true
			}
		}
	}
	if !any {
		return gtype.Signal, true
	}
	if sawField {
		return gtype.Field, true
	}
	return gtype.Signal, true
}

func (c *Compiler) checkCardinalityConflicts(p *graph.Patch, resolved map[graph.Endpoint]gtype.Type, diags *diag.List) {
	for _, id := range sortedEdgeIDs(p) {
		e := p.Edges[id]
		srcResolved, ok := resolved[e.From]
		if !ok {
			continue
		}
		dstDeclared, ok := c.inputTypeView(p, e.To)
		if !ok {
			continue
		}
		if dstDeclared.Cardinality == gtype.Elastic {
			continue
		}
		if !cardinalityCompatible(srcResolved.Cardinality, dstDeclared.Cardinality) {
			diags.Add(diag.Diagnostic{
				Kind: diag.CardinalityConflict, Severity: diag.SeverityError,
				Edge: string(e.ID),
				Message: fmt.Sprintf("port requires %s but source resolved to %s",
					dstDeclared.Cardinality, srcResolved.Cardinality),
			})
		}
	}
}

func cardinalityCompatible(from, to gtype.Cardinality) bool {
	if from == to {
		return true
	}
	return from == gtype.Signal && to == gtype.Field
}
