package frontend

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/fieldgraph/engine/diag"
	"github.com/fieldgraph/engine/graph"
	"github.com/fieldgraph/engine/gtype"
	"github.com/fieldgraph/engine/registry"
)

// Bus port ID convention: a block with Role RoleBus must declare exactly
// these two ports; the normalization pass collapses it away.
const (
	BusInPort  registry.PortID = "in"
	BusOutPort registry.PortID = "out"
)

// AdapterBlockType marks a synthetic unit-adapter block inserted by the
// adapter-insertion pass. It is never present in the caller's Registry;
// the backend recognizes it directly.
const AdapterBlockType registry.BlockType = "__adapter__"

const (
	AdapterInPort  registry.PortID = "in"
	AdapterOutPort registry.PortID = "out"
)

// AdapterParamKey is the Block.Params key holding the gtype.Adapter chosen
// for one synthesized adapter block.
const AdapterParamKey = "adapter"

// Compiler runs the five normalization/resolution passes described in
// spec §4.3. It is stateless across calls; each Compile starts from a
// fresh clone of its input Patch.
type Compiler struct {
	Registry      *registry.Registry
	Adapters      *gtype.AdapterRegistry
	Logger        *slog.Logger
	idSeq         int
}

// New builds a Compiler over the given block registry and unit-adapter
// table.
func New(reg *registry.Registry, adapters *gtype.AdapterRegistry) *Compiler {
	return &Compiler{Registry: reg, Adapters: adapters, Logger: slog.Default()}
}

// Compile runs all five passes and returns the resulting Snapshot.
// Downstream passes run best-effort even after an earlier pass reports
// errors, so the UI still gets partial provenance.
func (c *Compiler) Compile(patch *graph.Patch) *Snapshot {
	c.idSeq = 0
	snap := &Snapshot{
		PatchRevision: patch.Revision,
		Provenance:    make(map[graph.Endpoint]PortProvenance),
	}

	normalized := patch.Clone()
	snap.Diagnostics = append(snap.Diagnostics, normalized.Validate(c.Registry)...)

	c.normalize(normalized, &snap.Diagnostics)
	c.insertAdapters(normalized, &snap.Diagnostics)
	resolved := c.solveCardinality(normalized, &snap.Diagnostics)
	snap.ResolvedOutputs = resolved
	c.resolveTypes(normalized, resolved, snap)
	snap.Cycles = c.analyzeCycles(normalized)
	for _, comp := range snap.Cycles.Components {
		if !comp.Legal {
			for _, b := range comp.Blocks {
				snap.Diagnostics.Add(diag.Diagnostic{
					Kind: diag.IllegalCycle, Severity: diag.SeverityError,
					Block:   string(b),
					Message: "cycle has no state-holding block to break it",
				})
			}
		}
	}

	snap.Normalized = normalized
	snap.BackendReady = !snap.Diagnostics.HasErrors()

	c.Logger.Debug("frontend compile complete",
		slog.Uint64("revision", patch.Revision),
		slog.Int("blocks", len(normalized.Blocks)),
		slog.Int("edges", len(normalized.Edges)),
		slog.Bool("backendReady", snap.BackendReady),
	)

	return snap
}

func (c *Compiler) nextID(prefix string) string {
	c.idSeq++
	return fmt.Sprintf("%s$%d", prefix, c.idSeq)
}

// normalize materializes default sources for unconnected inputs and
// collapses bus blocks into direct edges.
func (c *Compiler) normalize(p *graph.Patch, diags *diag.List) {
	for _, id := range p.SortedBlockIDs() {
		b := p.Blocks[id]
		def, ok := c.Registry.Lookup(b.Type)
		if !ok {
			continue // already flagged by Validate
		}
		for _, in := range def.Inputs {
			ep := graph.Endpoint{Block: id, Port: in.ID}
			if len(p.EdgesInto(ep)) > 0 {
				continue
			}
			if in.Default == nil {
				diags.Add(diag.Diagnostic{
					Kind: diag.UnresolvedInput, Severity: diag.SeverityError,
					Block: string(id), Port: string(in.ID),
					Message: "no user edge and no declared default source",
				})
				continue
			}
			c.materializeDefault(p, id, in)
		}
	}

	c.collapseBuses(p, diags)
}

func (c *Compiler) materializeDefault(p *graph.Patch, target graph.BlockID, in registry.InputPortDef) {
	src := in.Default
	producerID := graph.BlockID(c.nextID("default." + string(target) + "." + string(in.ID)))
	p.Blocks[producerID] = &graph.Block{
		ID:          producerID,
		Type:        src.ProducerType,
		DisplayName: string(producerID),
		Params:      src.ProducerParams,
		Role:        graph.RoleNormal,
	}
	edgeID := graph.EdgeID(c.nextID("edge.default"))
	p.Edges[edgeID] = &graph.Edge{
		ID:   edgeID,
		From: graph.Endpoint{Block: producerID, Port: src.OutputPort},
		To:   graph.Endpoint{Block: target, Port: in.ID},
		Role: graph.EdgeDefault,
	}
}

func (c *Compiler) collapseBuses(p *graph.Patch, diags *diag.List) {
	for _, id := range p.SortedBlockIDs() {
		b, ok := p.Blocks[id]
		if !ok || b.Role != graph.RoleBus {
			continue
		}
		inEdges := p.EdgesInto(graph.Endpoint{Block: id, Port: BusInPort})
		if len(inEdges) != 1 {
			diags.Add(diag.Diagnostic{
				Kind: diag.InternalInvariant, Severity: diag.SeverityError,
				Block: string(id), Message: "bus block does not have exactly one input source",
			})
			continue
		}
		source := inEdges[0].From
		outEdges := p.EdgesFrom(graph.Endpoint{Block: id, Port: BusOutPort})
		for _, oe := range outEdges {
			rewired := graph.EdgeID(c.nextID("edge.bus"))
			p.Edges[rewired] = &graph.Edge{ID: rewired, From: source, To: oe.To, Role: oe.Role}
			delete(p.Edges, oe.ID)
		}
		delete(p.Edges, inEdges[0].ID)
		delete(p.Blocks, id)
	}
}

// outputTypeView resolves the declared Type of one output port, including
// the synthetic output of an adapter block.
func (c *Compiler) outputTypeView(p *graph.Patch, ep graph.Endpoint) (gtype.Type, bool) {
	b, ok := p.Blocks[ep.Block]
	if !ok {
		return gtype.Type{}, false
	}
	if b.Type == AdapterBlockType {
		a := b.Params[AdapterParamKey].(gtype.Adapter)
		return gtype.Type{Payload: a.Payload, Unit: a.To, Cardinality: gtype.Elastic}, true
	}
	def, ok := c.Registry.OutputDef(b.Type, ep.Port)
	if !ok {
		return gtype.Type{}, false
	}
	return def.Type, true
}

func (c *Compiler) inputTypeView(p *graph.Patch, ep graph.Endpoint) (gtype.Type, bool) {
	b, ok := p.Blocks[ep.Block]
	if !ok {
		return gtype.Type{}, false
	}
	if b.Type == AdapterBlockType {
		a := b.Params[AdapterParamKey].(gtype.Adapter)
		return gtype.Type{Payload: a.Payload, Unit: a.From, Cardinality: gtype.Elastic}, true
	}
	def, ok := c.Registry.InputDef(b.Type, ep.Port)
	if !ok {
		return gtype.Type{}, false
	}
	return def.Type, true
}

// insertAdapters walks every edge and, where the endpoint units mismatch
// under the same payload, splices in a chain of synthetic adapter blocks.
func (c *Compiler) insertAdapters(p *graph.Patch, diags *diag.List) {
	for _, id := range sortedEdgeIDs(p) {
		e, ok := p.Edges[id]
		if !ok {
			continue
		}
		srcType, ok1 := c.outputTypeView(p, e.From)
		dstType, ok2 := c.inputTypeView(p, e.To)
		if !ok1 || !ok2 {
			continue
		}
		if srcType.Payload != dstType.Payload {
			diags.Add(diag.Diagnostic{
				Kind: diag.TypeMismatch, Severity: diag.SeverityError,
				Edge:    string(e.ID),
				Message: fmt.Sprintf("payload mismatch: %s vs %s", srcType.Payload, dstType.Payload),
			})
			continue
		}
		if srcType.Unit == dstType.Unit {
			continue
		}
		probeFrom := gtype.Type{Payload: srcType.Payload, Unit: srcType.Unit, Cardinality: gtype.Signal}
		probeTo := gtype.Type{Payload: dstType.Payload, Unit: dstType.Unit, Cardinality: gtype.Signal}
		path, ok := c.Adapters.FindPath(probeFrom, probeTo)
		if !ok {
			diags.Add(diag.Diagnostic{
				Kind: diag.TypeMismatch, Severity: diag.SeverityError,
				Edge:    string(e.ID),
				Message: fmt.Sprintf("no unit adapter from %s to %s", srcType.Unit, dstType.Unit),
			})
			continue
		}
		c.spliceAdapters(p, e, path)
	}
}

func (c *Compiler) spliceAdapters(p *graph.Patch, e *graph.Edge, path []gtype.Adapter) {
	from := e.From
	for _, a := range path {
		blockID := graph.BlockID(c.nextID("adapter." + a.Name))
		p.Blocks[blockID] = &graph.Block{
			ID: blockID, Type: AdapterBlockType, DisplayName: string(blockID),
			Params: map[string]any{AdapterParamKey: a}, Role: graph.RoleNormal,
		}
		edgeID := graph.EdgeID(c.nextID("edge.adapter"))
		p.Edges[edgeID] = &graph.Edge{
			ID: edgeID, From: from,
			To:   graph.Endpoint{Block: blockID, Port: AdapterInPort},
			Role: graph.EdgeAdapter,
		}
		from = graph.Endpoint{Block: blockID, Port: AdapterOutPort}
	}
	finalEdge := graph.EdgeID(c.nextID("edge.adapter"))
	p.Edges[finalEdge] = &graph.Edge{ID: finalEdge, From: from, To: e.To, Role: graph.EdgeAdapter}
	delete(p.Edges, e.ID)
}

// resolveTypes fills the Snapshot's Provenance map for every input port
// from the already-solved cardinalities and the final (post-adapter)
// edges.
func (c *Compiler) resolveTypes(p *graph.Patch, resolved map[graph.Endpoint]gtype.Type, snap *Snapshot) {
	for _, id := range p.SortedBlockIDs() {
		b := p.Blocks[id]
		def, ok := c.Registry.Lookup(b.Type)
		if !ok {
			continue
		}
		for _, in := range def.Inputs {
			ep := graph.Endpoint{Block: id, Port: in.ID}
			edges := p.EdgesInto(ep)
			if len(edges) == 0 {
				snap.Provenance[ep] = PortProvenance{Port: ep, Provenance: ProvUnresolved}
				continue
			}
			e := edges[0]
			prov := ProvUserEdge
			switch e.Role {
			case graph.EdgeDefault:
				prov = ProvDefaultSource
			case graph.EdgeAdapter:
				prov = ProvAdapter
			}
			rt, ok := resolved[e.From]
			if !ok {
				rt, _ = c.outputTypeView(p, e.From)
			}
			snap.Provenance[ep] = PortProvenance{Port: ep, ResolvedType: rt, Provenance: prov}
		}
	}
}

func sortedEdgeIDs(p *graph.Patch) []graph.EdgeID {
	ids := make([]graph.EdgeID, 0, len(p.Edges))
	for id := range p.Edges {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
