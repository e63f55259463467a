// Package graph holds the author-facing Patch data model: blocks, edges,
// and the revision counter that labels every compile output and runtime
// event for coherence checks.
package graph

import (
	"fmt"
	"sort"

	"github.com/fieldgraph/engine/diag"
	"github.com/fieldgraph/engine/registry"
)

// BlockID stably identifies one block instance across recompiles; it is
// the key continuity uses to migrate state.
type BlockID string

// EdgeID identifies one edge within a single Patch snapshot.
type EdgeID string

// Role marks a block's special treatment in normalization.
type Role int

const (
	RoleNormal Role = iota
	RoleTimeRoot
	RoleBus
)

// Block is one node in the author's graph.
type Block struct {
	ID          BlockID
	Type        registry.BlockType
	DisplayName string
	Params      map[string]any
	Role        Role
}

// Clone returns a deep copy of b.
func (b *Block) Clone() *Block {
	cp := *b
	cp.Params = make(map[string]any, len(b.Params))
	for k, v := range b.Params {
		cp.Params[k] = v
	}
	return &cp
}

// EdgeRole distinguishes author-visible edges from compiler-synthesized
// ones. Only EdgeUser edges are shown to the authoring UI.
type EdgeRole int

const (
	EdgeUser EdgeRole = iota
	EdgeDefault
	EdgeAdapter
)

// Endpoint names one port on one block.
type Endpoint struct {
	Block BlockID
	Port  registry.PortID
}

func (e Endpoint) String() string {
	return fmt.Sprintf("%s.%s", e.Block, e.Port)
}

// Edge connects an output port to an input port.
type Edge struct {
	ID   EdgeID
	From Endpoint
	To   Endpoint
	Role EdgeRole
}

func (e *Edge) Clone() *Edge {
	cp := *e
	return &cp
}

// Patch is the whole graph plus its revision. It is owned by the
// authoring layer; the compiler only ever reads a Clone of it.
type Patch struct {
	Blocks   map[BlockID]*Block
	Edges    map[EdgeID]*Edge
	Revision uint64
}

// New returns an empty Patch at revision 0.
func New() *Patch {
	return &Patch{
		Blocks: make(map[BlockID]*Block),
		Edges:  make(map[EdgeID]*Edge),
	}
}

// AddBlock inserts b and bumps the revision.
func (p *Patch) AddBlock(b *Block) {
	p.Blocks[b.ID] = b
	p.Revision++
}

// AddEdge inserts e and bumps the revision.
func (p *Patch) AddEdge(e *Edge) {
	p.Edges[e.ID] = e
	p.Revision++
}

// Clone returns a deep copy at the same revision, safe for a compiler
// snapshot to read without racing the authoring layer's next mutation.
func (p *Patch) Clone() *Patch {
	cp := &Patch{
		Blocks:   make(map[BlockID]*Block, len(p.Blocks)),
		Edges:    make(map[EdgeID]*Edge, len(p.Edges)),
		Revision: p.Revision,
	}
	for id, b := range p.Blocks {
		cp.Blocks[id] = b.Clone()
	}
	for id, e := range p.Edges {
		cp.Edges[id] = e.Clone()
	}
	return cp
}

// EdgesInto returns every edge whose To endpoint is to, in a stable order.
func (p *Patch) EdgesInto(to Endpoint) []*Edge {
	var out []*Edge
	for _, e := range p.Edges {
		if e.To == to {
			out = append(out, e)
		}
	}
	sortEdgesByID(out)
	return out
}

// EdgesFrom returns every edge whose From endpoint is from, in a stable
// order.
func (p *Patch) EdgesFrom(from Endpoint) []*Edge {
	var out []*Edge
	for _, e := range p.Edges {
		if e.From == from {
			out = append(out, e)
		}
	}
	sortEdgesByID(out)
	return out
}

func sortEdgesByID(edges []*Edge) {
	sort.Slice(edges, func(i, j int) bool { return edges[i].ID < edges[j].ID })
}

// RemoveEdge deletes an edge by ID.
func (p *Patch) RemoveEdge(id EdgeID) {
	delete(p.Edges, id)
	p.Revision++
}

// SortedBlockIDs returns every block ID in a stable order, used wherever
// compiler passes must iterate deterministically.
func (p *Patch) SortedBlockIDs() []BlockID {
	ids := make([]BlockID, 0, len(p.Blocks))
	for id := range p.Blocks {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Validate checks patch-level invariants that do not require the type
// system: displayName uniqueness and that every edge references blocks
// and ports that exist in reg.
func (p *Patch) Validate(reg *registry.Registry) diag.List {
	var out diag.List

	seenNames := make(map[string]BlockID)
	for _, id := range p.SortedBlockIDs() {
		b := p.Blocks[id]
		if other, dup := seenNames[b.DisplayName]; dup {
			out.Add(diag.Diagnostic{
				Kind:     diag.DuplicateDisplayName,
				Severity: diag.SeverityError,
				Block:    string(b.ID),
				Message:  fmt.Sprintf("displayName %q already used by block %s", b.DisplayName, other),
			})
			continue
		}
		seenNames[b.DisplayName] = b.ID
	}

	for _, eid := range sortedEdgeIDs(p) {
		e := p.Edges[eid]
		fromBlock, ok := p.Blocks[e.From.Block]
		if !ok {
			out.Add(diag.Diagnostic{Kind: diag.InternalInvariant, Severity: diag.SeverityError, Edge: string(e.ID), Message: "edge source block missing"})
			continue
		}
		toBlock, ok := p.Blocks[e.To.Block]
		if !ok {
			out.Add(diag.Diagnostic{Kind: diag.InternalInvariant, Severity: diag.SeverityError, Edge: string(e.ID), Message: "edge target block missing"})
			continue
		}
		if _, ok := reg.OutputDef(fromBlock.Type, e.From.Port); !ok {
			out.Add(diag.Diagnostic{Kind: diag.InternalInvariant, Severity: diag.SeverityError, Edge: string(e.ID), Message: "edge source port undeclared"})
		}
		if _, ok := reg.InputDef(toBlock.Type, e.To.Port); !ok {
			out.Add(diag.Diagnostic{Kind: diag.InternalInvariant, Severity: diag.SeverityError, Edge: string(e.ID), Message: "edge target port undeclared"})
		}
	}

	return out
}

func sortedEdgeIDs(p *Patch) []EdgeID {
	ids := make([]EdgeID, 0, len(p.Edges))
	for id := range p.Edges {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
