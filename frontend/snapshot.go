// Package frontend normalizes an author Patch, resolves types and
// cardinalities, inserts unit adapters, and analyzes legal/illegal
// cycles. It never mutates the Patch it is given; every pass reads one
// snapshot and produces the next.
package frontend

import (
	"github.com/fieldgraph/engine/diag"
	"github.com/fieldgraph/engine/graph"
	"github.com/fieldgraph/engine/gtype"
)

// Provenance explains how a port's resolved type was derived.
type Provenance int

const (
	ProvUserEdge Provenance = iota
	ProvDefaultSource
	ProvAdapter
	ProvUnresolved
)

func (p Provenance) String() string {
	switch p {
	case ProvUserEdge:
		return "userEdge"
	case ProvDefaultSource:
		return "defaultSource"
	case ProvAdapter:
		return "adapter"
	default:
		return "unresolved"
	}
}

// PortProvenance records how one input port's effective value was
// resolved.
type PortProvenance struct {
	Port         graph.Endpoint
	ResolvedType gtype.Type
	Provenance   Provenance
}

// CycleSummary reports every strongly connected component of size > 1 (or
// with a self-loop) in the post-normalization dependency graph, and
// whether each is legal (broken by at least one state-holding block).
type CycleSummary struct {
	Components []Component
}

// Component is one strongly connected component.
type Component struct {
	Blocks []graph.BlockID
	Legal  bool
}

// Snapshot is the output of one frontend compile: a normalized patch plus
// everything the authoring UI and the backend need.
type Snapshot struct {
	PatchRevision uint64
	Normalized    *graph.Patch
	Provenance    map[graph.Endpoint]PortProvenance
	// ResolvedOutputs is the cardinality-solved type of every output
	// port in Normalized, keyed by Endpoint. The backend compiler reads
	// it directly instead of re-running cardinality solving.
	ResolvedOutputs map[graph.Endpoint]gtype.Type
	Cycles          CycleSummary
	Diagnostics     diag.List
	BackendReady    bool
}
