package backend

import "github.com/fieldgraph/engine/registry"

// OpKind is the evaluation shape a registered Op follows.
type OpKind int

const (
	OpScalarKind OpKind = iota
	OpFieldKind
	OpReduceKind
	OpDomainKind
)

// ScalarFunc computes a block's scalar output from its already-resolved
// input values (one lane-arity slice per declared input, in port order).
type ScalarFunc func(params map[string]any, args [][]float64) []float64

// LaneFunc computes one lane of a field output. args holds, per declared
// input in port order, the value for this specific lane: a field input
// contributes its lane's slice, a broadcast (Signal) input contributes
// its single value repeated for every lane.
type LaneFunc func(params map[string]any, lane int, args [][]float64) []float64

// ReduceFunc folds an entire field buffer (laneCount lanes of the given
// arity) down to one lane-arity scalar value.
type ReduceFunc func(params map[string]any, laneCount, arity int, field []float64) []float64

// DomainFunc computes an instance's element count for this frame.
type DomainFunc func(params map[string]any, args [][]float64) int

// LaneKeyFunc derives a stable per-lane identity string for a domain's n
// lanes this frame, used by the continuity package to carry field-lane
// state across a resize instead of resetting it. A nil LaneKeyFunc means
// the domain has no author-visible lane identity and continuity falls
// back to positional (index) matching.
type LaneKeyFunc func(params map[string]any, args [][]float64, n int) []string

// Op is the behavior a block registers for its primary computed output.
// The block registry (package registry) only ever describes port/param
// shape; Op is supplied separately by whoever builds the backend
// compiler — matching the donor's tagged-variant dispatch, where
// behavior and metadata are registered independently of each other.
type Op struct {
	Kind     OpKind
	Scalar   ScalarFunc
	Lane     LaneFunc
	Reduce   ReduceFunc
	Domain   DomainFunc
	LaneKeys LaneKeyFunc
}

// OpTable maps a block type to the Op that computes its primary output.
// State-holding and render-sink block types never need an entry for their
// state/render role; they may still register one if they compute another
// ordinary output (not exercised by the reference block set).
type OpTable map[registry.BlockType]Op
