// Package backend lowers a frontend.Snapshot's normalized patch into a
// ValueExprDAG, allocates value and state slots, assigns stable state
// identities, and builds the two-phase frame schedule. It runs only when
// the snapshot is backendReady.
package backend

import (
	"github.com/fieldgraph/engine/graph"
	"github.com/fieldgraph/engine/gtype"
	"github.com/fieldgraph/engine/registry"
)

// InstanceID names a lane-domain (a count of elements fields are bound
// to). It is the BlockID of the domain-source block that produces it.
type InstanceID string

// StateID stably identifies one state slot across recompiles. It is
// derived from a block's stable graph.BlockID plus the block type's
// registered StateRoleTag — never from a slot index.
type StateID string

func stateID(blockID graph.BlockID, roleTag string) StateID {
	return StateID(string(blockID) + "::" + roleTag)
}

// ExprID indexes one node of the ValueExprDAG.
type ExprID int

// ExprKind tags which evaluation rule an Expr follows.
type ExprKind int

const (
	ExprOp ExprKind = iota
	ExprReduce
	ExprDomain
	ExprStateRead
)

// Expr is one pure node of the value-expression DAG. Edges are by Args
// ordinal index; the DAG has no cycles (unit-delay and other
// state-holding blocks break cycles by reading a StateRead node instead
// of their own input).
type Expr struct {
	ID            ExprID
	Kind          ExprKind
	Block         graph.BlockID
	Port          registry.PortID
	Payload       gtype.Payload
	Cardinality   gtype.Cardinality
	Args          []ExprID
	Params        map[string]any
	BoundInstance InstanceID

	StateID StateID // Kind == ExprStateRead

	Op Op // Kind == ExprOp | ExprReduce | ExprDomain

	// ContinuityStrategy is only meaningful on an ExprDomain: the
	// lane-matching strategy continuity uses when this instance resizes,
	// copied from the domain block's registry.BlockDef.DomainContinuity.
	ContinuityStrategy registry.ContinuityStrategy
}

// SlotID indexes one cell of the per-frame value-slot arena.
type SlotID int

// ValueSlot is a per-frame storage cell, re-initialized every frame.
type ValueSlot struct {
	ID          SlotID
	Expr        ExprID
	Payload     gtype.Payload
	Cardinality gtype.Cardinality
	Instance    InstanceID // only meaningful when Cardinality == Field
}

// StateSlot is a persistent storage cell surviving across frames and
// across recompiles, keyed by StateID rather than by index.
type StateSlot struct {
	ID       StateID
	Kind     registry.StateKind
	Payload  gtype.Payload
	Instance InstanceID // only meaningful when Kind == StateFieldLane
	Block    graph.BlockID
	// InitialValue seeds a fresh lane or a session with no prior value
	// for this StateID.
	InitialValue []float64
}

// Phase is which half of the two-phase frame schedule a Step belongs to.
type Phase int

const (
	PhasePreFrame Phase = iota
	Phase1
	PhaseBoundary
	Phase2
	PhasePostFrame
)

func (p Phase) String() string {
	switch p {
	case PhasePreFrame:
		return "preFrame"
	case Phase1:
		return "phase1"
	case PhaseBoundary:
		return "phaseBoundary"
	case Phase2:
		return "phase2"
	case PhasePostFrame:
		return "postFrame"
	default:
		return "phase?"
	}
}

// StepKind tags which schedule operation a Step performs.
type StepKind int

const (
	StepEvalSignal StepKind = iota
	StepMaterializeField
	StepReadState
	StepWriteState
	StepWriteFieldState
	StepContinuityMapBuild
	StepContinuityApply
	StepRender
)

func (k StepKind) String() string {
	switch k {
	case StepEvalSignal:
		return "evalSignal"
	case StepMaterializeField:
		return "materializeField"
	case StepReadState:
		return "readState"
	case StepWriteState:
		return "writeState"
	case StepWriteFieldState:
		return "writeFieldState"
	case StepContinuityMapBuild:
		return "continuityMapBuild"
	case StepContinuityApply:
		return "continuityApply"
	case StepRender:
		return "render"
	default:
		return "step?"
	}
}

// Step is one scheduled instruction of a CompiledProgram.
type Step struct {
	Phase    Phase
	Kind     StepKind
	Expr     ExprID
	Slot     SlotID
	StateID  StateID
	Instance InstanceID
	Render   *RenderPassSpec
	Block    graph.BlockID
	Port     registry.PortID
}

// RenderPassSpec is the compile-time description of one render-sink
// block: which value slots feed which render-IR role, and which instance
// supplies the pass's count.
type RenderPassSpec struct {
	Block        graph.BlockID
	Primitive    string
	Instance     InstanceID
	PositionSlot SlotID
	ColorSlot    SlotID
	ShapeSlot    SlotID
	ScaleSlot    SlotID
}

const NoSlot SlotID = -1

// DebugIndex is the bidirectional map set the step-debugger and the
// authoring UI use to turn slot/step indices back into block/port
// identity.
type DebugIndex struct {
	BlockToSlots map[graph.BlockID][]SlotID
	SlotToPort   map[SlotID]graph.Endpoint
	StepToBlock  map[int]graph.BlockID
	DisplayNames map[graph.BlockID]string
}

// CompiledProgram is the immutable output of the backend compiler. It is
// owned by the runtime executor once emitted and never mutated again.
type CompiledProgram struct {
	PatchRevision uint64
	Exprs         []Expr
	ValueSlots    []ValueSlot
	StateSlots    []StateSlot
	Instances     map[InstanceID]ExprID
	InstanceOrder []InstanceID
	Schedule      []Step
	Debug         *DebugIndex
}
