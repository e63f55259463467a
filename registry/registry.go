// Package registry holds block definitions: the port, param and role
// metadata the compiler needs. It carries no behavior — the core is
// parametric over the registry, the way the donor's backend dispatches on
// a block-type string without owning any particular block's math.
package registry

import (
	"fmt"

	"github.com/fieldgraph/engine/gtype"
)

// BlockType names a block definition, e.g. "Const" or "FieldGoldenAngle".
type BlockType string

// PortID names an input or output port on a block.
type PortID string

// CombineMode describes how multiple incoming edges on one input port are
// merged into a single effective value.
type CombineMode int

const (
	CombineSingle CombineMode = iota
	CombineSum
	CombineProduct
	CombineFirst
)

// Role marks a block's special treatment by the frontend/backend.
type Role int

const (
	RoleNormal Role = iota
	RoleTimeRoot
	RoleBus
	RoleRenderSink
)

// StateKind marks a block as owning a persistent state slot.
type StateKind int

const (
	StateNone StateKind = iota
	StateScalar
	StateFieldLane
)

// ContinuityStrategy controls how the continuity package maps a domain's
// lanes across a resize. Only meaningful on a block declaring a domain
// output (an OutputPortDef with IsDomain set).
type ContinuityStrategy int

const (
	// ContinuityByID matches lanes by an author-visible identity key the
	// domain's Op.LaneKeys derives each frame (e.g. a stable per-element
	// id); unmatched new lanes start fresh, unmatched old lanes vanish.
	ContinuityByID ContinuityStrategy = iota
	// ContinuityPrefix carries forward lane i's state to new lane i for
	// every i below the shorter of the old and new lane counts.
	ContinuityPrefix
	// ContinuityNone never carries state across a resize; every lane
	// starts from the state slot's InitialValue after any resize.
	ContinuityNone
)

// DefaultSource is the synthetic producer the frontend instantiates for
// an input port that has no user edge.
type DefaultSource struct {
	ProducerType   BlockType
	ProducerParams map[string]any
	OutputPort     PortID
}

// InputPortDef declares one input port.
type InputPortDef struct {
	ID      PortID
	Label   string
	Type    gtype.Type
	Combine CombineMode
	Default *DefaultSource
}

// OutputPortDef declares one output port.
type OutputPortDef struct {
	ID    PortID
	Label string
	Type  gtype.Type
	// IsDomain marks an output that produces an instance-count handle
	// (Cardinality Static); fields bind to it by InstanceID = BlockID.
	IsDomain bool
}

// ParamKind is the opaque shape of a block parameter.
type ParamKind string

const (
	ParamFloat ParamKind = "float"
	ParamInt   ParamKind = "int"
	ParamEnum  ParamKind = "enum"
	ParamBool  ParamKind = "bool"
)

// ParamDef declares one block parameter.
type ParamDef struct {
	Name    string
	Kind    ParamKind
	Default any
}

// BlockDef is the full metadata the compiler needs for one block type.
type BlockDef struct {
	Type    BlockType
	Inputs  []InputPortDef
	Outputs []OutputPortDef
	Params  []ParamDef
	Role    Role

	// State marks this block type as a persistent-state node: it breaks
	// dependency cycles the way a unit delay does. StateOutput exposes
	// last frame's value; StateWriteInput's resolved value is written
	// back to state during Phase 2. StateRoleTag combines with a block's
	// stable ID to form its stateId (the backend builds backend.StateID
	// values as "<blockID>::<roleTag>").
	State           StateKind
	StateOutput     PortID
	StateWriteInput PortID
	StateRoleTag    string

	// DomainInputPort names the input port (if any) whose source block
	// is a domain producer (an output with IsDomain set) supplying the
	// instance this block's Field output(s) or field-lane State are
	// bound to. Empty for blocks whose Field cardinality is inherited
	// from an elastic Field input instead (ordinary elementwise ops).
	DomainInputPort PortID

	// DomainContinuity selects the lane-matching strategy continuity uses
	// when this block's domain output resizes between frames. Only
	// meaningful on a block with a domain output (see OutputPortDef.IsDomain).
	DomainContinuity ContinuityStrategy

	// RenderSink fields are only meaningful when Role == RoleRenderSink.
	// They name which declared input ports feed each render-IR role.
	// Empty PortIDs mean that role is unused by this sink.
	RenderPrimitive    string
	RenderPositionPort PortID
	RenderColorPort    PortID
	RenderShapePort    PortID
	RenderScalePort    PortID
	RenderInstancePort PortID
}

func (d BlockDef) input(id PortID) (InputPortDef, bool) {
	for _, in := range d.Inputs {
		if in.ID == id {
			return in, true
		}
	}
	return InputPortDef{}, false
}

func (d BlockDef) output(id PortID) (OutputPortDef, bool) {
	for _, out := range d.Outputs {
		if out.ID == id {
			return out, true
		}
	}
	return OutputPortDef{}, false
}

// Registry is the authority on which block types exist and what ports and
// params they declare. It never invents ports for the compiler.
type Registry struct {
	defs map[BlockType]BlockDef
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{defs: make(map[BlockType]BlockDef)}
}

// Register adds a block definition. It panics on a duplicate type, on a
// default source referencing a producer type that is not registered yet
// or an output port that producer type doesn't declare, and on State
// ports that are not declared — all programmer errors in the registry
// build, not author errors the diagnostics system should surface.
func (r *Registry) Register(def BlockDef) {
	if _, exists := r.defs[def.Type]; exists {
		panic(fmt.Sprintf("registry: duplicate block type %q", def.Type))
	}
	for _, in := range def.Inputs {
		if in.Default == nil {
			continue
		}
		producer, ok := r.defs[in.Default.ProducerType]
		if _, declared := producer.output(in.Default.OutputPort); !ok || !declared {
			panic(fmt.Sprintf("registry: %q input %q defaults to undeclared output %q of %q", def.Type, in.ID, in.Default.OutputPort, in.Default.ProducerType))
		}
	}
	if def.State != StateNone {
		if _, ok := def.output(def.StateOutput); !ok {
			panic(fmt.Sprintf("registry: %q declares State but StateOutput %q is not an output port", def.Type, def.StateOutput))
		}
		if _, ok := def.input(def.StateWriteInput); !ok {
			panic(fmt.Sprintf("registry: %q declares State but StateWriteInput %q is not an input port", def.Type, def.StateWriteInput))
		}
	}
	r.defs[def.Type] = def
}

// Lookup returns the definition for a block type.
func (r *Registry) Lookup(t BlockType) (BlockDef, bool) {
	d, ok := r.defs[t]
	return d, ok
}

// MustLookup is Lookup but panics on a missing type; used once a patch has
// already been validated against this registry.
func (r *Registry) MustLookup(t BlockType) BlockDef {
	d, ok := r.Lookup(t)
	if !ok {
		panic(fmt.Sprintf("registry: unknown block type %q", t))
	}
	return d
}

// InputDef looks up one input port's declaration.
func (r *Registry) InputDef(t BlockType, p PortID) (InputPortDef, bool) {
	d, ok := r.Lookup(t)
	if !ok {
		return InputPortDef{}, false
	}
	return d.input(p)
}

// OutputDef looks up one output port's declaration.
func (r *Registry) OutputDef(t BlockType, p PortID) (OutputPortDef, bool) {
	d, ok := r.Lookup(t)
	if !ok {
		return OutputPortDef{}, false
	}
	return d.output(p)
}

// Types returns every registered block type, for diagnostics and tests.
func (r *Registry) Types() []BlockType {
	out := make([]BlockType, 0, len(r.defs))
	for t := range r.defs {
		out = append(out, t)
	}
	return out
}
