// Package stdblocks is a small reference block library: enough block
// types to exercise every lowering and scheduling path the backend
// compiler supports (a domain, field materialization, unit-delay state,
// a scalar integrator cycle, and a render sink), used by the demo patch
// and the package test suites. An authoring environment built on this
// engine would register a much larger catalog the same way.
package stdblocks

import (
	"github.com/fieldgraph/engine/gtype"
	"github.com/fieldgraph/engine/registry"
)

const (
	Const            registry.BlockType = "Const"
	Time             registry.BlockType = "Time"
	Sum              registry.BlockType = "Sum"
	PhaseRing        registry.BlockType = "PhaseRing"
	GoldenAnglePhase registry.BlockType = "GoldenAnglePhase"
	UnitDelayField   registry.BlockType = "UnitDelayField"
	PhaseToVec2      registry.BlockType = "PhaseToVec2"
	PhaseToColor     registry.BlockType = "PhaseToColor"
	CircleField      registry.BlockType = "CircleField"
)

func signal(p gtype.Payload, u gtype.Unit) gtype.Type {
	return gtype.Type{Payload: p, Unit: u, Cardinality: gtype.Signal}
}

func elastic(p gtype.Payload, u gtype.Unit) gtype.Type {
	return gtype.Type{Payload: p, Unit: u, Cardinality: gtype.Elastic}
}

func field(p gtype.Payload, u gtype.Unit) gtype.Type {
	return gtype.Type{Payload: p, Unit: u, Cardinality: gtype.Field}
}

func static(p gtype.Payload) gtype.Type {
	return gtype.Type{Payload: p, Cardinality: gtype.Static}
}

// Defs returns every block definition this package registers.
func Defs() []registry.BlockDef {
	return []registry.BlockDef{
		{
			Type:    Const,
			Outputs: []registry.OutputPortDef{{ID: "out", Label: "Value", Type: signal(gtype.Float, gtype.UnitScalar)}},
			Params:  []registry.ParamDef{{Name: "value", Kind: registry.ParamFloat, Default: 0.0}},
		},
		{
			// Time holds elapsed seconds as scalar state. An author wires
			// its own "t" output plus a dt source into an adder feeding
			// "next" back in, the same way a unit delay closes any other
			// integrator cycle; Time itself performs no arithmetic.
			Type: Time,
			Inputs: []registry.InputPortDef{
				{ID: "next", Label: "Next value", Type: signal(gtype.Float, gtype.UnitScalar)},
			},
			Outputs: []registry.OutputPortDef{
				{ID: "t", Label: "Elapsed", Type: signal(gtype.Float, gtype.UnitScalar)},
			},
			State:           registry.StateScalar,
			StateOutput:     "t",
			StateWriteInput: "next",
			StateRoleTag:    "t",
		},
		{
			Type: Sum,
			Inputs: []registry.InputPortDef{
				{ID: "terms", Label: "Terms", Type: elastic(gtype.Float, gtype.UnitScalar), Combine: registry.CombineSum},
			},
			Outputs: []registry.OutputPortDef{{ID: "out", Label: "Sum", Type: elastic(gtype.Float, gtype.UnitScalar)}},
		},
		{
			Type:    PhaseRing,
			Outputs: []registry.OutputPortDef{{ID: "ring", Label: "Ring", Type: static(gtype.Int), IsDomain: true}},
			Params:  []registry.ParamDef{{Name: "count", Kind: registry.ParamInt, Default: 12}},
			DomainContinuity: registry.ContinuityByID,
		},
		{
			Type: GoldenAnglePhase,
			Inputs: []registry.InputPortDef{
				{ID: "domain", Label: "Domain", Type: static(gtype.Int)},
			},
			Outputs:         []registry.OutputPortDef{{ID: "phase", Label: "Phase", Type: field(gtype.Float, gtype.UnitPhase01)}},
			DomainInputPort: "domain",
		},
		{
			Type: UnitDelayField,
			Inputs: []registry.InputPortDef{
				{ID: "domain", Label: "Domain", Type: static(gtype.Int)},
				{ID: "in", Label: "In", Type: field(gtype.Float, gtype.UnitPhase01)},
			},
			Outputs:         []registry.OutputPortDef{{ID: "prev", Label: "Previous", Type: field(gtype.Float, gtype.UnitPhase01)}},
			DomainInputPort: "domain",
			State:           registry.StateFieldLane,
			StateOutput:     "prev",
			StateWriteInput: "in",
			StateRoleTag:    "delay",
		},
		{
			Type:    PhaseToVec2,
			Inputs:  []registry.InputPortDef{{ID: "phase", Label: "Phase", Type: field(gtype.Float, gtype.UnitPhase01)}},
			Outputs: []registry.OutputPortDef{{ID: "pos", Label: "Position", Type: field(gtype.Vec2, gtype.UnitNone)}},
		},
		{
			Type:    PhaseToColor,
			Inputs:  []registry.InputPortDef{{ID: "phase", Label: "Phase", Type: field(gtype.Float, gtype.UnitPhase01)}},
			Outputs: []registry.OutputPortDef{{ID: "color", Label: "Color", Type: field(gtype.Color, gtype.UnitNone)}},
		},
		{
			Type: CircleField,
			Role: registry.RoleRenderSink,
			Inputs: []registry.InputPortDef{
				{ID: "domain", Label: "Domain", Type: static(gtype.Int)},
				{ID: "position", Label: "Position", Type: elastic(gtype.Vec2, gtype.UnitNone)},
				{ID: "color", Label: "Color", Type: elastic(gtype.Color, gtype.UnitNone)},
				{ID: "scale", Label: "Scale", Type: elastic(gtype.Float, gtype.UnitScalar),
					Default: &registry.DefaultSource{ProducerType: Const, ProducerParams: map[string]any{"value": 0.05}, OutputPort: "out"}},
			},
			RenderPrimitive:    "circle",
			RenderPositionPort: "position",
			RenderColorPort:    "color",
			RenderScalePort:    "scale",
			RenderInstancePort: "domain",
		},
	}
}

// Register adds every Defs() entry to reg.
func Register(reg *registry.Registry) {
	for _, d := range Defs() {
		reg.Register(d)
	}
}
