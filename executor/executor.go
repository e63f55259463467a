// Package executor runs one CompiledProgram's two-phase schedule per
// frame against a runtime.Runtime, producing a render description. It
// owns no compile-time knowledge: every evaluation rule it follows comes
// from the Expr/Step data the backend already resolved.
package executor

import (
	"fmt"

	"github.com/fieldgraph/engine/backend"
	"github.com/fieldgraph/engine/continuity"
	"github.com/fieldgraph/engine/diag"
	"github.com/fieldgraph/engine/gtype"
	"github.com/fieldgraph/engine/runtime"
)

// RenderFrame is the per-frame render description the executor produces:
// one RenderPass per render-sink block reached by the compiled program.
type RenderFrame struct {
	Passes []RenderPass
}

// RenderPass is one render-sink block's resolved draw data for this
// frame. Position/Color/Shape/Scale are laid out per-lane at the role's
// declared arity; a nil slice means that sink never wired that role.
type RenderPass struct {
	Block     string
	Primitive string
	Instance  string
	Count     int
	Position  []float64
	Color     []float64
	Shape     []float64
	Scale     []float64
}

// Executor drives a runtime.Runtime one frame at a time, using a
// continuity.Tracker to carry field-lane state across instance resizes.
type Executor struct {
	Runtime *runtime.Runtime
	Tracker *continuity.Tracker

	pendingMappings map[backend.InstanceID]continuity.Mapping
}

// New returns an Executor over rt, with a fresh continuity history.
func New(rt *runtime.Runtime) *Executor {
	return &Executor{Runtime: rt, Tracker: continuity.NewTracker()}
}

// Frame runs every scheduled Step of the runtime's installed program once
// and returns the resulting render description. An error here means no
// program is installed or the buffer pool ended the frame unbalanced (the
// latter an executor or lowering bug,
// never an author error (those are diag.Diagnostics caught at compile
// time and never reach Frame).
func (ex *Executor) Frame() (RenderFrame, error) {
	prog := ex.Runtime.Program
	if prog == nil {
		return RenderFrame{}, fmt.Errorf("executor: no program installed")
	}

	arena := ex.BeginFrame(prog)
	var frame RenderFrame
	for _, step := range prog.Schedule {
		if pass := ex.ExecuteStep(prog, arena, step); pass != nil {
			frame.Passes = append(frame.Passes, *pass)
		}
	}
	return frame, ex.EndFrame(arena)
}

// BeginFrame acquires a fresh value arena for prog and resets the
// per-frame continuity bookkeeping. Callers stepping a program one Step
// at a time (package debug) call this once before the first ExecuteStep
// of a frame.
func (ex *Executor) BeginFrame(prog *backend.CompiledProgram) *runtime.Arena {
	arena := runtime.NewArena(ex.Runtime.Pool)
	arena.Reset(prog, ex.Runtime.LaneCount)
	ex.pendingMappings = make(map[backend.InstanceID]continuity.Mapping)
	return arena
}

// ExecuteStep runs exactly one schedule Step against arena, returning a
// RenderPass if the step was a StepRender.
func (ex *Executor) ExecuteStep(prog *backend.CompiledProgram, arena *runtime.Arena, step backend.Step) *RenderPass {
	switch step.Kind {
	case backend.StepReadState:
		arena.Set(step.Slot, ex.Runtime.State.Read(step.StateID))

	case backend.StepEvalSignal:
		ex.evalSignal(prog, arena, step)

	case backend.StepMaterializeField:
		ex.materializeField(prog, arena, step)

	case backend.StepContinuityMapBuild:
		ex.buildContinuity(prog, arena, step.Instance)

	case backend.StepContinuityApply:
		ex.applyContinuity(step.Instance)

	case backend.StepWriteState, backend.StepWriteFieldState:
		ex.Runtime.State.Write(step.StateID, arena.Get(step.Slot))

	case backend.StepRender:
		pass := buildPass(step.Render, arena, ex.Runtime.LaneCount(step.Render.Instance))
		return &pass
	}
	return nil
}

// EndFrame releases arena's buffers back to the pool and reports whether
// the frame balanced.
func (ex *Executor) EndFrame(arena *runtime.Arena) error {
	arena.Release()
	if !ex.Runtime.Pool.Balanced() {
		d := diag.Diagnostic{
			Kind: diag.BufferPoolLeak, Severity: diag.SeverityFatal,
			Message: fmt.Sprintf("%d buffers outstanding after frame", ex.Runtime.Pool.Outstanding()),
		}
		return fmt.Errorf("executor: %s", d.String())
	}
	return nil
}

// ValueAt returns the current value held in a value slot, for the
// step-debugger and anomaly checks. It must only be called between
// BeginFrame and EndFrame.
func (ex *Executor) ValueAt(arena *runtime.Arena, slot backend.SlotID) []float64 {
	return arena.Get(slot)
}

func (ex *Executor) evalSignal(prog *backend.CompiledProgram, arena *runtime.Arena, step backend.Step) {
	e := prog.Exprs[step.Expr]
	args := make([][]float64, len(e.Args))
	for i, a := range e.Args {
		args[i] = arena.Get(prog.ValueSlots[a].ID)
	}

	var out []float64
	switch e.Kind {
	case backend.ExprDomain:
		n := e.Op.Domain(e.Params, args)
		if n < 0 {
			n = 0
		}
		ex.Runtime.SetLaneCount(backend.InstanceID(e.Block), n)
		out = []float64{float64(n)}
	case backend.ExprReduce:
		fieldArity := prog.Exprs[e.Args[0]].Payload.Arity()
		laneCount := 0
		if fieldArity > 0 {
			laneCount = len(args[0]) / fieldArity
		}
		out = e.Op.Reduce(e.Params, laneCount, fieldArity, args[0])
	default:
		out = e.Op.Scalar(e.Params, args)
	}
	arena.Set(step.Slot, out)
}

func (ex *Executor) materializeField(prog *backend.CompiledProgram, arena *runtime.Arena, step backend.Step) {
	e := prog.Exprs[step.Expr]
	n := ex.Runtime.LaneCount(e.BoundInstance)
	outArity := e.Payload.Arity()
	dst := arena.Get(step.Slot)

	argBufs := make([][]float64, len(e.Args))
	argIsField := make([]bool, len(e.Args))
	argArity := make([]int, len(e.Args))
	for i, a := range e.Args {
		argExpr := prog.Exprs[a]
		argBufs[i] = arena.Get(prog.ValueSlots[a].ID)
		argIsField[i] = argExpr.Cardinality == gtype.Field
		argArity[i] = argExpr.Payload.Arity()
	}

	laneArgs := make([][]float64, len(e.Args))
	for lane := 0; lane < n; lane++ {
		for i := range e.Args {
			if argIsField[i] {
				laneArgs[i] = argBufs[i][lane*argArity[i] : (lane+1)*argArity[i]]
			} else {
				laneArgs[i] = argBufs[i]
			}
		}
		v := e.Op.Lane(e.Params, lane, laneArgs)
		copy(dst[lane*outArity:(lane+1)*outArity], v)
	}
}

func (ex *Executor) buildContinuity(prog *backend.CompiledProgram, arena *runtime.Arena, instance backend.InstanceID) {
	domainID, ok := prog.Instances[instance]
	if !ok {
		return
	}
	domain := prog.Exprs[domainID]
	n := ex.Runtime.LaneCount(instance)

	var keys []string
	if domain.Op.LaneKeys != nil {
		args := make([][]float64, len(domain.Args))
		for i, a := range domain.Args {
			args[i] = arena.Get(prog.ValueSlots[a].ID)
		}
		keys = domain.Op.LaneKeys(domain.Params, args, n)
	} else {
		keys = make([]string, n)
		for i := range keys {
			keys[i] = fmt.Sprint(i)
		}
	}

	ex.pendingMappings[instance] = ex.Tracker.Build(instance, keys, domain.ContinuityStrategy)
}

func (ex *Executor) applyContinuity(instance backend.InstanceID) {
	mapping, ok := ex.pendingMappings[instance]
	if !ok {
		return
	}
	for _, sid := range ex.Runtime.State.ForInstance(instance) {
		old := ex.Runtime.State.Read(sid)
		arity := ex.Runtime.State.Payload(sid).Arity()
		initial := ex.Runtime.State.Initial(sid)
		ex.Runtime.State.Resize(sid, continuity.Apply(mapping, old, arity, initial))
	}
}

func buildPass(spec *backend.RenderPassSpec, arena *runtime.Arena, count int) RenderPass {
	get := func(slot backend.SlotID) []float64 {
		if slot == backend.NoSlot {
			return nil
		}
		return append([]float64(nil), arena.Get(slot)...)
	}
	return RenderPass{
		Block: string(spec.Block), Primitive: spec.Primitive, Instance: string(spec.Instance), Count: count,
		Position: get(spec.PositionSlot), Color: get(spec.ColorSlot),
		Shape: get(spec.ShapeSlot), Scale: get(spec.ScaleSlot),
	}
}
