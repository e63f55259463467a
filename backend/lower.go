package backend

import (
	"sort"

	"github.com/fieldgraph/engine/frontend"
	"github.com/fieldgraph/engine/graph"
	"github.com/fieldgraph/engine/gtype"
	"github.com/fieldgraph/engine/registry"
)

// Compiler lowers a backendReady frontend.Snapshot into a CompiledProgram.
// Ops supplies the per-block-type behavior the registry itself is
// deliberately silent about.
type Compiler struct {
	Registry *registry.Registry
	Ops      OpTable
}

// New builds a backend Compiler.
func New(reg *registry.Registry, ops OpTable) *Compiler {
	return &Compiler{Registry: reg, Ops: ops}
}

const invalidExpr ExprID = -1

type renderSinkLowered struct {
	Block                                     graph.BlockID
	Primitive                                 string
	Instance                                  InstanceID
	PosExpr, ColorExpr, ShapeExpr, ScaleExpr ExprID
}

type lowering struct {
	c     *Compiler
	patch *graph.Patch
	snap  *frontend.Snapshot

	memo              map[graph.Endpoint]ExprID
	exprs             []Expr
	stateWriteSource  map[StateID]ExprID
	stateReadExpr     map[StateID]ExprID
	stateSlots        []StateSlot
	stateSeen         map[StateID]bool
	instances         map[InstanceID]ExprID
	instanceOrderSeen []InstanceID
	renderSinks       []renderSinkLowered
}

// Compile runs expression lowering, slot/state allocation, scheduling,
// and debug-index construction. It requires snap.BackendReady.
func (c *Compiler) Compile(snap *frontend.Snapshot) (*CompiledProgram, error) {
	if !snap.BackendReady {
		return nil, fail("precondition", "snapshot is not backendReady")
	}

	l := &lowering{
		c:                c,
		patch:            snap.Normalized,
		snap:             snap,
		memo:             make(map[graph.Endpoint]ExprID),
		stateWriteSource: make(map[StateID]ExprID),
		stateReadExpr:    make(map[StateID]ExprID),
		stateSeen:        make(map[StateID]bool),
		instances:        make(map[InstanceID]ExprID),
	}

	for _, id := range l.patch.SortedBlockIDs() {
		b := l.patch.Blocks[id]
		if b.Type == frontend.AdapterBlockType {
			continue
		}
		def, ok := c.Registry.Lookup(b.Type)
		if !ok {
			continue
		}
		if def.Role == registry.RoleRenderSink {
			if err := l.lowerRenderSink(b, def); err != nil {
				return nil, err
			}
		}
		if def.State != registry.StateNone {
			if _, err := l.lowerStateBlock(b, def); err != nil {
				return nil, err
			}
		}
	}

	return l.build()
}

func (l *lowering) newExpr(e Expr) ExprID {
	e.ID = ExprID(len(l.exprs))
	l.exprs = append(l.exprs, e)
	return e.ID
}

// lowerOutput resolves (memoized) the Expr computing the value at ep.
func (l *lowering) lowerOutput(ep graph.Endpoint) (ExprID, error) {
	if id, ok := l.memo[ep]; ok {
		return id, nil
	}
	b, ok := l.patch.Blocks[ep.Block]
	if !ok {
		return invalidExpr, fail("lower", "edge references missing block %s", ep.Block)
	}
	if b.Type == frontend.AdapterBlockType {
		return l.lowerAdapter(b, ep)
	}

	def, ok := l.c.Registry.Lookup(b.Type)
	if !ok {
		return invalidExpr, fail("lower", "unknown block type %q for %s", b.Type, ep.Block)
	}

	for _, out := range def.Outputs {
		if out.ID != ep.Port {
			continue
		}
		if out.IsDomain {
			return l.lowerDomain(b, def, out)
		}
		if def.State != registry.StateNone && out.ID == def.StateOutput {
			return l.lowerStateBlock(b, def)
		}
		return l.lowerOp(b, def, out)
	}
	return invalidExpr, fail("lower", "block %s has no output port %q", ep.Block, ep.Port)
}

func (l *lowering) lowerInputCombined(b *graph.Block, in registry.InputPortDef) (ExprID, error) {
	edges := l.patch.EdgesInto(graph.Endpoint{Block: b.ID, Port: in.ID})
	if len(edges) == 0 {
		return invalidExpr, fail("lower", "input %s.%s reached the backend unconnected", b.ID, in.ID)
	}
	ids := make([]ExprID, 0, len(edges))
	for _, e := range edges {
		id, err := l.lowerOutput(e.From)
		if err != nil {
			return invalidExpr, err
		}
		ids = append(ids, id)
	}
	if len(ids) == 1 {
		return ids[0], nil
	}
	return l.lowerCombine(b, in, ids)
}

func (l *lowering) lowerCombine(b *graph.Block, in registry.InputPortDef, args []ExprID) (ExprID, error) {
	if in.Combine == registry.CombineSingle || in.Combine == registry.CombineFirst {
		return args[0], nil
	}

	arity := in.Type.Payload.Arity()
	cardinality := l.exprs[args[0]].Cardinality
	for _, a := range args {
		if l.exprs[a].Cardinality == gtype.Field {
			cardinality = gtype.Field
		}
	}

	combineFn := sumLanes
	if in.Combine == registry.CombineProduct {
		combineFn = productLanes
	}

	op := Op{
		Kind: OpScalarKind,
		Scalar: func(_ map[string]any, callArgs [][]float64) []float64 {
			return combineFn(callArgs, arity)
		},
	}
	if cardinality == gtype.Field {
		op.Kind = OpFieldKind
		op.Lane = func(_ map[string]any, _ int, callArgs [][]float64) []float64 {
			return combineFn(callArgs, arity)
		}
	}

	id := l.newExpr(Expr{
		Kind:          ExprOp,
		Block:         b.ID,
		Port:          in.ID,
		Payload:       in.Type.Payload,
		Cardinality:   cardinality,
		Args:          args,
		Params:        b.Params,
		BoundInstance: l.boundInstanceFromArgs(args),
		Op:            op,
	})
	return id, nil
}

func sumLanes(args [][]float64, arity int) []float64 {
	out := make([]float64, arity)
	for _, a := range args {
		for i := 0; i < arity && i < len(a); i++ {
			out[i] += a[i]
		}
	}
	return out
}

func productLanes(args [][]float64, arity int) []float64 {
	out := make([]float64, arity)
	for i := range out {
		out[i] = 1
	}
	for _, a := range args {
		for i := 0; i < arity && i < len(a); i++ {
			out[i] *= a[i]
		}
	}
	return out
}

func (l *lowering) boundInstanceFromArgs(args []ExprID) InstanceID {
	for _, a := range args {
		if inst := l.exprs[a].BoundInstance; inst != "" {
			return inst
		}
	}
	return ""
}

func (l *lowering) domainInstance(b *graph.Block, port registry.PortID) (InstanceID, bool) {
	if port == "" {
		return "", false
	}
	edges := l.patch.EdgesInto(graph.Endpoint{Block: b.ID, Port: port})
	if len(edges) != 1 {
		return "", false
	}
	return InstanceID(edges[0].From.Block), true
}

func (l *lowering) lowerOp(b *graph.Block, def registry.BlockDef, out registry.OutputPortDef) (ExprID, error) {
	ep := graph.Endpoint{Block: b.ID, Port: out.ID}
	op, ok := l.c.Ops[b.Type]
	if !ok {
		return invalidExpr, fail("lower", "no Op registered for block type %q", b.Type)
	}

	args := make([]ExprID, len(def.Inputs))
	for i, in := range def.Inputs {
		id, err := l.lowerInputCombined(b, in)
		if err != nil {
			return invalidExpr, err
		}
		args[i] = id
	}

	resolved, ok := l.snap.ResolvedOutputs[ep]
	cardinality := out.Type.Cardinality
	if ok {
		cardinality = resolved.Cardinality
	}

	var instance InstanceID
	if def.DomainInputPort != "" {
		if inst, ok := l.domainInstance(b, def.DomainInputPort); ok {
			instance = inst
		}
	}
	if instance == "" && cardinality == gtype.Field {
		instance = l.boundInstanceFromArgs(args)
	}

	kind := ExprOp
	if op.Kind == OpReduceKind {
		kind = ExprReduce
	}

	id := l.newExpr(Expr{
		Kind:          kind,
		Block:         b.ID,
		Port:          out.ID,
		Payload:       out.Type.Payload,
		Cardinality:   cardinality,
		Args:          args,
		Params:        b.Params,
		BoundInstance: instance,
		Op:            op,
	})
	l.memo[ep] = id
	return id, nil
}

func (l *lowering) lowerDomain(b *graph.Block, def registry.BlockDef, out registry.OutputPortDef) (ExprID, error) {
	ep := graph.Endpoint{Block: b.ID, Port: out.ID}
	op, ok := l.c.Ops[b.Type]
	if !ok || op.Kind != OpDomainKind {
		return invalidExpr, fail("lower", "block type %q declares a domain output but no Domain Op", b.Type)
	}
	args := make([]ExprID, len(def.Inputs))
	for i, in := range def.Inputs {
		id, err := l.lowerInputCombined(b, in)
		if err != nil {
			return invalidExpr, err
		}
		args[i] = id
	}
	id := l.newExpr(Expr{
		Kind: ExprDomain, Block: b.ID, Port: out.ID,
		Payload: gtype.Int, Cardinality: gtype.Static,
		Args: args, Params: b.Params, Op: op,
		ContinuityStrategy: def.DomainContinuity,
	})
	l.memo[ep] = id
	inst := InstanceID(b.ID)
	if _, seen := l.instances[inst]; !seen {
		l.instances[inst] = id
		l.instanceOrderSeen = append(l.instanceOrderSeen, inst)
	}
	return id, nil
}

func (l *lowering) lowerAdapter(b *graph.Block, ep graph.Endpoint) (ExprID, error) {
	a, ok := b.Params[frontend.AdapterParamKey].(gtype.Adapter)
	if !ok {
		return invalidExpr, fail("lower", "adapter block %s missing adapter metadata", b.ID)
	}
	edges := l.patch.EdgesInto(graph.Endpoint{Block: b.ID, Port: frontend.AdapterInPort})
	if len(edges) != 1 {
		return invalidExpr, fail("lower", "adapter block %s does not have exactly one input", b.ID)
	}
	inID, err := l.lowerOutput(edges[0].From)
	if err != nil {
		return invalidExpr, err
	}

	cardinality := l.exprs[inID].Cardinality
	if resolved, ok := l.snap.ResolvedOutputs[graph.Endpoint{Block: b.ID, Port: frontend.AdapterOutPort}]; ok {
		cardinality = resolved.Cardinality
	}

	op := Op{Kind: OpScalarKind, Scalar: func(_ map[string]any, args [][]float64) []float64 {
		return a.Apply(args[0])
	}}
	if cardinality == gtype.Field {
		op.Kind = OpFieldKind
		op.Lane = func(_ map[string]any, _ int, args [][]float64) []float64 {
			return a.Apply(args[0])
		}
	}

	id := l.newExpr(Expr{
		Kind: ExprOp, Block: b.ID, Port: ep.Port,
		Payload: a.Payload, Cardinality: cardinality,
		Args: []ExprID{inID}, BoundInstance: l.exprs[inID].BoundInstance,
		Op: op,
	})
	l.memo[ep] = id
	return id, nil
}

// lowerStateBlock lowers both sides of a state-holding block: the
// StateRead expr exposed as its StateOutput, and the StateWriteInput's
// resolved source, recorded for the Phase-2 write-back step. It is
// idempotent per block.
func (l *lowering) lowerStateBlock(b *graph.Block, def registry.BlockDef) (ExprID, error) {
	sid := stateID(b.ID, def.StateRoleTag)
	readEP := graph.Endpoint{Block: b.ID, Port: def.StateOutput}
	if id, ok := l.stateReadExpr[sid]; ok {
		l.memo[readEP] = id
		return id, nil
	}

	outDef, ok := outputByID(def, def.StateOutput)
	if !ok {
		return invalidExpr, fail("lower", "block %s declares StateOutput %q not found", b.ID, def.StateOutput)
	}
	var instance InstanceID
	if def.State == registry.StateFieldLane && def.DomainInputPort != "" {
		if inst, ok := l.domainInstance(b, def.DomainInputPort); ok {
			instance = inst
		}
	}

	readID := l.newExpr(Expr{
		Kind: ExprStateRead, Block: b.ID, Port: def.StateOutput,
		Payload: outDef.Type.Payload, Cardinality: outDef.Type.Cardinality,
		StateID: sid, BoundInstance: instance,
	})
	l.stateReadExpr[sid] = readID
	l.memo[readEP] = readID

	if !l.stateSeen[sid] {
		l.stateSeen[sid] = true
		init := initialValueOf(b.Params, outDef.Type.Payload.Arity())
		l.stateSlots = append(l.stateSlots, StateSlot{
			ID: sid, Kind: def.State, Payload: outDef.Type.Payload,
			Instance: instance, Block: b.ID, InitialValue: init,
		})
	}

	inDef, ok := inputByID(def, def.StateWriteInput)
	if !ok {
		return invalidExpr, fail("lower", "block %s declares StateWriteInput %q not found", b.ID, def.StateWriteInput)
	}
	writeID, err := l.lowerInputCombined(b, inDef)
	if err != nil {
		return invalidExpr, err
	}
	l.stateWriteSource[sid] = writeID

	return readID, nil
}

func initialValueOf(params map[string]any, arity int) []float64 {
	out := make([]float64, arity)
	switch v := params["init"].(type) {
	case float64:
		out[0] = v
	case []float64:
		copy(out, v)
	case int:
		out[0] = float64(v)
	}
	return out
}

func (l *lowering) lowerRenderSink(b *graph.Block, def registry.BlockDef) error {
	sink := renderSinkLowered{
		Block: b.ID, Primitive: def.RenderPrimitive,
		PosExpr: invalidExpr, ColorExpr: invalidExpr, ShapeExpr: invalidExpr, ScaleExpr: invalidExpr,
	}

	lowerRole := func(port registry.PortID) (ExprID, error) {
		if port == "" {
			return invalidExpr, nil
		}
		in, ok := inputByID(def, port)
		if !ok {
			return invalidExpr, fail("lower", "render sink %s declares port %q not found", b.ID, port)
		}
		return l.lowerInputCombined(b, in)
	}

	var err error
	if sink.PosExpr, err = lowerRole(def.RenderPositionPort); err != nil {
		return err
	}
	if sink.ColorExpr, err = lowerRole(def.RenderColorPort); err != nil {
		return err
	}
	if sink.ShapeExpr, err = lowerRole(def.RenderShapePort); err != nil {
		return err
	}
	if sink.ScaleExpr, err = lowerRole(def.RenderScalePort); err != nil {
		return err
	}

	if def.RenderInstancePort != "" {
		if inst, ok := l.domainInstance(b, def.RenderInstancePort); ok {
			sink.Instance = inst
		}
	}
	if sink.Instance == "" {
		for _, e := range []ExprID{sink.PosExpr, sink.ColorExpr, sink.ShapeExpr, sink.ScaleExpr} {
			if e != invalidExpr && l.exprs[e].BoundInstance != "" {
				sink.Instance = l.exprs[e].BoundInstance
				break
			}
		}
	}

	l.renderSinks = append(l.renderSinks, sink)
	return nil
}

func outputByID(d registry.BlockDef, id registry.PortID) (registry.OutputPortDef, bool) {
	for _, o := range d.Outputs {
		if o.ID == id {
			return o, true
		}
	}
	return registry.OutputPortDef{}, false
}

func inputByID(d registry.BlockDef, id registry.PortID) (registry.InputPortDef, bool) {
	for _, in := range d.Inputs {
		if in.ID == id {
			return in, true
		}
	}
	return registry.InputPortDef{}, false
}

// topoOrder returns every Expr's id in dependency order (Args before
// self), tie-broken by ExprID so two compiles of the same program always
// produce the same schedule.
func (l *lowering) topoOrder() []ExprID {
	visited := make([]bool, len(l.exprs))
	order := make([]ExprID, 0, len(l.exprs))
	var visit func(id ExprID)
	visit = func(id ExprID) {
		if visited[id] {
			return
		}
		visited[id] = true
		e := l.exprs[id]
		args := append([]ExprID(nil), e.Args...)
		sort.Slice(args, func(i, j int) bool { return args[i] < args[j] })
		for _, a := range args {
			visit(a)
		}
		order = append(order, id)
	}
	for id := range l.exprs {
		visit(ExprID(id))
	}
	return order
}

func (l *lowering) build() (*CompiledProgram, error) {
	order := l.topoOrder()

	valueSlots := make([]ValueSlot, len(l.exprs))
	for i, e := range l.exprs {
		valueSlots[i] = ValueSlot{
			ID: SlotID(i), Expr: e.ID, Payload: e.Payload,
			Cardinality: e.Cardinality, Instance: e.BoundInstance,
		}
	}

	sort.Slice(l.stateSlots, func(i, j int) bool { return l.stateSlots[i].ID < l.stateSlots[j].ID })

	instanceOrder := append([]InstanceID(nil), l.instanceOrderSeen...)
	sort.Slice(instanceOrder, func(i, j int) bool { return instanceOrder[i] < instanceOrder[j] })

	var schedule []Step

	// Domain exprs (the instance element counts) run before continuity,
	// since a resize must be known before it can be mapped; continuity
	// runs before any state read or field materialization, since both are
	// sized and valued by the post-migration lane count, never the
	// previous frame's.
	var domainOrder, restOrder []ExprID
	for _, id := range order {
		if l.exprs[id].Kind == ExprDomain {
			domainOrder = append(domainOrder, id)
		} else if l.exprs[id].Kind != ExprStateRead {
			restOrder = append(restOrder, id)
		}
	}

	for _, id := range domainOrder {
		e := l.exprs[id]
		schedule = append(schedule, Step{
			Phase: Phase1, Kind: StepEvalSignal, Expr: id, Slot: SlotID(id),
			Block: e.Block, Port: e.Port,
		})
	}

	for _, inst := range instanceOrder {
		schedule = append(schedule, Step{Phase: Phase1, Kind: StepContinuityMapBuild, Instance: inst})
	}
	for _, inst := range instanceOrder {
		schedule = append(schedule, Step{Phase: Phase1, Kind: StepContinuityApply, Instance: inst})
	}

	for _, slot := range l.stateSlots {
		readExpr := l.stateReadExpr[slot.ID]
		schedule = append(schedule, Step{
			Phase: Phase1, Kind: StepReadState, StateID: slot.ID,
			Slot: SlotID(readExpr), Instance: slot.Instance,
		})
	}

	for _, id := range restOrder {
		e := l.exprs[id]
		kind := StepEvalSignal
		if e.Cardinality == gtype.Field {
			kind = StepMaterializeField
		}
		schedule = append(schedule, Step{
			Phase: Phase1, Kind: kind, Expr: id, Slot: SlotID(id),
			Instance: e.BoundInstance, Block: e.Block, Port: e.Port,
		})
	}

	schedule = append(schedule, Step{Phase: PhaseBoundary})

	for _, slot := range l.stateSlots {
		src, ok := l.stateWriteSource[slot.ID]
		if !ok {
			return nil, fail("schedule", "state slot %s has no write-back source", slot.ID)
		}
		kind := StepWriteState
		if slot.Kind == registry.StateFieldLane {
			kind = StepWriteFieldState
		}
		schedule = append(schedule, Step{
			Phase: Phase2, Kind: kind, StateID: slot.ID,
			Slot: SlotID(src), Instance: slot.Instance,
		})
	}

	sort.Slice(l.renderSinks, func(i, j int) bool { return l.renderSinks[i].Block < l.renderSinks[j].Block })
	for _, sink := range l.renderSinks {
		renderSlot := func(e ExprID) SlotID {
			if e == invalidExpr {
				return NoSlot
			}
			return SlotID(e)
		}
		sinkCopy := sink
		schedule = append(schedule, Step{
			Phase: PhasePostFrame, Kind: StepRender, Block: sinkCopy.Block,
			Render: &RenderPassSpec{
				Block: sinkCopy.Block, Primitive: sinkCopy.Primitive, Instance: sinkCopy.Instance,
				PositionSlot: renderSlot(sinkCopy.PosExpr), ColorSlot: renderSlot(sinkCopy.ColorExpr),
				ShapeSlot: renderSlot(sinkCopy.ShapeExpr), ScaleSlot: renderSlot(sinkCopy.ScaleExpr),
			},
		})
	}

	debug := &DebugIndex{
		BlockToSlots: make(map[graph.BlockID][]SlotID),
		SlotToPort:   make(map[SlotID]graph.Endpoint),
		StepToBlock:  make(map[int]graph.BlockID),
		DisplayNames: make(map[graph.BlockID]string),
	}
	for i, e := range l.exprs {
		debug.BlockToSlots[e.Block] = append(debug.BlockToSlots[e.Block], SlotID(i))
		debug.SlotToPort[SlotID(i)] = graph.Endpoint{Block: e.Block, Port: e.Port}
	}
	for i, step := range schedule {
		if step.Block != "" {
			debug.StepToBlock[i] = step.Block
		}
	}
	for _, id := range l.patch.SortedBlockIDs() {
		debug.DisplayNames[id] = l.patch.Blocks[id].DisplayName
	}

	return &CompiledProgram{
		PatchRevision: l.snap.PatchRevision,
		Exprs:         l.exprs,
		ValueSlots:    valueSlots,
		StateSlots:    l.stateSlots,
		Instances:     l.instances,
		InstanceOrder: instanceOrder,
		Schedule:      schedule,
		Debug:         debug,
	}, nil
}
