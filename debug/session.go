// Package debug drives a CompiledProgram one schedule step at a time
// instead of all at once, for an authoring UI's frame inspector. It
// reuses executor.Executor's own step evaluation so a stepped frame
// writes exactly what a full executor.Frame call would have written —
// the only difference is where execution pauses.
package debug

import (
	"math"
	"strconv"

	"github.com/fieldgraph/engine/backend"
	"github.com/fieldgraph/engine/debugindex"
	"github.com/fieldgraph/engine/diag"
	"github.com/fieldgraph/engine/executor"
	"github.com/fieldgraph/engine/frontend"
	"github.com/fieldgraph/engine/graph"
	"github.com/fieldgraph/engine/runtime"
)

// SlotWrite is the value a single schedule step wrote to a value slot.
type SlotWrite struct {
	Slot   backend.SlotID
	Values []float64
}

// StateWrite is the value a single schedule step wrote to a state slot.
type StateWrite struct {
	StateID backend.StateID
	Values  []float64
}

// Anomaly flags a NaN or ±Inf found in a step's own writes.
type Anomaly struct {
	Slot  backend.SlotID
	Block graph.BlockID
	Index int
}

// Snapshot describes the result of one stepNext call.
type Snapshot struct {
	StepIndex   int
	TotalSteps  int
	Phase       backend.Phase
	Block       graph.BlockID
	BlockName   string
	Port        string
	Done        bool

	WrittenValueSlots []SlotWrite
	WrittenStateSlots []StateWrite
	Anomalies         []Anomaly

	PreviousFrameValues map[backend.SlotID][]float64
}

// LaneIdentity names one element of a field slot for the authoring UI by
// its instance ID and its positional lane index.
type LaneIdentity struct {
	InstanceLabel string
	ElementID     string
}

// ReasonKind enumerates why a block or port never evaluated this frame.
type ReasonKind int

const (
	ReasonCompileError ReasonKind = iota
	ReasonNotInSchedule
	ReasonDependencyPruned
	ReasonNoConnections
	ReasonEventNotFired
	ReasonUnknown
)

func (r ReasonKind) String() string {
	switch r {
	case ReasonCompileError:
		return "compileError"
	case ReasonNotInSchedule:
		return "notInSchedule"
	case ReasonDependencyPruned:
		return "dependencyPruned"
	case ReasonNoConnections:
		return "noConnections"
	case ReasonEventNotFired:
		return "eventNotFired"
	default:
		return "unknown"
	}
}

// Reason is one analyzeWhyNotEvaluated finding.
type Reason struct {
	Kind    ReasonKind
	Message string
}

// BreakKind tags which condition a Breakpoint watches.
type BreakKind int

const (
	BreakAtStep BreakKind = iota
	BreakAtBlock
	BreakAtPhaseBoundary
	BreakOnAnomaly
	BreakOnSlotCondition
	BreakOnValueDelta
)

// Breakpoint pauses runToBreakpoint when its condition matches the step
// about to run.
type Breakpoint struct {
	ID        int
	Kind      BreakKind
	StepIndex int
	Block     graph.BlockID
	Slot      backend.SlotID
	Predicate func([]float64) bool
	Threshold float64

	armed bool
}

// Session steps a single CompiledProgram's schedule, one step at a time,
// over a live runtime.Runtime.
type Session struct {
	Runtime *runtime.Runtime
	Exec    *executor.Executor
	Index   *debugindex.Index
	Snap    *frontend.Snapshot

	arena       *runtime.Arena
	prog        *backend.CompiledProgram
	stepIndex   int
	prevValues  map[backend.SlotID][]float64
	breakpoints []*Breakpoint
	nextBPID    int
}

// New returns a Session driving rt's installed program through exec.
// snap is the frontend snapshot the program was compiled from, used by
// analyzeWhyNotEvaluated; it may be nil if that diagnostic is not needed.
func New(rt *runtime.Runtime, exec *executor.Executor, idx *debugindex.Index, snap *frontend.Snapshot) *Session {
	return &Session{Runtime: rt, Exec: exec, Index: idx, Snap: snap, prevValues: map[backend.SlotID][]float64{}}
}

// AddBreakpoint registers bp and returns its assigned ID.
func (s *Session) AddBreakpoint(bp Breakpoint) int {
	s.nextBPID++
	bp.ID = s.nextBPID
	bp.armed = true
	s.breakpoints = append(s.breakpoints, &bp)
	return bp.ID
}

// RemoveBreakpoint disarms and drops a breakpoint by ID.
func (s *Session) RemoveBreakpoint(id int) {
	for i, bp := range s.breakpoints {
		if bp.ID == id {
			s.breakpoints = append(s.breakpoints[:i], s.breakpoints[i+1:]...)
			return
		}
	}
}

// startFrame begins stepping the runtime's currently installed program
// and returns a preFrame marker snapshot.
func (s *Session) StartFrame() Snapshot {
	s.prog = s.Runtime.Program
	s.arena = s.Exec.BeginFrame(s.prog)
	s.stepIndex = 0
	return Snapshot{
		StepIndex:  -1,
		TotalSteps: len(s.prog.Schedule),
		Phase:      backend.PhasePreFrame,
	}
}

// StepNext executes exactly one schedule step and reports what it wrote.
func (s *Session) StepNext() Snapshot {
	if s.stepIndex >= len(s.prog.Schedule) {
		return Snapshot{StepIndex: s.stepIndex, TotalSteps: len(s.prog.Schedule), Done: true}
	}
	step := s.prog.Schedule[s.stepIndex]
	snap := s.buildPreWriteInfo(step)

	pass := s.Exec.ExecuteStep(s.prog, s.arena, step)

	s.collectWrites(&snap, step)
	if pass != nil {
		// render passes carry no slot of their own; the caller reads
		// RenderFrame separately via finishFrame.
	}
	s.stepIndex++
	snap.Done = s.stepIndex >= len(s.prog.Schedule)
	return snap
}

func (s *Session) buildPreWriteInfo(step backend.Step) Snapshot {
	snap := Snapshot{
		StepIndex:  s.stepIndex,
		TotalSteps: len(s.prog.Schedule),
		Phase:      step.Phase,
		Block:      step.Block,
		Port:       string(step.Port),
	}
	if s.Index != nil && step.Block != "" {
		snap.BlockName = s.Index.Label(step.Block)
	}
	return snap
}

func (s *Session) collectWrites(snap *Snapshot, step backend.Step) {
	switch step.Kind {
	case backend.StepEvalSignal, backend.StepMaterializeField, backend.StepReadState:
		v := append([]float64(nil), s.Exec.ValueAt(s.arena, step.Slot)...)
		snap.WrittenValueSlots = append(snap.WrittenValueSlots, SlotWrite{Slot: step.Slot, Values: v})
		snap.Anomalies = append(snap.Anomalies, scanAnomalies(v, step.Slot, step.Block)...)
		snap.PreviousFrameValues = map[backend.SlotID][]float64{step.Slot: s.prevValues[step.Slot]}
		s.prevValues[step.Slot] = v

	case backend.StepWriteState, backend.StepWriteFieldState:
		v := append([]float64(nil), s.Runtime.State.Read(step.StateID)...)
		snap.WrittenStateSlots = append(snap.WrittenStateSlots, StateWrite{StateID: step.StateID, Values: v})
		snap.Anomalies = append(snap.Anomalies, scanAnomalies(v, backend.NoSlot, step.Block)...)
	}
}

func scanAnomalies(v []float64, slot backend.SlotID, block graph.BlockID) []Anomaly {
	var out []Anomaly
	for i, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			out = append(out, Anomaly{Slot: slot, Block: block, Index: i})
		}
	}
	return out
}

// RunToBreakpoint steps until an armed breakpoint matches the step about
// to run, or the frame ends. A pre-step breakpoint (step, block, phase
// boundary) returns a snapshot naming the step about to run, which has
// not executed; a post-step breakpoint (anomaly, slot condition, value
// delta) returns the snapshot of the step just taken. The breakpoint is
// nil, with the last step's snapshot, if the frame ran out first.
func (s *Session) RunToBreakpoint() (Snapshot, *Breakpoint) {
	var last Snapshot
	for s.stepIndex < len(s.prog.Schedule) {
		step := s.prog.Schedule[s.stepIndex]
		if bp := s.matchBreakpoint(step); bp != nil {
			return Snapshot{StepIndex: s.stepIndex, TotalSteps: len(s.prog.Schedule), Phase: step.Phase, Block: step.Block}, bp
		}
		last = s.StepNext()
		if bp := s.matchPostStepBreakpoint(last); bp != nil {
			return last, bp
		}
	}
	return last, nil
}

func (s *Session) matchBreakpoint(step backend.Step) *Breakpoint {
	for _, bp := range s.breakpoints {
		if !bp.armed {
			continue
		}
		switch bp.Kind {
		case BreakAtStep:
			if s.stepIndex == bp.StepIndex {
				return bp
			}
		case BreakAtBlock:
			if step.Block == bp.Block {
				return bp
			}
		case BreakAtPhaseBoundary:
			if step.Phase == backend.PhaseBoundary {
				return bp
			}
		}
	}
	return nil
}

func (s *Session) matchPostStepBreakpoint(snap Snapshot) *Breakpoint {
	for _, bp := range s.breakpoints {
		if !bp.armed {
			continue
		}
		switch bp.Kind {
		case BreakOnAnomaly:
			if len(snap.Anomalies) > 0 {
				return bp
			}
		case BreakOnSlotCondition:
			for _, w := range snap.WrittenValueSlots {
				if w.Slot == bp.Slot && bp.Predicate != nil && bp.Predicate(w.Values) {
					return bp
				}
			}
		case BreakOnValueDelta:
			for _, w := range snap.WrittenValueSlots {
				if w.Slot != bp.Slot {
					continue
				}
				prev := snap.PreviousFrameValues[w.Slot]
				if maxAbsDelta(prev, w.Values) > bp.Threshold {
					return bp
				}
			}
		}
	}
	return nil
}

func maxAbsDelta(a, b []float64) float64 {
	max := 0.0
	for i := range b {
		var av float64
		if i < len(a) {
			av = a[i]
		}
		d := math.Abs(b[i] - av)
		if d > max {
			max = d
		}
	}
	return max
}

// RunToPhaseEnd steps until the schedule crosses into a new Phase.
func (s *Session) RunToPhaseEnd() Snapshot {
	if s.stepIndex >= len(s.prog.Schedule) {
		return Snapshot{StepIndex: s.stepIndex, TotalSteps: len(s.prog.Schedule), Done: true}
	}
	phase := s.prog.Schedule[s.stepIndex].Phase
	var last Snapshot
	for s.stepIndex < len(s.prog.Schedule) && s.prog.Schedule[s.stepIndex].Phase == phase {
		last = s.StepNext()
	}
	return last
}

// FinishFrame steps through the remainder of the schedule and releases
// the frame's arena, returning the render frame the full steps produced.
func (s *Session) FinishFrame() (executor.RenderFrame, error) {
	var frame executor.RenderFrame
	for s.stepIndex < len(s.prog.Schedule) {
		step := s.prog.Schedule[s.stepIndex]
		pass := s.Exec.ExecuteStep(s.prog, s.arena, step)
		if pass != nil {
			frame.Passes = append(frame.Passes, *pass)
		}
		s.collectWrites(&Snapshot{}, step)
		s.stepIndex++
	}
	return frame, s.Exec.EndFrame(s.arena)
}

// GetLaneIdentities returns one identity per lane of a field slot: the
// bound instance's ID as InstanceLabel and the lane's positional index as
// ElementID.
func (s *Session) GetLaneIdentities(slot backend.SlotID) []LaneIdentity {
	if int(slot) < 0 || int(slot) >= len(s.prog.ValueSlots) {
		return nil
	}
	vs := s.prog.ValueSlots[slot]
	n := s.Runtime.LaneCount(vs.Instance)
	out := make([]LaneIdentity, n)
	for i := range out {
		out[i] = LaneIdentity{InstanceLabel: string(vs.Instance), ElementID: strconv.Itoa(i)}
	}
	return out
}

// AnalyzeWhyNotEvaluated explains why a block (or one of its ports) never
// appears in the installed program's schedule.
func (s *Session) AnalyzeWhyNotEvaluated(block graph.BlockID, port string) []Reason {
	if s.Snap != nil && s.Snap.Diagnostics.HasErrors() {
		for _, d := range s.Snap.Diagnostics {
			if string(d.Block) == string(block) && d.Severity >= diag.SeverityError {
				return []Reason{{Kind: ReasonCompileError, Message: d.String()}}
			}
		}
	}
	if s.Index != nil {
		if slots := s.Index.SlotsFor(block); len(slots) > 0 {
			return nil // it did evaluate
		}
	}
	if s.Snap != nil && s.Snap.Normalized != nil {
		b, ok := s.Snap.Normalized.Blocks[block]
		if !ok {
			return []Reason{{Kind: ReasonUnknown, Message: "block not present in normalized patch"}}
		}
		hasInbound := false
		hasOutbound := false
		for _, e := range s.Snap.Normalized.Edges {
			if e.To.Block == block {
				hasInbound = true
			}
			if e.From.Block == block {
				hasOutbound = true
			}
		}
		if !hasInbound && !hasOutbound && b.Role == graph.RoleNormal {
			return []Reason{{Kind: ReasonNoConnections, Message: "block has no edges"}}
		}
		if hasOutbound && !hasInboundConsumed(s.Snap, block) {
			return []Reason{{Kind: ReasonDependencyPruned, Message: "block's outputs are never read by a reachable sink"}}
		}
	}
	return []Reason{{Kind: ReasonNotInSchedule, Message: "block compiled but was not placed in the schedule"}}
}

func hasInboundConsumed(snap *frontend.Snapshot, block graph.BlockID) bool {
	for ep := range snap.ResolvedOutputs {
		if ep.Block == block {
			for _, e := range snap.Normalized.Edges {
				if e.From == ep {
					return true
				}
			}
		}
	}
	return false
}
