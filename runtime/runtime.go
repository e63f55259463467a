package runtime

import (
	"github.com/fieldgraph/engine/backend"
	"github.com/fieldgraph/engine/gtype"
)

// Arena is one frame's transient value storage: one buffer per
// CompiledProgram.ValueSlot, drawn from a BufferPool and handed back with
// ReleaseAll at frame end. It never survives past the frame it was built
// for.
type Arena struct {
	pool      *BufferPool
	prog      *backend.CompiledProgram
	laneCount func(backend.InstanceID) int
	slots     [][]float64
}

// NewArena returns an arena drawing from pool.
func NewArena(pool *BufferPool) *Arena {
	return &Arena{pool: pool}
}

// Reset prepares arena for prog. Signal/Static/Event slots are acquired
// immediately with a single lane, since their size never depends on a lane count.
// Field slots are left unacquired: their size depends on laneCount, which
// this frame's domain StepEvalSignal has not run yet, so acquiring them
// now would size every field against the previous frame's counts. They
// are acquired lazily on first Get/Set instead, by which point the
// schedule has already run this frame's domain eval and continuity.
func (a *Arena) Reset(prog *backend.CompiledProgram, laneCount func(backend.InstanceID) int) {
	a.prog = prog
	a.laneCount = laneCount
	a.slots = make([][]float64, len(prog.ValueSlots))
	for _, vs := range prog.ValueSlots {
		if vs.Cardinality == gtype.Field {
			continue
		}
		a.slots[vs.ID] = a.pool.Acquire(vs.Payload, 1)
	}
}

func (a *Arena) acquire(id backend.SlotID) []float64 {
	if a.slots[id] == nil {
		vs := a.prog.ValueSlots[id]
		n := a.laneCount(vs.Instance)
		a.slots[id] = a.pool.Acquire(vs.Payload, n)
	}
	return a.slots[id]
}

// Get returns the buffer backing slot id, acquiring it first if this is
// a field slot not yet touched this frame.
func (a *Arena) Get(id backend.SlotID) []float64 {
	return a.acquire(id)
}

// Set overwrites slot id's buffer contents in place; v must be the same
// length.
func (a *Arena) Set(id backend.SlotID, v []float64) {
	copy(a.acquire(id), v)
}

// Release returns every buffer in this arena to its pool.
func (a *Arena) Release() {
	a.pool.ReleaseAll()
	a.slots = nil
	a.prog = nil
	a.laneCount = nil
}

// Runtime is the engine's live, hot-swappable execution state: the
// currently installed program, the persistent state store, the buffer
// pool, and every instance's current lane count. Executor drives frames
// against it; continuity is what lets a program swap land without
// discarding animation.
type Runtime struct {
	Program *backend.CompiledProgram
	State   *StateStore
	Pool    *BufferPool
	lanes   map[backend.InstanceID]int
}

// New returns a Runtime with no program installed yet.
func New() *Runtime {
	return &Runtime{
		State: NewStateStore(),
		Pool:  NewBufferPool(),
		lanes: make(map[backend.InstanceID]int),
	}
}

// LaneCount returns instance id's element count as of the last frame, or
// 0 if it has never been observed.
func (r *Runtime) LaneCount(id backend.InstanceID) int {
	return r.lanes[id]
}

// SetLaneCount records instance id's element count for this frame.
func (r *Runtime) SetLaneCount(id backend.InstanceID, n int) {
	r.lanes[id] = n
}

// Install swaps in a newly compiled program and syncs the state store to
// its declared state slots. It does not migrate field-lane state across
// a lane-count change; the executor runs continuity for that before the
// first frame evaluated against the new program.
func (r *Runtime) Install(prog *backend.CompiledProgram) {
	r.Program = prog
	r.State.Sync(prog.StateSlots, r.LaneCount)
}
