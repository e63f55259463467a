// Package eventbus is the engine's pub/sub surface for session-level
// events, built directly on akita's sim.Hookable primitive so every
// event-driven component in this module shares one hook dispatch
// mechanism rather than inventing a second one.
package eventbus

import "github.com/sarchlab/akita/v4/sim"

// Named hook positions. A Session publishes at the first five, each of
// which corresponds to one of the event payload types below; Diagnostic,
// Stepped and BreakpointHit have no payload type and no publisher.
var (
	HookPosCompileStart   = &sim.HookPos{Name: "Compile Start"}
	HookPosCompileEnd     = &sim.HookPos{Name: "Compile End"}
	HookPosProgramSwapped = &sim.HookPos{Name: "Program Swapped"}
	HookPosDomainChanged  = &sim.HookPos{Name: "Domain Changed"}
	HookPosHealthSnapshot = &sim.HookPos{Name: "Health Snapshot"}
	HookPosDiagnostic     = &sim.HookPos{Name: "Diagnostic"}
	HookPosStepped        = &sim.HookPos{Name: "Stepped"}
	HookPosBreakpointHit  = &sim.HookPos{Name: "Breakpoint Hit"}
)

// CompileStatus reports the outcome of one compile.
type CompileStatus string

const (
	CompileSuccess CompileStatus = "success"
	CompileFailure CompileStatus = "failure"
)

// CompileStart is published the moment a Session begins compiling a
// patch revision.
type CompileStart struct {
	PatchRevision uint64
	CompileID     uint64
}

// CompileEnd is published once a compile finishes, successfully or not.
type CompileEnd struct {
	PatchRevision uint64
	CompileID     uint64
	Status        CompileStatus
	DurationMs    float64
}

// SwapMode distinguishes a session's first program install from a
// recompile that replaces a running one.
type SwapMode string

const (
	SwapHard SwapMode = "hard"
	SwapSoft SwapMode = "soft"
)

// ProgramSwapped is published when a newly compiled program becomes the
// runtime's installed program.
type ProgramSwapped struct {
	PatchRevision  uint64
	CompileID      uint64
	SwapMode       SwapMode
	InstanceCounts map[string]int
}

// DomainChanged is published whenever an instance's lane count differs
// from the previous frame's.
type DomainChanged struct {
	PatchRevision uint64
	InstanceID    string
	OldCount      int
	NewCount      int
	MappingKind   string
	TMs           float64
}

// HealthSnapshot is published at a throttled cadence with rolling
// frame-timing and buffer-pool statistics.
type HealthSnapshot struct {
	MinFrameMs      float64
	MeanFrameMs     float64
	MaxFrameMs      float64
	BufferHighWater int
}

// Bus is the engine's event bus: every session-visible event is published
// through it, and any sim.Hook can subscribe to any HookPos regardless of
// which package raised it.
type Bus struct {
	*sim.HookableBase
}

// New returns an empty Bus.
func New() *Bus {
	return &Bus{HookableBase: sim.NewHookableBase()}
}

// Publish invokes every hook registered at pos, passing b as Domain and
// item as the event payload.
func (b *Bus) Publish(pos *sim.HookPos, item any) {
	b.InvokeHook(sim.HookCtx{Domain: b, Pos: pos, Item: item})
}

// handlerHook adapts a plain func(any) into a sim.Hook filtered to one
// HookPos, so callers don't need to know akita's hook plumbing to listen
// for a single event type.
type handlerHook struct {
	pos *sim.HookPos
	fn  func(item any)
}

func (h handlerHook) Func(ctx sim.HookCtx) {
	if ctx.Pos == h.pos {
		h.fn(ctx.Item)
	}
}

// Subscribe registers fn to run every time pos is published.
func (b *Bus) Subscribe(pos *sim.HookPos, fn func(item any)) {
	b.AcceptHook(handlerHook{pos: pos, fn: fn})
}
