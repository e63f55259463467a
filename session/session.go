// Package session wires every compiler and runtime package into one
// ready-to-drive object: compile a patch, execute frames against it,
// hot-swap a recompiled program without losing animation state, and
// subscribe to the event stream the rest of the engine publishes. A host
// application (cmd/demo or an authoring UI) drives the engine through it,
// supplying the block registry and op table it compiles against.
package session

import (
	"fmt"
	"log/slog"

	"github.com/sarchlab/akita/v4/monitoring"
	"github.com/sarchlab/akita/v4/sim"

	"github.com/fieldgraph/engine/backend"
	"github.com/fieldgraph/engine/debug"
	"github.com/fieldgraph/engine/debugindex"
	"github.com/fieldgraph/engine/eventbus"
	"github.com/fieldgraph/engine/executor"
	"github.com/fieldgraph/engine/frontend"
	"github.com/fieldgraph/engine/graph"
	"github.com/fieldgraph/engine/gtype"
	"github.com/fieldgraph/engine/registry"
	"github.com/fieldgraph/engine/runtime"
	"github.com/fieldgraph/engine/timeline"
)

// Builder assembles a Session. Follows the donor's value-receiver WithX
// fluent pattern (core.Builder, config.DeviceBuilder): every With method
// returns a modified copy, Build is the only terminal call.
type Builder struct {
	registry *registry.Registry
	ops      backend.OpTable
	adapters *gtype.AdapterRegistry
	bus      *eventbus.Bus
	freq     sim.Freq
	monitor  *monitoring.Monitor
	logger   *slog.Logger
	healthN  int
}

// NewBuilder returns a Builder with akita's default 60Hz-equivalent frame
// rate, a fresh event bus, and the standard unit-adapter table; every
// field can be overridden before Build.
func NewBuilder() Builder {
	return Builder{
		bus:      eventbus.New(),
		adapters: gtype.DefaultAdapters(),
		logger:   slog.Default(),
		healthN:  120,
	}
}

// WithRegistry sets the block registry a Compile call resolves block
// types against. Required.
func (b Builder) WithRegistry(reg *registry.Registry) Builder {
	b.registry = reg
	return b
}

// WithOps sets the per-block-type runtime behavior the backend lowers
// against. Required.
func (b Builder) WithOps(ops backend.OpTable) Builder {
	b.ops = ops
	return b
}

// WithAdapters overrides the default unit-adapter table.
func (b Builder) WithAdapters(adapters *gtype.AdapterRegistry) Builder {
	b.adapters = adapters
	return b
}

// WithBus overrides the session's event bus. Useful for tests that want
// to subscribe before any event is published.
func (b Builder) WithBus(bus *eventbus.Bus) Builder {
	b.bus = bus
	return b
}

// WithFreq sets the session's target frame rate.
func (b Builder) WithFreq(freq sim.Freq) Builder {
	b.freq = freq
	return b
}

// WithMonitor attaches an akita monitoring.Monitor. The session starts
// its dashboard server on Build and registers nothing with it; it
// cannot register the executor itself as a monitored akita component
// because this engine drives frames directly rather than through an
// akita sim.Engine tick loop (see DESIGN.md).
func (b Builder) WithMonitor(m *monitoring.Monitor) Builder {
	b.monitor = m
	return b
}

// WithLogger overrides the session's structured logger.
func (b Builder) WithLogger(logger *slog.Logger) Builder {
	b.logger = logger
	return b
}

// WithHealthInterval sets how many frames elapse between HealthSnapshot
// publications. Default 120.
func (b Builder) WithHealthInterval(frames int) Builder {
	b.healthN = frames
	return b
}

// Build validates required fields and returns a ready Session with no
// program installed yet.
func (b Builder) Build() (*Session, error) {
	if b.registry == nil {
		return nil, fmt.Errorf("session: WithRegistry is required")
	}
	if b.ops == nil {
		return nil, fmt.Errorf("session: WithOps is required")
	}
	if b.freq <= 0 {
		b.freq = 60 * sim.Hz
	}

	rt := runtime.New()
	clock := timeline.NewBuilder().WithFreq(b.freq).Build()

	s := &Session{
		registry:    b.registry,
		adapters:    b.adapters,
		bus:         b.bus,
		clock:       clock,
		logger:      b.logger,
		monitor:     b.monitor,
		runtime:     rt,
		exec:        executor.New(rt),
		frontend:    frontend.New(b.registry, b.adapters),
		backend:     backend.New(b.registry, b.ops),
		lastLanes:   make(map[backend.InstanceID]int),
		healthN:     b.healthN,
		frameTiming: newHealthWindow(b.healthN),
	}
	if b.monitor != nil {
		b.monitor.StartServer()
	}
	return s, nil
}

// Session is a single live instance of the engine: one compiled program,
// one runtime, one frame clock, all observable through one event bus.
type Session struct {
	registry *registry.Registry
	adapters *gtype.AdapterRegistry
	bus      *eventbus.Bus
	clock    timeline.FrameClock
	logger   *slog.Logger
	monitor  *monitoring.Monitor

	runtime  *runtime.Runtime
	exec     *executor.Executor
	frontend *frontend.Compiler
	backend  *backend.Compiler
	index    *debugindex.Index
	snapshot *frontend.Snapshot

	compileSeq  uint64
	installed   bool
	lastLanes   map[backend.InstanceID]int
	healthN     int
	frameTiming *healthWindow
}

// Bus returns the session's event bus, for subscribing hooks before or
// after Compile/Execute calls.
func (s *Session) Bus() *eventbus.Bus { return s.bus }

// Runtime returns the session's live runtime state, for inspection or
// for wiring a debug.Session over the currently installed program.
func (s *Session) Runtime() *runtime.Runtime { return s.runtime }

// Clock returns the session's frame clock.
func (s *Session) Clock() timeline.FrameClock { return s.clock }

// Snapshot returns the most recent frontend compile result, including one
// that was not backendReady, or nil if Compile has never been called.
func (s *Session) Snapshot() *frontend.Snapshot { return s.snapshot }

// Compile runs the frontend and backend compilers over patch and, if the
// result is backendReady, installs it as the runtime's program. It
// publishes CompileStart, CompileEnd, and (on a successful install)
// ProgramSwapped, matching spec.md's external compile API.
func (s *Session) Compile(patch *graph.Patch) (*frontend.Snapshot, error) {
	s.compileSeq++
	compileID := s.compileSeq
	s.bus.Publish(eventbus.HookPosCompileStart, eventbus.CompileStart{
		PatchRevision: patch.Revision, CompileID: compileID,
	})

	start := s.clock.Now()
	snap := s.frontend.Compile(patch)
	s.snapshot = snap

	if !snap.BackendReady {
		s.bus.Publish(eventbus.HookPosCompileEnd, eventbus.CompileEnd{
			PatchRevision: patch.Revision, CompileID: compileID,
			Status: eventbus.CompileFailure, DurationMs: float64(s.clock.Now()-start) * 1000,
		})
		return snap, nil
	}

	prog, err := s.backend.Compile(snap)
	if err != nil {
		s.bus.Publish(eventbus.HookPosCompileEnd, eventbus.CompileEnd{
			PatchRevision: patch.Revision, CompileID: compileID,
			Status: eventbus.CompileFailure, DurationMs: float64(s.clock.Now()-start) * 1000,
		})
		return snap, err
	}

	s.bus.Publish(eventbus.HookPosCompileEnd, eventbus.CompileEnd{
		PatchRevision: patch.Revision, CompileID: compileID,
		Status: eventbus.CompileSuccess, DurationMs: float64(s.clock.Now()-start) * 1000,
	})

	mode := eventbus.SwapSoft
	if !s.installed {
		mode = eventbus.SwapHard
	}
	s.runtime.Install(prog)
	s.index = debugindex.Build(prog.Debug)
	s.installed = true

	s.bus.Publish(eventbus.HookPosProgramSwapped, eventbus.ProgramSwapped{
		PatchRevision: patch.Revision, CompileID: compileID,
		SwapMode: mode, InstanceCounts: s.instanceCounts(prog),
	})

	s.logger.Info("session compiled patch",
		slog.Uint64("revision", patch.Revision), slog.Uint64("compileId", compileID),
		slog.String("swapMode", string(mode)))

	return snap, nil
}

func (s *Session) instanceCounts(prog *backend.CompiledProgram) map[string]int {
	out := make(map[string]int, len(prog.Instances))
	for id := range prog.Instances {
		out[string(id)] = s.runtime.LaneCount(id)
	}
	return out
}

// Execute advances the frame clock and runs one frame of the installed
// program, publishing DomainChanged for every instance whose lane count
// moved since the previous frame and a throttled HealthSnapshot.
func (s *Session) Execute() (executor.RenderFrame, error) {
	revision := uint64(0)
	if s.snapshot != nil {
		revision = s.snapshot.PatchRevision
	}

	before := s.clock.Now()
	s.clock.Advance()
	frame, err := s.exec.Frame()
	elapsedMs := float64(s.clock.Now()-before) * 1000
	if err != nil {
		return frame, err
	}

	s.publishDomainChanges(revision, elapsedMs)
	s.frameTiming.add(elapsedMs)
	if int(s.clock.FrameIndex())%s.healthN == 0 {
		s.bus.Publish(eventbus.HookPosHealthSnapshot, eventbus.HealthSnapshot{
			MinFrameMs: s.frameTiming.min, MeanFrameMs: s.frameTiming.mean(),
			MaxFrameMs: s.frameTiming.max, BufferHighWater: s.runtime.Pool.Outstanding(),
		})
	}

	return frame, nil
}

func (s *Session) publishDomainChanges(revision uint64, tMs float64) {
	if s.runtime.Program == nil {
		return
	}
	for id := range s.runtime.Program.Instances {
		now := s.runtime.LaneCount(id)
		old, seen := s.lastLanes[id]
		s.lastLanes[id] = now
		if seen && old != now {
			s.bus.Publish(eventbus.HookPosDomainChanged, eventbus.DomainChanged{
				PatchRevision: revision, InstanceID: string(id),
				OldCount: old, NewCount: now, MappingKind: "byId", TMs: tMs,
			})
		}
	}
}

// Debugger returns a step-debug session over the currently installed
// program, or nil if Compile has not yet installed one.
func (s *Session) Debugger() *debug.Session {
	if !s.installed || s.snapshot == nil {
		return nil
	}
	return debug.New(s.runtime, s.exec, s.index, s.snapshot)
}

// Index returns the presentation-ready debug index for the currently
// installed program, or nil if none is installed.
func (s *Session) Index() *debugindex.Index { return s.index }

type healthWindow struct {
	samples []float64
	cap     int
	pos     int
	filled  bool
	min     float64
	max     float64
}

func newHealthWindow(cap int) *healthWindow {
	if cap <= 0 {
		cap = 1
	}
	return &healthWindow{samples: make([]float64, cap), cap: cap}
}

func (w *healthWindow) add(v float64) {
	w.samples[w.pos] = v
	w.pos = (w.pos + 1) % w.cap
	if w.pos == 0 {
		w.filled = true
	}
	n := w.cap
	if !w.filled {
		n = w.pos
	}
	w.min, w.max = w.samples[0], w.samples[0]
	for _, s := range w.samples[:n] {
		if s < w.min {
			w.min = s
		}
		if s > w.max {
			w.max = s
		}
	}
}

func (w *healthWindow) mean() float64 {
	n := w.cap
	if !w.filled {
		n = w.pos
	}
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		sum += w.samples[i]
	}
	return sum / float64(n)
}
