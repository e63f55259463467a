package runtime

import (
	"github.com/fieldgraph/engine/backend"
	"github.com/fieldgraph/engine/gtype"
	"github.com/fieldgraph/engine/registry"
)

// StateStore holds every persistent state slot's value, addressed by its
// stable backend.StateID rather than by the CompiledProgram's
// recompile-volatile slot index. The same store survives across
// recompiles; continuity migration (package continuity) is what keeps a
// field-lane entry's per-lane values meaningful when an instance's lane
// count or ordering changes between compiles.
type StateStore struct {
	values   map[backend.StateID][]float64
	kinds    map[backend.StateID]registry.StateKind
	payloads map[backend.StateID]gtype.Payload
	initials map[backend.StateID][]float64
	instance map[backend.StateID]backend.InstanceID
}

// NewStateStore returns an empty store.
func NewStateStore() *StateStore {
	return &StateStore{
		values:   make(map[backend.StateID][]float64),
		kinds:    make(map[backend.StateID]registry.StateKind),
		payloads: make(map[backend.StateID]gtype.Payload),
		initials: make(map[backend.StateID][]float64),
		instance: make(map[backend.StateID]backend.InstanceID),
	}
}

// Sync reconciles the store with a freshly compiled program's declared
// state slots. A StateID the store has never held is seeded: scalar
// slots from InitialValue, field-lane slots to the domain's current lane
// count with InitialValue repeated per lane. A StateID the new program no
// longer declares is dropped. laneCount resolves an instance's current
// element count; it is consulted only for slots being seeded for the
// first time.
func (s *StateStore) Sync(slots []backend.StateSlot, laneCount func(backend.InstanceID) int) {
	seen := make(map[backend.StateID]bool, len(slots))
	for _, slot := range slots {
		seen[slot.ID] = true
		s.kinds[slot.ID] = slot.Kind
		s.payloads[slot.ID] = slot.Payload
		s.initials[slot.ID] = slot.InitialValue
		s.instance[slot.ID] = slot.Instance
		if _, ok := s.values[slot.ID]; ok {
			continue
		}
		arity := slot.Payload.Arity()
		switch slot.Kind {
		case registry.StateScalar:
			init := make([]float64, arity)
			copy(init, slot.InitialValue)
			s.values[slot.ID] = init
		case registry.StateFieldLane:
			n := laneCount(slot.Instance)
			buf := make([]float64, n*arity)
			for i := 0; i < n; i++ {
				copy(buf[i*arity:(i+1)*arity], slot.InitialValue)
			}
			s.values[slot.ID] = buf
		}
	}
	for id := range s.values {
		if !seen[id] {
			delete(s.values, id)
			delete(s.kinds, id)
			delete(s.payloads, id)
			delete(s.initials, id)
			delete(s.instance, id)
		}
	}
}

// Initial returns id's declared InitialValue, as of the last Sync.
func (s *StateStore) Initial(id backend.StateID) []float64 {
	return s.initials[id]
}

// Instance returns id's bound instance, as of the last Sync. Only
// meaningful for a StateFieldLane slot.
func (s *StateStore) Instance(id backend.StateID) backend.InstanceID {
	return s.instance[id]
}

// ForInstance returns every StateID currently bound to instance id.
func (s *StateStore) ForInstance(id backend.InstanceID) []backend.StateID {
	var out []backend.StateID
	for sid, inst := range s.instance {
		if inst == id && s.kinds[sid] == registry.StateFieldLane {
			out = append(out, sid)
		}
	}
	return out
}

// Kind reports the declared StateKind of id, as of the last Sync.
func (s *StateStore) Kind(id backend.StateID) registry.StateKind {
	return s.kinds[id]
}

// Payload reports the declared Payload of id, as of the last Sync.
func (s *StateStore) Payload(id backend.StateID) gtype.Payload {
	return s.payloads[id]
}

// Read returns id's current value. For a field-lane state this is the
// full per-lane buffer; callers must not retain the returned slice past
// the next Write or Resize.
func (s *StateStore) Read(id backend.StateID) []float64 {
	return s.values[id]
}

// Write overwrites id's value in place, resizing if the write is a
// different length (only expected for a field-lane state immediately
// after a lane-count change, ahead of continuity migration).
func (s *StateStore) Write(id backend.StateID, v []float64) {
	dst := s.values[id]
	if len(dst) != len(v) {
		dst = make([]float64, len(v))
		s.values[id] = dst
	}
	copy(dst, v)
}

// Resize installs v as id's new backing storage outright, used by
// continuity once it has built the migrated per-lane buffer itself.
func (s *StateStore) Resize(id backend.StateID, v []float64) {
	s.values[id] = v
}

// IDs returns every StateID currently tracked, for diagnostics and tests.
func (s *StateStore) IDs() []backend.StateID {
	out := make([]backend.StateID, 0, len(s.values))
	for id := range s.values {
		out = append(out, id)
	}
	return out
}
