// Package continuity maps a domain's lanes across a frame-to-frame or
// recompile-to-recompile resize, so field-lane state (package runtime)
// keeps animating the same element instead of resetting whenever an
// instance's element count changes.
package continuity

import (
	"github.com/fieldgraph/engine/backend"
	"github.com/fieldgraph/engine/registry"
)

// Mapping describes how each of an instance's current-frame lanes traces
// back to last frame's lanes.
type Mapping struct {
	// NewToOld[i] is the previous-frame lane index supplying identity for
	// current lane i, or -1 if lane i has no predecessor.
	NewToOld []int
}

// Tracker remembers each instance's previous-frame lane keys so the next
// ContinuityMapBuild step can diff against them. One Tracker belongs to
// one Executor and lives as long as it does; it is not reset across a
// recompile, only across a full session reset.
type Tracker struct {
	prev map[backend.InstanceID][]string
}

// NewTracker returns a Tracker with no history.
func NewTracker() *Tracker {
	return &Tracker{prev: make(map[backend.InstanceID][]string)}
}

// Build computes instance id's Mapping from its previous lane keys to
// newKeys under strategy, then records newKeys as the new previous set.
// newKeys holds one key per current lane; a nil newKeys means the
// instance has no lanes this frame. The executor passes positional keys
// ("0", "1", …) for a domain with no LaneKeyFunc, under which
// ContinuityByID matches lanes by index, like ContinuityPrefix.
func (t *Tracker) Build(id backend.InstanceID, newKeys []string, strategy registry.ContinuityStrategy) Mapping {
	old := t.prev[id]
	var m Mapping
	switch strategy {
	case registry.ContinuityNone:
		m = Mapping{NewToOld: freshLanes(len(newKeys))}
	case registry.ContinuityByID:
		if newKeys == nil {
			m = Mapping{NewToOld: prefixLanes(len(old), len(newKeys))}
		} else {
			m = mapByID(old, newKeys)
		}
	default: // ContinuityPrefix
		m = Mapping{NewToOld: prefixLanes(len(old), len(newKeys))}
	}
	t.prev[id] = append([]string(nil), newKeys...)
	return m
}

// Forget drops an instance's history, so its next Build starts every lane
// fresh. Used when an instance's domain block is removed from the patch.
func (t *Tracker) Forget(id backend.InstanceID) {
	delete(t.prev, id)
}

func freshLanes(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = -1
	}
	return out
}

func prefixLanes(oldLen, newLen int) []int {
	out := make([]int, newLen)
	for i := range out {
		if i < oldLen {
			out[i] = i
		} else {
			out[i] = -1
		}
	}
	return out
}

func mapByID(old, new []string) Mapping {
	index := make(map[string]int, len(old))
	for i, k := range old {
		index[k] = i
	}
	out := make([]int, len(new))
	for i, k := range new {
		if oi, ok := index[k]; ok {
			out[i] = oi
		} else {
			out[i] = -1
		}
	}
	return Mapping{NewToOld: out}
}

// Apply builds a new field-lane buffer of len(m.NewToOld)*arity values:
// lane i is copied from old's mapped lane when one exists and old is
// still big enough to hold it, else from initial (the state slot's
// declared InitialValue).
func Apply(m Mapping, old []float64, arity int, initial []float64) []float64 {
	out := make([]float64, len(m.NewToOld)*arity)
	for i, oldIdx := range m.NewToOld {
		dst := out[i*arity : (i+1)*arity]
		if oldIdx >= 0 && (oldIdx+1)*arity <= len(old) {
			copy(dst, old[oldIdx*arity:(oldIdx+1)*arity])
		} else {
			copy(dst, initial)
		}
	}
	return out
}
