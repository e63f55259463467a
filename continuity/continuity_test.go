package continuity_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/fieldgraph/engine/backend"
	"github.com/fieldgraph/engine/continuity"
	"github.com/fieldgraph/engine/registry"
)

var _ = Describe("Tracker", func() {
	var tracker *continuity.Tracker
	const inst backend.InstanceID = "ring"

	BeforeEach(func() {
		tracker = continuity.NewTracker()
	})

	Context("ContinuityByID", func() {
		It("matches lanes by key across a resize that drops a middle element", func() {
			tracker.Build(inst, []string{"a", "b", "c"}, registry.ContinuityByID)
			m := tracker.Build(inst, []string{"a", "c"}, registry.ContinuityByID)
			Expect(m.NewToOld).To(Equal([]int{0, 2}))
		})

		It("gives a brand new key no predecessor", func() {
			tracker.Build(inst, []string{"a"}, registry.ContinuityByID)
			m := tracker.Build(inst, []string{"a", "new"}, registry.ContinuityByID)
			Expect(m.NewToOld).To(Equal([]int{0, -1}))
		})
	})

	Context("ContinuityPrefix", func() {
		It("marks every lane fresh when the previous build had no lanes", func() {
			tracker.Build(inst, nil, registry.ContinuityPrefix)
			m := tracker.Build(inst, []string{"x", "y", "z"}, registry.ContinuityPrefix)
			Expect(m.NewToOld).To(Equal([]int{-1, -1, -1}))
		})
	})

	Context("ContinuityNone", func() {
		It("never carries state regardless of key overlap", func() {
			tracker.Build(inst, []string{"a", "b"}, registry.ContinuityByID)
			m := tracker.Build(inst, []string{"a", "b"}, registry.ContinuityNone)
			Expect(m.NewToOld).To(Equal([]int{-1, -1}))
		})
	})

	It("Forget resets an instance's history", func() {
		tracker.Build(inst, []string{"a", "b"}, registry.ContinuityByID)
		tracker.Forget(inst)
		m := tracker.Build(inst, []string{"a", "b"}, registry.ContinuityByID)
		Expect(m.NewToOld).To(Equal([]int{-1, -1}))
	})
})

var _ = Describe("Apply", func() {
	It("copies mapped lanes and backfills unmapped ones with initial", func() {
		m := continuity.Mapping{NewToOld: []int{0, -1, 1}}
		old := []float64{10, 20}
		initial := []float64{-1}
		out := continuity.Apply(m, old, 1, initial)
		Expect(out).To(Equal([]float64{10, -1, 20}))
	})

	It("backfills when the mapped old index is out of the old buffer's range", func() {
		m := continuity.Mapping{NewToOld: []int{5}}
		out := continuity.Apply(m, []float64{1, 2}, 1, []float64{0})
		Expect(out).To(Equal([]float64{0}))
	})

	It("handles multi-arity payloads", func() {
		m := continuity.Mapping{NewToOld: []int{1, 0}}
		old := []float64{1, 2, 3, 4} // lane0={1,2}, lane1={3,4}
		out := continuity.Apply(m, old, 2, []float64{0, 0})
		Expect(out).To(Equal([]float64{3, 4, 1, 2}))
	})
})
