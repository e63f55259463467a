package runtime_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/fieldgraph/engine/backend"
	"github.com/fieldgraph/engine/gtype"
	"github.com/fieldgraph/engine/registry"
	"github.com/fieldgraph/engine/runtime"
)

var _ = Describe("StateStore", func() {
	var store *runtime.StateStore
	const scalarID backend.StateID = "time::t"
	const fieldID backend.StateID = "delay::prev"
	const inst backend.InstanceID = "ring"

	laneCount := func(id backend.InstanceID) int { return 3 }

	BeforeEach(func() {
		store = runtime.NewStateStore()
		store.Sync([]backend.StateSlot{
			{ID: scalarID, Kind: registry.StateScalar, Payload: gtype.Float, InitialValue: []float64{0}},
			{ID: fieldID, Kind: registry.StateFieldLane, Payload: gtype.Float, InitialValue: []float64{0.5}, Instance: inst},
		}, laneCount)
	})

	It("seeds a scalar slot from its initial value", func() {
		Expect(store.Read(scalarID)).To(Equal([]float64{0}))
	})

	It("seeds a field-lane slot at the domain's current lane count", func() {
		Expect(store.Read(fieldID)).To(Equal([]float64{0.5, 0.5, 0.5}))
	})

	It("preserves an already-seeded value across a re-Sync with the same slots", func() {
		store.Write(scalarID, []float64{9})
		store.Sync([]backend.StateSlot{
			{ID: scalarID, Kind: registry.StateScalar, Payload: gtype.Float, InitialValue: []float64{0}},
		}, laneCount)
		Expect(store.Read(scalarID)).To(Equal([]float64{9}))
	})

	It("drops a state slot no longer declared by the new program", func() {
		store.Sync([]backend.StateSlot{
			{ID: scalarID, Kind: registry.StateScalar, Payload: gtype.Float, InitialValue: []float64{0}},
		}, laneCount)
		Expect(store.IDs()).NotTo(ContainElement(fieldID))
	})

	It("reports every field-lane state bound to an instance", func() {
		ids := store.ForInstance(inst)
		Expect(ids).To(ConsistOf(fieldID))
	})

	It("Write resizes in place when the new value differs in length", func() {
		store.Write(fieldID, []float64{1, 2})
		Expect(store.Read(fieldID)).To(Equal([]float64{1, 2}))
	})
})
