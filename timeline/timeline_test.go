package timeline_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/akita/v4/sim"

	"github.com/fieldgraph/engine/timeline"
)

var _ = Describe("Builder", func() {
	It("panics when built with no frequency set", func() {
		Expect(func() { timeline.NewBuilder().Build() }).To(Panic())
	})

	It("derives the frame period from the target frequency", func() {
		clock := timeline.NewBuilder().WithFreq(60 * sim.Hz).Build()
		Expect(clock.TargetFreq()).To(Equal(60 * sim.Hz))
		Expect(float64(clock.Period())).To(BeNumerically("~", 1.0/60.0, 1e-9))
	})
})

var _ = Describe("FrameClock", func() {
	It("advances virtual time by exactly one period per Advance call", func() {
		clock := timeline.NewBuilder().WithFreq(60 * sim.Hz).Build()
		Expect(clock.Now()).To(Equal(sim.VTimeInSec(0)))
		Expect(clock.FrameIndex()).To(Equal(uint64(0)))

		clock.Advance()
		Expect(float64(clock.Now())).To(BeNumerically("~", 1.0/60.0, 1e-9))
		Expect(clock.FrameIndex()).To(Equal(uint64(1)))

		clock.Advance()
		Expect(float64(clock.Now())).To(BeNumerically("~", 2.0/60.0, 1e-9))
		Expect(clock.FrameIndex()).To(Equal(uint64(2)))
	})
})
