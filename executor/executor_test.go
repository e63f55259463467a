package executor_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/fieldgraph/engine/backend"
	"github.com/fieldgraph/engine/executor"
	"github.com/fieldgraph/engine/frontend"
	"github.com/fieldgraph/engine/gtype"
	"github.com/fieldgraph/engine/patchfixture"
	"github.com/fieldgraph/engine/registry"
	"github.com/fieldgraph/engine/registry/stdblocks"
	"github.com/fieldgraph/engine/runtime"
)

func compileFixture(count int) *backend.CompiledProgram {
	reg := registry.New()
	stdblocks.Register(reg)
	patch, err := patchfixture.GoldenRing(count)
	Expect(err).NotTo(HaveOccurred())

	snap := frontend.New(reg, gtype.DefaultAdapters()).Compile(patch)
	Expect(snap.BackendReady).To(BeTrue(), "%v", snap.Diagnostics)

	prog, err := backend.New(reg, stdblocks.Ops()).Compile(snap)
	Expect(err).NotTo(HaveOccurred())
	return prog
}

var _ = Describe("Executor", func() {
	var (
		rt *runtime.Runtime
		ex *executor.Executor
	)

	BeforeEach(func() {
		rt = runtime.New()
		ex = executor.New(rt)
	})

	It("runs a frame and renders one pass per render sink", func() {
		prog := compileFixture(6)
		rt.Install(prog)

		frame, err := ex.Frame()
		Expect(err).NotTo(HaveOccurred())
		Expect(frame.Passes).To(HaveLen(1))

		pass := frame.Passes[0]
		Expect(pass.Primitive).To(Equal("circle"))
		Expect(pass.Count).To(Equal(6))
		Expect(pass.Position).To(HaveLen(6 * 2))
		Expect(pass.Color).To(HaveLen(6 * 4))
	})

	It("sizes field buffers from this frame's domain count, not the zero-valued previous one", func() {
		prog := compileFixture(5000)
		rt.Install(prog)

		frame, err := ex.Frame()
		Expect(err).NotTo(HaveOccurred())
		Expect(frame.Passes[0].Color).To(HaveLen(5000 * 4))
	})

	It("balances the buffer pool across repeated frames", func() {
		prog := compileFixture(8)
		rt.Install(prog)

		for i := 0; i < 5; i++ {
			_, err := ex.Frame()
			Expect(err).NotTo(HaveOccurred())
		}
		Expect(rt.Pool.Balanced()).To(BeTrue())
	})

	It("advances the Time integrator's scalar state frame over frame", func() {
		prog := compileFixture(4)
		rt.Install(prog)

		_, err := ex.Frame()
		Expect(err).NotTo(HaveOccurred())
		t1 := rt.State.Read("time::t")[0]

		_, err = ex.Frame()
		Expect(err).NotTo(HaveOccurred())
		t2 := rt.State.Read("time::t")[0]

		Expect(t2).To(BeNumerically(">", t1))
	})

	It("preserves per-lane delay state across a ring resize via continuity", func() {
		small := compileFixture(4)
		rt.Install(small)
		_, err := ex.Frame()
		Expect(err).NotTo(HaveOccurred())

		before := append([]float64(nil), rt.State.Read("delay::delay")...)

		big := compileFixture(6)
		rt.Install(big)
		_, err = ex.Frame()
		Expect(err).NotTo(HaveOccurred())

		after := rt.State.Read("delay::delay")
		Expect(after).To(HaveLen(6))
		Expect(after[0]).To(Equal(before[0]))
		Expect(after[1]).To(Equal(before[1]))
	})

	It("exposes the render-sink instance name on its render pass", func() {
		prog := compileFixture(3)
		rt.Install(prog)
		frame, err := ex.Frame()
		Expect(err).NotTo(HaveOccurred())
		Expect(frame.Passes[0].Instance).To(Equal("ring"))
	})
})
