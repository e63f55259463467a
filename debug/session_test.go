package debug_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/fieldgraph/engine/backend"
	"github.com/fieldgraph/engine/debug"
	"github.com/fieldgraph/engine/debugindex"
	"github.com/fieldgraph/engine/executor"
	"github.com/fieldgraph/engine/frontend"
	"github.com/fieldgraph/engine/graph"
	"github.com/fieldgraph/engine/gtype"
	"github.com/fieldgraph/engine/patchfixture"
	"github.com/fieldgraph/engine/registry"
	"github.com/fieldgraph/engine/registry/stdblocks"
	"github.com/fieldgraph/engine/runtime"
)

func buildSession(count int) (*debug.Session, *runtime.Runtime) {
	reg := registry.New()
	stdblocks.Register(reg)
	patch, err := patchfixture.GoldenRing(count)
	Expect(err).NotTo(HaveOccurred())

	snap := frontend.New(reg, gtype.DefaultAdapters()).Compile(patch)
	Expect(snap.BackendReady).To(BeTrue(), "%v", snap.Diagnostics)

	prog, err := backend.New(reg, stdblocks.Ops()).Compile(snap)
	Expect(err).NotTo(HaveOccurred())

	rt := runtime.New()
	rt.Install(prog)
	ex := executor.New(rt)
	idx := debugindex.Build(prog.Debug)

	return debug.New(rt, ex, idx, snap), rt
}

var _ = Describe("Session", func() {
	It("steps through an entire frame and reaches Done", func() {
		sess, _ := buildSession(4)
		sess.StartFrame()

		var last debug.Snapshot
		for {
			last = sess.StepNext()
			if last.Done {
				break
			}
		}
		Expect(last.Done).To(BeTrue())
	})

	It("reports the block name for a step that carries one", func() {
		sess, _ := buildSession(4)
		sess.StartFrame()

		found := false
		for {
			snap := sess.StepNext()
			if snap.Block != "" && snap.BlockName != "" {
				found = true
			}
			if snap.Done {
				break
			}
		}
		Expect(found).To(BeTrue())
	})

	It("stops RunToBreakpoint at a BreakAtBlock condition", func() {
		sess, _ := buildSession(4)
		sess.StartFrame()
		sess.AddBreakpoint(debug.Breakpoint{Kind: debug.BreakAtBlock, Block: "sink"})

		snap, bp := sess.RunToBreakpoint()
		Expect(bp).NotTo(BeNil())
		Expect(snap.Block).To(Equal(graph.BlockID("sink")))
	})

	It("finishes the remainder of the frame and balances the buffer pool", func() {
		sess, rt := buildSession(6)
		sess.StartFrame()

		for i := 0; i < 3; i++ {
			snap := sess.StepNext()
			if snap.Done {
				break
			}
		}

		_, err := sess.FinishFrame()
		Expect(err).NotTo(HaveOccurred())
		Expect(rt.Pool.Balanced()).To(BeTrue())
	})

	It("reports why a never-connected block did not evaluate", func() {
		reg := registry.New()
		stdblocks.Register(reg)
		patch, err := patchfixture.GoldenRing(4)
		Expect(err).NotTo(HaveOccurred())
		patch.AddBlock(&graph.Block{ID: "orphan", Type: stdblocks.Const})

		snap := frontend.New(reg, gtype.DefaultAdapters()).Compile(patch)
		prog, err := backend.New(reg, stdblocks.Ops()).Compile(snap)
		Expect(err).NotTo(HaveOccurred())

		rt := runtime.New()
		rt.Install(prog)
		ex := executor.New(rt)
		idx := debugindex.Build(prog.Debug)
		sess := debug.New(rt, ex, idx, snap)

		reasons := sess.AnalyzeWhyNotEvaluated("orphan", "")
		Expect(reasons).NotTo(BeEmpty())
		Expect(reasons[0].Kind).To(Equal(debug.ReasonNoConnections))
	})
})
