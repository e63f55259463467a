package backend_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/fieldgraph/engine/backend"
	"github.com/fieldgraph/engine/frontend"
	"github.com/fieldgraph/engine/graph"
	"github.com/fieldgraph/engine/gtype"
	"github.com/fieldgraph/engine/patchfixture"
	"github.com/fieldgraph/engine/registry"
	"github.com/fieldgraph/engine/registry/stdblocks"
)

func compileSnapshot(p *graph.Patch) (*frontend.Snapshot, *registry.Registry) {
	reg := registry.New()
	stdblocks.Register(reg)
	return frontend.New(reg, gtype.DefaultAdapters()).Compile(p), reg
}

var _ = Describe("Compile", func() {
	It("lowers the golden-ring fixture into a schedule with every phase present", func() {
		patch, err := patchfixture.GoldenRing(8)
		Expect(err).NotTo(HaveOccurred())
		snap, reg := compileSnapshot(patch)
		Expect(snap.BackendReady).To(BeTrue())

		prog, err := backend.New(reg, stdblocks.Ops()).Compile(snap)
		Expect(err).NotTo(HaveOccurred())

		phases := map[backend.Phase]bool{}
		for _, s := range prog.Schedule {
			phases[s.Phase] = true
		}
		Expect(phases[backend.Phase1]).To(BeTrue())
		Expect(phases[backend.PhaseBoundary]).To(BeTrue())
		Expect(phases[backend.Phase2]).To(BeTrue())
		Expect(phases[backend.PhasePostFrame]).To(BeTrue())
	})

	It("orders ContinuityMapBuild before ContinuityApply for every instance", func() {
		patch, err := patchfixture.GoldenRing(5)
		Expect(err).NotTo(HaveOccurred())
		snap, reg := compileSnapshot(patch)
		prog, err := backend.New(reg, stdblocks.Ops()).Compile(snap)
		Expect(err).NotTo(HaveOccurred())

		buildIdx, applyIdx := -1, -1
		for i, s := range prog.Schedule {
			if s.Kind == backend.StepContinuityMapBuild && buildIdx == -1 {
				buildIdx = i
			}
			if s.Kind == backend.StepContinuityApply && applyIdx == -1 {
				applyIdx = i
			}
		}
		Expect(buildIdx).To(BeNumerically(">=", 0))
		Expect(applyIdx).To(BeNumerically(">", buildIdx))
	})

	It("schedules every StepReadState after this instance's ContinuityApply, so a resize lands before any read", func() {
		patch, err := patchfixture.GoldenRing(5)
		Expect(err).NotTo(HaveOccurred())
		snap, reg := compileSnapshot(patch)
		prog, err := backend.New(reg, stdblocks.Ops()).Compile(snap)
		Expect(err).NotTo(HaveOccurred())

		lastApplyIdx := -1
		firstReadIdx := -1
		for i, s := range prog.Schedule {
			if s.Kind == backend.StepContinuityApply {
				lastApplyIdx = i
			}
			if s.Kind == backend.StepReadState && firstReadIdx == -1 {
				firstReadIdx = i
			}
		}
		Expect(lastApplyIdx).To(BeNumerically(">=", 0))
		Expect(firstReadIdx).To(BeNumerically(">", lastApplyIdx))
	})

	It("schedules state reads in Phase1 and state writes in Phase2, keyed by stable StateID", func() {
		patch, err := patchfixture.GoldenRing(5)
		Expect(err).NotTo(HaveOccurred())
		snap, reg := compileSnapshot(patch)
		prog, err := backend.New(reg, stdblocks.Ops()).Compile(snap)
		Expect(err).NotTo(HaveOccurred())

		var reads, writes []backend.Step
		for _, s := range prog.Schedule {
			if s.Kind == backend.StepReadState || s.Kind == backend.StepWriteFieldState || s.Kind == backend.StepWriteState {
				if s.Kind == backend.StepReadState {
					reads = append(reads, s)
				} else {
					writes = append(writes, s)
				}
			}
		}
		Expect(reads).NotTo(BeEmpty())
		Expect(writes).NotTo(BeEmpty())
		for _, r := range reads {
			Expect(r.Phase).To(Equal(backend.Phase1))
			Expect(string(r.StateID)).To(ContainSubstring("::"))
		}
		for _, w := range writes {
			Expect(w.Phase).To(Equal(backend.Phase2))
		}
	})

	It("schedules the render sink in PostFrame with resolved slots", func() {
		patch, err := patchfixture.GoldenRing(5)
		Expect(err).NotTo(HaveOccurred())
		snap, reg := compileSnapshot(patch)
		prog, err := backend.New(reg, stdblocks.Ops()).Compile(snap)
		Expect(err).NotTo(HaveOccurred())

		var renders []backend.Step
		for _, s := range prog.Schedule {
			if s.Kind == backend.StepRender {
				renders = append(renders, s)
			}
		}
		Expect(renders).To(HaveLen(1))
		r := renders[0]
		Expect(r.Phase).To(Equal(backend.PhasePostFrame))
		Expect(r.Render).NotTo(BeNil())
		Expect(r.Render.PositionSlot).NotTo(Equal(backend.NoSlot))
		Expect(r.Render.ColorSlot).NotTo(Equal(backend.NoSlot))
	})

	It("combines multiple edges into one Sum terms port via sumLanes", func() {
		patch := graph.New()
		patch.AddBlock(&graph.Block{ID: "a", Type: stdblocks.Const, Params: map[string]any{"value": 2.0}})
		patch.AddBlock(&graph.Block{ID: "b", Type: stdblocks.Const, Params: map[string]any{"value": 3.0}})
		patch.AddBlock(&graph.Block{ID: "sum", Type: stdblocks.Sum})
		patch.AddEdge(&graph.Edge{ID: "e1", From: graph.Endpoint{Block: "a", Port: "out"}, To: graph.Endpoint{Block: "sum", Port: "terms"}})
		patch.AddEdge(&graph.Edge{ID: "e2", From: graph.Endpoint{Block: "b", Port: "out"}, To: graph.Endpoint{Block: "sum", Port: "terms"}})

		snap, reg := compileSnapshot(patch)
		Expect(snap.BackendReady).To(BeTrue(), "%v", snap.Diagnostics)

		prog, err := backend.New(reg, stdblocks.Ops()).Compile(snap)
		Expect(err).NotTo(HaveOccurred())

		slots := prog.Debug.BlockToSlots["sum"]
		Expect(slots).NotTo(BeEmpty())
		sumSlot := slots[len(slots)-1]
		expr := prog.Exprs[sumSlot]
		Expect(expr.Args).To(HaveLen(2))
		Expect(expr.Op.Scalar).NotTo(BeNil())
		got := expr.Op.Scalar(nil, [][]float64{{2.0}, {3.0}})
		Expect(got).To(Equal([]float64{5.0}))
	})

	It("builds a DebugIndex that maps every expr slot back to its block and port", func() {
		patch, err := patchfixture.GoldenRing(4)
		Expect(err).NotTo(HaveOccurred())
		snap, reg := compileSnapshot(patch)
		prog, err := backend.New(reg, stdblocks.Ops()).Compile(snap)
		Expect(err).NotTo(HaveOccurred())

		for i := range prog.Exprs {
			ep, ok := prog.Debug.SlotToPort[backend.SlotID(i)]
			Expect(ok).To(BeTrue())
			Expect(ep.Block).NotTo(BeEmpty())
		}
	})

	It("derives stable state identities from block ID and state role tag", func() {
		patch, err := patchfixture.GoldenRing(4)
		Expect(err).NotTo(HaveOccurred())
		snap, reg := compileSnapshot(patch)
		prog, err := backend.New(reg, stdblocks.Ops()).Compile(snap)
		Expect(err).NotTo(HaveOccurred())

		for _, s := range prog.StateSlots {
			Expect(string(s.ID)).To(Equal(string(s.Block) + "::" + roleTagOf(s)))
		}
	})
})

func roleTagOf(s backend.StateSlot) string {
	id := string(s.ID)
	block := string(s.Block)
	return id[len(block)+2:]
}
