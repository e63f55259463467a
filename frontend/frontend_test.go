package frontend_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/fieldgraph/engine/diag"
	"github.com/fieldgraph/engine/frontend"
	"github.com/fieldgraph/engine/graph"
	"github.com/fieldgraph/engine/gtype"
	"github.com/fieldgraph/engine/patchfixture"
	"github.com/fieldgraph/engine/registry"
	"github.com/fieldgraph/engine/registry/stdblocks"
)

func signalType(p gtype.Payload, u gtype.Unit) gtype.Type {
	return gtype.Type{Payload: p, Unit: u, Cardinality: gtype.Signal}
}

var _ = Describe("Compile", func() {
	It("marks the golden-ring fixture backendReady with no diagnostics", func() {
		reg := registry.New()
		stdblocks.Register(reg)
		patch, err := patchfixture.GoldenRing(6)
		Expect(err).NotTo(HaveOccurred())

		snap := frontend.New(reg, gtype.DefaultAdapters()).Compile(patch)
		Expect(snap.BackendReady).To(BeTrue(), "%v", snap.Diagnostics)
		Expect(snap.Diagnostics.HasErrors()).To(BeFalse())
	})

	It("reports UnresolvedInput for a required port with no edge and no default", func() {
		reg := registry.New()
		stdblocks.Register(reg)
		patch := graph.New()
		patch.AddBlock(&graph.Block{ID: "sum", Type: stdblocks.Sum})

		snap := frontend.New(reg, gtype.DefaultAdapters()).Compile(patch)
		Expect(snap.BackendReady).To(BeFalse())

		found := false
		for _, d := range snap.Diagnostics {
			if d.Kind == diag.UnresolvedInput && d.Block == "sum" {
				found = true
			}
		}
		Expect(found).To(BeTrue())
	})

	It("flags a dependency cycle with no state-holding block as illegal", func() {
		reg := registry.New()
		stdblocks.Register(reg)
		patch := graph.New()
		patch.AddBlock(&graph.Block{ID: "a", Type: stdblocks.Sum})
		patch.AddBlock(&graph.Block{ID: "b", Type: stdblocks.Sum})
		patch.AddEdge(&graph.Edge{ID: "e1", From: graph.Endpoint{Block: "a", Port: "out"}, To: graph.Endpoint{Block: "b", Port: "terms"}})
		patch.AddEdge(&graph.Edge{ID: "e2", From: graph.Endpoint{Block: "b", Port: "out"}, To: graph.Endpoint{Block: "a", Port: "terms"}})

		snap := frontend.New(reg, gtype.DefaultAdapters()).Compile(patch)
		Expect(snap.BackendReady).To(BeFalse())

		var illegal []string
		for _, d := range snap.Diagnostics {
			if d.Kind == diag.IllegalCycle {
				illegal = append(illegal, d.Block)
			}
		}
		Expect(illegal).To(ConsistOf("a", "b"))
	})

	It("treats a cycle broken by a state-holding block as legal", func() {
		reg := registry.New()
		stdblocks.Register(reg)
		patch, err := patchfixture.GoldenRing(4)
		Expect(err).NotTo(HaveOccurred())

		snap := frontend.New(reg, gtype.DefaultAdapters()).Compile(patch)
		Expect(snap.Cycles.Components).NotTo(BeEmpty())
		for _, c := range snap.Cycles.Components {
			Expect(c.Legal).To(BeTrue(), "%v", c.Blocks)
		}
	})

	It("splices in a unit adapter when payloads match but units differ", func() {
		reg := registry.New()
		reg.Register(registry.BlockDef{
			Type:    "DegSource",
			Outputs: []registry.OutputPortDef{{ID: "out", Type: signalType(gtype.Float, gtype.UnitDegrees)}},
		})
		reg.Register(registry.BlockDef{
			Type:   "RadSink",
			Inputs: []registry.InputPortDef{{ID: "in", Type: signalType(gtype.Float, gtype.UnitRadians)}},
		})

		patch := graph.New()
		patch.AddBlock(&graph.Block{ID: "src", Type: "DegSource", DisplayName: "Source"})
		patch.AddBlock(&graph.Block{ID: "dst", Type: "RadSink", DisplayName: "Sink"})
		patch.AddEdge(&graph.Edge{ID: "e1", From: graph.Endpoint{Block: "src", Port: "out"}, To: graph.Endpoint{Block: "dst", Port: "in"}})

		snap := frontend.New(reg, gtype.DefaultAdapters()).Compile(patch)
		Expect(snap.BackendReady).To(BeTrue(), "%v", snap.Diagnostics)

		prov := snap.Provenance[graph.Endpoint{Block: "dst", Port: "in"}]
		Expect(prov.Provenance).To(Equal(frontend.ProvAdapter))
	})

	It("reports TypeMismatch when no adapter path exists", func() {
		reg := registry.New()
		reg.Register(registry.BlockDef{
			Type:    "ColorSource",
			Outputs: []registry.OutputPortDef{{ID: "out", Type: signalType(gtype.Color, gtype.UnitNone)}},
		})
		reg.Register(registry.BlockDef{
			Type:   "FloatSink",
			Inputs: []registry.InputPortDef{{ID: "in", Type: signalType(gtype.Float, gtype.UnitScalar)}},
		})

		patch := graph.New()
		patch.AddBlock(&graph.Block{ID: "src", Type: "ColorSource"})
		patch.AddBlock(&graph.Block{ID: "dst", Type: "FloatSink"})
		patch.AddEdge(&graph.Edge{ID: "e1", From: graph.Endpoint{Block: "src", Port: "out"}, To: graph.Endpoint{Block: "dst", Port: "in"}})

		snap := frontend.New(reg, gtype.DefaultAdapters()).Compile(patch)
		Expect(snap.BackendReady).To(BeFalse())

		found := false
		for _, d := range snap.Diagnostics {
			if d.Kind == diag.TypeMismatch {
				found = true
			}
		}
		Expect(found).To(BeTrue())
	})
})
