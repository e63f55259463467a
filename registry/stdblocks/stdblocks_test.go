package stdblocks_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/fieldgraph/engine/backend"
	"github.com/fieldgraph/engine/registry"
	"github.com/fieldgraph/engine/registry/stdblocks"
)

var _ = Describe("Register", func() {
	It("registers every Defs entry into the registry", func() {
		reg := registry.New()
		stdblocks.Register(reg)
		for _, d := range stdblocks.Defs() {
			_, ok := reg.Lookup(d.Type)
			Expect(ok).To(BeTrue(), "missing %s", d.Type)
		}
	})
})

var _ = Describe("Ops", func() {
	It("supplies an Op for every non-state, non-render-sink Defs entry", func() {
		ops := stdblocks.Ops()
		for _, d := range stdblocks.Defs() {
			if d.State != registry.StateNone || d.Role == registry.RoleRenderSink {
				continue
			}
			_, ok := ops[d.Type]
			Expect(ok).To(BeTrue(), "missing op for %s", d.Type)
		}
	})

	It("gives PhaseRing a domain op that reports its count param as lane count", func() {
		op := stdblocks.Ops()[stdblocks.PhaseRing]
		Expect(op.Kind).To(Equal(backend.OpDomainKind))
		n := op.Domain(map[string]any{"count": 10}, nil)
		Expect(n).To(Equal(10))
	})
})
