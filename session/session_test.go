package session_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/akita/v4/sim"

	"github.com/fieldgraph/engine/eventbus"
	"github.com/fieldgraph/engine/patchfixture"
	"github.com/fieldgraph/engine/registry"
	"github.com/fieldgraph/engine/registry/stdblocks"
	"github.com/fieldgraph/engine/session"
)

func newTestSession() *session.Session {
	reg := registry.New()
	stdblocks.Register(reg)
	sess, err := session.NewBuilder().
		WithRegistry(reg).
		WithOps(stdblocks.Ops()).
		WithFreq(240 * sim.Hz).
		Build()
	Expect(err).NotTo(HaveOccurred())
	return sess
}

var _ = Describe("Builder", func() {
	It("rejects a Build with no registry", func() {
		_, err := session.NewBuilder().WithOps(stdblocks.Ops()).Build()
		Expect(err).To(HaveOccurred())
	})

	It("rejects a Build with no ops table", func() {
		reg := registry.New()
		_, err := session.NewBuilder().WithRegistry(reg).Build()
		Expect(err).To(HaveOccurred())
	})

	It("defaults the frame rate when none is given", func() {
		reg := registry.New()
		sess, err := session.NewBuilder().WithRegistry(reg).WithOps(stdblocks.Ops()).Build()
		Expect(err).NotTo(HaveOccurred())
		Expect(sess.Clock().TargetFreq()).To(Equal(60 * sim.Hz))
	})
})

var _ = Describe("Session", func() {
	It("publishes CompileStart and a successful CompileEnd for a valid patch", func() {
		sess := newTestSession()
		var starts, ends int
		var lastStatus eventbus.CompileStatus
		sess.Bus().Subscribe(eventbus.HookPosCompileStart, func(item any) { starts++ })
		sess.Bus().Subscribe(eventbus.HookPosCompileEnd, func(item any) {
			ends++
			lastStatus = item.(eventbus.CompileEnd).Status
		})

		patch, err := patchfixture.GoldenRing(6)
		Expect(err).NotTo(HaveOccurred())
		snap, err := sess.Compile(patch)
		Expect(err).NotTo(HaveOccurred())
		Expect(snap.BackendReady).To(BeTrue())

		Expect(starts).To(Equal(1))
		Expect(ends).To(Equal(1))
		Expect(lastStatus).To(Equal(eventbus.CompileSuccess))
	})

	It("publishes a hard ProgramSwapped on first install and a soft one on recompile", func() {
		sess := newTestSession()
		var modes []eventbus.SwapMode
		sess.Bus().Subscribe(eventbus.HookPosProgramSwapped, func(item any) {
			modes = append(modes, item.(eventbus.ProgramSwapped).SwapMode)
		})

		p1, err := patchfixture.GoldenRing(4)
		Expect(err).NotTo(HaveOccurred())
		_, err = sess.Compile(p1)
		Expect(err).NotTo(HaveOccurred())

		p2, err := patchfixture.GoldenRing(8)
		Expect(err).NotTo(HaveOccurred())
		_, err = sess.Compile(p2)
		Expect(err).NotTo(HaveOccurred())

		Expect(modes).To(Equal([]eventbus.SwapMode{eventbus.SwapHard, eventbus.SwapSoft}))
	})

	It("runs Execute frames against the installed program", func() {
		sess := newTestSession()
		patch, err := patchfixture.GoldenRing(5)
		Expect(err).NotTo(HaveOccurred())
		_, err = sess.Compile(patch)
		Expect(err).NotTo(HaveOccurred())

		frame, err := sess.Execute()
		Expect(err).NotTo(HaveOccurred())
		Expect(frame.Passes).To(HaveLen(1))
		Expect(sess.Clock().FrameIndex()).To(Equal(uint64(1)))
	})

	It("publishes DomainChanged when a recompile resizes an instance", func() {
		sess := newTestSession()
		var domainEvents []eventbus.DomainChanged
		sess.Bus().Subscribe(eventbus.HookPosDomainChanged, func(item any) {
			domainEvents = append(domainEvents, item.(eventbus.DomainChanged))
		})

		p1, err := patchfixture.GoldenRing(4)
		Expect(err).NotTo(HaveOccurred())
		_, err = sess.Compile(p1)
		Expect(err).NotTo(HaveOccurred())
		_, err = sess.Execute()
		Expect(err).NotTo(HaveOccurred())

		p2, err := patchfixture.GoldenRing(9)
		Expect(err).NotTo(HaveOccurred())
		_, err = sess.Compile(p2)
		Expect(err).NotTo(HaveOccurred())
		_, err = sess.Execute()
		Expect(err).NotTo(HaveOccurred())

		Expect(domainEvents).To(ContainElement(WithTransform(
			func(e eventbus.DomainChanged) int { return e.NewCount }, Equal(9),
		)))
	})

	It("returns a working Debugger only after a successful Compile", func() {
		sess := newTestSession()
		Expect(sess.Debugger()).To(BeNil())

		patch, err := patchfixture.GoldenRing(4)
		Expect(err).NotTo(HaveOccurred())
		_, err = sess.Compile(patch)
		Expect(err).NotTo(HaveOccurred())

		Expect(sess.Debugger()).NotTo(BeNil())
	})
})
