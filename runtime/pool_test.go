package runtime_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/fieldgraph/engine/gtype"
	"github.com/fieldgraph/engine/runtime"
)

var _ = Describe("BufferPool", func() {
	var pool *runtime.BufferPool

	BeforeEach(func() {
		pool = runtime.NewBufferPool()
	})

	It("hands out a zeroed buffer of the requested logical length", func() {
		buf := pool.Acquire(gtype.Vec2, 3)
		Expect(buf).To(HaveLen(6))
		for _, v := range buf {
			Expect(v).To(Equal(0.0))
		}
	})

	It("is unbalanced while buffers are outstanding and balanced after ReleaseAll", func() {
		pool.Acquire(gtype.Float, 4)
		Expect(pool.Balanced()).To(BeFalse())
		Expect(pool.Outstanding()).To(Equal(1))
		pool.ReleaseAll()
		Expect(pool.Balanced()).To(BeTrue())
	})

	It("zeroes a released buffer on the next Acquire of the same class", func() {
		first := pool.Acquire(gtype.Float, 4)
		first[0] = 42
		pool.ReleaseAll()
		second := pool.Acquire(gtype.Float, 4)
		Expect(second[0]).To(Equal(0.0), "reacquired buffers must be zeroed")
	})

	It("dirties a fresh buffer without affecting a previous acquisition's contents", func() {
		a := pool.Acquire(gtype.Float, 2)
		a[0] = 7
		b := pool.Acquire(gtype.Float, 2)
		b[0] = 9
		Expect(a[0]).To(Equal(7.0))
	})
})
