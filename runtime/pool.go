// Package runtime holds the live, hot-swappable execution state: the
// persistent state store, the per-frame value arena, and the buffer pool
// backing both. It never compiles a patch and never decides what a frame
// means; package executor drives it.
package runtime

import "github.com/fieldgraph/engine/gtype"

type poolKey struct {
	payload gtype.Payload
	class   int
}

type acquired struct {
	key poolKey
	buf []float64
}

// BufferPool hands out []float64 buffers bucketed by (payload, capacity
// size-class) so a steady-state instance count reuses allocations frame
// over frame instead of feeding the garbage collector. It is not
// goroutine-safe; each Runtime owns one.
type BufferPool struct {
	free map[poolKey][][]float64
	live []acquired
}

// NewBufferPool returns an empty pool.
func NewBufferPool() *BufferPool {
	return &BufferPool{free: make(map[poolKey][][]float64)}
}

func classFor(n int) int {
	c := 16
	for c < n {
		c *= 2
	}
	return c
}

// Acquire returns a zeroed buffer of length n*payload.Arity(), tracked as
// live until the next ReleaseAll.
func (p *BufferPool) Acquire(payload gtype.Payload, n int) []float64 {
	need := n * payload.Arity()
	key := poolKey{payload, classFor(need)}
	var buf []float64
	if bucket := p.free[key]; len(bucket) > 0 {
		buf = bucket[len(bucket)-1]
		p.free[key] = bucket[:len(bucket)-1]
	} else {
		buf = make([]float64, key.class)
	}
	buf = buf[:need]
	for i := range buf {
		buf[i] = 0
	}
	p.live = append(p.live, acquired{key, buf})
	return buf
}

// ReleaseAll returns every buffer acquired since the last ReleaseAll to
// its free bucket. The frame executor calls this once per frame, after
// copying out whatever must survive into state or continuity storage.
func (p *BufferPool) ReleaseAll() {
	for _, a := range p.live {
		p.free[a.key] = append(p.free[a.key], a.buf[:cap(a.buf)])
	}
	p.live = p.live[:0]
}

// Balanced reports whether every buffer acquired since the last
// ReleaseAll has in fact been released. An executor that ends a frame
// unbalanced has a slot-allocation bug, not an author error.
func (p *BufferPool) Balanced() bool {
	return len(p.live) == 0
}

// Outstanding returns the number of buffers acquired and not yet
// released, for diag.BufferPoolLeak reporting.
func (p *BufferPool) Outstanding() int {
	return len(p.live)
}
