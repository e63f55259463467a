// Package timeline tracks a session's frame clock: the absolute virtual
// time a frame executes at and the target frame rate driving it, following
// the donor's own sim.Freq-driven builder idiom for anything that advances
// at a fixed rate.
package timeline

import "github.com/sarchlab/akita/v4/sim"

// Builder constructs a FrameClock. Mirrors the donor's WithFreq fluent
// builders (core.Builder, config.DeviceBuilder, api.DriverBuilder): a value
// receiver, one With method per field, a terminal Build.
type Builder struct {
	freq sim.Freq
}

// NewBuilder returns a Builder with no frequency set; Build panics until
// WithFreq is called, matching the donor's builders leaving zero-value
// fields to fail loudly at Build rather than silently ticking at 0Hz.
func NewBuilder() Builder {
	return Builder{}
}

// WithFreq sets the clock's target frame rate.
func (b Builder) WithFreq(freq sim.Freq) Builder {
	b.freq = freq
	return b
}

// Build returns a FrameClock at time zero, frame index zero.
func (b Builder) Build() FrameClock {
	if b.freq <= 0 {
		panic("timeline: frequency must be positive")
	}
	return FrameClock{freq: b.freq}
}

// FrameClock is the absolute virtual time of a session's frame loop. It
// has no wall-clock dependency: time advances only when Advance is called,
// once per executed frame.
type FrameClock struct {
	freq  sim.Freq
	now   sim.VTimeInSec
	index uint64
}

// Now returns the clock's current virtual time.
func (c FrameClock) Now() sim.VTimeInSec {
	return c.now
}

// FrameIndex returns the number of frames advanced so far.
func (c FrameClock) FrameIndex() uint64 {
	return c.index
}

// TargetFreq returns the clock's configured frame rate.
func (c FrameClock) TargetFreq() sim.Freq {
	return c.freq
}

// Period returns the nominal duration of one frame at TargetFreq.
func (c FrameClock) Period() sim.VTimeInSec {
	return c.freq.Period()
}

// Advance moves the clock forward by one frame period and returns the new
// virtual time, the same fixed-step advance the donor's TickingComponent
// applies once per cycle at its configured frequency.
func (c *FrameClock) Advance() sim.VTimeInSec {
	c.now += c.freq.Period()
	c.index++
	return c.now
}
