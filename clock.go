package pipeline

import "time"

// Clock maps virtual time to wall-clock (real) time by an anchor plus a
// dilation factor: real = realOrigin + (virtual - virtualOrigin) * dilation.
//
// A dilation of 0 freezes virtual time at virtualOrigin indefinitely; the
// scheduler relies on this to force pre-start work items into the future
// queue (see FutureWorkItemQueue).
type Clock struct {
	virtualOrigin time.Time
	realOrigin    time.Time
	dilation      float64
}

// NewClock constructs a Clock anchored at virtualOrigin/realOrigin with the
// given dilation factor.
func NewClock(virtualOrigin, realOrigin time.Time, dilation float64) Clock {
	return Clock{
		virtualOrigin: virtualOrigin,
		realOrigin:    realOrigin,
		dilation:      dilation,
	}
}

// Now returns the current virtual time, computed from the real wall clock.
// Monotonic provided time.Now is monotonic; with dilation == 0 it always
// returns virtualOrigin.
func (c Clock) Now() time.Time {
	return c.virtualOrigin.Add(c.ToVirtualSpan(time.Since(c.realOrigin)))
}

// ToRealSpan converts a virtual duration into the equivalent real duration
// under this clock's dilation.
func (c Clock) ToRealSpan(virtualSpan time.Duration) time.Duration {
	if c.dilation == 0 {
		return 0
	}
	return time.Duration(float64(virtualSpan) * c.dilation)
}

// ToVirtualSpan converts a real duration into the equivalent virtual
// duration under this clock's dilation.
func (c Clock) ToVirtualSpan(realSpan time.Duration) time.Duration {
	if c.dilation == 0 {
		return 0
	}
	return time.Duration(float64(realSpan) / c.dilation)
}

// ToRealTime converts a virtual instant into the real instant at which it
// occurs under this clock.
func (c Clock) ToRealTime(virtual time.Time) time.Time {
	return c.realOrigin.Add(c.ToRealSpan(virtual.Sub(c.virtualOrigin)))
}

// Dilation returns the clock's dilation factor.
func (c Clock) Dilation() float64 {
	return c.dilation
}

// VirtualOrigin returns the virtual instant this clock is anchored at.
func (c Clock) VirtualOrigin() time.Time {
	return c.virtualOrigin
}

// frozenClock is the zero-dilation clock used before a pipeline starts.
func frozenClock(virtualOrigin time.Time) Clock {
	return NewClock(virtualOrigin, time.Now(), 0)
}
