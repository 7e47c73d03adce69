package pipeline

import (
	"sync"
	"time"
)

// SchedulerContext tracks in-flight work and a finalize time for one
// logical scope (the root pipeline, or a subpipeline). Every scheduled work
// item, and every synchronously executed action, increments inFlight on
// Enter and decrements it on Exit; the empty event fires whenever inFlight
// reaches zero.
type SchedulerContext struct {
	mu sync.Mutex

	clock        Clock
	started      bool
	finalizeTime time.Time
	hasFinalize  bool

	inFlight int32
	emptyCh  chan struct{}
}

// NewSchedulerContext returns a context not yet started, with inFlight == 0.
func NewSchedulerContext() *SchedulerContext {
	ch := make(chan struct{})
	close(ch)
	return &SchedulerContext{emptyCh: ch}
}

// Start marks the context as started and records the clock snapshot used
// for subsequent Now()/FinalizeTime comparisons.
func (c *SchedulerContext) Start(clock Clock) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clock = clock
	c.started = true
}

// Stop clears started. Any subsequent Enter on this context is a no-op
// drop that returns false; work Entered before Stop must still Exit.
func (c *SchedulerContext) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.started = false
}

// Started reports whether the context currently accepts new work.
func (c *SchedulerContext) Started() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.started
}

// Clock returns the context's clock snapshot.
func (c *SchedulerContext) Clock() Clock {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.clock
}

// SetFinalizeTime records the instant beyond which no further work item may
// execute; items with startTime > finalizeTime are dropped (but still
// Exit the context).
func (c *SchedulerContext) SetFinalizeTime(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.finalizeTime = t
	c.hasFinalize = true
}

// FinalizeTime returns the recorded finalize time and whether one has been
// set.
func (c *SchedulerContext) FinalizeTime() (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.finalizeTime, c.hasFinalize
}

// Enter increments the in-flight counter. Returns false without
// incrementing if the context is stopped.
func (c *SchedulerContext) Enter() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.started {
		return false
	}
	if c.inFlight == 0 {
		c.emptyCh = make(chan struct{})
	}
	c.inFlight++
	return true
}

// Exit decrements the in-flight counter, firing the empty event if it
// reaches zero. Exit must be called exactly once per successful Enter,
// including on dropped/finalized work items.
func (c *SchedulerContext) Exit() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inFlight--
	if c.inFlight == 0 {
		close(c.emptyCh)
	}
}

// InFlight returns the current in-flight counter value.
func (c *SchedulerContext) InFlight() int32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inFlight
}

// Empty returns a channel closed whenever inFlight is zero at the moment of
// the call.
func (c *SchedulerContext) Empty() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.emptyCh
}

// PastFinalize reports whether t falls beyond the recorded finalize time;
// false if no finalize time has been set yet.
func (c *SchedulerContext) PastFinalize(t time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hasFinalize && t.After(c.finalizeTime)
}
