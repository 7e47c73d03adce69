package pipeline

import (
	"sync"
	"sync/atomic"
)

// RecyclingPool is a per-type object pool used to eliminate steady-state
// allocation of message payloads. It tracks outstanding/available counts as
// diagnostics only; recycling an item twice, or recycling after the pool is
// no longer referenced, is the caller's bug and is not detected here.
type RecyclingPool[T any] struct {
	factory func() T
	reset   func(*T)

	mu        sync.Mutex
	available []T

	outstanding atomic.Int64
	softCap     int
}

// NewRecyclingPool constructs a pool using factory to create new items when
// empty. reset, if non-nil, is called on an item immediately before it is
// handed out again by Get, to clear stale state. softCap of 0 means
// unbounded retention (see DESIGN.md's Open Question decision on pool
// growth); a positive softCap stops retaining recycled items beyond that
// count, releasing the excess to the garbage collector instead.
func NewRecyclingPool[T any](factory func() T, reset func(*T), softCap int) *RecyclingPool[T] {
	if factory == nil {
		factory = func() T { var zero T; return zero }
	}
	return &RecyclingPool[T]{
		factory: factory,
		reset:   reset,
		softCap: softCap,
	}
}

// Get returns a recycled item if one is available, otherwise a fresh one
// from the factory. Every successful Get increments Outstanding.
func (p *RecyclingPool[T]) Get() T {
	p.mu.Lock()
	n := len(p.available)
	var item T
	if n > 0 {
		item = p.available[n-1]
		p.available = p.available[:n-1]
	}
	p.mu.Unlock()

	if n == 0 {
		item = p.factory()
	} else if p.reset != nil {
		p.reset(&item)
	}
	p.outstanding.Add(1)
	return item
}

// Recycle returns item to the pool. The caller guarantees no outstanding
// alias to item remains in use.
func (p *RecyclingPool[T]) Recycle(item T) {
	p.outstanding.Add(-1)

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.softCap > 0 && len(p.available) >= p.softCap {
		return
	}
	p.available = append(p.available, item)
}

// Outstanding returns the number of items currently checked out via Get and
// not yet returned via Recycle. Diagnostic only.
func (p *RecyclingPool[T]) Outstanding() int64 {
	return p.outstanding.Load()
}

// Available returns the number of items currently retained for reuse.
// Diagnostic only.
func (p *RecyclingPool[T]) Available() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.available)
}
