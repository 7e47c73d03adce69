package pipeline

import (
	"sync"
	"sync/atomic"
)

// SimpleSemaphore is a bounded worker-thread permit counter with an "empty"
// wait, used to cap concurrent workers in the queued dispatch path.
type SimpleSemaphore struct {
	cap   int32
	count atomic.Int32

	mu      sync.Mutex
	emptyCh chan struct{}
}

// NewSimpleSemaphore returns a semaphore admitting at most cap concurrent
// holders.
func NewSimpleSemaphore(cap int) *SimpleSemaphore {
	if cap < 1 {
		cap = 1
	}
	s := &SimpleSemaphore{
		cap:     int32(cap),
		emptyCh: make(chan struct{}),
	}
	close(s.emptyCh) // starts empty
	return s
}

// TryEnter attempts to acquire a permit. Returns false, leaving the counter
// unchanged, if the semaphore is already at capacity.
func (s *SimpleSemaphore) TryEnter() bool {
	for {
		cur := s.count.Load()
		if cur >= s.cap {
			return false
		}
		if s.count.CompareAndSwap(cur, cur+1) {
			if cur == 0 {
				s.resetEmpty()
			}
			return true
		}
	}
}

// Exit releases a permit. Must be paired with a successful TryEnter.
func (s *SimpleSemaphore) Exit() {
	if s.count.Add(-1) == 0 {
		s.signalEmpty()
	}
}

// Count returns the number of permits currently held.
func (s *SimpleSemaphore) Count() int {
	return int(s.count.Load())
}

// Empty returns a channel that is closed whenever the semaphore's count is
// zero at the time Empty is called. The channel identity changes once a new
// holder enters, so callers waiting repeatedly must re-fetch it after each
// wake.
func (s *SimpleSemaphore) Empty() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.emptyCh
}

func (s *SimpleSemaphore) resetEmpty() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.emptyCh = make(chan struct{})
}

func (s *SimpleSemaphore) signalEmpty() {
	s.mu.Lock()
	defer s.mu.Unlock()
	close(s.emptyCh)
}
