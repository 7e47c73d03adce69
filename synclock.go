package pipeline

import (
	"sync/atomic"
)

// SynchronizationLock is a component's single exclusivity token: a
// non-reentrant try-lock held while any of the component's callbacks runs,
// and held (without an owning callback) to "freeze" an upstream emitter
// during throttling.
//
// It is a plain counter rather than a boolean so Hold/Release (throttling)
// and TryLock/Release (callback execution) can compose: an emitter frozen
// by throttling is simultaneously ineligible for synchronous delivery,
// because TryLock only succeeds from count 0.
type SynchronizationLock struct {
	count atomic.Int32
}

// NewSynchronizationLock returns an unlocked SynchronizationLock.
func NewSynchronizationLock() *SynchronizationLock {
	return &SynchronizationLock{}
}

// TryLock attempts the 0→1 transition. Returns true on success.
func (l *SynchronizationLock) TryLock() bool {
	return l.count.CompareAndSwap(0, 1)
}

// Release decrements the counter. Panics with ErrLockReleaseImbalance
// wrapped in a *CallbackError-free form if the count would go negative,
// since that indicates a core bug rather than a recoverable condition.
func (l *SynchronizationLock) Release() {
	if l.count.Add(-1) < 0 {
		panic(ErrLockReleaseImbalance)
	}
}

// Hold unconditionally increments the counter, used to freeze the lock
// during back-pressure. Pairs with Release, not with TryLock's caller.
func (l *SynchronizationLock) Hold() {
	l.count.Add(1)
}

// Locked reports whether the lock is currently held by anyone (a callback,
// a freeze, or both).
func (l *SynchronizationLock) Locked() bool {
	return l.count.Load() > 0
}
