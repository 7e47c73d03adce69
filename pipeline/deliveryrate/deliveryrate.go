// Package deliveryrate rate-limits how often a DeliveryQueue throttle
// transition may trigger a side-channel notification (logging, metrics,
// alerting), so sustained back-pressure on one receiver doesn't turn into a
// log storm. It never gates the throttle/thaw action on the
// SynchronizationLock itself, only the notification.
package deliveryrate

import (
	"time"

	catrate "github.com/joeycumines/go-catrate"
)

// Limiter wraps a catrate.Limiter with a single sliding window, keyed by
// receiver name.
type Limiter struct {
	inner *catrate.Limiter
}

// New constructs a Limiter allowing at most maxPerWindow notifications per
// window, per receiver.
func New(window time.Duration, maxPerWindow int) *Limiter {
	return &Limiter{inner: catrate.NewLimiter(map[time.Duration]int{window: maxPerWindow})}
}

// Allow reports whether a throttle-transition notification for receiver may
// fire now. A nil Limiter always allows, so callers can treat "no limiter
// configured" and "allow" identically.
func (l *Limiter) Allow(receiver string) bool {
	if l == nil || l.inner == nil {
		return true
	}
	_, ok := l.inner.Allow(receiver)
	return ok
}
