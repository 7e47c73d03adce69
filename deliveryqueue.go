package pipeline

import (
	"sync"
	"time"
)

// queueTransition reports which state boundaries an Enqueue or Dequeue
// call crossed, so the receiver can decide whether to schedule the next
// delivery or freeze/thaw its upstream emitter.
type queueTransition struct {
	toEmpty           bool
	toNotEmpty        bool
	toStartThrottling bool
	toStopThrottling  bool
	toClosing         bool
}

// ScheduleNext reports whether the receiver should schedule its next
// deliver_next work item after this transition.
func (t queueTransition) ScheduleNext() bool {
	return t.toNotEmpty || t.toClosing
}

// DeliveryQueue is a per-receiver bounded FIFO applying a DeliveryPolicy's
// drop, latency, and throttle rules. It owns a RecyclingPool reference
// only to recycle payloads it drops or expires on the receiver's behalf;
// messages it successfully dequeues are the caller's to recycle after use.
type DeliveryQueue[T any] struct {
	mu sync.Mutex

	policy DeliveryPolicy[T]
	pool   *RecyclingPool[T]

	items     []Message[T]
	throttled bool
}

// NewDeliveryQueue constructs an empty queue for policy. pool may be nil
// if the receiver does not recycle payloads.
func NewDeliveryQueue[T any](policy DeliveryPolicy[T], pool *RecyclingPool[T]) *DeliveryQueue[T] {
	initial := policy.InitialQueueSize
	if initial < 0 {
		initial = 0
	}
	return &DeliveryQueue[T]{
		policy: policy,
		pool:   pool,
		items:  make([]Message[T], 0, initial),
	}
}

// Enqueue appends msg, applying the policy's overflow and closing rules,
// and returns the resulting state transition.
func (q *DeliveryQueue[T]) Enqueue(msg Message[T]) queueTransition {
	q.mu.Lock()
	defer q.mu.Unlock()

	wasEmpty := len(q.items) == 0
	closing := msg.Envelope.IsClosing()

	switch {
	case closing:
		// A closing message is never dropped; it also purges every
		// already-queued message whose originating time falls after it,
		// since those describe events the emitter never actually produced.
		kept := q.items[:0:0]
		for _, m := range q.items {
			if m.Envelope.OriginatingTime.After(msg.Envelope.OriginatingTime) {
				q.recycleLocked(m)
				continue
			}
			kept = append(kept, m)
		}
		q.items = append(kept, msg)

	case len(q.items) >= q.policy.MaxQueueSize:
		if q.dropForOverflowLocked(msg) {
			q.items = append(q.items, msg)
		}

	default:
		q.items = append(q.items, msg)
	}

	return q.transitionLocked(wasEmpty, closing)
}

// dropForOverflowLocked applies the MaxQueueSize drop rules for a
// non-closing message arriving at or above capacity, evicting a victim
// from the existing queue where the policy allows. It returns whether msg
// itself should still be appended.
func (q *DeliveryQueue[T]) dropForOverflowLocked(msg Message[T]) bool {
	if q.policy.GuaranteeDelivery == nil {
		if len(q.items) > 0 {
			q.recycleLocked(q.items[0])
			q.items = q.items[1:]
		}
		return true
	}

	guaranteed := q.isGuaranteedLocked(msg)

	if len(q.items) > q.policy.MaxQueueSize {
		return guaranteed
	}

	// len(q.items) == MaxQueueSize: scan once for a droppable victim.
	for i, m := range q.items {
		if !q.isGuaranteedLocked(m) && !m.Envelope.IsClosing() {
			q.recycleLocked(m)
			q.items = append(q.items[:i], q.items[i+1:]...)
			return true
		}
	}
	return guaranteed
}

func (q *DeliveryQueue[T]) isGuaranteedLocked(msg Message[T]) bool {
	return q.policy.GuaranteeDelivery != nil && q.policy.GuaranteeDelivery(&msg.Data)
}

// Dequeue pops the oldest message, skipping (and recycling) any
// non-guaranteed message whose latency exceeds the policy's MaxLatency,
// until it finds one to return or the queue empties.
func (q *DeliveryQueue[T]) Dequeue(now time.Time) (Message[T], queueTransition, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	wasEmpty := len(q.items) == 0
	for len(q.items) > 0 {
		msg := q.items[0]
		q.items = q.items[1:]

		if q.policy.MaxLatency != nil && !q.isGuaranteedLocked(msg) &&
			now.Sub(msg.Envelope.OriginatingTime) > *q.policy.MaxLatency {
			q.recycleLocked(msg)
			continue
		}
		return msg, q.transitionLocked(wasEmpty, msg.Envelope.IsClosing()), true
	}
	return Message[T]{}, q.transitionLocked(wasEmpty, false), false
}

func (q *DeliveryQueue[T]) transitionLocked(wasEmpty, closing bool) queueTransition {
	nowEmpty := len(q.items) == 0
	t := queueTransition{
		toEmpty:    !wasEmpty && nowEmpty,
		toNotEmpty: wasEmpty && !nowEmpty,
		toClosing:  closing,
	}

	if q.policy.ThrottleQueueSize != nil {
		nowThrottled := len(q.items) >= *q.policy.ThrottleQueueSize
		if nowThrottled && !q.throttled {
			t.toStartThrottling = true
		} else if !nowThrottled && q.throttled {
			t.toStopThrottling = true
		}
		q.throttled = nowThrottled
	}

	return t
}

func (q *DeliveryQueue[T]) recycleLocked(msg Message[T]) {
	if q.pool != nil {
		q.pool.Recycle(msg.Data)
	}
}

// Len returns the current queue depth.
func (q *DeliveryQueue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// NextOriginatingTime returns the originating time of the oldest queued
// message, used by the receiver to schedule its next deliver_next work
// item.
func (q *DeliveryQueue[T]) NextOriginatingTime() (time.Time, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return time.Time{}, false
	}
	return q.items[0].Envelope.OriginatingTime, true
}
