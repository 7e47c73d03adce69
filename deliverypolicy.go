package pipeline

import (
	"math"
	"time"
)

// DeliveryPolicy is a receiver's immutable queueing contract: how many
// messages it will buffer, whether it sheds load under back-pressure, and
// whether the emitter may call its callback synchronously.
type DeliveryPolicy[T any] struct {
	// Name identifies the policy for diagnostics; set by the preset
	// constructors below.
	Name string

	// MaxQueueSize bounds the DeliveryQueue. Overflow drops the oldest
	// message unless GuaranteeDelivery is set (see DeliveryQueue.Enqueue).
	MaxQueueSize int

	// ThrottleQueueSize, if non-nil, is the depth at which the queue
	// reports a toStartThrottling transition (and toStopThrottling once
	// back below it). nil disables throttling.
	ThrottleQueueSize *int

	// MaxLatency, if non-nil, bounds how stale a non-guaranteed message
	// may be before Dequeue silently recycles it instead of delivering it.
	MaxLatency *time.Duration

	// AttemptSynchronousDelivery lets the emitter run the receiver's
	// callback on the posting goroutine when the queue is empty and the
	// component's SyncLock is free.
	AttemptSynchronousDelivery bool

	// GuaranteeDelivery, if non-nil, exempts a message from overflow
	// dropping. A closing message is always exempt regardless of this
	// predicate.
	GuaranteeDelivery func(*T) bool

	// InitialQueueSize sizes the DeliveryQueue's backing slice up front.
	InitialQueueSize int
}

// UnlimitedPolicy never drops messages and never throttles; the queue
// grows to hold everything posted. Suited to receivers that can keep up
// or where every message matters more than memory.
func UnlimitedPolicy[T any]() DeliveryPolicy[T] {
	return DeliveryPolicy[T]{
		Name:                       "Unlimited",
		MaxQueueSize:               math.MaxInt,
		AttemptSynchronousDelivery: true,
		InitialQueueSize:           16,
	}
}

// LatestMessagePolicy keeps only the single most recent message, dropping
// whatever was queued whenever a new one arrives. Suited to receivers
// that only care about the current value (e.g. a UI readout).
func LatestMessagePolicy[T any]() DeliveryPolicy[T] {
	return DeliveryPolicy[T]{
		Name:             "LatestMessage",
		MaxQueueSize:     1,
		InitialQueueSize: 1,
	}
}

// ThrottlePolicy queues up to maxQueueSize messages and reports a
// throttling transition once depth crosses throttleQueueSize, so the
// receiver can freeze its upstream emitter until it drains.
func ThrottlePolicy[T any](maxQueueSize, throttleQueueSize int) DeliveryPolicy[T] {
	t := throttleQueueSize
	initial := throttleQueueSize
	if initial > 16 {
		initial = 16
	}
	return DeliveryPolicy[T]{
		Name:              "Throttle",
		MaxQueueSize:      maxQueueSize,
		ThrottleQueueSize: &t,
		InitialQueueSize:  initial,
	}
}

// SynchronousOrThrottlePolicy attempts synchronous delivery like
// UnlimitedPolicy, but falls back to a throttled queue once the receiver
// can't keep up, rather than growing unbounded.
func SynchronousOrThrottlePolicy[T any](maxQueueSize, throttleQueueSize int) DeliveryPolicy[T] {
	t := throttleQueueSize
	return DeliveryPolicy[T]{
		Name:                       "SynchronousOrThrottle",
		MaxQueueSize:               maxQueueSize,
		ThrottleQueueSize:          &t,
		AttemptSynchronousDelivery: true,
		InitialQueueSize:           16,
	}
}

// LatencyConstrainedPolicy never delivers a non-guaranteed message whose
// originating time has fallen more than maxLatency behind virtual now;
// such messages are silently recycled instead.
func LatencyConstrainedPolicy[T any](maxLatency time.Duration) DeliveryPolicy[T] {
	l := maxLatency
	return DeliveryPolicy[T]{
		Name:             "LatencyConstrained",
		MaxQueueSize:     math.MaxInt,
		MaxLatency:       &l,
		InitialQueueSize: 16,
	}
}
