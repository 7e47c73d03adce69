package pipeline

import (
	"sync"
	"time"

	"github.com/kalgorithm/flowrt/pipeline/deliveryrate"
)

// Receiver is a typed input stream: it holds a DeliveryQueue governed by a
// DeliveryPolicy, and runs its callback either synchronously on the posting
// goroutine (the fast path) or via a scheduled WorkItem once the message has
// been queued.
type Receiver[T any] struct {
	id      int32
	name    string
	element *PipelineElement

	onReceived func(Message[T])
	clone      func(T) T

	mu       sync.Mutex
	policy   DeliveryPolicy[T]
	queue    *DeliveryQueue[T]
	pool     *RecyclingPool[T]
	source   *Emitter[T]
	lastTime time.Time
	hasLast  bool

	unsubMu       sync.Mutex
	unsubHandlers []func(finalOriginatingTime time.Time)
	unsubFired    bool

	throttleLimiter *deliveryrate.Limiter
	throttleNotify  func(receiver string, throttled bool)
}

// CreateReceiver constructs a Receiver[T] owned by element, registers it for
// lifecycle management, and returns it. onReceived runs once per delivered
// message; it must not mutate or retain msg.Data once it returns.
func CreateReceiver[T any](element *PipelineElement, name string, onReceived func(Message[T])) *Receiver[T] {
	r := &Receiver[T]{
		id:         element.nextReceiverID(),
		name:       name,
		element:    element,
		onReceived: onReceived,
	}
	element.addReceiver(r)
	return r
}

// ID returns the receiver's id.
func (r *Receiver[T]) ID() int32 { return r.id }

// Name returns the receiver's name.
func (r *Receiver[T]) Name() string { return r.name }

// WithIsolation installs clone, used to deep-copy a message's payload
// before it is handed to the DeliveryQueue, so a later post to the same
// emitter can't race a payload still sitting in this receiver's queue. Pass
// nil (the default) when T holds no shared mutable state, or when the
// component is known never to reuse a buffer across posts.
func (r *Receiver[T]) WithIsolation(clone func(T) T) *Receiver[T] {
	r.clone = clone
	return r
}

// WithPool installs a RecyclingPool the DeliveryQueue uses to recycle
// payloads it drops or expires.
func (r *Receiver[T]) WithPool(pool *RecyclingPool[T]) *Receiver[T] {
	r.pool = pool
	return r
}

// WithThrottleNotifier installs a side-channel callback invoked on every
// throttle start/stop transition (after Hold/Release on the upstream
// emitter's SyncLock has already run), gated by limiter so sustained
// back-pressure doesn't flood logs or metrics. limiter may be nil to
// disable rate limiting; notify may not be nil.
func (r *Receiver[T]) WithThrottleNotifier(limiter *deliveryrate.Limiter, notify func(receiver string, throttled bool)) *Receiver[T] {
	r.throttleLimiter = limiter
	r.throttleNotify = notify
	return r
}

// OnUnsubscribed registers a handler invoked exactly once, with the final
// originating time, when this receiver's subscription ends (either because
// its upstream emitter closed, or because it was explicitly unsubscribed).
// Handlers must be registered before the subscription ends.
func (r *Receiver[T]) OnUnsubscribed(handler func(finalOriginatingTime time.Time)) {
	r.unsubMu.Lock()
	defer r.unsubMu.Unlock()
	r.unsubHandlers = append(r.unsubHandlers, handler)
}

// bind attaches source as this receiver's upstream emitter under policy,
// constructing a fresh DeliveryQueue. Called by Emitter.Subscribe.
func (r *Receiver[T]) bind(source *Emitter[T], policy DeliveryPolicy[T]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.source = source
	r.policy = policy
	r.queue = NewDeliveryQueue(policy, r.pool)
}

func (r *Receiver[T]) scheduler() *Scheduler { return r.element.Pipeline.scheduler }

func (r *Receiver[T]) lastOriginating() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastTime
}

// receive is called directly by the upstream Emitter for every posted
// message. It attempts synchronous delivery when the policy allows it and
// the queue is currently empty; otherwise it enqueues and, if the resulting
// transition warrants it, schedules a deliver_next WorkItem.
func (r *Receiver[T]) receive(msg Message[T]) {
	r.mu.Lock()
	policy := r.policy
	queueEmpty := r.queue == nil || r.queue.Len() == 0
	r.mu.Unlock()

	if policy.AttemptSynchronousDelivery && queueEmpty {
		if r.tryDeliverSynchronously(msg) {
			return
		}
	}
	r.enqueueAndSchedule(msg)
}

// tryDeliverSynchronously attempts the fast path: running the callback on
// the calling goroutine if the component's SyncLock is currently free. It
// reports false (meaning the caller must fall back to enqueueing) if the
// lock is held or the scheduler has stopped accepting work: either way, no
// message may be considered delivered unless it actually ran.
func (r *Receiver[T]) tryDeliverSynchronously(msg Message[T]) bool {
	r.element.ctx.Enter()
	wi := &WorkItem{
		SyncLock:  r.element.syncLock,
		Context:   r.element.ctx,
		StartTime: msg.Envelope.OriginatingTime,
		Component: r.element.Name,
		Callback: func() {
			if msg.Envelope.IsClosing() {
				r.detach(msg.Envelope.OriginatingTime)
				return
			}
			r.runCallback(msg)
		},
	}
	ran, _ := r.scheduler().SubmitImmediate(wi)
	if ran {
		return true
	}
	r.element.ctx.Exit()
	return false
}

func (r *Receiver[T]) enqueueAndSchedule(msg Message[T]) {
	if r.clone != nil && !msg.Envelope.IsClosing() {
		msg.Data = r.clone(msg.Data)
	}

	r.mu.Lock()
	queue := r.queue
	r.mu.Unlock()
	if queue == nil {
		return
	}

	transition := queue.Enqueue(msg)
	r.applyThrottleTransition(transition)
	if transition.ScheduleNext() {
		r.scheduleDeliverNext(msg.Envelope.OriginatingTime)
	}
}

// applyThrottleTransition translates a toStartThrottling/toStopThrottling
// transition into Hold/Release on the upstream emitter's SyncLock, freezing
// it so the scheduler's immediate-delivery path stops admitting new
// synchronous posts from that component until this receiver drains.
func (r *Receiver[T]) applyThrottleTransition(t queueTransition) {
	if !t.toStartThrottling && !t.toStopThrottling {
		return
	}
	r.mu.Lock()
	source := r.source
	r.mu.Unlock()
	if source == nil {
		return
	}
	if t.toStartThrottling {
		source.syncLock().Hold()
	} else {
		source.syncLock().Release()
	}

	if r.throttleNotify != nil && r.throttleLimiter.Allow(r.name) {
		r.throttleNotify(r.name, t.toStartThrottling)
	}
}

func (r *Receiver[T]) scheduleDeliverNext(at time.Time) {
	r.element.ctx.Enter()
	wi := &WorkItem{
		SyncLock:  r.element.syncLock,
		Context:   r.element.ctx,
		StartTime: at,
		Component: r.element.Name,
		Callback:  r.deliverNext,
	}

	now := r.element.ctx.Clock().Now()
	var err error
	if !at.After(now) {
		err = r.scheduler().SubmitQueued(wi)
	} else {
		err = r.scheduler().SubmitFuture(wi)
	}
	if err != nil {
		r.element.ctx.Exit()
	}
}

// deliverNext is the Callback of a scheduled WorkItem: it dequeues the next
// ready message and either runs it or, for a closing sentinel, finalizes
// the subscription.
func (r *Receiver[T]) deliverNext() {
	r.mu.Lock()
	queue := r.queue
	r.mu.Unlock()
	if queue == nil {
		return
	}

	now := r.element.ctx.Clock().Now()
	msg, transition, ok := queue.Dequeue(now)
	if !ok {
		return
	}
	r.applyThrottleTransition(transition)

	if msg.Envelope.IsClosing() {
		r.detach(msg.Envelope.OriginatingTime)
		return
	}

	r.runCallback(msg)

	if !transition.toEmpty {
		if next, ok := queue.NextOriginatingTime(); ok {
			r.scheduleDeliverNext(next)
		}
	}
}

func (r *Receiver[T]) runCallback(msg Message[T]) {
	if r.onReceived != nil {
		r.onReceived(msg)
	}
	r.mu.Lock()
	r.lastTime = msg.Envelope.OriginatingTime
	r.hasLast = true
	pool := r.pool
	r.mu.Unlock()
	if pool != nil {
		pool.Recycle(msg.Data)
	}
}

// unsubscribeAll implements anyReceiver for PipelineElement's bulk teardown.
func (r *Receiver[T]) unsubscribeAll() {
	r.mu.Lock()
	source := r.source
	r.mu.Unlock()
	if source != nil {
		source.Unsubscribe(r)
	}
}

// detach fires every registered unsubscribed handler exactly once, with
// finalOriginatingTime, then clears the upstream back-link. The back-link is
// nulled last so the element stays reachable (via r.source.element) for
// anything inspecting it from inside a handler.
func (r *Receiver[T]) detach(finalOriginatingTime time.Time) {
	r.unsubMu.Lock()
	if r.unsubFired {
		r.unsubMu.Unlock()
		return
	}
	r.unsubFired = true
	handlers := r.unsubHandlers
	r.unsubMu.Unlock()

	for _, h := range handlers {
		h(finalOriginatingTime)
	}

	r.mu.Lock()
	r.source = nil
	r.mu.Unlock()
}
