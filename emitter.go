package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/joeycumines/go-microbatch"
)

// Emitter is a typed output stream: it stamps an Envelope on every posted
// message and hands it directly to each current subscriber's Receive. The
// subscriber list is copy-on-write: Post holds the emitter's mutex only
// while stamping the envelope and taking a snapshot of the list, and
// delivers to that snapshot outside the lock, so Subscribe and Unsubscribe
// never wait for a delivery to finish.
type Emitter[T any] struct {
	id       int32
	name     string
	element  *PipelineElement
	pipeline *Pipeline

	mu          sync.Mutex
	subscribers []*Receiver[T]
	nextSeqID   int32
	lastEnv     Envelope
	hasLast     bool
	closed      bool

	batcher *microbatch.Batcher[batchJob[T]]
}

// CreateEmitter constructs an Emitter[T] owned by element, registers it for
// lifecycle management (Pipeline stop closes every emitter an element still
// owns), and returns it.
func CreateEmitter[T any](element *PipelineElement, name string) *Emitter[T] {
	e := &Emitter[T]{
		id:       element.nextEmitterID(),
		name:     name,
		element:  element,
		pipeline: element.Pipeline,
	}
	element.addEmitter(e)
	return e
}

// ID returns the emitter's source id, stamped into every envelope it
// produces.
func (e *Emitter[T]) ID() int32 { return e.id }

// Name returns the emitter's name.
func (e *Emitter[T]) Name() string { return e.name }

func (e *Emitter[T]) syncLock() *SynchronizationLock { return e.element.syncLock }

// Subscribe attaches receiver to this emitter under policy. It rejects a
// subscription between elements of different pipelines (use a bridging
// Connector instead), and rejects a subscription added while the pipeline
// is running unless allowWhileRunning is set.
func (e *Emitter[T]) Subscribe(receiver *Receiver[T], policy DeliveryPolicy[T], allowWhileRunning bool) error {
	if e.pipeline != receiver.element.Pipeline {
		return ErrCrossPipelineSubscription
	}
	if e.pipeline.Running() && !allowWhileRunning {
		return ErrSubscribeWhileRunning
	}

	e.mu.Lock()
	next := make([]*Receiver[T], len(e.subscribers), len(e.subscribers)+1)
	copy(next, e.subscribers)
	e.subscribers = append(next, receiver)
	e.mu.Unlock()

	receiver.bind(e, policy)
	return nil
}

// Unsubscribe detaches receiver from this emitter, swapping in a new
// subscriber slice (copy-on-write). Idempotent: unsubscribing a receiver not
// currently subscribed is a no-op.
func (e *Emitter[T]) Unsubscribe(receiver *Receiver[T]) {
	e.mu.Lock()
	idx := -1
	for i, r := range e.subscribers {
		if r == receiver {
			idx = i
			break
		}
	}
	if idx < 0 {
		e.mu.Unlock()
		return
	}
	next := make([]*Receiver[T], 0, len(e.subscribers)-1)
	next = append(next, e.subscribers[:idx]...)
	next = append(next, e.subscribers[idx+1:]...)
	e.subscribers = next
	e.mu.Unlock()

	receiver.detach(receiver.lastOriginating())
}

// Post validates and stamps an envelope for data, then hands the message to
// every current subscriber. Validation requires originatingTime strictly
// greater than the previous post's and creationTime no earlier than it (the
// sequence id is assigned here and always increases); a violation returns
// ErrInvalidSequence and the message is not delivered. Posting after
// Close returns ErrClosed.
func (e *Emitter[T]) Post(data T, originatingTime time.Time) error {
	env, subs, err := e.stamp(originatingTime)
	if err != nil {
		return err
	}
	e.deliver(Message[T]{Data: data, Envelope: env}, subs)
	return nil
}

func (e *Emitter[T]) stamp(originatingTime time.Time) (Envelope, []*Receiver[T], error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return Envelope{}, nil, ErrClosed
	}

	creationTime := e.element.ctx.Clock().Now()
	if e.hasLast {
		if !originatingTime.After(e.lastEnv.OriginatingTime) || creationTime.Before(e.lastEnv.CreationTime) {
			return Envelope{}, nil, ErrInvalidSequence
		}
	}

	e.nextSeqID++
	env := Envelope{
		SourceID:        e.id,
		SequenceID:      e.nextSeqID,
		OriginatingTime: originatingTime,
		CreationTime:    creationTime,
	}
	e.lastEnv = env
	e.hasLast = true
	return env, e.subscribers, nil
}

func (e *Emitter[T]) deliver(msg Message[T], subs []*Receiver[T]) {
	for _, r := range subs {
		r.receive(msg)
	}
}

// Close posts a single closing message (SequenceID == ClosingSequenceID)
// and clears the subscriber list. Every subsequent Post is a no-op
// returning ErrClosed; Close itself is idempotent.
func (e *Emitter[T]) Close(originatingTime time.Time) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	creationTime := e.element.ctx.Clock().Now()
	e.closed = true
	subs := e.subscribers
	e.subscribers = nil
	e.mu.Unlock()

	msg := closingMessage[T](e.id, originatingTime, creationTime)
	e.deliver(msg, subs)
	return nil
}

func (e *Emitter[T]) closeAt(originatingTime time.Time) { _ = e.Close(originatingTime) }

// PostBatch hands data to a microbatch.Batcher, for sources that naturally
// produce in bursts (a replay source draining a store). It lazily creates
// the Batcher the first time it is called; every subsequent call on the
// same Emitter reuses it. PostBatch returns once the job is submitted;
// delivery happens later, on the Batcher's goroutine, where each job in a
// batch is stamped and delivered individually, in its original call order.
// A job that fails validation (or arrives after Close) is dropped there
// without an error reaching the caller.
func (e *Emitter[T]) PostBatch(ctx context.Context, data T, originatingTime time.Time) error {
	e.mu.Lock()
	if e.batcher == nil {
		e.batcher = microbatch.NewBatcher[batchJob[T]](nil, func(_ context.Context, jobs []batchJob[T]) error {
			for _, job := range jobs {
				env, subs, err := e.stamp(job.originatingTime)
				if err != nil {
					continue
				}
				e.deliver(Message[T]{Data: job.data, Envelope: env}, subs)
			}
			return nil
		})
	}
	batcher := e.batcher
	e.mu.Unlock()

	_, err := batcher.Submit(ctx, batchJob[T]{data: data, originatingTime: originatingTime})
	return err
}

// batchJob is the unit submitted to an Emitter's microbatch.Batcher; stamping
// happens inside the BatchProcessor, not at Submit time, so the envelope
// reflects delivery order rather than submission order.
type batchJob[T any] struct {
	data            T
	originatingTime time.Time
}
