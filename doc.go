// Package pipeline implements a deterministic virtual-time scheduler that
// drives a directed graph of stateful components communicating by typed
// streams. It is the core runtime of a larger sensor/media pipeline system;
// domain components (capture, codecs, stores, transports) are external
// collaborators that implement the component contract in component.go.
//
// # Architecture
//
// A [Pipeline] owns a tree of [PipelineElement] instances, each wrapping a
// user component and that component's [Emitter]/[Receiver] endpoints. An
// [Emitter] stamps an [Envelope] on every posted message and invokes each
// subscribed [Receiver] directly. A Receiver either runs the callback
// synchronously on the caller's goroutine (the fast path, gated by its
// [DeliveryPolicy] and a [SynchronizationLock]) or enqueues the message on
// its [DeliveryQueue] and schedules a [WorkItem] on the [Scheduler].
//
// The Scheduler dispatches WorkItems across three paths:
//   - immediate: synchronous delivery on the caller's goroutine,
//   - queued: placed on the [WorkItemQueue] and picked up by a worker
//     goroutine bounded by a [SimpleSemaphore],
//   - future: placed on the [FutureWorkItemQueue] and released by a
//     dedicated futures goroutine once the virtual [Clock] reaches their
//     start time.
//
// # Ordering guarantees
//
//   - Per receiver: callbacks run in strictly increasing originating time.
//   - Per emitter: sequence IDs and originating times are strictly
//     increasing; a violation raises [ErrInvalidSequence].
//   - Per component: callbacks never run concurrently (enforced by the
//     component's [SynchronizationLock]).
//
// # Thread safety
//
//   - [Emitter.Post] is safe to call from any goroutine; it invokes each
//     subscribed Receiver on the posting goroutine.
//   - [Scheduler.SubmitImmediate], [Scheduler.SubmitQueued] and
//     [Scheduler.SubmitFuture] are safe to call from any goroutine.
//   - A component's callbacks are serialized by its own SynchronizationLock;
//     the scheduler never invokes two callbacks of the same component
//     concurrently.
//
// # Usage
//
//	sched, err := pipeline.NewScheduler(pipeline.WithWorkerCount(8))
//	if err != nil {
//	    return err
//	}
//	p := pipeline.New(pipeline.WithScheduler(sched))
//	src := p.CreateElement("source", mySource)
//	sink := p.CreateElement("sink", mySink)
//	out := pipeline.CreateEmitter[int](src, "out")
//	in := pipeline.CreateReceiver[int](sink, "in", func(m pipeline.Message[int]) {
//	    fmt.Println(m.Data)
//	})
//	out.Subscribe(in, pipeline.UnlimitedPolicy[int](), false)
//	err = p.Run(context.Background(), pipeline.ReplayDescriptor{})
//
// # Error types
//
// The package surfaces typed errors for every failure mode named by the
// component contract: [ErrInvalidSequence], [ErrCrossPipelineSubscription],
// [ErrSubscribeWhileRunning], [ErrLockReleaseImbalance],
// [*CallbackError], and [*ForcedShutdownError]. The sentinels are matched
// with [errors.Is]; CallbackError and ForcedShutdownError implement Unwrap,
// so [errors.Is] / [errors.As] also see their causes.
package pipeline
