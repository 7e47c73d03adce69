package pipeline

import "time"

// IProducer is implemented by a component with exactly one typed output
// stream.
type IProducer[T any] interface {
	Out() *Emitter[T]
}

// IConsumer is implemented by a component with exactly one typed input
// stream.
type IConsumer[T any] interface {
	In() *Receiver[T]
}

// IConsumerProducer is implemented by a transform stage: one typed input,
// one typed output, usually of different types.
type IConsumerProducer[TIn, TOut any] interface {
	IConsumer[TIn]
	IProducer[TOut]
}

// ISourceComponent is implemented by a component that originates messages on
// its own schedule rather than purely in response to received ones (a
// capture device, a file replay, a timer). The pipeline calls Start once,
// after every element has been created; it calls Stop once, when winding
// down.
type ISourceComponent interface {
	// Start begins production. notifyCompletion must be called exactly once
	// if/when the source finishes on its own, with the originating time of
	// the last message it will ever emit. A source that never completes on
	// its own (a live capture device) need not call it; Stop will still be
	// invoked when the pipeline is asked to wind down.
	Start(notifyCompletion func(finalOriginatingTime time.Time)) error

	// Stop asks the source to wind down by finalOriginatingTime.
	// notifyCompleted must be called exactly once, once the source has
	// stopped emitting and released any resources it owns.
	Stop(finalOriginatingTime time.Time, notifyCompleted func())
}
