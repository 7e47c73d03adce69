package pipeline

import "time"

// Compile-time assertions that the documented component shapes are
// satisfiable by concrete, minimal implementations.
var (
	_ IProducer[int]               = (*fakeProducer)(nil)
	_ IConsumer[int]               = (*fakeConsumer)(nil)
	_ IConsumerProducer[int, int]  = (*fakeTransform)(nil)
	_ ISourceComponent             = (*fakeSourceComponent)(nil)
)

type fakeProducer struct{ out *Emitter[int] }

func (f *fakeProducer) Out() *Emitter[int] { return f.out }

type fakeConsumer struct{ in *Receiver[int] }

func (f *fakeConsumer) In() *Receiver[int] { return f.in }

type fakeTransform struct {
	in  *Receiver[int]
	out *Emitter[int]
}

func (f *fakeTransform) In() *Receiver[int]  { return f.in }
func (f *fakeTransform) Out() *Emitter[int]  { return f.out }

type fakeSourceComponent struct {
	out     *Emitter[int]
	stopped bool
}

func (f *fakeSourceComponent) Out() *Emitter[int] { return f.out }

func (f *fakeSourceComponent) Start(notifyCompletion func(finalOriginatingTime time.Time)) error {
	return nil
}

func (f *fakeSourceComponent) Stop(finalOriginatingTime time.Time, notifyCompleted func()) {
	f.stopped = true
	notifyCompleted()
}
