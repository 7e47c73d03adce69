package pipeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kalgorithm/flowrt/pipeline/deliveryrate"
)

func TestReceiver_SynchronousDeliveryRunsBeforePostReturns(t *testing.T) {
	_, src, sink := newTestPipelineElements(t)
	out := CreateEmitter[int](src, "out")

	var delivered bool
	in := CreateReceiver[int](sink, "in", func(Message[int]) { delivered = true })
	require.NoError(t, out.Subscribe(in, UnlimitedPolicy[int](), false))

	require.NoError(t, out.Post(1, time.Unix(1, 0)))
	require.True(t, delivered, "an empty queue under AttemptSynchronousDelivery must run the callback on the posting goroutine")
}

func TestReceiver_FallsBackToQueueWhenLockHeld(t *testing.T) {
	_, src, sink := newTestPipelineElements(t)
	out := CreateEmitter[int](src, "out")

	var delivered bool
	in := CreateReceiver[int](sink, "in", func(Message[int]) { delivered = true })
	require.NoError(t, out.Subscribe(in, UnlimitedPolicy[int](), false))

	require.True(t, sink.syncLock.TryLock())
	require.NoError(t, out.Post(1, time.Unix(1, 0)))
	require.False(t, delivered, "a held SyncLock must force the message onto the queue instead of running inline")
	require.Equal(t, 1, in.queue.Len(), "the message must land in the DeliveryQueue, not be dropped, when the synchronous attempt fails")
}

func TestReceiver_ThrottleTransitionHoldsAndReleasesUpstreamLock(t *testing.T) {
	_, src, sink := newTestPipelineElements(t)
	out := CreateEmitter[int](src, "out")

	blocked := make(chan struct{})
	in := CreateReceiver[int](sink, "in", func(Message[int]) { <-blocked })

	require.NoError(t, out.Subscribe(in, ThrottlePolicy[int](10, 2), false))

	// hold the component's SyncLock so delivery cannot run synchronously,
	// forcing every post to enqueue and exercise the throttle transition.
	require.True(t, sink.syncLock.TryLock())

	require.NoError(t, out.Post(1, time.Unix(1, 0)))
	require.NoError(t, out.Post(2, time.Unix(2, 0)))
	require.NoError(t, out.Post(3, time.Unix(3, 0)))

	require.True(t, src.syncLock.Locked(), "crossing ThrottleQueueSize must freeze the upstream emitter's lock")

	close(blocked)
}

func TestReceiver_WithThrottleNotifierIsRateLimited(t *testing.T) {
	_, src, sink := newTestPipelineElements(t)
	out := CreateEmitter[int](src, "out")

	blocked := make(chan struct{})
	var notifications int
	in := CreateReceiver[int](sink, "in", func(Message[int]) { <-blocked }).
		WithThrottleNotifier(deliveryrate.New(time.Minute, 1), func(string, bool) { notifications++ })

	require.NoError(t, out.Subscribe(in, ThrottlePolicy[int](10, 1), false))
	require.True(t, sink.syncLock.TryLock())

	require.NoError(t, out.Post(1, time.Unix(1, 0)))
	require.NoError(t, out.Post(2, time.Unix(2, 0)))
	require.NoError(t, out.Post(3, time.Unix(3, 0)))

	require.Equal(t, 1, notifications, "second and third throttle transitions must be suppressed by the limiter")
	close(blocked)
}

func TestReceiver_OnUnsubscribedFiresExactlyOnceWithFinalTime(t *testing.T) {
	_, src, sink := newTestPipelineElements(t)
	out := CreateEmitter[int](src, "out")

	in := CreateReceiver[int](sink, "in", func(Message[int]) {})
	require.NoError(t, out.Subscribe(in, UnlimitedPolicy[int](), false))

	var calls int
	var final time.Time
	in.OnUnsubscribed(func(t time.Time) { calls++; final = t })

	require.NoError(t, out.Close(time.Unix(42, 0)))
	require.Equal(t, 1, calls, "closing a synchronously-delivered emitter must detach the receiver immediately, not just on a later explicit Unsubscribe")
	require.True(t, final.Equal(time.Unix(42, 0)))

	// Close is idempotent; a second call (and any leftover Unsubscribe) must
	// not fire the handler again.
	require.NoError(t, out.Close(time.Unix(42, 0)))
	out.Unsubscribe(in)
	require.Equal(t, 1, calls)
}
