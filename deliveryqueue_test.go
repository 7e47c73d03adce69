package pipeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func envelopeAt(seq int32, t time.Time) Envelope {
	return Envelope{SourceID: 1, SequenceID: seq, OriginatingTime: t, CreationTime: t}
}

func msgAt(seq int32, data int, t time.Time) Message[int] {
	return Message[int]{Data: data, Envelope: envelopeAt(seq, t)}
}

func TestDeliveryQueue_OverflowDropsOldestWithoutGuarantee(t *testing.T) {
	q := NewDeliveryQueue(DeliveryPolicy[int]{MaxQueueSize: 2}, nil)
	base := time.Unix(0, 0)

	q.Enqueue(msgAt(1, 1, base.Add(10*time.Second)))
	q.Enqueue(msgAt(2, 2, base.Add(20*time.Second)))
	q.Enqueue(msgAt(3, 3, base.Add(30*time.Second)))

	require.Equal(t, 2, q.Len())
	msg, _, ok := q.Dequeue(base)
	require.True(t, ok)
	require.Equal(t, 2, msg.Data, "the oldest message must have been dropped on overflow")
}

func TestDeliveryQueue_LatestMessagePolicyKeepsOnlyNewest(t *testing.T) {
	q := NewDeliveryQueue(LatestMessagePolicy[int](), nil)
	base := time.Unix(0, 0)

	for i := int32(1); i <= 5; i++ {
		q.Enqueue(msgAt(i, int(i), base.Add(time.Duration(i)*time.Second)))
	}

	require.Equal(t, 1, q.Len())
	msg, _, ok := q.Dequeue(base)
	require.True(t, ok)
	require.Equal(t, 5, msg.Data)
}

func TestDeliveryQueue_GuaranteedMessageSurvivesOverflow(t *testing.T) {
	policy := DeliveryPolicy[int]{
		MaxQueueSize:      2,
		GuaranteeDelivery: func(v *int) bool { return *v == 1 },
	}
	q := NewDeliveryQueue(policy, nil)
	base := time.Unix(0, 0)

	q.Enqueue(msgAt(1, 1, base.Add(10*time.Second))) // guaranteed
	q.Enqueue(msgAt(2, 2, base.Add(20*time.Second)))
	q.Enqueue(msgAt(3, 3, base.Add(30*time.Second)))

	var data []int
	for {
		msg, _, ok := q.Dequeue(base)
		if !ok {
			break
		}
		data = append(data, msg.Data)
	}
	require.Contains(t, data, 1, "a guaranteed message must never be evicted")
}

func TestDeliveryQueue_ClosingMessageNeverDropped(t *testing.T) {
	q := NewDeliveryQueue(DeliveryPolicy[int]{MaxQueueSize: 1}, nil)
	base := time.Unix(0, 0)

	q.Enqueue(msgAt(1, 1, base.Add(10*time.Second)))
	closing := Message[int]{Envelope: Envelope{SourceID: 1, SequenceID: ClosingSequenceID, OriginatingTime: base.Add(20 * time.Second)}}
	transition := q.Enqueue(closing)

	require.True(t, transition.toClosing)
	var sawClosing bool
	for {
		msg, tr, ok := q.Dequeue(base)
		if !ok {
			break
		}
		if msg.Envelope.IsClosing() {
			sawClosing = true
			require.True(t, tr.toClosing)
		}
	}
	require.True(t, sawClosing, "a closing message must always be delivered")
}

func TestDeliveryQueue_ClosingPurgesLaterMessages(t *testing.T) {
	q := NewDeliveryQueue(DeliveryPolicy[int]{MaxQueueSize: 100}, nil)
	base := time.Unix(0, 0)

	q.Enqueue(msgAt(1, 1, base.Add(10*time.Second)))
	q.Enqueue(msgAt(2, 2, base.Add(30*time.Second)))
	closing := Message[int]{Envelope: Envelope{SourceID: 1, SequenceID: ClosingSequenceID, OriginatingTime: base.Add(20 * time.Second)}}
	q.Enqueue(closing)

	var data []int
	for {
		msg, _, ok := q.Dequeue(base)
		if !ok {
			break
		}
		if !msg.Envelope.IsClosing() {
			data = append(data, msg.Data)
		}
	}
	require.Equal(t, []int{1}, data, "message (2,30) falls after the closing time and must be purged")
}

func TestDeliveryQueue_LatencyConstraintRecyclesStaleMessages(t *testing.T) {
	q := NewDeliveryQueue(LatencyConstrainedPolicy[int](5*time.Millisecond), nil)
	base := time.Unix(0, 0)

	for i := int32(1); i <= 1000; i++ {
		q.Enqueue(msgAt(i, int(i), base.Add(time.Duration(i)*time.Millisecond)))
	}

	now := base.Add(1000 * time.Millisecond)
	msg, _, ok := q.Dequeue(now)
	require.True(t, ok)
	require.GreaterOrEqual(t, msg.Data, 995, "only messages within maxLatency of virtual now may be delivered")
}

func TestDeliveryQueue_ThrottleTransitions(t *testing.T) {
	q := NewDeliveryQueue(ThrottlePolicy[int](100, 3), nil)
	base := time.Unix(0, 0)

	var sawStart bool
	for i := int32(1); i <= 3; i++ {
		tr := q.Enqueue(msgAt(i, int(i), base.Add(time.Duration(i)*time.Second)))
		if tr.toStartThrottling {
			sawStart = true
		}
	}
	require.True(t, sawStart, "crossing throttleQueueSize upward must report toStartThrottling")

	var sawStop bool
	for i := 0; i < 3; i++ {
		_, tr, ok := q.Dequeue(base)
		require.True(t, ok)
		if tr.toStopThrottling {
			sawStop = true
		}
	}
	require.True(t, sawStop, "draining back below threshold must report toStopThrottling")
}

func TestDeliveryQueue_EmptyTransitions(t *testing.T) {
	q := NewDeliveryQueue(UnlimitedPolicy[int](), nil)
	base := time.Unix(0, 0)

	tr := q.Enqueue(msgAt(1, 1, base.Add(time.Second)))
	require.True(t, tr.toNotEmpty)
	require.True(t, tr.ScheduleNext())

	_, tr, ok := q.Dequeue(base)
	require.True(t, ok)
	require.True(t, tr.toEmpty)
}
