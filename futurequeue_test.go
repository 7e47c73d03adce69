package pipeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFutureWorkItemQueue_DrainReadyByClock(t *testing.T) {
	q := NewFutureWorkItemQueue(true)
	base := time.Unix(0, 0)
	due := newTestWorkItem(base.Add(10 * time.Second))
	due.Context.Start(frozenClock(base))
	notDue := newTestWorkItem(base.Add(20 * time.Second))
	notDue.Context.Start(frozenClock(base))

	q.Push(due)
	q.Push(notDue)

	ready, dropped := q.DrainReady(base.Add(15 * time.Second))
	require.Len(t, ready, 1)
	require.Same(t, due, ready[0])
	require.Empty(t, dropped)
	require.Equal(t, 1, q.Len())
}

func TestFutureWorkItemQueue_PastFinalizeDrainsAsDroppedNotDue(t *testing.T) {
	q := NewFutureWorkItemQueue(true)
	base := time.Unix(0, 0)
	unreachable := newTestWorkItem(base.Add(time.Hour))
	unreachable.Context.Start(frozenClock(base))
	unreachable.Context.SetFinalizeTime(base.Add(time.Minute))
	q.Push(unreachable)

	due, dropped := q.DrainReady(base) // now is far before startTime
	require.Empty(t, due, "an item past finalizeTime is unreachable, never due")
	require.Len(t, dropped, 1, "an item past finalizeTime must still drain, to honor Exit")
	require.Same(t, unreachable, dropped[0])
}

func TestFutureWorkItemQueue_DelayFutureUntilDueFalseDrainsImmediatelyAsDue(t *testing.T) {
	q := NewFutureWorkItemQueue(false)
	base := time.Unix(0, 0)
	notDue := newTestWorkItem(base.Add(time.Hour))
	notDue.Context.Start(frozenClock(base))
	q.Push(notDue)

	due, dropped := q.DrainReady(base)
	require.Len(t, due, 1, "WithDelayFutureUntilDue(false) releases early but the item is still genuinely due, not dropped")
	require.Empty(t, dropped)
}

func TestFutureWorkItemQueue_NextDeadline(t *testing.T) {
	q := NewFutureWorkItemQueue(true)
	base := time.Unix(0, 0)
	_, ok := q.NextDeadline()
	require.False(t, ok)

	wi := newTestWorkItem(base.Add(5 * time.Second))
	wi.Context.Start(frozenClock(base))
	q.Push(wi)

	deadline, ok := q.NextDeadline()
	require.True(t, ok)
	require.True(t, deadline.Equal(base.Add(5 * time.Second)))
}
