package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCreateSubpipeline_SharesParentScheduler(t *testing.T) {
	parent := New()
	t.Cleanup(func() { parent.scheduler.Stop(true) })

	child := CreateSubpipeline(parent)

	require.Same(t, parent.scheduler, child.scheduler)
	require.False(t, child.ownsScheduler)
}

func TestRunSubpipeline_DoesNotStopParentScheduler(t *testing.T) {
	parent := New()
	t.Cleanup(func() { parent.scheduler.Stop(true) })

	child := CreateSubpipeline(parent)

	source := &intSource{n: 3}
	src := child.CreateElement("src", source)
	source.out = CreateEmitter[int](src, "out")

	var got []int
	sink := child.CreateElement("sink", nil)
	in := CreateReceiver[int](sink, "in", func(m Message[int]) {
		if !m.Envelope.IsClosing() {
			got = append(got, m.Data)
		}
	})
	require.NoError(t, source.out.Subscribe(in, UnlimitedPolicy[int](), false))

	now := time.Now()
	replay := ReplayDescriptor{Interval: TimeInterval{Left: now, Right: now.Add(time.Hour)}, EnforceReplayClock: true}

	require.NoError(t, RunSubpipeline(context.Background(), child, replay))
	require.Equal(t, []int{1, 2, 3}, got)

	// the shared scheduler must still accept work on the parent's behalf.
	ctx := NewSchedulerContext()
	ctx.Start(NewClock(now, time.Now(), 1.0))
	ran := false
	ctx.Enter()
	wi := &WorkItem{
		SyncLock:  NewSynchronizationLock(),
		Context:   ctx,
		StartTime: now,
		Callback:  func() { ran = true },
	}
	ok, err := parent.scheduler.SubmitImmediate(wi)
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, ran)
}
