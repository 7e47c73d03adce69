package pipeline

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestScheduler(t *testing.T, opts ...SchedulerOption) (*Scheduler, *SchedulerContext) {
	t.Helper()
	s, err := NewScheduler(opts...)
	require.NoError(t, err)
	ctx := NewSchedulerContext()
	ctx.Start(NewClock(time.Unix(0, 0), time.Now(), 1.0))
	s.Start(ctx)
	t.Cleanup(func() { s.Stop(true) })
	return s, ctx
}

func TestScheduler_SubmitImmediateRunsSynchronously(t *testing.T) {
	s, ctx := newTestScheduler(t)
	ran := false
	ctx.Enter()
	wi := &WorkItem{
		SyncLock:  NewSynchronizationLock(),
		Context:   ctx,
		StartTime: time.Now(),
		Callback:  func() { ran = true },
	}
	ok, err := s.SubmitImmediate(wi)
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, ran)
	require.False(t, wi.SyncLock.Locked())
}

func TestScheduler_SubmitImmediateFailsWhenLocked(t *testing.T) {
	s, ctx := newTestScheduler(t)
	lock := NewSynchronizationLock()
	lock.Hold()
	ctx.Enter()
	wi := &WorkItem{SyncLock: lock, Context: ctx, Callback: func() {}}
	ok, err := s.SubmitImmediate(wi)
	require.NoError(t, err)
	require.False(t, ok, "locked item must not run synchronously")
	lock.Release()
	ctx.Exit()
}

func TestScheduler_SubmitQueuedRunsEventually(t *testing.T) {
	s, ctx := newTestScheduler(t)
	var ran atomic.Bool
	ctx.Enter()
	wi := &WorkItem{
		SyncLock: NewSynchronizationLock(),
		Context:  ctx,
		Callback: func() { ran.Store(true) },
	}
	require.NoError(t, s.SubmitQueued(wi))

	require.Eventually(t, ran.Load, time.Second, time.Millisecond)
}

func TestScheduler_SubmitFutureWaitsUntilDue(t *testing.T) {
	base := time.Now()
	s, err := NewScheduler()
	require.NoError(t, err)
	ctx := NewSchedulerContext()
	ctx.Start(NewClock(base, base, 1.0))
	s.Start(ctx)
	defer s.Stop(true)

	var ran atomic.Bool
	ctx.Enter()
	wi := &WorkItem{
		SyncLock:  NewSynchronizationLock(),
		Context:   ctx,
		StartTime: base.Add(50 * time.Millisecond),
		Callback:  func() { ran.Store(true) },
	}
	require.NoError(t, s.SubmitFuture(wi))

	require.Never(t, ran.Load, 20*time.Millisecond, time.Millisecond, "must not run before its StartTime is due")
	require.Eventually(t, ran.Load, time.Second, time.Millisecond, "must run once its StartTime is due")
}

func TestScheduler_SubmitFuturePastFinalizeDropsWithoutRunningCallback(t *testing.T) {
	base := time.Now()
	s, err := NewScheduler()
	require.NoError(t, err)
	ctx := NewSchedulerContext()
	ctx.Start(NewClock(base, base, 1.0))
	ctx.SetFinalizeTime(base.Add(10 * time.Millisecond))
	s.Start(ctx)
	defer s.Stop(true)

	var ran atomic.Bool
	ctx.Enter()
	wi := &WorkItem{
		SyncLock:  NewSynchronizationLock(),
		Context:   ctx,
		StartTime: base.Add(time.Hour),
		Callback:  func() { ran.Store(true) },
	}
	require.NoError(t, s.SubmitFuture(wi))

	select {
	case <-ctx.Empty():
	case <-time.After(time.Second):
		t.Fatal("context never emptied; a past-finalize item must still Exit its context")
	}
	require.Never(t, ran.Load, 20*time.Millisecond, time.Millisecond, "a past-finalize item is unreachable and must never run its Callback")
}

func TestScheduler_SameComponentCallbacksNeverOverlap(t *testing.T) {
	s, ctx := newTestScheduler(t)
	lock := NewSynchronizationLock()

	var mu sync.Mutex
	var concurrent, maxConcurrent int
	const n = 20
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		ctx.Enter()
		wi := &WorkItem{
			SyncLock:  lock,
			Context:   ctx,
			StartTime: time.Now(),
			Callback: func() {
				mu.Lock()
				concurrent++
				if concurrent > maxConcurrent {
					maxConcurrent = concurrent
				}
				mu.Unlock()
				time.Sleep(time.Millisecond)
				mu.Lock()
				concurrent--
				mu.Unlock()
				wg.Done()
			},
		}
		require.NoError(t, s.SubmitQueued(wi))
	}
	wg.Wait()
	require.Equal(t, 1, maxConcurrent, "shared SyncLock must serialize all callbacks for one component")
}

func TestScheduler_CallbackPanicRecoveredByErrorHandler(t *testing.T) {
	var handled atomic.Bool
	s, err := NewScheduler(WithErrorHandler(func(err error) bool {
		var cbErr *CallbackError
		if !asCallbackError(err, &cbErr) {
			return false
		}
		handled.Store(true)
		return true
	}))
	require.NoError(t, err)
	ctx := NewSchedulerContext()
	ctx.Start(NewClock(time.Now(), time.Now(), 1.0))
	s.Start(ctx)
	defer s.Stop(true)

	ctx.Enter()
	wi := &WorkItem{
		SyncLock:  NewSynchronizationLock(),
		Context:   ctx,
		Component: "flaky",
		Callback:  func() { panic("boom") },
	}
	require.NoError(t, s.SubmitQueued(wi))

	require.Eventually(t, handled.Load, time.Second, time.Millisecond)
	require.Equal(t, Started, s.state.Load(), "a recovered callback error must not stop the scheduler")
}

func TestScheduler_StopAbandonPendingLeavesQueueUntouched(t *testing.T) {
	s, ctx := newTestScheduler(t)
	lock := NewSynchronizationLock()
	lock.Hold() // keep the component permanently busy so nothing drains on its own
	ctx.Enter()
	wi := &WorkItem{SyncLock: lock, Context: ctx, Callback: func() {}}
	require.NoError(t, s.SubmitQueued(wi))

	s.Stop(true)
	require.Equal(t, Stopped, s.state.Load())
	require.Equal(t, 1, s.ready.Len(), "the abandoned item must still be queued")
}

func asCallbackError(err error, target **CallbackError) bool {
	cbErr, ok := err.(*CallbackError)
	if !ok {
		return false
	}
	*target = cbErr
	return true
}
