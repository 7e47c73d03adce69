package pipeline

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// Scheduler is the central work-item dispatcher: it owns the ready
// WorkItemQueue and FutureWorkItemQueue, a bounded worker pool, and a
// dedicated futures thread that promotes time-deferred items once they
// become due under the root SchedulerContext's Clock.
//
// Three dispatch paths exist, matching the callback-affinity rules a
// component's SynchronizationLock enforces:
//
//   - SubmitImmediate runs the item synchronously on the calling goroutine
//     if its SyncLock is free, used by a Receiver whose DeliveryPolicy sets
//     AttemptSynchronousDelivery.
//   - SubmitQueued pushes the item onto the ready queue, to be picked up by
//     a pool worker bounded by a SimpleSemaphore.
//   - SubmitFuture pushes the item onto the future queue; the futures
//     thread promotes it to the ready queue once its StartTime is due.
//
// A Scheduler may be shared across a Pipeline and its subpipelines via
// WithScheduler, so one worker pool and futures thread serve the whole
// graph.
type Scheduler struct {
	opts *schedulerOptions

	sem    *SimpleSemaphore
	ready  *WorkItemQueue
	future *FutureWorkItemQueue
	waker  *futuresWaker

	metrics *Metrics
	logger  Logger

	state *elementState
	rootCtx *SchedulerContext

	abandonPending atomic.Bool
	stopOnce       sync.Once
	stopCh         chan struct{}
	kickCh         chan struct{}
	wg             sync.WaitGroup
}

// NewScheduler constructs a Scheduler. The worker pool and futures thread
// are not started until Start is called.
func NewScheduler(opts ...SchedulerOption) (*Scheduler, error) {
	cfg := resolveSchedulerOptions(opts)
	waker, err := newFuturesWaker()
	if err != nil {
		return nil, fmt.Errorf("pipeline: create futures waker: %w", err)
	}
	return &Scheduler{
		opts:    cfg,
		sem:     NewSimpleSemaphore(cfg.workerCount),
		ready:   NewWorkItemQueue(),
		future:  NewFutureWorkItemQueue(cfg.delayFutureUntilDue),
		waker:   waker,
		metrics: &Metrics{},
		logger:  cfg.logger,
		state:   newElementState(),
		stopCh:  make(chan struct{}),
		kickCh:  make(chan struct{}, 1),
	}, nil
}

// Metrics returns the scheduler's diagnostic counters. Non-nil regardless
// of whether WithMetrics was set; recording is skipped when disabled.
func (s *Scheduler) Metrics() *Metrics {
	return s.metrics
}

// Start begins the worker pool and futures thread, attributing all virtual
// time comparisons to rootCtx's Clock. A Scheduler may only be started
// once; subsequent calls are no-ops.
func (s *Scheduler) Start(rootCtx *SchedulerContext) {
	if !s.state.TryTransition(NotStarted, Started) {
		return
	}
	s.rootCtx = rootCtx
	s.wg.Add(2)
	go s.dispatchLoop()
	go s.futuresLoop()
}

// Stop halts the worker pool and futures thread. If abandonPending is
// true, items still queued are left untouched (their contexts never Exit,
// matching an unrecoverable forced shutdown); otherwise Stop blocks until
// both queues and the worker pool have drained naturally. Stop is
// idempotent.
func (s *Scheduler) Stop(abandonPending bool) {
	s.stopOnce.Do(func() {
		s.abandonPending.Store(abandonPending)
		s.state.TryTransition(Started, Stopping)
		close(s.stopCh)
		s.waker.Wake()
		s.wg.Wait()
		s.state.Store(Stopped)
		_ = s.waker.Close()
	})
}

// SubmitImmediate attempts to run wi synchronously on the calling
// goroutine. It returns ran=false without side effects if wi's SyncLock is
// currently held by another in-flight callback for the same component; the
// caller should fall back to SubmitQueued in that case.
func (s *Scheduler) SubmitImmediate(wi *WorkItem) (ran bool, err error) {
	if s.state.Load() == Stopped {
		return false, ErrClosed
	}
	if !wi.SyncLock.TryLock() {
		return false, nil
	}
	s.runWorkItem(wi)
	return true, nil
}

// SubmitQueued pushes wi onto the ready queue for pool dispatch.
func (s *Scheduler) SubmitQueued(wi *WorkItem) error {
	if s.state.Load() == Stopped {
		return ErrClosed
	}
	s.ready.Push(wi)
	if s.opts.metricsEnabled {
		s.metrics.Queue.UpdateReady(s.ready.Len())
	}
	s.kick()
	return nil
}

// SubmitFuture pushes wi onto the future queue. It is promoted to the
// ready queue once the root context's Clock reaches its StartTime (or
// sooner, per WithDelayFutureUntilDue / finalizeTime rules).
func (s *Scheduler) SubmitFuture(wi *WorkItem) error {
	if s.state.Load() == Stopped {
		return ErrClosed
	}
	s.future.Push(wi)
	if s.opts.metricsEnabled {
		s.metrics.Queue.UpdateFuture(s.future.Len())
	}
	s.waker.Wake()
	return nil
}

func (s *Scheduler) kick() {
	select {
	case s.kickCh <- struct{}{}:
	default:
	}
}

// dispatchLoop admits as many ready items as the semaphore currently
// allows, running each on its own goroutine, then waits for either a kick
// (new ready item, or a worker finishing and freeing a permit) or a stop
// request.
func (s *Scheduler) dispatchLoop() {
	defer s.wg.Done()
	for {
		for s.sem.TryEnter() {
			wi, ok := s.ready.TryDequeue()
			if !ok {
				s.sem.Exit()
				break
			}
			s.wg.Add(1)
			go func(wi *WorkItem) {
				defer s.wg.Done()
				defer s.sem.Exit()
				s.runWorkItem(wi)
				s.kick()
			}(wi)
		}

		select {
		case <-s.kickCh:
		case <-s.stopCh:
			if s.abandonPending.Load() || (s.ready.Len() == 0 && s.sem.Count() == 0) {
				return
			}
		}
	}
}

// futuresLoop promotes due items from the future queue to the ready queue,
// sleeping between promotions for either the next item's deadline (scaled
// to real time by the clock's dilation) or an explicit wake.
func (s *Scheduler) futuresLoop() {
	defer s.wg.Done()
	for {
		clock := s.rootCtx.Clock()
		now := clock.Now()
		due, dropped := s.future.DrainReady(now)
		for _, wi := range dropped {
			wi.Context.Exit()
		}
		for _, wi := range due {
			s.ready.Push(wi)
		}
		if len(due)+len(dropped) > 0 {
			if s.opts.metricsEnabled {
				s.metrics.Queue.UpdateFuture(s.future.Len())
			}
		}
		if len(due) > 0 {
			s.kick()
		}

		select {
		case <-s.stopCh:
			if s.abandonPending.Load() || s.future.Len() == 0 {
				return
			}
		default:
		}

		timeout := time.Duration(-1)
		if deadline, ok := s.future.NextDeadline(); ok && clock.Dilation() != 0 {
			span := clock.ToRealSpan(deadline.Sub(now))
			if span < 0 {
				span = 0
			}
			timeout = span
		}
		s.waker.Wait(timeout)
		s.waker.Drain()
	}
}

// runWorkItem executes wi.Callback, always releasing SyncLock and exiting
// wi.Context exactly once regardless of panic. A panic escaping
// SyncLock.Release (ErrLockReleaseImbalance, a core invariant violation)
// is never routed through the installed error handler: it always escalates
// straight to a forced shutdown. A panic from Callback itself is wrapped
// in a CallbackError and offered to the error handler first.
func (s *Scheduler) runWorkItem(wi *WorkItem) {
	start := time.Now()

	var callbackPanic any
	func() {
		defer func() { callbackPanic = recover() }()
		wi.Callback()
	}()

	var releasePanic any
	func() {
		defer func() { releasePanic = recover() }()
		wi.SyncLock.Release()
	}()
	wi.Context.Exit()

	if s.opts.metricsEnabled {
		s.metrics.DispatchLatency.Record(time.Since(start))
	}

	if releasePanic != nil {
		s.forceShutdown(&ForcedShutdownError{Cause: panicToError(releasePanic)})
		return
	}
	if callbackPanic != nil {
		s.handleCallbackPanic(wi, callbackPanic)
	}
}

func (s *Scheduler) handleCallbackPanic(wi *WorkItem, r any) {
	cbErr := &CallbackError{Component: wi.Component, Cause: panicToError(r)}
	s.logger.Log(LogEntry{
		Level:     LevelError,
		Category:  "scheduler",
		ElementID: wi.Component,
		Message:   "component callback failed",
		Err:       cbErr,
		Timestamp: time.Now(),
	})

	if s.opts.errorHandler != nil && s.opts.errorHandler(cbErr) {
		return
	}
	s.forceShutdown(&ForcedShutdownError{Cause: cbErr})
}

func (s *Scheduler) forceShutdown(err error) {
	s.logger.Log(LogEntry{
		Level:     LevelError,
		Category:  "scheduler",
		Message:   "forced shutdown",
		Err:       err,
		Timestamp: time.Now(),
	})
	go s.Stop(true)
}

func panicToError(r any) error {
	if err, ok := r.(error); ok {
		return err
	}
	return fmt.Errorf("%v", r)
}
