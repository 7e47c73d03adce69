package pipeline

import "runtime"

// schedulerOptions holds configuration resolved from SchedulerOption values.
type schedulerOptions struct {
	workerCount          int
	metricsEnabled       bool
	logger               Logger
	errorHandler         func(error) bool
	delayFutureUntilDue  bool
	poolSoftCap          int
}

// SchedulerOption configures a Scheduler at construction time.
type SchedulerOption interface {
	applyScheduler(*schedulerOptions)
}

type schedulerOptionFunc func(*schedulerOptions)

func (f schedulerOptionFunc) applyScheduler(opts *schedulerOptions) { f(opts) }

// WithWorkerCount sets the number of worker goroutines available to the
// queued dispatch path. Defaults to 2×GOMAXPROCS. n <= 0 is ignored.
func WithWorkerCount(n int) SchedulerOption {
	return schedulerOptionFunc(func(opts *schedulerOptions) {
		if n > 0 {
			opts.workerCount = n
		}
	})
}

// WithMetrics enables queue-depth and dispatch-latency metrics collection.
// Adds minimal overhead (a P-Square update per delivery); disable for
// zero-allocation steady state.
func WithMetrics(enabled bool) SchedulerOption {
	return schedulerOptionFunc(func(opts *schedulerOptions) {
		opts.metricsEnabled = enabled
	})
}

// WithLogger installs a structured Logger. Defaults to a no-op logger.
func WithLogger(l Logger) SchedulerOption {
	return schedulerOptionFunc(func(opts *schedulerOptions) {
		if l != nil {
			opts.logger = l
		}
	})
}

// WithErrorHandler installs the callback-failure handler described in the
// component contract: it receives a *CallbackError and returns true if the
// failure was handled locally (scheduling resumes) or false to escalate to
// a forced shutdown.
func WithErrorHandler(h func(error) bool) SchedulerOption {
	return schedulerOptionFunc(func(opts *schedulerOptions) {
		opts.errorHandler = h
	})
}

// WithDelayFutureUntilDue controls the FutureWorkItemQueue dequeue gate.
// When true (the default), a future item is only released once its
// startTime is due. When false, the futures thread releases every future
// item to the ready queue as soon as it sees it, without waiting for its
// startTime. In either mode an item past its context's finalizeTime is
// dropped (its context Exits, its Callback does not run).
func WithDelayFutureUntilDue(enabled bool) SchedulerOption {
	return schedulerOptionFunc(func(opts *schedulerOptions) {
		opts.delayFutureUntilDue = enabled
	})
}

// WithPoolSoftCap records a soft cap for recycled-item retention (0, the
// default, meaning unbounded) in the scheduler's options. Nothing in the
// package reads it: a RecyclingPool's cap is the softCap argument given to
// NewRecyclingPool.
func WithPoolSoftCap(n int) SchedulerOption {
	return schedulerOptionFunc(func(opts *schedulerOptions) {
		if n >= 0 {
			opts.poolSoftCap = n
		}
	})
}

// resolveSchedulerOptions applies SchedulerOption values over the defaults.
func resolveSchedulerOptions(opts []SchedulerOption) *schedulerOptions {
	cfg := &schedulerOptions{
		workerCount:         2 * runtime.GOMAXPROCS(0),
		logger:              noopLogger{},
		delayFutureUntilDue: true,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt.applyScheduler(cfg)
	}
	return cfg
}

// pipelineOptions holds configuration resolved from PipelineOption values.
type pipelineOptions struct {
	scheduler *Scheduler
	logger    Logger
}

// PipelineOption configures a Pipeline at construction time.
type PipelineOption interface {
	applyPipeline(*pipelineOptions)
}

type pipelineOptionFunc func(*pipelineOptions)

func (f pipelineOptionFunc) applyPipeline(opts *pipelineOptions) { f(opts) }

// WithScheduler attaches an existing Scheduler instead of creating one. Use
// this to share a scheduler (and its worker pool) across a pipeline and its
// subpipelines.
func WithScheduler(s *Scheduler) PipelineOption {
	return pipelineOptionFunc(func(opts *pipelineOptions) {
		if s != nil {
			opts.scheduler = s
		}
	})
}

// WithPipelineLogger installs a structured Logger for pipeline-lifecycle
// events, independent of the scheduler's logger.
func WithPipelineLogger(l Logger) PipelineOption {
	return pipelineOptionFunc(func(opts *pipelineOptions) {
		if l != nil {
			opts.logger = l
		}
	})
}

// resolvePipelineOptions applies PipelineOption values over the defaults.
func resolvePipelineOptions(opts []PipelineOption) *pipelineOptions {
	cfg := &pipelineOptions{
		logger: noopLogger{},
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt.applyPipeline(cfg)
	}
	return cfg
}
