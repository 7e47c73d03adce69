package pipeline

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/joeycumines/go-longpoll"
)

// sourceEntry pairs a named element with the ISourceComponent it owns, kept
// separately from PipelineElement.Component so Run doesn't need a type
// assertion on every element, only once at CreateElement time.
type sourceEntry struct {
	name   string
	source ISourceComponent
}

type sourceCompletion struct {
	name      string
	finalTime time.Time
}

// Pipeline owns a tree of PipelineElements, the Scheduler that drives them,
// and the root SchedulerContext whose Clock every element shares.
type Pipeline struct {
	logger  Logger
	state   *elementState
	rootCtx *SchedulerContext

	scheduler     *Scheduler
	ownsScheduler bool
	initErr       error

	mu       sync.Mutex
	elements []*PipelineElement
	sources  []sourceEntry

	stopOnce sync.Once
	stopErr  error
}

// New constructs a Pipeline. If no WithScheduler option is given, it builds
// and owns its own Scheduler, stopping it when the pipeline stops. A
// construction-time scheduler failure (the futures-thread wakeup mechanism
// could not be created) is deferred and returned from the first call to
// Run.
func New(opts ...PipelineOption) *Pipeline {
	cfg := resolvePipelineOptions(opts)
	p := &Pipeline{
		logger:  cfg.logger,
		state:   newElementState(),
		rootCtx: NewSchedulerContext(),
	}

	if cfg.scheduler != nil {
		p.scheduler = cfg.scheduler
		return p
	}

	sched, err := NewScheduler()
	if err != nil {
		p.initErr = err
		return p
	}
	p.scheduler = sched
	p.ownsScheduler = true
	return p
}

// Running reports whether the pipeline is currently accepting messages
// (Started or Stopping, per the component contract's subscribe-while-running
// rule).
func (p *Pipeline) Running() bool {
	return p.state.CanEmit()
}

// Scheduler returns the pipeline's Scheduler, shared by every element's
// WorkItems.
func (p *Pipeline) Scheduler() *Scheduler { return p.scheduler }

// CreateElement registers a named component instance. If component
// implements ISourceComponent, it is started and stopped as part of Run's
// lifecycle.
func (p *Pipeline) CreateElement(name string, component any) *PipelineElement {
	el := &PipelineElement{
		Name:      name,
		Component: component,
		Pipeline:  p,
		state:     newElementState(),
		syncLock:  NewSynchronizationLock(),
		ctx:       p.rootCtx,
	}

	p.mu.Lock()
	p.elements = append(p.elements, el)
	if src, ok := component.(ISourceComponent); ok {
		p.sources = append(p.sources, sourceEntry{name: name, source: src})
	}
	p.mu.Unlock()

	return el
}

// Run starts every registered source, sets the root context's Clock from
// replay, starts the scheduler, and blocks until every source has reported
// completion or ctx is cancelled. Either way it then sets finalizeTime (when
// a source reported one) and runs the stop sequence (ask every source to
// stop, drain the scheduler) and returns the first unrecovered error, if
// any.
func (p *Pipeline) Run(ctx context.Context, replay ReplayDescriptor) error {
	if p.initErr != nil {
		return p.initErr
	}
	if !p.state.TryTransition(NotStarted, Started) {
		return ErrClosed
	}

	clock := replay.toClock()
	p.rootCtx.Start(clock)
	p.scheduler.Start(p.rootCtx)

	p.mu.Lock()
	sources := append([]sourceEntry(nil), p.sources...)
	elements := append([]*PipelineElement(nil), p.elements...)
	p.mu.Unlock()
	for _, el := range elements {
		el.state.TryTransition(NotStarted, Started)
	}

	completions := make(chan sourceCompletion, len(sources))
	expected := 0
	for _, entry := range sources {
		entry := entry
		if err := entry.source.Start(func(final time.Time) {
			completions <- sourceCompletion{name: entry.name, finalTime: final}
		}); err != nil {
			p.logger.Log(LogEntry{
				Level: LevelError, Category: "pipeline", ElementID: entry.name,
				Message: "source failed to start", Err: err, Timestamp: time.Now(),
			})
			continue
		}
		expected++
	}

	finalize, hasFinalize, abandoned := p.awaitCompletion(ctx, expected, completions)
	if hasFinalize {
		p.rootCtx.SetFinalizeTime(finalize)
	}

	for _, el := range elements {
		el.state.TryTransition(Started, Stopping)
	}
	return p.stop(abandoned)
}

// awaitCompletion blocks until expected sources have reported completion
// via longpoll.Channel, or ctx is cancelled (whichever comes first),
// returning the latest reported final originating time. With no sources
// expected to report, it simply blocks on ctx.Done, since there is nothing
// for longpoll to wait on.
func (p *Pipeline) awaitCompletion(ctx context.Context, expected int, completions chan sourceCompletion) (finalize time.Time, hasFinalize, abandoned bool) {
	if expected == 0 {
		<-ctx.Done()
		return time.Time{}, false, true
	}

	cfg := &longpoll.ChannelConfig{
		MaxSize:        expected,
		MinSize:        expected,
		PartialTimeout: -1,
	}
	err := longpoll.Channel(ctx, cfg, completions, func(c sourceCompletion) error {
		if !hasFinalize || c.finalTime.After(finalize) {
			finalize, hasFinalize = c.finalTime, true
		}
		return nil
	})
	abandoned = err != nil && err != io.EOF
	return finalize, hasFinalize, abandoned
}

// stop runs the drain sequence exactly once: ask every source to stop,
// collect the effective finalize time, drain the scheduler (unless
// abandonPending), then stop it. Safe to call multiple times; only the
// first call has effect.
func (p *Pipeline) stop(abandonPending bool) error {
	p.stopOnce.Do(func() {
		p.state.TryTransition(Started, Stopping)

		finalize, _ := p.rootCtx.FinalizeTime()

		p.mu.Lock()
		sources := append([]sourceEntry(nil), p.sources...)
		elements := append([]*PipelineElement(nil), p.elements...)
		p.mu.Unlock()

		var wg sync.WaitGroup
		wg.Add(len(sources))
		for _, entry := range sources {
			entry := entry
			entry.source.Stop(finalize, wg.Done)
		}
		wg.Wait()

		for _, el := range elements {
			el.closeEmitters(finalize)
		}

		if !abandonPending {
			<-p.rootCtx.Empty()
		}

		if p.ownsScheduler {
			p.scheduler.Stop(abandonPending)
		}
		p.rootCtx.Stop()

		for _, el := range elements {
			el.unsubscribeReceivers()
			el.state.Store(Stopped)
		}
		p.state.Store(Stopped)

		if abandonPending {
			p.stopErr = &ForcedShutdownError{}
		}
	})
	return p.stopErr
}
