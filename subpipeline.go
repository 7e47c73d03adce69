package pipeline

import "context"

// CreateSubpipeline builds a nested Pipeline that shares parent's Scheduler
// (so both run on the same worker pool and futures thread) but owns an
// independent SchedulerContext: its own finalizeTime and Empty event, so a
// caller can drain or cancel it without touching the rest of the graph.
// Composes independently-cancellable subgraphs per the component contract.
func CreateSubpipeline(parent *Pipeline, opts ...PipelineOption) *Pipeline {
	opts = append([]PipelineOption{WithScheduler(parent.scheduler)}, opts...)
	return New(opts...)
}

// RunSubpipeline runs child under a context derived from ctx, so cancelling
// ctx also stops child; child's own Run error (if any) is returned once it
// unwinds. This is the nested-scope analogue of the root Pipeline.Run call,
// kept separate so a caller holding both a parent and a child Pipeline can
// cancel either independently: cancelling ctx stops child without affecting
// parent, while parent's own Run is driven by its own context.
func RunSubpipeline(ctx context.Context, child *Pipeline, replay ReplayDescriptor) error {
	childCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	return child.Run(childCtx, replay)
}
