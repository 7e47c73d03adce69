package pipeline

import (
	"sync"
	"time"
)

// anyEmitter is the type-erased vtable a PipelineElement uses to manage its
// emitters without needing their payload type parameter.
type anyEmitter interface {
	closeAt(originatingTime time.Time)
}

// anyReceiver is the type-erased vtable a PipelineElement uses to manage its
// receivers without needing their payload type parameter.
type anyReceiver interface {
	unsubscribeAll()
}

// PipelineElement is a named component instance inside a Pipeline: its
// lifecycle state, its shared per-component SynchronizationLock, and the
// Emitters/Receivers it owns. Every Emitter and Receiver created against one
// element shares that element's single SyncLock, which is how the
// component contract's "no two callbacks of one component run
// concurrently" guarantee is enforced regardless of how many streams the
// component exposes.
type PipelineElement struct {
	Name      string
	Component any
	Pipeline  *Pipeline

	state    *elementState
	syncLock *SynchronizationLock
	ctx      *SchedulerContext

	mu         sync.Mutex
	emitterSeq int32
	receiverSeq int32
	emitters   []anyEmitter
	receivers  []anyReceiver
}

// State returns the element's current lifecycle state.
func (el *PipelineElement) State() ElementState {
	return el.state.Load()
}

// Context returns the SchedulerContext every WorkItem scheduled on behalf of
// this element's streams is Entered/Exited against.
func (el *PipelineElement) Context() *SchedulerContext {
	return el.ctx
}

func (el *PipelineElement) nextEmitterID() int32 {
	el.mu.Lock()
	defer el.mu.Unlock()
	el.emitterSeq++
	return el.emitterSeq
}

func (el *PipelineElement) nextReceiverID() int32 {
	el.mu.Lock()
	defer el.mu.Unlock()
	el.receiverSeq++
	return el.receiverSeq
}

func (el *PipelineElement) addEmitter(e anyEmitter) {
	el.mu.Lock()
	defer el.mu.Unlock()
	el.emitters = append(el.emitters, e)
}

func (el *PipelineElement) addReceiver(r anyReceiver) {
	el.mu.Lock()
	defer el.mu.Unlock()
	el.receivers = append(el.receivers, r)
}

// closeEmitters closes every emitter this element owns, at originatingTime.
// Called during Pipeline stop so a component's outputs always observe a
// closing message even if the component itself never calls Close.
func (el *PipelineElement) closeEmitters(originatingTime time.Time) {
	el.mu.Lock()
	emitters := append([]anyEmitter(nil), el.emitters...)
	el.mu.Unlock()
	for _, e := range emitters {
		e.closeAt(originatingTime)
	}
}

// unsubscribeReceivers detaches every receiver this element owns from its
// upstream emitter. Called during Pipeline stop.
func (el *PipelineElement) unsubscribeReceivers() {
	el.mu.Lock()
	receivers := append([]anyReceiver(nil), el.receivers...)
	el.mu.Unlock()
	for _, r := range receivers {
		r.unsubscribeAll()
	}
}
