package pipeline

import (
	"sync/atomic"
)

// ElementState is the lifecycle state of a PipelineElement.
//
// State machine:
//
//	NotStarted → Started     [Pipeline.Run starting the element's sources]
//	Started → Stopping       [Pipeline.stop beginning drain]
//	Stopping → Stopped       [drain complete, scheduler context emptied]
//
// Transitions are one-way; there is no restart from Stopped.
type ElementState uint64

const (
	// NotStarted is the state of every element before Pipeline.Run.
	NotStarted ElementState = 0
	// Started indicates the element's sources (if any) have been asked to
	// start and the element may emit and receive messages.
	Started ElementState = 1
	// Stopping indicates the pipeline has begun draining this element;
	// finalizeTime may already be set on its scheduler context.
	Stopping ElementState = 2
	// Stopped is terminal: the element's queues are drained and its
	// callbacks will not run again.
	Stopped ElementState = 3
)

// String returns a human-readable representation of the state.
func (s ElementState) String() string {
	switch s {
	case NotStarted:
		return "NotStarted"
	case Started:
		return "Started"
	case Stopping:
		return "Stopping"
	case Stopped:
		return "Stopped"
	default:
		return "Unknown"
	}
}

// elementState is a lock-free state machine with cache-line padding, used
// by PipelineElement and Pipeline to guard lifecycle transitions without a
// mutex on the hot path.
type elementState struct { // betteralign:ignore
	_ [64]byte      // cache line padding (before value) //nolint:unused
	v atomic.Uint64 // state value
	_ [56]byte      // pad to complete cache line (64 - 8 = 56) //nolint:unused
}

// newElementState creates a new state machine in the NotStarted state.
func newElementState() *elementState {
	s := &elementState{}
	s.v.Store(uint64(NotStarted))
	return s
}

// Load returns the current state atomically.
func (s *elementState) Load() ElementState {
	return ElementState(s.v.Load())
}

// Store atomically stores a new state, bypassing transition validation.
// Used only for the terminal Stopped assignment.
func (s *elementState) Store(state ElementState) {
	s.v.Store(uint64(state))
}

// TryTransition attempts to atomically transition from one state to
// another. Returns true if the transition was successful.
func (s *elementState) TryTransition(from, to ElementState) bool {
	return s.v.CompareAndSwap(uint64(from), uint64(to))
}

// IsTerminal returns true if the current state is Stopped.
func (s *elementState) IsTerminal() bool {
	return s.Load() == Stopped
}

// CanEmit returns true if the element may currently post or receive
// messages (Started, or draining but not yet Stopped).
func (s *elementState) CanEmit() bool {
	state := s.Load()
	return state == Started || state == Stopping
}
