package pipeline

import (
	"container/heap"
	"sync"
	"time"
)

// FutureWorkItemQueue holds work items whose StartTime has not yet arrived
// under the virtual clock. It shares the priority ordering of
// WorkItemQueue, but its dequeue gate compares StartTime against the
// clock (or the item's context finalizeTime) rather than a SyncLock.
//
// Promotion gate (matches the scheduler's Scheduler.futuresLoop): an item
// is ready to promote to the ready WorkItemQueue once
// startTime <= clock.Now(), OR delayFutureUntilDue is false, OR
// startTime > context.finalizeTime (so unreachable items can still be
// drained and have Exit called on their context).
type FutureWorkItemQueue struct {
	mu      sync.Mutex
	items   workItemHeap
	nextSeq int64
	emptyCh chan struct{}

	delayFutureUntilDue bool
}

// NewFutureWorkItemQueue returns an empty future queue. delayFutureUntilDue
// mirrors the WithDelayFutureUntilDue scheduler option.
func NewFutureWorkItemQueue(delayFutureUntilDue bool) *FutureWorkItemQueue {
	ch := make(chan struct{})
	close(ch)
	return &FutureWorkItemQueue{emptyCh: ch, delayFutureUntilDue: delayFutureUntilDue}
}

// Push enqueues a not-yet-due work item.
func (q *FutureWorkItemQueue) Push(wi *WorkItem) {
	q.mu.Lock()
	defer q.mu.Unlock()
	wi.seq = q.nextSeq
	q.nextSeq++
	if len(q.items) == 0 {
		q.emptyCh = make(chan struct{})
	}
	heap.Push(&q.items, wi)
}

// classifyLocked reports whether wi currently passes the promotion gate
// and, if so, whether it is genuinely due (ready=true, due=true: push to
// the ready WorkItemQueue and run Callback) as opposed to merely
// unreachable past its context's finalizeTime (ready=true, due=false:
// Exit its context without running Callback). The caller already holds
// q.mu.
func (q *FutureWorkItemQueue) classifyLocked(wi *WorkItem, now time.Time) (ready, due bool) {
	if !wi.StartTime.After(now) {
		return true, true
	}
	if !q.delayFutureUntilDue {
		return true, true
	}
	if wi.Context.PastFinalize(wi.StartTime) {
		return true, false
	}
	return false, false
}

// DrainReady pops every item currently passing the promotion gate, in
// priority order, split into due (push to the ready WorkItemQueue and run
// normally) and dropped (past the context's finalizeTime and unreachable;
// the caller must Exit their context directly, without running Callback).
func (q *FutureWorkItemQueue) DrainReady(now time.Time) (due, dropped []*WorkItem) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.items) > 0 {
		ready, isDue := q.classifyLocked(q.items[0], now)
		if !ready {
			break
		}
		wi := heap.Pop(&q.items).(*WorkItem)
		if isDue {
			due = append(due, wi)
		} else {
			dropped = append(dropped, wi)
		}
	}
	if len(q.items) == 0 {
		q.signalEmptyLocked()
	}
	return due, dropped
}

// NextDeadline returns the StartTime of the earliest-priority item and
// whether the queue is non-empty. Used by the futures thread to compute its
// wait timeout.
func (q *FutureWorkItemQueue) NextDeadline() (time.Time, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return time.Time{}, false
	}
	return q.items[0].StartTime, true
}

// Len returns the current queue depth.
func (q *FutureWorkItemQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Empty returns a channel closed whenever the queue was observed empty.
func (q *FutureWorkItemQueue) Empty() <-chan struct{} {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.emptyCh
}

func (q *FutureWorkItemQueue) signalEmptyLocked() {
	select {
	case <-q.emptyCh:
	default:
		close(q.emptyCh)
	}
}
