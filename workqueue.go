package pipeline

import (
	"container/heap"
	"sync"
)

// workItemHeap is a container/heap.Interface over *WorkItem, ordered by
// StartTime with a monotonic sequence number as a stable FIFO tie-break.
type workItemHeap []*WorkItem

func (h workItemHeap) Len() int { return len(h) }

func (h workItemHeap) Less(i, j int) bool {
	if h[i].StartTime.Equal(h[j].StartTime) {
		return h[i].seq < h[j].seq
	}
	return h[i].StartTime.Before(h[j].StartTime)
}

func (h workItemHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *workItemHeap) Push(x any) {
	wi := x.(*WorkItem)
	wi.index = len(*h)
	*h = append(*h, wi)
}

func (h *workItemHeap) Pop() any {
	old := *h
	n := len(old)
	wi := old[n-1]
	old[n-1] = nil
	wi.index = -1
	*h = old[:n-1]
	return wi
}

// WorkItemQueue is the ready queue: a priority queue over work items keyed
// by StartTime, whose Dequeue gate is the item's SyncLock.TryLock. An item
// whose component lock is currently held (another worker is already
// running a callback for that component) is skipped and left queued for a
// later attempt, preserving the "no two callbacks of one component run
// concurrently" guarantee across multiple receivers sharing a component.
type WorkItemQueue struct {
	mu      sync.Mutex
	items   workItemHeap
	nextSeq int64
	emptyCh chan struct{}
}

// NewWorkItemQueue returns an empty, ready WorkItemQueue.
func NewWorkItemQueue() *WorkItemQueue {
	ch := make(chan struct{})
	close(ch)
	return &WorkItemQueue{emptyCh: ch}
}

// Push enqueues a work item, assigning it a FIFO tie-break sequence.
func (q *WorkItemQueue) Push(wi *WorkItem) {
	q.mu.Lock()
	defer q.mu.Unlock()
	wi.seq = q.nextSeq
	q.nextSeq++
	if len(q.items) == 0 {
		q.emptyCh = make(chan struct{})
	}
	heap.Push(&q.items, wi)
}

// TryDequeue pops the earliest-priority item whose SyncLock.TryLock
// succeeds. Items examined and skipped (lock held) are restored to the
// queue in their original relative order. Returns false if no item's gate
// currently passes, or the queue is empty.
func (q *WorkItemQueue) TryDequeue() (*WorkItem, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var skipped []*WorkItem
	var found *WorkItem
	for len(q.items) > 0 {
		wi := heap.Pop(&q.items).(*WorkItem)
		if wi.SyncLock.TryLock() {
			found = wi
			break
		}
		skipped = append(skipped, wi)
	}
	for _, wi := range skipped {
		heap.Push(&q.items, wi)
	}
	if len(q.items) == 0 {
		q.signalEmptyLocked()
	}
	return found, found != nil
}

// Peek returns the earliest-priority item without removing it, ignoring
// the lock gate.
func (q *WorkItemQueue) Peek() (*WorkItem, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil, false
	}
	return q.items[0], true
}

// Len returns the current queue depth.
func (q *WorkItemQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Empty returns a channel closed whenever the queue was observed empty.
func (q *WorkItemQueue) Empty() <-chan struct{} {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.emptyCh
}

func (q *WorkItemQueue) signalEmptyLocked() {
	select {
	case <-q.emptyCh:
		// already closed
	default:
		close(q.emptyCh)
	}
}
