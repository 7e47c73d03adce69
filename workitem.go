package pipeline

import "time"

// WorkItem represents "deliver next message for receiver R"; items are
// ordered by StartTime. SyncLock and Context are shared references whose
// lifetime is the longest of their holders (the receiver and any queue that
// currently holds the item).
type WorkItem struct {
	SyncLock *SynchronizationLock
	Context  *SchedulerContext
	// StartTime is the ordering key: the originating time of the message
	// this item will deliver.
	StartTime time.Time
	// Callback runs the delivery. The scheduler releases SyncLock and calls
	// Context.Exit on every exit path once Callback returns or panics;
	// Callback itself must not touch either.
	Callback func()
	// Component names the owning element, used only for diagnostics and
	// CallbackError attribution.
	Component string

	// seq is an internal tie-break counter assigned by the queue on push,
	// giving a stable FIFO order among items with equal StartTime.
	seq int64
	// index is maintained by container/heap; -1 when not in a heap.
	index int
}
