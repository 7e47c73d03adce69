package pipeline

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Metrics aggregates the diagnostic counters named by the scheduler design:
// scheduler-wide work-item latency percentiles, queue-depth gauges for the
// three queue kinds (ready, future, per-receiver delivery), and the
// local-to-global work-item promotion counter.
//
// With WithMetrics(true) the Scheduler records DispatchLatency and the
// ready and future gauges. Nothing in the package calls UpdateDelivery or
// RecordPromotion (the Scheduler has no local-continuation path), so the
// delivery gauge and the promotion counter only reflect explicit calls.
//
// All methods are safe for concurrent use. Attach via WithMetrics.
type Metrics struct {
	// DispatchLatency tracks how long each WorkItem takes to run once
	// dispatched (its callback plus the SyncLock release), as measured in
	// the Scheduler; time spent waiting in a queue is not included.
	DispatchLatency LatencyMetrics

	// Queue tracks depth gauges for the ready, future, and delivery queues.
	Queue QueueMetrics

	// promotions counts WorkItems that could not run as a local
	// continuation and were instead pushed to the global WorkItemQueue.
	promotions atomic.Int64
}

// RecordPromotion increments the local-to-global promotion counter.
func (m *Metrics) RecordPromotion() {
	m.promotions.Add(1)
}

// Promotions returns the total number of local-to-global promotions.
func (m *Metrics) Promotions() int64 {
	return m.promotions.Load()
}

// sampleSize bounds the rolling exact-percentile fallback buffer.
const sampleSize = 1000

// LatencyMetrics tracks a latency distribution using the P-Square streaming
// quantile estimator (psquare.go), falling back to exact sorting while the
// sample count is too small for the estimator to have stabilized.
type LatencyMetrics struct {
	psquare *pSquareMultiQuantile

	mu sync.RWMutex

	sampleIdx   int
	sampleCount int
	samples     [sampleSize]time.Duration

	P50 time.Duration
	P90 time.Duration
	P99 time.Duration
	Max time.Duration

	Mean time.Duration
	Sum  time.Duration
}

// Record records one dispatch-latency observation.
func (l *LatencyMetrics) Record(duration time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.psquare == nil {
		l.psquare = newPSquareMultiQuantile(0.50, 0.90, 0.99)
	}
	l.psquare.Update(float64(duration))

	if l.sampleCount >= sampleSize {
		l.Sum -= l.samples[l.sampleIdx]
	}
	l.samples[l.sampleIdx] = duration
	l.Sum += duration
	l.sampleIdx++
	if l.sampleIdx >= sampleSize {
		l.sampleIdx = 0
	}
	if l.sampleCount < sampleSize {
		l.sampleCount++
	}
}

// Sample recomputes the cached percentile fields and returns the number of
// samples the computation was based on.
func (l *LatencyMetrics) Sample() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	count := l.sampleCount
	if count == 0 {
		return 0
	}

	if count < 5 || l.psquare == nil {
		sorted := make([]time.Duration, count)
		copy(sorted, l.samples[:count])
		sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

		l.P50 = sorted[percentileIndex(count, 50)]
		l.P90 = sorted[percentileIndex(count, 90)]
		l.P99 = sorted[percentileIndex(count, 99)]
		l.Max = sorted[count-1]
		l.Mean = l.Sum / time.Duration(count)
		return count
	}

	l.P50 = time.Duration(l.psquare.Quantile(0))
	l.P90 = time.Duration(l.psquare.Quantile(1))
	l.P99 = time.Duration(l.psquare.Quantile(2))
	l.Max = time.Duration(l.psquare.Max())
	l.Mean = l.Sum / time.Duration(count)
	return count
}

func percentileIndex(n, p int) int {
	index := (p * n) / 100
	if index >= n {
		return n - 1
	}
	return index
}

// QueueMetrics tracks depth gauges for the ready WorkItemQueue, the
// FutureWorkItemQueue, and the aggregate of per-receiver DeliveryQueues.
type QueueMetrics struct {
	mu sync.RWMutex

	ReadyCurrent    int
	FutureCurrent   int
	DeliveryCurrent int

	ReadyMax    int
	FutureMax   int
	DeliveryMax int

	readyEMAInitialized    bool
	futureEMAInitialized   bool
	deliveryEMAInitialized bool

	ReadyAvg    float64
	FutureAvg   float64
	DeliveryAvg float64
}

// UpdateReady records a new WorkItemQueue depth observation.
func (q *QueueMetrics) UpdateReady(depth int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.ReadyCurrent = depth
	if depth > q.ReadyMax {
		q.ReadyMax = depth
	}
	q.ReadyAvg = ema(q.ReadyAvg, depth, &q.readyEMAInitialized)
}

// UpdateFuture records a new FutureWorkItemQueue depth observation.
func (q *QueueMetrics) UpdateFuture(depth int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.FutureCurrent = depth
	if depth > q.FutureMax {
		q.FutureMax = depth
	}
	q.FutureAvg = ema(q.FutureAvg, depth, &q.futureEMAInitialized)
}

// UpdateDelivery records a new aggregate DeliveryQueue depth observation.
func (q *QueueMetrics) UpdateDelivery(depth int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.DeliveryCurrent = depth
	if depth > q.DeliveryMax {
		q.DeliveryMax = depth
	}
	q.DeliveryAvg = ema(q.DeliveryAvg, depth, &q.deliveryEMAInitialized)
}

// ema computes an exponential moving average with alpha=0.1, warm-starting
// from the first observed value.
func ema(prev float64, depth int, initialized *bool) float64 {
	if !*initialized {
		*initialized = true
		return float64(depth)
	}
	return 0.9*prev + 0.1*float64(depth)
}
