// Package metrics aggregates operation results during a load run.
package metrics

import (
	"sort"
	"sync"
	"time"

	"offerdex/pkg/benchmark/types"
)

// Collector accumulates per-operation latencies and outcomes. All
// methods are safe for concurrent use by the worker pool.
//
// Latencies are tracked in microseconds; an in-memory registry answers
// most requests in well under a millisecond and whole-ms buckets would
// flatten every percentile to zero.
type Collector struct {
	mu        sync.RWMutex
	startTime time.Time

	totalOps      int64
	successfulOps int64
	failedOps     int64

	latencies    []int64
	totalLatency int64

	errorsByType map[string]int64

	perOperation map[string]*operationStats
}

type operationStats struct {
	count        int64
	failCount    int64
	totalLatency int64
	latencies    []int64
}

// NewCollector creates an empty collector with the clock started.
func NewCollector() *Collector {
	return &Collector{
		startTime:    time.Now(),
		latencies:    make([]int64, 0, 10000),
		errorsByType: make(map[string]int64),
		perOperation: make(map[string]*operationStats),
	}
}

// RecordOperation folds one result into the aggregates.
func (c *Collector) RecordOperation(result *types.OperationResult) {
	if result == nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.totalOps++
	if result.Success {
		c.successfulOps++
	} else {
		c.failedOps++
		if result.Error != nil {
			c.errorsByType[result.Error.Error()]++
		}
	}

	latencyUs := result.Duration.Microseconds()
	c.latencies = append(c.latencies, latencyUs)
	c.totalLatency += latencyUs

	stats := c.perOperation[result.OperationType]
	if stats == nil {
		stats = &operationStats{latencies: make([]int64, 0, 1000)}
		c.perOperation[result.OperationType] = stats
	}
	stats.count++
	if !result.Success {
		stats.failCount++
	}
	stats.totalLatency += latencyUs
	stats.latencies = append(stats.latencies, latencyUs)
}

// Metrics returns the current aggregates across all operations.
func (c *Collector) Metrics() *types.AggregatedMetrics {
	c.mu.RLock()
	defer c.mu.RUnlock()

	elapsed := time.Since(c.startTime).Seconds()
	m := summarize(c.latencies, c.totalLatency, c.totalOps, c.failedOps, elapsed)

	m.ErrorsByType = make(map[string]int64, len(c.errorsByType))
	for errType, count := range c.errorsByType {
		m.ErrorsByType[errType] = count
	}
	return m
}

// OperationMetrics returns the aggregates broken down per operation
// type.
func (c *Collector) OperationMetrics() map[string]*types.AggregatedMetrics {
	c.mu.RLock()
	defer c.mu.RUnlock()

	elapsed := time.Since(c.startTime).Seconds()
	out := make(map[string]*types.AggregatedMetrics, len(c.perOperation))
	for opType, stats := range c.perOperation {
		out[opType] = summarize(stats.latencies, stats.totalLatency, stats.count, stats.failCount, elapsed)
	}
	return out
}

// Reset discards everything recorded so far and restarts the clock.
// The runner calls this when the warmup window closes.
func (c *Collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.startTime = time.Now()
	c.totalOps = 0
	c.successfulOps = 0
	c.failedOps = 0
	c.latencies = c.latencies[:0]
	c.totalLatency = 0
	c.errorsByType = make(map[string]int64)
	c.perOperation = make(map[string]*operationStats)
}

// summarize aggregates one latency series. The caller must hold at
// least a read lock while the slices are still shared.
func summarize(latencies []int64, totalLatency, total, failed int64, elapsedSeconds float64) *types.AggregatedMetrics {
	m := &types.AggregatedMetrics{
		TotalOperations: total,
		TotalErrors:     failed,
	}
	if total > 0 {
		m.SuccessRate = float64(total-failed) / float64(total) * 100
	}
	if elapsedSeconds > 0 {
		m.Throughput = float64(total) / elapsedSeconds
	}

	if len(latencies) == 0 {
		return m
	}

	sorted := make([]int64, len(latencies))
	copy(sorted, latencies)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	m.Latency = types.LatencyStats{
		Min:    toMillis(sorted[0]),
		Max:    toMillis(sorted[len(sorted)-1]),
		Mean:   toMillis(totalLatency) / float64(len(sorted)),
		Median: toMillis(percentile(sorted, 0.50)),
		P90:    toMillis(percentile(sorted, 0.90)),
		P95:    toMillis(percentile(sorted, 0.95)),
		P99:    toMillis(percentile(sorted, 0.99)),
	}
	return m
}

// percentile picks the q-th percentile from an ascending series.
func percentile(sorted []int64, q float64) int64 {
	idx := int(float64(len(sorted)) * q)
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func toMillis(us int64) float64 {
	return float64(us) / 1000
}
