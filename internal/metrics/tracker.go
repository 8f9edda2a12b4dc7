// Package metrics collects gateway metrics and publishes them to external sinks.
package metrics

import (
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/LavishGent/callgate/internal/types"
)

const (
	defaultLatencyBufferSize = 10000
)

// Tiers reported by the cache layers.
const (
	TierMemory  = "memory"
	TierPersist = "persist"
	TierHot     = "hot"
)

// Snapshot is a point-in-time copy of the Tracker counters.
type Snapshot struct {
	Timestamp time.Time

	MemoryHits    int64
	MemoryMisses  int64
	PersistHits   int64
	HotHits       int64
	HotMisses     int64
	SetCount      int64
	Evictions     int64
	BytesWritten  int64
	Requests      int64
	RequestErrors int64
	Retries       int64
	CircuitTrips  int64

	AvgLatencyMs float64
	P50LatencyMs float64
	P95LatencyMs float64
	P99LatencyMs float64
}

// HitRatio is the fraction of cache lookups served by any tier.
func (s Snapshot) HitRatio() float64 {
	hits := s.MemoryHits + s.PersistHits + s.HotHits
	total := hits + s.MemoryMisses + s.HotMisses
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total)
}

// Tracker is an in-process MetricsRecorder. Request latencies are kept in a
// fixed ring buffer for percentile snapshots.
type Tracker struct {
	memoryHits   atomic.Int64
	memoryMisses atomic.Int64
	persistHits  atomic.Int64
	hotHits      atomic.Int64
	hotMisses    atomic.Int64

	setCount          atomic.Int64
	evictions         atomic.Int64
	totalBytesWritten atomic.Int64

	requests      atomic.Int64
	requestErrors atomic.Int64
	retries       atomic.Int64

	cbStateChanges atomic.Int64

	latencyMu     sync.RWMutex
	latencyBuffer []time.Duration
	latencyIndex  int
	latencyCount  int
}

func NewTracker() *Tracker {
	return &Tracker{
		latencyBuffer: make([]time.Duration, defaultLatencyBufferSize),
	}
}

func (t *Tracker) RecordHit(tier string, key string, latency time.Duration) {
	switch tier {
	case TierMemory:
		t.memoryHits.Add(1)
	case TierPersist:
		t.persistHits.Add(1)
	case TierHot:
		t.hotHits.Add(1)
	}
}

func (t *Tracker) RecordMiss(tier string, key string, latency time.Duration) {
	switch tier {
	case TierMemory, TierPersist:
		t.memoryMisses.Add(1)
	case TierHot:
		t.hotMisses.Add(1)
	}
}

func (t *Tracker) RecordSet(tier string, key string, size int, latency time.Duration) {
	t.setCount.Add(1)
	t.totalBytesWritten.Add(int64(size))
}

func (t *Tracker) RecordEviction(tier string, key string) {
	t.evictions.Add(1)
}

// RecordRequest records a backend call outcome. Only backend calls feed the
// latency percentiles; cache lookups are too fast to be interesting there.
func (t *Tracker) RecordRequest(endpoint string, outcome string, latency time.Duration) {
	t.requests.Add(1)
	if outcome != OutcomeSuccess {
		t.requestErrors.Add(1)
	}
	t.recordLatency(latency)
}

func (t *Tracker) RecordRetry(endpoint string, attempt int) {
	t.retries.Add(1)
}

// RecordCircuitBreakerStateChange counts transitions into the open state.
func (t *Tracker) RecordCircuitBreakerStateChange(from, to string) {
	if to == "open" {
		t.cbStateChanges.Add(1)
	}
}

// recordLatency adds a latency measurement using a circular buffer.
func (t *Tracker) recordLatency(latency time.Duration) {
	t.latencyMu.Lock()
	t.latencyBuffer[t.latencyIndex] = latency
	t.latencyIndex = (t.latencyIndex + 1) % len(t.latencyBuffer)
	if t.latencyCount < len(t.latencyBuffer) {
		t.latencyCount++
	}
	t.latencyMu.Unlock()
}

// Snapshot returns current metrics snapshot.
func (t *Tracker) Snapshot() Snapshot {
	t.latencyMu.RLock()
	count := t.latencyCount
	latencyCopy := make([]time.Duration, count)
	if count > 0 {
		if count < len(t.latencyBuffer) {
			copy(latencyCopy, t.latencyBuffer[:count])
		} else {
			// Buffer is full - oldest data starts at latencyIndex
			firstPart := len(t.latencyBuffer) - t.latencyIndex
			copy(latencyCopy[:firstPart], t.latencyBuffer[t.latencyIndex:])
			copy(latencyCopy[firstPart:], t.latencyBuffer[:t.latencyIndex])
		}
	}
	t.latencyMu.RUnlock()

	snapshot := Snapshot{
		Timestamp:     time.Now(),
		MemoryHits:    t.memoryHits.Load(),
		MemoryMisses:  t.memoryMisses.Load(),
		PersistHits:   t.persistHits.Load(),
		HotHits:       t.hotHits.Load(),
		HotMisses:     t.hotMisses.Load(),
		SetCount:      t.setCount.Load(),
		Evictions:     t.evictions.Load(),
		BytesWritten:  t.totalBytesWritten.Load(),
		Requests:      t.requests.Load(),
		RequestErrors: t.requestErrors.Load(),
		Retries:       t.retries.Load(),
		CircuitTrips:  t.cbStateChanges.Load(),
	}

	if len(latencyCopy) > 0 {
		snapshot.AvgLatencyMs = float64(avgDuration(latencyCopy).Milliseconds())
		snapshot.P50LatencyMs = float64(percentile(latencyCopy, 50).Milliseconds())
		snapshot.P95LatencyMs = float64(percentile(latencyCopy, 95).Milliseconds())
		snapshot.P99LatencyMs = float64(percentile(latencyCopy, 99).Milliseconds())
	}

	return snapshot
}

// Reset clears all metrics.
func (t *Tracker) Reset() {
	for _, c := range []*atomic.Int64{
		&t.memoryHits, &t.memoryMisses, &t.persistHits, &t.hotHits, &t.hotMisses,
		&t.setCount, &t.evictions, &t.totalBytesWritten,
		&t.requests, &t.requestErrors, &t.retries, &t.cbStateChanges,
	} {
		c.Store(0)
	}

	t.latencyMu.Lock()
	t.latencyIndex = 0
	t.latencyCount = 0
	t.latencyMu.Unlock()
}

func avgDuration(durations []time.Duration) time.Duration {
	if len(durations) == 0 {
		return 0
	}
	var total time.Duration
	for _, d := range durations {
		total += d
	}
	return total / time.Duration(len(durations))
}

func percentile(durations []time.Duration, p int) time.Duration {
	if len(durations) == 0 {
		return 0
	}

	sorted := make([]time.Duration, len(durations))
	copy(sorted, durations)
	slices.Sort(sorted)

	idx := (len(sorted) - 1) * p / 100
	return sorted[idx]
}

var _ types.MetricsRecorder = (*Tracker)(nil)
