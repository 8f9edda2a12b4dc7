package metrics

import (
	"time"

	"github.com/LavishGent/callgate/internal/types"
)

// Multi fans every event out to each recorder in order. Nil recorders are skipped.
func Multi(recorders ...types.MetricsRecorder) types.MetricsRecorder {
	var live multiRecorder
	for _, r := range recorders {
		if r != nil {
			live = append(live, r)
		}
	}
	switch len(live) {
	case 0:
		return NoOpRecorder{}
	case 1:
		return live[0]
	}
	return live
}

type multiRecorder []types.MetricsRecorder

func (m multiRecorder) RecordHit(tier string, key string, latency time.Duration) {
	for _, r := range m {
		r.RecordHit(tier, key, latency)
	}
}

func (m multiRecorder) RecordMiss(tier string, key string, latency time.Duration) {
	for _, r := range m {
		r.RecordMiss(tier, key, latency)
	}
}

func (m multiRecorder) RecordSet(tier string, key string, size int, latency time.Duration) {
	for _, r := range m {
		r.RecordSet(tier, key, size, latency)
	}
}

func (m multiRecorder) RecordEviction(tier string, key string) {
	for _, r := range m {
		r.RecordEviction(tier, key)
	}
}

func (m multiRecorder) RecordRequest(endpoint string, outcome string, latency time.Duration) {
	for _, r := range m {
		r.RecordRequest(endpoint, outcome, latency)
	}
}

func (m multiRecorder) RecordRetry(endpoint string, attempt int) {
	for _, r := range m {
		r.RecordRetry(endpoint, attempt)
	}
}

func (m multiRecorder) RecordCircuitBreakerStateChange(from, to string) {
	for _, r := range m {
		r.RecordCircuitBreakerStateChange(from, to)
	}
}

// PublisherRecorder forwards recorder events to a Publisher as StatsD-style
// counters and timings.
type PublisherRecorder struct {
	publisher types.Publisher
}

func NewPublisherRecorder(publisher types.Publisher) *PublisherRecorder {
	return &PublisherRecorder{publisher: publisher}
}

func (p *PublisherRecorder) RecordHit(tier string, key string, latency time.Duration) {
	p.publisher.Incr("cache.hit", TierTag(tier))
}

func (p *PublisherRecorder) RecordMiss(tier string, key string, latency time.Duration) {
	p.publisher.Incr("cache.miss", TierTag(tier))
}

func (p *PublisherRecorder) RecordSet(tier string, key string, size int, latency time.Duration) {
	p.publisher.Incr("cache.set", TierTag(tier))
	p.publisher.Histogram("cache.entry_bytes", float64(size), TierTag(tier))
}

func (p *PublisherRecorder) RecordEviction(tier string, key string) {
	p.publisher.Incr("cache.eviction", TierTag(tier))
}

func (p *PublisherRecorder) RecordRequest(endpoint string, outcome string, latency time.Duration) {
	p.publisher.Timing("request.duration", latency, EndpointTag(endpoint), OutcomeTag(outcome))
}

func (p *PublisherRecorder) RecordRetry(endpoint string, attempt int) {
	p.publisher.Incr("request.retry", EndpointTag(endpoint))
}

func (p *PublisherRecorder) RecordCircuitBreakerStateChange(from, to string) {
	p.publisher.Event("Circuit breaker "+to, "transition from "+from+" to "+to, alertTypeFor(to), CircuitStateTag(to))
}

func alertTypeFor(state string) string {
	switch state {
	case "open":
		return "error"
	case "half-open":
		return "warning"
	default:
		return "success"
	}
}

var (
	_ types.MetricsRecorder = multiRecorder(nil)
	_ types.MetricsRecorder = (*PublisherRecorder)(nil)
)
