package metrics

import (
	"time"

	"github.com/LavishGent/callgate/internal/types"
)

// NoOpRecorder discards everything. Used when metrics are disabled.
type NoOpRecorder struct{}

func NewNoOpRecorder() *NoOpRecorder {
	return &NoOpRecorder{}
}

func (NoOpRecorder) RecordHit(tier string, key string, latency time.Duration) {}
func (NoOpRecorder) RecordMiss(tier string, key string, latency time.Duration) {}
func (NoOpRecorder) RecordSet(tier string, key string, size int, latency time.Duration) {}
func (NoOpRecorder) RecordEviction(tier string, key string) {}
func (NoOpRecorder) RecordRequest(endpoint string, outcome string, latency time.Duration) {}
func (NoOpRecorder) RecordRetry(endpoint string, attempt int) {}
func (NoOpRecorder) RecordCircuitBreakerStateChange(from, to string) {}

// NoOpPublisher is a no-operation metrics publisher for testing or when disabled.
type NoOpPublisher struct{}

// NewNoOpPublisher creates a new no-op publisher.
func NewNoOpPublisher() *NoOpPublisher {
	return &NoOpPublisher{}
}

func (p *NoOpPublisher) Gauge(name string, value float64, tags ...string) {}
func (p *NoOpPublisher) Incr(name string, tags ...string) {}
func (p *NoOpPublisher) Count(name string, value int64, tags ...string) {}
func (p *NoOpPublisher) Histogram(name string, value float64, tags ...string) {}
func (p *NoOpPublisher) Timing(name string, duration time.Duration, tags ...string) {}
func (p *NoOpPublisher) Event(title, text, alertType string, tags ...string) {}
func (p *NoOpPublisher) PublishHealthMetrics(metrics *types.HealthMetrics) {}
func (p *NoOpPublisher) Close() error { return nil }

var (
	_ types.MetricsRecorder = NoOpRecorder{}
	_ types.Publisher       = (*NoOpPublisher)(nil)
)
