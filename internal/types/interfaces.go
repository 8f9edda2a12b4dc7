package types

import (
	"context"
	"time"
)

// Transport delivers a call to the remote backend. Implementations are not
// assumed idempotent; a returned error means the call may or may not have
// reached the backend.
type Transport interface {
	Invoke(ctx context.Context, spec RequestSpec) (*Response, error)
}

// TransportFunc adapts a function to Transport.
type TransportFunc func(ctx context.Context, spec RequestSpec) (*Response, error)

func (f TransportFunc) Invoke(ctx context.Context, spec RequestSpec) (*Response, error) {
	return f(ctx, spec)
}

// Store is the persisted tier. It is a warm cache, never a source of truth:
// writes are not guaranteed durable and may be lost on restart.
type Store interface {
	Name() string
	IsAvailable() bool
	Get(ctx context.Context, key string) (*Envelope, error)
	Set(ctx context.Context, key string, env Envelope) error
	Remove(ctx context.Context, key string) error
	RemoveMatching(ctx context.Context, substr string) error
	Clear(ctx context.Context) error
	Close() error
}

// WriteQueueStats is implemented by stores that buffer writes.
type WriteQueueStats interface {
	PendingWrites() int
	DroppedWrites() int64
}

// Session exposes the identity of the current caller for user-scoped cache keys.
type Session interface {
	UserID(ctx context.Context) string
}

// SessionFunc adapts a function to Session.
type SessionFunc func(ctx context.Context) string

func (f SessionFunc) UserID(ctx context.Context) string {
	return f(ctx)
}

type Serializer interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, dest any) error
}

type MetricsRecorder interface {
	RecordHit(tier string, key string, latency time.Duration)
	RecordMiss(tier string, key string, latency time.Duration)
	RecordSet(tier string, key string, size int, latency time.Duration)
	RecordEviction(tier string, key string)
	RecordRequest(endpoint string, outcome string, latency time.Duration)
	RecordRetry(endpoint string, attempt int)
	RecordCircuitBreakerStateChange(from, to string)
}

type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Publisher pushes metrics to an external sink such as a StatsD agent.
type Publisher interface {
	Gauge(name string, value float64, tags ...string)
	Incr(name string, tags ...string)
	Count(name string, value int64, tags ...string)
	Histogram(name string, value float64, tags ...string)
	Timing(name string, duration time.Duration, tags ...string)
	Event(title, text, alertType string, tags ...string)
	PublishHealthMetrics(metrics *HealthMetrics)
	Close() error
}
