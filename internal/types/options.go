package types

import "time"

// Option is a functional option applied to a RequestSpec before it is issued.
type Option func(*RequestSpec)

// ApplyOptions applies functional options to a copy of spec.
func ApplyOptions(spec RequestSpec, opts ...Option) RequestSpec {
	for _, opt := range opts {
		opt(&spec)
	}
	return spec
}

// ManagerOptions holds collaborators injected into the gateway manager.
type ManagerOptions struct {
	// Logger is the structured logger to use.
	Logger Logger
	// Metrics is the metrics recorder.
	Metrics MetricsRecorder
	// Serializer encodes persisted envelopes.
	Serializer Serializer
	// Session resolves the current user id for user-scoped keys.
	Session Session
	// Store overrides the persisted tier built from config.
	Store Store
	// Clock overrides time.Now. Used by tests.
	Clock func() time.Time
	// RedisAddress overrides the Redis address from config.
	RedisAddress string
	// RedisPassword overrides the Redis password from config.
	// Uses SecretString to prevent accidental logging of sensitive values.
	RedisPassword SecretString
	// DisablePersist turns the persisted tier off entirely.
	DisablePersist bool
	// DisableResilience disables the circuit breaker around transport calls.
	DisableResilience bool
}

// WithPayload sets the request payload.
func WithPayload(payload map[string]any) Option {
	return func(s *RequestSpec) {
		s.Payload = payload
	}
}

// WithPriority sets the queue priority.
func WithPriority(p Priority) Option {
	return func(s *RequestSpec) {
		s.Priority = p
	}
}

// WithRetryBudget sets how many retries a transient failure may consume.
func WithRetryBudget(n int) Option {
	return func(s *RequestSpec) {
		s.RetryBudget = n
	}
}

// WithoutRetries disables retries for the request.
func WithoutRetries() Option {
	return WithRetryBudget(NoRetries)
}

// WithTimeout bounds each transport attempt.
func WithTimeout(d time.Duration) Option {
	return func(s *RequestSpec) {
		s.Timeout = d
	}
}
