package callgate

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/LavishGent/callgate/internal/types"
)

type (
	// Option adjusts a single call.
	Option = types.Option
	// ManagerOptions holds collaborators injected into the manager.
	ManagerOptions = types.ManagerOptions
)

func WithPayload(payload map[string]any) Option {
	return types.WithPayload(payload)
}

func WithPriority(priority Priority) Option {
	return types.WithPriority(priority)
}

func WithHighPriority() Option {
	return types.WithPriority(PriorityHigh)
}

func WithLowPriority() Option {
	return types.WithPriority(PriorityLow)
}

func WithRetryBudget(n int) Option {
	return types.WithRetryBudget(n)
}

func WithoutRetries() Option {
	return types.WithoutRetries()
}

func WithTimeout(d time.Duration) Option {
	return types.WithTimeout(d)
}

// settings collects everything a ManagerOption can set. The transport and
// Prometheus registry are only used by Open.
type settings struct {
	manager   ManagerOptions
	transport Transport
	registry  *prometheus.Registry
}

type ManagerOption func(*settings)

func applySettings(opts []ManagerOption) *settings {
	s := &settings{}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func WithLogger(logger Logger) ManagerOption {
	return func(s *settings) {
		s.manager.Logger = logger
	}
}

func WithMetrics(metrics MetricsRecorder) ManagerOption {
	return func(s *settings) {
		s.manager.Metrics = metrics
	}
}

func WithSerializer(serializer Serializer) ManagerOption {
	return func(s *settings) {
		s.manager.Serializer = serializer
	}
}

func WithSession(session Session) ManagerOption {
	return func(s *settings) {
		s.manager.Session = session
	}
}

func WithStore(store Store) ManagerOption {
	return func(s *settings) {
		s.manager.Store = store
	}
}

func WithClock(now func() time.Time) ManagerOption {
	return func(s *settings) {
		s.manager.Clock = now
	}
}

func WithRedisAddress(addr string) ManagerOption {
	return func(s *settings) {
		s.manager.RedisAddress = addr
	}
}

func WithRedisPassword(password string) ManagerOption {
	return func(s *settings) {
		s.manager.RedisPassword = types.NewSecretString(password)
	}
}

func WithoutPersist() ManagerOption {
	return func(s *settings) {
		s.manager.DisablePersist = true
	}
}

func WithoutResilience() ManagerOption {
	return func(s *settings) {
		s.manager.DisableResilience = true
	}
}

// WithTransport makes Open use transport instead of building an HTTP one.
func WithTransport(transport Transport) ManagerOption {
	return func(s *settings) {
		s.transport = transport
	}
}

// WithPrometheusRegistry registers Open's Prometheus collectors on reg
// instead of a private registry.
func WithPrometheusRegistry(reg *prometheus.Registry) ManagerOption {
	return func(s *settings) {
		s.registry = reg
	}
}
