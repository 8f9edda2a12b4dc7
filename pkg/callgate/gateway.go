package callgate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/LavishGent/callgate/internal/gateway"
	"github.com/LavishGent/callgate/internal/logging"
	"github.com/LavishGent/callgate/internal/metrics"
	"github.com/LavishGent/callgate/internal/metrics/datadog"
	"github.com/LavishGent/callgate/internal/transport"
	"github.com/LavishGent/callgate/internal/types"
)


// Gateway is a fully assembled client: logger, transport, metrics and a
// fail-safe wrapper around the manager, all built from one configuration.
type Gateway struct {
	wrapper    *gateway.Wrapper
	logger     *slog.Logger
	tracker    *metrics.Tracker
	prometheus *metrics.PrometheusRecorder
	publisher  types.Publisher
	health     *metrics.HealthCollector
	closeOnce  sync.Once
	closeErr   error
}

// Open assembles a Gateway from cfg. The manager is built immediately; if
// that fails the gateway still works, routing every call to the transport.
func Open(cfg *Configuration, opts ...ManagerOption) (*Gateway, error) {
	if cfg == nil {
		cfg = Config()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := applySettings(opts)

	logger := loggerFrom(s.manager.Logger)
	if s.manager.Logger == nil {
		l, err := logging.New(cfg.Logging)
		if err != nil {
			return nil, err
		}
		logger = l
		s.manager.Logger = l
	}

	tr := s.transport
	if tr == nil {
		httpTransport, err := transport.NewHTTPTransport(cfg.Transport, logger)
		if err != nil {
			return nil, err
		}
		tr = httpTransport
	}

	g := &Gateway{logger: logger.With("component", "callgate")}

	recorders := []types.MetricsRecorder{s.manager.Metrics}
	g.publisher = metrics.NewNoOpPublisher()
	if cfg.Metrics.Enabled {
		g.tracker = metrics.NewTracker()
		recorders = append(recorders, g.tracker)

		if cfg.Metrics.Prometheus.Enabled {
			reg := s.registry
			if reg == nil {
				reg = prometheus.NewRegistry()
			}
			g.prometheus = metrics.NewPrometheusRecorder(cfg.Metrics.Prometheus.Namespace, reg)
			recorders = append(recorders, g.prometheus)
		}

		if cfg.Metrics.DataDog.Enabled {
			publisher, err := datadog.NewPublisher(&cfg.Metrics.DataDog, logger)
			if err != nil {
				return nil, fmt.Errorf("callgate: datadog: %w", err)
			}
			g.publisher = publisher
			recorders = append(recorders, metrics.NewPublisherRecorder(publisher))
		} else {
			g.publisher = metrics.NewLoggingPublisher(logger)
		}
	}
	s.manager.Metrics = metrics.Multi(recorders...)

	g.wrapper = gateway.NewWrapper(func() (*Manager, error) {
		return gateway.NewManager(cfg, tr, &s.manager)
	}, tr, logger)
	if _, err := g.wrapper.Manager(); err != nil {
		g.logger.Warn("Gateway degraded to direct calls", "error", err)
	}

	if cfg.Metrics.Enabled && cfg.Metrics.PublishInterval > 0 {
		g.health = metrics.NewHealthCollector(g.publisher, g.Health, cfg.Metrics.PublishInterval, 0, logger)
		g.health.Start(context.Background())
	}
	return g, nil
}

// OpenFile loads configuration from path (see LoadConfig) and opens a Gateway.
func OpenFile(path string, opts ...ManagerOption) (*Gateway, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}
	return Open(cfg, opts...)
}

// Call resolves spec. See Wrapper.SafeCall.
func (g *Gateway) Call(ctx context.Context, spec RequestSpec, opts ...Option) (Result, error) {
	return g.wrapper.SafeCall(ctx, spec, opts...)
}

// BatchCall resolves every spec concurrently. See Wrapper.SafeBatchCall.
func (g *Gateway) BatchCall(ctx context.Context, specs []RequestSpec) ([]Result, error) {
	return g.wrapper.SafeBatchCall(ctx, specs)
}

// ClearCache removes cached entries whose key contains pattern; empty clears all.
func (g *Gateway) ClearCache(ctx context.Context, pattern string) {
	g.wrapper.ClearCache(ctx, pattern)
}

// Warmup pre-populates the caches.
func (g *Gateway) Warmup(ctx context.Context) {
	g.wrapper.Warmup(ctx)
}

// CancelAll drops every queued call and returns how many were dropped.
func (g *Gateway) CancelAll() int {
	m, err := g.wrapper.Manager()
	if err != nil {
		return 0
	}
	return m.CancelAll()
}

// Invalidator returns the named invalidation helper, or nil when degraded.
func (g *Gateway) Invalidator() *Invalidator {
	m, err := g.wrapper.Manager()
	if err != nil {
		return nil
	}
	return m.Invalidator()
}

// Health reports the manager's health. A degraded gateway is unhealthy.
func (g *Gateway) Health(ctx context.Context) (*HealthMetrics, error) {
	m, err := g.wrapper.Manager()
	if err != nil {
		return &HealthMetrics{Timestamp: time.Now(), Status: HealthStatusUnhealthy}, err
	}
	return m.Health(ctx)
}

// Degraded reports whether every call goes directly to the transport.
func (g *Gateway) Degraded() bool {
	return g.wrapper.Degraded()
}

// Metrics returns the in-process metrics snapshot. It is zero when metrics
// are disabled.
func (g *Gateway) Metrics() MetricsSnapshot {
	if g.tracker == nil {
		return MetricsSnapshot{}
	}
	return g.tracker.Snapshot()
}

// MetricsHandler serves the Prometheus metrics, or 404 when Prometheus is disabled.
func (g *Gateway) MetricsHandler() http.Handler {
	if g.prometheus == nil {
		return http.NotFoundHandler()
	}
	return g.prometheus.Handler()
}

// Close stops metrics publishing and closes the manager.
func (g *Gateway) Close() error {
	g.closeOnce.Do(func() {
		if g.health != nil {
			g.health.Stop()
		}
		var errs []error
		if err := g.wrapper.Close(); err != nil {
			errs = append(errs, err)
		}
		if err := g.publisher.Close(); err != nil {
			errs = append(errs, err)
		}
		g.closeErr = errors.Join(errs...)
	})
	return g.closeErr
}

func loggerFrom(l Logger) *slog.Logger {
	switch v := l.(type) {
	case nil:
		return slog.Default()
	case *slog.Logger:
		return v
	default:
		return logging.FromLogger(v)
	}
}
