// Package datadog pushes gateway metrics to a DataDog agent over StatsD.
package datadog

import (
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"time"

	"github.com/DataDog/datadog-go/v5/statsd"

	"github.com/LavishGent/callgate/internal/config"
	"github.com/LavishGent/callgate/internal/metrics"
	"github.com/LavishGent/callgate/internal/types"
)

// Publisher implements types.Publisher on a StatsD client. Configured tags
// are attached by the client itself.
type Publisher struct {
	client statsd.ClientInterface
	logger *slog.Logger
}

// NewPublisher dials the agent described by cfg. A disabled config yields a
// metrics.NoOpPublisher.
func NewPublisher(cfg *config.DataDogConfig, logger *slog.Logger) (types.Publisher, error) {
	if cfg == nil || !cfg.Enabled {
		return metrics.NewNoOpPublisher(), nil
	}
	if logger == nil {
		logger = slog.Default()
	}

	addr := net.JoinHostPort(cfg.AgentHost, strconv.Itoa(cfg.Port))
	opts := []statsd.Option{statsd.WithTags(cfg.Tags)}
	if cfg.Prefix != "" {
		opts = append(opts, statsd.WithNamespace(cfg.Prefix+"."))
	}
	client, err := statsd.New(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("datadog: statsd client for %s: %w", addr, err)
	}

	logger.Info("DataDog publisher initialized", "address", addr, "prefix", cfg.Prefix)
	return newPublisher(client, logger), nil
}

func newPublisher(client statsd.ClientInterface, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{client: client, logger: logger.With("component", "datadog")}
}

// StatsD sends are fire-and-forget; a failed send only costs one sample.
func (p *Publisher) check(kind, name string, err error) {
	if err != nil {
		p.logger.Debug("StatsD send failed", "kind", kind, "metric", name, "error", err)
	}
}

func (p *Publisher) Gauge(name string, value float64, tags ...string) {
	p.check("gauge", name, p.client.Gauge(name, value, tags, 1))
}

func (p *Publisher) Incr(name string, tags ...string) {
	p.check("incr", name, p.client.Incr(name, tags, 1))
}

func (p *Publisher) Count(name string, value int64, tags ...string) {
	p.check("count", name, p.client.Count(name, value, tags, 1))
}

func (p *Publisher) Histogram(name string, value float64, tags ...string) {
	p.check("histogram", name, p.client.Histogram(name, value, tags, 1))
}

func (p *Publisher) Timing(name string, duration time.Duration, tags ...string) {
	p.check("timing", name, p.client.Timing(name, duration, tags, 1))
}

func (p *Publisher) Event(title, text, alertType string, tags ...string) {
	p.check("event", title, p.client.Event(&statsd.Event{
		Title:     title,
		Text:      text,
		AlertType: statsd.EventAlertType(alertType),
		Tags:      tags,
	}))
}

type gauge struct {
	name  string
	value float64
}

// PublishHealthMetrics sends one gauge per health field. Store gauges are
// tagged with the backend name, the status gauge with status and breaker state.
func (p *Publisher) PublishHealthMetrics(m *types.HealthMetrics) {
	if m == nil {
		return
	}

	for _, g := range []gauge{
		{"cache.entries", float64(m.Cache.Stats.TotalItems)},
		{"cache.used_bytes", float64(m.Cache.Stats.TotalSize)},
		{"cache.limit_bytes", float64(m.Cache.MaxSizeBytes)},
		{"cache.usage_percentage", min(max(m.Cache.UsagePercentage, 0), 100)},
		{"cache.hit_ratio", min(max(m.Cache.Stats.HitRate, 0), 1)},
		{"cache.avg_access_ms", max(float64(m.Cache.Stats.AvgAccessTime.Microseconds())/1000, 0)},
		{"cache.evictions", float64(m.Cache.Stats.Evictions)},
		{"hot.entries", float64(m.HotCacheEntries)},
		{"scheduler.queued", float64(m.Scheduler.Queued)},
		{"scheduler.running", float64(m.Scheduler.Running)},
		{"scheduler.completed", float64(m.Scheduler.Completed)},
		{"scheduler.failed", float64(m.Scheduler.Failed)},
		{"scheduler.retried", float64(m.Scheduler.Retried)},
	} {
		p.Gauge(g.name, g.value)
	}

	storeTag := "store:" + m.Store.Name
	p.Gauge("store.available", boolGauge(m.Store.Available), storeTag)
	p.Gauge("store.pending_writes", float64(m.Store.PendingWrites), storeTag)
	p.Gauge("store.dropped_writes", float64(m.Store.DroppedWrites), storeTag)

	p.Gauge("health.status", float64(m.Status), "status:"+m.Status.String(), "circuit_state:"+m.CircuitBreakerState)
}

// Close flushes buffered samples and closes the client.
func (p *Publisher) Close() error {
	if p.client == nil {
		return nil
	}
	return p.client.Close()
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

var _ types.Publisher = (*Publisher)(nil)
