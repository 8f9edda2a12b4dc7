package metrics

import (
	"context"
	"log/slog"
	"time"

	"github.com/LavishGent/callgate/internal/types"
)

// LoggingPublisher writes metrics as debug log records. It stands in for
// DataDog when no agent is configured.
type LoggingPublisher struct {
	logger   *slog.Logger
	baseTags []string
}

func NewLoggingPublisher(logger *slog.Logger, baseTags ...string) *LoggingPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingPublisher{
		logger:   logger.With("component", "metrics"),
		baseTags: baseTags,
	}
}

func (p *LoggingPublisher) emit(level slog.Level, kind, name string, tags []string, attrs ...slog.Attr) {
	if !p.logger.Enabled(context.Background(), level) {
		return
	}
	attrs = append(attrs, slog.String("metric", name), slog.Any("tags", p.mergeTags(tags)))
	p.logger.LogAttrs(context.Background(), level, kind, attrs...)
}

func (p *LoggingPublisher) Gauge(name string, value float64, tags ...string) {
	p.emit(slog.LevelDebug, "gauge", name, tags, slog.Float64("value", value))
}

func (p *LoggingPublisher) Incr(name string, tags ...string) {
	p.emit(slog.LevelDebug, "incr", name, tags)
}

func (p *LoggingPublisher) Count(name string, value int64, tags ...string) {
	p.emit(slog.LevelDebug, "count", name, tags, slog.Int64("value", value))
}

func (p *LoggingPublisher) Histogram(name string, value float64, tags ...string) {
	p.emit(slog.LevelDebug, "histogram", name, tags, slog.Float64("value", value))
}

func (p *LoggingPublisher) Timing(name string, duration time.Duration, tags ...string) {
	p.emit(slog.LevelDebug, "timing", name, tags, slog.Duration("duration", duration))
}

// Event logs at warn for error alerts and info otherwise.
func (p *LoggingPublisher) Event(title, text, alertType string, tags ...string) {
	level := slog.LevelInfo
	if alertType == "error" || alertType == "warning" {
		level = slog.LevelWarn
	}
	p.emit(level, "event", title, tags,
		slog.String("text", text),
		slog.String("alert_type", alertType),
	)
}

// PublishHealthMetrics logs one grouped record per snapshot. Anything but a
// healthy status is logged at warn.
func (p *LoggingPublisher) PublishHealthMetrics(m *types.HealthMetrics) {
	if m == nil {
		return
	}
	level := slog.LevelInfo
	if m.Status != types.HealthStatusHealthy {
		level = slog.LevelWarn
	}

	p.logger.LogAttrs(context.Background(), level, "health_metrics",
		slog.String("status", m.Status.String()),
		slog.Group("cache",
			slog.Int("entries", m.Cache.Stats.TotalItems),
			slog.Int64("bytes", m.Cache.Stats.TotalSize),
			slog.Float64("usage_pct", m.Cache.UsagePercentage),
			slog.Float64("hit_ratio", m.Cache.Stats.HitRate),
		),
		slog.Group("store",
			slog.String("name", m.Store.Name),
			slog.Bool("available", m.Store.Available),
			slog.Int("pending_writes", m.Store.PendingWrites),
		),
		slog.Group("scheduler",
			slog.Int("queued", m.Scheduler.Queued),
			slog.Int("running", m.Scheduler.Running),
		),
		slog.String("circuit_state", m.CircuitBreakerState),
		slog.Int("hot_entries", m.HotCacheEntries),
	)
}

func (p *LoggingPublisher) Close() error {
	return nil
}

func (p *LoggingPublisher) mergeTags(tags []string) []string {
	if len(tags) == 0 {
		return p.baseTags
	}
	if len(p.baseTags) == 0 {
		return tags
	}
	merged := make([]string, 0, len(p.baseTags)+len(tags))
	return append(append(merged, p.baseTags...), tags...)
}

var _ types.Publisher = (*LoggingPublisher)(nil)
