package metrics

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/LavishGent/callgate/internal/types"
)

// DefaultCollectTimeout bounds a single health collection.
const DefaultCollectTimeout = 5 * time.Second

// HealthSource returns the current gateway health. A non-nil error is logged;
// the metrics are still published when present.
type HealthSource func(ctx context.Context) (*types.HealthMetrics, error)

// HealthCollector periodically pushes gateway health to a Publisher. The
// last snapshot is published once more on Stop.
type HealthCollector struct {
	publisher types.Publisher
	source    HealthSource
	logger    *slog.Logger
	interval  time.Duration
	timeout   time.Duration

	published atomic.Int64
	failures  atomic.Int64

	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewHealthCollector creates a collector. A non-positive timeout uses
// DefaultCollectTimeout.
func NewHealthCollector(publisher types.Publisher, source HealthSource, interval, timeout time.Duration, logger *slog.Logger) *HealthCollector {
	if logger == nil {
		logger = slog.Default()
	}
	if publisher == nil {
		publisher = NewNoOpPublisher()
	}
	if timeout <= 0 {
		timeout = DefaultCollectTimeout
	}
	return &HealthCollector{
		publisher: publisher,
		source:    source,
		logger:    logger.With("component", "health-collector"),
		interval:  interval,
		timeout:   timeout,
	}
}

// Start launches the collection loop; it ends when ctx is cancelled or Stop
// is called.
func (h *HealthCollector) Start(ctx context.Context) {
	if h.interval <= 0 {
		h.logger.Debug("Health collector not started", "interval", h.interval)
		return
	}
	ctx, h.cancel = context.WithCancel(ctx)
	h.wg.Add(1)
	go h.loop(ctx)
	h.logger.Info("Health collector started", "interval", h.interval)
}

// Stop ends the loop after a final collection. Safe to call more than once.
func (h *HealthCollector) Stop() {
	h.stopOnce.Do(func() {
		if h.cancel == nil {
			return
		}
		h.cancel()
		h.wg.Wait()
		h.logger.Info("Health collector stopped", "published", h.published.Load())
	})
}

// Collect gathers and publishes health once, outside the loop.
func (h *HealthCollector) Collect(ctx context.Context) {
	h.collect(ctx)
}

// Published returns how many snapshots reached the publisher.
func (h *HealthCollector) Published() int64 {
	return h.published.Load()
}

// Failures returns how many collections errored or panicked.
func (h *HealthCollector) Failures() int64 {
	return h.failures.Load()
}

func (h *HealthCollector) loop(ctx context.Context) {
	defer h.wg.Done()

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			// parent is done; collect on a fresh context
			h.collect(context.Background())
			return
		case <-ticker.C:
			h.collect(ctx)
		}
	}
}

func (h *HealthCollector) collect(parent context.Context) {
	defer func() {
		if r := recover(); r != nil {
			h.failures.Add(1)
			h.logger.Error("Recovered from panic in health source", "panic", r)
		}
	}()
	if h.source == nil {
		return
	}

	ctx, cancel := context.WithTimeout(parent, h.timeout)
	defer cancel()

	start := time.Now()
	health, err := h.source(ctx)
	h.publisher.Timing("health.collect", time.Since(start))
	if err != nil {
		h.failures.Add(1)
		h.logger.Debug("Health collection failed", "error", err)
	}
	if health == nil {
		return
	}
	h.publisher.PublishHealthMetrics(health)
	h.published.Add(1)
}
