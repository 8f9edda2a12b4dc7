// Package gateway is the entry point the application calls: it serves the
// hot lookup from a dedicated cache and hands every other call to the
// scheduler.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/LavishGent/callgate/internal/cache"
	"github.com/LavishGent/callgate/internal/config"
	"github.com/LavishGent/callgate/internal/logging"
	"github.com/LavishGent/callgate/internal/metrics"
	"github.com/LavishGent/callgate/internal/policy"
	"github.com/LavishGent/callgate/internal/resilience"
	"github.com/LavishGent/callgate/internal/scheduler"
	"github.com/LavishGent/callgate/internal/types"
)

// DefaultShutdownTimeout is the default timeout for shutting down the manager.
const DefaultShutdownTimeout = 30 * time.Second

// DefaultBackgroundOpTimeout bounds background work such as scheduled warmups.
const DefaultBackgroundOpTimeout = 30 * time.Second

// Manager coordinates the hot-lookup cache, the scheduler and the tiered cache.
type Manager struct {
	config    *config.Config
	logger    *slog.Logger
	transport types.Transport
	cache     *cache.Cache
	scheduler *scheduler.Scheduler
	policies  *policy.Table
	keys      *cache.KeyBuilder
	metrics   types.MetricsRecorder
	now       func() time.Time

	hot     *hotCache
	hotKey  string
	backoff resilience.LinearBackoff

	cron   *cron.Cron
	cronMu sync.Mutex

	sfGroup        singleflight.Group
	shutdownCtx    context.Context
	shutdownCancel context.CancelFunc
	bgWg           sync.WaitGroup
	bgMu           sync.Mutex
	closed         atomic.Bool
}

// NewManager builds a Manager from cfg. cfg is copied; opts may be nil.
//
//nolint:gocyclo // Composition root wires every collaborator
func NewManager(cfg *config.Config, transport types.Transport, opts *types.ManagerOptions) (*Manager, error) {
	if transport == nil {
		return nil, fmt.Errorf("gateway: transport is required")
	}
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	c := *cfg
	if opts == nil {
		opts = &types.ManagerOptions{}
	}

	if opts.RedisAddress != "" {
		c.Persist.Redis.Address = opts.RedisAddress
	}
	if !opts.RedisPassword.IsEmpty() {
		c.Persist.Redis.Password = opts.RedisPassword
	}
	if opts.DisablePersist {
		c.Persist.Backend = "none"
	}
	if opts.DisableResilience {
		c.CircuitBreaker.Enabled = false
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}

	logger := slog.Default()
	switch l := opts.Logger.(type) {
	case nil:
	case *slog.Logger:
		logger = l
	default:
		logger = logging.FromLogger(l)
	}

	now := opts.Clock
	if now == nil {
		now = time.Now
	}
	serializer := opts.Serializer
	if serializer == nil {
		serializer = cache.NewJSONSerializer()
	}

	var validator *types.KeyValidator
	if c.KeyValidation.Enabled {
		validator = types.NewKeyValidator(c.KeyValidation.ToTypesConfig())
	}

	policies, err := policy.New(c.Policies)
	if err != nil {
		return nil, err
	}

	store := opts.Store
	if store == nil {
		store = cache.NewStore(c.Persist, serializer, now, logger)
	}
	tiered := cache.New(cache.Options{
		Memory:       c.Memory,
		Store:        store,
		Clock:        now,
		Metrics:      opts.Metrics,
		Logger:       logger,
		KeyValidator: validator,
	})
	keys := cache.NewKeyBuilder(opts.Session, now, validator)

	sched, err := scheduler.New(scheduler.Options{
		Config:    c.Scheduler,
		Transport: transport,
		Cache:     tiered,
		Keys:      keys,
		Policies:  policies,
		Breaker:   resilience.NewBreaker("transport", c.CircuitBreaker, now),
		Metrics:   opts.Metrics,
		Logger:    logger,
		Clock:     now,
	})
	if err != nil {
		_ = tiered.Close()
		return nil, err
	}

	shutdownCtx, shutdownCancel := context.WithCancel(context.Background())
	m := &Manager{
		config:         &c,
		logger:         logger.With("component", "gateway"),
		transport:      transport,
		cache:          tiered,
		scheduler:      sched,
		policies:       policies,
		keys:           keys,
		metrics:        opts.Metrics,
		now:            now,
		backoff:        resilience.NewLinearBackoff(c.Scheduler.BackoffBase),
		shutdownCtx:    shutdownCtx,
		shutdownCancel: shutdownCancel,
	}

	if c.HotLookup.Enabled {
		hot, err := newHotCache(c.HotLookup, now, logger)
		if err != nil {
			shutdownCancel()
			_ = sched.Close(context.Background())
			_ = tiered.Close()
			return nil, fmt.Errorf("gateway: hot cache: %w", err)
		}
		m.hot = hot
		m.hotKey = c.HotLookup.Endpoint + ":" + c.HotLookup.Action
	}

	if c.Warmup.Schedule != "" {
		if err := m.StartWarmupSchedule(c.Warmup.Schedule); err != nil {
			_ = m.Close()
			return nil, err
		}
	}
	if c.Warmup.OnStart {
		m.runBackground(func(ctx context.Context) {
			if err := m.Warmup(ctx); err != nil {
				m.logger.Warn("Startup warmup incomplete", "error", err)
			}
		})
	}

	m.logger.Info("Gateway started",
		"persist", store.Name(),
		"hot_lookup", m.hotKey,
		"max_concurrent", c.Scheduler.MaxConcurrent,
	)
	return m, nil
}

// Call resolves spec. The hot lookup is served from its own cache and never
// queued; every other call goes through the scheduler. The error is non-nil
// only when the call could not be admitted; backend failures are reported in
// the Result.
func (m *Manager) Call(ctx context.Context, spec types.RequestSpec, opts ...types.Option) (types.Result, error) {
	if m.closed.Load() {
		return types.Result{Err: types.ErrClosed}, types.ErrClosed
	}
	spec = types.ApplyOptions(spec, opts...)

	if m.isHotLookup(spec) {
		return m.hotCall(ctx, spec)
	}
	return m.scheduler.Request(ctx, spec)
}

func (m *Manager) isHotLookup(spec types.RequestSpec) bool {
	return m.hot != nil && spec.PolicyKey() == m.hotKey
}

type hotFetch struct {
	data    json.RawMessage
	retries int
	cached  bool
}

func (m *Manager) hotCall(ctx context.Context, spec types.RequestSpec) (types.Result, error) {
	if err := types.ValidateRequest(spec); err != nil {
		return types.Result{Err: err}, err
	}
	key, err := m.keys.Build(ctx, spec, types.CachePolicy{Level: types.LevelStable, KeyStrategy: types.KeyDefault})
	if err != nil {
		return types.Result{Err: err}, err
	}

	start := time.Now()
	if data, ok := m.hot.get(key); ok {
		if m.metrics != nil {
			m.metrics.RecordHit(metrics.TierHot, key, time.Since(start))
		}
		return types.Result{Success: true, Data: data, Source: types.SourceHotCache}, nil
	}
	if m.metrics != nil {
		m.metrics.RecordMiss(metrics.TierHot, key, time.Since(start))
	}

	// The shared fetch outlives any single caller; only Close cancels it.
	ch := m.sfGroup.DoChan(key, func() (any, error) {
		if data, ok := m.hot.get(key); ok {
			return hotFetch{data: data, cached: true}, nil
		}

		fetchCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		defer cancel()
		stop := context.AfterFunc(m.shutdownCtx, cancel)
		defer stop()

		data, retries, err := m.fetchDirect(fetchCtx, spec)
		if err != nil {
			return nil, err
		}
		if setErr := m.hot.set(key, data); setErr != nil {
			m.logger.Debug("Failed to cache hot lookup", "key", key, "error", setErr)
		}
		return hotFetch{data: data, retries: retries}, nil
	})

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		return types.Result{Err: ctx.Err(), Source: types.SourceTransport}, nil
	}
	if res.Err != nil {
		return types.Result{Err: res.Err, Source: types.SourceTransport}, nil
	}
	v, shared := res.Val, res.Shared

	fetched := v.(hotFetch)
	if fetched.cached {
		return types.Result{Success: true, Data: fetched.data, Source: types.SourceHotCache}, nil
	}
	m.logger.Debug("Hot lookup fetched", "key", key, "shared", shared, "retries", fetched.retries)
	return types.Result{
		Success:    true,
		Data:       fetched.data,
		RetryCount: fetched.retries,
		Source:     types.SourceTransport,
	}, nil
}

// fetchDirect calls the transport outside the scheduler, retrying transient
// failures with the scheduler's backoff.
func (m *Manager) fetchDirect(ctx context.Context, spec types.RequestSpec) (json.RawMessage, int, error) {
	budget := spec.RetryBudget
	switch {
	case budget == types.NoRetries:
		budget = 0
	case budget == 0:
		budget = m.config.Scheduler.DefaultRetryBudget
	}
	timeout := spec.Timeout
	if timeout <= 0 {
		timeout = m.config.Scheduler.DefaultTimeout
	}

	var data json.RawMessage
	attempt := 0
	start := time.Now()
	retries, err := resilience.Retry(ctx, budget, m.backoff, func(ctx context.Context) error {
		attempt++
		if attempt > 1 && m.metrics != nil {
			m.metrics.RecordRetry(spec.PolicyKey(), attempt-1)
		}
		attemptCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		resp, err := m.transport.Invoke(attemptCtx, spec)
		if err == nil && resp == nil {
			err = types.ErrNoResponse
		}
		if err != nil {
			if errors.Is(attemptCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
				return fmt.Errorf("%w after %s: %w", types.ErrTimeout, timeout, err)
			}
			return err
		}
		if !resp.Success {
			return &types.RemoteError{Message: resp.Error, Retryable: resp.Retryable}
		}
		data = resp.Data
		return nil
	})

	outcome := metrics.OutcomeSuccess
	if err != nil {
		outcome = metrics.OutcomeFailure
	}
	if m.metrics != nil {
		m.metrics.RecordRequest(spec.PolicyKey(), outcome, time.Since(start))
	}
	if err != nil {
		return nil, retries, types.NewCallError(spec.Endpoint, spec.Action, retries+1, err)
	}
	return data, retries, nil
}

// BatchCall issues every spec through Call concurrently and returns the
// results in input order. The returned error joins the per-item admission
// failures; backend failures stay in each Result.
func (m *Manager) BatchCall(ctx context.Context, specs []types.RequestSpec) ([]types.Result, error) {
	if m.closed.Load() {
		return nil, types.ErrClosed
	}
	results, errs := m.fanOut(ctx, specs)
	return results, errors.Join(errs...)
}

func (m *Manager) fanOut(ctx context.Context, specs []types.RequestSpec) ([]types.Result, []error) {
	results := make([]types.Result, len(specs))
	errs := make([]error, len(specs))

	var g errgroup.Group
	for i := range specs {
		i := i
		g.Go(func() error {
			res, err := m.Call(ctx, specs[i])
			results[i] = res
			if err != nil {
				errs[i] = fmt.Errorf("batch item %d (%s): %w", i, specs[i].PolicyKey(), err)
			}
			return nil
		})
	}
	_ = g.Wait()
	return results, errs
}

// BatchRequest forwards chunked batch execution to the scheduler.
func (m *Manager) BatchRequest(ctx context.Context, specs []types.RequestSpec, opts types.BatchOptions) ([]types.Result, error) {
	if m.closed.Load() {
		return nil, types.ErrClosed
	}
	return m.scheduler.BatchRequest(ctx, specs, opts)
}

// WarmupSpecs returns the calls issued by Warmup: the hot lookup, the
// session identity call and every policy marked for preload.
func (m *Manager) WarmupSpecs() []types.RequestSpec {
	var specs []types.RequestSpec
	seen := make(map[string]bool)
	add := func(endpoint, action string, priority types.Priority) {
		if endpoint == "" || action == "" || seen[endpoint+":"+action] {
			return
		}
		seen[endpoint+":"+action] = true
		specs = append(specs, types.RequestSpec{Endpoint: endpoint, Action: action, Priority: priority})
	}

	hl := m.config.HotLookup
	if m.hot != nil {
		add(hl.Endpoint, hl.Action, types.PriorityHigh)
	}
	add(hl.IdentityEndpoint, hl.IdentityAction, types.PriorityHigh)
	for _, key := range m.policies.Preloaded() {
		endpoint, action, ok := strings.Cut(key, ":")
		if ok {
			add(endpoint, action, types.PriorityLow)
		}
	}
	return specs
}

// Warmup pre-populates the caches. Failures are logged and joined; a partial
// warmup leaves whatever succeeded cached.
func (m *Manager) Warmup(ctx context.Context) error {
	if m.closed.Load() {
		return types.ErrClosed
	}
	specs := m.WarmupSpecs()
	if len(specs) == 0 {
		return nil
	}

	start := time.Now()
	results, admission := m.fanOut(ctx, specs)

	var errs []error
	warmed := 0
	for i, res := range results {
		switch {
		case admission[i] != nil:
			errs = append(errs, admission[i])
		case res.Success:
			warmed++
		case res.Err != nil:
			errs = append(errs, fmt.Errorf("warmup %s: %w", specs[i].PolicyKey(), res.Err))
		}
	}

	m.logger.Info("Warmup complete",
		"warmed", warmed,
		"total", len(specs),
		"duration", time.Since(start),
	)
	return errors.Join(errs...)
}

// StartWarmupSchedule runs Warmup on a standard five-field cron schedule.
func (m *Manager) StartWarmupSchedule(schedule string) error {
	m.cronMu.Lock()
	defer m.cronMu.Unlock()

	if m.closed.Load() {
		return types.ErrClosed
	}
	if m.cron != nil {
		return fmt.Errorf("gateway: warmup schedule already running")
	}

	logger := cronLogger{logger: m.logger.With("job", "warmup")}
	c := cron.New(
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	if _, err := c.AddFunc(schedule, m.scheduledWarmup); err != nil {
		return fmt.Errorf("gateway: invalid warmup schedule %q: %w", schedule, err)
	}
	c.Start()
	m.cron = c

	m.logger.Info("Warmup schedule started", "schedule", schedule)
	return nil
}

func (m *Manager) scheduledWarmup() {
	m.bgMu.Lock()
	if m.closed.Load() {
		m.bgMu.Unlock()
		return
	}
	m.bgWg.Add(1)
	m.bgMu.Unlock()
	defer m.bgWg.Done()

	ctx, cancel := context.WithTimeout(m.shutdownCtx, DefaultBackgroundOpTimeout)
	defer cancel()
	if err := m.Warmup(ctx); err != nil {
		m.logger.Warn("Scheduled warmup incomplete", "error", err)
	}
}

// ClearCache removes cached entries whose key contains pattern. Patterns
// naming the hot lookup only touch the hot cache; anything else is cleared
// from the scheduler's caches and from matching hot entries. An empty
// pattern clears everything.
func (m *Manager) ClearCache(ctx context.Context, pattern string) error {
	if m.closed.Load() {
		return types.ErrClosed
	}

	if m.hot != nil {
		removed := m.hot.clearMatching(pattern)
		m.logger.Debug("Cleared hot cache", "pattern", pattern, "deleted", removed)
		if pattern != "" && strings.HasPrefix(pattern, m.hotKey) {
			return nil
		}
	}
	return m.scheduler.ClearCache(ctx, pattern)
}

// CancelAll drops every queued call. See scheduler.CancelAll.
func (m *Manager) CancelAll() int {
	return m.scheduler.CancelAll()
}

// Invalidator returns the named invalidation helper.
func (m *Manager) Invalidator() *cache.Invalidator {
	return m.scheduler.Invalidator()
}

// Policies exposes the static policy table.
func (m *Manager) Policies() *policy.Table {
	return m.policies
}

// Health returns a snapshot of cache, store, scheduler and circuit state.
func (m *Manager) Health(ctx context.Context) (*types.HealthMetrics, error) {
	if m.closed.Load() {
		return &types.HealthMetrics{Timestamp: m.now(), Status: types.HealthStatusUnhealthy}, types.ErrClosed
	}

	cacheHealth, storeHealth := m.cache.Health()
	health := &types.HealthMetrics{
		Timestamp:           m.now(),
		Cache:               cacheHealth,
		Store:               storeHealth,
		Scheduler:           m.scheduler.Stats(),
		CircuitBreakerState: m.scheduler.BreakerState(),
		Status:              types.HealthStatusHealthy,
	}
	if m.hot != nil {
		health.HotCacheEntries = m.hot.len()
	}

	persistConfigured := m.config.Persist.Backend != "" && m.config.Persist.Backend != "none"
	if (persistConfigured && !storeHealth.Available) || health.CircuitBreakerState == resilience.StateOpen.String() {
		health.Status = types.HealthStatusDegraded
	}
	return health, nil
}

// Close releases all resources using the default shutdown timeout.
func (m *Manager) Close() error {
	return m.CloseWithTimeout(DefaultShutdownTimeout)
}

// CloseWithTimeout stops the warmup schedule, rejects queued calls, waits for
// running calls and background work, then closes the caches. If waiting
// exceeds timeout it returns ErrShutdownTimeout but still closes the caches.
func (m *Manager) CloseWithTimeout(timeout time.Duration) error {
	m.bgMu.Lock()
	if m.closed.Swap(true) {
		m.bgMu.Unlock()
		return nil
	}
	m.shutdownCancel()
	m.bgMu.Unlock()

	m.logger.Info("Closing gateway, waiting for in-flight work", "timeout", timeout)

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var errs []error

	m.cronMu.Lock()
	if m.cron != nil {
		select {
		case <-m.cron.Stop().Done():
		case <-ctx.Done():
		}
	}
	m.cronMu.Unlock()

	if err := m.scheduler.Close(ctx); err != nil {
		errs = append(errs, err)
	}

	done := make(chan struct{})
	go func() {
		m.bgWg.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.logger.Info("Background operations complete, closing caches")
	case <-ctx.Done():
		m.logger.Warn("Shutdown timeout exceeded, proceeding with close", "timeout", timeout)
		if !errors.Is(errors.Join(errs...), types.ErrShutdownTimeout) {
			errs = append(errs, types.ErrShutdownTimeout)
		}
	}

	if m.hot != nil {
		if err := m.hot.close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := m.cache.Close(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// runBackground executes fn in a goroutine tracked for graceful shutdown.
// The goroutine will not be started if the manager is already closed.
func (m *Manager) runBackground(fn func(ctx context.Context)) {
	// Hold bgMu while checking closed and adding to the WaitGroup so Add never
	// races with the Wait in CloseWithTimeout.
	m.bgMu.Lock()
	if m.closed.Load() {
		m.bgMu.Unlock()
		return
	}
	m.bgWg.Add(1)
	m.bgMu.Unlock()

	go func() {
		defer m.bgWg.Done()
		ctx, cancel := context.WithTimeout(m.shutdownCtx, DefaultBackgroundOpTimeout)
		defer cancel()
		fn(ctx)
	}()
}

// cronLogger routes cron's logr-style output to slog.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
