// Package scheduler admits backend calls through a priority queue with a
// bounded number of concurrent executions, retrying transient failures with
// linear backoff.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/LavishGent/callgate/internal/cache"
	"github.com/LavishGent/callgate/internal/config"
	"github.com/LavishGent/callgate/internal/policy"
	"github.com/LavishGent/callgate/internal/resilience"
	"github.com/LavishGent/callgate/internal/types"
)

// AfterFunc schedules f after d and returns a function that cancels it.
type AfterFunc func(d time.Duration, f func()) (stop func() bool)

func timeAfterFunc(d time.Duration, f func()) func() bool {
	return time.AfterFunc(d, f).Stop
}

// Options wires a Scheduler to its collaborators. Only Transport is required.
type Options struct {
	Config    config.SchedulerConfig
	Transport types.Transport
	Cache     *cache.Cache
	Keys      *cache.KeyBuilder
	Policies  *policy.Table
	Breaker   resilience.Breaker
	Metrics   types.MetricsRecorder
	Logger    *slog.Logger
	Clock     func() time.Time
	AfterFunc AfterFunc
}

// Scheduler is safe for concurrent use.
type Scheduler struct {
	transport   types.Transport
	cache       *cache.Cache
	keys        *cache.KeyBuilder
	policies    *policy.Table
	breaker     resilience.Breaker
	metrics     types.MetricsRecorder
	logger      *slog.Logger
	afterFunc   AfterFunc
	responses   *responseCache
	invalidator *cache.Invalidator

	maxConcurrent  int
	maxQueue       int
	defaultTimeout time.Duration
	defaultBudget  int
	backoff        resilience.LinearBackoff
	batchSize      int

	mu       sync.Mutex
	queue    taskQueue
	running  int
	retrying map[*task]struct{}
	closed   bool
	wg       sync.WaitGroup

	completed    atomic.Int64
	failed       atomic.Int64
	retried      atomic.Int64
	cancelled    atomic.Int64
	responseHits atomic.Int64
}

// New creates a Scheduler. Zero config values take the documented defaults:
// 3 concurrent calls, a 10s attempt timeout and a 100-entry response cache.
func New(opts Options) (*Scheduler, error) {
	if opts.Transport == nil {
		return nil, fmt.Errorf("scheduler: transport is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Clock
	if now == nil {
		now = time.Now
	}
	afterFunc := opts.AfterFunc
	if afterFunc == nil {
		afterFunc = timeAfterFunc
	}
	policies := opts.Policies
	if policies == nil {
		policies = policy.NewFromMap(policy.Defaults())
	}
	keys := opts.Keys
	if keys == nil {
		keys = cache.NewKeyBuilder(nil, now, nil)
	}
	breaker := opts.Breaker
	if breaker == nil {
		breaker = resilience.NewDisabledCircuitBreaker()
	}

	cfg := opts.Config
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 3
	}
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = 10 * time.Second
	}
	if cfg.DefaultRetryBudget < 0 {
		cfg.DefaultRetryBudget = 0
	}
	if cfg.ResponseCacheSize <= 0 {
		cfg.ResponseCacheSize = 100
	}
	if cfg.ResponseCacheTTL <= 0 {
		cfg.ResponseCacheTTL = 30 * time.Second
	}
	if cfg.DefaultBatchSize <= 0 {
		cfg.DefaultBatchSize = 5
	}

	s := &Scheduler{
		transport:      opts.Transport,
		cache:          opts.Cache,
		keys:           keys,
		policies:       policies,
		breaker:        breaker,
		metrics:        opts.Metrics,
		logger:         logger.With("component", "scheduler"),
		afterFunc:      afterFunc,
		responses:      newResponseCache(cfg.ResponseCacheSize, cfg.ResponseCacheTTL, now),
		maxConcurrent:  cfg.MaxConcurrent,
		maxQueue:       cfg.MaxQueue,
		defaultTimeout: cfg.DefaultTimeout,
		defaultBudget:  cfg.DefaultRetryBudget,
		backoff:        resilience.NewLinearBackoff(cfg.BackoffBase),
		batchSize:      cfg.DefaultBatchSize,
		retrying:       make(map[*task]struct{}),
	}
	s.invalidator = cache.NewInvalidator(s, logger)

	breaker.SetOnStateChange(func(from, to resilience.State) {
		s.logger.Warn("Circuit breaker state changed", "from", from.String(), "to", to.String())
		if s.metrics != nil {
			s.metrics.RecordCircuitBreakerStateChange(from.String(), to.String())
		}
	})

	return s, nil
}

// Request resolves spec from the response cache, the tiered cache, or by
// queueing a backend call and waiting for it. The returned error is non-nil
// only when the request could not be admitted; backend and transport
// failures are reported in the Result.
func (s *Scheduler) Request(ctx context.Context, spec types.RequestSpec) (types.Result, error) {
	if s.isClosed() {
		return types.Result{Err: types.ErrClosed}, types.ErrClosed
	}
	if err := types.ValidateRequest(spec); err != nil {
		return types.Result{Err: err}, err
	}

	pol := s.policies.For(spec)
	key, err := s.keys.Build(ctx, spec, pol)
	if err != nil {
		return types.Result{Err: err}, err
	}

	if pol.Level.Cacheable() {
		if data, ok := s.responses.get(key); ok {
			s.responseHits.Add(1)
			return types.Result{Success: true, Data: data, Source: types.SourceResponseCache}, nil
		}
		if s.cache != nil {
			if data, err := s.cache.Get(ctx, key); err == nil {
				return types.Result{Success: true, Data: data, Source: types.SourceCache}, nil
			}
		}
	}

	t := s.newTask(ctx, spec, key, pol)
	if err := s.enqueue(t); err != nil {
		return types.Result{Err: err}, err
	}
	s.logger.Debug("Request queued", "task_id", t.id, "key", key, "priority", int(t.priority))

	s.drain()
	return s.wait(ctx, t), nil
}

func (s *Scheduler) newTask(ctx context.Context, spec types.RequestSpec, key string, pol types.CachePolicy) *task {
	priority := spec.Priority
	if priority == 0 {
		priority = types.PriorityNormal
	}

	budget := spec.RetryBudget
	switch {
	case budget == types.NoRetries:
		budget = 0
	case budget == 0:
		budget = s.defaultBudget
	}

	timeout := spec.Timeout
	if timeout <= 0 {
		timeout = s.defaultTimeout
	}

	return &task{
		id:       uuid.NewString(),
		ctx:      ctx,
		spec:     spec,
		key:      key,
		policy:   pol,
		priority: priority,
		budget:   budget,
		timeout:  timeout,
		state:    stateCreated,
		done:     make(chan types.Result, 1),
	}
}

func (s *Scheduler) enqueue(t *task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return types.ErrClosed
	}
	if s.maxQueue > 0 && s.queue.len() >= s.maxQueue {
		return types.ErrQueueFull
	}
	t.state = stateQueued
	s.queue.push(t)
	return nil
}

func (s *Scheduler) wait(ctx context.Context, t *task) types.Result {
	select {
	case r := <-t.done:
		return r
	case <-ctx.Done():
		s.abandon(t, ctx.Err())
		select {
		case r := <-t.done:
			return r
		default:
			return types.Result{Err: ctx.Err()}
		}
	}
}

// abandon resolves a task whose caller gave up, if it has not started running.
func (s *Scheduler) abandon(t *task, err error) {
	s.mu.Lock()
	switch t.state {
	case stateQueued:
		s.queue.remove(t)
	case stateRetryPending:
		if t.stopRetry != nil {
			t.stopRetry()
		}
		delete(s.retrying, t)
	default:
		s.mu.Unlock()
		return
	}
	t.state = stateDone
	retries := t.retryCount
	s.mu.Unlock()

	t.resolve(types.Result{Err: err, RetryCount: retries})
}

// drain starts queued tasks while fewer than maxConcurrent are running.
func (s *Scheduler) drain() {
	s.mu.Lock()
	var ready []*task
	for s.running < s.maxConcurrent && s.queue.len() > 0 {
		t := s.queue.pop()
		t.state = stateRunning
		s.running++
		s.wg.Add(1)
		ready = append(ready, t)
	}
	s.mu.Unlock()

	for _, t := range ready {
		go s.execute(t)
	}
}

func (s *Scheduler) execute(t *task) {
	defer s.wg.Done()

	start := time.Now()
	resp, err := s.attempt(t)
	if err != nil {
		s.fail(t, err, time.Since(start))
		return
	}
	s.complete(t, resp, time.Since(start))
}

// attempt performs one transport call under the task's timeout.
func (s *Scheduler) attempt(t *task) (*types.Response, error) {
	if !s.breaker.Allow() {
		return nil, types.ErrCircuitOpen
	}

	ctx, cancel := context.WithTimeout(t.ctx, t.timeout)
	defer cancel()

	type outcome struct {
		resp *types.Response
		err  error
	}
	ch := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- outcome{err: &panicError{value: r}}
			}
		}()
		resp, err := s.transport.Invoke(ctx, t.spec)
		ch <- outcome{resp: resp, err: err}
	}()

	var resp *types.Response
	var err error
	select {
	case o := <-ch:
		resp, err = o.resp, o.err
	case <-ctx.Done():
		err = ctx.Err()
	}

	if err == nil && resp == nil {
		err = types.ErrNoResponse
	}
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) && t.ctx.Err() == nil {
			err = fmt.Errorf("%w after %s: %w", types.ErrTimeout, t.timeout, err)
		}
		if resilience.IsRetryable(err) && !isPanic(err) {
			s.breaker.RecordFailure()
		}
		return nil, err
	}

	s.breaker.RecordSuccess()
	if !resp.Success {
		return nil, &types.RemoteError{Message: resp.Error, Retryable: resp.Retryable}
	}
	return resp, nil
}

func (s *Scheduler) complete(t *task, resp *types.Response, latency time.Duration) {
	s.mu.Lock()
	s.running--
	t.state = stateDone
	retries := t.retryCount
	s.mu.Unlock()

	ctx := context.WithoutCancel(t.ctx)
	if t.policy.Level.Cacheable() {
		s.responses.set(t.key, resp.Data)
		if s.cache != nil {
			if err := s.cache.Set(ctx, t.key, resp.Data, t.policy); err != nil {
				s.logger.Debug("Failed to cache response", "key", t.key, "error", err)
			}
		}
	}
	if t.policy.UpdateStrategy == types.UpdateInvalidate {
		if err := s.invalidator.RecordUpdated(ctx, t.spec.Endpoint); err != nil {
			s.logger.Warn("Invalidation after update failed", "endpoint", t.spec.Endpoint, "error", err)
		}
	}

	s.completed.Add(1)
	if s.metrics != nil {
		s.metrics.RecordRequest(t.spec.PolicyKey(), "success", latency)
	}
	t.resolve(types.Result{
		Success:    true,
		Data:       resp.Data,
		RetryCount: retries,
		Source:     types.SourceTransport,
	})
	s.drain()
}

func (s *Scheduler) fail(t *task, err error, latency time.Duration) {
	retryable := resilience.IsRetryable(err) && !isPanic(err)

	s.mu.Lock()
	s.running--
	if retryable && t.retryCount < t.budget && !s.closed {
		t.retryCount++
		attempt := t.retryCount
		delay := s.backoff.Delay(attempt)
		t.state = stateRetryPending
		s.retrying[t] = struct{}{}
		t.stopRetry = s.afterFunc(delay, func() { s.requeue(t) })
		s.mu.Unlock()

		s.retried.Add(1)
		if s.metrics != nil {
			s.metrics.RecordRetry(t.spec.PolicyKey(), attempt)
		}
		s.logger.Debug("Retrying request",
			"task_id", t.id,
			"key", t.key,
			"retry", attempt,
			"delay", delay,
			"error", err,
		)
		s.drain()
		return
	}
	t.state = stateDone
	retries := t.retryCount
	s.mu.Unlock()

	s.failed.Add(1)
	if s.metrics != nil {
		s.metrics.RecordRequest(t.spec.PolicyKey(), "failure", latency)
	}
	s.logger.Debug("Request failed", "task_id", t.id, "key", t.key, "retries", retries, "error", err)
	t.resolve(types.Result{
		Err:        types.NewCallError(t.spec.Endpoint, t.spec.Action, retries+1, err),
		RetryCount: retries,
		Source:     types.SourceTransport,
	})
	s.drain()
}

// requeue returns a task to the queue once its backoff has elapsed.
func (s *Scheduler) requeue(t *task) {
	s.mu.Lock()
	if t.state != stateRetryPending {
		s.mu.Unlock()
		return
	}
	delete(s.retrying, t)
	if s.closed {
		t.state = stateDone
		retries := t.retryCount
		s.mu.Unlock()
		t.resolve(types.Result{Err: types.ErrClosed, RetryCount: retries})
		return
	}
	t.state = stateQueued
	s.queue.push(t)
	s.mu.Unlock()

	s.drain()
}

// CancelAll resolves every queued task with ErrCancelled and returns how many
// were cancelled. Running tasks and tasks waiting out a backoff are unaffected.
func (s *Scheduler) CancelAll() int {
	s.mu.Lock()
	tasks := s.queue.takeAll()
	for _, t := range tasks {
		t.state = stateDone
	}
	s.mu.Unlock()

	for _, t := range tasks {
		t.resolve(types.Result{Err: types.ErrCancelled, RetryCount: t.retryCount})
	}
	s.cancelled.Add(int64(len(tasks)))
	if len(tasks) > 0 {
		s.logger.Info("Cancelled queued requests", "count", len(tasks))
	}
	return len(tasks)
}

// ClearCache removes entries containing pattern from the response cache and
// the tiered cache. An empty pattern clears both entirely.
func (s *Scheduler) ClearCache(ctx context.Context, pattern string) error {
	removed := s.responses.clear(pattern)
	s.logger.Debug("Cleared response cache", "pattern", pattern, "deleted", removed)
	if s.cache == nil {
		return nil
	}
	return s.cache.Clear(ctx, pattern)
}

// Invalidator returns the invalidation helper bound to this scheduler's caches.
func (s *Scheduler) Invalidator() *cache.Invalidator {
	return s.invalidator
}

// BreakerState reports the circuit breaker state.
func (s *Scheduler) BreakerState() string {
	return s.breaker.State().String()
}

func (s *Scheduler) Stats() types.SchedulerStats {
	s.mu.Lock()
	queued := s.queue.len()
	running := s.running
	s.mu.Unlock()

	return types.SchedulerStats{
		Queued:            queued,
		Running:           running,
		MaxConcurrent:     s.maxConcurrent,
		Completed:         s.completed.Load(),
		Failed:            s.failed.Load(),
		Retried:           s.retried.Load(),
		Cancelled:         s.cancelled.Load(),
		ResponseCacheHits: s.responseHits.Load(),
		ResponseCacheSize: s.responses.len(),
	}
}

// Close rejects new requests, resolves queued and backing-off tasks with
// ErrClosed and waits for running calls until ctx is done.
func (s *Scheduler) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	pending := s.queue.takeAll()
	for t := range s.retrying {
		if t.stopRetry != nil {
			t.stopRetry()
		}
		pending = append(pending, t)
	}
	s.retrying = make(map[*task]struct{})
	for _, t := range pending {
		t.state = stateDone
	}
	s.mu.Unlock()

	for _, t := range pending {
		t.resolve(types.Result{Err: types.ErrClosed, RetryCount: t.retryCount})
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return types.ErrShutdownTimeout
	}
}

func (s *Scheduler) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func isPanic(err error) bool {
	var pe *panicError
	return errors.As(err, &pe)
}

var _ cache.Clearer = (*Scheduler)(nil)
