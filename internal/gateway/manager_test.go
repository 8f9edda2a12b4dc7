package gateway

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LavishGent/callgate/internal/config"
	"github.com/LavishGent/callgate/internal/metrics"
	"github.com/LavishGent/callgate/internal/types"
)

func TestNewManagerRequiresTransport(t *testing.T) {
	_, err := NewManager(config.ForTesting(), nil, nil)
	assert.Error(t, err)
}

func TestNewManagerRejectsInvalidConfig(t *testing.T) {
	cfg := config.ForTesting()
	cfg.HotLookup.Shards = 3
	_, err := NewManager(cfg, newFakeTransport(nil), nil)
	assert.Error(t, err)
}

func TestHotLookupSingleTransportCallWithinTTL(t *testing.T) {
	clock := newFakeClock()
	transport := newFakeTransport(nil)
	m := newTestManager(t, transport, clock, nil)
	ctx := context.Background()

	first, err := m.Call(ctx, hotSpec())
	require.NoError(t, err)
	require.True(t, first.Success)
	assert.Equal(t, types.SourceTransport, first.Source)

	clock.Advance(9 * time.Minute)
	second, err := m.Call(ctx, hotSpec())
	require.NoError(t, err)
	require.True(t, second.Success)
	assert.Equal(t, types.SourceHotCache, second.Source)
	assert.Equal(t, first.Data, second.Data)

	assert.Equal(t, 1, transport.count(hotKey), "two calls within 10 minutes should reach the backend once")

	clock.Advance(time.Minute)
	third, err := m.Call(ctx, hotSpec())
	require.NoError(t, err)
	assert.Equal(t, types.SourceTransport, third.Source)
	assert.Equal(t, 2, transport.count(hotKey))
}

func TestHotLookupConcurrentCallsShareOneFetch(t *testing.T) {
	release := make(chan struct{})
	var started atomic.Int32
	transport := newFakeTransport(func(ctx context.Context, spec types.RequestSpec) (*types.Response, error) {
		started.Add(1)
		<-release
		return ok(`{"units":"metric"}`), nil
	})
	m := newTestManager(t, transport, newFakeClock(), nil)

	const callers = 8
	var wg sync.WaitGroup
	results := make([]types.Result, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = m.Call(context.Background(), hotSpec())
		}(i)
	}

	require.Eventually(t, func() bool { return started.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, 1, transport.count(hotKey))
	for i, res := range results {
		assert.True(t, res.Success, "caller %d", i)
		assert.JSONEq(t, `{"units":"metric"}`, string(res.Data))
	}
}

func TestHotLookupSurvivesFirstCallerCancelling(t *testing.T) {
	release := make(chan struct{})
	var started atomic.Int32
	transport := newFakeTransport(func(ctx context.Context, spec types.RequestSpec) (*types.Response, error) {
		started.Add(1)
		select {
		case <-release:
			return ok(`{"units":"metric"}`), nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	})
	m := newTestManager(t, transport, newFakeClock(), func(cfg *config.Config) {
		cfg.Scheduler.DefaultTimeout = 5 * time.Second
	})

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	firstDone := make(chan types.Result, 1)
	go func() {
		res, _ := m.Call(firstCtx, hotSpec())
		firstDone <- res
	}()
	require.Eventually(t, func() bool { return started.Load() == 1 }, time.Second, time.Millisecond)

	secondDone := make(chan types.Result, 1)
	go func() {
		res, _ := m.Call(context.Background(), hotSpec())
		secondDone <- res
	}()
	time.Sleep(20 * time.Millisecond)

	cancelFirst()
	first := <-firstDone
	assert.False(t, first.Success)
	assert.ErrorIs(t, first.Err, context.Canceled)

	close(release)
	second := <-secondDone
	require.True(t, second.Success, "second caller failed: %v", second.Err)
	assert.JSONEq(t, `{"units":"metric"}`, string(second.Data))
	assert.Equal(t, 1, transport.count(hotKey))

	res, err := m.Call(context.Background(), hotSpec())
	require.NoError(t, err)
	assert.Equal(t, types.SourceHotCache, res.Source, "the detached fetch still fills the hot cache")
}

func TestHotLookupRetriesTransientFailure(t *testing.T) {
	var attempts atomic.Int32
	transport := newFakeTransport(func(ctx context.Context, spec types.RequestSpec) (*types.Response, error) {
		if attempts.Add(1) == 1 {
			return nil, errors.New("connection reset")
		}
		return ok(`"settings"`), nil
	})
	m := newTestManager(t, transport, newFakeClock(), nil)

	res, err := m.Call(context.Background(), hotSpec(), types.WithRetryBudget(2))
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 1, res.RetryCount)
	assert.Equal(t, 2, transport.count(hotKey))
}

func TestHotLookupFailureIsNotCached(t *testing.T) {
	var fail atomic.Bool
	fail.Store(true)
	transport := newFakeTransport(func(ctx context.Context, spec types.RequestSpec) (*types.Response, error) {
		if fail.Load() {
			return &types.Response{Success: false, Error: "maintenance"}, nil
		}
		return ok(`"settings"`), nil
	})
	m := newTestManager(t, transport, newFakeClock(), nil)
	ctx := context.Background()

	res, err := m.Call(ctx, hotSpec())
	require.NoError(t, err, "backend failures are reported in the result")
	assert.False(t, res.Success)
	var callErr *types.CallError
	require.ErrorAs(t, res.Err, &callErr)
	var remote *types.RemoteError
	require.ErrorAs(t, res.Err, &remote)
	assert.Equal(t, "maintenance", remote.Message)

	fail.Store(false)
	res, err = m.Call(ctx, hotSpec())
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 2, transport.count(hotKey))
}

func TestHotLookupRecordsHotTierMetrics(t *testing.T) {
	tracker := metrics.NewTracker()
	cfg := config.ForTesting()
	m, err := NewManager(cfg, newFakeTransport(nil), &types.ManagerOptions{Metrics: tracker})
	require.NoError(t, err)
	defer m.Close()

	ctx := context.Background()
	_, err = m.Call(ctx, hotSpec())
	require.NoError(t, err)
	_, err = m.Call(ctx, hotSpec())
	require.NoError(t, err)

	snap := tracker.Snapshot()
	assert.Equal(t, int64(1), snap.HotHits)
	assert.Equal(t, int64(1), snap.HotMisses)
}

func TestCallDelegatesToScheduler(t *testing.T) {
	transport := newFakeTransport(nil)
	m := newTestManager(t, transport, newFakeClock(), nil)
	ctx := context.Background()

	spec := types.RequestSpec{Endpoint: "batch", Action: "list"}
	first, err := m.Call(ctx, spec)
	require.NoError(t, err)
	assert.True(t, first.Success)
	assert.Equal(t, types.SourceTransport, first.Source)

	second, err := m.Call(ctx, spec)
	require.NoError(t, err)
	assert.NotEqual(t, types.SourceHotCache, second.Source)
	assert.Equal(t, 1, transport.count("batch:list"))
	assert.Equal(t, int64(1), m.scheduler.Stats().Completed)
}

func TestCallHotLookupDisabled(t *testing.T) {
	transport := newFakeTransport(nil)
	m := newTestManager(t, transport, newFakeClock(), func(c *config.Config) {
		c.HotLookup.Enabled = false
	})

	res, err := m.Call(context.Background(), hotSpec())
	require.NoError(t, err)
	assert.NotEqual(t, types.SourceHotCache, res.Source)
	assert.Equal(t, int64(1), m.scheduler.Stats().Completed)
}

func TestCallRejectsInvalidRequest(t *testing.T) {
	m := newTestManager(t, newFakeTransport(nil), newFakeClock(), nil)

	_, err := m.Call(context.Background(), types.RequestSpec{Action: "getSettings"})
	assert.ErrorIs(t, err, types.ErrInvalidRequest)
}

func TestBatchCallPreservesOrder(t *testing.T) {
	transport := newFakeTransport(func(ctx context.Context, spec types.RequestSpec) (*types.Response, error) {
		if spec.Action == "broken" {
			return &types.Response{Success: false, Error: "nope"}, nil
		}
		return ok(`"` + spec.PolicyKey() + `"`), nil
	})
	m := newTestManager(t, transport, newFakeClock(), nil)

	specs := []types.RequestSpec{
		hotSpec(),
		{Endpoint: "batch", Action: "list"},
		{Endpoint: "jobs", Action: "broken"},
		{Endpoint: "finance", Action: "getSummary"},
	}
	results, err := m.BatchCall(context.Background(), specs)
	require.NoError(t, err)
	require.Len(t, results, len(specs))

	assert.Equal(t, `"reference:getSettings"`, string(results[0].Data))
	assert.Equal(t, `"batch:list"`, string(results[1].Data))
	assert.False(t, results[2].Success)
	assert.Error(t, results[2].Err)
	assert.Equal(t, `"finance:getSummary"`, string(results[3].Data))
}

func TestBatchCallJoinsAdmissionErrors(t *testing.T) {
	m := newTestManager(t, newFakeTransport(nil), newFakeClock(), nil)

	results, err := m.BatchCall(context.Background(), []types.RequestSpec{
		{Endpoint: "batch", Action: "list"},
		{Endpoint: "batch"},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrInvalidRequest)
	assert.True(t, results[0].Success)
}

func TestBatchRequestUsesScheduler(t *testing.T) {
	transport := newFakeTransport(nil)
	m := newTestManager(t, transport, newFakeClock(), nil)

	specs := []types.RequestSpec{
		{Endpoint: "jobs", Action: "a"},
		{Endpoint: "jobs", Action: "b"},
		{Endpoint: "jobs", Action: "c"},
	}
	results, err := m.BatchRequest(context.Background(), specs, types.BatchOptions{MaxBatchSize: 2})
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, 3, transport.total())
}

func TestWarmupSpecs(t *testing.T) {
	m := newTestManager(t, newFakeTransport(nil), newFakeClock(), nil)

	var keys []string
	for _, s := range m.WarmupSpecs() {
		keys = append(keys, s.PolicyKey())
	}
	assert.Equal(t, []string{"reference:getSettings", "session:whoami", "reference:getBreeds"}, keys)
}

func TestWarmupPopulatesCaches(t *testing.T) {
	transport := newFakeTransport(nil)
	m := newTestManager(t, transport, newFakeClock(), nil)
	ctx := context.Background()

	require.NoError(t, m.Warmup(ctx))
	assert.Equal(t, 1, transport.count(hotKey))
	assert.Equal(t, 1, transport.count("session:whoami"))
	assert.Equal(t, 1, transport.count("reference:getBreeds"))

	res, err := m.Call(ctx, hotSpec())
	require.NoError(t, err)
	assert.Equal(t, types.SourceHotCache, res.Source)

	res, err = m.Call(ctx, types.RequestSpec{Endpoint: "reference", Action: "getBreeds"})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 1, transport.count("reference:getBreeds"), "preloaded entry should be served from cache")
}

func TestWarmupReportsPartialFailure(t *testing.T) {
	transport := newFakeTransport(func(ctx context.Context, spec types.RequestSpec) (*types.Response, error) {
		if spec.Endpoint == "session" {
			return &types.Response{Success: false, Error: "not signed in"}, nil
		}
		return ok(`"x"`), nil
	})
	m := newTestManager(t, transport, newFakeClock(), nil)

	err := m.Warmup(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "session:whoami")

	res, callErr := m.Call(context.Background(), hotSpec())
	require.NoError(t, callErr)
	assert.Equal(t, types.SourceHotCache, res.Source)
}

func TestWarmupOnStart(t *testing.T) {
	transport := newFakeTransport(nil)
	newTestManager(t, transport, newFakeClock(), func(c *config.Config) {
		c.Warmup.OnStart = true
	})

	require.Eventually(t, func() bool { return transport.count(hotKey) == 1 }, time.Second, 5*time.Millisecond)
}

func TestStartWarmupSchedule(t *testing.T) {
	m := newTestManager(t, newFakeTransport(nil), newFakeClock(), nil)

	require.NoError(t, m.StartWarmupSchedule("*/5 * * * *"))
	assert.Error(t, m.StartWarmupSchedule("*/5 * * * *"), "second schedule should be rejected")
}

func TestStartWarmupScheduleInvalid(t *testing.T) {
	m := newTestManager(t, newFakeTransport(nil), newFakeClock(), nil)
	assert.Error(t, m.StartWarmupSchedule("not a schedule"))
}

func TestNewManagerInvalidSchedule(t *testing.T) {
	cfg := config.ForTesting()
	cfg.Warmup.Schedule = "every tuesday"
	_, err := NewManager(cfg, newFakeTransport(nil), nil)
	assert.Error(t, err)
}

func TestClearCacheRouting(t *testing.T) {
	transport := newFakeTransport(nil)
	m := newTestManager(t, transport, newFakeClock(), nil)
	ctx := context.Background()
	listSpec := types.RequestSpec{Endpoint: "reference", Action: "getBreeds"}

	call := func(spec types.RequestSpec) {
		t.Helper()
		_, err := m.Call(ctx, spec)
		require.NoError(t, err)
	}

	call(hotSpec())
	call(listSpec)
	require.Equal(t, 1, m.hot.len())

	t.Run("hot pattern leaves other caches alone", func(t *testing.T) {
		require.NoError(t, m.ClearCache(ctx, hotKey))
		assert.Equal(t, 0, m.hot.len())

		call(listSpec)
		assert.Equal(t, 1, transport.count("reference:getBreeds"))
	})

	t.Run("shared pattern clears both", func(t *testing.T) {
		call(hotSpec())
		require.NoError(t, m.ClearCache(ctx, "reference:"))
		assert.Equal(t, 0, m.hot.len())

		call(listSpec)
		assert.Equal(t, 2, transport.count("reference:getBreeds"))
	})

	t.Run("empty pattern clears everything", func(t *testing.T) {
		call(hotSpec())
		require.NoError(t, m.ClearCache(ctx, ""))
		assert.Equal(t, 0, m.hot.len())
		assert.Equal(t, 0, m.cache.Stats().TotalItems)
	})
}

func TestHealth(t *testing.T) {
	m := newTestManager(t, newFakeTransport(nil), newFakeClock(), nil)
	ctx := context.Background()

	_, err := m.Call(ctx, hotSpec())
	require.NoError(t, err)

	health, err := m.Health(ctx)
	require.NoError(t, err)
	assert.Equal(t, types.HealthStatusHealthy, health.Status)
	assert.Equal(t, 1, health.HotCacheEntries)
	assert.Equal(t, "persist-disabled", health.Store.Name)
	assert.Equal(t, 3, health.Scheduler.MaxConcurrent)
}

func TestHealthDegradedWhenStoreUnavailable(t *testing.T) {
	cfg := config.ForTestingWithRedis("127.0.0.1:1")
	cfg.Persist.Redis.DialTimeout = 50 * time.Millisecond
	m, err := NewManager(cfg, newFakeTransport(nil), nil)
	require.NoError(t, err)
	defer m.Close()

	health, err := m.Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, types.HealthStatusDegraded, health.Status)
}

func TestCloseRejectsCalls(t *testing.T) {
	m, err := NewManager(config.ForTesting(), newFakeTransport(nil), nil)
	require.NoError(t, err)

	require.NoError(t, m.Close())
	require.NoError(t, m.Close(), "second close is a no-op")

	_, err = m.Call(context.Background(), hotSpec())
	assert.ErrorIs(t, err, types.ErrClosed)
	_, err = m.BatchCall(context.Background(), []types.RequestSpec{hotSpec()})
	assert.ErrorIs(t, err, types.ErrClosed)
	assert.ErrorIs(t, m.ClearCache(context.Background(), ""), types.ErrClosed)

	health, err := m.Health(context.Background())
	assert.ErrorIs(t, err, types.ErrClosed)
	assert.Equal(t, types.HealthStatusUnhealthy, health.Status)
}

func TestCloseWithTimeoutWaitsForBackground(t *testing.T) {
	m, err := NewManager(config.ForTesting(), newFakeTransport(nil), nil)
	require.NoError(t, err)

	var finished atomic.Bool
	m.runBackground(func(ctx context.Context) {
		time.Sleep(30 * time.Millisecond)
		finished.Store(true)
	})

	require.NoError(t, m.CloseWithTimeout(time.Second))
	assert.True(t, finished.Load())
}

func TestCloseWithTimeoutExceeded(t *testing.T) {
	m, err := NewManager(config.ForTesting(), newFakeTransport(nil), nil)
	require.NoError(t, err)

	release := make(chan struct{})
	defer close(release)
	m.runBackground(func(ctx context.Context) {
		<-release
	})

	err = m.CloseWithTimeout(20 * time.Millisecond)
	assert.ErrorIs(t, err, types.ErrShutdownTimeout)
}

func TestRunBackgroundAfterClose(t *testing.T) {
	m, err := NewManager(config.ForTesting(), newFakeTransport(nil), nil)
	require.NoError(t, err)
	require.NoError(t, m.Close())

	var ran atomic.Bool
	m.runBackground(func(ctx context.Context) { ran.Store(true) })
	time.Sleep(10 * time.Millisecond)
	assert.False(t, ran.Load())
}
