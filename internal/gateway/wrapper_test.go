package gateway

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LavishGent/callgate/internal/config"
	"github.com/LavishGent/callgate/internal/types"
)

func managerFactory(transport types.Transport) Factory {
	return func() (*Manager, error) {
		return NewManager(config.ForTesting(), transport, nil)
	}
}

func TestWrapperBuildsManagerLazily(t *testing.T) {
	var built atomic.Int32
	transport := newFakeTransport(nil)
	w := NewWrapper(func() (*Manager, error) {
		built.Add(1)
		return NewManager(config.ForTesting(), transport, nil)
	}, transport, nil)
	defer w.Close()

	assert.Equal(t, int32(0), built.Load())

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		res, err := w.SafeCall(ctx, hotSpec())
		require.NoError(t, err)
		assert.True(t, res.Success)
	}
	assert.Equal(t, int32(1), built.Load())
	assert.Equal(t, 1, transport.count(hotKey), "managed calls should use the hot cache")
	assert.False(t, w.Degraded())
	assert.Equal(t, int64(0), w.Fallbacks())
}

func TestWrapperFactoryFailureDegradesPermanently(t *testing.T) {
	var built atomic.Int32
	transport := newFakeTransport(nil)
	w := NewWrapper(func() (*Manager, error) {
		built.Add(1)
		return nil, errors.New("config unreadable")
	}, transport, nil)

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		res, err := w.SafeCall(ctx, hotSpec())
		require.NoError(t, err)
		assert.True(t, res.Success)
		assert.Equal(t, types.SourceFallback, res.Source)
	}

	assert.Equal(t, int32(1), built.Load(), "factory should be tried once")
	assert.Equal(t, 2, transport.count(hotKey), "direct calls bypass caching")
	assert.True(t, w.Degraded())
	assert.Equal(t, int64(2), w.Fallbacks())

	_, err := w.Manager()
	assert.ErrorIs(t, err, types.ErrManagerUnavailable)
}

func TestWrapperFactoryPanic(t *testing.T) {
	transport := newFakeTransport(nil)
	w := NewWrapper(func() (*Manager, error) {
		panic("boom")
	}, transport, nil)

	res, err := w.SafeCall(context.Background(), hotSpec())
	require.NoError(t, err)
	assert.Equal(t, types.SourceFallback, res.Source)
	assert.True(t, w.Degraded())
}

func TestWrapperNilFactory(t *testing.T) {
	w := NewWrapper(nil, newFakeTransport(nil), nil)

	res, err := w.SafeCall(context.Background(), hotSpec())
	require.NoError(t, err)
	assert.Equal(t, types.SourceFallback, res.Source)
}

func TestWrapperManagerErrorFallsBackOnce(t *testing.T) {
	transport := newFakeTransport(nil)
	w := NewWrapper(managerFactory(transport), transport, nil)
	defer w.Close()

	m, err := w.Manager()
	require.NoError(t, err)
	require.NoError(t, m.scheduler.Close(context.Background()))

	ctx := context.Background()
	spec := types.RequestSpec{Endpoint: "batch", Action: "list"}
	res, err := w.SafeCall(ctx, spec)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, types.SourceFallback, res.Source)

	res, err = w.SafeCall(ctx, hotSpec())
	require.NoError(t, err)
	assert.Equal(t, types.SourceTransport, res.Source, "manager stays in use after a failed call")
	assert.False(t, w.Degraded())
	assert.Equal(t, int64(1), w.Fallbacks())
}

func TestWrapperManagerPanicFallsBack(t *testing.T) {
	transport := newFakeTransport(nil)
	w := NewWrapper(managerFactory(transport), transport, nil)
	defer w.Close()

	m, err := w.Manager()
	require.NoError(t, err)
	sched := m.scheduler
	m.scheduler = nil

	res, err := w.SafeCall(context.Background(), types.RequestSpec{Endpoint: "batch", Action: "list"})
	m.scheduler = sched
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, types.SourceFallback, res.Source)
	assert.Equal(t, int64(1), w.Fallbacks())
}

func TestWrapperFallbackPropagatesTransportError(t *testing.T) {
	netErr := errors.New("dial tcp: connection refused")
	transport := newFakeTransport(func(ctx context.Context, spec types.RequestSpec) (*types.Response, error) {
		return nil, netErr
	})
	w := NewWrapper(func() (*Manager, error) {
		return nil, errors.New("unavailable")
	}, transport, nil)

	res, err := w.SafeCall(context.Background(), hotSpec())
	assert.Same(t, netErr, err, "fallback failure should be the raw transport error")
	assert.False(t, res.Success)
}

func TestWrapperFallbackReportsRemoteFailure(t *testing.T) {
	transport := newFakeTransport(func(ctx context.Context, spec types.RequestSpec) (*types.Response, error) {
		return &types.Response{Success: false, Error: "denied"}, nil
	})
	w := NewWrapper(nil, transport, nil)

	res, err := w.SafeCall(context.Background(), hotSpec())
	require.NoError(t, err)
	assert.False(t, res.Success)
	var remote *types.RemoteError
	require.ErrorAs(t, res.Err, &remote)
	assert.Equal(t, "denied", remote.Message)
}

func TestWrapperSafeBatchCall(t *testing.T) {
	transport := newFakeTransport(nil)
	w := NewWrapper(managerFactory(transport), transport, nil)
	defer w.Close()

	specs := []types.RequestSpec{
		hotSpec(),
		{Endpoint: "batch", Action: "list"},
		{Endpoint: "finance", Action: "getSummary"},
	}
	results, err := w.SafeBatchCall(context.Background(), specs)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, `"batch:list"`, string(results[1].Data))
	assert.Equal(t, `"finance:getSummary"`, string(results[2].Data))
}

func TestWrapperClearCacheAndWarmup(t *testing.T) {
	transport := newFakeTransport(nil)
	w := NewWrapper(managerFactory(transport), transport, nil)
	defer w.Close()
	ctx := context.Background()

	w.Warmup(ctx)
	assert.Equal(t, 1, transport.count(hotKey))

	w.ClearCache(ctx, "")
	_, err := w.SafeCall(ctx, hotSpec())
	require.NoError(t, err)
	assert.Equal(t, 2, transport.count(hotKey))
}

func TestWrapperDegradedOperationsAreNoOps(t *testing.T) {
	transport := newFakeTransport(nil)
	w := NewWrapper(func() (*Manager, error) {
		return nil, errors.New("unavailable")
	}, transport, nil)

	w.Warmup(context.Background())
	w.ClearCache(context.Background(), "")
	assert.Equal(t, 0, transport.total())
	assert.NoError(t, w.Close())
}

func TestWrapperCloseBeforeUse(t *testing.T) {
	var built atomic.Int32
	transport := newFakeTransport(nil)
	w := NewWrapper(func() (*Manager, error) {
		built.Add(1)
		return NewManager(config.ForTesting(), transport, nil)
	}, transport, nil)

	require.NoError(t, w.Close())
	res, err := w.SafeCall(context.Background(), hotSpec())
	require.NoError(t, err)
	assert.Equal(t, types.SourceFallback, res.Source)
	assert.Equal(t, int32(0), built.Load())
}
