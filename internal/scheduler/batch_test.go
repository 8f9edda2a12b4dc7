package scheduler

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LavishGent/callgate/internal/types"
)

func TestBatchRequestChunks(t *testing.T) {
	transport := newFakeTransport(func(ctx context.Context, spec types.RequestSpec) (*types.Response, error) {
		time.Sleep(5 * time.Millisecond)
		return ok(`"` + name(spec) + `"`), nil
	})
	s := newTestScheduler(t, transport, func(o *Options) { o.Config.MaxConcurrent = 10 })

	specs := make([]types.RequestSpec, 7)
	for i := range specs {
		specs[i] = job(fmt.Sprintf("item-%d", i), types.PriorityNormal)
	}

	results, err := s.BatchRequest(context.Background(), specs, types.BatchOptions{MaxBatchSize: 3})
	require.NoError(t, err)
	require.Len(t, results, 7)
	for i, res := range results {
		assert.True(t, res.Success)
		assert.Equal(t, fmt.Sprintf(`"item-%d"`, i), string(res.Data))
	}
	assert.LessOrEqual(t, int(transport.maxInFlight.Load()), 3)
}

func TestBatchRequestContinueOnError(t *testing.T) {
	transport := newFakeTransport(func(ctx context.Context, spec types.RequestSpec) (*types.Response, error) {
		if name(spec) == "bad" {
			return &types.Response{Success: false, Error: "rejected"}, nil
		}
		return ok(`"ok"`), nil
	})
	s := newTestScheduler(t, transport, nil)

	specs := []types.RequestSpec{
		job("a", types.PriorityNormal),
		job("bad", types.PriorityNormal),
		job("c", types.PriorityNormal),
	}
	results, err := s.BatchRequest(context.Background(), specs, types.BatchOptions{ContinueOnError: true, MaxBatchSize: 2})
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.True(t, results[0].Success)
	assert.False(t, results[1].Success)
	assert.ErrorIs(t, results[1].Err, types.ErrRemoteFailure)
	assert.True(t, results[2].Success)
}

func TestBatchRequestStopsOnError(t *testing.T) {
	transport := newFakeTransport(func(ctx context.Context, spec types.RequestSpec) (*types.Response, error) {
		if name(spec) == "bad" {
			return &types.Response{Success: false, Error: "rejected"}, nil
		}
		return ok(`"ok"`), nil
	})
	s := newTestScheduler(t, transport, nil)

	specs := []types.RequestSpec{
		job("bad", types.PriorityNormal),
		job("b", types.PriorityNormal),
		job("later-1", types.PriorityNormal),
		job("later-2", types.PriorityNormal),
	}
	results, err := s.BatchRequest(context.Background(), specs, types.BatchOptions{MaxBatchSize: 2})
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrRemoteFailure)
	assert.Len(t, results, 2)
	assert.NotContains(t, transport.names(), "later-1")
	assert.NotContains(t, transport.names(), "later-2")
}

func TestBatchRequestDefaultSize(t *testing.T) {
	s := newTestScheduler(t, newFakeTransport(nil), nil)

	results, err := s.BatchRequest(context.Background(), nil, types.BatchOptions{})
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Equal(t, 5, s.batchSize)
}
