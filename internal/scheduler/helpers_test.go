package scheduler

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/LavishGent/callgate/internal/config"
	"github.com/LavishGent/callgate/internal/policy"
	"github.com/LavishGent/callgate/internal/types"
)

type fakeTransport struct {
	mu      sync.Mutex
	calls   []types.RequestSpec
	handler func(ctx context.Context, spec types.RequestSpec) (*types.Response, error)

	inFlight    atomic.Int32
	maxInFlight atomic.Int32
}

func newFakeTransport(handler func(ctx context.Context, spec types.RequestSpec) (*types.Response, error)) *fakeTransport {
	if handler == nil {
		handler = func(ctx context.Context, spec types.RequestSpec) (*types.Response, error) {
			return ok(`"` + name(spec) + `"`), nil
		}
	}
	return &fakeTransport{handler: handler}
}

func (f *fakeTransport) Invoke(ctx context.Context, spec types.RequestSpec) (*types.Response, error) {
	f.mu.Lock()
	f.calls = append(f.calls, spec)
	f.mu.Unlock()

	cur := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		prev := f.maxInFlight.Load()
		if cur <= prev || f.maxInFlight.CompareAndSwap(prev, cur) {
			break
		}
	}
	return f.handler(ctx, spec)
}

func (f *fakeTransport) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeTransport) names() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.calls))
	for _, c := range f.calls {
		out = append(out, name(c))
	}
	return out
}

// delayRecorder replaces time.AfterFunc: it records each backoff and fires at once.
type delayRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (r *delayRecorder) after(d time.Duration, f func()) func() bool {
	r.mu.Lock()
	r.delays = append(r.delays, d)
	r.mu.Unlock()
	go f()
	return func() bool { return false }
}

func (r *delayRecorder) recorded() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]time.Duration(nil), r.delays...)
}

func ok(data string) *types.Response {
	return &types.Response{Success: true, Data: json.RawMessage(data)}
}

func name(spec types.RequestSpec) string {
	if n, found := spec.Payload["name"].(string); found {
		return n
	}
	return spec.PolicyKey()
}

// job is an uncached call; cachedJob falls under a level-4 policy.
func job(n string, p types.Priority) types.RequestSpec {
	return types.RequestSpec{Endpoint: "jobs", Action: "run", Payload: map[string]any{"name": n}, Priority: p}
}

func cachedJob(n string) types.RequestSpec {
	return types.RequestSpec{Endpoint: "jobs", Action: "get", Payload: map[string]any{"name": n}}
}

func testPolicies() *policy.Table {
	return policy.NewFromMap(map[string]types.CachePolicy{
		"jobs:run":     {Level: types.LevelNoCache},
		"jobs:get":     {Level: types.LevelShort},
		"batch:list":   {Level: types.LevelVolatile, KeyStrategy: types.KeyUser},
		"batch:create": {Level: types.LevelNoCache, UpdateStrategy: types.UpdateInvalidate},
	})
}

func newTestScheduler(t *testing.T, transport types.Transport, mutate func(*Options)) *Scheduler {
	t.Helper()
	opts := Options{
		Config:    config.ForTesting().Scheduler,
		Transport: transport,
		Policies:  testPolicies(),
	}
	if mutate != nil {
		mutate(&opts)
	}
	s, err := New(opts)
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = s.Close(ctx)
	})
	return s
}

// blockingHandler holds the call named "blocker" until gate is closed.
func blockingHandler(gate <-chan struct{}) func(ctx context.Context, spec types.RequestSpec) (*types.Response, error) {
	return func(ctx context.Context, spec types.RequestSpec) (*types.Response, error) {
		if name(spec) == "blocker" {
			<-gate
		}
		return ok(`"` + name(spec) + `"`), nil
	}
}
