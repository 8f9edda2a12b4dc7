package gateway

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/LavishGent/callgate/internal/config"
	"github.com/LavishGent/callgate/internal/types"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fakeTransport struct {
	mu      sync.Mutex
	calls   map[string]int
	handler func(ctx context.Context, spec types.RequestSpec) (*types.Response, error)
}

func newFakeTransport(handler func(ctx context.Context, spec types.RequestSpec) (*types.Response, error)) *fakeTransport {
	if handler == nil {
		handler = func(ctx context.Context, spec types.RequestSpec) (*types.Response, error) {
			return ok(`"` + spec.PolicyKey() + `"`), nil
		}
	}
	return &fakeTransport{calls: make(map[string]int), handler: handler}
}

func (f *fakeTransport) Invoke(ctx context.Context, spec types.RequestSpec) (*types.Response, error) {
	f.mu.Lock()
	f.calls[spec.PolicyKey()]++
	f.mu.Unlock()
	return f.handler(ctx, spec)
}

func (f *fakeTransport) count(key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[key]
}

func (f *fakeTransport) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

func ok(data string) *types.Response {
	return &types.Response{Success: true, Data: json.RawMessage(data)}
}

func hotSpec() types.RequestSpec {
	return types.RequestSpec{Endpoint: "reference", Action: "getSettings"}
}

const hotKey = "reference:getSettings"

func newTestManager(t *testing.T, transport types.Transport, clock *fakeClock, mutate func(*config.Config)) *Manager {
	t.Helper()
	cfg := config.ForTesting()
	if mutate != nil {
		mutate(cfg)
	}
	opts := &types.ManagerOptions{}
	if clock != nil {
		opts.Clock = clock.Now
	}
	m, err := NewManager(cfg, transport, opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.CloseWithTimeout(2 * time.Second) })
	return m
}
