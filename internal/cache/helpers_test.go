package cache

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/LavishGent/callgate/internal/config"
	"github.com/LavishGent/callgate/internal/types"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 15, 9, 0, 0, 0, time.UTC)}
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

// mapStore is a synchronous in-process Store.
type mapStore struct {
	mu      sync.Mutex
	entries map[string]types.Envelope
	down    bool
}

func newMapStore() *mapStore {
	return &mapStore{entries: make(map[string]types.Envelope)}
}

func (s *mapStore) Name() string { return "map" }

func (s *mapStore) IsAvailable() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.down
}

func (s *mapStore) Get(ctx context.Context, key string) (*types.Envelope, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	env, ok := s.entries[key]
	if !ok {
		return nil, types.ErrCacheMiss
	}
	return &env, nil
}

func (s *mapStore) Set(ctx context.Context, key string, env types.Envelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = env
	return nil
}

func (s *mapStore) Remove(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

func (s *mapStore) RemoveMatching(ctx context.Context, substr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k := range s.entries {
		if strings.Contains(k, substr) {
			delete(s.entries, k)
		}
	}
	return nil
}

func (s *mapStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]types.Envelope)
	return nil
}

func (s *mapStore) Close() error { return nil }

func (s *mapStore) has(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.entries[key]
	return ok
}

func testMemoryConfig() config.MemoryConfig {
	cfg := config.ForTesting().Memory
	cfg.SweepInterval = 0
	return cfg
}

func level(l types.CacheLevel) types.CachePolicy {
	return types.CachePolicy{Level: l}
}
