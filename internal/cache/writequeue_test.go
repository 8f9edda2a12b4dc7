package cache

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LavishGent/callgate/internal/config"
	"github.com/LavishGent/callgate/internal/types"
)

// holdWrites parks the queue worker before it applies anything until the
// returned release func is called. It must be installed before the first
// enqueue.
func holdWrites(t *testing.T, q *writeQueue) func() {
	t.Helper()
	gate := make(chan struct{})
	var once sync.Once
	release := func() { once.Do(func() { close(gate) }) }
	q.beforeApply = func() { <-gate }
	t.Cleanup(release)
	return release
}

type queuedStore interface {
	types.Store
	Flush(ctx context.Context) error
}

func persistedBackends(t *testing.T) map[string]func(t *testing.T) (queuedStore, *writeQueue) {
	return map[string]func(t *testing.T) (queuedStore, *writeQueue){
		"redis": func(t *testing.T) (queuedStore, *writeQueue) {
			store, _ := newTestRedisStore(t)
			return store, store.queue
		},
		"sqlite": func(t *testing.T) (queuedStore, *writeQueue) {
			cfg := config.ForTesting().Persist
			cfg.SQLite.Path = filepath.Join(t.TempDir(), "cache.db")
			store, err := NewSQLiteStore(cfg, nil, nil)
			require.NoError(t, err)
			t.Cleanup(func() { _ = store.Close() })
			return store, store.queue
		},
	}
}

func TestClearBeatsPendingMirroredWrites(t *testing.T) {
	for name, open := range persistedBackends(t) {
		t.Run(name, func(t *testing.T) {
			store, q := open(t)
			release := holdWrites(t, q)
			ctx := context.Background()
			c := New(Options{Memory: testMemoryConfig(), Store: store})

			for i := 0; i < 20; i++ {
				key := fmt.Sprintf("batch:list:u:%d", i)
				require.NoError(t, c.Set(ctx, key, []byte("stale"), level(types.LevelStable)))
			}
			require.NoError(t, c.Set(ctx, "session:whoami:u:1", []byte("me"), level(types.LevelStable)))
			assert.Positive(t, store.(types.WriteQueueStats).PendingWrites())

			require.NoError(t, c.Clear(ctx, "batch:"))
			require.NoError(t, c.Set(ctx, "batch:list:u:0", []byte("fresh"), level(types.LevelStable)))

			release()
			flush(t, store)
			c.Memory().Clear()

			for i := 1; i < 20; i++ {
				_, err := c.Get(ctx, fmt.Sprintf("batch:list:u:%d", i))
				assert.ErrorIs(t, err, types.ErrCacheMiss, "entry %d came back after Clear", i)
			}
			got, err := c.Get(ctx, "batch:list:u:0")
			require.NoError(t, err, "a write issued after Clear is kept")
			assert.Equal(t, "fresh", string(got))

			got, err = c.Get(ctx, "session:whoami:u:1")
			require.NoError(t, err, "non-matching writes are applied")
			assert.Equal(t, "me", string(got))
		})
	}
}

func TestDeleteAndClearAllBeatPendingWrites(t *testing.T) {
	for name, open := range persistedBackends(t) {
		t.Run(name, func(t *testing.T) {
			store, q := open(t)
			release := holdWrites(t, q)
			ctx := context.Background()
			expireAt := time.Now().Add(time.Hour)
			env := types.Envelope{Value: []byte("v"), ExpireAt: expireAt}

			require.NoError(t, store.Set(ctx, "reference:getBreeds:h:empty", env))
			require.NoError(t, store.Set(ctx, "jobs:list:h:1", env))
			require.NoError(t, store.Remove(ctx, "reference:getBreeds:h:empty"))
			require.NoError(t, store.Set(ctx, "jobs:list:h:2", env))
			require.NoError(t, store.Clear(ctx))
			require.NoError(t, store.Set(ctx, "jobs:list:h:3", env))

			release()
			flush(t, store)

			for _, key := range []string{"reference:getBreeds:h:empty", "jobs:list:h:1", "jobs:list:h:2"} {
				_, err := store.Get(ctx, key)
				assert.ErrorIs(t, err, types.ErrCacheMiss, key)
			}
			_, err := store.Get(ctx, "jobs:list:h:3")
			assert.NoError(t, err)
			assert.Equal(t, int64(3), q.skipped.Load())
		})
	}
}

func TestWriteQueueAppliesInOrder(t *testing.T) {
	var mu sync.Mutex
	var applied []string
	q := newWriteQueue(8, func(w pendingWrite) {
		mu.Lock()
		applied = append(applied, w.key)
		mu.Unlock()
	}, slog.Default())
	defer q.stop()

	for _, key := range []string{"a", "b", "c"} {
		require.NoError(t, q.enqueue(key, nil, time.Time{}))
	}
	require.NoError(t, q.flush(context.Background()))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"a", "b", "c"}, applied)
}

func TestWriteQueueDropsWhenFull(t *testing.T) {
	q := newWriteQueue(1, func(pendingWrite) {}, slog.Default())
	release := holdWrites(t, q)

	require.NoError(t, q.enqueue("first", nil, time.Time{}))
	// the worker may already hold "first"; fill whatever room is left
	var err error
	for i := 0; i < 3; i++ {
		if err = q.enqueue("next", nil, time.Time{}); err != nil {
			break
		}
	}
	assert.ErrorIs(t, err, types.ErrWriteQueueFull)
	assert.Positive(t, q.dropped.Load())

	release()
	q.stop()
	assert.Equal(t, int32(0), q.pending.Load())
}

func TestWriteQueueForgetsRemovalsOnceSeen(t *testing.T) {
	q := newWriteQueue(8, func(pendingWrite) {}, slog.Default())
	release := holdWrites(t, q)
	defer q.stop()

	require.NoError(t, q.enqueue("k", nil, time.Time{}))
	require.NoError(t, q.remove(removal{key: "k"}, func() error { return nil }))
	require.NoError(t, q.enqueue("k", nil, time.Time{}))

	release()
	require.NoError(t, q.flush(context.Background()))

	assert.Equal(t, int64(1), q.skipped.Load())
	q.applyMu.Lock()
	assert.Empty(t, q.removals)
	q.applyMu.Unlock()
}

func TestRemovalCovers(t *testing.T) {
	w := pendingWrite{key: "batch:getDetails:b:12:"}
	tests := []struct {
		name string
		r    removal
		want bool
	}{
		{"all", removal{all: true}, true},
		{"exact key", removal{key: "batch:getDetails:b:12:"}, true},
		{"other key", removal{key: "batch:getDetails:b:1:"}, false},
		{"substring", removal{substr: ":b:12:"}, true},
		{"scoped batch", removal{substr: ":b:1:"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.r.covers(w))
		})
	}
}
