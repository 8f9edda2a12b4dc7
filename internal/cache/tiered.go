// Package cache implements the tiered response cache: an LRU memory tier in
// front of an optional persisted store.
package cache

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/LavishGent/callgate/internal/config"
	"github.com/LavishGent/callgate/internal/types"
)

const (
	tierMemory  = "memory"
	tierPersist = "persist"
)

// Options configures a tiered Cache.
type Options struct {
	Memory       config.MemoryConfig
	Store        types.Store
	Clock        func() time.Time
	Metrics      types.MetricsRecorder
	Logger       *slog.Logger
	KeyValidator *types.KeyValidator
}

// Cache is the two-tier cache. Entries of levels 1-3 are mirrored to the
// persisted store; level 4 lives in memory only and level 5 is never stored.
type Cache struct {
	memory    *MemoryTier
	store     types.Store
	ttls      config.LevelTTLConfig
	now       func() time.Time
	metrics   types.MetricsRecorder
	logger    *slog.Logger
	validator *types.KeyValidator

	hits        atomic.Int64
	misses      atomic.Int64
	accessNanos atomic.Int64
	accesses    atomic.Int64

	sweepStop chan struct{}
	sweepWg   sync.WaitGroup
	closed    atomic.Bool
}

// New creates a tiered cache and starts its expiry sweep when
// Memory.SweepInterval is positive.
func New(opts Options) *Cache {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Clock
	if now == nil {
		now = time.Now
	}
	store := opts.Store
	if store == nil {
		store = NewDisabledStore()
	}

	c := &Cache{
		memory:    NewMemoryTier(opts.Memory.MaxItems, opts.Memory.MaxSizeBytes, logger),
		store:     store,
		ttls:      opts.Memory.LevelTTLs,
		now:       now,
		metrics:   opts.Metrics,
		logger:    logger.With("component", "tiered-cache"),
		validator: opts.KeyValidator,
		sweepStop: make(chan struct{}),
	}

	if opts.Memory.SweepInterval > 0 {
		c.sweepWg.Add(1)
		go c.sweepLoop(opts.Memory.SweepInterval)
	}
	return c
}

// TTLFor returns the lifetime policy grants to a new entry.
func (c *Cache) TTLFor(policy types.CachePolicy) time.Duration {
	if policy.CustomTTL > 0 {
		return policy.CustomTTL
	}
	return c.ttls.For(policy.Level)
}

// Set stores value under key according to policy. Level 5 is a no-op.
func (c *Cache) Set(ctx context.Context, key string, value []byte, policy types.CachePolicy) error {
	if c.closed.Load() {
		return types.ErrClosed
	}
	if err := c.validateKey(key); err != nil {
		return err
	}
	if !policy.Level.Cacheable() {
		return nil
	}

	ttl := c.TTLFor(policy)
	if ttl <= 0 {
		return nil
	}

	start := time.Now()
	now := c.now()
	entry := &types.CacheEntry{
		Key:          key,
		Value:        value,
		CreatedAt:    now,
		ExpireAt:     now.Add(ttl),
		LastAccessAt: now,
		Size:         estimateSize(key, value),
	}

	evicted, err := c.memory.Set(entry)
	if err != nil {
		return err
	}
	if c.metrics != nil {
		for _, k := range evicted {
			c.metrics.RecordEviction(tierMemory, k)
		}
		c.metrics.RecordSet(tierMemory, key, len(value), time.Since(start))
	}

	if policy.Level.Persisted() && c.store.IsAvailable() {
		// The store queues the write; failures only cost a future persisted hit.
		if err := c.store.Set(ctx, key, types.Envelope{Value: value, ExpireAt: entry.ExpireAt}); err != nil {
			c.logger.Debug("Persist mirror failed", "key", key, "error", err)
		}
	}
	return nil
}

// Get returns the value for key from memory, then the persisted store. A
// fresh persisted hit is promoted into memory with its original expiry.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, error) {
	if c.closed.Load() {
		return nil, types.ErrClosed
	}
	if err := c.validateKey(key); err != nil {
		return nil, err
	}

	start := time.Now()
	defer func() {
		c.accessNanos.Add(int64(time.Since(start)))
		c.accesses.Add(1)
	}()

	now := c.now()
	if value, ok := c.memory.Get(key, now); ok {
		c.hits.Add(1)
		if c.metrics != nil {
			c.metrics.RecordHit(tierMemory, key, time.Since(start))
		}
		return value, nil
	}

	if c.store.IsAvailable() {
		env, err := c.store.Get(ctx, key)
		switch {
		case err == nil && !env.ExpiredAt(now):
			c.promote(key, env, now)
			c.hits.Add(1)
			if c.metrics != nil {
				c.metrics.RecordHit(tierPersist, key, time.Since(start))
			}
			return env.Value, nil
		case err == nil:
			if rmErr := c.store.Remove(ctx, key); rmErr != nil {
				c.logger.Debug("Failed to remove expired persisted entry", "key", key, "error", rmErr)
			}
		case !types.IsCacheMiss(err):
			c.logger.Debug("Persisted tier read failed", "key", key, "error", err)
		}
	}

	c.misses.Add(1)
	if c.metrics != nil {
		c.metrics.RecordMiss(tierMemory, key, time.Since(start))
	}
	return nil, types.ErrCacheMiss
}

func (c *Cache) promote(key string, env *types.Envelope, now time.Time) {
	entry := &types.CacheEntry{
		Key:          key,
		Value:        env.Value,
		CreatedAt:    now,
		ExpireAt:     env.ExpireAt,
		LastAccessAt: now,
		Size:         estimateSize(key, env.Value),
	}
	evicted, err := c.memory.Set(entry)
	if err != nil {
		c.logger.Debug("Promotion to memory failed", "key", key, "error", err)
		return
	}
	if c.metrics != nil {
		for _, k := range evicted {
			c.metrics.RecordEviction(tierMemory, k)
		}
	}
}

// Delete removes key from both tiers.
func (c *Cache) Delete(ctx context.Context, key string) error {
	if c.closed.Load() {
		return types.ErrClosed
	}
	c.memory.Delete(key)
	if c.store.IsAvailable() {
		if err := c.store.Remove(ctx, key); err != nil {
			return err
		}
	}
	return nil
}

// Clear removes every key containing pattern from both tiers. An empty
// pattern wipes everything and resets the hit/miss statistics.
func (c *Cache) Clear(ctx context.Context, pattern string) error {
	if c.closed.Load() {
		return types.ErrClosed
	}

	if pattern == "" {
		c.memory.Clear()
		c.hits.Store(0)
		c.misses.Store(0)
		c.accessNanos.Store(0)
		c.accesses.Store(0)
		if c.store.IsAvailable() {
			return c.store.Clear(ctx)
		}
		return nil
	}

	removed := c.memory.DeleteMatching(pattern)
	c.logger.Debug("Cleared entries by pattern", "pattern", pattern, "deleted", removed)
	if c.store.IsAvailable() {
		return c.store.RemoveMatching(ctx, pattern)
	}
	return nil
}

// Sweep purges expired entries from memory and, when supported, from the store.
func (c *Cache) Sweep(ctx context.Context) int {
	now := c.now()
	purged := c.memory.PurgeExpired(now)
	if p, ok := c.store.(interface {
		PurgeExpired(ctx context.Context, now time.Time) (int64, error)
	}); ok && c.store.IsAvailable() {
		if _, err := p.PurgeExpired(ctx, now); err != nil {
			c.logger.Debug("Persisted sweep failed", "error", err)
		}
	}
	if purged > 0 {
		c.logger.Debug("Swept expired entries", "purged", purged)
	}
	return purged
}

func (c *Cache) sweepLoop(interval time.Duration) {
	defer c.sweepWg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.sweepStop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), interval)
			c.Sweep(ctx)
			cancel()
		}
	}
}

// Stats returns a snapshot of the cache counters.
func (c *Cache) Stats() types.CacheStats {
	hits := c.hits.Load()
	misses := c.misses.Load()

	var hitRate float64
	if total := hits + misses; total > 0 {
		hitRate = float64(hits) / float64(total)
	}

	var avg time.Duration
	if n := c.accesses.Load(); n > 0 {
		avg = time.Duration(c.accessNanos.Load() / n)
	}

	return types.CacheStats{
		TotalItems:    c.memory.Len(),
		TotalSize:     c.memory.Size(),
		HitCount:      hits,
		MissCount:     misses,
		HitRate:       hitRate,
		AvgAccessTime: avg,
		Evictions:     c.memory.Evictions(),
	}
}

// Health reports memory tier and persisted store details.
func (c *Cache) Health() (types.CacheHealthMetrics, types.StoreHealthMetrics) {
	cacheHealth := types.CacheHealthMetrics{
		Stats:           c.Stats(),
		MaxItems:        c.memory.MaxItems(),
		MaxSizeBytes:    c.memory.MaxSize(),
		UsagePercentage: c.memory.UsagePercentage(),
	}
	storeHealth := types.StoreHealthMetrics{
		Name:      c.store.Name(),
		Available: c.store.IsAvailable(),
	}
	if q, ok := c.store.(types.WriteQueueStats); ok {
		storeHealth.PendingWrites = q.PendingWrites()
		storeHealth.DroppedWrites = q.DroppedWrites()
	}
	return cacheHealth, storeHealth
}

// Memory exposes the memory tier for inspection.
func (c *Cache) Memory() *MemoryTier {
	return c.memory
}

// Store returns the persisted tier.
func (c *Cache) Store() types.Store {
	return c.store
}

// Close stops the sweep and closes both tiers. The store drains its queued writes.
func (c *Cache) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	close(c.sweepStop)
	c.sweepWg.Wait()

	var errs []error
	if err := c.memory.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := c.store.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (c *Cache) validateKey(key string) error {
	if c.validator == nil {
		return nil
	}
	return c.validator.Validate(key)
}
