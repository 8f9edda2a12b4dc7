package gateway

import (
	"context"
	"encoding/binary"
	"errors"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/allegro/bigcache/v3"

	"github.com/LavishGent/callgate/internal/config"
	"github.com/LavishGent/callgate/internal/types"
)

// Stored values are prefixed with their expiry in unix nanos, checked against
// the injected clock. bigcache's own LifeWindow only bounds memory.
const expiryHeaderSize = 8

// hotCache holds responses for the designated hot lookup.
type hotCache struct {
	cache     *bigcache.BigCache
	ttl       time.Duration
	maxSizeMB int
	now       func() time.Time
	logger    *slog.Logger

	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64

	closed atomic.Bool
}

func newHotCache(cfg config.HotLookupConfig, now func() time.Time, logger *slog.Logger) (*hotCache, error) {
	if logger == nil {
		logger = slog.Default()
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	shards := cfg.Shards
	if shards <= 0 {
		shards = 16
	}

	hc := &hotCache{
		ttl:       ttl,
		maxSizeMB: cfg.MaxSizeMB,
		now:       now,
		logger:    logger.With("component", "hot-cache"),
	}

	bcConfig := bigcache.Config{
		Shards:             shards,
		LifeWindow:         ttl,
		CleanWindow:        ttl,
		MaxEntriesInWindow: 1024,
		MaxEntrySize:       4096,
		HardMaxCacheSize:   cfg.MaxSizeMB,
		Verbose:            false,
		Logger:             &bigcacheLogger{logger: hc.logger},
		OnRemoveWithReason: func(key string, entry []byte, reason bigcache.RemoveReason) {
			if reason == bigcache.NoSpace || reason == bigcache.Expired {
				hc.evictions.Add(1)
			}
		},
	}

	bc, err := bigcache.New(context.Background(), bcConfig)
	if err != nil {
		return nil, err
	}
	hc.cache = bc
	return hc, nil
}

func (c *hotCache) get(key string) ([]byte, bool) {
	if c.closed.Load() {
		return nil, false
	}

	data, err := c.cache.Get(key)
	if err != nil {
		if !errors.Is(err, bigcache.ErrEntryNotFound) {
			c.logger.Debug("Hot cache read failed", "key", key, "error", err)
		}
		c.misses.Add(1)
		return nil, false
	}

	if len(data) < expiryHeaderSize {
		_ = c.cache.Delete(key)
		c.misses.Add(1)
		return nil, false
	}
	expireAt := int64(binary.BigEndian.Uint64(data[:expiryHeaderSize]))
	if c.now().UnixNano() >= expireAt {
		_ = c.cache.Delete(key)
		c.misses.Add(1)
		return nil, false
	}

	c.hits.Add(1)
	return data[expiryHeaderSize:], true
}

func (c *hotCache) set(key string, value []byte) error {
	if c.closed.Load() {
		return types.ErrClosed
	}

	buf := make([]byte, expiryHeaderSize+len(value))
	binary.BigEndian.PutUint64(buf, uint64(c.now().Add(c.ttl).UnixNano()))
	copy(buf[expiryHeaderSize:], value)

	if err := c.cache.Set(key, buf); err != nil {
		return types.NewCacheError("Set", key, "hot", err)
	}
	return nil
}

// clearMatching removes every key containing pattern. An empty pattern resets the cache.
func (c *hotCache) clearMatching(pattern string) int {
	if c.closed.Load() {
		return 0
	}
	if pattern == "" {
		n := c.cache.Len()
		if err := c.cache.Reset(); err != nil {
			c.logger.Debug("Hot cache reset failed", "error", err)
		}
		return n
	}

	var keysToDelete []string

	iter := c.cache.Iterator()
	for iter.SetNext() {
		entry, err := iter.Value()
		if err != nil {
			continue
		}
		if strings.Contains(entry.Key(), pattern) {
			keysToDelete = append(keysToDelete, entry.Key())
		}
	}

	for _, key := range keysToDelete {
		_ = c.cache.Delete(key)
	}

	c.logger.Debug("Cleared entries by pattern",
		"pattern", pattern,
		"deleted", len(keysToDelete),
	)
	return len(keysToDelete)
}

func (c *hotCache) len() int {
	if c.closed.Load() {
		return 0
	}
	return c.cache.Len()
}

func (c *hotCache) close() error {
	if c.closed.Swap(true) {
		return nil
	}
	return c.cache.Close()
}

type bigcacheLogger struct {
	logger *slog.Logger
}

func (l *bigcacheLogger) Printf(format string, args ...any) {
	l.logger.Debug("bigcache: "+format, args...)
}
