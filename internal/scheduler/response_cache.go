package scheduler

import (
	"encoding/json"
	"slices"
	"strings"
	"sync"
	"time"
)

// responseCache holds recent successful responses independently of the
// tiered cache. When full, the oldest insertion is evicted.
type responseCache struct {
	mu       sync.Mutex
	entries  map[string]responseEntry
	order    []string
	capacity int
	ttl      time.Duration
	now      func() time.Time
}

type responseEntry struct {
	data     json.RawMessage
	expireAt time.Time
}

func newResponseCache(capacity int, ttl time.Duration, now func() time.Time) *responseCache {
	return &responseCache{
		entries:  make(map[string]responseEntry, capacity),
		capacity: capacity,
		ttl:      ttl,
		now:      now,
	}
}

func (c *responseCache) get(key string) (json.RawMessage, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if !c.now().Before(e.expireAt) {
		c.removeLocked(key)
		return nil, false
	}
	return e.data, true
}

func (c *responseCache) set(key string, data json.RawMessage) {
	if c.capacity <= 0 || c.ttl <= 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[key]; ok {
		c.removeLocked(key)
	}
	for len(c.order) >= c.capacity {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
	}
	c.entries[key] = responseEntry{data: data, expireAt: c.now().Add(c.ttl)}
	c.order = append(c.order, key)
}

// clear removes every key containing pattern; an empty pattern removes all.
func (c *responseCache) clear(pattern string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	if pattern == "" {
		n := len(c.order)
		c.entries = make(map[string]responseEntry, c.capacity)
		c.order = nil
		return n
	}

	kept := c.order[:0]
	removed := 0
	for _, key := range c.order {
		if strings.Contains(key, pattern) {
			delete(c.entries, key)
			removed++
			continue
		}
		kept = append(kept, key)
	}
	c.order = kept
	return removed
}

func (c *responseCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.order)
}

func (c *responseCache) removeLocked(key string) {
	delete(c.entries, key)
	if i := slices.Index(c.order, key); i >= 0 {
		c.order = slices.Delete(c.order, i, i+1)
	}
}
