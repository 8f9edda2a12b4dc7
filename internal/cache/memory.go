package cache

import (
	"container/list"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/LavishGent/callgate/internal/types"
)

// MemoryTier is the in-process tier: a map plus an access-ordered list. The
// front of the list is the most recently accessed entry.
type MemoryTier struct {
	mu       sync.Mutex
	items    map[string]*list.Element
	order    *list.List
	size     int64
	maxItems int
	maxSize  int64
	logger   *slog.Logger

	evictions atomic.Int64
	closed    atomic.Bool
}

// NewMemoryTier creates a memory tier bounded by maxItems entries and maxSize estimated bytes.
func NewMemoryTier(maxItems int, maxSize int64, logger *slog.Logger) *MemoryTier {
	if logger == nil {
		logger = slog.Default()
	}
	return &MemoryTier{
		items:    make(map[string]*list.Element),
		order:    list.New(),
		maxItems: maxItems,
		maxSize:  maxSize,
		logger:   logger.With("component", "memory-tier"),
	}
}

// Get returns the value for key. An expired entry is removed and reported as a miss.
func (m *MemoryTier) Get(key string, now time.Time) ([]byte, bool) {
	if m.closed.Load() {
		return nil, false
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	el, ok := m.items[key]
	if !ok {
		return nil, false
	}
	entry := el.Value.(*types.CacheEntry)
	if entry.ExpiredAt(now) {
		m.removeElement(el)
		return nil, false
	}

	entry.AccessCount++
	entry.LastAccessAt = now
	m.order.MoveToFront(el)
	return entry.Value, true
}

// Peek returns a copy of the entry without refreshing its access metadata.
func (m *MemoryTier) Peek(key string) (types.CacheEntry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	el, ok := m.items[key]
	if !ok {
		return types.CacheEntry{}, false
	}
	return *el.Value.(*types.CacheEntry), true
}

// Set inserts entry, evicting least-recently-accessed entries until it fits.
// It returns the keys evicted to make room.
func (m *MemoryTier) Set(entry *types.CacheEntry) ([]string, error) {
	if m.closed.Load() {
		return nil, types.ErrClosed
	}
	if entry.Size > m.maxSize {
		return nil, types.NewCacheError("Set", entry.Key, "memory", types.ErrEntryTooLarge)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if el, ok := m.items[entry.Key]; ok {
		m.removeElement(el)
	}

	var evicted []string
	for m.order.Len() > 0 && (m.order.Len()+1 > m.maxItems || m.size+entry.Size > m.maxSize) {
		oldest := m.order.Back()
		key := oldest.Value.(*types.CacheEntry).Key
		m.removeElement(oldest)
		m.evictions.Add(1)
		evicted = append(evicted, key)
	}

	m.items[entry.Key] = m.order.PushFront(entry)
	m.size += entry.Size

	if len(evicted) > 0 {
		m.logger.Debug("Evicted entries to make room", "key", entry.Key, "evicted", len(evicted))
	}
	return evicted, nil
}

// Delete removes key and reports whether it was present.
func (m *MemoryTier) Delete(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	el, ok := m.items[key]
	if !ok {
		return false
	}
	m.removeElement(el)
	return true
}

// DeleteMatching removes every key containing substr and returns how many were removed.
func (m *MemoryTier) DeleteMatching(substr string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for key, el := range m.items {
		if strings.Contains(key, substr) {
			m.removeElement(el)
			removed++
		}
	}
	return removed
}

// Clear removes all entries.
func (m *MemoryTier) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.items = make(map[string]*list.Element)
	m.order.Init()
	m.size = 0
}

// PurgeExpired removes every entry expired at now.
func (m *MemoryTier) PurgeExpired(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	purged := 0
	for _, el := range m.items {
		if el.Value.(*types.CacheEntry).ExpiredAt(now) {
			m.removeElement(el)
			purged++
		}
	}
	return purged
}

// Keys returns the keys ordered from most to least recently accessed.
func (m *MemoryTier) Keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	keys := make([]string, 0, m.order.Len())
	for el := m.order.Front(); el != nil; el = el.Next() {
		keys = append(keys, el.Value.(*types.CacheEntry).Key)
	}
	return keys
}

func (m *MemoryTier) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.order.Len()
}

// Size returns the estimated bytes held.
func (m *MemoryTier) Size() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.size
}

func (m *MemoryTier) MaxItems() int { return m.maxItems }

func (m *MemoryTier) MaxSize() int64 { return m.maxSize }

func (m *MemoryTier) Evictions() int64 { return m.evictions.Load() }

// UsagePercentage returns the byte usage as a percentage of maxSize.
func (m *MemoryTier) UsagePercentage() float64 {
	if m.maxSize == 0 {
		return 0
	}
	return float64(m.Size()) / float64(m.maxSize) * 100
}

// Close drops all entries; later Sets fail with ErrClosed.
func (m *MemoryTier) Close() error {
	if m.closed.Swap(true) {
		return nil
	}
	m.Clear()
	return nil
}

// removeElement must be called with mu held.
func (m *MemoryTier) removeElement(el *list.Element) {
	entry := el.Value.(*types.CacheEntry)
	m.order.Remove(el)
	delete(m.items, entry.Key)
	m.size -= entry.Size
}

// estimateSize approximates the retained bytes of an entry.
func estimateSize(key string, value []byte) int64 {
	return int64(len(key) + len(value))
}
