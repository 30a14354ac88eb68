package respcache

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

type memoryEntry struct {
	answer    string
	createdAt time.Time
}

// MemoryCache is the default single-process backend: a mutex-protected map
// with lazy TTL expiry and bulk oldest-first eviction when full.
type MemoryCache struct {
	mu         sync.Mutex
	entries    map[string]memoryEntry
	ttl        time.Duration
	maxEntries int
	evictBatch int
	logger     *zap.Logger

	now func() time.Time // overridable in tests
}

// NewMemoryCache creates an in-memory answer cache. Entries older than ttl
// are treated as misses and removed on read; when the cache reaches
// maxEntries, the evictBatch oldest entries are dropped to make room.
func NewMemoryCache(ttl time.Duration, maxEntries, evictBatch int, logger *zap.Logger) *MemoryCache {
	if maxEntries < 1 {
		maxEntries = 1
	}
	if evictBatch < 1 {
		evictBatch = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MemoryCache{
		entries:    make(map[string]memoryEntry),
		ttl:        ttl,
		maxEntries: maxEntries,
		evictBatch: evictBatch,
		logger:     logger.With(zap.String("component", "respcache")),
		now:        time.Now,
	}
}

// Get implements Cache.
func (c *MemoryCache) Get(_ context.Context, key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return "", false
	}
	// An entry is valid strictly within the TTL; age == TTL is stale.
	if c.ttl > 0 && c.now().Sub(entry.createdAt) >= c.ttl {
		delete(c.entries, key)
		return "", false
	}
	return entry.answer, true
}

// Set implements Cache.
func (c *MemoryCache) Set(_ context.Context, key, answer string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.maxEntries {
		c.evictOldest()
	}
	c.entries[key] = memoryEntry{answer: answer, createdAt: c.now()}
}

// Close implements Cache.
func (c *MemoryCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]memoryEntry)
	return nil
}

// Len returns the current entry count.
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// evictOldest drops the evictBatch entries with the earliest creation
// times. Bulk eviction keeps the hot path from re-sorting on every Set
// once the cache is full. Caller holds the lock.
func (c *MemoryCache) evictOldest() {
	type aged struct {
		key       string
		createdAt time.Time
	}

	all := make([]aged, 0, len(c.entries))
	for k, e := range c.entries {
		all = append(all, aged{key: k, createdAt: e.createdAt})
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].createdAt.Before(all[j].createdAt)
	})

	n := c.evictBatch
	if n > len(all) {
		n = len(all)
	}
	for _, a := range all[:n] {
		delete(c.entries, a.key)
	}

	c.logger.Debug("evicted oldest cache entries", zap.Int("count", n))
}
