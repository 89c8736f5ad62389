// Package cache provides the generation result cache: an in-memory TTL tier
// with an optional durable BadgerDB tier behind a fail-open layer.
package cache

import (
	"sync"
	"time"

	"github.com/inkwell-sys/inkwell/internal/fingerprint"
	"github.com/inkwell-sys/inkwell/internal/metrics"
)

// Entry is a cached generation result. Entries are immutable after insertion;
// only expiry and eviction remove them. At most one live entry exists per
// fingerprint (last-writer-wins on replacement).
type Entry struct {
	Fingerprint  fingerprint.Fingerprint `json:"fingerprint"`
	Result       string                  `json:"result"`
	ModelVersion string                  `json:"model_version"`
	CreatedAt    time.Time               `json:"created_at"`
	ExpiresAt    time.Time               `json:"expires_at"`
}

// Expired reports whether the entry is past its expiry at the given instant.
func (e Entry) Expired(now time.Time) bool {
	return now.After(e.ExpiresAt)
}

// Stats tracks cache performance counters.
type Stats struct {
	Hits      int64
	Misses    int64
	Evictions int64
	TotalKeys int64
	LastSweep time.Time
}

// Cache is a thread-safe in-memory TTL cache for generation results.
//
// Reads never block writers beyond the RWMutex read lock; expiry is checked
// lazily on Get and periodically by a Janitor sweep. The entry count is
// capped: when full, the sweep and Put evict expired entries first, then the
// entry closest to expiry.
type Cache struct {
	mu         sync.RWMutex
	entries    map[fingerprint.Fingerprint]Entry
	ttl        time.Duration
	maxEntries int

	statsMu sync.Mutex
	stats   Stats

	// now is replaceable for expiry tests.
	now func() time.Time
}

// New creates a cache with the given default TTL and entry cap.
// A maxEntries of 0 means unlimited.
func New(ttl time.Duration, maxEntries int) *Cache {
	return &Cache{
		entries:    make(map[fingerprint.Fingerprint]Entry),
		ttl:        ttl,
		maxEntries: maxEntries,
		now:        time.Now,
	}
}

// Get retrieves the live entry for a fingerprint. An expired entry is
// removed and counted as a miss.
func (c *Cache) Get(fp fingerprint.Fingerprint) (Entry, bool) {
	c.mu.RLock()
	entry, exists := c.entries[fp]
	c.mu.RUnlock()

	if !exists {
		c.recordMiss()
		return Entry{}, false
	}

	if entry.Expired(c.now()) {
		c.mu.Lock()
		// Re-check under the write lock; a writer may have replaced it.
		if current, ok := c.entries[fp]; ok && current.Expired(c.now()) {
			delete(c.entries, fp)
			c.recordEviction()
		}
		c.mu.Unlock()
		c.recordMiss()
		return Entry{}, false
	}

	c.recordHit()
	return entry, true
}

// Put stores a generation result with the default TTL. Replacement is
// last-writer-wins; concurrent writers for one fingerprint are prevented
// upstream by the inflight coordinator.
func (c *Cache) Put(fp fingerprint.Fingerprint, result, modelVersion string) Entry {
	return c.PutWithTTL(fp, result, modelVersion, c.ttl)
}

// PutWithTTL stores a generation result with a custom TTL.
func (c *Cache) PutWithTTL(fp fingerprint.Fingerprint, result, modelVersion string, ttl time.Duration) Entry {
	now := c.now()
	entry := Entry{
		Fingerprint:  fp,
		Result:       result,
		ModelVersion: modelVersion,
		CreatedAt:    now,
		ExpiresAt:    now.Add(ttl),
	}

	c.mu.Lock()
	if _, exists := c.entries[fp]; !exists && c.maxEntries > 0 && len(c.entries) >= c.maxEntries {
		c.evictOneLocked(now)
	}
	c.entries[fp] = entry
	total := int64(len(c.entries))
	c.mu.Unlock()

	c.setTotal(total)
	return entry
}

// Invalidate removes the entry for a fingerprint. No-op when absent.
func (c *Cache) Invalidate(fp fingerprint.Fingerprint) {
	c.mu.Lock()
	_, existed := c.entries[fp]
	delete(c.entries, fp)
	total := int64(len(c.entries))
	c.mu.Unlock()

	if existed {
		c.recordEviction()
	}
	c.setTotal(total)
}

// Sweep removes all expired entries and returns the eviction count.
func (c *Cache) Sweep() int64 {
	now := c.now()

	c.mu.Lock()
	evicted := int64(0)
	for fp, entry := range c.entries {
		if entry.Expired(now) {
			delete(c.entries, fp)
			evicted++
		}
	}
	total := int64(len(c.entries))
	c.mu.Unlock()

	c.statsMu.Lock()
	c.stats.Evictions += evicted
	c.stats.TotalKeys = total
	c.stats.LastSweep = now
	c.statsMu.Unlock()

	metrics.CacheEntries.Set(float64(total))
	for i := int64(0); i < evicted; i++ {
		metrics.CacheEvictions.Inc()
	}
	return evicted
}

// Len returns the current entry count, expired entries included.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// GetStats returns a snapshot of the cache counters.
func (c *Cache) GetStats() Stats {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()
	return c.stats
}

// evictOneLocked frees one slot: expired entries first, otherwise the entry
// closest to expiry. Caller holds c.mu.
func (c *Cache) evictOneLocked(now time.Time) {
	var victim fingerprint.Fingerprint
	var victimExpiry time.Time
	found := false

	for fp, entry := range c.entries {
		if entry.Expired(now) {
			victim = fp
			found = true
			break
		}
		if !found || entry.ExpiresAt.Before(victimExpiry) {
			victim, victimExpiry = fp, entry.ExpiresAt
			found = true
		}
	}

	if found {
		delete(c.entries, victim)
		c.recordEviction()
	}
}

func (c *Cache) recordHit() {
	c.statsMu.Lock()
	c.stats.Hits++
	c.statsMu.Unlock()
	metrics.CacheHits.Inc()
}

func (c *Cache) recordMiss() {
	c.statsMu.Lock()
	c.stats.Misses++
	c.statsMu.Unlock()
	metrics.CacheMisses.Inc()
}

func (c *Cache) recordEviction() {
	c.statsMu.Lock()
	c.stats.Evictions++
	c.statsMu.Unlock()
	metrics.CacheEvictions.Inc()
}

func (c *Cache) setTotal(total int64) {
	c.statsMu.Lock()
	c.stats.TotalKeys = total
	c.statsMu.Unlock()
	metrics.CacheEntries.Set(float64(total))
}
