package application

import (
	"sync"
	"time"
)

const locationListKey = "*"

// locationCache keeps recently fetched locations so picker screens and
// location restore do not refetch the same list on every focus.
type locationCache struct {
	mu         sync.RWMutex
	now        func() time.Time
	ttl        time.Duration
	maxEntries int
	entries    map[string]locationCacheEntry
}

type locationCacheEntry struct {
	locations []Location
	expiresAt time.Time
}

func newLocationCache(ttl time.Duration, maxEntries int, now func() time.Time) *locationCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if maxEntries <= 0 {
		maxEntries = 64
	}
	if now == nil {
		now = time.Now
	}
	return &locationCache{
		now:        now,
		ttl:        ttl,
		maxEntries: maxEntries,
		entries:    make(map[string]locationCacheEntry),
	}
}

func (c *locationCache) list() ([]Location, bool) {
	return c.get(locationListKey)
}

func (c *locationCache) storeList(locations []Location) {
	c.store(locationListKey, locations)
	for _, loc := range locations {
		c.store("id:"+loc.ID, []Location{loc})
	}
}

func (c *locationCache) location(id string) (Location, bool) {
	cached, ok := c.get("id:" + id)
	if !ok || len(cached) == 0 {
		return Location{}, false
	}
	return cached[0], true
}

func (c *locationCache) storeLocation(loc Location) {
	c.store("id:"+loc.ID, []Location{loc})
}

func (c *locationCache) get(key string) ([]Location, bool) {
	if c == nil {
		return nil, false
	}
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if c.now().After(entry.expiresAt) {
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
		return nil, false
	}
	return cloneLocations(entry.locations), true
}

func (c *locationCache) store(key string, locations []Location) {
	if c == nil {
		return
	}
	cloned := cloneLocations(locations)
	expiry := c.now().Add(c.ttl)

	c.mu.Lock()
	defer c.mu.Unlock()

	c.cleanupLocked()
	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.maxEntries {
		c.evictOneLocked()
	}
	c.entries[key] = locationCacheEntry{locations: cloned, expiresAt: expiry}
}

func (c *locationCache) invalidate() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.entries = make(map[string]locationCacheEntry)
	c.mu.Unlock()
}

func (c *locationCache) cleanupLocked() {
	now := c.now()
	for key, entry := range c.entries {
		if now.After(entry.expiresAt) {
			delete(c.entries, key)
		}
	}
}

func (c *locationCache) evictOneLocked() {
	for key := range c.entries {
		delete(c.entries, key)
		return
	}
}

func cloneLocations(locations []Location) []Location {
	if len(locations) == 0 {
		return nil
	}
	out := make([]Location, len(locations))
	copy(out, locations)
	return out
}
