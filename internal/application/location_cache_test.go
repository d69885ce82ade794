package application

import (
	"testing"
	"time"
)

func TestLocationCacheStoresAndReturnsCopies(t *testing.T) {
	current := time.Date(2025, 1, 16, 9, 0, 0, 0, time.UTC)
	cache := newLocationCache(time.Minute, 8, func() time.Time { return current })

	original := []Location{{ID: "loc-1", Name: "First floor"}, {ID: "loc-2", Name: "Second floor"}}
	cache.storeList(original)

	original[0].Name = "mutated"

	cached, ok := cache.list()
	if !ok {
		t.Fatalf("expected cache hit")
	}
	if cached[0].Name != "First floor" {
		t.Fatalf("expected cached name to remain unchanged, got %s", cached[0].Name)
	}

	cached[0].Name = "changed"
	again, _ := cache.list()
	if again[0].Name != "First floor" {
		t.Fatalf("expected cache to return independent copy, got %s", again[0].Name)
	}

	loc, ok := cache.location("loc-2")
	if !ok || loc.Name != "Second floor" {
		t.Fatalf("expected list entries to be addressable by id, got %#v", loc)
	}
}

func TestLocationCacheExpiresEntries(t *testing.T) {
	current := time.Date(2025, 1, 16, 9, 0, 0, 0, time.UTC)
	cache := newLocationCache(time.Second, 8, func() time.Time { return current })

	cache.storeLocation(Location{ID: "loc-1"})
	if _, ok := cache.location("loc-1"); !ok {
		t.Fatalf("expected cache hit before expiry")
	}

	current = current.Add(2 * time.Second)
	if _, ok := cache.location("loc-1"); ok {
		t.Fatalf("expected cache entry to expire")
	}
}

func TestLocationCacheBoundsEntries(t *testing.T) {
	cache := newLocationCache(time.Minute, 2, time.Now)
	cache.storeLocation(Location{ID: "a"})
	cache.storeLocation(Location{ID: "b"})
	cache.storeLocation(Location{ID: "c"})

	if got := len(cache.entries); got != 2 {
		t.Fatalf("expected eviction to keep 2 entries, got %d", got)
	}
}

func TestLocationCacheInvalidate(t *testing.T) {
	cache := newLocationCache(time.Minute, 4, time.Now)
	cache.storeList([]Location{{ID: "loc-1"}})
	cache.invalidate()
	if _, ok := cache.list(); ok {
		t.Fatalf("expected cache to be empty after invalidation")
	}
}
