package cache

import (
	"testing"
	"time"
)

func TestLRUCacheGetSet(t *testing.T) {
	c := NewLRUCache[string](2, time.Minute)

	c.Set("a", "1")
	v, ok := c.Get("a")
	if !ok || v != "1" {
		t.Fatalf("Get(a) = %q, %v, want 1, true", v, ok)
	}

	if _, ok := c.Get("missing"); ok {
		t.Error("Get(missing) should report a miss")
	}
}

func TestLRUCacheEvictsOldest(t *testing.T) {
	c := NewLRUCache[int](2, time.Minute)

	c.Set("a", 1)
	c.Set("b", 2)
	c.Get("a") // a is now most recently used
	c.Set("c", 3)

	if _, ok := c.Get("b"); ok {
		t.Error("b should have been evicted")
	}
	if _, ok := c.Get("a"); !ok {
		t.Error("a should have survived eviction")
	}
	if c.Size() != 2 {
		t.Errorf("Size() = %d, want 2", c.Size())
	}
}

func TestLRUCacheExpiry(t *testing.T) {
	c := NewLRUCache[int](10, 10*time.Millisecond)

	c.Set("a", 1)
	time.Sleep(20 * time.Millisecond)

	if _, ok := c.Get("a"); ok {
		t.Error("expired entry should not be returned")
	}
	if c.Size() != 0 {
		t.Errorf("Size() after expired Get = %d, want 0", c.Size())
	}
}

func TestLRUCacheCleanExpired(t *testing.T) {
	c := NewLRUCache[int](10, 10*time.Millisecond)

	c.Set("a", 1)
	c.Set("b", 2)
	time.Sleep(20 * time.Millisecond)
	c.Set("c", 3)

	if removed := c.CleanExpired(); removed != 2 {
		t.Errorf("CleanExpired() = %d, want 2", removed)
	}
	if c.Size() != 1 {
		t.Errorf("Size() = %d, want 1", c.Size())
	}
}

func TestLRUCacheDelete(t *testing.T) {
	c := NewLRUCache[int](10, time.Minute)

	c.Set("a", 1)
	c.Delete("a")
	c.Delete("a") // idempotent

	if _, ok := c.Get("a"); ok {
		t.Error("deleted entry should be gone")
	}
}

func TestLRUCacheStats(t *testing.T) {
	c := NewLRUCache[int](10, time.Minute)

	c.Set("a", 1)
	c.Get("a")
	c.Get("a")
	c.Get("missing")

	hits, misses := c.Stats()
	if hits != 2 || misses != 1 {
		t.Errorf("Stats() = %d hits, %d misses, want 2, 1", hits, misses)
	}
}
