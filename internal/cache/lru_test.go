package cache

import (
	"testing"
	"time"
)

func TestLRU_GetSet(t *testing.T) {
	c := NewLRU[int](2, time.Minute)
	c.Set("a", 1)
	c.Set("b", 2)

	if v, ok := c.Get("a"); !ok || v != 1 {
		t.Fatalf("expected a=1, got %d %v", v, ok)
	}

	// "b" is now least recently used.
	c.Set("c", 3)
	if _, ok := c.Get("b"); ok {
		t.Errorf("expected b to be evicted")
	}
	if c.Len() != 2 {
		t.Errorf("expected 2 entries, got %d", c.Len())
	}

	c.Set("a", 10)
	if v, _ := c.Get("a"); v != 10 {
		t.Errorf("expected overwrite, got %d", v)
	}
}

func TestLRU_Expiry(t *testing.T) {
	now := time.Date(2025, 6, 19, 12, 0, 0, 0, time.UTC)
	c := NewLRU[string](4, 30*time.Second)
	c.now = func() time.Time { return now }

	c.Set("k", "v")
	now = now.Add(30 * time.Second)
	if _, ok := c.Get("k"); !ok {
		t.Fatalf("entry should live for exactly the ttl")
	}
	now = now.Add(time.Second)
	if _, ok := c.Get("k"); ok {
		t.Fatalf("entry should have expired")
	}
	if c.Len() != 0 {
		t.Errorf("expired entry should be removed, len=%d", c.Len())
	}
}

func TestLRU_Purge(t *testing.T) {
	c := NewLRU[int](4, time.Minute)
	c.Set("a", 1)
	c.Set("b", 2)
	c.Purge()

	if c.Len() != 0 {
		t.Fatalf("expected empty cache, got %d", c.Len())
	}
	c.Set("a", 3)
	if v, ok := c.Get("a"); !ok || v != 3 {
		t.Fatalf("cache unusable after purge")
	}
}
