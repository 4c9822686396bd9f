package cache

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestSimpleCache_SetGet_NoTTL(t *testing.T) {
	c := NewSimpleCache[string, int](Options{ConcurrencySafe: false})
	c.Set("a", 1, 0)
	if v, ok := c.Get("a"); !ok || v != 1 {
		t.Fatalf("expected hit with value 1, got ok=%v v=%v", ok, v)
	}
	if !c.Has("a") {
		t.Fatalf("expected Has to be true")
	}
	if c.Len() != 1 {
		t.Fatalf("expected Len=1, got %d", c.Len())
	}
}

func TestSimpleCache_TTL_Expiry(t *testing.T) {
	base := time.Now()
	c := NewSimpleCache[string, string](Options{
		ConcurrencySafe: true,
		Clock:           func() time.Time { return base },
	})

	c.Set("k", "v", time.Second)
	c.Set("forever", "v", 0)
	if v, ok := c.Get("k"); !ok || v != "v" {
		t.Fatalf("expected hit before expiry")
	}

	// advance time beyond TTL
	base = base.Add(2 * time.Second)
	if _, ok := c.Get("k"); ok {
		t.Fatalf("expected miss after expiry")
	}
	if c.Has("k") {
		t.Fatalf("expected Has=false after expiry")
	}
	if keys := c.Keys(); len(keys) != 1 || keys[0] != "forever" {
		t.Fatalf("expected only the non-expiring key, got %v", keys)
	}
	purged := c.PurgeExpired()
	if len(purged) != 1 || purged[0] != "k" {
		t.Fatalf("expected k to be purged, got %v", purged)
	}
	if c.Len() != 1 {
		t.Fatalf("expected Len=1 after purge, got %d", c.Len())
	}
}

func TestSimpleCache_Add(t *testing.T) {
	base := time.Now()
	c := NewSimpleCache[string, int](Options{
		ConcurrencySafe: true,
		Clock:           func() time.Time { return base },
	})

	if !c.Add("evt", 1, time.Minute) {
		t.Fatalf("expected first Add to store")
	}
	if c.Add("evt", 2, time.Minute) {
		t.Fatalf("expected second Add to be rejected")
	}
	if v, _ := c.Get("evt"); v != 1 {
		t.Fatalf("expected original value to survive, got %d", v)
	}

	base = base.Add(2 * time.Minute)
	if !c.Add("evt", 3, time.Minute) {
		t.Fatalf("expected Add to replace an expired entry")
	}
}

func TestSimpleCache_Delete(t *testing.T) {
	c := NewSimpleCache[int, int](Options{ConcurrencySafe: true})
	c.Set(1, 10, 0)
	c.Set(2, 20, 0)
	c.Delete(1)
	if _, ok := c.Get(1); ok {
		t.Fatalf("expected key 1 to be deleted")
	}
	if c.Len() != 1 {
		t.Fatalf("expected Len=1, got %d", c.Len())
	}
}

func TestSimpleCache_ConcurrentAddIsExclusive(t *testing.T) {
	c := NewSimpleCache[string, struct{}](Options{ConcurrencySafe: true})
	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if c.Add("same", struct{}{}, time.Minute) {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	if wins.Load() != 1 {
		t.Fatalf("expected exactly one winner, got %d", wins.Load())
	}
}
