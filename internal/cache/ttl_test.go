package cache

import (
	"testing"
	"time"
)

func TestTTLCacheGetSet(t *testing.T) {
	c := NewTTL[string, int](time.Minute, 10)

	if _, ok := c.Get("missing"); ok {
		t.Error("expected miss on empty cache")
	}

	c.Set("a", 1)
	v, ok := c.Get("a")
	if !ok || v != 1 {
		t.Errorf("Get(a) = %v, %v; want 1, true", v, ok)
	}
}

func TestTTLCacheExpiry(t *testing.T) {
	c := NewTTL[string, int](50*time.Millisecond, 10)
	now := time.Now()
	c.now = func() time.Time { return now }

	c.Set("a", 1)
	if _, ok := c.Get("a"); !ok {
		t.Fatal("expected hit before expiry")
	}

	now = now.Add(100 * time.Millisecond)
	if _, ok := c.Get("a"); ok {
		t.Error("expected miss after expiry")
	}
	if c.Len() != 0 {
		t.Errorf("expired entry not removed, len=%d", c.Len())
	}
}

func TestTTLCacheEvictsOldest(t *testing.T) {
	c := NewTTL[string, int](time.Minute, 3)

	c.Set("a", 1)
	c.Set("b", 2)
	c.Set("c", 3)
	c.Set("d", 4) // evicts a

	if _, ok := c.Get("a"); ok {
		t.Error("oldest entry should have been evicted")
	}
	for _, k := range []string{"b", "c", "d"} {
		if _, ok := c.Get(k); !ok {
			t.Errorf("entry %q should survive eviction", k)
		}
	}
}

func TestTTLCacheResetKeepsPosition(t *testing.T) {
	c := NewTTL[string, int](time.Minute, 2)

	c.Set("a", 1)
	c.Set("b", 2)
	c.Set("a", 10) // refresh, not reinsert
	c.Set("c", 3)  // evicts a (still oldest)

	if _, ok := c.Get("a"); ok {
		t.Error("refreshed entry keeps insertion order and should be evicted first")
	}
	if v, _ := c.Get("b"); v != 2 {
		t.Errorf("Get(b) = %d, want 2", v)
	}
}

func TestTTLCacheInvalidateAndClear(t *testing.T) {
	c := NewTTL[string, int](time.Minute, 10)

	c.Set("a", 1)
	c.Set("b", 2)

	if !c.Invalidate("a") {
		t.Error("Invalidate(a) should report true")
	}
	if c.Invalidate("a") {
		t.Error("second Invalidate(a) should report false")
	}

	if n := c.Clear(); n != 1 {
		t.Errorf("Clear() = %d, want 1", n)
	}
	if c.Len() != 0 {
		t.Errorf("Len() = %d after Clear, want 0", c.Len())
	}
}

func TestTTLCacheStats(t *testing.T) {
	c := NewTTL[string, int](time.Minute, 5)

	c.Set("a", 1)
	c.Get("a")
	c.Get("a")
	c.Get("missing")

	s := c.Stats()
	if s.Hits != 2 || s.Misses != 1 {
		t.Errorf("stats = %+v, want 2 hits 1 miss", s)
	}
	if s.HitRate < 0.66 || s.HitRate > 0.67 {
		t.Errorf("hit rate = %v, want ~0.667", s.HitRate)
	}
	if s.Size != 1 || s.MaxSize != 5 {
		t.Errorf("size = %d/%d, want 1/5", s.Size, s.MaxSize)
	}
}

func TestFingerprintDeterministic(t *testing.T) {
	a := Fingerprint("recall", "topic", []string{"x", "y"}, 5)
	b := Fingerprint("recall", "topic", []string{"x", "y"}, 5)
	if a != b {
		t.Error("identical inputs should produce identical fingerprints")
	}

	c := Fingerprint("recall", "topic", []string{"y", "x"}, 5)
	if a == c {
		t.Error("different slice order should produce a different fingerprint")
	}

	m1 := Fingerprint("recall", map[string]string{"k1": "v1", "k2": "v2"})
	m2 := Fingerprint("recall", map[string]string{"k2": "v2", "k1": "v1"})
	if m1 != m2 {
		t.Error("map ordering must not affect the fingerprint")
	}
}
