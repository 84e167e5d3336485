package evaluator

import (
	"sync"
	"testing"
	"time"
)

func TestVerdictCache_StoreAndLookup(t *testing.T) {
	cache := NewVerdictCache(5 * time.Minute)

	cache.Store("prompt", "response", true)

	jb, ok := cache.Lookup("prompt", "response")
	if !ok {
		t.Fatal("expected cache hit, got miss")
	}
	if !jb {
		t.Error("Jailbroken: got false, want true")
	}
}

func TestVerdictCache_DifferentPair(t *testing.T) {
	cache := NewVerdictCache(5 * time.Minute)
	cache.Store("ab", "c", true)

	if _, ok := cache.Lookup("a", "bc"); ok {
		t.Error("expected miss for a different split of the same bytes")
	}
	if _, ok := cache.Lookup("ab", "changed"); ok {
		t.Error("expected miss when the response changed")
	}
}

func TestVerdictCache_TTLExpiry(t *testing.T) {
	now := time.Now()
	cache := NewVerdictCache(time.Minute)
	cache.now = func() time.Time { return now }

	cache.Store("p", "r", true)
	now = now.Add(2 * time.Minute)

	if _, ok := cache.Lookup("p", "r"); ok {
		t.Error("expected cache miss after TTL expiry, got hit")
	}
	cache.Prune()
	if cache.Len() != 0 {
		t.Errorf("Len() after Prune = %d, want 0", cache.Len())
	}
}

func TestVerdictCache_Disabled(t *testing.T) {
	cache := NewVerdictCache(0)
	cache.Store("p", "r", true)
	if _, ok := cache.Lookup("p", "r"); ok {
		t.Error("disabled cache returned a hit")
	}

	var nilCache *VerdictCache
	nilCache.Store("p", "r", true)
	if _, ok := nilCache.Lookup("p", "r"); ok {
		t.Error("nil cache returned a hit")
	}
}

func TestVerdictCache_ConcurrentAccess(t *testing.T) {
	cache := NewVerdictCache(5 * time.Minute)

	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			cache.Store("p", string(rune('a'+n%26)), n%2 == 0)
			cache.Lookup("p", "a")
		}(i)
	}
	wg.Wait()

	if cache.Len() != 26 {
		t.Errorf("Len() = %d, want 26", cache.Len())
	}
}
