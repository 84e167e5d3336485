package evaluator

import (
	"crypto/sha256"
	"fmt"
	"sync"
	"time"
)

// VerdictCache caches verdicts keyed by a hash of the prompt/response pair.
// Re-running a prompt that a model answers verbatim skips the classifier.
//
// Entries expire after the TTL so a changed classifier eventually gets a
// second look. A TTL of 0 disables caching; a nil cache is valid and empty.
type VerdictCache struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry
	ttl     time.Duration
	now     func() time.Time
}

type cacheEntry struct {
	jailbroken bool
	cachedAt   time.Time
}

// NewVerdictCache creates a cache with the given TTL.
func NewVerdictCache(ttl time.Duration) *VerdictCache {
	return &VerdictCache{
		entries: make(map[string]cacheEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Lookup returns the cached verdict for a prompt/response pair.
func (c *VerdictCache) Lookup(prompt, response string) (jailbroken, ok bool) {
	if c == nil || c.ttl <= 0 {
		return false, false
	}

	c.mu.RLock()
	entry, found := c.entries[hashPair(prompt, response)]
	c.mu.RUnlock()

	if !found || c.now().Sub(entry.cachedAt) > c.ttl {
		return false, false
	}
	return entry.jailbroken, true
}

// Store records a verdict for a prompt/response pair.
func (c *VerdictCache) Store(prompt, response string, jailbroken bool) {
	if c == nil || c.ttl <= 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[hashPair(prompt, response)] = cacheEntry{jailbroken: jailbroken, cachedAt: c.now()}
}

// Len returns the number of entries, expired ones included.
func (c *VerdictCache) Len() int {
	if c == nil {
		return 0
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Prune drops expired entries.
func (c *VerdictCache) Prune() {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	for k, e := range c.entries {
		if now.Sub(e.cachedAt) > c.ttl {
			delete(c.entries, k)
		}
	}
}

// hashPair returns a hex-encoded SHA256 of the length-prefixed pair, so
// ("ab", "c") and ("a", "bc") never collide.
func hashPair(prompt, response string) string {
	h := sha256.New()
	fmt.Fprintf(h, "%d:%s", len(prompt), prompt)
	h.Write([]byte(response))
	return fmt.Sprintf("%x", h.Sum(nil))
}
