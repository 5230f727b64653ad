package bus

import (
	"sync"
	"time"
)

// DedupeCache is a TTL-based cache used to suppress repeat notifications for
// the same logical event (e.g. a job ID that was already summarized).
//
// Seen() returns true if the key was recorded within the TTL window.
// Expired entries are pruned lazily on each call.
type DedupeCache struct {
	mu      sync.Mutex
	entries map[string]int64 // key → unix millis
	ttl     time.Duration
	maxSize int
}

// NewDedupeCache creates a dedupe cache. maxSize bounds memory; when
// exceeded, the oldest entries are evicted.
func NewDedupeCache(ttl time.Duration, maxSize int) *DedupeCache {
	return &DedupeCache{
		entries: make(map[string]int64, 64),
		ttl:     ttl,
		maxSize: maxSize,
	}
}

// Seen reports whether key was already recorded within the TTL window,
// recording it if not.
func (d *DedupeCache) Seen(key string) bool {
	now := time.Now().UnixMilli()
	cutoff := now - d.ttl.Milliseconds()

	d.mu.Lock()
	defer d.mu.Unlock()

	if ts, ok := d.entries[key]; ok && ts >= cutoff {
		return true
	}

	d.cleanup(cutoff)
	d.entries[key] = now
	return false
}

// cleanup removes expired entries and evicts oldest if over maxSize.
// Must be called with d.mu held.
func (d *DedupeCache) cleanup(cutoff int64) {
	for k, ts := range d.entries {
		if ts < cutoff {
			delete(d.entries, k)
		}
	}

	for len(d.entries) >= d.maxSize && d.maxSize > 0 {
		var oldestKey string
		var oldestTS int64 = 1<<63 - 1
		for k, ts := range d.entries {
			if ts < oldestTS {
				oldestKey, oldestTS = k, ts
			}
		}
		delete(d.entries, oldestKey)
	}
}
