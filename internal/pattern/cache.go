package pattern

import (
	"sync"
	"time"
)

// ttl is how long a verification result is memoised, per spec §4.7.
const ttl = 5 * time.Minute

// cacheEntry is one memoised verification result.
type cacheEntry struct {
	compliant bool
	message   string
	severity  string
	fileMtime time.Time
	expiresAt time.Time
}

// verificationCache is an in-process, mutex-guarded memoization table
// for pattern verification results.
//
// The teacher declares github.com/mrz1836/go-cache in go.mod but never
// imports it; that package is a Redis-backed client requiring a live
// network connection, which spec.md's Non-goals explicitly excludes
// ("any network I/O"). This cache is deliberately a plain in-memory map
// instead — see DESIGN.md for the full rejection note.
type verificationCache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
}

func newVerificationCache() *verificationCache {
	return &verificationCache{entries: make(map[string]cacheEntry)}
}

// get returns the memoised result for id if present, unexpired, and
// computed against the same fileMtime. The mtime check invalidates the
// entry the instant patterns.json changes, even before ttl elapses.
func (c *verificationCache) get(id string, fileMtime time.Time, now time.Time) (cacheEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[id]
	if !ok {
		return cacheEntry{}, false
	}
	if !e.fileMtime.Equal(fileMtime) || now.After(e.expiresAt) {
		return cacheEntry{}, false
	}
	return e, true
}

func (c *verificationCache) set(id string, fileMtime time.Time, now time.Time, compliant bool, message, severity string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[id] = cacheEntry{
		compliant: compliant,
		message:   message,
		severity:  severity,
		fileMtime: fileMtime,
		expiresAt: now.Add(ttl),
	}
}

// invalidateAll drops every memoised result; Provider.Load calls it
// each time it (re)reads the patterns file.
func (c *verificationCache) invalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]cacheEntry)
}
