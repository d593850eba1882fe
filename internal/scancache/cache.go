// Package scancache keeps recently derived annotation lists per file so that
// validation passes do not re-read files that were just scanned.
package scancache

import (
	"sync"
	"time"

	"github.com/spetr/doit/pkg/types"
)

// DefaultTTL is how long an entry stays valid.
const DefaultTTL = 5 * time.Second

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

type entry struct {
	annotations []types.Annotation
	storedAt    time.Time
}

// Cache maps a normalized file path to the annotations last derived from it.
type Cache struct {
	ttl   time.Duration
	clock Clock

	mu      sync.Mutex
	entries map[string]entry
}

// New creates a cache with the given TTL. A TTL of zero or less disables caching.
func New(ttl time.Duration) *Cache {
	return NewWithClock(ttl, realClock{})
}

// NewWithClock creates a cache with a custom clock (for testing).
func NewWithClock(ttl time.Duration, clock Clock) *Cache {
	return &Cache{
		ttl:     ttl,
		clock:   clock,
		entries: make(map[string]entry),
	}
}

// Get returns the cached annotations for path. Entries older than the TTL are
// dropped and reported as absent.
func (c *Cache) Get(path string) ([]types.Annotation, bool) {
	if c.ttl <= 0 {
		return nil, false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[path]
	if !ok {
		return nil, false
	}
	if c.clock.Now().Sub(e.storedAt) >= c.ttl {
		delete(c.entries, path)
		return nil, false
	}
	return e.annotations, true
}

// Put stores annotations for path, replacing any previous entry.
func (c *Cache) Put(path string, annotations []types.Annotation) {
	if c.ttl <= 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[path] = entry{annotations: annotations, storedAt: c.clock.Now()}
}

// Invalidate removes the entry for path.
func (c *Cache) Invalidate(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, path)
}

// Clear removes all entries.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]entry)
}

// Len returns the number of stored entries, expired or not.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
