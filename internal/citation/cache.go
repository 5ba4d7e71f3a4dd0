package citation

import "sync"

// Result is the verification outcome for one citation. Immutable after
// insertion into the cache.
type Result struct {
	Exists bool
	URL    string
	Reason string
}

// Cache stores verification results keyed by normalized citation. One lock,
// short operations; shared across every verification path in the process.
type Cache struct {
	mu      sync.Mutex
	entries map[string]Result
}

// NewCache returns an empty cache.
func NewCache() *Cache {
	return &Cache{entries: make(map[string]Result)}
}

// defaultCache is the process-wide cache used when a Verifier is not given
// its own.
var defaultCache = NewCache()

// Get returns the cached result for a normalized citation.
func (c *Cache) Get(normalized string) (Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.entries[normalized]
	return r, ok
}

// Put records a verification outcome.
func (c *Cache) Put(normalized string, r Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[normalized] = r
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Clear empties the cache. The only way entries are ever removed.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]Result)
}

// ClearDefaultCache resets the process-wide cache, for tests and long-lived
// callers that want a fresh verification pass.
func ClearDefaultCache() {
	defaultCache.Clear()
}
