// Package cache implements the result cache of spec.md §4.F: query
// results keyed by a plan fingerprint, bounded by both entry count and
// total byte size, invalidated per table when the table's snapshot root
// advances past the value it was cached against.
package cache

import (
	"sync"

	"github.com/cespare/xxhash/v2"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/strataql/strata/internal/row"
)

// Fingerprint identifies one (plan, parameters) pair. Not a security
// boundary — a fast non-cryptographic hash is the right tool, unlike
// the SHA-256 content hashes the stripe and timeline packages use.
type Fingerprint uint64

// NewFingerprint hashes a canonical plan string together with its bound
// parameter values.
func NewFingerprint(planText string, params []row.Value) Fingerprint {
	h := xxhash.New()
	h.WriteString(planText) //nolint:errcheck // xxhash.Digest.Write never errors
	for _, p := range params {
		h.Write(row.Bytes(p)) //nolint:errcheck
		h.Write([]byte{0x1f})  //nolint:errcheck
	}
	return Fingerprint(h.Sum64())
}

// Entry is one cached result set plus the table snapshot state it was
// computed against.
type Entry struct {
	Rows         []row.Row
	Dependencies map[string]string // table name -> snapshot hash as of computation
	SizeBytes    int64
}

// Cache is a bounded LRU over query fingerprints.
type Cache struct {
	mu       sync.Mutex
	lru      *lru.Cache[Fingerprint, Entry]
	maxBytes int64
	curBytes int64
}

// New builds a cache bounded by both maxEntries and maxBytes.
func New(maxEntries int, maxBytes int64) (*Cache, error) {
	c := &Cache{maxBytes: maxBytes}
	l, err := lru.NewWithEvict[Fingerprint, Entry](maxEntries, func(_ Fingerprint, v Entry) {
		c.curBytes -= v.SizeBytes
	})
	if err != nil {
		return nil, err
	}
	c.lru = l
	return c, nil
}

// Get returns the cached entry for fp if present and every dependency
// table's current snapshot hash (in current) still matches what the
// entry was computed against; otherwise it evicts the stale entry (if
// any) and reports a miss.
func (c *Cache) Get(fp Fingerprint, current map[string]string) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.lru.Get(fp)
	if !ok {
		return Entry{}, false
	}
	for table, hash := range e.Dependencies {
		if current[table] != hash {
			c.lru.Remove(fp)
			return Entry{}, false
		}
	}
	return e, true
}

// Put inserts or replaces the cached entry for fp, evicting the oldest
// entries if the byte budget would otherwise be exceeded.
func (c *Cache) Put(fp Fingerprint, e Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if old, ok := c.lru.Peek(fp); ok {
		c.curBytes -= old.SizeBytes
	}
	c.curBytes += e.SizeBytes
	c.lru.Add(fp, e)
	for c.maxBytes > 0 && c.curBytes > c.maxBytes && c.lru.Len() > 0 {
		c.lru.RemoveOldest()
	}
}

// InvalidateTable drops every cached entry that depends on table,
// called after a write commits a new snapshot for it.
func (c *Cache) InvalidateTable(table string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, fp := range c.lru.Keys() {
		e, ok := c.lru.Peek(fp)
		if !ok {
			continue
		}
		if _, affected := e.Dependencies[table]; affected {
			c.lru.Remove(fp)
		}
	}
}

// Len reports the current number of cached entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// Purge empties the cache.
func (c *Cache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Purge()
}
