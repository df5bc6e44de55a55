package cache

import (
	"sync"

	"github.com/flux-framework/flux-core-go/pkg/ferror"
)

// Stats summarizes a Cache's contents.
type Stats struct {
	Count      int
	Bytes      int64
	Incomplete int
	Dirty      int
}

// Cache is a blobref-keyed store of Entries.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*Entry
}

// New creates an empty Cache.
func New() *Cache {
	return &Cache{entries: make(map[string]*Entry)}
}

// Lookup returns the entry for ref, touching its last-use epoch.
func (c *Cache) Lookup(ref string, epoch int64) (*Entry, bool) {
	c.mu.Lock()
	e, ok := c.entries[ref]
	c.mu.Unlock()
	if ok {
		e.touch(epoch)
	}
	return e, ok
}

// Insert adds entry keyed by its own blobref. A duplicate insert
// returns the pre-existing entry rather than replacing it.
func (c *Cache) Insert(entry *Entry) *Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.entries[entry.Ref()]; ok {
		return existing
	}
	c.entries[entry.Ref()] = entry
	return entry
}

// Remove deletes ref if its entry is neither dirty nor waited-on.
// Returns true on success.
func (c *Cache) Remove(ref string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[ref]
	if !ok {
		return true
	}
	if e.IsDirty() {
		return false
	}
	if e.waitValid.Len() > 0 || e.waitNotDirty.Len() > 0 {
		return false
	}
	delete(c.entries, ref)
	return true
}

// Expire removes entries whose last-use epoch is at most now-threshold
// and which are valid, not dirty, and unwaited.
func (c *Cache) Expire(now, threshold int64) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for ref, e := range c.entries {
		if e.LastUse() > now-threshold {
			continue
		}
		if !e.IsValid() || e.IsDirty() {
			continue
		}
		if e.waitValid.Len() > 0 || e.waitNotDirty.Len() > 0 {
			continue
		}
		delete(c.entries, ref)
		removed++
	}
	return removed
}

// Stats computes aggregate statistics over the cache.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	var s Stats
	s.Count = len(c.entries)
	for _, e := range c.entries {
		if !e.IsValid() {
			s.Incomplete++
			continue
		}
		if e.IsDirty() {
			s.Dirty++
		}
		if data, ok := e.Bytes(); ok {
			s.Bytes += int64(len(data))
		}
	}
	return s
}

// LookupOrCreate returns the existing entry for ref, or inserts and
// returns a new empty one, touching its epoch either way. This is the
// usual entry point for the Commit Engine's LOAD_ROOT/APPLY_OPS steps.
func (c *Cache) LookupOrCreate(ref string, epoch int64) *Entry {
	c.mu.Lock()
	e, ok := c.entries[ref]
	if !ok {
		e = NewEntry(ref)
		c.entries[ref] = e
	}
	c.mu.Unlock()
	e.touch(epoch)
	return e
}

// ContentStore is the external content-addressed store contract:
// idempotent put, get-or-not-found.
type ContentStore interface {
	Put(ref string, data []byte) error
	Get(ref string) ([]byte, error)
}

// ErrNotFound is returned by a ContentStore.Get for a missing ref.
var ErrNotFound = ferror.New(ferror.NotFound, "blobref not found in content store")
