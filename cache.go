package keel

import (
	"sync"

	"go.uber.org/multierr"
)

// cacheEntry holds one live cached instance together with its teardown
// hook. Entries are owned exclusively by the node that created them.
type cacheEntry struct {
	instance any
	unload   func(any) error
	once     sync.Once
}

// release invokes the unload hook exactly once, even when teardown races
// with eviction or replacement. Subsequent calls are no-ops.
func (e *cacheEntry) release() error {
	var err error

	e.once.Do(func() {
		if e.unload != nil {
			err = e.unload(e.instance)
		}
	})

	return err
}

// cache is the per-node mutable mapping from cacheKey to live entry.
// All mutation happens under the tree lock, so the cache itself carries
// no locking; the per-entry once is what keeps unload exactly-once when
// an already-released entry is still referenced elsewhere.
type cache struct {
	entries map[cacheKey]*cacheEntry
}

func newCache() *cache {
	return &cache{entries: make(map[cacheKey]*cacheEntry)}
}

func (c *cache) get(key cacheKey) (*cacheEntry, bool) {
	entry, ok := c.entries[key]

	return entry, ok
}

// set installs an entry, first unloading any entry already at that key
// so no instance ever leaks silently.
func (c *cache) set(key cacheKey, entry *cacheEntry) error {
	var err error
	if existing, ok := c.entries[key]; ok {
		err = existing.release()
	}

	c.entries[key] = entry

	return err
}

// remove unloads and drops the entry at key, if any.
func (c *cache) remove(key cacheKey) error {
	entry, ok := c.entries[key]
	if !ok {
		return nil
	}

	delete(c.entries, key)

	return entry.release()
}

// clear unloads and drops every entry; used at node teardown. Unload
// failures do not stop the sweep, they are aggregated.
func (c *cache) clear() error {
	var errs error

	for key, entry := range c.entries {
		errs = multierr.Append(errs, entry.release())
		delete(c.entries, key)
	}

	return errs
}

func (c *cache) len() int {
	return len(c.entries)
}
