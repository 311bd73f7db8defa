package keel

// Patch applies an explicit mutation closure to the live cached
// instance of feature F for the given context, loading (and caching) it
// first if it has not been resolved yet. The mutation is applied in
// place and written back to the owning cache slot, so later resolutions
// observe it.
//
// Patch exists for tests: swap out collaborators or tweak state on an
// already-wired feature without re-declaring the tree. Only cacheable
// features can be patched; disposable ones have no slot to patch.
func Patch[F any](c *Container, ctx Context, mutate func(*F)) error {
	feature := FeatureOf[F]()
	key := newCacheKey(feature, ctx)

	c.tree.lock.Lock()
	defer c.tree.lock.Unlock()

	if c.closed {
		return errContainerClosed(c.scope)
	}

	if entry, ok := findEntry(c, key); ok {
		return patchEntry(c, entry, mutate)
	}

	// Not loaded yet. Resolve caches it on the owning node; the lock is
	// reentrant, so the nested call is safe.
	if _, err := c.Resolve(feature, ctx); err != nil {
		return err
	}

	if entry, ok := findEntry(c, key); ok {
		return patchEntry(c, entry, mutate)
	}

	return errInvalidRegistration(feature, "feature is not cacheable, nothing to patch")
}

// findEntry locates the cache slot along the ancestor chain. Caller
// holds the tree lock.
func findEntry(c *Container, key cacheKey) (*cacheEntry, bool) {
	for n := c; n != nil; n = n.parent {
		if entry, ok := n.cache.get(key); ok {
			return entry, true
		}
	}

	return nil, false
}

func patchEntry[F any](c *Container, entry *cacheEntry, mutate func(*F)) error {
	typed, ok := entry.instance.(F)
	if !ok {
		err := errTypeMismatch(FeatureOf[F](), entry.instance)
		if c.tree.debug {
			panic(err)
		}

		return err
	}

	if mutate != nil {
		mutate(&typed)
	}

	entry.instance = typed

	return nil
}
