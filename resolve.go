package keel

import (
	"errors"

	"go.uber.org/zap"
)

// Resolve resolves a feature by runtime identity. Most callers use the
// generic Resolve helper instead, which adds the typed downcast.
//
// The node consults its own cache, then its own registry, then each
// ancestor in turn the same way. A locally registered loader therefore
// always shadows an ancestor's, even when the ancestor already holds a
// cached instance. Cacheable instances are cached on the node that owns
// the registration that satisfied the request, never on the requesting
// branch, so descendants transparently share one instance whose
// lifetime is bound to the owning node.
func (c *Container) Resolve(feature FeatureID, ctx Context) (any, error) {
	if !feature.valid() {
		return nil, NewError(CodeInternalInconsistency, "invalid feature identity", nil)
	}

	c.tree.lock.Lock()
	defer c.tree.lock.Unlock()

	if c.closed {
		return nil, errContainerClosed(c.scope)
	}

	key := newCacheKey(feature, ctx)
	for n := c; n != nil; n = n.parent {
		if n.closed {
			return nil, errContainerClosed(n.scope)
		}

		if entry, ok := n.cache.get(key); ok {
			return entry.instance, nil
		}

		if l, ok := n.registry.lookup(feature, ctx); ok {
			return n.loadThrough(l, key, ctx)
		}
	}

	return nil, errFeatureUndefined(feature, c.scopeChain())
}

// loadThrough runs a loader on the node owning its registration. The
// tree lock is held for the whole load, which is what guarantees
// at-most-one successful load per key; a failure anywhere leaves the
// cache exactly as it was before the attempt.
func (n *Container) loadThrough(l *loader, key cacheKey, ctx Context) (any, error) {
	if l.cacheable() {
		// Only same-goroutine reentrancy can observe this under the tree
		// lock, so a hit here is a genuine load cycle on one key.
		if n.tree.loading[key] {
			return nil, errLoadingFailed(l.feature, n.scopeChain(),
				errors.New("cyclic load of "+key.String()))
		}

		n.tree.loading[key] = true
		defer delete(n.tree.loading, key)
	}

	instance, err := l.load(ctx, n)
	if err != nil {
		return nil, errLoadingFailed(l.feature, n.scopeChain(), err)
	}

	if l.completion != nil {
		if err := l.completion(instance, ctx, n); err != nil {
			return nil, errLoadingFailed(l.feature, n.scopeChain(), err)
		}
	}

	if l.cacheable() {
		unload := l.unload
		displaced := n.cache.set(key, &cacheEntry{
			instance: instance,
			unload: func(v any) error {
				return unload(v, ctx)
			},
		})
		if displaced != nil {
			n.tree.logger.Warn("unload of replaced cache entry failed",
				zap.String("feature", l.feature.String()),
				zap.Error(displaced))
		}
	}

	return instance, nil
}

// evict unloads and removes this node's own cache entry for key, if
// present. The next resolution through this node loads anew.
func (c *Container) evict(key cacheKey) error {
	c.tree.lock.Lock()
	defer c.tree.lock.Unlock()

	if c.closed {
		return errContainerClosed(c.scope)
	}

	return c.cache.remove(key)
}

// =============================================================================
// TYPED HELPERS
// =============================================================================

// Resolve resolves feature F with the given context.
//
// Example:
//
//	db, err := keel.Resolve[*Database](c, sessionCtx)
func Resolve[F any](c *Container, ctx Context) (F, error) {
	var zero F

	instance, err := c.Resolve(FeatureOf[F](), ctx)
	if err != nil {
		return zero, err
	}

	typed, ok := instance.(F)
	if !ok {
		// A cached or loaded value of the wrong type is a programming
		// bug, never silently coerced. Loud in debug, typed error in
		// release.
		err := errTypeMismatch(FeatureOf[F](), instance)
		if c.tree.debug {
			panic(err)
		}

		return zero, err
	}

	return typed, nil
}

// ResolveContextless resolves feature F without a context.
func ResolveContextless[F any](c *Container) (F, error) {
	return Resolve[F](c, nil)
}

// MustResolve resolves or panics - use only during startup.
func MustResolve[F any](c *Container, ctx Context) F {
	instance, err := Resolve[F](c, ctx)
	if err != nil {
		panic(err)
	}

	return instance
}

// Evict unloads and removes this node's cached instance of F for the
// given context, if present. Entries cached on other nodes are not
// touched; call Evict on the node that owns the entry.
func Evict[F any](c *Container, ctx Context) error {
	return c.evict(newCacheKey(FeatureOf[F](), ctx))
}
