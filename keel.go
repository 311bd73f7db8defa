// Package keel provides a hierarchical, lazily-resolving dependency
// container: feature implementations are registered under typed
// identities and optional contexts, organized into nested lifecycle
// scopes, and resolved on demand with caching, parent-fallback lookup,
// and deterministic teardown.
//
// A tree starts from a root declared once:
//
//	root, err := keel.NewRoot(func(b *keel.Builder) {
//	    keel.RegisterCacheable[*Database](b, openDatabase, closeDatabase)
//	    b.DeclareScope("session", func(b *keel.Builder) {
//	        keel.RegisterDisposable[*Session](b, newSession)
//	    })
//	})
//
// Branches derived from the root own their registries and caches;
// resolution falls back to the parent chain on a miss, and cacheable
// instances live on the node whose registration satisfied the request.
package keel

// NewRoot declares a container tree and returns its root node. The
// declaration function receives the root registry builder; every scope
// a branch may ever enter must be declared through it. The registries
// are frozen when NewRoot returns.
func NewRoot(declare func(*Builder), opts ...Option) (*Container, error) {
	return newRoot(declare, buildConfig(opts))
}
