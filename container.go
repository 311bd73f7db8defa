package keel

import (
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// tree holds the state shared by every node of one container tree: the
// scope declaration table assembled at root construction, the tree-wide
// reentrant lock, and diagnostics.
type tree struct {
	lock    reentrantMutex
	scopes  map[ScopeID]*registry
	loading map[cacheKey]bool
	logger  *zap.Logger
	debug   bool
}

// Container is one node of the scope tree. The root carries no context
// and has no parent; every branch has exactly one parent. A node owns
// its registry (immutable) and its cache (mutated only under the tree
// lock), and its lifetime bounds the lifetime of everything it cached.
type Container struct {
	scope    ScopeID
	context  Context
	registry *registry
	cache    *cache
	parent   *Container
	tree     *tree
	closed   bool // guarded by the tree lock
}

func newRoot(declare func(*Builder), cfg config) (*Container, error) {
	b := newRootBuilder()
	if declare != nil {
		declare(b)
	}

	if len(b.shared.errs) > 0 {
		return nil, multierr.Combine(b.shared.errs...)
	}

	t := &tree{
		scopes:  b.shared.scopes,
		loading: make(map[cacheKey]bool),
		logger:  cfg.logger,
		debug:   cfg.debug,
	}

	if t.debug {
		for _, what := range b.shared.redeclared {
			t.logger.Warn("registration replaced during declaration, likely a bug",
				zap.String("registration", what))
		}
	}

	return &Container{
		scope:    RootScope,
		registry: newRegistry(b.loaders),
		cache:    newCache(),
		tree:     t,
	}, nil
}

// Scope returns the node's scope identity.
func (c *Container) Scope() ScopeID {
	return c.scope
}

// IsRoot reports whether the node is the tree root.
func (c *Container) IsRoot() bool {
	return c.parent == nil
}

// Branch creates a child node for a scope declared on the root. The
// child resolves through its own registry first and falls back to this
// node's chain on a miss. The given context becomes the scope context
// returned by ContextFor on the child and its descendants.
func (c *Container) Branch(scope ScopeID, ctx Context) (*Container, error) {
	c.tree.lock.Lock()
	defer c.tree.lock.Unlock()

	if c.closed {
		return nil, errContainerClosed(c.scope)
	}

	reg, ok := c.tree.scopes[scope]
	if !ok {
		if c.tree.debug {
			c.tree.logger.Warn("branch into undeclared scope",
				zap.String("scope", scope.String()),
				zap.String("from", formatChain(c.scopeChain())))
		}

		return nil, errScopeUndefined(scope)
	}

	return &Container{
		scope:    scope,
		context:  ctx,
		registry: reg,
		cache:    newCache(),
		parent:   c,
		tree:     c.tree,
	}, nil
}

// ContextFor walks from this node up through its ancestors and returns
// the context of the first node whose scope matches. The root never
// satisfies the search: it carries no scope context.
func (c *Container) ContextFor(scope ScopeID) (Context, error) {
	for n := c; n.parent != nil; n = n.parent {
		if n.scope == scope {
			return n.context, nil
		}
	}

	return nil, errScopeContextUnavailable(scope, c.scopeChain())
}

// Close tears down the node: every live cache entry is unloaded through
// its stored hook, exactly once each, before Close returns. Unload
// failures do not stop the sweep and come back aggregated. Close is
// idempotent; a closed node rejects further Branch and Resolve calls.
// Closing a node does not affect its ancestors or descendants.
func (c *Container) Close() error {
	c.tree.lock.Lock()
	defer c.tree.lock.Unlock()

	if c.closed {
		return nil
	}

	c.closed = true

	return c.cache.clear()
}

// scopeChain lists scope identities from this node up to the root, for
// error annotation and introspection.
func (c *Container) scopeChain() []ScopeID {
	var chain []ScopeID
	for n := c; n != nil; n = n.parent {
		chain = append(chain, n.scope)
	}

	return chain
}
