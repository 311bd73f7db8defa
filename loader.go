package keel

import (
	"fmt"
	"runtime"
)

// LoadFunc produces an instance of feature F. It receives the resolution
// context and the container node the loader is registered on, so it may
// resolve its own dependencies through nested Resolve calls.
type LoadFunc[F any] func(ctx Context, c *Container) (F, error)

// CompletionFunc runs once after a successful load, before the instance
// is cached or returned. It is the place to cross-wire mutually
// dependent features: the instance is already usable when the hook runs.
// It never runs on cache hits. A completion error counts as a loading
// failure and leaves the cache untouched.
type CompletionFunc[F any] func(f F, ctx Context, c *Container) error

// UnloadFunc tears down a cached instance. Registering one is what makes
// a feature cacheable: a loader without an unload hook is disposable and
// produces a fresh instance per resolution.
type UnloadFunc[F any] func(f F, ctx Context) error

// loader is the type-erased recipe stored in a registry. Immutable once
// registered.
type loader struct {
	feature    FeatureID
	load       func(Context, *Container) (any, error)
	completion func(any, Context, *Container) error
	unload     func(any, Context) error
	static     bool
	source     string
}

// cacheable reports whether resolved instances are cached. Presence of
// the unload hook is the distinction.
func (l *loader) cacheable() bool {
	return l.unload != nil
}

// kind names the loader variant for diagnostics.
func (l *loader) kind() string {
	switch {
	case l.static:
		return "static"
	case l.cacheable():
		return "cacheable"
	default:
		return "disposable"
	}
}

// callSource captures the registration call site for provenance traces.
// skip counts frames above the exported Register* helper.
func callSource(skip int) string {
	_, file, line, ok := runtime.Caller(skip)
	if !ok {
		return "<unknown>"
	}

	return fmt.Sprintf("%s:%d", file, line)
}
