package keel

// registryKey addresses one registration: feature identity plus an
// optional context specifier. A nil specifier is the context-agnostic
// registration for the feature.
type registryKey struct {
	feature   FeatureID
	specifier any
}

// registry is the immutable per-scope mapping from registryKey to
// loader. It is assembled once by a Builder when the scope is declared
// and safely shared read-only across concurrently resolving branches.
type registry struct {
	loaders map[registryKey]*loader
}

func newRegistry(loaders map[registryKey]*loader) *registry {
	return &registry{loaders: loaders}
}

// lookup finds the loader for a feature under the given context. An
// exact match on the context's identifier wins over the context-agnostic
// registration, which allows different implementations per context value
// of the same feature type.
func (r *registry) lookup(feature FeatureID, ctx Context) (*loader, bool) {
	if identifiable, ok := ctx.(Identifiable); ok {
		if l, ok := r.loaders[registryKey{feature: feature, specifier: identifiable.Identifier()}]; ok {
			return l, true
		}
	}

	l, ok := r.loaders[registryKey{feature: feature}]

	return l, ok
}

// registrationsFor returns every loader registered for a feature, used
// by introspection only.
func (r *registry) registrationsFor(feature FeatureID) []*loader {
	var out []*loader

	for key, l := range r.loaders {
		if key.feature == feature {
			out = append(out, l)
		}
	}

	return out
}

// =============================================================================
// BUILDER
// =============================================================================

// Builder assembles the loader registry of one scope. It is handed to
// the declaration function of NewRoot (and of each DeclareScope) and is
// only valid for the duration of that call; the registries it produces
// are frozen afterwards.
type Builder struct {
	scope   ScopeID
	loaders map[registryKey]*loader
	shared  *builderState
}

// builderState is shared by every Builder in one declaration pass. The
// scope table it collects becomes the tree-wide declaration table of the
// root.
type builderState struct {
	scopes     map[ScopeID]*registry
	redeclared []string
	errs       []error
}

func newRootBuilder() *Builder {
	return &Builder{
		scope:   RootScope,
		loaders: make(map[registryKey]*loader),
		shared: &builderState{
			scopes: make(map[ScopeID]*registry),
		},
	}
}

// DeclareScope declares a named sub-scope and its registry. Branching
// into a scope that was not declared here fails with ErrScopeUndefined.
// Declaring the same scope twice replaces its whole registry; that is
// almost always a bug and is logged as such in debug mode.
func (b *Builder) DeclareScope(scope ScopeID, declare func(*Builder)) {
	sub := &Builder{
		scope:   scope,
		loaders: make(map[registryKey]*loader),
		shared:  b.shared,
	}

	if declare != nil {
		declare(sub)
	}

	if _, exists := b.shared.scopes[scope]; exists {
		b.shared.redeclared = append(b.shared.redeclared, "scope "+scope.String())
	}

	b.shared.scopes[scope] = newRegistry(sub.loaders)
}

// add installs a loader under its key, replacing any previous
// registration for that key within the same scope.
func (b *Builder) add(key registryKey, l *loader) {
	if _, exists := b.loaders[key]; exists {
		b.shared.redeclared = append(b.shared.redeclared,
			"feature "+key.feature.String()+" in scope "+b.scope.String())
	}

	b.loaders[key] = l
}

func (b *Builder) fail(err error) {
	b.shared.errs = append(b.shared.errs, err)
}

// =============================================================================
// REGISTRATION
// =============================================================================

// loaderConfig collects per-registration options.
type loaderConfig[F any] struct {
	completion CompletionFunc[F]
	specifier  any
}

// LoaderOption configures a single feature registration.
type LoaderOption[F any] func(*loaderConfig[F])

// WithLoadingCompletion attaches a hook that runs once after each
// successful load, before the instance is cached or returned.
func WithLoadingCompletion[F any](fn CompletionFunc[F]) LoaderOption[F] {
	return func(cfg *loaderConfig[F]) {
		cfg.completion = fn
	}
}

// ForContext restricts the registration to resolutions whose context
// identifier equals the given specifier. The specifier must be a
// comparable value. A feature may carry one such registration per
// specifier alongside a context-agnostic one.
func ForContext[F any](specifier any) LoaderOption[F] {
	return func(cfg *loaderConfig[F]) {
		cfg.specifier = specifier
	}
}

func applyOptions[F any](opts []LoaderOption[F]) loaderConfig[F] {
	var cfg loaderConfig[F]
	for _, opt := range opts {
		opt(&cfg)
	}

	return cfg
}

// RegisterDisposable registers a feature that is loaded fresh on every
// resolution and never cached.
//
// Example:
//
//	keel.RegisterDisposable[*Request](b, func(ctx keel.Context, c *keel.Container) (*Request, error) {
//	    return newRequest(ctx)
//	})
func RegisterDisposable[F any](b *Builder, load LoadFunc[F], opts ...LoaderOption[F]) {
	feature := FeatureOf[F]()
	if load == nil {
		b.fail(errInvalidRegistration(feature, "nil load function"))

		return
	}

	cfg := applyOptions(opts)
	b.add(registryKey{feature: feature, specifier: cfg.specifier}, &loader{
		feature:    feature,
		load:       eraseLoad(load),
		completion: eraseCompletion(feature, cfg.completion),
		source:     callSource(2),
	})
}

// RegisterCacheable registers a feature that is loaded at most once per
// cache key and torn down through unload when its owning node is closed,
// when the entry is evicted, or when a new entry replaces it.
//
// Example:
//
//	keel.RegisterCacheable[*Database](b,
//	    func(ctx keel.Context, c *keel.Container) (*Database, error) { return openDatabase() },
//	    func(db *Database, ctx keel.Context) error { return db.Close() },
//	)
func RegisterCacheable[F any](b *Builder, load LoadFunc[F], unload UnloadFunc[F], opts ...LoaderOption[F]) {
	feature := FeatureOf[F]()
	if load == nil {
		b.fail(errInvalidRegistration(feature, "nil load function"))

		return
	}

	if unload == nil {
		b.fail(errInvalidRegistration(feature, "nil unload function; use RegisterDisposable for uncached features"))

		return
	}

	cfg := applyOptions(opts)
	b.add(registryKey{feature: feature, specifier: cfg.specifier}, &loader{
		feature:    feature,
		load:       eraseLoad(load),
		completion: eraseCompletion(feature, cfg.completion),
		unload: func(v any, ctx Context) error {
			f, ok := v.(F)
			if !ok {
				return errTypeMismatch(feature, v)
			}

			return unload(f, ctx)
		},
		source: callSource(2),
	})
}

// RegisterStatic registers a pre-built shared instance. The instance is
// handed out as-is on every resolution; the container never tears it
// down, its lifetime belongs to the caller that built it.
func RegisterStatic[F any](b *Builder, instance F) {
	feature := FeatureOf[F]()
	b.add(registryKey{feature: feature}, &loader{
		feature: feature,
		load: func(Context, *Container) (any, error) {
			return instance, nil
		},
		static: true,
		source: callSource(2),
	})
}

func eraseLoad[F any](load LoadFunc[F]) func(Context, *Container) (any, error) {
	return func(ctx Context, c *Container) (any, error) {
		return load(ctx, c)
	}
}

func eraseCompletion[F any](feature FeatureID, fn CompletionFunc[F]) func(any, Context, *Container) error {
	if fn == nil {
		return nil
	}

	return func(v any, ctx Context, c *Container) error {
		f, ok := v.(F)
		if !ok {
			return errTypeMismatch(feature, v)
		}

		return fn(f, ctx, c)
	}
}
