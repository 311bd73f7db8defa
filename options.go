package keel

import "go.uber.org/zap"

// config collects root-construction settings.
type config struct {
	logger *zap.Logger
	debug  bool
}

// Option is a configuration option for NewRoot.
type Option func(*config)

// WithLogger sets the logger shared by every node of the tree.
// Defaults to a no-op logger.
func WithLogger(logger *zap.Logger) Option {
	return func(cfg *config) {
		if logger != nil {
			cfg.logger = logger
		}
	}
}

// WithDebug enables debug diagnostics: likely-bug conditions are logged
// loudly and type-identity mismatches panic instead of returning an
// error.
func WithDebug() Option {
	return func(cfg *config) {
		cfg.debug = true
	}
}

func buildConfig(opts []Option) config {
	cfg := config{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&cfg)
	}

	return cfg
}
