package bdgr

import "go.uber.org/zap"

// Option configures a badger store
type Option func(*options)

type options struct {
	inMemory   bool
	syncWrites bool
	logger     *zap.Logger
}

func defaultOptions(opts []Option) options {
	o := options{
		logger: zap.NewNop(),
	}
	for _, apply := range opts {
		apply(&o)
	}
	return o
}

// InMemory keeps all data in memory
func InMemory() Option {
	return func(o *options) {
		o.inMemory = true
	}
}

// WithSyncWrites flushes every write to disk before returning
func WithSyncWrites(enabled bool) Option {
	return func(o *options) {
		o.syncWrites = enabled
	}
}

// WithLogger routes the database logs to a zap logger
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}
