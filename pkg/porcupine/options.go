package porcupine

import (
	"github.com/docker/go-units"
	"github.com/oneconcern/porcupine/pkg/address"
	"go.uber.org/zap"
)

const (
	// DefaultExtent is the default target maximum footprint of a node
	DefaultExtent = 8 * units.KiB

	// DefaultContention is the default fraction of the extent below which nodes are merged
	DefaultContention = 0.5

	// DefaultCacheBudget is the default footprint of nodes kept in memory
	DefaultCacheBudget = 4 * units.MiB

	// DefaultFlushConcurrency is the default number of blocks written in parallel when sealing
	DefaultFlushConcurrency = 8

	// DefaultValueCacheSize is the default number of out-of-line values kept in memory
	DefaultValueCacheSize = 1024
)

// Option configures a tree
type Option func(*options)

type options struct {
	extent     int
	contention float64
	l          *zap.Logger
	metrics    bool
}

func defaultOptions(opts []Option) options {
	o := options{
		extent:     DefaultExtent,
		contention: DefaultContention,
		l:          zap.NewNop(),
	}
	for _, apply := range opts {
		apply(&o)
	}
	return o
}

// WithExtent sets the target maximum footprint of a node
func WithExtent(extent int) Option {
	return func(o *options) {
		if extent > BaseFootprint {
			o.extent = extent
		}
	}
}

// WithContention sets the fraction of the extent which drives splits and merges, in (0, 1)
func WithContention(contention float64) Option {
	return func(o *options) {
		if contention > 0 && contention < 1 {
			o.contention = contention
		}
	}
}

// WithLogger sets a logger for the tree
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.l = l
		}
	}
}

// WithMetrics toggles metrics collection
func WithMetrics(enabled bool) Option {
	return func(o *options) {
		o.metrics = enabled
	}
}

// NestOption configures a node cache
type NestOption func(*nestOptions)

type nestOptions struct {
	budget         int
	concurrency    int
	verify         bool
	valueCacheSize int
	inlineLimit    int
	sealer         address.Sealer
	l              *zap.Logger
	metrics        bool
}

func defaultNestOptions(opts []NestOption) nestOptions {
	o := nestOptions{
		budget:         DefaultCacheBudget,
		concurrency:    DefaultFlushConcurrency,
		verify:         true,
		valueCacheSize: DefaultValueCacheSize,
		inlineLimit:    DefaultExtent / 8,
		sealer:         address.Blake(),
		l:              zap.NewNop(),
	}
	for _, apply := range opts {
		apply(&o)
	}
	return o
}

// WithCacheBudget sets the footprint in bytes of the nodes kept in memory
func WithCacheBudget(budget int) NestOption {
	return func(o *nestOptions) {
		if budget >= 0 {
			o.budget = budget
		}
	}
}

// WithFlushConcurrency sets the number of blocks written in parallel when sealing
func WithFlushConcurrency(concurrency int) NestOption {
	return func(o *nestOptions) {
		if concurrency > 0 {
			o.concurrency = concurrency
		}
	}
}

// WithVerifyOnLoad checks that loaded blocks match their address
func WithVerifyOnLoad(enabled bool) NestOption {
	return func(o *nestOptions) {
		o.verify = enabled
	}
}

// WithValueCacheSize sets the number of out-of-line values kept in memory
func WithValueCacheSize(size int) NestOption {
	return func(o *nestOptions) {
		if size > 0 {
			o.valueCacheSize = size
		}
	}
}

// WithInlineLimit sets the largest value stored inside leaf blocks
func WithInlineLimit(limit int) NestOption {
	return func(o *nestOptions) {
		if limit >= 0 {
			o.inlineLimit = limit
		}
	}
}

// WithSealer sets the function which computes block addresses
func WithSealer(sealer address.Sealer) NestOption {
	return func(o *nestOptions) {
		if sealer != nil {
			o.sealer = sealer
		}
	}
}

// WithNestLogger sets a logger for the node cache
func WithNestLogger(l *zap.Logger) NestOption {
	return func(o *nestOptions) {
		if l != nil {
			o.l = l
		}
	}
}

// WithNestMetrics toggles metrics collection for the node cache
func WithNestMetrics(enabled bool) NestOption {
	return func(o *nestOptions) {
		o.metrics = enabled
	}
}
