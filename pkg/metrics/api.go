package metrics

import (
	"time"

	"go.opencensus.io/stats"
	"go.opencensus.io/tag"
)

// Init global settings for metrics collection, such as the base path and exporter setup.
//
// Only the first call to Init is effective. Without an exporter, measurements are aggregated
// by registered views but never exported.
func Init(opts ...Option) {
	initOnce.Do(func() {
		mp = newSettings(opts...)
	})
}

// Flush all views to the exporter
func Flush() {
	current().Flush()
}

// Ensure registers a set of measures described by the struct tags of T at some location,
// and returns the registered set.
//
// Ensure is idempotent: later calls for the same location return the set registered first.
// It panics when a location is registered again with a different type.
func Ensure[T any](location string) *T {
	registered := current().EnsureMetrics(location, new(T))
	m, ok := registered.(*T)
	if !ok {
		panic("metrics at " + location + " were registered with a different type")
	}
	return m
}

// Inc increments a counter
func Inc(counter *stats.Int64Measure, tags ...map[string]string) {
	Int64(counter, 1, tags...)
}

// Int64 records a value for a measure
func Int64(measure *stats.Int64Measure, value int64, tags ...map[string]string) {
	if measure == nil {
		return
	}
	_ = stats.RecordWithTags(current().contexter(), mergeTags(tags), measure.M(value))
}

// Since records the milliseconds elapsed from start
func Since(start time.Time, measure *stats.Float64Measure, tags ...map[string]string) {
	if measure == nil {
		return
	}
	ms := float64(time.Since(start).Nanoseconds()) / 1e6
	_ = stats.RecordWithTags(current().contexter(), mergeTags(tags), measure.M(ms))
}

func mergeTags(extras []map[string]string) []tag.Mutator {
	mutators := make([]tag.Mutator, 0, 2)
	for _, extra := range extras {
		for k, v := range extra {
			mutators = append(mutators, tag.Upsert(tag.MustNewKey(k), v))
		}
	}
	return mutators
}

// Enable is embedded by components which may record metrics.
//
//	type nest struct {
//	  metrics.Enable
//	  m *nestMetrics
//	}
//
//	n.EnableMetrics(true)
//	n.m = metrics.Ensure[nestMetrics]("nest")
type Enable struct {
	metricsEnabled bool
}

// MetricsEnabled tells whether metrics are recorded
func (e Enable) MetricsEnabled() bool {
	return e.metricsEnabled
}

// EnableMetrics toggles metrics collection
func (e *Enable) EnableMetrics(enabled bool) {
	e.metricsEnabled = enabled
}
