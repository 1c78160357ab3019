package metrics

import (
	"context"
	"time"

	"github.com/oneconcern/porcupine/pkg/metrics/exporters/zaplog"
	"go.opencensus.io/stats/view"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Option configures the global metrics settings
type Option func(*settings)

// WithBasePath prefixes the names of all registered metrics
func WithBasePath(location string) Option {
	return func(m *settings) {
		m.basePath = location
	}
}

// WithContexter sets the function providing the context of measurements. Defaults to context.Background.
func WithContexter(c func() context.Context) Option {
	return func(m *settings) {
		if c != nil {
			m.contexter = c
		}
	}
}

// WithExporter sets the exporter receiving aggregated views
func WithExporter(exporter view.Exporter) Option {
	return func(m *settings) {
		m.exporter = exporter
	}
}

// WithLogger exports aggregated views as log entries at the given level
func WithLogger(l *zap.Logger, level zapcore.Level) Option {
	return WithExporter(zaplog.NewExporter(l, level))
}

// WithReportingPeriod sets how often views are exported. Periods under one second are ignored.
func WithReportingPeriod(d time.Duration) Option {
	return func(m *settings) {
		m.d = d
	}
}
