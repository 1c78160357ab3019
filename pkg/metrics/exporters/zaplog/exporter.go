// Package zaplog exports opencensus views to a zap logger.
package zaplog

import (
	"go.opencensus.io/stats/view"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var _ view.Exporter = &Exporter{}

// Exporter logs aggregated view data
type Exporter struct {
	l     *zap.Logger
	level zapcore.Level
}

// NewExporter builds an opencensus exporter writing to a logger, at debug level by default
func NewExporter(l *zap.Logger, level ...zapcore.Level) *Exporter {
	e := &Exporter{l: l, level: zapcore.DebugLevel}
	if len(level) > 0 {
		e.level = level[0]
	}
	return e
}

// ExportView logs the rows of some view data
func (e *Exporter) ExportView(viewData *view.Data) {
	if viewData == nil || viewData.View == nil {
		return
	}
	ce := e.l.Check(e.level, "metrics")
	if ce == nil {
		return
	}

	rows := make([]string, 0, len(viewData.Rows))
	for _, row := range viewData.Rows {
		rows = append(rows, row.String())
	}
	ce.Write(
		zap.String("view", viewData.View.Name),
		zap.Time("start", viewData.Start),
		zap.Time("end", viewData.End),
		zap.Strings("rows", rows),
	)
}
