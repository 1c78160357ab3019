// Package metrics collects opencensus measurements declared with struct tags.
//
// Components declare a struct of measures, register it once with Ensure,
// then record values with Inc, Int64 or Since. Views are registered alongside
// each measure, so an exporter configured with Init receives aggregated data.
package metrics

import (
	"context"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/docker/go-units"
	"go.opencensus.io/stats"
	"go.opencensus.io/stats/view"
	"go.opencensus.io/tag"
)

var (
	mp       *settings
	initOnce sync.Once
)

type settings struct {
	basePath  string
	contexter func() context.Context
	exporter  view.Exporter
	d         time.Duration

	mx         sync.Mutex
	modules    map[string]interface{}
	allMetrics []stats.Measure
	allViews   []*view.View
}

// current settings, with defaults when Init was never called
func current() *settings {
	Init()
	return mp
}

func newSettings(opts ...Option) *settings {
	s := &settings{
		modules:   make(map[string]interface{}),
		contexter: context.Background,
	}
	for _, apply := range opts {
		apply(s)
	}

	if s.exporter != nil {
		view.RegisterExporter(s.exporter)
		if s.d >= time.Second {
			view.SetReportingPeriod(s.d)
		}
	}
	return s
}

func (s *settings) EnsureMetrics(location string, m interface{}) interface{} {
	s.mx.Lock()
	defer s.mx.Unlock()
	location = path.Join(s.basePath, location)

	if existing, ok := s.modules[location]; ok {
		if !equalType(existing, m) {
			panic("trying to re-register existing metrics module with a different type")
		}
		return existing
	}
	scanStruct(location, s.addMetric, m)
	s.modules[location] = m
	return m
}

// Flush exports the current data of all registered views
func (s *settings) Flush() {
	if s.exporter == nil {
		return
	}
	s.mx.Lock()
	views := append([]*view.View(nil), s.allViews...)
	s.mx.Unlock()

	now := time.Now()
	for _, v := range views {
		rows, err := view.RetrieveData(v.Name)
		if err != nil {
			continue
		}
		s.exporter.ExportView(&view.Data{View: v, Start: now, End: now, Rows: rows})
	}
}

// unitKind tells how measures of some unit are declared and aggregated by default
type unitKind struct {
	unit        string
	aggregation func() *view.Aggregation
	suffix      string
}

var (
	// buckets in milliseconds
	durations = []float64{0.1, 0.5, 1, 5, 10, 50, 100, 300, 500, 1000, 3000, 5000, 10000}

	// buckets in bytes, around typical node extents
	sizes = []float64{
		64, 256, 512,
		units.KiB, 2 * units.KiB, 4 * units.KiB, 8 * units.KiB, 16 * units.KiB, 32 * units.KiB, 64 * units.KiB,
		256 * units.KiB, units.MiB, 4 * units.MiB,
	}

	unitKinds = map[string]unitKind{
		"":             {unit: stats.UnitDimensionless, aggregation: view.Count, suffix: "counter"},
		"count":        {unit: stats.UnitDimensionless, aggregation: view.Count, suffix: "counter"},
		"milliseconds": {unit: stats.UnitMilliseconds, aggregation: func() *view.Aggregation { return view.Distribution(durations...) }, suffix: "in milliseconds"},
		"bytes":        {unit: stats.UnitBytes, aggregation: func() *view.Aggregation { return view.Distribution(sizes...) }, suffix: "in bytes"},
		"sumbytes":     {unit: stats.UnitBytes, aggregation: view.Sum, suffix: "cumulated bytes"},
	}

	extraAggregations = map[string]func() *view.Aggregation{
		"count":     view.Count,
		"sum":       view.Sum,
		"lastvalue": view.LastValue,
	}

	aggregationSuffixes = map[view.AggType]string{
		view.AggTypeCount:        " [count]",
		view.AggTypeSum:          " [cumulated]",
		view.AggTypeDistribution: " [distribution]",
		view.AggTypeLastValue:    " [last]",
	}
)

// addMetric allocates a measure described by decoded struct tags, with a default view for its unit
// and the extra views listed by the "extraviews" tag
func (s *settings) addMetric(m interface{}, metric, group string, tags map[string]string) interface{} {
	name := path.Join(group, metric)
	uk, ok := unitKinds[tags["unit"]]
	if !ok {
		uk = unitKinds[""]
	}
	description := tags["description"]
	if description == "" {
		description = name + " " + uk.suffix
	}

	var measure stats.Measure
	switch m.(type) {
	case *stats.Int64Measure:
		measure = stats.Int64(name, description, uk.unit)
	case *stats.Float64Measure:
		measure = stats.Float64(name, description, uk.unit)
	default:
		return nil
	}
	s.allMetrics = append(s.allMetrics, measure)

	var keys []tag.Key
	for _, g := range strings.Split(tags["groupings"], ",") {
		if g != "" {
			keys = append(keys, tag.MustNewKey(g))
		}
	}

	s.addView(name, description, measure, uk.aggregation(), keys)
	for _, extra := range strings.Split(tags["views"], ",") {
		if aggregation, ok := extraAggregations[extra]; ok {
			agg := aggregation()
			s.addView(name+aggregationSuffixes[agg.Type], description, measure, agg, keys)
		}
	}
	return measure
}

func (s *settings) addView(name, description string, measure stats.Measure, agg *view.Aggregation, keys []tag.Key) {
	v := &view.View{
		Name:        name,
		Description: description + aggregationSuffixes[agg.Type],
		Measure:     measure,
		Aggregation: agg,
		TagKeys:     keys,
	}
	s.allViews = append(s.allViews, v)
	_ = view.Register(v)
}
