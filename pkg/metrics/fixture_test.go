package metrics

import "go.opencensus.io/stats"

type exampleMetrics struct {
	Telemetry struct {
		UsageCounts   []UsageMetrics        `group:"usage"`    // ignored
		FailureCounts []*stats.Int64Measure `group:"failures"` // ignored
		TestCount     *stats.Int64Measure   `metric:"testCount" description:"number of tests"`
	} `group:"telemetry"`
	Usage   UsageMetrics `group:"usage"`
	Network *struct {
		Requests IOMetrics
	} `group:"network"`
	Cache CacheMetrics `group:"cache"`
}

func (e *exampleMetrics) IncTest() {
	Inc(e.Telemetry.TestCount, map[string]string{"kind": "test"})
}
