package metrics

import (
	"time"

	"go.opencensus.io/stats"
)

// IOMetrics reports about requests to some backend
type IOMetrics struct {
	Count    *stats.Int64Measure   `metric:"ioCount" description:"number of IO requests" tags:"kind,operation"`
	Timing   *stats.Float64Measure `metric:"timing" unit:"milliseconds" description:"response time in milliseconds" tags:"kind,operation"`
	Failures *stats.Int64Measure   `metric:"ioFailures" description:"number of failed IOs" tags:"kind,operation"`
	IOSize   *stats.Int64Measure   `metric:"ioSize" unit:"bytes" description:"IO chunk size in bytes" extraviews:"sum" tags:"kind,operation"`
}

func ioTags(operation string) map[string]string {
	return map[string]string{"kind": "io", "operation": operation}
}

// IORecord returns a func recording all metrics about one request, once it has completed.
// Zero sizes are not recorded.
//
//	defer func(start time.Time) {
//	  m.IORecord(start, "get")(size, err)
//	}(time.Now())
func (n *IOMetrics) IORecord(start time.Time, operation string) func(int64, error) {
	return func(size int64, err error) {
		tags := ioTags(operation)
		Since(start, n.Timing, tags)
		Inc(n.Count, tags)
		if size > 0 {
			Int64(n.IOSize, size, tags)
		}
		if err != nil {
			Inc(n.Failures, tags)
		}
	}
}

// UsageMetrics reports about calls to the methods of an API
type UsageMetrics struct {
	Count    *stats.Int64Measure   `metric:"usageCount" description:"number of calls" tags:"kind,method"`
	Failures *stats.Int64Measure   `metric:"usageFailures" description:"number of failed calls" tags:"kind,method"`
	Timing   *stats.Float64Measure `metric:"timing" unit:"milliseconds" description:"duration of a call" tags:"kind,method"`
}

// UsedAll returns a func recording a call to some method, once it has returned.
//
//	defer func(start time.Time) {
//	  m.UsedAll(start, "Add")(err)
//	}(time.Now())
func (u *UsageMetrics) UsedAll(start time.Time, method string) func(error) {
	return func(err error) {
		tags := map[string]string{"kind": "usage", "method": method}
		Since(start, u.Timing, tags)
		Inc(u.Count, tags)
		if err != nil {
			Inc(u.Failures, tags)
		}
	}
}

// CacheMetrics reports about objects loaded from a backend and kept in memory
type CacheMetrics struct {
	Hits      *stats.Int64Measure `metric:"hits" description:"number of objects served from memory" tags:"kind"`
	Loads     *stats.Int64Measure `metric:"loads" description:"number of objects loaded from storage" tags:"kind"`
	Evictions *stats.Int64Measure `metric:"evictions" description:"number of objects unloaded" tags:"kind"`
	Resident  *stats.Int64Measure `metric:"resident" unit:"bytes" description:"size of objects kept in memory" extraviews:"lastvalue"`
}

// Hit records an object served from memory
func (c *CacheMetrics) Hit(kind string) {
	Inc(c.Hits, map[string]string{"kind": kind})
}

// Load records an object loaded from storage
func (c *CacheMetrics) Load(kind string) {
	Inc(c.Loads, map[string]string{"kind": kind})
}

// Evict records an object unloaded from memory
func (c *CacheMetrics) Evict(kind string) {
	Inc(c.Evictions, map[string]string{"kind": kind})
}

// Size records the total size of the objects kept in memory
func (c *CacheMetrics) Size(resident int) {
	Int64(c.Resident, int64(resident))
}
