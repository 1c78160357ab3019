package porcupine

import (
	"github.com/oneconcern/porcupine/pkg/metrics"
	"go.opencensus.io/stats"
)

// M describes metrics for trees
type M struct {
	Usage metrics.UsageMetrics `group:"usage" description:"tree operations"`
	Tree  struct {
		Splits *stats.Int64Measure `metric:"splits" description:"number of node splits" tags:"kind"`
		Merges *stats.Int64Measure `metric:"merges" description:"number of node merges and rebalances" tags:"kind"`
		Height *stats.Int64Measure `metric:"height" description:"height of the tree" extraviews:"lastvalue"`
	} `group:"tree" description:"structure of trees"`
	Nest struct {
		metrics.CacheMetrics
		Blocks     *stats.Int64Measure `metric:"blocks" description:"number of blocks persisted" tags:"kind"`
		BlockBytes *stats.Int64Measure `metric:"blockBytes" unit:"sumbytes" description:"bytes of blocks persisted" tags:"kind"`
	} `group:"nest" description:"node cache activity"`
}

func kindTag(kind string) map[string]string {
	return map[string]string{"kind": kind}
}

func (n *Nest[K, V]) observe(fn func(*M)) {
	if n.MetricsEnabled() {
		fn(n.m)
	}
}

func (p *Porcupine[K, V]) observe(fn func(*M)) {
	if p.MetricsEnabled() {
		fn(p.m)
	}
}
