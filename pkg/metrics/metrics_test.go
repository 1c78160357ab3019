package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opencensus.io/stats/view"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func fixtureRequires(t testing.TB, m *exampleMetrics) {
	require.NotNil(t, m.Telemetry.TestCount)
	require.NotNil(t, m.Usage.Count)
	require.NotNil(t, m.Network.Requests.Count)
	require.NotNil(t, m.Cache.Resident)
}

type otherMetrics struct {
	Count IOMetrics
}

func TestEnsure(t *testing.T) {
	Init()

	// lazy registration
	x := Ensure[exampleMetrics]("registerExample")
	fixtureRequires(t, x)
	x.IncTest()
	Int64(x.Network.Requests.Count, 10)

	// retry registration
	y := Ensure[exampleMetrics]("registerExample")
	require.Same(t, x, y)

	assert.Panics(t, func() {
		_ = Ensure[otherMetrics]("registerExample")
	})
}

func TestModules(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	s := newSettings(
		WithBasePath("root"),
		WithLogger(zap.New(core), zap.DebugLevel),
	)
	testMetrics := &exampleMetrics{}
	_ = s.EnsureMetrics("moduleTesting", testMetrics)

	require.Len(t, s.modules, 1)
	fixtureRequires(t, testMetrics)
	assert.Equal(t, "root/moduleTesting/telemetry/testCount", testMetrics.Telemetry.TestCount.Name())
	assert.Equal(t, "root/moduleTesting/cache/hits", testMetrics.Cache.Hits.Name())

	t0 := time.Now()
	testMetrics.IncTest()
	testMetrics.Usage.UsedAll(t0, "Remove")(nil)
	testMetrics.Usage.UsedAll(t0, "Remove")(errors.New("failure"))
	testMetrics.Network.Requests.IORecord(t0, "read")(100, nil)
	testMetrics.Network.Requests.IORecord(t0, "write")(0, errors.New("failure"))
	testMetrics.Cache.Load("quill")
	testMetrics.Cache.Hit("quill")
	testMetrics.Cache.Evict("seam")
	testMetrics.Cache.Size(4096)

	rows, err := view.RetrieveData("root/moduleTesting/cache/resident [last]")
	require.NoError(t, err)
	require.Len(t, rows, 1)

	s.Flush()
	assert.NotZero(t, logs.FilterMessage("metrics").Len())
}

func TestEnable(t *testing.T) {
	e := &Enable{}
	assert.False(t, e.MetricsEnabled())
	e.EnableMetrics(true)
	assert.True(t, e.MetricsEnabled())
}

func TestNilMeasures(t *testing.T) {
	var m CacheMetrics
	assert.NotPanics(t, func() {
		m.Hit("quill")
		m.Size(10)
		Since(time.Now(), nil)
	})
}
