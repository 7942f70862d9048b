package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountersByChain(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.SubRangesQueried("avax", 31)
	m.LogsFetched("avax", 2)
	m.RecordsWritten("avax", 2)
	m.RecordsSkipped("bsc", 1)
	m.Error("bsc", "fetch")
	m.ObserveScan("avax", 1500*time.Millisecond)

	assert.Equal(t, 31.0, testutil.ToFloat64(m.subRanges.WithLabelValues("avax")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.recordsWritten.WithLabelValues("avax")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.recordsSkipped.WithLabelValues("bsc")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.errors.WithLabelValues("bsc", "fetch")))

	n, err := testutil.GatherAndCount(reg, "deposit_listener_scan_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.SubRangesQueried("avax", 1)
		m.LogsFetched("avax", 1)
		m.RecordsWritten("avax", 1)
		m.RecordsSkipped("avax", 1)
		m.Error("avax", "persist")
		m.ObserveScan("avax", time.Second)
	})
}
