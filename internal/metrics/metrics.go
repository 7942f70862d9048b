package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus collectors labelled by chain.
type Metrics struct {
	subRanges      *prometheus.CounterVec
	logsFetched    *prometheus.CounterVec
	recordsWritten *prometheus.CounterVec
	recordsSkipped *prometheus.CounterVec
	errors         *prometheus.CounterVec
	scanDuration   *prometheus.HistogramVec
}

var (
	once    sync.Once
	metrics *Metrics
)

// Init initializes global metrics on the default registry (idempotent).
func Init() *Metrics {
	once.Do(func() {
		metrics = New(prometheus.DefaultRegisterer)
	})
	return metrics
}

// New builds and registers collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		subRanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "deposit_listener_subranges_queried_total",
			Help: "Total number of eth_getLogs sub-range queries issued",
		}, []string{"chain"}),
		logsFetched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "deposit_listener_logs_fetched_total",
			Help: "Total number of raw logs returned by the node",
		}, []string{"chain"}),
		recordsWritten: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "deposit_listener_records_written_total",
			Help: "Total number of deposit records appended to the log",
		}, []string{"chain"}),
		recordsSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "deposit_listener_records_skipped_total",
			Help: "Total number of deposit records skipped as already indexed",
		}, []string{"chain"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "deposit_listener_errors_total",
			Help: "Total number of errors encountered, by stage",
		}, []string{"chain", "stage"}),
		scanDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "deposit_listener_scan_duration_seconds",
			Help:    "Wall time of a full scan invocation",
			Buckets: prometheus.DefBuckets,
		}, []string{"chain"}),
	}
	reg.MustRegister(m.subRanges, m.logsFetched, m.recordsWritten, m.recordsSkipped, m.errors, m.scanDuration)
	return m
}

// SubRangesQueried adds n issued log queries.
func (m *Metrics) SubRangesQueried(chain string, n int) {
	if m != nil {
		m.subRanges.WithLabelValues(chain).Add(float64(n))
	}
}

// LogsFetched adds n raw logs.
func (m *Metrics) LogsFetched(chain string, n int) {
	if m != nil {
		m.logsFetched.WithLabelValues(chain).Add(float64(n))
	}
}

// RecordsWritten adds n persisted records.
func (m *Metrics) RecordsWritten(chain string, n int) {
	if m != nil {
		m.recordsWritten.WithLabelValues(chain).Add(float64(n))
	}
}

// RecordsSkipped adds n deduplicated records.
func (m *Metrics) RecordsSkipped(chain string, n int) {
	if m != nil {
		m.recordsSkipped.WithLabelValues(chain).Add(float64(n))
	}
}

// Error increments the error counter for a stage (connect, plan, fetch, decode, persist, notify).
func (m *Metrics) Error(chain, stage string) {
	if m != nil {
		m.errors.WithLabelValues(chain, stage).Inc()
	}
}

// ObserveScan records a scan's duration.
func (m *Metrics) ObserveScan(chain string, d time.Duration) {
	if m != nil {
		m.scanDuration.WithLabelValues(chain).Observe(d.Seconds())
	}
}

// Handler returns an HTTP handler for /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
