// Package metrics exposes Prometheus instrumentation for both sides of the
// protocol. A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
)

// Anomaly labels
const (
	AnomalyInvalidLine = "invalid_line"
	AnomalyUnknownJob  = "unknown_job"
	AnomalyDuplicate   = "duplicate"
	AnomalyNoResult    = "no_result"
)

var durationBuckets = []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10}

// Metrics holds all Prometheus metrics
type Metrics struct {
	// Client metrics
	Flushes      *prometheus.CounterVec
	FlushSize    prometheus.Histogram
	WireCalls    *prometheus.CounterVec
	WireDuration *prometheus.HistogramVec
	ClientJobs   *prometheus.CounterVec
	Anomalies    *prometheus.CounterVec

	// Server metrics
	Requests      *prometheus.CounterVec
	ServerJobs    *prometheus.CounterVec
	BatchDuration *prometheus.HistogramVec
	LoadFailures  *prometheus.CounterVec
}

// New registers the metrics with reg
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	return &Metrics{
		Flushes: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "httprpc_client_flushes_total",
				Help: "Total number of coalesced batches flushed",
			},
			[]string{"endpoint", "method"},
		),
		FlushSize: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "httprpc_client_flush_size",
				Help:    "Number of jobs per flushed batch",
				Buckets: []float64{1, 2, 4, 8, 16, 32, 64},
			},
		),
		WireCalls: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "httprpc_client_wire_calls_total",
				Help: "Total number of HTTP requests issued",
			},
			[]string{"endpoint", "method", "outcome"},
		),
		WireDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "httprpc_client_wire_duration_seconds",
				Help:    "Duration of one wire call until the stream ends",
				Buckets: durationBuckets,
			},
			[]string{"endpoint", "method"},
		),
		ClientJobs: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "httprpc_client_jobs_total",
				Help: "Total number of calls settled by the client",
			},
			[]string{"method", "outcome"},
		),
		Anomalies: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "httprpc_client_anomalies_total",
				Help: "Reply lines dropped or jobs left unanswered",
			},
			[]string{"kind"},
		),
		Requests: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "httprpc_server_requests_total",
				Help: "Total number of HTTP requests handled",
			},
			[]string{"method", "status"},
		),
		ServerJobs: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "httprpc_server_jobs_total",
				Help: "Total number of result lines written",
			},
			[]string{"method", "outcome"},
		),
		BatchDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "httprpc_server_batch_duration_seconds",
				Help:    "Duration of one job batch execution",
				Buckets: durationBuckets,
			},
			[]string{"method"},
		),
		LoadFailures: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "httprpc_server_load_failures_total",
				Help: "Handler resolutions that failed",
			},
			[]string{"method"},
		),
	}
}

// Handler serves the metrics gathered by g
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// ObserveFlush records one coalesced flush
func (m *Metrics) ObserveFlush(endpoint, method string, size int) {
	if m == nil {
		return
	}
	m.Flushes.WithLabelValues(endpoint, method).Inc()
	m.FlushSize.Observe(float64(size))
}

// ObserveWireCall records one HTTP exchange
func (m *Metrics) ObserveWireCall(endpoint, method string, err error, d time.Duration) {
	if m == nil {
		return
	}
	m.WireCalls.WithLabelValues(endpoint, method, outcome(err)).Inc()
	m.WireDuration.WithLabelValues(endpoint, method).Observe(d.Seconds())
}

// ObserveClientJob records one settled call
func (m *Metrics) ObserveClientJob(method string, err error) {
	if m == nil {
		return
	}
	m.ClientJobs.WithLabelValues(method, outcome(err)).Inc()
}

// ObserveAnomaly records a dropped line or an unanswered job
func (m *Metrics) ObserveAnomaly(kind string) {
	if m == nil {
		return
	}
	m.Anomalies.WithLabelValues(kind).Inc()
}

// ObserveRequest records one handled HTTP request
func (m *Metrics) ObserveRequest(method, status string) {
	if m == nil {
		return
	}
	m.Requests.WithLabelValues(method, status).Inc()
}

// ObserveBatch records one executed job batch and its jobs
func (m *Metrics) ObserveBatch(method string, jobs int, err error, d time.Duration) {
	if m == nil {
		return
	}
	m.ServerJobs.WithLabelValues(method, outcome(err)).Add(float64(jobs))
	m.BatchDuration.WithLabelValues(method).Observe(d.Seconds())
}

// ObserveLoadFailure records a failed handler resolution affecting jobs lines
func (m *Metrics) ObserveLoadFailure(method string, jobs int) {
	if m == nil {
		return
	}
	m.LoadFailures.WithLabelValues(method).Inc()
	m.ServerJobs.WithLabelValues(method, OutcomeError).Add(float64(jobs))
}

func outcome(err error) string {
	if err != nil {
		return OutcomeError
	}
	return OutcomeSuccess
}
