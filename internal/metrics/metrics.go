// Package metrics exposes Prometheus collectors for the report service.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Report outcomes recorded by ObserveReport.
const (
	OutcomeSuccess          = "success"
	OutcomeInvalidReference = "invalid_reference"
	OutcomeFetchError       = "fetch_error"
	OutcomeRenderError      = "render_error"
	OutcomeUnexpectedError  = "unexpected_error"
)

// Pipeline stages recorded by ObserveStage.
const (
	StageFetch    = "fetch"
	StageRender   = "render"
	StageReencode = "reencode"
)

var (
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	reportsTotal               *prometheus.CounterVec
	reportBytesTotal           prometheus.Counter
	reportStageDuration        *prometheus.HistogramVec
	activeRenders              prometheus.Gauge

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"method", "route"},
		)

		reportsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "report_requests_total",
				Help: "Total number of report generations, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		reportBytesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "report_bytes_total",
				Help: "Total number of PDF bytes returned to callers.",
			},
		)

		reportStageDuration = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "report_stage_duration_seconds",
				Help:    "Histogram of pipeline stage latencies, labeled by stage.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"stage"},
		)

		activeRenders = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "report_active_renders",
				Help: "Number of renderer invocations currently running.",
			},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveReport records the outcome of one report generation and, on success, its size.
func ObserveReport(outcome string, size int) {
	Init()
	reportsTotal.WithLabelValues(outcome).Inc()
	if size > 0 {
		reportBytesTotal.Add(float64(size))
	}
}

// ObserveStage records how long a pipeline stage took.
func ObserveStage(stage string, duration time.Duration) {
	Init()
	reportStageDuration.WithLabelValues(stage).Observe(duration.Seconds())
}

// IncActiveRenders increments the running renderer gauge.
func IncActiveRenders() {
	Init()
	activeRenders.Inc()
}

// DecActiveRenders decrements the running renderer gauge.
func DecActiveRenders() {
	Init()
	activeRenders.Dec()
}
