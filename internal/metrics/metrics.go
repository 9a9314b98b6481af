// Package metrics exposes Prometheus collectors for the snapshot service.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	snapshotRequestsTotal        *prometheus.CounterVec
	snapshotRenderSeconds        prometheus.Histogram
	snapshotRenderFailuresTotal  *prometheus.CounterVec
	sweeperRecordsDeletedTotal   prometheus.Counter
	sweeperArtifactsDeletedTotal prometheus.Counter
	httpRequestsTotal            *prometheus.CounterVec
	httpRequestDurationSeconds   *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		snapshotRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "snapshot_requests_total",
				Help: "Total number of resolve calls, labeled by result (hit, miss, error).",
			},
			[]string{"result"},
		)

		snapshotRenderSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "snapshot_render_duration_seconds",
				Help:    "Histogram of full miss-path durations (render, upload, persist).",
				Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60},
			},
		)

		snapshotRenderFailuresTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "snapshot_render_failures_total",
				Help: "Total number of failed resolves, labeled by kind.",
			},
			[]string{"kind"},
		)

		sweeperRecordsDeletedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "sweeper_records_deleted_total",
				Help: "Total number of stale records removed by the sweeper.",
			},
		)

		sweeperArtifactsDeletedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "sweeper_artifacts_deleted_total",
				Help: "Total number of stored artifacts removed by the sweeper.",
			},
		)

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
	})
}

// ObserveResolve records the outcome of one resolve call.
func ObserveResolve(result string) {
	if snapshotRequestsTotal == nil {
		return
	}
	snapshotRequestsTotal.WithLabelValues(result).Inc()
}

// ObserveRenderDuration records the duration of a miss-path render.
func ObserveRenderDuration(d time.Duration) {
	if snapshotRenderSeconds == nil {
		return
	}
	snapshotRenderSeconds.Observe(d.Seconds())
}

// ObserveRenderFailure records a failed resolve by kind.
func ObserveRenderFailure(kind string) {
	if snapshotRenderFailuresTotal == nil {
		return
	}
	snapshotRenderFailuresTotal.WithLabelValues(kind).Inc()
}

// ObserveSweep records the result of one expiry sweep.
func ObserveSweep(records, artifacts int) {
	if sweeperRecordsDeletedTotal == nil {
		return
	}
	sweeperRecordsDeletedTotal.Add(float64(records))
	sweeperArtifactsDeletedTotal.Add(float64(artifacts))
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware is a chi middleware that records HTTP request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)

		if httpRequestsTotal == nil {
			return
		}
		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = "unknown"
		}
		httpRequestsTotal.WithLabelValues(r.Method, strconv.Itoa(ww.status)).Inc()
		httpRequestDurationSeconds.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}
