package service

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsNamespace = "admission"

// MetricsService owns the Prometheus registry for the API and the workflow
// engine. All methods are no-ops on a nil receiver.
type MetricsService struct {
	registry *prometheus.Registry
	handler  http.Handler

	requestDuration *prometheus.HistogramVec
	cacheOps        *prometheus.HistogramVec
	gateRejections  *prometheus.CounterVec
	sweptTotal      prometheus.Counter
	sweepDuration   prometheus.Histogram
	cleanupFailures prometheus.Counter
}

// NewMetricsService registers the collectors on a private registry.
func NewMetricsService() *MetricsService {
	m := &MetricsService{
		registry: prometheus.NewRegistry(),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests by route pattern",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
		cacheOps: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "catalog_cache",
			Name:      "operation_seconds",
			Help:      "Latency of catalog cache reads and writes by outcome",
			Buckets:   []float64{.0005, .001, .005, .01, .025, .05, .1, .25},
		}, []string{"operation", "result"}),
		gateRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "gate_rejections_total",
			Help:      "Workflow mutations refused by the window guard or completion gate",
		}, []string{"code"}),
		sweptTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "sweep",
			Name:      "rejected_total",
			Help:      "Applications automatically rejected by the deadline sweep",
		}),
		sweepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "sweep",
			Name:      "duration_seconds",
			Help:      "Duration of deadline sweep runs",
			Buckets:   prometheus.DefBuckets,
		}),
		cleanupFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "storage_cleanup_failures_total",
			Help: "Superseded object deletions that exhausted their retries",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.requestDuration,
		m.cacheOps,
		m.gateRejections,
		m.sweptTotal,
		m.sweepDuration,
		m.cleanupFailures,
	)
	m.handler = promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
	return m
}

// Handler exposes the registry in the Prometheus text format.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records one served request. The request count is the
// histogram's _count series.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.requestDuration.WithLabelValues(method, path, strconv.Itoa(status)).Observe(duration.Seconds())
}

// ObserveCacheOperation records a catalog cache call. operation is get or set;
// result is hit, miss, ok or error.
func (m *MetricsService) ObserveCacheOperation(operation, result string, duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheOps.WithLabelValues(operation, result).Observe(duration.Seconds())
}

// RecordGateRejection counts a mutation refused with the given error code.
func (m *MetricsService) RecordGateRejection(code string) {
	if m == nil {
		return
	}
	m.gateRejections.WithLabelValues(code).Inc()
}

// ObserveSweep records one deadline sweep run.
func (m *MetricsService) ObserveSweep(rejected int, duration time.Duration) {
	if m == nil {
		return
	}
	m.sweptTotal.Add(float64(rejected))
	m.sweepDuration.Observe(duration.Seconds())
}

// RecordCleanupFailure counts a superseded object that could not be deleted.
func (m *MetricsService) RecordCleanupFailure() {
	if m == nil {
		return
	}
	m.cleanupFailures.Inc()
}
