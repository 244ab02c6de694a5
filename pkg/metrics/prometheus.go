// Package metrics provides Prometheus metrics for the faceid recognition service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager manages all Prometheus metrics for the recognition service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	constLabels      map[string]string
	registry         prometheus.Registerer

	// Recognition Metrics
	recognitionRequests *prometheus.CounterVec
	recognitionLatency  *prometheus.HistogramVec
	livenessFailures    prometheus.Counter
	matchDistance       prometheus.Histogram
	matchesAccepted     prometheus.Counter
	framesSkipped       *prometheus.CounterVec

	// Extractor Metrics
	extractorLatency *prometheus.HistogramVec
	extractorErrors  *prometheus.CounterVec

	// Registry Metrics - snapshot reloads
	registrySize            prometheus.Gauge
	registryUnresolved      prometheus.Gauge
	registryReloads         prometheus.Counter
	registryReloadErrors    prometheus.Counter
	registryReloadDuration  prometheus.Histogram
	registryLastSuccessUnix prometheus.Gauge

	// HTTP Performance Metrics
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	errorRateByEndpoint *prometheus.CounterVec

	// System Performance Metrics
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "faceid",
		subsystem:        "recognizer",
		histogramBuckets: prometheus.DefBuckets,
		constLabels:      make(map[string]string),
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // long function required for comprehensive metrics initialization
	auto := promauto.With(m.registry)
	labels := prometheus.Labels(m.constLabels)
	latencyBuckets := []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000}

	m.recognitionRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "recognition_requests_total",
		Help:        "Total recognition requests by shape (simple, single, frames, liveness) and outcome",
		ConstLabels: labels,
	}, []string{"shape", "outcome"})

	m.recognitionLatency = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "recognition_latency_milliseconds",
		Help:        "End-to-end recognition latency in milliseconds by shape",
		Buckets:     latencyBuckets,
		ConstLabels: labels,
	}, []string{"shape"})

	m.livenessFailures = auto.NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "liveness_failures_total",
		Help:        "Total multi-frame requests rejected by the liveness verifier",
		ConstLabels: labels,
	})

	m.matchDistance = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "match_distance",
		Help:        "Euclidean distance of the nearest registered identity",
		Buckets:     []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 1.0, 1.5},
		ConstLabels: labels,
	})

	m.matchesAccepted = auto.NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "matches_accepted_total",
		Help:        "Total nearest-neighbor results under the distance threshold",
		ConstLabels: labels,
	})

	m.framesSkipped = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "frames_skipped_total",
		Help:        "Frames dropped during multi-frame accumulation by reason",
		ConstLabels: labels,
	}, []string{"reason"})

	m.extractorLatency = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "extractor_latency_milliseconds",
		Help:        "Extractor sidecar call latency in milliseconds by operation",
		Buckets:     latencyBuckets,
		ConstLabels: labels,
	}, []string{"operation"})

	m.extractorErrors = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "extractor_errors_total",
		Help:        "Extractor sidecar call failures by operation",
		ConstLabels: labels,
	}, []string{"operation"})

	m.registrySize = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "registry_identities",
		Help:        "Number of identities in the current registry snapshot",
		ConstLabels: labels,
	})

	m.registryUnresolved = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "registry_unresolved_records",
		Help:        "Active records skipped by the last load because no embedding resolved",
		ConstLabels: labels,
	})

	m.registryReloads = auto.NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "registry_reloads_total",
		Help:        "Total successful registry snapshot loads",
		ConstLabels: labels,
	})

	m.registryReloadErrors = auto.NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "registry_reload_errors_total",
		Help:        "Total failed registry loads (previous snapshot retained)",
		ConstLabels: labels,
	})

	m.registryReloadDuration = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "registry_reload_duration_milliseconds",
		Help:        "Registry load duration in milliseconds",
		Buckets:     latencyBuckets,
		ConstLabels: labels,
	})

	m.registryLastSuccessUnix = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "registry_last_success_unix",
		Help:        "Unix time of the last successful registry load",
		ConstLabels: labels,
	})

	m.httpRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "http_requests_total",
		Help:        "Total number of HTTP requests by endpoint and method",
		ConstLabels: labels,
	}, []string{"endpoint", "method", "status_code"})

	m.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "http_request_duration_milliseconds",
		Help:        "HTTP request duration in milliseconds",
		Buckets:     m.histogramBuckets,
		ConstLabels: labels,
	}, []string{"endpoint", "method", "status_code"})

	m.errorRateByEndpoint = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "errors_by_endpoint_total",
		Help:        "Total errors by endpoint, method and error type",
		ConstLabels: labels,
	}, []string{"endpoint", "method", "error_type"})

	m.systemMemoryUsage = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "system_memory_usage_bytes",
		Help:        "System memory usage in bytes",
		ConstLabels: labels,
	})

	m.systemGoroutineCount = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "system_goroutine_count",
		Help:        "Number of goroutines",
		ConstLabels: labels,
	})
}

// Recognition Metrics Functions.

// RecordRecognition counts a finished request of the given shape and outcome.
func RecordRecognition(shape, outcome string, latencyMs float64) {
	globalManager.recognitionRequests.WithLabelValues(shape, outcome).Inc()
	globalManager.recognitionLatency.WithLabelValues(shape).Observe(latencyMs)
}

// RecordLivenessFailure increments the liveness rejection counter.
func RecordLivenessFailure() {
	globalManager.livenessFailures.Inc()
}

// RecordMatch records the nearest-neighbor distance and whether it was accepted.
func RecordMatch(distance float64, matched bool) {
	globalManager.matchDistance.Observe(distance)
	if matched {
		globalManager.matchesAccepted.Inc()
	}
}

// RecordFrameSkipped counts a frame dropped during accumulation.
func RecordFrameSkipped(reason string) {
	globalManager.framesSkipped.WithLabelValues(reason).Inc()
}

// Extractor Metrics Functions.

// RecordExtractorCall records an extractor call latency and failure, if any.
func RecordExtractorCall(operation string, latencyMs float64, failed bool) {
	globalManager.extractorLatency.WithLabelValues(operation).Observe(latencyMs)
	if failed {
		globalManager.extractorErrors.WithLabelValues(operation).Inc()
	}
}

// Registry Metrics Functions.

// RecordRegistryReload records a successful load.
func RecordRegistryReload(size, unresolved int, durationMs float64, unix float64) {
	globalManager.registrySize.Set(float64(size))
	globalManager.registryUnresolved.Set(float64(unresolved))
	globalManager.registryReloads.Inc()
	globalManager.registryReloadDuration.Observe(durationMs)
	globalManager.registryLastSuccessUnix.Set(unix)
}

// RecordRegistryReloadError increments the failed load counter.
func RecordRegistryReloadError(durationMs float64) {
	globalManager.registryReloadErrors.Inc()
	globalManager.registryReloadDuration.Observe(durationMs)
}

// HTTP Metrics Functions.

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// RecordErrorByEndpoint records an error with endpoint, method, and error type labels.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	globalManager.errorRateByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// System Performance Metrics Functions.

// UpdateSystemMemoryUsage sets the system memory usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
