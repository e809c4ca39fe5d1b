// Package metrics provides Prometheus metrics for the VisionTags service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager manages all Prometheus metrics for the VisionTags service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	customLabels     map[string]string
	metricPrefix     string
	registry         prometheus.Registerer

	// Core Business Metrics
	classifications *prometheus.CounterVec
	feedback        prometheus.Counter
	windowSize      prometheus.Gauge
	totalRecords    prometheus.Gauge

	// Projection Metrics
	projectionRecomputes *prometheus.CounterVec
	projectionLatency    *prometheus.HistogramVec
	projectionGroupSize  *prometheus.GaugeVec
	integrityFaults      prometheus.Counter

	// Neighbor and summary queries
	neighborQueries  prometheus.Counter
	neighborLatency  prometheus.Histogram
	summaryQueries   prometheus.Counter
	saliencyDuration prometheus.Histogram

	// Model Metrics
	inferenceLatency *prometheus.HistogramVec
	inferenceErrors  *prometheus.CounterVec
	modelsLoaded     prometheus.Gauge

	// Store Metrics
	storeLatency *prometheus.HistogramVec
	storeErrors  *prometheus.CounterVec

	// HTTP Performance Metrics
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	httpRateLimited     prometheus.Counter

	// Error Metrics
	errorRateByComponent *prometheus.CounterVec
	errorRateByEndpoint  *prometheus.CounterVec

	// System Performance Metrics
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
	// Build info only; runtime gauges are maintained by the process itself.
	customRegistry.MustRegister(collectors.NewBuildInfoCollector())
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "visiontags",
		subsystem:        "analytics",
		histogramBuckets: []float64{0.5, 1, 2.5, 5, 10, 25, 50, 100, 250, 500, 1000, 2500},
		customLabels:     make(map[string]string),
		metricPrefix:     "",
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

func (m *Manager) name(n string) string {
	if m.metricPrefix == "" {
		return n
	}
	return m.metricPrefix + "_" + n
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // long function required for comprehensive metrics initialization
	auto := promauto.With(m.registry)
	labels := prometheus.Labels(m.customLabels)

	m.classifications = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: labels,
		Name: m.name("classifications_total"),
		Help: "Total number of classification requests by model and outcome",
	}, []string{"model", "outcome"})

	m.feedback = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: labels,
		Name: m.name("feedback_total"),
		Help: "Total number of ground-truth labels submitted",
	})

	m.windowSize = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: labels,
		Name: m.name("window_records"),
		Help: "Number of records in the current analytics window",
	})

	m.totalRecords = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: labels,
		Name: m.name("store_records"),
		Help: "Number of prediction records held by the store",
	})

	m.projectionRecomputes = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: labels,
		Name: m.name("projection_refresh_total"),
		Help: "Dimension-group projection refreshes by result (recomputed, cached, empty)",
	}, []string{"result"})

	m.projectionLatency = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: labels,
		Name:    m.name("projection_latency_milliseconds"),
		Help:    "Latency of a full group recompute-and-persist in milliseconds",
		Buckets: m.histogramBuckets,
	}, []string{"dim"})

	m.projectionGroupSize = auto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: labels,
		Name: m.name("projection_group_size"),
		Help: "Number of records in a dimension group at its last refresh",
	}, []string{"dim"})

	m.integrityFaults = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: labels,
		Name: m.name("integrity_faults_total"),
		Help: "Dimension-grouping violations detected during projection",
	})

	m.neighborQueries = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: labels,
		Name: m.name("neighbor_queries_total"),
		Help: "Total number of neighbor queries",
	})

	m.neighborLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: labels,
		Name:    m.name("neighbor_latency_milliseconds"),
		Help:    "Neighbor query latency in milliseconds, including any projection refresh",
		Buckets: m.histogramBuckets,
	})

	m.summaryQueries = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: labels,
		Name: m.name("summary_queries_total"),
		Help: "Total number of confusion/count summary queries",
	})

	m.saliencyDuration = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: labels,
		Name:    m.name("saliency_latency_milliseconds"),
		Help:    "Saliency map computation latency in milliseconds",
		Buckets: m.histogramBuckets,
	})

	m.inferenceLatency = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: labels,
		Name:    m.name("inference_latency_milliseconds"),
		Help:    "Model call latency in milliseconds by model and call",
		Buckets: m.histogramBuckets,
	}, []string{"model", "call"})

	m.inferenceErrors = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: labels,
		Name: m.name("inference_errors_total"),
		Help: "Model call failures by model and call",
	}, []string{"model", "call"})

	m.modelsLoaded = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: labels,
		Name: m.name("models_loaded"),
		Help: "Number of models initialized in the registry",
	})

	m.storeLatency = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: labels,
		Name:    m.name("store_latency_milliseconds"),
		Help:    "Record store operation latency in milliseconds",
		Buckets: m.histogramBuckets,
	}, []string{"backend", "op"})

	m.storeErrors = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: labels,
		Name: m.name("store_errors_total"),
		Help: "Record store operation failures",
	}, []string{"backend", "op"})

	m.httpRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: labels,
		Name: m.name("http_requests_total"),
		Help: "Total number of HTTP requests by endpoint and method",
	}, []string{"endpoint", "method", "status_code"})

	m.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: labels,
		Name:    m.name("http_request_duration_milliseconds"),
		Help:    "HTTP request duration in milliseconds",
		Buckets: m.histogramBuckets,
	}, []string{"endpoint", "method", "status_code"})

	m.httpRateLimited = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: labels,
		Name: m.name("http_rate_limited_total"),
		Help: "Requests rejected by the per-client rate limiter",
	})

	m.errorRateByComponent = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: labels,
		Name: m.name("errors_by_component_total"),
		Help: "Total number of errors by component",
	}, []string{"component", "error_type"})

	m.errorRateByEndpoint = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: labels,
		Name: m.name("errors_by_endpoint_total"),
		Help: "Total number of errors by endpoint",
	}, []string{"endpoint", "method", "error_type"})

	m.systemMemoryUsage = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: labels,
		Name: m.name("system_memory_usage_bytes"),
		Help: "System memory usage in bytes",
	})

	m.systemGoroutineCount = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: labels,
		Name: m.name("system_goroutine_count"),
		Help: "Number of goroutines",
	})

	m.systemGCPauseTime = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: labels,
		Name:    m.name("system_gc_pause_time_milliseconds"),
		Help:    "GC pause time in milliseconds",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000},
	})
}

// RecordClassification counts a classification by model and outcome (ok, error).
func RecordClassification(model, outcome string) {
	globalManager.classifications.WithLabelValues(model, outcome).Inc()
}

// RecordFeedback increments the feedback counter.
func RecordFeedback() {
	globalManager.feedback.Inc()
}

// UpdateWindowSize sets the number of records in the analytics window.
func UpdateWindowSize(n int) {
	globalManager.windowSize.Set(float64(n))
}

// UpdateTotalRecords sets the number of records held by the store.
func UpdateTotalRecords(n int) {
	globalManager.totalRecords.Set(float64(n))
}

// RecordProjectionRefresh counts a group refresh with its result.
func RecordProjectionRefresh(result string) {
	globalManager.projectionRecomputes.WithLabelValues(result).Inc()
}

// RecordProjectionLatency records recompute latency for a dimension group.
func RecordProjectionLatency(dim string, latencyMs float64) {
	globalManager.projectionLatency.WithLabelValues(dim).Observe(latencyMs)
}

// UpdateProjectionGroupSize sets the member count of a dimension group.
func UpdateProjectionGroupSize(dim string, size int) {
	globalManager.projectionGroupSize.WithLabelValues(dim).Set(float64(size))
}

// RecordIntegrityFault increments the integrity fault counter.
func RecordIntegrityFault() {
	globalManager.integrityFaults.Inc()
}

// RecordNeighborQuery records a neighbor query and its latency.
func RecordNeighborQuery(latencyMs float64) {
	globalManager.neighborQueries.Inc()
	globalManager.neighborLatency.Observe(latencyMs)
}

// RecordSummaryQuery increments the summary query counter.
func RecordSummaryQuery() {
	globalManager.summaryQueries.Inc()
}

// RecordSaliencyLatency records saliency computation latency.
func RecordSaliencyLatency(latencyMs float64) {
	globalManager.saliencyDuration.Observe(latencyMs)
}

// RecordInferenceLatency records model call latency.
func RecordInferenceLatency(model, call string, latencyMs float64) {
	globalManager.inferenceLatency.WithLabelValues(model, call).Observe(latencyMs)
}

// RecordInferenceError increments the model call failure counter.
func RecordInferenceError(model, call string) {
	globalManager.inferenceErrors.WithLabelValues(model, call).Inc()
}

// UpdateModelsLoaded sets the number of initialized models.
func UpdateModelsLoaded(n int) {
	globalManager.modelsLoaded.Set(float64(n))
}

// RecordStoreLatency records store operation latency.
func RecordStoreLatency(backend, op string, latencyMs float64) {
	globalManager.storeLatency.WithLabelValues(backend, op).Observe(latencyMs)
}

// RecordStoreError increments the store failure counter.
func RecordStoreError(backend, op string) {
	globalManager.storeErrors.WithLabelValues(backend, op).Inc()
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// RecordRateLimited increments the rate limiter rejection counter.
func RecordRateLimited() {
	globalManager.httpRateLimited.Inc()
}

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorRateByComponent.WithLabelValues(component, errorType).Inc()
}

// RecordErrorByEndpoint records an error with endpoint, method, and error type labels.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	globalManager.errorRateByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// UpdateSystemMemoryUsage sets the system memory usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// RecordSystemGCPauseTime records GC pause time in milliseconds.
func RecordSystemGCPauseTime(pauseMs float64) {
	globalManager.systemGCPauseTime.Observe(pauseMs)
}

// Since returns the elapsed milliseconds since start, as recorded by histograms.
func Since(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
