// Package metrics provides Prometheus metrics for the fibertrace service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager manages all Prometheus metrics for the fibertrace service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	constLabels      prometheus.Labels
	registry         prometheus.Registerer

	// Sample records
	samplesWritten       *prometheus.CounterVec
	samplesDuplicate     prometheus.Counter
	datasetSize          prometheus.Gauge
	datasetRowsDiscarded prometheus.Counter

	// Estimation
	estimates       *prometheus.CounterVec
	estimateLatency prometheus.Histogram
	modelsBuilt     *prometheus.CounterVec
	modelRMSE       *prometheus.GaugeVec

	// Repository and dataset cache
	repositoryLatency *prometheus.HistogramVec
	cacheEvents       *prometheus.CounterVec

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Errors
	errorRateByComponent *prometheus.CounterVec
	errorRateByType      *prometheus.CounterVec
	errorRateByEndpoint  *prometheus.CounterVec

	// System
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
}

// NewManager creates a new metrics manager and registers its collectors.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "fibertrace",
		subsystem:        "service",
		histogramBuckets: []float64{0.5, 1, 2.5, 5, 10, 25, 50, 100, 250, 500, 1000, 2500},
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) counterOpts(name, help string) prometheus.CounterOpts {
	return prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	}
}

func (m *Manager) gaugeOpts(name, help string) prometheus.GaugeOpts {
	return prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	}
}

func (m *Manager) histogramOpts(name, help string, buckets []float64) prometheus.HistogramOpts {
	return prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
		Buckets: buckets,
	}
}

func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every collector
	auto := promauto.With(m.registry)

	m.samplesWritten = auto.NewCounterVec(
		m.counterOpts("samples_written_total", "Reference samples written, by operation"),
		[]string{"operation"},
	)
	m.samplesDuplicate = auto.NewCounter(
		m.counterOpts("samples_duplicate_total", "Sample submissions ignored as retries of an earlier submission"),
	)
	m.datasetSize = auto.NewGauge(
		m.gaugeOpts("dataset_rows", "Rows in the most recently loaded reference dataset"),
	)
	m.datasetRowsDiscarded = auto.NewCounter(
		m.counterOpts("dataset_rows_discarded_total", "Rows dropped because required fields failed to coerce"),
	)

	m.estimates = auto.NewCounterVec(
		m.counterOpts("estimates_total", "Marker-fiber estimates, by outcome"),
		[]string{"outcome"},
	)
	m.estimateLatency = auto.NewHistogram(
		m.histogramOpts("estimate_latency_milliseconds", "End to end estimate latency in milliseconds", m.histogramBuckets),
	)
	m.modelsBuilt = auto.NewCounterVec(
		m.counterOpts("fiber_models_built_total", "Fiber models trained, by fiber type"),
		[]string{"fiber"},
	)
	m.modelRMSE = auto.NewGaugeVec(
		m.gaugeOpts("fiber_model_rmse", "Training RMSE of the last model built per fiber type"),
		[]string{"fiber"},
	)

	m.repositoryLatency = auto.NewHistogramVec(
		m.histogramOpts("repository_latency_milliseconds", "Repository operation latency in milliseconds", m.histogramBuckets),
		[]string{"operation"},
	)
	m.cacheEvents = auto.NewCounterVec(
		m.counterOpts("dataset_cache_events_total", "Dataset cache hits, misses, refreshes and invalidations"),
		[]string{"event"},
	)

	m.httpRequests = auto.NewCounterVec(
		m.counterOpts("http_requests_total", "Total number of HTTP requests"),
		[]string{"endpoint", "method", "status_code"},
	)
	m.httpRequestDuration = auto.NewHistogramVec(
		m.histogramOpts("http_request_duration_seconds", "HTTP request duration in seconds", prometheus.DefBuckets),
		[]string{"endpoint", "method", "status_code"},
	)

	m.errorRateByComponent = auto.NewCounterVec(
		m.counterOpts("errors_by_component_total", "Errors by component and type"),
		[]string{"component", "error_type"},
	)
	m.errorRateByType = auto.NewCounterVec(
		m.counterOpts("errors_by_type_total", "Errors by type and severity"),
		[]string{"error_type", "severity"},
	)
	m.errorRateByEndpoint = auto.NewCounterVec(
		m.counterOpts("errors_by_endpoint_total", "Errors by HTTP endpoint"),
		[]string{"endpoint", "method", "error_type"},
	)

	m.systemMemoryUsage = auto.NewGauge(m.gaugeOpts("system_memory_usage_bytes", "Heap memory in use in bytes"))
	m.systemGoroutineCount = auto.NewGauge(m.gaugeOpts("system_goroutine_count", "Number of goroutines"))
	m.systemGCPauseTime = auto.NewHistogram(m.histogramOpts(
		"system_gc_pause_time_milliseconds", "GC pause time in milliseconds",
		[]float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000},
	))
}

// RecordSampleWritten counts a sample insert, update or delete.
func RecordSampleWritten(operation string) {
	globalManager.samplesWritten.WithLabelValues(operation).Inc()
}

// RecordSampleDuplicate counts a submission recognised as a retry.
func RecordSampleDuplicate() {
	globalManager.samplesDuplicate.Inc()
}

// UpdateDatasetSize sets the number of rows in the loaded dataset.
func UpdateDatasetSize(rows int) {
	globalManager.datasetSize.Set(float64(rows))
}

// RecordRowsDiscarded counts rows dropped during coercion.
func RecordRowsDiscarded(n int) {
	if n > 0 {
		globalManager.datasetRowsDiscarded.Add(float64(n))
	}
}

// RecordEstimate counts an estimate by outcome (ok, invalid_input, ...).
func RecordEstimate(outcome string) {
	globalManager.estimates.WithLabelValues(outcome).Inc()
}

// RecordEstimateLatency records estimate latency in milliseconds.
func RecordEstimateLatency(latencyMs float64) {
	globalManager.estimateLatency.Observe(latencyMs)
}

// RecordModelBuilt counts a trained fiber model and records its RMSE.
func RecordModelBuilt(fiber string, rmse float64) {
	globalManager.modelsBuilt.WithLabelValues(fiber).Inc()
	globalManager.modelRMSE.WithLabelValues(fiber).Set(rmse)
}

// RecordRepositoryLatency records repository operation latency in milliseconds.
func RecordRepositoryLatency(operation string, latencyMs float64) {
	globalManager.repositoryLatency.WithLabelValues(operation).Observe(latencyMs)
}

// RecordCacheEvent counts a dataset cache event (hit, miss, refresh, invalidate).
func RecordCacheEvent(event string) {
	globalManager.cacheEvents.WithLabelValues(event).Inc()
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration in seconds.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorRateByComponent.WithLabelValues(component, errorType).Inc()
}

// RecordErrorByType records an error with type and severity labels.
func RecordErrorByType(errorType, severity string) {
	globalManager.errorRateByType.WithLabelValues(errorType, severity).Inc()
}

// RecordErrorByEndpoint records an error with endpoint, method, and error type labels.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	globalManager.errorRateByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// UpdateSystemMemoryUsage sets the heap memory in use in bytes.
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

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
