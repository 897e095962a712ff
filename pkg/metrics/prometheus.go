// Package metrics provides Prometheus metrics for the syncgaze service.
package metrics

import (
	"slices"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Default name segments of every metric.
const (
	DefaultNamespace = "syncgaze"
	DefaultSubsystem = "tracker"
)

// defaultLatencyBuckets are in milliseconds.
var defaultLatencyBuckets = []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000} //nolint:gochecknoglobals // read-only

// Manager owns every Prometheus collector of the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	registry         prometheus.Registerer

	// Sample bus
	samplesPublished *prometheus.CounterVec
	samplesDropped   *prometheus.CounterVec
	busSubscribers   *prometheus.GaugeVec

	// Calibration
	phaseTransitions   *prometheus.CounterVec
	staleDeliveries    prometheus.Counter
	validationError    prometheus.Histogram
	validationOutcomes *prometheus.CounterVec
	recalibrations     prometheus.Counter
	pursuitSuccessRate prometheus.Histogram

	// Correlation and sessions
	hitsCorrelated    prometheus.Counter
	correlationMisses *prometheus.CounterVec
	sessionsActive    prometheus.Gauge
	sessionsFinished  prometheus.Counter
	sessionAccuracy   prometheus.Histogram

	// Reports and uploads
	reportsIngested  prometheus.Counter
	reportsDuplicate prometheus.Counter
	reportBytes      prometheus.Histogram
	uploadAttempts   prometheus.Counter
	uploadFailures   *prometheus.CounterVec
	uploadsExhausted prometheus.Counter
	uploadLatency    prometheus.Histogram

	// Queue and workers
	queueSize               prometheus.Gauge
	queueCapacity           prometheus.Gauge
	queueEnqueued           prometheus.Counter
	queueEnqueueErrors      prometheus.Counter
	queueDequeued           prometheus.Counter
	workerActiveCount       prometheus.Gauge
	workerProcessingLatency prometheus.Histogram
	workerErrors            prometheus.Counter

	// Repository
	repositoryLatency *prometheus.HistogramVec
	repositoryErrors  *prometheus.CounterVec

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

var globalManager *Manager //nolint:gochecknoglobals // process-wide metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // process-wide registry

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithRegistry(customRegistry))
}

// Configure replaces the process-wide manager with one built from opts and
// registered on a fresh registry, which GetRegistry returns from then on.
// Call it at startup before metrics are recorded or served. A registry
// passed in opts is overridden.
func Configure(opts ...Option) {
	reg := prometheus.NewRegistry()
	globalManager = NewManager(append(slices.Clone(opts), WithRegistry(reg))...)
	customRegistry = reg
}

// NewManager creates a metrics manager and registers its collectors.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        DefaultNamespace,
		subsystem:        DefaultSubsystem,
		histogramBuckets: defaultLatencyBuckets,
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help,
	})
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help,
	}, labels)
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help,
	})
}

func (m *Manager) histogram(name, help string, buckets []float64) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, Buckets: buckets,
	})
}

func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every collector
	auto := promauto.With(m.registry)
	pixelBuckets := []float64{10, 25, 50, 80, 100, 150, 200, 300, 500, 1000}
	latencyBuckets := m.histogramBuckets
	ratioBuckets := []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1}

	m.samplesPublished = m.counterVec("samples_published_total", "Samples delivered to a stream subscriber", "stream")
	m.samplesDropped = m.counterVec("samples_dropped_total", "Samples discarded by the bus", "stream", "reason")
	m.busSubscribers = auto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "bus_subscribers", Help: "Active subscribers per stream",
	}, []string{"stream"})

	m.phaseTransitions = m.counterVec("phase_transitions_total", "Calibration phase transitions", "from", "to")
	m.staleDeliveries = m.counter("stale_deliveries_total", "Deliveries dropped because their phase generation was superseded")
	m.validationError = m.histogram("validation_error_pixels", "Validation error in pixels", pixelBuckets)
	m.validationOutcomes = m.counterVec("validation_outcomes_total", "Validation attempts by outcome", "result")
	m.recalibrations = m.counter("recalibrations_total", "Recalibration loops entered")
	m.pursuitSuccessRate = m.histogram("pursuit_success_rate", "Fraction of pursuit frames with gaze on target", ratioBuckets)

	m.hitsCorrelated = m.counter("hits_correlated_total", "Hit events correlated into the record log")
	m.correlationMisses = m.counterVec("correlation_misses_total", "Hit fields left unresolved by the lookback", "field")
	m.sessionsActive = m.gauge("sessions_active", "Sessions currently running")
	m.sessionsFinished = m.counter("sessions_finished_total", "Sessions that reached the finished phase")
	m.sessionAccuracy = m.histogram("session_accuracy", "Task accuracy of finished sessions", ratioBuckets)

	m.reportsIngested = m.counter("reports_ingested_total", "Reports accepted by the collector endpoint")
	m.reportsDuplicate = m.counter("reports_duplicate_total", "Report uploads recognised as duplicates")
	m.reportBytes = m.histogram("report_bytes", "Size of ingested reports", prometheus.ExponentialBuckets(1024, 4, 8))
	m.uploadAttempts = m.counter("upload_attempts_total", "Report upload attempts")
	m.uploadFailures = m.counterVec("upload_failures_total", "Failed report upload attempts", "reason")
	m.uploadsExhausted = m.counter("uploads_exhausted_total", "Uploads abandoned after the retry budget")
	m.uploadLatency = m.histogram("upload_latency_milliseconds", "Latency of a single upload attempt", latencyBuckets)

	m.queueSize = m.gauge("queue_size", "Upload jobs waiting in the queue")
	m.queueCapacity = m.gauge("queue_capacity", "Upload queue capacity")
	m.queueEnqueued = m.counter("queue_enqueued_total", "Upload jobs enqueued")
	m.queueEnqueueErrors = m.counter("queue_enqueue_errors_total", "Upload jobs rejected by the queue")
	m.queueDequeued = m.counter("queue_dequeued_total", "Upload jobs handed to workers")
	m.workerActiveCount = m.gauge("worker_active_count", "Upload workers running")
	m.workerProcessingLatency = m.histogram("worker_processing_latency_milliseconds", "Time to process one upload job", latencyBuckets)
	m.workerErrors = m.counter("worker_errors_total", "Upload jobs that ended in error")

	m.repositoryLatency = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "repository_latency_milliseconds", Help: "Store operation latency",
		Buckets: latencyBuckets,
	}, []string{"op"})
	m.repositoryErrors = m.counterVec("repository_errors_total", "Store operation failures", "op")

	m.httpRequests = m.counterVec("http_requests_total", "HTTP requests", "endpoint", "method", "status_code")
	m.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "http_request_duration_milliseconds", Help: "HTTP request duration",
		Buckets: latencyBuckets,
	}, []string{"endpoint", "method", "status_code"})

	m.errorRateByComponent = m.counterVec("errors_by_component_total", "Errors by component", "component", "error_type")
	m.errorRateByType = m.counterVec("errors_by_type_total", "Errors by type and severity", "error_type", "severity")
	m.errorRateByEndpoint = m.counterVec("errors_by_endpoint_total", "Errors by endpoint", "endpoint", "method", "error_type")

	m.systemMemoryUsage = m.gauge("system_memory_usage_bytes", "Heap bytes allocated")
	m.systemGoroutineCount = m.gauge("system_goroutine_count", "Number of goroutines")
	m.systemGCPauseTime = m.histogram("system_gc_pause_time_milliseconds", "Average GC pause time",
		[]float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100})
}

// Sample bus.

// RecordSamplePublished counts a delivered sample.
func RecordSamplePublished(stream string) {
	globalManager.samplesPublished.WithLabelValues(stream).Inc()
}

// RecordSampleDropped counts a discarded sample; reason is one of
// null, no_subscriber, throttled, buffer_full, closed.
func RecordSampleDropped(stream, reason string) {
	globalManager.samplesDropped.WithLabelValues(stream, reason).Inc()
}

// UpdateBusSubscribers sets the subscriber gauge for a stream.
func UpdateBusSubscribers(stream string, count int) {
	globalManager.busSubscribers.WithLabelValues(stream).Set(float64(count))
}

// Calibration.

// RecordPhaseTransition counts a phase change.
func RecordPhaseTransition(from, to string) {
	globalManager.phaseTransitions.WithLabelValues(from, to).Inc()
}

// RecordStaleDelivery counts a delivery dropped by the generation guard.
func RecordStaleDelivery() {
	globalManager.staleDeliveries.Inc()
}

// RecordValidation observes a validation attempt.
func RecordValidation(errorPx float64, passed bool) {
	globalManager.validationError.Observe(errorPx)
	result := "failed"
	if passed {
		result = "passed"
	}
	globalManager.validationOutcomes.WithLabelValues(result).Inc()
}

// RecordValidationEmpty counts a validation window that received no samples.
func RecordValidationEmpty() {
	globalManager.validationOutcomes.WithLabelValues("empty").Inc()
}

// RecordRecalibration counts a recalibration loop.
func RecordRecalibration() {
	globalManager.recalibrations.Inc()
}

// RecordPursuitSuccessRate observes the pursuit stage outcome.
func RecordPursuitSuccessRate(rate float64) {
	globalManager.pursuitSuccessRate.Observe(rate)
}

// Correlation and sessions.

// RecordHitCorrelated counts a correlated hit.
func RecordHitCorrelated() {
	globalManager.hitsCorrelated.Inc()
}

// RecordCorrelationMiss counts a hit field left nil (target, gaze, pointer).
func RecordCorrelationMiss(field string) {
	globalManager.correlationMisses.WithLabelValues(field).Inc()
}

// UpdateSessionsActive sets the running session gauge.
func UpdateSessionsActive(count int) {
	globalManager.sessionsActive.Set(float64(count))
}

// RecordSessionFinished counts a finished session and its accuracy.
func RecordSessionFinished(accuracy float64) {
	globalManager.sessionsFinished.Inc()
	globalManager.sessionAccuracy.Observe(accuracy)
}

// Reports and uploads.

// RecordReportIngested counts an accepted report of the given size.
func RecordReportIngested(bytes int) {
	globalManager.reportsIngested.Inc()
	globalManager.reportBytes.Observe(float64(bytes))
}

// RecordReportDuplicate counts a duplicate report upload.
func RecordReportDuplicate() {
	globalManager.reportsDuplicate.Inc()
}

// RecordUploadAttempt observes one upload attempt.
func RecordUploadAttempt(latencyMs float64) {
	globalManager.uploadAttempts.Inc()
	globalManager.uploadLatency.Observe(latencyMs)
}

// RecordUploadFailure counts a failed attempt.
func RecordUploadFailure(reason string) {
	globalManager.uploadFailures.WithLabelValues(reason).Inc()
}

// RecordUploadExhausted counts an abandoned upload.
func RecordUploadExhausted() {
	globalManager.uploadsExhausted.Inc()
}

// Queue and workers.

// UpdateQueueSize sets the queue length gauge.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// UpdateQueueCapacity sets the queue capacity gauge.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// RecordQueueEnqueue counts an accepted job.
func RecordQueueEnqueue() {
	globalManager.queueEnqueued.Inc()
}

// RecordQueueEnqueueError counts a rejected job.
func RecordQueueEnqueueError() {
	globalManager.queueEnqueueErrors.Inc()
}

// RecordQueueDequeue counts a job handed to a worker.
func RecordQueueDequeue() {
	globalManager.queueDequeued.Inc()
}

// UpdateWorkerActiveCount sets the running worker gauge.
func UpdateWorkerActiveCount(count int) {
	globalManager.workerActiveCount.Set(float64(count))
}

// RecordWorkerProcessingLatency observes job processing time.
func RecordWorkerProcessingLatency(latencyMs float64) {
	globalManager.workerProcessingLatency.Observe(latencyMs)
}

// RecordWorkerError counts a failed job.
func RecordWorkerError() {
	globalManager.workerErrors.Inc()
}

// Repository.

// RecordRepositoryLatency observes a store operation.
func RecordRepositoryLatency(op string, latencyMs float64) {
	globalManager.repositoryLatency.WithLabelValues(op).Observe(latencyMs)
}

// RecordRepositoryError counts a store failure.
func RecordRepositoryError(op string) {
	globalManager.repositoryErrors.WithLabelValues(op).Inc()
}

// HTTP.

// RecordHTTPRequest counts a request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration observes request duration in milliseconds.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// Errors.

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

// System.

// UpdateSystemMemoryUsage sets the heap usage in bytes.
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
