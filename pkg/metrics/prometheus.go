// Package metrics provides Prometheus metrics for the sustainability pipeline.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Manager manages all Prometheus metrics for the pipeline.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	registry         prometheus.Registerer

	// Run Metrics
	runsTotal      *prometheus.CounterVec
	phaseDuration  *prometheus.HistogramVec
	phaseOutcomes  *prometheus.CounterVec
	rowsScored     prometheus.Counter
	rowsPersisted  prometheus.Counter
	lastRunScore   prometheus.Gauge
	lockOutcomes   *prometheus.CounterVec
	snapshotReuse  *prometheus.CounterVec
	retroEnqueued  prometheus.Counter
	configFallback prometheus.Counter

	// Repository Metrics
	repositoryWriteLatency prometheus.Histogram
	repositoryQueryLatency prometheus.Histogram
	storeErrors            *prometheus.CounterVec

	// Queue Metrics - Retro task queue
	queueSize              prometheus.Gauge
	queueCapacity          prometheus.Gauge
	queueEnqueueRate       prometheus.Counter
	queueDequeueRate       prometheus.Counter
	queueEnqueueErrors     prometheus.Counter
	queueDuplicates        prometheus.Counter
	queueProcessingLatency prometheus.Histogram

	// Worker Metrics
	workerActiveCount       prometheus.Gauge
	workerProcessingLatency prometheus.Histogram
	workerErrorRate         prometheus.Counter

	errorRateByComponent *prometheus.CounterVec
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

// Initialize global metrics.
func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "sustainability",
		subsystem:        "pipeline",
		histogramBuckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
		registry:         prometheus.DefaultRegisterer,
	}

	// Apply all options
	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // long function required for comprehensive metrics initialization
	auto := promauto.With(m.registry)

	m.runsTotal = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "runs_total",
		Help:      "Total number of pipeline runs by final status",
	}, []string{"status"})

	m.phaseDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "phase_duration_milliseconds",
		Help:      "Duration of each pipeline phase in milliseconds",
		Buckets:   m.histogramBuckets,
	}, []string{"phase"})

	m.phaseOutcomes = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "phase_outcomes_total",
		Help:      "Pipeline phase outcomes by phase and status",
	}, []string{"phase", "status"})

	m.rowsScored = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "rows_scored_total",
		Help:      "Total number of window rows scored",
	})

	m.rowsPersisted = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "rows_persisted_total",
		Help:      "Total number of scored rows written to the store",
	})

	m.lastRunScore = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "last_run_rows",
		Help:      "Number of rows scored by the most recent run",
	})

	m.lockOutcomes = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "lock_outcomes_total",
		Help:      "Advisory lock attempts by outcome (acquired, contended, fail_open)",
	}, []string{"outcome"})

	m.snapshotReuse = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "snapshot_lookups_total",
		Help:      "Stored distribution snapshot lookups by result (hit, miss)",
	}, []string{"result"})

	m.retroEnqueued = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "retro_tasks_enqueued_total",
		Help:      "Total number of retro recompute tasks enqueued",
	})

	m.configFallback = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "config_fallback_total",
		Help:      "Total number of runs that fell back to the embedded scoring config",
	})

	m.repositoryWriteLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "repository_write_latency_milliseconds",
		Help:      "Histogram of store write latency in milliseconds",
		Buckets:   m.histogramBuckets,
	})

	m.repositoryQueryLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "repository_query_latency_milliseconds",
		Help:      "Histogram of store query latency in milliseconds",
		Buckets:   m.histogramBuckets,
	})

	m.storeErrors = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "store_errors_total",
		Help:      "Store call failures by operation (all handled fail-open)",
	}, []string{"operation"})

	m.queueSize = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "retro_queue_size",
		Help:      "Current number of pending retro tasks",
	})

	m.queueCapacity = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "retro_queue_capacity",
		Help:      "Maximum retro queue capacity",
	})

	m.queueEnqueueRate = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "retro_queue_enqueue_total",
		Help:      "Total number of retro tasks enqueued",
	})

	m.queueDequeueRate = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "retro_queue_dequeue_total",
		Help:      "Total number of retro tasks dequeued",
	})

	m.queueEnqueueErrors = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "retro_queue_enqueue_errors_total",
		Help:      "Total number of rejected retro task enqueues",
	})

	m.queueDuplicates = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "retro_queue_duplicates_total",
		Help:      "Total number of retro tasks dropped because the scope was already pending",
	})

	m.queueProcessingLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "retro_queue_wait_milliseconds",
		Help:      "Time retro tasks spend queued in milliseconds",
		Buckets:   m.histogramBuckets,
	})

	m.workerActiveCount = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "retro_worker_active_count",
		Help:      "Number of retro workers currently handling a task",
	})

	m.workerProcessingLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "retro_worker_processing_latency_milliseconds",
		Help:      "Retro task handling latency in milliseconds",
		Buckets:   m.histogramBuckets,
	})

	m.workerErrorRate = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "retro_worker_errors_total",
		Help:      "Total number of failed retro task handlings",
	})

	m.errorRateByComponent = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "errors_by_component_total",
		Help:      "Total number of errors by component",
	}, []string{"component", "error_type"})
}

// RecordRun increments the run counter for a final status.
func RecordRun(status string) {
	globalManager.runsTotal.WithLabelValues(status).Inc()
}

// RecordPhase records a phase's duration and outcome.
func RecordPhase(phase, status string, durationMs float64) {
	globalManager.phaseDuration.WithLabelValues(phase).Observe(durationMs)
	globalManager.phaseOutcomes.WithLabelValues(phase, status).Inc()
}

// RecordRowsScored adds scored rows and updates the last run gauge.
func RecordRowsScored(n int) {
	globalManager.rowsScored.Add(float64(n))
	globalManager.lastRunScore.Set(float64(n))
}

// RecordRowsPersisted adds persisted rows.
func RecordRowsPersisted(n int) {
	globalManager.rowsPersisted.Add(float64(n))
}

// RecordLockOutcome increments the lock outcome counter.
func RecordLockOutcome(outcome string) {
	globalManager.lockOutcomes.WithLabelValues(outcome).Inc()
}

// RecordSnapshotLookup records a stored snapshot lookup as a hit or miss.
func RecordSnapshotLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	globalManager.snapshotReuse.WithLabelValues(result).Inc()
}

// RecordRetroEnqueued increments the retro task counter.
func RecordRetroEnqueued() {
	globalManager.retroEnqueued.Inc()
}

// RecordConfigFallback increments the config fallback counter.
func RecordConfigFallback() {
	globalManager.configFallback.Inc()
}

// Repository Metrics Functions.

// RecordRepositoryWriteLatency records store write latency.
func RecordRepositoryWriteLatency(latencyMs float64) {
	globalManager.repositoryWriteLatency.Observe(latencyMs)
}

// RecordRepositoryQueryLatency records store query latency.
func RecordRepositoryQueryLatency(latencyMs float64) {
	globalManager.repositoryQueryLatency.Observe(latencyMs)
}

// RecordStoreError increments the store error counter for an operation.
func RecordStoreError(operation string) {
	globalManager.storeErrors.WithLabelValues(operation).Inc()
}

// Queue Metrics Functions.

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// UpdateQueueCapacity sets the maximum queue capacity.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// RecordQueueEnqueue increments the enqueue counter.
func RecordQueueEnqueue() {
	globalManager.queueEnqueueRate.Inc()
}

// RecordQueueDequeue increments the dequeue counter.
func RecordQueueDequeue() {
	globalManager.queueDequeueRate.Inc()
}

// RecordQueueEnqueueError increments the enqueue error counter.
func RecordQueueEnqueueError() {
	globalManager.queueEnqueueErrors.Inc()
}

// RecordQueueDuplicate increments the duplicate scope counter.
func RecordQueueDuplicate() {
	globalManager.queueDuplicates.Inc()
}

// RecordQueueProcessingLatency records how long a task waited in the queue.
func RecordQueueProcessingLatency(latencyMs float64) {
	globalManager.queueProcessingLatency.Observe(latencyMs)
}

// Worker Metrics Functions.

// UpdateWorkerActiveCount sets the number of active workers.
func UpdateWorkerActiveCount(count int) {
	globalManager.workerActiveCount.Set(float64(count))
}

// RecordWorkerProcessingLatency records worker processing latency.
func RecordWorkerProcessingLatency(latencyMs float64) {
	globalManager.workerProcessingLatency.Observe(latencyMs)
}

// RecordWorkerError increments the worker error counter.
func RecordWorkerError() {
	globalManager.workerErrorRate.Inc()
}

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorRateByComponent.WithLabelValues(component, errorType).Inc()
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}

// Handler serves the custom registry in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(customRegistry, promhttp.HandlerOpts{})
}
