// Package metrics provides Prometheus metrics for the station QC service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager manages all Prometheus metrics for the QC service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	customLabels     map[string]string
	registry         prometheus.Registerer

	// Memoization
	cacheLookups *prometheus.CounterVec
	cacheEntries *prometheus.CounterVec

	// QC outcomes
	testFlags            *prometheus.CounterVec
	evaluationLatency    prometheus.Histogram
	observationsAssessed prometheus.Counter
	observationErrors    *prometheus.CounterVec

	// Queue
	queueSize          prometheus.Gauge
	queueCapacity      prometheus.Gauge
	queueEnqueued      prometheus.Counter
	queueDequeued      prometheus.Counter
	queueEnqueueErrors prometheus.Counter

	// Workers
	workerCount  prometheus.Gauge
	workerActive prometheus.Gauge
	workerErrors prometheus.Counter

	// Runs
	runs        *prometheus.CounterVec
	runDuration prometheus.Histogram

	// Result store
	storeRecords      prometheus.Gauge
	storeQueryLatency prometheus.Histogram
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
		namespace:        "stationqc",
		subsystem:        "qc",
		histogramBuckets: prometheus.DefBuckets,
		customLabels:     make(map[string]string),
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
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.customLabels,
	}
}

func (m *Manager) gaugeOpts(name, help string) prometheus.GaugeOpts {
	return prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.customLabels,
	}
}

func (m *Manager) histogramOpts(name, help string, buckets []float64) prometheus.HistogramOpts {
	return prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.customLabels,
		Buckets:     buckets,
	}
}

func (m *Manager) initializeMetrics() { //nolint:funlen // long function required for comprehensive metrics initialization
	auto := promauto.With(m.registry)

	m.cacheLookups = auto.NewCounterVec(
		m.counterOpts("cache_lookups_total", "Memo table lookups by cache and outcome"),
		[]string{"cache", "result"},
	)
	m.cacheEntries = auto.NewCounterVec(
		m.counterOpts("cache_entries_total", "Entries installed into memo tables"),
		[]string{"cache"},
	)

	m.testFlags = auto.NewCounterVec(
		m.counterOpts("test_flags_total", "QC test outcomes by test and flag"),
		[]string{"test", "flag"},
	)
	m.evaluationLatency = auto.NewHistogram(
		m.histogramOpts("evaluation_latency_milliseconds", "Time to run the suite on one observation", m.histogramBuckets),
	)
	m.observationsAssessed = auto.NewCounter(
		m.counterOpts("observations_assessed_total", "Observations that received a combined flag"),
	)
	m.observationErrors = auto.NewCounterVec(
		m.counterOpts("observation_errors_total", "Observations whose evaluation failed, by error kind"),
		[]string{"kind"},
	)

	m.queueSize = auto.NewGauge(m.gaugeOpts("queue_size", "Jobs waiting in the queue"))
	m.queueCapacity = auto.NewGauge(m.gaugeOpts("queue_capacity", "Maximum queue capacity"))
	m.queueEnqueued = auto.NewCounter(m.counterOpts("queue_enqueue_total", "Jobs enqueued"))
	m.queueDequeued = auto.NewCounter(m.counterOpts("queue_dequeue_total", "Jobs dequeued"))
	m.queueEnqueueErrors = auto.NewCounter(m.counterOpts("queue_enqueue_errors_total", "Enqueue attempts that failed"))

	m.workerCount = auto.NewGauge(m.gaugeOpts("worker_count", "Workers in the pool"))
	m.workerActive = auto.NewGauge(m.gaugeOpts("worker_active_count", "Workers currently evaluating a job"))
	m.workerErrors = auto.NewCounter(m.counterOpts("worker_errors_total", "Jobs a worker could not complete"))

	m.runs = auto.NewCounterVec(
		m.counterOpts("runs_total", "QC runs by final status"),
		[]string{"status"},
	)
	m.runDuration = auto.NewHistogram(
		m.histogramOpts("run_duration_seconds", "Wall time of a QC run", prometheus.ExponentialBuckets(0.01, 4, 10)),
	)

	m.storeRecords = auto.NewGauge(m.gaugeOpts("store_records", "Assessments held by the result store"))
	m.storeQueryLatency = auto.NewHistogram(
		m.histogramOpts("store_query_latency_milliseconds", "Result store query latency", m.histogramBuckets),
	)
}

// RecordCacheLookup counts a memo lookup as a hit or a miss.
func RecordCacheLookup(cache string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	globalManager.cacheLookups.WithLabelValues(cache, result).Inc()
}

// RecordCacheEntry counts an entry installed into a memo table.
func RecordCacheEntry(cache string) {
	globalManager.cacheEntries.WithLabelValues(cache).Inc()
}

// RecordTestFlag counts one test outcome.
func RecordTestFlag(test, flag string) {
	globalManager.testFlags.WithLabelValues(test, flag).Inc()
}

// RecordEvaluationLatency records the time spent assessing one observation.
func RecordEvaluationLatency(d time.Duration) {
	globalManager.evaluationLatency.Observe(float64(d) / float64(time.Millisecond))
}

// RecordObservationAssessed increments the assessed observations counter.
func RecordObservationAssessed() {
	globalManager.observationsAssessed.Inc()
}

// RecordObservationError counts a failed evaluation under kind.
func RecordObservationError(kind string) {
	globalManager.observationErrors.WithLabelValues(kind).Inc()
}

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
	globalManager.queueEnqueued.Inc()
}

// RecordQueueDequeue increments the dequeue counter.
func RecordQueueDequeue() {
	globalManager.queueDequeued.Inc()
}

// RecordQueueEnqueueError increments the enqueue error counter.
func RecordQueueEnqueueError() {
	globalManager.queueEnqueueErrors.Inc()
}

// UpdateWorkerCount sets the current worker count.
func UpdateWorkerCount(count int) {
	globalManager.workerCount.Set(float64(count))
}

// AddWorkerActive adjusts the number of busy workers by delta.
func AddWorkerActive(delta int) {
	globalManager.workerActive.Add(float64(delta))
}

// RecordWorkerError increments the worker error counter.
func RecordWorkerError() {
	globalManager.workerErrors.Inc()
}

// RecordRun records a finished run.
func RecordRun(status string, d time.Duration) {
	globalManager.runs.WithLabelValues(status).Inc()
	globalManager.runDuration.Observe(d.Seconds())
}

// UpdateStoreRecords sets the number of stored assessments.
func UpdateStoreRecords(count int) {
	globalManager.storeRecords.Set(float64(count))
}

// RecordStoreQueryLatency records a result store query latency.
func RecordStoreQueryLatency(d time.Duration) {
	globalManager.storeQueryLatency.Observe(float64(d) / float64(time.Millisecond))
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
