// Package metrics provides Prometheus metrics for the podium aggregation engine.
package metrics

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager owns every Prometheus collector exported by the loader.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	registry         prometheus.Registerer

	// Event flow
	eventsGenerated prometheus.Counter
	eventsProcessed prometheus.Counter
	eventsFailed    prometheus.Counter
	eventLatency    prometheus.Histogram

	// Stores
	storeOutcomes  *prometheus.CounterVec
	storeErrors    *prometheus.CounterVec
	storeRetries   *prometheus.CounterVec
	storeOpLatency *prometheus.HistogramVec

	// Partitions
	partitionsEnsured *prometheus.CounterVec

	// Lanes
	laneQueueDepth *prometheus.GaugeVec
	workerCount    prometheus.Gauge

	// Storage
	dbPoolConnections *prometheus.GaugeVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
}

// Global metrics manager instance and the custom registry it is registered
// on; the custom registry avoids default Go metrics.
var (
	globalManager  atomic.Pointer[Manager]             //nolint:gochecknoglobals // intentional global for singleton metrics manager
	customRegistry atomic.Pointer[prometheus.Registry] //nolint:gochecknoglobals // intentional global for metrics registry
)

func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	Configure()
}

// Configure replaces the global manager with one built from opts on a fresh
// registry. Call it at startup before serving GetRegistry.
func Configure(opts ...Option) {
	registry := prometheus.NewRegistry()
	m := NewManager(append(opts, WithPrometheusRegistry(registry))...)
	customRegistry.Store(registry)
	globalManager.Store(m)
}

func current() *Manager {
	return globalManager.Load()
}

// NewManager creates a metrics manager and registers its collectors.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "podium",
		subsystem:        "loader",
		histogramBuckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 25, 50, 100, 250, 1000},
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

func (m *Manager) initializeMetrics() { //nolint:funlen // one place for all collectors
	auto := promauto.With(m.registry)

	m.eventsGenerated = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "events_generated_total",
		Help:      "Total number of score events read from the event source",
	})

	m.eventsProcessed = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "events_processed_total",
		Help:      "Total number of score events folded into every store",
	})

	m.eventsFailed = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "events_failed_total",
		Help:      "Total number of score events that aborted the run",
	})

	m.eventLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "event_latency_milliseconds",
		Help:      "Time to fold one event into all stores in milliseconds",
		Buckets:   m.histogramBuckets,
	})

	m.storeOutcomes = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "store_outcomes_total",
			Help:      "Upsert outcomes by store (inserted, updated, skipped, appended)",
		},
		[]string{"store", "outcome"},
	)

	m.storeErrors = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "store_errors_total",
			Help:      "Store errors by store and error kind",
		},
		[]string{"store", "kind"},
	)

	m.storeRetries = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "store_retries_total",
			Help:      "Retried store operations after a conflict or timeout",
		},
		[]string{"store"},
	)

	m.storeOpLatency = auto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "store_operation_latency_milliseconds",
			Help:      "Latency of a single store upsert or append in milliseconds",
			Buckets:   m.histogramBuckets,
		},
		[]string{"store"},
	)

	m.partitionsEnsured = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "partitions_ensured_total",
			Help:      "Partitions materialized in the backend by kind",
		},
		[]string{"kind"},
	)

	m.laneQueueDepth = auto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "lane_queue_depth",
			Help:      "Events waiting in each user lane",
		},
		[]string{"lane"},
	)

	m.workerCount = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "worker_count",
		Help:      "Number of lanes processing events",
	})

	m.dbPoolConnections = auto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "db_pool_connections",
			Help:      "Database pool connections by state",
		},
		[]string{"state"},
	)

	m.systemMemoryUsage = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "system_memory_usage_bytes",
		Help:      "System memory usage in bytes",
	})

	m.systemGoroutineCount = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "system_goroutine_count",
		Help:      "Number of goroutines",
	})
}

// RecordEventGenerated increments the events generated counter.
func RecordEventGenerated() {
	current().eventsGenerated.Inc()
}

// RecordEventProcessed increments the events processed counter and observes its latency.
func RecordEventProcessed(latencyMs float64) {
	current().eventsProcessed.Inc()
	current().eventLatency.Observe(latencyMs)
}

// RecordEventFailed increments the failed events counter.
func RecordEventFailed() {
	current().eventsFailed.Inc()
}

// RecordStoreOutcome counts one upsert outcome for a store.
func RecordStoreOutcome(store, outcome string) {
	current().storeOutcomes.WithLabelValues(store, outcome).Inc()
}

// RecordStoreError counts a store error of the given kind.
func RecordStoreError(store, kind string) {
	current().storeErrors.WithLabelValues(store, kind).Inc()
}

// RecordStoreRetry counts a retried store operation.
func RecordStoreRetry(store string) {
	current().storeRetries.WithLabelValues(store).Inc()
}

// RecordStoreLatency observes a store operation latency in milliseconds.
func RecordStoreLatency(store string, latencyMs float64) {
	current().storeOpLatency.WithLabelValues(store).Observe(latencyMs)
}

// RecordPartitionEnsured counts a partition materialized in the backend.
func RecordPartitionEnsured(kind string) {
	current().partitionsEnsured.WithLabelValues(kind).Inc()
}

// UpdateLaneQueueDepth sets the number of events waiting in a lane.
func UpdateLaneQueueDepth(lane string, depth int) {
	current().laneQueueDepth.WithLabelValues(lane).Set(float64(depth))
}

// UpdateWorkerCount sets the current lane count.
func UpdateWorkerCount(count int) {
	current().workerCount.Set(float64(count))
}

// UpdateDBPoolConnections sets the database pool connection counts.
func UpdateDBPoolConnections(total, idle, acquired int) {
	current().dbPoolConnections.WithLabelValues("total").Set(float64(total))
	current().dbPoolConnections.WithLabelValues("idle").Set(float64(idle))
	current().dbPoolConnections.WithLabelValues("acquired").Set(float64(acquired))
}

// UpdateSystemMemoryUsage sets the system memory usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	current().systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) {
	current().systemGoroutineCount.Set(float64(count))
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry.Load()
}
