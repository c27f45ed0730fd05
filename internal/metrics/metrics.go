package metrics

import (
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Indexing metrics
	LastCheckpoint = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "govindexor_last_checkpoint_height",
			Help: "The last block height fully applied and checkpointed",
		},
		[]string{"namespace"},
	)

	BlocksProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "govindexor_blocks_processed_total",
			Help: "Total number of blocks processed",
		},
		[]string{"namespace"},
	)

	LogsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "govindexor_logs_processed_total",
			Help: "Total number of logs seen in processed blocks",
		},
		[]string{"namespace"},
	)

	BlockProcessingTime = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "govindexor_block_processing_duration_seconds",
			Help:    "Time taken to dispatch and commit a block",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"namespace"},
	)

	IndexingRate = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "govindexor_indexing_rate_blocks_per_second",
			Help: "Current indexing rate in blocks per second",
		},
		[]string{"namespace"},
	)

	FetchRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "govindexor_fetch_retries_total",
			Help: "Total number of fixed delay retries of an unavailable block",
		},
		[]string{"namespace"},
	)

	// Dispatch metrics
	EventsDispatched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "govindexor_events_dispatched_total",
			Help: "Total number of events handed to writers",
		},
		[]string{"namespace", "handler"},
	)

	WriterFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "govindexor_writer_failures_total",
			Help: "Total number of writer failures",
		},
		[]string{"namespace", "handler"},
	)

	TemplateInstances = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "govindexor_template_instances_total",
			Help: "Total number of template instances created",
		},
		[]string{"namespace", "template"},
	)

	// Notifier metrics
	NotifierFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "govindexor_notifier_failures_total",
			Help: "Total number of failed block notifications",
		},
		[]string{"namespace"},
	)

	// System metrics
	Uptime = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "govindexor_uptime_seconds",
			Help: "Application uptime in seconds",
		},
	)

	Errors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "govindexor_errors_total",
			Help: "Total number of errors by component and severity",
		},
		[]string{"component", "severity"},
	)

	ComponentHealth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "govindexor_component_health",
			Help: "Component health status (1=healthy, 0=unhealthy)",
		},
		[]string{"component"},
	)

	Goroutines = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "govindexor_goroutines",
			Help: "Number of active goroutines",
		},
	)

	MemoryUsage = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "govindexor_memory_usage_bytes",
			Help: "Memory usage statistics",
		},
		[]string{"type"},
	)

	startTime = time.Now()
)

func BlockProcessingTimeLog(namespace string, duration time.Duration) {
	BlockProcessingTime.WithLabelValues(namespace).Observe(duration.Seconds())
}

func LastCheckpointSet(namespace string, height uint64) {
	LastCheckpoint.WithLabelValues(namespace).Set(float64(height))
}

func BlocksProcessedInc(namespace string) {
	BlocksProcessed.WithLabelValues(namespace).Inc()
}

func LogsProcessedInc(namespace string, count int) {
	LogsProcessed.WithLabelValues(namespace).Add(float64(count))
}

func IndexingRateLog(namespace string, rate float64) {
	IndexingRate.WithLabelValues(namespace).Set(rate)
}

func FetchRetriesInc(namespace string) {
	FetchRetries.WithLabelValues(namespace).Inc()
}

func EventsDispatchedInc(namespace, handler string) {
	EventsDispatched.WithLabelValues(namespace, handler).Inc()
}

func WriterFailuresInc(namespace, handler string) {
	WriterFailures.WithLabelValues(namespace, handler).Inc()
}

func TemplateInstancesInc(namespace, template string) {
	TemplateInstances.WithLabelValues(namespace, template).Inc()
}

func NotifierFailuresInc(namespace string) {
	NotifierFailures.WithLabelValues(namespace).Inc()
}

func ErrorsInc(component, severity string) {
	Errors.WithLabelValues(component, severity).Inc()
}

func ComponentHealthSet(component string, healthy bool) {
	boolAsFloat := float64(1)
	if !healthy {
		boolAsFloat = 0
	}

	ComponentHealth.WithLabelValues(component).Set(boolAsFloat)
}

// UpdateSystemMetrics updates runtime system metrics.
// This should be called periodically (e.g., every 15 seconds).
func UpdateSystemMetrics() {
	Uptime.Set(time.Since(startTime).Seconds())

	Goroutines.Set(float64(runtime.NumGoroutine()))

	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	MemoryUsage.WithLabelValues("alloc").Set(float64(m.Alloc))
	MemoryUsage.WithLabelValues("total_alloc").Set(float64(m.TotalAlloc))
	MemoryUsage.WithLabelValues("sys").Set(float64(m.Sys))
	MemoryUsage.WithLabelValues("heap_inuse").Set(float64(m.HeapInuse))
}
