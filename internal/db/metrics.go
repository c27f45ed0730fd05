package db

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Query metrics, shared by every storage backend
	queryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "govindexor_db_query_duration_seconds",
			Help:    "Duration of storage operations",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"backend", "operation"},
	)

	queryErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "govindexor_db_query_errors_total",
			Help: "Total number of failed storage operations",
		},
		[]string{"backend", "operation"},
	)

	// Maintenance metrics
	maintenanceRuns = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "govindexor_maintenance_runs_total",
			Help: "Total number of maintenance operations",
		},
	)

	maintenanceOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "govindexor_maintenance_outcomes_total",
			Help: "Total number of maintenance operations by outcome",
		},
		[]string{"status"},
	)

	maintenanceDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "govindexor_maintenance_duration_seconds",
			Help:    "Duration of maintenance operations",
			Buckets: prometheus.DefBuckets,
		},
	)

	walCheckpoints = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "govindexor_wal_checkpoint_total",
			Help: "Total number of WAL checkpoint operations",
		},
		[]string{"mode"},
	)

	dbSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "govindexor_db_size_bytes",
			Help: "SQLite database size in bytes, WAL included",
		},
	)
)

// ObserveQuery records the duration and outcome of a storage operation.
func ObserveQuery(backend, operation string, start time.Time, err error) {
	queryDuration.WithLabelValues(backend, operation).Observe(time.Since(start).Seconds())
	if err != nil {
		queryErrors.WithLabelValues(backend, operation).Inc()
	}
}

func maintenanceDone(duration time.Duration, err error) {
	maintenanceRuns.Inc()
	maintenanceDuration.Observe(duration.Seconds())

	status := "success"
	if err != nil {
		status = "error"
	}
	maintenanceOutcomes.WithLabelValues(status).Inc()
}
