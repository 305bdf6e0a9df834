package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Store write metrics
	RecordsWritten = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "edr_records_written_total",
			Help: "Total number of records written to the store",
		},
		[]string{"kind"},
	)

	RecordsDeleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "edr_records_deleted_total",
			Help: "Total number of records deleted from the store",
		},
		[]string{"kind"},
	)

	BatchesFlushed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "edr_batches_flushed_total",
			Help: "Total number of batched store calls",
		},
	)

	StoreOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "edr_store_operation_duration_seconds",
			Help:    "Duration of store operations in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "status"},
	)

	// Query metrics
	RecordsScanned = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "edr_records_scanned_total",
			Help: "Total number of records returned by store scans",
		},
		[]string{"kind"},
	)

	AccidentsDetected = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "edr_accidents_detected_total",
			Help: "Total number of potential accidents detected",
		},
	)

	IncidentsMatched = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "edr_incidents_matched_total",
			Help: "Total number of radar incidents kept by the incident filter",
		},
	)
)

// ObserveStoreOperation records the duration of a store call started at start.
func ObserveStoreOperation(operation string, start time.Time, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	StoreOperationDuration.WithLabelValues(operation, status).Observe(time.Since(start).Seconds())
}

// WriteTextfile writes the default registry to path in the node_exporter
// textfile collector format.
func WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, prometheus.DefaultGatherer); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}
