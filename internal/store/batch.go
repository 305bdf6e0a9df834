package store

import (
	"context"
	"fmt"
	"time"

	"github.com/telhawk-systems/edr-telemetry/internal/metrics"
	"github.com/telhawk-systems/edr-telemetry/internal/models"
)

// DefaultBatchSize matches the DynamoDB BatchWriteItem limit.
const DefaultBatchSize = 25

// BatchWriter groups puts and deletes into store calls of at most Size
// records per kind. It is not safe for concurrent use.
type BatchWriter struct {
	store  Store
	size   int
	closed bool

	events         []models.VehicleEvent
	incidents      []models.RadarIncident
	eventKeys      []models.EventKey
	incidentKeys   []models.IncidentKey
	written        int
	deleted        int
	flushedBatches int
}

// NewBatchWriter creates a batch writer. A size below 1 uses DefaultBatchSize.
func NewBatchWriter(s Store, size int) *BatchWriter {
	if size < 1 {
		size = DefaultBatchSize
	}
	return &BatchWriter{store: s, size: size}
}

// PutEvent queues an event, flushing the event buffer when it is full.
func (w *BatchWriter) PutEvent(ctx context.Context, e models.VehicleEvent) error {
	if w.closed {
		return ErrClosed
	}
	w.events = append(w.events, e)
	if len(w.events) >= w.size {
		return w.flushEvents(ctx)
	}
	return nil
}

// PutIncident queues an incident, flushing the incident buffer when it is full.
func (w *BatchWriter) PutIncident(ctx context.Context, r models.RadarIncident) error {
	if w.closed {
		return ErrClosed
	}
	w.incidents = append(w.incidents, r)
	if len(w.incidents) >= w.size {
		return w.flushIncidents(ctx)
	}
	return nil
}

// DeleteEvent queues an event key for deletion.
func (w *BatchWriter) DeleteEvent(ctx context.Context, k models.EventKey) error {
	if w.closed {
		return ErrClosed
	}
	w.eventKeys = append(w.eventKeys, k)
	if len(w.eventKeys) >= w.size {
		return w.flushEventDeletes(ctx)
	}
	return nil
}

// DeleteIncident queues an incident key for deletion.
func (w *BatchWriter) DeleteIncident(ctx context.Context, k models.IncidentKey) error {
	if w.closed {
		return ErrClosed
	}
	w.incidentKeys = append(w.incidentKeys, k)
	if len(w.incidentKeys) >= w.size {
		return w.flushIncidentDeletes(ctx)
	}
	return nil
}

// Flush writes every buffered record.
func (w *BatchWriter) Flush(ctx context.Context) error {
	if err := w.flushEvents(ctx); err != nil {
		return err
	}
	if err := w.flushIncidents(ctx); err != nil {
		return err
	}
	if err := w.flushEventDeletes(ctx); err != nil {
		return err
	}
	return w.flushIncidentDeletes(ctx)
}

// Close flushes the buffers and rejects further writes. It does not close the
// underlying store.
func (w *BatchWriter) Close(ctx context.Context) error {
	if w.closed {
		return nil
	}
	err := w.Flush(ctx)
	w.closed = true
	return err
}

// Written returns the number of records put so far.
func (w *BatchWriter) Written() int { return w.written }

// Deleted returns the number of keys deleted so far.
func (w *BatchWriter) Deleted() int { return w.deleted }

// Batches returns the number of store calls issued so far.
func (w *BatchWriter) Batches() int { return w.flushedBatches }

func (w *BatchWriter) flushEvents(ctx context.Context) error {
	if len(w.events) == 0 {
		return nil
	}
	start := time.Now()
	err := w.store.PutEvents(ctx, w.events)
	metrics.ObserveStoreOperation("put_events", start, err)
	if err != nil {
		return fmt.Errorf("failed to write %d events: %w", len(w.events), err)
	}
	w.record(metrics.RecordsWritten.WithLabelValues("event"), len(w.events), &w.written)
	w.events = make([]models.VehicleEvent, 0, w.size)
	return nil
}

func (w *BatchWriter) flushIncidents(ctx context.Context) error {
	if len(w.incidents) == 0 {
		return nil
	}
	start := time.Now()
	err := w.store.PutIncidents(ctx, w.incidents)
	metrics.ObserveStoreOperation("put_incidents", start, err)
	if err != nil {
		return fmt.Errorf("failed to write %d incidents: %w", len(w.incidents), err)
	}
	w.record(metrics.RecordsWritten.WithLabelValues("incident"), len(w.incidents), &w.written)
	w.incidents = make([]models.RadarIncident, 0, w.size)
	return nil
}

func (w *BatchWriter) flushEventDeletes(ctx context.Context) error {
	if len(w.eventKeys) == 0 {
		return nil
	}
	start := time.Now()
	err := w.store.DeleteEvents(ctx, w.eventKeys)
	metrics.ObserveStoreOperation("delete_events", start, err)
	if err != nil {
		return fmt.Errorf("failed to delete %d events: %w", len(w.eventKeys), err)
	}
	w.record(metrics.RecordsDeleted.WithLabelValues("event"), len(w.eventKeys), &w.deleted)
	w.eventKeys = make([]models.EventKey, 0, w.size)
	return nil
}

func (w *BatchWriter) flushIncidentDeletes(ctx context.Context) error {
	if len(w.incidentKeys) == 0 {
		return nil
	}
	start := time.Now()
	err := w.store.DeleteIncidents(ctx, w.incidentKeys)
	metrics.ObserveStoreOperation("delete_incidents", start, err)
	if err != nil {
		return fmt.Errorf("failed to delete %d incidents: %w", len(w.incidentKeys), err)
	}
	w.record(metrics.RecordsDeleted.WithLabelValues("incident"), len(w.incidentKeys), &w.deleted)
	w.incidentKeys = make([]models.IncidentKey, 0, w.size)
	return nil
}

func (w *BatchWriter) record(counter interface{ Add(float64) }, n int, total *int) {
	counter.Add(float64(n))
	metrics.BatchesFlushed.Inc()
	*total += n
	w.flushedBatches++
}
