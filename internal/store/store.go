// Package store defines the record store shared by the generator and the query
// commands.
package store

import (
	"context"
	"errors"

	"github.com/telhawk-systems/edr-telemetry/internal/models"
)

var (
	ErrUnknownBackend = errors.New("unknown store backend")
	ErrClosed         = errors.New("batch writer is closed")
)

// Store persists vehicle events and radar incidents.
//
// Puts are upserts keyed by the record key. Scans return every matching record,
// paginating internally where the backend requires it. Deleting a key that does
// not exist is not an error.
type Store interface {
	PutEvents(ctx context.Context, events []models.VehicleEvent) error
	PutIncidents(ctx context.Context, incidents []models.RadarIncident) error

	// ScanEvents returns the events whose vehicle_id equals vehicleID.
	ScanEvents(ctx context.Context, vehicleID string) ([]models.VehicleEvent, error)
	// ScanIncidents returns the incidents whose event_id begins with eventIDPrefix.
	ScanIncidents(ctx context.Context, eventIDPrefix string) ([]models.RadarIncident, error)

	DeleteEvents(ctx context.Context, keys []models.EventKey) error
	DeleteIncidents(ctx context.Context, keys []models.IncidentKey) error

	Close() error
}
