// Package postgres stores records in PostgreSQL tables with a JSONB payload
// column holding the full record.
package postgres

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/telhawk-systems/edr-telemetry/internal/models"
)

//go:embed migrations/*.sql
var migrations embed.FS

const queryTimeout = 5 * time.Second

type Store struct {
	pool *pgxpool.Pool
}

// New connects to the database, runs pending migrations and returns a store.
func New(ctx context.Context, connString string) (*Store, error) {
	if err := MigrateUp(connString); err != nil {
		return nil, err
	}

	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}
	config.MaxConns = 10
	config.MaxConnLifetime = 5 * time.Minute
	config.MaxConnIdleTime = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{pool: pool}, nil
}

// MigrateUp applies the embedded migrations to the database at connString.
func MigrateUp(connString string) error {
	src, err := iofs.New(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("failed to load migrations: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", src, connString)
	if err != nil {
		return fmt.Errorf("failed to initialize migrations: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil {
		slog.Warn("Could not get migration version", slog.String("error", err.Error()))
	} else {
		slog.Debug("Database migration complete",
			slog.Uint64("version", uint64(version)),
			slog.Bool("dirty", dirty),
		)
	}
	return nil
}

func (s *Store) PutEvents(ctx context.Context, events []models.VehicleEvent) error {
	if len(events) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	query := `
		INSERT INTO vehicle_events (vehicle_id, event_id, timestamp, payload)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (vehicle_id, event_id) DO UPDATE
		SET timestamp = EXCLUDED.timestamp, payload = EXCLUDED.payload
	`

	batch := &pgx.Batch{}
	for _, e := range events {
		payload, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("failed to marshal event %s: %w", e.EventID, err)
		}
		batch.Queue(query, e.VehicleID, e.EventID, e.Timestamp, payload)
	}

	if err := s.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to save events: %w", err)
	}
	return nil
}

func (s *Store) PutIncidents(ctx context.Context, incidents []models.RadarIncident) error {
	if len(incidents) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	query := `
		INSERT INTO radar_incidents (event_id, radar_id, timestamp, object_type, confidence_level, payload)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (event_id, radar_id) DO UPDATE
		SET timestamp = EXCLUDED.timestamp,
		    object_type = EXCLUDED.object_type,
		    confidence_level = EXCLUDED.confidence_level,
		    payload = EXCLUDED.payload
	`

	batch := &pgx.Batch{}
	for _, r := range incidents {
		payload, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("failed to marshal incident %s/%s: %w", r.EventID, r.RadarID, err)
		}
		batch.Queue(query, r.EventID, r.RadarID, r.Timestamp, r.ObjectType, r.ConfidenceLevel, payload)
	}

	if err := s.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to save incidents: %w", err)
	}
	return nil
}

func (s *Store) ScanEvents(ctx context.Context, vehicleID string) ([]models.VehicleEvent, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows, err := s.pool.Query(ctx, `
		SELECT payload FROM vehicle_events
		WHERE vehicle_id = $1
		ORDER BY event_id
	`, vehicleID)
	if err != nil {
		return nil, fmt.Errorf("failed to scan events: %w", err)
	}

	events, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.VehicleEvent, error) {
		var payload []byte
		var e models.VehicleEvent
		if err := row.Scan(&payload); err != nil {
			return e, err
		}
		return e, json.Unmarshal(payload, &e)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read events: %w", err)
	}
	if events == nil {
		events = []models.VehicleEvent{}
	}
	return events, nil
}

// ScanIncidents matches with starts_with rather than LIKE so the '_' in event
// ids is taken literally.
func (s *Store) ScanIncidents(ctx context.Context, eventIDPrefix string) ([]models.RadarIncident, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows, err := s.pool.Query(ctx, `
		SELECT payload FROM radar_incidents
		WHERE starts_with(event_id, $1)
		ORDER BY event_id, radar_id
	`, eventIDPrefix)
	if err != nil {
		return nil, fmt.Errorf("failed to scan incidents: %w", err)
	}

	incidents, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.RadarIncident, error) {
		var payload []byte
		var r models.RadarIncident
		if err := row.Scan(&payload); err != nil {
			return r, err
		}
		return r, json.Unmarshal(payload, &r)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read incidents: %w", err)
	}
	if incidents == nil {
		incidents = []models.RadarIncident{}
	}
	return incidents, nil
}

func (s *Store) DeleteEvents(ctx context.Context, keys []models.EventKey) error {
	if len(keys) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	batch := &pgx.Batch{}
	for _, k := range keys {
		batch.Queue(`DELETE FROM vehicle_events WHERE vehicle_id = $1 AND event_id = $2`, k.VehicleID, k.EventID)
	}
	if err := s.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to delete events: %w", err)
	}
	return nil
}

func (s *Store) DeleteIncidents(ctx context.Context, keys []models.IncidentKey) error {
	if len(keys) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	batch := &pgx.Batch{}
	for _, k := range keys {
		batch.Queue(`DELETE FROM radar_incidents WHERE event_id = $1 AND radar_id = $2`, k.EventID, k.RadarID)
	}
	if err := s.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to delete incidents: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}
