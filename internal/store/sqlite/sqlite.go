// Package sqlite stores records in a local SQLite database file.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"

	"github.com/telhawk-systems/edr-telemetry/internal/models"
)

//go:embed migrations/*.sql
var migrations embed.FS

const queryTimeout = 5 * time.Second

type Store struct {
	db *sql.DB
}

// New opens (creating if needed) the database at path and migrates it to the
// latest schema.
func New(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// one writer; also keeps ":memory:" databases on a single connection
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping sqlite database: %w", err)
	}

	s := &Store{db: db}
	if err := s.MigrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// MigrateUp runs all pending migrations up to the latest version.
func (s *Store) MigrateUp() error {
	src, err := iofs.New(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("failed to load migrations: %w", err)
	}

	driver, err := migratesqlite.WithInstance(s.db, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("failed to create sqlite driver: %w", err)
	}

	// m is not closed: closing it would close s.db
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}

	version, dirty, err := m.Version()
	if err == nil {
		slog.Debug("sqlite schema ready", slog.Uint64("version", uint64(version)), slog.Bool("dirty", dirty))
	}
	return nil
}

func (s *Store) PutEvents(ctx context.Context, events []models.VehicleEvent) error {
	if len(events) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	return s.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO vehicle_events (vehicle_id, event_id, timestamp, payload)
			VALUES (?, ?, ?, ?)
			ON CONFLICT (vehicle_id, event_id) DO UPDATE
			SET timestamp = excluded.timestamp, payload = excluded.payload
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare event insert: %w", err)
		}
		defer stmt.Close()

		for _, e := range events {
			payload, err := json.Marshal(e)
			if err != nil {
				return fmt.Errorf("failed to marshal event %s: %w", e.EventID, err)
			}
			if _, err := stmt.ExecContext(ctx, e.VehicleID, e.EventID, e.Timestamp, string(payload)); err != nil {
				return fmt.Errorf("failed to insert event %s: %w", e.EventID, err)
			}
		}
		return nil
	})
}

func (s *Store) PutIncidents(ctx context.Context, incidents []models.RadarIncident) error {
	if len(incidents) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	return s.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO radar_incidents (event_id, radar_id, timestamp, object_type, confidence_level, payload)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT (event_id, radar_id) DO UPDATE
			SET timestamp = excluded.timestamp,
			    object_type = excluded.object_type,
			    confidence_level = excluded.confidence_level,
			    payload = excluded.payload
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare incident insert: %w", err)
		}
		defer stmt.Close()

		for _, r := range incidents {
			payload, err := json.Marshal(r)
			if err != nil {
				return fmt.Errorf("failed to marshal incident %s/%s: %w", r.EventID, r.RadarID, err)
			}
			if _, err := stmt.ExecContext(ctx, r.EventID, r.RadarID, r.Timestamp, r.ObjectType, r.ConfidenceLevel, string(payload)); err != nil {
				return fmt.Errorf("failed to insert incident %s/%s: %w", r.EventID, r.RadarID, err)
			}
		}
		return nil
	})
}

func (s *Store) ScanEvents(ctx context.Context, vehicleID string) ([]models.VehicleEvent, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT payload FROM vehicle_events
		WHERE vehicle_id = ?
		ORDER BY event_id
	`, vehicleID)
	if err != nil {
		return nil, fmt.Errorf("failed to scan events: %w", err)
	}
	defer rows.Close()

	events := []models.VehicleEvent{}
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to read event row: %w", err)
		}
		var e models.VehicleEvent
		if err := json.Unmarshal([]byte(payload), &e); err != nil {
			return nil, fmt.Errorf("failed to unmarshal event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// ScanIncidents uses a key range instead of LIKE: event ids contain '_',
// which LIKE treats as a wildcard.
func (s *Store) ScanIncidents(ctx context.Context, eventIDPrefix string) ([]models.RadarIncident, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	query := `SELECT payload FROM radar_incidents WHERE event_id >= ?`
	args := []any{eventIDPrefix}
	if end, ok := prefixEnd(eventIDPrefix); ok {
		query += ` AND event_id < ?`
		args = append(args, end)
	}
	query += ` ORDER BY event_id, radar_id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to scan incidents: %w", err)
	}
	defer rows.Close()

	incidents := []models.RadarIncident{}
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to read incident row: %w", err)
		}
		var r models.RadarIncident
		if err := json.Unmarshal([]byte(payload), &r); err != nil {
			return nil, fmt.Errorf("failed to unmarshal incident: %w", err)
		}
		incidents = append(incidents, r)
	}
	return incidents, rows.Err()
}

func (s *Store) DeleteEvents(ctx context.Context, keys []models.EventKey) error {
	if len(keys) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	return s.inTx(ctx, func(tx *sql.Tx) error {
		for _, k := range keys {
			if _, err := tx.ExecContext(ctx,
				`DELETE FROM vehicle_events WHERE vehicle_id = ? AND event_id = ?`,
				k.VehicleID, k.EventID,
			); err != nil {
				return fmt.Errorf("failed to delete event %s: %w", k.EventID, err)
			}
		}
		return nil
	})
}

func (s *Store) DeleteIncidents(ctx context.Context, keys []models.IncidentKey) error {
	if len(keys) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	return s.inTx(ctx, func(tx *sql.Tx) error {
		for _, k := range keys {
			if _, err := tx.ExecContext(ctx,
				`DELETE FROM radar_incidents WHERE event_id = ? AND radar_id = ?`,
				k.EventID, k.RadarID,
			); err != nil {
				return fmt.Errorf("failed to delete incident %s/%s: %w", k.EventID, k.RadarID, err)
			}
		}
		return nil
	})
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// prefixEnd returns the smallest string greater than every string with the
// given prefix. ok is false when no such bound exists (empty or all 0xff).
func prefixEnd(prefix string) (string, bool) {
	b := []byte(prefix)
	for i := len(b) - 1; i >= 0; i-- {
		if b[i] < 0xff {
			b[i]++
			return string(b[:i+1]), true
		}
	}
	return "", false
}
