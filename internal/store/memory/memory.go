// Package memory is an in-process record store used for dry runs and tests.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/telhawk-systems/edr-telemetry/internal/models"
)

type Store struct {
	events    map[models.EventKey]models.VehicleEvent
	incidents map[models.IncidentKey]models.RadarIncident
	mu        sync.RWMutex
}

func New() *Store {
	return &Store{
		events:    make(map[models.EventKey]models.VehicleEvent),
		incidents: make(map[models.IncidentKey]models.RadarIncident),
	}
}

func (s *Store) PutEvents(ctx context.Context, events []models.VehicleEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range events {
		e.ErrorCodes = append([]string(nil), e.ErrorCodes...)
		s.events[e.Key()] = e
	}
	return nil
}

func (s *Store) PutIncidents(ctx context.Context, incidents []models.RadarIncident) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range incidents {
		s.incidents[r.Key()] = r
	}
	return nil
}

// ScanEvents returns matching events ordered by key.
func (s *Store) ScanEvents(ctx context.Context, vehicleID string) ([]models.VehicleEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	events := []models.VehicleEvent{}
	for k, e := range s.events {
		if k.VehicleID == vehicleID {
			events = append(events, e)
		}
	}
	sort.Slice(events, func(i, j int) bool {
		return events[i].EventID < events[j].EventID
	})
	return events, nil
}

// ScanIncidents returns matching incidents ordered by key.
func (s *Store) ScanIncidents(ctx context.Context, eventIDPrefix string) ([]models.RadarIncident, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	incidents := []models.RadarIncident{}
	for k, r := range s.incidents {
		if strings.HasPrefix(k.EventID, eventIDPrefix) {
			incidents = append(incidents, r)
		}
	}
	sort.Slice(incidents, func(i, j int) bool {
		if incidents[i].EventID != incidents[j].EventID {
			return incidents[i].EventID < incidents[j].EventID
		}
		return incidents[i].RadarID < incidents[j].RadarID
	})
	return incidents, nil
}

func (s *Store) DeleteEvents(ctx context.Context, keys []models.EventKey) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, k := range keys {
		delete(s.events, k)
	}
	return nil
}

func (s *Store) DeleteIncidents(ctx context.Context, keys []models.IncidentKey) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, k := range keys {
		delete(s.incidents, k)
	}
	return nil
}

func (s *Store) Close() error {
	return nil
}
