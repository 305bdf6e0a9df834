// Package storetest holds the behavior every store backend must share.
package storetest

import (
	"context"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telhawk-systems/edr-telemetry/internal/models"
	"github.com/telhawk-systems/edr-telemetry/internal/store"
)

var base = time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)

// Event returns a fully populated event for vehicle n.
func Event(n, i int) models.VehicleEvent {
	return models.VehicleEvent{
		VehicleID:        models.VehicleID(n),
		EventID:          models.EventID(n, i),
		Timestamp:        models.FormatEventTime(base.Add(-time.Duration(i) * 10 * time.Second)),
		EventType:        "rapid dec",
		Acceleration:     models.Acceleration{X: 1.25, Y: -0.5, Z: 9.8},
		Location:         models.Location{Latitude: 37.5, Longitude: -122.25},
		VehicleSpeed:     60 + i,
		FuelLevel:        50,
		EngineRPM:        2200,
		ThrottlePosition: 40,
		BrakeStatus:      "released",
		SeatbeltStatus:   "locked",
		AirbagDeployed:   i%2 == 0,
		ErrorCodes:       []string{"P101", fmt.Sprintf("P%d", 200+i)},
	}
}

// Incident returns a fully populated radar reading for vehicle n.
func Incident(n, i int) models.RadarIncident {
	return models.RadarIncident{
		EventID:         models.EventID(n, i),
		Timestamp:       models.FormatRadarTime(base.Add(time.Duration(i) * time.Millisecond)),
		RadarID:         models.RadarID(i),
		Distance:        12.5,
		Velocity:        33.75,
		AzimuthAngle:    i % 360,
		ElevationAngle:  i % 90,
		ObjectType:      "pedestrian",
		ObjectSize:      "small",
		ObjectClass:     "car",
		ConfidenceLevel: 0.85,
	}
}

// Run exercises s through the store contract. The store must start empty.
func Run(t *testing.T, s store.Store) {
	t.Helper()
	ctx := context.Background()

	t.Run("scan empty store", func(t *testing.T) {
		events, err := s.ScanEvents(ctx, models.VehicleID(1))
		require.NoError(t, err)
		assert.Empty(t, events)

		incidents, err := s.ScanIncidents(ctx, models.EventIDPrefix(1))
		require.NoError(t, err)
		assert.Empty(t, incidents)
	})

	var v1Events, v10Events []models.VehicleEvent
	for i := 0; i < 30; i++ {
		v1Events = append(v1Events, Event(1, i))
	}
	for i := 0; i < 5; i++ {
		v10Events = append(v10Events, Event(10, i))
	}

	var v1Incidents, v10Incidents []models.RadarIncident
	for i := 0; i < 60; i++ {
		v1Incidents = append(v1Incidents, Incident(1, i))
	}
	for i := 0; i < 3; i++ {
		v10Incidents = append(v10Incidents, Incident(10, i))
	}

	t.Run("put and scan events", func(t *testing.T) {
		require.NoError(t, s.PutEvents(ctx, v1Events))
		require.NoError(t, s.PutEvents(ctx, v10Events))

		got, err := s.ScanEvents(ctx, models.VehicleID(1))
		require.NoError(t, err)
		assertEvents(t, v1Events, got)

		got, err = s.ScanEvents(ctx, models.VehicleID(10))
		require.NoError(t, err)
		assertEvents(t, v10Events, got)
	})

	t.Run("put overwrites existing key", func(t *testing.T) {
		updated := Event(1, 0)
		updated.VehicleSpeed = 0
		updated.AirbagDeployed = true
		require.NoError(t, s.PutEvents(ctx, []models.VehicleEvent{updated}))

		got, err := s.ScanEvents(ctx, models.VehicleID(1))
		require.NoError(t, err)
		require.Len(t, got, len(v1Events))

		for _, e := range got {
			if e.EventID == updated.EventID {
				assert.Equal(t, 0, e.VehicleSpeed)
				assert.True(t, e.AirbagDeployed)
			}
		}
	})

	t.Run("put and scan incidents by prefix", func(t *testing.T) {
		require.NoError(t, s.PutIncidents(ctx, v1Incidents))
		require.NoError(t, s.PutIncidents(ctx, v10Incidents))

		got, err := s.ScanIncidents(ctx, models.EventIDPrefix(1))
		require.NoError(t, err)
		assertIncidents(t, v1Incidents, got)

		got, err = s.ScanIncidents(ctx, models.EventIDPrefix(10))
		require.NoError(t, err)
		assertIncidents(t, v10Incidents, got)
	})

	t.Run("repeated key in one call keeps the last", func(t *testing.T) {
		first := Incident(20, 0)
		second := Incident(20, 1)
		last := Incident(20, 0)
		last.Distance = 99.5
		last.ObjectType = "cyclist"
		require.NoError(t, s.PutIncidents(ctx, []models.RadarIncident{first, second, last}))

		got, err := s.ScanIncidents(ctx, models.EventIDPrefix(20))
		require.NoError(t, err)
		assertIncidents(t, []models.RadarIncident{last, second}, got)
	})

	t.Run("delete", func(t *testing.T) {
		keys := make([]models.EventKey, 0, len(v1Events))
		for _, e := range v1Events {
			keys = append(keys, e.Key())
		}
		keys = append(keys, models.EventKey{VehicleID: "vehicle_404", EventID: "event_id_404_0"})
		require.NoError(t, s.DeleteEvents(ctx, keys))

		ikeys := make([]models.IncidentKey, 0, len(v1Incidents))
		for _, r := range v1Incidents {
			ikeys = append(ikeys, r.Key())
		}
		require.NoError(t, s.DeleteIncidents(ctx, ikeys))

		events, err := s.ScanEvents(ctx, models.VehicleID(1))
		require.NoError(t, err)
		assert.Empty(t, events)

		incidents, err := s.ScanIncidents(ctx, models.EventIDPrefix(1))
		require.NoError(t, err)
		assert.Empty(t, incidents)

		events, err = s.ScanEvents(ctx, models.VehicleID(10))
		require.NoError(t, err)
		assert.Len(t, events, len(v10Events))

		incidents, err = s.ScanIncidents(ctx, models.EventIDPrefix(10))
		require.NoError(t, err)
		assert.Len(t, incidents, len(v10Incidents))
	})

	t.Run("empty batches are no-ops", func(t *testing.T) {
		assert.NoError(t, s.PutEvents(ctx, nil))
		assert.NoError(t, s.PutIncidents(ctx, nil))
		assert.NoError(t, s.DeleteEvents(ctx, nil))
		assert.NoError(t, s.DeleteIncidents(ctx, nil))
	})
}

func assertEvents(t *testing.T, want, got []models.VehicleEvent) {
	t.Helper()
	want = append([]models.VehicleEvent(nil), want...)
	got = append([]models.VehicleEvent(nil), got...)
	sort.Slice(want, func(i, j int) bool { return want[i].EventID < want[j].EventID })
	sort.Slice(got, func(i, j int) bool { return got[i].EventID < got[j].EventID })
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("events mismatch (-want +got):\n%s", diff)
	}
}

func assertIncidents(t *testing.T, want, got []models.RadarIncident) {
	t.Helper()
	less := func(s []models.RadarIncident) func(i, j int) bool {
		return func(i, j int) bool {
			if s[i].EventID != s[j].EventID {
				return s[i].EventID < s[j].EventID
			}
			return s[i].RadarID < s[j].RadarID
		}
	}
	want = append([]models.RadarIncident(nil), want...)
	got = append([]models.RadarIncident(nil), got...)
	sort.Slice(want, less(want))
	sort.Slice(got, less(got))
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("incidents mismatch (-want +got):\n%s", diff)
	}
}
