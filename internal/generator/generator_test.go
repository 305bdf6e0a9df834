package generator

import (
	"context"
	"errors"
	"math"
	"regexp"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telhawk-systems/edr-telemetry/internal/detect"
	"github.com/telhawk-systems/edr-telemetry/internal/models"
)

var fixedNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func clock() time.Time { return fixedNow }

func defaultOptions() Options {
	return Options{
		Vehicles:            3,
		IncidentsPerVehicle: 4,
		ReadingsPerIncident: 5,
		MinEvents:           1,
		MaxEvents:           5,
		Seed:                42,
	}
}

func collect(t *testing.T, g *Generator) []Batch {
	t.Helper()
	var batches []Batch
	require.NoError(t, g.Each(context.Background(), func(b Batch) error {
		batches = append(batches, b)
		return nil
	}))
	return batches
}

func hasDecimals(v float64, decimals int) bool {
	p := math.Pow(10, float64(decimals))
	return math.Abs(v*p-math.Round(v*p)) < 1e-6
}

func TestEach_Shape(t *testing.T) {
	opts := defaultOptions()
	batches := collect(t, New(opts, clock))

	require.Len(t, batches, opts.Vehicles*opts.IncidentsPerVehicle)
	for i, b := range batches {
		assert.Equal(t, i/opts.IncidentsPerVehicle+1, b.Vehicle)
		assert.Equal(t, i%opts.IncidentsPerVehicle, b.Incident)
		assert.GreaterOrEqual(t, len(b.Events), opts.MinEvents)
		assert.LessOrEqual(t, len(b.Events), opts.MaxEvents)
		assert.Len(t, b.Readings, opts.ReadingsPerIncident)
		assert.False(t, b.Crash)
	}
}

func TestEach_EventIDsUniquePerVehicle(t *testing.T) {
	batches := collect(t, New(defaultOptions(), clock))

	seen := map[models.EventKey]bool{}
	next := map[int]int{}
	for _, b := range batches {
		for _, e := range b.Events {
			assert.False(t, seen[e.Key()], "duplicate key %v", e.Key())
			seen[e.Key()] = true

			assert.Equal(t, models.VehicleID(b.Vehicle), e.VehicleID)
			assert.Equal(t, models.EventID(b.Vehicle, next[b.Vehicle]), e.EventID)
			next[b.Vehicle]++
		}
	}
}

func TestEach_EventTimestampsDecrease(t *testing.T) {
	batches := collect(t, New(defaultOptions(), clock))

	for _, b := range batches {
		for i, e := range b.Events {
			ts, err := e.Time()
			require.NoError(t, err)
			assert.Equal(t, fixedNow.Add(-time.Duration(i)*10*time.Second), ts)
		}
	}
}

func TestEach_EventRanges(t *testing.T) {
	codeRe := regexp.MustCompile(`^P[1-9]\d{2}$`)
	opts := defaultOptions()
	opts.Vehicles = 10

	for _, b := range collect(t, New(opts, clock)) {
		for _, e := range b.Events {
			assert.Contains(t, eventTypes, e.EventType)
			assert.Contains(t, brakeStatuses, e.BrakeStatus)
			assert.Contains(t, seatbeltStatuses, e.SeatbeltStatus)

			assert.InDelta(t, 0, e.Acceleration.X, 2.5)
			assert.InDelta(t, 0, e.Acceleration.Y, 1.2)
			assert.Equal(t, 9.8, e.Acceleration.Z)
			assert.True(t, hasDecimals(e.Acceleration.X, 2), "x=%v", e.Acceleration.X)
			assert.True(t, hasDecimals(e.Acceleration.Y, 2), "y=%v", e.Acceleration.Y)

			assert.GreaterOrEqual(t, e.Location.Latitude, 37.0)
			assert.LessOrEqual(t, e.Location.Latitude, 38.0)
			assert.True(t, hasDecimals(e.Location.Latitude, 1), "lat=%v", e.Location.Latitude)
			assert.GreaterOrEqual(t, e.Location.Longitude, -122.51)
			assert.LessOrEqual(t, e.Location.Longitude, -121.99)
			assert.True(t, hasDecimals(e.Location.Longitude, 2), "lon=%v", e.Location.Longitude)

			assert.GreaterOrEqual(t, e.VehicleSpeed, 45)
			assert.LessOrEqual(t, e.VehicleSpeed, 105)
			assert.GreaterOrEqual(t, e.FuelLevel, 27)
			assert.LessOrEqual(t, e.FuelLevel, 83)
			assert.GreaterOrEqual(t, e.EngineRPM, 1300)
			assert.LessOrEqual(t, e.EngineRPM, 3200)
			assert.GreaterOrEqual(t, e.ThrottlePosition, 25)
			assert.LessOrEqual(t, e.ThrottlePosition, 75)

			require.Len(t, e.ErrorCodes, 2)
			for _, code := range e.ErrorCodes {
				assert.Regexp(t, codeRe, code)
			}
		}
	}
}

func TestEach_ReadingRanges(t *testing.T) {
	opts := defaultOptions()

	for _, b := range collect(t, New(opts, clock)) {
		incidentTime := fixedNow.Add(-time.Duration(b.Incident) * 10 * time.Second)
		for i, r := range b.Readings {
			assert.Equal(t, models.EventID(b.Vehicle, i), r.EventID)
			assert.Equal(t, models.RadarID(i), r.RadarID)
			assert.Equal(t, models.FormatRadarTime(incidentTime.Add(time.Duration(i)*time.Millisecond)), r.Timestamp)

			assert.GreaterOrEqual(t, r.Distance, 1.0)
			assert.LessOrEqual(t, r.Distance, 100.0)
			assert.GreaterOrEqual(t, r.Velocity, 1.0)
			assert.LessOrEqual(t, r.Velocity, 50.0)
			assert.True(t, hasDecimals(r.Distance, 2))
			assert.True(t, hasDecimals(r.Velocity, 2))
			assert.GreaterOrEqual(t, r.AzimuthAngle, 0)
			assert.LessOrEqual(t, r.AzimuthAngle, 360)
			assert.GreaterOrEqual(t, r.ElevationAngle, 0)
			assert.LessOrEqual(t, r.ElevationAngle, 90)
			assert.Contains(t, objectTypes, r.ObjectType)
			assert.Contains(t, objectSizes, r.ObjectSize)
			assert.Contains(t, objectClasses, r.ObjectClass)
			assert.GreaterOrEqual(t, r.ConfidenceLevel, 0.5)
			assert.LessOrEqual(t, r.ConfidenceLevel, 1.0)
			assert.True(t, hasDecimals(r.ConfidenceLevel, 2))
		}
	}
}

func TestEach_DeterministicForSeed(t *testing.T) {
	a := collect(t, New(defaultOptions(), clock))
	b := collect(t, New(defaultOptions(), clock))
	if diff := cmp.Diff(a, b); diff != "" {
		t.Errorf("same seed produced different data (-first +second):\n%s", diff)
	}

	opts := defaultOptions()
	opts.Seed = 43
	c := collect(t, New(opts, clock))
	assert.NotEqual(t, a, c)
}

func TestEach_InjectedCrashesAreDetected(t *testing.T) {
	opts := defaultOptions()
	opts.IncidentsPerVehicle = 1
	opts.AccidentRate = 1

	for _, b := range collect(t, New(opts, clock)) {
		require.True(t, b.Crash)
		require.GreaterOrEqual(t, len(b.Events), 2)

		crash := b.Events[0]
		assert.Zero(t, crash.VehicleSpeed)
		assert.True(t, crash.AirbagDeployed)
		assert.Equal(t, "applied", crash.BrakeStatus)

		// timestamps still decrease with index
		var prev time.Time
		for i, e := range b.Events {
			ts, err := e.Time()
			require.NoError(t, err)
			if i > 0 {
				assert.True(t, ts.Before(prev), "event %d not older than event %d", i, i-1)
			}
			prev = ts
		}

		accidents, err := detect.Accidents(b.Events)
		require.NoError(t, err)
		require.Len(t, accidents, 1)
		assert.Equal(t, crash.EventID, accidents[0].EventID)
	}
}

func TestEach_NoCrashesWithoutAccidentRate(t *testing.T) {
	opts := defaultOptions()
	opts.Vehicles = 5

	for _, b := range collect(t, New(opts, clock)) {
		accidents, err := detect.Accidents(b.Events)
		require.NoError(t, err)
		assert.Empty(t, accidents)
	}
}

func TestEach_StopsOnCallbackError(t *testing.T) {
	boom := errors.New("store unavailable")
	calls := 0

	err := New(defaultOptions(), clock).Each(context.Background(), func(Batch) error {
		calls++
		return boom
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "vehicle 1 incident 0")
	assert.Equal(t, 1, calls)
}

func TestEach_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := New(defaultOptions(), clock).Each(ctx, func(Batch) error {
		t.Fatal("callback should not run")
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNew_DefaultsToWallClock(t *testing.T) {
	opts := defaultOptions()
	opts.Vehicles = 1
	opts.IncidentsPerVehicle = 1

	before := time.Now().Add(-time.Second)
	var got Batch
	require.NoError(t, New(opts, nil).Each(context.Background(), func(b Batch) error {
		got = b
		return nil
	}))

	ts, err := got.Events[0].Time()
	require.NoError(t, err)
	assert.False(t, ts.Before(before.Truncate(time.Second)))
}
