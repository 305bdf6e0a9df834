// Package generator produces synthetic vehicle telemetry and radar readings.
//
// Each vehicle gets a base profile; every event of the vehicle is the base plus
// a small random delta. Events of a batch are spaced 10s apart going back from
// the batch time, radar readings 1ms apart going forward from the incident time.
package generator

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/brianvoe/gofakeit/v6"

	"github.com/telhawk-systems/edr-telemetry/internal/models"
)

const (
	eventSpacing   = 10 * time.Second
	readingSpacing = time.Millisecond
	// crashLeadTime separates the cruising event from the crash event.
	crashLeadTime = time.Second
)

var (
	eventTypes       = []string{"rapid acc", "rapid dec", "dtc event"}
	brakeStatuses    = []string{"applied", "released"}
	seatbeltStatuses = []string{"locked", "unlocked"}

	objectTypes   = []string{"vehicle", "pedestrian", "cyclist", "tree", "sign"}
	objectSizes   = []string{"small", "medium", "large"}
	objectClasses = []string{"car", "truck", "motorcycle"}
)

// Options controls how much data is generated.
type Options struct {
	Vehicles            int
	IncidentsPerVehicle int
	ReadingsPerIncident int
	MinEvents           int
	MaxEvents           int
	// AccidentRate is the probability that an event batch ends in a crash.
	AccidentRate float64
	// Seed 0 picks a random seed.
	Seed int64
}

// Base is the per-vehicle profile events are derived from.
type Base struct {
	Speed            int
	FuelLevel        int
	EngineRPM        int
	ThrottlePosition int
	Acceleration     models.Acceleration
	Location         models.Location
}

// Batch is the data generated for one incident of one vehicle.
type Batch struct {
	Vehicle  int
	Incident int
	Events   []models.VehicleEvent
	Readings []models.RadarIncident
	// Crash is set when the newest event of the batch is an injected crash.
	Crash bool
}

type Generator struct {
	opts  Options
	faker *gofakeit.Faker
	now   func() time.Time
}

// New creates a generator. now may be nil to use the wall clock.
func New(opts Options, now func() time.Time) *Generator {
	if now == nil {
		now = time.Now
	}
	return &Generator{
		opts:  opts,
		faker: gofakeit.New(opts.Seed),
		now:   now,
	}
}

// Each generates every batch in order (vehicles 1..N, incidents 0..M-1) and
// hands it to fn. It stops at the first error from fn or the context.
func (g *Generator) Each(ctx context.Context, fn func(Batch) error) error {
	for v := 1; v <= g.opts.Vehicles; v++ {
		base := g.Base()
		seq := 0

		for k := 0; k < g.opts.IncidentsPerVehicle; k++ {
			if err := ctx.Err(); err != nil {
				return err
			}

			n := g.faker.Number(g.opts.MinEvents, g.opts.MaxEvents)
			crash := g.opts.AccidentRate > 0 && g.faker.Float64Range(0, 1) < g.opts.AccidentRate
			if crash && n < 2 {
				n = 2
			}

			now := g.now()
			batch := Batch{
				Vehicle:  v,
				Incident: k,
				Events:   g.Events(v, base, seq, n, now),
				Readings: g.Readings(v, now.Add(-time.Duration(k)*eventSpacing), g.opts.ReadingsPerIncident),
				Crash:    crash,
			}
			if crash {
				injectCrash(batch.Events, now)
			}
			seq += n

			if err := fn(batch); err != nil {
				return fmt.Errorf("vehicle %d incident %d: %w", v, k, err)
			}
		}
	}
	return nil
}

// Base draws a new vehicle profile.
func (g *Generator) Base() Base {
	return Base{
		Speed:            g.faker.Number(50, 100),
		FuelLevel:        g.faker.Number(30, 80),
		EngineRPM:        g.faker.Number(1500, 3000),
		ThrottlePosition: g.faker.Number(30, 70),
		Acceleration: models.Acceleration{
			X: g.faker.Float64Range(-2, 2),
			Y: g.faker.Float64Range(-1, 1),
			Z: 9.8,
		},
		Location: models.Location{
			Latitude:  g.faker.Float64Range(37.0, 38.0),
			Longitude: g.faker.Float64Range(-122.5, -122.0),
		},
	}
}

// Events returns n events for vehicle v. Event i is stamped now - i*10s and
// numbered firstSeq+i, so ids stay unique across batches of the same vehicle.
func (g *Generator) Events(v int, base Base, firstSeq, n int, now time.Time) []models.VehicleEvent {
	events := make([]models.VehicleEvent, 0, n)
	for i := 0; i < n; i++ {
		events = append(events, models.VehicleEvent{
			VehicleID: models.VehicleID(v),
			EventID:   models.EventID(v, firstSeq+i),
			Timestamp: models.FormatEventTime(now.Add(-time.Duration(i) * eventSpacing)),
			EventType: g.faker.RandomString(eventTypes),
			Acceleration: models.Acceleration{
				X: round(base.Acceleration.X+g.faker.Float64Range(-0.5, 0.5), 2),
				Y: round(base.Acceleration.Y+g.faker.Float64Range(-0.2, 0.2), 2),
				Z: 9.8,
			},
			Location: models.Location{
				Latitude:  round(base.Location.Latitude+g.faker.Float64Range(-0.01, 0.01), 1),
				Longitude: round(base.Location.Longitude+g.faker.Float64Range(-0.01, 0.01), 2),
			},
			VehicleSpeed:     base.Speed + g.faker.Number(-5, 5),
			FuelLevel:        base.FuelLevel + g.faker.Number(-3, 3),
			EngineRPM:        base.EngineRPM + g.faker.Number(-200, 200),
			ThrottlePosition: base.ThrottlePosition + g.faker.Number(-5, 5),
			BrakeStatus:      g.faker.RandomString(brakeStatuses),
			SeatbeltStatus:   g.faker.RandomString(seatbeltStatuses),
			AirbagDeployed:   g.faker.Bool(),
			ErrorCodes: []string{
				fmt.Sprintf("P%d", g.faker.Number(100, 999)),
				fmt.Sprintf("P%d", g.faker.Number(100, 999)),
			},
		})
	}
	return events
}

// Readings returns n radar readings for vehicle v starting at incidentTime.
func (g *Generator) Readings(v int, incidentTime time.Time, n int) []models.RadarIncident {
	readings := make([]models.RadarIncident, 0, n)
	for i := 0; i < n; i++ {
		readings = append(readings, models.RadarIncident{
			EventID:         models.EventID(v, i),
			Timestamp:       models.FormatRadarTime(incidentTime.Add(time.Duration(i) * readingSpacing)),
			RadarID:         models.RadarID(i),
			Distance:        round(g.faker.Float64Range(1, 100), 2),
			Velocity:        round(g.faker.Float64Range(1, 50), 2),
			AzimuthAngle:    g.faker.Number(0, 360),
			ElevationAngle:  g.faker.Number(0, 90),
			ObjectType:      g.faker.RandomString(objectTypes),
			ObjectSize:      g.faker.RandomString(objectSizes),
			ObjectClass:     g.faker.RandomString(objectClasses),
			ConfidenceLevel: round(g.faker.Float64Range(0.5, 1.0), 2),
		})
	}
	return readings
}

// injectCrash turns events[0] into a standstill with deployed airbag that
// follows events[1] by crashLeadTime. events[1] keeps its cruising speed.
func injectCrash(events []models.VehicleEvent, now time.Time) {
	events[0].VehicleSpeed = 0
	events[0].AirbagDeployed = true
	events[0].BrakeStatus = "applied"
	events[0].EventType = "rapid dec"
	events[1].Timestamp = models.FormatEventTime(now.Add(-crashLeadTime))
}

func round(v float64, decimals int) float64 {
	p := math.Pow(10, float64(decimals))
	return math.Round(v*p) / p
}
