// Package service implements the edr operations on top of an injected store:
// generating data, deleting a vehicle, filtering its radar incidents and
// detecting potential accidents.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/telhawk-systems/edr-telemetry/internal/detect"
	"github.com/telhawk-systems/edr-telemetry/internal/generator"
	"github.com/telhawk-systems/edr-telemetry/internal/logging"
	"github.com/telhawk-systems/edr-telemetry/internal/messaging"
	"github.com/telhawk-systems/edr-telemetry/internal/metrics"
	"github.com/telhawk-systems/edr-telemetry/internal/models"
	"github.com/telhawk-systems/edr-telemetry/internal/store"
)

// Config holds the service settings taken from the loaded configuration.
type Config struct {
	BatchSize int
	Generator generator.Options
	// Subject is the prefix of the subject accidents are published to.
	Subject string
}

type Service struct {
	store     store.Store
	cfg       Config
	publisher messaging.Publisher
	logger    *logging.Logger
	now       func() time.Time
}

type Option func(*Service)

// WithPublisher publishes every detected accident through p.
func WithPublisher(p messaging.Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

func WithLogger(l *logging.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithClock replaces the wall clock used for generated timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func New(st store.Store, cfg Config, opts ...Option) *Service {
	s := &Service{
		store:  st,
		cfg:    cfg,
		logger: logging.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GenerateResult summarizes a Generate run. Incidents counts radar writes;
// readings of later incidents reuse the keys of earlier ones, so
// DistinctIncidents is what the store holds afterwards.
type GenerateResult struct {
	Vehicles          int           `json:"vehicles"`
	Events            int           `json:"events"`
	Incidents         int           `json:"incidents"`
	DistinctIncidents int           `json:"distinct_incidents"`
	Crashes           int           `json:"crashes"`
	Batches           int           `json:"batches"`
	Duration          time.Duration `json:"duration"`
}

// Generate writes synthetic data for every configured vehicle.
func (s *Service) Generate(ctx context.Context) (*GenerateResult, error) {
	start := time.Now()
	gen := generator.New(s.cfg.Generator, s.now)
	w := store.NewBatchWriter(s.store, s.cfg.BatchSize)
	result := &GenerateResult{}
	incidentKeys := make(map[models.IncidentKey]struct{})

	perVehicle := 0
	err := gen.Each(ctx, func(b generator.Batch) error {
		for _, e := range b.Events {
			if err := w.PutEvent(ctx, e); err != nil {
				return err
			}
		}
		for _, r := range b.Readings {
			if err := w.PutIncident(ctx, r); err != nil {
				return err
			}
			incidentKeys[r.Key()] = struct{}{}
		}

		result.Events += len(b.Events)
		result.Incidents += len(b.Readings)
		perVehicle += len(b.Events)
		if b.Crash {
			result.Crashes++
		}

		if b.Incident == s.cfg.Generator.IncidentsPerVehicle-1 {
			result.Vehicles++
			s.logger.InfoContext(ctx, "Generated vehicle data",
				logging.VehicleID(models.VehicleID(b.Vehicle)),
				logging.Count(perVehicle),
			)
			perVehicle = 0
		}
		return nil
	})

	// flush what was buffered even when generation stopped early
	if closeErr := w.Close(ctx); err == nil {
		err = closeErr
	}
	result.DistinctIncidents = len(incidentKeys)
	result.Batches = w.Batches()
	result.Duration = time.Since(start)

	if err != nil {
		return result, fmt.Errorf("failed to generate data: %w", err)
	}

	s.logger.InfoContext(ctx, "Generated data",
		logging.Count(w.Written()),
		"batches", result.Batches,
		"duration", result.Duration,
	)
	return result, nil
}

// DeleteResult reports how many records DeleteVehicle removed.
type DeleteResult struct {
	VehicleID string `json:"vehicle_id"`
	Events    int    `json:"events"`
	Incidents int    `json:"incidents"`
}

// DeleteVehicle removes every event of vehicle n and every radar incident
// whose event id belongs to it.
func (s *Service) DeleteVehicle(ctx context.Context, n int) (*DeleteResult, error) {
	vehicleID := models.VehicleID(n)

	events, err := s.scanEvents(ctx, vehicleID)
	if err != nil {
		return nil, err
	}
	incidents, err := s.scanIncidents(ctx, models.EventIDPrefix(n))
	if err != nil {
		return nil, err
	}

	w := store.NewBatchWriter(s.store, s.cfg.BatchSize)
	for _, e := range events {
		if err := w.DeleteEvent(ctx, e.Key()); err != nil {
			return nil, fmt.Errorf("failed to delete events of %s: %w", vehicleID, err)
		}
	}
	for _, r := range incidents {
		if err := w.DeleteIncident(ctx, r.Key()); err != nil {
			return nil, fmt.Errorf("failed to delete incidents of %s: %w", vehicleID, err)
		}
	}
	if err := w.Close(ctx); err != nil {
		return nil, fmt.Errorf("failed to delete data of %s: %w", vehicleID, err)
	}

	s.logger.InfoContext(ctx, "Deleted vehicle data",
		logging.VehicleID(vehicleID),
		logging.Count(w.Deleted()),
	)

	return &DeleteResult{
		VehicleID: vehicleID,
		Events:    len(events),
		Incidents: len(incidents),
	}, nil
}

// FilterIncidents returns the relevant radar incidents of vehicle n.
func (s *Service) FilterIncidents(ctx context.Context, n int) ([]models.RadarIncident, error) {
	incidents, err := s.scanIncidents(ctx, models.EventIDPrefix(n))
	if err != nil {
		return nil, err
	}

	matched := detect.FilterIncidents(incidents)
	metrics.IncidentsMatched.Add(float64(len(matched)))

	s.logger.DebugContext(ctx, "Filtered incidents",
		logging.VehicleID(models.VehicleID(n)),
		logging.Count(len(matched)),
	)
	return matched, nil
}

// DetectAccidents runs the accident heuristic over the events of vehicle n
// and publishes each candidate when a publisher is configured.
func (s *Service) DetectAccidents(ctx context.Context, n int) ([]models.VehicleEvent, error) {
	vehicleID := models.VehicleID(n)

	events, err := s.scanEvents(ctx, vehicleID)
	if err != nil {
		return nil, err
	}

	accidents, err := detect.Accidents(events)
	if err != nil {
		return nil, fmt.Errorf("failed to detect accidents for %s: %w", vehicleID, err)
	}
	metrics.AccidentsDetected.Add(float64(len(accidents)))

	if s.publisher != nil {
		if err := s.publish(ctx, vehicleID, accidents); err != nil {
			return accidents, err
		}
	}
	return accidents, nil
}

func (s *Service) publish(ctx context.Context, vehicleID string, accidents []models.VehicleEvent) error {
	subject := s.cfg.Subject + "." + vehicleID
	metadata := map[string]string{}
	if runID := logging.RunIDFromContext(ctx); runID != "" {
		metadata["Edr-Run-Id"] = runID
	}

	for _, a := range accidents {
		data, err := json.Marshal(a)
		if err != nil {
			return fmt.Errorf("failed to encode accident %s: %w", a.EventID, err)
		}
		msg := &messaging.Message{Subject: subject, Data: data, Metadata: metadata}
		if err := s.publisher.PublishMsg(ctx, msg); err != nil {
			return fmt.Errorf("failed to publish accident %s: %w", a.EventID, err)
		}
		s.logger.DebugContext(ctx, "Published accident",
			logging.VehicleID(vehicleID),
			logging.EventID(a.EventID),
		)
	}
	return nil
}

func (s *Service) scanEvents(ctx context.Context, vehicleID string) ([]models.VehicleEvent, error) {
	start := time.Now()
	events, err := s.store.ScanEvents(ctx, vehicleID)
	metrics.ObserveStoreOperation("scan_events", start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to scan events of %s: %w", vehicleID, err)
	}
	metrics.RecordsScanned.WithLabelValues("event").Add(float64(len(events)))
	return events, nil
}

func (s *Service) scanIncidents(ctx context.Context, prefix string) ([]models.RadarIncident, error) {
	start := time.Now()
	incidents, err := s.store.ScanIncidents(ctx, prefix)
	metrics.ObserveStoreOperation("scan_incidents", start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to scan incidents with prefix %s: %w", prefix, err)
	}
	metrics.RecordsScanned.WithLabelValues("incident").Add(float64(len(incidents)))
	return incidents, nil
}
