// Package redis stores records as JSON strings in Redis, one key per record.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/telhawk-systems/edr-telemetry/internal/models"
)

const scanCount = 500

// Config holds Redis connection settings.
type Config struct {
	URL       string
	KeyPrefix string
}

// Store implements store.Store on top of Redis.
type Store struct {
	client *redis.Client
	prefix string
}

// New connects to the Redis server at cfg.URL and pings it.
func New(ctx context.Context, cfg Config) (*Store, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return NewWithClient(client, cfg.KeyPrefix), nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client *redis.Client, keyPrefix string) *Store {
	if keyPrefix == "" {
		keyPrefix = "edr"
	}
	return &Store{client: client, prefix: keyPrefix}
}

func (s *Store) PutEvents(ctx context.Context, events []models.VehicleEvent) error {
	if len(events) == 0 {
		return nil
	}

	pipe := s.client.Pipeline()
	for _, e := range events {
		data, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("failed to marshal event %s: %w", e.EventID, err)
		}
		pipe.Set(ctx, s.eventKey(e.Key()), data, 0)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save events: %w", err)
	}
	return nil
}

func (s *Store) PutIncidents(ctx context.Context, incidents []models.RadarIncident) error {
	if len(incidents) == 0 {
		return nil
	}

	pipe := s.client.Pipeline()
	for _, r := range incidents {
		data, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("failed to marshal incident %s/%s: %w", r.EventID, r.RadarID, err)
		}
		pipe.Set(ctx, s.incidentKey(r.Key()), data, 0)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save incidents: %w", err)
	}
	return nil
}

func (s *Store) ScanEvents(ctx context.Context, vehicleID string) ([]models.VehicleEvent, error) {
	pattern := fmt.Sprintf("%s:event:%s:*", s.prefix, escapeGlob(vehicleID))

	values, err := s.scanValues(ctx, pattern)
	if err != nil {
		return nil, fmt.Errorf("failed to scan events: %w", err)
	}

	events := make([]models.VehicleEvent, 0, len(values))
	for _, v := range values {
		var e models.VehicleEvent
		if err := json.Unmarshal([]byte(v), &e); err != nil {
			return nil, fmt.Errorf("failed to unmarshal event: %w", err)
		}
		// the key pattern cannot tell "vehicle_1" from a vehicle id containing ':'
		if e.VehicleID == vehicleID {
			events = append(events, e)
		}
	}
	return events, nil
}

func (s *Store) ScanIncidents(ctx context.Context, eventIDPrefix string) ([]models.RadarIncident, error) {
	pattern := fmt.Sprintf("%s:incident:%s*", s.prefix, escapeGlob(eventIDPrefix))

	values, err := s.scanValues(ctx, pattern)
	if err != nil {
		return nil, fmt.Errorf("failed to scan incidents: %w", err)
	}

	incidents := make([]models.RadarIncident, 0, len(values))
	for _, v := range values {
		var r models.RadarIncident
		if err := json.Unmarshal([]byte(v), &r); err != nil {
			return nil, fmt.Errorf("failed to unmarshal incident: %w", err)
		}
		if strings.HasPrefix(r.EventID, eventIDPrefix) {
			incidents = append(incidents, r)
		}
	}
	return incidents, nil
}

func (s *Store) DeleteEvents(ctx context.Context, keys []models.EventKey) error {
	if len(keys) == 0 {
		return nil
	}
	redisKeys := make([]string, 0, len(keys))
	for _, k := range keys {
		redisKeys = append(redisKeys, s.eventKey(k))
	}
	if err := s.client.Del(ctx, redisKeys...).Err(); err != nil {
		return fmt.Errorf("failed to delete events: %w", err)
	}
	return nil
}

func (s *Store) DeleteIncidents(ctx context.Context, keys []models.IncidentKey) error {
	if len(keys) == 0 {
		return nil
	}
	redisKeys := make([]string, 0, len(keys))
	for _, k := range keys {
		redisKeys = append(redisKeys, s.incidentKey(k))
	}
	if err := s.client.Del(ctx, redisKeys...).Err(); err != nil {
		return fmt.Errorf("failed to delete incidents: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.client.Close()
}

// scanValues walks the keyspace with SCAN and fetches the values of every
// matching key. Keys deleted between SCAN and MGET are skipped.
func (s *Store) scanValues(ctx context.Context, pattern string) ([]string, error) {
	var values []string
	var cursor uint64

	for {
		keys, next, err := s.client.Scan(ctx, cursor, pattern, scanCount).Result()
		if err != nil {
			return nil, err
		}

		if len(keys) > 0 {
			vals, err := s.client.MGet(ctx, keys...).Result()
			if err != nil {
				return nil, err
			}
			for _, v := range vals {
				if str, ok := v.(string); ok {
					values = append(values, str)
				}
			}
		}

		cursor = next
		if cursor == 0 {
			return values, nil
		}
	}
}

// eventKey generates a Redis key for an event
func (s *Store) eventKey(k models.EventKey) string {
	return fmt.Sprintf("%s:event:%s:%s", s.prefix, k.VehicleID, k.EventID)
}

// incidentKey generates a Redis key for a radar incident
func (s *Store) incidentKey(k models.IncidentKey) string {
	return fmt.Sprintf("%s:incident:%s:%s", s.prefix, k.EventID, k.RadarID)
}

var globEscaper = strings.NewReplacer(
	`\`, `\\`,
	`*`, `\*`,
	`?`, `\?`,
	`[`, `\[`,
	`]`, `\]`,
)

func escapeGlob(s string) string {
	return globEscaper.Replace(s)
}
