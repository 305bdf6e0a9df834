// Package dynamodb stores records in two DynamoDB tables: events keyed by
// (vehicle_id, event_id) and radar incidents keyed by (event_id, radar_id).
package dynamodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/telhawk-systems/edr-telemetry/internal/models"
)

const (
	// maxBatchItems is the BatchWriteItem request limit.
	maxBatchItems = 25
	maxAttempts   = 5
)

// tableKey names the hash and range attributes of a table's primary key.
type tableKey struct {
	hash, rng string
}

var (
	eventKey    = tableKey{hash: "vehicle_id", rng: "event_id"}
	incidentKey = tableKey{hash: "event_id", rng: "radar_id"}
)

// ErrUnprocessed is returned when DynamoDB keeps rejecting part of a batch.
var ErrUnprocessed = errors.New("dynamodb left items unprocessed")

// API is the subset of the DynamoDB client the store uses.
type API interface {
	dynamodb.ScanAPIClient
	BatchWriteItem(ctx context.Context, params *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error)
}

// Config holds DynamoDB connection settings.
type Config struct {
	Region         string
	Endpoint       string
	EventsTable    string
	IncidentsTable string
}

type Store struct {
	api            API
	eventsTable    string
	incidentsTable string
	backoff        time.Duration
}

// New builds a client from the default AWS credential chain. Endpoint, when
// set, overrides the service URL (DynamoDB Local, LocalStack).
func New(ctx context.Context, cfg Config) (*Store, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	client := dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})

	return NewWithAPI(client, cfg.EventsTable, cfg.IncidentsTable), nil
}

// NewWithAPI wraps an existing client.
func NewWithAPI(api API, eventsTable, incidentsTable string) *Store {
	return &Store{
		api:            api,
		eventsTable:    eventsTable,
		incidentsTable: incidentsTable,
		backoff:        100 * time.Millisecond,
	}
}

func (s *Store) PutEvents(ctx context.Context, events []models.VehicleEvent) error {
	requests := make([]types.WriteRequest, 0, len(events))
	for _, e := range events {
		item, err := attributevalue.MarshalMap(e)
		if err != nil {
			return fmt.Errorf("failed to marshal event %s: %w", e.EventID, err)
		}
		requests = append(requests, types.WriteRequest{PutRequest: &types.PutRequest{Item: item}})
	}
	if err := s.writeAll(ctx, s.eventsTable, eventKey, requests); err != nil {
		return fmt.Errorf("failed to save events: %w", err)
	}
	return nil
}

func (s *Store) PutIncidents(ctx context.Context, incidents []models.RadarIncident) error {
	requests := make([]types.WriteRequest, 0, len(incidents))
	for _, r := range incidents {
		item, err := attributevalue.MarshalMap(r)
		if err != nil {
			return fmt.Errorf("failed to marshal incident %s/%s: %w", r.EventID, r.RadarID, err)
		}
		requests = append(requests, types.WriteRequest{PutRequest: &types.PutRequest{Item: item}})
	}
	if err := s.writeAll(ctx, s.incidentsTable, incidentKey, requests); err != nil {
		return fmt.Errorf("failed to save incidents: %w", err)
	}
	return nil
}

func (s *Store) ScanEvents(ctx context.Context, vehicleID string) ([]models.VehicleEvent, error) {
	filter := expression.Name("vehicle_id").Equal(expression.Value(vehicleID))
	items, err := s.scan(ctx, s.eventsTable, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to scan events: %w", err)
	}

	events := []models.VehicleEvent{}
	if err := attributevalue.UnmarshalListOfMaps(items, &events); err != nil {
		return nil, fmt.Errorf("failed to unmarshal events: %w", err)
	}
	return events, nil
}

func (s *Store) ScanIncidents(ctx context.Context, eventIDPrefix string) ([]models.RadarIncident, error) {
	filter := expression.Name("event_id").BeginsWith(eventIDPrefix)
	items, err := s.scan(ctx, s.incidentsTable, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to scan incidents: %w", err)
	}

	incidents := []models.RadarIncident{}
	if err := attributevalue.UnmarshalListOfMaps(items, &incidents); err != nil {
		return nil, fmt.Errorf("failed to unmarshal incidents: %w", err)
	}
	return incidents, nil
}

func (s *Store) DeleteEvents(ctx context.Context, keys []models.EventKey) error {
	requests := make([]types.WriteRequest, 0, len(keys))
	for _, k := range keys {
		key, err := attributevalue.MarshalMap(k)
		if err != nil {
			return fmt.Errorf("failed to marshal event key %s: %w", k.EventID, err)
		}
		requests = append(requests, types.WriteRequest{DeleteRequest: &types.DeleteRequest{Key: key}})
	}
	if err := s.writeAll(ctx, s.eventsTable, eventKey, requests); err != nil {
		return fmt.Errorf("failed to delete events: %w", err)
	}
	return nil
}

func (s *Store) DeleteIncidents(ctx context.Context, keys []models.IncidentKey) error {
	requests := make([]types.WriteRequest, 0, len(keys))
	for _, k := range keys {
		key, err := attributevalue.MarshalMap(k)
		if err != nil {
			return fmt.Errorf("failed to marshal incident key %s/%s: %w", k.EventID, k.RadarID, err)
		}
		requests = append(requests, types.WriteRequest{DeleteRequest: &types.DeleteRequest{Key: key}})
	}
	if err := s.writeAll(ctx, s.incidentsTable, incidentKey, requests); err != nil {
		return fmt.Errorf("failed to delete incidents: %w", err)
	}
	return nil
}

// Close is a no-op; the SDK client holds no connections that need releasing.
func (s *Store) Close() error {
	return nil
}

// scan walks every page of a filtered table scan.
func (s *Store) scan(ctx context.Context, table string, filter expression.ConditionBuilder) ([]map[string]types.AttributeValue, error) {
	expr, err := expression.NewBuilder().WithFilter(filter).Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build filter expression: %w", err)
	}

	paginator := dynamodb.NewScanPaginator(s.api, &dynamodb.ScanInput{
		TableName:                 aws.String(table),
		FilterExpression:          expr.Filter(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})

	var items []map[string]types.AttributeValue
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		items = append(items, page.Items...)
	}
	return items, nil
}

// writeAll sends requests in chunks of maxBatchItems and resubmits whatever
// the service reports as unprocessed, up to maxAttempts per chunk.
// BatchWriteItem rejects a request that names a key twice, so requests are
// collapsed per key first and the last one wins.
func (s *Store) writeAll(ctx context.Context, table string, key tableKey, requests []types.WriteRequest) error {
	requests = collapse(requests, key)
	for start := 0; start < len(requests); start += maxBatchItems {
		end := min(start+maxBatchItems, len(requests))
		if err := s.writeChunk(ctx, table, requests[start:end]); err != nil {
			return err
		}
	}
	return nil
}

// collapse keeps one request per primary key, in first-seen order, holding
// the last request issued for that key.
func collapse(requests []types.WriteRequest, key tableKey) []types.WriteRequest {
	out := make([]types.WriteRequest, 0, len(requests))
	seen := make(map[[2]string]int, len(requests))
	for _, req := range requests {
		item := requestItem(req)
		k := [2]string{stringAttr(item, key.hash), stringAttr(item, key.rng)}
		if i, ok := seen[k]; ok {
			out[i] = req
			continue
		}
		seen[k] = len(out)
		out = append(out, req)
	}
	return out
}

func requestItem(req types.WriteRequest) map[string]types.AttributeValue {
	switch {
	case req.PutRequest != nil:
		return req.PutRequest.Item
	case req.DeleteRequest != nil:
		return req.DeleteRequest.Key
	}
	return nil
}

func stringAttr(item map[string]types.AttributeValue, name string) string {
	if v, ok := item[name].(*types.AttributeValueMemberS); ok {
		return v.Value
	}
	return ""
}

func (s *Store) writeChunk(ctx context.Context, table string, chunk []types.WriteRequest) error {
	pending := map[string][]types.WriteRequest{table: chunk}

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		out, err := s.api.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{RequestItems: pending})
		if err != nil {
			return err
		}
		if len(out.UnprocessedItems[table]) == 0 {
			return nil
		}
		pending = out.UnprocessedItems

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * s.backoff):
		}
	}

	return fmt.Errorf("%w: %d items after %d attempts", ErrUnprocessed, len(pending[table]), maxAttempts)
}
