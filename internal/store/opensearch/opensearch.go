// Package opensearch stores records as documents in two OpenSearch indices.
package opensearch

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/opensearch-project/opensearch-go/v2"

	"github.com/telhawk-systems/edr-telemetry/internal/models"
)

const (
	scrollKeepAlive = time.Minute
	scrollPageSize  = 500
)

// Config holds OpenSearch connection settings.
type Config struct {
	URL         string
	Username    string
	Password    string
	Insecure    bool
	IndexPrefix string
}

type Store struct {
	client         *opensearch.Client
	eventsIndex    string
	incidentsIndex string
}

// New connects to the cluster and creates both indices if they are missing.
func New(ctx context.Context, cfg Config) (*Store, error) {
	httpClient := &http.Client{
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{
				InsecureSkipVerify: cfg.Insecure,
			},
		},
	}

	client, err := opensearch.NewClient(opensearch.Config{
		Addresses: []string{cfg.URL},
		Username:  cfg.Username,
		Password:  cfg.Password,
		Transport: httpClient.Transport,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create opensearch client: %w", err)
	}

	info, err := client.Info(client.Info.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("failed to ping opensearch: %w", err)
	}
	defer info.Body.Close()

	if info.IsError() {
		return nil, fmt.Errorf("opensearch returned error: %s", info.Status())
	}

	prefix := cfg.IndexPrefix
	if prefix == "" {
		prefix = "edr"
	}
	s := &Store{
		client:         client,
		eventsIndex:    prefix + "-vehicle-events",
		incidentsIndex: prefix + "-radar-incidents",
	}

	if err := s.ensureIndex(ctx, s.eventsIndex, "vehicle_id", "event_id"); err != nil {
		return nil, err
	}
	if err := s.ensureIndex(ctx, s.incidentsIndex, "event_id", "radar_id"); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) PutEvents(ctx context.Context, events []models.VehicleEvent) error {
	var buf bytes.Buffer
	for _, e := range events {
		if err := writeIndexAction(&buf, s.eventsIndex, docID(e.VehicleID, e.EventID), e); err != nil {
			return fmt.Errorf("failed to encode event %s: %w", e.EventID, err)
		}
	}
	if err := s.bulk(ctx, &buf, len(events)); err != nil {
		return fmt.Errorf("failed to save events: %w", err)
	}
	return nil
}

func (s *Store) PutIncidents(ctx context.Context, incidents []models.RadarIncident) error {
	var buf bytes.Buffer
	for _, r := range incidents {
		if err := writeIndexAction(&buf, s.incidentsIndex, docID(r.EventID, r.RadarID), r); err != nil {
			return fmt.Errorf("failed to encode incident %s/%s: %w", r.EventID, r.RadarID, err)
		}
	}
	if err := s.bulk(ctx, &buf, len(incidents)); err != nil {
		return fmt.Errorf("failed to save incidents: %w", err)
	}
	return nil
}

func (s *Store) ScanEvents(ctx context.Context, vehicleID string) ([]models.VehicleEvent, error) {
	query := map[string]any{
		"query": map[string]any{
			"term": map[string]any{"vehicle_id": vehicleID},
		},
		"sort": []string{"_doc"},
	}

	events := []models.VehicleEvent{}
	err := s.scroll(ctx, s.eventsIndex, query, func(source json.RawMessage) error {
		var e models.VehicleEvent
		if err := json.Unmarshal(source, &e); err != nil {
			return err
		}
		events = append(events, e)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan events: %w", err)
	}
	return events, nil
}

func (s *Store) ScanIncidents(ctx context.Context, eventIDPrefix string) ([]models.RadarIncident, error) {
	query := map[string]any{
		"query": map[string]any{
			"prefix": map[string]any{"event_id": eventIDPrefix},
		},
		"sort": []string{"_doc"},
	}

	incidents := []models.RadarIncident{}
	err := s.scroll(ctx, s.incidentsIndex, query, func(source json.RawMessage) error {
		var r models.RadarIncident
		if err := json.Unmarshal(source, &r); err != nil {
			return err
		}
		incidents = append(incidents, r)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan incidents: %w", err)
	}
	return incidents, nil
}

func (s *Store) DeleteEvents(ctx context.Context, keys []models.EventKey) error {
	var buf bytes.Buffer
	for _, k := range keys {
		if err := writeDeleteAction(&buf, s.eventsIndex, docID(k.VehicleID, k.EventID)); err != nil {
			return err
		}
	}
	if err := s.bulk(ctx, &buf, len(keys)); err != nil {
		return fmt.Errorf("failed to delete events: %w", err)
	}
	return nil
}

func (s *Store) DeleteIncidents(ctx context.Context, keys []models.IncidentKey) error {
	var buf bytes.Buffer
	for _, k := range keys {
		if err := writeDeleteAction(&buf, s.incidentsIndex, docID(k.EventID, k.RadarID)); err != nil {
			return err
		}
	}
	if err := s.bulk(ctx, &buf, len(keys)); err != nil {
		return fmt.Errorf("failed to delete incidents: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	return nil
}

func docID(k1, k2 string) string {
	return k1 + "|" + k2
}

type bulkAction struct {
	Index string `json:"_index"`
	ID    string `json:"_id"`
}

func writeIndexAction(buf *bytes.Buffer, index, id string, doc any) error {
	enc := json.NewEncoder(buf)
	if err := enc.Encode(map[string]bulkAction{"index": {Index: index, ID: id}}); err != nil {
		return err
	}
	return enc.Encode(doc)
}

func writeDeleteAction(buf *bytes.Buffer, index, id string) error {
	return json.NewEncoder(buf).Encode(map[string]bulkAction{"delete": {Index: index, ID: id}})
}

type bulkResponse struct {
	Errors bool `json:"errors"`
	Items  []map[string]struct {
		ID     string          `json:"_id"`
		Status int             `json:"status"`
		Error  json.RawMessage `json:"error,omitempty"`
	} `json:"items"`
}

// bulk sends an NDJSON body to the _bulk API and waits for a refresh so
// subsequent scans see the writes. A delete of a missing document is not an
// error.
func (s *Store) bulk(ctx context.Context, body *bytes.Buffer, n int) error {
	if n == 0 {
		return nil
	}

	res, err := s.client.Bulk(
		body,
		s.client.Bulk.WithContext(ctx),
		s.client.Bulk.WithRefresh("wait_for"),
	)
	if err != nil {
		return fmt.Errorf("bulk request: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("bulk error: %s", res.String())
	}

	var result bulkResponse
	if err := json.NewDecoder(res.Body).Decode(&result); err != nil {
		return fmt.Errorf("decode bulk response: %w", err)
	}
	if !result.Errors {
		return nil
	}

	failed := 0
	var first string
	for _, item := range result.Items {
		for action, r := range item {
			if r.Status < 300 || (action == "delete" && r.Status == http.StatusNotFound) {
				continue
			}
			if failed == 0 {
				first = fmt.Sprintf("%s %s: %d %s", action, r.ID, r.Status, r.Error)
			}
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d bulk items failed, first: %s", failed, n, first)
	}
	return nil
}

type searchResponse struct {
	ScrollID string `json:"_scroll_id"`
	Hits     struct {
		Hits []struct {
			Source json.RawMessage `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

// scroll runs query against index and calls fn with the source of every hit.
func (s *Store) scroll(ctx context.Context, index string, query map[string]any, fn func(json.RawMessage) error) error {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(query); err != nil {
		return fmt.Errorf("encode query: %w", err)
	}

	res, err := s.client.Search(
		s.client.Search.WithContext(ctx),
		s.client.Search.WithIndex(index),
		s.client.Search.WithBody(&buf),
		s.client.Search.WithSize(scrollPageSize),
		s.client.Search.WithScroll(scrollKeepAlive),
	)
	if err != nil {
		return fmt.Errorf("search request: %w", err)
	}
	page, err := decodeSearch(res.Body, res.IsError(), res.String)
	if err != nil {
		return err
	}

	scrollID := page.ScrollID
	defer func() {
		if scrollID != "" {
			s.clearScroll(scrollID)
		}
	}()

	for len(page.Hits.Hits) > 0 {
		for _, hit := range page.Hits.Hits {
			if err := fn(hit.Source); err != nil {
				return fmt.Errorf("decode hit: %w", err)
			}
		}

		res, err := s.client.Scroll(
			s.client.Scroll.WithContext(ctx),
			s.client.Scroll.WithScrollID(scrollID),
			s.client.Scroll.WithScroll(scrollKeepAlive),
		)
		if err != nil {
			return fmt.Errorf("scroll request: %w", err)
		}
		page, err = decodeSearch(res.Body, res.IsError(), res.String)
		if err != nil {
			return err
		}
		if page.ScrollID != "" {
			scrollID = page.ScrollID
		}
	}
	return nil
}

func decodeSearch(body io.ReadCloser, isError bool, describe func() string) (*searchResponse, error) {
	defer body.Close()
	if isError {
		return nil, fmt.Errorf("search error: %s", describe())
	}

	var page searchResponse
	if err := json.NewDecoder(body).Decode(&page); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &page, nil
}

func (s *Store) clearScroll(scrollID string) {
	res, err := s.client.ClearScroll(s.client.ClearScroll.WithScrollID(scrollID))
	if err != nil {
		return
	}
	res.Body.Close()
}

// ensureIndex creates index with keyword mappings for the key fields and for
// every other string field.
func (s *Store) ensureIndex(ctx context.Context, index string, keyFields ...string) error {
	exists, err := s.client.Indices.Exists([]string{index}, s.client.Indices.Exists.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to check index %s: %w", index, err)
	}
	exists.Body.Close()

	if exists.StatusCode == http.StatusOK {
		return nil
	}

	properties := map[string]any{}
	for _, f := range keyFields {
		properties[f] = map[string]any{"type": "keyword"}
	}
	mapping := map[string]any{
		"mappings": map[string]any{
			"dynamic_templates": []any{
				map[string]any{
					"strings_as_keywords": map[string]any{
						"match_mapping_type": "string",
						"mapping":            map[string]any{"type": "keyword"},
					},
				},
			},
			"properties": properties,
		},
	}

	body, err := json.Marshal(mapping)
	if err != nil {
		return err
	}

	res, err := s.client.Indices.Create(
		index,
		s.client.Indices.Create.WithContext(ctx),
		s.client.Indices.Create.WithBody(bytes.NewReader(body)),
	)
	if err != nil {
		return fmt.Errorf("failed to create index %s: %w", index, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		bodyBytes, _ := io.ReadAll(res.Body)
		return fmt.Errorf("failed to create index %s: %s - %s", index, res.Status(), string(bodyBytes))
	}
	return nil
}
