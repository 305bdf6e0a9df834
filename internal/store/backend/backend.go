// Package backend opens the store.Store selected by configuration.
package backend

import (
	"context"
	"fmt"

	"github.com/telhawk-systems/edr-telemetry/internal/config"
	"github.com/telhawk-systems/edr-telemetry/internal/store"
	"github.com/telhawk-systems/edr-telemetry/internal/store/dynamodb"
	"github.com/telhawk-systems/edr-telemetry/internal/store/memory"
	"github.com/telhawk-systems/edr-telemetry/internal/store/opensearch"
	"github.com/telhawk-systems/edr-telemetry/internal/store/postgres"
	"github.com/telhawk-systems/edr-telemetry/internal/store/redis"
	"github.com/telhawk-systems/edr-telemetry/internal/store/sqlite"
)

// Open connects to the backend named by cfg.Store.Backend.
func Open(ctx context.Context, cfg *config.Config) (store.Store, error) {
	switch cfg.Store.Backend {
	case "dynamodb":
		return opened(dynamodb.New(ctx, dynamodb.Config{
			Region:         cfg.DynamoDB.Region,
			Endpoint:       cfg.DynamoDB.Endpoint,
			EventsTable:    cfg.DynamoDB.EventsTable,
			IncidentsTable: cfg.DynamoDB.IncidentsTable,
		}))
	case "redis":
		return opened(redis.New(ctx, redis.Config{
			URL:       cfg.Redis.URL,
			KeyPrefix: cfg.Redis.KeyPrefix,
		}))
	case "postgres":
		return opened(postgres.New(ctx, cfg.Postgres.URL))
	case "sqlite":
		return opened(sqlite.New(ctx, cfg.SQLite.Path))
	case "opensearch":
		return opened(opensearch.New(ctx, opensearch.Config{
			URL:         cfg.OpenSearch.URL,
			Username:    cfg.OpenSearch.Username,
			Password:    cfg.OpenSearch.Password,
			Insecure:    cfg.OpenSearch.Insecure,
			IndexPrefix: cfg.OpenSearch.IndexPrefix,
		}))
	case "memory":
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("%w: %q", store.ErrUnknownBackend, cfg.Store.Backend)
	}
}

// opened keeps a nil *T from turning into a non-nil store.Store on error.
func opened[T store.Store](s T, err error) (store.Store, error) {
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	return s, nil
}
