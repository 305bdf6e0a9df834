package backend

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telhawk-systems/edr-telemetry/internal/config"
	"github.com/telhawk-systems/edr-telemetry/internal/store"
	"github.com/telhawk-systems/edr-telemetry/internal/store/memory"
	"github.com/telhawk-systems/edr-telemetry/internal/store/redis"
	"github.com/telhawk-systems/edr-telemetry/internal/store/sqlite"
)

func TestOpen(t *testing.T) {
	mr := miniredis.RunT(t)

	tests := []struct {
		name string
		cfg  config.Config
		want any
	}{
		{
			name: "memory",
			cfg:  config.Config{Store: config.StoreConfig{Backend: "memory"}},
			want: &memory.Store{},
		},
		{
			name: "redis",
			cfg: config.Config{
				Store: config.StoreConfig{Backend: "redis"},
				Redis: config.RedisConfig{URL: "redis://" + mr.Addr(), KeyPrefix: "t"},
			},
			want: &redis.Store{},
		},
		{
			name: "sqlite",
			cfg: config.Config{
				Store:  config.StoreConfig{Backend: "sqlite"},
				SQLite: config.SQLiteConfig{Path: filepath.Join(t.TempDir(), "edr.db")},
			},
			want: &sqlite.Store{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := Open(context.Background(), &tt.cfg)
			require.NoError(t, err)
			defer s.Close()
			assert.IsType(t, tt.want, s)
		})
	}
}

func TestOpen_UnknownBackend(t *testing.T) {
	s, err := Open(context.Background(), &config.Config{Store: config.StoreConfig{Backend: "cassandra"}})
	assert.ErrorIs(t, err, store.ErrUnknownBackend)
	assert.Nil(t, s)
}

func TestOpen_FailureReturnsNilStore(t *testing.T) {
	s, err := Open(context.Background(), &config.Config{
		Store: config.StoreConfig{Backend: "redis"},
		Redis: config.RedisConfig{URL: "not a url"},
	})
	require.Error(t, err)
	assert.Nil(t, s)
}
