package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telhawk-systems/edr-telemetry/internal/models"
	"github.com/telhawk-systems/edr-telemetry/internal/store/storetest"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(context.Background(), filepath.Join(t.TempDir(), "edr.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_Contract(t *testing.T) {
	storetest.Run(t, setupTestStore(t))
}

func TestStore_MigrateUpIsIdempotent(t *testing.T) {
	s := setupTestStore(t)
	assert.NoError(t, s.MigrateUp())
}

func TestStore_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "edr.db")
	ctx := context.Background()

	s, err := New(ctx, path)
	require.NoError(t, err)
	require.NoError(t, s.PutEvents(ctx, []models.VehicleEvent{storetest.Event(2, 0)}))
	require.NoError(t, s.Close())

	s, err = New(ctx, path)
	require.NoError(t, err)
	defer s.Close()

	got, err := s.ScanEvents(ctx, models.VehicleID(2))
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestStore_PrefixScanIgnoresLikeWildcards(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	// '_' in the prefix must match literally
	odd := storetest.Incident(1, 0)
	odd.EventID = "event_idX1Xoops"
	require.NoError(t, s.PutIncidents(ctx, []models.RadarIncident{storetest.Incident(1, 0), odd}))

	got, err := s.ScanIncidents(ctx, models.EventIDPrefix(1))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "event_id_1_0", got[0].EventID)
}

func TestPrefixEnd(t *testing.T) {
	tests := []struct {
		prefix string
		want   string
		ok     bool
	}{
		{prefix: "event_id_5_", want: "event_id_5`", ok: true},
		{prefix: "a", want: "b", ok: true},
		{prefix: "a\xff", want: "b", ok: true},
		{prefix: "", ok: false},
		{prefix: "\xff\xff", ok: false},
	}

	for _, tt := range tests {
		got, ok := prefixEnd(tt.prefix)
		assert.Equal(t, tt.ok, ok, tt.prefix)
		if tt.ok {
			assert.Equal(t, tt.want, got, tt.prefix)
		}
	}
}
