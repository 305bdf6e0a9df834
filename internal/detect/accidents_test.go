package detect

import (
	"math/rand"
	"sort"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telhawk-systems/edr-telemetry/internal/models"
)

var epoch = time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)

func event(id string, offsetSeconds, speed int) models.VehicleEvent {
	return models.VehicleEvent{
		VehicleID:    "vehicle_1",
		EventID:      id,
		Timestamp:    models.FormatEventTime(epoch.Add(time.Duration(offsetSeconds) * time.Second)),
		VehicleSpeed: speed,
	}
}

func TestAccidents(t *testing.T) {
	tests := []struct {
		name   string
		events []models.VehicleEvent
		want   []string
	}{
		{
			name:   "no events",
			events: nil,
			want:   []string{},
		},
		{
			name:   "single event",
			events: []models.VehicleEvent{event("a", 0, 0)},
			want:   []string{},
		},
		{
			name:   "sudden stop within one second",
			events: []models.VehicleEvent{event("a", 0, 40), event("b", 1, 0)},
			want:   []string{"b"},
		},
		{
			name:   "stop exactly at the window edge",
			events: []models.VehicleEvent{event("a", 0, 40), event("b", 2, 0)},
			want:   []string{"b"},
		},
		{
			name:   "gap longer than the window",
			events: []models.VehicleEvent{event("a", 0, 40), event("b", 5, 0)},
			want:   []string{},
		},
		{
			name:   "previous speed below threshold",
			events: []models.VehicleEvent{event("a", 0, 20), event("b", 1, 0)},
			want:   []string{},
		},
		{
			name:   "previous speed exactly at threshold",
			events: []models.VehicleEvent{event("a", 0, 30), event("b", 1, 0)},
			want:   []string{"b"},
		},
		{
			name:   "vehicle slows but does not stop",
			events: []models.VehicleEvent{event("a", 0, 80), event("b", 1, 1)},
			want:   []string{},
		},
		{
			name: "input in descending order is sorted first",
			events: []models.VehicleEvent{
				event("c", 20, 0),
				event("b", 1, 0),
				event("a", 0, 60),
			},
			want: []string{"b"},
		},
		{
			name: "multiple stops",
			events: []models.VehicleEvent{
				event("a", 0, 50),
				event("b", 1, 0),
				event("c", 30, 90),
				event("d", 31, 0),
				event("e", 32, 0),
			},
			want: []string{"b", "d"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Accidents(tt.events)
			require.NoError(t, err)

			ids := make([]string, 0, len(got))
			for _, e := range got {
				ids = append(ids, e.EventID)
			}
			assert.Equal(t, tt.want, ids)
		})
	}
}

func TestAccidents_DoesNotReorderInput(t *testing.T) {
	events := []models.VehicleEvent{event("b", 1, 0), event("a", 0, 40)}

	_, err := Accidents(events)
	require.NoError(t, err)

	assert.Equal(t, "b", events[0].EventID)
	assert.Equal(t, "a", events[1].EventID)
}

func TestAccidents_MalformedTimestamp(t *testing.T) {
	events := []models.VehicleEvent{
		event("a", 0, 40),
		{EventID: "b", Timestamp: "2024-06-01 08:00:01", VehicleSpeed: 0},
	}

	got, err := Accidents(events)
	require.Error(t, err)
	assert.Nil(t, got)
	assert.Contains(t, err.Error(), "event b")
}

func TestAccidents_ResultIsSubsequenceOfSortedInput(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for run := 0; run < 50; run++ {
		n := rng.Intn(40)
		events := make([]models.VehicleEvent, n)
		for i := range events {
			speed := 0
			if rng.Intn(2) == 0 {
				speed = rng.Intn(120)
			}
			events[i] = event(models.EventID(1, i), rng.Intn(60), speed)
		}

		sorted := append([]models.VehicleEvent(nil), events...)
		sort.SliceStable(sorted, func(i, j int) bool {
			return sorted[i].Timestamp < sorted[j].Timestamp
		})

		got, err := Accidents(sorted)
		require.NoError(t, err)

		j := 0
		for _, e := range sorted {
			if j < len(got) && cmp.Equal(e, got[j]) {
				j++
			}
		}
		assert.Equal(t, len(got), j, "run %d: result is not a subsequence of the input", run)

		for _, e := range got {
			assert.Zero(t, e.VehicleSpeed)
		}
	}
}
