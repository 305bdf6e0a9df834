package detect

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"

	"github.com/telhawk-systems/edr-telemetry/internal/models"
)

func TestFilterIncidents(t *testing.T) {
	tests := []struct {
		name       string
		objectType string
		confidence float64
		kept       bool
	}{
		{name: "tree is never relevant", objectType: "tree", confidence: 0.95, kept: false},
		{name: "sign is never relevant", objectType: "sign", confidence: 0.99, kept: false},
		{name: "pedestrian above threshold", objectType: "pedestrian", confidence: 0.81, kept: true},
		{name: "pedestrian at threshold", objectType: "pedestrian", confidence: 0.80, kept: false},
		{name: "vehicle high confidence", objectType: "vehicle", confidence: 1.0, kept: true},
		{name: "cyclist low confidence", objectType: "cyclist", confidence: 0.5, kept: false},
		{name: "type match is case sensitive", objectType: "Vehicle", confidence: 0.9, kept: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inc := models.RadarIncident{
				EventID:         "event_id_1_0",
				RadarID:         "RADAR_1",
				ObjectType:      tt.objectType,
				ConfidenceLevel: tt.confidence,
			}
			got := FilterIncidents([]models.RadarIncident{inc})
			if tt.kept {
				assert.Len(t, got, 1)
			} else {
				assert.Empty(t, got)
			}
		})
	}
}

func TestFilterIncidents_PreservesOrder(t *testing.T) {
	in := []models.RadarIncident{
		{RadarID: "RADAR_3", ObjectType: "cyclist", ConfidenceLevel: 0.9},
		{RadarID: "RADAR_1", ObjectType: "tree", ConfidenceLevel: 0.9},
		{RadarID: "RADAR_2", ObjectType: "vehicle", ConfidenceLevel: 0.85},
	}

	want := []models.RadarIncident{in[0], in[2]}
	if diff := cmp.Diff(want, FilterIncidents(in)); diff != "" {
		t.Errorf("FilterIncidents() mismatch (-want +got):\n%s", diff)
	}
}

func TestFilterIncidents_Empty(t *testing.T) {
	got := FilterIncidents(nil)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}
