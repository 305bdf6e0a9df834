package models

import (
	"fmt"
	"time"
)

// RadarTimeLayout is the timestamp layout of radar readings (millisecond precision, UTC).
const RadarTimeLayout = "2006-01-02T15:04:05.000Z"

// RadarIncident is an object detected by a radar sensor during an event.
type RadarIncident struct {
	EventID         string  `json:"event_id" dynamodbav:"event_id"`
	Timestamp       string  `json:"timestamp" dynamodbav:"timestamp"`
	RadarID         string  `json:"radar_id" dynamodbav:"radar_id"`
	Distance        float64 `json:"distance" dynamodbav:"distance"`
	Velocity        float64 `json:"velocity" dynamodbav:"velocity"`
	AzimuthAngle    int     `json:"azimuth_angle" dynamodbav:"azimuth_angle"`
	ElevationAngle  int     `json:"elevation_angle" dynamodbav:"elevation_angle"`
	ObjectType      string  `json:"object_type" dynamodbav:"object_type"`
	ObjectSize      string  `json:"object_size" dynamodbav:"object_size"`
	ObjectClass     string  `json:"object_class" dynamodbav:"object_class"`
	ConfidenceLevel float64 `json:"confidence_level" dynamodbav:"confidence_level"`
}

// IncidentKey identifies a RadarIncident in the store.
type IncidentKey struct {
	EventID string `json:"event_id" dynamodbav:"event_id"`
	RadarID string `json:"radar_id" dynamodbav:"radar_id"`
}

// Key returns the primary key of the incident.
func (r RadarIncident) Key() IncidentKey {
	return IncidentKey{EventID: r.EventID, RadarID: r.RadarID}
}

// RadarID returns the identifier of the i-th radar reading (1-based).
func RadarID(i int) string {
	return fmt.Sprintf("RADAR_%d", i+1)
}

// FormatRadarTime formats t in RadarTimeLayout after converting it to UTC.
func FormatRadarTime(t time.Time) string {
	return t.UTC().Format(RadarTimeLayout)
}
