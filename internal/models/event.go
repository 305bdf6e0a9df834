package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// EventTimeLayout is the timestamp layout of vehicle events (second precision, UTC).
const EventTimeLayout = "2006-01-02T15:04:05Z"

// Acceleration is the three-axis accelerometer reading in m/s².
type Acceleration struct {
	X float64 `json:"x" dynamodbav:"x"`
	Y float64 `json:"y" dynamodbav:"y"`
	Z float64 `json:"z" dynamodbav:"z"`
}

// Location is a WGS84 position.
type Location struct {
	Latitude  float64 `json:"latitude" dynamodbav:"latitude"`
	Longitude float64 `json:"longitude" dynamodbav:"longitude"`
}

// VehicleEvent is a single telemetry sample reported by a vehicle.
type VehicleEvent struct {
	VehicleID        string       `json:"vehicle_id" dynamodbav:"vehicle_id"`
	EventID          string       `json:"event_id" dynamodbav:"event_id"`
	Timestamp        string       `json:"timestamp" dynamodbav:"timestamp"`
	EventType        string       `json:"event_type" dynamodbav:"event_type"`
	Acceleration     Acceleration `json:"acceleration" dynamodbav:"acceleration"`
	Location         Location     `json:"location" dynamodbav:"location"`
	VehicleSpeed     int          `json:"vehicle_speed" dynamodbav:"vehicle_speed"`
	FuelLevel        int          `json:"fuel_level" dynamodbav:"fuel_level"`
	EngineRPM        int          `json:"engine_rpm" dynamodbav:"engine_rpm"`
	ThrottlePosition int          `json:"throttle_position" dynamodbav:"throttle_position"`
	BrakeStatus      string       `json:"brake_status" dynamodbav:"brake_status"`
	SeatbeltStatus   string       `json:"seatbelt_status" dynamodbav:"seatbelt_status"`
	AirbagDeployed   bool         `json:"airbag_deployed" dynamodbav:"airbag_deployed"`
	ErrorCodes       []string     `json:"error_codes" dynamodbav:"error_codes"`
}

// EventKey identifies a VehicleEvent in the store.
type EventKey struct {
	VehicleID string `json:"vehicle_id" dynamodbav:"vehicle_id"`
	EventID   string `json:"event_id" dynamodbav:"event_id"`
}

// Key returns the primary key of the event.
func (e VehicleEvent) Key() EventKey {
	return EventKey{VehicleID: e.VehicleID, EventID: e.EventID}
}

// Time parses the event timestamp.
func (e VehicleEvent) Time() (time.Time, error) {
	return ParseEventTime(e.Timestamp)
}

// ParseEventTime parses a timestamp in EventTimeLayout.
func ParseEventTime(s string) (time.Time, error) {
	t, err := time.Parse(EventTimeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid event timestamp %q: %w", s, err)
	}
	return t, nil
}

// FormatEventTime formats t in EventTimeLayout after converting it to UTC.
func FormatEventTime(t time.Time) string {
	return t.UTC().Format(EventTimeLayout)
}

// VehicleID returns the store identifier of vehicle n.
func VehicleID(n int) string {
	return fmt.Sprintf("vehicle_%d", n)
}

// EventID returns the identifier of the i-th record generated for vehicle n.
func EventID(n, i int) string {
	return fmt.Sprintf("event_id_%d_%d", n, i)
}

// EventIDPrefix returns the prefix shared by every event id of vehicle n.
func EventIDPrefix(n int) string {
	return fmt.Sprintf("event_id_%d_", n)
}

// ParseVehicleNumber accepts either "5" or "vehicle_5" and returns 5.
func ParseVehicleNumber(s string) (int, error) {
	raw := strings.TrimPrefix(strings.TrimSpace(s), "vehicle_")
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid vehicle %q: expected a number or vehicle_<number>", s)
	}
	if n < 0 {
		return 0, fmt.Errorf("invalid vehicle %q: must not be negative", s)
	}
	return n, nil
}
