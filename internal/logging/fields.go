package logging

import (
	"log/slog"
	"time"
)

// Field names shared by every command.
const (
	FieldRunID     = "run_id"
	FieldBackend   = "backend"
	FieldVehicleID = "vehicle_id"
	FieldEventID   = "event_id"
	FieldCount     = "count"
	FieldDuration  = "duration_ms"
	FieldError     = "error"
)

func RunID(id string) slog.Attr {
	return slog.String(FieldRunID, id)
}

func Backend(name string) slog.Attr {
	return slog.String(FieldBackend, name)
}

func VehicleID(id string) slog.Attr {
	return slog.String(FieldVehicleID, id)
}

func EventID(id string) slog.Attr {
	return slog.String(FieldEventID, id)
}

func Count(n int) slog.Attr {
	return slog.Int(FieldCount, n)
}

// Duration returns the elapsed time in milliseconds.
func Duration(d time.Duration) slog.Attr {
	return slog.Int64(FieldDuration, d.Milliseconds())
}

func Error(err error) slog.Attr {
	return slog.String(FieldError, err.Error())
}
