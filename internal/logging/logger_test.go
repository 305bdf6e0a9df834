package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestNewWithWriter_Formats(t *testing.T) {
	tests := []struct {
		name   string
		format string
		check  func(t *testing.T, out string)
	}{
		{
			name:   "json",
			format: "json",
			check: func(t *testing.T, out string) {
				var entry map[string]any
				if err := json.Unmarshal([]byte(out), &entry); err != nil {
					t.Fatalf("expected JSON output, got %q: %v", out, err)
				}
				if entry["msg"] != "hello" {
					t.Errorf("expected msg=hello, got %v", entry["msg"])
				}
			},
		},
		{
			name:   "text",
			format: "text",
			check: func(t *testing.T, out string) {
				if !strings.Contains(out, "msg=hello") {
					t.Errorf("expected text output, got %q", out)
				}
			},
		},
		{
			name:   "default is text",
			format: "",
			check: func(t *testing.T, out string) {
				if strings.HasPrefix(out, "{") {
					t.Errorf("expected text output, got %q", out)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := NewWithWriter(&buf, slog.LevelInfo, tt.format)
			logger.Info("hello")
			tt.check(t, buf.String())
		})
	}
}

func TestNewWithWriter_Level(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, slog.LevelWarn, "text")

	logger.Info("hidden")
	logger.Warn("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info message logged at warn level: %q", out)
	}
	if !strings.Contains(out, "shown") {
		t.Errorf("warn message missing: %q", out)
	}
}

func TestWithContext_RunID(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, slog.LevelInfo, "json")

	ctx := ContextWithRunID(context.Background(), "run-123")
	logger.InfoContext(ctx, "generated", VehicleID("vehicle_1"))

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse log output: %v", err)
	}
	if entry[FieldRunID] != "run-123" {
		t.Errorf("expected run_id=run-123, got %v", entry[FieldRunID])
	}
	if entry[FieldVehicleID] != "vehicle_1" {
		t.Errorf("expected vehicle_id=vehicle_1, got %v", entry[FieldVehicleID])
	}
}

func TestWithContext_NoRunID(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, slog.LevelInfo, "json")

	logger.InfoContext(context.Background(), "plain")

	if strings.Contains(buf.String(), FieldRunID) {
		t.Errorf("unexpected run_id in %q", buf.String())
	}
	if RunIDFromContext(context.Background()) != "" {
		t.Error("expected empty run id")
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"info":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"error":   slog.LevelError,
		"invalid": slog.LevelInfo,
		"":        slog.LevelInfo,
	}
	for input, want := range tests {
		if got := ParseLevel(input); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", input, got, want)
		}
	}
}

func TestFields(t *testing.T) {
	tests := []struct {
		attr  slog.Attr
		key   string
		value string
	}{
		{Backend("redis"), FieldBackend, "redis"},
		{EventID("event_id_1_0"), FieldEventID, "event_id_1_0"},
		{Count(3), FieldCount, "3"},
		{Duration(1500 * time.Millisecond), FieldDuration, "1500"},
		{Error(errors.New("boom")), FieldError, "boom"},
	}
	for _, tt := range tests {
		if tt.attr.Key != tt.key {
			t.Errorf("expected key %q, got %q", tt.key, tt.attr.Key)
		}
		if got := tt.attr.Value.String(); got != tt.value {
			t.Errorf("%s: expected %q, got %q", tt.key, tt.value, got)
		}
	}
}
