// Package detect holds the read-only analyses run over stored telemetry:
// the accident heuristic and the radar incident filter.
package detect

import (
	"fmt"
	"sort"
	"time"

	"github.com/telhawk-systems/edr-telemetry/internal/models"
)

const (
	// AccidentWindow is the longest gap between two samples that still counts
	// as a sudden stop.
	AccidentWindow = 2 * time.Second

	// AccidentMinSpeed is the minimum speed of the earlier sample.
	AccidentMinSpeed = 30
)

type timedEvent struct {
	at    time.Time
	event models.VehicleEvent
}

// Accidents returns the events that end a sudden stop: an event with speed 0
// reported at most AccidentWindow after an event with speed of at least
// AccidentMinSpeed. Events are ordered by timestamp before comparison; the
// input slice is left untouched.
//
// A malformed timestamp aborts the scan with an error.
func Accidents(events []models.VehicleEvent) ([]models.VehicleEvent, error) {
	if len(events) < 2 {
		return []models.VehicleEvent{}, nil
	}

	timed := make([]timedEvent, len(events))
	for i, e := range events {
		at, err := e.Time()
		if err != nil {
			return nil, fmt.Errorf("event %s: %w", e.EventID, err)
		}
		timed[i] = timedEvent{at: at, event: e}
	}

	sort.SliceStable(timed, func(i, j int) bool {
		return timed[i].at.Before(timed[j].at)
	})

	accidents := []models.VehicleEvent{}
	for i := 1; i < len(timed); i++ {
		prev, curr := timed[i-1], timed[i]
		if curr.at.Sub(prev.at) > AccidentWindow {
			continue
		}
		if prev.event.VehicleSpeed >= AccidentMinSpeed && curr.event.VehicleSpeed == 0 {
			accidents = append(accidents, curr.event)
		}
	}

	return accidents, nil
}
