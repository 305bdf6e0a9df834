package detect

import "github.com/telhawk-systems/edr-telemetry/internal/models"

// MinConfidence is the exclusive lower bound on an incident's confidence level.
const MinConfidence = 0.80

var relevantObjects = map[string]bool{
	"vehicle":    true,
	"pedestrian": true,
	"cyclist":    true,
}

// IsRelevantObject reports whether a detected object type is a road user.
func IsRelevantObject(objectType string) bool {
	return relevantObjects[objectType]
}

// FilterIncidents keeps incidents that detected a road user with confidence
// strictly above MinConfidence. Input order is preserved.
func FilterIncidents(incidents []models.RadarIncident) []models.RadarIncident {
	filtered := make([]models.RadarIncident, 0, len(incidents))
	for _, inc := range incidents {
		if IsRelevantObject(inc.ObjectType) && inc.ConfidenceLevel > MinConfidence {
			filtered = append(filtered, inc)
		}
	}
	return filtered
}
