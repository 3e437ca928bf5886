// Package anomaly turns consecutive vehicle records into anomaly events.
package anomaly

import (
	"fmt"
	"strconv"
	"strings"

	"fleet-ops-dashboard/internal/models"

	"github.com/google/uuid"
)

// namespace for deterministic anomaly ids
var namespace = uuid.MustParse("6f1f6c2e-8a53-4c55-9b0e-3d1f0e7a2b41")

// deviation markers reported by the telemetry backend
var deviationValues = map[string]bool{
	"ROUTE_DEVIATION":       true,
	"ROUTE_DEVIATION_ALERT": true,
	"DEVIATED":              true,
	"OFF_ROUTE":             true,
}

// IsDeviation reports whether a deviation_status value means the vehicle left its route
func IsDeviation(status string) bool {
	return deviationValues[strings.ToUpper(strings.TrimSpace(status))]
}

// Deviated reports whether a record is delayed and off its route
func Deviated(r models.VehicleRecord) bool {
	return r.ETAStatus == models.ETADelayed && IsDeviation(r.DeviationStatus)
}

// EventID derives the id of an anomaly from the vehicle id and record timestamp
func EventID(vehicleID string, timestamp int64) string {
	return uuid.NewSHA1(namespace, []byte(vehicleID+"@"+strconv.FormatInt(timestamp, 10))).String()
}

// Classify maps a record, and the record it supersedes, to at most one anomaly.
// Rules are evaluated in priority order and the first match wins.
func Classify(previous *models.VehicleRecord, current models.VehicleRecord) *models.AnomalyEvent {
	// high emission is edge-triggered: only the transition into alert counts
	if current.Status == models.StatusHighEmissionAlert &&
		(previous == nil || previous.Status != models.StatusHighEmissionAlert) {
		return &models.AnomalyEvent{
			ID:        EventID(current.VehicleID, current.Timestamp),
			VehicleID: current.VehicleID,
			Timestamp: current.Timestamp,
			Type:      models.AnomalyHighEmission,
			Severity:  models.SeverityCritical,
			Detail: fmt.Sprintf("CO₂ %.2f kg at %.1f km/h on %s",
				current.CO2Kg, current.SpeedKmph, routeName(current.RouteID)),
		}
	}

	if Deviated(current) {
		return &models.AnomalyEvent{
			ID:        EventID(current.VehicleID, current.Timestamp),
			VehicleID: current.VehicleID,
			Timestamp: current.Timestamp,
			Type:      models.AnomalyRouteDeviation,
			Severity:  models.SeverityWarning,
			Detail: fmt.Sprintf("Delayed and off %s (%s), ETA %.1fh",
				routeName(current.RouteID), current.DeviationStatus, current.ETAHours),
		}
	}

	return nil
}

func routeName(id string) string {
	if id == "" {
		return "unknown route"
	}
	return strings.ReplaceAll(id, "_", " → ")
}
