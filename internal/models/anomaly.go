package models

// AnomalyType identifies the kind of anomaly raised for a vehicle
type AnomalyType string

const (
	AnomalyHighEmission   AnomalyType = "HIGH_EMISSION_ALERT"
	AnomalyRouteDeviation AnomalyType = "ROUTE_DEVIATION_ALERT"
)

// Severity of an anomaly
type Severity string

const (
	SeverityWarning  Severity = "WARNING"
	SeverityCritical Severity = "CRITICAL"
)

// AnomalyEvent is created once when a vehicle enters an alerting condition
// and is never mutated afterwards.
type AnomalyEvent struct {
	ID        string      `json:"id"`
	VehicleID string      `json:"vehicle_id"`
	Timestamp int64       `json:"timestamp"`
	Type      AnomalyType `json:"type"`
	Severity  Severity    `json:"severity"`
	Detail    string      `json:"detail"`
}
