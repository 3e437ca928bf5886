package models

import "encoding/json"

// VehicleStatus is the emission status reported for a vehicle
type VehicleStatus string

const (
	StatusNormal            VehicleStatus = "NORMAL"
	StatusWarning           VehicleStatus = "WARNING"
	StatusHighEmissionAlert VehicleStatus = "HIGH_EMISSION_ALERT"
)

// ETAStatus is the schedule status reported for a vehicle
type ETAStatus string

const (
	ETAOnTime  ETAStatus = "ON_TIME"
	ETAAtRisk  ETAStatus = "AT_RISK"
	ETADelayed ETAStatus = "DELAYED"
)

// VehicleRecord represents the latest telemetry reading of a single vehicle
type VehicleRecord struct {
	VehicleID       string        `json:"vehicle_id" db:"vehicle_id" validate:"required"`
	Timestamp       int64         `json:"timestamp" db:"timestamp"` // epoch seconds
	Latitude        *float64      `json:"latitude" db:"latitude"`   // degrees, WGS84
	Longitude       *float64      `json:"longitude" db:"longitude"` // degrees, WGS84
	SpeedKmph       float64       `json:"speed_kmph" db:"speed_kmph" validate:"gte=0"`
	FuelConsumed    float64       `json:"fuel_consumed_liters" db:"fuel_consumed_liters" validate:"gte=0"` // cumulative
	CO2Kg           float64       `json:"co2_kg" db:"co2_kg" validate:"gte=0"`                             // cumulative
	CO2SavedKg      float64       `json:"co2_saved_kg" db:"co2_saved_kg" validate:"gte=0"`
	RouteID         string        `json:"route_id" db:"route_id"`
	Status          VehicleStatus `json:"status" db:"status"`
	ETAHours        float64       `json:"eta_hours" db:"eta_hours"`
	ETAStatus       ETAStatus     `json:"eta_status" db:"eta_status"`
	CargoType       string        `json:"cargo_type,omitempty" db:"cargo_type"`
	DeviationStatus string        `json:"deviation_status" db:"deviation_status"`
}

// Locatable reports whether the record carries both coordinates
func (r *VehicleRecord) Locatable() bool {
	return r.Latitude != nil && r.Longitude != nil
}

// Position returns the coordinates of a locatable record
func (r *VehicleRecord) Position() (lat, lng float64, ok bool) {
	if !r.Locatable() {
		return 0, 0, false
	}
	return *r.Latitude, *r.Longitude, true
}

// FleetSnapshot is the complete current state of all tracked vehicles at one poll.
// Records keep arrival order; an id seen twice keeps its first position and last value.
type FleetSnapshot struct {
	records []VehicleRecord
	index   map[string]int
}

// NewSnapshot builds a snapshot from records in arrival order
func NewSnapshot(records []VehicleRecord) *FleetSnapshot {
	s := &FleetSnapshot{
		records: make([]VehicleRecord, 0, len(records)),
		index:   make(map[string]int, len(records)),
	}
	for _, r := range records {
		s.put(r)
	}
	return s
}

func (s *FleetSnapshot) put(r VehicleRecord) {
	if i, ok := s.index[r.VehicleID]; ok {
		s.records[i] = r
		return
	}
	s.index[r.VehicleID] = len(s.records)
	s.records = append(s.records, r)
}

// Len returns the number of vehicles in the snapshot
func (s *FleetSnapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.records)
}

// Get returns the current record for a vehicle
func (s *FleetSnapshot) Get(vehicleID string) (VehicleRecord, bool) {
	if s == nil {
		return VehicleRecord{}, false
	}
	i, ok := s.index[vehicleID]
	if !ok {
		return VehicleRecord{}, false
	}
	return s.records[i], true
}

// Records returns a copy of the records in arrival order
func (s *FleetSnapshot) Records() []VehicleRecord {
	if s == nil {
		return nil
	}
	out := make([]VehicleRecord, len(s.records))
	copy(out, s.records)
	return out
}

// MarshalJSON encodes the snapshot as the array the fleet API returns
func (s *FleetSnapshot) MarshalJSON() ([]byte, error) {
	records := s.Records()
	if records == nil {
		records = []VehicleRecord{}
	}
	return json.Marshal(records)
}

// UnmarshalJSON decodes an array of vehicle records
func (s *FleetSnapshot) UnmarshalJSON(data []byte) error {
	var records []VehicleRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return err
	}
	*s = *NewSnapshot(records)
	return nil
}

// AggregateStats is derived from a snapshot and never stored independently
type AggregateStats struct {
	TotalCO2      float64 `json:"totalCo2"`
	AvgEfficiency float64 `json:"avgEfficiency"` // km per litre over one sampling interval
	OnTimeCount   int     `json:"onTimeCount"`
	TotalSaved    float64 `json:"totalSaved"`
	VehicleCount  int     `json:"vehicleCount"`
	OnTimePct     float64 `json:"onTimePct"`
	TotalFuel     float64 `json:"totalFuel"`
}

// RankingEntry is one row of the fleet emission ranking
type RankingEntry struct {
	VehicleID string  `json:"vehicle_id"`
	Route     string  `json:"route"`
	CO2Kg     float64 `json:"co2_kg"`
	CO2PerKm  float64 `json:"co2_per_km"`
	Score     float64 `json:"score"` // 0-5
	Status    string  `json:"status"`
}

// QueryRequest is the payload sent to the answering service
type QueryRequest struct {
	Question string `json:"question"`
}

// QueryResult is the answer returned by the answering service
type QueryResult struct {
	Answer       string   `json:"answer"`
	Sources      []string `json:"sources"`
	LiveDataUsed bool     `json:"live_data_used"`
}

// SpikeRequest asks the backend to inject a synthetic anomaly
type SpikeRequest struct {
	VehicleID string `json:"vehicle_id"`
}
