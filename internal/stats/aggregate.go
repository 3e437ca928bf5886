// Package stats derives fleet-wide metrics from a snapshot.
package stats

import (
	"time"

	"fleet-ops-dashboard/internal/models"
)

// Efficiency returns the km travelled per litre over one sampling interval.
// The second result is false for vehicles that consumed no fuel.
func Efficiency(r models.VehicleRecord, interval time.Duration) (float64, bool) {
	if r.FuelConsumed <= 0 {
		return 0, false
	}
	return r.SpeedKmph * interval.Hours() / r.FuelConsumed, true
}

// Compute recomputes every aggregate from scratch. Nothing is carried over
// between calls, so a bad record only skews the snapshot it belongs to.
func Compute(snapshot *models.FleetSnapshot, interval time.Duration) models.AggregateStats {
	var (
		s          models.AggregateStats
		effSum     float64
		effSamples int
	)

	for _, r := range snapshot.Records() {
		s.VehicleCount++
		s.TotalCO2 += r.CO2Kg
		s.TotalSaved += r.CO2SavedKg
		s.TotalFuel += r.FuelConsumed
		if r.ETAStatus == models.ETAOnTime {
			s.OnTimeCount++
		}
		if eff, ok := Efficiency(r, interval); ok {
			effSum += eff
			effSamples++
		}
	}

	if effSamples > 0 {
		s.AvgEfficiency = effSum / float64(effSamples)
	}
	if s.VehicleCount > 0 {
		s.OnTimePct = float64(s.OnTimeCount) / float64(s.VehicleCount) * 100
	}
	return s
}
