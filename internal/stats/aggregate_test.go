package stats

import (
	"math"
	"testing"
	"time"

	"fleet-ops-dashboard/internal/models"
)

const interval = 2 * time.Second

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestComputeTotals(t *testing.T) {
	snap := models.NewSnapshot([]models.VehicleRecord{
		{VehicleID: "A", CO2Kg: 40, CO2SavedKg: 2, FuelConsumed: 10, ETAStatus: models.ETAOnTime},
		{VehicleID: "B", CO2Kg: 60, CO2SavedKg: 3, FuelConsumed: 20, ETAStatus: models.ETADelayed},
	})

	s := Compute(snap, interval)
	if !almostEqual(s.TotalCO2, 100) {
		t.Errorf("TotalCO2 = %v, want 100", s.TotalCO2)
	}
	if !almostEqual(s.TotalSaved, 5) {
		t.Errorf("TotalSaved = %v, want 5", s.TotalSaved)
	}
	if s.OnTimeCount != 1 || !almostEqual(s.OnTimePct, 50) {
		t.Errorf("on time = %d (%.1f%%), want 1 (50%%)", s.OnTimeCount, s.OnTimePct)
	}
	if s.VehicleCount != 2 || !almostEqual(s.TotalFuel, 30) {
		t.Errorf("unexpected counts: %+v", s)
	}
}

func TestZeroFuelExcludedFromEfficiency(t *testing.T) {
	snap := models.NewSnapshot([]models.VehicleRecord{
		{VehicleID: "A", SpeedKmph: 72, FuelConsumed: 0.01},
		{VehicleID: "B", SpeedKmph: 90, FuelConsumed: 0},
	})

	s := Compute(snap, interval)
	want := 72 * interval.Hours() / 0.01
	if !almostEqual(s.AvgEfficiency, want) {
		t.Errorf("AvgEfficiency = %v, want %v (zero-fuel vehicle must not dilute the average)", s.AvgEfficiency, want)
	}
}

func TestEfficiencyFollowsInterval(t *testing.T) {
	r := models.VehicleRecord{SpeedKmph: 60, FuelConsumed: 1}
	short, _ := Efficiency(r, time.Minute)
	long, _ := Efficiency(r, 2*time.Minute)
	if !almostEqual(long, 2*short) {
		t.Errorf("doubling the interval should double efficiency: %v vs %v", short, long)
	}
}

func TestComputeEmpty(t *testing.T) {
	s := Compute(models.NewSnapshot(nil), interval)
	if s != (models.AggregateStats{}) {
		t.Errorf("empty snapshot should give zero stats, got %+v", s)
	}
	if s := Compute(nil, interval); s.VehicleCount != 0 {
		t.Errorf("nil snapshot should give zero stats, got %+v", s)
	}
}
