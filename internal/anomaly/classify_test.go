package anomaly

import (
	"testing"

	"fleet-ops-dashboard/internal/models"
)

func record(status models.VehicleStatus, eta models.ETAStatus, deviation string) models.VehicleRecord {
	return models.VehicleRecord{
		VehicleID:       "T1",
		Timestamp:       1700000000,
		RouteID:         "delhi_mumbai",
		Status:          status,
		ETAStatus:       eta,
		DeviationStatus: deviation,
	}
}

func TestClassify(t *testing.T) {
	normal := record(models.StatusNormal, models.ETAOnTime, "ON_ROUTE")
	alert := record(models.StatusHighEmissionAlert, models.ETAOnTime, "ON_ROUTE")

	tests := []struct {
		name     string
		previous *models.VehicleRecord
		current  models.VehicleRecord
		wantType models.AnomalyType
		wantSev  models.Severity
	}{
		{"normal stays quiet", nil, normal, "", ""},
		{"first sighting in alert", nil, alert, models.AnomalyHighEmission, models.SeverityCritical},
		{"transition into alert", &normal, alert, models.AnomalyHighEmission, models.SeverityCritical},
		{"sustained alert", &alert, alert, "", ""},
		{"delayed and deviated", nil, record(models.StatusNormal, models.ETADelayed, "ROUTE_DEVIATION"), models.AnomalyRouteDeviation, models.SeverityWarning},
		{"delayed but on route", nil, record(models.StatusNormal, models.ETADelayed, "ON_ROUTE"), "", ""},
		{"deviated but on time", nil, record(models.StatusNormal, models.ETAAtRisk, "OFF_ROUTE"), "", ""},
		{"emission wins over deviation", &normal, record(models.StatusHighEmissionAlert, models.ETADelayed, "deviated"), models.AnomalyHighEmission, models.SeverityCritical},
		{"sustained alert falls through to deviation", &alert, record(models.StatusHighEmissionAlert, models.ETADelayed, "DEVIATED"), models.AnomalyRouteDeviation, models.SeverityWarning},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.previous, tt.current)
			if tt.wantType == "" {
				if got != nil {
					t.Fatalf("expected no anomaly, got %+v", got)
				}
				return
			}
			if got == nil {
				t.Fatalf("expected %s, got none", tt.wantType)
			}
			if got.Type != tt.wantType || got.Severity != tt.wantSev {
				t.Errorf("got %s/%s, want %s/%s", got.Type, got.Severity, tt.wantType, tt.wantSev)
			}
			if got.VehicleID != "T1" || got.Timestamp != tt.current.Timestamp {
				t.Errorf("event not tied to record: %+v", got)
			}
			if got.Detail == "" {
				t.Error("detail should not be empty")
			}
		})
	}
}

func TestEventIDDeterministic(t *testing.T) {
	a := EventID("T1", 10)
	if a != EventID("T1", 10) {
		t.Error("same vehicle and timestamp must give the same id")
	}
	if a == EventID("T1", 11) || a == EventID("T2", 10) {
		t.Error("ids must differ across vehicles and timestamps")
	}
}
