package rankings

import (
	"context"
	"errors"
	"testing"

	"fleet-ops-dashboard/internal/models"
)

type fetcherFunc func(ctx context.Context) ([]models.RankingEntry, error)

func (f fetcherFunc) FetchRankings(ctx context.Context) ([]models.RankingEntry, error) {
	return f(ctx)
}

func TestFetchUsesService(t *testing.T) {
	served := []models.RankingEntry{{VehicleID: "T1", Score: 4.5, CO2PerKm: 0.8}}
	res := Fetch(context.Background(), fetcherFunc(func(context.Context) ([]models.RankingEntry, error) {
		return served, nil
	}), nil)

	if res.Degraded || len(res.Entries) != 1 || res.Entries[0].Score != 4.5 {
		t.Errorf("unexpected result: %+v", res)
	}
}

func TestFetchFallsBack(t *testing.T) {
	snap := models.NewSnapshot([]models.VehicleRecord{
		{VehicleID: "T1", RouteID: "delhi_mumbai", CO2Kg: 12.3456, Status: models.StatusWarning},
		{VehicleID: "T2", RouteID: "kolkata_patna", CO2Kg: 1, Status: models.StatusNormal},
	})
	res := Fetch(context.Background(), fetcherFunc(func(context.Context) ([]models.RankingEntry, error) {
		return nil, &models.TransientFetchError{Source: "/api/fleet-rankings", Err: errors.New("refused")}
	}), snap)

	if !res.Degraded || len(res.Entries) != 2 {
		t.Fatalf("expected degraded ranking of 2, got %+v", res)
	}
	first := res.Entries[0]
	if first.VehicleID != "T1" || first.Route != "delhi_mumbai" || first.Status != "WARNING" {
		t.Errorf("identity fields not copied: %+v", first)
	}
	if first.CO2PerKm != FallbackCO2PerKm || first.Score != FallbackScore || first.CO2Kg != 12.35 {
		t.Errorf("placeholder figures wrong: %+v", first)
	}
}

func TestStars(t *testing.T) {
	tests := []struct {
		score float64
		want  string
	}{
		{3, "★★★☆☆"},
		{4.6, "★★★★★"},
		{-1, "☆☆☆☆☆"},
		{9, "★★★★★"},
	}
	for _, tt := range tests {
		if got := Stars(tt.score); got != tt.want {
			t.Errorf("Stars(%v) = %s, want %s", tt.score, got, tt.want)
		}
	}
}
