// Package rankings provides the fleet emission ranking with a local fallback.
package rankings

import (
	"context"
	"log"
	"strings"

	"fleet-ops-dashboard/internal/models"

	"github.com/shopspring/decimal"
)

// Placeholder figures used when the ranking service cannot be reached. They
// are not computed from data.
const (
	FallbackCO2PerKm = 0.03
	FallbackScore    = 3
)

// Fetcher is the ranking endpoint of the backend
type Fetcher interface {
	FetchRankings(ctx context.Context) ([]models.RankingEntry, error)
}

// Result is a ranking together with how it was obtained
type Result struct {
	Entries  []models.RankingEntry `json:"data"`
	Degraded bool                  `json:"degraded"`
}

// Fetch asks the backend for the ranking and falls back to a placeholder
// ranking built from the snapshot when that fails.
func Fetch(ctx context.Context, f Fetcher, snapshot *models.FleetSnapshot) Result {
	entries, err := f.FetchRankings(ctx)
	if err == nil {
		return Result{Entries: entries}
	}
	log.Printf("⚠️  rankings unavailable, using placeholder ranking: %v", err)
	return Result{Entries: Fallback(snapshot), Degraded: true}
}

// Fallback derives a degraded ranking from the current snapshot
func Fallback(snapshot *models.FleetSnapshot) []models.RankingEntry {
	records := snapshot.Records()
	out := make([]models.RankingEntry, 0, len(records))
	for _, r := range records {
		out = append(out, models.RankingEntry{
			VehicleID: r.VehicleID,
			Route:     r.RouteID,
			CO2Kg:     decimal.NewFromFloat(r.CO2Kg).Round(2).InexactFloat64(),
			CO2PerKm:  FallbackCO2PerKm,
			Score:     FallbackScore,
			Status:    string(r.Status),
		})
	}
	return out
}

// Stars renders a 0-5 score as filled and empty stars
func Stars(score float64) string {
	n := int(decimal.NewFromFloat(score).Round(0).IntPart())
	if n < 0 {
		n = 0
	}
	if n > 5 {
		n = 5
	}
	return strings.Repeat("★", n) + strings.Repeat("☆", 5-n)
}
