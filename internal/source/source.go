// Package source provides periodic fleet snapshot sources.
package source

import (
	"context"

	"fleet-ops-dashboard/internal/models"
	"fleet-ops-dashboard/internal/parser"
	"fleet-ops-dashboard/internal/upstream"
)

// Source produces the full current fleet on demand. A failed poll returns an
// error and never an empty snapshot standing in for one.
type Source interface {
	Poll(ctx context.Context) (*models.FleetSnapshot, error)
}

// Func adapts a function to the Source interface
type Func func(ctx context.Context) (*models.FleetSnapshot, error)

// Poll calls f
func (f Func) Poll(ctx context.Context) (*models.FleetSnapshot, error) {
	return f(ctx)
}

// HTTPSource polls GET /api/fleet. It keeps no state between calls.
type HTTPSource struct {
	client *upstream.Client
}

// NewHTTPSource creates a source backed by the fleet API
func NewHTTPSource(client *upstream.Client) *HTTPSource {
	return &HTTPSource{client: client}
}

// Poll fetches and normalizes the current fleet
func (s *HTTPSource) Poll(ctx context.Context) (*models.FleetSnapshot, error) {
	records, err := s.client.FetchFleet(ctx)
	if err != nil {
		return nil, err
	}
	snap, problems := parser.Normalize(records)
	parser.LogProblems("/api/fleet", problems)
	return snap, nil
}
