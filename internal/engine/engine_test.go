package engine

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"fleet-ops-dashboard/internal/models"
	"fleet-ops-dashboard/internal/source"
	"fleet-ops-dashboard/internal/store"
)

func TestFailedPollKeepsLastSnapshot(t *testing.T) {
	var fail atomic.Bool
	src := source.Func(func(ctx context.Context) (*models.FleetSnapshot, error) {
		if fail.Load() {
			return nil, &models.TransientFetchError{Source: "/api/fleet", Status: 500}
		}
		return models.NewSnapshot([]models.VehicleRecord{
			{VehicleID: "T1", CO2Kg: 60},
			{VehicleID: "T2", CO2Kg: 40},
		}), nil
	})
	st := store.New(2*time.Second, 10)
	eng := New(src, st, time.Second, time.Second)

	if err := eng.PollOnce(context.Background()); err != nil {
		t.Fatalf("first poll: %v", err)
	}
	if got := st.State().Stats.TotalCO2; got != 100 {
		t.Fatalf("totalCo2 = %v, want 100", got)
	}

	fail.Store(true)
	var fetchErr *models.TransientFetchError
	if err := eng.PollOnce(context.Background()); !errors.As(err, &fetchErr) {
		t.Fatalf("expected TransientFetchError, got %v", err)
	}

	state := st.State()
	if state.Stats.TotalCO2 != 100 || state.Snapshot.Len() != 2 {
		t.Errorf("failure reset the state: totalCo2=%v vehicles=%d", state.Stats.TotalCO2, state.Snapshot.Len())
	}
	if state.Version != 1 {
		t.Errorf("failed poll ingested: version %d", state.Version)
	}

	h := eng.Health()
	if h.Polls != 2 || h.Failures != 1 || !h.Stale || h.LastError == "" {
		t.Errorf("unexpected health: %+v", h)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	var polls atomic.Int32
	src := source.Func(func(ctx context.Context) (*models.FleetSnapshot, error) {
		polls.Add(1)
		return models.NewSnapshot([]models.VehicleRecord{{VehicleID: "T1"}}), nil
	})
	st := store.New(time.Second, 10)
	eng := New(src, st, 5*time.Millisecond, 0)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		eng.Run(ctx)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for polls.Load() < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if st.State().Version < 3 {
		t.Errorf("expected at least 3 ingests, got %d", st.State().Version)
	}
}
