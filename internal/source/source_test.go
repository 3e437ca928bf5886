package source

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"fleet-ops-dashboard/internal/models"
	"fleet-ops-dashboard/internal/upstream"
)

func TestHTTPSourcePoll(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"vehicle_id":"T1","co2_kg":2},{"co2_kg":9},{"vehicle_id":"T2","latitude":120,"longitude":77}]`))
	}))
	defer srv.Close()

	src := NewHTTPSource(upstream.NewClient(srv.URL, time.Second))
	snap, err := src.Poll(context.Background())
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if snap.Len() != 2 {
		t.Fatalf("expected record without id to be dropped, got %d records", snap.Len())
	}
	if rec, _ := snap.Get("T2"); rec.Locatable() {
		t.Error("out-of-range latitude should leave the record unlocatable")
	}
}

func TestHTTPSourceFailureIsNotEmptyFleet(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	snap, err := NewHTTPSource(upstream.NewClient(srv.URL, time.Second)).Poll(context.Background())
	if snap != nil {
		t.Errorf("failed poll returned a snapshot: %+v", snap.Records())
	}
	var fetchErr *models.TransientFetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("expected TransientFetchError, got %v", err)
	}
}

type fakeFrames struct {
	frames map[int64][]models.VehicleRecord
	order  []int64
}

func (f *fakeFrames) Frames() ([]int64, error) { return f.order, nil }

func (f *fakeFrames) SnapshotAt(frame int64) (*models.FleetSnapshot, error) {
	return models.NewSnapshot(f.frames[frame]), nil
}

func TestReplaySourceWrapsAround(t *testing.T) {
	store := &fakeFrames{
		order: []int64{0, 1},
		frames: map[int64][]models.VehicleRecord{
			0: {{VehicleID: "T1", CO2Kg: 1}},
			1: {{VehicleID: "T1", CO2Kg: 2}},
		},
	}
	src := NewReplaySource(store)

	var got []float64
	for i := 0; i < 3; i++ {
		snap, err := src.Poll(context.Background())
		if err != nil {
			t.Fatalf("poll %d: %v", i, err)
		}
		rec, _ := snap.Get("T1")
		got = append(got, rec.CO2Kg)
	}
	if got[0] != 1 || got[1] != 2 || got[2] != 1 {
		t.Errorf("replay order = %v, want [1 2 1]", got)
	}
}

func TestReplaySourceEmpty(t *testing.T) {
	_, err := NewReplaySource(&fakeFrames{}).Poll(context.Background())
	var fetchErr *models.TransientFetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("expected TransientFetchError for empty store, got %v", err)
	}
}

func TestAccumulator(t *testing.T) {
	acc := NewAccumulator(0)

	msgs := []string{
		`{"vehicle_id":"T1","timestamp":10,"co2_kg":1}`,
		`{"vehicle_id":"T2","timestamp":10,"co2_kg":5}`,
		`{"vehicle_id":"T1","timestamp":12,"co2_kg":3}`,
		`{"vehicle_id":"T1","timestamp":11,"co2_kg":2}`,
	}
	for _, m := range msgs {
		if err := acc.Apply([]byte(m)); err != nil {
			t.Fatalf("Apply(%s): %v", m, err)
		}
	}

	var malformed *models.MalformedRecordError
	if err := acc.Apply([]byte(`{not json`)); !errors.As(err, &malformed) {
		t.Errorf("expected MalformedRecordError, got %v", err)
	}
	if err := acc.Apply([]byte(`{"co2_kg":1}`)); !errors.As(err, &malformed) {
		t.Errorf("expected MalformedRecordError for missing id, got %v", err)
	}
	if acc.Dropped() != 2 {
		t.Errorf("Dropped = %d, want 2", acc.Dropped())
	}

	records := acc.Snapshot().Records()
	if len(records) != 2 || records[0].VehicleID != "T1" {
		t.Fatalf("unexpected snapshot: %+v", records)
	}
	if records[0].CO2Kg != 3 {
		t.Errorf("older message replaced newer one: co2 = %v", records[0].CO2Kg)
	}
}

func TestAccumulatorForgetsSilentVehicles(t *testing.T) {
	acc := NewAccumulator(time.Minute)
	for _, m := range []string{
		`{"vehicle_id":"T1","timestamp":1000}`,
		`{"vehicle_id":"T2","timestamp":1000}`,
		`{"vehicle_id":"T2","timestamp":1090}`,
	} {
		if err := acc.Apply([]byte(m)); err != nil {
			t.Fatal(err)
		}
	}

	records := acc.Snapshot().Records()
	if len(records) != 1 || records[0].VehicleID != "T2" {
		t.Fatalf("T1 went silent for 90s and should be dropped, got %+v", records)
	}

	// a vehicle that reports again rejoins at the end
	acc.Apply([]byte(`{"vehicle_id":"T1","timestamp":1100}`))
	records = acc.Snapshot().Records()
	if len(records) != 2 || records[1].VehicleID != "T1" {
		t.Errorf("unexpected snapshot after T1 returned: %+v", records)
	}
}

func TestFuncAdapter(t *testing.T) {
	want := models.NewSnapshot([]models.VehicleRecord{{VehicleID: "T1"}})
	var src Source = Func(func(ctx context.Context) (*models.FleetSnapshot, error) { return want, nil })
	got, err := src.Poll(context.Background())
	if err != nil || got != want {
		t.Errorf("Func.Poll = %v, %v", got, err)
	}
}
