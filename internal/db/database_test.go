package db

import (
	"path/filepath"
	"testing"

	"fleet-ops-dashboard/internal/models"
)

func openTestDB(t *testing.T) *Database {
	t.Helper()
	database, err := New(filepath.Join(t.TempDir(), "replay.db"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return database
}

func TestInsertAndLoadFrame(t *testing.T) {
	database := openTestDB(t)
	lat, lng := 28.6, 77.2

	frame := []models.VehicleRecord{
		{VehicleID: "TRK-B", Timestamp: 10, Latitude: &lat, Longitude: &lng, CO2Kg: 3.5, Status: models.StatusNormal, ETAStatus: models.ETAOnTime, RouteID: "delhi_mumbai"},
		{VehicleID: "TRK-A", Timestamp: 11, CO2Kg: 1.25, Status: models.StatusHighEmissionAlert, ETAStatus: models.ETADelayed, RouteID: "kolkata_patna", CargoType: "frozen"},
	}
	n, err := database.InsertFrame(0, frame)
	if err != nil || n != 2 {
		t.Fatalf("InsertFrame: n=%d err=%v", n, err)
	}

	snap, err := database.SnapshotAt(0)
	if err != nil {
		t.Fatalf("SnapshotAt: %v", err)
	}
	records := snap.Records()
	if len(records) != 2 || records[0].VehicleID != "TRK-B" {
		t.Fatalf("frame order not preserved: %+v", records)
	}
	if !records[0].Locatable() || *records[0].Latitude != lat {
		t.Errorf("coordinates not round-tripped: %+v", records[0])
	}
	if records[1].Locatable() {
		t.Error("NULL coordinates should load as unlocatable")
	}
	if records[1].Status != models.StatusHighEmissionAlert || records[1].CargoType != "frozen" {
		t.Errorf("fields not round-tripped: %+v", records[1])
	}
}

func TestFramesAndStats(t *testing.T) {
	database := openTestDB(t)

	next, err := database.NextFrame()
	if err != nil || next != 0 {
		t.Fatalf("empty store NextFrame = %d, %v", next, err)
	}

	for f := int64(0); f < 3; f++ {
		status := models.StatusNormal
		if f == 2 {
			status = models.StatusHighEmissionAlert
		}
		if _, err := database.InsertFrame(f, []models.VehicleRecord{
			{VehicleID: "A", Timestamp: f, Status: status},
			{VehicleID: "B", Timestamp: f, Status: models.StatusNormal},
		}); err != nil {
			t.Fatalf("InsertFrame %d: %v", f, err)
		}
	}

	frames, err := database.Frames()
	if err != nil || len(frames) != 3 || frames[2] != 2 {
		t.Fatalf("Frames = %v, %v", frames, err)
	}
	if next, _ := database.NextFrame(); next != 3 {
		t.Errorf("NextFrame = %d, want 3", next)
	}

	stats, err := database.GetStats()
	if err != nil {
		t.Fatalf("GetStats: %v", err)
	}
	if stats.Frames != 3 || stats.Records != 6 || stats.Vehicles != 2 || stats.AlertRecords != 1 {
		t.Errorf("unexpected stats: %+v", stats)
	}

	ids, err := database.ListVehicles()
	if err != nil || len(ids) != 2 || ids[0] != "A" {
		t.Errorf("ListVehicles = %v, %v", ids, err)
	}
}
