package mapview

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"fleet-ops-dashboard/internal/models"
	"fleet-ops-dashboard/internal/routes"
	"fleet-ops-dashboard/internal/store"
)

func at(lat, lng float64) (*float64, *float64) {
	return &lat, &lng
}

func vehicle(id, route string, status models.VehicleStatus, eta models.ETAStatus) models.VehicleRecord {
	lat, lng := at(25, 78)
	return models.VehicleRecord{VehicleID: id, RouteID: route, Status: status, ETAStatus: eta, Latitude: lat, Longitude: lng}
}

func TestBuildDrawOrder(t *testing.T) {
	snap := models.NewSnapshot([]models.VehicleRecord{
		vehicle("T1", "delhi_mumbai", models.StatusNormal, models.ETADelayed),
	})
	plan := Build(snap, "delhi_mumbai", "")

	var kinds []string
	for _, s := range plan.Steps {
		switch {
		case s.Route != nil && s.Route.Ghost:
			kinds = append(kinds, "ghost")
		case s.Route != nil:
			kinds = append(kinds, "route")
		default:
			kinds = append(kinds, string(s.Marker.Kind))
		}
	}
	want := "route,origin,destination,ghost,checkpoint,checkpoint,checkpoint,vehicle"
	if got := strings.Join(kinds, ","); got != want {
		t.Errorf("draw order\n got: %s\nwant: %s", got, want)
	}
}

func TestBuildSingleGhostPath(t *testing.T) {
	snap := models.NewSnapshot([]models.VehicleRecord{
		vehicle("T1", "delhi_mumbai", models.StatusNormal, models.ETAOnTime),
		vehicle("T2", "delhi_mumbai", models.StatusNormal, models.ETADelayed),
	})
	plan := Build(snap, routes.AllRoutes, "")

	var ghosts []Polyline
	for _, p := range plan.Routes() {
		if p.Ghost {
			ghosts = append(ghosts, p)
		}
	}
	if len(ghosts) != 1 {
		t.Fatalf("expected exactly one ghost path, got %d", len(ghosts))
	}
	dm, _ := routes.Lookup("delhi_mumbai")
	if ghosts[0].ID != "ghost:T2" || ghosts[0].Dash != "8 6" || len(ghosts[0].Points) != len(dm.Waypoints) {
		t.Errorf("unexpected ghost path: %+v", ghosts[0])
	}
}

func TestBuildMarkerStyling(t *testing.T) {
	snap := models.NewSnapshot([]models.VehicleRecord{
		vehicle("A", "delhi_mumbai", models.StatusHighEmissionAlert, models.ETAOnTime),
		vehicle("W", "delhi_mumbai", models.StatusWarning, models.ETAOnTime),
		vehicle("N", "delhi_mumbai", models.StatusNormal, models.ETAOnTime),
	})
	plan := Build(snap, routes.AllRoutes, "W")
	markers := plan.Markers(KindVehicle)
	if len(markers) != 3 {
		t.Fatalf("expected 3 vehicle markers, got %d", len(markers))
	}

	tests := []struct {
		color    string
		size     int
		selected bool
	}{
		{ColorAlert, 14, false},
		{ColorWarning, 18, true},
		{ColorNormal, 14, false},
	}
	for i, tt := range tests {
		m := markers[i]
		if m.Color != tt.color || m.Size != tt.size || m.Selected != tt.selected {
			t.Errorf("marker %s = {%s %d %v}, want {%s %d %v}", m.VehicleID, m.Color, m.Size, m.Selected, tt.color, tt.size, tt.selected)
		}
	}
	if !strings.Contains(markers[0].Popup, "HIGH EMISSION ALERT") {
		t.Errorf("alert popup missing banner: %q", markers[0].Popup)
	}
}

func TestBuildSkipsUnlocatable(t *testing.T) {
	snap := models.NewSnapshot([]models.VehicleRecord{
		vehicle("T1", "kolkata_patna", models.StatusNormal, models.ETAOnTime),
		{VehicleID: "T2", RouteID: "kolkata_patna", Status: models.StatusNormal},
	})
	plan := Build(snap, "kolkata_patna", "")

	if n := len(plan.Markers(KindVehicle)); n != 1 {
		t.Errorf("expected 1 vehicle marker, got %d", n)
	}
	if len(plan.Skipped) != 1 || plan.Skipped[0] != "T2" {
		t.Errorf("Skipped = %v, want [T2]", plan.Skipped)
	}
	if plan.Fit == nil {
		t.Error("pins and marker should produce a fit")
	}
}

func TestApplyKeepsViewportBelowTwoEntities(t *testing.T) {
	scene := NewScene("map")
	Apply(scene, Build(models.NewSnapshot(nil), routes.AllRoutes, ""))
	before := scene.View().Viewport
	if before.Bounds == nil || before.Padding != FitPadding {
		t.Fatalf("initial fit missing: %+v", before)
	}

	// a route outside the compiled-in table has no pins
	snap := models.NewSnapshot([]models.VehicleRecord{vehicle("T9", "hyderabad_pune", models.StatusNormal, models.ETAOnTime)})
	plan := Build(snap, "hyderabad_pune", "")
	if plan.Fit != nil {
		t.Fatalf("single entity should not fit: %+v", plan.Fit)
	}
	Apply(scene, plan)

	after := scene.View()
	if after.Viewport.Fits != before.Fits || *after.Viewport.Bounds != *before.Bounds {
		t.Errorf("viewport changed: before %+v after %+v", before, after.Viewport)
	}
	if len(after.Markers) != 1 {
		t.Errorf("layer group not replaced: %d markers", len(after.Markers))
	}
}

func newTestLayer(t *testing.T) (*Layer, *store.Store, *SceneFactory, *Registry) {
	t.Helper()
	st := store.New(2*time.Second, 10)
	factory := NewSceneFactory()
	registry := NewRegistry()
	layer := NewLayer(registry, factory.Create, st, st.Select)
	return layer, st, factory, registry
}

func TestLayerLifecycle(t *testing.T) {
	layer, st, factory, registry := newTestLayer(t)

	if err := layer.Dispose(); err != nil {
		t.Fatalf("Dispose before mount: %v", err)
	}
	if layer.State() != Disposed {
		t.Errorf("state = %v, want disposed", layer.State())
	}
	var mountErr *models.RenderMountError
	if err := layer.Mount("map"); !errors.As(err, &mountErr) {
		t.Errorf("mount after dispose: %v", err)
	}

	layer = NewLayer(registry, factory.Create, st, st.Select)
	if err := layer.Mount("map"); err != nil {
		t.Fatalf("Mount: %v", err)
	}
	if err := layer.Mount("map"); err != nil {
		t.Fatalf("second Mount should be a no-op: %v", err)
	}
	if layer.Redraws() != 1 {
		t.Errorf("redraws after mount = %d, want 1", layer.Redraws())
	}

	other := NewLayer(registry, factory.Create, st, st.Select)
	if err := other.Mount("map"); !errors.As(err, &mountErr) || !errors.Is(err, ErrContainerInUse) {
		t.Errorf("expected container conflict, got %v", err)
	}
	if err := other.Mount("side"); err != nil {
		t.Errorf("other container should mount: %v", err)
	}

	scene, _ := factory.Scene("map")
	if err := layer.Dispose(); err != nil {
		t.Fatalf("Dispose: %v", err)
	}
	if !scene.Closed() {
		t.Error("dispose should close the surface")
	}

	st.Ingest(models.NewSnapshot([]models.VehicleRecord{vehicle("T1", "delhi_mumbai", models.StatusNormal, models.ETAOnTime)}))
	if layer.Redraws() != 1 {
		t.Error("disposed layer kept redrawing")
	}

	reuse := NewLayer(registry, factory.Create, st, st.Select)
	if err := reuse.Mount("map"); err != nil {
		t.Errorf("released container should be mountable: %v", err)
	}
}

func TestLayerMountFactoryFailure(t *testing.T) {
	st := store.New(time.Second, 10)
	registry := NewRegistry()
	failing := func(string) (Surface, error) { return nil, errors.New("no container") }

	layer := NewLayer(registry, failing, st, nil)
	var mountErr *models.RenderMountError
	if err := layer.Mount("map"); !errors.As(err, &mountErr) || mountErr.Container != "map" {
		t.Fatalf("expected RenderMountError, got %v", err)
	}
	if layer.State() != Uninitialized {
		t.Errorf("state = %v after failed mount", layer.State())
	}
	if err := NewLayer(registry, NewSceneFactory().Create, st, nil).Mount("map"); err != nil {
		t.Errorf("failed mount should not keep the container: %v", err)
	}
}

func TestLayerRedrawsOnChanges(t *testing.T) {
	layer, st, factory, _ := newTestLayer(t)
	if err := layer.Mount("map"); err != nil {
		t.Fatal(err)
	}

	var mu sync.Mutex
	var frames []Frame
	layer.OnRedraw(func(f Frame) {
		mu.Lock()
		frames = append(frames, f)
		mu.Unlock()
	})

	st.Ingest(models.NewSnapshot([]models.VehicleRecord{
		vehicle("T1", "delhi_mumbai", models.StatusNormal, models.ETAOnTime),
		vehicle("T2", "chennai_bangalore", models.StatusNormal, models.ETAOnTime),
	}))
	if err := layer.SetFilter("chennai_bangalore"); err != nil {
		t.Fatal(err)
	}
	if err := layer.Activate("T2"); err != nil {
		t.Fatal(err)
	}

	if len(frames) != 3 {
		t.Fatalf("expected 3 redraws, got %d", len(frames))
	}
	if frames[2].Selected != "T2" || st.Selected() != "T2" {
		t.Errorf("activation did not flow through the store: frame=%q store=%q", frames[2].Selected, st.Selected())
	}

	scene, _ := factory.Scene("map")
	view := scene.View()
	if len(view.Routes) != 1 || view.Routes[0].ID != "route:chennai_bangalore" {
		t.Errorf("filter not applied: %+v", view.Routes)
	}
	plan := layer.Plan()
	markers := plan.Markers(KindVehicle)
	if len(markers) != 1 || !markers[0].Selected || markers[0].Size != 18 {
		t.Errorf("selected marker not highlighted: %+v", markers)
	}

	if err := layer.Activate("T1"); !errors.Is(err, ErrUnknownMarker) {
		t.Errorf("activating a filtered-out vehicle: %v", err)
	}
	if err := layer.SetFilter("atlantis"); !errors.Is(err, ErrUnknownRoute) {
		t.Errorf("unknown filter accepted: %v", err)
	}
}
