package routes

import "testing"

func TestVisible(t *testing.T) {
	tests := []struct {
		filter string
		want   int
	}{
		{"", 3},
		{AllRoutes, 3},
		{"chennai_bangalore", 1},
		{"atlantis", 0},
	}
	for _, tt := range tests {
		if got := len(Visible(tt.filter)); got != tt.want {
			t.Errorf("Visible(%q) = %d routes, want %d", tt.filter, got, tt.want)
		}
	}
}

func TestCheckpointsFollowFilter(t *testing.T) {
	if got := len(Checkpoints(AllRoutes)); got != 7 {
		t.Fatalf("expected 7 checkpoints, got %d", got)
	}
	for _, cp := range Checkpoints("kolkata_patna") {
		if cp.Route != "kolkata_patna" {
			t.Errorf("checkpoint %q belongs to %s", cp.Label, cp.Route)
		}
	}
	if got := len(Checkpoints("kolkata_patna")); got != 2 {
		t.Errorf("expected 2 kolkata_patna checkpoints, got %d", got)
	}
}

func TestRouteEndpointsMatchWaypoints(t *testing.T) {
	for _, id := range IDs() {
		r, ok := Lookup(id)
		if !ok {
			t.Fatalf("route %s missing", id)
		}
		first, last := r.Waypoints[0], r.Waypoints[len(r.Waypoints)-1]
		if first != r.Origin.LatLng || last != r.Destination.LatLng {
			t.Errorf("route %s endpoints do not match its waypoints", id)
		}
	}
}

func TestFilterOptions(t *testing.T) {
	opts := FilterOptions()
	if len(opts) != 4 || opts[0].ID != AllRoutes {
		t.Fatalf("unexpected options: %+v", opts)
	}
}

func TestReturnedWaypointsAreCopies(t *testing.T) {
	r, _ := Lookup("delhi_mumbai")
	want := r.Waypoints[0]
	r.Waypoints[0] = LatLng{}
	for _, v := range Visible(AllRoutes) {
		v.Waypoints[0] = LatLng{}
	}
	Visible("delhi_mumbai")[0].Waypoints[0] = LatLng{}

	again, _ := Lookup("delhi_mumbai")
	if again.Waypoints[0] != want {
		t.Errorf("static waypoints modified through a returned route: %+v", again.Waypoints[0])
	}
	if all := Visible(AllRoutes); all[0].Waypoints[0] != want {
		t.Errorf("Visible returned a modified route: %+v", all[0].Waypoints[0])
	}
}
