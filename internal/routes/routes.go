// Package routes holds the compiled-in freight corridors and their checkpoints.
package routes

import "slices"

// AllRoutes is the filter value that selects every corridor
const AllRoutes = "all"

// LatLng is a WGS84 coordinate pair
type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Place is a named point on a corridor
type Place struct {
	LatLng
	Name string `json:"name"`
}

// Route is a pre-baked corridor
type Route struct {
	ID          string   `json:"id"`
	Label       string   `json:"label"`
	Origin      Place    `json:"origin"`
	Destination Place    `json:"destination"`
	Waypoints   []LatLng `json:"waypoints"`
	Color       string   `json:"color"`
}

// CheckpointType is the kind of stop along a corridor
type CheckpointType string

const (
	CheckpointToll  CheckpointType = "toll"
	CheckpointWeigh CheckpointType = "weigh"
	CheckpointRest  CheckpointType = "rest"
)

// Checkpoint is a toll plaza, weigh station or rest stop
type Checkpoint struct {
	LatLng
	Label string         `json:"label"`
	Type  CheckpointType `json:"type"`
	Route string         `json:"route"`
}

var order = []string{"delhi_mumbai", "chennai_bangalore", "kolkata_patna"}

var table = map[string]Route{
	"delhi_mumbai": {
		ID:          "delhi_mumbai",
		Label:       "Delhi → Mumbai (NH48)",
		Origin:      Place{LatLng{28.6139, 77.2090}, "Delhi"},
		Destination: Place{LatLng{19.0760, 72.8777}, "Mumbai"},
		Waypoints: []LatLng{
			{28.6139, 77.2090}, {27.4924, 77.6737}, {27.1767, 78.0081},
			{26.2183, 78.1828}, {23.2599, 77.4126}, {22.7196, 76.1320},
			{22.3072, 73.1812}, {19.0760, 72.8777},
		},
		Color: "#00D4FF",
	},
	"chennai_bangalore": {
		ID:          "chennai_bangalore",
		Label:       "Chennai → Bangalore (NH44)",
		Origin:      Place{LatLng{13.0827, 80.2707}, "Chennai"},
		Destination: Place{LatLng{12.9716, 77.5946}, "Bangalore"},
		Waypoints: []LatLng{
			{13.0827, 80.2707}, {12.9165, 79.1325},
			{12.5186, 78.2137}, {12.9716, 77.5946},
		},
		Color: "#00FF88",
	},
	"kolkata_patna": {
		ID:          "kolkata_patna",
		Label:       "Kolkata → Patna (NH19)",
		Origin:      Place{LatLng{22.5726, 88.3639}, "Kolkata"},
		Destination: Place{LatLng{25.5941, 85.1376}, "Patna"},
		Waypoints: []LatLng{
			{22.5726, 88.3639}, {23.6889, 86.9661},
			{24.7914, 84.9994}, {25.5941, 85.1376},
		},
		Color: "#FF6B35",
	},
}

var checkpoints = []Checkpoint{
	{LatLng{26.92, 77.56}, "Toll - Kota Junction", CheckpointToll, "delhi_mumbai"},
	{LatLng{24.58, 77.32}, "Weigh - Bhopal Bypass", CheckpointWeigh, "delhi_mumbai"},
	{LatLng{22.72, 75.86}, "Rest - Indore Stop", CheckpointRest, "delhi_mumbai"},
	{LatLng{12.74, 79.04}, "Toll - Vellore Gate", CheckpointToll, "chennai_bangalore"},
	{LatLng{12.52, 78.21}, "Weigh - Krishnagiri", CheckpointWeigh, "chennai_bangalore"},
	{LatLng{23.68, 86.97}, "Toll - Dhanbad Plaza", CheckpointToll, "kolkata_patna"},
	{LatLng{24.79, 85.00}, "Rest - Gaya Stop", CheckpointRest, "kolkata_patna"},
}

// Lookup returns the corridor with the given id. The waypoints are a copy
// the caller may modify.
func Lookup(id string) (Route, bool) {
	r, ok := table[id]
	if !ok {
		return Route{}, false
	}
	return r.clone(), true
}

func (r Route) clone() Route {
	r.Waypoints = slices.Clone(r.Waypoints)
	return r
}

// IDs returns every corridor id in display order
func IDs() []string {
	out := make([]string, len(order))
	copy(out, order)
	return out
}

// Visible returns the corridors selected by a filter value. Unknown ids select nothing.
func Visible(filter string) []Route {
	if filter == "" || filter == AllRoutes {
		out := make([]Route, 0, len(order))
		for _, id := range order {
			out = append(out, table[id].clone())
		}
		return out
	}
	if r, ok := Lookup(filter); ok {
		return []Route{r}
	}
	return nil
}

// Checkpoints returns the checkpoints selected by a filter value
func Checkpoints(filter string) []Checkpoint {
	var out []Checkpoint
	for _, cp := range checkpoints {
		if filter == "" || filter == AllRoutes || cp.Route == filter {
			out = append(out, cp)
		}
	}
	return out
}

// FilterOption is an entry of the route selector
type FilterOption struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// FilterOptions lists "all" followed by every corridor
func FilterOptions() []FilterOption {
	opts := []FilterOption{{ID: AllRoutes, Label: "All Routes"}}
	for _, id := range order {
		opts = append(opts, FilterOption{ID: id, Label: table[id].Label})
	}
	return opts
}

// CheckpointColor returns the marker colour of a checkpoint type
func CheckpointColor(t CheckpointType) string {
	switch t {
	case CheckpointToll:
		return "#fbbf24"
	case CheckpointRest:
		return "#3b82f6"
	default:
		return "#f97316"
	}
}
