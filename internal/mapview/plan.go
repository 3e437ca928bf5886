// Package mapview decides what the fleet map shows and drives a map surface
// through a narrow imperative contract.
package mapview

import (
	"fmt"
	"strings"

	"fleet-ops-dashboard/internal/models"
	"fleet-ops-dashboard/internal/routes"
)

const (
	ColorAlert   = "#ef4444"
	ColorWarning = "#f59e0b"
	ColorNormal  = "#00ff87"

	originColor      = "#10B981"
	destinationColor = "#ef4444"

	markerSize         = 14
	selectedMarkerSize = 18

	// FitPadding is the pixel padding applied when fitting the viewport
	FitPadding = 40

	ghostDash = "8 6"
)

// MarkerKind identifies what a marker stands for
type MarkerKind string

const (
	KindOrigin      MarkerKind = "origin"
	KindDestination MarkerKind = "destination"
	KindCheckpoint  MarkerKind = "checkpoint"
	KindVehicle     MarkerKind = "vehicle"
)

// Polyline is a route or ghost path overlay
type Polyline struct {
	ID      string          `json:"id"`
	Points  []routes.LatLng `json:"points"`
	Color   string          `json:"color"`
	Weight  int             `json:"weight"`
	Opacity float64         `json:"opacity"`
	Dash    string          `json:"dash,omitempty"`
	Ghost   bool            `json:"ghost,omitempty"`
}

// Marker is a point overlay
type Marker struct {
	ID        string        `json:"id"`
	Kind      MarkerKind    `json:"kind"`
	Position  routes.LatLng `json:"position"`
	Color     string        `json:"color"`
	Size      int           `json:"size"`
	Glow      int           `json:"glow,omitempty"`
	Label     string        `json:"label"`
	Popup     string        `json:"popup,omitempty"`
	VehicleID string        `json:"vehicle_id,omitempty"`
	Selected  bool          `json:"selected,omitempty"`
}

// Bounds is a lat/lng rectangle
type Bounds struct {
	SouthWest routes.LatLng `json:"south_west"`
	NorthEast routes.LatLng `json:"north_east"`
}

// Extend grows b to include p
func (b Bounds) Extend(p routes.LatLng) Bounds {
	if p.Lat < b.SouthWest.Lat {
		b.SouthWest.Lat = p.Lat
	}
	if p.Lng < b.SouthWest.Lng {
		b.SouthWest.Lng = p.Lng
	}
	if p.Lat > b.NorthEast.Lat {
		b.NorthEast.Lat = p.Lat
	}
	if p.Lng > b.NorthEast.Lng {
		b.NorthEast.Lng = p.Lng
	}
	return b
}

// Step is one draw call; exactly one of Route and Marker is set
type Step struct {
	Route  *Polyline `json:"route,omitempty"`
	Marker *Marker   `json:"marker,omitempty"`
}

// Plan is the full content of one redraw in draw order
type Plan struct {
	Steps []Step `json:"steps"`
	// Fit is nil when fewer than two entities were placed
	Fit *Bounds `json:"fit,omitempty"`
	// Skipped lists vehicles that could not be placed
	Skipped []string `json:"skipped,omitempty"`
}

// Routes returns the polylines of the plan
func (p *Plan) Routes() []Polyline {
	var out []Polyline
	for _, s := range p.Steps {
		if s.Route != nil {
			out = append(out, *s.Route)
		}
	}
	return out
}

// Markers returns the markers of the given kind
func (p *Plan) Markers(kind MarkerKind) []Marker {
	var out []Marker
	for _, s := range p.Steps {
		if s.Marker != nil && s.Marker.Kind == kind {
			out = append(out, *s.Marker)
		}
	}
	return out
}

// StatusColor maps a vehicle status to its marker colour
func StatusColor(status models.VehicleStatus) string {
	switch status {
	case models.StatusHighEmissionAlert:
		return ColorAlert
	case models.StatusWarning:
		return ColorWarning
	default:
		return ColorNormal
	}
}

// VisibleVehicles returns the records drawn under a route filter
func VisibleVehicles(snapshot *models.FleetSnapshot, filter string) []models.VehicleRecord {
	records := snapshot.Records()
	if filter == "" || filter == routes.AllRoutes {
		return records
	}
	out := records[:0]
	for _, r := range records {
		if r.RouteID == filter {
			out = append(out, r)
		}
	}
	return out
}

// Build computes what the map shows for a snapshot, route filter and selection.
// It has no side effects.
func Build(snapshot *models.FleetSnapshot, filter, selected string) Plan {
	var (
		plan     Plan
		bounds   Bounds
		entities int
	)
	place := func(p routes.LatLng) {
		if entities == 0 {
			bounds = Bounds{SouthWest: p, NorthEast: p}
		} else {
			bounds = bounds.Extend(p)
		}
		entities++
	}

	visible := routes.Visible(filter)
	vehicles := VisibleVehicles(snapshot, filter)

	for _, r := range visible {
		plan.Steps = append(plan.Steps, Step{Route: &Polyline{
			ID:      "route:" + r.ID,
			Points:  r.Waypoints,
			Color:   r.Color,
			Weight:  4,
			Opacity: 0.7,
		}})
	}

	for _, r := range visible {
		plan.Steps = append(plan.Steps,
			Step{Marker: &Marker{ID: "origin:" + r.ID, Kind: KindOrigin, Position: r.Origin.LatLng, Color: originColor, Label: r.Origin.Name}},
			Step{Marker: &Marker{ID: "destination:" + r.ID, Kind: KindDestination, Position: r.Destination.LatLng, Color: destinationColor, Label: r.Destination.Name}},
		)
		place(r.Origin.LatLng)
		place(r.Destination.LatLng)
	}

	for _, v := range vehicles {
		if v.ETAStatus != models.ETADelayed {
			continue
		}
		r, ok := routes.Lookup(v.RouteID)
		if !ok {
			continue
		}
		plan.Steps = append(plan.Steps, Step{Route: &Polyline{
			ID:      "ghost:" + v.VehicleID,
			Points:  r.Waypoints,
			Color:   ColorAlert,
			Weight:  2,
			Opacity: 0.3,
			Dash:    ghostDash,
			Ghost:   true,
		}})
	}

	for i, cp := range routes.Checkpoints(filter) {
		plan.Steps = append(plan.Steps, Step{Marker: &Marker{
			ID:       fmt.Sprintf("checkpoint:%d", i),
			Kind:     KindCheckpoint,
			Position: cp.LatLng,
			Color:    routes.CheckpointColor(cp.Type),
			Size:     20,
			Label:    cp.Label,
			Popup:    fmt.Sprintf("%s\nType: %s", cp.Label, cp.Type),
		}})
	}

	for _, v := range vehicles {
		lat, lng, ok := v.Position()
		if !ok {
			plan.Skipped = append(plan.Skipped, v.VehicleID)
			continue
		}
		isSelected := v.VehicleID == selected
		size, glow := markerSize, 8
		if isSelected {
			size, glow = selectedMarkerSize, 12
		}
		pos := routes.LatLng{Lat: lat, Lng: lng}
		plan.Steps = append(plan.Steps, Step{Marker: &Marker{
			ID:        "vehicle:" + v.VehicleID,
			Kind:      KindVehicle,
			Position:  pos,
			Color:     StatusColor(v.Status),
			Size:      size,
			Glow:      glow,
			Label:     v.VehicleID,
			Popup:     Popup(v),
			VehicleID: v.VehicleID,
			Selected:  isSelected,
		}})
		place(pos)
	}

	if entities > 1 {
		plan.Fit = &bounds
	}
	return plan
}

// Popup renders the text shown when a vehicle marker is opened
func Popup(v models.VehicleRecord) string {
	var b strings.Builder
	route := "N/A"
	if v.RouteID != "" {
		route = strings.ReplaceAll(v.RouteID, "_", " → ")
	}
	fmt.Fprintf(&b, "%s\n", v.VehicleID)
	fmt.Fprintf(&b, "Route: %s\n", route)
	fmt.Fprintf(&b, "Speed: %.1f km/h\n", v.SpeedKmph)
	fmt.Fprintf(&b, "CO₂: %.2f kg\n", v.CO2Kg)
	if v.CargoType != "" {
		fmt.Fprintf(&b, "Cargo: %s\n", v.CargoType)
	}
	fmt.Fprintf(&b, "ETA: %.1fh (%s)", v.ETAHours, v.ETAStatus)
	if v.Status == models.StatusHighEmissionAlert {
		b.WriteString("\n⚠ HIGH EMISSION ALERT")
	}
	return b.String()
}
