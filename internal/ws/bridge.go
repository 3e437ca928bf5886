package ws

import (
	"time"

	"fleet-ops-dashboard/internal/mapview"
	"fleet-ops-dashboard/internal/models"
	"fleet-ops-dashboard/internal/store"
)

// Message types pushed to clients
const (
	TypeFleetState = "fleet_state"
	TypeMapScene   = "map_scene"
	TypeAnomaly    = "anomaly"
)

// FleetState is the fleet_state payload
type FleetState struct {
	Vehicles   *models.FleetSnapshot `json:"vehicles"`
	Stats      models.AggregateStats `json:"stats"`
	Anomalies  []models.AnomalyEvent `json:"anomalies"`
	SelectedID string                `json:"selected_vehicle_id,omitempty"`
	Version    uint64                `json:"version"`
	Reason     store.Reason          `json:"reason,omitempty"`
	UpdatedAt  time.Time             `json:"updated_at"`
}

func fleetState(st store.State) FleetState {
	return FleetState{
		Vehicles:   st.Snapshot,
		Stats:      st.Stats,
		Anomalies:  st.Anomalies,
		SelectedID: st.SelectedID,
		Version:    st.Version,
		Reason:     st.Reason,
		UpdatedAt:  st.UpdatedAt,
	}
}

// Attach forwards store changes and map redraws to the hub's clients. New
// clients are greeted with the current state and the last drawn scene.
func Attach(hub *Hub, st *store.Store, layer *mapview.Layer) func() {
	unsubscribe := st.Subscribe(func(s store.State) {
		hub.Broadcast(TypeFleetState, fleetState(s))
		for _, ev := range s.NewAnomalies {
			hub.Broadcast(TypeAnomaly, ev)
		}
	})

	if layer != nil {
		layer.OnRedraw(func(f mapview.Frame) {
			hub.Broadcast(TypeMapScene, f)
		})
	}

	hub.SetGreeting(func() []Envelope {
		greeting := []Envelope{NewEnvelope(TypeFleetState, fleetState(st.State()))}
		if layer != nil {
			if frame, ok := layer.LastFrame(); ok {
				greeting = append(greeting, NewEnvelope(TypeMapScene, frame))
			}
		}
		return greeting
	})

	return unsubscribe
}
