package ws

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"fleet-ops-dashboard/internal/mapview"
	"fleet-ops-dashboard/internal/models"
	"fleet-ops-dashboard/internal/store"

	"github.com/gorilla/websocket"
)

type received struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(url, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readUntil reads messages until one of the wanted type arrives
func readUntil(t *testing.T, conn *websocket.Conn, msgType string) received {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("waiting for %s: %v", msgType, err)
		}
		var msg received
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("bad frame %s: %v", data, err)
		}
		if msg.Type == msgType {
			return msg
		}
	}
}

func setup(t *testing.T) (*store.Store, *Hub, string) {
	t.Helper()
	st := store.New(2*time.Second, 10)
	layer := mapview.NewLayer(mapview.NewRegistry(), mapview.NewSceneFactory().Create, st, st.Select)
	if err := layer.Mount("overview"); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { layer.Dispose() })

	hub := NewHub(layer)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)
	t.Cleanup(Attach(hub, st, layer))

	srv := httptest.NewServer(HandleWebSocket(hub))
	t.Cleanup(srv.Close)
	return st, hub, srv.URL
}

func waitClients(t *testing.T, hub *Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() != n && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if hub.ClientCount() != n {
		t.Fatalf("client count = %d, want %d", hub.ClientCount(), n)
	}
}

func TestGreetingAndBroadcast(t *testing.T) {
	st, hub, url := setup(t)
	conn := dial(t, url)

	readUntil(t, conn, TypeFleetState)
	readUntil(t, conn, TypeMapScene)
	waitClients(t, hub, 1)

	lat, lng := 28.0, 77.0
	st.Ingest(models.NewSnapshot([]models.VehicleRecord{
		{VehicleID: "T1", RouteID: "delhi_mumbai", Status: models.StatusHighEmissionAlert, Latitude: &lat, Longitude: &lng, CO2Kg: 7},
	}))

	msg := readUntil(t, conn, TypeFleetState)
	var state FleetState
	if err := json.Unmarshal(msg.Data, &state); err != nil {
		t.Fatal(err)
	}
	if state.Version != 1 || state.Stats.TotalCO2 != 7 || state.Vehicles.Len() != 1 {
		t.Errorf("unexpected fleet_state: %+v", state)
	}

	var ev models.AnomalyEvent
	if err := json.Unmarshal(readUntil(t, conn, TypeAnomaly).Data, &ev); err != nil {
		t.Fatal(err)
	}
	if ev.VehicleID != "T1" || ev.Type != models.AnomalyHighEmission {
		t.Errorf("unexpected anomaly: %+v", ev)
	}
}

func TestClientCommands(t *testing.T) {
	st, hub, url := setup(t)
	lat, lng := 13.0, 80.0
	st.Ingest(models.NewSnapshot([]models.VehicleRecord{
		{VehicleID: "T1", RouteID: "chennai_bangalore", Latitude: &lat, Longitude: &lng},
	}))

	conn := dial(t, url)
	waitClients(t, hub, 1)

	conn.WriteJSON(map[string]any{"type": "ping"})
	readUntil(t, conn, "pong")

	conn.WriteJSON(map[string]any{"type": "select", "data": map[string]string{"vehicle_id": "T1"}})
	deadline := time.Now().Add(2 * time.Second)
	for st.Selected() != "T1" && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if st.Selected() != "T1" {
		t.Errorf("select command not applied")
	}

	conn.WriteJSON(map[string]any{"type": "filter", "data": map[string]string{"route": "atlantis"}})
	msg := readUntil(t, conn, "error")
	if !strings.Contains(string(msg.Data), "unknown route filter") {
		t.Errorf("unexpected error payload: %s", msg.Data)
	}
}
