package simulate

import (
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"fleet-ops-dashboard/internal/models"
	"fleet-ops-dashboard/internal/routes"

	"github.com/shopspring/decimal"
)

const (
	dieselKgCO2PerLitre = 2.68
	baselineSpeedKmph   = 95.0 // unoptimised driving used for savings
	scheduleKmph        = 62.0
	spikeTicks          = 3
)

// Truck is one simulated vehicle
type Truck struct {
	ID         string
	RouteID    string
	Cargo      string
	ColdChain  bool
	LoadKg     float64
	CapacityKg float64
	CruiseKmph float64

	travelled float64 // km on the current trip
	elapsed   float64 // hours on the current trip
	speed     float64
	fuel      float64
	co2       float64
	saved     float64
	spike     int
}

// Fleet moves trucks along the compiled-in corridors
type Fleet struct {
	mu     sync.Mutex
	rng    *rand.Rand
	trucks []*Truck
	paths  map[string]path
	clock  time.Time
}

// DefaultTrucks is the demo fleet
func DefaultTrucks() []Truck {
	return []Truck{
		{ID: "TRK-DL-001", RouteID: "delhi_mumbai", Cargo: "electronics", LoadKg: 18000, CapacityKg: 26500, CruiseKmph: 72},
		{ID: "TRK-DL-002", RouteID: "delhi_mumbai", Cargo: "frozen", ColdChain: true, LoadKg: 21000, CapacityKg: 26500, CruiseKmph: 66},
		{ID: "TRK-DL-003", RouteID: "delhi_mumbai", Cargo: "textiles", LoadKg: 24000, CapacityKg: 26500, CruiseKmph: 84},
		{ID: "TRK-DL-004", RouteID: "delhi_mumbai", Cargo: "steel", LoadKg: 28000, CapacityKg: 26500, CruiseKmph: 55},
		{ID: "TRK-CH-001", RouteID: "chennai_bangalore", Cargo: "pharma", ColdChain: true, LoadKg: 12000, CapacityKg: 20000, CruiseKmph: 70},
		{ID: "TRK-CH-002", RouteID: "chennai_bangalore", Cargo: "auto parts", LoadKg: 17000, CapacityKg: 20000, CruiseKmph: 76},
		{ID: "TRK-CH-003", RouteID: "chennai_bangalore", Cargo: "fmcg", LoadKg: 9000, CapacityKg: 20000, CruiseKmph: 64},
		{ID: "TRK-KL-001", RouteID: "kolkata_patna", Cargo: "rice", LoadKg: 22000, CapacityKg: 25000, CruiseKmph: 58},
		{ID: "TRK-KL-002", RouteID: "kolkata_patna", Cargo: "frozen", ColdChain: true, LoadKg: 15000, CapacityKg: 25000, CruiseKmph: 68},
		{ID: "TRK-KL-003", RouteID: "kolkata_patna", Cargo: "cement", LoadKg: 26000, CapacityKg: 25000, CruiseKmph: 52},
	}
}

// NewFleet creates a fleet with trucks spread along their routes. The same
// seed always produces the same traffic.
func NewFleet(trucks []Truck, seed uint64, start time.Time) *Fleet {
	f := &Fleet{
		rng:   rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		paths: make(map[string]path),
		clock: start,
	}
	for _, id := range routes.IDs() {
		r, _ := routes.Lookup(id)
		f.paths[id] = newPath(r.Waypoints)
	}
	for i := range trucks {
		t := trucks[i]
		if p, ok := f.paths[t.RouteID]; ok {
			t.travelled = p.length() * f.rng.Float64() * 0.6
			t.elapsed = t.travelled / scheduleKmph
		}
		t.speed = t.CruiseKmph
		f.trucks = append(f.trucks, &t)
	}
	return f
}

// IDs returns the vehicle ids in fleet order
func (f *Fleet) IDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]string, len(f.trucks))
	for i, t := range f.trucks {
		ids[i] = t.ID
	}
	return ids
}

// Spike forces an emission spike on a truck for the next few steps
func (f *Fleet) Spike(vehicleID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.trucks {
		if t.ID == vehicleID {
			t.spike = spikeTicks
			return true
		}
	}
	return false
}

// Step advances every truck by dt and returns the resulting records
func (f *Fleet) Step(dt time.Duration) []models.VehicleRecord {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.clock = f.clock.Add(dt)
	hours := dt.Hours()
	out := make([]models.VehicleRecord, 0, len(f.trucks))

	for _, t := range f.trucks {
		p, ok := f.paths[t.RouteID]
		if !ok {
			continue
		}

		load := t.LoadKg
		switch {
		case t.spike > 0:
			t.speed = 110 + f.rng.Float64()*15
			load = t.CapacityKg * 1.6
		case f.rng.Float64() < 0.05:
			t.speed = 15 + f.rng.Float64()*15 // congestion
		default:
			t.speed = math.Max(0, t.CruiseKmph+(f.rng.Float64()-0.5)*20)
		}

		dist := t.speed * hours
		co2 := CO2Kg(dist, load, t.CapacityKg, t.speed, t.ColdChain)
		baseline := CO2Kg(dist, load, t.CapacityKg, math.Max(t.speed, baselineSpeedKmph), t.ColdChain)
		t.co2 += co2
		t.fuel += co2 / dieselKgCO2PerLitre
		if baseline > co2 {
			t.saved += baseline - co2
		}

		t.travelled += dist
		t.elapsed += hours
		if t.travelled >= p.length() {
			t.travelled, t.elapsed = 0, 0
		}

		status := models.StatusNormal
		deviation := "ON_ROUTE"
		switch {
		case t.spike > 0:
			status = models.StatusHighEmissionAlert
			deviation = "ROUTE_DEVIATION"
			t.spike--
		case SpeedFactor(t.speed) > 1.1 || load > t.CapacityKg:
			status = models.StatusWarning
		}

		remaining := p.length() - t.travelled
		eta := remaining / math.Max(t.speed, 1)
		etaStatus := models.ETAOnTime
		if scheduled := p.length() / scheduleKmph; scheduled > 0 {
			switch ratio := (t.elapsed + remaining/math.Max(t.CruiseKmph, 1)) / scheduled; {
			case ratio > 1.15:
				etaStatus = models.ETADelayed
			case ratio > 1.0:
				etaStatus = models.ETAAtRisk
			}
		}

		pos := p.at(t.travelled)
		lat, lng := pos.Lat, pos.Lng
		out = append(out, models.VehicleRecord{
			VehicleID:       t.ID,
			Timestamp:       f.clock.Unix(),
			Latitude:        &lat,
			Longitude:       &lng,
			SpeedKmph:       round(t.speed, 1),
			FuelConsumed:    round(t.fuel, 3),
			CO2Kg:           round(t.co2, 3),
			CO2SavedKg:      round(t.saved, 3),
			RouteID:         t.RouteID,
			Status:          status,
			ETAHours:        round(eta, 2),
			ETAStatus:       etaStatus,
			CargoType:       t.Cargo,
			DeviationStatus: deviation,
		})
	}
	return out
}

func round(v float64, places int32) float64 {
	return decimal.NewFromFloat(v).Round(places).InexactFloat64()
}
