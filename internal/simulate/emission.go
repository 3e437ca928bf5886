// Package simulate generates synthetic corridor traffic for demos and replay fixtures.
package simulate

import (
	"math"

	"fleet-ops-dashboard/internal/routes"
)

// Heavy diesel road freight emission model (IPCC AR6 WGIII, Table 10.1)
const (
	BaseFactorKgPerKm   = 0.89
	ColdChainFactor     = 1.25
	OptimalSpeedMaxKmph = 80.0
	SpeedPenaltyRate    = 0.01
	maxLoadFraction     = 2.0
)

// LoadMultiplier scales emissions with payload: 1.0 empty, 1.4 fully laden
func LoadMultiplier(loadFraction float64) float64 {
	if loadFraction < 0 {
		loadFraction = 0
	}
	return 1 + 0.4*loadFraction
}

// SpeedFactor adds 1% per km/h above the optimal band
func SpeedFactor(speedKmph float64) float64 {
	if speedKmph <= OptimalSpeedMaxKmph {
		return 1
	}
	return 1 + (speedKmph-OptimalSpeedMaxKmph)*SpeedPenaltyRate
}

// CO2Kg returns the emission of one leg, rounded to grams
func CO2Kg(distanceKm, loadKg, capacityKg, speedKmph float64, coldChain bool) float64 {
	loadFraction := math.Min(loadKg/math.Max(capacityKg, 1), maxLoadFraction)
	co2 := distanceKm * BaseFactorKgPerKm * LoadMultiplier(loadFraction) * SpeedFactor(speedKmph)
	if coldChain {
		co2 *= ColdChainFactor
	}
	return math.Round(co2*1000) / 1000
}

// haversineKm returns the great-circle distance between two points
func haversineKm(a, b routes.LatLng) float64 {
	const earthRadius = 6371.0

	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLng := (b.Lng - a.Lng) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return earthRadius * 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// path is a route with cumulative leg lengths
type path struct {
	points []routes.LatLng
	cum    []float64
}

func newPath(points []routes.LatLng) path {
	p := path{points: points, cum: make([]float64, len(points))}
	for i := 1; i < len(points); i++ {
		p.cum[i] = p.cum[i-1] + haversineKm(points[i-1], points[i])
	}
	return p
}

func (p path) length() float64 {
	if len(p.cum) == 0 {
		return 0
	}
	return p.cum[len(p.cum)-1]
}

// at returns the point km along the path, clamped to its ends
func (p path) at(km float64) routes.LatLng {
	if len(p.points) == 0 {
		return routes.LatLng{}
	}
	if km <= 0 {
		return p.points[0]
	}
	for i := 1; i < len(p.points); i++ {
		if km <= p.cum[i] {
			leg := p.cum[i] - p.cum[i-1]
			if leg == 0 {
				return p.points[i]
			}
			f := (km - p.cum[i-1]) / leg
			a, b := p.points[i-1], p.points[i]
			return routes.LatLng{Lat: a.Lat + (b.Lat-a.Lat)*f, Lng: a.Lng + (b.Lng-a.Lng)*f}
		}
	}
	return p.points[len(p.points)-1]
}
