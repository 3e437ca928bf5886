package chart

import (
	"errors"
	"io"
	"strings"

	gochart "github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"
)

// ErrTooFewSamples is returned when there is nothing to draw a line through
var ErrTooFewSamples = errors.New("need at least two samples to render")

var vehicleColors = map[string]string{
	"TRK-DL-001": "#00ff87",
	"TRK-DL-002": "#00ccff",
	"TRK-DL-003": "#ff9500",
	"TRK-DL-004": "#ff4444",
	"TRK-CH-001": "#c084fc",
	"TRK-CH-002": "#f472b6",
	"TRK-CH-003": "#34d399",
	"TRK-KL-001": "#fbbf24",
	"TRK-KL-002": "#a78bfa",
	"TRK-KL-003": "#fb923c",
}

const fallbackColor = "#8b949e"

// VehicleColor returns the line colour of a vehicle
func VehicleColor(vehicleID string) string {
	if c, ok := vehicleColors[vehicleID]; ok {
		return c
	}
	return fallbackColor
}

func hexColor(hex string) drawing.Color {
	return drawing.ColorFromHex(strings.TrimPrefix(hex, "#"))
}

// RenderPNG draws the window as a line chart, one series per vehicle. Vehicles
// are taken from the oldest sample, as the dashboard legend does.
func RenderPNG(w io.Writer, samples []Sample, width, height int) error {
	if len(samples) < 2 {
		return ErrTooFewSamples
	}

	var series []gochart.Series
	for _, id := range samples[0].IDs {
		var xs, ys []float64
		for i, s := range samples {
			v, ok := s.Values[id]
			if !ok {
				continue
			}
			xs = append(xs, float64(i))
			ys = append(ys, v)
		}
		if len(xs) < 2 {
			continue
		}
		series = append(series, gochart.ContinuousSeries{
			Name:    id,
			XValues: xs,
			YValues: ys,
			Style: gochart.Style{
				StrokeColor: hexColor(VehicleColor(id)),
				StrokeWidth: 2,
			},
		})
	}
	if len(series) == 0 {
		return ErrTooFewSamples
	}

	ticks := make([]gochart.Tick, 0, len(samples))
	step := len(samples)/5 + 1
	for i := 0; i < len(samples); i += step {
		ticks = append(ticks, gochart.Tick{Value: float64(i), Label: samples[i].Time})
	}

	graph := gochart.Chart{
		Title:      "Rolling CO₂ per Vehicle (kg)",
		Width:      width,
		Height:     height,
		Background: gochart.Style{Padding: gochart.Box{Top: 20, Left: 16, Right: 12, Bottom: 12}},
		XAxis:      gochart.XAxis{Ticks: ticks},
		YAxis:      gochart.YAxis{Name: "kg"},
		Series:     series,
	}
	graph.Elements = []gochart.Renderable{gochart.Legend(&graph)}

	return graph.Render(gochart.PNG, w)
}
