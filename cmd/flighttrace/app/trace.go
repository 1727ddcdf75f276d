package app

import (
	"fmt"
	"image/color"
	"math"

	"github.com/flightcore-dev/flightcore/internal/blackbox"
	"github.com/flightcore-dev/flightcore/internal/flight"
)

// Series is one plotted signal, resampled to chart columns. NaN marks a
// column without data.
type Series struct {
	Name   string
	Color  color.RGBA
	Values []float64
}

// Panel groups series that share one vertical scale.
type Panel struct {
	Title  string
	Min    float64
	Max    float64
	Series []Series
}

// TraceData is a flight log session resampled into chart columns.
type TraceData struct {
	Session *blackbox.Session
	Events  []blackbox.Event

	StartUs uint32
	EndUs   uint32
	Columns int

	// Armed marks the columns where the vehicle was armed.
	Armed []bool

	Panels []Panel
}

var seriesColors = []color.RGBA{
	{R: 0xd6, G: 0x28, B: 0x28, A: 0xff}, // red
	{R: 0x1f, G: 0x77, B: 0xb4, A: 0xff}, // blue
	{R: 0x2c, G: 0xa0, B: 0x2c, A: 0xff}, // green
	{R: 0xff, G: 0x7f, B: 0x0e, A: 0xff}, // orange
}

// signal extracts one value out of a stored frame.
type signal struct {
	name  string
	value func(*blackbox.Frame) float64
}

var demandSignals = []signal{
	{"roll", func(f *blackbox.Frame) float64 { return f.Roll }},
	{"pitch", func(f *blackbox.Frame) float64 { return f.Pitch }},
	{"yaw", func(f *blackbox.Frame) float64 { return f.Yaw }},
}

var attitudeSignals = []signal{
	{"phi", func(f *blackbox.Frame) float64 { return flight.Rad2Deg(f.Phi) }},
	{"theta", func(f *blackbox.Frame) float64 { return flight.Rad2Deg(f.Theta) }},
	{"psi", func(f *blackbox.Frame) float64 { return flight.Rad2Deg(f.Psi) }},
}

var motorSignals = []signal{
	{"m1", func(f *blackbox.Frame) float64 { return f.Motors[0] }},
	{"m2", func(f *blackbox.Frame) float64 { return f.Motors[1] }},
	{"m3", func(f *blackbox.Frame) float64 { return f.Motors[2] }},
	{"m4", func(f *blackbox.Frame) float64 { return f.Motors[3] }},
}

var throttleSignals = []signal{
	{"throttle", func(f *blackbox.Frame) float64 { return f.Throttle }},
}

// BuildTrace resamples the frames into the given number of columns. Frames
// falling into the same column are averaged.
func BuildTrace(session *blackbox.Session, frames []blackbox.Frame, events []blackbox.Event, columns int) (*TraceData, error) {
	if len(frames) == 0 {
		return nil, fmt.Errorf("no frames to plot")
	}
	if columns < 2 {
		return nil, fmt.Errorf("invalid column count %d", columns)
	}

	trace := &TraceData{
		Session: session,
		Events:  events,
		StartUs: frames[0].TimestampUs,
		EndUs:   frames[len(frames)-1].TimestampUs,
		Columns: columns,
		Armed:   make([]bool, columns),
	}

	column := func(usec uint32) int {
		if trace.EndUs == trace.StartUs {
			return 0
		}
		c := int(uint64(usec-trace.StartUs) * uint64(columns-1) / uint64(trace.EndUs-trace.StartUs))
		if c >= columns {
			c = columns - 1
		}
		return c
	}

	for i := range frames {
		if frames[i].Armed {
			trace.Armed[column(frames[i].TimestampUs)] = true
		}
	}

	trace.Panels = []Panel{
		buildPanel("throttle", throttleSignals, frames, columns, column, 0, 1),
		buildPanel("demands", demandSignals, frames, columns, column, math.NaN(), math.NaN()),
		buildPanel("attitude deg", attitudeSignals, frames, columns, column, math.NaN(), math.NaN()),
		buildPanel("motors", motorSignals, frames, columns, column, 0, 1),
	}

	return trace, nil
}

// buildPanel resamples the panel's signals. Pass NaN bounds to scale the
// panel to its data.
func buildPanel(title string, signals []signal, frames []blackbox.Frame,
	columns int, column func(uint32) int, min, max float64) Panel {

	p := Panel{Title: title, Min: min, Max: max}

	autoScale := math.IsNaN(min)
	if autoScale {
		p.Min, p.Max = math.Inf(1), math.Inf(-1)
	}

	for si, sig := range signals {
		sums := make([]float64, columns)
		counts := make([]int, columns)

		for i := range frames {
			c := column(frames[i].TimestampUs)
			sums[c] += sig.value(&frames[i])
			counts[c]++
		}

		values := make([]float64, columns)
		for c := range values {
			if counts[c] == 0 {
				values[c] = math.NaN()
				continue
			}
			values[c] = sums[c] / float64(counts[c])
			if autoScale {
				p.Min = math.Min(p.Min, values[c])
				p.Max = math.Max(p.Max, values[c])
			}
		}

		p.Series = append(p.Series, Series{
			Name:   sig.name,
			Color:  seriesColors[si%len(seriesColors)],
			Values: values,
		})
	}

	if autoScale {
		if math.IsInf(p.Min, 1) {
			p.Min, p.Max = -1, 1
		}
		// Pad a flat signal so it draws mid-panel instead of on an edge.
		if p.Max-p.Min < 1e-9 {
			p.Min--
			p.Max++
		} else {
			pad := (p.Max - p.Min) * 0.05
			p.Min -= pad
			p.Max += pad
		}
	}

	return p
}

// DurationSeconds returns the plotted span of loop time.
func (t *TraceData) DurationSeconds() float64 {
	return float64(t.EndUs-t.StartUs) / 1e6
}
