package app

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"
	"os"

	"github.com/golang/freetype"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"

	"github.com/flightcore-dev/flightcore/internal/blackbox"
)

const (
	dpi      = 120.0
	fontSize = 10.0

	panelHeight = 140
	panelGap    = 12

	topBorder    = 30
	leftBorder   = 70
	bottomBorder = 40
	rightBorder  = 20
)

var (
	panelBorderColor = color.RGBA{R: 0x60, G: 0x60, B: 0x60, A: 0xff}
	zeroLineColor    = color.RGBA{R: 0xc0, G: 0xc0, B: 0xc0, A: 0xff}
	armedFillColor   = color.RGBA{R: 0xe8, G: 0xf5, B: 0xe8, A: 0xff}
	armEventColor    = color.RGBA{R: 0x2c, G: 0xa0, B: 0x2c, A: 0xff}
	failsafeColor    = color.RGBA{R: 0xd6, G: 0x28, B: 0x28, A: 0xff}
)

// RenderConfig holds the chart appearance options.
type RenderConfig struct {
	// FontPath points at a TTF file for labels; empty renders without text.
	FontPath string
}

// TraceRenderer draws a TraceData as a stack of strip-chart panels.
type TraceRenderer struct {
	config   RenderConfig
	context  *freetype.Context
	fontFace font.Face
}

// NewTraceRenderer creates a renderer, loading the label font when one is
// configured.
func NewTraceRenderer(config RenderConfig) (*TraceRenderer, error) {
	r := &TraceRenderer{config: config}

	if config.FontPath != "" {
		fontBytes, err := os.ReadFile(config.FontPath)
		if err != nil {
			return nil, fmt.Errorf("reading font: %w", err)
		}
		parsedFont, err := freetype.ParseFont(fontBytes)
		if err != nil {
			return nil, fmt.Errorf("parsing font: %w", err)
		}

		ctx := freetype.NewContext()
		ctx.SetDPI(dpi)
		ctx.SetFont(parsedFont)
		ctx.SetFontSize(fontSize)
		ctx.SetHinting(font.HintingNone)
		ctx.SetSrc(image.Black)

		r.context = ctx
		r.fontFace = truetype.NewFace(parsedFont, &truetype.Options{
			Size:    fontSize,
			DPI:     dpi,
			Hinting: font.HintingNone,
		})
	}

	return r, nil
}

// Close releases the font face.
func (r *TraceRenderer) Close() error {
	if r.fontFace != nil {
		return r.fontFace.Close()
	}
	return nil
}

// Render draws the trace into a new image.
func (r *TraceRenderer) Render(trace *TraceData) (*image.RGBA, error) {
	width := leftBorder + trace.Columns + rightBorder
	height := topBorder + len(trace.Panels)*(panelHeight+panelGap) - panelGap + bottomBorder
	img := image.NewRGBA(image.Rect(0, 0, width, height))

	draw.Draw(img, img.Bounds(), image.White, image.Point{}, draw.Src)

	if r.context != nil {
		r.context.SetClip(img.Bounds())
		r.context.SetDst(img)
	}

	for i := range trace.Panels {
		area := image.Rect(
			leftBorder,
			topBorder+i*(panelHeight+panelGap),
			leftBorder+trace.Columns,
			topBorder+i*(panelHeight+panelGap)+panelHeight,
		)
		r.renderPanel(img, area, trace, &trace.Panels[i])
	}

	r.renderEvents(img, trace)

	if err := r.drawInfoBar(img, trace); err != nil {
		return nil, fmt.Errorf("drawing info bar: %w", err)
	}

	return img, nil
}

func (r *TraceRenderer) renderPanel(img *image.RGBA, area image.Rectangle, trace *TraceData, p *Panel) {
	for c, armed := range trace.Armed {
		if !armed {
			continue
		}
		x := area.Min.X + c
		for y := area.Min.Y; y < area.Max.Y; y++ {
			img.Set(x, y, armedFillColor)
		}
	}

	if p.Min < 0 && p.Max > 0 {
		y := valueToY(0, p, area)
		for x := area.Min.X; x < area.Max.X; x++ {
			img.Set(x, y, zeroLineColor)
		}
	}

	for _, s := range p.Series {
		r.renderSeries(img, area, p, &s)
	}

	drawRect(img, area, panelBorderColor)

	if r.context != nil {
		pt := freetype.Pt(area.Min.X+5, area.Min.Y+14)
		_, _ = r.context.DrawString(p.Title, pt)

		_, _ = r.context.DrawString(fmt.Sprintf("%.2f", p.Max), freetype.Pt(5, area.Min.Y+12))
		_, _ = r.context.DrawString(fmt.Sprintf("%.2f", p.Min), freetype.Pt(5, area.Max.Y-2))
	}
}

func (r *TraceRenderer) renderSeries(img *image.RGBA, area image.Rectangle, p *Panel, s *Series) {
	havePrev := false
	prevY := 0

	for c, v := range s.Values {
		if math.IsNaN(v) {
			havePrev = false
			continue
		}

		x := area.Min.X + c
		y := valueToY(v, p, area)

		if havePrev {
			drawVerticalRun(img, x, prevY, y, s.Color)
		} else {
			img.Set(x, y, s.Color)
		}

		prevY = y
		havePrev = true
	}
}

func (r *TraceRenderer) renderEvents(img *image.RGBA, trace *TraceData) {
	top := topBorder
	bottom := topBorder + len(trace.Panels)*(panelHeight+panelGap) - panelGap

	for _, ev := range trace.Events {
		if ev.TimestampUs < trace.StartUs || ev.TimestampUs > trace.EndUs {
			continue
		}

		var c color.RGBA
		switch ev.Kind {
		case blackbox.EventFailsafe, blackbox.EventSignalLost:
			c = failsafeColor
		case blackbox.EventArmed:
			c = armEventColor
		default:
			c = panelBorderColor
		}

		x := leftBorder
		if trace.EndUs > trace.StartUs {
			x += int(uint64(ev.TimestampUs-trace.StartUs) * uint64(trace.Columns-1) / uint64(trace.EndUs-trace.StartUs))
		}
		for y := top; y < bottom; y += 2 {
			img.Set(x, y, c)
		}
	}
}

func (r *TraceRenderer) drawInfoBar(img *image.RGBA, trace *TraceData) error {
	if r.context == nil {
		return nil
	}

	info := fmt.Sprintf("%s; session %d; %.1fs of flight; 1px = %.1fms",
		trace.Session.Vehicle,
		trace.Session.ID,
		trace.DurationSeconds(),
		trace.DurationSeconds()*1000/float64(trace.Columns))

	metrics := r.fontFace.Metrics()
	fontHeight := (metrics.Ascent + metrics.Descent).Round()
	textY := img.Bounds().Max.Y - (bottomBorder-fontHeight)/2 - metrics.Descent.Round()

	pt := freetype.Pt(leftBorder, textY)
	if _, err := r.context.DrawString(info, pt); err != nil {
		return fmt.Errorf("drawing info text: %w", err)
	}
	return nil
}

func valueToY(v float64, p *Panel, area image.Rectangle) int {
	ratio := (v - p.Min) / (p.Max - p.Min)
	ratio = math.Max(0, math.Min(1, ratio))

	y := area.Max.Y - 1 - int(ratio*float64(area.Dy()-1))
	return y
}

// drawVerticalRun connects two consecutive columns with a vertical run of
// pixels so steep signals stay visually continuous.
func drawVerticalRun(img *image.RGBA, x, fromY, toY int, c color.Color) {
	if fromY > toY {
		fromY, toY = toY, fromY
	}
	for y := fromY; y <= toY; y++ {
		img.Set(x, y, c)
	}
}

func drawRect(img *image.RGBA, area image.Rectangle, c color.Color) {
	for x := area.Min.X; x < area.Max.X; x++ {
		img.Set(x, area.Min.Y, c)
		img.Set(x, area.Max.Y-1, c)
	}
	for y := area.Min.Y; y < area.Max.Y; y++ {
		img.Set(area.Min.X, y, c)
		img.Set(area.Max.X-1, y, c)
	}
}
