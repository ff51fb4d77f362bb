// Package chart renders scatter charts of averaged sensor readings.
package chart

import (
	"context"
	"errors"
	"fmt"
	"image/color"
	"math"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/i474232898/airquality-aggregation/internal/airquality"
	"github.com/i474232898/airquality-aggregation/internal/logger"
)

// ErrNoPoints is returned when none of the requested series has finite data.
var ErrNoPoints = errors.New("no plottable points")

// GuidelineLines are the 24h guideline concentrations (µg/m³) for PM2.5 and
// PM10 drawn as vertical references on the temperature chart.
var GuidelineLines = []float64{15, 45}

// Options control which columns are plotted and where charts are written.
type Options struct {
	// Particulates are plotted on the x axis, one series each.
	Particulates []string
	// Temperature is the y column of the temperature chart.
	Temperature string
	// TemperaturePath and TimePath are output files; the extension picks the
	// format (png, pdf, svg, ...). An empty path skips that chart.
	TemperaturePath string
	TimePath        string
	// References are vertical lines drawn on the temperature chart.
	References []float64
	Width      vg.Length
	Height     vg.Length
}

// DefaultOptions plots pm2.5_atm and pm10.0_atm against temperature.
func DefaultOptions(temperaturePath, timePath string) Options {
	return Options{
		Particulates:    []string{"pm2.5_atm", "pm10.0_atm"},
		Temperature:     "temperature",
		TemperaturePath: temperaturePath,
		TimePath:        timePath,
		References:      GuidelineLines,
		Width:           5 * vg.Inch,
		Height:          5 * vg.Inch,
	}
}

// Renderer is a report sink that renders the averaged table.
type Renderer struct {
	opts Options
	log  logger.Logger
}

func NewRenderer(opts Options, log logger.Logger) *Renderer {
	if log == nil {
		log = logger.Discard()
	}
	return &Renderer{opts: opts, log: log.WithField("component", "chart_renderer")}
}

func (r *Renderer) Name() string { return "chart" }

// Handle renders both charts from report.Average and records their paths.
func (r *Renderer) Handle(_ context.Context, report *airquality.Report) error {
	var errs []error

	if r.opts.TemperaturePath != "" {
		if err := TemperatureScatter(report.Average, r.opts); err != nil {
			errs = append(errs, fmt.Errorf("temperature chart: %w", err))
		} else {
			report.Artifacts = append(report.Artifacts, r.opts.TemperaturePath)
			r.log.Infof("wrote %s", r.opts.TemperaturePath)
		}
	}
	if r.opts.TimePath != "" {
		if err := TimeScatter(report.Average, r.opts); err != nil {
			errs = append(errs, fmt.Errorf("time chart: %w", err))
		} else {
			report.Artifacts = append(report.Artifacts, r.opts.TimePath)
			r.log.Infof("wrote %s", r.opts.TimePath)
		}
	}
	return errors.Join(errs...)
}

// TemperatureScatter plots each particulate column (x) against temperature (y).
func TemperatureScatter(t airquality.Table, opts Options) error {
	ys, ok := t.Column(opts.Temperature)
	if !ok {
		return fmt.Errorf("missing column %q", opts.Temperature)
	}

	p := plot.New()
	p.Title.Text = "Particulate matter vs temperature"
	p.X.Label.Text = "particulate matter (µg/m³)"
	p.Y.Label.Text = opts.Temperature
	p.Legend.Top = true

	minY, maxY, n, err := addSeries(p, t, opts.Particulates, ys)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNoPoints
	}

	for _, x := range opts.References {
		line, err := plotter.NewLine(plotter.XYs{{X: x, Y: minY}, {X: x, Y: maxY}})
		if err != nil {
			return err
		}
		line.LineStyle.Color = color.Black
		line.LineStyle.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}
		p.Add(line)
	}

	return save(p, opts, opts.TemperaturePath)
}

// TimeScatter plots each particulate column (x) against the bucket time (y).
func TimeScatter(t airquality.Table, opts Options) error {
	ys, _ := t.Column(airquality.TimestampColumn)

	p := plot.New()
	p.Title.Text = "Particulate matter over time"
	p.X.Label.Text = "particulate matter (µg/m³)"
	p.Y.Label.Text = "date"
	p.Y.Tick.Marker = plot.TimeTicks{Format: "2006-01-02"}
	p.Legend.Top = true

	_, _, n, err := addSeries(p, t, opts.Particulates, ys)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNoPoints
	}

	return save(p, opts, opts.TimePath)
}

// addSeries adds one scatter per column, skipping non-finite points.
// It returns the y extent and the number of points plotted.
func addSeries(p *plot.Plot, t airquality.Table, columns []string, ys []float64) (float64, float64, int, error) {
	minY, maxY := math.Inf(1), math.Inf(-1)
	total := 0

	for i, name := range columns {
		xs, ok := t.Column(name)
		if !ok {
			continue
		}
		pts := make(plotter.XYs, 0, len(xs))
		for j, x := range xs {
			y := ys[j]
			if !finite(x) || !finite(y) {
				continue
			}
			pts = append(pts, plotter.XY{X: x, Y: y})
			minY = math.Min(minY, y)
			maxY = math.Max(maxY, y)
		}
		if len(pts) == 0 {
			continue
		}

		s, err := plotter.NewScatter(pts)
		if err != nil {
			return 0, 0, 0, err
		}
		s.GlyphStyle.Color = plotutil.Color(i)
		s.GlyphStyle.Shape = draw.CircleGlyph{}
		s.GlyphStyle.Radius = vg.Points(3)
		p.Add(s)
		p.Legend.Add(name, s)
		total += len(pts)
	}
	return minY, maxY, total, nil
}

func save(p *plot.Plot, opts Options, path string) error {
	w, h := opts.Width, opts.Height
	if w <= 0 {
		w = 5 * vg.Inch
	}
	if h <= 0 {
		h = 5 * vg.Inch
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating chart directory: %w", err)
		}
	}
	return p.Save(w, h, path)
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
