package stats

import (
	"fmt"
	"image/color"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/inference-sim/mixnet-sim/sim"
)

var palette = []color.Color{
	color.RGBA{R: 31, G: 119, B: 180, A: 255},
	color.RGBA{R: 255, G: 127, B: 14, A: 255},
	color.RGBA{R: 44, G: 160, B: 44, A: 255},
	color.RGBA{R: 214, G: 39, B: 40, A: 255},
	color.RGBA{R: 148, G: 103, B: 189, A: 255},
}

// PlotSeries renders one line per run of metric for entity, post-processed by
// pp, and saves the figure to path. The format follows the file extension
// (.png, .svg, .pdf). Runs without the series are skipped.
func PlotSeries(results []*ResultSet, metric Metric, entity Entity, pp PostProcessor, path string) error {
	if pp == nil {
		pp = None{}
	}
	p := plot.New()
	p.Title.Text = fmt.Sprintf("%s %s (%s)", metric, entity, pp.Name())
	p.X.Label.Text = "elapsed (s)"
	p.Y.Label.Text = pp.Unit(metric.Unit())
	p.Add(plotter.NewGrid())

	lines := 0
	for i, rs := range results {
		points := rs.Query(metric, entity, pp)
		if len(points) == 0 {
			continue
		}
		xys := make(plotter.XYs, len(points))
		for j, pt := range points {
			xys[j].X = float64(pt.Time) / float64(sim.TicksPerSecond)
			xys[j].Y = pt.Value
		}
		line, err := plotter.NewLine(xys)
		if err != nil {
			return fmt.Errorf("plotting run %s: %w", rs.RunID, err)
		}
		line.Color = palette[i%len(palette)]
		p.Add(line)
		p.Legend.Add(rs.RunID, line)
		lines++
	}
	if lines == 0 {
		return fmt.Errorf("no run has samples for %s %s", metric, entity)
	}
	if err := p.Save(8*vg.Inch, 4*vg.Inch, path); err != nil {
		return fmt.Errorf("saving plot %s: %w", path, err)
	}
	return nil
}
