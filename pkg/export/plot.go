package export

import (
	"fmt"
	"image/color"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/kilianp07/vrf/core/evaluation"
)

// SaveBinPlot draws the mean displacement error per horizon bin and saves
// it to path. The image format follows the extension (png, svg, pdf).
// Empty bins keep their slot on the axis but are labelled "n/a" so they
// never read as a zero error.
func SaveBinPlot(path string, r *evaluation.Report) error {
	if r == nil || len(r.Bins) == 0 {
		return fmt.Errorf("export: report has no bins")
	}
	p := plot.New()
	p.Title.Text = "Displacement error by horizon"
	p.X.Label.Text = "horizon (s)"
	p.Y.Label.Text = "mean error (m)"

	vals, names := binPlotData(r)
	bars, err := plotter.NewBarChart(vals, vg.Points(24))
	if err != nil {
		return fmt.Errorf("export: bar chart: %w", err)
	}
	bars.Color = color.RGBA{R: 49, G: 104, B: 142, A: 255}
	bars.LineStyle.Width = vg.Length(0)
	p.Add(bars, plotter.NewGrid())
	p.NominalX(names...)

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	width := vg.Length(len(r.Bins)) * vg.Centimeter * 2
	if width < 12*vg.Centimeter {
		width = 12 * vg.Centimeter
	}
	return p.Save(width, 10*vg.Centimeter, path)
}

func binPlotData(r *evaluation.Report) (plotter.Values, []string) {
	vals := make(plotter.Values, len(r.Bins))
	names := make([]string, len(r.Bins))
	for i, b := range r.Bins {
		names[i] = binLabel(b)
		if b.Defined() {
			vals[i] = *b.MeanError
		} else {
			names[i] += " (n/a)"
		}
	}
	return vals, names
}
