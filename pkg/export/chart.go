package export

import (
	"fmt"
	"io"
	"math"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/kilianp07/vrf/core/evaluation"
	"github.com/kilianp07/vrf/core/training"
)

// LossChart renders the train and dev losses of h as an interactive HTML
// line chart. Epochs are numbered from the oldest retained one.
func LossChart(w io.Writer, title string, h *training.History) error {
	if h == nil || h.Len() == 0 {
		return fmt.Errorf("export: empty history")
	}
	line := lossLine(h)
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: title, Width: "900px", Height: "500px"}),
		charts.WithTitleOpts(opts.Title{Title: title, Subtitle: fmt.Sprintf("epochs=%d", h.Total)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "epoch", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "RMSE", NameLocation: "middle", NameGap: 40}),
	)
	return line.Render(w)
}

// ReportPage renders the loss chart and the per-bin error bars of r on one
// HTML page. Either part may be nil.
func ReportPage(w io.Writer, title string, h *training.History, r *evaluation.Report) error {
	page := components.NewPage()
	page.PageTitle = title
	if h != nil && h.Len() > 0 {
		line := lossLine(h)
		line.SetGlobalOptions(charts.WithTitleOpts(opts.Title{Title: "Loss"}))
		page.AddCharts(line)
	}
	if r != nil {
		page.AddCharts(binBar(r))
	}
	return page.Render(w)
}

func lossLine(h *training.History) *charts.Line {
	first := h.Total - h.Len()
	epochs := make([]string, h.Len())
	for i := range epochs {
		epochs[i] = strconv.Itoa(first + i)
	}
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
	)
	line.SetXAxis(epochs).
		AddSeries("train", lineData(h.Train)).
		AddSeries("dev", lineData(h.Dev))
	return line
}

func binBar(r *evaluation.Report) *charts.Bar {
	labels := make([]string, len(r.Bins))
	data := make([]opts.BarData, len(r.Bins))
	for i, b := range r.Bins {
		labels[i] = binLabel(b)
		if b.Defined() {
			data[i] = opts.BarData{Value: *b.MeanError}
		} else {
			data[i] = opts.BarData{Value: "-"}
		}
	}
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: "Displacement error by horizon", Subtitle: r.Summary()}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithYAxisOpts(opts.YAxis{Name: "m"}),
	)
	bar.SetXAxis(labels).AddSeries("mean error", data,
		charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}),
	)
	return bar
}

// lineData maps NaN to a gap.
func lineData(vs []float64) []opts.LineData {
	out := make([]opts.LineData, len(vs))
	for i, v := range vs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			out[i] = opts.LineData{Value: "-"}
			continue
		}
		out[i] = opts.LineData{Value: v}
	}
	return out
}

func binLabel(b evaluation.Bin) string {
	return fmt.Sprintf("%g-%g s", b.Lo, b.Hi)
}
