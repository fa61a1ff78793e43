// Package charts renders the comparison page plots with go-echarts.
package charts

import (
	"fmt"
	"io"

	"heartdash/internal/experiments"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/shopspring/decimal"
)

const (
	colorTitle   = "#b30000"
	colorAxis    = "#555555"
	colorTealLow = "#d1eeea"
	colorTealMid = "#68abb8"
	colorTealTop = "#2a5674"

	chartWidth  = "100%"
	chartHeight = "500px"
)

// Labeler turns a raw model name into the label shown on the axis.
type Labeler func(model string) string

// AccuracyBar builds the "Accuracy Across Models" bar chart. Bars follow the
// accuracy ranking and carry the accuracy in percent with one decimal.
func AccuracyBar(ranked []experiments.Ranked, label Labeler) (*charts.Bar, error) {
	if len(ranked) == 0 {
		return nil, experiments.ErrEmpty
	}
	if label == nil {
		label = func(m string) string { return m }
	}
	lo, hi := ranked[len(ranked)-1].Accuracy, ranked[0].Accuracy

	xAxis := make([]string, len(ranked))
	bars := make([]opts.BarData, len(ranked))
	for i, r := range ranked {
		xAxis[i] = label(r.ModelName)
		pct, _ := decimal.NewFromFloat(r.Accuracy).Shift(2).Round(1).Float64()
		bars[i] = opts.BarData{
			Name:  xAxis[i],
			Value: pct,
			ItemStyle: &opts.ItemStyle{
				Color: tealFor(r.Accuracy, lo, hi),
			},
		}
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			PageTitle: "Accuracy Comparison",
			Width:     chartWidth,
			Height:    chartHeight,
		}),
		charts.WithTitleOpts(opts.Title{
			Title:      "🔬 Accuracy Across Models",
			TitleStyle: &opts.TextStyle{Color: colorTitle},
		}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(false)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithXAxisOpts(opts.XAxis{
			Name:      "Model",
			AxisLabel: &opts.AxisLabel{Rotate: 30, Interval: "0", Color: colorAxis},
		}),
		charts.WithYAxisOpts(opts.YAxis{
			Name:      "Accuracy (%)",
			Scale:     opts.Bool(true),
			AxisLabel: &opts.AxisLabel{Color: colorAxis},
		}),
	)
	bar.SetXAxis(xAxis).AddSeries("Accuracy %", bars,
		charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top", Formatter: "{c}"}),
	)
	return bar, nil
}

// RenderAccuracyBar writes the chart as a standalone HTML page.
func RenderAccuracyBar(w io.Writer, ranked []experiments.Ranked, label Labeler) error {
	bar, err := AccuracyBar(ranked, label)
	if err != nil {
		return err
	}
	if err := bar.Render(w); err != nil {
		return fmt.Errorf("render accuracy chart: %w", err)
	}
	return nil
}

// tealFor picks a bucket of the teal scale by the value's position in [lo, hi].
func tealFor(v, lo, hi float64) string {
	if hi <= lo {
		return colorTealMid
	}
	switch pos := (v - lo) / (hi - lo); {
	case pos >= 2.0/3:
		return colorTealTop
	case pos >= 1.0/3:
		return colorTealMid
	default:
		return colorTealLow
	}
}
