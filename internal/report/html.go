package report

import (
	"fmt"
	"io"
	"math"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/spike.metrics/internal/quality"
)

const echartsAssetsPrefix = "https://go-echarts.github.io/go-echarts-assets/assets/"

const (
	keptColour     = "#31688e"
	excludedColour = "#c81e1e"
)

// renderScoresHTML writes a bar chart of unit scores. Units the threshold
// would exclude are coloured red and the threshold is drawn as a mark line.
// Failed units are shown with no bar.
func renderScoresHTML(w io.Writer, res *quality.Result, o Options) error {
	x := make([]string, len(res.UnitIDs))
	y := make([]opts.BarData, len(res.UnitIDs))
	for i, id := range res.UnitIDs {
		x[i] = strconv.Itoa(int(id))
		v := res.Scores[i]
		if math.IsNaN(v) {
			y[i] = opts.BarData{Name: x[i] + " (failed)", Value: "-"}
			continue
		}
		c := keptColour
		if o.Sign != "" && o.Sign.Matches(v, o.Threshold) {
			c = excludedColour
		}
		y[i] = opts.BarData{Name: x[i], Value: v, ItemStyle: &opts.ItemStyle{Color: c}}
	}

	title := o.Title
	if title == "" {
		title = "Noise overlap"
	}
	sum := Summarize(res, o.Threshold, o.Sign)
	subtitle := fmt.Sprintf("units=%d scored=%d failed=%d", sum.NumUnits, sum.NumScored, sum.NumFailed)
	if o.Sign != "" {
		subtitle += fmt.Sprintf(" kept=%d (%s %g excluded)", sum.NumKept, o.Sign, o.Threshold)
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: title, Width: "100%", Height: "600px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{Title: title, Subtitle: subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Unit", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: quality.NoiseOverlapProperty, Min: 0, Max: 1}),
	)

	series := []charts.SeriesOpts{}
	if o.Sign != "" {
		series = append(series,
			charts.WithMarkLineNameYAxisItemOpts(opts.MarkLineNameYAxisItem{
				Name:  fmt.Sprintf("%s %g", o.Sign, o.Threshold),
				YAxis: o.Threshold,
			}),
			charts.WithMarkLineStyleOpts(opts.MarkLineStyle{
				Symbol:    []string{"none", "none"},
				LineStyle: &opts.LineStyle{Color: excludedColour, Type: "dashed"},
			}),
		)
	}
	bar.SetXAxis(x).AddSeries(quality.NoiseOverlapProperty, y, series...)

	page := components.NewPage()
	page.SetPageTitle(title).SetAssetsHost(echartsAssetsPrefix).AddCharts(bar)
	return page.Render(w)
}
