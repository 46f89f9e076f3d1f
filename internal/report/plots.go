package report

import (
	"fmt"
	"image/color"
	"io"
	"math"
	"strconv"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/spike.metrics/internal/quality"
)

var (
	scoreColour     = color.RGBA{R: 49, G: 104, B: 142, A: 255}
	thresholdColour = color.RGBA{R: 200, G: 30, B: 30, A: 255}
	templateColour  = color.RGBA{R: 220, G: 120, B: 0, A: 255}
)

// renderScoresPNG draws one bar per scored unit, with a dashed threshold
// line when o.Sign is set. Failed units are left out.
func renderScoresPNG(w io.Writer, res *quality.Result, o Options) error {
	var vals plotter.Values
	var names []string
	for i, v := range res.Scores {
		if math.IsNaN(v) {
			continue
		}
		vals = append(vals, v)
		names = append(names, strconv.Itoa(int(res.UnitIDs[i])))
	}
	if len(vals) == 0 {
		return ErrNoScores
	}

	p := plot.New()
	p.Title.Text = o.Title
	if p.Title.Text == "" {
		p.Title.Text = "Noise overlap"
	}
	p.X.Label.Text = "Unit"
	p.Y.Label.Text = quality.NoiseOverlapProperty
	p.Y.Min = 0
	p.Y.Max = 1

	bars, err := plotter.NewBarChart(vals, vg.Points(12))
	if err != nil {
		return fmt.Errorf("bar chart: %w", err)
	}
	bars.Color = scoreColour
	bars.LineStyle.Width = vg.Length(0)
	p.Add(bars)
	p.NominalX(names...)

	if o.Sign != "" {
		t := o.Threshold
		line := plotter.NewFunction(func(float64) float64 { return t })
		line.Color = thresholdColour
		line.Width = vg.Points(1)
		line.Dashes = []vg.Length{vg.Points(4), vg.Points(3)}
		p.Add(line)
		p.Legend.Add(fmt.Sprintf("%s %g", o.Sign, t), line)
		p.Legend.Top = true
	}

	width := vg.Length(len(vals))*vg.Points(18) + 2*vg.Inch
	if width < 6*vg.Inch {
		width = 6 * vg.Inch
	}
	wt, err := p.WriterTo(width, 4*vg.Inch, "png")
	if err != nil {
		return err
	}
	_, err = wt.WriteTo(w)
	return err
}

// renderTemplatePNG overlays the unit's median waveform and its noise
// template on the peak channel.
func renderTemplatePNG(w io.Writer, d *quality.UnitDiagnostics) error {
	if d.Samples == 0 || len(d.Median) < (d.PeakChannel+1)*d.Samples {
		return fmt.Errorf("unit %d: empty diagnostics", d.UnitID)
	}
	row := d.PeakChannel * d.Samples
	median := make(plotter.XYs, d.Samples)
	noise := make(plotter.XYs, d.Samples)
	for s := 0; s < d.Samples; s++ {
		median[s].X = float64(s)
		median[s].Y = d.Median[row+s]
		noise[s].X = float64(s)
		noise[s].Y = d.NoiseTemplate[row+s]
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Unit %d (channel %d, %d clips)", d.UnitID, d.PeakChannel, d.NumClips)
	p.X.Label.Text = "Sample"
	p.Y.Label.Text = "Amplitude"

	ml, err := plotter.NewLine(median)
	if err != nil {
		return err
	}
	ml.Color = scoreColour
	ml.Width = vg.Points(1.5)
	nl, err := plotter.NewLine(noise)
	if err != nil {
		return err
	}
	nl.Color = templateColour
	nl.Width = vg.Points(1)
	p.Add(plotter.NewGrid(), ml, nl)
	p.Legend.Add("median", ml)
	p.Legend.Add("noise template", nl)
	p.Legend.Top = true

	wt, err := p.WriterTo(8*vg.Inch, 4*vg.Inch, "png")
	if err != nil {
		return err
	}
	_, err = wt.WriteTo(w)
	return err
}
