package report

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"path/filepath"
	"strconv"

	"github.com/banshee-data/spike.metrics/internal/curation"
	"github.com/banshee-data/spike.metrics/internal/fsutil"
	"github.com/banshee-data/spike.metrics/internal/quality"
)

// ErrNoScores is returned by the plot writers when every unit failed.
var ErrNoScores = errors.New("report: no scored units")

const (
	scoresCSV   = "scores.csv"
	summaryJSON = "summary.json"
	scoresPNG   = "scores.png"
	scoresHTML  = "scores.html"
	unitsDir    = "units"
)

// Writer renders reports into Dir on FS.
type Writer struct {
	FS  fsutil.FileSystem
	Dir string
}

// NewWriter returns a Writer backed by the OS filesystem.
func NewWriter(dir string) *Writer {
	return &Writer{FS: fsutil.OSFileSystem{}, Dir: dir}
}

// Options controls which threshold is drawn and summarised. An empty Sign
// disables threshold rendering.
type Options struct {
	Title     string
	Threshold float64
	Sign      curation.Sign
}

// WriteAll writes the CSV table, JSON summary, score plot, HTML page and
// one template plot per diagnosed unit. It returns the written paths.
func (w *Writer) WriteAll(res *quality.Result, o Options) ([]string, error) {
	if err := w.FS.MkdirAll(w.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create report dir: %w", err)
	}
	var written []string
	add := func(name string, err error) error {
		if err != nil {
			return fmt.Errorf("write %s: %w", name, err)
		}
		written = append(written, filepath.Join(w.Dir, name))
		return nil
	}

	if err := add(scoresCSV, w.writeFile(scoresCSV, func(f io.Writer) error { return writeScoresCSV(f, res) })); err != nil {
		return written, err
	}
	sum := Summarize(res, o.Threshold, o.Sign)
	if err := add(summaryJSON, w.writeFile(summaryJSON, func(f io.Writer) error { return writeSummary(f, sum) })); err != nil {
		return written, err
	}
	if err := add(scoresHTML, w.writeFile(scoresHTML, func(f io.Writer) error { return renderScoresHTML(f, res, o) })); err != nil {
		return written, err
	}

	// Plots need at least one finite score.
	if sum.NumScored == 0 {
		return written, nil
	}
	if err := add(scoresPNG, w.writeFile(scoresPNG, func(f io.Writer) error { return renderScoresPNG(f, res, o) })); err != nil {
		return written, err
	}

	if len(res.Diagnostics) > 0 {
		if err := w.FS.MkdirAll(filepath.Join(w.Dir, unitsDir), 0o755); err != nil {
			return written, fmt.Errorf("create units dir: %w", err)
		}
	}
	for _, d := range res.Diagnostics {
		if d == nil {
			continue
		}
		name := filepath.Join(unitsDir, fmt.Sprintf("unit_%d_template.png", d.UnitID))
		if err := add(name, w.writeFile(name, func(f io.Writer) error { return renderTemplatePNG(f, d) })); err != nil {
			return written, err
		}
	}
	return written, nil
}

func (w *Writer) writeFile(name string, render func(io.Writer) error) error {
	f, err := w.FS.Create(filepath.Join(w.Dir, name))
	if err != nil {
		return err
	}
	if err := render(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func writeScoresCSV(w io.Writer, res *quality.Result) error {
	errs := make(map[int]string, len(res.Failures))
	for _, f := range res.Failures {
		errs[int(f.UnitID)] = f.Err.Error()
	}

	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"unit_id", quality.NoiseOverlapProperty, "error"}); err != nil {
		return err
	}
	for i, id := range res.UnitIDs {
		v := ""
		if !math.IsNaN(res.Scores[i]) {
			v = strconv.FormatFloat(res.Scores[i], 'f', 6, 64)
		}
		if err := cw.Write([]string{strconv.Itoa(int(id)), v, errs[int(id)]}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// NaN fields are written as null.
func writeSummary(w io.Writer, s Summary) error {
	type alias Summary
	out := struct {
		alias
		Mean   *float64 `json:"mean"`
		StdDev *float64 `json:"std_dev"`
		Median *float64 `json:"median"`
		Min    *float64 `json:"min"`
		Max    *float64 `json:"max"`
	}{
		alias:  alias(s),
		Mean:   finite(s.Mean),
		StdDev: finite(s.StdDev),
		Median: finite(s.Median),
		Min:    finite(s.Min),
		Max:    finite(s.Max),
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func finite(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}
