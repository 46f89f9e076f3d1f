// Package report renders noise-overlap results as CSV, PNG plots and an
// interactive HTML page.
package report

import (
	"math"
	"slices"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/spike.metrics/internal/curation"
	"github.com/banshee-data/spike.metrics/internal/quality"
)

// Summary aggregates the scored units of one run.
type Summary struct {
	NumUnits  int     `json:"num_units"`
	NumScored int     `json:"num_scored"`
	NumFailed int     `json:"num_failed"`
	Mean      float64 `json:"mean"`
	StdDev    float64 `json:"std_dev"`
	Median    float64 `json:"median"`
	Min       float64 `json:"min"`
	Max       float64 `json:"max"`

	// Threshold fields are zero when no threshold was applied.
	Threshold float64       `json:"threshold,omitempty"`
	Sign      curation.Sign `json:"sign,omitempty"`
	NumKept   int           `json:"num_kept"`
}

// Summarize computes statistics over the non-NaN scores in res. If sign is
// non-empty, units whose score matches sign against threshold count as
// excluded and the rest as kept.
func Summarize(res *quality.Result, threshold float64, sign curation.Sign) Summary {
	s := Summary{NumUnits: len(res.Scores), Threshold: threshold, Sign: sign}
	scores := scoredValues(res)
	s.NumScored = len(scores)
	s.NumFailed = s.NumUnits - s.NumScored

	if sign == "" {
		s.Threshold = 0
		s.NumKept = s.NumUnits
	} else {
		for _, v := range res.Scores {
			if !sign.Matches(v, threshold) {
				s.NumKept++
			}
		}
	}

	if len(scores) == 0 {
		s.Mean, s.StdDev, s.Median, s.Min, s.Max = math.NaN(), math.NaN(), math.NaN(), math.NaN(), math.NaN()
		return s
	}
	s.Mean, s.StdDev = stat.MeanStdDev(scores, nil)
	if len(scores) == 1 {
		s.StdDev = 0
	}
	s.Median = median(scores)
	s.Min = floats.Min(scores)
	s.Max = floats.Max(scores)
	return s
}

// median averages the two middle values when len(x) is even.
func median(x []float64) float64 {
	sorted := slices.Clone(x)
	slices.Sort(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}

func scoredValues(res *quality.Result) []float64 {
	out := make([]float64, 0, len(res.Scores))
	for _, v := range res.Scores {
		if !math.IsNaN(v) {
			out = append(out, v)
		}
	}
	return out
}
