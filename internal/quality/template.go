package quality

import (
	"fmt"
	"math"
	"slices"

	"gonum.org/v1/gonum/floats"
)

// medianWaveform writes the coordinate-wise median of n rows of length d into
// out. For even n the median is the mean of the two middle values. col is
// scratch of length n.
func medianWaveform(out, rows []float64, n, d int, col []float64) {
	for c := 0; c < d; c++ {
		for j := 0; j < n; j++ {
			col[j] = rows[j*d+c]
		}
		slices.Sort(col[:n])
		if n%2 == 1 {
			out[c] = col[n/2]
		} else {
			out[c] = (col[n/2-1] + col[n/2]) / 2
		}
	}
}

// peakIndex returns the first index of the largest absolute value.
func peakIndex(x []float64) int {
	best, bestAbs := 0, math.Abs(x[0])
	for i, v := range x[1:] {
		if a := math.Abs(v); a > bestAbs {
			best, bestAbs = i+1, a
		}
	}
	return best
}

// buildNoiseTemplate writes the noise template for one unit into out and
// returns the peak coordinate of the median waveform.
//
// Each noise row is weighted by its value at the median's peak coordinate
// times the median's value there; the weighted sum is rescaled so its
// absolute sum equals that of the median.
func buildNoiseTemplate(out, median, noise []float64, n, d int) (int, error) {
	peak := peakIndex(median)
	maxVal := median[peak]

	clear(out)
	for j := 0; j < n; j++ {
		row := noise[j*d : (j+1)*d]
		floats.AddScaled(out, row[peak]*maxVal, row)
	}

	rawL1 := floats.Norm(out, 1)
	if rawL1 == 0 || math.IsNaN(rawL1) || math.IsInf(rawL1, 0) {
		return peak, fmt.Errorf("%w: weighted noise sum has absolute sum %g", ErrDegenerateTemplate, rawL1)
	}
	medianL1 := floats.Norm(median, 1)
	for i := range out {
		out[i] = out[i] / rawL1 * medianL1
	}
	return peak, nil
}

// centreComponent writes template minus its mean into dst and returns the
// squared norm of the result.
func centreComponent(dst, template []float64) (float64, error) {
	copy(dst, template)
	floats.AddConst(-floats.Sum(dst)/float64(len(dst)), dst)
	tt := floats.Dot(dst, dst)
	if tt == 0 || math.IsNaN(tt) || math.IsInf(tt, 0) {
		return 0, fmt.Errorf("%w: centred template energy is %g", ErrDegenerateTemplate, tt)
	}
	return tt, nil
}

// subtractComponent mean-centres v in place and removes its projection onto
// the centred component t, whose squared norm is tt.
func subtractComponent(v, t []float64, tt float64) {
	floats.AddConst(-floats.Sum(v)/float64(len(v)), v)
	floats.AddScaled(v, -floats.Dot(v, t)/tt, t)
}
