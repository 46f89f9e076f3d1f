package ephys

import (
	"fmt"
	"math"
	"math/rand/v2"
	"slices"

	"gonum.org/v1/gonum/stat/distuv"
)

// SyntheticUnit describes one injected unit. PeakAmplitude is in the same
// units as NoiseStd (µV by convention); a zero amplitude yields a unit whose
// clips are indistinguishable from background noise.
type SyntheticUnit struct {
	ID            UnitID
	NumSpikes     int
	PeakAmplitude float64
	PeakChannel   int
	WidthSamples  float64 // Gaussian sigma of the spike shape
	ChannelDecay  float64 // amplitude multiplier per channel of distance from PeakChannel
}

// SyntheticConfig controls GenerateSynthetic.
type SyntheticConfig struct {
	NumChannels       int
	NumFrames         int64
	SamplingFrequency float64
	NoiseStd          float64
	RefractoryFrames  int64
	Seed              uint64
	Units             []SyntheticUnit
}

// DefaultSyntheticConfig returns a 4-channel, 50 s recording at 30 kHz with a
// 10 µV Gaussian noise floor and no units.
func DefaultSyntheticConfig() SyntheticConfig {
	return SyntheticConfig{
		NumChannels:       4,
		NumFrames:         1_500_000,
		SamplingFrequency: 30000,
		NoiseStd:          10,
		RefractoryFrames:  60,
	}
}

// GenerateSynthetic builds a Gaussian noise recording with the configured units
// injected at random, refractory-separated frames. The same config always
// produces the same recording and sorting.
func GenerateSynthetic(cfg SyntheticConfig) (*MemoryRecording, *MemorySorting, error) {
	if cfg.NumChannels <= 0 || cfg.NumFrames <= 0 {
		return nil, nil, fmt.Errorf("%w: %d channels x %d frames", ErrBadShape, cfg.NumChannels, cfg.NumFrames)
	}
	rng := rand.New(rand.NewPCG(cfg.Seed, 0x5eed))
	noise := distuv.Normal{Mu: 0, Sigma: cfg.NoiseStd, Src: rand.NewPCG(cfg.Seed, 0x4015e)}

	traces := make([][]float32, cfg.NumChannels)
	for ch := range traces {
		tr := make([]float32, cfg.NumFrames)
		if cfg.NoiseStd > 0 {
			for i := range tr {
				tr[i] = float32(noise.Rand())
			}
		}
		traces[ch] = tr
	}

	sorting := NewMemorySorting()
	for _, u := range cfg.Units {
		width := u.WidthSamples
		if width <= 0 {
			width = 3
		}
		halfSpan := int64(math.Ceil(4 * width))
		frames, err := spikeFrames(rng, u.NumSpikes, halfSpan, cfg.NumFrames-halfSpan, cfg.RefractoryFrames)
		if err != nil {
			return nil, nil, fmt.Errorf("unit %d: %w", u.ID, err)
		}
		sorting.AddUnit(u.ID, frames)
		if u.PeakAmplitude == 0 {
			continue
		}
		shape := make([]float64, 2*halfSpan+1)
		for i := range shape {
			t := float64(int64(i)-halfSpan) / width
			shape[i] = u.PeakAmplitude * math.Exp(-0.5*t*t)
		}
		for ch := range traces {
			gain := math.Pow(u.ChannelDecay, math.Abs(float64(ch-u.PeakChannel)))
			if gain == 0 {
				continue
			}
			tr := traces[ch]
			for _, f := range frames {
				for i, v := range shape {
					tr[f-halfSpan+int64(i)] += float32(gain * v)
				}
			}
		}
	}

	rec, err := NewMemoryRecording(traces, cfg.SamplingFrequency)
	if err != nil {
		return nil, nil, err
	}
	return rec, sorting, nil
}

// spikeFrames draws n sorted frames in [lo, hi) with at least refractory
// frames between neighbours.
func spikeFrames(rng *rand.Rand, n int, lo, hi, refractory int64) ([]int64, error) {
	if n <= 0 {
		return nil, nil
	}
	span := hi - lo
	if span <= 0 || int64(n)*(refractory+1) > span {
		return nil, fmt.Errorf("%w: cannot place %d spikes in %d frames", ErrBadShape, n, span)
	}
	taken := make(map[int64]struct{}, n)
	out := make([]int64, 0, n)
	for attempts := 0; len(out) < n; attempts++ {
		if attempts > 100*n {
			return nil, fmt.Errorf("%w: gave up placing %d spikes", ErrBadShape, n)
		}
		f := lo + rng.Int64N(span)
		bin := f / (refractory + 1)
		if _, ok := taken[bin]; ok {
			continue
		}
		if _, ok := taken[bin-1]; ok && refractory > 0 {
			continue
		}
		if _, ok := taken[bin+1]; ok && refractory > 0 {
			continue
		}
		taken[bin] = struct{}{}
		out = append(out, f)
	}
	slices.Sort(out)
	return out, nil
}
