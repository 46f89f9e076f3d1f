package ephys

import (
	"context"
	"fmt"
	"math/rand/v2"
	"slices"
)

// Default waveform window, in milliseconds either side of the spike frame.
const (
	DefaultMsBefore         = 1.0
	DefaultMsAfter          = 1.0
	DefaultMaxSpikesPerUnit = 1000
)

// WaveformParams controls waveform extraction.
type WaveformParams struct {
	MsBefore         float64
	MsAfter          float64
	MaxSpikesPerUnit int // <= 0 means no cap
}

// DefaultWaveformParams returns the default extraction window and cap.
func DefaultWaveformParams() WaveformParams {
	return WaveformParams{
		MsBefore:         DefaultMsBefore,
		MsAfter:          DefaultMsAfter,
		MaxSpikesPerUnit: DefaultMaxSpikesPerUnit,
	}
}

// ClipLen converts the millisecond window into a sample count at fs Hz.
func (p WaveformParams) ClipLen(fs float64) int {
	before := int(p.MsBefore * fs / 1000)
	after := int(p.MsAfter * fs / 1000)
	return before + after
}

// WaveformExtractor returns one clip set per requested unit, in request order.
type WaveformExtractor interface {
	UnitWaveforms(ctx context.Context, rec Recording, s Sorting, ids []UnitID, p WaveformParams, rng *rand.Rand) ([]*ClipSet, error)
}

// Extractor is the default WaveformExtractor. Units with more spikes than
// MaxSpikesPerUnit are subsampled uniformly without replacement, keeping the
// selected spikes in time order.
type Extractor struct{}

// UnitWaveforms implements WaveformExtractor.
func (Extractor) UnitWaveforms(ctx context.Context, rec Recording, s Sorting, ids []UnitID, p WaveformParams, rng *rand.Rand) ([]*ClipSet, error) {
	clipLen := p.ClipLen(rec.SamplingFrequency())
	if clipLen <= 0 {
		return nil, fmt.Errorf("%w: waveform window %.3f+%.3f ms is empty at %.1f Hz",
			ErrBadShape, p.MsBefore, p.MsAfter, rec.SamplingFrequency())
	}

	out := make([]*ClipSet, len(ids))
	for i, id := range ids {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		train, err := s.SpikeTrain(id)
		if err != nil {
			return nil, err
		}
		frames := train
		if p.MaxSpikesPerUnit > 0 && len(train) > p.MaxSpikesPerUnit {
			idx := rng.Perm(len(train))[:p.MaxSpikesPerUnit]
			slices.Sort(idx)
			frames = make([]int64, len(idx))
			for j, k := range idx {
				frames[j] = train[k]
			}
		}
		clips, err := rec.Snippets(frames, clipLen)
		if err != nil {
			return nil, fmt.Errorf("unit %d: %w", id, err)
		}
		out[i] = clips
	}
	return out, nil
}

var _ WaveformExtractor = Extractor{}
