package ephys

import (
	"context"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWaveformParams_ClipLen(t *testing.T) {
	t.Parallel()
	assert.Equal(t, 60, DefaultWaveformParams().ClipLen(30000))
	assert.Equal(t, 3, WaveformParams{MsBefore: 1, MsAfter: 2}.ClipLen(1000))
}

func TestExtractor_UnitWaveforms(t *testing.T) {
	t.Parallel()
	rec := rampRecording(t, 1000)
	s := NewMemorySorting()
	s.AddUnit(1, []int64{100, 200, 300, 400, 500, 600})
	s.AddUnit(2, []int64{50})

	p := WaveformParams{MsBefore: 2, MsAfter: 2, MaxSpikesPerUnit: 3}
	rng := rand.New(rand.NewPCG(1, 2))
	clips, err := Extractor{}.UnitWaveforms(context.Background(), rec, s, []UnitID{2, 1}, p, rng)
	require.NoError(t, err)
	require.Len(t, clips, 2)

	assert.Equal(t, 1, clips[0].N)
	assert.Equal(t, 3, clips[1].N, "unit 1 is capped at MaxSpikesPerUnit")
	assert.Equal(t, 4, clips[1].Samples)

	// Subsampled clips stay in time order; the centre sample is the spike frame.
	prev := -1.0
	for i := 0; i < clips[1].N; i++ {
		centre := clips[1].At(i, 0, 2)
		assert.Greater(t, centre, prev)
		assert.Contains(t, []float64{100, 200, 300, 400, 500, 600}, centre)
		prev = centre
	}
}

func TestExtractor_Errors(t *testing.T) {
	t.Parallel()
	rec := rampRecording(t, 100)
	s := NewMemorySorting()
	s.AddUnit(1, []int64{10})
	rng := rand.New(rand.NewPCG(1, 2))

	_, err := Extractor{}.UnitWaveforms(context.Background(), rec, s, []UnitID{5}, DefaultWaveformParams(), rng)
	assert.ErrorIs(t, err, ErrUnknownUnit)

	_, err = Extractor{}.UnitWaveforms(context.Background(), rec, s, []UnitID{1}, WaveformParams{}, rng)
	assert.ErrorIs(t, err, ErrBadShape)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = Extractor{}.UnitWaveforms(ctx, rec, s, []UnitID{1}, DefaultWaveformParams(), rng)
	assert.ErrorIs(t, err, context.Canceled)
}
