package quality

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"

	"github.com/banshee-data/spike.metrics/internal/curation"
	"github.com/banshee-data/spike.metrics/internal/ephys"
)

// smallData has a large positive unit (1), a unit of pure noise (2) and a
// unit with a single spike (3).
func smallData(t *testing.T) (*ephys.MemoryRecording, *ephys.MemorySorting) {
	t.Helper()
	cfg := ephys.DefaultSyntheticConfig()
	cfg.NumFrames = 90000
	cfg.Seed = 5
	cfg.Units = []ephys.SyntheticUnit{
		{ID: 1, NumSpikes: 300, PeakAmplitude: 300, PeakChannel: 1, WidthSamples: 3, ChannelDecay: 0.5},
		{ID: 2, NumSpikes: 150},
		{ID: 3, NumSpikes: 1},
	}
	rec, sorting, err := ephys.GenerateSynthetic(cfg)
	require.NoError(t, err)
	return rec, sorting
}

func newMetric(t *testing.T, data MetricData) *NoiseOverlap {
	t.Helper()
	m, err := NewNoiseOverlap(data)
	require.NoError(t, err)
	return m
}

type fixedExtractor struct {
	clips []*ephys.ClipSet
}

func (f fixedExtractor) UnitWaveforms(context.Context, ephys.Recording, ephys.Sorting, []ephys.UnitID, ephys.WaveformParams, *rand.Rand) ([]*ephys.ClipSet, error) {
	return f.clips, nil
}

func TestNewNoiseOverlap_Missing(t *testing.T) {
	t.Parallel()
	rec, sorting := smallData(t)

	_, err := NewNoiseOverlap(MetricData{Sorting: sorting})
	assert.ErrorIs(t, err, ErrMissingRecording)
	_, err = NewNoiseOverlap(MetricData{Recording: rec})
	assert.ErrorIs(t, err, ErrMissingSorting)
}

func TestCompute_ScoresAndFailures(t *testing.T) {
	t.Parallel()
	rec, sorting := smallData(t)
	m := newMetric(t, MetricData{Recording: rec, Sorting: sorting})

	res, err := m.Compute(context.Background(), DefaultParams().WithSeed(0))
	require.NoError(t, err)
	require.Equal(t, []ephys.UnitID{1, 2, 3}, res.UnitIDs)
	require.Len(t, res.Scores, 3)

	for _, s := range res.Scores[:2] {
		assert.GreaterOrEqual(t, s, 0.0)
		assert.LessOrEqual(t, s, 1.0)
	}
	assert.Less(t, res.Scores[0], res.Scores[1], "a large unit separates better than noise")
	assert.Greater(t, res.Scores[1], 0.3, "noise posing as spikes mixes with the pool")

	// A single clip leaves no neighbours to compare.
	assert.True(t, math.IsNaN(res.Scores[2]))
	require.Len(t, res.Failures, 1)
	assert.Equal(t, ephys.UnitID(3), res.Failures[0].UnitID)
	assert.ErrorIs(t, res.Failures[0], ErrInsufficientData)
	var ue *UnitError
	assert.True(t, errors.As(error(res.Failures[0]), &ue))

	got, ok := res.Score(2)
	assert.True(t, ok)
	assert.Equal(t, res.Scores[1], got)
	_, ok = res.Score(99)
	assert.False(t, ok)
}

func TestCompute_Deterministic(t *testing.T) {
	t.Parallel()
	rec, sorting := smallData(t)
	m := newMetric(t, MetricData{Recording: rec, Sorting: sorting})
	ctx := context.Background()

	seq := DefaultParams().WithSeed(0)
	par := seq
	par.Workers = 4

	a, err := m.Compute(ctx, seq)
	require.NoError(t, err)
	b, err := m.Compute(ctx, par)
	require.NoError(t, err)
	if diff := cmp.Diff(a.Scores, b.Scores, cmpopts.EquateNaNs()); diff != "" {
		t.Errorf("scores depend on worker count (-seq +par):\n%s", diff)
	}

	own := DefaultParams()
	own.Rand = rand.New(rand.NewPCG(9, 9))
	c, err := m.Compute(ctx, own)
	require.NoError(t, err)
	own.Rand = rand.New(rand.NewPCG(9, 9))
	d, err := m.Compute(ctx, own)
	require.NoError(t, err)
	if diff := cmp.Diff(c.Scores, d.Scores, cmpopts.EquateNaNs()); diff != "" {
		t.Errorf("caller generator runs differ (-first +second):\n%s", diff)
	}
}

func TestCompute_FailureIsolated(t *testing.T) {
	t.Parallel()
	rec, sorting := smallData(t)
	ctx := context.Background()
	p := DefaultParams().WithSeed(3)

	all, err := newMetric(t, MetricData{Recording: rec, Sorting: sorting}).Compute(ctx, p)
	require.NoError(t, err)
	healthy, err := newMetric(t, MetricData{Recording: rec, Sorting: sorting, UnitIDs: []ephys.UnitID{1, 2}}).Compute(ctx, p)
	require.NoError(t, err)

	assert.Equal(t, healthy.Scores, all.Scores[:2])
	assert.Empty(t, healthy.Failures)
}

func TestCompute_ReducedParamsStayInRange(t *testing.T) {
	t.Parallel()
	rec, sorting := smallData(t)
	m := newMetric(t, MetricData{Recording: rec, Sorting: sorting, UnitIDs: []ephys.UnitID{1, 2}})

	for _, knn := range []int{1, 3} {
		for _, nf := range []int{1, 2, 5} {
			p := DefaultParams().WithSeed(1)
			p.NumKNN, p.NumFeatures = knn, nf
			res, err := m.Compute(context.Background(), p)
			require.NoError(t, err)
			require.Empty(t, res.Failures)
			for _, s := range res.Scores {
				assert.GreaterOrEqual(t, s, 0.0, "knn=%d features=%d", knn, nf)
				assert.LessOrEqual(t, s, 1.0, "knn=%d features=%d", knn, nf)
			}
		}
	}
}

func TestCompute_SaveProperty(t *testing.T) {
	t.Parallel()
	rec, sorting := smallData(t)
	m := newMetric(t, MetricData{Recording: rec, Sorting: sorting})

	p := DefaultParams().WithSeed(0)
	p.SaveProperty = true
	res, err := m.Compute(context.Background(), p)
	require.NoError(t, err)

	for i, id := range res.UnitIDs[:2] {
		v, ok := sorting.UnitProperty(id, NoiseOverlapProperty)
		require.True(t, ok, "unit %d", id)
		assert.Equal(t, res.Scores[i], v)
	}
	_, ok := sorting.UnitProperty(3, NoiseOverlapProperty)
	assert.False(t, ok, "failed units are not saved")
}

func TestCompute_Diagnostics(t *testing.T) {
	t.Parallel()
	rec, sorting := smallData(t)
	m := newMetric(t, MetricData{Recording: rec, Sorting: sorting, UnitIDs: []ephys.UnitID{1}})

	p := DefaultParams().WithSeed(0)
	p.KeepDiagnostics = true
	p.MaxSpikesPerUnit = 100
	res, err := m.Compute(context.Background(), p)
	require.NoError(t, err)
	require.Len(t, res.Diagnostics, 1)

	d := res.Diagnostics[0]
	require.NotNil(t, d)
	assert.Equal(t, ephys.UnitID(1), d.UnitID)
	assert.Equal(t, 100, d.NumClips)
	assert.Equal(t, 4, d.Channels)
	assert.Equal(t, 60, d.Samples)
	assert.Equal(t, 1, d.PeakChannel)
	assert.Equal(t, 30, d.PeakSample)
	assert.InDelta(t, 300, d.Median[d.PeakChannel*d.Samples+d.PeakSample], 10)
	assert.InDelta(t, floats.Norm(d.Median, 1), floats.Norm(d.NoiseTemplate, 1), 1e-6)
}

func TestCompute_UnitLevelErrors(t *testing.T) {
	t.Parallel()
	rec, sorting := smallData(t)

	good, err := rec.Snippets([]int64{100, 2000, 4000, 9000}, 60)
	require.NoError(t, err)
	zero := ephys.NewClipSet(20, 4, 60)
	short := ephys.NewClipSet(20, 4, 30)

	m := newMetric(t, MetricData{
		Recording: rec,
		Sorting:   sorting,
		Extractor: fixedExtractor{clips: []*ephys.ClipSet{good, zero, short}},
	})
	p := DefaultParams().WithSeed(0)
	p.NumFeatures = 4
	res, err := m.Compute(context.Background(), p)
	require.NoError(t, err)

	assert.False(t, math.IsNaN(res.Scores[0]))
	require.Len(t, res.Failures, 2)
	assert.ErrorIs(t, res.Failures[0], ErrDegenerateTemplate)
	assert.Equal(t, ephys.UnitID(2), res.Failures[0].UnitID)
	assert.ErrorIs(t, res.Failures[1], ErrShapeMismatch)
	assert.Equal(t, ephys.UnitID(3), res.Failures[1].UnitID)
}

func TestCompute_Cancelled(t *testing.T) {
	t.Parallel()
	rec, sorting := smallData(t)
	m := newMetric(t, MetricData{Recording: rec, Sorting: sorting})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := m.Compute(ctx, DefaultParams().WithSeed(0))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCompute_InvalidParams(t *testing.T) {
	t.Parallel()
	rec, sorting := smallData(t)
	m := newMetric(t, MetricData{Recording: rec, Sorting: sorting})

	p := DefaultParams()
	p.NumKNN = 0
	_, err := m.Compute(context.Background(), p)
	assert.ErrorIs(t, err, ErrInvalidParams)
}

// A unit far above the noise floor scores near zero and a unit of pure noise
// scores near the chance mixing ratio n/(2n-1).
func TestNoiseOverlap_TwoUnitScenario(t *testing.T) {
	if testing.Short() {
		t.Skip("generates a 50 s recording")
	}
	t.Parallel()

	cfg := ephys.DefaultSyntheticConfig()
	cfg.Units = []ephys.SyntheticUnit{
		{ID: 1, NumSpikes: 1000, PeakAmplitude: 500, PeakChannel: 1, WidthSamples: 3, ChannelDecay: 0.5},
		{ID: 2, NumSpikes: 1000},
	}
	rec, sorting, err := ephys.GenerateSynthetic(cfg)
	require.NoError(t, err)
	m := newMetric(t, MetricData{Recording: rec, Sorting: sorting})

	p := DefaultParams().WithSeed(0)
	p.Workers = 2
	curator, res, err := m.Threshold(context.Background(), p, 0.25, curation.Greater)
	require.NoError(t, err)
	require.Empty(t, res.Failures)

	assert.Less(t, res.Scores[0], 0.1)
	// A noise unit lands on either side of 0.5 depending on the seed, since
	// the chance level with self excluded is n/(2n-1) plus sampling spread.
	// The check is a band around chance rather than a strict > 0.5.
	assert.InDelta(t, 0.5, res.Scores[1], 0.05)
	assert.Equal(t, []ephys.UnitID{1}, curator.UnitIDs())
	assert.Equal(t, []ephys.UnitID{2}, curator.Excluded())
}
