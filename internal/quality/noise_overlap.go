package quality

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"slices"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/banshee-data/spike.metrics/internal/curation"
	"github.com/banshee-data/spike.metrics/internal/ephys"
)

// MetricData bundles the inputs shared by every metric invocation.
type MetricData struct {
	Recording ephys.Recording
	Sorting   ephys.Sorting

	// UnitIDs restricts scoring to these units, in this order. Nil scores
	// every unit of the sorting.
	UnitIDs []ephys.UnitID

	// Extractor defaults to ephys.Extractor.
	Extractor ephys.WaveformExtractor
}

// NoiseOverlap scores how distinguishable each unit's spikes are from
// background noise.
type NoiseOverlap struct {
	data MetricData
}

// NewNoiseOverlap returns a noise overlap metric over data.
func NewNoiseOverlap(data MetricData) (*NoiseOverlap, error) {
	if data.Recording == nil {
		return nil, ErrMissingRecording
	}
	if data.Sorting == nil {
		return nil, ErrMissingSorting
	}
	if data.Extractor == nil {
		data.Extractor = ephys.Extractor{}
	}
	return &NoiseOverlap{data: data}, nil
}

// Result holds one score per requested unit, in request order. Units that
// failed score NaN and have an entry in Failures.
type Result struct {
	UnitIDs     []ephys.UnitID
	Scores      []float64
	Failures    []*UnitError
	Diagnostics []*UnitDiagnostics // nil unless Params.KeepDiagnostics
}

// Score returns the score for id.
func (r *Result) Score(id ephys.UnitID) (float64, bool) {
	i := slices.Index(r.UnitIDs, id)
	if i < 0 {
		return math.NaN(), false
	}
	return r.Scores[i], true
}

// UnitDiagnostics records the intermediate waveforms of one scored unit.
type UnitDiagnostics struct {
	UnitID        ephys.UnitID
	NumClips      int
	PeakChannel   int
	PeakSample    int
	Channels      int
	Samples       int
	Median        []float64 // Channels×Samples, row-major
	NoiseTemplate []float64 // Channels×Samples, row-major
}

func (m *NoiseOverlap) unitIDs() []ephys.UnitID {
	if m.data.UnitIDs != nil {
		return slices.Clone(m.data.UnitIDs)
	}
	return m.data.Sorting.UnitIDs()
}

// Compute scores every requested unit.
//
// Waveform extraction and noise pool errors abort the call. Errors scoped to a
// single unit are collected in Result.Failures and the remaining units are
// still scored.
func (m *NoiseOverlap) Compute(ctx context.Context, p Params) (*Result, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	start := time.Now()
	ids := m.unitIDs()
	res := &Result{UnitIDs: ids, Scores: make([]float64, len(ids))}
	if len(ids) == 0 {
		return res, nil
	}

	rng := p.generator()
	wp := p.Waveforms
	wp.MaxSpikesPerUnit = p.MaxSpikesPerUnit
	waves, err := m.data.Extractor.UnitWaveforms(ctx, m.data.Recording, m.data.Sorting, ids, wp, rng)
	if err != nil {
		return nil, fmt.Errorf("extract waveforms: %w", err)
	}
	if len(waves) != len(ids) {
		return nil, fmt.Errorf("%w: extractor returned %d clip sets for %d units", ErrShapeMismatch, len(waves), len(ids))
	}
	if waves[0] == nil {
		return nil, fmt.Errorf("%w: no clips for unit %d", ErrShapeMismatch, ids[0])
	}

	lo, hi, ok, err := ephys.SpikeRange(m.data.Sorting)
	if err != nil {
		return nil, fmt.Errorf("spike range: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: sorting has no spikes", ErrInsufficientData)
	}
	pool, err := samplePool(m.data.Recording, rng, lo, hi, p.MaxSpikesPerUnit, waves[0].Samples)
	if err != nil {
		return nil, err
	}
	Tracef("noise pool: %d clips of %dx%d from frames [%d, %d]", pool.N, pool.Channels, pool.Samples, lo, hi)

	// Streams are drawn in unit order so scores do not depend on scheduling.
	seeds := make([]uint64, len(ids))
	for i := range seeds {
		seeds[i] = rng.Uint64()
	}

	workers := min(p.workers(), len(ids))
	arenas := make(chan *unitArena, workers)
	for range workers {
		arenas <- new(unitArena)
	}
	if p.KeepDiagnostics {
		res.Diagnostics = make([]*UnitDiagnostics, len(ids))
	}
	unitErrs := make([]*UnitError, len(ids))
	var done atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, id := range ids {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			a := <-arenas
			defer func() { arenas <- a }()

			unitRng := rand.New(rand.NewPCG(seeds[i], uint64(i)))
			score, diag, err := scoreUnit(a, waves[i], pool, unitRng, p)
			if err != nil {
				res.Scores[i] = math.NaN()
				unitErrs[i] = &UnitError{UnitID: id, Err: err}
				Opsf("unit %d: %v", id, err)
			} else {
				res.Scores[i] = score
			}
			if diag != nil {
				diag.UnitID = id
				res.Diagnostics[i] = diag
			}
			n := done.Add(1)
			if p.Verbose {
				Diagf("noise overlap %d/%d: unit %d score=%.4f", n, len(ids), id, res.Scores[i])
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, ue := range unitErrs {
		if ue != nil {
			res.Failures = append(res.Failures, ue)
		}
	}

	if p.SaveProperty {
		for i, id := range ids {
			if math.IsNaN(res.Scores[i]) {
				continue
			}
			if err := m.data.Sorting.SetUnitProperty(id, NoiseOverlapProperty, res.Scores[i]); err != nil {
				return nil, fmt.Errorf("save %s for unit %d: %w", NoiseOverlapProperty, id, err)
			}
		}
	}

	Opsf("noise overlap: scored %d units (%d failed) with %d workers in %v",
		len(ids), len(res.Failures), workers, time.Since(start).Round(time.Millisecond))
	return res, nil
}

// Threshold computes noise overlap and returns a curated view of the sorting
// that excludes units whose score satisfies score <sign> threshold.
func (m *NoiseOverlap) Threshold(ctx context.Context, p Params, threshold float64, sign curation.Sign) (*curation.ThresholdCurator, *Result, error) {
	res, err := m.Compute(ctx, p)
	if err != nil {
		return nil, nil, err
	}
	c, err := curation.NewThresholdCurator(m.data.Sorting, res.UnitIDs, res.Scores)
	if err != nil {
		return nil, nil, err
	}
	if err := c.ThresholdSorting(threshold, sign); err != nil {
		return nil, nil, err
	}
	return c, res, nil
}

// scoreUnit runs noise selection, template construction, component
// subtraction, feature reduction and purity scoring for one unit.
func scoreUnit(a *unitArena, clips, pool *ephys.ClipSet, rng *rand.Rand, p Params) (float64, *UnitDiagnostics, error) {
	if clips == nil || !clips.SameShape(pool) {
		return math.NaN(), nil, fmt.Errorf("%w: unit clips do not match noise pool %dx%d", ErrShapeMismatch, pool.Channels, pool.Samples)
	}
	if err := clips.Validate(); err != nil {
		return math.NaN(), nil, err
	}
	n := min(clips.N, pool.N)
	if n < 1 {
		return math.NaN(), nil, fmt.Errorf("%w: unit has no clips", ErrInsufficientData)
	}
	d, k := clips.ClipLen(), p.NumFeatures
	a.reset(n, d, k)

	copy(a.rows[:n*d], clips.Data[:n*d])
	noise := a.rows[n*d:]
	for j, idx := range selectNoise(rng, clips.N, pool.N) {
		copy(noise[j*d:(j+1)*d], pool.Clip(idx))
	}

	medianWaveform(a.median, a.rows[:n*d], n, d, a.column)
	peak, err := buildNoiseTemplate(a.template, a.median, noise, n, d)
	if err != nil {
		return math.NaN(), nil, err
	}
	var diag *UnitDiagnostics
	if p.KeepDiagnostics {
		diag = &UnitDiagnostics{
			NumClips:      n,
			PeakChannel:   peak / clips.Samples,
			PeakSample:    peak % clips.Samples,
			Channels:      clips.Channels,
			Samples:       clips.Samples,
			Median:        slices.Clone(a.median),
			NoiseTemplate: slices.Clone(a.template),
		}
	}

	tt, err := centreComponent(a.centred, a.template)
	if err != nil {
		return math.NaN(), diag, err
	}
	for j := 0; j < 2*n; j++ {
		subtractComponent(a.rows[j*d:(j+1)*d], a.centred, tt)
	}
	Tracef("peak ch=%d s=%d value=%.3f template energy=%.4g", peak/clips.Samples, peak%clips.Samples, a.median[peak], tt)

	if err := pcaFeatures(a.rows, 2*n, d, k, a.features); err != nil {
		return math.NaN(), diag, err
	}
	score, err := neighbourPurity(a.features, 2*n, k, n, p.NumKNN)
	if err != nil {
		return math.NaN(), diag, err
	}
	return score, diag, nil
}
