package quality

import (
	"fmt"
	"math/rand/v2"

	"github.com/banshee-data/spike.metrics/internal/config"
	"github.com/banshee-data/spike.metrics/internal/ephys"
)

// Defaults for the noise overlap metric.
const (
	DefaultMaxSpikesPerUnitForNoiseOverlap = 1000
	DefaultNumFeatures                     = 10
	DefaultNumKNN                          = 6

	// NoiseOverlapProperty is the unit property name scores are saved under.
	NoiseOverlapProperty = "noise_overlap"
)

// Params configures one noise overlap invocation.
type Params struct {
	// MaxSpikesPerUnit caps the clips extracted per unit and sets the noise pool size.
	MaxSpikesPerUnit int
	NumFeatures      int
	NumKNN           int

	// Rand is the caller-owned generator for every random draw. If nil, one
	// is created from Seed, or from a random seed when Seed is nil too.
	Rand *rand.Rand
	Seed *uint64

	// SaveProperty stores each successful score on the sorting as NoiseOverlapProperty.
	SaveProperty bool

	// Workers bounds how many units are scored concurrently. 0 or 1 is sequential.
	Workers int

	// KeepDiagnostics retains each unit's median waveform and noise template in the result.
	KeepDiagnostics bool

	// Verbose logs per-unit progress to the diag stream.
	Verbose bool

	// Waveforms sets the extraction window. Its MaxSpikesPerUnit is replaced by
	// the field above.
	Waveforms ephys.WaveformParams
}

// DefaultParams returns the default metric parameters with no fixed seed.
func DefaultParams() Params {
	return Params{
		MaxSpikesPerUnit: DefaultMaxSpikesPerUnitForNoiseOverlap,
		NumFeatures:      DefaultNumFeatures,
		NumKNN:           DefaultNumKNN,
		Workers:          1,
		Waveforms:        ephys.DefaultWaveformParams(),
	}
}

// ParamsFromConfig builds Params from a loaded MetricsConfig.
func ParamsFromConfig(cfg *config.MetricsConfig) Params {
	p := Params{
		MaxSpikesPerUnit: cfg.GetMaxSpikesPerUnitForNoiseOverlap(),
		NumFeatures:      cfg.GetNumFeatures(),
		NumKNN:           cfg.GetNumKNN(),
		SaveProperty:     cfg.GetSavePropertyOrFeatures(),
		Workers:          cfg.GetWorkers(),
		Waveforms: ephys.WaveformParams{
			MsBefore:         cfg.GetMsBefore(),
			MsAfter:          cfg.GetMsAfter(),
			MaxSpikesPerUnit: cfg.GetMaxSpikesPerUnitForNoiseOverlap(),
		},
	}
	if seed, ok := cfg.GetSeed(); ok {
		p.Seed = &seed
	}
	return p
}

// WithSeed returns a copy of p that seeds its generator from seed.
func (p Params) WithSeed(seed uint64) Params {
	p.Seed = &seed
	p.Rand = nil
	return p
}

// Validate checks parameter ranges.
func (p Params) Validate() error {
	if p.MaxSpikesPerUnit < 1 {
		return fmt.Errorf("%w: max_spikes_per_unit_for_noise_overlap must be >= 1, got %d", ErrInvalidParams, p.MaxSpikesPerUnit)
	}
	if p.NumFeatures < 1 {
		return fmt.Errorf("%w: num_features must be >= 1, got %d", ErrInvalidParams, p.NumFeatures)
	}
	if p.NumKNN < 1 {
		return fmt.Errorf("%w: num_knn must be >= 1, got %d", ErrInvalidParams, p.NumKNN)
	}
	if p.Workers < 0 {
		return fmt.Errorf("%w: workers must be non-negative, got %d", ErrInvalidParams, p.Workers)
	}
	if p.Waveforms.MsBefore < 0 || p.Waveforms.MsAfter < 0 {
		return fmt.Errorf("%w: waveform window must be non-negative, got %.3f/%.3f ms",
			ErrInvalidParams, p.Waveforms.MsBefore, p.Waveforms.MsAfter)
	}
	return nil
}

func (p Params) generator() *rand.Rand {
	switch {
	case p.Rand != nil:
		return p.Rand
	case p.Seed != nil:
		return rand.New(rand.NewPCG(*p.Seed, 0))
	default:
		return rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
}

func (p Params) workers() int {
	if p.Workers < 1 {
		return 1
	}
	return p.Workers
}
