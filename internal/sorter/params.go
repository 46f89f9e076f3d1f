// Package sorter drives an external HerdingSpikes-style spike sorter over a
// recording and loads the sorted spike trains it leaves behind.
//
// The sorting engine itself is a collaborator behind the Engine interface;
// this package owns its parameter set and the order of calls.
package sorter

import (
	"errors"
	"fmt"
	"slices"

	"github.com/banshee-data/spike.metrics/internal/config"
)

// Name identifies the sorter in logs and stored runs.
const Name = "herdingspikes"

// ErrInvalidParams is returned by Params.Validate.
var ErrInvalidParams = errors.New("sorter: invalid parameters")

// ProbeParams configure the engine's probe model.
type ProbeParams struct {
	InnerRadius    float64 `json:"inner_radius"`
	NeighborRadius float64 `json:"neighbor_radius"`
	EventLength    float64 `json:"event_length"` // ms
	PeakJitter     float64 `json:"peak_jitter"`  // ms
}

// DetectionParams are the engine's extra detection settings.
type DetectionParams struct {
	ToLocalize        bool    `json:"to_localize"`
	NumComCenters     int     `json:"num_com_centers"`
	MAA               int     `json:"maa"`
	AHPThr            int     `json:"ahpthr"`
	OutFileName       string  `json:"out_file_name"`
	DecayFiltering    bool    `json:"decay_filtering"`
	SaveAll           bool    `json:"save_all"`
	AmpEvaluationTime float64 `json:"amp_evaluation_time"` // ms
	SpkEvaluationTime float64 `json:"spk_evaluation_time"` // ms
}

// PCAParams configure the waveform-shape PCA that precedes clustering.
type PCAParams struct {
	NumComponents int  `json:"pca_ncomponents"`
	Whiten        bool `json:"pca_whiten"`
}

// Params is the full HerdingSpikes parameter set.
type Params struct {
	ClusteringBandwidth  float64 `json:"clustering_bandwidth"`
	ClusteringAlpha      float64 `json:"clustering_alpha"`
	ClusteringNJobs      int     `json:"clustering_n_jobs"` // -1 uses all cores
	ClusteringBinSeeding bool    `json:"clustering_bin_seeding"`
	ClusteringSubset     int     `json:"clustering_subset"` // 0 clusters every spike
	LeftCutoutTime       float64 `json:"left_cutout_time"`  // ms
	RightCutoutTime      float64 `json:"right_cutout_time"` // ms
	DetectionThreshold   int     `json:"detection_threshold"`
	ProbeMaskedChannels  []int   `json:"probe_masked_channels"`

	Probe     ProbeParams     `json:"extra_probe_params"`
	Detection DetectionParams `json:"extra_detection_params"`
	PCA       PCAParams       `json:"extra_pca_params"`
}

// DefaultParams returns the engine's documented defaults.
func DefaultParams() Params {
	return Params{
		ClusteringBandwidth:  6.0,
		ClusteringAlpha:      6.0,
		ClusteringNJobs:      -1,
		ClusteringBinSeeding: false,
		ClusteringSubset:     0,
		LeftCutoutTime:       1.0,
		RightCutoutTime:      2.2,
		DetectionThreshold:   20,
		ProbeMaskedChannels:  []int{},
		Probe: ProbeParams{
			InnerRadius:    50,
			NeighborRadius: 50,
			EventLength:    0.5,
			PeakJitter:     0.2,
		},
		Detection: DetectionParams{
			ToLocalize:        true,
			NumComCenters:     1,
			OutFileName:       "HS2_detected",
			AmpEvaluationTime: 0.4,
			SpkEvaluationTime: 1.7,
		},
		PCA: PCAParams{NumComponents: 2, Whiten: true},
	}
}

// ParamsFromConfig builds sorter parameters from cfg, keeping the extra
// probe, detection and PCA defaults.
func ParamsFromConfig(cfg *config.MetricsConfig) Params {
	p := DefaultParams()
	p.ClusteringBandwidth = cfg.GetClusteringBandwidth()
	p.ClusteringAlpha = cfg.GetClusteringAlpha()
	p.ClusteringNJobs = cfg.GetClusteringNJobs()
	p.ClusteringBinSeeding = cfg.GetClusteringBinSeeding()
	p.ClusteringSubset = cfg.GetClusteringSubset()
	p.LeftCutoutTime = cfg.GetLeftCutoutTime()
	p.RightCutoutTime = cfg.GetRightCutoutTime()
	p.DetectionThreshold = cfg.GetDetectionThreshold()
	if cfg.ProbeMaskedChannels != nil {
		p.ProbeMaskedChannels = slices.Clone(cfg.ProbeMaskedChannels)
	}
	return p
}

// Validate checks p against the recording's channel count. numChannels <= 0
// skips the masked-channel range check.
func (p Params) Validate(numChannels int) error {
	switch {
	case p.ClusteringBandwidth <= 0:
		return fmt.Errorf("%w: clustering_bandwidth must be positive, got %g", ErrInvalidParams, p.ClusteringBandwidth)
	case p.ClusteringAlpha <= 0:
		return fmt.Errorf("%w: clustering_alpha must be positive, got %g", ErrInvalidParams, p.ClusteringAlpha)
	case p.ClusteringNJobs == 0 || p.ClusteringNJobs < -1:
		return fmt.Errorf("%w: clustering_n_jobs must be -1 or positive, got %d", ErrInvalidParams, p.ClusteringNJobs)
	case p.ClusteringSubset < 0:
		return fmt.Errorf("%w: clustering_subset must be non-negative, got %d", ErrInvalidParams, p.ClusteringSubset)
	case p.LeftCutoutTime < 0 || p.RightCutoutTime < 0:
		return fmt.Errorf("%w: cutout times must be non-negative, got %g/%g", ErrInvalidParams, p.LeftCutoutTime, p.RightCutoutTime)
	case p.LeftCutoutTime+p.RightCutoutTime == 0:
		return fmt.Errorf("%w: cutout window is empty", ErrInvalidParams)
	case p.DetectionThreshold <= 0:
		return fmt.Errorf("%w: detection_threshold must be positive, got %d", ErrInvalidParams, p.DetectionThreshold)
	case p.PCA.NumComponents < 1:
		return fmt.Errorf("%w: pca_ncomponents must be at least 1, got %d", ErrInvalidParams, p.PCA.NumComponents)
	}
	seen := make(map[int]bool, len(p.ProbeMaskedChannels))
	for _, ch := range p.ProbeMaskedChannels {
		if ch < 0 || (numChannels > 0 && ch >= numChannels) {
			return fmt.Errorf("%w: masked channel %d out of range", ErrInvalidParams, ch)
		}
		if seen[ch] {
			return fmt.Errorf("%w: masked channel %d listed twice", ErrInvalidParams, ch)
		}
		seen[ch] = true
	}
	if numChannels > 0 && len(seen) >= numChannels {
		return fmt.Errorf("%w: every channel is masked", ErrInvalidParams)
	}
	return nil
}
