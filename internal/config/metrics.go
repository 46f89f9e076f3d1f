package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DefaultConfigPath is the path to the canonical metric defaults file.
const DefaultConfigPath = "config/metrics.defaults.json"

// MetricsConfig is the root configuration for metric runs. Every field is
// optional; the Get* methods supply the default for anything left unset.
type MetricsConfig struct {
	// Noise overlap params
	MaxSpikesPerUnitForNoiseOverlap *int    `json:"max_spikes_per_unit_for_noise_overlap,omitempty"`
	NumFeatures                     *int    `json:"num_features,omitempty"`
	NumKNN                          *int    `json:"num_knn,omitempty"`
	Seed                            *uint64 `json:"seed,omitempty"`
	SavePropertyOrFeatures          *bool   `json:"save_property_or_features,omitempty"`
	Workers                         *int    `json:"workers,omitempty"`
	Timeout                         *string `json:"timeout,omitempty"` // duration string like "10m"

	// Waveform window
	MsBefore *float64 `json:"ms_before,omitempty"`
	MsAfter  *float64 `json:"ms_after,omitempty"`

	// Curation
	Threshold     *float64 `json:"threshold,omitempty"`
	ThresholdSign *string  `json:"threshold_sign,omitempty"`

	// Sorter params (herdingspikes)
	ClusteringBandwidth  *float64 `json:"clustering_bandwidth,omitempty"`
	ClusteringAlpha      *float64 `json:"clustering_alpha,omitempty"`
	ClusteringNJobs      *int     `json:"clustering_n_jobs,omitempty"`
	ClusteringBinSeeding *bool    `json:"clustering_bin_seeding,omitempty"`
	ClusteringSubset     *int     `json:"clustering_subset,omitempty"`
	LeftCutoutTime       *float64 `json:"left_cutout_time,omitempty"`
	RightCutoutTime      *float64 `json:"right_cutout_time,omitempty"`
	DetectionThreshold   *int     `json:"detection_threshold,omitempty"`
	ProbeMaskedChannels  []int    `json:"probe_masked_channels,omitempty"`

	// Output
	DBPath    *string `json:"db_path,omitempty"`
	ReportDir *string `json:"report_dir,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }
func ptrUint64(v uint64) *uint64    { return &v }

var thresholdSigns = map[string]bool{
	"less":             true,
	"less_or_equal":    true,
	"greater":          true,
	"greater_or_equal": true,
}

// EmptyMetricsConfig returns a MetricsConfig with all fields set to nil.
func EmptyMetricsConfig() *MetricsConfig {
	return &MetricsConfig{}
}

// LoadConfig loads a MetricsConfig from a JSON file.
// The file must have a .json extension and be under 1MB. Fields omitted from
// the file fall back to their defaults, so partial configs are safe.
func LoadConfig(path string) (*MetricsConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyMetricsConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// MustLoadDefaultConfig loads DefaultConfigPath, searching the current
// directory and its parents. Panics if the file cannot be loaded, intended for
// test setup.
func MustLoadDefaultConfig() *MetricsConfig {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,    // from internal/<pkg>/
		"../../../" + DefaultConfigPath, // from cmd/<tool>/ nested one level deeper
	}
	for _, path := range candidates {
		if cfg, err := LoadConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *MetricsConfig) Validate() error {
	if c.MaxSpikesPerUnitForNoiseOverlap != nil && *c.MaxSpikesPerUnitForNoiseOverlap < 1 {
		return fmt.Errorf("max_spikes_per_unit_for_noise_overlap must be positive, got %d", *c.MaxSpikesPerUnitForNoiseOverlap)
	}
	if c.NumFeatures != nil && *c.NumFeatures < 1 {
		return fmt.Errorf("num_features must be positive, got %d", *c.NumFeatures)
	}
	if c.NumKNN != nil && *c.NumKNN < 1 {
		return fmt.Errorf("num_knn must be positive, got %d", *c.NumKNN)
	}
	if c.Workers != nil && *c.Workers < 0 {
		return fmt.Errorf("workers must be non-negative, got %d", *c.Workers)
	}
	if c.Timeout != nil && *c.Timeout != "" {
		if _, err := time.ParseDuration(*c.Timeout); err != nil {
			return fmt.Errorf("invalid timeout '%s': %w", *c.Timeout, err)
		}
	}
	if c.MsBefore != nil && *c.MsBefore < 0 {
		return fmt.Errorf("ms_before must be non-negative, got %f", *c.MsBefore)
	}
	if c.MsAfter != nil && *c.MsAfter < 0 {
		return fmt.Errorf("ms_after must be non-negative, got %f", *c.MsAfter)
	}
	if c.ThresholdSign != nil && !thresholdSigns[*c.ThresholdSign] {
		return fmt.Errorf("threshold_sign must be one of less, less_or_equal, greater, greater_or_equal, got %q", *c.ThresholdSign)
	}
	if c.ClusteringBandwidth != nil && *c.ClusteringBandwidth <= 0 {
		return fmt.Errorf("clustering_bandwidth must be positive, got %f", *c.ClusteringBandwidth)
	}
	if c.ClusteringSubset != nil && *c.ClusteringSubset < 1 {
		return fmt.Errorf("clustering_subset must be positive, got %d", *c.ClusteringSubset)
	}
	if c.LeftCutoutTime != nil && *c.LeftCutoutTime < 0 {
		return fmt.Errorf("left_cutout_time must be non-negative, got %f", *c.LeftCutoutTime)
	}
	if c.RightCutoutTime != nil && *c.RightCutoutTime < 0 {
		return fmt.Errorf("right_cutout_time must be non-negative, got %f", *c.RightCutoutTime)
	}
	for _, ch := range c.ProbeMaskedChannels {
		if ch < 0 {
			return fmt.Errorf("probe_masked_channels entries must be non-negative, got %d", ch)
		}
	}
	return nil
}

// GetMaxSpikesPerUnitForNoiseOverlap returns the noise pool size or the default.
func (c *MetricsConfig) GetMaxSpikesPerUnitForNoiseOverlap() int {
	if c.MaxSpikesPerUnitForNoiseOverlap == nil {
		return 1000
	}
	return *c.MaxSpikesPerUnitForNoiseOverlap
}

// GetNumFeatures returns the num_features value or the default.
func (c *MetricsConfig) GetNumFeatures() int {
	if c.NumFeatures == nil {
		return 10
	}
	return *c.NumFeatures
}

// GetNumKNN returns the num_knn value or the default.
func (c *MetricsConfig) GetNumKNN() int {
	if c.NumKNN == nil {
		return 6
	}
	return *c.NumKNN
}

// GetSeed returns the seed and whether one was configured.
func (c *MetricsConfig) GetSeed() (uint64, bool) {
	if c.Seed == nil {
		return 0, false
	}
	return *c.Seed, true
}

// GetSavePropertyOrFeatures returns the save_property_or_features value or the default.
func (c *MetricsConfig) GetSavePropertyOrFeatures() bool {
	if c.SavePropertyOrFeatures == nil {
		return false
	}
	return *c.SavePropertyOrFeatures
}

// GetWorkers returns the workers value or the default.
func (c *MetricsConfig) GetWorkers() int {
	if c.Workers == nil {
		return 1
	}
	return *c.Workers
}

// GetTimeout parses and returns the Timeout. Zero means no timeout.
func (c *MetricsConfig) GetTimeout() time.Duration {
	if c.Timeout == nil || *c.Timeout == "" {
		return 0
	}
	d, err := time.ParseDuration(*c.Timeout)
	if err != nil {
		return 0
	}
	return d
}

// GetMsBefore returns the ms_before value or the default.
func (c *MetricsConfig) GetMsBefore() float64 {
	if c.MsBefore == nil {
		return 1.0
	}
	return *c.MsBefore
}

// GetMsAfter returns the ms_after value or the default.
func (c *MetricsConfig) GetMsAfter() float64 {
	if c.MsAfter == nil {
		return 1.0
	}
	return *c.MsAfter
}

// GetThreshold returns the curation threshold and whether one was configured.
func (c *MetricsConfig) GetThreshold() (float64, bool) {
	if c.Threshold == nil {
		return 0, false
	}
	return *c.Threshold, true
}

// GetThresholdSign returns the threshold_sign value or the default.
func (c *MetricsConfig) GetThresholdSign() string {
	if c.ThresholdSign == nil {
		return "greater"
	}
	return *c.ThresholdSign
}

// GetClusteringBandwidth returns the clustering_bandwidth value or the default.
func (c *MetricsConfig) GetClusteringBandwidth() float64 {
	if c.ClusteringBandwidth == nil {
		return 6.0
	}
	return *c.ClusteringBandwidth
}

// GetClusteringAlpha returns the clustering_alpha value or the default.
func (c *MetricsConfig) GetClusteringAlpha() float64 {
	if c.ClusteringAlpha == nil {
		return 6.0
	}
	return *c.ClusteringAlpha
}

// GetClusteringNJobs returns the clustering_n_jobs value or the default (-1, all cores).
func (c *MetricsConfig) GetClusteringNJobs() int {
	if c.ClusteringNJobs == nil {
		return -1
	}
	return *c.ClusteringNJobs
}

// GetClusteringBinSeeding returns the clustering_bin_seeding value or the default.
func (c *MetricsConfig) GetClusteringBinSeeding() bool {
	if c.ClusteringBinSeeding == nil {
		return false
	}
	return *c.ClusteringBinSeeding
}

// GetClusteringSubset returns the clustering_subset value; 0 means all spikes.
func (c *MetricsConfig) GetClusteringSubset() int {
	if c.ClusteringSubset == nil {
		return 0
	}
	return *c.ClusteringSubset
}

// GetLeftCutoutTime returns the left_cutout_time value or the default.
func (c *MetricsConfig) GetLeftCutoutTime() float64 {
	if c.LeftCutoutTime == nil {
		return 1.0
	}
	return *c.LeftCutoutTime
}

// GetRightCutoutTime returns the right_cutout_time value or the default.
func (c *MetricsConfig) GetRightCutoutTime() float64 {
	if c.RightCutoutTime == nil {
		return 2.2
	}
	return *c.RightCutoutTime
}

// GetDetectionThreshold returns the detection_threshold value or the default.
func (c *MetricsConfig) GetDetectionThreshold() int {
	if c.DetectionThreshold == nil {
		return 20
	}
	return *c.DetectionThreshold
}

// GetDBPath returns the db_path value; empty disables persistence.
func (c *MetricsConfig) GetDBPath() string {
	if c.DBPath == nil {
		return ""
	}
	return *c.DBPath
}

// GetReportDir returns the report_dir value; empty disables reports.
func (c *MetricsConfig) GetReportDir() string {
	if c.ReportDir == nil {
		return ""
	}
	return *c.ReportDir
}
