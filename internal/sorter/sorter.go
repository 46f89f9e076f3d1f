package sorter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"path/filepath"
	"time"

	"github.com/banshee-data/spike.metrics/internal/ephys"
	"github.com/banshee-data/spike.metrics/internal/fsutil"
	"github.com/banshee-data/spike.metrics/internal/timeutil"
)

// SortedFileName is the file the engine writes sorted spike trains to,
// relative to the output directory.
const SortedFileName = "sorted_spikes.csv"

var (
	// ErrMissingEngine is returned by Run when no Engine is configured.
	ErrMissingEngine = errors.New("sorter: no engine configured")

	// ErrGeometryMismatch is returned when the geometry does not cover every channel.
	ErrGeometryMismatch = errors.New("sorter: geometry does not match channel count")
)

// Input is what the engine sorts: a recording, one (x, y) position per
// channel in µm, and the sorter parameters.
type Input struct {
	Recording ephys.Recording
	Geometry  [][2]float64
	Params    Params
}

// DetectSettings are the detection arguments passed to the engine.
type DetectSettings struct {
	LeftCutoutTime  float64
	RightCutoutTime float64
	Threshold       int
	Extra           DetectionParams
}

// ClusterSettings are the clustering arguments passed to the engine.
type ClusterSettings struct {
	Bandwidth  float64
	Alpha      float64
	NJobs      int
	BinSeeding bool
	Subset     int // 0 clusters every spike
}

// Engine is the external sorting engine. Calls arrive in the order
// SetupProbe, Detect, ShapePCA, Cluster, Save. ShapePCA and Cluster are
// skipped when Detect finds no spikes; Save is always called.
type Engine interface {
	SetupProbe(ctx context.Context, rec ephys.Recording, geometry [][2]float64, masked []int, p ProbeParams) error
	Detect(ctx context.Context, outputDir string, s DetectSettings) (numSpikes int, err error)
	ShapePCA(ctx context.Context, p PCAParams) error
	Cluster(ctx context.Context, s ClusterSettings) error
	Save(ctx context.Context, path string) error
}

// ResultLoader reads the sorted output left in an output directory.
type ResultLoader interface {
	LoadResult(outputDir string) (ephys.Sorting, error)
}

// Output describes a completed run.
type Output struct {
	Dir        string
	SortedPath string
	NumSpikes  int
	Clustered  bool
	Elapsed    time.Duration
}

// Sorter runs an Engine and loads its results.
type Sorter struct {
	Engine Engine
	Loader ResultLoader
	FS     fsutil.FileSystem
	Logger *log.Logger
	Clock  timeutil.Clock
}

// New returns a Sorter that writes to the OS filesystem and reads results
// back with a CSVLoader.
func New(engine Engine) *Sorter {
	fs := fsutil.OSFileSystem{}
	return &Sorter{
		Engine: engine,
		Loader: CSVLoader{FS: fs},
		FS:     fs,
		Logger: log.New(io.Discard, "", 0),
		Clock:  timeutil.RealClock{},
	}
}

func (s *Sorter) logf(format string, args ...interface{}) {
	if s.Logger != nil {
		s.Logger.Printf("[sorter] "+format, args...)
	}
}

// Run sorts in.Recording into outputDir.
func (s *Sorter) Run(ctx context.Context, in Input, outputDir string) (*Output, error) {
	if s.Engine == nil {
		return nil, ErrMissingEngine
	}
	if in.Recording == nil {
		return nil, errors.New("sorter: input must have a recording")
	}
	nch := in.Recording.NumChannels()
	if err := in.Params.Validate(nch); err != nil {
		return nil, err
	}
	if in.Geometry != nil && len(in.Geometry) != nch {
		return nil, fmt.Errorf("%w: %d positions for %d channels", ErrGeometryMismatch, len(in.Geometry), nch)
	}
	fs := s.FS
	if fs == nil {
		fs = fsutil.OSFileSystem{}
	}
	if err := fs.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	clock := s.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	start := clock.Now()
	p := in.Params
	if err := s.Engine.SetupProbe(ctx, in.Recording, in.Geometry, p.ProbeMaskedChannels, p.Probe); err != nil {
		return nil, fmt.Errorf("setup probe: %w", err)
	}
	n, err := s.Engine.Detect(ctx, outputDir, DetectSettings{
		LeftCutoutTime:  p.LeftCutoutTime,
		RightCutoutTime: p.RightCutoutTime,
		Threshold:       p.DetectionThreshold,
		Extra:           p.Detection,
	})
	if err != nil {
		return nil, fmt.Errorf("detect: %w", err)
	}
	s.logf("detected %d spikes on %d channels (%d masked)", n, nch, len(p.ProbeMaskedChannels))

	out := &Output{Dir: outputDir, SortedPath: filepath.Join(outputDir, SortedFileName), NumSpikes: n}
	if n > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := s.Engine.ShapePCA(ctx, p.PCA); err != nil {
			return nil, fmt.Errorf("shape pca: %w", err)
		}
		if err := s.Engine.Cluster(ctx, ClusterSettings{
			Bandwidth:  p.ClusteringBandwidth,
			Alpha:      p.ClusteringAlpha,
			NJobs:      p.ClusteringNJobs,
			BinSeeding: p.ClusteringBinSeeding,
			Subset:     p.ClusteringSubset,
		}); err != nil {
			return nil, fmt.Errorf("cluster: %w", err)
		}
		out.Clustered = true
	} else {
		s.logf("no spikes detected, skipping clustering")
	}

	if err := s.Engine.Save(ctx, out.SortedPath); err != nil {
		return nil, fmt.Errorf("save: %w", err)
	}
	out.Elapsed = clock.Since(start)
	s.logf("sorted into %s in %v", out.SortedPath, out.Elapsed)
	return out, nil
}

// RunAndLoad runs the engine and loads the sorted result.
func (s *Sorter) RunAndLoad(ctx context.Context, in Input, outputDir string) (ephys.Sorting, *Output, error) {
	out, err := s.Run(ctx, in, outputDir)
	if err != nil {
		return nil, nil, err
	}
	if s.Loader == nil {
		return nil, out, errors.New("sorter: no result loader configured")
	}
	sorting, err := s.Loader.LoadResult(outputDir)
	if err != nil {
		return nil, out, fmt.Errorf("load result: %w", err)
	}
	return sorting, out, nil
}

// CSVLoader reads SortedFileName as "unit_id,frame" rows.
type CSVLoader struct {
	FS fsutil.FileSystem
}

// LoadResult implements ResultLoader.
func (l CSVLoader) LoadResult(outputDir string) (ephys.Sorting, error) {
	fs := l.FS
	if fs == nil {
		fs = fsutil.OSFileSystem{}
	}
	f, err := fs.Open(filepath.Join(outputDir, SortedFileName))
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ephys.ReadSpikeTrainsCSV(f)
}
