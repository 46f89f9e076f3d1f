// Command noise-overlap scores sorted units against background noise and
// optionally curates, records and plots the result.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"math"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/banshee-data/spike.metrics/internal/config"
	"github.com/banshee-data/spike.metrics/internal/curation"
	"github.com/banshee-data/spike.metrics/internal/ephys"
	"github.com/banshee-data/spike.metrics/internal/fsutil"
	"github.com/banshee-data/spike.metrics/internal/quality"
	"github.com/banshee-data/spike.metrics/internal/report"
	"github.com/banshee-data/spike.metrics/internal/sorter"
	"github.com/banshee-data/spike.metrics/internal/store"
	"github.com/banshee-data/spike.metrics/internal/version"
)

var (
	configPath   = flag.String("config", "", "JSON config file (built-in defaults when empty)")
	synthetic    = flag.Bool("synthetic", false, "Score a generated recording with one large unit and one noise unit")
	rawPath      = flag.String("raw", "", "Headerless little-endian float32 recording, frames interleaved")
	numChannels  = flag.Int("channels", 0, "Channel count of -raw")
	sampleRate   = flag.Float64("fs", 30000, "Sampling frequency of -raw in Hz")
	spikesPath   = flag.String("spikes", "", "Spike trains CSV with unit_id,frame rows")
	sorterOutput = flag.String("sorter-output", "", "Load spike trains from a sorter output directory instead of -spikes")
	seed         = flag.Int64("seed", -1, "Random seed; negative falls back to the config, then to a random seed")
	workers      = flag.Int("workers", 0, "Units scored concurrently; 0 uses the config")
	threshold    = flag.String("threshold", "", "Exclude units whose score matches -sign against this value")
	sign         = flag.String("sign", "", "Threshold comparison: less, less_or_equal, greater, greater_or_equal")
	dbPath       = flag.String("db", "", "SQLite database to record the run in")
	reportDir    = flag.String("report", "", "Directory for CSV, PNG and HTML reports")
	curatedPath  = flag.String("curated", "", "Write the curated spike trains as CSV to this file")
	listRuns     = flag.Int("list-runs", 0, "List the N most recent runs in -db and exit")
	verbose      = flag.Bool("verbose", false, "Log per-unit progress")
	trace        = flag.Bool("trace", false, "Log per-stage numeric detail")
	showVersion  = flag.Bool("version", false, "Print version and exit")
)

// options is the resolved command line.
type options struct {
	cfg *config.MetricsConfig

	synthetic    *ephys.SyntheticConfig
	rawPath      string
	numChannels  int
	sampleRate   float64
	spikesPath   string
	sorterOutput string

	seed      int64
	workers   int
	threshold string
	sign      string

	dbPath      string
	reportDir   string
	curatedPath string
	verbose     bool
}

func main() {
	flag.Parse()
	if *showVersion {
		fmt.Println(version.String("noise-overlap"))
		return
	}

	cfg := config.EmptyMetricsConfig()
	if *configPath != "" {
		var err error
		if cfg, err = config.LoadConfig(*configPath); err != nil {
			log.Fatalf("failed to load config: %v", err)
		}
	}

	logs := quality.LogWriters{Ops: os.Stderr}
	if *verbose {
		logs.Diag = os.Stderr
	}
	if *trace {
		logs.Trace = os.Stderr
	}
	quality.SetLogWriters(logs)

	o := options{
		cfg:          cfg,
		rawPath:      *rawPath,
		numChannels:  *numChannels,
		sampleRate:   *sampleRate,
		spikesPath:   *spikesPath,
		sorterOutput: *sorterOutput,
		seed:         *seed,
		workers:      *workers,
		threshold:    *threshold,
		sign:         *sign,
		dbPath:       firstNonEmpty(*dbPath, cfg.GetDBPath()),
		reportDir:    firstNonEmpty(*reportDir, cfg.GetReportDir()),
		curatedPath:  *curatedPath,
		verbose:      *verbose,
	}
	if *synthetic {
		sc := defaultSynthetic()
		o.synthetic = &sc
	}

	if *listRuns > 0 {
		if err := printRuns(os.Stdout, o.dbPath, *listRuns); err != nil {
			log.Fatalf("failed to list runs: %v", err)
		}
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, o, os.Stdout); err != nil {
		log.Fatalf("noise overlap failed: %v", err)
	}
}

// defaultSynthetic is a 4-channel recording with a +500 µV unit and a unit
// whose spikes are indistinguishable from the 10 µV noise floor.
func defaultSynthetic() ephys.SyntheticConfig {
	sc := ephys.DefaultSyntheticConfig()
	sc.Units = []ephys.SyntheticUnit{
		{ID: 1, NumSpikes: 1000, PeakAmplitude: 500, PeakChannel: 1, WidthSamples: 4, ChannelDecay: 0.5},
		{ID: 2, NumSpikes: 1000},
	}
	return sc
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}

func loadInput(o options) (ephys.Recording, ephys.Sorting, string, error) {
	if o.synthetic != nil {
		rec, sorting, err := ephys.GenerateSynthetic(*o.synthetic)
		return rec, sorting, "synthetic", err
	}
	if o.rawPath == "" {
		return nil, nil, "", errors.New("one of -synthetic or -raw is required")
	}
	rec, err := ephys.LoadRawRecording(o.rawPath, o.numChannels, o.sampleRate)
	if err != nil {
		return nil, nil, "", err
	}

	var sorting ephys.Sorting
	switch {
	case o.sorterOutput != "":
		sorting, err = sorter.CSVLoader{FS: fsutil.OSFileSystem{}}.LoadResult(o.sorterOutput)
	case o.spikesPath != "":
		var f io.ReadCloser
		if f, err = (fsutil.OSFileSystem{}).Open(o.spikesPath); err != nil {
			return nil, nil, "", err
		}
		defer f.Close()
		sorting, err = ephys.ReadSpikeTrainsCSV(f)
	default:
		return nil, nil, "", errors.New("-raw needs -spikes or -sorter-output")
	}
	if err != nil {
		return nil, nil, "", fmt.Errorf("failed to load spike trains: %w", err)
	}
	return rec, sorting, o.rawPath, nil
}

// resolveParams applies command-line overrides on top of the config.
func resolveParams(o options) quality.Params {
	p := quality.ParamsFromConfig(o.cfg)
	if o.seed >= 0 {
		p = p.WithSeed(uint64(o.seed))
	}
	if o.workers > 0 {
		p.Workers = o.workers
	}
	p.Verbose = o.verbose
	p.KeepDiagnostics = o.reportDir != ""
	return p
}

// resolveThreshold returns the threshold and sign to curate with. An empty
// sign means no curation.
func resolveThreshold(o options) (float64, curation.Sign, error) {
	t, ok := o.cfg.GetThreshold()
	if o.threshold != "" {
		v, err := strconv.ParseFloat(o.threshold, 64)
		if err != nil {
			return 0, "", fmt.Errorf("invalid -threshold %q: %w", o.threshold, err)
		}
		t, ok = v, true
	}
	if !ok {
		return 0, "", nil
	}
	s, err := curation.ParseSign(firstNonEmpty(o.sign, o.cfg.GetThresholdSign()))
	if err != nil {
		return 0, "", err
	}
	return t, s, nil
}

// runParams is the JSON recorded with each stored run.
type runParams struct {
	MaxSpikesPerUnit int           `json:"max_spikes_per_unit_for_noise_overlap"`
	NumFeatures      int           `json:"num_features"`
	NumKNN           int           `json:"num_knn"`
	Seed             *uint64       `json:"seed,omitempty"`
	MsBefore         float64       `json:"ms_before"`
	MsAfter          float64       `json:"ms_after"`
	Workers          int           `json:"workers"`
	Threshold        *float64      `json:"threshold,omitempty"`
	Sign             curation.Sign `json:"threshold_sign,omitempty"`
	Version          string        `json:"version"`
}

func run(ctx context.Context, o options, stdout io.Writer) error {
	if err := o.cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	rec, sorting, name, err := loadInput(o)
	if err != nil {
		return err
	}
	p := resolveParams(o)
	t, s, err := resolveThreshold(o)
	if err != nil {
		return err
	}
	if o.curatedPath != "" && s == "" {
		return errors.New("-curated needs a threshold")
	}

	if timeout := o.cfg.GetTimeout(); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	m, err := quality.NewNoiseOverlap(quality.MetricData{Recording: rec, Sorting: sorting})
	if err != nil {
		return err
	}
	start := time.Now()
	var res *quality.Result
	var curator *curation.ThresholdCurator
	if s != "" {
		curator, res, err = m.Threshold(ctx, p, t, s)
	} else {
		res, err = m.Compute(ctx, p)
	}
	if err != nil {
		return err
	}
	log.Printf("scored %d units in %v", len(res.UnitIDs), time.Since(start).Round(time.Millisecond))

	if err := printScores(stdout, res, curator); err != nil {
		return err
	}

	if o.dbPath != "" {
		rp := runParams{
			MaxSpikesPerUnit: p.MaxSpikesPerUnit,
			NumFeatures:      p.NumFeatures,
			NumKNN:           p.NumKNN,
			Seed:             p.Seed,
			MsBefore:         p.Waveforms.MsBefore,
			MsAfter:          p.Waveforms.MsAfter,
			Workers:          p.Workers,
			Version:          version.Version,
		}
		if s != "" {
			rp.Threshold, rp.Sign = &t, s
		}
		runID, err := saveRun(o.dbPath, name, rp, res)
		if err != nil {
			return fmt.Errorf("failed to record run: %w", err)
		}
		fmt.Fprintf(stdout, "run %s recorded in %s\n", runID, o.dbPath)
	}

	if o.reportDir != "" {
		written, err := report.NewWriter(o.reportDir).WriteAll(res, report.Options{Title: "Noise overlap: " + name, Threshold: t, Sign: s})
		if err != nil {
			return fmt.Errorf("failed to write report: %w", err)
		}
		for _, path := range written {
			fmt.Fprintf(stdout, "wrote %s\n", path)
		}
	}

	if o.curatedPath != "" {
		if err := writeCurated(fsutil.OSFileSystem{}, o.curatedPath, curator); err != nil {
			return fmt.Errorf("failed to write curated sorting: %w", err)
		}
		fmt.Fprintf(stdout, "wrote %s\n", o.curatedPath)
	}
	return nil
}

func printScores(w io.Writer, res *quality.Result, curator *curation.ThresholdCurator) error {
	failed := make(map[ephys.UnitID]error, len(res.Failures))
	for _, f := range res.Failures {
		failed[f.UnitID] = f.Err
	}
	excluded := make(map[ephys.UnitID]bool)
	if curator != nil {
		for _, id := range curator.Excluded() {
			excluded[id] = true
		}
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "UNIT\tNOISE_OVERLAP\tSTATUS")
	for i, id := range res.UnitIDs {
		score, status := "-", "ok"
		if v := res.Scores[i]; !math.IsNaN(v) {
			score = strconv.FormatFloat(v, 'f', 4, 64)
		}
		switch {
		case failed[id] != nil:
			status = "failed: " + failed[id].Error()
		case excluded[id]:
			status = "excluded"
		case curator != nil:
			status = "kept"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\n", id, score, status)
	}
	return tw.Flush()
}

func saveRun(path, recording string, rp runParams, res *quality.Result) (string, error) {
	st, err := store.Open(path)
	if err != nil {
		return "", err
	}
	defer st.Close()

	paramsJSON, err := json.Marshal(rp)
	if err != nil {
		return "", err
	}
	errs := make(map[ephys.UnitID]string, len(res.Failures))
	for _, f := range res.Failures {
		errs[f.UnitID] = f.Err.Error()
	}
	values := make([]store.UnitValue, len(res.UnitIDs))
	for i, id := range res.UnitIDs {
		values[i] = store.UnitValue{UnitID: int(id), Value: res.Scores[i], Error: errs[id]}
	}
	r := &store.Run{Metric: quality.NoiseOverlapProperty, Recording: recording, ParamsJSON: paramsJSON}
	if err := st.InsertRun(r, values); err != nil {
		return "", err
	}
	return r.RunID, nil
}

func writeCurated(fs fsutil.FileSystem, path string, curator *curation.ThresholdCurator) error {
	f, err := fs.Create(path)
	if err != nil {
		return err
	}
	if err := ephys.WriteSpikeTrainsCSV(f, curator); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func printRuns(w io.Writer, path string, limit int) error {
	if path == "" {
		return errors.New("-list-runs needs -db")
	}
	st, err := store.Open(path)
	if err != nil {
		return err
	}
	defer st.Close()

	runs, err := st.ListRuns(limit)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tCREATED\tMETRIC\tRECORDING\tUNITS\tFAILED")
	for _, r := range runs {
		created := time.Unix(0, r.CreatedAt).UTC().Format(time.RFC3339)
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\n", r.RunID, created, r.Metric, r.Recording, r.NumUnits, r.NumFailed)
	}
	return tw.Flush()
}
