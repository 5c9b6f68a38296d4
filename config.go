package treecorr

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"runtime"

	"gonum.org/v1/gonum/spatial/r3"
	"gopkg.in/yaml.v3"
)

// SortMode controls whether triangle vertices are reordered so that the
// opposite sides satisfy d1 >= d2 >= d3.
type SortMode string

const (
	// SortAuto sorts when all three kinds are the same and keeps the
	// caller's vertex order otherwise.
	SortAuto SortMode = "auto"
	// SortAlways collapses the six orderings of a triangle into one bin.
	SortAlways SortMode = "sorted"
	// SortNever keeps vertex roles fixed by the order of the input trees.
	SortNever SortMode = "unsorted"
)

// Config controls binning, approximation and execution of a correlation.
// Start with [DefaultConfig] and override the fields you need.
type Config struct {
	// MinSep and MaxSep bound the separations that are binned. NBins
	// logarithmic bins cover [MinSep, MaxSep). Defaults: 1, 100, 10.
	MinSep float64 `yaml:"min_sep"`
	MaxSep float64 `yaml:"max_sep"`
	NBins  int     `yaml:"nbins"`

	// B is the opening-angle tolerance: a cell is treated as a point when its
	// size is at most B times its separation from the other side. 0 means
	// exact. Default: 0.1.
	B float64 `yaml:"b"`

	// BinSlop, when positive, overrides B, BU and BV with BinSlop times the
	// respective bin width. Default: 0.
	BinSlop float64 `yaml:"bin_slop"`

	// MinRpar and MaxRpar restrict the line-of-sight separation. Both zero
	// disables the window; use ±Inf for an open side. A window needs a metric
	// with a line of sight (Rperp): other metrics are rejected with
	// ErrUnsupportedMetric rather than ignoring the window, and triangle
	// engines reject any window with ErrInvalidBinning.
	MinRpar float64 `yaml:"min_rpar"`
	MaxRpar float64 `yaml:"max_rpar"`

	// Triangle shape bins: u = d3/d2 on [MinU, MaxU] and v = ±(d1-d2)/d3 on
	// [MinV, MaxV]. BU and BV are the tolerances on u and v. Defaults: 10 u
	// bins on [0, 1], 10 v bins on [-1, 1], BU = BV = 0.1.
	NUBins int     `yaml:"nubins"`
	MinU   float64 `yaml:"min_u"`
	MaxU   float64 `yaml:"max_u"`
	BU     float64 `yaml:"bu"`
	NVBins int     `yaml:"nvbins"`
	MinV   float64 `yaml:"min_v"`
	MaxV   float64 `yaml:"max_v"`
	BV     float64 `yaml:"bv"`

	// Sort selects canonical triangle ordering. Default: SortAuto.
	Sort SortMode `yaml:"sort"`

	// NRegions is the number of resampling regions; points carry their region
	// index. 0 disables replicas. Default: 0.
	NRegions int `yaml:"nregions"`

	// Workers is the number of goroutines. 0 means runtime.NumCPU().
	Workers int `yaml:"workers"`

	// MaxTop is the depth below the root at which trees are cut into
	// independent units of parallel work. Default: 4.
	MaxTop int `yaml:"max_top"`

	// MetricName selects a built-in metric: "Flat", "Euclidean", "Sphere",
	// "Rperp" or "Periodic". Ignored when Metric is set. Default: "Flat".
	MetricName string `yaml:"metric"`
	Metric     Metric `yaml:"-"`

	// Period gives the box lengths along x, y and z for the "Periodic"
	// metric. Missing or zero components leave that axis unwrapped.
	Period []float64 `yaml:"period"`

	// Tree controls how BuildTreeFor partitions catalogs.
	Tree TreeConfig `yaml:"tree"`

	// ShearRule combines three spin-2 values. Default: NaturalComponents.
	ShearRule ShearRule `yaml:"-"`

	// Logger receives debug progress messages. Default: discard.
	Logger *slog.Logger `yaml:"-"`
}

// DefaultConfig returns a Config with reasonable defaults.
func DefaultConfig() Config {
	return Config{
		MinSep:     1,
		MaxSep:     100,
		NBins:      10,
		B:          0.1,
		NUBins:     10,
		MaxU:       1,
		BU:         0.1,
		NVBins:     10,
		MinV:       -1,
		MaxV:       1,
		BV:         0.1,
		Sort:       SortAuto,
		MaxTop:     4,
		MetricName: "Flat",
	}
}

// LoadConfig decodes a YAML document on top of DefaultConfig. Unknown keys
// are rejected.
func LoadConfig(r io.Reader) (Config, error) {
	cfg := DefaultConfig()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("treecorr: decoding config: %w", err)
	}
	check := cfg
	applyDefaults(&check)
	if err := validateConfig(&check); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applyDefaults fills in zero-valued config fields with their defaults.
func applyDefaults(cfg *Config) {
	if cfg.NUBins == 0 {
		cfg.NUBins = 10
	}
	if cfg.MinU == 0 && cfg.MaxU == 0 {
		cfg.MaxU = 1
	}
	if cfg.NVBins == 0 {
		cfg.NVBins = 10
	}
	if cfg.MinV == 0 && cfg.MaxV == 0 {
		cfg.MinV, cfg.MaxV = -1, 1
	}
	if cfg.MinRpar == 0 && cfg.MaxRpar == 0 {
		cfg.MinRpar, cfg.MaxRpar = math.Inf(-1), math.Inf(1)
	}
	if cfg.Sort == "" {
		cfg.Sort = SortAuto
	}
	if cfg.Workers == 0 {
		cfg.Workers = runtime.NumCPU()
	}
	if cfg.Metric == nil {
		if m, err := cfg.namedMetric(); err == nil {
			cfg.Metric = m
		}
	}
	if cfg.ShearRule == nil {
		cfg.ShearRule = NaturalComponents
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
}

// validateConfig checks that cfg fields are valid and returns a descriptive error if not.
func validateConfig(cfg *Config) error {
	if cfg.Metric == nil {
		_, err := cfg.namedMetric()
		return err
	}
	if cfg.BinSlop < 0 {
		return fmt.Errorf("%w: BinSlop must be >= 0, got %g", ErrInvalidBinning, cfg.BinSlop)
	}
	if cfg.NRegions < 0 {
		return fmt.Errorf("treecorr: NRegions must be >= 0, got %d", cfg.NRegions)
	}
	if cfg.Workers < 0 {
		return fmt.Errorf("treecorr: Workers must be >= 0, got %d", cfg.Workers)
	}
	if cfg.MaxTop < 0 {
		return fmt.Errorf("treecorr: MaxTop must be >= 0, got %d", cfg.MaxTop)
	}
	switch cfg.Sort {
	case SortAuto, SortAlways, SortNever:
	default:
		return fmt.Errorf("treecorr: invalid Sort %q", cfg.Sort)
	}
	if _, err := cfg.triangleBinning(); err != nil {
		return err
	}
	return nil
}

// namedMetric resolves MetricName, taking the box of the periodic metric
// from Period.
func (cfg *Config) namedMetric() (Metric, error) {
	if cfg.MetricName != "Periodic" {
		return MetricByName(cfg.MetricName)
	}
	if len(cfg.Period) == 0 || len(cfg.Period) > 3 {
		return nil, fmt.Errorf("%w: Periodic needs 1 to 3 period lengths, got %d",
			ErrUnsupportedMetric, len(cfg.Period))
	}
	var box [3]float64
	for i, l := range cfg.Period {
		if !(l >= 0) || math.IsInf(l, 1) {
			return nil, fmt.Errorf("%w: invalid period %g", ErrUnsupportedMetric, l)
		}
		box[i] = l
	}
	return Periodic{Period: r3.Vec{X: box[0], Y: box[1], Z: box[2]}}, nil
}

// binning builds the radial bins, applying BinSlop.
func (cfg *Config) binning() (Binning, error) {
	b := cfg.B
	if cfg.BinSlop > 0 && cfg.NBins > 0 && cfg.MinSep > 0 && cfg.MaxSep > 0 {
		b = cfg.BinSlop * (math.Log(cfg.MaxSep) - math.Log(cfg.MinSep)) / float64(cfg.NBins)
	}
	return NewBinning(cfg.MinSep, cfg.MaxSep, cfg.NBins, b, cfg.MinRpar, cfg.MaxRpar)
}

// triangleBinning builds the radial and shape bins, applying BinSlop.
func (cfg *Config) triangleBinning() (TriangleBinning, error) {
	radial, err := cfg.binning()
	if err != nil {
		return TriangleBinning{}, err
	}
	bu, bv := cfg.BU, cfg.BV
	if cfg.BinSlop > 0 && cfg.NUBins > 0 && cfg.NVBins > 0 {
		bu = cfg.BinSlop * (cfg.MaxU - cfg.MinU) / float64(cfg.NUBins)
		bv = cfg.BinSlop * (cfg.MaxV - cfg.MinV) / float64(cfg.NVBins)
	}
	return NewTriangleBinning(radial, cfg.MinU, cfg.MaxU, cfg.NUBins, bu, cfg.MinV, cfg.MaxV, cfg.NVBins, bv)
}

// prepare applies defaults, validates and returns the ready-to-use config.
func prepare(cfg Config) (Config, error) {
	applyDefaults(&cfg)
	if err := validateConfig(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// BuildTreeFor builds a tree with the metric and tree settings of cfg, so
// that it can be processed by engines built from the same config.
func BuildTreeFor(points []Point, cfg Config) (*Tree, error) {
	cfg, err := prepare(cfg)
	if err != nil {
		return nil, err
	}
	return BuildTree(points, cfg.Metric, cfg.Tree)
}
