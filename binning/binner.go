package binning

import (
	"context"
	"fmt"
	"math"

	"github.com/YuminosukeSato/ebmgo/core/native"
	"github.com/YuminosukeSato/ebmgo/core/parallel"
	"github.com/YuminosukeSato/ebmgo/pkg/errors"
	"github.com/YuminosukeSato/ebmgo/pkg/log"
)

// FeatureType is the declared type of a feature column.
type FeatureType string

const (
	TypeContinuous FeatureType = "continuous"
	TypeNominal    FeatureType = "nominal"
	TypeOrdinal    FeatureType = "ordinal"
)

// IsCategorical reports whether the type is nominal or ordinal.
func (t FeatureType) IsCategorical() bool { return t == TypeNominal || t == TypeOrdinal }

// Validate rejects unknown feature types.
func (t FeatureType) Validate() error {
	switch t {
	case TypeContinuous, TypeNominal, TypeOrdinal:
		return nil
	default:
		return errors.NewValidationError("feature_type", "must be continuous, nominal or ordinal", string(t))
	}
}

// Column is one raw feature. Continuous columns fill Numeric (NaN = missing);
// nominal and ordinal columns fill Categorical ("" = missing).
type Column struct {
	Name        string
	Type        FeatureType
	Numeric     []float64
	Categorical []string
	// Order lists ordinal levels from lowest to highest.
	Order []string
}

// Len returns the number of samples in the column.
func (c *Column) Len() int {
	if c.Type.IsCategorical() {
		return len(c.Categorical)
	}
	return len(c.Numeric)
}

// Method selects how continuous cuts are chosen.
type Method string

const (
	MethodQuantile          Method = "quantile"
	MethodQuantileHumanized Method = "quantile_humanized"
	MethodUniform           Method = "uniform"
	MethodPrivate           Method = "private"
)

// Validate rejects unknown methods.
func (m Method) Validate() error {
	switch m {
	case MethodQuantile, MethodQuantileHumanized, MethodUniform, MethodPrivate:
		return nil
	default:
		return errors.NewValidationError("binning", "must be quantile, quantile_humanized, uniform or private", string(m))
	}
}

// Config configures a Binner.
type Config struct {
	Method Method
	// MaxBins holds the bin budget of every level, missing bin included.
	// Private binning uses the first level only.
	MaxBins       []int
	MinSamplesBin int
	// NoiseScale is the Gaussian noise standard deviation for private binning.
	NoiseScale float64
	// Bounds are public [min, max] ranges keyed by feature index.
	Bounds map[int][2]float64
	// Workers bounds concurrency for non-private binning.
	Workers int
}

// FeatureBins is the binning outcome of one feature.
type FeatureBins struct {
	Name   string
	Type   FeatureType
	Levels Levels
	// BinCounts holds the weight of every level-0 bin, missing bin first.
	// Under private binning these are noisy.
	BinCounts   []float64
	Histogram   *Histogram
	Bounds      *[2]float64
	UniqueCount *int
	ZeroCount   *int
}

// Binner fits bin definitions for a set of columns.
type Binner struct {
	cfg    Config
	nc     *native.Context
	logger log.Logger
}

// NewBinner validates cfg before any data is touched.
func NewBinner(cfg Config, nc *native.Context) (*Binner, error) {
	if err := cfg.Method.Validate(); err != nil {
		return nil, err
	}
	if len(cfg.MaxBins) == 0 {
		return nil, errors.NewValidationError("max_bins", "at least one level is required", cfg.MaxBins)
	}
	for _, mb := range cfg.MaxBins {
		if mb < 2 {
			return nil, errors.NewValidationError("max_bins", "must be at least 2", mb)
		}
	}
	if cfg.Method == MethodPrivate {
		if nc == nil {
			return nil, errors.NewValidationError("context", "private binning needs a randomness context", nil)
		}
		if cfg.NoiseScale < 0 || math.IsNaN(cfg.NoiseScale) {
			return nil, errors.NewValidationError("noise_scale", "must be non-negative", cfg.NoiseScale)
		}
	}
	if cfg.MinSamplesBin < 1 {
		cfg.MinSamplesBin = 1
	}
	return &Binner{cfg: cfg, nc: nc, logger: log.GetLoggerWithName("binning")}, nil
}

// Fit bins every column. weights may be nil.
func (b *Binner) Fit(ctx context.Context, cols []*Column, weights []float64) ([]*FeatureBins, error) {
	if len(cols) == 0 {
		return nil, errors.ErrEmptyData
	}
	n := cols[0].Len()
	for i, c := range cols {
		if err := c.Type.Validate(); err != nil {
			return nil, err
		}
		if c.Len() != n {
			return nil, errors.NewDimensionError(fmt.Sprintf("Fit(%s)", c.Name), n, c.Len(), 0)
		}
		if c.Type == TypeOrdinal && len(c.Order) == 0 {
			return nil, errors.NewValidationError(cols[i].Name, "ordinal feature needs an explicit order", nil)
		}
	}
	if weights != nil && len(weights) != n {
		return nil, errors.NewDimensionError("Fit(sample_weight)", n, len(weights), 0)
	}

	b.logger.Debug("binning features",
		log.OperationKey, "bin",
		log.FeaturesKey, len(cols),
		log.SamplesKey, n,
	)

	if b.cfg.Method == MethodPrivate {
		out := make([]*FeatureBins, len(cols))
		for i, c := range cols {
			fb, err := b.fitPrivate(i, c, weights)
			if err != nil {
				return nil, errors.Wrapf(err, "bin feature %q", c.Name)
			}
			out[i] = fb
		}
		return out, nil
	}

	return parallel.Map(ctx, b.cfg.Workers, len(cols), func(_ context.Context, i int) (*FeatureBins, error) {
		fb, err := b.fitFeature(cols[i], weights)
		if err != nil {
			return nil, errors.Wrapf(err, "bin feature %q", cols[i].Name)
		}
		return fb, nil
	})
}

func (b *Binner) fitFeature(c *Column, weights []float64) (*FeatureBins, error) {
	fb := &FeatureBins{Name: c.Name, Type: c.Type}
	if c.Type.IsCategorical() {
		var def *Categorical
		if c.Type == TypeOrdinal {
			var err error
			if def, err = OrdinalMapping(c.Order); err != nil {
				return nil, err
			}
		} else {
			def = NominalMapping(c.Categorical)
		}
		fb.Levels = Levels{def}
		counts, err := CountBins(DiscretizeCategorical(def, c.Categorical), def.NumBins(), weights)
		if err != nil {
			return nil, err
		}
		fb.BinCounts = counts
		return fb, nil
	}

	for _, mb := range b.cfg.MaxBins {
		var cuts []float64
		switch b.cfg.Method {
		case MethodQuantile:
			cuts = CutQuantile(c.Numeric, b.cfg.MinSamplesBin, false, mb-2)
		case MethodQuantileHumanized:
			cuts = CutQuantile(c.Numeric, b.cfg.MinSamplesBin, true, mb-2)
		case MethodUniform:
			cuts = CutUniform(c.Numeric, mb-2)
		default:
			return nil, errors.NewValidationError("binning", "unsupported method", string(b.cfg.Method))
		}
		fb.Levels = append(fb.Levels, &Continuous{Cuts: cuts})
	}
	main := fb.Levels[0].(*Continuous)
	counts, err := CountBins(DiscretizeNumeric(main, c.Numeric), main.NumBins(), weights)
	if err != nil {
		return nil, err
	}
	fb.BinCounts = counts
	fb.Histogram = DoaneHistogram(c.Numeric, weights)

	uniq, _ := distinctCounts(c.Numeric)
	nu := len(uniq)
	fb.UniqueCount = &nu
	zeros := 0
	for _, v := range c.Numeric {
		if v == 0 {
			zeros++
		}
	}
	fb.ZeroCount = &zeros
	if nu > 0 {
		fb.Bounds = &[2]float64{uniq[0], uniq[nu-1]}
	}
	return fb, nil
}

func (b *Binner) fitPrivate(i int, c *Column, weights []float64) (*FeatureBins, error) {
	fb := &FeatureBins{Name: c.Name, Type: c.Type}
	maxBins := b.cfg.MaxBins[0]

	if c.Type.IsCategorical() {
		res, err := PrivateCategorical(b.nc, c.Categorical, weights, b.cfg.NoiseScale, maxBins)
		if err != nil {
			return nil, err
		}
		def := res.Mapping()
		fb.Levels = Levels{def}
		counts := make([]float64, def.NumBins())
		copy(counts[1:], res.Weights)
		fb.BinCounts = counts
		return fb, nil
	}

	bounds, ok := b.cfg.Bounds[i]
	if !ok {
		errors.Warn(errors.NewPrivacyWarning(c.Name,
			"no public bounds supplied; bounds computed from the data leak privacy"))
		lo, hi := math.Inf(1), math.Inf(-1)
		for _, v := range c.Numeric {
			if !math.IsNaN(v) {
				lo = math.Min(lo, v)
				hi = math.Max(hi, v)
			}
		}
		if math.IsInf(lo, 1) {
			lo, hi = 0, 0
		}
		bounds = [2]float64{lo, hi}
	}
	res, err := PrivateNumeric(b.nc, c.Numeric, weights, b.cfg.NoiseScale, maxBins, bounds[0], bounds[1])
	if err != nil {
		return nil, err
	}
	fb.Levels = Levels{&Continuous{Cuts: res.Cuts}}
	fb.BinCounts = res.BinWeights
	fb.Bounds = &bounds
	edges := append(append([]float64{bounds[0]}, res.Cuts...), bounds[1])
	fb.Histogram = &Histogram{Edges: edges, Counts: append([]float64(nil), res.BinWeights[1:]...)}
	return fb, nil
}
