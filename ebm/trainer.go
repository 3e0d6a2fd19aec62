package ebm

import (
	"context"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/YuminosukeSato/ebmgo/binning"
	"github.com/YuminosukeSato/ebmgo/boost"
	"github.com/YuminosukeSato/ebmgo/boost/engine"
	"github.com/YuminosukeSato/ebmgo/core/native"
	"github.com/YuminosukeSato/ebmgo/core/tensor"
	"github.com/YuminosukeSato/ebmgo/pkg/errors"
	"github.com/YuminosukeSato/ebmgo/pkg/log"
	"github.com/YuminosukeSato/ebmgo/privacy"
)

// Trainer fits models from raw columns.
type Trainer struct {
	params TrainingParams
	engine boost.Engine
	schema *privacy.Schema
	post   boost.MulticlassPostprocessor
	logger log.Logger
}

// Option configures a Trainer.
type Option func(*Trainer)

// WithEngine replaces the in-process boosting engine.
func WithEngine(e boost.Engine) Option {
	return func(t *Trainer) { t.engine = e }
}

// WithPrivacySchema supplies public feature and target bounds.
func WithPrivacySchema(s *privacy.Schema) Option {
	return func(t *Trainer) { t.schema = s }
}

// WithMulticlassPostprocessor replaces the default multiclass term
// postprocessing.
func WithMulticlassPostprocessor(p boost.MulticlassPostprocessor) Option {
	return func(t *Trainer) { t.post = p }
}

// WithLogger sets the logger.
func WithLogger(l log.Logger) Option {
	return func(t *Trainer) { t.logger = l }
}

// NewTrainer creates a trainer.
func NewTrainer(params TrainingParams, opts ...Option) *Trainer {
	t := &Trainer{
		params: params,
		engine: engine.New(),
		logger: log.GetLoggerWithName("ebm"),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Params returns the training parameters.
func (t *Trainer) Params() TrainingParams { return t.params }

// FitRegressor trains a regression model. w may be nil.
func (t *Trainer) FitRegressor(ctx context.Context, cols []*binning.Column, y, w []float64) (*Model, error) {
	for i, v := range y {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, errors.NewValidationError("y", "target must be finite", i)
		}
	}
	return t.fit(ctx, cols, y, nil, nil, w)
}

// FitClassifier trains a classification model over string labels. Classes
// are ordered as sorted distinct labels.
func (t *Trainer) FitClassifier(ctx context.Context, cols []*binning.Column, labels []string, w []float64) (*Model, error) {
	classes, idx := encodeClasses(labels)
	if len(classes) < 2 {
		return nil, errors.NewValidationError("y", "classification needs at least two classes", classes)
	}
	y := make([]float64, len(idx))
	for i, k := range idx {
		y[i] = float64(k)
	}
	return t.fit(ctx, cols, y, classes, idx, w)
}

func (t *Trainer) checkInput(cols []*binning.Column, n int, w []float64) error {
	if len(cols) == 0 {
		return errors.ErrEmptyData
	}
	if n == 0 {
		return errors.ErrEmptyData
	}
	for _, c := range cols {
		if c.Len() != n {
			return errors.NewDimensionError("Fit("+c.Name+")", n, c.Len(), 0)
		}
	}
	if w != nil {
		if len(w) != n {
			return errors.NewDimensionError("Fit(sample_weight)", n, len(w), 0)
		}
		for i, v := range w {
			if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
				return errors.NewValidationError("sample_weight", "weights must be finite and non-negative", i)
			}
		}
	}
	return nil
}

func (t *Trainer) fit(ctx context.Context, cols []*binning.Column, y []float64, classes []string, classIdx []int, w []float64) (*Model, error) {
	p := t.params
	if err := p.Validate(); err != nil {
		return nil, err
	}
	n := len(y)
	if err := t.checkInput(cols, n, w); err != nil {
		return nil, err
	}
	nClasses := -1
	kind := Regressor
	if classes != nil {
		nClasses = len(classes)
		kind = Classifier
	}

	start := time.Now()
	m := &Model{ID: uuid.New(), Kind: kind, Private: p.Private, Classes: classes}
	logger := t.logger.With(log.ModelIDKey, m.ID.String(), log.ModelNameKey, string(kind))
	logger.Info("fit started",
		log.OperationKey, "fit",
		log.SamplesKey, n,
		log.FeaturesKey, len(cols),
		log.ClassesKey, nClasses,
		log.RandomSeedKey, p.RandomState,
	)

	seed := native.NormalizeInitialSeed(p.RandomState)

	var alloc privacy.Allocation
	var domain float64
	binNoise := 0.0
	if p.Private {
		var err error
		if alloc, err = p.Budget().Split(); err != nil {
			return nil, err
		}
		if domain, err = privacy.DomainSize(t.schema, y, kind == Classifier); err != nil {
			return nil, err
		}
		if binNoise, err = privacy.GDPNoiseScale(len(cols), alloc.BinEpsilon, alloc.BinDelta); err != nil {
			return nil, err
		}
		logger.Info("privacy budget allocated",
			"allocation", alloc.String(),
			log.CompositionKey, string(p.Composition),
		)
	}

	features, fbs, err := t.binFeatures(ctx, cols, w, seed, binNoise)
	if err != nil {
		return nil, err
	}
	m.Features = features

	mainsDS, err := binDataset(features, cols, 1, y, w, nClasses)
	if err != nil {
		return nil, err
	}

	mains, err := mainTerms(p.Mains, len(cols))
	if err != nil {
		return nil, err
	}

	bp := &boost.BagParams{
		Terms:                  mains,
		InnerBags:              p.InnerBags,
		Flags:                  boost.UpdateDefault,
		LearningRate:           p.LearningRate,
		MinSamplesLeaf:         p.MinSamplesLeaf,
		MaxLeaves:              p.MaxLeaves,
		EarlyStoppingRounds:    p.EarlyStoppingRounds,
		EarlyStoppingTolerance: p.EarlyStoppingTolerance,
		MaxRounds:              p.MaxRounds,
	}
	if p.Private {
		noise, err := t.trainingNoise(alloc, domain, w, len(cols), fbs, mains)
		if err != nil {
			return nil, err
		}
		bp.Flags = boost.GradientSums | boost.RandomSplits
		bp.InnerBags = 0
		bp.EarlyStoppingRounds = -1
		bp.EarlyStoppingTolerance = -1
		bp.Noise = noise
		scale, size := noise.Scale, domain
		m.NoiseScale, m.DomainSize = &scale, &size
		if kind == Regressor {
			lo, hi := targetRange(t.schema, y)
			m.MinTarget, m.MaxTarget = &lo, &hi
		}
		logger.Info("private boosting enabled", log.NoiseScaleKey, scale)
	}

	plans, err := boost.PlanBags(seed, p.OuterBags, n, classIdx, p.ValidationSize)
	if err != nil {
		return nil, err
	}

	orch := boost.NewOrchestrator(t.engine, p.Workers)
	orch.Logger = logger
	results, err := orch.Boost(ctx, mainsDS, plans, bp, "mains")
	if err != nil {
		return nil, err
	}

	terms := append([][]int(nil), mains...)
	bagged := make([][]*tensor.Tensor, len(mains))
	for tIdx := range mains {
		for _, r := range results {
			bagged[tIdx] = append(bagged[tIdx], r.Model[tIdx])
		}
	}
	for _, r := range results {
		m.Breakpoints = append(m.Breakpoints, r.Breakpoint)
	}

	pairs, pairDS, pairPlans, err := t.selectPairs(ctx, orch, cols, features, mainsDS, mains, plans, results, y, w, nClasses)
	if err != nil {
		return nil, err
	}
	if len(pairs) > 0 {
		pp := *bp
		pp.Terms = pairs
		pairResults, err := orch.Boost(ctx, pairDS, pairPlans, &pp, "pairs")
		if err != nil {
			return nil, err
		}
		for tIdx := range pairs {
			var bags []*tensor.Tensor
			for _, r := range pairResults {
				bags = append(bags, r.Model[tIdx])
			}
			bagged = append(bagged, bags)
		}
		for _, r := range pairResults {
			m.Breakpoints = append(m.Breakpoints, r.Breakpoint)
		}
		terms = append(terms, pairs...)
	}

	binWeights := make([]*tensor.Tensor, len(terms))
	for tIdx, term := range terms {
		switch {
		case p.Private:
			counts := fbs[term[0]].BinCounts
			if binWeights[tIdx], err = tensor.FromData(append([]float64(nil), counts...), len(counts)); err != nil {
				return nil, err
			}
		case len(term) == 1:
			binWeights[tIdx] = termWeights(mainsDS, term)
		default:
			binWeights[tIdx] = termWeights(pairDS, term)
		}
	}

	m.BagWeights = make([]float64, len(plans))
	for b, plan := range plans {
		m.BagWeights[b] = trainingWeight(plan, w, n)
	}

	// Bags count equally here. BagWeights only weight bags when models are merged.
	scores, stddevs, intercept, err := boost.ProcessTerms(nClasses, bagged, binWeights, nil, t.post)
	if err != nil {
		return nil, err
	}
	m.Intercept = intercept
	m.Terms = make([]*Term, len(terms))
	for tIdx, term := range terms {
		m.Terms[tIdx] = &Term{
			Features:     term,
			Scores:       scores[tIdx],
			StdDevs:      stddevs[tIdx],
			Weights:      binWeights[tIdx],
			BaggedScores: bagged[tIdx],
		}
	}
	nSamples := n
	m.NSamples = &nSamples

	logger.Info("fit finished",
		log.TermsKey, len(m.Terms),
		log.DurationMsKey, time.Since(start).Milliseconds(),
	)
	return m, nil
}

func (t *Trainer) binFeatures(ctx context.Context, cols []*binning.Column, w []float64, seed int32, noise float64) ([]*Feature, []*binning.FeatureBins, error) {
	p := t.params
	cfg := binning.Config{
		Method:        p.Binning,
		MaxBins:       p.BinLevels(),
		MinSamplesBin: p.MinSamplesBin,
		NoiseScale:    noise,
		Workers:       p.Workers,
	}
	if t.schema != nil {
		cfg.Bounds = t.schema.Features
	}
	var nc *native.Context
	if p.Private {
		nc = native.New(seed)
	}
	binner, err := binning.NewBinner(cfg, nc)
	if err != nil {
		return nil, nil, err
	}
	fbs, err := binner.Fit(ctx, cols, w)
	if err != nil {
		return nil, nil, err
	}

	features := make([]*Feature, len(fbs))
	for i, fb := range fbs {
		levels := fb.Levels
		for len(levels) > 1 && binning.Equal(levels[len(levels)-1], levels[len(levels)-2]) {
			levels = levels[:len(levels)-1]
		}
		f := &Feature{
			Name:        fb.Name,
			Type:        fb.Type,
			Levels:      levels,
			Histogram:   fb.Histogram,
			UniqueCount: fb.UniqueCount,
			ZeroCount:   fb.ZeroCount,
		}
		if fb.Bounds != nil {
			r := Range(*fb.Bounds)
			f.Bounds = &r
		}
		features[i] = f
	}
	return features, fbs, nil
}

// trainingNoise calibrates the per-update noise of private boosting.
func (t *Trainer) trainingNoise(alloc privacy.Allocation, domain float64, w []float64, nFeatures int, fbs []*binning.FeatureBins, mains [][]int) (*boost.Noise, error) {
	p := t.params
	maxWeight := 1.0
	if w != nil {
		maxWeight = 0
		for _, v := range w {
			maxWeight = math.Max(maxWeight, v)
		}
	}
	queries := privacy.TrainingQueries(p.MaxRounds, nFeatures, p.OuterBags)
	scale, err := privacy.Calibrate(p.Composition, queries, alloc.TrainingEpsilon, alloc.TrainingDelta,
		domain*p.LearningRate*maxWeight)
	if err != nil {
		return nil, err
	}
	noise := &boost.Noise{Scale: scale, BinWeights: make([][]float64, len(mains))}
	for i, term := range mains {
		noise.BinWeights[i] = fbs[term[0]].BinCounts
	}
	return noise, nil
}

// selectPairs returns the pair terms to boost together with the pair-level
// dataset and per-bag plans starting from each bag's mains scores. All are
// nil when the pair stage is skipped.
func (t *Trainer) selectPairs(ctx context.Context, orch *boost.Orchestrator, cols []*binning.Column, features []*Feature,
	mainsDS *boost.Dataset, mains [][]int, plans []boost.BagPlan, results []*boost.BagResult,
	y, w []float64, nClasses int) ([][]int, *boost.Dataset, []boost.BagPlan, error) {
	p := t.params
	if p.Private || (p.Interactions == 0 && len(p.InteractionTerms) == 0) {
		return nil, nil, nil, nil
	}
	if nClasses > 2 {
		errors.Warn(errors.NewParameterWarning("interactions", "multiclass models do not support interactions; forcing interactions to 0"))
		return nil, nil, nil, nil
	}

	ds, err := binDataset(features, cols, 2, y, w, nClasses)
	if err != nil {
		return nil, nil, nil, err
	}
	pairPlans := withInitScores(plans, mainsDS, mains, results)

	var pairs [][]int
	if len(p.InteractionTerms) > 0 {
		if pairs, err = boost.DedupTerms(p.InteractionTerms, len(features)); err != nil {
			return nil, nil, nil, err
		}
	} else {
		all := make([]int, len(features))
		for i := range all {
			all[i] = i
		}
		rankings, err := orch.RankInteractions(ctx, ds, pairPlans, all, p.MinSamplesLeaf)
		if err != nil {
			return nil, nil, nil, err
		}
		for _, pair := range boost.AggregateRanks(rankings, p.Interactions) {
			pairs = append(pairs, []int{pair[0], pair[1]})
		}
	}
	if len(pairs) == 0 {
		return nil, nil, nil, nil
	}
	return pairs, ds, pairPlans, nil
}

// withInitScores copies plans, starting each bag from its own mains model.
func withInitScores(plans []boost.BagPlan, ds *boost.Dataset, mains [][]int, results []*boost.BagResult) []boost.BagPlan {
	out := make([]boost.BagPlan, len(plans))
	for b, plan := range plans {
		plan.InitScores = bagScores(ds, mains, results[b].Model)
		out[b] = plan
	}
	return out
}

func mainTerms(mains []int, nFeatures int) ([][]int, error) {
	if mains == nil {
		out := make([][]int, nFeatures)
		for i := range out {
			out[i] = []int{i}
		}
		return out, nil
	}
	seen := map[int]bool{}
	out := make([][]int, 0, len(mains))
	for _, f := range mains {
		if f < 0 || f >= nFeatures {
			return nil, errors.NewValidationError("mains", "feature index out of range", f)
		}
		if seen[f] {
			return nil, errors.NewValidationError("mains", "duplicate feature", f)
		}
		seen[f] = true
		out = append(out, []int{f})
	}
	if len(out) == 0 {
		return nil, errors.NewValidationError("mains", "at least one main term is required", mains)
	}
	return out, nil
}

func targetRange(s *privacy.Schema, y []float64) (float64, float64) {
	if s != nil && s.Target != nil {
		return s.Target[0], s.Target[1]
	}
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range y {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	return lo, hi
}
