// Package merge combines independently trained models into one model.
//
// Bin definitions are unioned per feature and level, every term tensor is
// carried onto the unified grid, and the concatenated bags are reduced the
// same way training reduces them. Input models are never modified.
package merge

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/YuminosukeSato/ebmgo/binning"
	"github.com/YuminosukeSato/ebmgo/boost"
	"github.com/YuminosukeSato/ebmgo/core/parallel"
	"github.com/YuminosukeSato/ebmgo/core/tensor"
	"github.com/YuminosukeSato/ebmgo/ebm"
	"github.com/YuminosukeSato/ebmgo/pkg/errors"
	"github.com/YuminosukeSato/ebmgo/pkg/log"
)

// Merger merges fitted models.
type Merger struct {
	logger  log.Logger
	post    boost.MulticlassPostprocessor
	workers int
}

// Option configures a Merger.
type Option func(*Merger)

// WithLogger sets the logger.
func WithLogger(l log.Logger) Option {
	return func(m *Merger) { m.logger = l }
}

// WithMulticlassPostprocessor replaces the default multiclass centering.
func WithMulticlassPostprocessor(p boost.MulticlassPostprocessor) Option {
	return func(m *Merger) { m.post = p }
}

// WithWorkers bounds the number of terms harmonized concurrently.
func WithWorkers(n int) Option {
	return func(m *Merger) { m.workers = n }
}

// NewMerger creates a Merger.
func NewMerger(opts ...Option) *Merger {
	m := &Merger{logger: log.GetLoggerWithName("merge")}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Merge merges models with a default Merger.
func Merge(ctx context.Context, models ...*ebm.Model) (*ebm.Model, error) {
	return NewMerger().Merge(ctx, models...)
}

// featureSource is one input model's view of a merged feature.
type featureSource struct {
	// levels[l] is the definition the model uses at merged level l, after
	// any categorical to continuous conversion.
	levels []binning.BinDefinition
	// groups[l] is non-nil when levels[l] was converted.
	groups [][][]int
	bounds [2]float64
}

func (s *featureSource) level(arity int) int {
	l := arity - 1
	if l >= len(s.levels) {
		l = len(s.levels) - 1
	}
	return l
}

// Merge returns a new model combining models. Classifiers merge only with
// classifiers sharing the same classes, regressors only with regressors.
// Merging private and non-private models yields a non-private model.
func (mg *Merger) Merge(ctx context.Context, models ...*ebm.Model) (*ebm.Model, error) {
	start := time.Now()
	kind, private, err := checkModels(models)
	if err != nil {
		return nil, err
	}

	out := &ebm.Model{ID: uuid.New(), Kind: kind, Private: private}
	logger := mg.logger.With(log.ModelIDKey, out.ID.String(), log.ModelNameKey, string(kind))
	logger.Info("merge started",
		log.OperationKey, "merge",
		"models", len(models),
		log.FeaturesKey, len(models[0].Features),
	)
	for _, m := range models {
		out.SourceIDs = append(out.SourceIDs, m.ID)
	}
	if kind == ebm.Classifier {
		out.Classes = append([]string(nil), models[0].Classes...)
	}

	features, sources, err := mergeFeatures(models, private)
	if err != nil {
		return nil, err
	}
	dedupeLevels(features)
	out.Features = features

	terms, index := unionTerms(models)

	modelWeights := make([]float64, len(models))
	nBags := make([]int, len(models))
	for i, m := range models {
		modelWeights[i] = modelWeight(m)
		nBags[i] = len(m.BagWeights)
		if nBags[i] > 0 {
			out.BagWeights = append(out.BagWeights, m.BagWeights...)
			continue
		}
		if len(m.Terms) > 0 {
			nBags[i] = len(m.Terms[0].BaggedScores)
		}
		for b := 0; b < nBags[i]; b++ {
			out.BagWeights = append(out.BagWeights, modelWeights[i])
		}
	}

	nClasses := out.NumClasses()
	width := boost.ScoreWidth(nClasses)

	type merged struct {
		weights *tensor.Tensor
		bagged  []*tensor.Tensor
	}
	results, err := parallel.Map(ctx, mg.workers, len(terms), func(ctx context.Context, t int) (merged, error) {
		term := terms[t]
		plans := make([][]*axisPlan, len(models))
		srcWeights := make([]*tensor.Tensor, len(models))
		harmonized := make([]*tensor.Tensor, len(models))
		for i, m := range models {
			ti, ok := index[i][termKey(term)]
			if !ok {
				continue
			}
			old := m.Terms[ti]
			p, err := termPlans(features, sources[i], term)
			if err != nil {
				return merged{}, errors.Wrapf(err, "term %v of model %s", term, m.ID)
			}
			perm, err := canonicalPerm(term, old.Features, old.Weights.Rank())
			if err != nil {
				return merged{}, err
			}
			w, err := old.Weights.Transpose(perm)
			if err != nil {
				return merged{}, err
			}
			plans[i], srcWeights[i] = p, w
			harmonized[i] = harmonizeWeights(p, w)
		}

		share, err := estimateShare(harmonized, modelWeights)
		if err != nil {
			return merged{}, err
		}
		res := merged{}
		for i, m := range models {
			if harmonized[i] == nil {
				w := share.Clone()
				w.Scale(modelWeights[i])
				if res.weights, err = accumulate(res.weights, w); err != nil {
					return merged{}, err
				}
				shape := w.Shape()
				if width > 1 {
					shape = append(shape, width)
				}
				for b := 0; b < nBags[i]; b++ {
					res.bagged = append(res.bagged, tensor.New(shape...))
				}
				continue
			}
			if res.weights, err = accumulate(res.weights, harmonized[i]); err != nil {
				return merged{}, err
			}

			old := m.Terms[index[i][termKey(term)]]
			if len(old.BaggedScores) != nBags[i] {
				return merged{}, errors.NewDimensionError(fmt.Sprintf("Merge(%s bags)", m.ID), nBags[i], len(old.BaggedScores), 0)
			}
			for _, bag := range old.BaggedScores {
				perm, err := canonicalPerm(term, old.Features, bag.Rank())
				if err != nil {
					return merged{}, err
				}
				s, err := bag.Transpose(perm)
				if err != nil {
					return merged{}, err
				}
				res.bagged = append(res.bagged, harmonizeScores(plans[i], s, srcWeights[i], width))
			}
		}
		return res, nil
	})
	if err != nil {
		return nil, err
	}

	bagged := make([][]*tensor.Tensor, len(terms))
	weights := make([]*tensor.Tensor, len(terms))
	for t, r := range results {
		bagged[t], weights[t] = r.bagged, r.weights
	}
	scores, stddevs, intercept, err := boost.ProcessTerms(nClasses, bagged, weights, out.BagWeights, mg.post)
	if err != nil {
		return nil, err
	}
	out.Intercept = intercept
	out.Terms = make([]*ebm.Term, len(terms))
	for t, term := range terms {
		out.Terms[t] = &ebm.Term{
			Features:     term,
			Scores:       scores[t],
			StdDevs:      stddevs[t],
			Weights:      weights[t],
			BaggedScores: bagged[t],
		}
	}

	removeUnusedLevels(out.Features, terms)
	dedupeLevels(out.Features)

	mergeMetadata(out, models)

	logger.Info("merge finished",
		log.TermsKey, len(out.Terms),
		"bags", len(out.BagWeights),
		log.DurationMsKey, time.Since(start).Milliseconds(),
	)
	return out, nil
}

// checkModels validates the inputs before any tensor is touched and returns
// the merged kind and privacy.
func checkModels(models []*ebm.Model) (ebm.Kind, bool, error) {
	if len(models) == 0 {
		return "", false, errors.NewValidationError("models", "at least one model is required", 0)
	}
	first := models[0]
	private := true
	for i, m := range models {
		if m == nil || len(m.Features) == 0 || m.Intercept == nil {
			return "", false, errors.NewNotFittedError("EBM", "Merge")
		}
		if err := m.Validate(); err != nil {
			return "", false, errors.Wrapf(err, "model %d", i)
		}
		if m.Kind != first.Kind {
			return "", false, errors.NewValidationError("models", "cannot merge classifiers with regressors", []ebm.Kind{first.Kind, m.Kind})
		}
		private = private && m.Private
		if len(m.Features) != len(first.Features) {
			return "", false, errors.NewDimensionError(fmt.Sprintf("Merge(model %d features)", i), len(first.Features), len(m.Features), 1)
		}
		for f, feat := range m.Features {
			if feat.Name != first.Features[f].Name {
				return "", false, errors.NewValidationError("features",
					fmt.Sprintf("feature %d is named %q in one model and %q in another", f, first.Features[f].Name, feat.Name), i)
			}
			for _, def := range feat.Levels[1:] {
				if def.Kind() != feat.Levels[0].Kind() {
					return "", false, errors.NewValidationError(feat.Name, "bin levels of one feature mix kinds", i)
				}
			}
		}
		if m.Kind == ebm.Classifier {
			if len(m.Classes) != len(first.Classes) {
				return "", false, errors.NewValidationError("classes", "models must share the same classes", m.Classes)
			}
			for k, c := range m.Classes {
				if c != first.Classes[k] {
					return "", false, errors.NewValidationError("classes", "models must share the same classes", m.Classes)
				}
			}
		}
		if len(m.BagWeights) > 0 {
			for t, term := range m.Terms {
				if len(term.BaggedScores) != len(m.BagWeights) {
					return "", false, errors.NewDimensionError(fmt.Sprintf("Merge(model %d term %d bags)", i, t), len(m.BagWeights), len(term.BaggedScores), 0)
				}
			}
		}
	}
	return first.Kind, private, nil
}

// mergeFeatures unions the bin definitions of every feature level by level.
func mergeFeatures(models []*ebm.Model, private bool) ([]*ebm.Feature, [][]*featureSource, error) {
	nFeatures := len(models[0].Features)
	sources := make([][]*featureSource, len(models))
	for i := range models {
		sources[i] = make([]*featureSource, nFeatures)
	}
	features := make([]*ebm.Feature, nFeatures)

	for f := 0; f < nFeatures; f++ {
		categorical := true
		nominal := false
		levelEnd := 0
		for i, m := range models {
			feat := m.Features[f]
			if feat.Levels[0].Kind() != "categorical" {
				categorical = false
			}
			if feat.Type == binning.TypeNominal {
				nominal = true
			}
			levelEnd = max(levelEnd, len(feat.Levels))
			src := &featureSource{bounds: [2]float64{math.NaN(), math.NaN()}}
			if feat.Bounds != nil {
				src.bounds = [2]float64(*feat.Bounds)
			}
			sources[i][f] = src
		}

		out := &ebm.Feature{Name: models[0].Features[f].Name, Type: binning.TypeContinuous}
		if categorical {
			out.Type = binning.TypeOrdinal
			if nominal {
				out.Type = binning.TypeNominal
			}
		}

		for l := 0; l < levelEnd; l++ {
			defs := make([]binning.BinDefinition, len(models))
			for i, m := range models {
				levels := m.Features[f].Levels
				defs[i] = levels[min(l, len(levels)-1)]
			}
			var merged binning.BinDefinition
			if categorical {
				merged = unionCategories(defs)
			} else {
				converted := 0
				for i, def := range defs {
					cat, ok := def.(*binning.Categorical)
					if !ok {
						continue
					}
					conv := toContinuous(cat)
					defs[i] = &binning.Continuous{Cuts: conv.cuts}
					src := sources[i][f]
					src.groups = growGroups(src.groups, l)
					src.groups[l] = conv.groups
					if math.IsNaN(src.bounds[0]) || conv.min < src.bounds[0] {
						src.bounds[0] = conv.min
					}
					if math.IsNaN(src.bounds[1]) || conv.max > src.bounds[1] {
						src.bounds[1] = conv.max
					}
					converted++
				}
				if converted > 0 && l == 0 {
					errors.Warn(errors.NewDataConversionWarning("categorical", "continuous",
						fmt.Sprintf("feature %q is continuous in another model; non-numeric categories are dropped", out.Name)))
				}
				merged = unionCuts(defs)
			}
			for i := range models {
				src := sources[i][f]
				src.levels = append(src.levels, defs[i])
				src.groups = growGroups(src.groups, l)
			}
			out.Levels = append(out.Levels, merged)
		}

		lo, hi := math.NaN(), math.NaN()
		for i := range models {
			b := sources[i][f].bounds
			if !math.IsNaN(b[0]) && (math.IsNaN(lo) || b[0] < lo) {
				lo = b[0]
			}
			if !math.IsNaN(b[1]) && (math.IsNaN(hi) || b[1] > hi) {
				hi = b[1]
			}
		}
		if !math.IsNaN(lo) || !math.IsNaN(hi) {
			r := ebm.Range{lo, hi}
			out.Bounds = &r
		}

		if !private {
			zeros, known := 0, true
			for _, m := range models {
				if m.Features[f].ZeroCount == nil {
					known = false
					break
				}
				zeros += *m.Features[f].ZeroCount
			}
			if known {
				out.ZeroCount = &zeros
			}
		}
		features[f] = out
	}
	return features, sources, nil
}

func growGroups(groups [][][]int, l int) [][][]int {
	for len(groups) <= l {
		groups = append(groups, nil)
	}
	return groups
}

// unionCategories keeps a mapping every model agrees on. Otherwise the union
// of category names gets fresh indices in lexical order.
func unionCategories(defs []binning.BinDefinition) binning.BinDefinition {
	same := true
	for _, d := range defs[1:] {
		if !binning.Equal(defs[0], d) {
			same = false
			break
		}
	}
	if same {
		return binning.Clone(defs[0])
	}
	seen := map[string]struct{}{}
	for _, d := range defs {
		for cat := range d.(*binning.Categorical).Mapping {
			seen[cat] = struct{}{}
		}
	}
	cats := make([]string, 0, len(seen))
	for cat := range seen {
		cats = append(cats, cat)
	}
	sort.Strings(cats)
	mapping := make(map[string]int, len(cats))
	for i, cat := range cats {
		mapping[cat] = i + 1
	}
	return &binning.Categorical{Mapping: mapping}
}

func unionCuts(defs []binning.BinDefinition) binning.BinDefinition {
	seen := map[float64]struct{}{}
	for _, d := range defs {
		for _, c := range d.(*binning.Continuous).Cuts {
			seen[c] = struct{}{}
		}
	}
	cuts := make([]float64, 0, len(seen))
	for c := range seen {
		cuts = append(cuts, c)
	}
	sort.Float64s(cuts)
	return &binning.Continuous{Cuts: cuts}
}

// dedupeLevels drops trailing levels equal to their predecessor and lets
// identical definitions share one value.
func dedupeLevels(features []*ebm.Feature) {
	shared := map[string]binning.BinDefinition{}
	for _, f := range features {
		keys := make([]string, len(f.Levels))
		for l, def := range f.Levels {
			keys[l] = binning.Key(def)
			if s, ok := shared[keys[l]]; ok {
				f.Levels[l] = s
			} else {
				shared[keys[l]] = def
			}
		}
		end := len(keys)
		for end > 1 && keys[end-1] == keys[end-2] {
			end--
		}
		f.Levels = f.Levels[:end]
	}
}

// removeUnusedLevels drops the levels above the highest arity of any term
// using each feature.
func removeUnusedLevels(features []*ebm.Feature, terms [][]int) {
	highest := make([]int, len(features))
	for _, term := range terms {
		for _, f := range term {
			highest[f] = max(highest[f], len(term))
		}
	}
	for f, feat := range features {
		keep := max(highest[f], 1)
		if len(feat.Levels) > keep {
			feat.Levels = feat.Levels[:keep]
		}
	}
}

func termKey(features []int) string {
	sorted := append([]int(nil), features...)
	sort.Ints(sorted)
	return fmt.Sprint(sorted)
}

// unionTerms returns every term of every model as a sorted feature tuple,
// ordered by arity and then by feature indices, plus a per-model index from
// tuple key to term position.
func unionTerms(models []*ebm.Model) ([][]int, []map[string]int) {
	index := make([]map[string]int, len(models))
	all := map[string][]int{}
	for i, m := range models {
		index[i] = make(map[string]int, len(m.Terms))
		for t, term := range m.Terms {
			k := termKey(term.Features)
			index[i][k] = t
			if _, ok := all[k]; !ok {
				sorted := append([]int(nil), term.Features...)
				sort.Ints(sorted)
				all[k] = sorted
			}
		}
	}
	terms := make([][]int, 0, len(all))
	for _, term := range all {
		terms = append(terms, term)
	}
	sort.Slice(terms, func(i, j int) bool {
		a, b := terms[i], terms[j]
		if len(a) != len(b) {
			return len(a) < len(b)
		}
		for k := range a {
			if a[k] != b[k] {
				return a[k] < b[k]
			}
		}
		return false
	})
	return terms, index
}

// modelWeight is the mean total bin weight over a model's terms.
func modelWeight(m *ebm.Model) float64 {
	if len(m.Terms) == 0 {
		return 0
	}
	var sum float64
	for _, t := range m.Terms {
		sum += t.Weights.Sum()
	}
	return sum / float64(len(m.Terms))
}

func termPlans(features []*ebm.Feature, sources []*featureSource, term []int) ([]*axisPlan, error) {
	arity := len(term)
	plans := make([]*axisPlan, arity)
	for a, f := range term {
		src := sources[f]
		l := src.level(arity)
		bounds := [2]float64{math.NaN(), math.NaN()}
		if b := features[f].Bounds; b != nil {
			bounds = [2]float64(*b)
		}
		p, err := planAxis(features[f].Levels.ForArity(arity), bounds, src.levels[l], src.bounds, src.groups[l])
		if err != nil {
			return nil, errors.Wrapf(err, "feature %q", features[f].Name)
		}
		plans[a] = p
	}
	return plans, nil
}

// estimateShare returns the weight distribution of a term as seen by the
// models that trained it, each counted in proportion to its total weight.
// The result sums to one.
func estimateShare(harmonized []*tensor.Tensor, modelWeights []float64) (*tensor.Tensor, error) {
	var share *tensor.Tensor
	for i, h := range harmonized {
		if h == nil {
			continue
		}
		w := h.Clone()
		w.Scale(modelWeights[i])
		var err error
		if share, err = accumulate(share, w); err != nil {
			return nil, err
		}
	}
	total := share.Sum()
	if total == 0 || math.IsNaN(total) {
		share = tensor.Full(1, share.Shape()...)
		total = float64(share.Size())
	}
	share.Scale(1 / total)
	return share, nil
}

// accumulate adds t into acc, starting from a copy of t when acc is nil.
func accumulate(acc, t *tensor.Tensor) (*tensor.Tensor, error) {
	if acc == nil {
		return t.Clone(), nil
	}
	if err := acc.Add(t); err != nil {
		return nil, errors.Wrap(err, "accumulate term weights")
	}
	return acc, nil
}

// mergeMetadata fills the per-model facts that merge by summing or widening.
func mergeMetadata(out *ebm.Model, models []*ebm.Model) {
	if !out.Private {
		n, known := 0, true
		for _, m := range models {
			if m.NSamples == nil {
				known = false
				break
			}
			n += *m.NSamples
		}
		if known {
			out.NSamples = &n
		}
	}
	if out.Kind != ebm.Regressor {
		return
	}
	for _, m := range models {
		if m.MinTarget != nil && (out.MinTarget == nil || *m.MinTarget < *out.MinTarget) {
			v := *m.MinTarget
			out.MinTarget = &v
		}
		if m.MaxTarget != nil && (out.MaxTarget == nil || *m.MaxTarget > *out.MaxTarget) {
			v := *m.MaxTarget
			out.MaxTarget = &v
		}
	}
}
