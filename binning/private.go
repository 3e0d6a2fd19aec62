package binning

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"

	"github.com/YuminosukeSato/ebmgo/core/native"
	"github.com/YuminosukeSato/ebmgo/pkg/errors"
)

// PrivateNumericResult holds the noisy cuts of a continuous feature and the
// noisy weight of every bin, missing bin first.
type PrivateNumericResult struct {
	Cuts       []float64
	BinWeights []float64
}

// totalWeight returns the sample count or the sum of sample weights.
func totalWeight(n int, weights []float64) float64 {
	if weights == nil {
		return float64(n)
	}
	return floats.Sum(weights)
}

// PrivateNumeric builds noisy equal-mass bins over the public range [lo, hi].
//
// Values are histogrammed into 2*maxBins uniform buckets, each bucket gets an
// independent N(0, noiseScale²) draw and is clipped at zero, and buckets are
// merged left to right until each bin reaches total/maxBins. The remainder
// joins the last bin. When no bin reaches the target a single bin holding
// the target weight is returned with no cuts. Values outside [lo, hi] and NaN
// values are not counted.
func PrivateNumeric(nc *native.Context, xs, weights []float64, noiseScale float64, maxBins int, lo, hi float64) (*PrivateNumericResult, error) {
	if maxBins < 2 {
		return nil, errors.NewValidationError("max_bins", "must be at least 2", maxBins)
	}
	if weights != nil && len(weights) != len(xs) {
		return nil, errors.NewDimensionError("PrivateNumeric", len(xs), len(weights), 0)
	}
	if math.IsNaN(lo) || math.IsNaN(hi) || hi < lo {
		return nil, errors.NewValidationError("feature_bounds", "lower bound must not exceed upper bound", [2]float64{lo, hi})
	}

	nBuckets := maxBins * 2
	edges := floats.Span(make([]float64, nBuckets+1), lo, hi)
	counts := make([]float64, nBuckets)
	width := hi - lo
	for i, v := range xs {
		if math.IsNaN(v) || v < lo || v > hi {
			continue
		}
		b := nBuckets - 1
		if width > 0 && v < hi {
			b = int((v - lo) / width * float64(nBuckets))
			if b >= nBuckets {
				b = nBuckets - 1
			}
		}
		w := 1.0
		if weights != nil {
			w = weights[i]
		}
		counts[b] += w
	}

	noise := nc.NormalVector(nBuckets, noiseScale)
	for i := range counts {
		counts[i] = math.Max(counts[i]+noise[i], 0)
	}

	target := totalWeight(len(xs), weights) / float64(maxBins)
	binWeights := []float64{0}
	binCuts := []float64{edges[0]}
	acc := 0.0
	for i, c := range counts {
		acc += c
		if acc >= target {
			binCuts = append(binCuts, edges[i+1])
			binWeights = append(binWeights, acc)
			acc = 0
		}
	}

	if len(binWeights) == 1 {
		errors.Warn(errors.NewPrivacyWarning("binning",
			"no noisy bin reached the target weight; using a single bin"))
		return &PrivateNumericResult{Cuts: []float64{}, BinWeights: []float64{0, target}}, nil
	}

	cuts := append([]float64{}, binCuts[1:len(binCuts)-1]...)
	binWeights[len(binWeights)-1] += acc
	return &PrivateNumericResult{Cuts: cuts, BinWeights: binWeights}, nil
}

// PrivateCategoricalResult holds the surviving categories, OtherCategory last
// when present, and their noisy weights.
type PrivateCategoricalResult struct {
	Categories []string
	Weights    []float64
}

// PrivateCategorical computes noisy per-category weights and collapses every
// category below total/maxBins into OtherCategory. If OtherCategory is still
// below the target it absorbs the single smallest remaining category once.
// If OtherCategory is the only bin left its weight is floored at the target.
// Empty strings are treated as missing and ignored.
func PrivateCategorical(nc *native.Context, xs []string, weights []float64, noiseScale float64, maxBins int) (*PrivateCategoricalResult, error) {
	if maxBins < 2 {
		return nil, errors.NewValidationError("max_bins", "must be at least 2", maxBins)
	}
	if weights != nil && len(weights) != len(xs) {
		return nil, errors.NewDimensionError("PrivateCategorical", len(xs), len(weights), 0)
	}

	acc := map[string]float64{}
	for i, v := range xs {
		if v == "" {
			continue
		}
		w := 1.0
		if weights != nil {
			w = weights[i]
		}
		acc[v] += w
	}
	cats := make([]string, 0, len(acc))
	for k := range acc {
		cats = append(cats, k)
	}
	sort.Strings(cats)

	noise := nc.NormalVector(len(cats), noiseScale)
	noisy := make([]float64, len(cats))
	for i, k := range cats {
		noisy[i] = math.Max(acc[k]+noise[i], 0)
	}

	target := totalWeight(len(xs), weights) / float64(maxBins)
	res := &PrivateCategoricalResult{}
	other := 0.0
	collapsed := false
	for i, k := range cats {
		if noisy[i] < target {
			other += noisy[i]
			collapsed = true
			continue
		}
		res.Categories = append(res.Categories, k)
		res.Weights = append(res.Weights, noisy[i])
	}
	if !collapsed {
		return res, nil
	}

	if other < target {
		if len(res.Categories) == 0 {
			other = target
		} else {
			m := floats.MinIdx(res.Weights)
			other += res.Weights[m]
			res.Categories = append(res.Categories[:m], res.Categories[m+1:]...)
			res.Weights = append(res.Weights[:m], res.Weights[m+1:]...)
		}
	}
	res.Categories = append(res.Categories, OtherCategory)
	res.Weights = append(res.Weights, other)
	return res, nil
}

// Mapping turns the surviving categories into a bin mapping in result order.
func (r *PrivateCategoricalResult) Mapping() *Categorical {
	m := make(map[string]int, len(r.Categories))
	for i, c := range r.Categories {
		m[c] = i + 1
	}
	return &Categorical{Mapping: m}
}
