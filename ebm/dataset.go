package ebm

import (
	"math"
	"sort"
	"strconv"

	"github.com/YuminosukeSato/ebmgo/binning"
	"github.com/YuminosukeSato/ebmgo/boost"
	"github.com/YuminosukeSato/ebmgo/core/tensor"
	"github.com/YuminosukeSato/ebmgo/pkg/errors"
)

// encodeClasses returns the sorted distinct labels and the class index of
// every sample. Labels that all parse as numbers sort numerically.
func encodeClasses(labels []string) ([]string, []int) {
	seen := map[string]bool{}
	var classes []string
	for _, l := range labels {
		if !seen[l] {
			seen[l] = true
			classes = append(classes, l)
		}
	}
	numeric := true
	vals := make(map[string]float64, len(classes))
	for _, c := range classes {
		v, err := strconv.ParseFloat(c, 64)
		if err != nil || math.IsNaN(v) {
			numeric = false
			break
		}
		vals[c] = v
	}
	sort.Slice(classes, func(i, j int) bool {
		if numeric && vals[classes[i]] != vals[classes[j]] {
			return vals[classes[i]] < vals[classes[j]]
		}
		return classes[i] < classes[j]
	})
	index := make(map[string]int, len(classes))
	for i, c := range classes {
		index[c] = i
	}
	idx := make([]int, len(labels))
	for i, l := range labels {
		idx[i] = index[l]
	}
	return classes, idx
}

// binDataset discretizes every feature at the level used by terms of the
// given arity.
func binDataset(features []*Feature, cols []*binning.Column, arity int, y, w []float64, nClasses int) (*boost.Dataset, error) {
	ds := &boost.Dataset{
		Features:   make([][]int, len(features)),
		NumBins:    make([]int, len(features)),
		Targets:    y,
		Weights:    w,
		NumClasses: nClasses,
	}
	for i, f := range features {
		def := f.Levels.ForArity(arity)
		bins, err := binning.Discretize(def, cols[i])
		if err != nil {
			return nil, errors.Wrapf(err, "feature %q", f.Name)
		}
		ds.Features[i] = bins
		ds.NumBins[i] = def.NumBins()
	}
	return ds, nil
}

// termWeights sums sample weights into every bin combination of a term.
func termWeights(ds *boost.Dataset, features []int) *tensor.Tensor {
	shape := make([]int, len(features))
	for j, f := range features {
		shape[j] = ds.NumBins[f]
	}
	t := tensor.New(shape...)
	idx := make([]int, len(features))
	data := t.Data()
	for i := 0; i < ds.NumSamples(); i++ {
		for j, f := range features {
			idx[j] = ds.Features[f][i]
		}
		w := 1.0
		if ds.Weights != nil {
			w = ds.Weights[i]
		}
		data[t.Offset(idx)] += w
	}
	return t
}

// bagScores evaluates one bag's term tensors on every sample, without an
// intercept, in the layout boosters expect for initial scores.
func bagScores(ds *boost.Dataset, terms [][]int, model []*tensor.Tensor) []float64 {
	width := boost.ScoreWidth(ds.NumClasses)
	n := ds.NumSamples()
	out := make([]float64, n*width)
	for t, features := range terms {
		m := model[t]
		idx := make([]int, m.Rank())
		for i := 0; i < n; i++ {
			for j, f := range features {
				idx[j] = ds.Features[f][i]
			}
			if width == 1 {
				out[i] += m.At(idx...)
				continue
			}
			for k := 0; k < width; k++ {
				idx[len(features)] = k
				out[i*width+k] += m.At(idx...)
			}
		}
	}
	return out
}

// trainingWeight sums the weights of a bag's training samples.
func trainingWeight(plan boost.BagPlan, w []float64, n int) float64 {
	var sum float64
	for i := 0; i < n; i++ {
		if !plan.Bag.IsTrain(i) {
			continue
		}
		if w == nil {
			sum++
		} else {
			sum += w[i]
		}
	}
	return sum
}
