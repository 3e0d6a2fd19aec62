package ebm

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/ebmgo/binning"
	"github.com/YuminosukeSato/ebmgo/core/parallel"
	"github.com/YuminosukeSato/ebmgo/pkg/errors"
)

// score-table lookups worth one goroutine in DecisionFunction
const parallelScoreLookups = 1 << 15

// scoreRowsPerWorker converts parallelScoreLookups into rows: every row reads
// one cell per term and class.
func scoreRowsPerWorker(terms, width int) int {
	return max(parallelScoreLookups/max(terms*width, 1), 1)
}

// binCache discretizes each (feature, level) pair at most once.
type binCache struct {
	m    *Model
	cols []*binning.Column
	bins map[[2]int][]int
}

func (c *binCache) get(feature, arity int) ([]int, error) {
	key := [2]int{feature, arity}
	if b, ok := c.bins[key]; ok {
		return b, nil
	}
	f := c.m.Features[feature]
	b, err := binning.Discretize(f.Levels.ForArity(arity), c.cols[feature])
	if err != nil {
		return nil, errors.Wrapf(err, "feature %q", f.Name)
	}
	c.bins[key] = b
	return b, nil
}

func (m *Model) checkColumns(cols []*binning.Column) (int, error) {
	if len(cols) != len(m.Features) {
		return 0, errors.NewDimensionError("DecisionFunction", len(m.Features), len(cols), 1)
	}
	n := cols[0].Len()
	if n == 0 {
		return 0, errors.ErrEmptyData
	}
	for i, c := range cols {
		if c.Len() != n {
			return 0, errors.NewDimensionError(fmt.Sprintf("DecisionFunction(%s)", m.Features[i].Name), n, c.Len(), 0)
		}
	}
	return n, nil
}

// DecisionFunction returns the raw additive scores: one column for regression
// and binary classification, one per class for multiclass.
func (m *Model) DecisionFunction(cols []*binning.Column) (*mat.Dense, error) {
	n, err := m.checkColumns(cols)
	if err != nil {
		return nil, err
	}
	width := len(m.Intercept)
	out := mat.NewDense(n, width, nil)
	for i := 0; i < n; i++ {
		out.SetRow(i, m.Intercept)
	}

	cache := &binCache{m: m, cols: cols, bins: map[[2]int][]int{}}
	termBins := make([][][]int, len(m.Terms))
	for ti, t := range m.Terms {
		arity := len(t.Features)
		termBins[ti] = make([][]int, arity)
		for j, f := range t.Features {
			if termBins[ti][j], err = cache.get(f, arity); err != nil {
				return nil, err
			}
		}
	}

	// Each range owns its rows of out.
	parallel.ParallelizeWithThreshold(n, scoreRowsPerWorker(len(m.Terms), width), func(start, end int) {
		for ti, t := range m.Terms {
			bins := termBins[ti]
			arity := len(bins)
			idx := make([]int, t.Scores.Rank())
			for i := start; i < end; i++ {
				for j := range bins {
					idx[j] = bins[j][i]
				}
				if width == 1 {
					out.Set(i, 0, out.At(i, 0)+t.Scores.At(idx...))
					continue
				}
				for k := 0; k < width; k++ {
					idx[arity] = k
					out.Set(i, k, out.At(i, k)+t.Scores.At(idx...))
				}
			}
		}
	})
	return out, nil
}

// PredictProba returns an n x n_classes matrix of class probabilities.
func (m *Model) PredictProba(cols []*binning.Column) (*mat.Dense, error) {
	if !m.IsClassifier() {
		return nil, errors.NewValueError("PredictProba", "model is a regressor")
	}
	scores, err := m.DecisionFunction(cols)
	if err != nil {
		return nil, err
	}
	n, _ := scores.Dims()
	k := len(m.Classes)
	out := mat.NewDense(n, k, nil)
	row := make([]float64, k)
	for i := 0; i < n; i++ {
		if k == 2 {
			p := errors.Sigmoid(scores.At(i, 0))
			out.Set(i, 0, 1-p)
			out.Set(i, 1, p)
			continue
		}
		errors.Softmax(row, scores.RawRowView(i))
		out.SetRow(i, row)
	}
	return out, nil
}

// Predict returns one column holding regression values, or class indices
// into Classes for classifiers.
func (m *Model) Predict(cols []*binning.Column) (*mat.Dense, error) {
	scores, err := m.DecisionFunction(cols)
	if err != nil {
		return nil, err
	}
	if !m.IsClassifier() {
		return scores, nil
	}
	n, width := scores.Dims()
	out := mat.NewDense(n, 1, nil)
	for i := 0; i < n; i++ {
		if width == 1 {
			if scores.At(i, 0) > 0 {
				out.Set(i, 0, 1)
			}
			continue
		}
		best := 0
		for k := 1; k < width; k++ {
			if scores.At(i, k) > scores.At(i, best) {
				best = k
			}
		}
		out.Set(i, 0, float64(best))
	}
	return out, nil
}

// PredictLabels returns the predicted class label of every sample.
func (m *Model) PredictLabels(cols []*binning.Column) ([]string, error) {
	if !m.IsClassifier() {
		return nil, errors.NewValueError("PredictLabels", "model is a regressor")
	}
	idx, err := m.Predict(cols)
	if err != nil {
		return nil, err
	}
	n, _ := idx.Dims()
	out := make([]string, n)
	for i := range out {
		out[i] = m.Classes[int(idx.At(i, 0))]
	}
	return out, nil
}
