package boost

import (
	"gonum.org/v1/gonum/stat"

	"github.com/YuminosukeSato/ebmgo/core/tensor"
	"github.com/YuminosukeSato/ebmgo/pkg/errors"
)

// MulticlassPostprocessor redistributes multiclass term scores in place and
// accumulates whatever it removes into intercept (one entry per class).
type MulticlassPostprocessor func(nClasses int, scores []*tensor.Tensor, intercept []float64, binWeights []*tensor.Tensor) error

// DefaultMulticlassPostprocess removes the class mean of every cell, then
// moves the bin-weighted mean of each class into the intercept.
func DefaultMulticlassPostprocess(nClasses int, scores []*tensor.Tensor, intercept []float64, binWeights []*tensor.Tensor) error {
	if len(intercept) != nClasses {
		return errors.NewDimensionError("DefaultMulticlassPostprocess", nClasses, len(intercept), 0)
	}
	for t, s := range scores {
		w := binWeights[t]
		if s.Rank() != w.Rank()+1 || s.Dim(s.Rank()-1) != nClasses {
			return errors.NewDimensionError("DefaultMulticlassPostprocess", w.Rank()+1, s.Rank(), s.Rank()-1)
		}
		data := s.Data()
		for cell := 0; cell < w.Size(); cell++ {
			row := data[cell*nClasses : (cell+1)*nClasses]
			mean := stat.Mean(row, nil)
			for k := range row {
				row[k] -= mean
			}
		}
		total := w.Sum()
		for k := 0; k < nClasses; k++ {
			var acc float64
			for cell, wt := range w.Data() {
				acc += data[cell*nClasses+k] * wt
			}
			mean := errors.SafeDivide(acc, total)
			for cell := 0; cell < w.Size(); cell++ {
				data[cell*nClasses+k] -= mean
			}
			intercept[k] += mean
		}
	}
	return nil
}

// ProcessTerms reduces the bagged tensors of every term (bagged[term][bag])
// to a mean tensor and a standard deviation tensor, then centers the means.
// bagWeights weight the bags in both reductions. Nil counts every bag once,
// which is how a freshly trained model is averaged. Merging passes the
// concatenated bag weights of its inputs.
//
// For up to two classes each mean tensor is shifted to zero mean under its
// bin weights and the shift goes to the intercept. For more classes post is
// applied (DefaultMulticlassPostprocess when nil). Finally cells on the first
// or last slice of any axis whose slice carries no weight are reset to zero in
// both outputs.
func ProcessTerms(nClasses int, bagged [][]*tensor.Tensor, binWeights []*tensor.Tensor, bagWeights []float64, post MulticlassPostprocessor) (scores, stddevs []*tensor.Tensor, intercept []float64, err error) {
	if len(binWeights) != len(bagged) {
		return nil, nil, nil, errors.NewDimensionError("ProcessTerms", len(bagged), len(binWeights), 0)
	}

	weights := bagWeights
	if allEqual(bagWeights) {
		weights = nil
	}

	scores = make([]*tensor.Tensor, len(bagged))
	stddevs = make([]*tensor.Tensor, len(bagged))
	for t, bags := range bagged {
		if len(bags) == 0 {
			return nil, nil, nil, errors.NewValueError("ProcessTerms", "term has no bags")
		}
		if len(bags) != len(bagWeights) {
			return nil, nil, nil, errors.NewDimensionError("ProcessTerms", len(bagWeights), len(bags), 0)
		}
		mean, std, err := reduceBags(bags, weights)
		if err != nil {
			return nil, nil, nil, errors.Wrapf(err, "term %d", t)
		}
		scores[t], stddevs[t] = mean, std
	}

	intercept = make([]float64, ScoreWidth(nClasses))
	if nClasses <= 2 {
		for t, s := range scores {
			w := binWeights[t]
			if !s.SameShape(w) {
				return nil, nil, nil, errors.NewDimensionError("ProcessTerms", w.Rank(), s.Rank(), 0)
			}
			mean := errors.SafeDivide(weightedSum(s.Data(), w.Data()), w.Sum())
			s.AddScalar(-mean)
			intercept[0] += mean
		}
	} else {
		if post == nil {
			post = DefaultMulticlassPostprocess
		}
		if err := post(nClasses, scores, intercept, binWeights); err != nil {
			return nil, nil, nil, err
		}
	}

	RestoreMissingValueZeros(scores, binWeights)
	RestoreMissingValueZeros(stddevs, binWeights)
	return scores, stddevs, intercept, nil
}

// reduceBags computes the per-cell mean and population standard deviation
// across bags. Nil weights means every bag counts equally.
func reduceBags(bags []*tensor.Tensor, weights []float64) (*tensor.Tensor, *tensor.Tensor, error) {
	for _, b := range bags[1:] {
		if !b.SameShape(bags[0]) {
			return nil, nil, errors.NewDimensionError("ProcessTerms", bags[0].Rank(), b.Rank(), 0)
		}
	}
	shape := bags[0].Shape()
	mean := tensor.New(shape...)
	std := tensor.New(shape...)
	col := make([]float64, len(bags))
	md, sd := mean.Data(), std.Data()
	for i := range md {
		for b, t := range bags {
			col[b] = t.Data()[i]
		}
		md[i], sd[i] = stat.PopMeanStdDev(col, weights)
	}
	return mean, std, nil
}

// RestoreMissingValueZeros zeroes the first (last) slice of every axis of a
// tensor when the matching slice of its bin weights sums to zero. Tensors may
// carry one extra trailing class axis.
func RestoreMissingValueZeros(tensors []*tensor.Tensor, binWeights []*tensor.Tensor) {
	for t, tt := range tensors {
		w := binWeights[t]
		for axis := 0; axis < w.Rank(); axis++ {
			last := w.Dim(axis) - 1
			zeroLow := w.SliceSum(axis, 0) == 0
			zeroHigh := w.SliceSum(axis, last) == 0
			if zeroLow {
				tt.SetSlice(axis, 0, 0)
			}
			if zeroHigh {
				tt.SetSlice(axis, last, 0)
			}
		}
	}
}

func allEqual(xs []float64) bool {
	for _, x := range xs {
		if x != xs[0] {
			return false
		}
	}
	return true
}

func weightedSum(xs, ws []float64) float64 {
	var s float64
	for i, x := range xs {
		s += x * ws[i]
	}
	return s
}
