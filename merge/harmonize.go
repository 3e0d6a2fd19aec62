package merge

import (
	"math"
	"sort"

	"github.com/YuminosukeSato/ebmgo/binning"
	"github.com/YuminosukeSato/ebmgo/core/tensor"
	"github.com/YuminosukeSato/ebmgo/pkg/errors"
)

// axisPlan maps every bin of a merged axis onto one bin of a source axis.
type axisPlan struct {
	// lookup[b] is the source bin that merged bin b falls in.
	lookup []int
	// frac[b] is the share of the source bin's weight owned by merged bin b.
	frac []float64
	// groups translates a converted source bin into the categorical bins of
	// the stored tensor. nil means the source bins are the tensor bins.
	groups [][]int
}

func (p *axisPlan) cells(b int) []int {
	src := p.lookup[b]
	if p.groups == nil {
		return []int{src}
	}
	if src < len(p.groups) {
		return p.groups[src]
	}
	return nil
}

// planAxis builds the mapping from the merged definition to a source
// definition. Bounds are [min, max] and may hold NaN when unknown.
func planAxis(merged binning.BinDefinition, mergedBounds [2]float64, src binning.BinDefinition, srcBounds [2]float64, groups [][]int) (*axisPlan, error) {
	switch m := merged.(type) {
	case *binning.Categorical:
		s, ok := src.(*binning.Categorical)
		if !ok {
			return nil, errors.NewValidationError("bins", "continuous bins cannot map onto categories", src.Kind())
		}
		return planCategorical(m, s), nil
	case *binning.Continuous:
		s, ok := src.(*binning.Continuous)
		if !ok {
			return nil, errors.NewValidationError("bins", "categorical bins must be converted before harmonizing", src.Kind())
		}
		p := planContinuous(m.Cuts, mergedBounds, s.Cuts, srcBounds)
		p.groups = groups
		return p, nil
	default:
		return nil, errors.Newf("merge: unknown bin definition %T", merged)
	}
}

func planCategorical(merged, src *binning.Categorical) *axisPlan {
	n := merged.NumBins()
	p := &axisPlan{lookup: make([]int, n), frac: make([]float64, n)}
	p.frac[0] = 1

	srcCats := src.Categories()
	for b, cats := range merged.Categories() {
		if b == 0 || b == n-1 {
			continue
		}
		p.lookup[b] = src.UnknownIndex()
		if len(cats) == 0 {
			continue
		}
		// categories sharing a merged bin share a source bin too
		if idx, ok := src.Mapping[cats[0]]; ok {
			p.lookup[b] = idx
			p.frac[b] = float64(len(cats)) / float64(len(srcCats[idx]))
		}
	}
	p.lookup[n-1] = src.MaxIndex() + 1
	p.frac[n-1] = 1
	return p
}

func planContinuous(cuts []float64, bounds [2]float64, srcCuts []float64, srcBounds [2]float64) *axisPlan {
	n := len(cuts) + 2
	p := &axisPlan{lookup: make([]int, n), frac: make([]float64, n)}
	p.frac[0] = 1

	for i := 0; i <= len(cuts); i++ {
		b := i + 1
		src := len(srcCuts) + 1
		if i < len(cuts) {
			src = 1 + sort.SearchFloat64s(srcCuts, cuts[i])
		}
		p.lookup[b] = src

		lo, hi := bounds[0], bounds[1]
		if i > 0 {
			lo = cuts[i-1]
		}
		if i < len(cuts) {
			hi = cuts[i]
		}
		srcLo, srcHi := srcBounds[0], srcBounds[1]
		if src > 1 {
			srcLo = srcCuts[src-2]
		}
		if src <= len(srcCuts) {
			srcHi = srcCuts[src-1]
		}

		if srcHi <= lo || hi <= srcLo {
			p.frac[b] = 0
			continue
		}
		lo = math.Max(lo, srcLo)
		hi = math.Min(hi, srcHi)
		p.frac[b] = (hi - lo) / (srcHi - srcLo)
	}

	// Without usable bounds a split tail bin is divided evenly.
	split := map[int][]int{}
	for b := 1; b < n; b++ {
		split[p.lookup[b]] = append(split[p.lookup[b]], b)
	}
	for _, bins := range split {
		even := false
		for _, b := range bins {
			f := p.frac[b]
			if math.IsNaN(f) || math.IsInf(f, 0) {
				even = true
			}
		}
		if !even {
			continue
		}
		for _, b := range bins {
			p.frac[b] = 1 / float64(len(bins))
		}
	}
	return p
}

// canonicalPerm returns the transpose that reorders a stored term tensor with
// the given feature order into the order of want. A trailing class axis
// stays last.
func canonicalPerm(want, have []int, rank int) ([]int, error) {
	used := make([]bool, len(have))
	perm := make([]int, 0, rank)
	for _, f := range want {
		pos := -1
		for j, g := range have {
			if g == f && !used[j] {
				pos = j
				break
			}
		}
		if pos < 0 {
			return nil, errors.NewValidationError("terms", "term features do not match", have)
		}
		used[pos] = true
		perm = append(perm, pos)
	}
	if rank == len(want)+1 {
		perm = append(perm, len(want))
	} else if rank != len(want) {
		return nil, errors.NewDimensionError("harmonize", len(want), rank, 0)
	}
	return perm, nil
}

// harmonizeWeights redistributes a weight tensor onto the merged grid. Each
// merged cell receives the weight of the source cells it maps to scaled by
// the product of its per-axis fractions.
func harmonizeWeights(plans []*axisPlan, src *tensor.Tensor) *tensor.Tensor {
	shape := make([]int, len(plans))
	for a, p := range plans {
		shape[a] = len(p.lookup)
	}
	out := tensor.New(shape...)
	data := out.Data()
	lists := make([][]int, len(plans))
	tensor.ForEachIndex(shape, func(idx []int) {
		frac := 1.0
		for a, p := range plans {
			lists[a] = p.cells(idx[a])
			frac *= p.frac[idx[a]]
		}
		var v float64
		eachCombination(lists, func(old []int) {
			v += src.At(old...)
		})
		data[out.Offset(idx)] = v * frac
	})
	return out
}

// harmonizeScores carries a score tensor onto the merged grid. A merged cell
// keeps the score of its source cell; when it covers several source cells
// their scores are averaged under the source weights. width > 1 means a
// trailing class axis.
func harmonizeScores(plans []*axisPlan, src, srcWeights *tensor.Tensor, width int) *tensor.Tensor {
	shape := make([]int, len(plans))
	for a, p := range plans {
		shape[a] = len(p.lookup)
	}
	full := append([]int(nil), shape...)
	if width > 1 {
		full = append(full, width)
	}
	out := tensor.New(full...)
	data := out.Data()
	lists := make([][]int, len(plans))
	at := make([]int, len(full))
	cell := make([]int, len(full))
	vals := make([]float64, width)
	tensor.ForEachIndex(shape, func(idx []int) {
		n := 1
		for a, p := range plans {
			lists[a] = p.cells(idx[a])
			n *= len(lists[a])
		}
		for k := range vals {
			vals[k] = 0
		}
		var total float64
		eachCombination(lists, func(old []int) {
			copy(at, old)
			w := 1.0
			if n > 1 {
				w = srcWeights.At(old...)
				total += w
			}
			for k := 0; k < width; k++ {
				if width > 1 {
					at[len(old)] = k
				}
				vals[k] += w * src.At(at...)
			}
		})
		if n > 1 {
			for k := range vals {
				vals[k] = errors.SafeDivide(vals[k], total)
			}
		}
		copy(cell, idx)
		base := out.Offset(cell)
		copy(data[base:base+width], vals)
	})
	return out
}

// eachCombination calls fn with every choice of one element per list.
func eachCombination(lists [][]int, fn func(pick []int)) {
	shape := make([]int, len(lists))
	for a, l := range lists {
		shape[a] = len(l)
	}
	pick := make([]int, len(lists))
	tensor.ForEachIndex(shape, func(idx []int) {
		for a, i := range idx {
			pick[a] = lists[a][i]
		}
		fn(pick)
	})
}
