package engine

import (
	"math"
	"sort"

	"github.com/YuminosukeSato/ebmgo/core/native"
	"github.com/YuminosukeSato/ebmgo/pkg/errors"
)

// histogram holds gradient statistics per term cell. Cells are laid out
// row-major over the term axes; every cell carries width score slots.
type histogram struct {
	shape   []int
	strides []int
	width   int
	count   []int
	grad    []float64
	hess    []float64
}

func newHistogram(shape []int, width int) *histogram {
	cells := 1
	strides := make([]int, len(shape))
	for i := len(shape) - 1; i >= 0; i-- {
		strides[i] = cells
		cells *= shape[i]
	}
	return &histogram{
		shape:   shape,
		strides: strides,
		width:   width,
		count:   make([]int, cells),
		grad:    make([]float64, cells*width),
		hess:    make([]float64, cells*width),
	}
}

func (h *histogram) cells() int { return len(h.count) }

// add accumulates one sample with weight w into cell.
func (h *histogram) add(cell int, w float64, grad, hess []float64) {
	h.count[cell]++
	base := cell * h.width
	for k := 0; k < h.width; k++ {
		h.grad[base+k] += w * grad[k]
		h.hess[base+k] += w * hess[k]
	}
}

// region is the summed statistics of a set of cells.
type region struct {
	count int
	grad  []float64
	hess  []float64
}

func newRegion(width int) region {
	return region{grad: make([]float64, width), hess: make([]float64, width)}
}

func (r *region) addCell(h *histogram, cell int) {
	r.count += h.count[cell]
	base := cell * h.width
	for k := range r.grad {
		r.grad[k] += h.grad[base+k]
		r.hess[k] += h.hess[base+k]
	}
}

// score is the Newton objective reduction G²/(H+λ) summed over classes.
func (r *region) score(lambda float64) float64 {
	var s float64
	for k, g := range r.grad {
		den := r.hess[k] + lambda
		if den < minHessian {
			continue
		}
		s += g * g / den
	}
	return s
}

// leafValue returns the update for class k of a region.
func (r *region) leafValue(k int, lr, lambda float64, sums bool) float64 {
	if sums {
		return lr * r.grad[k]
	}
	return errors.SafeDivide(-lr*r.grad[k], r.hess[k]+lambda)
}

// splitter grows term updates from a histogram.
type splitter struct {
	lambda         float64
	minSamplesLeaf int
}

// segment is a contiguous run of bins [from, to) on a single axis.
type segment struct {
	from, to  int
	bestSplit int
	bestGain  float64
}

func (sp splitter) regionOf(h *histogram, from, to int) region {
	r := newRegion(h.width)
	for c := from; c < to; c++ {
		r.addCell(h, c)
	}
	return r
}

// bestSplit finds the highest gain split of [from, to) on a 1-D histogram.
// The returned split s puts bins ≤ s on the left. It returns -1 when no
// split has positive gain or satisfies the leaf size constraint.
func (sp splitter) bestSplit(h *histogram, from, to int) (int, float64) {
	total := sp.regionOf(h, from, to)
	parent := total.score(sp.lambda)

	left := newRegion(h.width)
	right := total
	right.grad = append([]float64(nil), total.grad...)
	right.hess = append([]float64(nil), total.hess...)

	best, bestGain := -1, 0.0
	for s := from; s < to-1; s++ {
		base := s * h.width
		left.count += h.count[s]
		right.count -= h.count[s]
		for k := 0; k < h.width; k++ {
			left.grad[k] += h.grad[base+k]
			left.hess[k] += h.hess[base+k]
			right.grad[k] -= h.grad[base+k]
			right.hess[k] -= h.hess[base+k]
		}
		if left.count < sp.minSamplesLeaf || right.count < sp.minSamplesLeaf {
			continue
		}
		gain := 0.5 * (left.score(sp.lambda) + right.score(sp.lambda) - parent)
		if math.IsNaN(gain) || math.IsInf(gain, 0) {
			continue
		}
		if gain > bestGain {
			best, bestGain = s, gain
		}
	}
	return best, bestGain
}

// growMain splits a 1-D histogram greedily until maxLeaves segments exist or
// no segment can be split. It returns sorted split positions and the gain.
func (sp splitter) growMain(h *histogram, maxLeaves int) ([]int, float64) {
	n := h.shape[0]
	segs := []segment{{from: 0, to: n}}
	segs[0].bestSplit, segs[0].bestGain = sp.bestSplit(h, 0, n)

	var splits []int
	total := 0.0
	for len(segs) < maxLeaves {
		pick := -1
		for i, s := range segs {
			if s.bestSplit >= 0 && (pick < 0 || s.bestGain > segs[pick].bestGain) {
				pick = i
			}
		}
		if pick < 0 {
			break
		}
		s := segs[pick]
		splits = append(splits, s.bestSplit)
		total += s.bestGain

		left := segment{from: s.from, to: s.bestSplit + 1}
		right := segment{from: s.bestSplit + 1, to: s.to}
		left.bestSplit, left.bestGain = sp.bestSplit(h, left.from, left.to)
		right.bestSplit, right.bestGain = sp.bestSplit(h, right.from, right.to)
		segs[pick] = left
		segs = append(segs, right)
	}
	sort.Ints(splits)
	return splits, total
}

// randomMain picks up to maxLeaves-1 distinct split positions at random.
func (sp splitter) randomMain(h *histogram, maxLeaves int, nc *native.Context) []int {
	n := h.shape[0]
	if n < 2 || maxLeaves < 2 {
		return nil
	}
	perm := nc.Perm(n - 1)
	k := maxLeaves - 1
	if k > len(perm) {
		k = len(perm)
	}
	splits := append([]int(nil), perm[:k]...)
	sort.Ints(splits)
	return splits
}

// mainUpdate fills an update from the segments delimited by splits.
func (sp splitter) mainUpdate(h *histogram, splits []int, lr float64, sums bool, dst []float64) {
	from := 0
	bounds := append(append([]int(nil), splits...), h.shape[0]-1)
	for _, s := range bounds {
		to := s + 1
		r := sp.regionOf(h, from, to)
		for c := from; c < to; c++ {
			for k := 0; k < h.width; k++ {
				dst[c*h.width+k] = r.leafValue(k, lr, sp.lambda, sums)
			}
		}
		from = to
	}
}

// quadrants are the four regions produced by one cut per axis of a pair.
type quadrants struct {
	cut0, cut1 int
	gain       float64
}

// pairRegion sums cells with axis-0 bins in [a0,b0) and axis-1 bins in [a1,b1).
func (sp splitter) pairRegion(h *histogram, a0, b0, a1, b1 int) region {
	r := newRegion(h.width)
	for i := a0; i < b0; i++ {
		for j := a1; j < b1; j++ {
			r.addCell(h, i*h.strides[0]+j)
		}
	}
	return r
}

// cutRanges splits [0, n) after bin cut, or returns it whole for cut -1.
func cutRanges(n, cut int) [][2]int {
	if cut < 0 {
		return [][2]int{{0, n}}
	}
	return [][2]int{{0, cut + 1}, {cut + 1, n}}
}

// quadrantRegions returns the regions of a cut pair; a cut of -1 leaves that
// axis whole.
func (sp splitter) quadrantRegions(h *histogram, cut0, cut1 int) []region {
	out := make([]region, 0, 4)
	for _, r := range cutRanges(h.shape[0], cut0) {
		for _, c := range cutRanges(h.shape[1], cut1) {
			out = append(out, sp.pairRegion(h, r[0], r[1], c[0], c[1]))
		}
	}
	return out
}

// bestQuadrants searches every cut pair of a 2-D histogram.
func (sp splitter) bestQuadrants(h *histogram) quadrants {
	parent := sp.pairRegion(h, 0, h.shape[0], 0, h.shape[1])
	parentScore := parent.score(sp.lambda)
	best := quadrants{cut0: -1, cut1: -1}
	for c0 := -1; c0 < h.shape[0]-1; c0++ {
		for c1 := -1; c1 < h.shape[1]-1; c1++ {
			if c0 < 0 && c1 < 0 {
				continue
			}
			gain, ok := sp.quadrantGain(h, c0, c1, parentScore)
			if ok && gain > best.gain {
				best = quadrants{cut0: c0, cut1: c1, gain: gain}
			}
		}
	}
	return best
}

func (sp splitter) quadrantGain(h *histogram, cut0, cut1 int, parentScore float64) (float64, bool) {
	var s float64
	for _, r := range sp.quadrantRegions(h, cut0, cut1) {
		if r.count > 0 && r.count < sp.minSamplesLeaf {
			return 0, false
		}
		s += r.score(sp.lambda)
	}
	gain := 0.5 * (s - parentScore)
	if math.IsNaN(gain) || math.IsInf(gain, 0) {
		return 0, false
	}
	return gain, true
}

// pairUpdate fills an update from the quadrants of q.
func (sp splitter) pairUpdate(h *histogram, q quadrants, lr float64, sums bool, dst []float64) {
	for _, rr := range cutRanges(h.shape[0], q.cut0) {
		for _, cc := range cutRanges(h.shape[1], q.cut1) {
			r := sp.pairRegion(h, rr[0], rr[1], cc[0], cc[1])
			for i := rr[0]; i < rr[1]; i++ {
				for j := cc[0]; j < cc[1]; j++ {
					cell := i*h.strides[0] + j
					for k := 0; k < h.width; k++ {
						dst[cell*h.width+k] = r.leafValue(k, lr, sp.lambda, sums)
					}
				}
			}
		}
	}
}
