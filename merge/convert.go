package merge

import (
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/YuminosukeSato/ebmgo/binning"
)

// conversion is a categorical level rewritten as continuous cuts.
//
// groups[b] lists the categorical bin indices that land in continuous bin b.
// Bin 0 is the missing bin. Categories whose names are not numbers have no
// continuous bin and are left out.
type conversion struct {
	cuts   []float64
	groups [][]int
	min    float64
	max    float64
}

// toContinuous clusters the numeric category names of a categorical level by
// bin index and places a cut halfway between neighbouring clusters. Clusters
// that overlap are joined.
func toContinuous(def *binning.Categorical) *conversion {
	clusters := map[int][]float64{}
	lo, hi := math.NaN(), math.NaN()
	for cat, idx := range def.Mapping {
		v, err := strconv.ParseFloat(strings.TrimSpace(cat), 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		if math.IsNaN(lo) || v < lo {
			lo = v
		}
		if math.IsNaN(hi) || v > hi {
			hi = v
		}
		clusters[idx] = append(clusters[idx], v)
	}

	type span struct {
		low, high float64
		idx       int
	}
	spans := make([]span, 0, len(clusters))
	for idx, vals := range clusters {
		sort.Float64s(vals)
		spans = append(spans, span{vals[0], vals[len(vals)-1], idx})
	}
	sort.Slice(spans, func(i, j int) bool {
		if spans[i].low != spans[j].low {
			return spans[i].low < spans[j].low
		}
		if spans[i].high != spans[j].high {
			return spans[i].high < spans[j].high
		}
		return spans[i].idx < spans[j].idx
	})

	var cuts []float64
	if len(spans) > 1 {
		low := spans[0].high
		for _, s := range spans[1:] {
			if low < s.low {
				cuts = append(cuts, splitPoint(low, s.low))
			}
			low = math.Max(low, s.high)
		}
	}

	out := &conversion{
		cuts:   cuts,
		groups: make([][]int, len(cuts)+2),
		min:    lo,
		max:    hi,
	}
	out.groups[0] = []int{0}
	for _, s := range spans {
		b := 1 + sort.Search(len(cuts), func(i int) bool { return cuts[i] > s.low })
		out.groups[b] = append(out.groups[b], s.idx)
	}
	for _, g := range out.groups {
		sort.Ints(g)
	}
	if out.cuts == nil {
		out.cuts = []float64{}
	}
	return out
}

// splitPoint returns a cut strictly above low and at most high.
func splitPoint(low, high float64) float64 {
	half := (high - low) / 2
	if math.IsInf(half, 0) {
		half = high/2 - low/2
	}
	var mid float64
	if math.Abs(low) <= math.Abs(high) {
		mid = low + half
	} else {
		mid = high - half
	}
	if mid <= low {
		mid = high
	}
	return mid
}
