package binning

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Histogram is a density summary of a continuous feature kept for display.
// Counts[i] covers [Edges[i], Edges[i+1]); the last bucket is closed.
type Histogram struct {
	Edges  []float64 `json:"edges"`
	Counts []float64 `json:"counts"`
}

// DoaneHistogram builds a histogram with Doane's bucket-count rule over the
// non-NaN values, weighted when weights is non-nil.
func DoaneHistogram(xs, weights []float64) *Histogram {
	var vals, ws []float64
	for i, v := range xs {
		if math.IsNaN(v) {
			continue
		}
		vals = append(vals, v)
		if weights != nil {
			ws = append(ws, weights[i])
		}
	}
	if len(vals) == 0 {
		return nil
	}
	lo, hi := floats.Min(vals), floats.Max(vals)
	if lo == hi {
		return &Histogram{Edges: []float64{lo - 0.5, hi + 0.5}, Counts: []float64{totalWeight(len(vals), ws)}}
	}

	n := float64(len(vals))
	k := 1.0
	if n > 2 {
		g1 := math.Abs(stat.Skew(vals, nil))
		sg1 := math.Sqrt(6 * (n - 2) / ((n + 1) * (n + 3)))
		k = 1 + math.Log2(n) + math.Log2(1+g1/sg1)
		if math.IsNaN(k) || math.IsInf(k, 0) {
			k = 1 + math.Log2(n)
		}
	}
	nb := int(math.Ceil(k))
	if nb < 1 {
		nb = 1
	}
	edges := floats.Span(make([]float64, nb+1), lo, hi)
	counts := make([]float64, nb)
	for i, v := range vals {
		b := int((v - lo) / (hi - lo) * float64(nb))
		if b >= nb {
			b = nb - 1
		}
		w := 1.0
		if ws != nil {
			w = ws[i]
		}
		counts[b] += w
	}
	return &Histogram{Edges: edges, Counts: counts}
}
