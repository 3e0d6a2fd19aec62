package binning

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
)

// distinctCounts returns the sorted distinct non-NaN values of xs and how
// many times each occurs.
func distinctCounts(xs []float64) ([]float64, []int) {
	vals := make([]float64, 0, len(xs))
	for _, v := range xs {
		if !math.IsNaN(v) {
			vals = append(vals, v)
		}
	}
	sort.Float64s(vals)
	var uniq []float64
	var counts []int
	for i, v := range vals {
		if i > 0 && v == vals[i-1] {
			counts[len(counts)-1]++
			continue
		}
		uniq = append(uniq, v)
		counts = append(counts, 1)
	}
	return uniq, counts
}

// midpoint returns a value in (lo, hi] that stays finite for extreme inputs.
func midpoint(lo, hi float64) float64 {
	m := lo/2 + hi/2
	if m <= lo || math.IsInf(m, 0) {
		return hi
	}
	return m
}

// humanize picks the value with the fewest significant decimal digits in
// (lo, hi]. Values strictly between lo and hi keep every sample in the same bin.
func humanize(lo, hi float64) float64 {
	width := hi - lo
	if !(width > 0) || math.IsInf(width, 0) {
		return midpoint(lo, hi)
	}
	for e := math.Ceil(math.Log10(math.Max(math.Abs(lo), math.Abs(hi)))) + 1; e > -300; e-- {
		var v float64
		if e < 0 {
			// dividing by an exact power of ten keeps short decimals exact
			inv := math.Pow(10, -e)
			if math.IsInf(inv, 0) || math.IsInf(hi*inv, 0) {
				break
			}
			v = math.Floor(hi*inv) / inv
		} else {
			step := math.Pow(10, e)
			if math.IsInf(step, 0) {
				continue
			}
			v = math.Floor(hi/step) * step
		}
		if v > lo && v <= hi && !math.IsInf(v, 0) {
			return v
		}
	}
	return midpoint(lo, hi)
}

// CutQuantile places at most maxCuts cuts so that bins hold roughly equal
// sample counts and, where possible, at least minSamplesBin samples each.
// Cuts fall between adjacent distinct values, so identical values always
// share a bin. With humanized set each cut is rounded to the shortest decimal
// that leaves bin membership unchanged.
func CutQuantile(xs []float64, minSamplesBin int, humanized bool, maxCuts int) []float64 {
	if minSamplesBin < 1 {
		minSamplesBin = 1
	}
	uniq, counts := distinctCounts(xs)
	if len(uniq) < 2 || maxCuts <= 0 {
		return []float64{}
	}
	total := 0
	for _, c := range counts {
		total += c
	}

	cuts := make([]float64, 0, maxCuts)
	remaining := total
	acc := 0
	for i := 0; i < len(uniq)-1; i++ {
		acc += counts[i]
		binsLeft := maxCuts - len(cuts) + 1
		target := float64(remaining) / float64(binsLeft)
		after := remaining - acc
		if float64(acc) >= target-1e-9 && acc >= minSamplesBin && after >= minSamplesBin && len(cuts) < maxCuts {
			var cut float64
			if humanized {
				cut = humanize(uniq[i], uniq[i+1])
			} else {
				cut = midpoint(uniq[i], uniq[i+1])
			}
			cuts = append(cuts, cut)
			remaining -= acc
			acc = 0
		}
	}
	return cuts
}

// CutUniform places maxCuts equal-width cuts strictly inside (min, max) of
// the non-NaN values.
func CutUniform(xs []float64, maxCuts int) []float64 {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range xs {
		if math.IsNaN(v) {
			continue
		}
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	if !(hi > lo) || maxCuts <= 0 || math.IsInf(hi-lo, 0) {
		return []float64{}
	}
	edges := floats.Span(make([]float64, maxCuts+2), lo, hi)
	cuts := make([]float64, 0, maxCuts)
	for _, v := range edges[1 : len(edges)-1] {
		if v > lo && v < hi && (len(cuts) == 0 || v > cuts[len(cuts)-1]) {
			cuts = append(cuts, v)
		}
	}
	return cuts
}

// CutsToIntervals converts cuts into [lo, hi) interval bounds, the first
// interval starting at -Inf and the last ending at +Inf.
func CutsToIntervals(cuts []float64) [][2]float64 {
	out := make([][2]float64, len(cuts)+1)
	lo := math.Inf(-1)
	for i, c := range cuts {
		out[i] = [2]float64{lo, c}
		lo = c
	}
	out[len(cuts)] = [2]float64{lo, math.Inf(1)}
	return out
}

// IntervalsToCuts is the inverse of CutsToIntervals.
func IntervalsToCuts(intervals [][2]float64) []float64 {
	if len(intervals) == 0 {
		return []float64{}
	}
	cuts := make([]float64, 0, len(intervals)-1)
	for _, iv := range intervals[:len(intervals)-1] {
		cuts = append(cuts, iv[1])
	}
	return cuts
}
