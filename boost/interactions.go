package boost

import (
	"container/heap"
	"context"
	"sort"

	"github.com/YuminosukeSato/ebmgo/pkg/errors"
)

// Pair is an unordered feature pair stored with the smaller index first.
type Pair [2]int

// NewPair builds a Pair in canonical order.
func NewPair(a, b int) Pair {
	if a > b {
		a, b = b, a
	}
	return Pair{a, b}
}

// Less orders pairs lexically.
func (p Pair) Less(o Pair) bool {
	if p[0] != o[0] {
		return p[0] < o[0]
	}
	return p[1] < o[1]
}

// AllPairs lists every pair of distinct features in lexical order.
func AllPairs(features []int) []Pair {
	fs := append([]int(nil), features...)
	sort.Ints(fs)
	var out []Pair
	for i := 0; i < len(fs); i++ {
		for j := i + 1; j < len(fs); j++ {
			if fs[i] != fs[j] {
				out = append(out, Pair{fs[i], fs[j]})
			}
		}
	}
	return out
}

// RankBagInteractions measures every candidate on one bag and returns them
// strongest first. Ties keep the lexically larger pair first.
func RankBagInteractions(ctx context.Context, engine Engine, ds *Dataset, plan BagPlan, candidates []Pair, minSamplesLeaf int) (ranked []Pair, err error) {
	det, err := engine.OpenInteractionDetector(ctx, DetectorConfig{
		Dataset:    ds,
		Bag:        plan.Bag,
		InitScores: plan.InitScores,
		Seed:       plan.Seed,
	})
	if err != nil {
		return nil, errors.NewModelError("OpenInteractionDetector", "detector failure", err)
	}
	defer func() {
		if cerr := det.Close(); cerr != nil && err == nil {
			err = errors.NewModelError("Close", "detector failure", cerr)
		}
	}()

	type scored struct {
		pair     Pair
		strength float64
	}
	all := make([]scored, 0, len(candidates))
	for _, p := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		s, err := det.InteractionStrength(p[:], InteractionDefault, minSamplesLeaf)
		if err != nil {
			return nil, errors.NewModelError("InteractionStrength", "detector failure", err)
		}
		all = append(all, scored{pair: p, strength: s})
	}
	sort.SliceStable(all, func(i, j int) bool {
		if all[i].strength != all[j].strength {
			return all[i].strength > all[j].strength
		}
		return all[j].pair.Less(all[i].pair)
	})
	ranked = make([]Pair, len(all))
	for i, s := range all {
		ranked[i] = s.pair
	}
	return ranked, nil
}

type rankedPair struct {
	pair Pair
	rank float64
}

// worse reports whether a ranks after b: larger mean rank, then larger pair.
func worse(a, b rankedPair) bool {
	if a.rank != b.rank {
		return a.rank > b.rank
	}
	return b.pair.Less(a.pair)
}

// topK is a max-heap on worse() holding the best k pairs seen so far.
type topK []rankedPair

func (h topK) Len() int            { return len(h) }
func (h topK) Less(i, j int) bool  { return worse(h[i], h[j]) }
func (h topK) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *topK) Push(x interface{}) { *h = append(*h, x.(rankedPair)) }
func (h *topK) Pop() interface{} {
	old := *h
	x := old[len(old)-1]
	*h = old[:len(old)-1]
	return x
}

// AggregateRanks averages each pair's rank position across bags with a
// running mean and returns the k pairs with the lowest mean rank. Equal mean
// ranks are ordered by the lexically smaller pair first.
func AggregateRanks(bagRankings [][]Pair, k int) []Pair {
	means := map[Pair]float64{}
	for n, ranking := range bagRankings {
		for rank, p := range ranking {
			old := means[p]
			means[p] = old + (float64(rank)-old)/float64(n+1)
		}
	}
	if k <= 0 {
		return nil
	}

	h := make(topK, 0, k+1)
	for p, r := range means {
		heap.Push(&h, rankedPair{pair: p, rank: r})
		if h.Len() > k {
			heap.Pop(&h)
		}
	}
	out := make([]rankedPair, h.Len())
	copy(out, h)
	sort.Slice(out, func(i, j int) bool { return worse(out[j], out[i]) })
	pairs := make([]Pair, len(out))
	for i, r := range out {
		pairs[i] = r.pair
	}
	return pairs
}

// DedupTerms sorts every feature tuple and drops repeated tuples, warning
// when any were dropped. Order of first appearance is kept.
func DedupTerms(terms [][]int, nFeatures int) ([][]int, error) {
	seen := map[string]bool{}
	out := make([][]int, 0, len(terms))
	dropped := 0
	for _, t := range terms {
		st := append([]int(nil), t...)
		sort.Ints(st)
		for i, f := range st {
			if f < 0 || f >= nFeatures {
				return nil, errors.NewValidationError("interactions", "feature index out of range", f)
			}
			if i > 0 && st[i-1] == f {
				return nil, errors.NewValidationError("interactions", "a term cannot repeat a feature", t)
			}
		}
		key := termKey(st)
		if seen[key] {
			dropped++
			continue
		}
		seen[key] = true
		out = append(out, st)
	}
	if dropped > 0 {
		errors.Warn(errors.NewParameterWarning("interactions", "duplicate terms were removed"))
	}
	return out, nil
}

func termKey(t []int) string {
	b := make([]byte, 0, len(t)*4)
	for _, f := range t {
		b = append(b, byte(f>>24), byte(f>>16), byte(f>>8), byte(f))
	}
	return string(b)
}
