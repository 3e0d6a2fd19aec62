package binning

import (
	"fmt"
	"math"
	"sort"

	"github.com/YuminosukeSato/ebmgo/pkg/errors"
)

// IsMissing reports whether a categorical value counts as missing.
func IsMissing(s string) bool { return s == "" }

// NominalMapping assigns 1..K to the sorted distinct non-missing values.
func NominalMapping(xs []string) *Categorical {
	seen := map[string]struct{}{}
	for _, v := range xs {
		if !IsMissing(v) {
			seen[v] = struct{}{}
		}
	}
	cats := make([]string, 0, len(seen))
	for k := range seen {
		cats = append(cats, k)
	}
	sort.Strings(cats)
	m := make(map[string]int, len(cats))
	for i, c := range cats {
		m[c] = i + 1
	}
	return &Categorical{Mapping: m}
}

// OrdinalMapping assigns 1..K following the caller-supplied order.
func OrdinalMapping(order []string) (*Categorical, error) {
	m := make(map[string]int, len(order))
	for i, c := range order {
		if IsMissing(c) {
			return nil, errors.NewValidationError("order", "ordinal levels must not be empty", i)
		}
		if _, dup := m[c]; dup {
			return nil, errors.NewValidationError("order", "ordinal levels must be unique", c)
		}
		m[c] = i + 1
	}
	return &Categorical{Mapping: m}, nil
}

// DiscretizeNumeric maps every value to its bin under def. NaN maps to 0.
func DiscretizeNumeric(def *Continuous, xs []float64) []int {
	out := make([]int, len(xs))
	for i, v := range xs {
		out[i] = def.Bin(v)
	}
	return out
}

// Bin returns the bin index of a single value.
func (c *Continuous) Bin(v float64) int {
	if math.IsNaN(v) {
		return 0
	}
	return 1 + sort.Search(len(c.Cuts), func(i int) bool { return c.Cuts[i] > v })
}

// DiscretizeCategorical maps every value to its bin under def.
func DiscretizeCategorical(def *Categorical, xs []string) []int {
	out := make([]int, len(xs))
	for i, v := range xs {
		out[i] = def.Bin(v)
	}
	return out
}

// Bin returns the bin index of a single category.
func (c *Categorical) Bin(v string) int {
	if IsMissing(v) {
		return c.MissingIndex()
	}
	if idx, ok := c.Mapping[v]; ok {
		return idx
	}
	return c.UnknownIndex()
}

// Discretize bins a column under any definition kind.
func Discretize(def BinDefinition, col *Column) ([]int, error) {
	switch d := def.(type) {
	case *Continuous:
		if col.Numeric == nil {
			return nil, errors.NewValidationError(col.Name, "continuous bins need a numeric column", col.Type)
		}
		return DiscretizeNumeric(d, col.Numeric), nil
	case *Categorical:
		if col.Categorical == nil {
			return nil, errors.NewValidationError(col.Name, "categorical bins need a string column", col.Type)
		}
		return DiscretizeCategorical(d, col.Categorical), nil
	default:
		return nil, errors.Newf("binning: unknown bin definition %T", def)
	}
}

// CountBins sums sample weights per bin.
func CountBins(bins []int, nBins int, weights []float64) ([]float64, error) {
	out := make([]float64, nBins)
	for i, b := range bins {
		if b < 0 || b >= nBins {
			return nil, errors.NewValueError("CountBins", fmt.Sprintf("bin %d outside [0,%d)", b, nBins))
		}
		if weights == nil {
			out[b]++
		} else {
			out[b] += weights[i]
		}
	}
	return out, nil
}
