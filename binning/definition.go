// Package binning converts raw feature columns into integer bin indices.
//
// A bin definition is either Continuous (sorted cut points) or Categorical
// (category to bin index mapping). Bin index 0 always holds missing values.
package binning

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/YuminosukeSato/ebmgo/pkg/errors"
)

// OtherCategory is the synthetic category that collects rare values under
// private categorical binning.
const OtherCategory = "DPOther"

// BinDefinition is implemented by Continuous and Categorical only.
type BinDefinition interface {
	// NumBins is the length of a tensor axis over this definition.
	NumBins() int
	// Kind returns "continuous" or "categorical".
	Kind() string
	isBinDefinition()
}

// Continuous holds strictly increasing finite cut points. A value v falls in
// bin 1 + #{cut <= v}; NaN falls in bin 0.
type Continuous struct {
	Cuts []float64
}

// NumBins returns len(Cuts)+2: the missing bin plus len(Cuts)+1 intervals.
func (c *Continuous) NumBins() int { return len(c.Cuts) + 2 }

// Kind implements BinDefinition.
func (c *Continuous) Kind() string { return "continuous" }

func (c *Continuous) isBinDefinition() {}

// Validate checks the cut invariants.
func (c *Continuous) Validate() error {
	for i, v := range c.Cuts {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return errors.NewValidationError("cuts", "cut points must be finite", v)
		}
		if i > 0 && v <= c.Cuts[i-1] {
			return errors.NewValidationError("cuts", "cut points must be strictly increasing", c.Cuts)
		}
	}
	return nil
}

// Categorical maps category strings to bin indices 1..K. Several categories
// may share an index after merging.
type Categorical struct {
	Mapping map[string]int
}

// MaxIndex returns K, the largest assigned bin index.
func (c *Categorical) MaxIndex() int {
	k := 0
	for _, v := range c.Mapping {
		if v > k {
			k = v
		}
	}
	return k
}

// NumBins returns K+2: missing, the K category bins and the unknown bin.
func (c *Categorical) NumBins() int { return c.MaxIndex() + 2 }

// Kind implements BinDefinition.
func (c *Categorical) Kind() string { return "categorical" }

func (c *Categorical) isBinDefinition() {}

// UnknownIndex returns the bin that receives categories absent from the mapping.
// Private mappings route them to the OtherCategory bin.
func (c *Categorical) UnknownIndex() int {
	if idx, ok := c.Mapping[OtherCategory]; ok {
		return idx
	}
	return c.MaxIndex() + 1
}

// MissingIndex returns the bin that receives missing values.
func (c *Categorical) MissingIndex() int {
	if idx, ok := c.Mapping[OtherCategory]; ok {
		return idx
	}
	return 0
}

// Categories returns the category names grouped by bin index. Position 0 and
// the unknown position are empty.
func (c *Categorical) Categories() [][]string {
	out := make([][]string, c.NumBins())
	for cat, idx := range c.Mapping {
		out[idx] = append(out[idx], cat)
	}
	for _, cats := range out {
		sort.Strings(cats)
	}
	return out
}

// Validate checks that index 0 is never assigned.
func (c *Categorical) Validate() error {
	for cat, idx := range c.Mapping {
		if idx < 1 {
			return errors.NewValidationError("mapping", fmt.Sprintf("category %q has reserved index", cat), idx)
		}
	}
	return nil
}

// Equal reports whether two definitions describe the same bins.
func Equal(a, b BinDefinition) bool {
	switch x := a.(type) {
	case *Continuous:
		y, ok := b.(*Continuous)
		if !ok || len(x.Cuts) != len(y.Cuts) {
			return false
		}
		for i := range x.Cuts {
			if x.Cuts[i] != y.Cuts[i] {
				return false
			}
		}
		return true
	case *Categorical:
		y, ok := b.(*Categorical)
		if !ok || len(x.Mapping) != len(y.Mapping) {
			return false
		}
		for k, v := range x.Mapping {
			if w, ok := y.Mapping[k]; !ok || w != v {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// Key returns a canonical string identifying the definition's content.
func Key(def BinDefinition) string {
	var sb strings.Builder
	switch d := def.(type) {
	case *Continuous:
		sb.WriteString("c:")
		for _, v := range d.Cuts {
			sb.WriteString(strconv.FormatFloat(v, 'g', -1, 64))
			sb.WriteByte(',')
		}
	case *Categorical:
		sb.WriteString("k:")
		keys := make([]string, 0, len(d.Mapping))
		for k := range d.Mapping {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			sb.WriteString(strconv.Quote(k))
			sb.WriteByte('=')
			sb.WriteString(strconv.Itoa(d.Mapping[k]))
			sb.WriteByte(',')
		}
	}
	return sb.String()
}

// Clone returns a deep copy of def.
func Clone(def BinDefinition) BinDefinition {
	switch d := def.(type) {
	case *Continuous:
		return &Continuous{Cuts: append([]float64(nil), d.Cuts...)}
	case *Categorical:
		m := make(map[string]int, len(d.Mapping))
		for k, v := range d.Mapping {
			m[k] = v
		}
		return &Categorical{Mapping: m}
	default:
		panic(fmt.Sprintf("binning: unknown bin definition %T", def))
	}
}

type definitionJSON struct {
	Kind    string         `json:"kind"`
	Cuts    []float64      `json:"cuts,omitempty"`
	Mapping map[string]int `json:"mapping,omitempty"`
}

// Levels is an ordered list of bin definitions for one feature, level 0
// serving main terms and level 1 serving pairs.
type Levels []BinDefinition

// ForArity returns the definition used by a term with the given number of
// features, clamped to the last available level.
func (l Levels) ForArity(arity int) BinDefinition {
	i := arity - 1
	if i >= len(l) {
		i = len(l) - 1
	}
	if i < 0 {
		i = 0
	}
	return l[i]
}

// MarshalJSON encodes each level with an explicit kind tag.
func (l Levels) MarshalJSON() ([]byte, error) {
	out := make([]definitionJSON, len(l))
	for i, def := range l {
		switch d := def.(type) {
		case *Continuous:
			out[i] = definitionJSON{Kind: d.Kind(), Cuts: d.Cuts}
			if out[i].Cuts == nil {
				out[i].Cuts = []float64{}
			}
		case *Categorical:
			out[i] = definitionJSON{Kind: d.Kind(), Mapping: d.Mapping}
		default:
			return nil, errors.Newf("binning: unknown bin definition %T", def)
		}
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes levels written by MarshalJSON.
func (l *Levels) UnmarshalJSON(b []byte) error {
	var raw []definitionJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return errors.Wrap(err, "decode bin levels")
	}
	out := make(Levels, len(raw))
	for i, r := range raw {
		switch r.Kind {
		case "continuous":
			c := &Continuous{Cuts: r.Cuts}
			if c.Cuts == nil {
				c.Cuts = []float64{}
			}
			if err := c.Validate(); err != nil {
				return err
			}
			out[i] = c
		case "categorical":
			c := &Categorical{Mapping: r.Mapping}
			if c.Mapping == nil {
				c.Mapping = map[string]int{}
			}
			if err := c.Validate(); err != nil {
				return err
			}
			out[i] = c
		default:
			return errors.NewValidationError("kind", "unknown bin definition kind", r.Kind)
		}
	}
	*l = out
	return nil
}
