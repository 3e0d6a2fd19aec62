// Package ebm assembles binning, privacy calibration and bagged boosting into
// a trained additive model, and scores and persists that model.
package ebm

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/google/uuid"

	"github.com/YuminosukeSato/ebmgo/binning"
	"github.com/YuminosukeSato/ebmgo/core/model"
	"github.com/YuminosukeSato/ebmgo/core/tensor"
	"github.com/YuminosukeSato/ebmgo/pkg/errors"
)

// Kind is the task a model was trained for.
type Kind string

const (
	Regressor  Kind = "regressor"
	Classifier Kind = "classifier"
)

// DocumentKind tags persisted models.
const DocumentKind = "ebm"

// Range is a [min, max] pair. NaN and infinities survive JSON.
type Range [2]float64

// MarshalJSON implements json.Marshaler.
func (r Range) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]model.Float{model.Float(r[0]), model.Float(r[1])})
}

// UnmarshalJSON implements json.Unmarshaler.
func (r *Range) UnmarshalJSON(b []byte) error {
	var v [2]model.Float
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	r[0], r[1] = float64(v[0]), float64(v[1])
	return nil
}

// Feature describes one input column of a fitted model.
type Feature struct {
	Name string              `json:"name"`
	Type binning.FeatureType `json:"type"`
	// Levels holds the bin definitions: level 0 for mains, level 1 for
	// pairs. Identical trailing levels are dropped.
	Levels      binning.Levels     `json:"bins"`
	Histogram   *binning.Histogram `json:"histogram,omitempty"`
	Bounds      *Range             `json:"bounds,omitempty"`
	UniqueCount *int               `json:"unique_count,omitempty"`
	ZeroCount   *int               `json:"zero_count,omitempty"`
}

// Term is one additive component over one or two features.
type Term struct {
	Features []int `json:"features"`
	// Scores carries a trailing class axis for multiclass models.
	Scores  *tensor.Tensor `json:"scores"`
	StdDevs *tensor.Tensor `json:"stddevs"`
	// Weights has one cell per bin combination and no class axis.
	Weights *tensor.Tensor `json:"weights"`
	// BaggedScores holds the uncentered per-bag tensors kept for merging.
	BaggedScores []*tensor.Tensor `json:"bagged_scores"`
}

// Model is a fitted additive model.
type Model struct {
	ID      uuid.UUID `json:"id"`
	Kind    Kind      `json:"kind"`
	Private bool      `json:"private"`
	// Classes lists class labels in score order; nil for regression.
	Classes  []string   `json:"classes,omitempty"`
	Features []*Feature `json:"features"`
	Terms    []*Term    `json:"terms"`
	// Intercept has n_classes entries for multiclass, otherwise one.
	Intercept   []float64 `json:"intercept"`
	BagWeights  []float64 `json:"bag_weights"`
	Breakpoints []int     `json:"breakpoints"`

	NoiseScale *float64    `json:"noise_scale,omitempty"`
	DomainSize *float64    `json:"domain_size,omitempty"`
	NSamples   *int        `json:"n_samples,omitempty"`
	MinTarget  *float64    `json:"min_target,omitempty"`
	MaxTarget  *float64    `json:"max_target,omitempty"`
	SourceIDs  []uuid.UUID `json:"source_ids,omitempty"`
}

// NumClasses returns the class count, or -1 for regression.
func (m *Model) NumClasses() int {
	if m.Kind == Regressor {
		return -1
	}
	return len(m.Classes)
}

// IsClassifier reports whether the model predicts classes.
func (m *Model) IsClassifier() bool { return m.Kind == Classifier }

// TermNames returns "a" for mains and "a x b" for pairs.
func (m *Model) TermNames() []string {
	out := make([]string, len(m.Terms))
	for i, t := range m.Terms {
		names := make([]string, len(t.Features))
		for j, f := range t.Features {
			names[j] = m.Features[f].Name
		}
		out[i] = strings.Join(names, " x ")
	}
	return out
}

// TermTypes returns the feature type for mains and "interaction" for pairs.
func (m *Model) TermTypes() []string {
	out := make([]string, len(m.Terms))
	for i, t := range m.Terms {
		switch len(t.Features) {
		case 1:
			out[i] = string(m.Features[t.Features[0]].Type)
		case 2:
			out[i] = "interaction"
		default:
			out[i] = "group"
		}
	}
	return out
}

// TermShape returns the expected score tensor shape of a term.
func (m *Model) TermShape(features []int) []int {
	shape := make([]int, 0, len(features)+1)
	for _, f := range features {
		shape = append(shape, m.Features[f].Levels.ForArity(len(features)).NumBins())
	}
	if n := m.NumClasses(); n > 2 {
		shape = append(shape, n)
	}
	return shape
}

// FeatureImportances returns the mean absolute score of every term, weighted
// by its bin weights. Multiclass scores are first averaged over classes.
func (m *Model) FeatureImportances() []float64 {
	out := make([]float64, len(m.Terms))
	multiclass := m.NumClasses() > 2
	for i, t := range m.Terms {
		abs := t.Scores.Data()
		nc := 1
		if multiclass {
			nc = m.NumClasses()
		}
		var sum float64
		for cell, w := range t.Weights.Data() {
			var a float64
			for k := 0; k < nc; k++ {
				a += math.Abs(abs[cell*nc+k])
			}
			sum += w * a / float64(nc)
		}
		out[i] = errors.SafeDivide(sum, t.Weights.Sum())
	}
	return out
}

// Validate checks the structural invariants of a model.
func (m *Model) Validate() error {
	switch m.Kind {
	case Regressor:
		if len(m.Classes) != 0 {
			return errors.NewValidationError("classes", "regressors have no classes", m.Classes)
		}
	case Classifier:
		if len(m.Classes) < 2 {
			return errors.NewValidationError("classes", "classifiers need at least two classes", m.Classes)
		}
	default:
		return errors.NewValidationError("kind", "must be regressor or classifier", string(m.Kind))
	}
	width := 1
	if m.NumClasses() > 2 {
		width = m.NumClasses()
	}
	if len(m.Intercept) != width {
		return errors.NewDimensionError("Model.Intercept", width, len(m.Intercept), 0)
	}
	for i, f := range m.Features {
		if len(f.Levels) == 0 {
			return errors.NewValidationError(f.Name, "feature has no bin levels", i)
		}
	}
	for i, t := range m.Terms {
		if len(t.Features) == 0 {
			return errors.NewValidationError("terms", fmt.Sprintf("term %d has no features", i), nil)
		}
		for _, f := range t.Features {
			if f < 0 || f >= len(m.Features) {
				return errors.NewValidationError("terms", fmt.Sprintf("term %d references a missing feature", i), f)
			}
		}
		want := tensor.New(m.TermShape(t.Features)...)
		if t.Scores == nil || !t.Scores.SameShape(want) {
			return errors.NewValidationError("terms", fmt.Sprintf("term %d scores do not match its bins", i), m.TermNames()[i])
		}
		if t.StdDevs != nil && !t.StdDevs.SameShape(want) {
			return errors.NewValidationError("terms", fmt.Sprintf("term %d stddevs do not match its bins", i), m.TermNames()[i])
		}
		if t.Weights == nil || t.Weights.Rank() != len(t.Features) {
			return errors.NewValidationError("terms", fmt.Sprintf("term %d weights do not match its bins", i), m.TermNames()[i])
		}
		for _, b := range t.BaggedScores {
			if !b.SameShape(want) {
				return errors.NewValidationError("terms", fmt.Sprintf("term %d bagged scores do not match its bins", i), m.TermNames()[i])
			}
		}
	}
	return nil
}

// Save writes the model as a JSON document.
func (m *Model) Save(path string) error {
	return model.SaveJSON(m, DocumentKind, path)
}

// LoadModel reads and validates a model written by Save.
func LoadModel(path string) (*Model, error) {
	m := &Model{}
	if err := model.LoadJSON(m, DocumentKind, path); err != nil {
		return nil, err
	}
	if err := m.Validate(); err != nil {
		return nil, errors.Wrapf(err, "load %s", path)
	}
	return m, nil
}
