package ebm

import (
	"math"

	"github.com/YuminosukeSato/ebmgo/binning"
	"github.com/YuminosukeSato/ebmgo/pkg/errors"
	"github.com/YuminosukeSato/ebmgo/privacy"
)

// TrainingParams holds every hyperparameter of a training run.
type TrainingParams struct {
	// Binning
	MaxBins            int            `yaml:"max_bins" json:"max_bins"`
	MaxInteractionBins int            `yaml:"max_interaction_bins" json:"max_interaction_bins"`
	Binning            binning.Method `yaml:"binning" json:"binning"`
	MinSamplesBin      int            `yaml:"min_samples_bin" json:"min_samples_bin"`

	// Terms. Mains lists the main-effect features, nil for all of them.
	// InteractionTerms, when non-empty, replaces automatic pair detection.
	Mains            []int   `yaml:"mains,omitempty" json:"mains,omitempty"`
	Interactions     int     `yaml:"interactions" json:"interactions"`
	InteractionTerms [][]int `yaml:"interaction_terms,omitempty" json:"interaction_terms,omitempty"`

	// Boosting
	OuterBags              int     `yaml:"outer_bags" json:"outer_bags"`
	InnerBags              int     `yaml:"inner_bags" json:"inner_bags"`
	LearningRate           float64 `yaml:"learning_rate" json:"learning_rate"`
	ValidationSize         float64 `yaml:"validation_size" json:"validation_size"`
	EarlyStoppingRounds    int     `yaml:"early_stopping_rounds" json:"early_stopping_rounds"`
	EarlyStoppingTolerance float64 `yaml:"early_stopping_tolerance" json:"early_stopping_tolerance"`
	MaxRounds              int     `yaml:"max_rounds" json:"max_rounds"`
	MinSamplesLeaf         int     `yaml:"min_samples_leaf" json:"min_samples_leaf"`
	MaxLeaves              int     `yaml:"max_leaves" json:"max_leaves"`

	RandomState int64 `yaml:"random_state" json:"random_state"`
	// Workers bounds the number of bags boosted at once; 0 uses GOMAXPROCS.
	Workers int `yaml:"workers" json:"workers"`

	// Differential privacy
	Private       bool                `yaml:"private" json:"private"`
	Epsilon       float64             `yaml:"epsilon,omitempty" json:"epsilon,omitempty"`
	Delta         float64             `yaml:"delta,omitempty" json:"delta,omitempty"`
	Composition   privacy.Composition `yaml:"composition,omitempty" json:"composition,omitempty"`
	BinBudgetFrac float64             `yaml:"bin_budget_frac,omitempty" json:"bin_budget_frac,omitempty"`
}

// DefaultParams returns the defaults of a regular model.
func DefaultParams() TrainingParams {
	return TrainingParams{
		MaxBins:                256,
		MaxInteractionBins:     32,
		Binning:                binning.MethodQuantile,
		MinSamplesBin:          1,
		Interactions:           10,
		OuterBags:              8,
		InnerBags:              0,
		LearningRate:           0.01,
		ValidationSize:         0.15,
		EarlyStoppingRounds:    50,
		EarlyStoppingTolerance: 1e-4,
		MaxRounds:              5000,
		MinSamplesLeaf:         2,
		MaxLeaves:              3,
		RandomState:            42,
	}
}

// DefaultPrivateParams returns the defaults of a differentially private model.
func DefaultPrivateParams() TrainingParams {
	return TrainingParams{
		MaxBins:                32,
		Binning:                binning.MethodPrivate,
		MinSamplesBin:          1,
		OuterBags:              1,
		LearningRate:           0.01,
		ValidationSize:         0,
		EarlyStoppingRounds:    -1,
		EarlyStoppingTolerance: -1,
		MaxRounds:              300,
		MinSamplesLeaf:         2,
		MaxLeaves:              3,
		RandomState:            42,
		Private:                true,
		Epsilon:                1,
		Delta:                  1e-5,
		Composition:            privacy.GDP,
		BinBudgetFrac:          privacy.DefaultBinBudgetFrac,
	}
}

// Budget returns the privacy budget of a private run.
func (p *TrainingParams) Budget() privacy.Budget {
	return privacy.Budget{Epsilon: p.Epsilon, Delta: p.Delta, BinBudgetFrac: p.BinBudgetFrac}
}

// BinLevels returns the bin budget of every level: mains only under privacy,
// mains and pairs otherwise.
func (p *TrainingParams) BinLevels() []int {
	if p.Private {
		return []int{p.MaxBins}
	}
	return []int{p.MaxBins, p.MaxInteractionBins}
}

// Validate checks parameters before any data is touched.
func (p *TrainingParams) Validate() error {
	if err := p.Binning.Validate(); err != nil {
		return err
	}
	if p.MaxBins < 2 {
		return errors.NewValidationError("max_bins", "must be at least 2", p.MaxBins)
	}
	if !p.Private && p.MaxInteractionBins < 2 {
		return errors.NewValidationError("max_interaction_bins", "must be at least 2", p.MaxInteractionBins)
	}
	if p.OuterBags < 1 {
		return errors.NewValidationError("outer_bags", "must be at least 1", p.OuterBags)
	}
	if p.InnerBags < 0 {
		return errors.NewValidationError("inner_bags", "must be non-negative", p.InnerBags)
	}
	if math.IsNaN(p.LearningRate) || p.LearningRate <= 0 {
		return errors.NewValidationError("learning_rate", "must be positive", p.LearningRate)
	}
	if math.IsNaN(p.ValidationSize) || p.ValidationSize < 0 {
		return errors.NewValidationError("validation_size", "must be non-negative", p.ValidationSize)
	}
	if p.MaxRounds < 0 {
		return errors.NewValidationError("max_rounds", "must be non-negative", p.MaxRounds)
	}
	if p.MinSamplesLeaf < 1 {
		return errors.NewValidationError("min_samples_leaf", "must be at least 1", p.MinSamplesLeaf)
	}
	if p.MaxLeaves < 2 {
		return errors.NewValidationError("max_leaves", "must be at least 2", p.MaxLeaves)
	}
	if p.Interactions < 0 {
		return errors.NewValidationError("interactions", "must be non-negative", p.Interactions)
	}
	if p.Workers < 0 {
		return errors.NewValidationError("workers", "must be non-negative", p.Workers)
	}

	if !p.Private {
		if p.Binning == binning.MethodPrivate {
			return errors.NewValidationError("binning", "private binning requires a private model", string(p.Binning))
		}
		return nil
	}
	if p.Binning != binning.MethodPrivate {
		return errors.NewValidationError("binning", "private models require private binning", string(p.Binning))
	}
	if err := privacy.ValidateEpsDelta(p.Epsilon, p.Delta); err != nil {
		return err
	}
	if err := p.Composition.Validate(); err != nil {
		return err
	}
	if _, err := p.Budget().Split(); err != nil {
		return err
	}
	return nil
}
