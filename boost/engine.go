// Package boost orchestrates bagged, cyclic (round-robin) boosting of binned
// additive terms, optional differentially private update noise, interaction
// ranking across bags, and the reduction of bag results into final terms.
//
// The per-term tree growth itself lives behind the Engine interface; package
// boost/engine ships an in-process implementation.
package boost

import (
	"context"

	"github.com/YuminosukeSato/ebmgo/core/native"
	"github.com/YuminosukeSato/ebmgo/core/tensor"
	"github.com/YuminosukeSato/ebmgo/pkg/errors"
)

// Objective identifies the loss being boosted.
type Objective int

const (
	Regression Objective = iota
	Binary
	Multiclass
)

// ObjectiveFor picks the objective from the number of classes, where
// nClasses < 0 means regression.
func ObjectiveFor(nClasses int) Objective {
	switch {
	case nClasses < 0:
		return Regression
	case nClasses <= 2:
		return Binary
	default:
		return Multiclass
	}
}

// ScoreWidth is the number of scores per sample: n_classes for multiclass,
// otherwise one.
func ScoreWidth(nClasses int) int {
	if nClasses > 2 {
		return nClasses
	}
	return 1
}

// Dataset is binned training data shared read-only by every bag.
type Dataset struct {
	// Features[f][i] is the bin of sample i on feature f.
	Features [][]int
	// NumBins[f] is the axis length of feature f.
	NumBins []int
	// Targets holds regression values or class indices.
	Targets []float64
	// Weights may be nil for unit weights.
	Weights []float64
	// NumClasses is negative for regression.
	NumClasses int
}

// NumSamples returns the number of samples.
func (d *Dataset) NumSamples() int { return len(d.Targets) }

// Validate checks the dataset shape.
func (d *Dataset) Validate() error {
	n := len(d.Targets)
	if n == 0 {
		return errors.ErrEmptyData
	}
	if len(d.NumBins) != len(d.Features) {
		return errors.NewDimensionError("Dataset", len(d.Features), len(d.NumBins), 1)
	}
	for f, col := range d.Features {
		if len(col) != n {
			return errors.NewDimensionError("Dataset", n, len(col), 0)
		}
		for _, b := range col {
			if b < 0 || b >= d.NumBins[f] {
				return errors.NewValidationError("bins", "bin index outside feature axis", b)
			}
		}
	}
	if d.Weights != nil && len(d.Weights) != n {
		return errors.NewDimensionError("Dataset", n, len(d.Weights), 0)
	}
	return nil
}

// TermShape returns the tensor shape of a term over this dataset, with a
// trailing class axis for multiclass.
func (d *Dataset) TermShape(features []int) []int {
	shape := make([]int, 0, len(features)+1)
	for _, f := range features {
		shape = append(shape, d.NumBins[f])
	}
	if d.NumClasses > 2 {
		shape = append(shape, d.NumClasses)
	}
	return shape
}

// UpdateFlags modify how a booster generates a term update.
type UpdateFlags uint32

const (
	UpdateDefault UpdateFlags = 0
	// GradientSums makes the update hold learning-rate scaled raw gradient
	// sums per segment instead of Newton steps, for private boosting.
	GradientSums UpdateFlags = 1 << iota
	// RandomSplits chooses split positions at random instead of by gain.
	RandomSplits
)

// InteractionFlags modify interaction-strength computation.
type InteractionFlags uint32

const InteractionDefault InteractionFlags = 0

// BoosterConfig opens one booster session for one bag.
type BoosterConfig struct {
	Dataset *Dataset
	Bag     native.Bag
	// InitScores holds one score per sample (times ScoreWidth), nil for zeros.
	InitScores []float64
	Terms      [][]int
	InnerBags  int
	Seed       int32
}

// DetectorConfig opens one interaction detector session for one bag.
type DetectorConfig struct {
	Dataset    *Dataset
	Bag        native.Bag
	InitScores []float64
	Seed       int32
}

// Booster is a single-owner session that grows term updates for one bag.
type Booster interface {
	// GenerateTermUpdate grows an update for term and returns its gain.
	GenerateTermUpdate(term int, flags UpdateFlags, learningRate float64, minSamplesLeaf, maxLeaves int) (float64, error)
	// TermUpdateSplits returns the split positions of the pending update
	// along its first axis. Split s separates bin s from bin s+1.
	TermUpdateSplits(term int) ([]int, error)
	// TermUpdate returns a copy of the pending update tensor.
	TermUpdate(term int) (*tensor.Tensor, error)
	// SetTermUpdate replaces the pending update.
	SetTermUpdate(term int, update *tensor.Tensor) error
	// ApplyTermUpdate adds the pending update to the model and returns the
	// validation metric (training metric when there is no validation split).
	ApplyTermUpdate() (float64, error)
	// CurrentModel returns copies of the latest term tensors.
	CurrentModel() ([]*tensor.Tensor, error)
	// BestModel returns copies of the term tensors with the lowest metric.
	BestModel() ([]*tensor.Tensor, error)
	Close() error
}

// InteractionDetector measures pairwise interaction strength for one bag.
type InteractionDetector interface {
	InteractionStrength(features []int, flags InteractionFlags, minSamplesLeaf int) (float64, error)
	Close() error
}

// Engine opens booster and detector sessions.
type Engine interface {
	OpenBooster(ctx context.Context, cfg BoosterConfig) (Booster, error)
	OpenInteractionDetector(ctx context.Context, cfg DetectorConfig) (InteractionDetector, error)
}
