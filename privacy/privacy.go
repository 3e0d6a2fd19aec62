// Package privacy turns an (epsilon, delta) budget into Gaussian noise scales
// for private binning and private boosting.
package privacy

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/YuminosukeSato/ebmgo/pkg/errors"
)

// Composition names the theorem used to account for repeated noisy queries.
type Composition string

const (
	// Classic is the advanced composition bound for the Gaussian mechanism.
	Classic Composition = "classic"
	// GDP is Gaussian differential privacy (mu-GDP) composition.
	GDP Composition = "gdp"
)

// DefaultBinBudgetFrac is the share of epsilon spent on binning.
const DefaultBinBudgetFrac = 0.1

// Budget is the total privacy budget of one training run.
type Budget struct {
	Epsilon float64 `yaml:"epsilon" json:"epsilon"`
	Delta   float64 `yaml:"delta" json:"delta"`
	// BinBudgetFrac is the fraction of Epsilon spent on private binning.
	BinBudgetFrac float64 `yaml:"bin_budget_frac" json:"bin_budget_frac"`
}

// Allocation splits a Budget between binning and training.
type Allocation struct {
	BinEpsilon      float64
	BinDelta        float64
	TrainingEpsilon float64
	TrainingDelta   float64
}

// ValidateEpsDelta fails unless both epsilon and delta are positive numbers.
func ValidateEpsDelta(eps, delta float64) error {
	if math.IsNaN(eps) || eps <= 0 {
		return errors.NewValidationError("epsilon", "must be a positive number", eps)
	}
	if math.IsNaN(delta) || delta <= 0 {
		return errors.NewValidationError("delta", "must be a positive number", delta)
	}
	return nil
}

// Split divides the budget: binning gets Epsilon*BinBudgetFrac, training the
// rest, and each side gets half of Delta.
func (b Budget) Split() (Allocation, error) {
	if err := ValidateEpsDelta(b.Epsilon, b.Delta); err != nil {
		return Allocation{}, err
	}
	if math.IsNaN(b.BinBudgetFrac) || b.BinBudgetFrac <= 0 || b.BinBudgetFrac >= 1 {
		return Allocation{}, errors.NewValidationError("bin_budget_frac", "must lie strictly between 0 and 1", b.BinBudgetFrac)
	}
	binEps := b.Epsilon * b.BinBudgetFrac
	binDelta := b.Delta / 2
	return Allocation{
		BinEpsilon:      binEps,
		BinDelta:        binDelta,
		TrainingEpsilon: b.Epsilon - binEps,
		TrainingDelta:   b.Delta - binDelta,
	}, nil
}

// ClassicNoiseScale returns sqrt(8·Q·S²·ln(e + eps/delta)/eps²).
func ClassicNoiseScale(queries int, eps, delta, sensitivity float64) (float64, error) {
	if err := ValidateEpsDelta(eps, delta); err != nil {
		return 0, err
	}
	if queries < 1 {
		return 0, errors.NewValidationError("total_queries", "must be at least 1", queries)
	}
	q := float64(queries)
	return math.Sqrt(8 * q * sensitivity * sensitivity * math.Log(math.E+eps/delta) / (eps * eps)), nil
}

// DeltaEpsMu is the delta achieved by a mu-GDP mechanism at epsilon:
// Φ(-eps/mu + mu/2) - e^eps·Φ(-eps/mu - mu/2).
func DeltaEpsMu(eps, mu float64) float64 {
	return distuv.UnitNormal.CDF(-eps/mu+mu/2) - math.Exp(eps)*distuv.UnitNormal.CDF(-eps/mu-mu/2)
}

// GDPMu solves DeltaEpsMu(eps, mu) = delta for mu on [1e-5, 1000].
func GDPMu(eps, delta float64) (float64, error) {
	if err := ValidateEpsDelta(eps, delta); err != nil {
		return 0, err
	}
	mu, err := brentRoot(func(mu float64) float64 { return DeltaEpsMu(eps, mu) - delta }, 1e-5, 1000)
	if err != nil {
		return 0, errors.Wrapf(err, "solve mu for eps=%g delta=%g", eps, delta)
	}
	return mu, nil
}

// GDPNoiseScale returns the unit-sensitivity noise scale sqrt(Q)/mu for Q
// composed queries under mu-GDP.
func GDPNoiseScale(queries int, eps, delta float64) (float64, error) {
	if queries < 1 {
		return 0, errors.NewValidationError("total_queries", "must be at least 1", queries)
	}
	mu, err := GDPMu(eps, delta)
	if err != nil {
		return 0, err
	}
	return math.Sqrt(float64(queries)) / mu, nil
}

// EpsFromMu inverts DeltaEpsMu for epsilon on [0, 500].
func EpsFromMu(mu, delta float64) (float64, error) {
	if math.IsNaN(mu) || mu <= 0 {
		return 0, errors.NewValidationError("mu", "must be a positive number", mu)
	}
	eps, err := brentRoot(func(eps float64) float64 { return DeltaEpsMu(eps, mu) - delta }, 0, 500)
	if err != nil {
		return 0, errors.Wrapf(err, "solve eps for mu=%g delta=%g", mu, delta)
	}
	return eps, nil
}

// Calibrate returns the noise scale for queries composed under method with
// the given L2 sensitivity.
func Calibrate(method Composition, queries int, eps, delta, sensitivity float64) (float64, error) {
	switch method {
	case Classic:
		return ClassicNoiseScale(queries, eps, delta, sensitivity)
	case GDP:
		unit, err := GDPNoiseScale(queries, eps, delta)
		if err != nil {
			return 0, err
		}
		return unit * sensitivity, nil
	default:
		return 0, errors.Wrapf(errors.ErrNotImplemented,
			"composition %q: only 'gdp' and 'classic' are supported", string(method))
	}
}

// Validate rejects unknown composition names.
func (c Composition) Validate() error {
	switch c {
	case Classic, GDP:
		return nil
	default:
		return errors.Wrapf(errors.ErrNotImplemented,
			"composition %q: only 'gdp' and 'classic' are supported", string(c))
	}
}

// TrainingQueries is the number of noisy releases made by private boosting.
func TrainingQueries(maxRounds, nFeatures, outerBags int) int {
	return maxRounds * nFeatures * outerBags
}

// String renders the allocation for logs.
func (a Allocation) String() string {
	return fmt.Sprintf("bin(eps=%g, delta=%g) training(eps=%g, delta=%g)",
		a.BinEpsilon, a.BinDelta, a.TrainingEpsilon, a.TrainingDelta)
}
