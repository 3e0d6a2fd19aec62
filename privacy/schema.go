package privacy

import (
	"math"

	"github.com/YuminosukeSato/ebmgo/pkg/errors"
)

// Schema holds public bounds that private binning and private boosting may
// use without spending budget. Features are keyed by column index.
type Schema struct {
	Features map[int][2]float64
	Target   *[2]float64
}

// FeatureBounds returns the bounds known for feature i.
func (s *Schema) FeatureBounds(i int) ([2]float64, bool) {
	if s == nil || s.Features == nil {
		return [2]float64{}, false
	}
	b, ok := s.Features[i]
	return b, ok
}

// Validate checks that every bound pair is ordered.
func (s *Schema) Validate() error {
	if s == nil {
		return nil
	}
	for i, b := range s.Features {
		if math.IsNaN(b[0]) || math.IsNaN(b[1]) || b[1] < b[0] {
			return errors.NewValidationError("privacy_schema", "feature bounds must satisfy min <= max", i)
		}
	}
	if s.Target != nil && (math.IsNaN(s.Target[0]) || math.IsNaN(s.Target[1]) || s.Target[1] < s.Target[0]) {
		return errors.NewValidationError("privacy_schema", "target bounds must satisfy min <= max", *s.Target)
	}
	return nil
}

// DomainSize is the width of the target range used as boosting sensitivity.
// When the schema has no target bounds they are computed from y and a
// PrivacyWarning is raised. Classification always has domain size 1.
func DomainSize(s *Schema, y []float64, classification bool) (float64, error) {
	if classification {
		return 1, nil
	}
	var lo, hi float64
	if s != nil && s.Target != nil {
		lo, hi = s.Target[0], s.Target[1]
	} else {
		errors.Warn(errors.NewPrivacyWarning("target_bounds",
			"no public target bounds supplied; bounds computed from the data leak privacy"))
		if len(y) == 0 {
			return 0, errors.ErrEmptyData
		}
		lo, hi = math.Inf(1), math.Inf(-1)
		for _, v := range y {
			lo = math.Min(lo, v)
			hi = math.Max(hi, v)
		}
	}
	if hi < lo {
		return 0, errors.NewValidationError("target_bounds", "max must not be below min", [2]float64{lo, hi})
	}
	return hi - lo, nil
}
