package boost

import (
	"context"
	"fmt"

	"github.com/YuminosukeSato/ebmgo/core/native"
	"github.com/YuminosukeSato/ebmgo/core/tensor"
	"github.com/YuminosukeSato/ebmgo/pkg/errors"
	"github.com/YuminosukeSato/ebmgo/pkg/log"
)

// Noise enables private boosting: every term update is replaced by noisy
// segment means computed from the booster's gradient sums.
type Noise struct {
	// Scale is the standard deviation of the per-segment Gaussian draw.
	Scale float64
	// BinWeights[t] holds the (noisy) weight of every bin of main term t.
	BinWeights [][]float64
}

// BagParams configures the round-robin loop of one bag.
type BagParams struct {
	Terms                  [][]int
	InnerBags              int
	Flags                  UpdateFlags
	LearningRate           float64
	MinSamplesLeaf         int
	MaxLeaves              int
	EarlyStoppingRounds    int
	EarlyStoppingTolerance float64
	MaxRounds              int
	Noise                  *Noise
}

// Validate checks loop parameters.
func (p *BagParams) Validate() error {
	if len(p.Terms) == 0 {
		return errors.NewValidationError("terms", "at least one term is required", 0)
	}
	if p.MaxRounds < 0 {
		return errors.NewValidationError("max_rounds", "must be non-negative", p.MaxRounds)
	}
	if p.LearningRate <= 0 {
		return errors.NewValidationError("learning_rate", "must be positive", p.LearningRate)
	}
	if p.Noise != nil {
		if len(p.Noise.BinWeights) != len(p.Terms) {
			return errors.NewDimensionError("Noise.BinWeights", len(p.Terms), len(p.Noise.BinWeights), 0)
		}
		for _, t := range p.Terms {
			if len(t) != 1 {
				return errors.NewValidationError("terms", "private boosting supports main terms only", t)
			}
		}
	}
	return nil
}

// BagResult is the outcome of one bag.
type BagResult struct {
	Model      []*tensor.Tensor
	Breakpoint int
	BestMetric float64
}

// CyclicBoost runs the round-robin boosting loop of one bag on a fresh
// booster session. The session is closed on every exit path.
//
// When the bag has no validation split, or noise is active, the latest model
// is returned; otherwise the booster's best model.
func CyclicBoost(ctx context.Context, engine Engine, ds *Dataset, bag native.Bag, initScores []float64, seed int32, p *BagParams, logger log.Logger) (res *BagResult, err error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.GetLoggerWithName("boost")
	}

	booster, err := engine.OpenBooster(ctx, BoosterConfig{
		Dataset:    ds,
		Bag:        bag,
		InitScores: initScores,
		Terms:      p.Terms,
		InnerBags:  p.InnerBags,
		Seed:       seed,
	})
	if err != nil {
		return nil, errors.NewModelError("OpenBooster", "booster failure", err)
	}
	defer func() {
		if cerr := booster.Close(); cerr != nil && err == nil {
			err = errors.NewModelError("Close", "booster failure", cerr)
		}
	}()

	var nc *native.Context
	if p.Noise != nil {
		nc = native.New(seed)
	}

	es := NewEarlyStopping(p.EarlyStoppingRounds, p.EarlyStoppingTolerance)
	round := 0
	for round = 0; round < p.MaxRounds; round++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if round%10 == 0 {
			logger.Debug("boosting round", log.IterationKey, round, log.MetricKey, es.BestMetric)
		}

		for t := range p.Terms {
			if _, err := booster.GenerateTermUpdate(t, p.Flags, p.LearningRate, p.MinSamplesLeaf, p.MaxLeaves); err != nil {
				return nil, errors.NewModelError("GenerateTermUpdate", fmt.Sprintf("term %d", t), err)
			}
			if p.Noise != nil {
				if err := injectNoise(booster, t, p.Noise, nc); err != nil {
					return nil, err
				}
			}
			metric, err := booster.ApplyTermUpdate()
			if err != nil {
				return nil, errors.NewModelError("ApplyTermUpdate", fmt.Sprintf("term %d", t), err)
			}
			es.Observe(metric)
		}

		if es.EndRound() {
			break
		}
	}
	if round == p.MaxRounds && round > 0 {
		round--
	}

	logger.Info("bag finished",
		log.MetricKey, es.BestMetric,
		log.BreakpointKey, round,
	)

	var model []*tensor.Tensor
	if bag == nil || p.Noise != nil {
		model, err = booster.CurrentModel()
	} else {
		model, err = booster.BestModel()
	}
	if err != nil {
		return nil, errors.NewModelError("Model", "booster failure", err)
	}
	return &BagResult{Model: model, Breakpoint: round, BestMetric: es.BestMetric}, nil
}

// injectNoise turns the pending gradient-sum update of a main term into noisy
// segment means and hands it back to the booster negated.
func injectNoise(b Booster, term int, noise *Noise, nc *native.Context) error {
	splits, err := b.TermUpdateSplits(term)
	if err != nil {
		return errors.NewModelError("TermUpdateSplits", fmt.Sprintf("term %d", term), err)
	}
	update, err := b.TermUpdate(term)
	if err != nil {
		return errors.NewModelError("TermUpdate", fmt.Sprintf("term %d", term), err)
	}
	noisy, err := NoisySegmentUpdate(update, splits, noise.BinWeights[term], noise.Scale, nc)
	if err != nil {
		return err
	}
	if err := b.SetTermUpdate(term, noisy); err != nil {
		return errors.NewModelError("SetTermUpdate", fmt.Sprintf("term %d", term), err)
	}
	return nil
}

// NoisySegmentUpdate adds one N(0, scale²) draw per segment of a 1-D update,
// divides each segment by its total bin weight and negates the result.
// Segments are delimited by splits; a segment holding only the missing bin is
// left as is. A segment with zero weight becomes zero.
func NoisySegmentUpdate(update *tensor.Tensor, splits []int, binWeights []float64, scale float64, nc *native.Context) (*tensor.Tensor, error) {
	if update.Rank() != 1 {
		return nil, errors.NewDimensionError("NoisySegmentUpdate", 1, update.Rank(), 1)
	}
	n := update.Dim(0)
	if len(binWeights) != n {
		return nil, errors.NewDimensionError("NoisySegmentUpdate", n, len(binWeights), 0)
	}
	bounds := make([]int, 0, len(splits)+2)
	bounds = append(bounds, 0)
	for _, s := range splits {
		if s < 0 || s+1 >= n {
			return nil, errors.NewValueError("NoisySegmentUpdate", fmt.Sprintf("split %d outside axis of length %d", s, n))
		}
		bounds = append(bounds, s+1)
	}
	bounds = append(bounds, n)

	src := update.Data()
	noisy := update.Clone()
	dst := noisy.Data()
	for k := 0; k+1 < len(bounds); k++ {
		from, to := bounds[k], bounds[k+1]
		if to == 1 {
			continue
		}
		draw := nc.Normal(scale)
		weight := 0.0
		for i := from; i < to; i++ {
			weight += binWeights[i]
		}
		for i := from; i < to; i++ {
			dst[i] = errors.SafeDivide(src[i]+draw, weight)
		}
	}
	noisy.Scale(-1)
	return noisy, nil
}
