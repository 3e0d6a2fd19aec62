package boost

import (
	"context"
	"time"

	"github.com/YuminosukeSato/ebmgo/core/native"
	"github.com/YuminosukeSato/ebmgo/core/parallel"
	"github.com/YuminosukeSato/ebmgo/pkg/errors"
	"github.com/YuminosukeSato/ebmgo/pkg/log"
)

// BagPlan fixes the seed and the train/validation split of one outer bag.
type BagPlan struct {
	Seed int32
	Bag  native.Bag
	// InitScores are the starting scores of every sample, nil for zeros.
	InitScores []float64
}

// PlanBags derives one seed per outer bag from seed and draws each bag's
// split with a Context built from that bag's seed.
func PlanBags(seed int32, outerBags, n int, classes []int, validationSize float64) ([]BagPlan, error) {
	if outerBags < 1 {
		return nil, errors.NewValidationError("outer_bags", "must be at least 1", outerBags)
	}
	seeds := native.BagSeeds(seed, outerBags)
	plans := make([]BagPlan, outerBags)
	for i, s := range seeds {
		bag, err := native.New(s).MakeBag(n, classes, validationSize)
		if err != nil {
			return nil, err
		}
		plans[i] = BagPlan{Seed: s, Bag: bag}
	}
	return plans, nil
}

// Orchestrator runs the outer bags of one boosting stage concurrently.
type Orchestrator struct {
	Engine  Engine
	Workers int
	Logger  log.Logger
}

// NewOrchestrator creates an orchestrator with a component logger.
func NewOrchestrator(engine Engine, workers int) *Orchestrator {
	return &Orchestrator{
		Engine:  engine,
		Workers: workers,
		Logger:  log.GetLoggerWithName("boost"),
	}
}

// Boost runs CyclicBoost for every plan and returns results in plan order.
func (o *Orchestrator) Boost(ctx context.Context, ds *Dataset, plans []BagPlan, p *BagParams, phase string) ([]*BagResult, error) {
	if err := ds.Validate(); err != nil {
		return nil, err
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	start := time.Now()
	o.Logger.Info("boosting started",
		log.OperationKey, "boost",
		log.PhaseKey, phase,
		"bags", len(plans),
		log.TermsKey, len(p.Terms),
	)

	results, err := parallel.Map(ctx, o.Workers, len(plans), func(ctx context.Context, i int) (*BagResult, error) {
		logger := o.Logger.With(log.BagKey, i, log.PhaseKey, phase)
		res, err := CyclicBoost(ctx, o.Engine, ds, plans[i].Bag, plans[i].InitScores, plans[i].Seed, p, logger)
		if err != nil {
			return nil, errors.Wrapf(err, "bag %d", i)
		}
		return res, nil
	})
	if err != nil {
		return nil, err
	}

	o.Logger.Info("boosting finished",
		log.PhaseKey, phase,
		log.DurationMsKey, time.Since(start).Milliseconds(),
	)
	return results, nil
}

// RankInteractions ranks candidate pairs in every bag concurrently.
func (o *Orchestrator) RankInteractions(ctx context.Context, ds *Dataset, plans []BagPlan, features []int, minSamplesLeaf int) ([][]Pair, error) {
	if err := ds.Validate(); err != nil {
		return nil, err
	}
	candidates := AllPairs(features)
	return parallel.Map(ctx, o.Workers, len(plans), func(ctx context.Context, i int) ([]Pair, error) {
		ranked, err := RankBagInteractions(ctx, o.Engine, ds, plans[i], candidates, minSamplesLeaf)
		if err != nil {
			return nil, errors.Wrapf(err, "bag %d", i)
		}
		return ranked, nil
	})
}
