package boost

import (
	"context"
	"fmt"
	"sync"

	"github.com/YuminosukeSato/ebmgo/core/tensor"
)

// fakeEngine scripts booster metrics and interaction strengths.
type fakeEngine struct {
	metrics   []float64
	failApply int
	strengths map[Pair]float64

	mu     sync.Mutex
	opened int
	closed int
}

func newFakeEngine(metrics ...float64) *fakeEngine {
	return &fakeEngine{metrics: metrics, failApply: -1}
}

func (e *fakeEngine) OpenBooster(_ context.Context, cfg BoosterConfig) (Booster, error) {
	e.mu.Lock()
	e.opened++
	e.mu.Unlock()
	b := &fakeBooster{engine: e, ds: cfg.Dataset, terms: cfg.Terms, bestMetric: 1e300}
	for _, t := range cfg.Terms {
		b.model = append(b.model, tensor.New(cfg.Dataset.TermShape(t)...))
	}
	return b, nil
}

func (e *fakeEngine) OpenInteractionDetector(_ context.Context, _ DetectorConfig) (InteractionDetector, error) {
	e.mu.Lock()
	e.opened++
	e.mu.Unlock()
	return &fakeDetector{engine: e}, nil
}

type fakeBooster struct {
	engine      *fakeEngine
	ds          *Dataset
	terms       [][]int
	model       []*tensor.Tensor
	best        []*tensor.Tensor
	bestMetric  float64
	pending     *tensor.Tensor
	pendingTerm int
	calls       int
}

func (b *fakeBooster) GenerateTermUpdate(term int, _ UpdateFlags, lr float64, _, _ int) (float64, error) {
	b.pending = tensor.Full(lr, b.ds.TermShape(b.terms[term])...)
	b.pendingTerm = term
	return 0, nil
}

func (b *fakeBooster) TermUpdateSplits(int) ([]int, error) { return []int{0}, nil }

func (b *fakeBooster) TermUpdate(int) (*tensor.Tensor, error) { return b.pending.Clone(), nil }

func (b *fakeBooster) SetTermUpdate(_ int, u *tensor.Tensor) error {
	b.pending = u.Clone()
	return nil
}

func (b *fakeBooster) ApplyTermUpdate() (float64, error) {
	if b.calls == b.engine.failApply {
		return 0, fmt.Errorf("apply %d failed", b.calls)
	}
	if err := b.model[b.pendingTerm].Add(b.pending); err != nil {
		return 0, err
	}
	m := b.engine.metrics[len(b.engine.metrics)-1]
	if b.calls < len(b.engine.metrics) {
		m = b.engine.metrics[b.calls]
	}
	b.calls++
	if m < b.bestMetric {
		b.bestMetric = m
		b.best = cloneAll(b.model)
	}
	return m, nil
}

func (b *fakeBooster) CurrentModel() ([]*tensor.Tensor, error) { return cloneAll(b.model), nil }

func (b *fakeBooster) BestModel() ([]*tensor.Tensor, error) {
	if b.best == nil {
		return cloneAll(b.model), nil
	}
	return cloneAll(b.best), nil
}

func (b *fakeBooster) Close() error {
	b.engine.mu.Lock()
	defer b.engine.mu.Unlock()
	b.engine.closed++
	return nil
}

type fakeDetector struct{ engine *fakeEngine }

func (d *fakeDetector) InteractionStrength(features []int, _ InteractionFlags, _ int) (float64, error) {
	return d.engine.strengths[NewPair(features[0], features[1])], nil
}

func (d *fakeDetector) Close() error {
	d.engine.mu.Lock()
	defer d.engine.mu.Unlock()
	d.engine.closed++
	return nil
}

func cloneAll(ts []*tensor.Tensor) []*tensor.Tensor {
	out := make([]*tensor.Tensor, len(ts))
	for i, t := range ts {
		out[i] = t.Clone()
	}
	return out
}

// smallDataset has two features with axes of 3 and 4 bins.
func smallDataset(nClasses int) *Dataset {
	return &Dataset{
		Features: [][]int{
			{1, 2, 1, 2, 0, 1},
			{1, 2, 3, 3, 2, 1},
		},
		NumBins:    []int{3, 4},
		Targets:    []float64{0, 1, 0, 1, 1, 0},
		NumClasses: nClasses,
	}
}
