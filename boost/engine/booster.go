// Package engine is an in-process implementation of boost.Engine.
//
// Mains are grown as greedy contiguous segmentations of the bin axis, pairs as
// the best single cut on each axis. Leaf values are Newton steps on squared
// error, binary log loss or softmax cross-entropy depending on the dataset.
package engine

import (
	"context"
	"fmt"
	"math"

	"github.com/YuminosukeSato/ebmgo/boost"
	"github.com/YuminosukeSato/ebmgo/core/native"
	"github.com/YuminosukeSato/ebmgo/core/tensor"
	"github.com/YuminosukeSato/ebmgo/pkg/errors"
)

// Engine opens in-process boosting sessions.
type Engine struct {
	// Lambda is L2 regularization added to every hessian sum.
	Lambda float64
}

// New creates an engine without regularization.
func New() *Engine { return &Engine{} }

var _ boost.Engine = (*Engine)(nil)

// session is the sample state shared by boosters and detectors.
type session struct {
	ds     *boost.Dataset
	obj    objective
	width  int
	train  []int
	valid  []int
	scores []float64
	grad   []float64
	hess   []float64
	closed bool
}

func openSession(ds *boost.Dataset, bag native.Bag, initScores []float64) (*session, error) {
	if ds == nil {
		return nil, errors.NewValueError("engine.Open", "dataset is nil")
	}
	if err := ds.Validate(); err != nil {
		return nil, err
	}
	n := ds.NumSamples()
	width := boost.ScoreWidth(ds.NumClasses)
	if bag != nil && len(bag) != n {
		return nil, errors.NewDimensionError("engine.Open", n, len(bag), 0)
	}
	if initScores != nil && len(initScores) != n*width {
		return nil, errors.NewDimensionError("engine.Open", n*width, len(initScores), 0)
	}

	s := &session{
		ds:     ds,
		obj:    newObjective(ds.NumClasses),
		width:  width,
		scores: make([]float64, n*width),
		grad:   make([]float64, n*width),
		hess:   make([]float64, n*width),
	}
	copy(s.scores, initScores)
	for i := 0; i < n; i++ {
		switch {
		case bag.IsTrain(i):
			s.train = append(s.train, i)
		case bag.IsValidation(i):
			s.valid = append(s.valid, i)
		}
	}
	if len(s.train) == 0 {
		return nil, errors.ErrEmptyData
	}
	if ds.NumClasses >= 0 {
		for _, y := range ds.Targets {
			if y < 0 || int(y) >= max(ds.NumClasses, 2) || y != math.Trunc(y) {
				return nil, errors.NewValidationError("targets", "class index out of range", y)
			}
		}
	}
	return s, nil
}

func (s *session) weight(i int) float64 {
	if s.ds.Weights == nil {
		return 1.0
	}
	return s.ds.Weights[i]
}

// computeGradients refreshes derivatives of the training samples.
func (s *session) computeGradients() {
	w := s.width
	for _, i := range s.train {
		s.obj.gradients(s.scores[i*w:(i+1)*w], s.ds.Targets[i], s.grad[i*w:(i+1)*w], s.hess[i*w:(i+1)*w])
	}
}

// cell maps sample i to its row-major cell within a term.
func (s *session) cell(features []int, h *histogram, i int) int {
	c := 0
	for a, f := range features {
		c += s.ds.Features[f][i] * h.strides[a]
	}
	return c
}

// buildHistogram accumulates training samples of a term. multipliers, when
// non-nil, scales each training sample (inner bag resampling counts).
func (s *session) buildHistogram(features []int, multipliers []float64) *histogram {
	shape := make([]int, len(features))
	for a, f := range features {
		shape[a] = s.ds.NumBins[f]
	}
	h := newHistogram(shape, s.width)
	w := s.width
	for j, i := range s.train {
		m := 1.0
		if multipliers != nil {
			m = multipliers[j]
			if m == 0 {
				continue
			}
		}
		h.add(s.cell(features, h, i), m*s.weight(i), s.grad[i*w:(i+1)*w], s.hess[i*w:(i+1)*w])
	}
	return h
}

// metric is the weighted mean loss on validation samples, or on training
// samples when there is no validation split.
func (s *session) metric() float64 {
	idx := s.valid
	if len(idx) == 0 {
		idx = s.train
	}
	w := s.width
	var total, wsum float64
	for _, i := range idx {
		wt := s.weight(i)
		total += wt * s.obj.loss(s.scores[i*w:(i+1)*w], s.ds.Targets[i])
		wsum += wt
	}
	return errors.SafeDivide(total, wsum)
}

// OpenBooster opens a booster session over one bag.
func (e *Engine) OpenBooster(ctx context.Context, cfg boost.BoosterConfig) (boost.Booster, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s, err := openSession(cfg.Dataset, cfg.Bag, cfg.InitScores)
	if err != nil {
		return nil, err
	}
	if cfg.InnerBags < 0 {
		return nil, errors.NewValidationError("inner_bags", "must be non-negative", cfg.InnerBags)
	}
	b := &booster{
		session:     s,
		lambda:      e.Lambda,
		terms:       cfg.Terms,
		innerBags:   cfg.InnerBags,
		nc:          native.New(cfg.Seed),
		bestMetric:  math.Inf(1),
		pendingTerm: -1,
	}
	for t, features := range cfg.Terms {
		if len(features) < 1 || len(features) > 2 {
			return nil, errors.NewValidationError("terms", "terms must have one or two features", features)
		}
		for _, f := range features {
			if f < 0 || f >= len(cfg.Dataset.Features) {
				return nil, errors.NewValidationError("terms", fmt.Sprintf("term %d feature index out of range", t), f)
			}
		}
		b.model = append(b.model, tensor.New(cfg.Dataset.TermShape(features)...))
	}
	return b, nil
}

type booster struct {
	*session
	lambda    float64
	terms     [][]int
	innerBags int
	nc        *native.Context

	model      []*tensor.Tensor
	best       []*tensor.Tensor
	bestMetric float64

	pending     *tensor.Tensor
	pendingTerm int
	splits      []int
}

func (b *booster) check(term int) error {
	if b.closed {
		return errors.ErrSessionClosed
	}
	if term < 0 || term >= len(b.terms) {
		return errors.NewValidationError("term", "term index out of range", term)
	}
	return nil
}

// GenerateTermUpdate grows a pending update for term and returns its gain.
func (b *booster) GenerateTermUpdate(term int, flags boost.UpdateFlags, learningRate float64, minSamplesLeaf, maxLeaves int) (float64, error) {
	if err := b.check(term); err != nil {
		return 0, err
	}
	b.computeGradients()
	features := b.terms[term]
	sp := splitter{lambda: b.lambda, minSamplesLeaf: minSamplesLeaf}
	sums := flags&boost.GradientSums != 0
	random := flags&boost.RandomSplits != 0

	update := tensor.New(b.model[term].Shape()...)
	var gain float64
	var splits []int

	grow := func(multipliers []float64, dst []float64) ([]int, float64) {
		h := b.buildHistogram(features, multipliers)
		if len(features) == 1 {
			var sp1 []int
			var g float64
			if random {
				sp1 = sp.randomMain(h, maxLeaves, b.nc)
			} else {
				sp1, g = sp.growMain(h, maxLeaves)
			}
			sp.mainUpdate(h, sp1, learningRate, sums, dst)
			return sp1, g
		}
		q := quadrants{cut0: -1, cut1: -1}
		if random {
			q.cut0 = b.nc.IntN(h.shape[0]) - 1
			q.cut1 = b.nc.IntN(h.shape[1]) - 1
		} else {
			q = sp.bestQuadrants(h)
		}
		sp.pairUpdate(h, q, learningRate, sums, dst)
		var first []int
		if q.cut0 >= 0 {
			first = []int{q.cut0}
		}
		return first, q.gain
	}

	if b.innerBags == 0 {
		splits, gain = grow(nil, update.Data())
	} else {
		// Inner bags average updates grown on bootstrap resamples.
		buf := make([]float64, update.Size())
		for ib := 0; ib < b.innerBags; ib++ {
			sp1, g := grow(b.resample(), buf)
			if ib == 0 {
				splits = sp1
			}
			gain += g
			for i, v := range buf {
				update.Data()[i] += v
			}
		}
		update.Scale(1 / float64(b.innerBags))
		gain /= float64(b.innerBags)
	}

	b.pending = update
	b.pendingTerm = term
	b.splits = splits
	return gain, nil
}

// resample draws bootstrap counts over the training samples.
func (b *booster) resample() []float64 {
	counts := make([]float64, len(b.train))
	for range b.train {
		counts[b.nc.IntN(len(b.train))]++
	}
	return counts
}

func (b *booster) checkPending(term int) error {
	if err := b.check(term); err != nil {
		return err
	}
	if b.pending == nil || b.pendingTerm != term {
		return errors.NewValueError("booster", fmt.Sprintf("no pending update for term %d", term))
	}
	return nil
}

// TermUpdateSplits returns the split positions of the pending update.
func (b *booster) TermUpdateSplits(term int) ([]int, error) {
	if err := b.checkPending(term); err != nil {
		return nil, err
	}
	return append([]int(nil), b.splits...), nil
}

// TermUpdate returns a copy of the pending update.
func (b *booster) TermUpdate(term int) (*tensor.Tensor, error) {
	if err := b.checkPending(term); err != nil {
		return nil, err
	}
	return b.pending.Clone(), nil
}

// SetTermUpdate replaces the pending update.
func (b *booster) SetTermUpdate(term int, update *tensor.Tensor) error {
	if err := b.check(term); err != nil {
		return err
	}
	if update == nil || !update.SameShape(b.model[term]) {
		return errors.NewDimensionError("SetTermUpdate", b.model[term].Rank(), rankOf(update), 0)
	}
	if err := errors.CheckNumericalStability("SetTermUpdate", update.Data(), 0); err != nil {
		return err
	}
	b.pending = update.Clone()
	b.pendingTerm = term
	return nil
}

func rankOf(t *tensor.Tensor) int {
	if t == nil {
		return 0
	}
	return t.Rank()
}

// ApplyTermUpdate adds the pending update to the model and every sample
// score, then returns the metric.
func (b *booster) ApplyTermUpdate() (float64, error) {
	if b.closed {
		return 0, errors.ErrSessionClosed
	}
	if b.pending == nil {
		return 0, errors.NewValueError("ApplyTermUpdate", "no pending update")
	}
	term := b.pendingTerm
	if err := b.model[term].Add(b.pending); err != nil {
		return 0, err
	}

	features := b.terms[term]
	strides := make([]int, len(features))
	stride := 1
	for a := len(features) - 1; a >= 0; a-- {
		strides[a] = stride
		stride *= b.ds.NumBins[features[a]]
	}
	upd := b.pending.Data()
	w := b.width
	for i := 0; i < b.ds.NumSamples(); i++ {
		c := 0
		for a, f := range features {
			c += b.ds.Features[f][i] * strides[a]
		}
		for k := 0; k < w; k++ {
			b.scores[i*w+k] += upd[c*w+k]
		}
	}
	b.pending = nil
	b.pendingTerm = -1
	b.splits = nil

	m := b.metric()
	if err := errors.CheckScalar("ApplyTermUpdate", m, 0); err != nil {
		return 0, err
	}
	if m < b.bestMetric {
		b.bestMetric = m
		b.best = cloneTensors(b.model)
	}
	return m, nil
}

// CurrentModel returns copies of the latest term tensors.
func (b *booster) CurrentModel() ([]*tensor.Tensor, error) {
	if b.closed {
		return nil, errors.ErrSessionClosed
	}
	return cloneTensors(b.model), nil
}

// BestModel returns copies of the term tensors that had the lowest metric.
func (b *booster) BestModel() ([]*tensor.Tensor, error) {
	if b.closed {
		return nil, errors.ErrSessionClosed
	}
	if b.best == nil {
		return cloneTensors(b.model), nil
	}
	return cloneTensors(b.best), nil
}

// Close releases the session. Closing twice is an error.
func (b *booster) Close() error {
	if b.closed {
		return errors.ErrSessionClosed
	}
	b.closed = true
	b.model, b.best, b.pending = nil, nil, nil
	return nil
}

func cloneTensors(ts []*tensor.Tensor) []*tensor.Tensor {
	out := make([]*tensor.Tensor, len(ts))
	for i, t := range ts {
		out[i] = t.Clone()
	}
	return out
}
