package engine

import (
	"context"

	"github.com/YuminosukeSato/ebmgo/boost"
	"github.com/YuminosukeSato/ebmgo/pkg/errors"
)

// OpenInteractionDetector opens a detector over one bag. Gradients are taken
// once at the initial scores.
func (e *Engine) OpenInteractionDetector(ctx context.Context, cfg boost.DetectorConfig) (boost.InteractionDetector, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s, err := openSession(cfg.Dataset, cfg.Bag, cfg.InitScores)
	if err != nil {
		return nil, err
	}
	s.computeGradients()
	return &detector{session: s, lambda: e.Lambda}, nil
}

type detector struct {
	*session
	lambda float64
}

// InteractionStrength is the gain of the best one-cut-per-axis partition of
// the pair over leaving it whole.
func (d *detector) InteractionStrength(features []int, _ boost.InteractionFlags, minSamplesLeaf int) (float64, error) {
	if d.closed {
		return 0, errors.ErrSessionClosed
	}
	if len(features) != 2 || features[0] == features[1] {
		return 0, errors.NewValidationError("features", "interaction strength needs two distinct features", features)
	}
	for _, f := range features {
		if f < 0 || f >= len(d.ds.Features) {
			return 0, errors.NewValidationError("features", "feature index out of range", f)
		}
	}
	h := d.buildHistogram(features, nil)
	q := splitter{lambda: d.lambda, minSamplesLeaf: minSamplesLeaf}.bestQuadrants(h)
	return q.gain, nil
}

func (d *detector) Close() error {
	if d.closed {
		return errors.ErrSessionClosed
	}
	d.closed = true
	return nil
}
