package engine

import (
	"math"

	"github.com/YuminosukeSato/ebmgo/boost"
	"github.com/YuminosukeSato/ebmgo/pkg/errors"
)

// minHessian keeps Newton steps finite when predictions saturate.
const minHessian = 1e-16

// objective computes per-sample derivatives for every score of a sample.
type objective interface {
	// gradients writes the gradient and hessian of each score.
	gradients(scores []float64, target float64, grad, hess []float64)
	// loss returns the sample loss used as the boosting metric.
	loss(scores []float64, target float64) float64
	name() string
}

func newObjective(nClasses int) objective {
	switch boost.ObjectiveFor(nClasses) {
	case boost.Regression:
		return l2Objective{}
	case boost.Binary:
		return logLossObjective{}
	default:
		return &softmaxObjective{probs: make([]float64, nClasses)}
	}
}

// l2Objective is squared error.
type l2Objective struct{}

func (l2Objective) gradients(scores []float64, target float64, grad, hess []float64) {
	grad[0] = scores[0] - target
	hess[0] = 1.0
}

func (l2Objective) loss(scores []float64, target float64) float64 {
	diff := scores[0] - target
	return diff * diff
}

func (l2Objective) name() string { return "regression" }

// logLossObjective is binary cross-entropy on a single logit.
type logLossObjective struct{}

func (logLossObjective) gradients(scores []float64, target float64, grad, hess []float64) {
	p := errors.Sigmoid(scores[0])
	grad[0] = p - target
	hess[0] = math.Max(p*(1-p), minHessian)
}

func (logLossObjective) loss(scores []float64, target float64) float64 {
	s := scores[0]
	return softplus(s) - target*s
}

func (logLossObjective) name() string { return "binary" }

// softplus computes log(1+e^s) without overflow.
func softplus(s float64) float64 {
	if s > 0 {
		return s + math.Log1p(math.Exp(-s))
	}
	return math.Log1p(math.Exp(s))
}

// softmaxObjective is multiclass cross-entropy with a diagonal hessian. It
// reuses its buffer and must not be shared between sessions.
type softmaxObjective struct {
	probs []float64
}

func (o *softmaxObjective) gradients(scores []float64, target float64, grad, hess []float64) {
	errors.Softmax(o.probs, scores)
	class := int(target)
	for k, p := range o.probs {
		if k == class {
			grad[k] = p - 1.0
		} else {
			grad[k] = p
		}
		hess[k] = math.Max(p*(1.0-p), minHessian)
	}
}

func (o *softmaxObjective) loss(scores []float64, target float64) float64 {
	return errors.LogSumExp(scores) - scores[int(target)]
}

func (o *softmaxObjective) name() string { return "multiclass" }
