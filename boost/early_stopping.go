package boost

import "math"

// EarlyStopping tracks the lowest metric seen in a bag and decides when the
// bag has stopped improving.
//
// The breakpoint metric is re-anchored to the best metric whenever the
// no-improvement streak is zero. After each round the streak resets if the
// best metric beats the breakpoint by more than Tolerance and grows
// otherwise. Rounds < 0 disables stopping.
type EarlyStopping struct {
	Rounds           int
	Tolerance        float64
	BestMetric       float64
	BreakpointMetric float64
	RoundsNoImprove  int
}

// NewEarlyStopping creates a tracker with an infinite best metric.
func NewEarlyStopping(rounds int, tolerance float64) *EarlyStopping {
	return &EarlyStopping{
		Rounds:           rounds,
		Tolerance:        tolerance,
		BestMetric:       math.Inf(1),
		BreakpointMetric: math.Inf(1),
	}
}

// Observe records the metric reported after one term update.
func (es *EarlyStopping) Observe(metric float64) {
	es.BestMetric = math.Min(es.BestMetric, metric)
}

// EndRound applies the end-of-round transition and reports whether the bag
// should stop.
func (es *EarlyStopping) EndRound() bool {
	if es.RoundsNoImprove == 0 {
		es.BreakpointMetric = es.BestMetric
	}
	if es.BestMetric+es.Tolerance < es.BreakpointMetric {
		es.RoundsNoImprove = 0
	} else {
		es.RoundsNoImprove++
	}
	return es.Rounds >= 0 && es.RoundsNoImprove >= es.Rounds
}

// Enabled reports whether stopping can trigger.
func (es *EarlyStopping) Enabled() bool { return es.Rounds >= 0 }
