package engine

import (
	"context"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"gonum.org/v1/gonum/floats"

	"github.com/YuminosukeSato/ebmgo/boost"
	"github.com/YuminosukeSato/ebmgo/core/native"
	"github.com/YuminosukeSato/ebmgo/pkg/errors"
)

func stepDataset() *boost.Dataset {
	return &boost.Dataset{
		Features:   [][]int{{1, 1, 2, 2}},
		NumBins:    []int{3},
		Targets:    []float64{0, 0, 10, 10},
		NumClasses: -1,
	}
}

func TestBoosterMainUpdate(t *testing.T) {
	tests := []struct {
		name       string
		flags      boost.UpdateFlags
		wantUpdate []float64
	}{
		{"newton step", boost.UpdateDefault, []float64{0, 0, 10}},
		{"gradient sums", boost.GradientSums, []float64{0, 0, -20}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := New().OpenBooster(context.Background(), boost.BoosterConfig{
				Dataset: stepDataset(),
				Terms:   [][]int{{0}},
			})
			if err != nil {
				t.Fatalf("OpenBooster() error = %v", err)
			}
			defer b.Close()

			gain, err := b.GenerateTermUpdate(0, tt.flags, 1.0, 1, 3)
			if err != nil {
				t.Fatalf("GenerateTermUpdate() error = %v", err)
			}
			if gain <= 0 {
				t.Errorf("gain = %v, want > 0", gain)
			}
			splits, err := b.TermUpdateSplits(0)
			if err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff([]int{1}, splits); diff != "" {
				t.Errorf("splits mismatch (-want +got):\n%s", diff)
			}
			update, err := b.TermUpdate(0)
			if err != nil {
				t.Fatal(err)
			}
			if !floats.EqualApprox(update.Data(), tt.wantUpdate, 1e-12) {
				t.Errorf("update = %v, want %v", update.Data(), tt.wantUpdate)
			}
		})
	}
}

func TestBoosterApplyFitsStep(t *testing.T) {
	b, err := New().OpenBooster(context.Background(), boost.BoosterConfig{
		Dataset: stepDataset(),
		Terms:   [][]int{{0}},
	})
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()

	if _, err := b.GenerateTermUpdate(0, boost.UpdateDefault, 1.0, 1, 3); err != nil {
		t.Fatal(err)
	}
	metric, err := b.ApplyTermUpdate()
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(metric) > 1e-12 {
		t.Errorf("metric = %v, want 0 after an exact fit", metric)
	}
	if _, err := b.ApplyTermUpdate(); err == nil {
		t.Error("second ApplyTermUpdate without a pending update succeeded")
	}
	model, err := b.CurrentModel()
	if err != nil {
		t.Fatal(err)
	}
	if !floats.EqualApprox(model[0].Data(), []float64{0, 0, 10}, 1e-12) {
		t.Errorf("model = %v", model[0].Data())
	}
}

func TestBoosterMinSamplesLeaf(t *testing.T) {
	b, err := New().OpenBooster(context.Background(), boost.BoosterConfig{
		Dataset: stepDataset(),
		Terms:   [][]int{{0}},
	})
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()

	if _, err := b.GenerateTermUpdate(0, boost.UpdateDefault, 1.0, 3, 3); err != nil {
		t.Fatal(err)
	}
	splits, _ := b.TermUpdateSplits(0)
	if len(splits) != 0 {
		t.Errorf("splits = %v, want none when leaves would be too small", splits)
	}
	update, _ := b.TermUpdate(0)
	if !floats.EqualApprox(update.Data(), []float64{5, 5, 5}, 1e-12) {
		t.Errorf("update = %v, want the global Newton step", update.Data())
	}
}

func TestBoosterSetTermUpdate(t *testing.T) {
	b, _ := New().OpenBooster(context.Background(), boost.BoosterConfig{Dataset: stepDataset(), Terms: [][]int{{0}}})
	defer b.Close()

	if _, err := b.GenerateTermUpdate(0, boost.UpdateDefault, 1, 1, 3); err != nil {
		t.Fatal(err)
	}
	update, _ := b.TermUpdate(0)
	bad := update.Clone()
	bad.Set(math.Inf(1), 1)
	var numErr *errors.NumericalInstabilityError
	if err := b.SetTermUpdate(0, bad); !errors.As(err, &numErr) {
		t.Errorf("SetTermUpdate(+Inf) = %v, want NumericalInstabilityError", err)
	}

	update.Scale(0.5)
	if err := b.SetTermUpdate(0, update); err != nil {
		t.Fatal(err)
	}
	if _, err := b.ApplyTermUpdate(); err != nil {
		t.Fatal(err)
	}
	model, _ := b.CurrentModel()
	if !floats.EqualApprox(model[0].Data(), []float64{0, 0, 5}, 1e-12) {
		t.Errorf("model = %v, want the replaced update", model[0].Data())
	}
}

func TestBoosterClosed(t *testing.T) {
	b, err := New().OpenBooster(context.Background(), boost.BoosterConfig{Dataset: stepDataset(), Terms: [][]int{{0}}})
	if err != nil {
		t.Fatal(err)
	}
	if err := b.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := b.GenerateTermUpdate(0, boost.UpdateDefault, 1, 1, 3); !errors.Is(err, errors.ErrSessionClosed) {
		t.Errorf("GenerateTermUpdate after Close error = %v, want ErrSessionClosed", err)
	}
	if err := b.Close(); !errors.Is(err, errors.ErrSessionClosed) {
		t.Errorf("second Close error = %v", err)
	}
}

func TestOpenBoosterValidation(t *testing.T) {
	tests := []struct {
		name string
		cfg  boost.BoosterConfig
	}{
		{"bag length", boost.BoosterConfig{Dataset: stepDataset(), Bag: native.Bag{1, 1}, Terms: [][]int{{0}}}},
		{"init scores length", boost.BoosterConfig{Dataset: stepDataset(), InitScores: []float64{0}, Terms: [][]int{{0}}}},
		{"feature out of range", boost.BoosterConfig{Dataset: stepDataset(), Terms: [][]int{{3}}}},
		{"triple", boost.BoosterConfig{Dataset: stepDataset(), Terms: [][]int{{0, 0, 0}}}},
		{"no training samples", boost.BoosterConfig{Dataset: stepDataset(), Bag: native.Bag{-1, -1, -1, -1}, Terms: [][]int{{0}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New().OpenBooster(context.Background(), tt.cfg); err == nil {
				t.Error("OpenBooster() = nil error")
			}
		})
	}
}

func xorDataset(nClasses int) *boost.Dataset {
	a := []int{1, 1, 2, 2, 1, 1, 2, 2}
	b := []int{1, 2, 1, 2, 1, 2, 1, 2}
	y := make([]float64, len(a))
	for i := range a {
		if a[i] != b[i] {
			y[i] = 1
		}
	}
	return &boost.Dataset{
		Features:   [][]int{a, b},
		NumBins:    []int{3, 3},
		Targets:    y,
		NumClasses: nClasses,
	}
}

func TestInteractionStrength(t *testing.T) {
	det, err := New().OpenInteractionDetector(context.Background(), boost.DetectorConfig{Dataset: xorDataset(-1)})
	if err != nil {
		t.Fatal(err)
	}
	defer det.Close()

	s, err := det.InteractionStrength([]int{0, 1}, boost.InteractionDefault, 1)
	if err != nil {
		t.Fatal(err)
	}
	if s <= 0 {
		t.Errorf("strength = %v, want > 0 for xor", s)
	}
	if _, err := det.InteractionStrength([]int{0, 0}, boost.InteractionDefault, 1); err == nil {
		t.Error("repeated feature accepted")
	}

	flat := xorDataset(-1)
	flat.Targets = []float64{3, 3, 3, 3, 3, 3, 3, 3}
	flat.Features[1] = []int{1, 1, 1, 1, 2, 2, 2, 2}
	det2, _ := New().OpenInteractionDetector(context.Background(), boost.DetectorConfig{
		Dataset:    flat,
		InitScores: []float64{3, 3, 3, 3, 3, 3, 3, 3},
	})
	defer det2.Close()
	s2, _ := det2.InteractionStrength([]int{0, 1}, boost.InteractionDefault, 1)
	if s2 != 0 {
		t.Errorf("strength = %v, want 0 with zero residuals", s2)
	}
}

func TestCyclicBoostWithEngine(t *testing.T) {
	tests := []struct {
		name     string
		nClasses int
		terms    [][]int
		baseline float64
	}{
		{"binary pair", 2, [][]int{{0, 1}}, math.Ln2},
		{"multiclass mains", 3, [][]int{{0}, {1}}, math.Log(3)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ds := xorDataset(tt.nClasses)
			p := &boost.BagParams{
				Terms:               tt.terms,
				LearningRate:        0.5,
				MinSamplesLeaf:      1,
				MaxLeaves:           3,
				EarlyStoppingRounds: -1,
				MaxRounds:           20,
			}
			res, err := boost.CyclicBoost(context.Background(), New(), ds, nil, nil, 5, p, nil)
			if err != nil {
				t.Fatalf("CyclicBoost() error = %v", err)
			}
			if res.BestMetric >= tt.baseline {
				t.Errorf("BestMetric = %v, want below %v", res.BestMetric, tt.baseline)
			}
			for i, m := range res.Model {
				want := ds.TermShape(tt.terms[i])
				if diff := cmp.Diff(want, m.Shape()); diff != "" {
					t.Errorf("term %d shape mismatch (-want +got):\n%s", i, diff)
				}
			}
		})
	}
}

func TestInnerBagsAndRandomSplits(t *testing.T) {
	open := func() boost.Booster {
		b, err := New().OpenBooster(context.Background(), boost.BoosterConfig{
			Dataset:   stepDataset(),
			Terms:     [][]int{{0}},
			InnerBags: 4,
			Seed:      11,
		})
		if err != nil {
			t.Fatal(err)
		}
		return b
	}
	a, b := open(), open()
	defer a.Close()
	defer b.Close()

	for _, bs := range []boost.Booster{a, b} {
		if _, err := bs.GenerateTermUpdate(0, boost.RandomSplits, 1, 1, 2); err != nil {
			t.Fatal(err)
		}
	}
	ua, _ := a.TermUpdate(0)
	ub, _ := b.TermUpdate(0)
	if !ua.Equal(ub) {
		t.Errorf("same seed produced %v and %v", ua, ub)
	}
}
