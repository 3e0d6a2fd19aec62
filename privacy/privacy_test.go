package privacy

import (
	"math"
	"strings"
	"testing"

	"github.com/YuminosukeSato/ebmgo/pkg/errors"
)

func TestSplit(t *testing.T) {
	tests := []struct {
		name   string
		budget Budget
	}{
		{"default fraction", Budget{Epsilon: 1, Delta: 1e-5, BinBudgetFrac: DefaultBinBudgetFrac}},
		{"large epsilon", Budget{Epsilon: 8, Delta: 1e-6, BinBudgetFrac: 0.25}},
		{"odd values", Budget{Epsilon: 0.37, Delta: 3e-7, BinBudgetFrac: 0.33}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := tt.budget.Split()
			if err != nil {
				t.Fatal(err)
			}
			if math.Abs(a.BinEpsilon+a.TrainingEpsilon-tt.budget.Epsilon) > 1e-15*tt.budget.Epsilon {
				t.Errorf("bin_eps + training_eps = %v, want %v", a.BinEpsilon+a.TrainingEpsilon, tt.budget.Epsilon)
			}
			if a.BinDelta+a.TrainingDelta != tt.budget.Delta {
				t.Errorf("bin_delta + training_delta = %v, want %v", a.BinDelta+a.TrainingDelta, tt.budget.Delta)
			}
			if a.BinDelta != tt.budget.Delta/2 || a.TrainingDelta != tt.budget.Delta/2 {
				t.Errorf("deltas = %v, %v; want both %v", a.BinDelta, a.TrainingDelta, tt.budget.Delta/2)
			}
			if a.BinEpsilon != tt.budget.Epsilon*tt.budget.BinBudgetFrac {
				t.Errorf("bin_eps = %v, want %v", a.BinEpsilon, tt.budget.Epsilon*tt.budget.BinBudgetFrac)
			}
		})
	}
}

func TestValidateEpsDelta(t *testing.T) {
	tests := []struct {
		name       string
		eps, delta float64
		wantErr    bool
	}{
		{"valid", 1, 1e-5, false},
		{"zero epsilon", 0, 1e-5, true},
		{"negative delta", 1, -1, true},
		{"unset epsilon", math.NaN(), 1e-5, true},
		{"zero delta", 1, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateEpsDelta(tt.eps, tt.delta)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidateEpsDelta() error = %v, wantErr %v", err, tt.wantErr)
			}
			var valErr *errors.ValidationError
			if tt.wantErr && !errors.As(err, &valErr) {
				t.Errorf("error %v is not a ValidationError", err)
			}
		})
	}
	if _, err := (Budget{Epsilon: 1, Delta: 1e-5, BinBudgetFrac: 1.5}).Split(); err == nil {
		t.Error("bin_budget_frac >= 1 should fail")
	}
}

func TestClassicNoiseScale(t *testing.T) {
	got, err := ClassicNoiseScale(100, 1, 1e-5, 2)
	if err != nil {
		t.Fatal(err)
	}
	want := math.Sqrt(8 * 100 * 4 * math.Log(math.E+1e5) / 1)
	if math.Abs(got-want) > 1e-12*want {
		t.Errorf("ClassicNoiseScale = %v, want %v", got, want)
	}
}

func TestGDPRoundTrip(t *testing.T) {
	tests := []struct {
		eps, delta float64
	}{
		{1, 1e-5},
		{0.5, 1e-6},
		{4, 1e-5},
	}
	for _, tt := range tests {
		mu, err := GDPMu(tt.eps, tt.delta)
		if err != nil {
			t.Fatalf("GDPMu(%v, %v): %v", tt.eps, tt.delta, err)
		}
		if d := DeltaEpsMu(tt.eps, mu); math.Abs(d-tt.delta) > 1e-9 {
			t.Errorf("DeltaEpsMu(eps, mu) = %v, want %v", d, tt.delta)
		}
		eps, err := EpsFromMu(mu, tt.delta)
		if err != nil {
			t.Fatal(err)
		}
		if math.Abs(eps-tt.eps) > 1e-6 {
			t.Errorf("EpsFromMu(GDPMu(%v)) = %v", tt.eps, eps)
		}
	}
}

func TestGDPNoiseScale(t *testing.T) {
	mu, err := GDPMu(1, 1e-5)
	if err != nil {
		t.Fatal(err)
	}
	sigma, err := GDPNoiseScale(400, 1, 1e-5)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(sigma-20/mu) > 1e-12 {
		t.Errorf("GDPNoiseScale = %v, want %v", sigma, 20/mu)
	}

	scaled, err := Calibrate(GDP, 400, 1, 1e-5, 3)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(scaled-3*sigma) > 1e-12 {
		t.Errorf("Calibrate(gdp) = %v, want %v", scaled, 3*sigma)
	}
}

func TestCalibrateUnknownComposition(t *testing.T) {
	_, err := Calibrate("renyi", 10, 1, 1e-5, 1)
	if !errors.Is(err, errors.ErrNotImplemented) {
		t.Fatalf("Calibrate() error = %v, want ErrNotImplemented", err)
	}
	for _, name := range []string{"gdp", "classic"} {
		if !strings.Contains(err.Error(), name) {
			t.Errorf("error %q does not name %q", err.Error(), name)
		}
	}
}

func TestBrentRootBracket(t *testing.T) {
	root, err := brentRoot(func(x float64) float64 { return x*x - 2 }, 0, 2)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(root-math.Sqrt2) > 1e-10 {
		t.Errorf("root = %v, want sqrt(2)", root)
	}
	if _, err := brentRoot(func(x float64) float64 { return x*x + 1 }, -1, 1); err == nil {
		t.Error("unbracketed root should fail")
	}
}

func TestDomainSize(t *testing.T) {
	var warnings int
	errors.SetWarningHandler(func(error) { warnings++ })
	defer errors.SetWarningHandler(nil)

	size, err := DomainSize(&Schema{Target: &[2]float64{-1, 4}}, nil, false)
	if err != nil || size != 5 {
		t.Errorf("DomainSize(schema) = %v, %v; want 5", size, err)
	}
	size, err = DomainSize(nil, []float64{3, 9, 4}, false)
	if err != nil || size != 6 {
		t.Errorf("DomainSize(data) = %v, %v; want 6", size, err)
	}
	if warnings != 1 {
		t.Errorf("warnings = %d, want 1", warnings)
	}
	if size, _ := DomainSize(nil, nil, true); size != 1 {
		t.Errorf("classification domain size = %v, want 1", size)
	}
	if err := (&Schema{Features: map[int][2]float64{0: {2, 1}}}).Validate(); err == nil {
		t.Error("inverted feature bounds should fail")
	}
}
