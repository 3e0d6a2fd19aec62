package native

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"gonum.org/v1/gonum/stat"

	"github.com/YuminosukeSato/ebmgo/pkg/errors"
)

func TestNormalizeInitialSeed(t *testing.T) {
	tests := []struct {
		name string
		seed int64
		want int32
	}{
		{"zero", 0, 0},
		{"small positive", 42, 42},
		{"small negative", -42, -42},
		{"just below modulus", 2147483646, 2147483646},
		{"modulus", 2147483647, 0},
		{"modulus plus one", 2147483648, 1},
		{"min int32", -2147483648, -1},
		{"negative modulus", -2147483647, 0},
		{"large positive", 3*2147483647 + 5, 5},
		{"min int64", math.MinInt64, -int32(uint64(1<<63) % 2147483647)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeInitialSeed(tt.seed); got != tt.want {
				t.Errorf("NormalizeInitialSeed(%d) = %d, want %d", tt.seed, got, tt.want)
			}
		})
	}
}

// Pinned outputs of the splitmix64-based derivation; a change here changes
// every saved random_state's bags.
func TestGenerateSeedStable(t *testing.T) {
	tests := []struct {
		seed, mix, want int32
	}{
		{42, BagSeedMix, 1148263346},
		{0, 0, -501176263},
		{-1, BagSeedMix, -2349917},
	}
	for _, tt := range tests {
		if got := GenerateSeed(tt.seed, tt.mix); got != tt.want {
			t.Errorf("GenerateSeed(%d, %d) = %d, want %d", tt.seed, tt.mix, got, tt.want)
		}
	}
}

func TestBagSeedsDeterministic(t *testing.T) {
	a := BagSeeds(42, 8)
	b := BagSeeds(42, 8)
	if diff := cmp.Diff(a, b); diff != "" {
		t.Fatalf("BagSeeds not deterministic (-a +b):\n%s", diff)
	}
	seen := map[int32]bool{}
	for _, s := range a {
		if seen[s] {
			t.Errorf("duplicate bag seed %d in %v", s, a)
		}
		seen[s] = true
	}
	if a[1] != GenerateSeed(a[0], BagSeedMix) {
		t.Error("bag seeds are not chained")
	}
	if BagSeeds(43, 1)[0] == a[0] {
		t.Error("different base seeds produced the same first bag seed")
	}
}

func TestContextNormal(t *testing.T) {
	c := New(7)
	xs := c.NormalVector(20000, 2)
	mean, std := stat.MeanStdDev(xs, nil)
	if math.Abs(mean) > 0.1 {
		t.Errorf("mean = %v, want ~0", mean)
	}
	if math.Abs(std-2) > 0.1 {
		t.Errorf("std = %v, want ~2", std)
	}
	if c.Normal(0) != 0 {
		t.Error("Normal(0) should be exactly 0")
	}

	d := New(7)
	if diff := cmp.Diff(xs[:5], d.NormalVector(5, 2)); diff != "" {
		t.Errorf("same seed produced different draws (-want +got):\n%s", diff)
	}
}

func TestMakeBagRegression(t *testing.T) {
	bag, err := New(1).MakeBag(100, nil, 0.25)
	if err != nil {
		t.Fatal(err)
	}
	if got := bag.ValidationCount(); got != 25 {
		t.Errorf("ValidationCount() = %d, want 25", got)
	}
	if got := bag.TrainCount(100); got != 75 {
		t.Errorf("TrainCount() = %d, want 75", got)
	}

	// 10 * 0.25 = 2.5 rounds up.
	bag, err = New(1).MakeBag(10, nil, 0.25)
	if err != nil {
		t.Fatal(err)
	}
	if got := bag.ValidationCount(); got != 3 {
		t.Errorf("ValidationCount() = %d, want 3", got)
	}
}

func TestMakeBagEveryClassValidated(t *testing.T) {
	var warnings []error
	errors.SetZerologWarnFunc(nil)
	errors.SetWarningHandler(func(w error) { warnings = append(warnings, w) })
	defer errors.SetWarningHandler(nil)

	classes := make([]int, 0, 30)
	for k, size := range []int{20, 5, 5} {
		for i := 0; i < size; i++ {
			classes = append(classes, k)
		}
	}
	for seed := int32(0); seed < 20; seed++ {
		bag, err := New(seed).MakeBag(len(classes), classes, 0.05)
		if err != nil {
			t.Fatal(err)
		}
		val := map[int]int{}
		for i, k := range classes {
			if bag.IsValidation(i) {
				val[k]++
			}
		}
		if diff := cmp.Diff(map[int]int{0: 1, 1: 1, 2: 1}, val); diff != "" {
			t.Fatalf("seed %d: validation per class (-want +got):\n%s", seed, diff)
		}
	}
	var pw *errors.ParameterWarning
	if len(warnings) == 0 || !errors.As(warnings[0], &pw) {
		t.Errorf("warnings = %v, want a ParameterWarning", warnings)
	}

	// A singleton class is validated while the others keep training samples.
	bag, err := New(5).MakeBag(30, append(make([]int, 28), 1, 2), 0.05)
	if err != nil {
		t.Fatal(err)
	}
	if got := bag.ValidationCount(); got != 3 {
		t.Errorf("ValidationCount() = %d, want 3", got)
	}
	if !bag.IsValidation(28) || !bag.IsValidation(29) {
		t.Error("singleton classes must be validated")
	}

	if _, err := New(0).MakeBag(3, []int{0, 1, 2}, 0.1); err == nil {
		t.Error("one sample per class leaves nothing to train on and should fail")
	}
}

func TestMakeBagStratified(t *testing.T) {
	classes := make([]int, 0, 103)
	for i := 0; i < 90; i++ {
		classes = append(classes, 0)
	}
	for i := 0; i < 10; i++ {
		classes = append(classes, 1)
	}
	classes = append(classes, 2, 2, 2)

	bag, err := New(3).MakeBag(len(classes), classes, 0.2)
	if err != nil {
		t.Fatal(err)
	}
	train := map[int]int{}
	val := map[int]int{}
	for i, k := range classes {
		if bag.IsTrain(i) {
			train[k]++
		}
		if bag.IsValidation(i) {
			val[k]++
		}
	}
	for k := 0; k < 3; k++ {
		if train[k] == 0 {
			t.Errorf("class %d has no training samples", k)
		}
	}
	if got := bag.ValidationCount(); got != 21 {
		t.Errorf("ValidationCount() = %d, want 21", got)
	}
	if val[0] < 17 || val[0] > 19 {
		t.Errorf("class 0 validation count = %d, want about 18", val[0])
	}
}

func TestMakeBagEdgeCases(t *testing.T) {
	c := New(0)
	bag, err := c.MakeBag(10, nil, 0)
	if err != nil || bag != nil {
		t.Errorf("zero validation size: bag = %v, err = %v; want nil, nil", bag, err)
	}
	if !bag.IsTrain(3) || bag.IsValidation(3) {
		t.Error("nil bag must treat every sample as training")
	}
	if _, err := c.MakeBag(10, nil, 10); err == nil {
		t.Error("validation covering every sample should fail")
	}
	if _, err := c.MakeBag(10, nil, 2.5); err == nil {
		t.Error("fractional absolute validation size should fail")
	}
	if _, err := c.MakeBag(10, nil, -0.1); err == nil {
		t.Error("negative validation size should fail")
	}
	if _, err := c.MakeBag(0, nil, 0.1); err == nil {
		t.Error("empty dataset should fail")
	}
}
