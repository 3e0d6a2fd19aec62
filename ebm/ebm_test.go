package ebm

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/goleak"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/ebmgo/binning"
	"github.com/YuminosukeSato/ebmgo/pkg/errors"
	"github.com/YuminosukeSato/ebmgo/privacy"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fastParams keeps runs short and deterministic.
func fastParams() TrainingParams {
	p := DefaultParams()
	p.OuterBags = 2
	p.LearningRate = 0.1
	p.MaxRounds = 200
	p.ValidationSize = 0
	p.EarlyStoppingRounds = -1
	p.Interactions = 0
	return p
}

func stepColumns() ([]*binning.Column, []float64) {
	x := make([]float64, 100)
	y := make([]float64, 100)
	for i := range x {
		x[i] = float64(i)
		if i >= 50 {
			y[i] = 1
		}
	}
	return []*binning.Column{{Name: "x", Type: binning.TypeContinuous, Numeric: x}}, y
}

func xorColumns() ([]*binning.Column, []string) {
	var a, b []float64
	var labels []string
	for i := 0; i < 40; i++ {
		u, v := float64(i%2), float64((i/2)%2)
		a = append(a, u)
		b = append(b, v)
		if u != v {
			labels = append(labels, "yes")
		} else {
			labels = append(labels, "no")
		}
	}
	return []*binning.Column{
		{Name: "a", Type: binning.TypeContinuous, Numeric: a},
		{Name: "b", Type: binning.TypeContinuous, Numeric: b},
	}, labels
}

func TestParamsValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(p *TrainingParams)
		wantErr bool
	}{
		{"defaults", func(*TrainingParams) {}, false},
		{"max_bins", func(p *TrainingParams) { p.MaxBins = 1 }, true},
		{"outer_bags", func(p *TrainingParams) { p.OuterBags = 0 }, true},
		{"learning_rate", func(p *TrainingParams) { p.LearningRate = 0 }, true},
		{"unknown binning", func(p *TrainingParams) { p.Binning = "kmeans" }, true},
		{"private binning without privacy", func(p *TrainingParams) { p.Binning = binning.MethodPrivate }, true},
		{"negative interactions", func(p *TrainingParams) { p.Interactions = -1 }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := DefaultParams()
			tt.mutate(&p)
			if err := p.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}

	dp := DefaultPrivateParams()
	if err := dp.Validate(); err != nil {
		t.Fatalf("private defaults rejected: %v", err)
	}
	dp.Epsilon = 0
	if err := dp.Validate(); err == nil {
		t.Error("zero epsilon accepted")
	}
	dp = DefaultPrivateParams()
	dp.Composition = "renyi"
	if err := dp.Validate(); !errors.Is(err, errors.ErrNotImplemented) {
		t.Errorf("unknown composition error = %v, want ErrNotImplemented", err)
	}
}

func TestParseConfig(t *testing.T) {
	raw := []byte(`
training:
  private: true
  max_rounds: 40
task: regression
target: price
features:
  - name: area
    type: continuous
    missing: ["NA"]
  - name: size
    type: ordinal
    order: [S, M, L]
privacy_schema:
  target: [0, 500]
  features:
    area: [10, 90]
`)
	cfg, err := ParseConfig(raw)
	if err != nil {
		t.Fatal(err)
	}
	if !cfg.Training.Private || cfg.Training.MaxRounds != 40 || cfg.Training.MaxBins != 32 {
		t.Errorf("training = %+v, want private defaults with max_rounds 40", cfg.Training)
	}
	s, err := cfg.Schema()
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(map[int][2]float64{0: {10, 90}}, s.Features); diff != "" {
		t.Errorf("schema features (-want +got):\n%s", diff)
	}
	if s.Target == nil || *s.Target != [2]float64{0, 500} {
		t.Errorf("schema target = %v", s.Target)
	}

	col, err := cfg.Features[0].Column([]string{"1.5", "NA", ""})
	if err != nil {
		t.Fatal(err)
	}
	if col.Numeric[0] != 1.5 || !math.IsNaN(col.Numeric[1]) || !math.IsNaN(col.Numeric[2]) {
		t.Errorf("numeric column = %v", col.Numeric)
	}
	if _, err := cfg.Features[0].Column([]string{"abc"}); err == nil {
		t.Error("non-numeric value accepted")
	}

	if _, err := ParseConfig([]byte("target: y\nfeatures: [{name: a, type: continuous}]\nbogus: 1\n")); err == nil {
		t.Error("unknown field accepted")
	}
	if _, err := ParseConfig([]byte("target: y\nfeatures: [{name: a, type: ordinal}]\n")); err == nil {
		t.Error("ordinal feature without order accepted")
	}
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "job.yaml")
	if err := os.WriteFile(path, []byte("target: y\nfeatures: [{name: a, type: nominal}]\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Training.OuterBags != 8 || cfg.Task != TaskRegression {
		t.Errorf("defaults not applied: %+v", cfg)
	}
	if s, err := cfg.Schema(); err != nil || s != nil {
		t.Errorf("Schema() = %v, %v; want nil, nil", s, err)
	}
}

func TestEncodeClasses(t *testing.T) {
	classes, idx := encodeClasses([]string{"10", "9", "2", "9"})
	if diff := cmp.Diff([]string{"2", "9", "10"}, classes); diff != "" {
		t.Errorf("numeric classes (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int{2, 1, 0, 1}, idx); diff != "" {
		t.Errorf("class index (-want +got):\n%s", diff)
	}
	classes, _ = encodeClasses([]string{"b", "a", "10"})
	if diff := cmp.Diff([]string{"10", "a", "b"}, classes); diff != "" {
		t.Errorf("lexical classes (-want +got):\n%s", diff)
	}
}

func TestFitRegressor(t *testing.T) {
	cols, y := stepColumns()
	m, err := NewTrainer(fastParams()).FitRegressor(context.Background(), cols, y, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := m.Validate(); err != nil {
		t.Fatalf("Validate() = %v", err)
	}
	if m.Kind != Regressor || m.Private || len(m.Terms) != 1 {
		t.Fatalf("model = kind %s private %v terms %d", m.Kind, m.Private, len(m.Terms))
	}
	if len(m.Breakpoints) != 2 || len(m.Terms[0].BaggedScores) != 2 {
		t.Errorf("breakpoints %v, bags %d; want two bags", m.Breakpoints, len(m.Terms[0].BaggedScores))
	}
	if diff := cmp.Diff([]float64{100, 100}, m.BagWeights); diff != "" {
		t.Errorf("bag weights (-want +got):\n%s", diff)
	}

	term := m.Terms[0]
	if got := floats.Dot(term.Scores.Data(), term.Weights.Data()); math.Abs(got) > 1e-9 {
		t.Errorf("weighted term mean = %g, want 0", got)
	}
	if math.Abs(term.Weights.Sum()-100) > 1e-12 {
		t.Errorf("term weight mass = %g, want 100", term.Weights.Sum())
	}
	if math.Abs(m.Intercept[0]-0.5) > 0.05 {
		t.Errorf("intercept = %g, want about 0.5", m.Intercept[0])
	}

	pred, err := m.Predict(cols)
	if err != nil {
		t.Fatal(err)
	}
	if v := pred.At(10, 0); math.Abs(v) > 0.1 {
		t.Errorf("prediction at x=10 is %g, want about 0", v)
	}
	if v := pred.At(90, 0); math.Abs(v-1) > 0.1 {
		t.Errorf("prediction at x=90 is %g, want about 1", v)
	}
	if imp := m.FeatureImportances(); imp[0] < 0.4 {
		t.Errorf("importance = %v, want about 0.5", imp)
	}
}

func TestFitAveragesBagsEqually(t *testing.T) {
	cols, y := stepColumns()
	w := make([]float64, len(y))
	for i := range w {
		w[i] = 1 + float64(i*i)/1000
	}
	p := fastParams()
	p.OuterBags = 3
	p.ValidationSize = 0.25
	m, err := NewTrainer(p).FitRegressor(context.Background(), cols, y, w)
	if err != nil {
		t.Fatal(err)
	}
	if m.BagWeights[0] == m.BagWeights[1] && m.BagWeights[1] == m.BagWeights[2] {
		t.Fatalf("bag weights %v are equal; the split should differ per bag", m.BagWeights)
	}

	term := m.Terms[0]
	mean := make([]float64, term.Scores.Size())
	for _, b := range term.BaggedScores {
		floats.Add(mean, b.Data())
	}
	floats.Scale(1/float64(len(term.BaggedScores)), mean)
	shift := floats.Dot(mean, term.Weights.Data()) / term.Weights.Sum()
	for i, wt := range term.Weights.Data() {
		if wt == 0 {
			continue
		}
		if got, want := term.Scores.Data()[i], mean[i]-shift; math.Abs(got-want) > 1e-9 {
			t.Errorf("bin %d score = %g, want plain bag mean %g", i, got, want)
		}
	}
}

func TestDecisionFunctionLargeInput(t *testing.T) {
	cols, y := stepColumns()
	m, err := NewTrainer(fastParams()).FitRegressor(context.Background(), cols, y, nil)
	if err != nil {
		t.Fatal(err)
	}
	small, err := m.DecisionFunction(cols)
	if err != nil {
		t.Fatal(err)
	}

	n := 3*scoreRowsPerWorker(len(m.Terms), 1) + 7
	x := make([]float64, n)
	for i := range x {
		x[i] = cols[0].Numeric[i%len(y)]
	}
	large, err := m.DecisionFunction([]*binning.Column{{Name: "x", Type: binning.TypeContinuous, Numeric: x}})
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < n; i++ {
		if got, want := large.At(i, 0), small.At(i%len(y), 0); got != want {
			t.Fatalf("row %d = %g, want %g", i, got, want)
		}
	}
}

func TestScoreRowsPerWorker(t *testing.T) {
	tests := []struct {
		terms, width, want int
	}{
		{1, 1, parallelScoreLookups},
		{16, 1, parallelScoreLookups / 16},
		{16, 4, parallelScoreLookups / 64},
		{0, 1, parallelScoreLookups},
		{1 << 20, 3, 1},
	}
	for _, tt := range tests {
		if got := scoreRowsPerWorker(tt.terms, tt.width); got != tt.want {
			t.Errorf("scoreRowsPerWorker(%d, %d) = %d, want %d", tt.terms, tt.width, got, tt.want)
		}
	}
}

func TestFitClassifierWithPairs(t *testing.T) {
	cols, labels := xorColumns()
	p := fastParams()
	p.Interactions = 1
	m, err := NewTrainer(p).FitClassifier(context.Background(), cols, labels, nil)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"no", "yes"}, m.Classes); diff != "" {
		t.Errorf("classes (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"a", "b", "a x b"}, m.TermNames()); diff != "" {
		t.Errorf("term names (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"continuous", "continuous", "interaction"}, m.TermTypes()); diff != "" {
		t.Errorf("term types (-want +got):\n%s", diff)
	}
	if len(m.Breakpoints) != 4 {
		t.Errorf("breakpoints = %v, want mains and pairs for two bags", m.Breakpoints)
	}

	got, err := m.PredictLabels(cols)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(labels, got); diff != "" {
		t.Errorf("xor labels (-want +got):\n%s", diff)
	}
	proba, err := m.PredictProba(cols)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < len(labels); i++ {
		if s := floats.Sum(proba.RawRowView(i)); math.Abs(s-1) > 1e-12 {
			t.Fatalf("row %d probabilities sum to %g", i, s)
		}
	}
}

func TestFitExplicitInteractions(t *testing.T) {
	var warnings []error
	errors.SetZerologWarnFunc(nil)
	errors.SetWarningHandler(func(w error) { warnings = append(warnings, w) })
	defer errors.SetWarningHandler(nil)

	cols, labels := xorColumns()
	p := fastParams()
	p.MaxRounds = 20
	p.InteractionTerms = [][]int{{1, 0}, {0, 1}}
	m, err := NewTrainer(p).FitClassifier(context.Background(), cols, labels, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(m.Terms) != 3 {
		t.Fatalf("terms = %d, want 3", len(m.Terms))
	}
	if diff := cmp.Diff([]int{0, 1}, m.Terms[2].Features); diff != "" {
		t.Errorf("pair features (-want +got):\n%s", diff)
	}
	if len(warnings) != 1 {
		t.Errorf("warnings = %v, want one duplicate-term warning", warnings)
	}
}

func TestFitMulticlassSkipsPairs(t *testing.T) {
	var warnings []error
	errors.SetZerologWarnFunc(nil)
	errors.SetWarningHandler(func(w error) { warnings = append(warnings, w) })
	defer errors.SetWarningHandler(nil)

	x := make([]float64, 60)
	z := make([]float64, 60)
	labels := make([]string, 60)
	for i := range x {
		x[i] = float64(i)
		z[i] = float64(i % 7)
		labels[i] = strconv.Itoa(i / 20)
	}
	cols := []*binning.Column{
		{Name: "x", Type: binning.TypeContinuous, Numeric: x},
		{Name: "z", Type: binning.TypeContinuous, Numeric: z},
	}
	p := fastParams()
	p.Interactions = 10
	m, err := NewTrainer(p).FitClassifier(context.Background(), cols, labels, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(m.Terms) != 2 || len(m.Intercept) != 3 {
		t.Fatalf("terms %d intercept %v; want mains only and three intercepts", len(m.Terms), m.Intercept)
	}
	var pw *errors.ParameterWarning
	found := false
	for _, w := range warnings {
		if errors.As(w, &pw) {
			found = true
		}
	}
	if !found {
		t.Error("expected a ParameterWarning when interactions are dropped")
	}
	if shape := m.Terms[0].Scores.Shape(); shape[len(shape)-1] != 3 {
		t.Errorf("score shape = %v, want trailing class axis", shape)
	}

	got, err := m.PredictLabels(cols)
	if err != nil {
		t.Fatal(err)
	}
	correct := 0
	for i := range got {
		if got[i] == labels[i] {
			correct++
		}
	}
	if correct < 55 {
		t.Errorf("accuracy %d/60, want at least 55", correct)
	}
}

func TestFitPrivate(t *testing.T) {
	var warnings []error
	errors.SetZerologWarnFunc(nil)
	errors.SetWarningHandler(func(w error) { warnings = append(warnings, w) })
	defer errors.SetWarningHandler(nil)

	cols, y := stepColumns()
	p := DefaultPrivateParams()
	p.MaxRounds = 10
	p.Epsilon = 4
	schema := &privacy.Schema{Features: map[int][2]float64{0: {0, 99}}, Target: &[2]float64{0, 1}}

	fit := func() *Model {
		m, err := NewTrainer(p, WithPrivacySchema(schema)).FitRegressor(context.Background(), cols, y, nil)
		if err != nil {
			t.Fatal(err)
		}
		return m
	}
	m := fit()
	if len(warnings) != 0 {
		t.Errorf("warnings with a full schema: %v", warnings)
	}
	if !m.Private || m.NoiseScale == nil || *m.NoiseScale <= 0 {
		t.Fatalf("private model metadata missing: private=%v noise=%v", m.Private, m.NoiseScale)
	}
	if m.DomainSize == nil || *m.DomainSize != 1 {
		t.Errorf("domain size = %v, want 1", m.DomainSize)
	}
	if m.MinTarget == nil || *m.MinTarget != 0 || *m.MaxTarget != 1 {
		t.Errorf("target range = %v..%v", m.MinTarget, m.MaxTarget)
	}
	if diff := cmp.Diff([]int{9}, m.Breakpoints); diff != "" {
		t.Errorf("breakpoints (-want +got):\n%s", diff)
	}
	if len(m.Features[0].Levels) != 1 {
		t.Errorf("private model has %d bin levels, want 1", len(m.Features[0].Levels))
	}

	again := fit()
	if !m.Terms[0].Scores.Equal(again.Terms[0].Scores) || m.Intercept[0] != again.Intercept[0] {
		t.Error("private training is not deterministic for a fixed seed")
	}
}

func TestModelSaveLoad(t *testing.T) {
	cols, labels := xorColumns()
	p := fastParams()
	p.MaxRounds = 20
	p.Interactions = 1
	m, err := NewTrainer(p).FitClassifier(context.Background(), cols, labels, nil)
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "model.json")
	if err := m.Save(path); err != nil {
		t.Fatal(err)
	}
	loaded, err := LoadModel(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.ID != m.ID {
		t.Errorf("ID = %s, want %s", loaded.ID, m.ID)
	}
	want, _ := m.DecisionFunction(cols)
	got, err := loaded.DecisionFunction(cols)
	if err != nil {
		t.Fatal(err)
	}
	if !mat.EqualApprox(want, got, 1e-12) {
		t.Error("loaded model scores differ")
	}
	if loaded.Features[0].Bounds == nil || *loaded.Features[0].Bounds != (Range{0, 1}) {
		t.Errorf("bounds = %v", loaded.Features[0].Bounds)
	}
}

func TestEstimators(t *testing.T) {
	X := mat.NewDense(100, 1, nil)
	y := mat.NewDense(100, 1, nil)
	for i := 0; i < 100; i++ {
		X.Set(i, 0, float64(i))
		if i >= 50 {
			y.Set(i, 0, 1)
		}
	}

	reg := NewEBMRegressor().WithParams(fastParams())
	if _, err := reg.Predict(X); err == nil {
		t.Fatal("Predict before Fit succeeded")
	} else {
		var nf *errors.NotFittedError
		if !errors.As(err, &nf) {
			t.Errorf("error = %v, want NotFittedError", err)
		}
	}
	if err := reg.Fit(X, y); err != nil {
		t.Fatal(err)
	}
	pred, err := reg.Predict(X)
	if err != nil {
		t.Fatal(err)
	}
	if v := pred.At(90, 0); math.Abs(v-1) > 0.1 {
		t.Errorf("regressor prediction = %g, want about 1", v)
	}

	clf := NewEBMClassifier().WithParams(fastParams())
	if err := clf.Fit(X, y); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"0", "1"}, clf.Classes()); diff != "" {
		t.Errorf("classes (-want +got):\n%s", diff)
	}
	labels, err := clf.Predict(X)
	if err != nil {
		t.Fatal(err)
	}
	if labels.At(5, 0) != 0 || labels.At(95, 0) != 1 {
		t.Errorf("labels = %g, %g; want 0, 1", labels.At(5, 0), labels.At(95, 0))
	}

	path := filepath.Join(t.TempDir(), "clf.json")
	if err := clf.Save(path); err != nil {
		t.Fatal(err)
	}
	if err := NewEBMRegressor().Load(path); err == nil {
		t.Error("regressor loaded a classifier")
	}
	restored := NewEBMClassifier()
	if err := restored.Load(path); err != nil {
		t.Fatal(err)
	}
	if !restored.IsFitted() {
		t.Error("loaded classifier is not fitted")
	}
}

func TestFitInputValidation(t *testing.T) {
	cols, y := stepColumns()
	tr := NewTrainer(fastParams())
	if _, err := tr.FitRegressor(context.Background(), cols, y[:10], nil); err == nil {
		t.Error("length mismatch accepted")
	}
	if _, err := tr.FitRegressor(context.Background(), cols, y, make([]float64, 3)); err == nil {
		t.Error("weight length mismatch accepted")
	}
	if _, err := tr.FitClassifier(context.Background(), cols, make([]string, 100), nil); err == nil {
		t.Error("single class accepted")
	}
	bad := fastParams()
	bad.Mains = []int{3}
	if _, err := NewTrainer(bad).FitRegressor(context.Background(), cols, y, nil); err == nil {
		t.Error("out of range main accepted")
	}
}
