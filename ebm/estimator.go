package ebm

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/ebmgo/binning"
	"github.com/YuminosukeSato/ebmgo/core/model"
	"github.com/YuminosukeSato/ebmgo/pkg/errors"
	"github.com/YuminosukeSato/ebmgo/privacy"
)

// ColumnsFromMatrix turns the columns of X into typed feature columns.
// names and types may be nil, giving "feature_0000"-style names and
// continuous features. Categorical values are the decimal rendering of each
// number and NaN is missing; ordinal levels are ordered numerically.
func ColumnsFromMatrix(X mat.Matrix, names []string, types []binning.FeatureType) ([]*binning.Column, error) {
	rows, cols := X.Dims()
	if names != nil && len(names) != cols {
		return nil, errors.NewDimensionError("ColumnsFromMatrix(names)", cols, len(names), 1)
	}
	if types != nil && len(types) != cols {
		return nil, errors.NewDimensionError("ColumnsFromMatrix(types)", cols, len(types), 1)
	}
	out := make([]*binning.Column, cols)
	for j := 0; j < cols; j++ {
		c := &binning.Column{Name: fmt.Sprintf("feature_%04d", j), Type: binning.TypeContinuous}
		if names != nil {
			c.Name = names[j]
		}
		if types != nil {
			c.Type = types[j]
		}
		vals := mat.Col(nil, j, X)
		if !c.Type.IsCategorical() {
			c.Numeric = vals
			out[j] = c
			continue
		}
		c.Categorical = make([]string, rows)
		levels := map[float64]bool{}
		for i, v := range vals {
			if math.IsNaN(v) {
				continue
			}
			c.Categorical[i] = strconv.FormatFloat(v, 'g', -1, 64)
			levels[v] = true
		}
		if c.Type == binning.TypeOrdinal {
			keys := make([]float64, 0, len(levels))
			for v := range levels {
				keys = append(keys, v)
			}
			sort.Float64s(keys)
			for _, v := range keys {
				c.Order = append(c.Order, strconv.FormatFloat(v, 'g', -1, 64))
			}
		}
		out[j] = c
	}
	return out, nil
}

// estimator holds what regressors and classifiers share.
type estimator struct {
	state *model.StateManager

	Params       TrainingParams
	FeatureNames []string
	FeatureTypes []binning.FeatureType
	Schema       *privacy.Schema
	SampleWeight []float64

	Model *Model
}

func newEstimator(params TrainingParams) estimator {
	return estimator{state: model.NewStateManager(), Params: params}
}

func (e *estimator) columns(X mat.Matrix) ([]*binning.Column, error) {
	return ColumnsFromMatrix(X, e.FeatureNames, e.FeatureTypes)
}

func (e *estimator) trainer() *Trainer {
	return NewTrainer(e.Params, WithPrivacySchema(e.Schema))
}

func (e *estimator) setModel(m *Model) {
	e.Model = m
	n := 0
	if m.NSamples != nil {
		n = *m.NSamples
	}
	e.state.SetFitted(len(m.Features), n, m.NumClasses())
}

func (e *estimator) checkPredict(name string, X mat.Matrix) ([]*binning.Column, error) {
	if err := e.state.RequireFitted(name, "Predict"); err != nil {
		return nil, err
	}
	if _, c := X.Dims(); c != len(e.Model.Features) {
		return nil, errors.NewDimensionError(name+".Predict", len(e.Model.Features), c, 1)
	}
	types := make([]binning.FeatureType, len(e.Model.Features))
	names := make([]string, len(e.Model.Features))
	for i, f := range e.Model.Features {
		types[i], names[i] = f.Type, f.Name
	}
	return ColumnsFromMatrix(X, names, types)
}

// IsFitted reports whether Fit has completed.
func (e *estimator) IsFitted() bool { return e.state.IsFitted() }

// Save writes the fitted model.
func (e *estimator) Save(path string) error {
	if err := e.state.RequireFitted("EBM", "Save"); err != nil {
		return err
	}
	return e.Model.Save(path)
}

// EBMRegressor fits additive regression models on numeric matrices.
type EBMRegressor struct {
	estimator
}

// NewEBMRegressor creates a regressor with default parameters.
func NewEBMRegressor() *EBMRegressor {
	return &EBMRegressor{newEstimator(DefaultParams())}
}

// NewDPEBMRegressor creates a differentially private regressor.
func NewDPEBMRegressor() *EBMRegressor {
	return &EBMRegressor{newEstimator(DefaultPrivateParams())}
}

// WithParams replaces the training parameters.
func (r *EBMRegressor) WithParams(p TrainingParams) *EBMRegressor {
	r.Params = p
	return r
}

// WithFeatureTypes declares the type of every column.
func (r *EBMRegressor) WithFeatureTypes(types ...binning.FeatureType) *EBMRegressor {
	r.FeatureTypes = types
	return r
}

// Fit trains on X and the single-column target y.
func (r *EBMRegressor) Fit(X, y mat.Matrix) (err error) {
	defer errors.Recover(&err, "EBMRegressor.Fit")

	rows, _ := X.Dims()
	yr, yc := y.Dims()
	if yr != rows || yc != 1 {
		return errors.NewDimensionError("EBMRegressor.Fit", rows, yr, 0)
	}
	cols, err := r.columns(X)
	if err != nil {
		return err
	}
	m, err := r.trainer().FitRegressor(context.Background(), cols, mat.Col(nil, 0, y), r.SampleWeight)
	if err != nil {
		return err
	}
	r.setModel(m)
	return nil
}

// Predict returns one prediction per row.
func (r *EBMRegressor) Predict(X mat.Matrix) (mat.Matrix, error) {
	cols, err := r.checkPredict("EBMRegressor", X)
	if err != nil {
		return nil, err
	}
	out, err := r.Model.Predict(cols)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Load reads a model saved by Save.
func (r *EBMRegressor) Load(path string) error {
	m, err := LoadModel(path)
	if err != nil {
		return err
	}
	if m.IsClassifier() {
		return errors.NewValidationError("kind", "file holds a classifier", string(m.Kind))
	}
	r.setModel(m)
	return nil
}

// EBMClassifier fits additive classification models on numeric matrices.
// Class labels are the decimal rendering of the target values.
type EBMClassifier struct {
	estimator
}

// NewEBMClassifier creates a classifier with default parameters.
func NewEBMClassifier() *EBMClassifier {
	return &EBMClassifier{newEstimator(DefaultParams())}
}

// NewDPEBMClassifier creates a differentially private classifier.
func NewDPEBMClassifier() *EBMClassifier {
	return &EBMClassifier{newEstimator(DefaultPrivateParams())}
}

// WithParams replaces the training parameters.
func (c *EBMClassifier) WithParams(p TrainingParams) *EBMClassifier {
	c.Params = p
	return c
}

// WithFeatureTypes declares the type of every column.
func (c *EBMClassifier) WithFeatureTypes(types ...binning.FeatureType) *EBMClassifier {
	c.FeatureTypes = types
	return c
}

// Fit trains on X and the single-column label vector y.
func (c *EBMClassifier) Fit(X, y mat.Matrix) (err error) {
	defer errors.Recover(&err, "EBMClassifier.Fit")

	rows, _ := X.Dims()
	yr, yc := y.Dims()
	if yr != rows || yc != 1 {
		return errors.NewDimensionError("EBMClassifier.Fit", rows, yr, 0)
	}
	cols, err := c.columns(X)
	if err != nil {
		return err
	}
	labels := make([]string, yr)
	for i := range labels {
		labels[i] = strconv.FormatFloat(y.At(i, 0), 'g', -1, 64)
	}
	m, err := c.trainer().FitClassifier(context.Background(), cols, labels, c.SampleWeight)
	if err != nil {
		return err
	}
	c.setModel(m)
	return nil
}

// Predict returns the predicted label of every row as a number.
func (c *EBMClassifier) Predict(X mat.Matrix) (mat.Matrix, error) {
	cols, err := c.checkPredict("EBMClassifier", X)
	if err != nil {
		return nil, err
	}
	labels, err := c.Model.PredictLabels(cols)
	if err != nil {
		return nil, err
	}
	out := mat.NewDense(len(labels), 1, nil)
	for i, l := range labels {
		v, err := strconv.ParseFloat(l, 64)
		if err != nil {
			return nil, errors.NewValueError("EBMClassifier.Predict", "class label is not numeric: "+l)
		}
		out.Set(i, 0, v)
	}
	return out, nil
}

// PredictProba returns class probabilities, one column per class.
func (c *EBMClassifier) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	cols, err := c.checkPredict("EBMClassifier", X)
	if err != nil {
		return nil, err
	}
	out, err := c.Model.PredictProba(cols)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Classes returns the class labels in column order of PredictProba.
func (c *EBMClassifier) Classes() []string {
	if c.Model == nil {
		return nil
	}
	return append([]string(nil), c.Model.Classes...)
}

// Load reads a model saved by Save.
func (c *EBMClassifier) Load(path string) error {
	m, err := LoadModel(path)
	if err != nil {
		return err
	}
	if !m.IsClassifier() {
		return errors.NewValidationError("kind", "file holds a regressor", string(m.Kind))
	}
	c.setModel(m)
	return nil
}

var (
	_ model.Predictor   = (*EBMRegressor)(nil)
	_ model.Classifier  = (*EBMClassifier)(nil)
	_ model.Persistable = (*EBMRegressor)(nil)
	_ model.Persistable = (*EBMClassifier)(nil)
)
