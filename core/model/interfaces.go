package model

import (
	"gonum.org/v1/gonum/mat"
)

// Predictor is implemented by fitted estimators over numeric design matrices.
type Predictor interface {
	// Predict returns one prediction per row of X.
	Predict(X mat.Matrix) (mat.Matrix, error)
}

// Classifier adds class probabilities to Predictor.
type Classifier interface {
	Predictor

	// PredictProba returns an n_samples x n_classes probability matrix.
	PredictProba(X mat.Matrix) (mat.Matrix, error)

	// Classes returns the class labels in score order.
	Classes() []string
}

// Persistable is the interface for models that can be saved and loaded.
type Persistable interface {
	Save(path string) error
	Load(path string) error
}
