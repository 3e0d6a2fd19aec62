// Package ebmgo provides explainable boosting machines for Go: additive
// models whose every term can be plotted and read, trained by cyclic
// gradient boosting over binned features and optionally under differential
// privacy.
//
// # Quick Start
//
//	package main
//
//	import (
//	    "fmt"
//	    "log"
//
//	    "gonum.org/v1/gonum/mat"
//
//	    "github.com/YuminosukeSato/ebmgo/ebm"
//	)
//
//	func main() {
//	    X := mat.NewDense(6, 2, []float64{
//	        1, 0, 2, 1, 3, 0,
//	        4, 1, 5, 0, 6, 1,
//	    })
//	    y := mat.NewVecDense(6, []float64{1.1, 2.3, 2.9, 4.2, 5.1, 6.0})
//
//	    reg := ebm.NewEBMRegressor()
//	    if err := reg.Fit(X, y); err != nil {
//	        log.Fatal(err)
//	    }
//	    pred, err := reg.Predict(X)
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    fmt.Println(mat.Formatted(pred))
//	}
//
// Private models come from NewDPEBMRegressor and NewDPEBMClassifier. Models
// trained on the same features can be combined with merge.Merge.
//
// # Packages
//
//   - ebm: training, scoring, persistence and the estimator API
//   - binning: cut points, category mappings and per-feature bin assignment
//   - privacy: budget accounting, noise calibration and private binning
//   - boost: bagged cyclic boosting, term postprocessing and the Engine
//     interface with its reference implementation in boost/engine
//   - merge: combining fitted models into one
//   - metrics: weighted regression and classification metrics
//   - core/tensor, core/native, core/parallel, core/model: numeric and
//     concurrency building blocks shared by the packages above
//   - pkg/errors, pkg/log: error types and structured logging
//
// The ebmgo command in cmd/ebmgo drives the same operations from CSV files.
package ebmgo
