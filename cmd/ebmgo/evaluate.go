package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/ebmgo/binning"
	"github.com/YuminosukeSato/ebmgo/ebm"
	"github.com/YuminosukeSato/ebmgo/metrics"
	"github.com/YuminosukeSato/ebmgo/pkg/errors"
)

func newEvaluateCmd() *cobra.Command {
	var modelPath, dataPath, target, weightCol string
	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Score a saved model against labelled CSV data",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := ebm.LoadModel(modelPath)
			if err != nil {
				return err
			}
			t, err := readTable(dataPath)
			if err != nil {
				return err
			}
			cols, err := t.features(modelSpecs(m))
			if err != nil {
				return err
			}
			var w []float64
			if weightCol != "" {
				if w, err = t.numeric(weightCol); err != nil {
					return err
				}
			}
			var scores []metric
			if m.IsClassifier() {
				labels, err := t.column(target)
				if err != nil {
					return err
				}
				scores, err = classifierMetrics(m, cols, labels, w)
				if err != nil {
					return err
				}
			} else {
				y, err := t.numeric(target)
				if err != nil {
					return err
				}
				scores, err = regressorMetrics(m, cols, y, w)
				if err != nil {
					return err
				}
			}
			return writeMetrics(cmd.OutOrStdout(), scores)
		},
	}
	cmd.Flags().StringVarP(&modelPath, "model", "m", "", "Saved model")
	cmd.Flags().StringVarP(&dataPath, "data", "d", "", "CSV data with a header row")
	cmd.Flags().StringVarP(&target, "target", "t", "", "Column holding the true labels or values")
	cmd.Flags().StringVar(&weightCol, "weight", "", "Optional column of sample weights")
	_ = cmd.MarkFlagRequired("model")
	_ = cmd.MarkFlagRequired("data")
	_ = cmd.MarkFlagRequired("target")
	return cmd
}

type metric struct {
	name  string
	value float64
}

func classifierMetrics(m *ebm.Model, cols []*binning.Column, labels []string, w []float64) ([]metric, error) {
	index := make(map[string]int, len(m.Classes))
	for i, c := range m.Classes {
		index[c] = i
	}
	truth := make([]int, len(labels))
	for i, l := range labels {
		c, ok := index[l]
		if !ok {
			return nil, errors.Newf("row %d: label %q is not a class of the model", i+1, l)
		}
		truth[i] = c
	}

	proba, err := m.PredictProba(cols)
	if err != nil {
		return nil, err
	}
	rows, k := proba.Dims()
	predicted := make([]int, rows)
	for i := range predicted {
		for j := 1; j < k; j++ {
			if proba.At(i, j) > proba.At(i, predicted[i]) {
				predicted[i] = j
			}
		}
	}

	logLoss, err := metrics.LogLoss(truth, proba, w)
	if err != nil {
		return nil, err
	}
	acc, err := metrics.Accuracy(truth, predicted, w)
	if err != nil {
		return nil, err
	}
	out := []metric{{"log_loss", logLoss}, {"accuracy", acc}}
	if k == 2 {
		positive := mat.Col(nil, 1, proba)
		auc, err := metrics.AUC(truth, positive, w)
		if err != nil {
			return nil, err
		}
		out = append(out, metric{"auc", auc})
	}
	return out, nil
}

func regressorMetrics(m *ebm.Model, cols []*binning.Column, y, w []float64) ([]metric, error) {
	pred, err := m.Predict(cols)
	if err != nil {
		return nil, err
	}
	yPred := mat.Col(nil, 0, pred)
	out := make([]metric, 0, 4)
	for _, f := range []struct {
		name string
		fn   func(yTrue, yPred, w []float64) (float64, error)
	}{
		{"mse", metrics.MSE},
		{"rmse", metrics.RMSE},
		{"mae", metrics.MAE},
		{"r2", metrics.R2Score},
	} {
		v, err := f.fn(y, yPred, w)
		if err != nil {
			return nil, errors.Wrap(err, f.name)
		}
		out = append(out, metric{f.name, v})
	}
	return out, nil
}

func writeMetrics(out io.Writer, scores []metric) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	for _, s := range scores {
		fmt.Fprintf(w, "%s\t%.6g\n", s.name, s.value)
	}
	return w.Flush()
}
