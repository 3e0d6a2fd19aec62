package main

import (
	"encoding/csv"
	"io"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/YuminosukeSato/ebmgo/binning"
	"github.com/YuminosukeSato/ebmgo/ebm"
	"github.com/YuminosukeSato/ebmgo/pkg/errors"
)

func newPredictCmd() *cobra.Command {
	var modelPath, dataPath, outPath string
	var proba bool
	cmd := &cobra.Command{
		Use:   "predict",
		Short: "Score a CSV file with a saved model",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
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

			var w io.Writer = cmd.OutOrStdout()
			if outPath != "" {
				f, cerr := os.Create(outPath)
				if cerr != nil {
					return errors.Wrapf(cerr, "create %s", outPath)
				}
				defer func() {
					if cerr := f.Close(); err == nil {
						err = cerr
					}
				}()
				w = f
			}
			return writePredictions(w, m, cols, proba)
		},
	}
	cmd.Flags().StringVarP(&modelPath, "model", "m", "", "Saved model")
	cmd.Flags().StringVarP(&dataPath, "data", "d", "", "CSV data with a header row")
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "Output CSV (default stdout)")
	cmd.Flags().BoolVar(&proba, "proba", false, "Write class probabilities instead of labels")
	_ = cmd.MarkFlagRequired("model")
	_ = cmd.MarkFlagRequired("data")
	return cmd
}

func writePredictions(w io.Writer, m *ebm.Model, cols []*binning.Column, proba bool) error {
	cw := csv.NewWriter(w)
	format := func(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }

	switch {
	case proba:
		p, err := m.PredictProba(cols)
		if err != nil {
			return err
		}
		if err := cw.Write(m.Classes); err != nil {
			return err
		}
		rows, k := p.Dims()
		rec := make([]string, k)
		for i := 0; i < rows; i++ {
			for j := range rec {
				rec[j] = format(p.At(i, j))
			}
			if err := cw.Write(rec); err != nil {
				return err
			}
		}
	case m.IsClassifier():
		labels, err := m.PredictLabels(cols)
		if err != nil {
			return err
		}
		if err := cw.Write([]string{"prediction"}); err != nil {
			return err
		}
		for _, l := range labels {
			if err := cw.Write([]string{l}); err != nil {
				return err
			}
		}
	default:
		pred, err := m.Predict(cols)
		if err != nil {
			return err
		}
		if err := cw.Write([]string{"prediction"}); err != nil {
			return err
		}
		rows, _ := pred.Dims()
		for i := 0; i < rows; i++ {
			if err := cw.Write([]string{format(pred.At(i, 0))}); err != nil {
				return err
			}
		}
	}
	cw.Flush()
	return cw.Error()
}
