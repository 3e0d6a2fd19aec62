package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/YuminosukeSato/ebmgo/ebm"
)

func newTrainCmd() *cobra.Command {
	var configPath, dataPath, outPath, weightCol string
	cmd := &cobra.Command{
		Use:   "train",
		Short: "Fit a model described by a YAML job file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ebm.LoadConfig(configPath)
			if err != nil {
				return err
			}
			schema, err := cfg.Schema()
			if err != nil {
				return err
			}
			t, err := readTable(dataPath)
			if err != nil {
				return err
			}
			cols, err := t.features(cfg.Features)
			if err != nil {
				return err
			}
			var w []float64
			if weightCol != "" {
				if w, err = t.numeric(weightCol); err != nil {
					return err
				}
			}

			trainer := ebm.NewTrainer(cfg.Training, ebm.WithPrivacySchema(schema))
			var m *ebm.Model
			if cfg.Task == ebm.TaskClassification {
				labels, err := t.column(cfg.Target)
				if err != nil {
					return err
				}
				m, err = trainer.FitClassifier(cmd.Context(), cols, labels, w)
				if err != nil {
					return err
				}
			} else {
				y, err := t.numeric(cfg.Target)
				if err != nil {
					return err
				}
				m, err = trainer.FitRegressor(cmd.Context(), cols, y, w)
				if err != nil {
					return err
				}
			}
			if err := m.Save(outPath); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "model %s: %d terms written to %s\n", m.ID, len(m.Terms), outPath)
			return nil
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "YAML job file")
	cmd.Flags().StringVarP(&dataPath, "data", "d", "", "CSV training data with a header row")
	cmd.Flags().StringVarP(&outPath, "out", "o", "model.json", "Where to write the model")
	cmd.Flags().StringVar(&weightCol, "weight", "", "Optional column of sample weights")
	_ = cmd.MarkFlagRequired("config")
	_ = cmd.MarkFlagRequired("data")
	return cmd
}
