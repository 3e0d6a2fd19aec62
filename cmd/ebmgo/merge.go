package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/YuminosukeSato/ebmgo/ebm"
	"github.com/YuminosukeSato/ebmgo/merge"
)

func newMergeCmd() *cobra.Command {
	var outPath string
	var workers int
	cmd := &cobra.Command{
		Use:   "merge MODEL...",
		Short: "Merge saved models trained on the same features",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			models := make([]*ebm.Model, len(args))
			for i, path := range args {
				m, err := ebm.LoadModel(path)
				if err != nil {
					return err
				}
				models[i] = m
			}
			merged, err := merge.NewMerger(merge.WithWorkers(workers)).Merge(cmd.Context(), models...)
			if err != nil {
				return err
			}
			if err := merged.Save(outPath); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "model %s: merged %d models into %d terms, written to %s\n",
				merged.ID, len(models), len(merged.Terms), outPath)
			return nil
		},
	}
	cmd.Flags().StringVarP(&outPath, "out", "o", "merged.json", "Where to write the merged model")
	cmd.Flags().IntVar(&workers, "workers", 0, "Terms harmonized concurrently (0 = one per CPU)")
	return cmd
}
