// Command ebmgo trains, scores, merges and inspects additive boosted models
// from CSV files.
//
// Usage:
//
//	ebmgo train --config job.yaml --data train.csv --out model.json
//	ebmgo predict --model model.json --data test.csv [--proba]
//	ebmgo evaluate --model model.json --data test.csv --target label
//	ebmgo merge --out merged.json a.json b.json
//	ebmgo inspect model.json
//	ebmgo plot model.json --term color --out color.png
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/YuminosukeSato/ebmgo/pkg/errors"
	"github.com/YuminosukeSato/ebmgo/pkg/log"
)

func newRootCmd() *cobra.Command {
	var level string
	var jsonLogs bool
	root := &cobra.Command{
		Use:           "ebmgo",
		Short:         "Explainable boosting models from the command line",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			lv, ok := log.ParseLevel(level)
			if !ok {
				return errors.NewValidationError("log-level", "unknown level", level)
			}
			w := cmd.ErrOrStderr()
			if jsonLogs {
				log.SetProvider(log.NewZerologProvider(w, lv))
			} else {
				log.SetProvider(log.NewConsoleProvider(w, lv))
			}
			return nil
		},
	}
	root.PersistentFlags().StringVar(&level, "log-level", "info", "debug, info, warn or error")
	root.PersistentFlags().BoolVar(&jsonLogs, "json-logs", false, "Write logs as JSON records")

	root.AddCommand(newTrainCmd())
	root.AddCommand(newPredictCmd())
	root.AddCommand(newEvaluateCmd())
	root.AddCommand(newMergeCmd())
	root.AddCommand(newInspectCmd())
	root.AddCommand(newPlotCmd())
	return root
}

func main() {
	if err := errors.SafeExecute("ebmgo", newRootCmd().Execute); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
