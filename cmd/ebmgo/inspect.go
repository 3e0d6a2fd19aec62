package main

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/YuminosukeSato/ebmgo/ebm"
)

func newInspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect MODEL",
		Short: "Summarize a saved model",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := ebm.LoadModel(args[0])
			if err != nil {
				return err
			}
			return describe(cmd.OutOrStdout(), m)
		},
	}
}

func describe(out io.Writer, m *ebm.Model) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "id\t%s\n", m.ID)
	fmt.Fprintf(w, "kind\t%s\n", m.Kind)
	fmt.Fprintf(w, "private\t%v\n", m.Private)
	if m.IsClassifier() {
		fmt.Fprintf(w, "classes\t%s\n", strings.Join(m.Classes, ", "))
	}
	fmt.Fprintf(w, "intercept\t%v\n", m.Intercept)
	fmt.Fprintf(w, "bags\t%d\n", len(m.BagWeights))
	if m.NSamples != nil {
		fmt.Fprintf(w, "samples\t%d\n", *m.NSamples)
	}
	if m.NoiseScale != nil {
		fmt.Fprintf(w, "noise scale\t%g\n", *m.NoiseScale)
	}
	for _, id := range m.SourceIDs {
		fmt.Fprintf(w, "merged from\t%s\n", id)
	}

	fmt.Fprintln(w, "\nFEATURE\tTYPE\tBINS")
	for _, f := range m.Features {
		bins := make([]string, len(f.Levels))
		for l, def := range f.Levels {
			bins[l] = fmt.Sprint(def.NumBins())
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", f.Name, f.Type, strings.Join(bins, "/"))
	}

	names, types, imp := m.TermNames(), m.TermTypes(), m.FeatureImportances()
	order := make([]int, len(names))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return imp[order[a]] > imp[order[b]] })
	fmt.Fprintln(w, "\nTERM\tTYPE\tIMPORTANCE")
	for _, i := range order {
		fmt.Fprintf(w, "%s\t%s\t%.6g\n", names[i], types[i], imp[i])
	}
	return w.Flush()
}
