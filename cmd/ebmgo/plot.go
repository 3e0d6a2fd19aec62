package main

import (
	"fmt"
	"math"
	"strings"

	"github.com/spf13/cobra"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/YuminosukeSato/ebmgo/binning"
	"github.com/YuminosukeSato/ebmgo/ebm"
	"github.com/YuminosukeSato/ebmgo/pkg/errors"
)

func newPlotCmd() *cobra.Command {
	var term, outPath string
	var class int
	var width, height float64
	cmd := &cobra.Command{
		Use:   "plot MODEL",
		Short: "Render the shape function of a main-effect term",
		Long: "Render the shape function of a main-effect term. The image format\n" +
			"follows the extension of --out (png, svg, pdf, ...).",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := ebm.LoadModel(args[0])
			if err != nil {
				return err
			}
			p, err := termPlot(m, term, class)
			if err != nil {
				return err
			}
			if err := p.Save(vg.Length(width)*vg.Inch, vg.Length(height)*vg.Inch, outPath); err != nil {
				return errors.Wrapf(err, "save %s", outPath)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "term %s written to %s\n", term, outPath)
			return nil
		},
	}
	cmd.Flags().StringVar(&term, "term", "", "Name of the term to plot")
	cmd.Flags().StringVarP(&outPath, "out", "o", "term.png", "Image file")
	cmd.Flags().IntVar(&class, "class", 0, "Class index for multiclass models")
	cmd.Flags().Float64Var(&width, "width", 6, "Width in inches")
	cmd.Flags().Float64Var(&height, "height", 4, "Height in inches")
	_ = cmd.MarkFlagRequired("term")
	return cmd
}

// termPlot draws scores against bins: a step line for continuous features,
// one bar per category otherwise. Missing and unknown bins are not drawn.
func termPlot(m *ebm.Model, name string, class int) (*plot.Plot, error) {
	idx := -1
	for i, n := range m.TermNames() {
		if n == name {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, errors.Newf("model has no term %q", name)
	}
	t := m.Terms[idx]
	if len(t.Features) != 1 {
		return nil, errors.Newf("term %q: only main effects can be plotted", name)
	}
	score := func(b int) float64 { return t.Scores.At(b) }
	if t.Scores.Rank() == 2 {
		if class < 0 || class >= t.Scores.Dim(1) {
			return nil, errors.NewValidationError("class", "out of range", class)
		}
		score = func(b int) float64 { return t.Scores.At(b, class) }
	}

	f := m.Features[t.Features[0]]
	p := plot.New()
	p.Title.Text = name
	p.X.Label.Text = f.Name
	p.Y.Label.Text = "score"
	if len(m.Classes) > 2 {
		p.Y.Label.Text = "score (" + m.Classes[class] + ")"
	}

	switch def := f.Levels[0].(type) {
	case *binning.Continuous:
		edges := binEdges(def.Cuts, f.Bounds)
		xys := make(plotter.XYs, len(edges))
		for i, x := range edges {
			b := i + 1
			if b > len(def.Cuts)+1 {
				b = len(def.Cuts) + 1
			}
			xys[i] = plotter.XY{X: x, Y: score(b)}
		}
		line, err := plotter.NewLine(xys)
		if err != nil {
			return nil, errors.Wrap(err, "shape line")
		}
		line.StepStyle = plotter.PostStep
		p.Add(line, plotter.NewGrid())
	case *binning.Categorical:
		cats := def.Categories()
		k := def.MaxIndex()
		values := make(plotter.Values, k)
		labels := make([]string, k)
		for b := 1; b <= k; b++ {
			values[b-1] = score(b)
			labels[b-1] = strings.Join(cats[b], "|")
		}
		bars, err := plotter.NewBarChart(values, vg.Points(20))
		if err != nil {
			return nil, errors.Wrap(err, "shape bars")
		}
		p.Add(bars)
		p.NominalX(labels...)
	default:
		return nil, errors.Newf("feature %s: unsupported bin definition %T", f.Name, def)
	}
	return p, nil
}

// binEdges returns the left edge of every value bin followed by the right
// edge of the last one. Unknown bounds extend one bin width past the cuts.
func binEdges(cuts []float64, bounds *ebm.Range) []float64 {
	lo, hi := math.NaN(), math.NaN()
	if bounds != nil {
		lo, hi = bounds[0], bounds[1]
	}
	switch {
	case len(cuts) == 0:
		if math.IsNaN(lo) || math.IsNaN(hi) || lo >= hi {
			lo, hi = 0, 1
		}
	default:
		pad := 1.0
		if len(cuts) > 1 {
			pad = cuts[len(cuts)-1] - cuts[len(cuts)-2]
		}
		if math.IsNaN(lo) || lo >= cuts[0] {
			lo = cuts[0] - pad
		}
		if math.IsNaN(hi) || hi <= cuts[len(cuts)-1] {
			hi = cuts[len(cuts)-1] + pad
		}
	}
	edges := make([]float64, 0, len(cuts)+2)
	edges = append(edges, lo)
	edges = append(edges, cuts...)
	return append(edges, hi)
}
