// Package viz renders the report figures: the per-language effect comparison
// and the posterior-predictive check.
package viz

import (
	"fmt"
	"image/color"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/prosodylab/politef0/internal/posterior"
)

var (
	colorModel    = color.RGBA{R: 31, G: 119, B: 180, A: 255}
	colorRaw      = color.RGBA{R: 214, G: 39, B: 40, A: 255}
	colorObserved = color.RGBA{R: 20, G: 20, B: 20, A: 255}
	colorRep      = color.RGBA{R: 140, G: 160, B: 200, A: 90}
)

// ForestPlot draws per-language model estimates with 95% credible intervals,
// overlaid with the raw descriptive polite-minus-informal differences.
// Effects are expected pre-sorted ascending by posterior mean; that ordering
// is kept on the axis.
func ForestPlot(effects []posterior.LanguageEffect, rawDiffs map[string]float64, path string) error {
	if len(effects) == 0 {
		return fmt.Errorf("no language effects to plot")
	}

	p := plot.New()
	p.Title.Text = "politeness effect on F0 by language"
	p.Y.Label.Text = "polite − informal (Hz)"
	p.X.Label.Text = "language"

	names := make([]string, len(effects))
	meanPts := make(plotter.XYs, len(effects))
	rawPts := make(plotter.XYs, 0, len(effects))
	for i, e := range effects {
		names[i] = e.Lang
		meanPts[i] = plotter.XY{X: float64(i), Y: e.Mean}
		if d, ok := rawDiffs[e.Lang]; ok {
			rawPts = append(rawPts, plotter.XY{X: float64(i), Y: d})
		}

		ci, err := plotter.NewLine(plotter.XYs{
			{X: float64(i), Y: e.Lo},
			{X: float64(i), Y: e.Hi},
		})
		if err != nil {
			return err
		}
		ci.LineStyle.Width = vg.Points(1.5)
		ci.LineStyle.Color = colorModel
		p.Add(ci)
	}

	zero, err := plotter.NewLine(plotter.XYs{
		{X: -0.5, Y: 0},
		{X: float64(len(effects)) - 0.5, Y: 0},
	})
	if err != nil {
		return err
	}
	zero.LineStyle.Color = color.Gray{Y: 180}
	zero.LineStyle.Dashes = []vg.Length{vg.Points(3), vg.Points(3)}
	p.Add(zero)

	means, err := plotter.NewScatter(meanPts)
	if err != nil {
		return err
	}
	means.GlyphStyle.Shape = draw.CircleGlyph{}
	means.GlyphStyle.Color = colorModel
	means.GlyphStyle.Radius = vg.Points(3)
	p.Add(means)
	p.Legend.Add("model (95% CrI)", means)

	if len(rawPts) > 0 {
		raw, err := plotter.NewScatter(rawPts)
		if err != nil {
			return err
		}
		raw.GlyphStyle.Shape = draw.CrossGlyph{}
		raw.GlyphStyle.Color = colorRaw
		raw.GlyphStyle.Radius = vg.Points(3)
		p.Add(raw)
		p.Legend.Add("raw difference", raw)
	}

	p.NominalX(names...)
	p.Legend.Top = true

	return p.Save(7*vg.Inch, 4.5*vg.Inch, path)
}

// PPCPlot overlays kernel densities of simulated response vectors on the
// observed response density and writes the figure to every given path; the
// file extension picks the encoder (.png raster, .svg vector).
func PPCPlot(observed []float64, replicates [][]float64, paths ...string) error {
	if len(observed) == 0 {
		return fmt.Errorf("no observed values to plot")
	}

	p := plot.New()
	p.Title.Text = "posterior predictive check"
	p.X.Label.Text = "median F0 (Hz)"
	p.Y.Label.Text = "density"

	var repLine *plotter.Line
	for _, rep := range replicates {
		grid, dens := posterior.KDE(rep, 200)
		line, err := plotter.NewLine(toXYs(grid, dens))
		if err != nil {
			return err
		}
		line.LineStyle.Width = vg.Points(0.5)
		line.LineStyle.Color = colorRep
		p.Add(line)
		repLine = line
	}

	grid, dens := posterior.KDE(observed, 200)
	obsLine, err := plotter.NewLine(toXYs(grid, dens))
	if err != nil {
		return err
	}
	obsLine.LineStyle.Width = vg.Points(2)
	obsLine.LineStyle.Color = colorObserved
	p.Add(obsLine)

	p.Legend.Add("observed", obsLine)
	if repLine != nil {
		p.Legend.Add("simulated", repLine)
	}
	p.Legend.Top = true

	for _, path := range paths {
		if err := p.Save(6*vg.Inch, 4*vg.Inch, path); err != nil {
			return err
		}
	}
	return nil
}

func toXYs(x, y []float64) plotter.XYs {
	pts := make(plotter.XYs, len(x))
	for i := range x {
		pts[i] = plotter.XY{X: x[i], Y: y[i]}
	}
	return pts
}
