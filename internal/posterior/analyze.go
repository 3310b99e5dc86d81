// Package posterior turns raw posterior samples into reported probabilities
// and per-language effect estimates. Every operation combines samples per
// draw before summarizing; nothing here works on pre-summarized estimates.
package posterior

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/prosodylab/politef0/internal/model"
)

// ProbBelowZero is the fraction of draws strictly below zero.
func ProbBelowZero(draws []float64) float64 {
	if len(draws) == 0 {
		return math.NaN()
	}
	below := 0
	for _, d := range draws {
		if d < 0 {
			below++
		}
	}
	return float64(below) / float64(len(draws))
}

// ProbAtLeastZero is the reported convention for the politeness effect:
// the probability the effect is non-negative, 1 - fraction(draws < 0).
func ProbAtLeastZero(draws []float64) float64 {
	return 1 - ProbBelowZero(draws)
}

// ProbGreater is the fraction of draws where a exceeds b, compared draw by
// draw. Used to quantify whether between-speaker politeness variability
// exceeds between-language variability.
func ProbGreater(a, b []float64) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("draw counts differ: %d vs %d", len(a), len(b))
	}
	if len(a) == 0 {
		return math.NaN(), nil
	}
	n := 0
	for i := range a {
		if a[i] > b[i] {
			n++
		}
	}
	return float64(n) / float64(len(a)), nil
}

// LanguageEffect is the posterior of the politeness effect within one
// language: fixed effect plus that language's slope deviation, summed per
// draw.
type LanguageEffect struct {
	Lang  string
	Mean  float64
	Lo    float64 // 2.5th percentile
	Hi    float64 // 97.5th percentile
	Draws []float64
}

// CombineEffect sums fixed-effect and deviation draws element-wise and
// summarizes the combined sequence.
func CombineEffect(lang string, fixed, deviation []float64) (LanguageEffect, error) {
	if len(fixed) != len(deviation) {
		return LanguageEffect{}, fmt.Errorf("language %s: draw counts differ: %d vs %d", lang, len(fixed), len(deviation))
	}
	combined := make([]float64, len(fixed))
	for i := range fixed {
		combined[i] = fixed[i] + deviation[i]
	}
	sorted := append([]float64(nil), combined...)
	sort.Float64s(sorted)
	return LanguageEffect{
		Lang:  lang,
		Mean:  stat.Mean(combined, nil),
		Lo:    stat.Quantile(0.025, stat.Empirical, sorted, nil),
		Hi:    stat.Quantile(0.975, stat.Empirical, sorted, nil),
		Draws: combined,
	}, nil
}

// LanguageEffects derives the per-language politeness effect for every
// language in the fit, ordered ascending by posterior mean.
func LanguageEffects(fit *model.Fit) ([]LanguageEffect, error) {
	fixed, err := fit.Draws("b_politeness")
	if err != nil {
		return nil, err
	}
	out := make([]LanguageEffect, 0, len(fit.Data.LangNames))
	for _, lang := range fit.Data.LangNames {
		dev, err := fit.LangSlopeDeviationDraws(lang)
		if err != nil {
			return nil, err
		}
		eff, err := CombineEffect(lang, fixed, dev)
		if err != nil {
			return nil, err
		}
		out = append(out, eff)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Mean < out[j].Mean })
	return out, nil
}

// KDE evaluates a Gaussian kernel density estimate on a uniform grid
// spanning the data with a margin, for the density overlays in the
// posterior-predictive plot.
func KDE(xs []float64, points int) (grid, density []float64) {
	if len(xs) == 0 || points < 2 {
		return nil, nil
	}
	sd := math.Sqrt(stat.Variance(xs, nil))
	if sd == 0 || math.IsNaN(sd) {
		sd = 1
	}
	// Silverman's rule of thumb.
	h := 1.06 * sd * math.Pow(float64(len(xs)), -0.2)

	lo, hi := xs[0], xs[0]
	for _, x := range xs {
		lo = math.Min(lo, x)
		hi = math.Max(hi, x)
	}
	lo -= 3 * h
	hi += 3 * h

	grid = make([]float64, points)
	density = make([]float64, points)
	step := (hi - lo) / float64(points-1)
	norm := 1 / (float64(len(xs)) * h * math.Sqrt(2*math.Pi))
	for i := range grid {
		g := lo + float64(i)*step
		grid[i] = g
		sum := 0.0
		for _, x := range xs {
			z := (g - x) / h
			sum += math.Exp(-0.5 * z * z)
		}
		density[i] = norm * sum
	}
	return grid, density
}
