package model

import (
	"fmt"
	"math"
	"math/rand"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/prosodylab/politef0/internal/mcmc"
)

// Fit bundles a fitted posterior with its draws and diagnostics. Draw access
// is by name and always sample-wise: derived quantities are computed per
// draw, never from summarized point estimates.
type Fit struct {
	Post *Posterior
	Data *Data

	// Chains holds raw unconstrained draws per chain, post-warmup.
	Chains [][][]float64

	Seed        int64
	Divergences int
	AcceptRate  float64
}

// ParamSummary is one row of the fit summary table.
type ParamSummary struct {
	Name  string
	Mean  float64
	SD    float64
	Q025  float64
	Q975  float64
	RHat  float64
	ESS   float64
}

func NewFit(post *Posterior, data *Data, res *mcmc.Result, seed int64) *Fit {
	f := &Fit{Post: post, Data: data, Seed: seed}
	if res == nil {
		return f
	}
	var totalAccept float64
	for _, c := range res.Chains {
		f.Chains = append(f.Chains, c.Draws)
		f.Divergences += c.Divergences
		totalAccept += c.AcceptRate
	}
	if len(res.Chains) > 0 {
		f.AcceptRate = totalAccept / float64(len(res.Chains))
	}
	return f
}

// DerivedNames lists the constrained-scale quantities reported in summaries,
// in report order.
func (f *Fit) DerivedNames() []string {
	names := []string{
		"b_intercept", "b_politeness", "b_gender",
		"sd_speaker_intercept", "sd_speaker_politeness", "cor_speaker",
		"sd_language_intercept", "sd_language_politeness", "cor_language",
		"sd_item", "sigma",
	}
	for _, l := range f.Data.LangNames {
		names = append(names, fmt.Sprintf("r_language_politeness[%s]", l))
	}
	return names
}

// derive maps one raw draw to the named constrained quantity.
func (f *Fit) derive(name string, theta []float64) (float64, bool) {
	t := f.Post.tailOff
	switch name {
	case "b_intercept":
		return theta[0], true
	case "b_politeness":
		return theta[1], true
	case "b_gender":
		return theta[2], true
	case "sd_speaker_intercept":
		return math.Exp(theta[t+tailLsSpkInt]), true
	case "sd_speaker_politeness":
		return math.Exp(theta[t+tailLsSpkPol]), true
	case "cor_speaker":
		return math.Tanh(theta[t+tailEtaSpk]), true
	case "sd_language_intercept":
		return math.Exp(theta[t+tailLsLangInt]), true
	case "sd_language_politeness":
		return math.Exp(theta[t+tailLsLangPol]), true
	case "cor_language":
		return math.Tanh(theta[t+tailEtaLang]), true
	case "sd_item":
		return math.Exp(theta[t+tailLsItem]), true
	case "sigma":
		return math.Exp(theta[t+tailLsSigma]), true
	}
	for l, lang := range f.Data.LangNames {
		if name == fmt.Sprintf("r_language_politeness[%s]", lang) {
			return f.Post.LangSlopeDeviation(theta, l), true
		}
	}
	return 0, false
}

// Draws returns the pooled post-warmup draws of a derived quantity.
func (f *Fit) Draws(name string) ([]float64, error) {
	var out []float64
	for _, chain := range f.Chains {
		for _, theta := range chain {
			v, ok := f.derive(name, theta)
			if !ok {
				return nil, fmt.Errorf("unknown parameter %q", name)
			}
			out = append(out, v)
		}
	}
	return out, nil
}

// chainDraws returns per-chain draws of a derived quantity, for diagnostics.
func (f *Fit) chainDraws(name string) [][]float64 {
	out := make([][]float64, len(f.Chains))
	for i, chain := range f.Chains {
		out[i] = make([]float64, len(chain))
		for j, theta := range chain {
			out[i][j], _ = f.derive(name, theta)
		}
	}
	return out
}

// LangSlopeDeviationDraws returns the pooled draws of one language's
// politeness-slope deviation.
func (f *Fit) LangSlopeDeviationDraws(lang string) ([]float64, error) {
	for l, name := range f.Data.LangNames {
		if name != lang {
			continue
		}
		var out []float64
		for _, chain := range f.Chains {
			for _, theta := range chain {
				out = append(out, f.Post.LangSlopeDeviation(theta, l))
			}
		}
		return out, nil
	}
	return nil, fmt.Errorf("unknown language %q", lang)
}

// Summary computes mean, SD, central 95% interval, and convergence
// diagnostics for every derived quantity.
func (f *Fit) Summary() ([]ParamSummary, error) {
	out := make([]ParamSummary, 0)
	for _, name := range f.DerivedNames() {
		pooled, err := f.Draws(name)
		if err != nil {
			return nil, err
		}
		sorted := append([]float64(nil), pooled...)
		sort.Float64s(sorted)

		chains := f.chainDraws(name)
		out = append(out, ParamSummary{
			Name: name,
			Mean: stat.Mean(pooled, nil),
			SD:   math.Sqrt(stat.Variance(pooled, nil)),
			Q025: stat.Quantile(0.025, stat.Empirical, sorted, nil),
			Q975: stat.Quantile(0.975, stat.Empirical, sorted, nil),
			RHat: mcmc.SplitRHat(chains),
			ESS:  mcmc.EffectiveSampleSize(chains),
		})
	}
	return out, nil
}

// Converged reports whether every derived quantity mixed acceptably and no
// divergent transitions occurred.
func (f *Fit) Converged(rhatLimit float64) (bool, []ParamSummary, error) {
	summaries, err := f.Summary()
	if err != nil {
		return false, nil, err
	}
	ok := f.Divergences == 0
	for _, s := range summaries {
		if s.RHat > rhatLimit || math.IsNaN(s.RHat) {
			ok = false
		}
	}
	return ok, summaries, nil
}

// SimulateReplicates draws posterior-predictive response vectors: for each of
// k randomly chosen posterior draws, one simulated dataset over the observed
// design.
func (f *Fit) SimulateReplicates(k int, rng *rand.Rand) [][]float64 {
	var pool [][]float64
	for _, chain := range f.Chains {
		pool = append(pool, chain...)
	}
	if len(pool) == 0 || k < 1 {
		return nil
	}
	reps := make([][]float64, 0, k)
	for r := 0; r < k; r++ {
		theta := pool[rng.Intn(len(pool))]
		mu := f.Post.Mu(theta)
		sigma := f.Post.Sigma(theta)
		y := make([]float64, len(mu))
		for i := range mu {
			y[i] = mu[i] + sigma*rng.NormFloat64()
		}
		reps = append(reps, y)
	}
	return reps
}
