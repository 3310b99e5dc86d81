package model

import (
	"fmt"
	"math"
)

// Priors holds the fixed prior scales. Fixed-effect slopes get zero-centered
// Gaussians with a moderate SD (mild skepticism of implausibly large effects,
// no direction asserted); the intercept gets a wide one. Group and residual
// SDs get half-normals; correlations are uniform on (-1, 1).
type Priors struct {
	SlopeSD     float64
	InterceptSD float64
	GroupSD     float64
	SigmaSD     float64
}

// Posterior is the joint log density of the hierarchical politeness model in
// its unconstrained, non-centered parameterization:
//
//	f0 ~ Normal(mu, sigma)
//	mu = b0 + bPol*pol + bGend*gend
//	   + u_spk_int[s] + u_spk_pol[s]*pol
//	   + u_lang_int[l] + u_lang_pol[l]*pol
//	   + u_item[i]
//
// Each (intercept, slope) pair is correlated within its grouping factor via
// the Cholesky factor of a 2x2 covariance; the by-item factor has an
// intercept only. Scales live on the log axis, correlations on the atanh
// axis, and the usual change-of-variable terms are included.
type Posterior struct {
	data   *Data
	priors Priors

	nSpk, nLang, nItem int
	zSpkOff            int
	zLangOff           int
	zItemOff           int
	tailOff            int
	dim                int
}

const (
	tailLsSpkInt = iota
	tailLsSpkPol
	tailEtaSpk
	tailLsLangInt
	tailLsLangPol
	tailEtaLang
	tailLsItem
	tailLsSigma
	tailLen
)

func NewPosterior(d *Data, p Priors) *Posterior {
	post := &Posterior{
		data:   d,
		priors: p,
		nSpk:   d.NSpk(),
		nLang:  d.NLang(),
		nItem:  d.NItem(),
	}
	post.zSpkOff = 3
	post.zLangOff = post.zSpkOff + 2*post.nSpk
	post.zItemOff = post.zLangOff + 2*post.nLang
	post.tailOff = post.zItemOff + post.nItem
	post.dim = post.tailOff + tailLen
	return post
}

func (p *Posterior) Dim() int { return p.dim }

// ParamNames returns the raw unconstrained parameter names in theta order.
func (p *Posterior) ParamNames() []string {
	names := make([]string, 0, p.dim)
	names = append(names, "b_intercept", "b_politeness", "b_gender")
	for _, s := range p.data.SpkNames {
		names = append(names,
			fmt.Sprintf("z_speaker[%s].intercept", s),
			fmt.Sprintf("z_speaker[%s].politeness", s))
	}
	for _, l := range p.data.LangNames {
		names = append(names,
			fmt.Sprintf("z_language[%s].intercept", l),
			fmt.Sprintf("z_language[%s].politeness", l))
	}
	for _, it := range p.data.ItemNames {
		names = append(names, fmt.Sprintf("z_item[%s]", it))
	}
	names = append(names,
		"log_sd_speaker_intercept", "log_sd_speaker_politeness", "cor_speaker_raw",
		"log_sd_language_intercept", "log_sd_language_politeness", "cor_language_raw",
		"log_sd_item", "log_sigma")
	return names
}

// LogProb returns the unnormalized log posterior density.
func (p *Posterior) LogProb(theta []float64) float64 {
	return p.LogProbGrad(theta, nil)
}

// LogProbGrad evaluates the log density and, when grad is non-nil, writes the
// analytic gradient into it. Both are computed in a single pass over the data.
func (p *Posterior) LogProbGrad(theta []float64, grad []float64) float64 {
	if grad != nil {
		for i := range grad {
			grad[i] = 0
		}
	}

	d := p.data
	t := p.tailOff

	b0, bPol, bGend := theta[0], theta[1], theta[2]

	tauSpkInt := math.Exp(theta[t+tailLsSpkInt])
	tauSpkPol := math.Exp(theta[t+tailLsSpkPol])
	rhoSpk := math.Tanh(theta[t+tailEtaSpk])
	cSpk := math.Sqrt(1 - rhoSpk*rhoSpk)

	tauLangInt := math.Exp(theta[t+tailLsLangInt])
	tauLangPol := math.Exp(theta[t+tailLsLangPol])
	rhoLang := math.Tanh(theta[t+tailEtaLang])
	cLang := math.Sqrt(1 - rhoLang*rhoLang)

	tauItem := math.Exp(theta[t+tailLsItem])
	sigma := math.Exp(theta[t+tailLsSigma])

	// Group-level effects from the non-centered z-scores.
	uSpkInt := make([]float64, p.nSpk)
	uSpkPol := make([]float64, p.nSpk)
	for s := 0; s < p.nSpk; s++ {
		z0 := theta[p.zSpkOff+2*s]
		z1 := theta[p.zSpkOff+2*s+1]
		uSpkInt[s] = tauSpkInt * z0
		uSpkPol[s] = tauSpkPol * (rhoSpk*z0 + cSpk*z1)
	}
	uLangInt := make([]float64, p.nLang)
	uLangPol := make([]float64, p.nLang)
	for l := 0; l < p.nLang; l++ {
		z0 := theta[p.zLangOff+2*l]
		z1 := theta[p.zLangOff+2*l+1]
		uLangInt[l] = tauLangInt * z0
		uLangPol[l] = tauLangPol * (rhoLang*z0 + cLang*z1)
	}

	lp := 0.0
	inv2 := 1.0 / (sigma * sigma)
	var gLsSigma float64

	for n := 0; n < d.N(); n++ {
		pol, gend := d.Pol[n], d.Gend[n]
		s, l, it := d.Spk[n], d.Lang[n], d.Item[n]

		mu := b0 + bPol*pol + bGend*gend +
			uSpkInt[s] + uSpkPol[s]*pol +
			uLangInt[l] + uLangPol[l]*pol +
			tauItem*theta[p.zItemOff+it]

		resid := d.Y[n] - mu
		lp += -0.5 * resid * resid * inv2
		gLsSigma += resid * resid * inv2

		if grad == nil {
			continue
		}
		r := resid * inv2

		grad[0] += r
		grad[1] += r * pol
		grad[2] += r * gend

		z0 := theta[p.zSpkOff+2*s]
		z1 := theta[p.zSpkOff+2*s+1]
		grad[p.zSpkOff+2*s] += r * (tauSpkInt + tauSpkPol*rhoSpk*pol)
		grad[p.zSpkOff+2*s+1] += r * tauSpkPol * cSpk * pol
		grad[t+tailLsSpkInt] += r * uSpkInt[s]
		grad[t+tailLsSpkPol] += r * uSpkPol[s] * pol
		grad[t+tailEtaSpk] += r * tauSpkPol * (z0 - rhoSpk*z1/cSpk) * pol * (1 - rhoSpk*rhoSpk)

		z0 = theta[p.zLangOff+2*l]
		z1 = theta[p.zLangOff+2*l+1]
		grad[p.zLangOff+2*l] += r * (tauLangInt + tauLangPol*rhoLang*pol)
		grad[p.zLangOff+2*l+1] += r * tauLangPol * cLang * pol
		grad[t+tailLsLangInt] += r * uLangInt[l]
		grad[t+tailLsLangPol] += r * uLangPol[l] * pol
		grad[t+tailEtaLang] += r * tauLangPol * (z0 - rhoLang*z1/cLang) * pol * (1 - rhoLang*rhoLang)

		grad[p.zItemOff+it] += r * tauItem
		grad[t+tailLsItem] += r * tauItem * theta[p.zItemOff+it]
	}

	lp += -float64(d.N()) * math.Log(sigma)
	if grad != nil {
		grad[t+tailLsSigma] += gLsSigma - float64(d.N())
	}

	// Fixed-effect priors.
	lp += gaussPrior(theta, grad, 0, p.priors.InterceptSD)
	lp += gaussPrior(theta, grad, 1, p.priors.SlopeSD)
	lp += gaussPrior(theta, grad, 2, p.priors.SlopeSD)

	// Standard-normal priors on the z-scores.
	for i := p.zSpkOff; i < p.tailOff; i++ {
		lp += -0.5 * theta[i] * theta[i]
		if grad != nil {
			grad[i] -= theta[i]
		}
	}

	// Half-normal scales (log axis, Jacobian included).
	lp += halfNormalLogScale(theta, grad, t+tailLsSpkInt, tauSpkInt, p.priors.GroupSD)
	lp += halfNormalLogScale(theta, grad, t+tailLsSpkPol, tauSpkPol, p.priors.GroupSD)
	lp += halfNormalLogScale(theta, grad, t+tailLsLangInt, tauLangInt, p.priors.GroupSD)
	lp += halfNormalLogScale(theta, grad, t+tailLsLangPol, tauLangPol, p.priors.GroupSD)
	lp += halfNormalLogScale(theta, grad, t+tailLsItem, tauItem, p.priors.GroupSD)
	lp += halfNormalLogScale(theta, grad, t+tailLsSigma, sigma, p.priors.SigmaSD)

	// Uniform correlations via tanh: log|d rho / d eta| = log(1 - rho^2).
	lp += math.Log(1 - rhoSpk*rhoSpk)
	lp += math.Log(1 - rhoLang*rhoLang)
	if grad != nil {
		grad[t+tailEtaSpk] += -2 * rhoSpk
		grad[t+tailEtaLang] += -2 * rhoLang
	}

	return lp
}

func gaussPrior(theta, grad []float64, i int, sd float64) float64 {
	if grad != nil {
		grad[i] -= theta[i] / (sd * sd)
	}
	return -0.5 * theta[i] * theta[i] / (sd * sd)
}

func halfNormalLogScale(theta, grad []float64, i int, tau, scale float64) float64 {
	if grad != nil {
		grad[i] += -tau * tau / (scale * scale) + 1
	}
	return -0.5*tau*tau/(scale*scale) + theta[i]
}

// Init builds a starting point near the data scale: intercept at the sample
// mean, residual and group scales near the sample SD, everything else zero.
// jitter perturbs each coordinate for chain dispersion.
func (p *Posterior) Init(jitter func() float64) []float64 {
	mean, sd := 0.0, 1.0
	for _, y := range p.data.Y {
		mean += y
	}
	mean /= float64(p.data.N())
	ss := 0.0
	for _, y := range p.data.Y {
		ss += (y - mean) * (y - mean)
	}
	if p.data.N() > 1 {
		sd = math.Sqrt(ss / float64(p.data.N()-1))
	}
	if sd <= 0 {
		sd = 1
	}

	theta := make([]float64, p.dim)
	theta[0] = mean
	t := p.tailOff
	theta[t+tailLsSigma] = math.Log(sd)
	theta[t+tailLsSpkInt] = math.Log(sd / 2)
	theta[t+tailLsSpkPol] = math.Log(sd / 4)
	theta[t+tailLsLangInt] = math.Log(sd / 2)
	theta[t+tailLsLangPol] = math.Log(sd / 4)
	theta[t+tailLsItem] = math.Log(sd / 4)

	if jitter != nil {
		for i := range theta {
			theta[i] += 0.1 * jitter()
		}
	}
	return theta
}

// Mu returns the vector of predicted means for the observed design under one
// raw parameter draw, for posterior-predictive simulation.
func (p *Posterior) Mu(theta []float64) []float64 {
	d := p.data
	t := p.tailOff

	tauSpkInt := math.Exp(theta[t+tailLsSpkInt])
	tauSpkPol := math.Exp(theta[t+tailLsSpkPol])
	rhoSpk := math.Tanh(theta[t+tailEtaSpk])
	cSpk := math.Sqrt(1 - rhoSpk*rhoSpk)
	tauLangInt := math.Exp(theta[t+tailLsLangInt])
	tauLangPol := math.Exp(theta[t+tailLsLangPol])
	rhoLang := math.Tanh(theta[t+tailEtaLang])
	cLang := math.Sqrt(1 - rhoLang*rhoLang)
	tauItem := math.Exp(theta[t+tailLsItem])

	mu := make([]float64, d.N())
	for n := 0; n < d.N(); n++ {
		s, l, it := d.Spk[n], d.Lang[n], d.Item[n]
		zs0 := theta[p.zSpkOff+2*s]
		zs1 := theta[p.zSpkOff+2*s+1]
		zl0 := theta[p.zLangOff+2*l]
		zl1 := theta[p.zLangOff+2*l+1]
		mu[n] = theta[0] + theta[1]*d.Pol[n] + theta[2]*d.Gend[n] +
			tauSpkInt*zs0 + tauSpkPol*(rhoSpk*zs0+cSpk*zs1)*d.Pol[n] +
			tauLangInt*zl0 + tauLangPol*(rhoLang*zl0+cLang*zl1)*d.Pol[n] +
			tauItem*theta[p.zItemOff+it]
	}
	return mu
}

// Sigma returns the residual SD under one raw draw.
func (p *Posterior) Sigma(theta []float64) float64 {
	return math.Exp(theta[p.tailOff+tailLsSigma])
}

// LangSlopeDeviation returns the group-level politeness-slope deviation for
// language index l under one raw draw.
func (p *Posterior) LangSlopeDeviation(theta []float64, l int) float64 {
	t := p.tailOff
	tau := math.Exp(theta[t+tailLsLangPol])
	rho := math.Tanh(theta[t+tailEtaLang])
	c := math.Sqrt(1 - rho*rho)
	z0 := theta[p.zLangOff+2*l]
	z1 := theta[p.zLangOff+2*l+1]
	return tau * (rho*z0 + c*z1)
}
