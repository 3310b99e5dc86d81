// Package mcmc implements Hamiltonian Monte Carlo with dual-averaging step
// size adaptation, run as multiple independent parallel chains.
package mcmc

import (
	"context"
	"math"
	"math/rand"
)

// Target is a differentiable unnormalized log density.
type Target interface {
	Dim() int
	// LogProbGrad returns the log density at theta and, when grad is
	// non-nil, writes the gradient into it.
	LogProbGrad(theta, grad []float64) float64
}

// Chains with an energy error beyond this are counted as divergent.
const divergenceThreshold = 1000.0

// Dual-averaging constants from Hoffman & Gelman (2014).
const (
	daGamma = 0.05
	daT0    = 10.0
	daKappa = 0.75
)

type ChainResult struct {
	Draws       [][]float64 // post-warmup, one theta per draw
	AcceptRate  float64     // mean acceptance probability post-warmup
	StepSize    float64     // adapted step size
	Divergences int         // post-warmup divergent transitions
}

// runChain runs one HMC chain: warmup iterations adapt the step size toward
// the target acceptance probability and are discarded, the rest are kept.
func runChain(ctx context.Context, t Target, cfg Config, chain int, init []float64, rng *rand.Rand) (ChainResult, error) {
	dim := t.Dim()
	theta := append([]float64(nil), init...)
	grad := make([]float64, dim)
	r := make([]float64, dim)
	propTheta := make([]float64, dim)
	propGrad := make([]float64, dim)

	lp := t.LogProbGrad(theta, grad)

	eps := 0.01
	mu := math.Log(10 * eps)
	hBar, logEpsBar := 0.0, 0.0

	total := cfg.Warmup + cfg.Draws
	res := ChainResult{Draws: make([][]float64, 0, cfg.Draws)}
	acceptSum, acceptN := 0.0, 0

	for iter := 0; iter < total; iter++ {
		select {
		case <-ctx.Done():
			return res, ctx.Err()
		default:
		}

		warming := iter < cfg.Warmup
		if !warming {
			eps = math.Exp(logEpsBar)
		}

		for i := 0; i < dim; i++ {
			r[i] = rng.NormFloat64()
		}
		h0 := -lp
		for i := 0; i < dim; i++ {
			h0 += 0.5 * r[i] * r[i]
		}

		copy(propTheta, theta)
		copy(propGrad, grad)
		steps := 1 + rng.Intn(cfg.MaxLeapfrog)
		propLP, ok := leapfrog(t, propTheta, r, propGrad, eps, steps)

		alpha := 0.0
		diverged := false
		if ok {
			h1 := -propLP
			for i := 0; i < dim; i++ {
				h1 += 0.5 * r[i] * r[i]
			}
			delta := h0 - h1
			if math.IsNaN(delta) || h1-h0 > divergenceThreshold {
				diverged = true
			} else if delta >= 0 {
				alpha = 1
			} else {
				alpha = math.Exp(delta)
			}
		} else {
			diverged = true
		}

		if !diverged && rng.Float64() < alpha {
			copy(theta, propTheta)
			copy(grad, propGrad)
			lp = propLP
		}

		if warming {
			m := float64(iter + 1)
			hBar = (1-1/(m+daT0))*hBar + (cfg.TargetAccept-alpha)/(m+daT0)
			logEps := mu - math.Sqrt(m)/daGamma*hBar
			w := math.Pow(m, -daKappa)
			logEpsBar = w*logEps + (1-w)*logEpsBar
			eps = math.Exp(logEps)
		} else {
			if diverged {
				res.Divergences++
			}
			acceptSum += alpha
			acceptN++
			res.Draws = append(res.Draws, append([]float64(nil), theta...))
			if cfg.OnProgress != nil && (iter-cfg.Warmup)%progressEvery == 0 {
				cfg.OnProgress(Progress{
					Chain: chain, Iter: iter + 1, Total: total,
					StepSize: eps, AcceptRate: acceptSum / float64(acceptN),
					Divergences: res.Divergences, Value: theta[cfg.TraceIndex],
				})
			}
		}
		if cfg.OnProgress != nil && warming && iter%progressEvery == 0 {
			cfg.OnProgress(Progress{
				Chain: chain, Iter: iter + 1, Total: total, Warmup: true,
				StepSize: eps, Value: theta[cfg.TraceIndex],
			})
		}
	}

	res.StepSize = math.Exp(logEpsBar)
	if acceptN > 0 {
		res.AcceptRate = acceptSum / float64(acceptN)
	}
	return res, nil
}

// leapfrog advances position theta and momentum r through L symplectic steps
// of size eps, in place. Returns the final log density and false when the
// trajectory blew up numerically.
func leapfrog(t Target, theta, r, grad []float64, eps float64, L int) (float64, bool) {
	dim := len(theta)
	lp := 0.0

	for i := 0; i < dim; i++ {
		r[i] += 0.5 * eps * grad[i]
	}
	for step := 0; step < L; step++ {
		for i := 0; i < dim; i++ {
			theta[i] += eps * r[i]
		}
		lp = t.LogProbGrad(theta, grad)
		if math.IsNaN(lp) || math.IsInf(lp, 0) {
			return lp, false
		}
		scale := eps
		if step == L-1 {
			scale = 0.5 * eps
		}
		for i := 0; i < dim; i++ {
			r[i] += scale * grad[i]
		}
	}
	for i := 0; i < dim; i++ {
		if math.IsNaN(r[i]) || math.IsInf(r[i], 0) {
			return lp, false
		}
	}
	return lp, true
}
