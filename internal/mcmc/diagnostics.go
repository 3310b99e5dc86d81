package mcmc

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// SplitRHat computes the split potential scale-reduction factor over one
// scalar quantity's per-chain series. Values near 1 indicate the chains
// agree; above ~1.01 the fit should be treated as non-converged.
func SplitRHat(chains [][]float64) float64 {
	split := splitChains(chains)
	if len(split) < 2 {
		return math.NaN()
	}
	n := len(split[0])
	if n < 2 {
		return math.NaN()
	}

	means := make([]float64, len(split))
	vars := make([]float64, len(split))
	for i, c := range split {
		means[i] = stat.Mean(c, nil)
		vars[i] = stat.Variance(c, nil)
	}
	w := stat.Mean(vars, nil)
	b := float64(n) * stat.Variance(means, nil)

	if w == 0 {
		if b == 0 {
			return 1
		}
		return math.Inf(1)
	}
	varPlus := float64(n-1)/float64(n)*w + b/float64(n)
	return math.Sqrt(varPlus / w)
}

// EffectiveSampleSize estimates the effective number of independent draws for
// one scalar quantity, using chain-averaged autocorrelations with Geyer's
// initial positive sequence cutoff.
func EffectiveSampleSize(chains [][]float64) float64 {
	split := splitChains(chains)
	if len(split) == 0 {
		return 0
	}
	n := len(split[0])
	if n < 4 {
		return 0
	}
	m := float64(len(split))

	vars := make([]float64, len(split))
	means := make([]float64, len(split))
	for i, c := range split {
		means[i] = stat.Mean(c, nil)
		vars[i] = stat.Variance(c, nil)
	}
	w := stat.Mean(vars, nil)
	b := float64(n) * stat.Variance(means, nil)
	varPlus := float64(n-1)/float64(n)*w + b/float64(n)
	if varPlus == 0 {
		return 0
	}

	// Chain-averaged autocovariance at each lag.
	acov := func(lag int) float64 {
		total := 0.0
		for i, c := range split {
			s := 0.0
			for t := 0; t < n-lag; t++ {
				s += (c[t] - means[i]) * (c[t+lag] - means[i])
			}
			total += s / float64(n)
		}
		return total / m
	}

	sumRho := 0.0
	for lag := 1; lag+1 < n; lag += 2 {
		rhoA := 1 - (w-acov(lag))/varPlus
		rhoB := 1 - (w-acov(lag+1))/varPlus
		if rhoA+rhoB < 0 {
			break
		}
		sumRho += rhoA + rhoB
	}

	ess := m * float64(n) / (1 + 2*sumRho)
	if ess < 0 {
		return 0
	}
	return ess
}

// splitChains halves every chain so within-chain drift shows up as
// between-chain disagreement.
func splitChains(chains [][]float64) [][]float64 {
	minLen := math.MaxInt
	for _, c := range chains {
		if len(c) < minLen {
			minLen = len(c)
		}
	}
	if len(chains) == 0 || minLen < 4 {
		return nil
	}
	half := minLen / 2
	out := make([][]float64, 0, 2*len(chains))
	for _, c := range chains {
		out = append(out, c[:half], c[half:2*half])
	}
	return out
}
