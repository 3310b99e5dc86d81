package mcmc

import (
	"context"
	"math"
	"math/rand"
	"testing"

	"gonum.org/v1/gonum/stat"
)

// stdNormal is an isotropic Gaussian target.
type stdNormal struct{ dim int }

func (s stdNormal) Dim() int { return s.dim }

func (s stdNormal) LogProbGrad(theta, grad []float64) float64 {
	lp := 0.0
	for i, x := range theta {
		lp += -0.5 * x * x
		if grad != nil {
			grad[i] = -x
		}
	}
	return lp
}

func gaussianConfig(chains int) Config {
	return Config{
		Chains:       chains,
		Warmup:       300,
		Draws:        500,
		Seed:         42,
		TargetAccept: 0.9,
		MaxLeapfrog:  16,
	}
}

func zeroInit(rng *rand.Rand) []float64 {
	init := make([]float64, 3)
	for i := range init {
		init[i] = 0.1 * rng.NormFloat64()
	}
	return init
}

func TestRunRecoversGaussianMoments(t *testing.T) {
	res, err := Run(context.Background(), stdNormal{dim: 3}, gaussianConfig(2), zeroInit)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Chains) != 2 {
		t.Fatalf("expected 2 chains, got %d", len(res.Chains))
	}

	for d := 0; d < 3; d++ {
		var pooled []float64
		for _, c := range res.Chains {
			if len(c.Draws) != 500 {
				t.Fatalf("expected 500 draws, got %d", len(c.Draws))
			}
			for _, theta := range c.Draws {
				pooled = append(pooled, theta[d])
			}
		}
		mean := stat.Mean(pooled, nil)
		variance := stat.Variance(pooled, nil)
		if math.Abs(mean) > 0.15 {
			t.Errorf("dim %d: mean %f too far from 0", d, mean)
		}
		if variance < 0.7 || variance > 1.3 {
			t.Errorf("dim %d: variance %f too far from 1", d, variance)
		}
	}

	for i, c := range res.Chains {
		if c.Divergences != 0 {
			t.Errorf("chain %d: unexpected divergences on a Gaussian target: %d", i, c.Divergences)
		}
		if c.AcceptRate < 0.5 {
			t.Errorf("chain %d: acceptance %f suspiciously low", i, c.AcceptRate)
		}
		if c.StepSize <= 0 {
			t.Errorf("chain %d: adapted step size %f", i, c.StepSize)
		}
	}
}

func TestRunIsDeterministicForFixedSeed(t *testing.T) {
	a, err := Run(context.Background(), stdNormal{dim: 3}, gaussianConfig(2), zeroInit)
	if err != nil {
		t.Fatal(err)
	}
	b, err := Run(context.Background(), stdNormal{dim: 3}, gaussianConfig(2), zeroInit)
	if err != nil {
		t.Fatal(err)
	}
	for c := range a.Chains {
		for i := range a.Chains[c].Draws {
			for d := range a.Chains[c].Draws[i] {
				if a.Chains[c].Draws[i][d] != b.Chains[c].Draws[i][d] {
					t.Fatalf("chain %d draw %d dim %d differs between identically-seeded runs", c, i, d)
				}
			}
		}
	}
}

func TestRunDifferentSeedsDiffer(t *testing.T) {
	cfgA := gaussianConfig(1)
	cfgB := gaussianConfig(1)
	cfgB.Seed = 99
	a, err := Run(context.Background(), stdNormal{dim: 3}, cfgA, zeroInit)
	if err != nil {
		t.Fatal(err)
	}
	b, err := Run(context.Background(), stdNormal{dim: 3}, cfgB, zeroInit)
	if err != nil {
		t.Fatal(err)
	}
	if a.Chains[0].Draws[0][0] == b.Chains[0].Draws[0][0] {
		t.Error("different seeds produced identical first draws")
	}
}

func TestRunRespectsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	cfg := gaussianConfig(1)
	if _, err := Run(ctx, stdNormal{dim: 3}, cfg, zeroInit); err == nil {
		t.Error("expected context error")
	}
}

func TestRunValidatesConfig(t *testing.T) {
	cfg := gaussianConfig(1)
	cfg.TargetAccept = 0
	if _, err := Run(context.Background(), stdNormal{dim: 3}, cfg, zeroInit); err == nil {
		t.Error("expected error for target accept 0")
	}

	cfg = gaussianConfig(1)
	cfg.Chains = 0
	if _, err := Run(context.Background(), stdNormal{dim: 3}, cfg, zeroInit); err == nil {
		t.Error("expected error for zero chains")
	}
}

func TestProgressCallback(t *testing.T) {
	cfg := gaussianConfig(1)
	got := 0
	cfg.OnProgress = func(p Progress) {
		got++
		if p.Chain != 0 || p.Total != cfg.Warmup+cfg.Draws {
			t.Errorf("bad progress message: %+v", p)
		}
	}
	if _, err := Run(context.Background(), stdNormal{dim: 3}, cfg, zeroInit); err != nil {
		t.Fatal(err)
	}
	if got == 0 {
		t.Error("progress callback never invoked")
	}
}
