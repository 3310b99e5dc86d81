package mcmc

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
)

const progressEvery = 25

type Config struct {
	Chains       int
	Warmup       int
	Draws        int
	Seed         int64
	TargetAccept float64
	MaxLeapfrog  int
	// Cores caps how many chains run concurrently. Parallelism is explicit
	// configuration, not ambient process state.
	Cores int
	// TraceIndex selects which coordinate Progress.Value reports.
	TraceIndex int
	// OnProgress, when set, receives periodic updates from every chain. It
	// may be called from multiple goroutines.
	OnProgress func(Progress)
}

type Progress struct {
	Chain       int
	Iter        int
	Total       int
	Warmup      bool
	StepSize    float64
	AcceptRate  float64
	Divergences int
	Value       float64
}

type Result struct {
	Chains []ChainResult
}

// Run samples cfg.Chains independent chains in parallel, each seeded with a
// deterministic per-chain offset so a fixed seed reproduces the draws
// exactly. Init produces a starting point per chain; results are pooled only
// after every chain finishes.
func Run(ctx context.Context, t Target, cfg Config, init func(rng *rand.Rand) []float64) (*Result, error) {
	if cfg.Chains < 1 {
		return nil, fmt.Errorf("need at least 1 chain, got %d", cfg.Chains)
	}
	if cfg.MaxLeapfrog < 1 {
		return nil, fmt.Errorf("max leapfrog steps must be positive, got %d", cfg.MaxLeapfrog)
	}
	if cfg.TargetAccept <= 0 || cfg.TargetAccept >= 1 {
		return nil, fmt.Errorf("target accept must be in (0,1), got %f", cfg.TargetAccept)
	}

	cores := cfg.Cores
	if cores < 1 {
		cores = cfg.Chains
	}
	sem := make(chan struct{}, cores)

	results := make([]ChainResult, cfg.Chains)
	errs := make([]error, cfg.Chains)

	var wg sync.WaitGroup
	for c := 0; c < cfg.Chains; c++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			rng := rand.New(rand.NewSource(cfg.Seed + int64(idx)))
			results[idx], errs[idx] = runChain(ctx, t, cfg, idx, init(rng), rng)
		}(c)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return &Result{Chains: results}, nil
}
