package model

import (
	"math"
	"testing"

	"github.com/prosodylab/politef0/internal/mcmc"
)

func TestNewFitNilResult(t *testing.T) {
	// An aborted sampling run hands over no result; building the fit must not
	// crash, and the fit must report no draws.
	d, err := BuildData(syntheticTable())
	if err != nil {
		t.Fatal(err)
	}
	post := NewPosterior(d, testPriors())

	fit := NewFit(post, d, nil, 42)
	if fit == nil {
		t.Fatal("expected a fit")
	}
	if len(fit.Chains) != 0 {
		t.Errorf("expected no chains, got %d", len(fit.Chains))
	}
	if fit.Seed != 42 {
		t.Errorf("seed lost: %d", fit.Seed)
	}
}

func TestNewFitPoolsChainResults(t *testing.T) {
	d, err := BuildData(syntheticTable())
	if err != nil {
		t.Fatal(err)
	}
	post := NewPosterior(d, testPriors())

	draw := post.Init(nil)
	res := &mcmc.Result{Chains: []mcmc.ChainResult{
		{Draws: [][]float64{draw, draw}, AcceptRate: 0.9, Divergences: 1},
		{Draws: [][]float64{draw}, AcceptRate: 0.7, Divergences: 2},
	}}
	fit := NewFit(post, d, res, 7)

	if len(fit.Chains) != 2 {
		t.Fatalf("expected 2 chains, got %d", len(fit.Chains))
	}
	if fit.Divergences != 3 {
		t.Errorf("divergences should sum across chains: got %d", fit.Divergences)
	}
	if math.Abs(fit.AcceptRate-0.8) > 1e-12 {
		t.Errorf("accept rate should average across chains: got %f", fit.AcceptRate)
	}
}
