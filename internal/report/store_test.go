package report

import (
	"math/rand"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prosodylab/politef0/internal/dataset"
	"github.com/prosodylab/politef0/internal/describe"
	"github.com/prosodylab/politef0/internal/model"
)

func smallTable() *dataset.Table {
	return tableForLangs("kor", "deu")
}

func tableForLangs(langs ...string) *dataset.Table {
	tbl := &dataset.Table{}
	for _, lang := range langs {
		for _, spk := range []string{"a", "b"} {
			for _, cond := range []string{"pol", "inform"} {
				tbl.Speaker = append(tbl.Speaker, spk)
				tbl.Lang = append(tbl.Lang, lang)
				tbl.Gend = append(tbl.Gend, "F")
				tbl.Item = append(tbl.Item, "1")
				tbl.Inform = append(tbl.Inform, cond)
				f0 := 180.0
				if cond == "pol" {
					f0 = 165
				}
				tbl.F0 = append(tbl.F0, f0)
			}
		}
	}
	tbl.ItemFixed = append([]string(nil), tbl.Item...)
	tbl.UniqueItem = make([]string, tbl.Len())
	for i := range tbl.UniqueItem {
		tbl.UniqueItem[i] = tbl.Lang[i] + "_" + tbl.ItemFixed[i]
	}
	return tbl
}

func smallFit(t *testing.T) (*model.Fit, *model.Posterior, *model.Data) {
	t.Helper()
	data, err := model.BuildData(smallTable())
	if err != nil {
		t.Fatal(err)
	}
	post := model.NewPosterior(data, model.Priors{SlopeSD: 50, InterceptSD: 300, GroupSD: 50, SigmaSD: 100})

	rng := rand.New(rand.NewSource(9))
	fit := &model.Fit{Post: post, Data: data, Seed: 42, AcceptRate: 0.91}
	for c := 0; c < 2; c++ {
		chain := make([][]float64, 5)
		for i := range chain {
			chain[i] = post.Init(rng.NormFloat64)
		}
		fit.Chains = append(fit.Chains, chain)
	}
	return fit, post, data
}

func TestWriteProportionLowered(t *testing.T) {
	store := New(t.TempDir())
	if err := store.Init(); err != nil {
		t.Fatal(err)
	}

	rows := []describe.LoweredRow{
		{Lang: "deu", Lowered: 3, Total: 4, Proportion: 0.75},
		{Lang: "kor", Lowered: 1, Total: 2, Proportion: 0.5},
	}
	if err := store.WriteProportionLowered(rows); err != nil {
		t.Fatal(err)
	}

	raw, err := os.ReadFile(store.Path(ProportionFile))
	if err != nil {
		t.Fatal(err)
	}
	want := "language\tlowered\tspeakers\tproportion\n" +
		"deu\t3\t4\t0.75\n" +
		"kor\t1\t2\t0.50\n"
	if string(raw) != want {
		t.Errorf("got:\n%s\nwant:\n%s", raw, want)
	}
}

func TestSaveLoadFitRoundTrip(t *testing.T) {
	fit, post, data := smallFit(t)
	store := New(t.TempDir())
	if err := store.Init(); err != nil {
		t.Fatal(err)
	}

	meta := FitMetadata{
		Timestamp:    time.Now().UTC(),
		Seed:         fit.Seed,
		Chains:       len(fit.Chains),
		Warmup:       10,
		Draws:        5,
		TargetAccept: 0.95,
		MaxLeapfrog:  256,
		AcceptRate:   fit.AcceptRate,
	}
	if err := store.SaveFit(fit, meta); err != nil {
		t.Fatal(err)
	}

	loaded, err := store.LoadFit(post, data)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Seed != fit.Seed || loaded.AcceptRate != fit.AcceptRate {
		t.Errorf("metadata lost: seed %d accept %f", loaded.Seed, loaded.AcceptRate)
	}
	if len(loaded.Chains) != len(fit.Chains) {
		t.Fatalf("expected %d chains, got %d", len(fit.Chains), len(loaded.Chains))
	}
	for c := range fit.Chains {
		if len(loaded.Chains[c]) != len(fit.Chains[c]) {
			t.Fatalf("chain %d: expected %d draws, got %d", c, len(fit.Chains[c]), len(loaded.Chains[c]))
		}
		for i := range fit.Chains[c] {
			for j := range fit.Chains[c][i] {
				if loaded.Chains[c][i][j] != fit.Chains[c][i][j] {
					t.Fatalf("chain %d draw %d param %d: %g != %g",
						c, i, j, loaded.Chains[c][i][j], fit.Chains[c][i][j])
				}
			}
		}
	}

	// Derived draws survive the round trip too.
	orig, err := fit.Draws("b_politeness")
	if err != nil {
		t.Fatal(err)
	}
	back, err := loaded.Draws("b_politeness")
	if err != nil {
		t.Fatal(err)
	}
	for i := range orig {
		if orig[i] != back[i] {
			t.Fatal("derived draws differ after round trip")
		}
	}
}

func TestLoadFitRejectsMismatchedLayout(t *testing.T) {
	fit, post, _ := smallFit(t)
	store := New(t.TempDir())
	if err := store.Init(); err != nil {
		t.Fatal(err)
	}
	if err := store.SaveFit(fit, FitMetadata{Seed: fit.Seed}); err != nil {
		t.Fatal(err)
	}

	// A posterior over fewer groups has a different parameter layout.
	tbl := smallTable()
	smaller, err := model.BuildData(tbl.Filter(func(i int) bool { return tbl.Lang[i] == "kor" }))
	if err != nil {
		t.Fatal(err)
	}
	postSmall := model.NewPosterior(smaller, model.Priors{SlopeSD: 50, InterceptSD: 300, GroupSD: 50, SigmaSD: 100})
	if postSmall.Dim() == post.Dim() {
		t.Fatal("test setup: layouts should differ")
	}
	if _, err := store.LoadFit(postSmall, smaller); err == nil {
		t.Error("expected column mismatch error")
	}
}

func TestLoadFitRejectsRenamedParameters(t *testing.T) {
	fit, _, _ := smallFit(t)
	store := New(t.TempDir())
	if err := store.Init(); err != nil {
		t.Fatal(err)
	}
	if err := store.SaveFit(fit, FitMetadata{Seed: fit.Seed}); err != nil {
		t.Fatal(err)
	}

	// Same group structure, one language relabeled: identical dimension,
	// different parameter names. Column count alone cannot catch this.
	renamed, err := model.BuildData(tableForLangs("kor", "cmn"))
	if err != nil {
		t.Fatal(err)
	}
	postRenamed := model.NewPosterior(renamed, model.Priors{SlopeSD: 50, InterceptSD: 300, GroupSD: 50, SigmaSD: 100})
	if postRenamed.Dim() != fit.Post.Dim() {
		t.Fatal("test setup: dimensions should match")
	}
	if _, err := store.LoadFit(postRenamed, renamed); err == nil {
		t.Error("expected parameter name mismatch error")
	}
}

func TestLoadFitMissingFiles(t *testing.T) {
	_, post, data := smallFit(t)
	store := New(filepath.Join(t.TempDir(), "empty"))
	if _, err := store.LoadFit(post, data); err == nil {
		t.Error("expected error for missing fit artifacts")
	}
}
