package main

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"regexp"
	"text/tabwriter"
	"time"

	"github.com/guptarohit/asciigraph"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/prosodylab/politef0/internal/config"
	"github.com/prosodylab/politef0/internal/dataset"
	"github.com/prosodylab/politef0/internal/describe"
	"github.com/prosodylab/politef0/internal/mcmc"
	"github.com/prosodylab/politef0/internal/model"
	"github.com/prosodylab/politef0/internal/posterior"
	"github.com/prosodylab/politef0/internal/report"
	"github.com/prosodylab/politef0/internal/tui"
	"github.com/prosodylab/politef0/internal/viz"
)

const rhatLimit = 1.01

var log = logrus.New()

var (
	configFile string
	dataFile   string
	outDir     string
	live       bool
	ppcReps    = 50
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "politef0",
		Short: "cross-linguistic politeness F0 analysis",
		RunE:  runPipeline,
	}
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path (yaml)")
	rootCmd.PersistentFlags().StringVar(&dataFile, "data", "", "override input data path")
	rootCmd.PersistentFlags().StringVar(&outDir, "out", "", "override output directory")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "full pipeline: load, normalize, summarize, fit, report",
		RunE:  runPipeline,
	}
	runCmd.Flags().BoolVar(&live, "live", false, "live chain monitor during sampling")
	runCmd.Flags().IntVar(&ppcReps, "ppc-reps", 50, "simulated datasets in the predictive check")

	checkCmd := &cobra.Command{
		Use:   "check",
		Short: "load and normalize only; report rule coverage",
		RunE:  runCheck,
	}

	summarizeCmd := &cobra.Command{
		Use:   "summarize",
		Short: "descriptive summary tables",
		RunE:  runSummarize,
	}

	fitCmd := &cobra.Command{
		Use:   "fit",
		Short: "fit the hierarchical model and persist draws",
		RunE:  runFit,
	}
	fitCmd.Flags().BoolVar(&live, "live", false, "live chain monitor during sampling")

	reportCmd := &cobra.Command{
		Use:   "report",
		Short: "posterior analysis and figures from a persisted fit",
		RunE:  runReport,
	}
	reportCmd.Flags().IntVar(&ppcReps, "ppc-reps", 50, "simulated datasets in the predictive check")

	rootCmd.AddCommand(runCmd, checkCmd, summarizeCmd, fitCmd, reportCmd)

	if err := rootCmd.Execute(); err != nil {
		log.Error(err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	cfg := config.DefaultConfig()
	if configFile != "" {
		var err error
		cfg, err = config.Load(configFile)
		if err != nil {
			return nil, err
		}
	}
	if dataFile != "" {
		cfg.Data = dataFile
	}
	if outDir != "" {
		cfg.Out = outDir
	}
	return cfg, nil
}

// loadNormalized runs the front of the pipeline: read, drop the filler task,
// normalize labels. Coverage gaps and label problems are warnings, not
// aborts; an uncovered language falling silently through identity is the
// failure mode this logging exists to prevent.
func loadNormalized(cfg *config.Config) (*dataset.Table, error) {
	tbl, err := dataset.Load(cfg.Data)
	if err != nil {
		return nil, err
	}

	if cfg.ExcludeItems != "" {
		re, err := regexp.Compile(cfg.ExcludeItems)
		if err != nil {
			return nil, fmt.Errorf("bad exclude_items pattern: %w", err)
		}
		before := tbl.Len()
		tbl = tbl.ExcludeItems(re)
		log.WithFields(logrus.Fields{"excluded": before - tbl.Len(), "kept": tbl.Len()}).Info("filtered filler items")
	}

	rules, err := cfg.RuleSet()
	if err != nil {
		return nil, err
	}
	if missing := rules.Missing(tbl.Languages()); len(missing) > 0 {
		log.WithField("languages", missing).Warn("no normalization rule configured; falling back to identity")
	}

	norm, issues := rules.Apply(tbl)
	for _, issue := range issues {
		if issue.Reason == "no rule for language" {
			continue // already warned per language above
		}
		log.WithFields(logrus.Fields{"lang": issue.Lang, "item": issue.Item, "row": issue.Row}).Warn(issue.Reason)
	}
	return norm, nil
}

func runCheck(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	norm, err := loadNormalized(cfg)
	if err != nil {
		return err
	}

	counts := map[string]int{}
	items := map[string]map[string]bool{}
	for i := 0; i < norm.Len(); i++ {
		counts[norm.Lang[i]]++
		if items[norm.Lang[i]] == nil {
			items[norm.Lang[i]] = map[string]bool{}
		}
		items[norm.Lang[i]][norm.UniqueItem[i]] = true
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "language\trows\titems")
	for _, lang := range norm.Languages() {
		fmt.Fprintf(w, "%s\t%d\t%d\n", lang, counts[lang], len(items[lang]))
	}
	return w.Flush()
}

func runSummarize(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	norm, err := loadNormalized(cfg)
	if err != nil {
		return err
	}
	return summarize(cfg, norm)
}

func summarize(cfg *config.Config, norm *dataset.Table) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)

	fmt.Fprintln(w, "condition\tmean F0\tn")
	for _, cm := range describe.ConditionMeans(norm) {
		fmt.Fprintf(w, "%s\t%.2f\t%d\n", cm.Condition, cm.Mean, cm.N)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "language\tpolite\tinformal\tdiff")
	for _, ls := range describe.LanguageMeans(norm) {
		fmt.Fprintf(w, "%s\t%.2f\t%.2f\t%+.2f\n", ls.Lang, ls.PoliteMean, ls.InformalMean, ls.Diff)
	}
	fmt.Fprintln(w)

	lowered := describe.ProportionLowered(norm)
	fmt.Fprintln(w, "language\tlowered\tspeakers\tproportion")
	for _, r := range lowered {
		fmt.Fprintf(w, "%s\t%d\t%d\t%.2f\n", r.Lang, r.Lowered, r.Total, r.Proportion)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	store := report.New(cfg.Out)
	if err := store.Init(); err != nil {
		return err
	}
	return store.WriteProportionLowered(lowered)
}

func runFit(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	norm, err := loadNormalized(cfg)
	if err != nil {
		return err
	}
	_, err = fitModel(cfg, norm)
	return err
}

func fitModel(cfg *config.Config, norm *dataset.Table) (*model.Fit, error) {
	data, err := model.BuildData(norm)
	if err != nil {
		return nil, err
	}
	post := model.NewPosterior(data, model.Priors{
		SlopeSD:     cfg.Priors.SlopeSD,
		InterceptSD: cfg.Priors.InterceptSD,
		GroupSD:     cfg.Priors.GroupSD,
		SigmaSD:     cfg.Priors.SigmaSD,
	})

	mcfg := mcmc.Config{
		Chains:       cfg.Sampler.Chains,
		Warmup:       cfg.Sampler.Warmup,
		Draws:        cfg.Sampler.Draws,
		Seed:         cfg.Sampler.Seed,
		TargetAccept: cfg.Sampler.TargetAccept,
		MaxLeapfrog:  cfg.Sampler.MaxLeapfrog,
		Cores:        cfg.EffectiveCores(),
		TraceIndex:   1, // politeness coefficient
	}
	init := func(rng *rand.Rand) []float64 { return post.Init(rng.NormFloat64) }

	log.WithFields(logrus.Fields{
		"observations": data.N(),
		"speakers":     data.NSpk(),
		"languages":    data.NLang(),
		"items":        data.NItem(),
		"chains":       mcfg.Chains,
		"cores":        mcfg.Cores,
		"seed":         mcfg.Seed,
	}).Info("sampling")

	var res *mcmc.Result
	if live {
		err = tui.RunLive(mcfg.Chains, func(ctx context.Context, onProgress func(mcmc.Progress)) error {
			c := mcfg
			c.OnProgress = onProgress
			var sampleErr error
			res, sampleErr = mcmc.Run(ctx, post, c, init)
			return sampleErr
		})
	} else {
		res, err = mcmc.Run(context.Background(), post, mcfg, init)
	}
	if err != nil {
		return nil, err
	}
	if res == nil {
		return nil, fmt.Errorf("sampling aborted before any draws were collected")
	}

	fit := model.NewFit(post, data, res, cfg.Sampler.Seed)
	converged, summaries, err := fit.Converged(rhatLimit)
	if err != nil {
		return nil, err
	}
	if !converged {
		log.WithFields(logrus.Fields{
			"divergences": fit.Divergences,
			"rhat_limit":  rhatLimit,
		}).Warn("fit did not converge; estimates are not trustworthy")
	}

	printSummary(summaries, fit)

	store := report.New(cfg.Out)
	if err := store.Init(); err != nil {
		return nil, err
	}
	meta := report.FitMetadata{
		Timestamp:    time.Now(),
		Seed:         cfg.Sampler.Seed,
		Chains:       cfg.Sampler.Chains,
		Warmup:       cfg.Sampler.Warmup,
		Draws:        cfg.Sampler.Draws,
		TargetAccept: cfg.Sampler.TargetAccept,
		MaxLeapfrog:  cfg.Sampler.MaxLeapfrog,
		AcceptRate:   fit.AcceptRate,
		Divergences:  fit.Divergences,
		Converged:    converged,
		Summary:      summaries,
	}
	if err := store.SaveFit(fit, meta); err != nil {
		return nil, err
	}
	return fit, nil
}

func printSummary(summaries []model.ParamSummary, fit *model.Fit) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "parameter\tmean\tsd\t2.5%\t97.5%\trhat\tess")
	for _, s := range summaries {
		fmt.Fprintf(w, "%s\t%.2f\t%.2f\t%.2f\t%.2f\t%.3f\t%.0f\n",
			s.Name, s.Mean, s.SD, s.Q025, s.Q975, s.RHat, s.ESS)
	}
	w.Flush()

	if draws, err := fit.Draws("b_politeness"); err == nil {
		_, dens := posterior.KDE(draws, 70)
		fmt.Println()
		fmt.Println(asciigraph.Plot(dens,
			asciigraph.Height(10),
			asciigraph.Width(70),
			asciigraph.Caption("posterior density: b_politeness")))
	}
}

func runReport(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	norm, err := loadNormalized(cfg)
	if err != nil {
		return err
	}

	data, err := model.BuildData(norm)
	if err != nil {
		return err
	}
	post := model.NewPosterior(data, model.Priors{
		SlopeSD:     cfg.Priors.SlopeSD,
		InterceptSD: cfg.Priors.InterceptSD,
		GroupSD:     cfg.Priors.GroupSD,
		SigmaSD:     cfg.Priors.SigmaSD,
	})
	store := report.New(cfg.Out)
	fit, err := store.LoadFit(post, data)
	if err != nil {
		return err
	}
	return analyze(cfg, norm, fit)
}

func analyze(cfg *config.Config, norm *dataset.Table, fit *model.Fit) error {
	bPol, err := fit.Draws("b_politeness")
	if err != nil {
		return err
	}
	sdSpk, err := fit.Draws("sd_speaker_politeness")
	if err != nil {
		return err
	}
	sdLang, err := fit.Draws("sd_language_politeness")
	if err != nil {
		return err
	}
	pSpkGtLang, err := posterior.ProbGreater(sdSpk, sdLang)
	if err != nil {
		return err
	}

	fmt.Printf("P(politeness effect >= 0) = %.3f  (1 - fraction of draws below zero)\n",
		posterior.ProbAtLeastZero(bPol))
	fmt.Printf("P(speaker slope SD > language slope SD) = %.3f\n\n", pSpkGtLang)

	effects, err := posterior.LanguageEffects(fit)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "language\teffect\t2.5%\t97.5%")
	for _, e := range effects {
		fmt.Fprintf(w, "%s\t%+.2f\t%+.2f\t%+.2f\n", e.Lang, e.Mean, e.Lo, e.Hi)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	rawDiffs := map[string]float64{}
	for _, ls := range describe.LanguageMeans(norm) {
		rawDiffs[ls.Lang] = ls.Diff
	}

	store := report.New(cfg.Out)
	if err := store.Init(); err != nil {
		return err
	}
	if err := viz.ForestPlot(effects, rawDiffs, store.Path("language_effects.svg")); err != nil {
		return err
	}

	rng := rand.New(rand.NewSource(cfg.Sampler.Seed))
	reps := fit.SimulateReplicates(ppcReps, rng)
	if err := viz.PPCPlot(fit.Data.Y, reps, store.Path("ppc.png"), store.Path("ppc.svg")); err != nil {
		return err
	}

	log.WithField("dir", cfg.Out).Info("artifacts written")
	for _, name := range []string{report.ProportionFile, "language_effects.svg", "ppc.png", "ppc.svg"} {
		fmt.Println("  " + filepath.Join(cfg.Out, name))
	}
	return nil
}

func runPipeline(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	norm, err := loadNormalized(cfg)
	if err != nil {
		return err
	}
	if err := summarize(cfg, norm); err != nil {
		return err
	}
	fit, err := fitModel(cfg, norm)
	if err != nil {
		return err
	}
	return analyze(cfg, norm, fit)
}
