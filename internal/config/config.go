package config

import (
	"fmt"
	"os"
	"runtime"

	"gopkg.in/yaml.v3"

	"github.com/prosodylab/politef0/internal/normalize"
)

const (
	DefaultDataPath     = "data/f0_all.tsv"
	DefaultOutDir       = "results"
	DefaultExcludeItems = "note"
	DefaultSlopeSD      = 50.0
	DefaultInterceptSD  = 300.0
	DefaultGroupSD      = 50.0
	DefaultSigmaSD      = 100.0
	DefaultChains       = 4
	DefaultWarmup       = 1000
	DefaultDraws        = 1000
	DefaultSeed         = 42
	DefaultTargetAccept = 0.95
	DefaultMaxLeapfrog  = 256
)

type Config struct {
	Data         string                `yaml:"data"`
	Out          string                `yaml:"out"`
	ExcludeItems string                `yaml:"exclude_items"`
	Languages    map[string]RuleConfig `yaml:"languages"`
	Priors       PriorConfig           `yaml:"priors"`
	Sampler      SamplerConfig         `yaml:"sampler"`
}

type RuleConfig struct {
	Rule    string `yaml:"rule"`
	Segment int    `yaml:"segment"`
}

type PriorConfig struct {
	SlopeSD     float64 `yaml:"slope_sd"`
	InterceptSD float64 `yaml:"intercept_sd"`
	GroupSD     float64 `yaml:"group_sd"`
	SigmaSD     float64 `yaml:"sigma_sd"`
}

type SamplerConfig struct {
	Chains       int     `yaml:"chains"`
	Warmup       int     `yaml:"warmup"`
	Draws        int     `yaml:"draws"`
	Seed         int64   `yaml:"seed"`
	TargetAccept float64 `yaml:"target_accept"`
	MaxLeapfrog  int     `yaml:"max_leapfrog"`
	Cores        int     `yaml:"cores"`
}

func DefaultConfig() *Config {
	return &Config{
		Data:         DefaultDataPath,
		Out:          DefaultOutDir,
		ExcludeItems: DefaultExcludeItems,
		Languages: map[string]RuleConfig{
			"kor": {Rule: "strip_suffix"},
			"rus": {Rule: "extract_segment", Segment: 1},
			"jpn": {Rule: "extract_segment", Segment: 2},
			"deu": {Rule: "identity"},
			"cmn": {Rule: "identity"},
		},
		Priors: PriorConfig{
			SlopeSD:     DefaultSlopeSD,
			InterceptSD: DefaultInterceptSD,
			GroupSD:     DefaultGroupSD,
			SigmaSD:     DefaultSigmaSD,
		},
		Sampler: SamplerConfig{
			Chains:       DefaultChains,
			Warmup:       DefaultWarmup,
			Draws:        DefaultDraws,
			Seed:         DefaultSeed,
			TargetAccept: DefaultTargetAccept,
			MaxLeapfrog:  DefaultMaxLeapfrog,
		},
	}
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func (c *Config) Validate() error {
	if c.Sampler.Chains < 1 {
		return fmt.Errorf("sampler.chains must be at least 1, got %d", c.Sampler.Chains)
	}
	if c.Sampler.Warmup < 0 || c.Sampler.Draws < 1 {
		return fmt.Errorf("sampler needs non-negative warmup and at least 1 draw")
	}
	if c.Sampler.TargetAccept <= 0 || c.Sampler.TargetAccept >= 1 {
		return fmt.Errorf("sampler.target_accept must be in (0,1), got %f", c.Sampler.TargetAccept)
	}
	if c.Sampler.MaxLeapfrog < 1 {
		return fmt.Errorf("sampler.max_leapfrog must be positive, got %d", c.Sampler.MaxLeapfrog)
	}
	if _, err := c.RuleSet(); err != nil {
		return err
	}
	return nil
}

// RuleSet translates the per-language rule table into normalization rules.
func (c *Config) RuleSet() (normalize.RuleSet, error) {
	rs := make(normalize.RuleSet, len(c.Languages))
	for lang, rc := range c.Languages {
		switch rc.Rule {
		case "identity", "":
			rs[lang] = normalize.Rule{Kind: normalize.Identity}
		case "strip_suffix":
			rs[lang] = normalize.Rule{Kind: normalize.StripSuffix}
		case "extract_segment":
			if rc.Segment < 0 {
				return nil, fmt.Errorf("language %s: segment index must be non-negative, got %d", lang, rc.Segment)
			}
			rs[lang] = normalize.Rule{Kind: normalize.ExtractSegment, Segment: rc.Segment}
		default:
			return nil, fmt.Errorf("language %s: unknown rule %q", lang, rc.Rule)
		}
	}
	return rs, nil
}

// EffectiveCores resolves the configured core count, defaulting to all
// available cores when unset. Parallelism is passed down explicitly rather
// than set through process-wide state.
func (c *Config) EffectiveCores() int {
	if c.Sampler.Cores > 0 {
		return c.Sampler.Cores
	}
	return runtime.NumCPU()
}
