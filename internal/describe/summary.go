// Package describe computes the descriptive summaries: condition means,
// per-language politeness differences, and the proportion of speakers who
// lowered F0 in the polite condition.
package describe

import (
	"math"
	"sort"

	"github.com/prosodylab/politef0/internal/dataset"
)

const (
	CondPolite   = "pol"
	CondInformal = "inform"
)

type ConditionMean struct {
	Condition string
	Mean      float64
	N         int
}

type LanguageSummary struct {
	Lang         string
	PoliteMean   float64
	InformalMean float64
	Diff         float64 // polite minus informal
}

type LoweredRow struct {
	Lang       string
	Lowered    int
	Total      int
	Proportion float64 // rounded to 2 decimals
}

// nanMean averages the present values only; missing measurements are absent,
// not zero. Returns NaN when no value is present.
func nanMean(xs []float64) (float64, int) {
	sum, n := 0.0, 0
	for _, x := range xs {
		if math.IsNaN(x) {
			continue
		}
		sum += x
		n++
	}
	if n == 0 {
		return math.NaN(), 0
	}
	return sum / float64(n), n
}

// ConditionMeans returns the global mean F0 per politeness condition.
func ConditionMeans(t *dataset.Table) []ConditionMean {
	byCond := map[string][]float64{}
	for i := 0; i < t.Len(); i++ {
		byCond[t.Inform[i]] = append(byCond[t.Inform[i]], t.F0[i])
	}
	conds := make([]string, 0, len(byCond))
	for c := range byCond {
		conds = append(conds, c)
	}
	sort.Strings(conds)

	out := make([]ConditionMean, 0, len(conds))
	for _, c := range conds {
		m, n := nanMean(byCond[c])
		out = append(out, ConditionMean{Condition: c, Mean: m, N: n})
	}
	return out
}

// LanguageMeans returns per-language condition means and the polite-minus-
// informal difference, ordered by language label.
func LanguageMeans(t *dataset.Table) []LanguageSummary {
	type cell struct{ pol, inf []float64 }
	byLang := map[string]*cell{}
	for i := 0; i < t.Len(); i++ {
		c, ok := byLang[t.Lang[i]]
		if !ok {
			c = &cell{}
			byLang[t.Lang[i]] = c
		}
		switch t.Inform[i] {
		case CondPolite:
			c.pol = append(c.pol, t.F0[i])
		case CondInformal:
			c.inf = append(c.inf, t.F0[i])
		}
	}

	out := make([]LanguageSummary, 0, len(byLang))
	for _, lang := range t.Languages() {
		c := byLang[lang]
		if c == nil {
			continue
		}
		pm, _ := nanMean(c.pol)
		im, _ := nanMean(c.inf)
		out = append(out, LanguageSummary{Lang: lang, PoliteMean: pm, InformalMean: im, Diff: pm - im})
	}
	return out
}

// SpeakerDiffs returns each speaker's mean polite-minus-informal difference,
// keyed by language. Speakers are unique within a language.
func SpeakerDiffs(t *dataset.Table) map[string]map[string]float64 {
	type cell struct{ pol, inf []float64 }
	bySpk := map[string]map[string]*cell{}
	for i := 0; i < t.Len(); i++ {
		lang, spk := t.Lang[i], t.Speaker[i]
		if bySpk[lang] == nil {
			bySpk[lang] = map[string]*cell{}
		}
		c, ok := bySpk[lang][spk]
		if !ok {
			c = &cell{}
			bySpk[lang][spk] = c
		}
		switch t.Inform[i] {
		case CondPolite:
			c.pol = append(c.pol, t.F0[i])
		case CondInformal:
			c.inf = append(c.inf, t.F0[i])
		}
	}

	out := map[string]map[string]float64{}
	for lang, spks := range bySpk {
		out[lang] = map[string]float64{}
		for spk, c := range spks {
			pm, _ := nanMean(c.pol)
			im, _ := nanMean(c.inf)
			out[lang][spk] = pm - im
		}
	}
	return out
}

// ProportionLowered aggregates speaker differences into a per-language count
// and proportion of speakers whose F0 went down under politeness. A tie
// (difference exactly zero) does not count as lowered.
func ProportionLowered(t *dataset.Table) []LoweredRow {
	diffs := SpeakerDiffs(t)

	langs := make([]string, 0, len(diffs))
	for lang := range diffs {
		langs = append(langs, lang)
	}
	sort.Strings(langs)

	out := make([]LoweredRow, 0, len(langs))
	for _, lang := range langs {
		lowered, total := 0, 0
		for _, d := range diffs[lang] {
			if math.IsNaN(d) {
				continue
			}
			total++
			if d < 0 {
				lowered++
			}
		}
		prop := 0.0
		if total > 0 {
			prop = math.Round(float64(lowered)/float64(total)*100) / 100
		}
		out = append(out, LoweredRow{Lang: lang, Lowered: lowered, Total: total, Proportion: prop})
	}
	return out
}
