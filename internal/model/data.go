package model

import (
	"fmt"
	"math"
	"sort"

	"github.com/prosodylab/politef0/internal/dataset"
	"github.com/prosodylab/politef0/internal/describe"
)

// Data is the model-ready view of the normalized table: the response with
// missing values dropped, treatment-coded predictors, and integer indices
// for the three grouping factors.
type Data struct {
	Y    []float64
	Pol  []float64 // 1 = polite, 0 = informal
	Gend []float64 // 1 = second gender level (sorted), 0 = first

	Spk  []int
	Lang []int
	Item []int

	SpkNames  []string // "lang/speaker", unique across the dataset
	LangNames []string
	ItemNames []string // unique_item keys

	GendLevels [2]string
}

// BuildData indexes the normalized table for fitting. Rows with a missing
// response are dropped here; the descriptive summaries keep them.
func BuildData(t *dataset.Table) (*Data, error) {
	if len(t.UniqueItem) != t.Len() {
		return nil, fmt.Errorf("table has not been normalized")
	}

	gendSet := map[string]bool{}
	spkSet := map[string]bool{}
	langSet := map[string]bool{}
	itemSet := map[string]bool{}
	for i := 0; i < t.Len(); i++ {
		if math.IsNaN(t.F0[i]) {
			continue
		}
		gendSet[t.Gend[i]] = true
		spkSet[t.Lang[i]+"/"+t.Speaker[i]] = true
		langSet[t.Lang[i]] = true
		itemSet[t.UniqueItem[i]] = true
	}
	if len(gendSet) > 2 {
		return nil, fmt.Errorf("expected at most 2 gender levels, got %d", len(gendSet))
	}

	d := &Data{
		SpkNames:  sortedKeys(spkSet),
		LangNames: sortedKeys(langSet),
		ItemNames: sortedKeys(itemSet),
	}
	gendLevels := sortedKeys(gendSet)
	for i, g := range gendLevels {
		d.GendLevels[i] = g
	}

	spkIdx := indexOf(d.SpkNames)
	langIdx := indexOf(d.LangNames)
	itemIdx := indexOf(d.ItemNames)

	for i := 0; i < t.Len(); i++ {
		if math.IsNaN(t.F0[i]) {
			continue
		}
		var pol float64
		switch t.Inform[i] {
		case describe.CondPolite:
			pol = 1
		case describe.CondInformal:
			pol = 0
		default:
			return nil, fmt.Errorf("row %d: unknown politeness condition %q", i, t.Inform[i])
		}
		var gend float64
		if t.Gend[i] == d.GendLevels[1] {
			gend = 1
		}

		d.Y = append(d.Y, t.F0[i])
		d.Pol = append(d.Pol, pol)
		d.Gend = append(d.Gend, gend)
		d.Spk = append(d.Spk, spkIdx[t.Lang[i]+"/"+t.Speaker[i]])
		d.Lang = append(d.Lang, langIdx[t.Lang[i]])
		d.Item = append(d.Item, itemIdx[t.UniqueItem[i]])
	}
	if len(d.Y) == 0 {
		return nil, fmt.Errorf("no usable observations after dropping missing responses")
	}
	return d, nil
}

func (d *Data) N() int     { return len(d.Y) }
func (d *Data) NSpk() int  { return len(d.SpkNames) }
func (d *Data) NLang() int { return len(d.LangNames) }
func (d *Data) NItem() int { return len(d.ItemNames) }

func sortedKeys(set map[string]bool) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func indexOf(names []string) map[string]int {
	idx := make(map[string]int, len(names))
	for i, n := range names {
		idx[n] = i
	}
	return idx
}
