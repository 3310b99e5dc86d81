// Package normalize unifies the per-dataset item labeling schemes so that
// the polite and informal recording of the same elicitation item share one
// identifier, and items from different languages never collide.
package normalize

import (
	"fmt"
	"sort"
	"strings"

	"github.com/prosodylab/politef0/internal/dataset"
)

type Kind int

const (
	// Identity passes the raw item label through unchanged.
	Identity Kind = iota
	// StripSuffix removes a single trailing letter that marks a sub-variant
	// of the same item (12a/12b -> 12).
	StripSuffix
	// ExtractSegment takes one underscore-delimited segment of a composite
	// label; which segment holds the item number differs per dataset and is
	// configured, not inferred.
	ExtractSegment
)

type Rule struct {
	Kind    Kind
	Segment int
}

// RuleSet maps an exact language label to its normalization rule. Dispatch is
// exact-match, so rules are mutually exclusive by construction.
type RuleSet map[string]Rule

// Issue records a row whose label could not be normalized as configured.
// The row keeps its raw label; the caller decides how loudly to complain.
type Issue struct {
	Row    int
	Lang   string
	Item   string
	Reason string
}

// Missing returns the sorted languages present in the data that have no
// configured rule. An uncovered language silently matching no rule was the
// historical failure mode; surfacing the gap is the point of this check.
func (rs RuleSet) Missing(langs []string) []string {
	var missing []string
	for _, l := range langs {
		if _, ok := rs[l]; !ok {
			missing = append(missing, l)
		}
	}
	sort.Strings(missing)
	return missing
}

// Apply returns a new table with ItemFixed and UniqueItem populated for every
// row. Languages without a rule fall back to identity; segment indices out of
// range leave the raw label in place. Both cases are reported as issues.
func (rs RuleSet) Apply(t *dataset.Table) (*dataset.Table, []Issue) {
	out := t.Clone()
	out.ItemFixed = make([]string, t.Len())
	out.UniqueItem = make([]string, t.Len())

	var issues []Issue
	for i := 0; i < t.Len(); i++ {
		rule, ok := rs[t.Lang[i]]
		if !ok {
			issues = append(issues, Issue{Row: i, Lang: t.Lang[i], Item: t.Item[i], Reason: "no rule for language"})
			rule = Rule{Kind: Identity}
		}
		fixed, err := rule.apply(t.Item[i])
		if err != nil {
			issues = append(issues, Issue{Row: i, Lang: t.Lang[i], Item: t.Item[i], Reason: err.Error()})
			fixed = t.Item[i]
		}
		out.ItemFixed[i] = fixed
		out.UniqueItem[i] = t.Lang[i] + "_" + fixed
	}
	return out, issues
}

func (r Rule) apply(item string) (string, error) {
	switch r.Kind {
	case Identity:
		return item, nil
	case StripSuffix:
		if len(item) > 0 {
			last := item[len(item)-1]
			if (last >= 'a' && last <= 'z') || (last >= 'A' && last <= 'Z') {
				return item[:len(item)-1], nil
			}
		}
		return item, nil
	case ExtractSegment:
		parts := strings.Split(item, "_")
		if r.Segment >= len(parts) {
			return "", fmt.Errorf("segment %d out of range for label %q", r.Segment, item)
		}
		return parts[r.Segment], nil
	default:
		return "", fmt.Errorf("unknown rule kind %d", r.Kind)
	}
}
