package normalize

import (
	"testing"

	"github.com/prosodylab/politef0/internal/dataset"
)

func TestStripSuffix(t *testing.T) {
	tests := []struct {
		item     string
		expected string
	}{
		{"12a", "12"},
		{"12b", "12"},
		{"7A", "7"},
		{"12", "12"},
		{"", ""},
	}
	r := Rule{Kind: StripSuffix}
	for _, tt := range tests {
		got, err := r.apply(tt.item)
		if err != nil {
			t.Fatalf("strip %q: %v", tt.item, err)
		}
		if got != tt.expected {
			t.Errorf("strip %q: expected %q, got %q", tt.item, tt.expected, got)
		}
	}
}

func TestStripSuffixPairsCollide(t *testing.T) {
	r := Rule{Kind: StripSuffix}
	a, _ := r.apply("12a")
	b, _ := r.apply("12b")
	if a != b {
		t.Errorf("variant pair should collide: %q vs %q", a, b)
	}
	other, _ := r.apply("13a")
	if a == other {
		t.Errorf("unrelated items should not collide: %q", a)
	}
}

func TestExtractSegment(t *testing.T) {
	tests := []struct {
		item     string
		segment  int
		expected string
	}{
		{"t3_12_pol", 1, "12"},
		{"t9_12_inf", 1, "12"}, // invariant to other segments
		{"spk_a_7", 2, "7"},
		{"solo", 0, "solo"},
	}
	for _, tt := range tests {
		r := Rule{Kind: ExtractSegment, Segment: tt.segment}
		got, err := r.apply(tt.item)
		if err != nil {
			t.Fatalf("extract %q: %v", tt.item, err)
		}
		if got != tt.expected {
			t.Errorf("extract %q seg %d: expected %q, got %q", tt.item, tt.segment, tt.expected, got)
		}
	}
}

func TestExtractSegmentOutOfRange(t *testing.T) {
	r := Rule{Kind: ExtractSegment, Segment: 5}
	if _, err := r.apply("a_b"); err == nil {
		t.Error("expected error for out-of-range segment")
	}
}

func TestIdentity(t *testing.T) {
	r := Rule{Kind: Identity}
	got, err := r.apply("anything_12a")
	if err != nil {
		t.Fatal(err)
	}
	if got != "anything_12a" {
		t.Errorf("identity changed the label: %q", got)
	}
}

func testTable() *dataset.Table {
	return &dataset.Table{
		Speaker: []string{"s1", "s1", "s2", "s2", "s3", "s3"},
		Lang:    []string{"kor", "kor", "rus", "rus", "deu", "deu"},
		Gend:    []string{"F", "F", "M", "M", "F", "F"},
		Item:    []string{"12a", "12b", "t3_12_pol", "t3_12_inf", "12", "12"},
		Inform:  []string{"pol", "inform", "pol", "inform", "pol", "inform"},
		F0:      []float64{210, 230, 120, 140, 200, 215},
	}
}

func TestApplyUniqueItem(t *testing.T) {
	rs := RuleSet{
		"kor": {Kind: StripSuffix},
		"rus": {Kind: ExtractSegment, Segment: 1},
		"deu": {Kind: Identity},
	}
	out, issues := rs.Apply(testTable())
	if len(issues) != 0 {
		t.Fatalf("unexpected issues: %v", issues)
	}

	for i := 0; i < out.Len(); i++ {
		want := out.Lang[i] + "_" + out.ItemFixed[i]
		if out.UniqueItem[i] != want {
			t.Errorf("row %d: unique_item %q, expected %q", i, out.UniqueItem[i], want)
		}
	}

	// Matched polite/informal pairs share one key.
	if out.UniqueItem[0] != out.UniqueItem[1] {
		t.Errorf("kor pair split: %q vs %q", out.UniqueItem[0], out.UniqueItem[1])
	}
	if out.UniqueItem[2] != out.UniqueItem[3] {
		t.Errorf("rus pair split: %q vs %q", out.UniqueItem[2], out.UniqueItem[3])
	}

	// Same local number in different languages must not collide.
	if out.UniqueItem[0] == out.UniqueItem[2] || out.UniqueItem[0] == out.UniqueItem[4] {
		t.Errorf("cross-language collision on %q", out.UniqueItem[0])
	}
}

func TestApplyLeavesInputUntouched(t *testing.T) {
	tbl := testTable()
	rs := RuleSet{"kor": {Kind: StripSuffix}, "rus": {Kind: ExtractSegment, Segment: 1}, "deu": {Kind: Identity}}
	rs.Apply(tbl)
	if tbl.ItemFixed != nil {
		t.Error("Apply mutated its input")
	}
	if tbl.Item[0] != "12a" {
		t.Errorf("raw item changed: %q", tbl.Item[0])
	}
}

func TestMissingLanguages(t *testing.T) {
	rs := RuleSet{"kor": {Kind: StripSuffix}}
	missing := rs.Missing([]string{"deu", "kor", "rus"})
	if len(missing) != 2 || missing[0] != "deu" || missing[1] != "rus" {
		t.Errorf("expected [deu rus], got %v", missing)
	}
	if got := rs.Missing([]string{"kor"}); len(got) != 0 {
		t.Errorf("expected full coverage, got %v", got)
	}
}

func TestApplyUncoveredLanguageFallsBackWithIssue(t *testing.T) {
	tbl := testTable()
	rs := RuleSet{"kor": {Kind: StripSuffix}, "rus": {Kind: ExtractSegment, Segment: 1}}
	out, issues := rs.Apply(tbl)

	found := 0
	for _, issue := range issues {
		if issue.Lang == "deu" && issue.Reason == "no rule for language" {
			found++
		}
	}
	if found != 2 {
		t.Errorf("expected 2 coverage issues for deu, got %d (%v)", found, issues)
	}
	// Identity fallback still populates the key.
	if out.UniqueItem[4] != "deu_12" {
		t.Errorf("fallback key: %q", out.UniqueItem[4])
	}
}

func TestApplyOutOfRangeSegmentKeepsRawLabel(t *testing.T) {
	tbl := testTable()
	rs := RuleSet{"kor": {Kind: StripSuffix}, "rus": {Kind: ExtractSegment, Segment: 9}, "deu": {Kind: Identity}}
	out, issues := rs.Apply(tbl)
	if len(issues) != 2 {
		t.Fatalf("expected 2 issues, got %d", len(issues))
	}
	if out.ItemFixed[2] != "t3_12_pol" {
		t.Errorf("expected raw label kept, got %q", out.ItemFixed[2])
	}
}
