package dataset

import (
	"math"
	"os"
	"path/filepath"
	"regexp"
	"testing"
)

func writeTSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "f0.tsv")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

const sample = "speaker\tlang\tgend\titem\tinform\tf0md\textra\n" +
	"s1\tkor\tF\t12a\tpol\t210.5\tx\n" +
	"s1\tkor\tF\t12b\tinform\t230.1\tx\n" +
	"s2\tdeu\tM\tnote1\tpol\tNA\tx\n" +
	"s2\tdeu\tM\t7\tinform\t\tx\n"

func TestLoad(t *testing.T) {
	tbl, err := Load(writeTSV(t, sample))
	if err != nil {
		t.Fatal(err)
	}
	if tbl.Len() != 4 {
		t.Fatalf("expected 4 rows, got %d", tbl.Len())
	}
	if tbl.Speaker[0] != "s1" || tbl.Lang[0] != "kor" || tbl.Item[0] != "12a" {
		t.Errorf("row 0 mismatch: %v %v %v", tbl.Speaker[0], tbl.Lang[0], tbl.Item[0])
	}
	if tbl.F0[0] != 210.5 {
		t.Errorf("expected 210.5, got %f", tbl.F0[0])
	}
	if !math.IsNaN(tbl.F0[2]) || !math.IsNaN(tbl.F0[3]) {
		t.Error("NA and empty f0md cells must parse to NaN, not zero")
	}
}

func TestLoadMissingColumn(t *testing.T) {
	content := "speaker\tlang\tgend\titem\tinform\n" + "s1\tkor\tF\t12a\tpol\n"
	if _, err := Load(writeTSV(t, content)); err == nil {
		t.Fatal("expected schema error for missing f0md column")
	}
}

func TestLoadBadNumeric(t *testing.T) {
	content := "speaker\tlang\tgend\titem\tinform\tf0md\n" + "s1\tkor\tF\t12a\tpol\toops\n"
	if _, err := Load(writeTSV(t, content)); err == nil {
		t.Fatal("expected parse error for bad f0md value")
	}
}

func TestExcludeItems(t *testing.T) {
	tbl, err := Load(writeTSV(t, sample))
	if err != nil {
		t.Fatal(err)
	}
	re := regexp.MustCompile("note")
	out := tbl.ExcludeItems(re)
	if out.Len() != 3 {
		t.Fatalf("expected 3 rows after exclusion, got %d", out.Len())
	}
	for i := 0; i < out.Len(); i++ {
		if re.MatchString(out.Item[i]) {
			t.Errorf("excluded item survived: %q", out.Item[i])
		}
	}
	if tbl.Len() != 4 {
		t.Error("ExcludeItems mutated its input")
	}
}

func TestFilterIsPure(t *testing.T) {
	tbl, err := Load(writeTSV(t, sample))
	if err != nil {
		t.Fatal(err)
	}
	out := tbl.Filter(func(i int) bool { return tbl.Lang[i] == "kor" })
	if out.Len() != 2 {
		t.Fatalf("expected 2 kor rows, got %d", out.Len())
	}
	out.Speaker[0] = "changed"
	if tbl.Speaker[0] == "changed" {
		t.Error("filtered table aliases the original")
	}
}

func TestLanguages(t *testing.T) {
	tbl, err := Load(writeTSV(t, sample))
	if err != nil {
		t.Fatal(err)
	}
	langs := tbl.Languages()
	if len(langs) != 2 || langs[0] != "deu" || langs[1] != "kor" {
		t.Errorf("expected [deu kor], got %v", langs)
	}
}
