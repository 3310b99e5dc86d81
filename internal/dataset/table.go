package dataset

import (
	"bufio"
	"fmt"
	"math"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Table is a column-oriented view of the observation records. One index
// position across all slices is one recorded utterance.
type Table struct {
	Speaker []string
	Lang    []string
	Gend    []string
	Item    []string
	Inform  []string
	F0      []float64

	// Populated by normalization.
	ItemFixed  []string
	UniqueItem []string
}

var requiredColumns = []string{"speaker", "lang", "gend", "item", "inform", "f0md"}

// Load reads a tab-delimited file with a header row. Required columns must be
// present; extra columns are ignored. Empty and NA numeric cells become NaN,
// never zero.
func Load(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%s: empty file", path)
	}

	header := strings.Split(strings.TrimRight(scanner.Text(), "\r\n"), "\t")
	colIdx := make(map[string]int, len(header))
	for i, name := range header {
		colIdx[strings.TrimSpace(name)] = i
	}
	for _, name := range requiredColumns {
		if _, ok := colIdx[name]; !ok {
			return nil, fmt.Errorf("%s: missing required column %q", path, name)
		}
	}

	t := &Table{}
	lineNo := 1
	for scanner.Scan() {
		lineNo++
		line := strings.TrimRight(scanner.Text(), "\r\n")
		if line == "" {
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) < len(header) {
			return nil, fmt.Errorf("%s:%d: expected %d fields, got %d", path, lineNo, len(header), len(fields))
		}

		t.Speaker = append(t.Speaker, fields[colIdx["speaker"]])
		t.Lang = append(t.Lang, fields[colIdx["lang"]])
		t.Gend = append(t.Gend, fields[colIdx["gend"]])
		t.Item = append(t.Item, fields[colIdx["item"]])
		t.Inform = append(t.Inform, fields[colIdx["inform"]])

		f0, err := parseF0(fields[colIdx["f0md"]])
		if err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, lineNo, err)
		}
		t.F0 = append(t.F0, f0)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return t, nil
}

func parseF0(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "NA" || s == "na" {
		return math.NaN(), nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("bad f0md value %q", s)
	}
	return v, nil
}

func (t *Table) Len() int { return len(t.Speaker) }

// Filter returns a new table containing only rows for which keep returns
// true. The receiver is never modified.
func (t *Table) Filter(keep func(i int) bool) *Table {
	out := &Table{}
	for i := 0; i < t.Len(); i++ {
		if !keep(i) {
			continue
		}
		out.Speaker = append(out.Speaker, t.Speaker[i])
		out.Lang = append(out.Lang, t.Lang[i])
		out.Gend = append(out.Gend, t.Gend[i])
		out.Item = append(out.Item, t.Item[i])
		out.Inform = append(out.Inform, t.Inform[i])
		out.F0 = append(out.F0, t.F0[i])
		if len(t.ItemFixed) == t.Len() {
			out.ItemFixed = append(out.ItemFixed, t.ItemFixed[i])
			out.UniqueItem = append(out.UniqueItem, t.UniqueItem[i])
		}
	}
	return out
}

// ExcludeItems drops rows whose raw item identifier matches the filler-task
// pattern. Must run before normalization and summarization.
func (t *Table) ExcludeItems(re *regexp.Regexp) *Table {
	return t.Filter(func(i int) bool { return !re.MatchString(t.Item[i]) })
}

// Languages returns the sorted distinct language labels present.
func (t *Table) Languages() []string {
	seen := make(map[string]bool)
	for _, l := range t.Lang {
		seen[l] = true
	}
	langs := make([]string, 0, len(seen))
	for l := range seen {
		langs = append(langs, l)
	}
	sort.Strings(langs)
	return langs
}

// Clone returns a deep copy.
func (t *Table) Clone() *Table {
	out := &Table{
		Speaker: append([]string(nil), t.Speaker...),
		Lang:    append([]string(nil), t.Lang...),
		Gend:    append([]string(nil), t.Gend...),
		Item:    append([]string(nil), t.Item...),
		Inform:  append([]string(nil), t.Inform...),
		F0:      append([]float64(nil), t.F0...),
	}
	if t.ItemFixed != nil {
		out.ItemFixed = append([]string(nil), t.ItemFixed...)
		out.UniqueItem = append([]string(nil), t.UniqueItem...)
	}
	return out
}
