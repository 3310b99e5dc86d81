// Package report persists the run artifacts: the proportion-lowered summary
// table, the fitted model's draws and metadata, and loads a persisted fit
// back for reporting.
package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/prosodylab/politef0/internal/describe"
	"github.com/prosodylab/politef0/internal/model"
)

const (
	ProportionFile = "proportion_lowered.tsv"
	FitDir         = "fit"
	MetadataFile   = "metadata.json"
	DrawsFile      = "draws.csv"
)

type Store struct {
	baseDir string
}

func New(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

func (s *Store) Init() error {
	return os.MkdirAll(filepath.Join(s.baseDir, FitDir), 0755)
}

func (s *Store) Path(name string) string {
	return filepath.Join(s.baseDir, name)
}

// FitMetadata records what produced the draws, plus the convergence verdict.
type FitMetadata struct {
	Timestamp    time.Time            `json:"timestamp"`
	Seed         int64                `json:"seed"`
	Chains       int                  `json:"chains"`
	Warmup       int                  `json:"warmup"`
	Draws        int                  `json:"draws"`
	TargetAccept float64              `json:"target_accept"`
	MaxLeapfrog  int                  `json:"max_leapfrog"`
	AcceptRate   float64              `json:"accept_rate"`
	Divergences  int                  `json:"divergences"`
	Converged    bool                 `json:"converged"`
	Summary      []model.ParamSummary `json:"summary"`
}

// WriteProportionLowered writes the one persisted tabular artifact.
func (s *Store) WriteProportionLowered(rows []describe.LoweredRow) error {
	f, err := os.Create(s.Path(ProportionFile))
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	w.Comma = '\t'
	defer w.Flush()

	if err := w.Write([]string{"language", "lowered", "speakers", "proportion"}); err != nil {
		return err
	}
	for _, r := range rows {
		rec := []string{
			r.Lang,
			strconv.Itoa(r.Lowered),
			strconv.Itoa(r.Total),
			strconv.FormatFloat(r.Proportion, 'f', 2, 64),
		}
		if err := w.Write(rec); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

// SaveFit persists the raw draws (one row per draw, chain column first) and
// the metadata alongside them.
func (s *Store) SaveFit(fit *model.Fit, meta FitMetadata) error {
	metaPath := filepath.Join(s.baseDir, FitDir, MetadataFile)
	mf, err := os.Create(metaPath)
	if err != nil {
		return err
	}
	defer mf.Close()
	enc := json.NewEncoder(mf)
	enc.SetIndent("", "  ")
	if err := enc.Encode(meta); err != nil {
		return err
	}

	drawsPath := filepath.Join(s.baseDir, FitDir, DrawsFile)
	df, err := os.Create(drawsPath)
	if err != nil {
		return err
	}
	defer df.Close()

	w := csv.NewWriter(df)
	defer w.Flush()

	header := append([]string{"chain"}, fit.Post.ParamNames()...)
	if err := w.Write(header); err != nil {
		return err
	}
	for c, chain := range fit.Chains {
		for _, theta := range chain {
			rec := make([]string, 0, len(theta)+1)
			rec = append(rec, strconv.Itoa(c))
			for _, v := range theta {
				rec = append(rec, strconv.FormatFloat(v, 'g', -1, 64))
			}
			if err := w.Write(rec); err != nil {
				return err
			}
		}
	}
	w.Flush()
	return w.Error()
}

// LoadFit rebuilds a Fit from persisted draws. The posterior and data must be
// reconstructed from the same configuration and input file that produced the
// fit; the parameter layout is deterministic given those.
func (s *Store) LoadFit(post *model.Posterior, data *model.Data) (*model.Fit, error) {
	metaPath := filepath.Join(s.baseDir, FitDir, MetadataFile)
	raw, err := os.ReadFile(metaPath)
	if err != nil {
		return nil, err
	}
	var meta FitMetadata
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, err
	}

	drawsPath := filepath.Join(s.baseDir, FitDir, DrawsFile)
	f, err := os.Open(drawsPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	records, err := r.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) < 2 {
		return nil, fmt.Errorf("%s: no draws", drawsPath)
	}
	names := post.ParamNames()
	if len(records[0]) != len(names)+1 {
		return nil, fmt.Errorf("%s: expected %d columns, got %d (data or config changed since fit?)",
			drawsPath, len(names)+1, len(records[0]))
	}
	if records[0][0] != "chain" {
		return nil, fmt.Errorf("%s: first column is %q, expected \"chain\"", drawsPath, records[0][0])
	}
	for i, name := range names {
		if records[0][i+1] != name {
			return nil, fmt.Errorf("%s: column %d is %q, expected %q (data or config changed since fit?)",
				drawsPath, i+1, records[0][i+1], name)
		}
	}

	chains := make(map[int][][]float64)
	maxChain := 0
	for i := 1; i < len(records); i++ {
		rec := records[i]
		c, err := strconv.Atoi(rec[0])
		if err != nil {
			return nil, fmt.Errorf("%s: row %d: bad chain id %q", drawsPath, i, rec[0])
		}
		theta := make([]float64, len(rec)-1)
		for j := 1; j < len(rec); j++ {
			theta[j-1], err = strconv.ParseFloat(rec[j], 64)
			if err != nil {
				return nil, fmt.Errorf("%s: row %d: %w", drawsPath, i, err)
			}
		}
		chains[c] = append(chains[c], theta)
		if c > maxChain {
			maxChain = c
		}
	}

	fit := &model.Fit{
		Post:        post,
		Data:        data,
		Seed:        meta.Seed,
		Divergences: meta.Divergences,
		AcceptRate:  meta.AcceptRate,
	}
	for c := 0; c <= maxChain; c++ {
		if len(chains[c]) > 0 {
			fit.Chains = append(fit.Chains, chains[c])
		}
	}
	return fit, nil
}
