// Run reports: YAML documents and fixed-width result tables
package report

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gonum.org/v1/gonum/stat"
	"gopkg.in/yaml.v3"

	"strel-optimizer/internal/core"
	"strel-optimizer/internal/metrics"
	"strel-optimizer/internal/strel"
)

// Evaluation is the outcome of scoring one structuring element
type Evaluation struct {
	Shape      string                        `yaml:"shape"`
	Radius     int                           `yaml:"radius"`
	Summary    metrics.Summary               `yaml:"summary"`
	MetricInfo map[string]metrics.MetricInfo `yaml:"metric_info,omitempty"`
}

// Stats summarizes a series of AUC values
type Stats struct {
	Count  int     `yaml:"count"`
	Mean   float64 `yaml:"mean"`
	StdDev float64 `yaml:"std_dev"`
	Min    float64 `yaml:"min"`
	Max    float64 `yaml:"max"`
}

// NewStats computes the mean, sample standard deviation and range of values
func NewStats(values []float64) Stats {
	s := Stats{Count: len(values)}
	if len(values) == 0 {
		return s
	}
	s.Mean, s.StdDev = stat.MeanStdDev(values, nil)
	if len(values) < 2 {
		s.StdDev = 0
	}
	s.Min, s.Max = values[0], values[0]
	for _, v := range values[1:] {
		s.Min = min(s.Min, v)
		s.Max = max(s.Max, v)
	}
	return s
}

// Sweep collects evaluations of several shapes and radii
type Sweep struct {
	Generated   time.Time    `yaml:"generated"`
	Evaluations []Evaluation `yaml:"evaluations"`
	Stats       Stats        `yaml:"auc_stats"`
	Best        *Evaluation  `yaml:"best,omitempty"`
}

// NewSweep builds a sweep report and selects the highest AUC
func NewSweep(evals []Evaluation) Sweep {
	s := Sweep{Generated: time.Now().UTC(), Evaluations: evals}
	aucs := make([]float64, len(evals))
	for i, e := range evals {
		aucs[i] = e.Summary.AUC
		if s.Best == nil || e.Summary.AUC > s.Best.Summary.AUC {
			s.Best = &evals[i]
		}
	}
	s.Stats = NewStats(aucs)
	return s
}

// Optimization records an iterated local search run
type Optimization struct {
	Generated    time.Time     `yaml:"generated"`
	InitialShape string        `yaml:"initial_shape"`
	Radius       int           `yaml:"radius"`
	Parameters   any           `yaml:"parameters"`
	InitialAUC   float64       `yaml:"initial_auc"`
	BestAUC      float64       `yaml:"best_auc"`
	History      []float64     `yaml:"history"`
	Evaluations  int           `yaml:"evaluations"`
	Accepted     int           `yaml:"accepted"`
	Duration     time.Duration `yaml:"duration"`
	BestElement  []string      `yaml:"best_element"`
	Cancelled    bool          `yaml:"cancelled,omitempty"`
}

// ElementRows renders a structuring element one string per row
func ElementRows(g *core.Grid) []string {
	return strings.Split(strings.TrimRight(strel.Describe(g), "\n"), "\n")
}

// WriteYAML marshals v to path, creating parent directories
func WriteYAML(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Dir(path), err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()

	enc := yaml.NewEncoder(f)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	return enc.Close()
}

// Table prints evaluations as fixed-width columns
type Table struct {
	w io.Writer
}

func NewTable(w io.Writer) *Table {
	return &Table{w: w}
}

// Header prints the column titles
func (t *Table) Header() {
	fmt.Fprintf(t.w, "%-20s%-10s%-10s\n", "|Strel", "|Radius", "|AUC")
}

// Row prints one evaluation
func (t *Table) Row(e Evaluation) {
	fmt.Fprintf(t.w, "%-20s%-10d%-10.6f\n", e.Shape, e.Radius, e.Summary.AUC)
}
