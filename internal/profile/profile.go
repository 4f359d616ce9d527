// Package profile screens a dataset before analysis: inferred column kinds and
// units, summary statistics, robust outliers, group-by means and correlations,
// rendered as a compact Markdown summary.
package profile

import (
	"fmt"
	"math"
	"path/filepath"
	"sort"
	"strings"

	"github.com/KaramelBytes/statloom-cli/internal/dataset"
	"github.com/KaramelBytes/statloom-cli/internal/stats"
)

// Options controls profiling of a table.
type Options struct {
	// MaxRows limits rows processed; 0 means unlimited.
	MaxRows int
	// SampleRows determines how many example rows to include in the report;
	// 0 means 5 and a negative value leaves the rows out.
	SampleRows int
	// GroupBy computes per-group summaries for the given column names.
	GroupBy []string
	// Correlations computes Pearson correlations among numeric columns.
	Correlations bool
	// CorrPerGroup computes correlations per group key.
	CorrPerGroup bool
	// Outliers counts values with robust |z| above OutlierThreshold (3.5 when 0).
	Outliers         bool
	OutlierThreshold float64
	// UnitNormalize converts values using UnitTargets, e.g. {"g/L":"mg/L"}.
	UnitNormalize bool
	UnitTargets   map[string]string
}

// DefaultOptions returns reasonable defaults for dataset screening.
func DefaultOptions() Options {
	return Options{
		MaxRows:       100000,
		SampleRows:    5,
		Outliers:      true,
		UnitNormalize: true,
		UnitTargets: map[string]string{
			"g/L":  "mg/L",
			"ug/L": "mg/L",
			"°F":   "°C",
		},
	}
}

// Report is a markdown-friendly screening summary of a table.
type Report struct {
	Name      string
	Rows      int
	Processed int
	Cols      []ColumnSummary
	Samples   [][]string
	Warnings  []string
	Groups    []GroupResult
	Corr      *stats.CorrMatrix
}

// ColumnSummary captures inferred type and statistics per column.
type ColumnSummary struct {
	Name    string
	Kind    dataset.Kind
	Unit    string
	NonNull int
	Missing int
	Unique  int
	Min     float64
	Max     float64
	Mean    float64
	Std     float64
	// Outliers (robust Z via MAD)
	OutliersCount    int
	OutliersMaxAbsZ  float64
	OutlierThreshold float64
	TopValues        []CategoryCount
	ExampleTexts     []string
}

type CategoryCount struct {
	Value string
	Count int
}

// GroupResult captures aggregated metrics per group key.
type GroupResult struct {
	Key       string
	Size      int
	Metrics   map[string]NumSummary // by column name
	CorrPairs []stats.Corr          // top correlation pairs (by |r|)
}

type NumSummary struct {
	Count          int
	Min, Max, Mean float64
}

// welford accumulates count, extremes, mean and squared deviations in one pass.
type welford struct {
	n        int
	mean, m2 float64
	min, max float64
}

func (w *welford) add(x float64) {
	if w.n == 0 {
		w.min, w.max = x, x
	}
	w.n++
	w.min = math.Min(w.min, x)
	w.max = math.Max(w.max, x)
	delta := x - w.mean
	w.mean += delta / float64(w.n)
	w.m2 += delta * (x - w.mean)
}

func (w *welford) std() float64 {
	if w.n < 2 {
		return 0
	}
	return math.Sqrt(w.m2 / float64(w.n-1))
}

// Build profiles t. Numeric values are unit-normalised before any statistic.
func Build(t *dataset.Table, opt Options) (*Report, error) {
	rep := &Report{Name: t.Name, Rows: t.Len()}
	if t.Source != "" {
		rep.Name = filepath.Base(t.Source)
	}
	rep.Processed = rep.Rows
	if opt.MaxRows > 0 && opt.MaxRows < rep.Rows {
		rep.Processed = opt.MaxRows
		rep.Warnings = append(rep.Warnings, fmt.Sprintf("processed only %d/%d rows due to MaxRows", rep.Processed, rep.Rows))
	}
	sampleRows := opt.SampleRows
	if sampleRows == 0 {
		sampleRows = 5
	}
	for i := 0; i < rep.Processed && i < sampleRows; i++ {
		rep.Samples = append(rep.Samples, t.Row(i))
	}

	n := rep.Processed
	var numNames []string
	var numVals [][]float64
	for _, c := range t.Columns {
		s, vals := summarise(c, n, opt)
		rep.Cols = append(rep.Cols, s)
		if s.Kind == dataset.KindNumeric {
			numNames = append(numNames, s.Name)
			numVals = append(numVals, vals)
		}
	}

	if len(opt.GroupBy) > 0 {
		groups, err := groupBy(t, n, opt, numNames, numVals)
		if err != nil {
			return nil, err
		}
		rep.Groups = groups
	}
	if opt.Correlations && len(numNames) >= 2 {
		m, err := stats.Correlations(numNames, numVals)
		if err != nil {
			return nil, fmt.Errorf("correlate columns: %w", err)
		}
		rep.Corr = m
	}
	return rep, nil
}

// summarise returns the column summary and, for numeric columns, the
// normalised values of the first n rows (NaN where missing).
func summarise(c *dataset.Column, n int, opt Options) (ColumnSummary, []float64) {
	s := ColumnSummary{Name: c.Name, Kind: c.Kind, Unit: c.Unit}
	cats := map[string]int{}
	for i := 0; i < n; i++ {
		v := c.Raw[i]
		if dataset.IsMissing(v) {
			s.Missing++
			continue
		}
		s.NonNull++
		switch c.Kind {
		case dataset.KindCategorical:
			if len(cats) <= 10000 && len(v) <= 64 {
				cats[v]++
			}
		case dataset.KindText:
			if len(s.ExampleTexts) < 3 {
				s.ExampleTexts = append(s.ExampleTexts, v)
			}
		}
	}
	switch c.Kind {
	case dataset.KindNumeric:
		vals := make([]float64, n)
		var acc welford
		for i := 0; i < n; i++ {
			x := c.Num[i]
			if !math.IsNaN(x) && opt.UnitNormalize {
				if nx, nu, ok := NormalizeUnit(x, c.Unit, opt.UnitTargets); ok {
					x = nx
					s.Unit = nu
				}
			}
			vals[i] = x
			if !math.IsNaN(x) {
				acc.add(x)
			}
		}
		s.Min, s.Max, s.Mean, s.Std = acc.min, acc.max, acc.mean, acc.std()
		if opt.Outliers && acc.n >= 8 {
			s.OutlierThreshold = opt.OutlierThreshold
			if s.OutlierThreshold <= 0 {
				s.OutlierThreshold = 3.5
			}
			for _, z := range stats.RobustZ(vals) {
				if math.IsNaN(z) {
					continue
				}
				az := math.Abs(z)
				if az > s.OutlierThreshold {
					s.OutliersCount++
					s.OutliersMaxAbsZ = math.Max(s.OutliersMaxAbsZ, az)
				}
			}
		}
		return s, vals
	case dataset.KindCategorical:
		tops := make([]CategoryCount, 0, len(cats))
		for k, v := range cats {
			tops = append(tops, CategoryCount{Value: k, Count: v})
		}
		sort.Slice(tops, func(i, j int) bool {
			if tops[i].Count == tops[j].Count {
				return tops[i].Value < tops[j].Value
			}
			return tops[i].Count > tops[j].Count
		})
		s.Unique = len(cats)
		if len(tops) > 8 {
			tops = tops[:8]
		}
		s.TopValues = tops
	}
	return s, nil
}

func groupBy(t *dataset.Table, n int, opt Options, numNames []string, numVals [][]float64) ([]GroupResult, error) {
	var keyCols []*dataset.Column
	for _, name := range opt.GroupBy {
		c, err := t.Column(name)
		if err != nil {
			return nil, fmt.Errorf("group by: %w", err)
		}
		keyCols = append(keyCols, c)
	}
	pos := map[string]int{}
	var keys []string
	var rows [][]int
	for i := 0; i < n; i++ {
		parts := make([]string, len(keyCols))
		for j, c := range keyCols {
			parts[j] = fmt.Sprintf("%s=%s", c.Name, safeVal(c.Raw[i]))
		}
		k := strings.Join(parts, " | ")
		g, ok := pos[k]
		if !ok {
			g = len(keys)
			pos[k] = g
			keys = append(keys, k)
			rows = append(rows, nil)
		}
		rows[g] = append(rows[g], i)
	}

	out := make([]GroupResult, 0, len(keys))
	for g, k := range keys {
		gr := GroupResult{Key: k, Size: len(rows[g]), Metrics: map[string]NumSummary{}}
		sub := make([][]float64, len(numVals))
		for j, vals := range numVals {
			var acc welford
			sub[j] = make([]float64, len(rows[g]))
			for r, i := range rows[g] {
				sub[j][r] = vals[i]
				if !math.IsNaN(vals[i]) {
					acc.add(vals[i])
				}
			}
			if acc.n > 0 {
				gr.Metrics[numNames[j]] = NumSummary{Count: acc.n, Min: acc.min, Max: acc.max, Mean: acc.mean}
			}
		}
		if opt.CorrPerGroup && len(numNames) >= 2 {
			m, err := stats.Correlations(numNames, sub)
			if err != nil {
				return nil, fmt.Errorf("correlate group %s: %w", k, err)
			}
			pairs := m.Pairs
			if len(pairs) > 10 {
				pairs = pairs[:10]
			}
			gr.CorrPairs = pairs
		}
		out = append(out, gr)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Size == out[j].Size {
			return out[i].Key < out[j].Key
		}
		return out[i].Size > out[j].Size
	})
	if len(out) > 20 {
		out = out[:20]
	}
	return out, nil
}

// NormalizeUnit converts x from unit to the target configured for it.
func NormalizeUnit(x float64, unit string, targets map[string]string) (float64, string, bool) {
	target, ok := targets[unit]
	if !ok {
		return x, unit, false
	}
	switch unit + ">" + target {
	case "g/L>mg/L":
		return x * 1000, target, true
	case "ug/L>mg/L":
		return x / 1000, target, true
	case "mg/L>g/L":
		return x / 1000, target, true
	case "°F>°C":
		return (x - 32) * 5.0 / 9.0, target, true
	case "°C>°F":
		return x*9.0/5.0 + 32, target, true
	default:
		return x, unit, false
	}
}
