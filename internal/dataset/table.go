// Package dataset holds the in-memory table model shared by every analysis:
// named columns of raw cell text with a parsed numeric view, loaded from
// CSV/TSV, XLSX or inline structured documents and reshaped by transforms.
package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/adrg/strutil"
	"github.com/adrg/strutil/metrics"
)

// Kind is the inferred type of a column.
type Kind string

const (
	KindNumeric     Kind = "numeric"
	KindDatetime    Kind = "datetime"
	KindCategorical Kind = "categorical"
	KindText        Kind = "text"
	KindUnknown     Kind = "unknown"
)

var (
	ErrColumnNotFound    = errors.New("column not found")
	ErrNotNumeric        = errors.New("column is not numeric")
	ErrUnsupportedFormat = errors.New("unsupported dataset format")
	ErrRagged            = errors.New("columns have different lengths")
)

// Column is one named variable. Raw keeps the cell text as read; Num holds the
// parsed value per row, NaN where the cell is empty or not a number.
type Column struct {
	Name string
	Unit string
	Kind Kind
	Raw  []string
	Num  []float64
}

// Label returns "Name (unit)" or just the name.
func (c *Column) Label() string {
	if c.Unit == "" {
		return c.Name
	}
	return fmt.Sprintf("%s (%s)", c.Name, c.Unit)
}

// Values returns the non-missing numeric values in row order.
func (c *Column) Values() []float64 {
	out := make([]float64, 0, len(c.Num))
	for _, v := range c.Num {
		if !math.IsNaN(v) {
			out = append(out, v)
		}
	}
	return out
}

// Table is an ordered set of equally long columns.
type Table struct {
	Name    string
	Source  string
	Locale  Locale
	Columns []*Column
}

// Len returns the number of rows.
func (t *Table) Len() int {
	if t == nil || len(t.Columns) == 0 {
		return 0
	}
	return len(t.Columns[0].Raw)
}

// Names returns the column names in order.
func (t *Table) Names() []string {
	out := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		out[i] = c.Name
	}
	return out
}

// NewTable builds a table from a header row and data rows. Units are split off
// header names ("Conc (g/L)" -> "Conc", "g/L"); short rows are padded.
func NewTable(name string, header []string, rows [][]string, loc Locale) *Table {
	t := &Table{Name: name, Locale: loc}
	for j, h := range header {
		clean, unit := SplitUnits(strings.TrimSpace(h))
		if clean == "" {
			clean = fmt.Sprintf("col%d", j+1)
		}
		raw := make([]string, len(rows))
		for i, r := range rows {
			if j < len(r) {
				raw[i] = strings.TrimSpace(r[j])
			}
		}
		t.Columns = append(t.Columns, newColumn(clean, unit, raw, loc))
	}
	return t
}

func newColumn(name, unit string, raw []string, loc Locale) *Column {
	c := &Column{Name: name, Unit: unit, Raw: raw, Num: make([]float64, len(raw))}
	var numCnt, dtCnt, txtCnt, longCnt int
	for i, v := range raw {
		c.Num[i] = math.NaN()
		if IsMissing(v) {
			continue
		}
		if strings.Contains(v, "%") && c.Unit == "" {
			c.Unit = "%"
		}
		if x, ok := ParseNumeric(v, loc); ok {
			c.Num[i] = x
			numCnt++
			continue
		}
		if _, ok := ParseTime(v); ok {
			dtCnt++
			continue
		}
		txtCnt++
		if len(v) > 64 {
			longCnt++
		}
	}
	c.Kind = inferKind(numCnt, dtCnt, txtCnt, longCnt)
	if c.Kind != KindNumeric {
		for i := range c.Num {
			c.Num[i] = math.NaN()
		}
	}
	return c
}

// inferKind picks the predominant parsed type of a column.
func inferKind(numCnt, dtCnt, txtCnt, longCnt int) Kind {
	switch {
	case numCnt > 0 && numCnt >= dtCnt && numCnt >= txtCnt:
		return KindNumeric
	case dtCnt > 0 && dtCnt >= txtCnt:
		return KindDatetime
	case txtCnt > 0 && longCnt*2 > txtCnt:
		return KindText
	case txtCnt > 0:
		return KindCategorical
	}
	return KindUnknown
}

// NumericColumn builds a numeric column from values; NaN becomes an empty cell.
func NumericColumn(name, unit string, vals []float64) *Column {
	c := &Column{Name: name, Unit: unit, Kind: KindNumeric, Raw: make([]string, len(vals)), Num: make([]float64, len(vals))}
	for i, v := range vals {
		c.Num[i] = v
		if !math.IsNaN(v) {
			c.Raw[i] = strconv.FormatFloat(v, 'f', -1, 64)
		}
	}
	return c
}

// TextColumn builds a categorical column from labels.
func TextColumn(name string, vals []string) *Column {
	return newColumn(name, "", append([]string(nil), vals...), Locale{})
}

// Column finds a column by name. Matching is exact first, then case
// insensitive, then against "Name (unit)" labels. A miss reports the closest
// name by Levenshtein similarity.
func (t *Table) Column(name string) (*Column, error) {
	want := strings.TrimSpace(name)
	for _, c := range t.Columns {
		if c.Name == want {
			return c, nil
		}
	}
	for _, c := range t.Columns {
		if strings.EqualFold(c.Name, want) || strings.EqualFold(c.Label(), want) {
			return c, nil
		}
	}
	if s := t.suggest(want); s != "" {
		return nil, fmt.Errorf("%w: %q in %s (did you mean %q?)", ErrColumnNotFound, name, t.Name, s)
	}
	return nil, fmt.Errorf("%w: %q in %s (have: %s)", ErrColumnNotFound, name, t.Name, strings.Join(t.Names(), ", "))
}

func (t *Table) suggest(name string) string {
	best, bestScore := "", 0.0
	lev := metrics.NewLevenshtein()
	lev.CaseSensitive = false
	for _, c := range t.Columns {
		if s := strutil.Similarity(name, c.Name, lev); s > bestScore {
			best, bestScore = c.Name, s
		}
	}
	if bestScore < 0.5 {
		return ""
	}
	return best
}

// Numeric returns a numeric column by name.
func (t *Table) Numeric(name string) (*Column, error) {
	c, err := t.Column(name)
	if err != nil {
		return nil, err
	}
	if c.Kind != KindNumeric {
		return nil, fmt.Errorf("%w: %q is %s", ErrNotNumeric, c.Name, c.Kind)
	}
	return c, nil
}

// NumericColumns returns all numeric columns, excluding the given names.
func (t *Table) NumericColumns(exclude ...string) []*Column {
	var out []*Column
outer:
	for _, c := range t.Columns {
		if c.Kind != KindNumeric {
			continue
		}
		for _, e := range exclude {
			if strings.EqualFold(e, c.Name) {
				continue outer
			}
		}
		out = append(out, c)
	}
	return out
}

// AddColumn appends c, replacing an existing column with the same name.
func (t *Table) AddColumn(c *Column) error {
	if len(t.Columns) > 0 && len(c.Raw) != t.Len() {
		return fmt.Errorf("%w: %q has %d rows, table has %d", ErrRagged, c.Name, len(c.Raw), t.Len())
	}
	for i, old := range t.Columns {
		if strings.EqualFold(old.Name, c.Name) {
			t.Columns[i] = c
			return nil
		}
	}
	t.Columns = append(t.Columns, c)
	return nil
}

// Row returns the raw cells of row i.
func (t *Table) Row(i int) []string {
	out := make([]string, len(t.Columns))
	for j, c := range t.Columns {
		out[j] = c.Raw[i]
	}
	return out
}

// Subset returns a new table with only the rows whose index is in keep.
func (t *Table) Subset(keep []int) *Table {
	out := &Table{Name: t.Name, Source: t.Source, Locale: t.Locale}
	for _, c := range t.Columns {
		nc := &Column{Name: c.Name, Unit: c.Unit, Kind: c.Kind, Raw: make([]string, len(keep)), Num: make([]float64, len(keep))}
		for i, k := range keep {
			nc.Raw[i] = c.Raw[k]
			nc.Num[i] = c.Num[k]
		}
		out.Columns = append(out.Columns, nc)
	}
	return out
}

// Filter keeps the rows for which keep returns true.
func (t *Table) Filter(keep func(i int) bool) *Table {
	var idx []int
	for i := 0; i < t.Len(); i++ {
		if keep(i) {
			idx = append(idx, i)
		}
	}
	return t.Subset(idx)
}

// Select returns a table with the named columns in the given order.
func (t *Table) Select(names ...string) (*Table, error) {
	out := &Table{Name: t.Name, Source: t.Source, Locale: t.Locale}
	for _, n := range names {
		c, err := t.Column(n)
		if err != nil {
			return nil, err
		}
		out.Columns = append(out.Columns, c)
	}
	return out, nil
}

// Group is the numeric values of one factor level.
type Group struct {
	Key    string
	Values []float64
}

// Groups splits the numeric column value by the levels of factor. Levels keep
// the order of first appearance; rows with a missing value or level are skipped.
func (t *Table) Groups(factor, value string) ([]Group, error) {
	fc, err := t.Column(factor)
	if err != nil {
		return nil, err
	}
	vc, err := t.Numeric(value)
	if err != nil {
		return nil, err
	}
	idx := map[string]int{}
	var out []Group
	for i, key := range fc.Raw {
		if key == "" || math.IsNaN(vc.Num[i]) {
			continue
		}
		g, ok := idx[key]
		if !ok {
			g = len(out)
			idx[key] = g
			out = append(out, Group{Key: key})
		}
		out[g].Values = append(out[g].Values, vc.Num[i])
	}
	return out, nil
}

// GroupIndex returns, per level of factor in first-appearance order, the row
// indices belonging to it. An empty factor yields one group with every row.
func (t *Table) GroupIndex(factor string) ([]string, [][]int, error) {
	if factor == "" {
		all := make([]int, t.Len())
		for i := range all {
			all[i] = i
		}
		return []string{""}, [][]int{all}, nil
	}
	fc, err := t.Column(factor)
	if err != nil {
		return nil, nil, err
	}
	pos := map[string]int{}
	var keys []string
	var rows [][]int
	for i, k := range fc.Raw {
		g, ok := pos[k]
		if !ok {
			g = len(keys)
			pos[k] = g
			keys = append(keys, k)
			rows = append(rows, nil)
		}
		rows[g] = append(rows[g], i)
	}
	return keys, rows, nil
}

// Levels returns the distinct non-empty values of a column in first-appearance order.
func (t *Table) Levels(name string) ([]string, error) {
	c, err := t.Column(name)
	if err != nil {
		return nil, err
	}
	seen := map[string]bool{}
	var out []string
	for _, v := range c.Raw {
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out, nil
}

// Melt reshapes wide to long: every value column becomes rows of
// (idVars..., varName=column name, valueName=cell). Columns are stacked in
// order, each one contributing all rows. Empty valueVars means every column not
// in idVars.
func (t *Table) Melt(idVars, valueVars []string, varName, valueName string) (*Table, error) {
	if varName == "" {
		varName = "variable"
	}
	if valueName == "" {
		valueName = "value"
	}
	var ids []*Column
	isID := map[*Column]bool{}
	for _, n := range idVars {
		c, err := t.Column(n)
		if err != nil {
			return nil, err
		}
		ids = append(ids, c)
		isID[c] = true
	}
	var vals []*Column
	if len(valueVars) == 0 {
		for _, c := range t.Columns {
			if !isID[c] {
				vals = append(vals, c)
			}
		}
	} else {
		for _, n := range valueVars {
			c, err := t.Column(n)
			if err != nil {
				return nil, err
			}
			vals = append(vals, c)
		}
	}
	if len(vals) == 0 {
		return nil, errors.New("melt: no value columns")
	}
	n := t.Len()
	header := make([]string, 0, len(ids)+2)
	for _, c := range ids {
		header = append(header, c.Label())
	}
	header = append(header, varName, valueName)
	rows := make([][]string, 0, n*len(vals))
	for _, v := range vals {
		for i := 0; i < n; i++ {
			row := make([]string, 0, len(header))
			for _, c := range ids {
				row = append(row, c.Raw[i])
			}
			row = append(row, v.Name, v.Raw[i])
			rows = append(rows, row)
		}
	}
	out := NewTable(t.Name, header, rows, t.Locale)
	out.Source = t.Source
	// Reuse the parsed numbers of the source columns.
	allNumeric := true
	for _, v := range vals {
		if v.Kind != KindNumeric {
			allNumeric = false
		}
	}
	if allNumeric {
		valueCol := out.Columns[len(out.Columns)-1]
		valueCol.Kind = KindNumeric
		valueCol.Unit = vals[0].Unit
		k := 0
		for _, v := range vals {
			copy(valueCol.Num[k:k+n], v.Num)
			k += n
		}
	}
	return out, nil
}

// WriteCSV writes the table with a header of column labels.
func (t *Table) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	header := make([]string, len(t.Columns))
	for j, c := range t.Columns {
		header[j] = c.Label()
	}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for i := 0; i < t.Len(); i++ {
		if err := cw.Write(t.Row(i)); err != nil {
			return fmt.Errorf("write csv row %d: %w", i+1, err)
		}
	}
	cw.Flush()
	return cw.Error()
}
