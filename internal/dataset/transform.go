package dataset

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/go-viper/mapstructure/v2"
)

// Step is one recipe transform. Which fields apply depends on Op.
type Step struct {
	Op     string `mapstructure:"op"`
	Column string `mapstructure:"column"`
	Group  string `mapstructure:"group"`
	Into   string `mapstructure:"into"`
	Unit   string `mapstructure:"unit"`

	// melt
	IDVars    []string `mapstructure:"id_vars"`
	ValueVars []string `mapstructure:"value_vars"`
	VarName   string   `mapstructure:"var_name"`
	ValueName string   `mapstructure:"value_name"`

	// map / rename
	Values map[string]string `mapstructure:"values"`
	Names  map[string]string `mapstructure:"names"`

	// scale: x*Factor + Offset (Factor 0 means 1)
	Factor float64 `mapstructure:"factor"`
	Offset float64 `mapstructure:"offset"`

	// ratio: (x - Equilibrium) / (x0 - Equilibrium)
	Equilibrium float64 `mapstructure:"equilibrium"`
	// percent_of: x / Total * 100; 0 uses the group sum
	Total float64 `mapstructure:"total"`

	// filter
	Equals    string   `mapstructure:"equals"`
	NotEquals string   `mapstructure:"not_equals"`
	In        []string `mapstructure:"in"`
	Min       *float64 `mapstructure:"min"`
	Max       *float64 `mapstructure:"max"`

	// select / drop_na
	Columns []string `mapstructure:"columns"`
}

// DecodeSteps converts generic recipe maps into Steps.
func DecodeSteps(raw []map[string]any) ([]Step, error) {
	steps := make([]Step, len(raw))
	for i, m := range raw {
		dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
			Result:           &steps[i],
			WeaklyTypedInput: true,
			ErrorUnused:      true,
		})
		if err != nil {
			return nil, err
		}
		if err := dec.Decode(m); err != nil {
			return nil, fmt.Errorf("transform %d: %w", i+1, err)
		}
	}
	return steps, nil
}

// Apply runs steps in order, returning the reshaped table. The input table is
// not modified.
func Apply(t *Table, steps []Step) (*Table, error) {
	cur := t.Subset(allRows(t.Len()))
	for i, s := range steps {
		next, err := applyStep(cur, s)
		if err != nil {
			return nil, fmt.Errorf("transform %d (%s): %w", i+1, s.Op, err)
		}
		cur = next
	}
	return cur, nil
}

func allRows(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

func applyStep(t *Table, s Step) (*Table, error) {
	switch strings.ToLower(strings.TrimSpace(s.Op)) {
	case "melt":
		return t.Melt(s.IDVars, s.ValueVars, s.VarName, s.ValueName)
	case "map":
		return mapValues(t, s)
	case "scale":
		return scale(t, s)
	case "loss_pct":
		return perGroup(t, s, s.Column+" loss", "%", func(x, first, _ float64) float64 {
			if first == 0 {
				return math.NaN()
			}
			return (first - x) / first * 100
		})
	case "ratio":
		into := s.Into
		if into == "" {
			into = "MR"
		}
		s.Into = into
		return perGroup(t, s, into, "", func(x, first, _ float64) float64 {
			d := first - s.Equilibrium
			if d == 0 {
				return math.NaN()
			}
			return (x - s.Equilibrium) / d
		})
	case "percent_of":
		return perGroup(t, s, s.Column+" share", "%", func(x, _, sum float64) float64 {
			total := s.Total
			if total == 0 {
				total = sum
			}
			if total == 0 {
				return math.NaN()
			}
			return x / total * 100
		})
	case "filter":
		return filter(t, s)
	case "rename":
		return rename(t, s)
	case "drop_na":
		return dropNA(t, s)
	case "select":
		return t.Select(s.Columns...)
	case "":
		return nil, errors.New("missing op")
	}
	return nil, fmt.Errorf("unknown op %q", s.Op)
}

func mapValues(t *Table, s Step) (*Table, error) {
	c, err := t.Column(s.Column)
	if err != nil {
		return nil, err
	}
	if len(s.Values) == 0 {
		return nil, errors.New("map needs values")
	}
	raw := make([]string, len(c.Raw))
	for i, v := range c.Raw {
		if m, ok := s.Values[v]; ok {
			raw[i] = m
		} else {
			raw[i] = v
		}
	}
	name, unit := c.Name, c.Unit
	if s.Into != "" {
		name = s.Into
	}
	if s.Unit != "" {
		unit = s.Unit
	}
	if err := t.AddColumn(newColumn(name, unit, raw, t.Locale)); err != nil {
		return nil, err
	}
	return t, nil
}

func scale(t *Table, s Step) (*Table, error) {
	c, err := t.Numeric(s.Column)
	if err != nil {
		return nil, err
	}
	f := s.Factor
	if f == 0 {
		f = 1
	}
	vals := make([]float64, len(c.Num))
	for i, v := range c.Num {
		vals[i] = v*f + s.Offset
	}
	name, unit := c.Name, c.Unit
	if s.Into != "" {
		name = s.Into
	}
	if s.Unit != "" {
		unit = s.Unit
	}
	if err := t.AddColumn(NumericColumn(name, unit, vals)); err != nil {
		return nil, err
	}
	return t, nil
}

// perGroup derives a column from each value, the first non-missing value of
// its group and the group sum. Without a group the whole column is one group.
func perGroup(t *Table, s Step, defaultName, defaultUnit string, fn func(x, first, sum float64) float64) (*Table, error) {
	c, err := t.Numeric(s.Column)
	if err != nil {
		return nil, err
	}
	_, rows, err := t.GroupIndex(s.Group)
	if err != nil {
		return nil, err
	}
	out := make([]float64, t.Len())
	for i := range out {
		out[i] = math.NaN()
	}
	for _, idx := range rows {
		first := math.NaN()
		sum := 0.0
		for _, i := range idx {
			v := c.Num[i]
			if math.IsNaN(v) {
				continue
			}
			if math.IsNaN(first) {
				first = v
			}
			sum += v
		}
		for _, i := range idx {
			if !math.IsNaN(c.Num[i]) {
				out[i] = fn(c.Num[i], first, sum)
			}
		}
	}
	name := s.Into
	if name == "" {
		name = defaultName
	}
	unit := defaultUnit
	if s.Unit != "" {
		unit = s.Unit
	}
	if err := t.AddColumn(NumericColumn(name, unit, out)); err != nil {
		return nil, err
	}
	return t, nil
}

func filter(t *Table, s Step) (*Table, error) {
	c, err := t.Column(s.Column)
	if err != nil {
		return nil, err
	}
	if (s.Min != nil || s.Max != nil) && c.Kind != KindNumeric {
		return nil, fmt.Errorf("%w: %q is %s", ErrNotNumeric, c.Name, c.Kind)
	}
	in := map[string]bool{}
	for _, v := range s.In {
		in[v] = true
	}
	return t.Filter(func(i int) bool {
		v := c.Raw[i]
		if s.Equals != "" && v != s.Equals {
			return false
		}
		if s.NotEquals != "" && v == s.NotEquals {
			return false
		}
		if len(in) > 0 && !in[v] {
			return false
		}
		if s.Min != nil && !(c.Num[i] >= *s.Min) {
			return false
		}
		if s.Max != nil && !(c.Num[i] <= *s.Max) {
			return false
		}
		return true
	}), nil
}

func rename(t *Table, s Step) (*Table, error) {
	if len(s.Names) == 0 {
		return nil, errors.New("rename needs names")
	}
	from := make([]string, 0, len(s.Names))
	for k := range s.Names {
		from = append(from, k)
	}
	sort.Strings(from)
	// Resolve every source before renaming so chains like a->b, b->c
	// act on the original names.
	cols := make([]*Column, len(from))
	seen := map[*Column]string{}
	for i, k := range from {
		c, err := t.Column(k)
		if err != nil {
			return nil, err
		}
		if prev, ok := seen[c]; ok {
			return nil, fmt.Errorf("rename: %q and %q name the same column", prev, k)
		}
		seen[c] = k
		cols[i] = c
	}
	for i, c := range cols {
		name, unit := SplitUnits(s.Names[from[i]])
		c.Name = name
		if unit != "" {
			c.Unit = unit
		}
	}
	for _, c := range cols {
		for _, o := range t.Columns {
			if o != c && o.Name == c.Name {
				return nil, fmt.Errorf("rename: duplicate column name %q", c.Name)
			}
		}
	}
	return t, nil
}

func dropNA(t *Table, s Step) (*Table, error) {
	cols := t.Columns
	if len(s.Columns) > 0 {
		sel, err := t.Select(s.Columns...)
		if err != nil {
			return nil, err
		}
		cols = sel.Columns
	}
	return t.Filter(func(i int) bool {
		for _, c := range cols {
			if c.Kind == KindNumeric {
				if math.IsNaN(c.Num[i]) {
					return false
				}
			} else if IsMissing(c.Raw[i]) {
				return false
			}
		}
		return true
	}), nil
}
