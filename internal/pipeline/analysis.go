package pipeline

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/go-viper/mapstructure/v2"

	"github.com/KaramelBytes/statloom-cli/internal/chart"
	"github.com/KaramelBytes/statloom-cli/internal/dataset"
	"github.com/KaramelBytes/statloom-cli/internal/report"
	"github.com/KaramelBytes/statloom-cli/internal/stats"
	"github.com/KaramelBytes/statloom-cli/internal/utils"
)

// Env is what an analysis runs against.
type Env struct {
	Table    *dataset.Table // nil for analyses that need no data
	Alpha    float64
	Decimals int
	// Prefix makes chart names unique across sections.
	Prefix string
}

// Section is the output of one analysis. Figures in Blocks reference
// Charts by name and receive their PNG after rendering.
type Section struct {
	Title    string
	Blocks   []report.Block
	Charts   []*chart.Spec
	Findings []string
}

// AnalysisFunc runs one analysis with its recipe parameters.
type AnalysisFunc func(env *Env, title string, params map[string]any) (*Section, error)

type analysisInfo struct {
	run       AnalysisFunc
	needsData bool
	summary   string
}

var analyses = map[string]analysisInfo{}

func register(name, summary string, needsData bool, f AnalysisFunc) {
	analyses[name] = analysisInfo{run: f, needsData: needsData, summary: summary}
}

// AnalysisTypes lists the registered analysis types.
func AnalysisTypes() []string {
	out := make([]string, 0, len(analyses))
	for k := range analyses {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Describe returns the one-line summary of an analysis type.
func Describe(kind string) string { return analyses[kind].summary }

// RunAnalysis executes one analysis by type name.
func RunAnalysis(kind string, env *Env, title string, params map[string]any) (*Section, error) {
	info, ok := analyses[kind]
	if !ok {
		return nil, fmt.Errorf("unknown analysis type %q", kind)
	}
	if info.needsData && env.Table == nil {
		return nil, fmt.Errorf("%s: no dataset", kind)
	}
	if env.Alpha == 0 {
		env.Alpha = 0.05
	}
	return info.run(env, title, params)
}

// decodeParams fills out from the analysis parameters; unknown keys are errors.
func decodeParams(params map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(params); err != nil {
		return fmt.Errorf("parameters: %w", err)
	}
	return nil
}

func newSection(title string) *Section { return &Section{Title: title} }

func (s *Section) add(b ...report.Block) { s.Blocks = append(s.Blocks, b...) }

func (s *Section) para(format string, args ...any) {
	s.add(report.Para(fmt.Sprintf(format, args...)))
}

func (s *Section) table(caption string, header []string, rows [][]string, note string) {
	s.add(report.Table{Caption: caption, Header: header, Rows: rows, Note: note})
}

// figure registers a chart and places it at the current position.
func (s *Section) figure(env *Env, spec *chart.Spec) {
	spec.Name = env.Prefix + utils.Slugify(spec.Name, "chart")
	s.Charts = append(s.Charts, spec)
	s.add(report.Figure{Name: spec.Name, Caption: spec.Title})
}

func (s *Section) finding(format string, args ...any) {
	s.Findings = append(s.Findings, fmt.Sprintf(format, args...))
}

// num formats x with d decimals; NaN prints as "NA".
func num(x float64, d int) string {
	switch {
	case math.IsNaN(x):
		return "NA"
	case math.IsInf(x, 1):
		return "Inf"
	case math.IsInf(x, -1):
		return "-Inf"
	}
	return strconv.FormatFloat(x, 'f', d, 64)
}

// sci formats very small or large magnitudes in exponent form.
func sci(x float64, d int) string {
	if a := math.Abs(x); a != 0 && !math.IsNaN(a) && !math.IsInf(a, 0) && (a < 1e-3 || a >= 1e6) {
		return strconv.FormatFloat(x, 'e', max(d-1, 1), 64)
	}
	return num(x, d)
}

// pval prints a p-value the way papers do.
func pval(p float64) string {
	switch {
	case math.IsNaN(p):
		return "NA"
	case p < 0.001:
		return "< 0.001"
	}
	return strconv.FormatFloat(p, 'f', 3, 64)
}

// pEq is pval for running text: "p = 0.012" or "p < 0.001".
func pEq(p float64) string {
	s := pval(p)
	if strings.HasPrefix(s, "<") {
		return "p " + s
	}
	return "p = " + s
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

// numericColumns resolves names, or every numeric column except skip when
// names is empty.
func numericColumns(t *dataset.Table, names []string, skip ...string) ([]*dataset.Column, error) {
	if len(names) == 0 {
		cols := t.NumericColumns(skip...)
		if len(cols) == 0 {
			return nil, fmt.Errorf("%w: dataset %q has no numeric columns", dataset.ErrNotNumeric, t.Name)
		}
		return cols, nil
	}
	out := make([]*dataset.Column, 0, len(names))
	for _, n := range names {
		c, err := t.Numeric(n)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// groupsOf splits value by factor, converting to the stats representation.
func groupsOf(t *dataset.Table, factor, value string) ([]stats.Group, error) {
	gs, err := t.Groups(factor, value)
	if err != nil {
		return nil, err
	}
	out := make([]stats.Group, len(gs))
	for i, g := range gs {
		out[i] = stats.Group{Name: g.Key, Values: g.Values}
	}
	return out, nil
}

func groupNames(gs []stats.Group) []string {
	out := make([]string, len(gs))
	for i, g := range gs {
		out[i] = g.Name
	}
	return out
}

// pick keeps the groups named in keep, in that order; empty keep keeps all.
func pick(gs []stats.Group, keep []string) ([]stats.Group, error) {
	if len(keep) == 0 {
		return gs, nil
	}
	byName := map[string]stats.Group{}
	for _, g := range gs {
		byName[g.Name] = g
	}
	out := make([]stats.Group, 0, len(keep))
	for _, k := range keep {
		g, ok := byName[k]
		if !ok {
			return nil, fmt.Errorf("group %q not found (have %s)", k, strings.Join(groupNames(gs), ", "))
		}
		out = append(out, g)
	}
	return out, nil
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
