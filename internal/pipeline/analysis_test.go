package pipeline

import (
	"fmt"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KaramelBytes/statloom-cli/internal/chart"
	"github.com/KaramelBytes/statloom-cli/internal/dataset"
	"github.com/KaramelBytes/statloom-cli/internal/report"
)

func kilnTable() *dataset.Table {
	rows := [][]string{
		{"A", "1", "10"}, {"A", "2", "11"}, {"A", "3", "12"},
		{"B", "4", "13"}, {"B", "5", "15"}, {"B", "6", "14"},
		{"C", "7", "18"}, {"C", "8", "17"}, {"C", "9", "19"},
	}
	return dataset.NewTable("kiln", []string{"Kiln", "Loss (%)", "Moisture"}, rows, dataset.Locale{})
}

func testEnv(t *dataset.Table) *Env {
	return &Env{Table: t, Alpha: 0.05, Decimals: 2, Prefix: "t-"}
}

func analyze(t *testing.T, kind string, tbl *dataset.Table, params map[string]any) *Section {
	t.Helper()
	s, err := RunAnalysis(kind, testEnv(tbl), "", params)
	require.NoError(t, err)
	return s
}

func tablesOf(s *Section) []report.Table {
	var out []report.Table
	for _, b := range s.Blocks {
		if tb, ok := b.(report.Table); ok {
			out = append(out, tb)
		}
	}
	return out
}

func figuresOf(s *Section) []report.Figure {
	var out []report.Figure
	for _, b := range s.Blocks {
		if f, ok := b.(report.Figure); ok {
			out = append(out, f)
		}
	}
	return out
}

func paragraphs(s *Section) string {
	var b strings.Builder
	for _, blk := range s.Blocks {
		if p, ok := blk.(report.Paragraph); ok {
			b.WriteString(p.Text() + "\n")
		}
	}
	return b.String()
}

func TestAnalysisRegistry(t *testing.T) {
	want := []string{"anova", "correlation", "describe", "drying", "mannwhitney", "ols", "pca", "profile", "regression", "rsm", "sieve", "text", "ttest", "tukey", "wqi"}
	assert.Equal(t, want, AnalysisTypes())
	for _, k := range want {
		assert.NotEmpty(t, Describe(k), k)
	}
	_, err := RunAnalysis("nope", testEnv(nil), "", nil)
	assert.ErrorContains(t, err, "unknown analysis type")
	_, err = RunAnalysis("anova", testEnv(nil), "", map[string]any{"factor": "Kiln"})
	assert.ErrorContains(t, err, "no dataset")
}

func TestUnknownParameterIsAnError(t *testing.T) {
	_, err := RunAnalysis("anova", testEnv(kilnTable()), "", map[string]any{"factr": "Kiln"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "factr")
}

func TestDescribe(t *testing.T) {
	s := analyze(t, "describe", kilnTable(), map[string]any{"charts": []any{"box", "bar"}})
	assert.Equal(t, "Descriptive statistics", s.Title)
	tbs := tablesOf(s)
	require.Len(t, tbs, 1)
	require.Len(t, tbs[0].Rows, 2)
	assert.Equal(t, []string{"Loss (%)", "9", "5.00", "5.00"}, tbs[0].Rows[0][:4])
	require.Len(t, s.Charts, 2)
	assert.Equal(t, "t-box", s.Charts[0].Name)
	assert.Equal(t, chart.Bar, s.Charts[1].Kind)
	assert.Len(t, figuresOf(s), 2)

	by := analyze(t, "describe", kilnTable(), map[string]any{"columns": "Loss", "by": "Kiln"})
	rows := tablesOf(by)[0].Rows
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"Loss (%)", "B", "3", "5.00"}, rows[1][:4])
	require.Len(t, by.Charts, 1)
	assert.Len(t, by.Charts[0].Series, 3)

	_, err := RunAnalysis("describe", testEnv(kilnTable()), "", map[string]any{"charts": []any{"pie"}})
	assert.ErrorContains(t, err, "unknown chart")
}

func TestANOVAWithTukey(t *testing.T) {
	s := analyze(t, "anova", kilnTable(), map[string]any{"factor": "Kiln", "response": "Loss", "tukey": true})
	tbs := tablesOf(s)
	require.Len(t, tbs, 3)
	assert.Equal(t, []string{"A", "3", "2.00", "1.00", "0.58"}, tbs[0].Rows[0])
	anova := tbs[1]
	assert.Equal(t, []string{"Between groups", "54.00", "2", "27.00", "27.00"}, anova.Rows[0][:5])
	assert.Equal(t, []string{"Within groups", "6.00", "6", "1.00"}, anova.Rows[1][:4])
	assert.Contains(t, anova.Note, "η² = 0.900")

	tukey := tbs[2]
	require.Len(t, tukey.Rows, 3)
	assert.Equal(t, []string{"A", "B", "3.00"}, tukey.Rows[0][:3])
	for _, r := range tukey.Rows {
		assert.Equal(t, "yes", r[6])
	}
	require.Len(t, s.Findings, 2)
	assert.Contains(t, s.Findings[0], "Loss (%) differed significantly across Kiln")
	assert.Contains(t, s.Findings[0], "highest in C")
	assert.Contains(t, s.Findings[1], "Tukey HSD")
	require.Len(t, s.Charts, 1)
	assert.Equal(t, []string{"A", "B", "C"}, s.Charts[0].Categories)
}

func TestANOVAPerParameter(t *testing.T) {
	tbl := kilnTable()
	noise := dataset.NumericColumn("Noise", "", []float64{5, 1, 3, 3, 5, 1, 1, 3, 5})
	require.NoError(t, tbl.AddColumn(noise))
	s := analyze(t, "anova", tbl, map[string]any{"factor": "Kiln", "chart": "box"})
	tbs := tablesOf(s)
	require.Len(t, tbs, 1)
	require.Len(t, tbs[0].Rows, 3)
	assert.Equal(t, "Loss (%)", tbs[0].Rows[0][0])
	assert.Equal(t, "yes", tbs[0].Rows[0][5])
	assert.Equal(t, "no", tbs[0].Rows[2][5])
	assert.Len(t, s.Findings, 2)
	assert.Len(t, s.Charts, 3)
}

func TestTukeyFallsBackToLargestF(t *testing.T) {
	tbl := dataset.NewTable("flat", []string{"G", "X", "Y"}, [][]string{
		{"a", "1", "5"}, {"a", "3", "1"}, {"b", "2", "3"}, {"b", "2", "3"}, {"c", "3", "1"}, {"c", "1", "5"},
	}, dataset.Locale{})
	s := analyze(t, "tukey", tbl, map[string]any{"factor": "G"})
	assert.Contains(t, paragraphs(s), "the 2 parameters with the largest F")
	assert.Len(t, tablesOf(s), 2)
	assert.Empty(t, s.Findings)
}

func TestTukeyCapsSignificantParameters(t *testing.T) {
	header := []string{"G"}
	for i := 1; i <= 8; i++ {
		header = append(header, fmt.Sprintf("P%d", i))
	}
	var rows [][]string
	for g, lvl := range []string{"a", "b", "c"} {
		for rep := 0; rep < 3; rep++ {
			row := []string{lvl}
			for i := 1; i <= 8; i++ {
				row = append(row, fmt.Sprint(10*g+rep+i))
			}
			rows = append(rows, row)
		}
	}
	tbl := dataset.NewTable("wide", header, rows, dataset.Locale{})
	s := analyze(t, "tukey", tbl, map[string]any{"factor": "G"})
	tbs := tablesOf(s)
	require.Len(t, tbs, 6)
	assert.Contains(t, tbs[0].Caption, "P1")
	assert.Contains(t, tbs[5].Caption, "P6")
	assert.NotContains(t, paragraphs(s), "P7")
}

func TestTTests(t *testing.T) {
	one := dataset.NewTable("one", []string{"Yield"}, [][]string{{"1"}, {"2"}, {"3"}, {"4"}, {"5"}}, dataset.Locale{})
	s := analyze(t, "ttest", one, map[string]any{"column": "Yield", "mu": 3})
	row := tablesOf(s)[0].Rows[0]
	assert.Equal(t, "0.000", row[2])
	assert.Equal(t, "1.000", row[4])
	assert.Empty(t, s.Findings)
	require.Len(t, s.Charts, 1)
	assert.Equal(t, 3.0, s.Charts[0].RefLines[0].Value)

	w := analyze(t, "ttest", kilnTable(), map[string]any{"factor": "Kiln", "response": "Loss", "groups": []any{"A", "C"}})
	assert.Contains(t, tablesOf(w)[0].Caption, "Welch")
	require.Len(t, w.Findings, 1)
	assert.Equal(t, []string{"A", "C"}, w.Charts[0].Categories)

	p := analyze(t, "ttest", kilnTable(), map[string]any{"kind": "paired", "x": "Moisture", "y": "Loss"})
	assert.Equal(t, "9", tablesOf(p)[0].Rows[0][1])

	_, err := RunAnalysis("ttest", testEnv(kilnTable()), "", map[string]any{"factor": "Kiln", "response": "Loss"})
	assert.ErrorContains(t, err, "has 3 levels")
	_, err = RunAnalysis("ttest", testEnv(kilnTable()), "", map[string]any{"kind": "z", "x": "Loss", "y": "Moisture"})
	assert.ErrorContains(t, err, "unknown t-test kind")
}

func TestMannWhitney(t *testing.T) {
	s := analyze(t, "mannwhitney", kilnTable(), map[string]any{"factor": "Kiln", "response": "Loss", "groups": []any{"A", "B"}})
	tb := tablesOf(s)[0]
	assert.Equal(t, []string{"A", "3", "2.00"}, tb.Rows[0])
	assert.Equal(t, []string{"B", "3", "5.00"}, tb.Rows[1])
	assert.Len(t, s.Charts, 1)
	_, err := RunAnalysis("mannwhitney", testEnv(kilnTable()), "", map[string]any{"kind": "welch", "x": "Loss", "y": "Moisture"})
	assert.Error(t, err)
}

func TestRegression(t *testing.T) {
	tbl := dataset.NewTable("till", []string{"Depth", "Draft"}, [][]string{
		{"1", "3.1"}, {"2", "4.9"}, {"3", "7.2"}, {"4", "8.8"}, {"5", "11.0"}, {"6", ""},
	}, dataset.Locale{})
	s := analyze(t, "regression", tbl, map[string]any{"x": "Depth", "y": "Draft"})
	require.Len(t, s.Findings, 1)
	assert.Contains(t, paragraphs(s), "Draft increased with increasing Depth")
	require.Len(t, s.Charts, 1)
	c := s.Charts[0]
	assert.Equal(t, chart.Fit, c.Kind)
	assert.Len(t, c.Series[0].X, 5)
	assert.Equal(t, []float64{1, 5}, c.Series[1].X)
	require.NoError(t, c.Validate())
}

func TestOLSCategoricalMatchesANOVA(t *testing.T) {
	s := analyze(t, "ols", kilnTable(), map[string]any{"response": "Loss", "categorical": "Kiln"})
	tbs := tablesOf(s)
	require.Len(t, tbs, 2)
	assert.Equal(t, []string{"Intercept", "C(Kiln)[T.B]", "C(Kiln)[T.C]"}, []string{tbs[0].Rows[0][0], tbs[0].Rows[1][0], tbs[0].Rows[2][0]})
	assert.Contains(t, tbs[0].Note, "R² = 0.900")
	assert.Contains(t, paragraphs(s), "F = 27.00")

	lin := analyze(t, "ols", kilnTable(), map[string]any{"response": "Moisture", "terms": []any{"Loss"}})
	assert.Len(t, tablesOf(lin)[0].Rows, 2)

	_, err := RunAnalysis("ols", testEnv(kilnTable()), "", map[string]any{"response": "Loss", "categorical": "Kiln", "model": "quadratic"})
	assert.Error(t, err)
}

func TestRSM(t *testing.T) {
	var rows [][]string
	pts := [][2]float64{{-1, -1}, {-1, 0}, {-1, 1}, {0, -1}, {0, 0}, {0, 1}, {1, -1}, {1, 0}, {1, 1}, {-2, 0}, {2, 0}, {0, -2}, {0, 2}}
	for i, p := range pts {
		d1, d2 := p[0]-0.5, p[1]+0.3
		y := 10 - d1*d1 - 2*d2*d2 + 0.01*float64(i%3-1)
		rows = append(rows, []string{fmt.Sprint(p[0]), fmt.Sprint(p[1]), fmt.Sprint(y)})
	}
	tbl := dataset.NewTable("rsm", []string{"Temp", "Time", "Oil"}, rows, dataset.Locale{})
	s := analyze(t, "rsm", tbl, map[string]any{
		"response": "Oil",
		"coded":    true,
		"factors": []any{
			map[string]any{"name": "Temp", "center": 60, "step": 10, "unit": "°C"},
			map[string]any{"name": "Time", "center": 2, "step": 0.5, "unit": "h"},
		},
	})
	tbs := tablesOf(s)
	require.Len(t, tbs, 3)
	opt := tbs[2]
	assert.Equal(t, "Temp", opt.Rows[0][0])
	assert.Equal(t, "°C", opt.Rows[0][3])
	require.Len(t, s.Findings, 2)
	assert.Contains(t, s.Findings[1], "maximum of Oil")
	require.Len(t, s.Charts, 2)
	grid := s.Charts[0].Grid
	require.NotNil(t, grid)
	assert.InDelta(t, 40, grid.X[0], 1e-9)
	assert.InDelta(t, 3, grid.Y[len(grid.Y)-1], 1e-9)
	require.NoError(t, s.Charts[0].Validate())
}

func TestPCAAndCorrelation(t *testing.T) {
	rows := [][]string{
		{"S1", "1", "2.1", "7"}, {"S2", "2", "3.9", "3"}, {"S3", "3", "6.2", "8"},
		{"S4", "4", "8.1", "2"}, {"S5", "5", "9.8", "6"}, {"S6", "6", "12.2", "4"},
	}
	tbl := dataset.NewTable("sites", []string{"Site", "Na", "Cl", "pH"}, rows, dataset.Locale{})
	s := analyze(t, "pca", tbl, map[string]any{"label": "Site"})
	tbs := tablesOf(s)
	require.Len(t, tbs, 2)
	assert.Len(t, tbs[0].Rows, 2)
	assert.Len(t, tbs[1].Rows, 3)
	require.Len(t, s.Charts, 1)
	assert.Equal(t, []string{"S1", "S2", "S3", "S4", "S5", "S6"}, s.Charts[0].Series[0].Labels)

	tr := analyze(t, "pca", tbl, map[string]any{"label": "Site", "transpose": true, "components": 2})
	assert.Len(t, tablesOf(tr)[1].Rows, 6)
	assert.Equal(t, []string{"Na", "Cl", "pH"}, tr.Charts[0].Series[0].Labels)

	c := analyze(t, "correlation", tbl, nil)
	pairs := tablesOf(c)[0].Rows
	require.Len(t, pairs, 3)
	assert.Equal(t, []string{"Na", "Cl"}, pairs[0][:2])
	assert.Equal(t, "yes", pairs[0][5])
	require.Len(t, c.Charts, 1)
	assert.Equal(t, chart.Heatmap, c.Charts[0].Kind)
	assert.Equal(t, []string{"Na", "Cl", "pH"}, c.Charts[0].Categories)
	require.NoError(t, c.Charts[0].Validate())
}

func TestWQI(t *testing.T) {
	rows := [][]string{
		{"Well", "5", "1"}, {"Well", "5", "3"},
		{"River", "15", "4"},
	}
	tbl := dataset.NewTable("water", []string{"Site", "Nitrate", "Turbidity"}, rows, dataset.Locale{})
	s := analyze(t, "wqi", tbl, map[string]any{
		"site": "Site",
		"standards": []any{
			map[string]any{"column": "Nitrate", "limit": 10},
			map[string]any{"column": "Turbidity", "limit": 5},
		},
	})
	tbs := tablesOf(s)
	require.Len(t, tbs, 2)
	// Well: (50 + 40)/2; River: (150 + 80)/2
	assert.Equal(t, []string{"Well", "45.0", "Excellent", "Nitrate (50.0)"}, tbs[0].Rows[0])
	assert.Equal(t, []string{"River", "115.0", "Poor", "Nitrate (150.0)"}, tbs[0].Rows[1])
	assert.Equal(t, []string{"River", "150.0", "80.0"}, tbs[1].Rows[1])
	require.Len(t, s.Findings, 1)
	assert.Contains(t, s.Findings[0], "worst site River")
	require.Len(t, s.Charts, 1)
	assert.Len(t, s.Charts[0].RefLines, 3)

	_, err := RunAnalysis("wqi", testEnv(tbl), "", map[string]any{"site": "Site"})
	assert.ErrorContains(t, err, "standards")
}

func TestDrying(t *testing.T) {
	var rows [][]string
	for _, tray := range []string{"A", "B"} {
		k := 0.3
		if tray == "B" {
			k = 0.5
		}
		for h := 0; h <= 4; h++ {
			rows = append(rows, []string{tray, fmt.Sprint(h), fmt.Sprint(80 * math.Exp(-k*float64(h)))})
		}
	}
	tbl := dataset.NewTable("dryer", []string{"Tray", "Time (h)", "MC (%)"}, rows, dataset.Locale{})
	s := analyze(t, "drying", tbl, map[string]any{"time": "Time", "mc": "MC", "group": "Tray", "target": 30, "half_thickness": 0.01})
	tbs := tablesOf(s)
	require.Len(t, tbs, 2)
	require.Len(t, tbs[0].Rows, 2)
	assert.Equal(t, "A", tbs[0].Rows[0][0])
	assert.Equal(t, "80.00", tbs[0].Rows[0][1])
	assert.Len(t, tbs[0].Header, 6)
	assert.Len(t, tbs[1].Rows, 6)
	assert.Len(t, s.Findings, 2)
	require.Len(t, s.Charts, 3)
	assert.Len(t, s.Charts[0].Series, 2)
	assert.Equal(t, 30.0, s.Charts[0].RefLines[0].Value)
	for _, c := range s.Charts {
		require.NoError(t, c.Validate())
	}
}

func TestSieve(t *testing.T) {
	var rows [][]string
	for _, r := range []struct {
		cat string
		w   []string
	}{{"Coarse", []string{"40", "42", "38"}}, {"Medium", []string{"35", "33", "37"}}, {"Fine", []string{"25", "25", "25"}}} {
		for _, w := range r.w {
			rows = append(rows, []string{r.cat, w})
		}
	}
	tbl := dataset.NewTable("garri", []string{"Size", "Weight (g)"}, rows, dataset.Locale{})
	s := analyze(t, "sieve", tbl, map[string]any{"category": "Size", "weight": "Weight", "charge": 100})
	tb := tablesOf(s)[0]
	assert.Equal(t, []string{"Coarse", "3", "40.00", "2.00", "40.0"}, tb.Rows[0])
	assert.Contains(t, tb.Note, "weights in g")
	require.Len(t, s.Findings, 1)
	assert.Contains(t, s.Findings[0], "Coarse")
	require.Len(t, s.Charts, 2)
	stacked := s.Charts[1]
	assert.Equal(t, chart.StackedBar, stacked.Kind)
	assert.Equal(t, []string{"All samples"}, stacked.Categories)
	assert.Len(t, stacked.Series, 3)
	require.NoError(t, stacked.Validate())
}

func TestProfileAnalysis(t *testing.T) {
	tbl := kilnTable()
	s := analyze(t, "profile", tbl, map[string]any{"group_by": []any{"Kiln"}, "correlations": true})
	tbs := tablesOf(s)
	require.GreaterOrEqual(t, len(tbs), 1)
	assert.Len(t, tbs[0].Rows, 3)
	assert.Equal(t, "numeric", tbs[0].Rows[1][1])
	assert.Contains(t, paragraphs(s), "kiln has 9 rows and 3 columns")
	assert.Equal(t, "Strongest correlations", tbs[len(tbs)-1].Caption)
}

func TestTextAnalysis(t *testing.T) {
	s, err := RunAnalysis("text", testEnv(nil), "Notes", map[string]any{
		"text":    "First line\nwraps here.\n\nSecond paragraph.",
		"bullets": []any{"one", "two"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Notes", s.Title)
	require.Len(t, s.Blocks, 3)
	assert.Equal(t, "First line wraps here.", s.Blocks[0].(report.Paragraph).Text())
	assert.Equal(t, report.Bullets{Items: []string{"one", "two"}}, s.Blocks[2])

	_, err = RunAnalysis("text", testEnv(nil), "", map[string]any{})
	assert.Error(t, err)
}

func TestFormatting(t *testing.T) {
	assert.Equal(t, "NA", num(math.NaN(), 2))
	assert.Equal(t, "Inf", num(math.Inf(1), 2))
	assert.Equal(t, "1.50", num(1.5, 2))
	assert.Equal(t, "< 0.001", pval(1e-5))
	assert.Equal(t, "p < 0.001", pEq(1e-5))
	assert.Equal(t, "p = 0.042", pEq(0.042))
	assert.Equal(t, "1.2e-05", sci(1.2e-5, 2))
	assert.Equal(t, "2.50", sci(2.5, 2))
}
