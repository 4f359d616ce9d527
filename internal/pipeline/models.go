package pipeline

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/KaramelBytes/statloom-cli/internal/chart"
	"github.com/KaramelBytes/statloom-cli/internal/dataset"
	"github.com/KaramelBytes/statloom-cli/internal/stats"
)

func init() {
	register("regression", "simple linear regression of y on x", true, runRegression)
	register("ols", "multiple regression with linear, interaction or quadratic terms", true, runOLS)
	register("rsm", "second-order response surface with optimum search", true, runRSM)
	register("pca", "principal component analysis of standardised variables", true, runPCA)
	register("correlation", "Pearson correlation matrix with significance", true, runCorrelation)
}

type regressionParams struct {
	X string `mapstructure:"x"`
	Y string `mapstructure:"y"`
}

func runRegression(env *Env, title string, params map[string]any) (*Section, error) {
	var p regressionParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if p.X == "" || p.Y == "" {
		return nil, fmt.Errorf("parameters: x and y are required")
	}
	t, d := env.Table, env.Decimals
	xc, err := t.Numeric(p.X)
	if err != nil {
		return nil, err
	}
	yc, err := t.Numeric(p.Y)
	if err != nil {
		return nil, err
	}
	lr, err := stats.LinearRegression(xc.Num, yc.Num)
	if err != nil {
		return nil, fmt.Errorf("regress %s on %s: %w", p.Y, p.X, err)
	}
	s := newSection(orDefault(title, fmt.Sprintf("Regression of %s on %s", p.Y, p.X)))
	s.table(fmt.Sprintf("Linear regression of %s on %s", yc.Label(), xc.Label()),
		[]string{"Term", "Estimate", "SE"},
		[][]string{
			{"Intercept", sci(lr.Intercept, d), sci(lr.InterceptSE, d)},
			{xc.Name, sci(lr.Slope, d), sci(lr.SlopeSE, d)},
		},
		fmt.Sprintf("n = %d, r = %s, R² = %s, residual SE = %s, %s (slope).", lr.N, num(lr.R, 3), num(lr.R2, 3), num(lr.ResidualStdErr, d), pEq(lr.P)))
	eq := fmt.Sprintf("%s = %s %s %s × %s", p.Y, sci(lr.Intercept, d), signOf(lr.Slope), sci(math.Abs(lr.Slope), d), p.X)
	if lr.P < env.Alpha {
		s.para("%s %s with increasing %s (%s, R² = %s, %s).", yc.Label(), direction(lr.Slope), xc.Label(), eq, num(lr.R2, 3), pEq(lr.P))
		s.finding("%s is linearly related to %s (R² = %s, %s).", yc.Label(), xc.Label(), num(lr.R2, 3), pEq(lr.P))
	} else {
		s.para("No significant linear relation between %s and %s was found (R² = %s, %s).", yc.Label(), xc.Label(), num(lr.R2, 3), pEq(lr.P))
	}

	var xs, ys []float64
	for i := range xc.Num {
		if !math.IsNaN(xc.Num[i]) && !math.IsNaN(yc.Num[i]) {
			xs = append(xs, xc.Num[i])
			ys = append(ys, yc.Num[i])
		}
	}
	lo, hi := span(xs)
	s.figure(env, &chart.Spec{Name: "regression-" + p.Y + "-" + p.X, Kind: chart.Fit, Title: fmt.Sprintf("%s against %s", yc.Label(), xc.Label()),
		XLabel: xc.Label(), YLabel: yc.Label(), Series: []chart.Series{
			{Name: "Observed", X: xs, Y: ys},
			{Name: fmt.Sprintf("Fit (R² = %s)", num(lr.R2, 3)), X: []float64{lo, hi}, Y: []float64{lr.Predict(lo), lr.Predict(hi)}},
		}})
	return s, nil
}

func direction(slope float64) string {
	if slope < 0 {
		return "decreased"
	}
	return "increased"
}

func signOf(x float64) string {
	if x < 0 {
		return "−"
	}
	return "+"
}

func span(xs []float64) (lo, hi float64) {
	lo, hi = math.Inf(1), math.Inf(-1)
	for _, v := range xs {
		lo, hi = math.Min(lo, v), math.Max(hi, v)
	}
	return lo, hi
}

type olsParams struct {
	Response    string   `mapstructure:"response"`
	Terms       []string `mapstructure:"terms"`
	Model       string   `mapstructure:"model"`
	Categorical string   `mapstructure:"categorical"`
}

func runOLS(env *Env, title string, params map[string]any) (*Section, error) {
	var p olsParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if p.Response == "" {
		return nil, fmt.Errorf("parameters: response is required")
	}
	t := env.Table
	yc, err := t.Numeric(p.Response)
	if err != nil {
		return nil, err
	}
	var fit *stats.OLS
	var what string
	switch {
	case p.Categorical != "":
		if len(p.Terms) > 0 || p.Model != "" {
			return nil, fmt.Errorf("parameters: categorical cannot be combined with terms or model")
		}
		if fit, err = fitCategorical(t, p.Categorical, yc); err != nil {
			return nil, err
		}
		what = fmt.Sprintf("%s on the levels of %s", p.Response, p.Categorical)
	default:
		kind, err := stats.ParseModelKind(p.Model)
		if err != nil {
			return nil, err
		}
		cols, err := numericColumns(t, p.Terms, p.Response)
		if err != nil {
			return nil, err
		}
		m := stats.Model{Kind: kind}
		xs := make([][]float64, len(cols))
		for i, c := range cols {
			m.Factors = append(m.Factors, c.Name)
			xs[i] = c.Num
		}
		if fit, err = stats.FitModel(m, xs, yc.Num); err != nil {
			return nil, fmt.Errorf("fit %s model of %s: %w", kind, p.Response, err)
		}
		what = fmt.Sprintf("%s on %s (%s model)", p.Response, strings.Join(m.Factors, ", "), kind)
	}
	s := newSection(orDefault(title, "Regression model of "+p.Response))
	olsTables(env, s, fit, "Regression of "+what)
	observedVsFitted(env, s, fit, yc.Label())
	return s, nil
}

func fitCategorical(t *dataset.Table, factor string, yc *dataset.Column) (*stats.OLS, error) {
	fc, err := t.Column(factor)
	if err != nil {
		return nil, err
	}
	var labels []string
	var y []float64
	for i, l := range fc.Raw {
		if l == "" || math.IsNaN(yc.Num[i]) {
			continue
		}
		labels = append(labels, l)
		y = append(y, yc.Num[i])
	}
	names, X, _ := stats.OneHot(factor, labels)
	fit, err := stats.FitOLS(names, X, y)
	if err != nil {
		return nil, fmt.Errorf("fit %s on %s: %w", yc.Name, factor, err)
	}
	return fit, nil
}

// olsTables adds the coefficient and ANOVA tables of a fit with a summary
// paragraph, recording significant terms as findings.
func olsTables(env *Env, s *Section, fit *stats.OLS, caption string) {
	d := env.Decimals
	rows := make([][]string, len(fit.Coefficients))
	var sig []string
	for i, c := range fit.Coefficients {
		rows[i] = []string{c.Term, sci(c.Estimate, d), sci(c.SE, d), num(c.T, 2), pval(c.P)}
		if c.Term != "Intercept" && c.P < env.Alpha {
			sig = append(sig, c.Term)
		}
	}
	s.table(caption, []string{"Term", "Estimate", "SE", "t", "p"}, rows,
		fmt.Sprintf("n = %d, R² = %s, adjusted R² = %s, RMSE = %s.", fit.N, num(fit.R2, 3), num(fit.AdjR2, 3), num(fit.RMSE, d)))
	arows := make([][]string, len(fit.Table))
	for i, r := range fit.Table {
		f, pv := num(r.F, 2), pval(r.P)
		if math.IsNaN(r.F) {
			f, pv = "", ""
		}
		arows[i] = []string{r.Source, fmt.Sprint(r.DF), num(r.SS, d), num(r.MS, d), f, pv}
	}
	s.table("Analysis of variance for the fitted model", []string{"Source", "df", "SS", "MS", "F", "p"}, arows, "")
	stat := fmt.Sprintf("F = %s, %s, R² = %s", num(fit.F, 2), pEq(fit.P), num(fit.R2, 3))
	if fit.P < env.Alpha {
		s.para("The model was significant (%s) and explained %s%% of the variation in the response.", stat, num(100*fit.R2, 1))
		s.finding("%s: model significant (%s).", strings.TrimPrefix(caption, "Regression of "), stat)
	} else {
		s.para("The model was not significant (%s).", stat)
	}
	if len(sig) > 0 {
		s.para("Significant terms at α = %s: %s.", num(env.Alpha, 2), strings.Join(sig, ", "))
	}
}

func observedVsFitted(env *Env, s *Section, fit *stats.OLS, resp string) {
	lo, hi := span(append(append([]float64{}, fit.Y...), fit.Fitted...))
	s.figure(env, &chart.Spec{Name: "fitted-" + resp, Kind: chart.Fit, Title: "Observed against predicted " + resp,
		XLabel: "Predicted", YLabel: "Observed", Series: []chart.Series{
			{Name: "Runs", X: fit.Fitted, Y: fit.Y},
			{Name: "1:1", X: []float64{lo, hi}, Y: []float64{lo, hi}},
		}})
}

type rsmFactor struct {
	Name   string  `mapstructure:"name"`
	Center float64 `mapstructure:"center"`
	Step   float64 `mapstructure:"step"`
	Unit   string  `mapstructure:"unit"`
}

type rsmParams struct {
	Factors  []rsmFactor `mapstructure:"factors"`
	Response string      `mapstructure:"response"`
	Coded    bool        `mapstructure:"coded"`
	Bound    float64     `mapstructure:"bound"`
	Minimize bool        `mapstructure:"minimize"`
	Surface  []string    `mapstructure:"surface"`
	Hold     float64     `mapstructure:"hold"`
}

func runRSM(env *Env, title string, params map[string]any) (*Section, error) {
	var p rsmParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if p.Response == "" || len(p.Factors) == 0 {
		return nil, fmt.Errorf("parameters: response and factors are required")
	}
	t, d := env.Table, env.Decimals
	yc, err := t.Numeric(p.Response)
	if err != nil {
		return nil, err
	}
	factors := make([]stats.Factor, len(p.Factors))
	cols := make([][]float64, len(p.Factors))
	for i, f := range p.Factors {
		c, err := t.Numeric(f.Name)
		if err != nil {
			return nil, err
		}
		factors[i] = stats.Factor{Name: f.Name, Center: f.Center, Step: f.Step, Unit: orDefault(f.Unit, c.Unit)}
		cols[i] = c.Num
	}
	r, err := stats.FitRSM(factors, cols, yc.Num, stats.RSMOptions{Bound: p.Bound, Minimize: p.Minimize, CodedInput: p.Coded})
	if err != nil {
		return nil, fmt.Errorf("response surface of %s: %w", p.Response, err)
	}

	s := newSection(orDefault(title, "Response surface of "+p.Response))
	s.para("A second-order model was fitted to %s over %d factor(s) in coded units (coded = (actual − centre)/step).", yc.Label(), len(factors))
	olsTables(env, s, r.Fit, "Regression of "+p.Response+" on coded factors")

	goal := "maximum"
	if !r.Maximize {
		goal = "minimum"
	}
	var rows [][]string
	var parts []string
	for i, f := range factors {
		rows = append(rows, []string{f.Name, num(r.Optimum.Coded[i], 3), num(r.Optimum.Actual[i], d), f.Unit})
		parts = append(parts, strings.TrimSpace(fmt.Sprintf("%s = %s %s", f.Name, num(r.Optimum.Actual[i], d), f.Unit)))
	}
	s.table(fmt.Sprintf("Predicted %s of %s within ±%s coded units", goal, p.Response, num(r.Bound, 1)),
		[]string{"Factor", "Coded", "Actual", "Unit"}, rows, fmt.Sprintf("Predicted %s: %s.", p.Response, num(r.Optimum.Predicted, d)))
	s.para("The predicted %s of %s (%s) occurs at %s.", goal, p.Response, num(r.Optimum.Predicted, d), strings.Join(parts, ", "))
	s.finding("Response surface: %s of %s predicted at %s (%s).", goal, p.Response, strings.Join(parts, ", "), num(r.Optimum.Predicted, d))

	if len(factors) >= 2 {
		i, j := 0, 1
		if len(p.Surface) > 0 {
			if len(p.Surface) != 2 {
				return nil, fmt.Errorf("parameters: surface names two factors")
			}
			i, j = factorIndex(factors, p.Surface[0]), factorIndex(factors, p.Surface[1])
		}
		g, err := r.Surface(i, j, 25, p.Hold)
		if err != nil {
			return nil, err
		}
		for k := range g.X {
			g.X[k] = factors[i].Actual(g.X[k])
		}
		for k := range g.Y {
			g.Y[k] = factors[j].Actual(g.Y[k])
		}
		s.figure(env, &chart.Spec{Name: "surface-" + p.Response, Kind: chart.Contour,
			Title:  fmt.Sprintf("Predicted %s over %s and %s", p.Response, g.XName, g.YName),
			XLabel: axisLabel(factors[i]), YLabel: axisLabel(factors[j]),
			Grid: &chart.Grid{X: g.X, Y: g.Y, Z: g.Z}})
	}
	observedVsFitted(env, s, r.Fit, yc.Label())
	return s, nil
}

func factorIndex(fs []stats.Factor, name string) int {
	for i, f := range fs {
		if f.Name == name {
			return i
		}
	}
	return -1
}

func axisLabel(f stats.Factor) string {
	if f.Unit == "" {
		return f.Name
	}
	return fmt.Sprintf("%s (%s)", f.Name, f.Unit)
}

type pcaParams struct {
	Columns    []string `mapstructure:"columns"`
	Components int      `mapstructure:"components"`
	Label      string   `mapstructure:"label"`
	Transpose  bool     `mapstructure:"transpose"`
}

func runPCA(env *Env, title string, params map[string]any) (*Section, error) {
	var p pcaParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if p.Components <= 0 {
		p.Components = 2
	}
	t, d := env.Table, env.Decimals
	cols, err := numericColumns(t, p.Columns, p.Label)
	if err != nil {
		return nil, err
	}
	rowLabels := make([]string, t.Len())
	for i := range rowLabels {
		rowLabels[i] = fmt.Sprint(i + 1)
	}
	if p.Label != "" {
		lc, err := t.Column(p.Label)
		if err != nil {
			return nil, err
		}
		copy(rowLabels, lc.Raw)
	}

	vars := make([]string, len(cols))
	data := make([][]float64, len(cols))
	for i, c := range cols {
		vars[i], data[i] = c.Name, c.Num
	}
	obs := rowLabels
	if p.Transpose {
		// rows become variables and columns become observations
		tv := make([][]float64, t.Len())
		for r := range tv {
			tv[r] = make([]float64, len(cols))
			for j, c := range cols {
				tv[r][j] = c.Num[r]
			}
		}
		vars, data, obs = rowLabels, tv, vars
	}
	res, err := stats.PCA(vars, data, p.Components)
	if err != nil {
		return nil, fmt.Errorf("pca: %w", err)
	}
	nc := len(res.Variances)

	s := newSection(orDefault(title, "Principal component analysis"))
	var rows [][]string
	cum := 0.0
	for c := 0; c < nc; c++ {
		cum += res.Explained[c]
		rows = append(rows, []string{fmt.Sprintf("PC%d", c+1), num(res.Variances[c], d), num(100*res.Explained[c], 1), num(100*cum, 1)})
	}
	s.table("Variance explained by the principal components", []string{"Component", "Eigenvalue", "Explained (%)", "Cumulative (%)"}, rows,
		fmt.Sprintf("%d variables standardised to unit variance; %d complete observations.", len(res.Variables), len(res.Rows)))

	header := []string{"Variable"}
	for c := 0; c < nc; c++ {
		header = append(header, fmt.Sprintf("PC%d", c+1))
	}
	rows = nil
	for v, name := range res.Variables {
		row := []string{name}
		for c := 0; c < nc; c++ {
			row = append(row, num(res.Loadings[v][c], 3))
		}
		rows = append(rows, row)
	}
	s.table("Component loadings", header, rows, "")

	top := topLoadings(res, 0, 3)
	s.para("The first component explained %s%% of the total variance and was dominated by %s.", num(100*res.Explained[0], 1), strings.Join(top, ", "))
	if nc >= 2 {
		two := 100 * (res.Explained[0] + res.Explained[1])
		s.finding("PCA: the first two components explain %s%% of the variance; PC1 is driven by %s.", num(two, 1), strings.Join(top, ", "))
		sr := chart.Series{Name: "Scores"}
		for r, i := range res.Rows {
			sr.X = append(sr.X, res.Scores[r][0])
			sr.Y = append(sr.Y, res.Scores[r][1])
			sr.Labels = append(sr.Labels, obs[i])
		}
		s.figure(env, &chart.Spec{Name: "pca-scores", Kind: chart.Scatter, Title: "Scores on the first two principal components",
			XLabel: fmt.Sprintf("PC1 (%s%%)", num(100*res.Explained[0], 1)), YLabel: fmt.Sprintf("PC2 (%s%%)", num(100*res.Explained[1], 1)),
			Series: []chart.Series{sr}})
	} else {
		s.finding("PCA: the first component explains %s%% of the variance.", num(100*res.Explained[0], 1))
	}
	return s, nil
}

// topLoadings names the n variables with the largest absolute loading on c.
func topLoadings(res *stats.PCAResult, c, n int) []string {
	idx := make([]int, len(res.Variables))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return math.Abs(res.Loadings[idx[a]][c]) > math.Abs(res.Loadings[idx[b]][c])
	})
	if len(idx) > n {
		idx = idx[:n]
	}
	out := make([]string, len(idx))
	for i, v := range idx {
		out[i] = fmt.Sprintf("%s (%s)", res.Variables[v], num(res.Loadings[v][c], 2))
	}
	return out
}

type correlationParams struct {
	Columns []string `mapstructure:"columns"`
	Top     int      `mapstructure:"top"`
}

func runCorrelation(env *Env, title string, params map[string]any) (*Section, error) {
	var p correlationParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if p.Top <= 0 {
		p.Top = 10
	}
	cols, err := numericColumns(env.Table, p.Columns)
	if err != nil {
		return nil, err
	}
	if len(cols) < 2 {
		return nil, fmt.Errorf("correlation needs at least two numeric columns")
	}
	names := make([]string, len(cols))
	data := make([][]float64, len(cols))
	for i, c := range cols {
		names[i], data[i] = c.Name, c.Num
	}
	m, err := stats.Correlations(names, data)
	if err != nil {
		return nil, fmt.Errorf("correlation: %w", err)
	}
	s := newSection(orDefault(title, "Correlation analysis"))
	var rows [][]string
	var sig []string
	for i, c := range m.Pairs {
		ok := c.P < env.Alpha
		if ok {
			sig = append(sig, fmt.Sprintf("%s and %s (r = %s)", c.A, c.B, num(c.R, 2)))
		}
		if i < p.Top {
			rows = append(rows, []string{c.A, c.B, num(c.R, 3), pval(c.P), fmt.Sprint(c.N), yesNo(ok)})
		}
	}
	s.table(fmt.Sprintf("Strongest Pearson correlations (top %d by |r|)", min(p.Top, len(m.Pairs))),
		[]string{"Variable 1", "Variable 2", "r", "p", "n", "Significant"}, rows, "")
	if len(sig) > 0 {
		s.para("%d of %d pairs were significantly correlated at α = %s.", len(sig), len(m.Pairs), num(env.Alpha, 2))
		s.finding("Significant correlations: %s.", strings.Join(sig[:min(len(sig), 5)], "; "))
	} else {
		s.para("No pair of variables was significantly correlated at α = %s.", num(env.Alpha, 2))
	}
	idx := make([]float64, len(names))
	for i := range idx {
		idx[i] = float64(i)
	}
	s.figure(env, &chart.Spec{Name: "correlation", Kind: chart.Heatmap, Title: "Pearson correlation matrix",
		Categories: names, Grid: &chart.Grid{X: idx, Y: idx, Z: m.Values}})
	return s, nil
}
