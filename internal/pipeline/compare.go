package pipeline

import (
	"fmt"
	"math"
	"strings"

	"github.com/KaramelBytes/statloom-cli/internal/chart"
	"github.com/KaramelBytes/statloom-cli/internal/dataset"
	"github.com/KaramelBytes/statloom-cli/internal/stats"
)

func init() {
	register("describe", "descriptive statistics per variable, optionally by group", true, runDescribe)
	register("anova", "one-way ANOVA of one or more responses across factor levels", true, runANOVA)
	register("tukey", "Tukey HSD pairwise comparisons", true, runTukey)
	register("ttest", "one-sample, two-sample (Student/Welch) or paired t-test", true, runTTest)
	register("mannwhitney", "Mann-Whitney U test of two samples", true, runMannWhitney)
}

var summaryHeader = []string{"N", "Mean", "Median", "SD", "SE", "Min", "Max", "Range", "Q1", "Q3", "CV%"}

func summaryCells(s stats.Summary, d int) []string {
	return []string{
		fmt.Sprint(s.N), num(s.Mean, d), num(s.Median, d), num(s.Std, d), num(s.SE, d),
		num(s.Min, d), num(s.Max, d), num(s.Range, d), num(s.Q1, d), num(s.Q3, d), num(s.CV, 1),
	}
}

type describeParams struct {
	Columns []string `mapstructure:"columns"`
	By      string   `mapstructure:"by"`
	Charts  []string `mapstructure:"charts"` // box, histogram, bar
}

func runDescribe(env *Env, title string, params map[string]any) (*Section, error) {
	var p describeParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if p.Charts == nil {
		p.Charts = []string{"box"}
	}
	t := env.Table
	cols, err := numericColumns(t, p.Columns, p.By)
	if err != nil {
		return nil, err
	}
	s := newSection(orDefault(title, "Descriptive statistics"))
	d := env.Decimals

	var rows [][]string
	var highCV []string
	header := append([]string{"Variable"}, summaryHeader...)
	if p.By != "" {
		header = append([]string{"Variable", p.By}, summaryHeader...)
	}
	perVar := map[string][]stats.Group{}
	for _, c := range cols {
		if p.By == "" {
			sm := stats.Describe(c.Num)
			rows = append(rows, append([]string{c.Label()}, summaryCells(sm, d)...))
			if sm.CV > 30 {
				highCV = append(highCV, c.Label())
			}
			continue
		}
		gs, err := groupsOf(t, p.By, c.Name)
		if err != nil {
			return nil, err
		}
		perVar[c.Name] = gs
		for _, g := range gs {
			sm := stats.Describe(g.Values)
			rows = append(rows, append([]string{c.Label(), g.Name}, summaryCells(sm, d)...))
			if sm.CV > 30 {
				highCV = append(highCV, fmt.Sprintf("%s (%s)", c.Label(), g.Name))
			}
		}
	}
	s.para("Table below summarises %d variable(s) over %d observations of %s.", len(cols), t.Len(), t.Name)
	s.table("Descriptive statistics of "+t.Name, header, rows, "SD is the sample standard deviation; quartiles use linear interpolation.")
	if len(highCV) > 0 {
		s.para("Variability was high (CV above 30%%) for %s.", strings.Join(highCV, ", "))
	}

	for _, kind := range p.Charts {
		switch kind {
		case "box":
			if p.By == "" {
				spec := &chart.Spec{Name: "box", Kind: chart.Box, Title: "Distribution of " + t.Name, YLabel: "Value"}
				for _, c := range cols {
					spec.Series = append(spec.Series, chart.Series{Name: c.Label(), Y: c.Values()})
				}
				s.figure(env, spec)
				continue
			}
			for _, c := range cols {
				spec := &chart.Spec{Name: "box-" + c.Name, Kind: chart.Box, Title: fmt.Sprintf("%s by %s", c.Label(), p.By), XLabel: p.By, YLabel: c.Label()}
				for _, g := range perVar[c.Name] {
					spec.Series = append(spec.Series, chart.Series{Name: g.Name, Y: g.Values})
				}
				s.figure(env, spec)
			}
		case "histogram":
			for _, c := range cols {
				s.figure(env, &chart.Spec{Name: "hist-" + c.Name, Kind: chart.Histogram, Title: "Histogram of " + c.Label(), XLabel: c.Label(), YLabel: "Count",
					Series: []chart.Series{{Name: c.Label(), Y: c.Values()}}})
			}
		case "bar":
			if p.By == "" {
				spec := &chart.Spec{Name: "means", Kind: chart.Bar, Title: "Mean ± SD", YLabel: "Value"}
				sr := chart.Series{Name: "Mean"}
				for _, c := range cols {
					sm := stats.Describe(c.Num)
					spec.Categories = append(spec.Categories, c.Label())
					sr.Y = append(sr.Y, sm.Mean)
					sr.Err = append(sr.Err, sm.Std)
				}
				spec.Series = []chart.Series{sr}
				s.figure(env, spec)
				continue
			}
			for _, c := range cols {
				s.figure(env, meanBars("means-"+c.Name, fmt.Sprintf("Mean %s by %s (± SD)", c.Label(), p.By), p.By, c.Label(), perVar[c.Name], false))
			}
		default:
			return nil, fmt.Errorf("unknown chart %q (use box, histogram or bar)", kind)
		}
	}
	return s, nil
}

// meanBars charts group means with SD (or SE) error bars.
func meanBars(name, title, xlabel, ylabel string, gs []stats.Group, se bool) *chart.Spec {
	spec := &chart.Spec{Name: name, Kind: chart.Bar, Title: title, XLabel: xlabel, YLabel: ylabel}
	sr := chart.Series{Name: ylabel}
	for _, g := range gs {
		sm := stats.Describe(g.Values)
		spec.Categories = append(spec.Categories, g.Name)
		sr.Y = append(sr.Y, sm.Mean)
		if se {
			sr.Err = append(sr.Err, sm.SE)
		} else {
			sr.Err = append(sr.Err, sm.Std)
		}
	}
	spec.Series = []chart.Series{sr}
	return spec
}

func groupBoxes(name, title, xlabel, ylabel string, gs []stats.Group) *chart.Spec {
	spec := &chart.Spec{Name: name, Kind: chart.Box, Title: title, XLabel: xlabel, YLabel: ylabel}
	for _, g := range gs {
		spec.Series = append(spec.Series, chart.Series{Name: g.Name, Y: g.Values})
	}
	return spec
}

type anovaParams struct {
	Factor    string   `mapstructure:"factor"`
	Response  string   `mapstructure:"response"`
	Responses []string `mapstructure:"responses"`
	Groups    []string `mapstructure:"groups"`
	Chart     string   `mapstructure:"chart"` // bar (default), box, none
	Tukey     bool     `mapstructure:"tukey"`
}

func (p *anovaParams) responses(t *dataset.Table) ([]string, error) {
	if p.Factor == "" {
		return nil, fmt.Errorf("parameters: factor is required")
	}
	if p.Response != "" && len(p.Responses) > 0 {
		return nil, fmt.Errorf("parameters: use response or responses, not both")
	}
	if p.Response != "" {
		return []string{p.Response}, nil
	}
	if len(p.Responses) > 0 {
		return p.Responses, nil
	}
	cols, err := numericColumns(t, nil, p.Factor)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = c.Name
	}
	return out, nil
}

func (p *anovaParams) groups(t *dataset.Table, response string) ([]stats.Group, error) {
	gs, err := groupsOf(t, p.Factor, response)
	if err != nil {
		return nil, err
	}
	return pick(gs, p.Groups)
}

func runANOVA(env *Env, title string, params map[string]any) (*Section, error) {
	var p anovaParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	responses, err := p.responses(env.Table)
	if err != nil {
		return nil, err
	}
	s := newSection(orDefault(title, "Analysis of variance"))
	if len(responses) == 1 {
		if err := singleANOVA(env, s, &p, responses[0]); err != nil {
			return nil, err
		}
	} else if err := parameterANOVA(env, s, &p, responses); err != nil {
		return nil, err
	}
	return s, nil
}

func label(t *dataset.Table, name string) string {
	if c, err := t.Column(name); err == nil {
		return c.Label()
	}
	return name
}

func singleANOVA(env *Env, s *Section, p *anovaParams, response string) error {
	t, d := env.Table, env.Decimals
	gs, err := p.groups(t, response)
	if err != nil {
		return err
	}
	a, err := stats.OneWayANOVA(gs)
	if err != nil {
		return fmt.Errorf("anova of %s: %w", response, err)
	}
	resp := label(t, response)

	var rows [][]string
	for i, g := range gs {
		sm := stats.Describe(g.Values)
		rows = append(rows, []string{a.Groups[i], fmt.Sprint(sm.N), num(sm.Mean, d), num(sm.Std, d), num(sm.SE, d)})
	}
	s.table(fmt.Sprintf("Mean %s by %s", resp, p.Factor), []string{p.Factor, "N", "Mean", "SD", "SE"}, rows, "")
	s.table(fmt.Sprintf("One-way ANOVA of %s across %s", resp, p.Factor), []string{"Source", "SS", "df", "MS", "F", "p"}, [][]string{
		{"Between groups", num(a.SSBetween, d), fmt.Sprint(a.DFBetween), num(a.MSBetween, d), num(a.F, 2), pval(a.P)},
		{"Within groups", num(a.SSWithin, d), fmt.Sprint(a.DFWithin), num(a.MSWithin, d), "", ""},
		{"Total", num(a.SSTotal, d), fmt.Sprint(a.DFBetween + a.DFWithin), "", "", ""},
	}, fmt.Sprintf("η² = %s", num(a.EtaSquared, 3)))

	stat := fmt.Sprintf("F(%d, %d) = %s, %s", a.DFBetween, a.DFWithin, num(a.F, 2), pEq(a.P))
	if a.Significant(env.Alpha) {
		hi, lo := extremes(a)
		s.para("Mean %s differed significantly between %s levels (%s). The highest mean was recorded for %s and the lowest for %s.",
			resp, p.Factor, stat, a.Groups[hi], a.Groups[lo])
		s.finding("%s differed significantly across %s (%s); highest in %s.", resp, p.Factor, stat, a.Groups[hi])
	} else {
		s.para("No significant difference in mean %s was found between %s levels (%s).", resp, p.Factor, stat)
	}

	switch p.Chart {
	case "", "bar":
		s.figure(env, meanBars("anova-"+response, fmt.Sprintf("Mean %s by %s (± SE)", resp, p.Factor), p.Factor, resp, gs, true))
	case "box":
		s.figure(env, groupBoxes("anova-"+response, fmt.Sprintf("%s by %s", resp, p.Factor), p.Factor, resp, gs))
	case "none":
	default:
		return fmt.Errorf("unknown chart %q (use bar, box or none)", p.Chart)
	}
	if p.Tukey {
		return tukeyBlock(env, s, p.Factor, resp, gs)
	}
	return nil
}

func extremes(a *stats.ANOVA) (hi, lo int) {
	for i, m := range a.Means {
		if m > a.Means[hi] {
			hi = i
		}
		if m < a.Means[lo] {
			lo = i
		}
	}
	return hi, lo
}

func parameterANOVA(env *Env, s *Section, p *anovaParams, responses []string) error {
	t := env.Table
	groups := map[string][]stats.Group{}
	for _, r := range responses {
		gs, err := p.groups(t, r)
		if err != nil {
			return err
		}
		groups[r] = gs
	}
	res := stats.ANOVAByParameter(responses, groups)
	var rows [][]string
	var sig []string
	for _, r := range res {
		if r.Err != nil {
			rows = append(rows, []string{label(t, r.Parameter), "NA", "", "NA", "", r.Err.Error()})
			continue
		}
		a := r.Result
		ok := a.Significant(env.Alpha)
		rows = append(rows, []string{label(t, r.Parameter), num(a.F, 2), fmt.Sprintf("%d, %d", a.DFBetween, a.DFWithin), pval(a.P), num(a.EtaSquared, 3), yesNo(ok)})
		if ok {
			sig = append(sig, label(t, r.Parameter))
			s.finding("%s differed significantly across %s (F(%d, %d) = %s, %s).", label(t, r.Parameter), p.Factor, a.DFBetween, a.DFWithin, num(a.F, 2), pEq(a.P))
		}
	}
	s.table(fmt.Sprintf("One-way ANOVA of each parameter across %s", p.Factor), []string{"Parameter", "F", "df", "p", "η²", "Significant"}, rows,
		fmt.Sprintf("Significance at α = %s.", num(env.Alpha, 2)))
	if len(sig) > 0 {
		s.para("%d of %d parameters differed significantly across %s: %s.", len(sig), len(responses), p.Factor, strings.Join(sig, ", "))
	} else {
		s.para("None of the %d parameters differed significantly across %s at α = %s.", len(responses), p.Factor, num(env.Alpha, 2))
	}
	if p.Chart == "box" {
		for _, r := range responses {
			s.figure(env, groupBoxes("anova-"+r, fmt.Sprintf("%s by %s", label(t, r), p.Factor), p.Factor, label(t, r), groups[r]))
		}
	}
	if p.Tukey {
		for _, r := range tukeyTargets(res, env.Alpha) {
			if err := tukeyBlock(env, s, p.Factor, label(t, r), groups[r]); err != nil {
				return err
			}
		}
	}
	return nil
}

// maxTukeyParams bounds how many parameters get post-hoc tables.
const maxTukeyParams = 6

// tukeyTargets returns the first six significant parameters, or the six
// with the largest F when none is significant.
func tukeyTargets(res []stats.ParameterANOVA, alpha float64) []string {
	var out []string
	for _, r := range res {
		if r.Err == nil && r.Result.Significant(alpha) {
			out = append(out, r.Parameter)
		}
	}
	if len(out) == 0 {
		return stats.TopByF(res, maxTukeyParams)
	}
	if len(out) > maxTukeyParams {
		out = out[:maxTukeyParams]
	}
	return out
}

func tukeyBlock(env *Env, s *Section, factor, resp string, gs []stats.Group) error {
	tk, err := stats.TukeyHSD(gs, env.Alpha)
	if err != nil {
		return fmt.Errorf("tukey of %s: %w", resp, err)
	}
	d := env.Decimals
	rows := make([][]string, len(tk.Pairs))
	var sig []string
	for i, pr := range tk.Pairs {
		rows[i] = []string{pr.A, pr.B, num(pr.Diff, d), num(pr.Lower, d), num(pr.Upper, d), pval(pr.P), yesNo(pr.Reject)}
		if pr.Reject {
			sig = append(sig, fmt.Sprintf("%s vs %s", pr.A, pr.B))
		}
	}
	s.table(fmt.Sprintf("Tukey HSD comparisons of %s between %s levels", resp, factor),
		[]string{"Group 1", "Group 2", "Mean diff", "Lower", "Upper", "p-adj", "Reject"}, rows,
		fmt.Sprintf("Mean diff is group 2 minus group 1; family-wise α = %s.", num(tk.Alpha, 2)))
	if len(sig) > 0 {
		s.para("For %s, Tukey's test separated %s.", resp, strings.Join(sig, "; "))
		s.finding("Tukey HSD for %s: significant pairs %s.", resp, strings.Join(sig, "; "))
	} else {
		s.para("For %s, no pair of %s levels differed significantly in Tukey's test.", resp, factor)
	}
	return nil
}

func runTukey(env *Env, title string, params map[string]any) (*Section, error) {
	var p anovaParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if p.Chart != "" || p.Tukey {
		return nil, fmt.Errorf("parameters: chart and tukey do not apply to a tukey analysis")
	}
	responses, err := p.responses(env.Table)
	if err != nil {
		return nil, err
	}
	s := newSection(orDefault(title, "Pairwise comparisons (Tukey HSD)"))
	groups := map[string][]stats.Group{}
	for _, r := range responses {
		gs, err := p.groups(env.Table, r)
		if err != nil {
			return nil, err
		}
		groups[r] = gs
	}
	targets := responses
	if len(responses) > 1 {
		res := stats.ANOVAByParameter(responses, groups)
		targets = tukeyTargets(res, env.Alpha)
		if len(targets) > 0 && !res[indexOf(responses, targets[0])].Result.Significant(env.Alpha) {
			s.para("No parameter differed significantly in the ANOVA; the %d parameters with the largest F are compared instead.", len(targets))
		}
	}
	for _, r := range targets {
		if err := tukeyBlock(env, s, p.Factor, label(env.Table, r), groups[r]); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func indexOf(xs []string, x string) int {
	for i, v := range xs {
		if v == x {
			return i
		}
	}
	return -1
}

type twoSampleParams struct {
	Kind        string   `mapstructure:"kind"` // one-sample, student, welch, paired
	Column      string   `mapstructure:"column"`
	Mu          float64  `mapstructure:"mu"`
	Factor      string   `mapstructure:"factor"`
	Response    string   `mapstructure:"response"`
	Groups      []string `mapstructure:"groups"`
	X           string   `mapstructure:"x"`
	Y           string   `mapstructure:"y"`
	Alternative string   `mapstructure:"alternative"`
}

type sample struct {
	name   string
	values []float64
}

// samples selects two columns (x, y) or two levels of factor in response.
func (p *twoSampleParams) samples(t *dataset.Table) (sample, sample, error) {
	switch {
	case p.X != "" && p.Y != "":
		x, err := t.Numeric(p.X)
		if err != nil {
			return sample{}, sample{}, err
		}
		y, err := t.Numeric(p.Y)
		if err != nil {
			return sample{}, sample{}, err
		}
		return sample{x.Label(), x.Num}, sample{y.Label(), y.Num}, nil
	case p.Factor != "" && p.Response != "":
		gs, err := groupsOf(t, p.Factor, p.Response)
		if err != nil {
			return sample{}, sample{}, err
		}
		if gs, err = pick(gs, p.Groups); err != nil {
			return sample{}, sample{}, err
		}
		if len(gs) != 2 {
			return sample{}, sample{}, fmt.Errorf("%s has %d levels; choose two with groups", p.Factor, len(gs))
		}
		return sample{gs[0].Name, gs[0].Values}, sample{gs[1].Name, gs[1].Values}, nil
	}
	return sample{}, sample{}, fmt.Errorf("parameters: give x and y columns, or factor and response")
}

func runTTest(env *Env, title string, params map[string]any) (*Section, error) {
	var p twoSampleParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	alt, err := stats.ParseAlternative(p.Alternative)
	if err != nil {
		return nil, err
	}
	t, d := env.Table, env.Decimals
	if p.Kind == "" {
		p.Kind = "welch"
		if p.Column != "" {
			p.Kind = "one-sample"
		}
	}
	s := newSection(orDefault(title, "t-test"))
	var (
		res        *stats.TTest
		what, resp string
		a, b       sample
		fig        *chart.Spec
	)
	switch p.Kind {
	case "one-sample":
		c, err := t.Numeric(p.Column)
		if err != nil {
			return nil, err
		}
		if res, err = stats.OneSampleT(c.Num, p.Mu, alt); err != nil {
			return nil, err
		}
		resp = c.Label()
		what = fmt.Sprintf("the mean %s (%s) against %s", resp, num(res.Mean1, d), num(p.Mu, d))
		fig = &chart.Spec{Name: "ttest-" + c.Name, Kind: chart.Box, Title: fmt.Sprintf("%s against μ0 = %s", resp, num(p.Mu, d)), YLabel: resp,
			Series: []chart.Series{{Name: resp, Y: c.Values()}}, RefLines: []chart.RefLine{{Name: "μ0", Value: p.Mu}}}
	case "student", "welch", "paired":
		if a, b, err = p.samples(t); err != nil {
			return nil, err
		}
		if p.Kind == "paired" {
			res, err = stats.PairedT(a.values, b.values, p.Mu, alt)
		} else {
			res, err = stats.TwoSampleT(a.values, b.values, p.Kind == "welch", alt)
		}
		if err != nil {
			return nil, err
		}
		resp = orDefault(label(t, p.Response), "values")
		what = fmt.Sprintf("%s (mean %s) and %s (mean %s)", a.name, num(res.Mean1, d), b.name, num(res.Mean2, d))
		fig = meanBars("ttest-"+a.name+"-"+b.name, fmt.Sprintf("%s vs %s (± SE)", a.name, b.name), p.Factor, resp,
			[]stats.Group{{Name: a.name, Values: a.values}, {Name: b.name, Values: b.values}}, true)
	default:
		return nil, fmt.Errorf("unknown t-test kind %q (use one-sample, student, welch or paired)", p.Kind)
	}

	n := fmt.Sprint(res.N1)
	if res.N2 > 0 {
		n = fmt.Sprintf("%d, %d", res.N1, res.N2)
	}
	s.table(fmt.Sprintf("%s t-test (%s)", strings.ToUpper(p.Kind[:1])+p.Kind[1:], alt),
		[]string{"Comparison", "n", "t", "df", "p"},
		[][]string{{what, n, num(res.T, 3), num(res.DF, 2), pval(res.P)}}, "")
	stat := fmt.Sprintf("t(%s) = %s, %s", num(res.DF, 1), num(res.T, 2), pEq(res.P))
	if res.P < env.Alpha {
		s.para("The test comparing %s was significant (%s).", what, stat)
		s.finding("%s t-test: %s differ significantly (%s).", p.Kind, strings.TrimPrefix(what, "the "), stat)
	} else {
		s.para("The test comparing %s was not significant (%s).", what, stat)
	}
	s.figure(env, fig)
	return s, nil
}

func runMannWhitney(env *Env, title string, params map[string]any) (*Section, error) {
	var p twoSampleParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if p.Kind != "" || p.Column != "" || p.Mu != 0 {
		return nil, fmt.Errorf("parameters: kind, column and mu do not apply to mannwhitney")
	}
	alt, err := stats.ParseAlternative(p.Alternative)
	if err != nil {
		return nil, err
	}
	a, b, err := p.samples(env.Table)
	if err != nil {
		return nil, err
	}
	res, err := stats.MannWhitneyU(a.values, b.values, alt)
	if err != nil {
		return nil, err
	}
	d := env.Decimals
	ma, mb := stats.Describe(a.values).Median, stats.Describe(b.values).Median
	s := newSection(orDefault(title, "Mann-Whitney U test"))
	s.table(fmt.Sprintf("Mann-Whitney U test (%s)", alt), []string{"Sample", "n", "Median"}, [][]string{
		{a.name, fmt.Sprint(res.N1), num(ma, d)},
		{b.name, fmt.Sprint(res.N2), num(mb, d)},
	}, fmt.Sprintf("U = %s, %s", num(res.U, 1), pEq(res.P)))
	if res.P < env.Alpha {
		s.para("The distributions of %s and %s differed (U = %s, %s).", a.name, b.name, num(res.U, 1), pEq(res.P))
		s.finding("Mann-Whitney: %s and %s differ (U = %s, %s).", a.name, b.name, num(res.U, 1), pEq(res.P))
	} else {
		s.para("No difference between %s and %s was detected (U = %s, %s).", a.name, b.name, num(res.U, 1), pEq(res.P))
	}
	s.figure(env, groupBoxes("mw-"+a.name+"-"+b.name, fmt.Sprintf("%s vs %s", a.name, b.name), "", orDefault(label(env.Table, p.Response), "Value"),
		[]stats.Group{{Name: a.name, Values: a.values}, {Name: b.name, Values: b.values}}))
	if math.IsNaN(res.P) {
		s.para("The p-value could not be computed for these samples.")
	}
	return s, nil
}
