package pipeline

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/KaramelBytes/statloom-cli/internal/chart"
	"github.com/KaramelBytes/statloom-cli/internal/dataset"
	"github.com/KaramelBytes/statloom-cli/internal/profile"
	"github.com/KaramelBytes/statloom-cli/internal/report"
	"github.com/KaramelBytes/statloom-cli/internal/stats"
)

func init() {
	register("wqi", "water quality index per site against guideline limits", true, runWQI)
	register("drying", "drying kinetics: rates, moisture ratio, thin-layer models, Deff", true, runDrying)
	register("sieve", "particle size distribution from replicated sieve weights", true, runSieve)
	register("profile", "dataset screening: schema, missing values, outliers", true, runProfile)
	register("text", "free text and bullet points", false, runText)
}

type wqiStandard struct {
	Column string  `mapstructure:"column"`
	Limit  float64 `mapstructure:"limit"`
	Ideal  float64 `mapstructure:"ideal"`
}

type wqiParams struct {
	Site      string        `mapstructure:"site"`
	Standards []wqiStandard `mapstructure:"standards"`
	Method    string        `mapstructure:"method"`
}

func runWQI(env *Env, title string, params map[string]any) (*Section, error) {
	var p wqiParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if len(p.Standards) == 0 {
		return nil, fmt.Errorf("parameters: standards are required")
	}
	method, err := stats.ParseWQIMethod(p.Method)
	if err != nil {
		return nil, err
	}
	t := env.Table
	stds := make([]stats.Standard, len(p.Standards))
	cols := make([]*dataset.Column, len(p.Standards))
	for i, sd := range p.Standards {
		if cols[i], err = t.Numeric(sd.Column); err != nil {
			return nil, err
		}
		stds[i] = stats.Standard{Parameter: sd.Column, Limit: sd.Limit, Ideal: sd.Ideal}
	}
	sites, idx, err := siteRows(t, p.Site)
	if err != nil {
		return nil, err
	}

	var results []*stats.WQI
	for k, site := range sites {
		vals := make([]float64, len(cols))
		for j, c := range cols {
			vs := make([]float64, 0, len(idx[k]))
			for _, i := range idx[k] {
				vs = append(vs, c.Num[i])
			}
			vals[j] = stats.Describe(vs).Mean
		}
		w, err := stats.WaterQualityIndex(site, vals, stds, method)
		if err != nil {
			return nil, err
		}
		results = append(results, w)
	}

	s := newSection(orDefault(title, "Water quality index"))
	limits := make([]string, len(stds))
	for i, sd := range stds {
		limits[i] = fmt.Sprintf("%s ≤ %s", sd.Parameter, num(sd.Limit, 2))
	}
	s.para("The %s water quality index was computed for %d site(s) against the limits %s. Values are site means.",
		method, len(results), strings.Join(limits, ", "))

	header := []string{"Site", "WQI", "Category", "Largest sub-index"}
	var rows [][]string
	counts := map[string]int{}
	worst := results[0]
	bar := chart.Series{Name: "WQI"}
	var cats []string
	for _, w := range results {
		top := w.Subs[0]
		for _, sub := range w.Subs {
			if sub.Q > top.Q {
				top = sub
			}
		}
		rows = append(rows, []string{w.Site, num(w.Index, 1), w.Category, fmt.Sprintf("%s (%s)", top.Parameter, num(top.Q, 1))})
		counts[w.Category]++
		if w.Index > worst.Index {
			worst = w
		}
		cats = append(cats, w.Site)
		bar.Y = append(bar.Y, w.Index)
	}
	s.table("Water quality index by site", header, rows, "Categories: ≤ 50 excellent, ≤ 100 good, ≤ 200 poor, above 200 very poor.")

	subHeader := append([]string{"Site"}, paramNames(stds)...)
	rows = nil
	for _, w := range results {
		row := []string{w.Site}
		q := map[string]float64{}
		for _, sub := range w.Subs {
			q[sub.Parameter] = sub.Q
		}
		for _, sd := range stds {
			if v, ok := q[sd.Parameter]; ok {
				row = append(row, num(v, 1))
			} else {
				row = append(row, "NA")
			}
		}
		rows = append(rows, row)
	}
	s.table("Sub-indices (q) per parameter", subHeader, rows, "")

	var summary []string
	for _, c := range []string{"Excellent", "Good", "Poor", "Very Poor", "Unclassified"} {
		if counts[c] > 0 {
			summary = append(summary, fmt.Sprintf("%d %s", counts[c], strings.ToLower(c)))
		}
	}
	s.para("Sites were classified as %s. The highest index was %s at %s (%s).", strings.Join(summary, ", "), num(worst.Index, 1), worst.Site, strings.ToLower(worst.Category))
	s.finding("WQI: %s; worst site %s (%s, %s).", strings.Join(summary, ", "), worst.Site, num(worst.Index, 1), strings.ToLower(worst.Category))
	s.figure(env, &chart.Spec{Name: "wqi", Kind: chart.Bar, Title: "Water quality index by site", XLabel: orDefault(p.Site, "Site"), YLabel: "WQI",
		Categories: cats, Series: []chart.Series{bar},
		RefLines: []chart.RefLine{{Name: "Excellent", Value: 50}, {Name: "Good", Value: 100}, {Name: "Poor", Value: 200}}})
	return s, nil
}

// siteRows groups rows by the site column, or treats every row as its own
// site ("1", "2", ...) when site is empty.
func siteRows(t *dataset.Table, site string) ([]string, [][]int, error) {
	if site == "" {
		names := make([]string, t.Len())
		idx := make([][]int, t.Len())
		for i := range names {
			names[i] = fmt.Sprint(i + 1)
			idx[i] = []int{i}
		}
		return names, idx, nil
	}
	keys, idx, err := t.GroupIndex(site)
	if err != nil {
		return nil, nil, err
	}
	var outK []string
	var outI [][]int
	for i, k := range keys {
		if k != "" {
			outK = append(outK, k)
			outI = append(outI, idx[i])
		}
	}
	return outK, outI, nil
}

func paramNames(stds []stats.Standard) []string {
	out := make([]string, len(stds))
	for i, s := range stds {
		out[i] = s.Parameter
	}
	return out
}

type dryingParams struct {
	Time           string  `mapstructure:"time"`
	MC             string  `mapstructure:"mc"`
	Group          string  `mapstructure:"group"`
	Target         float64 `mapstructure:"target"`
	Equilibrium    float64 `mapstructure:"equilibrium"`
	HalfThickness  float64 `mapstructure:"half_thickness"`
	SecondsPerUnit float64 `mapstructure:"seconds_per_unit"`
	InitialMassKg  float64 `mapstructure:"initial_mass_kg"`
	EnergyKJ       float64 `mapstructure:"energy_kj"`
}

func runDrying(env *Env, title string, params map[string]any) (*Section, error) {
	var p dryingParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if p.Time == "" || p.MC == "" {
		return nil, fmt.Errorf("parameters: time and mc are required")
	}
	t, d := env.Table, env.Decimals
	tc, err := t.Numeric(p.Time)
	if err != nil {
		return nil, err
	}
	mc, err := t.Numeric(p.MC)
	if err != nil {
		return nil, err
	}
	keys, idx, err := t.GroupIndex(p.Group)
	if err != nil {
		return nil, err
	}
	opt := stats.DryingOptions{Target: p.Target, Equilibrium: p.Equilibrium, HalfThickness: p.HalfThickness,
		SecondsPerUnit: p.SecondsPerUnit, InitialMassKg: p.InitialMassKg, EnergyInputKJ: p.EnergyKJ}

	var runs []*stats.Drying
	for k, key := range keys {
		if p.Group != "" && key == "" {
			continue
		}
		ts := make([]float64, len(idx[k]))
		ms := make([]float64, len(idx[k]))
		for j, i := range idx[k] {
			ts[j], ms[j] = tc.Num[i], mc.Num[i]
		}
		run, err := stats.DryingKinetics(orDefault(key, mc.Name), ts, ms, opt)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}

	s := newSection(orDefault(title, "Drying kinetics"))
	header := []string{"Run", "Initial MC", "Final MC", "Mean rate", "Time to target"}
	if p.HalfThickness > 0 {
		header = append(header, "Deff (m²/s)")
	}
	if p.InitialMassKg > 0 {
		header = append(header, "Water removed (kg)")
		if p.EnergyKJ > 0 {
			header = append(header, "Energy (kJ/kg)")
		}
	}
	var rows, mrows [][]string
	mcChart := &chart.Spec{Name: "drying-mc", Kind: chart.Line, Title: "Moisture content over time", XLabel: tc.Label(), YLabel: mc.Label()}
	rateChart := &chart.Spec{Name: "drying-rate", Kind: chart.Line, Title: "Drying rate over time", XLabel: tc.Label(), YLabel: "Rate (% per time unit)"}
	mrChart := &chart.Spec{Name: "drying-mr", Kind: chart.Scatter, Title: "Moisture ratio over time", XLabel: tc.Label(), YLabel: "MR"}
	for _, r := range runs {
		ttt := "not reached"
		if !math.IsNaN(r.TimeToTarget) {
			ttt = num(r.TimeToTarget, 2)
		}
		row := []string{r.Name, num(r.MC[0], 2), num(r.MC[len(r.MC)-1], 2), num(r.MeanRate, d), ttt}
		if p.HalfThickness > 0 {
			row = append(row, sci(r.Deff, 3))
		}
		if p.InitialMassKg > 0 {
			row = append(row, num(r.WaterKg, d))
			if p.EnergyKJ > 0 {
				row = append(row, num(r.EnergyPerKg, 1))
			}
		}
		rows = append(rows, row)

		var best stats.ThinLayer
		for _, m := range r.Models {
			params := fmt.Sprintf("k = %s", sci(m.K, 3))
			switch m.Model {
			case "Henderson-Pabis":
				params += fmt.Sprintf(", a = %s", num(m.A, 3))
			case "Page":
				params += fmt.Sprintf(", n = %s", num(m.N, 3))
			}
			mrows = append(mrows, []string{r.Name, m.Model, params, num(m.R2, 4), num(m.RMSE, 4)})
			if best.Model == "" || m.R2 > best.R2 {
				best = m
			}
		}
		s.finding("Drying %s: moisture fell from %s to %s at a mean rate of %s per time unit; %s fitted best (R² = %s).",
			r.Name, num(r.MC[0], 1), num(r.MC[len(r.MC)-1], 1), num(r.MeanRate, d), best.Model, num(best.R2, 3))

		mcChart.Series = append(mcChart.Series, chart.Series{Name: r.Name, X: r.Time, Y: r.MC})
		rs := chart.Series{Name: r.Name}
		for _, pt := range r.Rates {
			rs.X = append(rs.X, pt.Time)
			rs.Y = append(rs.Y, pt.Rate)
		}
		rateChart.Series = append(rateChart.Series, rs)
		mrChart.Series = append(mrChart.Series, chart.Series{Name: r.Name, X: r.Time, Y: r.MR})
	}
	note := "Moisture content on a wet basis (%)."
	if p.Target > 0 {
		note += fmt.Sprintf(" Target moisture %s%%.", num(p.Target, 1))
	}
	s.table("Drying summary", header, rows, note)
	s.para("Moisture ratio MR = (M − Me)/(M0 − Me) with Me = %s was fitted with the Lewis, Henderson-Pabis and Page thin-layer models.", num(p.Equilibrium, 2))
	s.table("Thin-layer model fits", []string{"Run", "Model", "Parameters", "R²", "RMSE"}, mrows, "")
	if p.Target > 0 {
		mcChart.RefLines = []chart.RefLine{{Name: "Target", Value: p.Target}}
	}
	s.figure(env, mcChart)
	s.figure(env, rateChart)
	s.figure(env, mrChart)
	return s, nil
}

type sieveParams struct {
	Category string  `mapstructure:"category"`
	Weight   string  `mapstructure:"weight"`
	Charge   float64 `mapstructure:"charge"`
	By       string  `mapstructure:"by"`
}

func runSieve(env *Env, title string, params map[string]any) (*Section, error) {
	var p sieveParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if p.Category == "" || p.Weight == "" {
		return nil, fmt.Errorf("parameters: category and weight are required")
	}
	t, d := env.Table, env.Decimals
	wc, err := t.Numeric(p.Weight)
	if err != nil {
		return nil, err
	}
	keys, idx, err := t.GroupIndex(p.By)
	if err != nil {
		return nil, err
	}
	s := newSection(orDefault(title, "Particle size distribution"))
	stacked := &chart.Spec{Name: "sieve-distribution", Kind: chart.StackedBar, Title: "Share of charge retained per size class",
		XLabel: p.By, YLabel: "Retained (%)"}
	var classes []string
	shares := map[string]map[string]float64{}
	for k, key := range keys {
		if p.By != "" && key == "" {
			continue
		}
		sub := t.Subset(idx[k])
		gs, err := groupsOf(sub, p.Category, p.Weight)
		if err != nil {
			return nil, err
		}
		sv := stats.SieveAnalysis(gs, p.Charge)
		name := orDefault(key, "All samples")
		stacked.Categories = append(stacked.Categories, name)
		shares[name] = map[string]float64{}

		var rows [][]string
		for _, f := range sv.Fractions {
			rows = append(rows, []string{f.Category, fmt.Sprint(f.Summary.N), num(f.Summary.Mean, d), num(f.Summary.Std, d), num(f.Percent, 1)})
			shares[name][f.Category] = f.Percent
			if indexOf(classes, f.Category) < 0 {
				classes = append(classes, f.Category)
			}
		}
		caption := "Retained weight per size class"
		if key != "" {
			caption += fmt.Sprintf(" (%s = %s)", p.By, key)
		}
		note := fmt.Sprintf("Charge %s; weights in %s.", num(sv.Charge, d), orDefault(wc.Unit, "sample units"))
		s.table(caption, []string{p.Category, "N", "Mean", "SD", "Retained (%)"}, rows, note)

		if sv.ANOVAErr != nil {
			s.para("Size classes could not be compared by ANOVA: %v.", sv.ANOVAErr)
		} else {
			a := sv.ANOVA
			stat := fmt.Sprintf("F(%d, %d) = %s, %s", a.DFBetween, a.DFWithin, num(a.F, 2), pEq(a.P))
			if a.Significant(env.Alpha) {
				hi, _ := extremes(a)
				s.para("Retained weight differed significantly between size classes (%s); %s held the largest share (%s%%).", stat, a.Groups[hi], num(sv.Fractions[hi].Percent, 1))
				s.finding("Sieve analysis (%s): most material retained in %s (%s%% of charge; %s).", name, a.Groups[hi], num(sv.Fractions[hi].Percent, 1), stat)
			} else {
				s.para("Retained weight did not differ significantly between size classes (%s).", stat)
			}
		}
		if len(keys) == 1 {
			s.figure(env, meanBars("sieve-means", "Mean retained weight per size class (± SD)", p.Category, wc.Label(), gs, false))
		}
	}
	for _, c := range classes {
		sr := chart.Series{Name: c}
		for _, cat := range stacked.Categories {
			sr.Y = append(sr.Y, shares[cat][c])
		}
		stacked.Series = append(stacked.Series, sr)
	}
	s.figure(env, stacked)
	return s, nil
}

type profileParams struct {
	GroupBy      []string `mapstructure:"group_by"`
	Correlations bool     `mapstructure:"correlations"`
	Outliers     *bool    `mapstructure:"outliers"`
	Threshold    float64  `mapstructure:"threshold"`
}

func runProfile(env *Env, title string, params map[string]any) (*Section, error) {
	var p profileParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	opt := profile.DefaultOptions()
	opt.MaxRows = 0
	opt.GroupBy = p.GroupBy
	opt.Correlations = p.Correlations
	opt.OutlierThreshold = p.Threshold
	if p.Outliers != nil {
		opt.Outliers = *p.Outliers
	}
	rep, err := profile.Build(env.Table, opt)
	if err != nil {
		return nil, err
	}
	d := env.Decimals
	s := newSection(orDefault(title, "Data screening"))
	s.para("%s has %d rows and %d columns.", env.Table.Name, rep.Rows, len(rep.Cols))
	var rows [][]string
	var flagged []string
	for _, c := range rep.Cols {
		row := []string{c.Name, string(c.Kind), c.Unit, fmt.Sprint(c.NonNull), fmt.Sprint(c.Missing), fmt.Sprint(c.Unique), "", "", "", "", ""}
		if c.Kind == dataset.KindNumeric {
			row[6], row[7], row[8], row[9] = num(c.Min, d), num(c.Max, d), num(c.Mean, d), num(c.Std, d)
			if opt.Outliers {
				row[10] = fmt.Sprint(c.OutliersCount)
			}
			if c.OutliersCount > 0 {
				flagged = append(flagged, fmt.Sprintf("%s: %d value(s) with robust |z| above %s (max %s)", c.Name, c.OutliersCount, num(c.OutlierThreshold, 1), num(c.OutliersMaxAbsZ, 1)))
			}
		} else if len(c.TopValues) > 0 {
			var top []string
			for _, tv := range c.TopValues[:min(3, len(c.TopValues))] {
				top = append(top, fmt.Sprintf("%s (%d)", tv.Value, tv.Count))
			}
			row[8] = strings.Join(top, ", ")
		}
		if c.Missing > 0 {
			flagged = append(flagged, fmt.Sprintf("%s: %d missing value(s)", c.Name, c.Missing))
		}
		rows = append(rows, row)
	}
	s.table("Column overview", []string{"Column", "Kind", "Unit", "Non-null", "Missing", "Unique", "Min", "Max", "Mean / top values", "SD", "Outliers"}, rows,
		"Outliers use the median absolute deviation.")
	flagged = append(flagged, rep.Warnings...)
	if len(flagged) > 0 {
		s.add(report.Bullets{Items: flagged})
	} else {
		s.para("No missing values or outliers were detected.")
	}
	for _, g := range rep.Groups {
		var grows [][]string
		for _, name := range sortedKeys(g.Metrics) {
			m := g.Metrics[name]
			grows = append(grows, []string{name, fmt.Sprint(m.Count), num(m.Mean, d), num(m.Min, d), num(m.Max, d)})
		}
		s.table(fmt.Sprintf("Group %s (n = %d)", g.Key, g.Size), []string{"Variable", "N", "Mean", "Min", "Max"}, grows, "")
	}
	if rep.Corr != nil && len(rep.Corr.Pairs) > 0 {
		var crows [][]string
		for _, c := range rep.Corr.Pairs[:min(10, len(rep.Corr.Pairs))] {
			crows = append(crows, []string{c.A, c.B, num(c.R, 3), pval(c.P), fmt.Sprint(c.N)})
		}
		s.table("Strongest correlations", []string{"Variable 1", "Variable 2", "r", "p", "n"}, crows, "")
	}
	return s, nil
}

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

type textParams struct {
	Text    string   `mapstructure:"text"`
	Bullets []string `mapstructure:"bullets"`
	Code    string   `mapstructure:"code"`
}

func runText(_ *Env, title string, params map[string]any) (*Section, error) {
	var p textParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if p.Text == "" && len(p.Bullets) == 0 && p.Code == "" {
		return nil, fmt.Errorf("parameters: text, bullets or code is required")
	}
	s := newSection(title)
	for _, para := range splitParagraphs(p.Text) {
		s.add(report.Para(para))
	}
	if len(p.Bullets) > 0 {
		s.add(report.Bullets{Items: p.Bullets})
	}
	if p.Code != "" {
		s.add(report.Preformatted{Text: strings.TrimRight(p.Code, "\n")})
	}
	return s, nil
}

// splitParagraphs splits on blank lines and joins wrapped lines.
func splitParagraphs(text string) []string {
	var out []string
	for _, block := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n\n") {
		lines := strings.Fields(strings.ReplaceAll(block, "\n", " "))
		if len(lines) > 0 {
			out = append(out, strings.Join(lines, " "))
		}
	}
	return out
}
