package chart

import (
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/KaramelBytes/statloom-cli/internal/stats"
)

// Dashboard renders the specs as one interactive HTML page. Specs that fail
// validation are skipped and reported in the returned error after the page is
// written.
func Dashboard(w io.Writer, title string, specs []*Spec) error {
	page := components.NewPage()
	page.SetPageTitle(title)
	page.SetLayout(components.PageFlexLayout)
	var skipped []string
	for _, s := range specs {
		if err := s.Validate(); err != nil {
			skipped = append(skipped, s.Title)
			continue
		}
		page.AddCharts(interactive(s))
	}
	if err := page.Render(w); err != nil {
		return fmt.Errorf("render dashboard: %w", err)
	}
	if len(skipped) > 0 {
		return fmt.Errorf("dashboard skipped %d invalid chart(s): %v", len(skipped), skipped)
	}
	return nil
}

func globals(s *Spec) []charts.GlobalOpts {
	return []charts.GlobalOpts{
		charts.WithInitializationOpts(opts.Initialization{Width: "640px", Height: "420px"}),
		charts.WithTitleOpts(opts.Title{Title: s.Title}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(len(s.Series) > 1), Top: "bottom"}),
	}
}

func valueAxes(s *Spec) []charts.GlobalOpts {
	return []charts.GlobalOpts{
		charts.WithXAxisOpts(opts.XAxis{Type: "value", Name: s.XLabel, Scale: opts.Bool(true)}),
		charts.WithYAxisOpts(opts.YAxis{Type: "value", Name: s.YLabel, Scale: opts.Bool(true)}),
	}
}

// interactive converts a spec to the closest go-echarts chart.
func interactive(s *Spec) components.Charter {
	switch s.Kind {
	case Bar, StackedBar:
		return barChart(s)
	case Box:
		return boxChart(s)
	case Histogram:
		return histogramChart(s)
	case Heatmap, Contour:
		return heatChart(s)
	case Line:
		return lineChart(s, s.Series)
	}
	sc := charts.NewScatter()
	sc.SetGlobalOptions(append(globals(s), valueAxes(s)...)...)
	points := s.Series
	if s.Kind == Fit {
		points = s.Series[:1]
	}
	for _, sr := range points {
		var data []opts.ScatterData
		for i := range sr.Y {
			if isFinite(sr.X[i]) && isFinite(sr.Y[i]) {
				data = append(data, opts.ScatterData{Value: []float64{sr.X[i], sr.Y[i]}})
			}
		}
		sc.AddSeries(sr.Name, data)
	}
	if s.Kind == Fit {
		sc.Overlap(lineChart(s, s.Series[1:]))
	}
	return sc
}

func lineChart(s *Spec, series []Series) *charts.Line {
	l := charts.NewLine()
	l.SetGlobalOptions(append(globals(s), valueAxes(s)...)...)
	for _, sr := range series {
		var data []opts.LineData
		for i := range sr.Y {
			if isFinite(sr.X[i]) && isFinite(sr.Y[i]) {
				data = append(data, opts.LineData{Value: []float64{sr.X[i], sr.Y[i]}})
			}
		}
		l.AddSeries(sr.Name, data)
	}
	return l
}

func barChart(s *Spec) *charts.Bar {
	b := charts.NewBar()
	b.SetGlobalOptions(append(globals(s),
		charts.WithXAxisOpts(opts.XAxis{Name: s.XLabel}),
		charts.WithYAxisOpts(opts.YAxis{Name: s.YLabel}),
	)...)
	b.SetXAxis(s.Categories)
	for _, sr := range s.Series {
		data := make([]opts.BarData, len(sr.Y))
		for i, v := range sr.Y {
			if isFinite(v) {
				data[i] = opts.BarData{Value: v}
			}
		}
		if s.Kind == StackedBar {
			b.AddSeries(sr.Name, data, charts.WithBarChartOpts(opts.BarChart{Stack: "total"}))
		} else {
			b.AddSeries(sr.Name, data)
		}
	}
	return b
}

func boxChart(s *Spec) *charts.BoxPlot {
	b := charts.NewBoxPlot()
	b.SetGlobalOptions(append(globals(s), charts.WithYAxisOpts(opts.YAxis{Name: s.YLabel, Scale: opts.Bool(true)}))...)
	names := make([]string, len(s.Series))
	data := make([]opts.BoxPlotData, len(s.Series))
	for i, sr := range s.Series {
		names[i] = sr.Name
		d := stats.Describe(sr.Y)
		if d.N > 0 {
			data[i] = opts.BoxPlotData{Value: []float64{d.Min, d.Q1, d.Median, d.Q3, d.Max}}
		}
	}
	b.SetXAxis(names)
	b.AddSeries(s.YLabel, data)
	return b
}

func histogramChart(s *Spec) *charts.Bar {
	b := charts.NewBar()
	b.SetGlobalOptions(append(globals(s),
		charts.WithXAxisOpts(opts.XAxis{Name: s.XLabel}),
		charts.WithYAxisOpts(opts.YAxis{Name: "count"}),
	)...)
	var all []float64
	for _, sr := range s.Series {
		all = append(all, finite(sr.Y)...)
	}
	if len(all) == 0 {
		return b
	}
	bins := s.Bins
	if bins <= 0 {
		bins = sturges(len(all))
	}
	lo, hi := floats.Min(all), floats.Max(all)
	if hi == lo {
		hi = lo + 1
	}
	dividers := make([]float64, bins+1)
	floats.Span(dividers, lo, hi)
	dividers[bins] = math.Nextafter(hi, math.Inf(1))
	labels := make([]string, bins)
	for i := range labels {
		labels[i] = strconv.FormatFloat((dividers[i]+dividers[i+1])/2, 'g', 4, 64)
	}
	b.SetXAxis(labels)
	for _, sr := range s.Series {
		vals := finite(sr.Y)
		sort.Float64s(vals)
		counts := stat.Histogram(nil, dividers, vals, nil)
		data := make([]opts.BarData, len(counts))
		for i, c := range counts {
			data[i] = opts.BarData{Value: c}
		}
		b.AddSeries(sr.Name, data, charts.WithBarChartOpts(opts.BarChart{BarGap: "-100%"}))
	}
	return b
}

func heatChart(s *Spec) *charts.HeatMap {
	g := s.Grid
	hm := charts.NewHeatMap()
	xs := make([]string, len(g.X))
	for i, v := range g.X {
		xs[i] = strconv.FormatFloat(v, 'g', 3, 64)
	}
	ys := make([]string, len(g.Y))
	for i, v := range g.Y {
		ys[i] = strconv.FormatFloat(v, 'g', 3, 64)
	}
	if s.squareCategories() {
		xs, ys = s.Categories, s.Categories
	}
	lo, hi := math.Inf(1), math.Inf(-1)
	var data []opts.HeatMapData
	for r, row := range g.Z {
		for c, v := range row {
			if !isFinite(v) {
				continue
			}
			lo, hi = math.Min(lo, v), math.Max(hi, v)
			data = append(data, opts.HeatMapData{Value: [3]interface{}{c, r, v}})
		}
	}
	if len(data) == 0 {
		lo, hi = 0, 1
	}
	hm.SetGlobalOptions(append(globals(s),
		charts.WithXAxisOpts(opts.XAxis{Type: "category", Name: s.XLabel, Data: xs}),
		charts.WithYAxisOpts(opts.YAxis{Type: "category", Name: s.YLabel, Data: ys}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Calculable: opts.Bool(true),
			Min:        float32(lo),
			Max:        float32(hi),
			InRange:    &opts.VisualMapInRange{Color: []string{"#3b4cc0", "#dddddd", "#b40426"}},
		}),
	)...)
	hm.SetXAxis(xs)
	hm.AddSeries(s.Title, data)
	return hm
}
