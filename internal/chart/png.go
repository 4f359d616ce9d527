package chart

import (
	"bytes"
	"fmt"
	"image/color"
	"math"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/palette/moreland"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"
)

// Size is the physical size of a rendered figure.
type Size struct {
	WidthIn  float64
	HeightIn float64
	DPI      int
}

// DefaultSize fits a portrait A4 text column.
func DefaultSize() Size { return Size{WidthIn: 6.5, HeightIn: 4, DPI: 150} }

func (s Size) withDefaults() Size {
	d := DefaultSize()
	if s.WidthIn <= 0 {
		s.WidthIn = d.WidthIn
	}
	if s.HeightIn <= 0 {
		s.HeightIn = d.HeightIn
	}
	if s.DPI <= 0 {
		s.DPI = d.DPI
	}
	return s
}

// RenderPNG draws the spec with gonum/plot and encodes it as PNG.
func RenderPNG(s *Spec, size Size) ([]byte, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	size = size.withDefaults()
	p := plot.New()
	p.Title.Text = s.Title
	p.X.Label.Text = s.XLabel
	p.Y.Label.Text = s.YLabel
	p.Legend.Top = true

	var err error
	switch s.Kind {
	case Line, Scatter, Fit:
		err = addPoints(p, s)
	case Bar, StackedBar:
		err = addBars(p, s)
	case Box:
		err = addBoxes(p, s)
	case Histogram:
		err = addHistogram(p, s)
	case Heatmap, Contour:
		err = addSurface(p, s)
		if err == nil && s.squareCategories() {
			p.NominalX(s.Categories...)
			p.NominalY(s.Categories...)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("render %s chart %q: %w", s.Kind, s.Title, err)
	}
	for i, rl := range s.RefLines {
		v := rl.Value
		f := plotter.NewFunction(func(float64) float64 { return v })
		f.Color = color.RGBA{R: 180, A: 255}
		f.Dashes = plotutil.Dashes(i + 1)
		p.Add(f)
		if rl.Name != "" {
			p.Legend.Add(rl.Name, f)
		}
	}

	w := vg.Length(size.WidthIn) * vg.Inch
	h := vg.Length(size.HeightIn) * vg.Inch
	c := vgimg.NewWith(vgimg.UseWH(w, h), vgimg.UseDPI(size.DPI))
	p.Draw(draw.New(c))
	var buf bytes.Buffer
	if _, err := (vgimg.PngCanvas{Canvas: c}).WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// xys pairs X and Y, skipping points where either is not finite.
func xys(sr Series) (plotter.XYs, []string) {
	var pts plotter.XYs
	var labels []string
	for i := range sr.Y {
		x, y := sr.X[i], sr.Y[i]
		if !isFinite(x) || !isFinite(y) {
			continue
		}
		pts = append(pts, plotter.XY{X: x, Y: y})
		if len(sr.Labels) > 0 {
			labels = append(labels, sr.Labels[i])
		}
	}
	return pts, labels
}

func addPoints(p *plot.Plot, s *Spec) error {
	p.Add(plotter.NewGrid())
	for i, sr := range s.Series {
		pts, labels := xys(sr)
		if len(pts) == 0 {
			continue
		}
		asLine := s.Kind == Line || (s.Kind == Fit && i > 0)
		if asLine {
			l, err := plotter.NewLine(pts)
			if err != nil {
				return err
			}
			l.Color = plotutil.Color(i)
			l.Width = vg.Points(1.5)
			p.Add(l)
			p.Legend.Add(sr.Name, l)
			if s.Kind == Line {
				sc, err := plotter.NewScatter(pts)
				if err != nil {
					return err
				}
				sc.Color = plotutil.Color(i)
				sc.Shape = plotutil.Shape(i)
				p.Add(sc)
			}
		} else {
			sc, err := plotter.NewScatter(pts)
			if err != nil {
				return err
			}
			sc.Color = plotutil.Color(i)
			sc.Shape = plotutil.Shape(i)
			p.Add(sc)
			p.Legend.Add(sr.Name, sc)
		}
		if len(sr.Err) > 0 {
			if err := addErrorBars(p, sr); err != nil {
				return err
			}
		}
		if len(labels) > 0 {
			lb, err := plotter.NewLabels(plotter.XYLabels{XYs: pts, Labels: labels})
			if err != nil {
				return err
			}
			lb.Offset = vg.Point{X: vg.Points(4), Y: vg.Points(4)}
			p.Add(lb)
		}
	}
	return nil
}

type errPoints struct {
	plotter.XYs
	plotter.YErrors
}

func addErrorBars(p *plot.Plot, sr Series) error {
	var ep errPoints
	for i := range sr.Y {
		x, y, e := sr.X[i], sr.Y[i], sr.Err[i]
		if !isFinite(x) || !isFinite(y) || !isFinite(e) {
			continue
		}
		ep.XYs = append(ep.XYs, plotter.XY{X: x, Y: y})
		ep.YErrors = append(ep.YErrors, struct{ Low, High float64 }{e, e})
	}
	if len(ep.XYs) == 0 {
		return nil
	}
	eb, err := plotter.NewYErrorBars(ep)
	if err != nil {
		return err
	}
	p.Add(eb)
	return nil
}

func isFinite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

func addBars(p *plot.Plot, s *Spec) error {
	n := len(s.Series)
	width := vg.Points(40)
	if s.Kind == Bar && n > 1 {
		width = vg.Points(math.Max(8, 60/float64(n)))
	}
	var below *plotter.BarChart
	for i, sr := range s.Series {
		vals := make(plotter.Values, len(sr.Y))
		for j, v := range sr.Y {
			if !math.IsNaN(v) {
				vals[j] = v
			}
		}
		bc, err := plotter.NewBarChart(vals, width)
		if err != nil {
			return err
		}
		bc.Color = plotutil.Color(i)
		bc.LineStyle.Width = vg.Length(0)
		if s.Kind == StackedBar {
			if below != nil {
				bc.StackOn(below)
			}
			below = bc
		} else {
			bc.Offset = vg.Length(float64(i)-float64(n-1)/2) * width
		}
		p.Add(bc)
		if n > 1 {
			p.Legend.Add(sr.Name, bc)
		}
		if s.Kind == Bar && n == 1 && len(sr.Err) > 0 {
			x := make([]float64, len(sr.Y))
			for j := range x {
				x[j] = float64(j)
			}
			if err := addErrorBars(p, Series{X: x, Y: vals, Err: sr.Err}); err != nil {
				return err
			}
		}
	}
	p.NominalX(s.Categories...)
	return nil
}

func addBoxes(p *plot.Plot, s *Spec) error {
	names := make([]string, len(s.Series))
	for i, sr := range s.Series {
		names[i] = sr.Name
		vals := finite(sr.Y)
		if len(vals) == 0 {
			continue
		}
		b, err := plotter.NewBoxPlot(vg.Points(30), float64(i), plotter.Values(vals))
		if err != nil {
			return err
		}
		b.FillColor = plotutil.Color(i)
		p.Add(b)
	}
	p.NominalX(names...)
	return nil
}

func addHistogram(p *plot.Plot, s *Spec) error {
	for i, sr := range s.Series {
		vals := finite(sr.Y)
		if len(vals) == 0 {
			continue
		}
		bins := s.Bins
		if bins <= 0 {
			bins = sturges(len(vals))
		}
		h, err := plotter.NewHist(plotter.Values(vals), bins)
		if err != nil {
			return err
		}
		h.FillColor = plotutil.Color(i)
		p.Add(h)
		if len(s.Series) > 1 {
			p.Legend.Add(sr.Name, h)
		}
	}
	return nil
}

type gridXYZ struct{ g *Grid }

func (g gridXYZ) Dims() (c, r int)   { return len(g.g.X), len(g.g.Y) }
func (g gridXYZ) Z(c, r int) float64 { return g.g.Z[r][c] }
func (g gridXYZ) X(c int) float64    { return g.g.X[c] }
func (g gridXYZ) Y(r int) float64    { return g.g.Y[r] }

func addSurface(p *plot.Plot, s *Spec) error {
	g := gridXYZ{s.Grid}
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, row := range s.Grid.Z {
		for _, v := range finite(row) {
			lo, hi = math.Min(lo, v), math.Max(hi, v)
		}
	}
	if math.IsInf(lo, 0) {
		return ErrEmptySpec
	}
	var pal palette.Palette
	if s.Kind == Heatmap {
		pal = moreland.SmoothBlueRed().Palette(64)
		hm := plotter.NewHeatMap(g, pal)
		hm.Min, hm.Max = lo, hi
		p.Add(hm)
		return nil
	}
	pal = moreland.Kindlmann().Palette(10)
	levels := make([]float64, 10)
	for i := range levels {
		levels[i] = lo + (hi-lo)*float64(i+1)/11
	}
	p.Add(plotter.NewContour(g, levels, pal))
	return nil
}
