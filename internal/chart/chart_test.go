package chart

import (
	"bytes"
	"image/png"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleSpecs() []*Spec {
	grid := &Grid{X: []float64{-1, 0, 1}, Y: []float64{-1, 0, 1}}
	for _, y := range grid.Y {
		row := make([]float64, len(grid.X))
		for i, x := range grid.X {
			row[i] = 10 - x*x - y*y
		}
		grid.Z = append(grid.Z, row)
	}
	return []*Spec{
		{Kind: Bar, Title: "Mean loss", Categories: []string{"Kiln A", "Kiln B"},
			Series: []Series{{Name: "Loss", Y: []float64{12.5, 15}, Err: []float64{0.5, 0.8}}}},
		{Kind: StackedBar, Title: "Sieve", Categories: []string{"R1", "R2"},
			Series: []Series{{Name: "Coarse", Y: []float64{40, 42}}, {Name: "Fine", Y: []float64{60, math.NaN()}}}},
		{Kind: Line, Title: "Drying", XLabel: "h", YLabel: "MC (%)",
			Series: []Series{{Name: "Tray", X: []float64{0, 1, 2}, Y: []float64{80, 60, 45}}}},
		{Kind: Scatter, Title: "Sites", Series: []Series{{Name: "PC", X: []float64{1, 2}, Y: []float64{3, 1}, Labels: []string{"S1", "S2"}}},
			RefLines: []RefLine{{Name: "limit", Value: 2}}},
		{Kind: Fit, Title: "Draft", Series: []Series{
			{Name: "observed", X: []float64{1, 2, 3}, Y: []float64{2.1, 3.9, 6.2}},
			{Name: "fitted", X: []float64{1, 3}, Y: []float64{2, 6}},
		}},
		{Kind: Box, Title: "pH by site", Series: []Series{{Name: "S1", Y: []float64{7, 7.2, 6.9, 7.1}}, {Name: "S2", Y: []float64{6.5, 6.6}}}},
		{Kind: Histogram, Title: "Residuals", Series: []Series{{Name: "r", Y: []float64{-1, -0.5, 0, 0.1, 0.4, 1.2}}}},
		{Kind: Heatmap, Title: "Correlation", Grid: grid},
		{Kind: Contour, Title: "Surface", Grid: grid},
	}
}

func TestRenderPNGAllKinds(t *testing.T) {
	for _, s := range sampleSpecs() {
		t.Run(string(s.Kind), func(t *testing.T) {
			b, err := RenderPNG(s, Size{WidthIn: 3, HeightIn: 2, DPI: 72})
			require.NoError(t, err)
			cfg, err := png.DecodeConfig(bytes.NewReader(b))
			require.NoError(t, err)
			assert.Equal(t, 216, cfg.Width)
			assert.Equal(t, 144, cfg.Height)
		})
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name string
		spec Spec
		want string
	}{
		{"unknown kind", Spec{Kind: "pie", Series: []Series{{Y: []float64{1}}}}, "unknown chart kind"},
		{"empty", Spec{Kind: Line, Title: "x"}, "no data"},
		{"categories", Spec{Kind: Bar, Categories: []string{"a"}, Series: []Series{{Y: []float64{1, 2}}}}, "categories"},
		{"pairs", Spec{Kind: Scatter, Series: []Series{{X: []float64{1}, Y: []float64{1, 2}}}}, "1 x and 2 y"},
		{"errors", Spec{Kind: Line, Series: []Series{{X: []float64{1}, Y: []float64{1}, Err: []float64{1, 2}}}}, "error values"},
		{"fit", Spec{Kind: Fit, Series: []Series{{X: []float64{1}, Y: []float64{1}}}}, "fitted"},
		{"grid", Spec{Kind: Heatmap, Grid: &Grid{X: []float64{1, 2}, Y: []float64{1, 2}, Z: [][]float64{{1, 2}}}}, "rows"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.spec.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestDashboard(t *testing.T) {
	specs := sampleSpecs()
	var buf bytes.Buffer
	require.NoError(t, Dashboard(&buf, "Kiln study", specs))
	html := buf.String()
	assert.Contains(t, html, "<title>Kiln study</title>")
	assert.Contains(t, html, "echarts.min.js")
	for _, s := range specs {
		assert.Contains(t, html, s.Title)
	}
	assert.Contains(t, html, `"stack":"total"`)
}

func TestDashboardReportsInvalidSpecs(t *testing.T) {
	var buf bytes.Buffer
	err := Dashboard(&buf, "t", []*Spec{{Kind: Bar, Title: "broken"}, sampleSpecs()[0]})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken")
	assert.True(t, strings.Contains(buf.String(), "Mean loss"))
}

func TestSturges(t *testing.T) {
	assert.Equal(t, 1, sturges(1))
	assert.Equal(t, 5, sturges(16))
	assert.Equal(t, 6, sturges(17))
}
