package stats

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	tillX = []float64{1, 2, 3, 4, 5}
	tillY = []float64{2.1, 3.9, 6.2, 7.8, 10.1}
)

func TestLinearRegression(t *testing.T) {
	r, err := LinearRegression(tillX, tillY)
	require.NoError(t, err)
	assert.InDelta(t, 1.99, r.Slope, 1e-12)
	assert.InDelta(t, 0.05, r.Intercept, 1e-12)
	assert.InDelta(t, 0.9986518, r.R, 1e-7)
	assert.InDelta(t, 0.9973053, r.R2, 1e-7)
	assert.InDelta(t, 5.9415e-05, r.P, 1e-8)
	assert.InDelta(t, 0.0597216, r.SlopeSE, 1e-7)
	assert.InDelta(t, 0.1980741, r.InterceptSE, 1e-7)
	assert.InDelta(t, 0.05+1.99*6, r.Predict(6), 1e-9)
}

func TestLinearRegressionErrors(t *testing.T) {
	_, err := LinearRegression([]float64{1, 2}, []float64{1, 2})
	assert.True(t, errors.Is(err, ErrTooFewObservations))
	_, err = LinearRegression([]float64{1, 1, 1}, []float64{1, 2, 3})
	assert.True(t, errors.Is(err, ErrSingular))
	_, err = LinearRegression([]float64{1, 2, 3}, []float64{1, 2})
	assert.True(t, errors.Is(err, ErrLengthMismatch))
}

func TestFitModelLinearMatchesLinregress(t *testing.T) {
	fit, err := FitModel(Model{Factors: []string{"Depth"}, Kind: Linear}, [][]float64{tillX}, tillY)
	require.NoError(t, err)
	require.Len(t, fit.Coefficients, 2)
	assert.Equal(t, "Intercept", fit.Coefficients[0].Term)
	assert.InDelta(t, 0.05, fit.Coefficients[0].Estimate, 1e-9)
	assert.InDelta(t, 1.99, fit.Coefficients[1].Estimate, 1e-9)
	assert.InDelta(t, 0.0597216, fit.Coefficients[1].SE, 1e-7)
	assert.InDelta(t, 5.9415e-05, fit.Coefficients[1].P, 1e-8)
	assert.InDelta(t, 0.9973053, fit.R2, 1e-7)
	assert.InDelta(t, 0.9964071, fit.AdjR2, 1e-7)
	assert.InDelta(t, 0.107, fit.SSE, 1e-9)
	assert.InDelta(t, math.Sqrt(0.107/5), fit.RMSE, 1e-9)
	assert.InDelta(t, 1110.3084, fit.F, 1e-3)
	require.Len(t, fit.Table, 3)
	assert.Equal(t, 1, fit.Table[0].DF)
	assert.Equal(t, 3, fit.Table[1].DF)
	assert.InDelta(t, fit.SST, fit.Table[0].SS+fit.Table[1].SS, 1e-9)

	y, err := fit.Predict([]float64{6})
	require.NoError(t, err)
	assert.InDelta(t, 0.05+1.99*6, y, 1e-9)
}

func TestQuadraticTermNames(t *testing.T) {
	m := Model{Factors: []string{"A", "B", "C"}, Kind: Quadratic}
	assert.Equal(t, []string{"Intercept", "A", "B", "C", "I(A^2)", "I(B^2)", "I(C^2)", "A:B", "A:C", "B:C"}, m.TermNames())
	assert.Equal(t, []float64{1, 2, 3, 4, 9, 6}, Model{Factors: []string{"A", "B"}, Kind: Quadratic}.Row([]float64{2, 3}))
}

func TestFitOLSSingular(t *testing.T) {
	x := []float64{1, 2, 3, 4, 5}
	_, err := FitModel(Model{Factors: []string{"a", "b"}, Kind: Linear}, [][]float64{x, x}, tillY)
	assert.True(t, errors.Is(err, ErrSingular), "got %v", err)
}

func TestOneHotRegressionMatchesANOVA(t *testing.T) {
	var labels []string
	var y []float64
	for _, g := range threeGroups {
		for _, v := range g.Values {
			labels = append(labels, g.Name)
			y = append(y, v)
		}
	}
	names, X, levels := OneHot("Sample", labels)
	assert.Equal(t, []string{"Intercept", "C(Sample)[T.B]", "C(Sample)[T.C]"}, names)
	assert.Equal(t, []string{"A", "B", "C"}, levels)
	fit, err := FitOLS(names, X, y)
	require.NoError(t, err)
	assert.InDelta(t, 27, fit.F, 1e-9)
	assert.InDelta(t, 0.001, fit.P, 1e-9)
	assert.InDelta(t, 2, fit.Coefficients[0].Estimate, 1e-9)
	assert.InDelta(t, 3, fit.Coefficients[1].Estimate, 1e-9)
}

func designPoints() (x1, x2 []float64) {
	for _, a := range []float64{-1, 0, 1} {
		for _, b := range []float64{-1, 0, 1} {
			x1 = append(x1, a)
			x2 = append(x2, b)
		}
	}
	x1 = append(x1, -2, 2, 0, 0)
	x2 = append(x2, 0, 0, -2, 2)
	return x1, x2
}

func TestFitRSMFindsInteriorOptimum(t *testing.T) {
	x1, x2 := designPoints()
	y := make([]float64, len(x1))
	for i := range y {
		d1, d2 := x1[i]-0.5, x2[i]+0.3
		y[i] = 10 - d1*d1 - 2*d2*d2 + 0.01*float64(i%3-1)
	}
	factors := []Factor{{Name: "Temp", Center: 60, Step: 10}, {Name: "Time", Center: 2, Step: 0.5}}
	r, err := FitRSM(factors, [][]float64{x1, x2}, y, RSMOptions{CodedInput: true})
	require.NoError(t, err)
	assert.Greater(t, r.Fit.R2, 0.99)
	require.Len(t, r.Optimum.Coded, 2)
	assert.InDelta(t, 0.5, r.Optimum.Coded[0], 0.02)
	assert.InDelta(t, -0.3, r.Optimum.Coded[1], 0.02)
	assert.InDelta(t, 60+10*r.Optimum.Coded[0], r.Optimum.Actual[0], 1e-9)
	assert.InDelta(t, 10, r.Optimum.Predicted, 0.05)

	g, err := r.Surface(0, 1, 5, 0)
	require.NoError(t, err)
	assert.Equal(t, []float64{-2, -1, 0, 1, 2}, g.X)
	require.Len(t, g.Z, 5)
	assert.InDelta(t, r.Predict([]float64{1, -2}), g.Z[0][3], 1e-9)
	_, err = r.Surface(0, 0, 5, 0)
	assert.Error(t, err)
}

func TestFitRSMActualUnitsAndBounds(t *testing.T) {
	x1, x2 := designPoints()
	f1 := Factor{Name: "Ratio", Center: 6, Step: 2}
	f2 := Factor{Name: "Catalyst", Center: 1, Step: 0.25}
	a1 := make([]float64, len(x1))
	a2 := make([]float64, len(x2))
	y := make([]float64, len(x1))
	for i := range x1 {
		a1[i], a2[i] = f1.Actual(x1[i]), f2.Actual(x2[i])
		y[i] = 5 + x1[i] - x2[i]*x2[i]
	}
	r, err := FitRSM([]Factor{f1, f2}, [][]float64{a1, a2}, y, RSMOptions{})
	require.NoError(t, err)
	assert.InDelta(t, 2, r.Optimum.Coded[0], 1e-3)
	assert.InDelta(t, 0, r.Optimum.Coded[1], 1e-3)
	assert.InDelta(t, 10, r.Optimum.Actual[0], 1e-2)
	assert.InDelta(t, 7, r.Optimum.Predicted, 1e-3)

	low, err := FitRSM([]Factor{f1, f2}, [][]float64{a1, a2}, y, RSMOptions{Minimize: true, Bound: 1})
	require.NoError(t, err)
	assert.InDelta(t, -1, low.Optimum.Coded[0], 1e-3)
	assert.InDelta(t, 1, math.Abs(low.Optimum.Coded[1]), 1e-3)
	assert.InDelta(t, 3, low.Optimum.Predicted, 1e-3)
}
