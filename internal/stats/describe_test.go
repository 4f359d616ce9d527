package stats

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDescribe(t *testing.T) {
	s := Describe([]float64{5, 1, math.NaN(), 3, 2, 4})
	require.Equal(t, 5, s.N)
	assert.InDelta(t, 3, s.Mean, 1e-12)
	assert.InDelta(t, 3, s.Median, 1e-12)
	assert.InDelta(t, math.Sqrt(2.5), s.Std, 1e-12)
	assert.InDelta(t, math.Sqrt(2.5)/math.Sqrt(5), s.SE, 1e-12)
	assert.Equal(t, 1.0, s.Min)
	assert.Equal(t, 5.0, s.Max)
	assert.Equal(t, 4.0, s.Range)
	assert.InDelta(t, 2, s.Q1, 1e-12)
	assert.InDelta(t, 4, s.Q3, 1e-12)
	assert.InDelta(t, math.Sqrt(2.5)/3*100, s.CV, 1e-9)
}

func TestDescribeEdgeCases(t *testing.T) {
	empty := Describe(nil)
	assert.Equal(t, 0, empty.N)
	assert.True(t, math.IsNaN(empty.Mean))

	one := Describe([]float64{7})
	assert.Equal(t, 7.0, one.Mean)
	assert.True(t, math.IsNaN(one.Std))
	assert.True(t, math.IsNaN(one.CV), "CV is undefined without an SD")

	zeroMean := Describe([]float64{-1, 1})
	assert.Equal(t, 0.0, zeroMean.CV)
}

func TestQuantileLinearInterpolation(t *testing.T) {
	v := []float64{1, 2, 3, 4}
	assert.InDelta(t, 1.75, Quantile(v, 0.25), 1e-12)
	assert.InDelta(t, 2.5, Quantile(v, 0.5), 1e-12)
	assert.InDelta(t, 3.25, Quantile(v, 0.75), 1e-12)
	assert.Equal(t, 1.0, Quantile(v, 0))
	assert.Equal(t, 4.0, Quantile(v, 1))
	assert.True(t, math.IsNaN(Quantile(nil, 0.5)))
}

func TestOutliersRobustZ(t *testing.T) {
	xs := []float64{10, 11, 9, 10, 12, 10, 11, 9, 40}
	med, mad := MedianMAD(xs)
	assert.Equal(t, 10.0, med)
	assert.Equal(t, 1.0, mad)
	assert.Equal(t, []int{8}, Outliers(xs, 0))
	assert.Empty(t, Outliers([]float64{1, 1, 1, 1, 1, 1, 1, 1, 50}, 3.5))
}
