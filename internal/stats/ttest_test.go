package stats

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	sampleA = []float64{5.1, 4.9, 5.6, 5.8, 6.0, 5.5}
	sampleB = []float64{4.2, 4.8, 4.6, 5.0, 4.4}
)

func TestOneSampleT(t *testing.T) {
	r, err := OneSampleT([]float64{1, 2, 3, 4, 5, math.NaN()}, 2, TwoSided)
	require.NoError(t, err)
	assert.Equal(t, 5, r.N1)
	assert.InDelta(t, math.Sqrt2, r.T, 1e-12)
	assert.InDelta(t, 4, r.DF, 1e-12)
	assert.InDelta(t, 0.2301996, r.P, 1e-6)
	assert.Equal(t, 3.0, r.Mean1)

	greater, err := OneSampleT([]float64{1, 2, 3, 4, 5}, 2, Greater)
	require.NoError(t, err)
	assert.InDelta(t, r.P/2, greater.P, 1e-9)

	_, err = OneSampleT([]float64{1}, 0, TwoSided)
	assert.True(t, errors.Is(err, ErrTooFewObservations))
}

func TestTwoSampleT(t *testing.T) {
	student, err := TwoSampleT(sampleA, sampleB, false, TwoSided)
	require.NoError(t, err)
	assert.Equal(t, "student", student.Kind)
	assert.InDelta(t, 3.8859164, student.T, 1e-6)
	assert.InDelta(t, 9, student.DF, 1e-12)
	assert.InDelta(t, 0.0036979, student.P, 1e-6)

	welch, err := TwoSampleT(sampleA, sampleB, true, TwoSided)
	require.NoError(t, err)
	assert.InDelta(t, 3.9927573, welch.T, 1e-6)
	assert.InDelta(t, 8.9534793, welch.DF, 1e-6)
	assert.InDelta(t, 0.0031775, welch.P, 1e-6)
}

func TestPairedT(t *testing.T) {
	before := []float64{10, 12, 9, 11, 13}
	after := []float64{9, 11, 9, 10, 11}
	r, err := PairedT(before, after, 0, TwoSided)
	require.NoError(t, err)
	// differences 1,1,0,1,2: mean 1, sd sqrt(0.5)
	assert.InDelta(t, 1/math.Sqrt(0.5)*math.Sqrt(5), r.T, 1e-9)
	assert.Equal(t, "paired", r.Kind)
	assert.Equal(t, 5, r.N1)
	assert.Equal(t, 0, r.N2, "paired test reports the pair count once")

	_, err = PairedT(before, after[:3], 0, TwoSided)
	assert.True(t, errors.Is(err, ErrLengthMismatch))
}

func TestMannWhitneyU(t *testing.T) {
	r, err := MannWhitneyU(sampleA, sampleB, TwoSided)
	require.NoError(t, err)
	assert.Equal(t, 29.0, r.U)
	// exact: U >= 29 in 2 of C(11,5) = 462 arrangements, doubled
	assert.InDelta(t, 4.0/462, r.P, 1e-6)
}

func TestParseAlternative(t *testing.T) {
	for in, want := range map[string]Alternative{"": TwoSided, "two-sided": TwoSided, "Less": Less, "greater": Greater} {
		got, err := ParseAlternative(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseAlternative("sideways")
	assert.Error(t, err)
}
