package stats

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// Summary is the descriptive record of one sample.
type Summary struct {
	N      int
	Mean   float64
	Median float64
	Std    float64 // sample standard deviation (n-1)
	SE     float64
	Min    float64
	Max    float64
	Range  float64
	Q1     float64
	Q3     float64
	CV     float64 // percent; 0 when the mean is 0
}

// Describe summarises xs, ignoring NaN. An empty sample yields N == 0 and NaN
// fields.
func Describe(xs []float64) Summary {
	v := dropNaN(xs)
	s := Summary{N: len(v)}
	if len(v) == 0 {
		nan := math.NaN()
		s.Mean, s.Median, s.Std, s.SE, s.Min, s.Max, s.Range, s.Q1, s.Q3, s.CV = nan, nan, nan, nan, nan, nan, nan, nan, nan, nan
		return s
	}
	sort.Float64s(v)
	s.Min, s.Max = v[0], v[len(v)-1]
	s.Range = s.Max - s.Min
	s.Median = Quantile(v, 0.5)
	s.Q1 = Quantile(v, 0.25)
	s.Q3 = Quantile(v, 0.75)
	if len(v) > 1 {
		s.Mean, s.Std = stat.MeanStdDev(v, nil)
		s.SE = s.Std / math.Sqrt(float64(len(v)))
	} else {
		s.Mean = v[0]
		s.Std, s.SE = math.NaN(), math.NaN()
	}
	switch {
	case math.IsNaN(s.Std):
		s.CV = math.NaN()
	case s.Mean != 0:
		s.CV = s.Std / s.Mean * 100
	}
	return s
}

// Quantile returns the q-th quantile of sorted data using linear
// interpolation between closest ranks (position (n-1)q).
func Quantile(sorted []float64, q float64) float64 {
	n := len(sorted)
	if n == 0 {
		return math.NaN()
	}
	if q <= 0 {
		return sorted[0]
	}
	if q >= 1 {
		return sorted[n-1]
	}
	pos := q * float64(n-1)
	lo := int(math.Floor(pos))
	hi := lo + 1
	if hi >= n {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo] + frac*(sorted[hi]-sorted[lo])
}

// DescribeGroups summarises each group in order.
func DescribeGroups(groups []Group) []Summary {
	out := make([]Summary, len(groups))
	for i, g := range groups {
		out[i] = Describe(g.Values)
	}
	return out
}
