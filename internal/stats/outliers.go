package stats

import (
	"math"
	"sort"
)

// MedianMAD returns the median and the median absolute deviation of xs.
func MedianMAD(xs []float64) (median, mad float64) {
	v := dropNaN(xs)
	if len(v) == 0 {
		return math.NaN(), math.NaN()
	}
	sort.Float64s(v)
	median = Quantile(v, 0.5)
	dev := make([]float64, len(v))
	for i, x := range v {
		dev[i] = math.Abs(x - median)
	}
	sort.Float64s(dev)
	return median, Quantile(dev, 0.5)
}

// RobustZ returns the modified z-score 0.6745*(x-median)/MAD for each value;
// NaN where x is missing or MAD is zero.
func RobustZ(xs []float64) []float64 {
	med, mad := MedianMAD(xs)
	out := make([]float64, len(xs))
	for i, x := range xs {
		if math.IsNaN(x) || mad == 0 || math.IsNaN(mad) {
			out[i] = math.NaN()
			continue
		}
		out[i] = 0.6745 * (x - med) / mad
	}
	return out
}

// Outliers returns indices with |robust z| above threshold (3.5 when <= 0).
func Outliers(xs []float64, threshold float64) []int {
	if threshold <= 0 {
		threshold = 3.5
	}
	var out []int
	for i, z := range RobustZ(xs) {
		if !math.IsNaN(z) && math.Abs(z) > threshold {
			out = append(out, i)
		}
	}
	return out
}
