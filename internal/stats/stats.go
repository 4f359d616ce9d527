// Package stats implements the statistics behind a report: descriptive
// summaries, one-way ANOVA with Tukey HSD, t-tests, regression and
// second-order response surfaces, PCA, and the domain indices used by the
// bundled studies (water quality, drying kinetics, sieve analysis).
//
// Inputs are plain float64 slices; NaN marks a missing value and is skipped
// by the descriptive functions.
package stats

import (
	"errors"
	"math"
)

var (
	ErrTooFewGroups       = errors.New("need at least two groups")
	ErrEmptyGroup         = errors.New("group has no values")
	ErrSingular           = errors.New("design matrix is singular")
	ErrLengthMismatch     = errors.New("inputs have different lengths")
	ErrTooFewObservations = errors.New("not enough observations")
)

// Group is a named sample, typically one level of a factor.
type Group struct {
	Name   string
	Values []float64
}

func dropNaN(xs []float64) []float64 {
	out := make([]float64, 0, len(xs))
	for _, x := range xs {
		if !math.IsNaN(x) {
			out = append(out, x)
		}
	}
	return out
}

// pairwiseComplete returns the rows where both x and y are present.
func pairwiseComplete(x, y []float64) ([]float64, []float64, error) {
	if len(x) != len(y) {
		return nil, nil, ErrLengthMismatch
	}
	xs := make([]float64, 0, len(x))
	ys := make([]float64, 0, len(y))
	for i := range x {
		if math.IsNaN(x[i]) || math.IsNaN(y[i]) {
			continue
		}
		xs = append(xs, x[i])
		ys = append(ys, y[i])
	}
	return xs, ys, nil
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return math.NaN()
	}
	var s float64
	for _, x := range xs {
		s += x
	}
	return s / float64(len(xs))
}
