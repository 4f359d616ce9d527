package stats

import (
	"errors"
	"fmt"
	"strings"

	moremath "github.com/aclements/go-moremath/stats"
)

// Alternative is the alternative hypothesis of a location test.
type Alternative string

const (
	TwoSided Alternative = "two-sided"
	Less     Alternative = "less"
	Greater  Alternative = "greater"
)

// ParseAlternative accepts "two-sided" (default), "less" and "greater".
func ParseAlternative(s string) (Alternative, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "two-sided", "two_sided", "twosided":
		return TwoSided, nil
	case "less":
		return Less, nil
	case "greater":
		return Greater, nil
	}
	return "", fmt.Errorf("unknown alternative %q (use two-sided, less or greater)", s)
}

func (a Alternative) location() moremath.LocationHypothesis {
	switch a {
	case Less:
		return moremath.LocationLess
	case Greater:
		return moremath.LocationGreater
	}
	return moremath.LocationDiffers
}

// TTest is the result of a one- or two-sample t-test.
type TTest struct {
	Kind        string // one-sample, student, welch, paired
	N1, N2      int
	Mean1       float64
	Mean2       float64
	Mu0         float64
	T           float64
	DF          float64
	P           float64
	Alternative Alternative
}

func fromMoremath(kind string, r *moremath.TTestResult, alt Alternative) *TTest {
	return &TTest{Kind: kind, N1: r.N1, N2: r.N2, T: r.T, DF: r.DoF, P: r.P, Alternative: alt}
}

func wrapSampleErr(err error) error {
	switch {
	case errors.Is(err, moremath.ErrSampleSize):
		return fmt.Errorf("%w: %v", ErrTooFewObservations, err)
	case errors.Is(err, moremath.ErrMismatchedSamples):
		return fmt.Errorf("%w: %v", ErrLengthMismatch, err)
	}
	return err
}

// OneSampleT tests whether the mean of xs differs from mu0.
func OneSampleT(xs []float64, mu0 float64, alt Alternative) (*TTest, error) {
	v := dropNaN(xs)
	if len(v) < 2 {
		return nil, fmt.Errorf("%w: one-sample t-test needs 2 values, got %d", ErrTooFewObservations, len(v))
	}
	r, err := moremath.OneSampleTTest(moremath.Sample{Xs: v}, mu0, alt.location())
	if err != nil {
		return nil, wrapSampleErr(err)
	}
	out := fromMoremath("one-sample", r, alt)
	out.Mean1 = mean(v)
	out.Mu0 = mu0
	return out, nil
}

// TwoSampleT compares two independent samples, pooled (Student) unless welch.
func TwoSampleT(x1, x2 []float64, welch bool, alt Alternative) (*TTest, error) {
	a, b := dropNaN(x1), dropNaN(x2)
	if len(a) < 2 || len(b) < 2 {
		return nil, fmt.Errorf("%w: two-sample t-test needs 2 values per group", ErrTooFewObservations)
	}
	s1, s2 := moremath.Sample{Xs: a}, moremath.Sample{Xs: b}
	var (
		r    *moremath.TTestResult
		err  error
		kind = "student"
	)
	if welch {
		kind = "welch"
		r, err = moremath.TwoSampleWelchTTest(s1, s2, alt.location())
	} else {
		r, err = moremath.TwoSampleTTest(s1, s2, alt.location())
	}
	if err != nil {
		return nil, wrapSampleErr(err)
	}
	out := fromMoremath(kind, r, alt)
	out.Mean1, out.Mean2 = mean(a), mean(b)
	return out, nil
}

// PairedT tests the mean of the differences x1-x2 against mu0.
func PairedT(x1, x2 []float64, mu0 float64, alt Alternative) (*TTest, error) {
	a, b, err := pairwiseComplete(x1, x2)
	if err != nil {
		return nil, err
	}
	r, err := moremath.PairedTTest(a, b, mu0, alt.location())
	if err != nil {
		return nil, wrapSampleErr(err)
	}
	out := fromMoremath("paired", r, alt)
	// One set of pairs: N1 is the pair count.
	out.N2 = 0
	out.Mean1, out.Mean2 = mean(a), mean(b)
	out.Mu0 = mu0
	return out, nil
}

// MannWhitney is the result of a Mann-Whitney U test.
type MannWhitney struct {
	N1, N2      int
	U           float64
	P           float64
	Alternative Alternative
}

// MannWhitneyU is the rank-based companion of TwoSampleT.
func MannWhitneyU(x1, x2 []float64, alt Alternative) (*MannWhitney, error) {
	a, b := dropNaN(x1), dropNaN(x2)
	r, err := moremath.MannWhitneyUTest(a, b, alt.location())
	if err != nil {
		return nil, wrapSampleErr(err)
	}
	return &MannWhitney{N1: r.N1, N2: r.N2, U: r.U, P: r.P, Alternative: alt}, nil
}
