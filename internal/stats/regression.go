package stats

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// LinRegress is a simple least-squares line y = Intercept + Slope*x.
type LinRegress struct {
	N              int
	Slope          float64
	Intercept      float64
	R              float64
	R2             float64
	P              float64 // two-sided, H0: slope = 0
	SlopeSE        float64
	InterceptSE    float64
	ResidualStdErr float64
}

// Predict evaluates the fitted line at x.
func (l *LinRegress) Predict(x float64) float64 {
	return l.Intercept + l.Slope*x
}

// LinearRegression fits y on x using rows where both are present.
func LinearRegression(x, y []float64) (*LinRegress, error) {
	xs, ys, err := pairwiseComplete(x, y)
	if err != nil {
		return nil, err
	}
	n := len(xs)
	if n < 3 {
		return nil, fmt.Errorf("%w: regression needs 3 points, got %d", ErrTooFewObservations, n)
	}
	mx, my := mean(xs), mean(ys)
	var ssx, ssy float64
	for i := range xs {
		ssx += (xs[i] - mx) * (xs[i] - mx)
		ssy += (ys[i] - my) * (ys[i] - my)
	}
	if ssx == 0 {
		return nil, fmt.Errorf("%w: x has no variance", ErrSingular)
	}
	res := &LinRegress{N: n}
	res.Intercept, res.Slope = stat.LinearRegression(xs, ys, nil, false)
	if ssy == 0 {
		res.R = 0
	} else {
		res.R = math.Max(-1, math.Min(1, stat.Correlation(xs, ys, nil)))
	}
	res.R2 = res.R * res.R
	df := float64(n - 2)
	res.SlopeSE = math.Sqrt((1 - res.R2) * ssy / ssx / df)
	res.InterceptSE = res.SlopeSE * math.Sqrt(ssx/float64(n)+mx*mx)
	res.ResidualStdErr = math.Sqrt((1 - res.R2) * ssy / df)
	if math.Abs(res.R) == 1 {
		res.P = 0
	} else {
		t := res.R * math.Sqrt(df/((1-res.R)*(1+res.R)))
		res.P = 2 * distuv.StudentsT{Mu: 0, Sigma: 1, Nu: df}.Survival(math.Abs(t))
	}
	return res, nil
}
