package stats

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// Coefficient is one estimated term.
type Coefficient struct {
	Term     string
	Estimate float64
	SE       float64
	T        float64
	P        float64
}

// ANOVARow is one line of a regression ANOVA table.
type ANOVARow struct {
	Source string
	DF     int
	SS     float64
	MS     float64
	F      float64
	P      float64
}

// OLS is an ordinary least squares fit.
type OLS struct {
	Model        *Model
	N            int
	Coefficients []Coefficient
	Fitted       []float64
	Residuals    []float64
	Y            []float64
	R2           float64
	AdjR2        float64
	SSE          float64
	SSR          float64
	SST          float64
	MSE          float64
	RMSE         float64 // sqrt(SSE/n)
	F            float64
	P            float64
	Table        []ANOVARow
}

// Beta returns the estimates in term order.
func (o *OLS) Beta() []float64 {
	out := make([]float64, len(o.Coefficients))
	for i, c := range o.Coefficients {
		out[i] = c.Estimate
	}
	return out
}

// Predict evaluates a model fit at factor values x.
func (o *OLS) Predict(x []float64) (float64, error) {
	if o.Model == nil {
		return 0, fmt.Errorf("predict: fit has no factor model")
	}
	if len(x) != len(o.Model.Factors) {
		return 0, fmt.Errorf("%w: predict with %d values for %d factors", ErrLengthMismatch, len(x), len(o.Model.Factors))
	}
	row := o.Model.Row(x)
	var y float64
	for i, c := range o.Coefficients {
		y += c.Estimate * row[i]
	}
	return y, nil
}

// FitModel builds the design for m and fits y.
func FitModel(m Model, cols [][]float64, y []float64) (*OLS, error) {
	X, ys, err := m.Design(cols, y)
	if err != nil {
		return nil, err
	}
	fit, err := FitOLS(m.TermNames(), X, ys)
	if err != nil {
		return nil, err
	}
	fit.Model = &m
	return fit, nil
}

// FitOLS solves y = X b by QR. The first column of X is taken to be the
// intercept when its name is "Intercept".
func FitOLS(names []string, X *mat.Dense, y []float64) (*OLS, error) {
	n, p := X.Dims()
	if len(names) != p || len(y) != n {
		return nil, ErrLengthMismatch
	}
	if n <= p {
		return nil, fmt.Errorf("%w: %d observations for %d terms", ErrTooFewObservations, n, p)
	}
	var qr mat.QR
	qr.Factorize(X)
	if c := qr.Cond(); math.IsInf(c, 1) || c > 1e12 {
		return nil, fmt.Errorf("%w (condition number %.3g)", ErrSingular, c)
	}
	yv := mat.NewDense(n, 1, append([]float64(nil), y...))
	var b mat.Dense
	if err := qr.SolveTo(&b, false, yv); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSingular, err)
	}
	var xtx, inv mat.Dense
	xtx.Mul(X.T(), X)
	if err := inv.Inverse(&xtx); err != nil {
		var cond mat.Condition
		if !errors.As(err, &cond) {
			return nil, fmt.Errorf("%w: %v", ErrSingular, err)
		}
	}

	o := &OLS{N: n, Y: append([]float64(nil), y...)}
	o.Fitted = make([]float64, n)
	o.Residuals = make([]float64, n)
	ym := mean(y)
	for i := 0; i < n; i++ {
		var f float64
		for j := 0; j < p; j++ {
			f += X.At(i, j) * b.At(j, 0)
		}
		o.Fitted[i] = f
		o.Residuals[i] = y[i] - f
		o.SSE += o.Residuals[i] * o.Residuals[i]
		o.SST += (y[i] - ym) * (y[i] - ym)
		o.SSR += (f - ym) * (f - ym)
	}
	dfRes := n - p
	dfReg := p
	if names[0] == "Intercept" {
		dfReg = p - 1
	}
	o.MSE = o.SSE / float64(dfRes)
	o.RMSE = math.Sqrt(o.SSE / float64(n))
	if o.SST > 0 {
		o.R2 = 1 - o.SSE/o.SST
		o.AdjR2 = 1 - (1-o.R2)*float64(n-1)/float64(n-p)
	}
	tdist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: float64(dfRes)}
	for j := 0; j < p; j++ {
		c := Coefficient{Term: names[j], Estimate: b.At(j, 0)}
		c.SE = math.Sqrt(o.MSE * inv.At(j, j))
		if c.SE > 0 {
			c.T = c.Estimate / c.SE
			c.P = 2 * tdist.Survival(math.Abs(c.T))
		} else {
			c.T, c.P = math.NaN(), math.NaN()
		}
		o.Coefficients = append(o.Coefficients, c)
	}
	o.F, o.P = math.NaN(), math.NaN()
	if dfReg > 0 {
		msr := o.SSR / float64(dfReg)
		if o.MSE > 0 {
			o.F = msr / o.MSE
			o.P = distuv.F{D1: float64(dfReg), D2: float64(dfRes)}.Survival(o.F)
		}
		o.Table = []ANOVARow{
			{Source: "Regression", DF: dfReg, SS: o.SSR, MS: msr, F: o.F, P: o.P},
			{Source: "Residual", DF: dfRes, SS: o.SSE, MS: o.MSE, F: math.NaN(), P: math.NaN()},
			{Source: "Total", DF: dfReg + dfRes, SS: o.SST, MS: math.NaN(), F: math.NaN(), P: math.NaN()},
		}
	}
	return o, nil
}
