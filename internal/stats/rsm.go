package stats

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/optimize"
)

// Factor relates coded and actual units: actual = Center + Step*coded.
type Factor struct {
	Name   string
	Center float64
	Step   float64
	Unit   string
}

// Actual converts a coded level.
func (f Factor) Actual(coded float64) float64 {
	if f.Step == 0 {
		return coded
	}
	return f.Center + f.Step*coded
}

// Coded converts an actual level.
func (f Factor) Coded(actual float64) float64 {
	if f.Step == 0 {
		return actual
	}
	return (actual - f.Center) / f.Step
}

// RSM is a second-order response surface fitted on coded factors.
type RSM struct {
	Factors  []Factor
	Fit      *OLS
	Bound    float64
	Maximize bool
	Optimum  Optimum
}

// Optimum is the best point of the fitted surface inside the bounds.
type Optimum struct {
	Coded     []float64
	Actual    []float64
	Predicted float64
}

// RSMOptions control the fit and the search.
type RSMOptions struct {
	// Bound limits each coded factor to [-Bound, Bound]; 0 means 2.
	Bound float64
	// Minimize searches for the smallest response instead of the largest.
	Minimize bool
	// CodedInput reports that cols are already coded levels.
	CodedInput bool
}

// FitRSM fits a full quadratic model of y on the coded factors and locates
// its optimum within the bounds. cols holds one column per factor.
func FitRSM(factors []Factor, cols [][]float64, y []float64, opt RSMOptions) (*RSM, error) {
	if len(factors) == 0 {
		return nil, fmt.Errorf("%w: response surface needs at least one factor", ErrTooFewObservations)
	}
	if len(cols) != len(factors) {
		return nil, ErrLengthMismatch
	}
	coded := cols
	if !opt.CodedInput {
		coded = make([][]float64, len(cols))
		for j, c := range cols {
			coded[j] = make([]float64, len(c))
			for i, v := range c {
				coded[j][i] = factors[j].Coded(v)
			}
		}
	}
	names := make([]string, len(factors))
	for i, f := range factors {
		names[i] = f.Name
	}
	fit, err := FitModel(Model{Factors: names, Kind: Quadratic}, coded, y)
	if err != nil {
		return nil, err
	}
	bound := opt.Bound
	if bound <= 0 {
		bound = 2
	}
	r := &RSM{Factors: factors, Fit: fit, Bound: bound, Maximize: !opt.Minimize}
	starts := [][]float64{make([]float64, len(factors))}
	if best := bestRun(coded, y, r.Maximize); best != nil {
		starts = append(starts, best)
	}
	r.Optimum = r.search(starts)
	return r, nil
}

// Predict evaluates the surface at coded levels.
func (r *RSM) Predict(coded []float64) float64 {
	v, _ := r.Fit.Predict(coded)
	return v
}

// bestRun returns the coded levels of the observed run with the best response.
func bestRun(coded [][]float64, y []float64, maximize bool) []float64 {
	bi := -1
	for i, v := range y {
		if math.IsNaN(v) {
			continue
		}
		if bi < 0 || (maximize && v > y[bi]) || (!maximize && v < y[bi]) {
			bi = i
		}
	}
	if bi < 0 {
		return nil
	}
	out := make([]float64, len(coded))
	for j := range coded {
		out[j] = coded[j][bi]
	}
	return out
}

// search runs Nelder-Mead from each start on x = Bound*tanh(z), which keeps
// every evaluation inside the box.
func (r *RSM) search(starts [][]float64) Optimum {
	sign := -1.0
	if !r.Maximize {
		sign = 1
	}
	toBox := func(z []float64) []float64 {
		x := make([]float64, len(z))
		for i, v := range z {
			x[i] = r.Bound * math.Tanh(v)
		}
		return x
	}
	problem := optimize.Problem{Func: func(z []float64) float64 {
		return sign * r.Predict(toBox(z))
	}}
	var best []float64
	bestVal := math.Inf(1)
	for _, s := range starts {
		z0 := make([]float64, len(s))
		for i, v := range s {
			c := math.Max(-0.999, math.Min(0.999, v/r.Bound))
			z0[i] = math.Atanh(c)
		}
		res, err := optimize.Minimize(problem, z0, nil, &optimize.NelderMead{})
		if res == nil {
			if err == nil {
				continue
			}
			res = &optimize.Result{Location: optimize.Location{X: z0, F: problem.Func(z0)}}
		}
		if res.F < bestVal {
			bestVal = res.F
			best = toBox(res.X)
		}
	}
	o := Optimum{Coded: best, Predicted: r.Predict(best)}
	o.Actual = make([]float64, len(best))
	for i, v := range best {
		o.Actual[i] = r.Factors[i].Actual(v)
	}
	return o
}

// Grid is a rectangular evaluation of a surface: Z[row][col] at (X[col], Y[row]).
type Grid struct {
	XName, YName string
	X, Y         []float64
	Z            [][]float64
}

// Surface evaluates the fitted model over factors i and j on an n-by-n coded
// grid spanning the bounds, other factors held at hold (coded).
func (r *RSM) Surface(i, j, n int, hold float64) (*Grid, error) {
	k := len(r.Factors)
	if i < 0 || j < 0 || i >= k || j >= k || i == j {
		return nil, fmt.Errorf("surface: invalid factor pair %d,%d", i, j)
	}
	if n < 2 {
		n = 25
	}
	g := &Grid{XName: r.Factors[i].Name, YName: r.Factors[j].Name, X: make([]float64, n), Y: make([]float64, n)}
	for s := 0; s < n; s++ {
		v := -r.Bound + 2*r.Bound*float64(s)/float64(n-1)
		g.X[s], g.Y[s] = v, v
	}
	x := make([]float64, k)
	for row := 0; row < n; row++ {
		zr := make([]float64, n)
		for col := 0; col < n; col++ {
			for f := range x {
				x[f] = hold
			}
			x[i], x[j] = g.X[col], g.Y[row]
			zr[col] = r.Predict(x)
		}
		g.Z = append(g.Z, zr)
	}
	return g, nil
}
