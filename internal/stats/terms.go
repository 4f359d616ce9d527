package stats

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// ModelKind selects how factors expand into regression terms.
type ModelKind string

const (
	// Linear: intercept + one term per factor.
	Linear ModelKind = "linear"
	// Quadratic: intercept, linear terms, squares, then two-way interactions.
	Quadratic ModelKind = "quadratic"
	// Interaction: intercept, linear terms and two-way interactions.
	Interaction ModelKind = "interaction"
)

// Model describes the terms of a regression over numeric factors.
type Model struct {
	Factors []string
	Kind    ModelKind
}

// ParseModelKind maps recipe spellings to a ModelKind.
func ParseModelKind(s string) (ModelKind, error) {
	switch ModelKind(s) {
	case "", Linear:
		return Linear, nil
	case Quadratic, "second-order", "rsm":
		return Quadratic, nil
	case Interaction:
		return Interaction, nil
	}
	return "", fmt.Errorf("unknown model %q (use linear, interaction or quadratic)", s)
}

func (m Model) squares() bool { return m.Kind == Quadratic }
func (m Model) interactions() bool {
	return m.Kind == Quadratic || m.Kind == Interaction
}

// TermNames returns the column names of the design matrix, formula style:
// Intercept, X1, I(X1^2), X1:X2.
func (m Model) TermNames() []string {
	names := []string{"Intercept"}
	names = append(names, m.Factors...)
	if m.squares() {
		for _, f := range m.Factors {
			names = append(names, fmt.Sprintf("I(%s^2)", f))
		}
	}
	if m.interactions() {
		for i := 0; i < len(m.Factors); i++ {
			for j := i + 1; j < len(m.Factors); j++ {
				names = append(names, m.Factors[i]+":"+m.Factors[j])
			}
		}
	}
	return names
}

// Row expands one observation of the factors into design-matrix values.
func (m Model) Row(x []float64) []float64 {
	row := make([]float64, 0, len(m.TermNames()))
	row = append(row, 1)
	row = append(row, x...)
	if m.squares() {
		for _, v := range x {
			row = append(row, v*v)
		}
	}
	if m.interactions() {
		for i := 0; i < len(x); i++ {
			for j := i + 1; j < len(x); j++ {
				row = append(row, x[i]*x[j])
			}
		}
	}
	return row
}

// Design builds the design matrix from per-factor columns. Rows where any
// factor or y is NaN are dropped; the kept y values are returned alongside.
func (m Model) Design(cols [][]float64, y []float64) (*mat.Dense, []float64, error) {
	if len(cols) != len(m.Factors) {
		return nil, nil, fmt.Errorf("%w: %d factor columns for %d factors", ErrLengthMismatch, len(cols), len(m.Factors))
	}
	for _, c := range cols {
		if len(c) != len(y) {
			return nil, nil, ErrLengthMismatch
		}
	}
	var data, ys []float64
	rows := 0
	x := make([]float64, len(cols))
outer:
	for i := range y {
		if math.IsNaN(y[i]) {
			continue
		}
		for j, c := range cols {
			if math.IsNaN(c[i]) {
				continue outer
			}
			x[j] = c[i]
		}
		data = append(data, m.Row(x)...)
		ys = append(ys, y[i])
		rows++
	}
	p := len(m.TermNames())
	if rows == 0 {
		return nil, nil, fmt.Errorf("%w: no complete rows", ErrTooFewObservations)
	}
	return mat.NewDense(rows, p, data), ys, nil
}

// OneHot builds a treatment-coded design for a categorical factor, the first
// level being the reference: Intercept, C(name)[T.level]...
func OneHot(name string, labels []string) ([]string, *mat.Dense, []string) {
	var levels []string
	pos := map[string]int{}
	for _, l := range labels {
		if _, ok := pos[l]; !ok {
			pos[l] = len(levels)
			levels = append(levels, l)
		}
	}
	names := []string{"Intercept"}
	for _, l := range levels[min(1, len(levels)):] {
		names = append(names, fmt.Sprintf("C(%s)[T.%s]", name, l))
	}
	X := mat.NewDense(max(len(labels), 1), len(names), nil)
	for i, l := range labels {
		X.Set(i, 0, 1)
		if k := pos[l]; k > 0 {
			X.Set(i, k, 1)
		}
	}
	return names, X, levels
}
