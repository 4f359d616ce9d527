// Package chart describes report figures as data (Spec) and renders them as
// PNG images for documents or as an interactive HTML dashboard.
package chart

import (
	"errors"
	"fmt"
	"math"
)

// Kind selects how a Spec is drawn.
type Kind string

const (
	Line       Kind = "line"
	Scatter    Kind = "scatter"
	Bar        Kind = "bar"
	StackedBar Kind = "stacked-bar"
	Box        Kind = "box"
	Histogram  Kind = "histogram"
	Heatmap    Kind = "heatmap"
	Contour    Kind = "contour"
	// Fit draws the first series as points and the second as a line.
	Fit Kind = "fit"
)

var ErrEmptySpec = errors.New("chart has no data")

// Series is one named set of values. Bar kinds read Y per category; box and
// histogram kinds read Y as the sample; point kinds read X and Y pairwise.
type Series struct {
	Name   string
	X      []float64
	Y      []float64
	Err    []float64 // symmetric error bars on Y (bars, lines)
	Labels []string  // per-point annotations
}

// Grid is a regular surface: Z[row][col] at (X[col], Y[row]).
type Grid struct {
	X, Y []float64
	Z    [][]float64
}

// RefLine is a horizontal reference line.
type RefLine struct {
	Name  string
	Value float64
}

// Spec is a chart described as data.
type Spec struct {
	Name       string // file-safe identifier
	Kind       Kind
	Title      string
	XLabel     string
	YLabel     string
	Categories []string
	Series     []Series
	Grid       *Grid
	RefLines   []RefLine
	Bins       int // histogram bins; 0 picks Sturges' rule
}

// Validate checks the shape of the data against the kind.
func (s *Spec) Validate() error {
	switch s.Kind {
	case Heatmap, Contour:
		if s.Grid == nil || len(s.Grid.X) < 2 || len(s.Grid.Y) < 2 {
			return fmt.Errorf("%w: %s %q needs a grid of at least 2x2", ErrEmptySpec, s.Kind, s.Title)
		}
		if len(s.Grid.Z) != len(s.Grid.Y) {
			return fmt.Errorf("chart %q: grid has %d rows for %d y values", s.Title, len(s.Grid.Z), len(s.Grid.Y))
		}
		for _, row := range s.Grid.Z {
			if len(row) != len(s.Grid.X) {
				return fmt.Errorf("chart %q: grid row has %d values for %d x values", s.Title, len(row), len(s.Grid.X))
			}
		}
		return nil
	case Line, Scatter, Bar, StackedBar, Box, Histogram, Fit:
	default:
		return fmt.Errorf("unknown chart kind %q", s.Kind)
	}
	if len(s.Series) == 0 {
		return fmt.Errorf("%w: %q", ErrEmptySpec, s.Title)
	}
	for _, sr := range s.Series {
		switch s.Kind {
		case Bar, StackedBar:
			if len(sr.Y) != len(s.Categories) {
				return fmt.Errorf("chart %q: series %q has %d values for %d categories", s.Title, sr.Name, len(sr.Y), len(s.Categories))
			}
		case Line, Scatter, Fit:
			if len(sr.X) != len(sr.Y) {
				return fmt.Errorf("chart %q: series %q has %d x and %d y values", s.Title, sr.Name, len(sr.X), len(sr.Y))
			}
		}
		if len(sr.Err) > 0 && len(sr.Err) != len(sr.Y) {
			return fmt.Errorf("chart %q: series %q has %d error values for %d y values", s.Title, sr.Name, len(sr.Err), len(sr.Y))
		}
		if len(sr.Labels) > 0 && len(sr.Labels) != len(sr.Y) {
			return fmt.Errorf("chart %q: series %q has %d labels for %d y values", s.Title, sr.Name, len(sr.Labels), len(sr.Y))
		}
	}
	if s.Kind == Fit && len(s.Series) < 2 {
		return fmt.Errorf("chart %q: fit needs observed and fitted series", s.Title)
	}
	return nil
}

// squareCategories reports whether a heatmap labels both axes with
// Categories, as for a correlation matrix over grid positions 0..n-1.
func (s *Spec) squareCategories() bool {
	return s.Kind == Heatmap && s.Grid != nil && len(s.Categories) > 0 &&
		len(s.Categories) == len(s.Grid.X) && len(s.Grid.X) == len(s.Grid.Y)
}

// finite drops NaN and Inf values.
func finite(vs []float64) []float64 {
	out := make([]float64, 0, len(vs))
	for _, v := range vs {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			out = append(out, v)
		}
	}
	return out
}

// sturges returns the default histogram bin count for n values.
func sturges(n int) int {
	if n < 2 {
		return 1
	}
	return int(math.Ceil(math.Log2(float64(n)))) + 1
}
