package stats

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// Corr is one pairwise Pearson correlation.
type Corr struct {
	A, B string
	R    float64
	P    float64
	N    int
}

// CorrMatrix is a symmetric Pearson correlation matrix.
type CorrMatrix struct {
	Names  []string
	Values [][]float64
	Pairs  []Corr // off-diagonal, sorted by |r| descending
}

// Pearson correlates x and y over rows where both are present. p is the
// two-sided t-test of r = 0; NaN when fewer than three rows remain or a
// variable is constant.
func Pearson(x, y []float64) (Corr, error) {
	xs, ys, err := pairwiseComplete(x, y)
	if err != nil {
		return Corr{}, err
	}
	c := Corr{N: len(xs), R: math.NaN(), P: math.NaN()}
	if len(xs) < 2 {
		return c, nil
	}
	_, sx := stat.MeanStdDev(xs, nil)
	_, sy := stat.MeanStdDev(ys, nil)
	if sx == 0 || sy == 0 {
		return c, nil
	}
	c.R = math.Max(-1, math.Min(1, stat.Correlation(xs, ys, nil)))
	if len(xs) > 2 {
		if math.Abs(c.R) == 1 {
			c.P = 0
		} else {
			df := float64(len(xs) - 2)
			t := c.R * math.Sqrt(df/(1-c.R*c.R))
			c.P = 2 * distuv.StudentsT{Mu: 0, Sigma: 1, Nu: df}.Survival(math.Abs(t))
		}
	}
	return c, nil
}

// Correlations builds the matrix over named columns. Undefined pairs are 0 in
// Values and omitted from Pairs.
func Correlations(names []string, cols [][]float64) (*CorrMatrix, error) {
	if len(names) != len(cols) {
		return nil, ErrLengthMismatch
	}
	m := &CorrMatrix{Names: names, Values: make([][]float64, len(cols))}
	for i := range cols {
		m.Values[i] = make([]float64, len(cols))
		m.Values[i][i] = 1
	}
	for i := 0; i < len(cols); i++ {
		for j := i + 1; j < len(cols); j++ {
			c, err := Pearson(cols[i], cols[j])
			if err != nil {
				return nil, err
			}
			if math.IsNaN(c.R) {
				continue
			}
			m.Values[i][j], m.Values[j][i] = c.R, c.R
			c.A, c.B = names[i], names[j]
			m.Pairs = append(m.Pairs, c)
		}
	}
	sort.SliceStable(m.Pairs, func(a, b int) bool {
		return math.Abs(m.Pairs[a].R) > math.Abs(m.Pairs[b].R)
	})
	return m, nil
}
