package stats

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// PCAResult holds a principal component analysis of standardised variables.
type PCAResult struct {
	Variables []string
	// Rows lists the observation indices kept (rows without missing values).
	Rows []int
	// Loadings[v][c] is the weight of variable v on component c.
	Loadings  [][]float64
	Variances []float64
	Explained []float64 // ratio of total variance per component
	// Scores[r][c] is observation Rows[r] projected on component c.
	Scores [][]float64
}

// PCA standardises each column (population standard deviation; constant
// columns become zero) and extracts up to ncomp components.
func PCA(vars []string, cols [][]float64, ncomp int) (*PCAResult, error) {
	if len(vars) != len(cols) {
		return nil, ErrLengthMismatch
	}
	if len(cols) < 2 {
		return nil, fmt.Errorf("%w: PCA needs at least two variables", ErrTooFewObservations)
	}
	n := len(cols[0])
	var rows []int
outer:
	for i := 0; i < n; i++ {
		for _, c := range cols {
			if len(c) != n {
				return nil, ErrLengthMismatch
			}
			if math.IsNaN(c[i]) {
				continue outer
			}
		}
		rows = append(rows, i)
	}
	if len(rows) < 2 {
		return nil, fmt.Errorf("%w: PCA needs two complete observations, got %d", ErrTooFewObservations, len(rows))
	}
	p := len(cols)
	z := mat.NewDense(len(rows), p, nil)
	for j, c := range cols {
		v := make([]float64, len(rows))
		for r, i := range rows {
			v[r] = c[i]
		}
		m := mean(v)
		sd := math.Sqrt(stat.MomentAbout(2, v, m, nil))
		for r := range v {
			if sd > 0 {
				z.Set(r, j, (v[r]-m)/sd)
			}
		}
	}
	var pc stat.PC
	if ok := pc.PrincipalComponents(z, nil); !ok {
		return nil, fmt.Errorf("pca: decomposition failed")
	}
	var vecs mat.Dense
	pc.VectorsTo(&vecs)
	variances := pc.VarsTo(nil)
	if ncomp <= 0 || ncomp > len(variances) {
		ncomp = len(variances)
	}
	res := &PCAResult{Variables: vars, Rows: rows}
	var total float64
	for _, v := range variances {
		total += v
	}
	for c := 0; c < ncomp; c++ {
		res.Variances = append(res.Variances, variances[c])
		if total > 0 {
			res.Explained = append(res.Explained, variances[c]/total)
		} else {
			res.Explained = append(res.Explained, 0)
		}
	}
	_, vc := vecs.Dims()
	for j := 0; j < p; j++ {
		l := make([]float64, ncomp)
		for c := 0; c < ncomp && c < vc; c++ {
			l[c] = vecs.At(j, c)
		}
		res.Loadings = append(res.Loadings, l)
	}
	var scores mat.Dense
	scores.Mul(z, vecs.Slice(0, p, 0, min(ncomp, vc)))
	for r := range rows {
		res.Scores = append(res.Scores, mat.Row(nil, r, &scores))
	}
	return res, nil
}
