package stats

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat/distuv"
)

// ANOVA is a one-way analysis of variance table.
type ANOVA struct {
	Groups     []string
	N          []int
	Means      []float64
	GrandMean  float64
	SSBetween  float64
	SSWithin   float64
	SSTotal    float64
	DFBetween  int
	DFWithin   int
	MSBetween  float64
	MSWithin   float64
	F          float64
	P          float64
	EtaSquared float64
}

// Significant reports p < alpha.
func (a *ANOVA) Significant(alpha float64) bool {
	return !math.IsNaN(a.P) && a.P < alpha
}

// OneWayANOVA compares the means of two or more groups. NaN values are
// dropped. When every group has zero spread, F is +Inf with p = 0 if the means
// differ and NaN if all values are equal.
func OneWayANOVA(groups []Group) (*ANOVA, error) {
	if len(groups) < 2 {
		return nil, fmt.Errorf("%w (got %d)", ErrTooFewGroups, len(groups))
	}
	a := &ANOVA{}
	clean := make([][]float64, len(groups))
	var total float64
	var n int
	for i, g := range groups {
		v := dropNaN(g.Values)
		if len(v) == 0 {
			return nil, fmt.Errorf("%w: %q", ErrEmptyGroup, g.Name)
		}
		clean[i] = v
		a.Groups = append(a.Groups, g.Name)
		a.N = append(a.N, len(v))
		m := mean(v)
		a.Means = append(a.Means, m)
		total += m * float64(len(v))
		n += len(v)
	}
	k := len(groups)
	if n <= k {
		return nil, fmt.Errorf("%w: %d values in %d groups", ErrTooFewObservations, n, k)
	}
	a.GrandMean = total / float64(n)
	for i, v := range clean {
		d := a.Means[i] - a.GrandMean
		a.SSBetween += float64(len(v)) * d * d
		for _, x := range v {
			e := x - a.Means[i]
			a.SSWithin += e * e
		}
	}
	a.SSTotal = a.SSBetween + a.SSWithin
	a.DFBetween = k - 1
	a.DFWithin = n - k
	a.MSBetween = a.SSBetween / float64(a.DFBetween)
	a.MSWithin = a.SSWithin / float64(a.DFWithin)
	if a.SSTotal > 0 {
		a.EtaSquared = a.SSBetween / a.SSTotal
	}
	switch {
	case a.SSWithin == 0 && a.SSBetween == 0:
		a.F, a.P = math.NaN(), math.NaN()
	case a.SSWithin == 0:
		a.F, a.P = math.Inf(1), 0
	default:
		a.F = a.MSBetween / a.MSWithin
		a.P = distuv.F{D1: float64(a.DFBetween), D2: float64(a.DFWithin)}.Survival(a.F)
	}
	return a, nil
}

// ParameterANOVA is one row of a "one ANOVA per parameter" table.
type ParameterANOVA struct {
	Parameter string
	Result    *ANOVA
	Err       error
}

// ANOVAByParameter runs OneWayANOVA for each parameter's groups. Parameters
// whose test cannot be computed keep the error instead of failing the batch.
// Rows keep the order of params.
func ANOVAByParameter(params []string, groups map[string][]Group) []ParameterANOVA {
	out := make([]ParameterANOVA, 0, len(params))
	for _, p := range params {
		res, err := OneWayANOVA(groups[p])
		out = append(out, ParameterANOVA{Parameter: p, Result: res, Err: err})
	}
	return out
}

// TopByF returns up to n parameters with the largest finite F, descending.
func TopByF(rows []ParameterANOVA, n int) []string {
	type kv struct {
		name string
		f    float64
	}
	var ok []kv
	for _, r := range rows {
		if r.Err != nil || r.Result == nil || math.IsNaN(r.Result.F) {
			continue
		}
		ok = append(ok, kv{r.Parameter, r.Result.F})
	}
	sort.SliceStable(ok, func(i, j int) bool { return ok[i].f > ok[j].f })
	if len(ok) > n {
		ok = ok[:n]
	}
	out := make([]string, len(ok))
	for i, e := range ok {
		out[i] = e.name
	}
	return out
}
