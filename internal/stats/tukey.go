package stats

import (
	"fmt"
	"math"
)

// TukeyPair is one pairwise comparison. Diff is mean(B) - mean(A).
type TukeyPair struct {
	A, B   string
	Diff   float64
	SE     float64
	Q      float64
	P      float64
	Lower  float64
	Upper  float64
	Reject bool
}

// Tukey holds Tukey's honestly significant difference comparisons.
type Tukey struct {
	Alpha    float64
	MSWithin float64
	DF       int
	QCrit    float64
	Pairs    []TukeyPair
}

// Significant returns the pairs whose difference is significant.
func (t *Tukey) Significant() []TukeyPair {
	var out []TukeyPair
	for _, p := range t.Pairs {
		if p.Reject {
			out = append(out, p)
		}
	}
	return out
}

// TukeyHSD compares every pair of groups (i < j, in group order) using the
// pooled within-group variance. Unequal group sizes use the Tukey-Kramer
// standard error.
func TukeyHSD(groups []Group, alpha float64) (*Tukey, error) {
	a, err := OneWayANOVA(groups)
	if err != nil {
		return nil, err
	}
	if alpha <= 0 || alpha >= 1 {
		return nil, fmt.Errorf("alpha must be in (0,1), got %g", alpha)
	}
	k := float64(len(groups))
	df := float64(a.DFWithin)
	res := &Tukey{Alpha: alpha, MSWithin: a.MSWithin, DF: a.DFWithin}
	if df >= 2 {
		res.QCrit = QTukey(1-alpha, k, df)
	} else {
		res.QCrit = math.NaN()
	}
	for i := 0; i < len(groups); i++ {
		for j := i + 1; j < len(groups); j++ {
			p := TukeyPair{A: a.Groups[i], B: a.Groups[j], Diff: a.Means[j] - a.Means[i]}
			p.SE = math.Sqrt(a.MSWithin / 2 * (1/float64(a.N[i]) + 1/float64(a.N[j])))
			switch {
			case p.SE == 0 && p.Diff == 0:
				p.Q, p.P = math.NaN(), math.NaN()
			case p.SE == 0:
				p.Q, p.P = math.Inf(1), 0
			default:
				p.Q = math.Abs(p.Diff) / p.SE
				if df >= 2 {
					p.P = clamp01(1 - PTukey(p.Q, k, df))
				} else {
					p.P = math.NaN()
				}
			}
			half := res.QCrit * p.SE
			p.Lower, p.Upper = p.Diff-half, p.Diff+half
			p.Reject = !math.IsNaN(p.P) && p.P < alpha
			res.Pairs = append(res.Pairs, p)
		}
	}
	return res, nil
}

func clamp01(x float64) float64 {
	return math.Max(0, math.Min(1, x))
}
