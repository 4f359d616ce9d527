package stats

import "math"

// SieveFraction summarises one size class across replications.
type SieveFraction struct {
	Category string
	Summary  Summary
	// Percent is the mean retained weight as a share of the charge.
	Percent float64
}

// Sieve is the result of a replicated sieve analysis.
type Sieve struct {
	Charge    float64
	Fractions []SieveFraction
	ANOVA     *ANOVA
	ANOVAErr  error
}

// SieveAnalysis summarises retained weights per category. charge is the mass
// of one replication; 0 uses the sum of the category means.
func SieveAnalysis(groups []Group, charge float64) *Sieve {
	s := &Sieve{Charge: charge}
	if charge <= 0 {
		for _, g := range groups {
			if m := mean(dropNaN(g.Values)); !math.IsNaN(m) {
				s.Charge += m
			}
		}
	}
	for _, g := range groups {
		f := SieveFraction{Category: g.Name, Summary: Describe(g.Values)}
		if s.Charge > 0 {
			f.Percent = f.Summary.Mean / s.Charge * 100
		}
		s.Fractions = append(s.Fractions, f)
	}
	s.ANOVA, s.ANOVAErr = OneWayANOVA(groups)
	return s
}
