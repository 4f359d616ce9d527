package stats

import (
	"fmt"
	"math"
	"sort"
)

// DryingOptions parameterise the kinetics of one drying run.
type DryingOptions struct {
	// Target moisture content for TimeToTarget; ignored when <= 0.
	Target float64
	// Equilibrium moisture content Me used in MR = (M - Me)/(M0 - Me).
	Equilibrium float64
	// HalfThickness of the slab in metres; Deff is computed when > 0.
	HalfThickness float64
	// SecondsPerUnit converts the time axis to seconds (3600 for hours).
	SecondsPerUnit float64
	// InitialMassKg and EnergyInputKJ give the energy per kg of water removed.
	InitialMassKg float64
	EnergyInputKJ float64
}

// RatePoint is the drying rate over one interval, at its midpoint.
type RatePoint struct {
	Time float64
	Rate float64 // moisture lost per time unit; positive while drying
}

// ThinLayer is a fitted thin-layer drying model.
type ThinLayer struct {
	Model string
	K     float64
	A     float64 // Henderson-Pabis
	N     float64 // Page
	R2    float64
	RMSE  float64
}

// Drying summarises one moisture-content time series.
type Drying struct {
	Name         string
	Time         []float64
	MC           []float64
	MR           []float64
	Rates        []RatePoint
	MeanRate     float64
	TimeToTarget float64 // NaN when the target is never reached
	Slope        float64 // ln(MR) against time, per time unit
	Deff         float64 // m^2/s; NaN without a half-thickness
	WaterKg      float64
	EnergyPerKg  float64 // kJ per kg water; NaN without energy input
	Models       []ThinLayer
}

// DryingKinetics analyses a moisture-content series (wet basis, percent).
// Points are sorted by time; missing pairs are dropped.
func DryingKinetics(name string, time, mc []float64, opt DryingOptions) (*Drying, error) {
	t, m, err := pairwiseComplete(time, mc)
	if err != nil {
		return nil, err
	}
	if len(t) < 2 {
		return nil, fmt.Errorf("%w: drying series %q has %d points", ErrTooFewObservations, name, len(t))
	}
	idx := make([]int, len(t))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return t[idx[a]] < t[idx[b]] })
	d := &Drying{Name: name, Time: make([]float64, len(t)), MC: make([]float64, len(t))}
	for i, k := range idx {
		d.Time[i], d.MC[i] = t[k], m[k]
	}
	if opt.SecondsPerUnit <= 0 {
		opt.SecondsPerUnit = 3600
	}

	var pos []float64
	for i := 1; i < len(d.Time); i++ {
		dt := d.Time[i] - d.Time[i-1]
		if dt <= 0 {
			continue
		}
		r := (d.MC[i-1] - d.MC[i]) / dt
		d.Rates = append(d.Rates, RatePoint{Time: (d.Time[i] + d.Time[i-1]) / 2, Rate: r})
		if r > 0 {
			pos = append(pos, r)
		}
	}
	d.MeanRate = mean(pos)
	if len(pos) == 0 {
		d.MeanRate = 0
	}
	d.TimeToTarget = timeToTarget(d.Time, d.MC, opt.Target)

	d.MR = make([]float64, len(d.MC))
	den := d.MC[0] - opt.Equilibrium
	for i, v := range d.MC {
		if den == 0 {
			d.MR[i] = math.NaN()
			continue
		}
		d.MR[i] = (v - opt.Equilibrium) / den
	}
	d.Models = fitThinLayer(d.Time, d.MR)
	d.Slope, d.Deff = math.NaN(), math.NaN()
	for _, mdl := range d.Models {
		if mdl.Model == "Henderson-Pabis" {
			d.Slope = -mdl.K
		}
	}
	if opt.HalfThickness > 0 && !math.IsNaN(d.Slope) {
		d.Deff = EffectiveDiffusivity(d.Slope/opt.SecondsPerUnit, opt.HalfThickness)
	}
	d.EnergyPerKg = math.NaN()
	if opt.InitialMassKg > 0 {
		mf := d.MC[len(d.MC)-1]
		if mf < 100 {
			d.WaterKg = opt.InitialMassKg * (d.MC[0] - mf) / (100 - mf)
		}
		if opt.EnergyInputKJ > 0 && d.WaterKg > 0 {
			d.EnergyPerKg = opt.EnergyInputKJ / d.WaterKg
		}
	}
	return d, nil
}

// EffectiveDiffusivity applies Fick's slab solution: Deff = -slope*L^2/pi^2,
// with slope of ln(MR) in 1/s and L the half-thickness in metres.
func EffectiveDiffusivity(slopePerSecond, halfThickness float64) float64 {
	return -slopePerSecond * halfThickness * halfThickness / (math.Pi * math.Pi)
}

// timeToTarget interpolates the first time the series reaches target.
func timeToTarget(t, mc []float64, target float64) float64 {
	if target <= 0 {
		return math.NaN()
	}
	if mc[0] <= target {
		return t[0]
	}
	for i := 1; i < len(t); i++ {
		if mc[i] <= target {
			frac := (mc[i-1] - target) / (mc[i-1] - mc[i])
			return t[i-1] + frac*(t[i]-t[i-1])
		}
	}
	return math.NaN()
}

// fitThinLayer fits Lewis, Henderson-Pabis and Page by linearisation and
// scores each on the MR scale.
func fitThinLayer(t, mr []float64) []ThinLayer {
	var lt, lmr, pt, pmr []float64
	for i := range t {
		if mr[i] > 0 && !math.IsNaN(mr[i]) {
			lt = append(lt, t[i])
			lmr = append(lmr, math.Log(mr[i]))
		}
		if t[i] > 0 && mr[i] > 0 && mr[i] < 1 {
			pt = append(pt, math.Log(t[i]))
			pmr = append(pmr, math.Log(-math.Log(mr[i])))
		}
	}
	var out []ThinLayer
	if len(lt) >= 2 {
		var stt, sty float64
		for i := range lt {
			stt += lt[i] * lt[i]
			sty += lt[i] * lmr[i]
		}
		if stt > 0 {
			k := -sty / stt
			out = append(out, scoreModel(ThinLayer{Model: "Lewis", K: k, A: 1, N: 1}, t, mr))
		}
	}
	if len(lt) >= 3 {
		if lr, err := LinearRegression(lt, lmr); err == nil {
			out = append(out, scoreModel(ThinLayer{Model: "Henderson-Pabis", K: -lr.Slope, A: math.Exp(lr.Intercept), N: 1}, t, mr))
		}
	}
	if len(pt) >= 3 {
		if lr, err := LinearRegression(pt, pmr); err == nil {
			out = append(out, scoreModel(ThinLayer{Model: "Page", K: math.Exp(lr.Intercept), A: 1, N: lr.Slope}, t, mr))
		}
	}
	return out
}

// Predict evaluates the model MR at time t.
func (m ThinLayer) Predict(t float64) float64 {
	return m.A * math.Exp(-m.K*math.Pow(t, m.N))
}

func scoreModel(m ThinLayer, t, mr []float64) ThinLayer {
	var sse, sst float64
	var n int
	mm := mean(dropNaN(mr))
	for i := range t {
		if math.IsNaN(mr[i]) {
			continue
		}
		e := mr[i] - m.Predict(t[i])
		sse += e * e
		sst += (mr[i] - mm) * (mr[i] - mm)
		n++
	}
	m.R2 = math.NaN()
	if sst > 0 {
		m.R2 = 1 - sse/sst
	}
	m.RMSE = math.Sqrt(sse / float64(n))
	return m
}
