package stats

import (
	"fmt"
	"math"
)

// WQIMethod selects the aggregation of a water quality index.
type WQIMethod string

const (
	// MeanRatio averages value/standard*100 over parameters.
	MeanRatio WQIMethod = "mean-ratio"
	// WeightedArithmetic weights sub-indices by 1/standard with an ideal value.
	WeightedArithmetic WQIMethod = "weighted-arithmetic"
)

// ParseWQIMethod maps recipe spellings to a method (default mean-ratio).
func ParseWQIMethod(s string) (WQIMethod, error) {
	switch s {
	case "", string(MeanRatio), "mean_ratio":
		return MeanRatio, nil
	case string(WeightedArithmetic), "weighted_arithmetic", "weighted":
		return WeightedArithmetic, nil
	}
	return "", fmt.Errorf("unknown WQI method %q (use mean-ratio or weighted-arithmetic)", s)
}

// Standard is the guideline limit of one parameter. Ideal is the value of
// pure water (0 for most parameters, 7 for pH, 14.6 for DO).
type Standard struct {
	Parameter string
	Limit     float64
	Ideal     float64
}

// SubIndex is the contribution of one parameter at one site.
type SubIndex struct {
	Parameter string
	Value     float64
	Q         float64
	Weight    float64
}

// WQI is the index of one site.
type WQI struct {
	Site     string
	Index    float64
	Category string
	Subs     []SubIndex
}

// WaterQualityIndex aggregates one site's values, aligned with standards.
// Parameters with a missing value or a non-positive limit are skipped.
func WaterQualityIndex(site string, values []float64, standards []Standard, method WQIMethod) (*WQI, error) {
	if len(values) != len(standards) {
		return nil, ErrLengthMismatch
	}
	w := &WQI{Site: site, Index: math.NaN()}
	var sumQW, sumW float64
	for i, s := range standards {
		v := values[i]
		if math.IsNaN(v) || s.Limit <= 0 {
			continue
		}
		sub := SubIndex{Parameter: s.Parameter, Value: v}
		switch method {
		case WeightedArithmetic:
			if s.Limit == s.Ideal {
				continue
			}
			sub.Q = 100 * (v - s.Ideal) / (s.Limit - s.Ideal)
			sub.Weight = 1 / s.Limit
		default:
			sub.Q = v / s.Limit * 100
			sub.Weight = 1
		}
		sumQW += sub.Q * sub.Weight
		sumW += sub.Weight
		w.Subs = append(w.Subs, sub)
	}
	if len(w.Subs) == 0 {
		return nil, fmt.Errorf("%w: no parameter of %q has a standard", ErrTooFewObservations, site)
	}
	w.Index = sumQW / sumW
	w.Category = WQICategory(w.Index)
	return w, nil
}

// WQICategory bins an index with right-closed intervals: (0,50] Excellent,
// (50,100] Good, (100,200] Poor, above 200 Very Poor.
func WQICategory(index float64) string {
	switch {
	case math.IsNaN(index) || index <= 0:
		return "Unclassified"
	case index <= 50:
		return "Excellent"
	case index <= 100:
		return "Good"
	case index <= 200:
		return "Poor"
	}
	return "Very Poor"
}
