package stats

import (
	"math"

	"fieldtrial/domain/core"
)

// Statistics is the descriptive summary of one measured variable across a study.
// Variance and StdDev are sample estimates; both are zero for a single value.
type Statistics struct {
	Count    int     `json:"count"`
	Sum      float64 `json:"sum"`
	Mean     float64 `json:"mean"`
	Min      float64 `json:"min"`
	Max      float64 `json:"max"`
	Median   float64 `json:"median"`
	Variance float64 `json:"variance"`
	StdDev   float64 `json:"stdev"`

	// 95% confidence interval of the mean; equal to Mean when Count < 2
	CILow  float64 `json:"ci95_low"`
	CIHigh float64 `json:"ci95_high"`
}

// ToJSON renders the payload. The client minimal view keeps the headline numbers only.
func (s *Statistics) ToJSON(format core.ViewFormat) core.Document {
	doc := core.Document{
		"count": s.Count,
		"mean":  finite(s.Mean),
		"min":   finite(s.Min),
		"max":   finite(s.Max),
		"stdev": finite(s.StdDev),
	}
	if format == core.ViewClientMinimal {
		return doc
	}
	doc["sum"] = finite(s.Sum)
	doc["median"] = finite(s.Median)
	doc["variance"] = finite(s.Variance)
	doc["ci95_low"] = finite(s.CILow)
	doc["ci95_high"] = finite(s.CIHigh)
	return doc
}

// FromJSON reads a payload written by ToJSON. Missing numbers stay zero.
func FromJSON(doc core.Document) *Statistics {
	s := &Statistics{}
	if n, ok := core.GetInt(doc, "count"); ok {
		s.Count = int(n)
	}
	fields := map[string]*float64{
		"sum":       &s.Sum,
		"mean":      &s.Mean,
		"min":       &s.Min,
		"max":       &s.Max,
		"median":    &s.Median,
		"variance":  &s.Variance,
		"stdev":     &s.StdDev,
		"ci95_low":  &s.CILow,
		"ci95_high": &s.CIHigh,
	}
	for key, dst := range fields {
		if f, ok := core.ToFloat64(doc[key]); ok {
			*dst = f
		}
	}
	return s
}

// JSON has no NaN or Inf
func finite(f float64) any {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return f
}
