// Package accumulator summarises the values of one measured variable
package accumulator

import (
	"fmt"
	"math"

	"fieldtrial/domain/core"
	domainstats "fieldtrial/domain/stats"
	"fieldtrial/ports"

	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/stat/distuv"
)

// DefaultCapacity bounds the values held for one variable
const DefaultCapacity = 100000

// Accumulator is a fixed-capacity buffer of values. It is not safe for concurrent use.
type Accumulator struct {
	capacity int
	values   []float64
}

var _ ports.Accumulator = (*Accumulator)(nil)

// New creates an accumulator holding at most capacity values
func New(capacity int) *Accumulator {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Accumulator{capacity: capacity}
}

// Factory returns a ports.AccumulatorFactory for the given capacity
func Factory(capacity int) ports.AccumulatorFactory {
	return func() ports.Accumulator { return New(capacity) }
}

func (a *Accumulator) Reset() {
	a.values = a.values[:0]
}

func (a *Accumulator) Add(x float64) error {
	if len(a.values) >= a.capacity {
		return fmt.Errorf("%w: %d values", core.ErrCapacityExhausted, a.capacity)
	}
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return fmt.Errorf("%w: %v is not finite", core.ErrInvalidValue, x)
	}
	a.values = append(a.values, x)
	return nil
}

// Len returns the number of values added since the last Reset
func (a *Accumulator) Len() int { return len(a.values) }

func (a *Accumulator) Compute() (*domainstats.Statistics, error) {
	n := len(a.values)
	if n == 0 {
		return nil, core.ErrNoValues
	}
	data := a.values

	sum, _ := stats.Sum(data)
	mean, _ := stats.Mean(data)
	min, _ := stats.Min(data)
	max, _ := stats.Max(data)
	median, err := stats.Median(data)
	if err != nil {
		return nil, fmt.Errorf("median: %w", err)
	}

	s := &domainstats.Statistics{
		Count:  n,
		Sum:    sum,
		Mean:   mean,
		Min:    min,
		Max:    max,
		Median: median,
		CILow:  mean,
		CIHigh: mean,
	}
	if n > 1 {
		s.Variance, _ = stats.SampleVariance(data)
		s.StdDev, _ = stats.StandardDeviationSample(data)
		half := tQuantile(n-1) * s.StdDev / math.Sqrt(float64(n))
		s.CILow = mean - half
		s.CIHigh = mean + half
	}
	return s, nil
}

// two-sided 95% critical value of Student's t
func tQuantile(df int) float64 {
	t := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: float64(df)}
	return t.Quantile(0.975)
}
