package ports

import "fieldtrial/domain/stats"

// Accumulator collects values of one variable and summarises them
type Accumulator interface {
	Reset()
	// Add fails with core.ErrCapacityExhausted once the fixed capacity is reached
	Add(x float64) error
	// Compute fails with core.ErrNoValues when nothing was added
	Compute() (*stats.Statistics, error)
}

// AccumulatorFactory creates a fresh accumulator per run
type AccumulatorFactory func() Accumulator
