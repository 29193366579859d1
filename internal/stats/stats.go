// internal/stats/stats.go
// Package stats implements the streaming summary used to aggregate the
// numeric samples harvested on every collection tick.
package stats

import (
	"math"
	"sort"
)

// Summary accumulates numeric samples and derives descriptive statistics
// from them. It is resettable so one value can be reused across collection
// ticks. Callers must filter non-finite values before pushing; the summary
// performs no input validation of its own.
//
// A Summary is not safe for concurrent use.
type Summary struct {
	values []float64
	sum    float64
}

// Snapshot is the immutable set of statistics derived from a Summary at a
// point in time. An empty summary yields the zero Snapshot, never NaN.
type Snapshot struct {
	Count  int     `json:"length"`
	Sum    float64 `json:"sum"`
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"stddev"`
	P5     float64 `json:"5p"`
	P95    float64 `json:"95p"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
}

// NewSummary returns an empty Summary.
func NewSummary() *Summary {
	return &Summary{}
}

// Push adds a single sample to the summary.
func (s *Summary) Push(value float64) {
	s.values = append(s.values, value)
	s.sum += value
}

// PushAll adds every sample in values to the summary.
func (s *Summary) PushAll(values []float64) {
	for _, v := range values {
		s.Push(v)
	}
}

// Reset clears the summary back to the empty state.
func (s *Summary) Reset() {
	s.values = s.values[:0]
	s.sum = 0
}

// Count returns the number of samples pushed since the last reset.
func (s *Summary) Count() int {
	return len(s.values)
}

// Sum returns the arithmetic sum of all pushed samples.
func (s *Summary) Sum() float64 {
	return s.sum
}

// Mean returns the arithmetic mean, or 0 for an empty summary.
func (s *Summary) Mean() float64 {
	if len(s.values) == 0 {
		return 0
	}
	return s.sum / float64(len(s.values))
}

// StdDev returns the population standard deviation, or 0 for an empty
// summary.
func (s *Summary) StdDev() float64 {
	n := len(s.values)
	if n == 0 {
		return 0
	}
	mean := s.Mean()
	var sq float64
	for _, v := range s.values {
		d := v - mean
		sq += d * d
	}
	return math.Sqrt(sq / float64(n))
}

// Min returns the smallest pushed sample, or 0 for an empty summary.
func (s *Summary) Min() float64 {
	if len(s.values) == 0 {
		return 0
	}
	min := s.values[0]
	for _, v := range s.values[1:] {
		if v < min {
			min = v
		}
	}
	return min
}

// Max returns the largest pushed sample, or 0 for an empty summary.
func (s *Summary) Max() float64 {
	if len(s.values) == 0 {
		return 0
	}
	max := s.values[0]
	for _, v := range s.values[1:] {
		if v > max {
			max = v
		}
	}
	return max
}

// Percentile returns the p-th percentile (0-100) of the pushed samples
// using linear interpolation between closest ranks: the samples are sorted
// ascending, the rank is r = p/100*(n-1), and the result interpolates
// between the values at floor(r) and ceil(r). An empty summary yields 0.
func (s *Summary) Percentile(p float64) float64 {
	return percentileOfSorted(s.sorted(), p)
}

// Snapshot derives all statistics in one pass over the samples.
func (s *Summary) Snapshot() Snapshot {
	if len(s.values) == 0 {
		return Snapshot{}
	}
	sorted := s.sorted()
	return Snapshot{
		Count:  len(sorted),
		Sum:    s.sum,
		Mean:   s.Mean(),
		StdDev: s.StdDev(),
		P5:     percentileOfSorted(sorted, 5),
		P95:    percentileOfSorted(sorted, 95),
		Min:    sorted[0],
		Max:    sorted[len(sorted)-1],
	}
}

func (s *Summary) sorted() []float64 {
	sorted := make([]float64, len(s.values))
	copy(sorted, s.values)
	sort.Float64s(sorted)
	return sorted
}

// Percentile computes the p-th percentile of a standalone sample slice
// under the same interpolation rule as Summary.Percentile.
func Percentile(values []float64, p float64) float64 {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	return percentileOfSorted(sorted, p)
}

func percentileOfSorted(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n == 1 {
		return sorted[0]
	}
	if p <= 0 {
		return sorted[0]
	}
	if p >= 100 {
		return sorted[n-1]
	}
	rank := p / 100 * float64(n-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return sorted[lo]
	}
	frac := rank - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac
}
