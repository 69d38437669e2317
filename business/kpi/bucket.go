package kpi

import (
	"math"
	"sort"
)

// dayBucket accumulates finalized records for one grouping dimension on one service
// date. All fields are commutative counters or sample collections, so replaying the
// same records in any order produces the same bucket
type dayBucket struct {
	sampleCount    int
	cancelledCount int
	unmatchedCount int
	// delays holds delay samples in seconds from observed, non-cancelled records
	delays []int
}

// merge folds other into the bucket. Merge order never changes the result
func (b *dayBucket) merge(other *dayBucket) {
	b.sampleCount += other.sampleCount
	b.cancelledCount += other.cancelledCount
	b.unmatchedCount += other.unmatchedCount
	b.delays = append(b.delays, other.delays...)
}

// sortedDelays returns the bucket's delay samples in ascending order
func (b *dayBucket) sortedDelays() []int {
	sorted := make([]int, len(b.delays))
	copy(sorted, b.delays)
	sort.Ints(sorted)
	return sorted
}

// percentileOf computes the p-th percentile of ascending sorted samples by linear
// interpolation between order statistics, taking the lower index when the rank lands
// between equal values
func percentileOf(sorted []int, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n == 1 {
		return float64(sorted[0])
	}
	rank := p / 100 * float64(n-1)
	lower := int(math.Floor(rank))
	if lower >= n-1 {
		return float64(sorted[n-1])
	}
	frac := rank - float64(lower)
	return float64(sorted[lower]) + frac*float64(sorted[lower+1]-sorted[lower])
}

// meanOf returns the arithmetic mean of samples, 0 when empty
func meanOf(samples []int) float64 {
	if len(samples) == 0 {
		return 0
	}
	sum := 0
	for _, sample := range samples {
		sum += sample
	}
	return float64(sum) / float64(len(samples))
}
