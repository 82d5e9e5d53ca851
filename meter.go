package yarl39

import (
	"time"
)

// flowMeter measures completed size over an approximate trailing window:
// time is cut into a ring of buckets and a bucket stops counting once the
// window has rolled past it. The meter also remembers the largest window
// total ever observed, which is the pump's best evidence of what the
// backend actually sustains per period.
type flowMeter struct {
	// How much time one bucket covers.
	width time.Duration
	start time.Time

	// When the meter was last read or written, as an offset from `start`
	// rounded down to a bucket boundary.
	last time.Duration
	// Sum of every live bucket.
	total int64
	// Largest `total` ever seen.
	best int64
	// Completed size per bucket, a ring indexed from `head`.
	buckets []int64
	// The bucket that `last` falls in.
	head int
}

func newFlowMeter(now time.Time, window time.Duration, n int) *flowMeter {
	return &flowMeter{
		start:   now,
		width:   window / time.Duration(n),
		buckets: make([]int64, n),
	}
}

func (m *flowMeter) add(now time.Time, size int64) {
	m.get(now)
	m.buckets[m.head] += size
	m.total += size
	if m.total > m.best {
		m.best = m.total
	}
}

func (m *flowMeter) get(now time.Time) int64 {
	curr := now.Sub(m.start).Truncate(m.width)
	elapsed := curr - m.last

	// Buckets that have fully elapsed since the meter was last touched.
	bucketsPassed := int(elapsed / m.width)
	if bucketsPassed < 0 {
		bucketsPassed = 0
	}
	// Rolling past the entire ring empties it; clamp there.
	if bucketsPassed >= len(m.buckets) {
		bucketsPassed = len(m.buckets)
	}

	// Age out each elapsed bucket: drop its amount from the running total,
	// zero it for reuse, and move head onto it.
	for i := 0; i < bucketsPassed; i++ {
		nextIdx := (m.head + 1) % len(m.buckets)
		m.total -= m.buckets[nextIdx]
		m.buckets[nextIdx] = 0
		m.head = nextIdx
	}

	if bucketsPassed > 0 {
		m.last = curr
	}

	return m.total
}

func (m *flowMeter) bestObserved() int64 {
	return m.best
}
