// Package budget implements the adaptive continuation budget that decides
// when an episode is truncated.
package budget

// DefaultWindow is the rolling buffer capacity used when none is given.
const DefaultWindow = 50

// RollingBuffer holds the last Capacity rewards in a ring.
type RollingBuffer struct {
	values []float64
	next   int
}

// NewRollingBuffer creates a buffer with the given capacity.
func NewRollingBuffer(capacity int) *RollingBuffer {
	if capacity <= 0 {
		capacity = DefaultWindow
	}
	return &RollingBuffer{values: make([]float64, capacity)}
}

// Add overwrites the oldest slot with value.
func (rb *RollingBuffer) Add(value float64) {
	rb.values[rb.next] = value
	rb.next = (rb.next + 1) % len(rb.values)
}

// Average divides the sum of every slot by the capacity. Unfilled slots count
// as zero, so early averages are biased toward zero.
func (rb *RollingBuffer) Average() float64 {
	var sum float64
	for _, v := range rb.values {
		sum += v
	}
	return sum / float64(len(rb.values))
}

// Capacity returns the fixed number of slots.
func (rb *RollingBuffer) Capacity() int {
	return len(rb.values)
}

// Reset zeroes every slot.
func (rb *RollingBuffer) Reset() {
	for i := range rb.values {
		rb.values[i] = 0
	}
	rb.next = 0
}
