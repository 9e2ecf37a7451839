// Package stats holds small numeric accumulators used for run statistics.
package stats

import "sync"

// Number is the set of types FixedSizeMRU can average.
type Number interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64 |
		~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64 |
		~float32 | ~float64
}

// FixedSizeMRU keeps the most recent values up to a fixed window. Adding to a
// full window overwrites the oldest value.
type FixedSizeMRU[T Number] struct {
	mu     sync.Mutex
	values []T
	next   int
	count  int
}

// NewFixedSizeMRU creates a window holding up to size values. Sizes below one
// are raised to one.
func NewFixedSizeMRU[T Number](size int) *FixedSizeMRU[T] {
	if size < 1 {
		size = 1
	}
	return &FixedSizeMRU[T]{values: make([]T, size)}
}

// Add records v, evicting the oldest value when the window is full.
func (m *FixedSizeMRU[T]) Add(v T) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.values[m.next] = v
	m.next = (m.next + 1) % len(m.values)
	if m.count < len(m.values) {
		m.count++
	}
}

// Values returns the window contents, oldest first.
func (m *FixedSizeMRU[T]) Values() []T {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]T, 0, m.count)
	for i := 0; i < m.count; i++ {
		out = append(out, m.at(i))
	}
	return out
}

// Len returns the number of values held.
func (m *FixedSizeMRU[T]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.count
}

// Cap returns the window size.
func (m *FixedSizeMRU[T]) Cap() int {
	return len(m.values)
}

// Sum returns the sum of the held values.
func (m *FixedSizeMRU[T]) Sum() T {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sum()
}

// Average returns the mean of the held values, or 0 when empty.
func (m *FixedSizeMRU[T]) Average() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.count == 0 {
		return 0
	}
	var total float64
	for i := 0; i < m.count; i++ {
		total += float64(m.at(i))
	}
	return total / float64(m.count)
}

// Clear empties the window.
func (m *FixedSizeMRU[T]) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()

	clear(m.values)
	m.next = 0
	m.count = 0
}

func (m *FixedSizeMRU[T]) sum() T {
	var total T
	for i := 0; i < m.count; i++ {
		total += m.at(i)
	}
	return total
}

// at returns the i-th held value counting from the oldest.
func (m *FixedSizeMRU[T]) at(i int) T {
	start := (m.next - m.count + len(m.values)) % len(m.values)
	return m.values[(start+i)%len(m.values)]
}
