package storage

import "sync"

// RingBuffer is a generic thread-safe ring buffer holding a fixed number of
// items. When full, adding a new item overwrites the oldest one. Positions
// are absolute: the Nth item ever added lives at position N-1 until it is
// evicted, which lets streaming consumers do delta reads across wraps.
type RingBuffer[T any] struct {
	sync.RWMutex
	items    []T
	capacity int
	total    int // absolute count of items ever added
	cleared  int // positions below this watermark are evicted
}

// NewRingBuffer creates a ring buffer with the given capacity.
// The capacity must be greater than zero.
func NewRingBuffer[T any](capacity int) *RingBuffer[T] {
	if capacity <= 0 {
		panic("ring buffer capacity must be greater than zero")
	}
	return &RingBuffer[T]{
		items:    make([]T, capacity),
		capacity: capacity,
	}
}

// Add inserts an item, overwriting the oldest one when at capacity.
func (rb *RingBuffer[T]) Add(item T) {
	rb.Lock()
	defer rb.Unlock()
	rb.items[rb.total%rb.capacity] = item
	rb.total++
}

// GetAll returns all retained items oldest-to-newest. The returned slice is
// a copy and safe to modify.
func (rb *RingBuffer[T]) GetAll() []T {
	rb.RLock()
	defer rb.RUnlock()
	return rb.rangeLocked(rb.oldestLocked(), rb.total-1)
}

// GetRecent returns the N most recent items oldest-to-newest.
// If N exceeds the current size, all items are returned.
func (rb *RingBuffer[T]) GetRecent(n int) []T {
	rb.RLock()
	defer rb.RUnlock()
	start := rb.total - n
	if oldest := rb.oldestLocked(); start < oldest {
		start = oldest
	}
	return rb.rangeLocked(start, rb.total-1)
}

// GetRange returns the items between the absolute positions start and end
// (inclusive), clamped to what the buffer still retains. Returns nil when
// the clamped range is empty.
func (rb *RingBuffer[T]) GetRange(start, end int) []T {
	rb.RLock()
	defer rb.RUnlock()
	if start < 0 {
		start = 0
	}
	if oldest := rb.oldestLocked(); start < oldest {
		start = oldest
	}
	if end > rb.total-1 {
		end = rb.total - 1
	}
	return rb.rangeLocked(start, end)
}

// CurrentPosition returns the absolute number of items ever added. The next
// item added receives this position.
func (rb *RingBuffer[T]) CurrentPosition() int {
	rb.RLock()
	defer rb.RUnlock()
	return rb.total
}

// Size returns the number of items currently retained.
func (rb *RingBuffer[T]) Size() int {
	rb.RLock()
	defer rb.RUnlock()
	return rb.total - rb.oldestLocked()
}

// Capacity returns the maximum number of retained items.
func (rb *RingBuffer[T]) Capacity() int {
	return rb.capacity
}

// Clear removes all items. Absolute positions keep advancing afterwards so
// in-flight delta readers never see positions move backwards.
func (rb *RingBuffer[T]) Clear() {
	rb.Lock()
	defer rb.Unlock()
	var zero T
	for i := range rb.items {
		rb.items[i] = zero
	}
	rb.cleared = rb.total
}

// oldestLocked returns the absolute position of the oldest retained item.
// Callers must hold the lock.
func (rb *RingBuffer[T]) oldestLocked() int {
	oldest := rb.total - rb.capacity
	if oldest < rb.cleared {
		oldest = rb.cleared
	}
	if oldest < 0 {
		oldest = 0
	}
	return oldest
}

// rangeLocked copies items for the absolute position range [start, end].
// Callers must hold the lock and pass a range already clamped to retained
// positions.
func (rb *RingBuffer[T]) rangeLocked(start, end int) []T {
	if end < start {
		return nil
	}
	result := make([]T, 0, end-start+1)
	for pos := start; pos <= end; pos++ {
		result = append(result, rb.items[pos%rb.capacity])
	}
	return result
}
