package trace

import "sync"

// RingBuffer keeps the most recent anchor evaluations across all workers.
type RingBuffer struct {
	mu      sync.RWMutex
	entries []Entry
	size    int
	head    int
	count   int
}

// NewRingBuffer creates a ring buffer that holds up to size entries.
func NewRingBuffer(size int) *RingBuffer {
	if size <= 0 {
		size = 100
	}
	return &RingBuffer{
		entries: make([]Entry, size),
		size:    size,
	}
}

// Add appends an entry to the ring buffer, overwriting the oldest if full.
func (rb *RingBuffer) Add(e Entry) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	rb.entries[rb.head] = e
	rb.head = (rb.head + 1) % rb.size
	if rb.count < rb.size {
		rb.count++
	}
}

// Last returns the last n entries in chronological order.
func (rb *RingBuffer) Last(n int) []Entry {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	if n > rb.count {
		n = rb.count
	}
	if n <= 0 {
		return nil
	}

	result := make([]Entry, n)
	start := (rb.head - n + rb.size) % rb.size
	for i := range n {
		result[i] = rb.entries[(start+i)%rb.size]
	}
	return result
}

// AddAll appends entries in order under a single lock.
func (rb *RingBuffer) AddAll(entries []Entry) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	for _, e := range entries {
		rb.entries[rb.head] = e
		rb.head = (rb.head + 1) % rb.size
		if rb.count < rb.size {
			rb.count++
		}
	}
}

// ForVehicle returns the stored entries of one vehicle in chronological order.
func (rb *RingBuffer) ForVehicle(vehicleID string) []Entry {
	var out []Entry
	for _, e := range rb.Last(rb.Count()) {
		if e.VehicleID == vehicleID {
			out = append(out, e)
		}
	}
	return out
}

// Reset drops every stored entry.
func (rb *RingBuffer) Reset() {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	rb.entries = make([]Entry, rb.size)
	rb.head = 0
	rb.count = 0
}

// Count returns the number of entries currently stored.
func (rb *RingBuffer) Count() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.count
}
