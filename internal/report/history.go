package report

import "sync"

// History keeps the last launches for inspection without log diving.
type History struct {
	results []*Result
	maxSize int
	mu      sync.RWMutex
}

var globalHistory = NewHistory(50)

// NewHistory creates a history holding at most maxSize results.
func NewHistory(maxSize int) *History {
	return &History{
		results: make([]*Result, 0, maxSize),
		maxSize: maxSize,
	}
}

// GlobalHistory returns the process-wide history.
func GlobalHistory() *History {
	return globalHistory
}

// Record adds r, dropping the oldest result when full.
func (h *History) Record(r *Result) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.results) >= h.maxSize {
		h.results = h.results[1:]
	}
	h.results = append(h.results, r)
}

// Recent returns up to n results, newest first. n <= 0 means all.
func (h *History) Recent(n int) []*Result {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if n <= 0 || n > len(h.results) {
		n = len(h.results)
	}

	out := make([]*Result, n)
	for i := 0; i < n; i++ {
		out[i] = h.results[len(h.results)-1-i]
	}
	return out
}

// Count returns the number of results held.
func (h *History) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.results)
}
