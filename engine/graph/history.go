package graph

import (
	"sync"

	"github.com/R3E-Network/pipeline-orchestrator/domain/pipeline"
)

// History is a bounded ring buffer of past ExecutionResults, used by the
// Pipeline Monitor (component H) to compute aggregates without an
// unbounded memory footprint.
type History struct {
	mu    sync.RWMutex
	items []*pipeline.ExecutionResult
	cap   int
	start int
}

// NewHistory constructs a History holding at most capacity results.
func NewHistory(capacity int) *History {
	if capacity <= 0 {
		capacity = 100
	}
	return &History{cap: capacity}
}

// Add appends result, evicting the oldest entry if at capacity.
func (h *History) Add(result *pipeline.ExecutionResult) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.items) < h.cap {
		h.items = append(h.items, result)
		return
	}
	h.items[h.start] = result
	h.start = (h.start + 1) % h.cap
}

// Recent returns up to n most-recently-added results, newest first.
func (h *History) Recent(n int) []*pipeline.ExecutionResult {
	all := h.All()
	if n <= 0 || n > len(all) {
		n = len(all)
	}
	out := make([]*pipeline.ExecutionResult, n)
	for i := 0; i < n; i++ {
		out[i] = all[len(all)-1-i]
	}
	return out
}

// All returns every retained result in insertion order (oldest first).
func (h *History) All() []*pipeline.ExecutionResult {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if len(h.items) < h.cap {
		out := make([]*pipeline.ExecutionResult, len(h.items))
		copy(out, h.items)
		return out
	}
	out := make([]*pipeline.ExecutionResult, h.cap)
	for i := 0; i < h.cap; i++ {
		out[i] = h.items[(h.start+i)%h.cap]
	}
	return out
}
