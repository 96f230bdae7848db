package fusion

import "sync"

// History is a bounded ring buffer of the most recent fused states. The
// fusion engine itself keeps no history; this lives one layer up and is fed
// as a subscriber.
type History struct {
	mu   sync.RWMutex
	buf  []IntegratedState
	next int
	full bool
}

// DefaultHistorySize bounds the in-memory state history.
const DefaultHistorySize = 1000

func NewHistory(capacity int) *History {
	if capacity <= 0 {
		capacity = DefaultHistorySize
	}
	return &History{buf: make([]IntegratedState, capacity)}
}

// Add appends a state, evicting the oldest when full.
func (h *History) Add(st IntegratedState) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.buf[h.next] = st
	h.next++
	if h.next == len(h.buf) {
		h.next = 0
		h.full = true
	}
}

// Len reports how many states are currently retained.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.full {
		return len(h.buf)
	}
	return h.next
}

// Last returns the most recently added state.
func (h *History) Last() (IntegratedState, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.next == 0 && !h.full {
		return IntegratedState{}, false
	}
	idx := h.next - 1
	if idx < 0 {
		idx = len(h.buf) - 1
	}
	return h.buf[idx], true
}

// Recent returns up to n states, oldest first.
func (h *History) Recent(n int) []IntegratedState {
	h.mu.RLock()
	defer h.mu.RUnlock()

	size := h.next
	if h.full {
		size = len(h.buf)
	}
	if n > size {
		n = size
	}
	if n <= 0 {
		return nil
	}

	out := make([]IntegratedState, 0, n)
	start := h.next - n
	if start < 0 {
		start += len(h.buf)
	}
	for i := 0; i < n; i++ {
		out = append(out, h.buf[(start+i)%len(h.buf)])
	}
	return out
}
