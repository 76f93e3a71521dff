package recognition

import (
	"sync"
	"sync/atomic"
)

// Holder publishes the current model to concurrent matchers. Reads are
// lock-free; swaps are serialised and never move to an older version.
type Holder struct {
	mu      sync.Mutex
	current atomic.Pointer[Model]
}

func NewHolder() *Holder {
	return &Holder{}
}

// Current returns the live snapshot or ErrModelNotTrained.
func (h *Holder) Current() (*Model, error) {
	m := h.current.Load()
	if m == nil || m.SampleCount() == 0 {
		return nil, ErrModelNotTrained
	}
	return m, nil
}

// Swap installs m unless the held model is newer. It reports whether m is now current.
func (h *Holder) Swap(m *Model) bool {
	if m == nil {
		return false
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if old := h.current.Load(); old != nil && old.Version > m.Version {
		return false
	}
	h.current.Store(m)
	return true
}
