// Package snapshot owns the currently served census table and swaps it atomically on reload.
package snapshot

import (
	"sync"
	"sync/atomic"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/popmap/internal/census"
)

// Handle holds the current table. Readers never lock; a mutex only
// serializes swaps and subscriber registration.
type Handle struct {
	current atomic.Pointer[census.Table]

	mu   sync.Mutex
	subs []func(*census.Table)
}

// New returns a handle with no table loaded.
func New() *Handle {
	return &Handle{}
}

// Current returns the served table, or ErrDataUnavailable before the first load.
func (h *Handle) Current() (*census.Table, error) {
	t := h.current.Load()
	if t == nil {
		return nil, eris.Wrap(census.ErrDataUnavailable, "snapshot: table not loaded")
	}
	return t, nil
}

// Loaded reports whether a table has been published.
func (h *Handle) Loaded() bool {
	return h.current.Load() != nil
}

// Swap publishes t and returns the table it replaced (nil on first load).
// Subscribers are called after t is visible to readers, in registration order.
func (h *Handle) Swap(t *census.Table) *census.Table {
	if t == nil {
		return h.current.Load()
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	prev := h.current.Swap(t)
	zap.L().Info("snapshot: table swapped",
		zap.String("table_id", t.ID()),
		zap.String("source", t.Source()),
		zap.Int("rows", t.Len()),
		zap.Int("current_year", t.CurrentYear()),
	)
	for _, fn := range h.subs {
		fn(t)
	}
	return prev
}

// OnSwap registers fn to run after every swap.
func (h *Handle) OnSwap(fn func(*census.Table)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.subs = append(h.subs, fn)
}
