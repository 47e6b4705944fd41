package retrieval

import (
	"context"
	"sync/atomic"
)

// Holder publishes the current index. Swaps are atomic; a query keeps the
// index it started with.
type Holder struct {
	current atomic.Pointer[Index]
}

// NewHolder returns a holder publishing ix, which may be nil.
func NewHolder(ix *Index) *Holder {
	h := &Holder{}
	if ix != nil {
		h.current.Store(ix)
	}
	return h
}

// Current returns the published index or nil.
func (h *Holder) Current() *Index {
	return h.current.Load()
}

// Swap publishes ix and returns the previous index.
func (h *Holder) Swap(ix *Index) *Index {
	return h.current.Swap(ix)
}

// Query delegates to the current index.
func (h *Holder) Query(ctx context.Context, text string, k int) ([]string, error) {
	ix := h.current.Load()
	if ix == nil {
		return nil, ErrNoIndex
	}
	return ix.Query(ctx, text, k)
}
