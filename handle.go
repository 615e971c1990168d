package sqlite

import (
	"errors"
	"sync"
)

// errReleased is returned by handle.use after release.
var errReleased = errors.New("handle released")

// handle owns an engine resource, a connection or a prepared statement,
// and releases it exactly once.
//
// Engine calls run under the read lock and release takes the write lock,
// so a release waits for calls already in flight and no call starts on a
// released resource.
type handle[T comparable] struct {
	mu       sync.RWMutex
	raw      T
	free     func(T) error
	released bool
}

// newHandle takes ownership of raw. A zero raw means the engine broke its
// contract after reporting success, and panics.
func newHandle[T comparable](raw T, free func(T) error) *handle[T] {
	var zero T
	if raw == zero {
		panic("sqlite: engine returned a nil handle")
	}
	return &handle[T]{raw: raw, free: free}
}

// use calls fn with the raw resource. Once the handle has been released
// it returns errReleased without calling fn.
func (h *handle[T]) use(fn func(T) error) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.released {
		return errReleased
	}
	return fn(h.raw)
}

// release frees the resource on the first call and reports the result of
// freeing it. Later calls do nothing and return nil.
func (h *handle[T]) release() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.released {
		return nil
	}
	h.released = true
	err := h.free(h.raw)
	var zero T
	h.raw = zero
	return err
}

// isReleased reports whether release has been called.
func (h *handle[T]) isReleased() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.released
}
