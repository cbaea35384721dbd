package timebox

import "sync"

// ResultBox is a single-assignment holder a reaction body uses to publish
// the result of a dispatch round.
//
// Thread-safety: all methods are safe for concurrent use.
type ResultBox[T any] struct {
	mu    sync.Mutex
	value T
	set   bool
}

// NewResultBox returns an empty box.
func NewResultBox[T any]() *ResultBox[T] {
	return &ResultBox[T]{}
}

// Set stores v if the box is still empty. Returns false (and leaves the
// box unchanged) if a value was already set.
func (b *ResultBox[T]) Set(v T) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.set {
		return false
	}
	b.value = v
	b.set = true
	return true
}

// Get returns the stored value. The second result is false if Set was
// never called; this is not an error.
func (b *ResultBox[T]) Get() (T, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.value, b.set
}
