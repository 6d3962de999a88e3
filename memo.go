package cocoro

import "sync"

// Memo caches the result of a computation, recomputing it lazily the
// next time Get is called after Invalidate.
//
// Memo is deliberately a plain explicit-invalidation cache rather than a
// self-updating one: an automatically dependency-tracking Memo would
// need to watch States directly and rebuild itself whenever one of its
// dependencies' Signal fires, which in turn needs something like a
// thread-local tracking "which Memo is currently computing, so its reads
// of other States can be recorded as dependencies". This package's
// explicit-co Await design avoids thread-locals on purpose (see
// DESIGN.md). Callers that know when their inputs changed call
// Invalidate explicitly instead.
type Memo[T any] struct {
	mu      sync.Mutex
	compute func() T
	value   T
	stale   bool
}

// NewMemo returns a new Memo that calls compute on the first Get, and
// again after every Invalidate.
func NewMemo[T any](compute func() T) *Memo[T] {
	return &Memo[T]{compute: compute, stale: true}
}

// Get retrieves the value of m, recomputing it first if m is stale.
func (m *Memo[T]) Get() T {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stale {
		m.value = m.compute()
		m.stale = false
	}
	return m.value
}

// Invalidate marks m stale so the next Get recomputes it.
func (m *Memo[T]) Invalidate() {
	m.mu.Lock()
	m.stale = true
	m.mu.Unlock()
}
