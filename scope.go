package cocoro

import (
	"sync"
	"sync/atomic"
)

// Cancellable is anything a Scope can hold and tear down together:
// child coroutines, promises, channels. Cancel must be safe to call more
// than once and safe to call concurrently with everything else the type
// exposes.
type Cancellable interface {
	Cancel()
}

// completer is satisfied by every Cancellable this package produces —
// Coroutine, Future and Channel all implement it — so Scope.Join can
// learn when a member finishes without needing a coroutine of its own
// to do the waiting from. A Cancellable a caller adds to a Scope that
// doesn't implement completer is simply treated as already finished by
// Join, since there is no generic way to ask an arbitrary Cancellable
// when it's done.
type completer interface {
	OnDone(fn func())
}

// Scope is a structured-cancellation container: a set of Cancellable
// members that can all be canceled together with a single call, and
// joined (waited on) together with a single call. A Coroutine's own
// Scope (Coroutine.Scope) is canceled automatically once its body
// returns, panics, or is explicitly canceled — this is what makes
// Coroutine.Spawn's children scoped to their parent's lifetime instead
// of leaking into the background.
//
// A Scope is safe for concurrent use. Like Semaphore's waiter list, it
// guards a plain member slice with a mutex rather than reaching for a
// lock-free set; membership changes (Add, and the one-time sweep in
// Cancel) are not remotely hot enough to justify anything more
// elaborate.
type Scope struct {
	mu       sync.Mutex
	members  []Cancellable
	canceled bool
}

// NewScope creates an empty, open Scope.
func NewScope() *Scope {
	return &Scope{}
}

// Add registers c as a member of s. If s has already been canceled, c is
// canceled immediately instead of being added — a Scope that has already
// torn down never accumulates members it would never get around to
// canceling.
func (s *Scope) Add(c Cancellable) {
	s.mu.Lock()
	if s.canceled {
		s.mu.Unlock()
		c.Cancel()
		return
	}
	s.members = append(s.members, c)
	s.mu.Unlock()
}

// Cancel cancels every member currently in s and marks s closed to new
// members (any later Add cancels its argument immediately, per Add's
// doc). Safe to call more than once; only the first call has any effect.
func (s *Scope) Cancel() {
	s.mu.Lock()
	if s.canceled {
		s.mu.Unlock()
		return
	}
	s.canceled = true
	members := s.members
	s.members = nil
	s.mu.Unlock()

	for _, c := range members {
		c.Cancel()
	}
}

// cancelAll is Cancel's internal name when called from a coroutine's own
// lifecycle (body returned, panicked, or was itself canceled) rather
// than from a caller holding a *Scope directly. Exists only so call
// sites in coroutine.go read as "tear down my scope" rather than
// appearing to cancel some externally owned Scope.
func (s *Scope) cancelAll() {
	s.Cancel()
}

// snapshotMembers returns the members currently in s without holding the
// lock any longer than it takes to copy the slice header's backing data.
func (s *Scope) snapshotMembers() []Cancellable {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Cancellable(nil), s.members...)
}

// Join returns a Future that resolves once every member added to s up to
// the moment Join is called has finished (a coroutine's body returning,
// a channel closing or canceling, a future resolving). Members added
// after Join is called are not waited on; call Join again to pick them up.
func (s *Scope) Join() *Future[struct{}] {
	promise, future := NewPromise[struct{}]()

	members := s.snapshotMembers()
	if len(members) == 0 {
		promise.Success(struct{}{})
		return future
	}

	var remaining atomic.Int64
	remaining.Store(int64(len(members)))

	done := func() {
		if remaining.Add(-1) == 0 {
			promise.Success(struct{}{})
		}
	}

	for _, c := range members {
		if d, ok := c.(completer); ok {
			d.OnDone(done)
		} else {
			done()
		}
	}

	return future
}

// WhenComplete registers fn to run once a Join of s's current membership
// would resolve. fn may run synchronously, on the calling goroutine, if
// that is already true (s has no members, or they have all finished).
func (s *Scope) WhenComplete(fn func()) {
	s.Join().WhenComplete(func(_ struct{}, _ error) {
		fn()
	})
}
