package cocoro

import "sync"

// Signal is a broadcastable event with no payload: any coroutine that
// calls Await parks until the next call to Notify, then resumes. Signal
// is the building block State is layered on.
//
// A Signal is safe for concurrent use and is plain synchronization: it
// has no dependency-graph machinery of its own and may be shared across
// coroutines running on different Submitters.
type Signal struct {
	mu        sync.Mutex
	listeners []func(any)
}

// Await suspends co until the next call to Notify.
func (s *Signal) Await(co *Coroutine) {
	co.Await(func(resume func(any)) {
		s.mu.Lock()
		s.listeners = append(s.listeners, resume)
		s.mu.Unlock()
	})
}

// Notify resumes every coroutine currently parked in Await. Coroutines
// that call Await after Notify returns wait for the next Notify.
func (s *Signal) Notify() {
	s.mu.Lock()
	listeners := s.listeners
	s.listeners = nil
	s.mu.Unlock()

	for _, resume := range listeners {
		resume(nil)
	}
}
