package cocoro

import (
	"slices"
	"sync"
)

// Semaphore bounds concurrent access to a resource with a weighted
// acquire/release pair. Callers request access with a given weight via
// Acquire; Release gives weight back and wakes as many queued waiters,
// in FIFO order, as the freed capacity allows.
//
// Semaphore does not provide backpressure on how many coroutines queue
// up waiting; if callers keep acquiring faster than they release, the
// waiter list grows without bound. Introduce an upstream limiter if that
// matters for a particular hot spot.
type Semaphore struct {
	mu      sync.Mutex
	size    int64
	cur     int64
	waiters []*semWaiter
}

type semWaiter struct {
	n      int64
	resume func(any)
}

// NewSemaphore creates a new weighted semaphore with the given maximum
// combined weight.
func NewSemaphore(n int64) *Semaphore {
	return &Semaphore{size: n}
}

// Acquire suspends co until a weight of n can be granted, then returns
// having reserved it. Acquire panics if n is negative.
//
// If n is greater than the semaphore's total size, the weight can never
// be satisfied and co waits forever; callers are expected to size n
// sensibly.
func (s *Semaphore) Acquire(co *Coroutine, n int64) {
	if n < 0 {
		panic("cocoro(Semaphore): negative weight")
	}
	co.Await(func(resume func(any)) {
		s.mu.Lock()
		if s.size-s.cur >= n {
			s.cur += n
			s.mu.Unlock()
			resume(nil)
			return
		}
		s.waiters = append(s.waiters, &semWaiter{n: n, resume: resume})
		s.mu.Unlock()
	})
}

// Release releases a weight of n back to the semaphore, waking as many
// queued waiters as the newly available capacity allows. Release panics
// if n is negative or if it would release more than is currently held.
func (s *Semaphore) Release(n int64) {
	if n < 0 {
		panic("cocoro(Semaphore): negative weight")
	}

	s.mu.Lock()
	s.cur -= n
	if s.cur < 0 {
		s.mu.Unlock()
		panic("cocoro(Semaphore): released more than held")
	}

	i := 0
	var ready []*semWaiter
	for i < len(s.waiters) {
		w := s.waiters[i]
		if s.size-s.cur < w.n {
			break
		}
		s.cur += w.n
		ready = append(ready, w)
		i++
	}
	s.waiters = slices.Delete(s.waiters, 0, i)
	s.mu.Unlock()

	for _, w := range ready {
		w.resume(nil)
	}
}
