package cocoro

import "sync/atomic"

// casLoop repeatedly loads the current value of p, derives a new value from
// it with f, and attempts to CAS the old value for the new one, retrying on
// contention. It returns the (old, new) pair observed by the winning
// attempt, mirroring the "(old, new) tuple" CAS idiom that the coroutine,
// future and channel state machines all build on.
func casLoop[T any](p *atomic.Pointer[T], f func(old *T) *T) (old, new *T) {
	for {
		old = p.Load()
		new = f(old)
		if p.CompareAndSwap(old, new) {
			return old, new
		}
	}
}

// casLoopInt64 is casLoop specialized for the packed (count, mode) word used
// by Channel, where boxing into *int64 would defeat the purpose.
func casLoopInt64(p *atomic.Int64, f func(old int64) int64) (old, new int64) {
	for {
		old = p.Load()
		new = f(old)
		if p.CompareAndSwap(old, new) {
			return old, new
		}
	}
}

// callbackStack is a lock-free stack of callbacks that can be atomically
// closed exactly once. Callbacks pushed before closing are handed back to
// the closer to run; callbacks "pushed" after closing are reported as
// rejected so the caller can run them inline instead. This is the single
// data structure behind both Future's completion callbacks (§4.2) and
// Channel's completion callbacks (§4.3's "completion-callback stack").
type callbackStack struct {
	top atomic.Pointer[cbNode]
}

type cbNode struct {
	fn   func()
	next *cbNode
}

// closedSentinel marks a callbackStack that has fired; its next pointer is
// always nil and it is never run as a callback itself.
var closedSentinel = &cbNode{}

// push adds fn to the stack. It reports whether fn was accepted (the stack
// was still open at the moment of insertion); if not, the caller must run fn
// itself, since nobody will ever drain a closed stack.
func (s *callbackStack) push(fn func()) (accepted bool) {
	for {
		top := s.top.Load()
		if top == closedSentinel {
			return false
		}
		n := &cbNode{fn: fn, next: top}
		if s.top.CompareAndSwap(top, n) {
			return true
		}
	}
}

// closeAndDrain atomically swaps in the closed sentinel and returns every
// callback that had been pushed, in push (i.e. FIFO registration) order, for
// the caller to run. It is safe to call more than once; only the
// first call returns a non-nil slice.
func (s *callbackStack) closeAndDrain() []func() {
	top := s.top.Swap(closedSentinel)
	if top == nil || top == closedSentinel {
		return nil
	}

	var fns []func()
	for n := top; n != nil; n = n.next {
		fns = append(fns, n.fn)
	}

	// Reverse into registration order.
	for i, j := 0, len(fns)-1; i < j; i, j = i+1, j-1 {
		fns[i], fns[j] = fns[j], fns[i]
	}

	return fns
}

// closed reports whether the stack has already been closed.
func (s *callbackStack) closed() bool {
	return s.top.Load() == closedSentinel
}

// mpmcQueue is a simple lock-free multi-producer multi-consumer FIFO queue
// of unbounded size, used where a dedicated queue type would otherwise need
// its own mutex (the stack pool's free list). It is a Michael-Scott queue:
// a singly linked list with separate head and tail pointers, each advanced
// by CAS, plus a permanently-allocated dummy node so push and pop never race
// on an empty-vs-nonempty transition.
type mpmcQueue[T any] struct {
	head, tail atomic.Pointer[mpmcNode[T]]
}

type mpmcNode[T any] struct {
	value T
	next  atomic.Pointer[mpmcNode[T]]
}

func newMPMCQueue[T any]() *mpmcQueue[T] {
	dummy := &mpmcNode[T]{}
	q := &mpmcQueue[T]{}
	q.head.Store(dummy)
	q.tail.Store(dummy)
	return q
}

func (q *mpmcQueue[T]) push(v T) {
	n := &mpmcNode[T]{value: v}
	for {
		tail := q.tail.Load()
		next := tail.next.Load()
		if next == nil {
			if tail.next.CompareAndSwap(nil, n) {
				q.tail.CompareAndSwap(tail, n)
				return
			}
		} else {
			// Another producer linked a node but hasn't advanced tail yet; help it along.
			q.tail.CompareAndSwap(tail, next)
		}
	}
}

func (q *mpmcQueue[T]) pop() (v T, ok bool) {
	for {
		head := q.head.Load()
		tail := q.tail.Load()
		next := head.next.Load()
		if head == tail {
			if next == nil {
				return v, false
			}
			// Tail lags behind; help it along and retry.
			q.tail.CompareAndSwap(tail, next)
			continue
		}
		if q.head.CompareAndSwap(head, next) {
			return next.value, true
		}
	}
}
