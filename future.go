package cocoro

import (
	"sync/atomic"
	"time"
)

// futureState is Future's lifecycle: pending until exactly one of
// Promise.Success, Promise.Fail or Future.Cancel resolves it.
type futureState int32

const (
	futurePending futureState = iota
	futureResolved
)

// futureOutcome is the payload stashed behind Future's resolved state:
// either a value (err nil, canceled false), an error (err non-nil), or a
// cancellation (err wraps ErrFutureCanceled, canceled true — canceled is
// kept as its own bool, rather than relying on callers to errors.Is the
// sentinel, so IsCanceled stays cheap and exact even if a Fail happens
// to be called with ErrFutureCanceled itself by mistake).
type futureOutcome[T any] struct {
	value    T
	err      error
	canceled bool
}

// Future is the read side of a one-shot asynchronous result. It is
// created in a pending state by NewPromise and resolves exactly once,
// either successfully, with an error, or by cancellation.
//
// Futures implement Cancellable and the package's internal completer
// capability, so a Future can be added directly to a Scope and will be
// woken up (and reported to Scope.Join) correctly either way.
type Future[T any] struct {
	state   atomic.Int32
	outcome atomic.Pointer[futureOutcome[T]]
	cbs     callbackStack
}

// Promise is the write side of a Future: the one capability Future
// itself doesn't expose, since a consumer holding just the Future should
// never be able to resolve it.
type Promise[T any] struct {
	f *Future[T]
}

// NewPromise creates a linked Promise/Future pair, both starting pending.
func NewPromise[T any]() (*Promise[T], *Future[T]) {
	f := &Future[T]{}
	return &Promise[T]{f: f}, f
}

func (f *Future[T]) resolve(o *futureOutcome[T]) bool {
	if !f.state.CompareAndSwap(int32(futurePending), int32(futureResolved)) {
		return false
	}
	f.outcome.Store(o)
	for _, cb := range f.cbs.closeAndDrain() {
		cb()
	}
	return true
}

// Success resolves the linked Future with v. It reports whether this
// call actually resolved it (false if the Future was already resolved,
// including by a previous Cancel).
func (p *Promise[T]) Success(v T) bool {
	return p.f.resolve(&futureOutcome[T]{value: v})
}

// Fail resolves the linked Future with err.
func (p *Promise[T]) Fail(err error) bool {
	return p.f.resolve(&futureOutcome[T]{err: err})
}

// Future returns the Future half of the pair, for passing to a consumer
// without handing over the Promise's resolving capability.
func (p *Promise[T]) Future() *Future[T] {
	return p.f
}

// TryCancel resolves f with ErrFutureCanceled. It reports whether this
// call actually resolved it.
func (f *Future[T]) TryCancel() bool {
	return f.resolve(&futureOutcome[T]{err: &FutureError{Err: ErrFutureCanceled}, canceled: true})
}

// Cancel implements Cancellable. Use TryCancel instead where the
// cancel-already-happened distinction matters.
func (f *Future[T]) Cancel() {
	f.TryCancel()
}

// IsCanceled reports whether f resolved via Cancel (or TryCancel).
func (f *Future[T]) IsCanceled() bool {
	o := f.outcome.Load()
	return o != nil && o.canceled
}

// WhenComplete registers fn to run, exactly once, with f's outcome. If f
// is already resolved, fn runs immediately, on the calling goroutine.
func (f *Future[T]) WhenComplete(fn func(v T, err error)) {
	cb := func() {
		o := f.outcome.Load()
		fn(o.value, o.err)
	}
	if !f.cbs.push(cb) {
		cb()
	}
}

// WhenSuccess registers fn to run only if f resolves successfully.
func (f *Future[T]) WhenSuccess(fn func(v T)) {
	f.WhenComplete(func(v T, err error) {
		if err == nil {
			fn(v)
		}
	})
}

// WhenFailure registers fn to run only if f resolves with an error
// (including cancellation, which resolves with ErrFutureCanceled).
func (f *Future[T]) WhenFailure(fn func(err error)) {
	f.WhenComplete(func(_ T, err error) {
		if err != nil {
			fn(err)
		}
	})
}

// OnDone implements the package's internal completer capability: fn
// runs once f resolves, regardless of how.
func (f *Future[T]) OnDone(fn func()) {
	f.WhenComplete(func(T, error) { fn() })
}

// Await suspends co until f resolves, then returns its outcome. Calling
// Await on an already-resolved Future takes Await's fast path and never
// touches a channel.
func (f *Future[T]) Await(co *Coroutine) (T, error) {
	v := co.Await(func(resume func(any)) {
		f.WhenComplete(func(val T, err error) {
			resume(&futureOutcome[T]{value: val, err: err, canceled: f.IsCanceled()})
		})
	})
	o := v.(*futureOutcome[T])
	return o.value, o.err
}

// AwaitTimeout is like Await but also resolves early, with
// ErrFutureTimeout, if d elapses before f resolves. The late resolution,
// if any, is discarded; it does not retroactively change what
// AwaitTimeout already returned.
func (f *Future[T]) AwaitTimeout(co *Coroutine, d time.Duration) (T, error) {
	v := co.Await(func(resume func(any)) {
		var fired atomic.Bool
		var timer *time.Timer

		timer = time.AfterFunc(d, func() {
			if fired.CompareAndSwap(false, true) {
				resume(&futureOutcome[T]{err: &FutureError{Err: ErrFutureTimeout}})
			}
		})

		f.WhenComplete(func(val T, err error) {
			if fired.CompareAndSwap(false, true) {
				timer.Stop()
				resume(&futureOutcome[T]{value: val, err: err, canceled: f.IsCanceled()})
			}
		})
	})
	o := v.(*futureOutcome[T])
	return o.value, o.err
}

// Map returns a Future that resolves with fn(v) once f resolves
// successfully with v, or propagates f's error or cancellation
// unchanged. Map is a free function, not a method, because a generic
// method cannot introduce the extra type parameter U that Map's result
// type needs — the idiomatic Go shape for this kind of transform.
func Map[T, U any](f *Future[T], fn func(T) U) *Future[U] {
	promise, future := NewPromise[U]()
	f.WhenComplete(func(v T, err error) {
		if err != nil {
			promise.f.resolve(&futureOutcome[U]{err: err, canceled: f.IsCanceled()})
			return
		}
		promise.Success(fn(v))
	})
	return future
}

// FlatMap is Map for a fn that itself returns a Future, flattening the
// result instead of producing a Future of a Future.
func FlatMap[T, U any](f *Future[T], fn func(T) *Future[U]) *Future[U] {
	promise, future := NewPromise[U]()
	f.WhenComplete(func(v T, err error) {
		if err != nil {
			promise.f.resolve(&futureOutcome[U]{err: err, canceled: f.IsCanceled()})
			return
		}
		inner := fn(v)
		inner.WhenComplete(func(v2 U, err2 error) {
			promise.f.resolve(&futureOutcome[U]{value: v2, err: err2, canceled: inner.IsCanceled()})
		})
	})
	return future
}
