package cocoro

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/gammazero/deque"
)

// chanMode is Channel's terminal-state tag, packed into the high byte of
// the state word alongside the buffered count.
type chanMode int64

const (
	chanOpen chanMode = iota
	chanClosed
	chanCanceled
)

func packChanState(mode chanMode, count int64) int64 {
	return int64(mode)<<56 | (count & 0x00FFFFFFFFFFFFFF)
}

func unpackChanState(s int64) (mode chanMode, count int64) {
	mode = chanMode(s >> 56)
	count = s << 8 >> 8 // sign-extend the low 56 bits
	return
}

type chanSendWaiter[T any] struct {
	value  T
	resume func(any)
}

type chanRecvWaiter[T any] struct {
	resume func(any)
}

type chanRecvResult[T any] struct {
	value T
	err   error
}

// Channel is a buffered FIFO queue for use from inside coroutines:
// AwaitSend suspends the sender once the buffer is full, AwaitReceive
// suspends the receiver once it's empty, and both resume through the
// same Await/resume protocol Coroutine.Await implements.
//
// Channel's mode and buffered count are mirrored into a single packed
// atomic.Int64 — mode in the high byte, signed count in the low 56
// bits, updated through casLoopInt64 — so IsClosed, IsCanceled and Len
// never need to take the mutex that actually guards the buffer and
// waiter deques. That mutex, not the packed word, is what makes
// multi-field transitions (pop a value, maybe promote a waiting sender,
// maybe fire completion) atomic with respect to each other; a single
// CAS can't span "check the buffer, check two waiter queues, and update
// all three consistently" the way the count/mode pair alone can be
// CAS'd on its own.
type Channel[T any] struct {
	maxSize int

	mu          sync.Mutex
	buf         deque.Deque[T]
	sendQ       deque.Deque[*chanSendWaiter[T]]
	recvQ       deque.Deque[*chanRecvWaiter[T]]
	terminalErr error

	state atomic.Int64
	cbs   callbackStack
}

// NewChannel creates a Channel buffering up to maxSize values before a
// sender must suspend. maxSize zero makes a rendezvous channel: a send
// only completes once a receiver takes the value.
func NewChannel[T any](maxSize int) *Channel[T] {
	return &Channel[T]{maxSize: maxSize}
}

func (c *Channel[T]) setCount(n int64) {
	casLoopInt64(&c.state, func(old int64) int64 {
		mode, _ := unpackChanState(old)
		return packChanState(mode, n)
	})
}

func (c *Channel[T]) setMode(m chanMode) {
	casLoopInt64(&c.state, func(old int64) int64 {
		_, count := unpackChanState(old)
		return packChanState(m, count)
	})
}

func (c *Channel[T]) modeLocked() chanMode {
	mode, _ := unpackChanState(c.state.Load())
	return mode
}

// IsClosed reports whether Close has been called.
func (c *Channel[T]) IsClosed() bool {
	mode, _ := unpackChanState(c.state.Load())
	return mode == chanClosed
}

// IsCanceled reports whether Cancel has been called.
func (c *Channel[T]) IsCanceled() bool {
	mode, _ := unpackChanState(c.state.Load())
	return mode == chanCanceled
}

// Len reports the number of values currently buffered.
func (c *Channel[T]) Len() int {
	_, count := unpackChanState(c.state.Load())
	if count < 0 {
		return 0
	}
	return int(count)
}

func (c *Channel[T]) sendErrLocked() error {
	switch c.modeLocked() {
	case chanCanceled:
		return &ChannelError{Err: ErrChannelCanceled}
	case chanClosed:
		return &ChannelError{Err: ErrChannelClosed}
	default:
		return nil
	}
}

func (c *Channel[T]) recvErrLocked() error {
	switch c.modeLocked() {
	case chanCanceled:
		return &ChannelError{Err: ErrChannelCanceled}
	case chanClosed:
		if c.buf.Len() == 0 {
			return &ChannelError{Err: ErrChannelClosed}
		}
	}
	return nil
}

// promoteOneSenderLocked must be called with c.mu held, right after
// removing one value from buf. It moves the next waiting sender's value
// into the newly freed slot and returns that sender's resume func for
// the caller to invoke once it has released the lock — never call the
// returned func while still holding c.mu.
func (c *Channel[T]) promoteOneSenderLocked() func(any) {
	if c.sendQ.Len() == 0 || c.buf.Len() >= c.maxSize {
		return nil
	}
	w := c.sendQ.PopFront()
	c.buf.PushBack(w.value)
	return w.resume
}

// checkDrainCompleteLocked must be called with c.mu held after removing
// a value from buf. It reports whether the channel has just become
// closed-and-drained, and if so clears terminalErr to nil (a drained
// Close, unlike a Cancel, is not itself an error condition for
// WhenComplete's purposes).
func (c *Channel[T]) checkDrainCompleteLocked() bool {
	if c.modeLocked() == chanClosed && c.buf.Len() == 0 {
		c.terminalErr = nil
		return true
	}
	return false
}

func (c *Channel[T]) fireComplete() {
	for _, cb := range c.cbs.closeAndDrain() {
		cb()
	}
}

// AwaitSend suspends co until v is accepted: immediately, if a receiver
// is already waiting or the buffer has room, or later once one of those
// becomes true. It returns an error, without sending v, if the channel
// is already closed or canceled, or becomes so while co is suspended.
func (c *Channel[T]) AwaitSend(co *Coroutine, v T) error {
	res := co.Await(func(resume func(any)) {
		c.mu.Lock()

		if err := c.sendErrLocked(); err != nil {
			c.mu.Unlock()
			resume(err)
			return
		}

		if c.recvQ.Len() > 0 {
			w := c.recvQ.PopFront()
			c.mu.Unlock()
			w.resume(&chanRecvResult[T]{value: v})
			resume(nil)
			return
		}

		if c.buf.Len() < c.maxSize {
			c.buf.PushBack(v)
			c.setCount(int64(c.buf.Len()))
			c.mu.Unlock()
			resume(nil)
			return
		}

		c.sendQ.PushBack(&chanSendWaiter[T]{value: v, resume: resume})
		c.mu.Unlock()
	})
	if res == nil {
		return nil
	}
	return res.(error)
}

// Offer attempts to send v without suspending. accepted is false with a
// nil error when the buffer is full and no receiver is waiting — not a
// terminal condition, just "try again or suspend instead".
func (c *Channel[T]) Offer(v T) (accepted bool, err error) {
	c.mu.Lock()

	if err := c.sendErrLocked(); err != nil {
		c.mu.Unlock()
		return false, err
	}

	if c.recvQ.Len() > 0 {
		w := c.recvQ.PopFront()
		c.mu.Unlock()
		w.resume(&chanRecvResult[T]{value: v})
		return true, nil
	}

	if c.buf.Len() < c.maxSize {
		c.buf.PushBack(v)
		c.setCount(int64(c.buf.Len()))
		c.mu.Unlock()
		return true, nil
	}

	c.mu.Unlock()
	return false, nil
}

// SendFuture sends v asynchronously without requiring a coroutine to do
// the suspending: it returns a Future that resolves once v is accepted,
// or fails with the terminal error if the channel is or becomes closed
// or canceled first. Useful for feeding a Channel from plain goroutine
// code that has no Coroutine of its own.
func (c *Channel[T]) SendFuture(v T) *Future[struct{}] {
	promise, future := NewPromise[struct{}]()

	deliver := func(res any) {
		if err, _ := res.(error); err != nil {
			promise.Fail(err)
			return
		}
		promise.Success(struct{}{})
	}

	c.mu.Lock()

	if err := c.sendErrLocked(); err != nil {
		c.mu.Unlock()
		deliver(err)
		return future
	}

	if c.recvQ.Len() > 0 {
		w := c.recvQ.PopFront()
		c.mu.Unlock()
		w.resume(&chanRecvResult[T]{value: v})
		deliver(nil)
		return future
	}

	if c.buf.Len() < c.maxSize {
		c.buf.PushBack(v)
		c.setCount(int64(c.buf.Len()))
		c.mu.Unlock()
		deliver(nil)
		return future
	}

	c.sendQ.PushBack(&chanSendWaiter[T]{value: v, resume: deliver})
	c.mu.Unlock()
	return future
}

// AwaitReceive suspends co until a value is available, then returns it.
// Once the channel has been closed, AwaitReceive keeps returning whatever
// remains buffered before finally returning ErrChannelClosed once empty.
func (c *Channel[T]) AwaitReceive(co *Coroutine) (T, error) {
	res := co.Await(func(resume func(any)) {
		c.mu.Lock()

		if c.buf.Len() > 0 {
			val := c.buf.PopFront()
			promoted := c.promoteOneSenderLocked()
			c.setCount(int64(c.buf.Len()))
			fire := c.checkDrainCompleteLocked()
			c.mu.Unlock()

			if promoted != nil {
				promoted(nil)
			}
			if fire {
				c.fireComplete()
			}
			resume(&chanRecvResult[T]{value: val})
			return
		}

		// A sender can be queued here with nothing in buf: on a
		// rendezvous channel (maxSize 0) every send goes straight to
		// sendQ, since buf.Len() < maxSize is never true. Hand its
		// value straight to the receiver instead of through buf.
		if c.sendQ.Len() > 0 {
			w := c.sendQ.PopFront()
			c.mu.Unlock()
			w.resume(nil)
			resume(&chanRecvResult[T]{value: w.value})
			return
		}

		if err := c.recvErrLocked(); err != nil {
			c.mu.Unlock()
			resume(&chanRecvResult[T]{err: err})
			return
		}

		c.recvQ.PushBack(&chanRecvWaiter[T]{resume: resume})
		c.mu.Unlock()
	})
	r := res.(*chanRecvResult[T])
	return r.value, r.err
}

// Poll attempts to receive a value without suspending. ok is false with
// a nil error when the buffer is empty and the channel is still open —
// not a terminal condition, just "try again or suspend instead".
func (c *Channel[T]) Poll() (v T, ok bool, err error) {
	c.mu.Lock()

	if c.buf.Len() > 0 {
		val := c.buf.PopFront()
		promoted := c.promoteOneSenderLocked()
		c.setCount(int64(c.buf.Len()))
		fire := c.checkDrainCompleteLocked()
		c.mu.Unlock()

		if promoted != nil {
			promoted(nil)
		}
		if fire {
			c.fireComplete()
		}
		return val, true, nil
	}

	if c.sendQ.Len() > 0 {
		w := c.sendQ.PopFront()
		c.mu.Unlock()
		w.resume(nil)
		return w.value, true, nil
	}

	if err := c.recvErrLocked(); err != nil {
		c.mu.Unlock()
		return v, false, err
	}

	c.mu.Unlock()
	return v, false, nil
}

// WhenReceive registers fn to run with the next value received, or the
// terminal error once the channel reaches a terminal state, without
// requiring a coroutine. Unlike AwaitReceive, it does not keep re-arming
// itself; call it again to wait for a further value.
func (c *Channel[T]) WhenReceive(fn func(v T, err error)) {
	deliver := func(res any) {
		r := res.(*chanRecvResult[T])
		fn(r.value, r.err)
	}

	c.mu.Lock()

	if c.buf.Len() > 0 {
		val := c.buf.PopFront()
		promoted := c.promoteOneSenderLocked()
		c.setCount(int64(c.buf.Len()))
		fire := c.checkDrainCompleteLocked()
		c.mu.Unlock()

		if promoted != nil {
			promoted(nil)
		}
		if fire {
			c.fireComplete()
		}
		deliver(&chanRecvResult[T]{value: val})
		return
	}

	if c.sendQ.Len() > 0 {
		w := c.sendQ.PopFront()
		c.mu.Unlock()
		w.resume(nil)
		deliver(&chanRecvResult[T]{value: w.value})
		return
	}

	if err := c.recvErrLocked(); err != nil {
		c.mu.Unlock()
		deliver(&chanRecvResult[T]{err: err})
		return
	}

	c.recvQ.PushBack(&chanRecvWaiter[T]{resume: deliver})
	c.mu.Unlock()
}

// Close marks the channel closed: no further sends will succeed, but
// values already buffered can still be received until drained. Close is
// a no-op if the channel is already closed or canceled.
func (c *Channel[T]) Close() {
	c.mu.Lock()
	if c.modeLocked() != chanOpen {
		c.mu.Unlock()
		return
	}
	c.setMode(chanClosed)

	sendWaiters := drainSendQLocked(c)

	drained := c.buf.Len() == 0
	var recvWaiters []*chanRecvWaiter[T]
	if drained {
		c.terminalErr = nil
		recvWaiters = drainRecvQLocked(c)
	}
	c.mu.Unlock()

	for _, w := range sendWaiters {
		w.resume(&ChannelError{Err: ErrChannelClosed})
	}
	for _, w := range recvWaiters {
		w.resume(&chanRecvResult[T]{err: &ChannelError{Err: ErrChannelClosed}})
	}
	if drained {
		c.fireComplete()
	}
}

// Cancel immediately fails every pending and future send and receive
// with ErrChannelCanceled and discards any buffered values. Cancel is a
// no-op if the channel is already closed or canceled, satisfying the
// package's Cancellable contract.
func (c *Channel[T]) Cancel() {
	c.mu.Lock()
	if c.modeLocked() != chanOpen {
		c.mu.Unlock()
		return
	}
	c.setMode(chanCanceled)
	c.terminalErr = &ChannelError{Err: ErrChannelCanceled}

	for c.buf.Len() > 0 {
		c.buf.PopFront()
	}
	c.setCount(0)

	sendWaiters := drainSendQLocked(c)
	recvWaiters := drainRecvQLocked(c)
	c.mu.Unlock()

	for _, w := range sendWaiters {
		w.resume(&ChannelError{Err: ErrChannelCanceled})
	}
	for _, w := range recvWaiters {
		w.resume(&chanRecvResult[T]{err: &ChannelError{Err: ErrChannelCanceled}})
	}
	c.fireComplete()
}

func drainSendQLocked[T any](c *Channel[T]) []*chanSendWaiter[T] {
	var out []*chanSendWaiter[T]
	for c.sendQ.Len() > 0 {
		out = append(out, c.sendQ.PopFront())
	}
	return out
}

func drainRecvQLocked[T any](c *Channel[T]) []*chanRecvWaiter[T] {
	var out []*chanRecvWaiter[T]
	for c.recvQ.Len() > 0 {
		out = append(out, c.recvQ.PopFront())
	}
	return out
}

// WhenComplete registers fn to run once the channel reaches a terminal
// state: closed and fully drained (err nil), or canceled (err wrapping
// ErrChannelCanceled). If that has already happened, fn runs
// immediately, on the calling goroutine.
func (c *Channel[T]) WhenComplete(fn func(err error)) {
	cb := func() {
		c.mu.Lock()
		err := c.terminalErr
		c.mu.Unlock()
		fn(err)
	}
	if !c.cbs.push(cb) {
		cb()
	}
}

// WhenCanceled registers fn to run only if the channel is canceled.
func (c *Channel[T]) WhenCanceled(fn func()) {
	c.WhenComplete(func(err error) {
		if errors.Is(err, ErrChannelCanceled) {
			fn()
		}
	})
}

// OnDone implements the package's internal completer capability: fn runs
// once the channel reaches a terminal state, regardless of how.
func (c *Channel[T]) OnDone(fn func()) {
	c.WhenComplete(func(error) { fn() })
}

// MapReceiver is a read-only view over a Channel that transforms every
// value received through it with fn, without an intermediate buffer or
// goroutine of its own.
type MapReceiver[T, U any] struct {
	ch *Channel[T]
	fn func(T) U
}

// NewMapReceiver returns a MapReceiver applying fn to every value
// received from ch.
func NewMapReceiver[T, U any](ch *Channel[T], fn func(T) U) *MapReceiver[T, U] {
	return &MapReceiver[T, U]{ch: ch, fn: fn}
}

// AwaitReceive suspends co exactly like the underlying Channel's, mapping
// a successfully received value through fn.
func (m *MapReceiver[T, U]) AwaitReceive(co *Coroutine) (U, error) {
	v, err := m.ch.AwaitReceive(co)
	var zero U
	if err != nil {
		return zero, err
	}
	return m.fn(v), nil
}

// Poll is AwaitReceive's non-suspending counterpart.
func (m *MapReceiver[T, U]) Poll() (U, bool, error) {
	v, ok, err := m.ch.Poll()
	var zero U
	if !ok || err != nil {
		return zero, ok, err
	}
	return m.fn(v), true, nil
}

// Iterator pulls values one at a time from a Channel: Next suspends the
// calling coroutine when none is ready yet, TryNext never suspends.
type Iterator[T any] struct {
	ch *Channel[T]
}

// MakeIterator returns an Iterator over ch's values.
func MakeIterator[T any](ch *Channel[T]) *Iterator[T] {
	return &Iterator[T]{ch: ch}
}

// Next suspends co until a value is available, returning ok=false once
// ch reaches a terminal state.
func (it *Iterator[T]) Next(co *Coroutine) (v T, ok bool) {
	val, err := it.ch.AwaitReceive(co)
	if err != nil {
		return v, false
	}
	return val, true
}

// TryNext is Next's non-suspending counterpart, for use outside a
// coroutine. It returns ok=false both when nothing is ready yet and
// once ch reaches a terminal state; callers that need to tell those
// apart should use Poll directly.
func (it *Iterator[T]) TryNext() (v T, ok bool) {
	val, got, err := it.ch.Poll()
	if !got || err != nil {
		return v, false
	}
	return val, true
}
