package cocoro

import (
	"sync"
	"sync/atomic"
)

// coState tracks a Coroutine's lifecycle independently of whatever its
// body happens to be doing at any given instant (running, or parked
// inside an Await). It exists so IsRunning (and hence Await's
// outside-a-coroutine check) has something stable to read without racing
// the worker's own channel handoff.
type coState int32

const (
	coPrepared coState = iota
	coActive
	coDone
)

// Coroutine is a stackful unit of cooperative work: a goroutine drawn
// from the package's stack pool, paired with a rendezvous channel, that
// can suspend at arbitrary call depth inside Await and be resumed later
// from any goroutine without rewriting the body in continuation-passing
// style.
//
// A Coroutine is created by Go, Launch, LaunchDetached or Spawn; callers
// never construct one directly.
type Coroutine struct {
	submitter Submitter
	w         *worker
	state     atomic.Int32
	scope     *Scope
	parent    *Coroutine
	canceled  atomic.Bool
	onDone    func(panicErr error)
	doneCbs   callbackStack

	pstackMu sync.Mutex
	pstack   panicstack
}

// OnDone registers fn to run once co's body has returned or panicked.
// If co has already finished, fn runs immediately, on the calling
// goroutine. OnDone makes Coroutine satisfy this package's internal
// completer capability, which is how Scope.Join learns when a spawned
// child coroutine finishes without needing a coroutine of its own to do
// the waiting from.
func (co *Coroutine) OnDone(fn func()) {
	if !co.doneCbs.push(fn) {
		fn()
	}
}

func newCoroutine(submitter Submitter, parent *Coroutine) *Coroutine {
	return &Coroutine{submitter: submitter, parent: parent, scope: NewScope()}
}

// Parent returns the coroutine that spawned co, or nil if co was started
// with Go, Launch or LaunchDetached directly.
func (co *Coroutine) Parent() *Coroutine {
	return co.parent
}

// Scope returns the scope that owns co's children and Await-chained
// cancellables. It is canceled automatically once co's body returns,
// panics, or is itself canceled.
func (co *Coroutine) Scope() *Scope {
	return co.scope
}

// IsRunning reports whether co's body is currently alive: started, and
// neither returned nor panicked to completion yet. A parked coroutine
// (blocked inside Await, waiting on resume) still counts as running.
func (co *Coroutine) IsRunning() bool {
	return co != nil && coState(co.state.Load()) == coActive
}

// Canceled reports whether Cancel has been called on co or an ancestor
// scope that contains co.
func (co *Coroutine) Canceled() bool {
	return co.canceled.Load()
}

// Cancel marks co as canceled and cancels everything co's scope owns
// (child coroutines, chained futures and channels). It does not forcibly
// unwind a coroutine that is actively running outside of Await; it is up
// to cooperating code inside the body to check Canceled and unwind itself,
// exactly as a context.Context consumer would check ctx.Err().
func (co *Coroutine) Cancel() {
	if co.canceled.CompareAndSwap(false, true) {
		co.scope.cancelAll()
	}
}

// SwitchTo changes the Submitter that will carry out co's future resumes.
// Only meaningful called from inside co's own body; has no effect on
// whichever Await call is already mid-flight when it's called, since that
// one's continuation has already been wired to the previous submitter.
func (co *Coroutine) SwitchTo(submitter Submitter) {
	co.submitter = submitter
}

// slotState is the resume protocol's state machine:
//
//   - none: freshly allocated, not yet handed to register.
//   - armed: register has been called; resume may fire at any moment,
//     including synchronously, before register itself returns.
//   - firing: Await's own goroutine has committed to parking and is
//     about to block on the rendezvous channel; a resume racing in now
//     must deliver through that channel rather than inline.
//   - fired: resolved, value stored, exactly once.
type slotState int32

const (
	slotNone slotState = iota
	slotArmed
	slotFiring
	slotFired
)

// awaitSlot implements the fast-path/slow-path resume protocol for a
// single Await call. If resume fires before Await's goroutine reaches
// the point of parking (the common case for an already-available result,
// or a callback invoked synchronously from register), the slot resolves
// with a single CAS and Await never touches the rendezvous channel at
// all. Otherwise resume must hand its value to the parked goroutine
// through that channel.
type awaitSlot struct {
	state atomic.Int32
	value any
}

func (s *awaitSlot) arm() {
	s.state.Store(int32(slotArmed))
}

// resume delivers v to the slot. delivered is false if some earlier call
// already resolved the slot (resume is expected to be idempotent from the
// caller's point of view: a register callback that fires more than once,
// perhaps racing a Cancel against a completion, must not deliver twice).
// synchronous is true when the fast path fired: the caller must not also
// try to hand v to the coroutine's worker, since nobody is parked yet.
func (s *awaitSlot) resume(v any) (delivered, synchronous bool) {
	if s.state.CompareAndSwap(int32(slotArmed), int32(slotFired)) {
		s.value = v
		return true, true
	}
	if s.state.CompareAndSwap(int32(slotFiring), int32(slotFired)) {
		s.value = v
		return true, false
	}
	return false, false
}

// Await suspends co until register calls the resume function it is
// handed, then returns whatever value resume was called with. register
// is invoked synchronously, on co's own goroutine, before Await decides
// whether to actually park — this is what makes the fast path possible:
// a register that can satisfy resume immediately (a value already on
// hand, an already-closed channel) never costs a channel round trip.
//
// On the slow path, Await reports the suspend back over co.w.out before
// parking on co.w.in: exactly one goroutine is waiting on w.out at any
// time (whichever closure last submitted work to this worker), and that
// send is what releases it. Skipping this send would leave that closure
// blocked forever and, once co's worker is eventually returned to the
// pool and reused, let it steal a later coroutine's completion off the
// same shared channel.
//
// Await panics with a value of type notInsideCoroutine if co is not
// running (nil, not yet started, or already ended). It does not check
// which goroutine calls it: a call made from outside co's body while co
// is running is not detected.
func (co *Coroutine) Await(register func(resume func(any))) any {
	if !co.IsRunning() {
		throwNotInsideCoroutine()
	}

	slot := &awaitSlot{}
	slot.arm()

	resume := func(v any) {
		delivered, synchronous := slot.resume(v)
		if !delivered || synchronous {
			return
		}
		co.submitter.Submit(func() {
			co.w.in <- v
			msg := <-co.w.out
			co.deliver(msg)
		})
	}

	register(resume)

	if slot.state.CompareAndSwap(int32(slotArmed), int32(slotFiring)) {
		co.w.out <- yieldMsg{suspended: true}
		v := <-co.w.in
		return v
	}

	return slot.value
}

// deliver processes the result of one run of co's worker: either co
// suspended again (msg.suspended, nothing further to do until the next
// resume) or co's body returned or panicked, in which case the worker is
// released back to the pool, co's scope is torn down, and onDone — set
// by whichever launcher started co — learns the outcome.
//
// Before reporting, co's own panic (if any) is folded into co.pstack
// alongside every child panic pushChildPanic has already collected, so a
// coroutine whose own body panicked while one of its spawned children
// was also mid-panic reports both, rather than whichever happened to
// reach deliver first silently losing the other.
func (co *Coroutine) deliver(msg yieldMsg) {
	if msg.suspended {
		return
	}

	co.state.Store(int32(coDone))
	co.scope.cancelAll()

	co.pstackMu.Lock()
	if msg.panicV != nil {
		co.pstack.push(msg.panicV, nil)
	}
	panicErr := co.pstack.asError()
	co.pstackMu.Unlock()

	w := co.w
	co.w = nil
	defaultStackPool.release(w)

	if co.onDone != nil {
		co.onDone(panicErr)
	}

	for _, fn := range co.doneCbs.closeAndDrain() {
		fn()
	}
}

// pushChildPanic records a failed child's panic against co, so it gets
// folded into co's own outcome once co itself finishes. Guarded by its
// own mutex, since children can finish concurrently, each on its own
// goroutine, unlike a panic caught synchronously inside one body.
func (co *Coroutine) pushChildPanic(err error) {
	co.pstackMu.Lock()
	co.pstack.push(err, nil)
	co.pstackMu.Unlock()
}

// setOnDone is set by Go/Launch/LaunchDetached before start is called;
// its func receives the aggregated panic error (nil on a clean return,
// with no failed children) exactly once, after co's body has fully
// finished.
//
// It lives as a setter rather than a constructor parameter because Go's
// generic Future[T] needs co to exist (to become the child's parent for
// Spawn) before the promise closure capturing its result variable can be
// built.
func (co *Coroutine) setOnDone(f func(panicErr error)) {
	co.onDone = f
}

func (co *Coroutine) start(job func()) {
	co.w = defaultStackPool.acquire()
	co.state.Store(int32(coActive))
	co.submitter.Submit(func() {
		co.w.in <- job
		msg := <-co.w.out
		co.deliver(msg)
	})
}

// Go starts a new coroutine on submitter, running body to completion (or
// to the point where body panics), and returns a Future that resolves
// with body's return value or fails with the recovered panic.
//
// If parent is non-nil, the new coroutine is added to parent's scope:
// canceling parent also cancels this coroutine's own scope, and parent's
// Scope.Join will wait for it. Pass nil to start an unparented coroutine.
func Go[T any](submitter Submitter, parent *Coroutine, body func(co *Coroutine) T) *Future[T] {
	promise, future := NewPromise[T]()

	co := newCoroutine(submitter, parent)

	var result T
	co.setOnDone(func(panicErr error) {
		if panicErr != nil {
			promise.Fail(panicErr)
			return
		}
		promise.Success(result)
	})

	if parent != nil {
		parent.scope.Add(co)
	}

	co.start(func() {
		result = body(co)
	})

	return future
}

// Launch is Go specialized to a body with no useful return value.
func Launch(submitter Submitter, parent *Coroutine, body func(co *Coroutine)) *Future[struct{}] {
	return Go(submitter, parent, func(co *Coroutine) struct{} {
		body(co)
		return struct{}{}
	})
}

// LaunchDetached starts body fire-and-forget: nothing awaits its result,
// and there is no promise to absorb a panic. If body panics, the panic
// is re-raised from the Submitter job that observes the body's end (a
// fresh goroutine under GoExecutor, the caller of Run under Executor),
// crashing the process exactly as an unhandled panic in any other
// goroutine would unless that caller recovers it. Use this only for background work
// whose failure should be fatal, never for anything a caller might want
// to recover from — that's what Go and Launch are for.
func LaunchDetached(submitter Submitter, parent *Coroutine, body func(co *Coroutine)) {
	co := newCoroutine(submitter, parent)

	co.setOnDone(func(panicErr error) {
		if panicErr != nil {
			panic(panicErr)
		}
	})

	if parent != nil {
		parent.scope.Add(co)
	}

	co.start(func() {
		body(co)
	})
}

// Spawn starts body as a child coroutine of co, sharing co's submitter,
// tied to co's scope so that canceling co cancels it too. It does not
// wait for the child; use co.Scope().Join() to wait for every child
// spawned so far.
//
// If the child panics, its panic is folded into co's own outcome (see
// pushChildPanic) rather than simply vanishing once the child's own
// Future is left unobserved, matching the aggregated panic-propagation
// model the rest of this package's scoping follows.
func (co *Coroutine) Spawn(body func(child *Coroutine)) *Future[struct{}] {
	future := Launch(co.submitter, co, body)
	future.WhenFailure(co.pushChildPanic)
	return future
}
