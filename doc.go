// Package cocoro provides stackful coroutines for Go: suspendable
// functions that can park at arbitrary call depth inside a blocking
// Await and be resumed later from any goroutine, without being rewritten
// in continuation-passing style.
//
// A coroutine's body runs on a dedicated goroutine drawn from an
// internal pool for its entire lifetime. Suspending inside Await is an
// ordinary blocking channel receive on that same goroutine — cheap,
// since Go goroutines (unlike real OS-thread stacks) are designed to sit
// parked — so unlike a callback-based async model, a coroutine body can
// call Await from deep inside a call stack, in a loop, inside a defer,
// anywhere a normal blocking call would be legal.
//
// # Starting a coroutine
//
// [Go] starts a coroutine and returns a [Future] that resolves with its
// return value, or fails if it panics. [Launch] is [Go] specialized to a
// body with no return value. [LaunchDetached] starts a coroutine whose
// panic, if any, is fatal: it re-raises from the Submitter job that
// observes the body's end, crashing the process exactly like an
// unhandled panic on any other goroutine. [Coroutine.Spawn]
// starts a child coroutine tied to the calling coroutine's [Scope].
//
// # Where a coroutine runs
//
// Every launcher takes a [Submitter]: the capability to run a closure
// later, on its own terms. [Executor] is a single-threaded, strictly
// FIFO dispatch loop — at most one coroutine body is ever actively
// running under a given Executor at a time, since Await's slow-path
// resume always goes through Submit, and Executor.Run will not move on
// to the next queued job until the one it is running returns. [GoExecutor]
// runs every submission on its own fresh goroutine instead, so nothing
// is serialized. [ThreadExecutor] pins every submission to one specific,
// long-lived goroutine, useful for work that must stay on the goroutine
// that created some thread-affine resource.
//
// # Suspension
//
// [Coroutine.Await] is the primitive every other suspending operation in
// this package is built from: it calls register synchronously, handing
// it a resume function, then parks until resume is called. If resume
// fires before Await's goroutine commits to parking — the common case
// for a result that is already on hand — it resolves with a single CAS
// and never touches a channel at all. [Future.Await], [Channel.AwaitSend]
// /[Channel.AwaitReceive], [Signal.Await], [WaitGroup.Await] and
// [Semaphore.Acquire] are all just particular register functions layered
// on top of it.
//
// # Structured cancellation
//
// Every [Coroutine] owns a [Scope] that holds its spawned children and
// whatever else has been added to it. The Scope is canceled automatically
// once the coroutine's body returns, panics, or is itself canceled — so
// canceling a coroutine tears down everything it started, transitively,
// without the caller tracking any of it by hand. [Scope.Join] returns a
// Future that resolves once every current member has finished, for
// waiting on a group of children (or futures, or channels) without
// needing a coroutine of one's own to do the waiting from.
//
// Cancellation here is cooperative, not preemptive: Cancel does not
// forcibly unwind a coroutine that is actively running code outside of
// Await. It is up to the body to check [Coroutine.Canceled] and return,
// exactly as a context.Context consumer checks ctx.Err().
//
// # Panic propagation
//
// A coroutine started with [Go] or [Launch] turns a panic in its body
// into its Future's failure rather than crashing anything. If that
// coroutine had spawned children of its own with [Coroutine.Spawn],
// every panic among them is folded in too: a
// coroutine's reported failure is the aggregate of its own panic (if
// any) and every child panic collected along the way, not just whichever
// one happened to finish first.
package cocoro
