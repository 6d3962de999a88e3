package cocoro

import "sync"

// Submitter is the single capability a coroutine needs from whatever is
// scheduling it: the ability to run a closure later, on its own terms.
// Await's slow path, and every coroutine launcher, go through a
// Submitter rather than touching a goroutine or channel directly, so the
// same Await/Go/Launch machinery works whether resumption happens on a
// dedicated single-threaded dispatch loop, on a fresh goroutine per
// submission, or on one specific long-lived goroutine.
type Submitter interface {
	Submit(job func())
}

// queuedJob is the unit Executor's priority queue actually holds: a
// submitted closure tagged with the monotonically increasing sequence
// number it arrived with, so the queue's ordering degenerates to plain
// FIFO while still reusing priorityqueue's less-based machinery unchanged.
type queuedJob struct {
	seq int64
	job func()
}

func (j *queuedJob) less(other *queuedJob) bool {
	return j.seq < other.seq
}

// Executor is a serial Submitter: it runs every submitted job to
// completion, one at a time, in submission order, never running two jobs
// concurrently. It is a single-threaded dispatch loop built around a
// priority queue, specialized here to run opaque func() jobs — which is
// all Coroutine's resume continuations are — in strict FIFO order.
//
// Run pops and runs jobs until the queue empties, including jobs
// submitted by a job while Run is already executing. Submit is safe to
// call concurrently (a resume callback commonly fires from an unrelated
// goroutine); Run itself is not reentrant and must not be called from
// two goroutines at once.
type Executor struct {
	mu      sync.Mutex
	pq      priorityqueue[*queuedJob]
	seq     int64
	running bool
	autorun func()
}

// Autorun sets up a function to call Run automatically whenever Submit
// adds a job to an otherwise idle queue. Pass a function that itself
// calls Run, typically on a dedicated goroutine.
//
// If f blocks, Submit may block too. The best practice is not to block.
func (e *Executor) Autorun(f func()) {
	e.autorun = f
}

// Run pops and runs every job in the queue until the queue is emptied.
//
// Run must not be called twice at the same time.
func (e *Executor) Run() {
	e.mu.Lock()
	e.running = true

	for !e.pq.Empty() {
		j := e.pq.Pop()
		e.mu.Unlock()
		j.job()
		e.mu.Lock()
	}

	e.running = false
	e.mu.Unlock()
}

// Submit enqueues job for later execution by Run. Safe for concurrent use.
func (e *Executor) Submit(job func()) {
	var autorun func()

	e.mu.Lock()

	e.seq++
	e.pq.Push(&queuedJob{seq: e.seq, job: job})

	if !e.running && e.autorun != nil {
		e.running = true
		autorun = e.autorun
	}

	e.mu.Unlock()

	if autorun != nil {
		autorun()
	}
}

// GoExecutor is a Submitter that runs every submitted job on its own
// fresh goroutine. It imposes no serialization at all; use it when
// coroutine bodies are already safe to run concurrently with each other
// and resumption should just be ordinary Go scheduling.
type GoExecutor struct{}

// Submit runs job on a new goroutine.
func (GoExecutor) Submit(job func()) {
	go job()
}

// ThreadExecutor is a Submitter bound to one specific, long-lived
// goroutine: every submitted job runs on that same goroutine, in
// submission order. Useful for coroutines that must resume on a single
// owning goroutine — a UI event loop, a non-concurrency-safe connection —
// without paying for a full priority queue and Run/Autorun dance.
type ThreadExecutor struct {
	jobs chan func()
	once sync.Once
}

// NewThreadExecutor starts the dedicated goroutine and returns a
// ThreadExecutor bound to it. Call Stop to let that goroutine exit.
func NewThreadExecutor() *ThreadExecutor {
	te := &ThreadExecutor{jobs: make(chan func())}
	go te.loop()
	return te
}

func (te *ThreadExecutor) loop() {
	for job := range te.jobs {
		job()
	}
}

// Submit enqueues job for the dedicated goroutine to run next.
func (te *ThreadExecutor) Submit(job func()) {
	te.jobs <- job
}

// Stop tells the dedicated goroutine to exit once it drains any jobs
// already submitted. Submit must not be called again afterwards.
func (te *ThreadExecutor) Stop() {
	te.once.Do(func() { close(te.jobs) })
}
