package cocoro_test

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/goleak"

	"github.com/cocoro-go/cocoro"
)

func TestExecutorStrictFIFOOrdering(t *testing.T) {
	defer goleak.VerifyNone(t, leakOpts...)

	var exec cocoro.Executor

	const n = 10_000
	order := make([]int, 0, n)

	for i := 0; i < n; i++ {
		i := i
		exec.Submit(func() {
			order = append(order, i)
		})
	}

	exec.Run()

	assert.Len(t, order, n)
	for i, v := range order {
		assert.Equal(t, i, v)
	}
}

func TestExecutorSerializesConcurrentSubmissions(t *testing.T) {
	defer goleak.VerifyNone(t, leakOpts...)

	var exec cocoro.Executor
	exec.Autorun(func() { go exec.Run() })

	const n = 2000
	var submitters sync.WaitGroup
	var active atomic.Int32
	var overlapped atomic.Bool
	var completed atomic.Int32

	for i := 0; i < n; i++ {
		submitters.Add(1)
		go func() {
			defer submitters.Done()
			exec.Submit(func() {
				if active.Add(1) != 1 {
					overlapped.Store(true)
				}
				completed.Add(1)
				active.Add(-1)
			})
		}()
	}
	submitters.Wait()

	doneCh := make(chan struct{})
	exec.Submit(func() { close(doneCh) })
	<-doneCh

	assert.False(t, overlapped.Load())
	assert.EqualValues(t, n, completed.Load())
}

func TestThreadExecutorRunsJobsInSubmissionOrder(t *testing.T) {
	defer goleak.VerifyNone(t, leakOpts...)

	te := cocoro.NewThreadExecutor()
	defer te.Stop()

	const n = 500
	order := make([]int, 0, n)
	var mu sync.Mutex
	last := make(chan struct{})

	for i := 0; i < n; i++ {
		i := i
		te.Submit(func() {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			if i == n-1 {
				close(last)
			}
		})
	}

	<-last

	for i, v := range order {
		assert.Equal(t, i, v)
	}
}
