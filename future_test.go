package cocoro_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/goleak"

	"github.com/cocoro-go/cocoro"
)

func TestFutureAwaitBasic(t *testing.T) {
	defer goleak.VerifyNone(t, leakOpts...)

	promise, source := cocoro.NewPromise[int]()

	done := make(chan struct{})
	var got int
	var gotErr error

	cocoro.Launch(cocoro.GoExecutor{}, nil, func(co *cocoro.Coroutine) {
		got, gotErr = source.Await(co)
		close(done)
	})

	promise.Success(21)
	<-done

	assert.NoError(t, gotErr)
	assert.Equal(t, 21, got)
}

func TestFutureAwaitAlreadyResolvedTakesFastPath(t *testing.T) {
	defer goleak.VerifyNone(t, leakOpts...)

	promise, source := cocoro.NewPromise[string]()
	promise.Success("ready")

	done := make(chan struct{})
	var got string
	cocoro.Launch(cocoro.GoExecutor{}, nil, func(co *cocoro.Coroutine) {
		got, _ = source.Await(co)
		close(done)
	})
	<-done

	assert.Equal(t, "ready", got)
}

func TestFutureAwaitTimeout(t *testing.T) {
	defer goleak.VerifyNone(t, leakOpts...)

	_, source := cocoro.NewPromise[int]()

	done := make(chan struct{})
	var gotErr error
	cocoro.Launch(cocoro.GoExecutor{}, nil, func(co *cocoro.Coroutine) {
		_, gotErr = source.AwaitTimeout(co, 20*time.Millisecond)
		close(done)
	})
	<-done

	assert.ErrorIs(t, gotErr, cocoro.ErrFutureTimeout)
}

func TestFutureAwaitTimeoutDoesNotFireOnceResolvedFirst(t *testing.T) {
	defer goleak.VerifyNone(t, leakOpts...)

	promise, source := cocoro.NewPromise[int]()

	done := make(chan struct{})
	var got int
	var gotErr error
	cocoro.Launch(cocoro.GoExecutor{}, nil, func(co *cocoro.Coroutine) {
		got, gotErr = source.AwaitTimeout(co, time.Second)
		close(done)
	})

	promise.Success(7)
	<-done

	assert.NoError(t, gotErr)
	assert.Equal(t, 7, got)
}

func TestFutureMapFlatMap(t *testing.T) {
	defer goleak.VerifyNone(t, leakOpts...)

	p1, f1 := cocoro.NewPromise[int]()
	doubled := cocoro.Map(f1, func(v int) int { return v * 2 })
	chained := cocoro.FlatMap(doubled, func(v int) *cocoro.Future[string] {
		p2, f2 := cocoro.NewPromise[string]()
		p2.Success(fmt.Sprintf("got %d", v))
		return f2
	})

	done := make(chan struct{})
	var result string
	var err error
	cocoro.Launch(cocoro.GoExecutor{}, nil, func(co *cocoro.Coroutine) {
		result, err = chained.Await(co)
		close(done)
	})

	p1.Success(5)
	<-done

	assert.NoError(t, err)
	assert.Equal(t, "got 10", result)
}

func TestFutureCancelPropagatesThroughMap(t *testing.T) {
	defer goleak.VerifyNone(t, leakOpts...)

	_, f1 := cocoro.NewPromise[int]()
	mapped := cocoro.Map(f1, func(v int) int { return v + 1 })

	f1.Cancel()

	done := make(chan struct{})
	var err error
	cocoro.Launch(cocoro.GoExecutor{}, nil, func(co *cocoro.Coroutine) {
		_, err = mapped.Await(co)
		close(done)
	})
	<-done

	assert.True(t, mapped.IsCanceled())
	assert.ErrorIs(t, err, cocoro.ErrFutureCanceled)
}
