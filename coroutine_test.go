package cocoro_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/goleak"

	"github.com/cocoro-go/cocoro"
)

func TestGoRecoversPanicAsFutureFailure(t *testing.T) {
	defer goleak.VerifyNone(t, leakOpts...)

	future := cocoro.Go(cocoro.GoExecutor{}, nil, func(co *cocoro.Coroutine) int {
		panic("boom")
	})

	done := make(chan struct{})
	var err error
	cocoro.Launch(cocoro.GoExecutor{}, nil, func(co *cocoro.Coroutine) {
		_, err = future.Await(co)
		close(done)
	})
	<-done

	assert.Error(t, err)
}

func TestSpawnPanicAggregatesIntoParent(t *testing.T) {
	defer goleak.VerifyNone(t, leakOpts...)

	parentFuture := cocoro.Go(cocoro.GoExecutor{}, nil, func(co *cocoro.Coroutine) int {
		co.Spawn(func(child *cocoro.Coroutine) {
			panic(errors.New("child exploded"))
		})
		_, _ = co.Scope().Join().Await(co)
		return 42
	})

	done := make(chan struct{})
	var err error
	cocoro.Launch(cocoro.GoExecutor{}, nil, func(co *cocoro.Coroutine) {
		_, err = parentFuture.Await(co)
		close(done)
	})
	<-done

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "child exploded")
}

func TestCoroutineCancelPropagatesToScopeMembers(t *testing.T) {
	defer goleak.VerifyNone(t, leakOpts...)

	ch := cocoro.NewChannel[int](1)

	done := make(chan struct{})
	cocoro.Launch(cocoro.GoExecutor{}, nil, func(co *cocoro.Coroutine) {
		co.Scope().Add(ch)
		co.Cancel()
		close(done)
	})
	<-done

	assert.True(t, ch.IsCanceled())
}
