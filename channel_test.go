package cocoro_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/goleak"

	"github.com/cocoro-go/cocoro"
)

func TestChannelSequentialBufferOneCloseIterate(t *testing.T) {
	defer goleak.VerifyNone(t, leakOpts...)

	ch := cocoro.NewChannel[int](1)

	producerDone := make(chan struct{})
	cocoro.Launch(cocoro.GoExecutor{}, nil, func(co *cocoro.Coroutine) {
		for i := 0; i <= 100; i++ {
			assert.NoError(t, ch.AwaitSend(co, i))
		}
		ch.Close()
		close(producerDone)
	})

	consumerDone := make(chan struct{})
	var received []int
	cocoro.Launch(cocoro.GoExecutor{}, nil, func(co *cocoro.Coroutine) {
		it := cocoro.MakeIterator(ch)
		for {
			v, ok := it.Next(co)
			if !ok {
				break
			}
			received = append(received, v)
		}
		close(consumerDone)
	})

	<-producerDone
	<-consumerDone

	want := make([]int, 101)
	for i := range want {
		want[i] = i
	}
	assert.Equal(t, want, received)
	assert.True(t, ch.IsClosed())
}

func TestChannelCancelWithWaiters(t *testing.T) {
	defer goleak.VerifyNone(t, leakOpts...)

	ch := cocoro.NewChannel[int](0) // rendezvous: every send waits for a receiver

	senderErrCh := make(chan error, 1)
	cocoro.Launch(cocoro.GoExecutor{}, nil, func(co *cocoro.Coroutine) {
		senderErrCh <- ch.AwaitSend(co, 1)
	})

	receiverErrCh := make(chan error, 1)
	cocoro.Launch(cocoro.GoExecutor{}, nil, func(co *cocoro.Coroutine) {
		_, err := ch.AwaitReceive(co)
		receiverErrCh <- err
	})

	ch.Cancel()

	assert.ErrorIs(t, <-senderErrCh, cocoro.ErrChannelCanceled)
	assert.ErrorIs(t, <-receiverErrCh, cocoro.ErrChannelCanceled)
	assert.True(t, ch.IsCanceled())
}

func TestChannelRendezvousSenderArrivesFirst(t *testing.T) {
	defer goleak.VerifyNone(t, leakOpts...)

	ch := cocoro.NewChannel[int](0) // rendezvous: AwaitSend queues before any receiver shows up

	senderStarted := make(chan struct{})
	senderErrCh := make(chan error, 1)
	cocoro.Launch(cocoro.GoExecutor{}, nil, func(co *cocoro.Coroutine) {
		close(senderStarted)
		senderErrCh <- ch.AwaitSend(co, 7)
	})

	<-senderStarted
	time.Sleep(10 * time.Millisecond) // give the sender time to queue in sendQ

	var got int
	var recvErr error
	recvDone := make(chan struct{})
	cocoro.Launch(cocoro.GoExecutor{}, nil, func(co *cocoro.Coroutine) {
		got, recvErr = ch.AwaitReceive(co)
		close(recvDone)
	})

	assert.NoError(t, <-senderErrCh)
	<-recvDone
	assert.NoError(t, recvErr)
	assert.Equal(t, 7, got)
}

func TestChannelOfferAndPollNonBlocking(t *testing.T) {
	defer goleak.VerifyNone(t, leakOpts...)

	ch := cocoro.NewChannel[string](2)

	ok, err := ch.Offer("a")
	assert.True(t, ok)
	assert.NoError(t, err)

	ok, err = ch.Offer("b")
	assert.True(t, ok)
	assert.NoError(t, err)

	ok, err = ch.Offer("c")
	assert.False(t, ok)
	assert.NoError(t, err)

	v, ok, err := ch.Poll()
	assert.True(t, ok)
	assert.NoError(t, err)
	assert.Equal(t, "a", v)

	ch.Close()

	v, ok, err = ch.Poll()
	assert.True(t, ok)
	assert.NoError(t, err)
	assert.Equal(t, "b", v)

	_, ok, err = ch.Poll()
	assert.False(t, ok)
	assert.ErrorIs(t, err, cocoro.ErrChannelClosed)
}

func TestMapReceiverTransformsValues(t *testing.T) {
	defer goleak.VerifyNone(t, leakOpts...)

	ch := cocoro.NewChannel[int](4)
	for _, v := range []int{1, 2, 3} {
		ok, err := ch.Offer(v)
		assert.True(t, ok)
		assert.NoError(t, err)
	}
	ch.Close()

	doubled := cocoro.NewMapReceiver(ch, func(v int) int { return v * 2 })

	var got []int
	for {
		v, ok, err := doubled.Poll()
		if !ok {
			assert.ErrorIs(t, err, cocoro.ErrChannelClosed)
			break
		}
		got = append(got, v)
	}

	assert.Equal(t, []int{2, 4, 6}, got)
}
