package cocoro

import "testing"

func TestPriorityQueueOrdering(t *testing.T) {
	var pq priorityqueue[*queuedJob]

	for _, n := range []int64{5, 3, 8, 1, 9, 2, 7, 4, 6} {
		pq.Push(&queuedJob{seq: n})
	}

	var got []int64
	for !pq.Empty() {
		got = append(got, pq.Pop().seq)
	}

	want := []int64{1, 2, 3, 4, 5, 6, 7, 8, 9}
	if len(got) != len(want) {
		t.Fatalf("got %d items, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got[%d] = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestPriorityQueueInterleavedPushPop(t *testing.T) {
	var pq priorityqueue[*queuedJob]

	for _, n := range []int64{10, 20, 30, 40} {
		pq.Push(&queuedJob{seq: n})
	}

	for _, want := range []int64{10, 20} {
		if got := pq.Pop().seq; got != want {
			t.Fatalf("got %d, want %d", got, want)
		}
	}

	pq.Push(&queuedJob{seq: 25})
	pq.Push(&queuedJob{seq: 50})

	for _, want := range []int64{25, 30, 40, 50} {
		if got := pq.Pop().seq; got != want {
			t.Fatalf("got %d, want %d", got, want)
		}
	}

	if !pq.Empty() {
		t.Fatal("expected queue to be empty")
	}
}
