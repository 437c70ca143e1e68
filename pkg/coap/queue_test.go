// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package coap

import "testing"

func queueTicks(q *Queue) []int64 {
	var ts []int64
	for n := q.PeekFront(); n != nil; n = n.next {
		ts = append(ts, n.T)
	}
	return ts
}

func TestQueueInsertKeepsSortedOrder(t *testing.T) {
	inserts := []int64{5, 1, 3, 3, 9, 0, 3, 7}

	q := &Queue{}
	min := inserts[0]
	for i, tick := range inserts {
		q.Insert(&QueueNode{T: tick}, ByScheduledTick)
		if tick < min {
			min = tick
		}

		ts := queueTicks(q)
		if len(ts) != i+1 {
			t.Fatalf("after %d inserts queue has %d nodes", i+1, len(ts))
		}
		for j := 1; j < len(ts); j++ {
			if ts[j-1] > ts[j] {
				t.Fatalf("queue out of order after inserting %d: %v", tick, ts)
			}
		}
		if got := q.PeekFront().T; got != min {
			t.Errorf("PeekFront().T = %d, want min %d", got, min)
		}
	}
}

func TestQueueEqualTicksInsertAfter(t *testing.T) {
	q := &Queue{}
	first := &QueueNode{T: 10, TransactionID: 1}
	second := &QueueNode{T: 10, TransactionID: 2}
	q.Insert(first, ByScheduledTick)
	q.Insert(second, ByScheduledTick)

	if q.PopFront() != first {
		t.Error("equal-tick insert did not preserve insertion order")
	}
	if q.PopFront() != second {
		t.Error("second equal-tick node lost")
	}
}

func TestQueuePopFront(t *testing.T) {
	q := &Queue{}
	if q.PopFront() != nil {
		t.Error("PopFront on empty queue should be nil")
	}

	q.Insert(&QueueNode{T: 2}, ByScheduledTick)
	q.Insert(&QueueNode{T: 1}, ByScheduledTick)

	if n := q.PopFront(); n == nil || n.T != 1 {
		t.Errorf("PopFront returned %+v, want T=1", n)
	}
	if q.Len() != 1 {
		t.Errorf("Len = %d after pop, want 1", q.Len())
	}
}

func TestQueueRemoveByID(t *testing.T) {
	q := &Queue{}
	q.Insert(&QueueNode{T: 1, TransactionID: 100}, ByScheduledTick)
	q.Insert(&QueueNode{T: 2, TransactionID: 200}, ByScheduledTick)
	q.Insert(&QueueNode{T: 3, TransactionID: 200}, ByScheduledTick)

	if n := q.RemoveByID(999); n != nil {
		t.Errorf("RemoveByID(999) = %+v, want nil", n)
	}

	n := q.RemoveByID(200)
	if n == nil || n.T != 2 {
		t.Fatalf("RemoveByID(200) = %+v, want first occurrence T=2", n)
	}
	if q.Len() != 2 {
		t.Errorf("Len = %d after remove, want 2", q.Len())
	}

	// Removing the head must relink properly.
	if n := q.RemoveByID(100); n == nil || n.T != 1 {
		t.Fatalf("RemoveByID(100) = %+v, want head T=1", n)
	}
	if got := q.PeekFront(); got == nil || got.TransactionID != 200 {
		t.Errorf("head after removals = %+v, want TID 200", got)
	}
}

func TestQueueDeleteAll(t *testing.T) {
	q := &Queue{}
	for i := int64(0); i < 100; i++ {
		q.Insert(&QueueNode{T: i}, ByScheduledTick)
	}
	q.DeleteAll()
	if !q.Empty() || q.Len() != 0 {
		t.Errorf("queue not empty after DeleteAll: len=%d", q.Len())
	}
}

func TestCanExit(t *testing.T) {
	sock := &scriptedSocket{from: testPeer()}
	ep := newTestEndpoint(sock, &fakeClock{}, EndpointConfig{})

	if !ep.CanExit() {
		t.Error("CanExit should be true with both queues empty")
	}

	ep.SendQueue.Insert(&QueueNode{T: 1}, ByScheduledTick)
	if ep.CanExit() {
		t.Error("CanExit should be false with a pending send")
	}
	ep.SendQueue.PopFront()

	ep.ReceiveQueue.Insert(&QueueNode{T: 1}, receiveArrivalOrder)
	if ep.CanExit() {
		t.Error("CanExit should be false with a pending receive")
	}
	ep.ReceiveQueue.PopFront()

	if !ep.CanExit() {
		t.Error("CanExit should be true again once drained")
	}
}
