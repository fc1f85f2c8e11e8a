package task

import "sync/atomic"

// MPSCQueue is a lock-free, intrusive, multi-producer single-consumer
// queue used for the cross-thread submission handoff of spec §3/§4.2.
// Producers prepend onto an atomic head in a single CAS loop (a Treiber
// stack); the single consumer swaps the whole chain out atomically and
// reverses it once to recover FIFO order before draining. No allocation
// occurs on either path — the link lives inside the Task being queued.
type MPSCQueue struct {
	head atomic.Pointer[Task]
}

// Push adds t to the queue. Safe for concurrent use by any number of
// producer goroutines.
func (q *MPSCQueue) Push(t *Task) {
	for {
		old := q.head.Load()
		t.SetNext(old)
		if q.head.CompareAndSwap(old, t) {
			return
		}
	}
}

// DrainAll atomically detaches every task currently queued and returns
// them as an IntrusiveFIFO in original push order. Must only be called
// from the single consumer goroutine (the context's owning goroutine).
func (q *MPSCQueue) DrainAll() IntrusiveFIFO {
	top := q.head.Swap(nil)

	// top is in LIFO (most-recently-pushed-first) order; reverse it once
	// so the consumer observes FIFO order, matching spec §4.2's "preserves
	// FIFO among items of the same priority".
	var reversed *Task
	for top != nil {
		next := top.Next()
		top.SetNext(reversed)
		reversed = top
		top = next
	}

	var out IntrusiveFIFO
	for reversed != nil {
		next := reversed.Next()
		reversed.SetNext(nil)
		out.PushBack(reversed)
		reversed = next
	}
	return out
}

// Empty reports whether the queue currently has no tasks. Racy by nature
// (another producer may push immediately after this returns true); callers
// use it only as a loop-exit hint, never as a correctness gate.
func (q *MPSCQueue) Empty() bool {
	return q.head.Load() == nil
}
