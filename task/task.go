// Package task defines the universal unit of work the io_uring run loop
// schedules, along with the intrusive queues used to move tasks between
// goroutines and contexts without allocating on the submission hot path.
package task

import "github.com/maikel/sio-go/internal/sys"

// Task is the materialized vtable of an in-flight operation: three function
// fields instead of three virtual methods, embedded by value inside the
// operation object that owns it. A Task is never owned by a queue or by the
// run loop — it is only ever borrowed, from the moment it is enqueued until
// Complete has been invoked exactly once.
//
// Invariants (see spec §3 "Task"):
//   - a Task is enqueued on at most one queue at any time;
//   - ReadyFn/SubmitFn/CompleteFn never change after construction;
//   - the Task's memory remains valid until CompleteFn has returned.
type Task struct {
	// next is the intrusive link used by IntrusiveFIFO, MPSCQueue and
	// SPMCRing. A Task must not be simultaneously linked on two queues.
	next *Task

	// ReadyFn, when non-nil, reports whether this task can be completed
	// inline without ever writing an SQE (true for the scheduler's pure
	// "ready" sender and for the resolver's completion hop).
	ReadyFn func() bool

	// SubmitFn fills in the fields of sqe this task owns and must set
	// sqe.UserData to this Task's own bit pattern.
	SubmitFn func(sqe *sys.SQE)

	// CompleteFn is invoked exactly once, with the CQE that resolved this
	// task (a zero CQE when the task was Ready and completed inline). A
	// task whose Submit was refused is never completed.
	CompleteFn func(cqe sys.CQE)
}

// UserData returns this task's identity as it should be written into an
// SQE's user_data field: the task pointer's own bit pattern, round-tripped
// through unsafe.Pointer exactly as spec §4.3 requires.
func (t *Task) UserData() uint64 {
	return uint64(uintptr(ptrOf(t)))
}

// FromUserData recovers the *Task that produced a given SQE user_data
// value. The caller is responsible for knowing that the value did in fact
// originate from a Task (callers that mix Task-backed and non-Task-backed
// user_data values must discriminate before calling this; the run loop's
// wakeup poll is itself Task-backed).
func FromUserData(userData uint64) *Task {
	return (*Task)(ptrFromUintptr(uintptr(userData)))
}

// Ready reports whether this task can complete without a kernel round trip.
func (t *Task) Ready() bool {
	if t.ReadyFn == nil {
		return false
	}
	return t.ReadyFn()
}

// Submit fills sqe for this task.
func (t *Task) Submit(sqe *sys.SQE) {
	t.SubmitFn(sqe)
}

// Complete resolves this task with cqe.
func (t *Task) Complete(cqe sys.CQE) {
	t.CompleteFn(cqe)
}

// Next returns the task's intrusive link. Exposed so the queues in this
// package can be implemented as plain functions over *Task without a
// separate node type; callers outside this package should not rely on it.
func (t *Task) Next() *Task { return t.next }

// SetNext sets the task's intrusive link.
func (t *Task) SetNext(n *Task) { t.next = n }
