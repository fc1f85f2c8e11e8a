package ioruntime

import (
	"context"

	sio "github.com/maikel/sio-go"
	"github.com/maikel/sio-go/internal/sys"
	"github.com/maikel/sio-go/task"
)

// Scheduler is a handle back to the Context (or thread-pool slot) that a
// sequence of operations should keep running on. Schedule returns a Sender
// whose completion is delivered inline by the run loop — no SQE is ever
// written for it — making it the building block every resource/ operation
// uses to hop back onto its owning Context after a kernel round trip.
type Scheduler interface {
	Schedule() sio.Sender[struct{}]
}

// Scheduler returns a handle that schedules work onto c.
func (c *Context) Scheduler() Scheduler {
	return contextScheduler{c: c}
}

type contextScheduler struct{ c *Context }

func (s contextScheduler) Schedule() sio.Sender[struct{}] {
	return scheduleSender{c: s.c}
}

type scheduleSender struct{ c *Context }

func (s scheduleSender) Connect(ctx context.Context, r sio.Receiver[struct{}]) sio.Operation {
	return &scheduleOperation{c: s.c, ctx: ctx, r: r}
}

// scheduleOperation is the canonical ready task: ReadyFn always reports
// true, so the run loop's submitFIFO completes it inline without ever
// calling GetSQE, matching spec.md §4.3's "Ready() true only for
// Scheduler().Schedule()'s inline sender".
type scheduleOperation struct {
	task.Task
	c   *Context
	ctx context.Context
	r   sio.Receiver[struct{}]
}

func (o *scheduleOperation) Start() {
	o.Task.ReadyFn = func() bool { return true }
	o.Task.CompleteFn = func(sys.CQE) {
		if o.ctx.Err() != nil {
			o.r.Stopped()
			return
		}
		o.r.Value(struct{}{})
	}
	o.c.Submit(&o.Task)
}
