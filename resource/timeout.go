package resource

import (
	"context"
	"sync/atomic"
	"time"
	"unsafe"

	sio "github.com/maikel/sio-go"
	"github.com/maikel/sio-go/internal/sys"
	"github.com/maikel/sio-go/ioruntime"
	"github.com/maikel/sio-go/task"
)

// Timeout races s against an IORING_OP_TIMEOUT SQE of duration d. If the
// timer wins, s's own context is canceled (triggering its cancelableOp's
// own ASYNC_CANCEL if s is SQE-backed) and the returned sender completes
// with ErrTimedOut; otherwise the timer is removed and s's own completion
// is forwarded unchanged. Promoted from spec.md §5's "schedule_after(d)
// race" sketch into a full component per SPEC_FULL.md §5.
func Timeout[T any](c *ioruntime.Context, d time.Duration, s sio.Sender[T]) sio.Sender[T] {
	return timeoutSender[T]{c: c, d: d, s: s}
}

type timeoutSender[T any] struct {
	c *ioruntime.Context
	d time.Duration
	s sio.Sender[T]
}

func (ts timeoutSender[T]) Connect(ctx context.Context, r sio.Receiver[T]) sio.Operation {
	return &timeoutOperation[T]{c: ts.c, d: ts.d, s: ts.s, ctx: ctx, r: r}
}

type timeoutOperation[T any] struct {
	c   *ioruntime.Context
	d   time.Duration
	s   sio.Sender[T]
	ctx context.Context
	r   sio.Receiver[T]

	won   atomic.Bool
	timer task.Task
	ts    sys.Timespec
}

func (o *timeoutOperation[T]) Start() {
	childCtx, cancel := context.WithCancel(o.ctx)

	o.ts = sys.Timespec{Sec: int64(o.d / time.Second), Nsec: int64(o.d % time.Second)}
	o.timer.SubmitFn = func(sqe *sys.SQE) {
		sqe.Opcode = uint8(sys.IORING_OP_TIMEOUT)
		sqe.Fd = -1
		sqe.Addr = uint64(uintptr(unsafe.Pointer(&o.ts)))
		sqe.Len = 1
		sqe.UserData = o.timer.UserData()
	}
	o.timer.CompleteFn = func(sys.CQE) {
		if !o.won.CompareAndSwap(false, true) {
			return
		}
		cancel()
		o.r.Error(ErrTimedOut)
	}
	o.c.Submit(&o.timer)

	op := o.s.Connect(childCtx, funcReceiver[T]{
		onValue: func(v T) {
			if !o.won.CompareAndSwap(false, true) {
				return
			}
			o.removeTimer()
			o.r.Value(v)
		},
		onError: func(err error) {
			if !o.won.CompareAndSwap(false, true) {
				return
			}
			o.removeTimer()
			o.r.Error(err)
		},
		onStopped: func() {
			if !o.won.CompareAndSwap(false, true) {
				return
			}
			o.removeTimer()
			o.r.Stopped()
		},
	})
	op.Start()
}

func (o *timeoutOperation[T]) removeTimer() {
	rm := new(task.Task)
	rm.SubmitFn = func(sqe *sys.SQE) {
		sqe.Opcode = uint8(sys.IORING_OP_TIMEOUT_REMOVE)
		sqe.Fd = -1
		sqe.Addr = o.timer.UserData()
		sqe.UserData = rm.UserData()
	}
	rm.CompleteFn = func(sys.CQE) {}
	o.c.Submit(rm)
}
