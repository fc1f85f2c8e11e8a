package resource

import (
	"context"
	"sync/atomic"

	"golang.org/x/sys/unix"

	"github.com/maikel/sio-go/internal/sys"
	"github.com/maikel/sio-go/ioruntime"
	"github.com/maikel/sio-go/task"
)

// cancelableOp is the shared submit-count bookkeeping spec.md §4.2 assigns
// to every stoppable SQE-backed task. pending starts at one, counting the
// original submission's own eventual completion. If the caller's context is
// canceled before that completion arrives, armCancel races an ASYNC_CANCEL
// task against it through the same Context's Submit queue and
// pending gains a second obligation. Whichever of the two completions
// arrives last — in either order — drives pending to zero and delivers
// exactly once, using the original submission's own CQE.
type cancelableOp struct {
	self    task.Task
	pending atomic.Int32
	stopAF  func() bool

	result  sys.CQE
	deliver func(sys.CQE)
}

// armCancel must be called once, before the original task is submitted.
func (o *cancelableOp) armCancel(ctx context.Context, c *ioruntime.Context) {
	o.pending.Store(1)
	o.stopAF = context.AfterFunc(ctx, func() {
		if !o.pending.CompareAndSwap(1, 2) {
			return
		}
		cancel := new(task.Task)
		cancel.SubmitFn = func(sqe *sys.SQE) {
			sqe.Opcode = uint8(sys.IORING_OP_ASYNC_CANCEL)
			sqe.Fd = -1
			sqe.Addr = o.self.UserData()
			sqe.UserData = cancel.UserData()
		}
		cancel.CompleteFn = func(sys.CQE) { o.arrive() }
		c.Submit(cancel)
	})
}

// originalComplete records cqe as the original submission's own result and
// settles the op via deliver once every outstanding obligation has arrived.
func (o *cancelableOp) originalComplete(cqe sys.CQE, deliver func(sys.CQE)) {
	o.result = cqe
	o.deliver = deliver
	o.arrive()
}

func (o *cancelableOp) arrive() {
	if o.pending.Add(-1) != 0 {
		return
	}
	if o.stopAF != nil {
		o.stopAF()
	}
	o.deliver(o.result)
}

// isCanceled reports whether cqe.Res is the kernel's -ECANCELED result,
// mapped to Stopped() rather than a system error per spec.md §4.3.
func isCanceled(cqe sys.CQE) bool {
	return cqe.Res == -int32(unix.ECANCELED)
}
