package resource

import (
	"context"

	sio "github.com/maikel/sio-go"
	"github.com/maikel/sio-go/internal/sys"
	"github.com/maikel/sio-go/ioruntime"
	"github.com/maikel/sio-go/task"
)

// closeSender is shared by every Token in this package: Close is
// distinguished from the other operations by spec.md §4.3 — it completes
// without reporting an error on success and is never canceled, since
// resource teardown must run to completion on every exit path out of
// Use/UseResources regardless of why the caller's context ended.
type closeSender struct {
	fd int
	c  *ioruntime.Context
}

func (s closeSender) Connect(ctx context.Context, r sio.Receiver[struct{}]) sio.Operation {
	return &closeOperation{fd: s.fd, c: s.c, r: r}
}

type closeOperation struct {
	self task.Task
	fd   int
	c    *ioruntime.Context
	r    sio.Receiver[struct{}]
}

func (o *closeOperation) Start() {
	o.self.SubmitFn = func(sqe *sys.SQE) {
		sqe.Opcode = uint8(sys.IORING_OP_CLOSE)
		sqe.Fd = int32(o.fd)
		sqe.UserData = o.self.UserData()
	}
	o.self.CompleteFn = func(sys.CQE) { o.r.Value(struct{}{}) }
	o.c.Submit(&o.self)
}
