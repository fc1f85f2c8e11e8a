package resource

import (
	"context"
	"syscall"
	"unsafe"

	sio "github.com/maikel/sio-go"
	"github.com/maikel/sio-go/internal/ring"
	"github.com/maikel/sio-go/internal/sys"
	"github.com/maikel/sio-go/ioruntime"
)

// Transferred is the BytesTransferred()-satisfying result every byte-range
// I/O sender in this package completes with, so it composes directly with
// sequence.BufferedSequence (spec.md §4.4).
type Transferred int

func (t Transferred) BytesTransferred() int { return int(t) }

// readAtSender issues a single READ at a fixed offset, possibly short.
type readAtSender struct {
	c      *ioruntime.Context
	fd     int
	buf    []byte
	offset int64
}

func (s readAtSender) Connect(ctx context.Context, r sio.Receiver[Transferred]) sio.Operation {
	return &readAtOperation{c: s.c, fd: s.fd, buf: s.buf, offset: s.offset, ctx: ctx, r: r}
}

type readAtOperation struct {
	cancelableOp
	c      *ioruntime.Context
	fd     int
	buf    []byte
	offset int64
	ctx    context.Context
	r      sio.Receiver[Transferred]
}

func (o *readAtOperation) Start() {
	if len(o.buf) == 0 {
		o.r.Value(Transferred(0))
		return
	}
	o.self.SubmitFn = func(sqe *sys.SQE) {
		sqe.Opcode = uint8(sys.IORING_OP_READ)
		sqe.Fd = int32(o.fd)
		sqe.Addr = uint64(uintptr(unsafe.Pointer(&o.buf[0])))
		sqe.Len = uint32(len(o.buf))
		sqe.Off = uint64(o.offset)
		sqe.UserData = o.self.UserData()
	}
	o.self.CompleteFn = func(cqe sys.CQE) { o.originalComplete(cqe, o.deliver) }
	o.armCancel(o.ctx, o.c)
	o.c.Submit(&o.self)
}

func (o *readAtOperation) deliver(cqe sys.CQE) {
	if isCanceled(cqe) {
		o.r.Stopped()
		return
	}
	if err := ring.ResultError(cqe.Res); err != nil {
		o.r.Error(err)
		return
	}
	o.r.Value(Transferred(cqe.Res))
}

// writeAtSender issues a single WRITE at a fixed offset, possibly short.
type writeAtSender struct {
	c      *ioruntime.Context
	fd     int
	buf    []byte
	offset int64
}

func (s writeAtSender) Connect(ctx context.Context, r sio.Receiver[Transferred]) sio.Operation {
	return &writeAtOperation{c: s.c, fd: s.fd, buf: s.buf, offset: s.offset, ctx: ctx, r: r}
}

type writeAtOperation struct {
	cancelableOp
	c      *ioruntime.Context
	fd     int
	buf    []byte
	offset int64
	ctx    context.Context
	r      sio.Receiver[Transferred]
}

func (o *writeAtOperation) Start() {
	if len(o.buf) == 0 {
		o.r.Value(Transferred(0))
		return
	}
	o.self.SubmitFn = func(sqe *sys.SQE) {
		sqe.Opcode = uint8(sys.IORING_OP_WRITE)
		sqe.Fd = int32(o.fd)
		sqe.Addr = uint64(uintptr(unsafe.Pointer(&o.buf[0])))
		sqe.Len = uint32(len(o.buf))
		sqe.Off = uint64(o.offset)
		sqe.UserData = o.self.UserData()
	}
	o.self.CompleteFn = func(cqe sys.CQE) { o.originalComplete(cqe, o.deliver) }
	o.armCancel(o.ctx, o.c)
	o.c.Submit(&o.self)
}

func (o *writeAtOperation) deliver(cqe sys.CQE) {
	if isCanceled(cqe) {
		o.r.Stopped()
		return
	}
	if err := ring.ResultError(cqe.Res); err != nil {
		o.r.Error(err)
		return
	}
	o.r.Value(Transferred(cqe.Res))
}

// sendSender issues a single SENDMSG with a one-element iovec, mirroring
// ehrlich-b-go-iouring's PrepSendmsg msghdr convention.
type sendSender struct {
	c   *ioruntime.Context
	fd  int
	buf []byte
}

func (s sendSender) Connect(ctx context.Context, r sio.Receiver[Transferred]) sio.Operation {
	return &sendOperation{c: s.c, fd: s.fd, buf: s.buf, ctx: ctx, r: r}
}

type sendOperation struct {
	cancelableOp
	c   *ioruntime.Context
	fd  int
	buf []byte
	ctx context.Context
	r   sio.Receiver[Transferred]

	iov syscall.Iovec
	msg syscall.Msghdr
}

func (o *sendOperation) Start() {
	if len(o.buf) == 0 {
		o.r.Value(Transferred(0))
		return
	}
	o.iov.Base = &o.buf[0]
	o.iov.SetLen(len(o.buf))
	o.msg.Iov = &o.iov
	o.msg.Iovlen = 1
	o.self.SubmitFn = func(sqe *sys.SQE) {
		sqe.Opcode = uint8(sys.IORING_OP_SENDMSG)
		sqe.Fd = int32(o.fd)
		sqe.Addr = uint64(uintptr(unsafe.Pointer(&o.msg)))
		sqe.Len = 1
		sqe.UserData = o.self.UserData()
	}
	o.self.CompleteFn = func(cqe sys.CQE) { o.originalComplete(cqe, o.deliver) }
	o.armCancel(o.ctx, o.c)
	o.c.Submit(&o.self)
}

func (o *sendOperation) deliver(cqe sys.CQE) {
	if isCanceled(cqe) {
		o.r.Stopped()
		return
	}
	if err := ring.ResultError(cqe.Res); err != nil {
		o.r.Error(err)
		return
	}
	o.r.Value(Transferred(cqe.Res))
}

// recvSender issues a single RECVMSG with a one-element iovec.
type recvSender struct {
	c   *ioruntime.Context
	fd  int
	buf []byte
}

func (s recvSender) Connect(ctx context.Context, r sio.Receiver[Transferred]) sio.Operation {
	return &recvOperation{c: s.c, fd: s.fd, buf: s.buf, ctx: ctx, r: r}
}

type recvOperation struct {
	cancelableOp
	c   *ioruntime.Context
	fd  int
	buf []byte
	ctx context.Context
	r   sio.Receiver[Transferred]

	iov syscall.Iovec
	msg syscall.Msghdr
}

func (o *recvOperation) Start() {
	if len(o.buf) == 0 {
		o.r.Value(Transferred(0))
		return
	}
	o.iov.Base = &o.buf[0]
	o.iov.SetLen(len(o.buf))
	o.msg.Iov = &o.iov
	o.msg.Iovlen = 1
	o.self.SubmitFn = func(sqe *sys.SQE) {
		sqe.Opcode = uint8(sys.IORING_OP_RECVMSG)
		sqe.Fd = int32(o.fd)
		sqe.Addr = uint64(uintptr(unsafe.Pointer(&o.msg)))
		sqe.Len = 1
		sqe.UserData = o.self.UserData()
	}
	o.self.CompleteFn = func(cqe sys.CQE) { o.originalComplete(cqe, o.deliver) }
	o.armCancel(o.ctx, o.c)
	o.c.Submit(&o.self)
}

func (o *recvOperation) deliver(cqe sys.CQE) {
	if isCanceled(cqe) {
		o.r.Stopped()
		return
	}
	if err := ring.ResultError(cqe.Res); err != nil {
		o.r.Error(err)
		return
	}
	o.r.Value(Transferred(cqe.Res))
}
