package resource

import (
	"context"
	"unsafe"

	"golang.org/x/sys/unix"

	sio "github.com/maikel/sio-go"
	"github.com/maikel/sio-go/buffer"
	"github.com/maikel/sio-go/internal/ring"
	"github.com/maikel/sio-go/internal/sys"
	"github.com/maikel/sio-go/ioruntime"
	"github.com/maikel/sio-go/sequence"
)

// Acceptor is a Resource that binds and listens on a local endpoint. The
// socket/bind/listen/setsockopt setup path runs as plain syscalls per
// spec.md §6, which places it outside io_uring; only the subsequent Accept
// calls go through the ring.
type Acceptor struct {
	c     *ioruntime.Context
	local Endpoint
}

// NewAcceptor describes a listening socket bound to local.
func NewAcceptor(c *ioruntime.Context, local Endpoint) *Acceptor {
	return &Acceptor{c: c, local: local}
}

func (a *Acceptor) Open() sio.Sender[*AcceptorToken] { return acceptorOpenSender{a: a} }

type acceptorOpenSender struct{ a *Acceptor }

func (s acceptorOpenSender) Connect(ctx context.Context, r sio.Receiver[*AcceptorToken]) sio.Operation {
	return &acceptorOpenOperation{a: s.a, r: r}
}

type acceptorOpenOperation struct {
	a *Acceptor
	r sio.Receiver[*AcceptorToken]
}

func (o *acceptorOpenOperation) Start() {
	domain := unix.AF_INET
	if o.a.local.AddrPort.Addr().Is6() {
		domain = unix.AF_INET6
	}
	fd, err := unix.Socket(domain, unix.SOCK_STREAM, 0)
	if err != nil {
		o.r.Error(err)
		return
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		o.r.Error(err)
		return
	}
	sa, err := toSockaddr(o.a.local)
	if err != nil {
		unix.Close(fd)
		o.r.Error(err)
		return
	}
	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		o.r.Error(err)
		return
	}
	if err := unix.Listen(fd, unix.SOMAXCONN); err != nil {
		unix.Close(fd)
		o.r.Error(err)
		return
	}
	o.r.Value(&AcceptorToken{fd: fd, c: o.a.c})
}

// AcceptorToken is a bound, listening socket.
type AcceptorToken struct {
	fd int
	c  *ioruntime.Context
}

func (t *AcceptorToken) Close() sio.Sender[struct{}] { return closeSender{fd: t.fd, c: t.c} }

// Accept completes with the next inbound connection. The peer address
// isn't requested (addr/addrLen nil per PrepAccept's contract) since
// nothing in this module's scenarios needs it.
func (t *AcceptorToken) Accept() sio.Sender[*SocketToken] {
	return acceptSender{fd: t.fd, c: t.c}
}

type acceptSender struct {
	fd int
	c  *ioruntime.Context
}

func (s acceptSender) Connect(ctx context.Context, r sio.Receiver[*SocketToken]) sio.Operation {
	return &acceptOperation{fd: s.fd, c: s.c, ctx: ctx, r: r}
}

type acceptOperation struct {
	cancelableOp
	fd  int
	c   *ioruntime.Context
	ctx context.Context
	r   sio.Receiver[*SocketToken]
}

func (o *acceptOperation) Start() {
	o.self.SubmitFn = func(sqe *sys.SQE) {
		sqe.Opcode = uint8(sys.IORING_OP_ACCEPT)
		sqe.Fd = int32(o.fd)
		sqe.UserData = o.self.UserData()
	}
	o.self.CompleteFn = func(cqe sys.CQE) { o.originalComplete(cqe, o.deliver) }
	o.armCancel(o.ctx, o.c)
	o.c.Submit(&o.self)
}

func (o *acceptOperation) deliver(cqe sys.CQE) {
	if isCanceled(cqe) {
		o.r.Stopped()
		return
	}
	if err := ring.ResultError(cqe.Res); err != nil {
		o.r.Error(err)
		return
	}
	o.r.Value(&SocketToken{fd: int(cqe.Res), c: o.c})
}

// Connector is a Resource that opens a socket via the setup-path SOCKET
// syscall and connects it to remote through the ring.
type Connector struct {
	c      *ioruntime.Context
	remote Endpoint
}

// NewConnector describes a socket that connects to remote on Open.
func NewConnector(c *ioruntime.Context, remote Endpoint) *Connector {
	return &Connector{c: c, remote: remote}
}

func (cn *Connector) Open() sio.Sender[*SocketToken] { return connectSender{cn: cn} }

type connectSender struct{ cn *Connector }

func (s connectSender) Connect(ctx context.Context, r sio.Receiver[*SocketToken]) sio.Operation {
	return &connectOperation{cn: s.cn, ctx: ctx, r: r}
}

type connectOperation struct {
	cancelableOp
	cn  *Connector
	ctx context.Context
	r   sio.Receiver[*SocketToken]

	fd int
	sa []byte
}

func (o *connectOperation) Start() {
	domain := unix.AF_INET
	if o.cn.remote.AddrPort.Addr().Is6() {
		domain = unix.AF_INET6
	}
	fd, err := unix.Socket(domain, unix.SOCK_STREAM, 0)
	if err != nil {
		o.r.Error(err)
		return
	}
	sa, err := rawSockaddr(o.cn.remote)
	if err != nil {
		unix.Close(fd)
		o.r.Error(err)
		return
	}
	o.fd = fd
	o.sa = sa
	o.self.SubmitFn = func(sqe *sys.SQE) {
		sqe.Opcode = uint8(sys.IORING_OP_CONNECT)
		sqe.Fd = int32(o.fd)
		sqe.Addr = uint64(uintptr(unsafe.Pointer(&o.sa[0])))
		sqe.Off = uint64(len(o.sa))
		sqe.UserData = o.self.UserData()
	}
	o.self.CompleteFn = func(cqe sys.CQE) { o.originalComplete(cqe, o.deliver) }
	o.armCancel(o.ctx, o.cn.c)
	o.cn.c.Submit(&o.self)
}

func (o *connectOperation) deliver(cqe sys.CQE) {
	if isCanceled(cqe) {
		unix.Close(o.fd)
		o.r.Stopped()
		return
	}
	if err := ring.ResultError(cqe.Res); err != nil {
		unix.Close(o.fd)
		o.r.Error(err)
		return
	}
	o.r.Value(&SocketToken{fd: o.fd, c: o.cn.c})
}

// SocketToken is a connected stream socket, used by both the Acceptor and
// Connector paths of spec.md §8 scenario 1's echo loop.
type SocketToken struct {
	fd int
	c  *ioruntime.Context
}

func (t *SocketToken) Fd() int { return t.fd }

func (t *SocketToken) Close() sio.Sender[struct{}] { return closeSender{fd: t.fd, c: t.c} }

// Send issues a single SENDMSG, possibly short.
func (t *SocketToken) Send(buf []byte) sio.Sender[Transferred] {
	return sendSender{c: t.c, fd: t.fd, buf: buf}
}

// Recv issues a single RECVMSG, possibly short (zero at peer EOF).
func (t *SocketToken) Recv(buf []byte) sio.Sender[Transferred] {
	return recvSender{c: t.c, fd: t.fd, buf: buf}
}

// Write drives Send in a loop via sequence.BufferedSequence until buf is
// fully sent.
func (t *SocketToken) Write(buf buffer.MutableBuffer) sio.SequenceSender[Transferred] {
	return sequence.BufferedSequence(func(view buffer.MutableBuffer, _ int64) sio.Sender[Transferred] {
		return t.Send(view.Data())
	}, buf, 0)
}

// Read drives Recv in a loop via sequence.BufferedSequence until buf is
// fully populated or the peer closes (a zero-length Recv ends the stream).
func (t *SocketToken) Read(buf buffer.MutableBuffer) sio.SequenceSender[Transferred] {
	return sequence.BufferedSequence(func(view buffer.MutableBuffer, _ int64) sio.Sender[Transferred] {
		return t.Recv(view.Data())
	}, buf, 0)
}
