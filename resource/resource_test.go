//go:build linux

package resource

import (
	"context"
	"net/netip"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/sys/unix"

	sio "github.com/maikel/sio-go"
	"github.com/maikel/sio-go/buffer"
	"github.com/maikel/sio-go/ioruntime"
	"github.com/maikel/sio-go/sequence"
)

// skipIfNoIOURing returns a Context with a background driver goroutine
// already pumping RunUntilStopped, stopped automatically at test cleanup.
func skipIfNoIOURing(t *testing.T) *ioruntime.Context {
	t.Helper()
	c, err := ioruntime.New(32)
	if err != nil {
		t.Skipf("io_uring unavailable: %v", err)
	}

	driveCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = c.RunUntilStopped(driveCtx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
		c.Close()
	})
	return c
}

// collect connects s and blocks until it completes, relying on the test's
// background driver goroutine to actually pump the run loop.
func collect[T any](ctx context.Context, c *ioruntime.Context, s sio.Sender[T]) (val T, err error, stopped bool) {
	done := make(chan struct{})
	op := s.Connect(ctx, funcReceiver[T]{
		onValue:   func(v T) { val = v; close(done) },
		onError:   func(e error) { err = e; close(done) },
		onStopped: func() { stopped = true; close(done) },
	})
	op.Start()
	<-done
	return
}

func TestFileMemfdWriteThenRead(t *testing.T) {
	c := skipIfNoIOURing(t)

	fd, err := unix.MemfdCreate("sio-resource-test", 0)
	if err != nil {
		t.Fatalf("MemfdCreate() error = %v", err)
	}
	tok := OpenFD(c, fd)

	payload := []byte("hello io_uring")
	wbuf := buffer.MutableBuffer(append([]byte(nil), payload...))
	if _, err, stopped := collect[struct{}](context.Background(), c, sequence.IgnoreAll(tok.Write(wbuf, 0))); err != nil || stopped {
		t.Fatalf("Write() error = %v, stopped = %v", err, stopped)
	}

	rbuf := buffer.MutableBuffer(make([]byte, len(payload)))
	if _, err, stopped := collect[struct{}](context.Background(), c, sequence.IgnoreAll(tok.Read(rbuf, 0))); err != nil || stopped {
		t.Fatalf("Read() error = %v, stopped = %v", err, stopped)
	}
	if string(rbuf) != string(payload) {
		t.Errorf("round-tripped bytes = %q, want %q", rbuf, payload)
	}

	if _, err, _ := collect[struct{}](context.Background(), c, tok.Close()); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
}

func TestAcceptorConnectorEchoLoop(t *testing.T) {
	c := skipIfNoIOURing(t)

	local := NewEndpoint(netip.MustParseAddr("127.0.0.1"), 0)
	acceptor := NewAcceptor(c, local)

	accTok, err, stopped := collect[*AcceptorToken](context.Background(), c, acceptor.Open())
	if err != nil || stopped {
		t.Fatalf("Acceptor.Open() error = %v, stopped = %v", err, stopped)
	}
	defer collect[struct{}](context.Background(), c, accTok.Close())

	fd := accTok.fd
	sa, err := unix.Getsockname(fd)
	if err != nil {
		t.Fatalf("Getsockname() error = %v", err)
	}
	sa4, ok := sa.(*unix.SockaddrInet4)
	if !ok {
		t.Fatalf("Getsockname() returned %T, want *unix.SockaddrInet4", sa)
	}
	remote := NewEndpoint(netip.AddrFrom4(sa4.Addr), uint16(sa4.Port))
	connector := NewConnector(c, remote)

	var accepted atomic.Pointer[SocketToken]
	acceptDone := make(chan struct{})
	op := accTok.Accept().Connect(context.Background(), funcReceiver[*SocketToken]{
		onValue: func(s *SocketToken) { accepted.Store(s); close(acceptDone) },
		onError: func(error) { close(acceptDone) },
	})
	op.Start()

	clientTok, err, stopped := collect[*SocketToken](context.Background(), c, connector.Open())
	if err != nil || stopped {
		t.Fatalf("Connector.Open() error = %v, stopped = %v", err, stopped)
	}
	<-acceptDone
	serverTok := accepted.Load()
	if serverTok == nil {
		t.Fatal("Accept() never delivered a token")
	}
	defer collect[struct{}](context.Background(), c, serverTok.Close())
	defer collect[struct{}](context.Background(), c, clientTok.Close())

	msg := []byte("ping")
	if _, err, _ := collect[Transferred](context.Background(), c, clientTok.Send(msg)); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	rbuf := make([]byte, len(msg))
	n, err, _ := collect[Transferred](context.Background(), c, serverTok.Recv(rbuf))
	if err != nil {
		t.Fatalf("Recv() error = %v", err)
	}
	if string(rbuf[:int(n)]) != string(msg) {
		t.Errorf("echoed bytes = %q, want %q", rbuf[:int(n)], msg)
	}
}

func TestResolverFirstLocalhost(t *testing.T) {
	c := skipIfNoIOURing(t)

	r := NewResolver(c, "localhost")
	addr, err, stopped := collect[netip.Addr](context.Background(), c, r.First())
	if err != nil || stopped {
		t.Fatalf("Resolver.First() error = %v, stopped = %v", err, stopped)
	}
	if !addr.Is4() {
		t.Errorf("resolved addr = %v, want an IPv4 address", addr)
	}
}

func TestTimeoutFiresBeforeSlowSender(t *testing.T) {
	c := skipIfNoIOURing(t)

	never := sleeperSender{d: time.Hour}
	_, err, _ := collect[struct{}](context.Background(), c, Timeout(c, 20*time.Millisecond, never))
	if err != ErrTimedOut {
		t.Fatalf("Timeout() error = %v, want ErrTimedOut", err)
	}
}

// sleeperSender is a test-only Sender that never completes on its own
// within any reasonable test timeout, used to exercise the timer-wins path.
type sleeperSender struct{ d time.Duration }

func (s sleeperSender) Connect(ctx context.Context, r sio.Receiver[struct{}]) sio.Operation {
	return sleeperOperation{ctx: ctx, d: s.d, r: r}
}

type sleeperOperation struct {
	ctx context.Context
	d   time.Duration
	r   sio.Receiver[struct{}]
}

func (o sleeperOperation) Start() {
	go func() {
		select {
		case <-time.After(o.d):
			o.r.Value(struct{}{})
		case <-o.ctx.Done():
			o.r.Stopped()
		}
	}()
}
