package resource

import (
	"context"
	"net"
	"net/netip"

	sio "github.com/maikel/sio-go"
	"github.com/maikel/sio-go/internal/sys"
	"github.com/maikel/sio-go/ioruntime"
	"github.com/maikel/sio-go/task"
)

// Resolver looks up host's first IPv4 address. The original's
// getaddrinfo_a(SIGEV_THREAD) has no Go binding and no example repo in
// this corpus wraps one (an Open Question recorded in DESIGN.md), so this
// runs net.DefaultResolver on its own goroutine and completes back onto
// the owning Context as an already-ready task, the same pattern
// ioruntime's scheduler uses for a Sender whose Ready() is always true.
type Resolver struct {
	c    *ioruntime.Context
	host string
}

// NewResolver describes a lookup of host.
func NewResolver(c *ioruntime.Context, host string) *Resolver {
	return &Resolver{c: c, host: host}
}

// First resolves host and completes with its first IPv4 address, matching
// spec.md §8 scenario 3 ("resolve localhost; take first").
func (r *Resolver) First() sio.Sender[netip.Addr] { return resolveSender{res: r} }

type resolveSender struct{ res *Resolver }

func (s resolveSender) Connect(ctx context.Context, r sio.Receiver[netip.Addr]) sio.Operation {
	return &resolveOperation{res: s.res, ctx: ctx, r: r}
}

type resolveOperation struct {
	res *Resolver
	ctx context.Context
	r   sio.Receiver[netip.Addr]
}

func (o *resolveOperation) Start() {
	go func() {
		addrs, err := net.DefaultResolver.LookupIPAddr(o.ctx, o.res.host)
		var addr netip.Addr
		if err == nil {
			addr, err = firstIPv4(addrs)
		}
		o.complete(addr, err)
	}()
}

func firstIPv4(addrs []net.IPAddr) (netip.Addr, error) {
	for _, a := range addrs {
		if v4 := a.IP.To4(); v4 != nil {
			addr, ok := netip.AddrFromSlice(v4)
			if ok {
				return addr, nil
			}
		}
	}
	return netip.Addr{}, ErrResolveFailed
}

func (o *resolveOperation) complete(addr netip.Addr, err error) {
	t := new(task.Task)
	t.ReadyFn = func() bool { return true }
	t.CompleteFn = func(sys.CQE) {
		if o.ctx.Err() != nil {
			o.r.Stopped()
			return
		}
		if err != nil {
			o.r.Error(err)
			return
		}
		o.r.Value(addr)
	}
	o.res.c.Submit(t)
}
