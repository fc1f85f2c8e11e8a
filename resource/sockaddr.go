package resource

import (
	"net/netip"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Endpoint is a minimal host+port value type sufficient to drive
// Connector/Acceptor/Resolver. The full ip::address/ip::endpoint surface of
// original_source/source/sio/net/ip/{address,endpoint}.hpp is CLI-shaped and
// stays out per spec.md's Non-goals; this supplements only what CONNECT/
// BIND/resolve need to drive spec.md §8's echo-loop and resolve scenarios
// (SPEC_FULL.md §5).
type Endpoint struct {
	AddrPort netip.AddrPort
}

// NewEndpoint builds an Endpoint from an address and port.
func NewEndpoint(ip netip.Addr, port uint16) Endpoint {
	return Endpoint{AddrPort: netip.AddrPortFrom(ip, port)}
}

func (e Endpoint) String() string { return e.AddrPort.String() }

// toSockaddr converts ep to the typed unix.Sockaddr golang.org/x/sys/unix's
// Bind/Listen/Connect expect, used only for the setup-path syscalls spec.md
// §6 places outside io_uring.
func toSockaddr(ep Endpoint) (unix.Sockaddr, error) {
	addr := ep.AddrPort.Addr()
	if addr.Is4() {
		return &unix.SockaddrInet4{Port: int(ep.AddrPort.Port()), Addr: addr.As4()}, nil
	}
	return &unix.SockaddrInet6{Port: int(ep.AddrPort.Port()), Addr: addr.As16()}, nil
}

// htons converts a host-byte-order port into the network byte order every
// raw sockaddr the ring touches directly requires.
func htons(port uint16) uint16 {
	return (port << 8) & 0xff00 | port >> 8
}

// rawSockaddr encodes ep as the raw sockaddr_in/sockaddr_in6 byte layout an
// IORING_OP_CONNECT SQE's Addr/Off fields point at directly — bit-exact
// kernel ABI per spec.md §6, unlike toSockaddr's typed helper used outside
// the ring.
func rawSockaddr(ep Endpoint) ([]byte, error) {
	addr := ep.AddrPort.Addr()
	if addr.Is4() {
		var sa unix.RawSockaddrInet4
		sa.Family = unix.AF_INET
		sa.Port = htons(ep.AddrPort.Port())
		b4 := addr.As4()
		copy(sa.Addr[:], b4[:])
		buf := make([]byte, unsafe.Sizeof(sa))
		*(*unix.RawSockaddrInet4)(unsafe.Pointer(&buf[0])) = sa
		return buf, nil
	}
	var sa unix.RawSockaddrInet6
	sa.Family = unix.AF_INET6
	sa.Port = htons(ep.AddrPort.Port())
	b16 := addr.As16()
	copy(sa.Addr[:], b16[:])
	buf := make([]byte, unsafe.Sizeof(sa))
	*(*unix.RawSockaddrInet6)(unsafe.Pointer(&buf[0])) = sa
	return buf, nil
}
