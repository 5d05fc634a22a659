package xsocket

import (
	"net"
	"strconv"

	"golang.org/x/sys/unix"
)

// toSockaddr converts a resolved *net.TCPAddr into a raw unix.Sockaddr plus
// its address family, the bridge between addr.Resolve's net package result
// and the raw-fd socket calls the rest of this package makes.
func toSockaddr(a *net.TCPAddr) (unix.Sockaddr, int, error) {
	ip4 := a.IP.To4()
	if ip4 != nil {
		var sa unix.SockaddrInet4
		copy(sa.Addr[:], ip4)
		sa.Port = a.Port
		return &sa, unix.AF_INET, nil
	}
	ip16 := a.IP.To16()
	if ip16 == nil {
		return nil, 0, ErrAddressInvalid
	}
	var sa unix.SockaddrInet6
	copy(sa.Addr[:], ip16)
	sa.Port = a.Port
	return &sa, unix.AF_INET6, nil
}

// sockaddrToUDPAddr converts a raw unix.Sockaddr (as returned by Accept4
// or Recvfrom) back into a *net.UDPAddr for logging/diagnostics.
func sockaddrToUDPAddr(sa unix.Sockaddr) *net.UDPAddr {
	switch v := sa.(type) {
	case *unix.SockaddrInet4:
		ip := make(net.IP, 4)
		copy(ip, v.Addr[:])
		return &net.UDPAddr{IP: ip, Port: v.Port}
	case *unix.SockaddrInet6:
		ip := make(net.IP, 16)
		copy(ip, v.Addr[:])
		return &net.UDPAddr{IP: ip, Port: v.Port}
	default:
		return nil
	}
}

// setSockOpts applies the sndbuf/rcvbuf pre-connection options recognized
// by spec §4.8.1, the only two of the documented "pre/post option" set this
// raw-fd TCP/UDP stand-in acts on (SPEC_FULL.md §14).
func setSockOpts(fd int, opts map[string]string) error {
	if v, ok := opts["sndbuf"]; ok {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_SNDBUF, n)
		}
	}
	if v, ok := opts["rcvbuf"]; ok {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_RCVBUF, n)
		}
	}
	return nil
}
