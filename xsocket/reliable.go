package xsocket

import (
	"io"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/srtkit/xtransmit/addr"
	"github.com/srtkit/xtransmit/ids"
)

// ReliableSingle is the single-link reliable-transport socket variant from
// spec §4.8.1: one connected, non-blocking fd with its own connect-epoll
// and I/O-epoll, exactly the "never share a single epoll across
// components" rule in spec §9. Grounded on inetdiag's socket-monitor.go
// open/send/receive/close skeleton, generalized from a one-shot netlink
// round trip to a long-lived connected socket.
type ReliableSingle struct {
	ep       Endpoint
	id       string
	fd       int
	isCaller bool
	ioEpoll  *epollSet
	mu       sync.Mutex
	state    State
	cnt      counters
}

// ReliableListener retains the listening fd and its connect-epoll across
// reconnects, per spec §4.11 ("listener path retains the listening socket
// between reconnects when reconnect=true").
type ReliableListener struct {
	ep           Endpoint
	fd           int
	connectEpoll *epollSet
}

// NewReliableListener creates, binds, and listens a reliable-transport
// listener socket, per spec §4.8.1: listen() with backlog 2, post-options
// applied after.
func NewReliableListener(ep Endpoint) (*ReliableListener, error) {
	bindHost, bindPort := ep.Host, ep.Port
	if ep.HasBind {
		bindHost = ep.BindHost
		if ep.BindPort != 0 {
			bindPort = ep.BindPort
		}
	}
	bindAddr, err := addr.Resolve(bindHost, bindPort, addr.FamilyAny)
	if err != nil {
		return nil, ErrAddressInvalid
	}
	sa, family, err := toSockaddr(bindAddr)
	if err != nil {
		return nil, ErrAddressInvalid
	}

	fd, err := unix.Socket(family, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return nil, &TransportError{Op: "socket", Err: err}
	}
	unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return nil, ErrBindFailed
	}
	if err := unix.Listen(fd, 2); err != nil {
		unix.Close(fd)
		return nil, ErrListenFailed
	}
	setSockOpts(fd, ep.Options)

	ce, err := newEpollSet()
	if err != nil {
		unix.Close(fd)
		return nil, &TransportError{Op: "listen-epoll", Err: err}
	}
	if err := ce.addReadWriteError(fd); err != nil {
		ce.close()
		unix.Close(fd)
		return nil, &TransportError{Op: "listen-epoll", Err: err}
	}
	return &ReliableListener{ep: ep, fd: fd, connectEpoll: ce}, nil
}

// Fd returns the listening file descriptor, for tests and diagnostics that
// need to discover an ephemeral bound port.
func (l *ReliableListener) Fd() int { return l.fd }

// Accept waits up to timeout for a connecting peer and returns a new
// connected ReliableSingle wrapping the accepted fd, per spec §4.8.1.
func (l *ReliableListener) Accept(timeout time.Duration) (Socket, error) {
	events, err := l.connectEpoll.wait(timeout, 1)
	if err != nil {
		return nil, &TransportError{Op: "accept-wait", Err: err}
	}
	if len(events) == 0 {
		return nil, nil // timed out, not an error, per spec §7
	}
	nfd, _, err := unix.Accept4(l.fd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
	if err != nil {
		if err == unix.EAGAIN {
			return nil, nil
		}
		return nil, ErrAcceptFailed
	}
	ioEpoll, err := newEpollSet()
	if err != nil {
		unix.Close(nfd)
		return nil, &TransportError{Op: "accept-epoll", Err: err}
	}
	if err := ioEpoll.addReadWriteError(nfd); err != nil {
		ioEpoll.close()
		unix.Close(nfd)
		return nil, &TransportError{Op: "accept-epoll", Err: err}
	}
	return &ReliableSingle{
		ep: l.ep, id: ids.NewToken(), fd: nfd, isCaller: false,
		ioEpoll: ioEpoll, state: Connected,
	}, nil
}

// Close releases the listener's connect-epoll and fd, per spec §4.8.1's
// "destruction releases ... in that order" discipline generalized to the
// single-link listener.
func (l *ReliableListener) Close() error {
	l.connectEpoll.close()
	return unix.Close(l.fd)
}

// DialReliable connects out to ep's address, per spec §4.8.1: non-blocking
// connect, wait on connect-epoll, verify SO_ERROR, then apply post-options.
func DialReliable(ep Endpoint) (Socket, error) {
	dst, err := addr.Resolve(ep.Host, ep.Port, addr.FamilyAny)
	if err != nil {
		return nil, ErrAddressInvalid
	}
	sa, family, err := toSockaddr(dst)
	if err != nil {
		return nil, ErrAddressInvalid
	}

	fd, err := unix.Socket(family, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return nil, &TransportError{Op: "socket", Err: err}
	}

	if ep.HasBind {
		bindAddr, err := addr.Resolve(ep.BindHost, ep.BindPort, addr.FamilyAny)
		if err == nil {
			if bsa, _, err := toSockaddr(bindAddr); err == nil {
				unix.Bind(fd, bsa)
			}
		}
	}

	ce, err := newEpollSet()
	if err != nil {
		unix.Close(fd)
		return nil, &TransportError{Op: "connect-epoll", Err: err}
	}
	if err := ce.addWriteError(fd); err != nil {
		ce.close()
		unix.Close(fd)
		return nil, &TransportError{Op: "connect-epoll", Err: err}
	}
	defer ce.close()

	err = unix.Connect(fd, sa)
	if err != nil && err != unix.EINPROGRESS {
		unix.Close(fd)
		return nil, ErrConnectFailed
	}
	if err == unix.EINPROGRESS {
		timeout := 5 * time.Second
		if !ep.Blocking {
			timeout = 0
		}
		events, err := ce.wait(timeout, 1)
		if err != nil || len(events) == 0 {
			unix.Close(fd)
			return nil, ErrConnectFailed
		}
		if soErr, gerr := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ERROR); gerr != nil || soErr != 0 {
			unix.Close(fd)
			return nil, ErrConnectFailed
		}
	}
	setSockOpts(fd, ep.Options)

	ioEpoll, err := newEpollSet()
	if err != nil {
		unix.Close(fd)
		return nil, &TransportError{Op: "io-epoll", Err: err}
	}
	if err := ioEpoll.addReadWriteError(fd); err != nil {
		ioEpoll.close()
		unix.Close(fd)
		return nil, &TransportError{Op: "io-epoll", Err: err}
	}

	return &ReliableSingle{
		ep: ep, id: ids.NewToken(), fd: fd, isCaller: true,
		ioEpoll: ioEpoll, state: Connected,
	}, nil
}

// Fd returns the underlying file descriptor, for registration with an
// external epoll set such as dispatch's shared reactor (spec §4.10). Callers
// must not close or otherwise mutate the fd directly.
func (s *ReliableSingle) Fd() int { return s.fd }

func (s *ReliableSingle) ID() string     { return s.id }
func (s *ReliableSingle) IsCaller() bool { return s.isCaller }
func (s *ReliableSingle) Mode() Mode {
	if s.isCaller {
		return ModeCaller
	}
	return ModeListener
}

// Read blocks up to timeout for read-readiness then reads once, per spec
// §4.8.1. A timeout returns (0, nil); any other failure is a
// *TransportError.
func (s *ReliableSingle) Read(buf []byte, timeout time.Duration) (int, error) {
	for {
		n, err := unix.Read(s.fd, buf)
		if err == nil {
			if n == 0 {
				return 0, &TransportError{Op: "read", Err: io.EOF}
			}
			s.cnt.addRecv(n)
			return n, nil
		}
		if err != unix.EAGAIN {
			return 0, &TransportError{Op: "read", Err: err}
		}
		events, werr := s.ioEpoll.wait(timeout, 1)
		if werr != nil {
			return 0, &TransportError{Op: "read-wait", Err: werr}
		}
		if len(events) == 0 {
			return 0, nil
		}
		if events[0].Error {
			return 0, &TransportError{Op: "read-wait", Err: unix.ECONNRESET}
		}
		// Readable now; loop back and read without re-waiting the full
		// timeout again.
		timeout = 0
	}
}

// Write blocks up to timeout for write-readiness then writes once, per
// spec §4.8.1. A transient send-buffer-full condition returns (0, nil); a
// failing write raises *TransportError carrying the tracked send-buffer
// diagnostic, per SPEC_FULL.md §12.
func (s *ReliableSingle) Write(buf []byte, timeout time.Duration) (int, error) {
	n, err := unix.Write(s.fd, buf)
	if err == nil {
		s.cnt.addSent(n)
		if n < len(buf) {
			s.cnt.setSndBuf(int64(len(buf) - n))
		} else {
			s.cnt.setSndBuf(0)
		}
		return n, nil
	}
	if err == unix.EAGAIN {
		events, werr := s.ioEpoll.wait(timeout, 1)
		if werr != nil {
			return 0, &TransportError{Op: "write-wait", Err: werr}
		}
		if len(events) == 0 || !events[0].Writable {
			return 0, nil
		}
		n, err = unix.Write(s.fd, buf)
		if err == nil {
			s.cnt.addSent(n)
			return n, nil
		}
		if err == unix.EAGAIN {
			return 0, nil
		}
	}
	return 0, &TransportError{Op: "write", Err: err, Diag: diagSndBuf(s.cnt.sndBuf())}
}

func diagSndBuf(n int64) string {
	if n == 0 {
		return ""
	}
	return "sndbuf_bytes=" + strconv.FormatInt(n, 10)
}

// SndBufBytes returns the most recently tracked count of unsent bytes from
// the last partial Write, per SPEC_FULL.md §12's file-send drain step.
func (s *ReliableSingle) SndBufBytes() int64 { return s.cnt.sndBuf() }

func (s *ReliableSingle) SupportsStatistics() bool { return true }

func (s *ReliableSingle) StatisticsCSV(printHeader bool) string {
	return renderCSV([]StatsRow{s.cnt.row(s.id)}, printHeader)
}

// Close transitions to Closing and releases the I/O-epoll and fd, per
// spec §3's socket-handle invariants.
func (s *ReliableSingle) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Closing {
		return nil
	}
	s.state = Closing
	s.ioEpoll.close()
	return unix.Close(s.fd)
}
