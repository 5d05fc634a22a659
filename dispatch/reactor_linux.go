//go:build linux

// Package dispatch's reactor is epoll-backed on Linux, mirroring the
// xsocket package's own epoll_linux.go/epoll_other.go OS split (itself
// grounded on the teacher package's collector_linux.go/collector_darwin.go
// convention) rather than sharing xsocket's unexported epollSet type across
// package boundaries.
package dispatch

import (
	"time"

	"golang.org/x/sys/unix"
)

type reactorEvent struct {
	Fd       int
	Readable bool
	ErrHup   bool
}

type reactor struct {
	fd int
}

func newReactor() (*reactor, error) {
	fd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}
	return &reactor{fd: fd}, nil
}

func (r *reactor) add(fd int) error {
	ev := unix.EpollEvent{Events: unix.EPOLLIN | unix.EPOLLERR | unix.EPOLLHUP, Fd: int32(fd)}
	return unix.EpollCtl(r.fd, unix.EPOLL_CTL_ADD, fd, &ev)
}

func (r *reactor) remove(fd int) error {
	return unix.EpollCtl(r.fd, unix.EPOLL_CTL_DEL, fd, nil)
}

// wait waits up to timeout for at most one ready fd (batch=1, per spec
// §4.10).
func (r *reactor) wait(timeout time.Duration) ([]reactorEvent, error) {
	events := make([]unix.EpollEvent, 1)
	n, err := unix.EpollWait(r.fd, events, int(timeout/time.Millisecond))
	if err != nil {
		if err == unix.EINTR {
			return nil, nil
		}
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}
	ev := events[0]
	return []reactorEvent{{
		Fd:       int(ev.Fd),
		Readable: ev.Events&unix.EPOLLIN != 0,
		ErrHup:   ev.Events&(unix.EPOLLERR|unix.EPOLLHUP) != 0,
	}}, nil
}

func (r *reactor) close() error {
	return unix.Close(r.fd)
}
