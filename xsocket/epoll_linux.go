//go:build linux

package xsocket

import (
	"time"

	"golang.org/x/sys/unix"
)

// epollSet owns one epoll instance, per spec §9's "never share a single
// epoll across components" design note - each socket gets its own
// connect-epoll and I/O-epoll, and dispatch owns a third, separate set.
type epollSet struct {
	fd int
}

// readyEvent is one readiness notification from a wait, decoded from the
// raw epoll event bits into the three conditions this spec's callers care
// about.
type readyEvent struct {
	Fd       int32
	Readable bool
	Writable bool
	Error    bool
}

func newEpollSet() (*epollSet, error) {
	fd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}
	return &epollSet{fd: fd}, nil
}

// addReadWriteError registers fd for read, write, and error readiness, the
// I/O-epoll registration spec §4.8.1 calls for.
func (e *epollSet) addReadWriteError(fd int) error {
	ev := unix.EpollEvent{Events: unix.EPOLLIN | unix.EPOLLOUT | unix.EPOLLERR | unix.EPOLLHUP, Fd: int32(fd)}
	return unix.EpollCtl(e.fd, unix.EPOLL_CTL_ADD, fd, &ev)
}

// addWriteError registers fd for write and error readiness only, the
// connect-epoll registration spec §4.8.1 calls for (connect completion
// signals via writability).
func (e *epollSet) addWriteError(fd int) error {
	ev := unix.EpollEvent{Events: unix.EPOLLOUT | unix.EPOLLERR | unix.EPOLLHUP, Fd: int32(fd)}
	return unix.EpollCtl(e.fd, unix.EPOLL_CTL_ADD, fd, &ev)
}

// addReadOnly registers fd for read and error readiness, used by the
// shared dispatch-epoll (spec §4.10).
func (e *epollSet) addReadOnly(fd int) error {
	ev := unix.EpollEvent{Events: unix.EPOLLIN | unix.EPOLLERR | unix.EPOLLHUP, Fd: int32(fd)}
	return unix.EpollCtl(e.fd, unix.EPOLL_CTL_ADD, fd, &ev)
}

func (e *epollSet) remove(fd int) error {
	return unix.EpollCtl(e.fd, unix.EPOLL_CTL_DEL, fd, nil)
}

// wait blocks up to timeout (negative = infinite) for up to maxEvents ready
// descriptors.
func (e *epollSet) wait(timeout time.Duration, maxEvents int) ([]readyEvent, error) {
	ms := -1
	if timeout >= 0 {
		ms = int(timeout.Milliseconds())
	}
	raw := make([]unix.EpollEvent, maxEvents)
	n, err := unix.EpollWait(e.fd, raw, ms)
	if err != nil {
		if err == unix.EINTR {
			return nil, nil
		}
		return nil, err
	}
	out := make([]readyEvent, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, readyEvent{
			Fd:       raw[i].Fd,
			Readable: raw[i].Events&unix.EPOLLIN != 0,
			Writable: raw[i].Events&unix.EPOLLOUT != 0,
			Error:    raw[i].Events&(unix.EPOLLERR|unix.EPOLLHUP) != 0,
		})
	}
	return out, nil
}

func (e *epollSet) close() error {
	return unix.Close(e.fd)
}
