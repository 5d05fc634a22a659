//go:build !linux

package xsocket

import (
	"time"

	"golang.org/x/sys/unix"
)

// epollSet on non-Linux platforms is backed by poll(2) instead of epoll(2),
// the same per-OS split the teacher package used between
// collector_linux.go and collector_darwin.go. The public surface matches
// epoll_linux.go exactly so the rest of xsocket never branches on OS.
type epollSet struct {
	fds map[int]*unix.PollFd
}

type readyEvent struct {
	Fd       int32
	Readable bool
	Writable bool
	Error    bool
}

func newEpollSet() (*epollSet, error) {
	return &epollSet{fds: make(map[int]*unix.PollFd)}, nil
}

func (e *epollSet) addReadWriteError(fd int) error {
	e.fds[fd] = &unix.PollFd{Fd: int32(fd), Events: unix.POLLIN | unix.POLLOUT}
	return nil
}

func (e *epollSet) addWriteError(fd int) error {
	e.fds[fd] = &unix.PollFd{Fd: int32(fd), Events: unix.POLLOUT}
	return nil
}

func (e *epollSet) addReadOnly(fd int) error {
	e.fds[fd] = &unix.PollFd{Fd: int32(fd), Events: unix.POLLIN}
	return nil
}

func (e *epollSet) remove(fd int) error {
	delete(e.fds, fd)
	return nil
}

func (e *epollSet) wait(timeout time.Duration, maxEvents int) ([]readyEvent, error) {
	ms := -1
	if timeout >= 0 {
		ms = int(timeout.Milliseconds())
	}
	polled := make([]unix.PollFd, 0, len(e.fds))
	for _, pfd := range e.fds {
		polled = append(polled, *pfd)
	}
	if len(polled) == 0 {
		time.Sleep(time.Duration(ms) * time.Millisecond)
		return nil, nil
	}
	n, err := unix.Poll(polled, ms)
	if err != nil || n == 0 {
		return nil, err
	}
	out := make([]readyEvent, 0, n)
	for _, pfd := range polled {
		if pfd.Revents == 0 {
			continue
		}
		out = append(out, readyEvent{
			Fd:       pfd.Fd,
			Readable: pfd.Revents&unix.POLLIN != 0,
			Writable: pfd.Revents&unix.POLLOUT != 0,
			Error:    pfd.Revents&(unix.POLLERR|unix.POLLHUP) != 0,
		})
		if len(out) == maxEvents {
			break
		}
	}
	return out, nil
}

func (e *epollSet) close() error {
	e.fds = nil
	return nil
}
