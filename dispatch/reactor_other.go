//go:build !linux

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

// reactor falls back to unix.Poll outside Linux, mirroring xsocket's own
// epoll_other.go fallback.
type reactor struct {
	fds map[int]*unix.PollFd
}

func newReactor() (*reactor, error) {
	return &reactor{fds: make(map[int]*unix.PollFd)}, nil
}

func (r *reactor) add(fd int) error {
	r.fds[fd] = &unix.PollFd{Fd: int32(fd), Events: unix.POLLIN}
	return nil
}

func (r *reactor) remove(fd int) error {
	delete(r.fds, fd)
	return nil
}

func (r *reactor) wait(timeout time.Duration) ([]reactorEvent, error) {
	if len(r.fds) == 0 {
		time.Sleep(timeout)
		return nil, nil
	}
	polls := make([]unix.PollFd, 0, len(r.fds))
	fds := make([]int, 0, len(r.fds))
	for fd, pfd := range r.fds {
		polls = append(polls, *pfd)
		fds = append(fds, fd)
	}
	n, err := unix.Poll(polls, int(timeout/time.Millisecond))
	if err != nil {
		if err == unix.EINTR {
			return nil, nil
		}
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}
	for i, p := range polls {
		if p.Revents == 0 {
			continue
		}
		return []reactorEvent{{
			Fd:       fds[i],
			Readable: p.Revents&unix.POLLIN != 0,
			ErrHup:   p.Revents&(unix.POLLERR|unix.POLLHUP) != 0,
		}}, nil
	}
	return nil, nil
}

func (r *reactor) close() error {
	return nil
}
