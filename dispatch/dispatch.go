// Package dispatch implements the shared I/O reactor from spec §4.10: one
// epoll set, one worker goroutine started on first Add, a handler keyed by
// socket id invoked synchronously on read-readiness. It generalizes the
// teacher package's eventsocket/server.go accept-loop/notify shape from
// "broadcast one event to every registered client" to "route one ready
// event to the one registered handler for that socket id".
package dispatch

import (
	"errors"
	"sync"
	"time"

	"github.com/srtkit/xtransmit/metrics"
	"github.com/srtkit/xtransmit/xsocket"
)

// ErrNoFd is returned by Add when sock does not implement xsocket.FdProvider
// (a Group socket has no single fd to register).
var ErrNoFd = errors.New("dispatch: socket has no accessible file descriptor")

// OnRead is invoked synchronously, on the dispatch worker goroutine, when
// sock becomes read-ready. Per spec §5, callbacks for one socket id are
// serialised - there is exactly one worker per Dispatcher, so they never
// overlap within one instance.
type OnRead func(sock xsocket.Socket)

type registration struct {
	sock   xsocket.Socket
	cancel *bool
	onRead OnRead
}

// waitTimeout is the fixed epoll-wait budget from spec §4.10.
const waitTimeout = 100 * time.Millisecond

// Dispatcher is the C12 I/O dispatch reactor: a shared epoll set plus a
// socket-id-keyed handler map, per spec §4.10.
type Dispatcher struct {
	mu      sync.Mutex
	handler map[string]*registration
	fdToID  map[int]string
	react   *reactor

	started bool
	done    bool
	wg      sync.WaitGroup
}

// New constructs an idle Dispatcher. Its worker starts lazily on the first
// successful Add, per spec §4.10.
func New() *Dispatcher {
	return &Dispatcher{
		handler: make(map[string]*registration),
		fdToID:  make(map[int]string),
	}
}

// Add registers sock into the shared epoll set for read/error readiness and
// records onRead under sock's id. cancel is polled at each dispatch of an
// event; once *cancel is true the registration is treated as inert.
func (d *Dispatcher) Add(sock xsocket.Socket, cancel *bool, onRead OnRead) error {
	fp, ok := sock.(xsocket.FdProvider)
	if !ok {
		return ErrNoFd
	}
	fd := fp.Fd()

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.react == nil {
		r, err := newReactor()
		if err != nil {
			return err
		}
		d.react = r
	}
	if err := d.react.add(fd); err != nil {
		return err
	}
	d.handler[sock.ID()] = &registration{sock: sock, cancel: cancel, onRead: onRead}
	d.fdToID[fd] = sock.ID()

	if !d.started {
		d.started = true
		d.wg.Add(1)
		go d.run()
	}
	return nil
}

// Remove deregisters sock's id and fd from the reactor.
func (d *Dispatcher) Remove(sock xsocket.Socket) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.handler, sock.ID())
	if fp, ok := sock.(xsocket.FdProvider); ok && d.react != nil {
		fd := fp.Fd()
		d.react.remove(fd)
		delete(d.fdToID, fd)
	}
}

func (d *Dispatcher) run() {
	defer d.wg.Done()
	for {
		d.mu.Lock()
		if d.done {
			d.mu.Unlock()
			return
		}
		react := d.react
		d.mu.Unlock()

		events, err := react.wait(waitTimeout)
		if err != nil {
			continue
		}
		for _, ev := range events {
			d.handleEvent(ev)
		}
	}
}

func (d *Dispatcher) handleEvent(ev reactorEvent) {
	d.mu.Lock()
	id, ok := d.fdToID[ev.Fd]
	if !ok {
		d.mu.Unlock()
		return
	}
	reg := d.handler[id]
	d.mu.Unlock()
	if reg == nil {
		return
	}
	if reg.cancel != nil && *reg.cancel {
		return
	}

	switch {
	case ev.Readable:
		metrics.DispatchEventCount.WithLabelValues("read").Inc()
		reg.onRead(reg.sock)
	case ev.ErrHup:
		// Write-ready and error events are logged but not routed, per spec
		// §4.10.
		metrics.DispatchEventCount.WithLabelValues("error").Inc()
	default:
		metrics.DispatchEventCount.WithLabelValues("write").Inc()
	}
}

// Stop signals the worker to exit and waits for it to join, per spec §4.10.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	d.done = true
	react := d.react
	started := d.started
	d.mu.Unlock()
	if started {
		d.wg.Wait()
	}
	if react != nil {
		react.close()
	}
}
