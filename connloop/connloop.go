// Package connloop implements the connection loop from spec §4.11: URL
// validation, endpoint-descriptor parsing, the reconnect-with-1s-backoff
// driver, and the kind-selection rule original_source/misc.cpp calls
// CreateConnection. It is grounded on main.go's top-level orchestration
// (construct-then-run, rtx.Must on setup failures) and
// collector/collector.go's Run loop shape (periodic work bounded by a
// cancellation flag), generalized from "poll kernel socket state on a fixed
// tick" to "hold one connection open, run a pipeline over it, reconnect on
// loss".
package connloop

import (
	"errors"
	"log"
	"sync/atomic"
	"time"

	"github.com/srtkit/xtransmit/connevent"
	"github.com/srtkit/xtransmit/scheduler"
	"github.com/srtkit/xtransmit/statswriter"
	"github.com/srtkit/xtransmit/xsocket"
)

// ErrNoURLs is returned when Run is given an empty URL list, per spec
// §4.11 step 1.
var ErrNoURLs = errors.New("connloop: url list must be non-empty")

// StatsConfig configures the optional stats writer constructed for the
// lifetime of Run, per spec §4.11 step 2.
type StatsConfig struct {
	File     string
	Period   time.Duration
	Compress bool
	// Events, when non-nil, is published to with an Opened notification
	// when a connection is registered and a ConnClosed notification when
	// it is deregistered, per connevent's ambient connection-lifecycle
	// pub/sub enrichment.
	Events *connevent.Server
}

// enabled reports whether cfg names a usable sink.
func (cfg StatsConfig) enabled() bool {
	return cfg.File != "" && cfg.Period > 0
}

// Pipeline is invoked once per successfully established connection. It
// blocks until the connection is lost or cancel is set, then returns.
type Pipeline func(conn xsocket.Socket, cancel *atomic.Bool)

// SelectKind implements original_source/misc.cpp's CreateConnection
// dispatch rule, lifted out as an explicit, independently testable
// function per SPEC_FULL.md §12: a single URI with no grouptype option
// yields a UDP or reliable-single connection; multiple URIs, or any URI
// carrying a grouptype option, yields a group connection.
func SelectKind(eps []xsocket.Endpoint) xsocket.Kind {
	if len(eps) > 1 {
		return xsocket.ReliableGroup
	}
	if len(eps) == 1 && eps[0].GroupType != xsocket.GroupNone {
		return xsocket.ReliableGroup
	}
	if len(eps) == 1 {
		return eps[0].Kind
	}
	return xsocket.Reliable
}

// reconnectBackoff is the fixed delay between connection attempts, per spec
// §4.11 step 4.
const reconnectBackoff = time.Second

// Run drives the connection loop described in spec §4.11: it validates
// urls, optionally constructs a stats writer, parses every URL into an
// Endpoint, then repeatedly connects (retaining a listener across attempts
// in listener mode when reconnect is true), registers the connection with
// the stats writer, invokes pipeline, deregisters, and - unless reconnect
// is false or cancel is set - waits out the backoff and tries again.
func Run(urls []string, defaultBlocking bool, statsCfg StatsConfig, reconnect bool, cancel *atomic.Bool, pipeline Pipeline) error {
	if len(urls) == 0 {
		return ErrNoURLs
	}

	var sw *statswriter.Writer
	if statsCfg.enabled() {
		var err error
		sw, err = statswriter.New(statsCfg.Period, statsCfg.File, statsCfg.Compress)
		if err != nil {
			return err
		}
		defer sw.Stop()
	}

	eps := make([]xsocket.Endpoint, 0, len(urls))
	for _, u := range urls {
		ep, err := xsocket.ParseEndpoint(u, defaultBlocking)
		if err != nil {
			return err
		}
		eps = append(eps, ep)
	}

	sched := scheduler.New()
	defer sched.Close()

	var listener xsocket.Listener
	defer func() {
		if listener != nil {
			listener.Close()
		}
	}()

	nextReconnect := time.Now()
	for {
		if cancel.Load() {
			return nil
		}
		if d := time.Until(nextReconnect); d > 0 {
			time.Sleep(d)
		}
		nextReconnect = time.Now().Add(reconnectBackoff)

		conn, newListener, err := createConnection(eps, listener, sched)
		if newListener != nil {
			listener = newListener
		}
		if err != nil {
			log.Printf("connloop: connection attempt failed: %v", err)
			if !reconnect {
				return err
			}
			continue
		}
		if conn == nil {
			// Listener-mode accept timed out this attempt; try again.
			continue
		}

		if sw != nil {
			sw.Add(conn.ID(), conn)
		}
		if statsCfg.Events != nil {
			statsCfg.Events.Opened(conn.ID(), "", "")
		}
		pipeline(conn, cancel)
		if statsCfg.Events != nil {
			statsCfg.Events.ConnClosed(conn.ID())
		}
		if sw != nil {
			sw.Remove(conn.ID())
		}
		conn.Close()

		if !reconnect || cancel.Load() {
			return nil
		}
	}
}

// createConnection establishes one connection per the kind-selection rule
// in SelectKind. When eps describes a listener-mode endpoint and existing
// is non-nil, the existing listener is reused (retained across reconnects,
// per spec §4.11 step 4); otherwise a new listener/connection is created.
// A nil Socket with a nil error means an accept attempt timed out without
// error.
func createConnection(eps []xsocket.Endpoint, existing xsocket.Listener, sched *scheduler.Scheduler) (xsocket.Socket, xsocket.Listener, error) {
	kind := SelectKind(eps)

	if len(eps) > 0 && eps[0].Mode == xsocket.ModeListener {
		listener := existing
		var err error
		if listener == nil {
			listener, err = newListener(kind, eps)
			if err != nil {
				return nil, nil, err
			}
		}
		sock, err := listener.Accept(100 * time.Millisecond)
		if err != nil {
			return nil, listener, err
		}
		return sock, listener, nil
	}

	sock, err := dial(kind, eps, sched)
	return sock, nil, err
}

func newListener(kind xsocket.Kind, eps []xsocket.Endpoint) (xsocket.Listener, error) {
	if kind == xsocket.ReliableGroup {
		return xsocket.NewGroupListener(eps)
	}
	return xsocket.NewReliableListener(eps[0])
}

func dial(kind xsocket.Kind, eps []xsocket.Endpoint, sched *scheduler.Scheduler) (xsocket.Socket, error) {
	switch kind {
	case xsocket.ReliableGroup:
		return xsocket.DialGroup(eps, sched)
	case xsocket.UDP:
		return xsocket.NewUDP(eps[0])
	case xsocket.MUDP:
		return xsocket.NewMUDP(eps[0])
	default:
		return xsocket.DialReliable(eps[0])
	}
}
