package xsocket

import (
	"sync"
	"time"

	"github.com/srtkit/xtransmit/ids"
	"github.com/srtkit/xtransmit/scheduler"
)

// ErrGroupMismatch is returned when a group's endpoint URIs disagree on
// transport family or mode, or mix rendezvous in, per spec §3's group
// pre-validation.
var ErrGroupMismatch = ErrOptionInvalid

// groupMember is one bonded link: its configured endpoint, its
// assigned token (per spec §3, "member has a token ... assigned when
// configured as a target"), its weight, and its current connection.
type groupMember struct {
	ep        Endpoint
	token     string
	weight    int
	sock      Socket
	connected bool
}

// Group is the bonded-link socket variant from spec §4.8.2: an aggregate
// of ≥1 member links plus group-level read/write semantics selected by
// GroupType. Connect failures on individual members never tear down the
// group; a reconnect is instead scheduled via the owning Scheduler, per
// spec §4.8.2's connect-callback and the callback-lifetime design note in
// spec §9 (the scheduler task captures this Group by pointer only for the
// group's own lifetime - the caller is expected to Close the group before
// releasing the scheduler; Scheduler.Close drops still-pending tasks
// without running them).
type Group struct {
	id        string
	groupType GroupType
	isCaller  bool
	members   []*groupMember
	sched     *scheduler.Scheduler
	mu        sync.Mutex
	state     State
}

// DialGroup pre-validates eps (same family implied by Kind, same Mode, no
// rendezvous member), then connects every member, per spec §4.8.2. Members
// that fail to connect are left disconnected and a reconnect is scheduled
// via sched after the fixed 1-second back-off; the group still returns
// successfully as long as construction itself succeeds.
func DialGroup(eps []Endpoint, sched *scheduler.Scheduler) (*Group, error) {
	if len(eps) == 0 {
		return nil, ErrGroupMismatch
	}
	for _, ep := range eps {
		if ep.Mode == ModeRendezvous || ep.Kind != eps[0].Kind || ep.Mode != eps[0].Mode {
			return nil, ErrGroupMismatch
		}
	}
	g := &Group{
		id: ids.NewToken(), groupType: eps[0].GroupType, isCaller: true,
		sched: sched, state: Connecting,
	}
	for _, ep := range eps {
		m := &groupMember{ep: ep, token: ids.NewToken(), weight: ep.Weight}
		g.members = append(g.members, m)
		g.connectMember(m)
	}
	g.state = Connected
	return g, nil
}

// connectMember attempts one member's connect; on failure it installs the
// connect-callback described in spec §4.8.2, scheduling a retry after 1s.
func (g *Group) connectMember(m *groupMember) {
	sock, err := DialReliable(m.ep)
	if err != nil {
		m.connected = false
		if g.sched != nil {
			g.sched.ScheduleIn(time.Second, func() { g.reconnectMember(m) })
		}
		return
	}
	m.sock = sock
	m.connected = true
}

// reconnectMember is invoked on the scheduler thread. It must not block
// long or call back into Scheduler re-entrantly, per spec §4.7.
func (g *Group) reconnectMember(m *groupMember) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state == Closing {
		return
	}
	if m.connected {
		return
	}
	g.connectMember(m)
}

// NewGroupListener creates one listener per URI in eps, each conceptually
// marked accept-group (spec §4.8.2's "each listener has accept-group
// enabled in options"); this stand-in has no real transport-level group
// negotiation, so member group-type/weight for an accepted connection is
// taken directly from the listening endpoint's own options.
type GroupListener struct {
	listeners []*ReliableListener
	eps       []Endpoint
}

func NewGroupListener(eps []Endpoint) (*GroupListener, error) {
	if len(eps) == 0 {
		return nil, ErrGroupMismatch
	}
	gl := &GroupListener{eps: eps}
	for _, ep := range eps {
		l, err := NewReliableListener(ep)
		if err != nil {
			gl.Close()
			return nil, err
		}
		gl.listeners = append(gl.listeners, l)
	}
	return gl, nil
}

// Accept polls each listener in turn for up to timeout/len(listeners) and
// wraps the first accepted member in a new single-member Group sharing the
// accepting endpoint's blocking mode, per spec §4.8.2.
func (gl *GroupListener) Accept(timeout time.Duration) (Socket, error) {
	per := timeout
	if len(gl.listeners) > 0 && timeout > 0 {
		per = timeout / time.Duration(len(gl.listeners))
		if per <= 0 {
			per = time.Millisecond
		}
	}
	for i, l := range gl.listeners {
		sock, err := l.Accept(per)
		if err != nil {
			return nil, err
		}
		if sock == nil {
			continue
		}
		ep := gl.eps[i]
		m := &groupMember{ep: ep, token: ids.NewToken(), weight: ep.Weight, sock: sock, connected: true}
		return &Group{
			id: ids.NewToken(), groupType: ep.GroupType, isCaller: false,
			members: []*groupMember{m}, state: Connected,
		}, nil
	}
	return nil, nil
}

func (gl *GroupListener) Close() error {
	var first error
	for _, l := range gl.listeners {
		if err := l.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (g *Group) ID() string     { return g.id }
func (g *Group) IsCaller() bool { return g.isCaller }
func (g *Group) Mode() Mode {
	if g.isCaller {
		return ModeCaller
	}
	return ModeListener
}

// Read reads from the first connected member with data ready within
// timeout, dividing the wait across connected members.
func (g *Group) Read(buf []byte, timeout time.Duration) (int, error) {
	g.mu.Lock()
	connected := g.connectedMembers()
	g.mu.Unlock()
	if len(connected) == 0 {
		return 0, &TransportError{Op: "read", Err: ErrConnectFailed}
	}
	per := timeout
	if timeout > 0 {
		per = timeout / time.Duration(len(connected))
		if per <= 0 {
			per = time.Millisecond
		}
	}
	for _, m := range connected {
		n, err := m.sock.Read(buf, per)
		if err != nil {
			m.connected = false
			continue
		}
		if n > 0 {
			return n, nil
		}
	}
	return 0, nil
}

// Write sends buf per the group's GroupType: Broadcast writes to every
// connected member; Backup writes to the highest-weight connected member
// only, per spec §3/§4.8.2.
func (g *Group) Write(buf []byte, timeout time.Duration) (int, error) {
	g.mu.Lock()
	connected := g.connectedMembers()
	g.mu.Unlock()
	if len(connected) == 0 {
		return 0, &TransportError{Op: "write", Err: ErrConnectFailed}
	}

	if g.groupType == GroupBackup {
		best := connected[0]
		for _, m := range connected[1:] {
			if m.weight > best.weight {
				best = m
			}
		}
		n, err := best.sock.Write(buf, timeout)
		if err != nil {
			best.connected = false
			return 0, err
		}
		return n, nil
	}

	n := 0
	var lastErr error
	for _, m := range connected {
		wn, err := m.sock.Write(buf, timeout)
		if err != nil {
			m.connected = false
			lastErr = err
			continue
		}
		if wn > n {
			n = wn
		}
	}
	if n == 0 && lastErr != nil {
		return 0, lastErr
	}
	return n, nil
}

func (g *Group) connectedMembers() []*groupMember {
	var out []*groupMember
	for _, m := range g.members {
		if m.connected {
			out = append(out, m)
		}
	}
	return out
}

func (g *Group) SupportsStatistics() bool { return true }

// StatisticsCSV emits the group-level row first, then one row per
// connected member, per spec §4.8.2. Members whose state is not connected
// are skipped.
func (g *Group) StatisticsCSV(printHeader bool) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	now := time.Now()
	rows := []StatsRow{{
		Timepoint: now.UnixMilli(), Time: now.Format(time.RFC3339Nano), SocketID: g.id,
	}}
	for _, m := range g.members {
		if !m.connected {
			continue
		}
		rows = append(rows, statsRowFor(m.sock, m.token))
	}
	return renderCSV(rows, printHeader)
}

func statsRowFor(s Socket, label string) StatsRow {
	if rs, ok := s.(*ReliableSingle); ok {
		return rs.cnt.row(label)
	}
	return StatsRow{SocketID: label}
}

// Close tears down every member and marks the group Closing. Per-member
// reconnect tasks already scheduled check g.state under g.mu before acting,
// so a reconnect firing after Close is a safe no-op rather than a
// use-after-free, addressing the "group connection callbacks and `this`
// lifetime" design note in spec §9.
func (g *Group) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.state = Closing
	var first error
	for _, m := range g.members {
		if m.sock != nil {
			if err := m.sock.Close(); err != nil && first == nil {
				first = err
			}
		}
	}
	return first
}
