package xsocket

import (
	"errors"
	"testing"
	"time"
)

// fakeSocket is a minimal in-memory Socket stand-in for exercising Group's
// read/write fan-out logic without a real transport.
type fakeSocket struct {
	id       string
	writes   [][]byte
	readData []byte
	writeErr error
}

func (f *fakeSocket) ID() string     { return f.id }
func (f *fakeSocket) IsCaller() bool { return true }
func (f *fakeSocket) Mode() Mode     { return ModeCaller }
func (f *fakeSocket) Read(buf []byte, timeout time.Duration) (int, error) {
	if f.readData == nil {
		return 0, nil
	}
	n := copy(buf, f.readData)
	return n, nil
}
func (f *fakeSocket) Write(buf []byte, timeout time.Duration) (int, error) {
	if f.writeErr != nil {
		return 0, f.writeErr
	}
	cp := make([]byte, len(buf))
	copy(cp, buf)
	f.writes = append(f.writes, cp)
	return len(buf), nil
}
func (f *fakeSocket) SupportsStatistics() bool      { return false }
func (f *fakeSocket) StatisticsCSV(bool) string      { return "" }
func (f *fakeSocket) Close() error                   { return nil }

func newTestGroup(groupType GroupType, members ...*groupMember) *Group {
	return &Group{
		id: "test-group", groupType: groupType, isCaller: true,
		members: members, state: Connected,
	}
}

func TestGroupWriteBroadcast(t *testing.T) {
	a := &fakeSocket{id: "a"}
	b := &fakeSocket{id: "b"}
	g := newTestGroup(GroupBroadcast,
		&groupMember{token: "a", weight: 1, sock: a, connected: true},
		&groupMember{token: "b", weight: 2, sock: b, connected: true},
	)
	msg := []byte("payload")
	n, err := g.Write(msg, time.Second)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if n != len(msg) {
		t.Fatalf("n = %d, want %d", n, len(msg))
	}
	if len(a.writes) != 1 || len(b.writes) != 1 {
		t.Fatalf("expected one write on each member, got a=%d b=%d", len(a.writes), len(b.writes))
	}
}

func TestGroupWriteBackupPicksHighestWeight(t *testing.T) {
	low := &fakeSocket{id: "low"}
	high := &fakeSocket{id: "high"}
	g := newTestGroup(GroupBackup,
		&groupMember{token: "low", weight: 1, sock: low, connected: true},
		&groupMember{token: "high", weight: 9, sock: high, connected: true},
	)
	msg := []byte("payload")
	if _, err := g.Write(msg, time.Second); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if len(high.writes) != 1 {
		t.Fatalf("expected write routed to highest-weight member, got %d writes", len(high.writes))
	}
	if len(low.writes) != 0 {
		t.Fatalf("expected no write on low-weight member, got %d", len(low.writes))
	}
}

func TestGroupWriteNoConnectedMembers(t *testing.T) {
	g := newTestGroup(GroupBroadcast, &groupMember{token: "x", weight: 1, connected: false})
	if _, err := g.Write([]byte("x"), time.Second); err == nil {
		t.Fatal("expected error when no members are connected")
	}
}

func TestGroupWritePartialFailureStillSucceeds(t *testing.T) {
	ok := &fakeSocket{id: "ok"}
	bad := &fakeSocket{id: "bad", writeErr: errors.New("boom")}
	badMember := &groupMember{token: "bad", weight: 1, sock: bad, connected: true}
	g := newTestGroup(GroupBroadcast,
		&groupMember{token: "ok", weight: 1, sock: ok, connected: true},
		badMember,
	)
	n, err := g.Write([]byte("x"), time.Second)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if n != 1 {
		t.Fatalf("n = %d, want 1", n)
	}
	if badMember.connected {
		t.Error("failed member should be marked disconnected")
	}
}

func TestGroupReadReturnsFirstReady(t *testing.T) {
	a := &fakeSocket{id: "a", readData: []byte("hi")}
	g := newTestGroup(GroupBroadcast, &groupMember{token: "a", weight: 1, sock: a, connected: true})
	buf := make([]byte, 16)
	n, err := g.Read(buf, time.Second)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(buf[:n]) != "hi" {
		t.Fatalf("Read = %q, want %q", buf[:n], "hi")
	}
}
