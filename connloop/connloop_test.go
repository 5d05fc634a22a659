package connloop

import (
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/sys/unix"

	"github.com/srtkit/xtransmit/xsocket"
)

func unixGetPort(fd int) (int, error) {
	sa, err := unix.Getsockname(fd)
	if err != nil {
		return 0, err
	}
	switch v := sa.(type) {
	case *unix.SockaddrInet4:
		return v.Port, nil
	case *unix.SockaddrInet6:
		return v.Port, nil
	default:
		return 0, unix.EINVAL
	}
}

func mustParse(t *testing.T, raw string) xsocket.Endpoint {
	t.Helper()
	ep, err := xsocket.ParseEndpoint(raw, false)
	if err != nil {
		t.Fatalf("ParseEndpoint(%q): %v", raw, err)
	}
	return ep
}

func TestSelectKindSingleURLNoGroupType(t *testing.T) {
	eps := []xsocket.Endpoint{mustParse(t, "srt://127.0.0.1:1?mode=caller")}
	if got := SelectKind(eps); got != xsocket.Reliable {
		t.Errorf("SelectKind = %v, want Reliable", got)
	}
}

func TestSelectKindSingleUDPURL(t *testing.T) {
	eps := []xsocket.Endpoint{mustParse(t, "udp://127.0.0.1:1?mode=caller")}
	if got := SelectKind(eps); got != xsocket.UDP {
		t.Errorf("SelectKind = %v, want UDP", got)
	}
}

func TestSelectKindSingleURLWithGroupType(t *testing.T) {
	eps := []xsocket.Endpoint{mustParse(t, "srt://127.0.0.1:1?mode=caller&grouptype=backup")}
	if got := SelectKind(eps); got != xsocket.ReliableGroup {
		t.Errorf("SelectKind = %v, want ReliableGroup", got)
	}
}

func TestSelectKindMultipleURLs(t *testing.T) {
	eps := []xsocket.Endpoint{
		mustParse(t, "srt://127.0.0.1:1?mode=caller"),
		mustParse(t, "srt://127.0.0.1:2?mode=caller"),
	}
	if got := SelectKind(eps); got != xsocket.ReliableGroup {
		t.Errorf("SelectKind = %v, want ReliableGroup", got)
	}
}

func TestRunRejectsEmptyURLList(t *testing.T) {
	var cancel atomic.Bool
	if err := Run(nil, false, StatsConfig{}, false, &cancel, func(xsocket.Socket, *atomic.Bool) {}); err != ErrNoURLs {
		t.Fatalf("err = %v, want ErrNoURLs", err)
	}
}

func TestRunCallerRoundTripOneShot(t *testing.T) {
	lep := mustParse(t, "srt://127.0.0.1:0?mode=listener")
	listener, err := xsocket.NewReliableListener(lep)
	if err != nil {
		t.Fatalf("NewReliableListener: %v", err)
	}
	defer listener.Close()

	type fder interface{ Fd() int }
	lf := interface{}(listener).(fder)
	port, err := unixGetPort(lf.Fd())
	if err != nil {
		t.Fatalf("port: %v", err)
	}

	acceptDone := make(chan struct{})
	go func() {
		defer close(acceptDone)
		sock, err := listener.Accept(2 * time.Second)
		if err == nil && sock != nil {
			buf := make([]byte, 32)
			sock.Read(buf, 2*time.Second)
			sock.Close()
		}
	}()

	var cancel atomic.Bool
	ran := make(chan struct{}, 1)
	err = Run([]string{"srt://127.0.0.1:" + strconv.Itoa(port) + "?mode=caller"}, false, StatsConfig{}, false, &cancel,
		func(conn xsocket.Socket, c *atomic.Bool) {
			conn.Write([]byte("hi"), time.Second)
			ran <- struct{}{}
		})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	select {
	case <-ran:
	default:
		t.Fatal("pipeline was never invoked")
	}
	<-acceptDone
}
