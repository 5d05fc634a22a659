package dispatch

import (
	"strconv"
	"testing"
	"time"

	"golang.org/x/sys/unix"

	"github.com/srtkit/xtransmit/xsocket"
)

func listenerPort(fd int) (int, error) {
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

type listenerFder interface {
	Fd() int
}

func TestDispatcherRoutesReadEvent(t *testing.T) {
	lep, err := xsocket.ParseEndpoint("srt://127.0.0.1:0?mode=listener", true)
	if err != nil {
		t.Fatalf("ParseEndpoint: %v", err)
	}
	listener, err := xsocket.NewReliableListener(lep)
	if err != nil {
		t.Fatalf("NewReliableListener: %v", err)
	}
	defer listener.Close()

	lf, ok := interface{}(listener).(listenerFder)
	if !ok {
		t.Fatal("ReliableListener does not expose its fd for the test to discover its port")
	}
	port, err := listenerPort(lf.Fd())
	if err != nil {
		t.Fatalf("listenerPort: %v", err)
	}

	acceptCh := make(chan xsocket.Socket, 1)
	go func() {
		sock, err := listener.Accept(2 * time.Second)
		if err == nil && sock != nil {
			acceptCh <- sock
		}
	}()

	cep, err := xsocket.ParseEndpoint("srt://127.0.0.1:"+strconv.Itoa(port)+"?mode=caller", true)
	if err != nil {
		t.Fatalf("ParseEndpoint caller: %v", err)
	}
	caller, err := xsocket.DialReliable(cep)
	if err != nil {
		t.Fatalf("DialReliable: %v", err)
	}
	defer caller.Close()

	var server xsocket.Socket
	select {
	case server = <-acceptCh:
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for accept")
	}
	defer server.Close()

	d := New()
	defer d.Stop()
	readCh := make(chan []byte, 1)
	var cancel bool
	if err := d.Add(server, &cancel, func(sock xsocket.Socket) {
		buf := make([]byte, 64)
		n, err := sock.Read(buf, time.Second)
		if err != nil {
			return
		}
		readCh <- buf[:n]
	}); err != nil {
		t.Fatalf("Add: %v", err)
	}

	msg := []byte("dispatched")
	if _, err := caller.Write(msg, time.Second); err != nil {
		t.Fatalf("Write: %v", err)
	}

	select {
	case got := <-readCh:
		if string(got) != string(msg) {
			t.Fatalf("onRead got %q, want %q", got, msg)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for dispatch onRead callback")
	}
}

func TestDispatcherAddRejectsNonFdSocket(t *testing.T) {
	d := New()
	var cancel bool
	var nilSock xsocket.Socket
	if err := d.Add(nilSock, &cancel, func(xsocket.Socket) {}); err != ErrNoFd {
		t.Fatalf("err = %v, want ErrNoFd", err)
	}
}
