package xsocket

import (
	"strconv"
	"testing"
	"time"

	"golang.org/x/sys/unix"
)

// listenerPort reads back the ephemeral port the kernel assigned to l's
// listening fd, so the test's caller endpoint can target it.
func listenerPort(l *ReliableListener) (int, error) {
	sa, err := unix.Getsockname(l.fd)
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

func TestReliableLoopbackRoundTrip(t *testing.T) {
	lep, err := ParseEndpoint("srt://127.0.0.1:0?mode=listener", true)
	if err != nil {
		t.Fatalf("ParseEndpoint listener: %v", err)
	}
	listener, err := NewReliableListener(lep)
	if err != nil {
		t.Fatalf("NewReliableListener: %v", err)
	}
	defer listener.Close()

	port, err := listenerPort(listener)
	if err != nil {
		t.Fatalf("listenerPort: %v", err)
	}

	acceptCh := make(chan Socket, 1)
	errCh := make(chan error, 1)
	go func() {
		sock, err := listener.Accept(2 * time.Second)
		if err != nil {
			errCh <- err
			return
		}
		acceptCh <- sock
	}()

	cep, err := ParseEndpoint("srt://127.0.0.1:"+strconv.Itoa(port)+"?mode=caller", true)
	if err != nil {
		t.Fatalf("ParseEndpoint caller: %v", err)
	}
	caller, err := DialReliable(cep)
	if err != nil {
		t.Fatalf("DialReliable: %v", err)
	}
	defer caller.Close()

	var server Socket
	select {
	case server = <-acceptCh:
	case err := <-errCh:
		t.Fatalf("Accept: %v", err)
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for accept")
	}
	if server == nil {
		t.Fatal("Accept returned nil socket with no error")
	}
	defer server.Close()

	msg := []byte("hello reliable")
	n, err := caller.Write(msg, time.Second)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if n != len(msg) {
		t.Fatalf("Write n = %d, want %d", n, len(msg))
	}

	buf := make([]byte, 64)
	n, err = server.Read(buf, 2*time.Second)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(buf[:n]) != string(msg) {
		t.Fatalf("Read = %q, want %q", buf[:n], msg)
	}

	if !caller.SupportsStatistics() {
		t.Error("caller.SupportsStatistics() = false, want true")
	}
	if csv := caller.StatisticsCSV(true); csv == "" {
		t.Error("StatisticsCSV returned empty string")
	}
}

func TestReliableReadTimeout(t *testing.T) {
	lep, err := ParseEndpoint("srt://127.0.0.1:0?mode=listener", true)
	if err != nil {
		t.Fatalf("ParseEndpoint: %v", err)
	}
	listener, err := NewReliableListener(lep)
	if err != nil {
		t.Fatalf("NewReliableListener: %v", err)
	}
	defer listener.Close()

	sock, err := listener.Accept(50 * time.Millisecond)
	if err != nil {
		t.Fatalf("Accept: %v", err)
	}
	if sock != nil {
		t.Fatal("Accept returned a socket with no pending connection")
	}
}
