package pipeline

import (
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/srtkit/xtransmit/xsocket"
)

func TestMReceiveRoutesMultipleSources(t *testing.T) {
	lep, err := xsocket.ParseEndpoint("srt://127.0.0.1:0?mode=listener", true)
	if err != nil {
		t.Fatalf("ParseEndpoint: %v", err)
	}
	listener, err := xsocket.NewReliableListener(lep)
	if err != nil {
		t.Fatalf("NewReliableListener: %v", err)
	}
	defer listener.Close()

	lf, ok := interface{}(listener).(fder)
	if !ok {
		t.Fatal("listener does not expose Fd")
	}
	port, err := listenerPort(lf.Fd())
	if err != nil {
		t.Fatalf("listenerPort: %v", err)
	}

	var cancel atomic.Bool
	done := make(chan error, 1)
	go func() {
		done <- MReceive(listener, MReceiveConfig{MessageSize: 32, Reply: true, AcceptTimeout: 50 * time.Millisecond}, &cancel)
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

	if _, err := caller.Write([]byte("ping"), time.Second); err != nil {
		t.Fatalf("Write: %v", err)
	}

	buf := make([]byte, 32)
	n, err := caller.Read(buf, 2*time.Second)
	if err != nil {
		t.Fatalf("Read reply: %v", err)
	}
	if string(buf[:n]) != "ack" {
		t.Fatalf("reply = %q, want %q", buf[:n], "ack")
	}

	cancel.Store(true)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("MReceive never returned after cancel")
	}
}
