package connevent_test

import (
	"bufio"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/srtkit/xtransmit/connevent"
)

func TestOpenedEventDeliveredToSubscriber(t *testing.T) {
	sockPath := filepath.Join(t.TempDir(), "connevent.sock")
	s := connevent.New(sockPath)
	if err := s.Listen(); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Serve(ctx)

	conn, err := connevent.Subscribe(sockPath)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	// Give the server a moment to register the new client before publishing.
	time.Sleep(20 * time.Millisecond)
	s.Opened("sock-1", "127.0.0.1:1000", "127.0.0.1:2000")

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	line, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil {
		t.Fatal(err)
	}
	var ev connevent.Event
	if err := json.Unmarshal([]byte(line), &ev); err != nil {
		t.Fatal(err)
	}
	if ev.Kind != connevent.Opened || ev.SocketID != "sock-1" {
		t.Errorf("got %+v", ev)
	}
}
