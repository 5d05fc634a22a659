// Package connevent broadcasts connection lifecycle events (open/close) to
// any number of JSON-lines subscribers over a Unix-domain socket. It is a
// direct adaptation of the teacher package's eventsocket/eventsocket.go:
// the same client-registry-under-mutex, notify-goroutine-over-channel, and
// context-driven Listen/Serve shape, renamed from TCP-flow-specific
// FlowEvent/Open/Close to this spec's connection lifecycle.
package connevent

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"sync"
	"time"
)

// Kind distinguishes the two lifecycle events this package reports.
type Kind int

const (
	// Opened is sent when a connection (socket or group member) becomes
	// connected.
	Opened Kind = iota
	// Closed is sent when a connection is torn down.
	Closed
)

func (k Kind) String() string {
	if k == Opened {
		return "Opened"
	}
	return "Closed"
}

// Event is one connection lifecycle notification, sent down the socket in
// JSON-lines form.
type Event struct {
	Kind      Kind
	Timestamp time.Time
	SocketID  string
	Src, Dest string `json:",omitempty"`
}

// Server serves connection lifecycle events over a Unix-domain socket.
// Construct with New; do not construct directly outside tests.
type Server struct {
	eventC       chan *Event
	filename     string
	clients      map[net.Conn]struct{}
	unixListener net.Listener
	mutex        sync.Mutex
	servingWG    sync.WaitGroup
}

// New constructs a Server that will listen on the Unix-domain socket path
// filename once Listen is called.
func New(filename string) *Server {
	return &Server{
		eventC:   make(chan *Event, 100),
		filename: filename,
		clients:  make(map[net.Conn]struct{}),
	}
}

func (s *Server) addClient(c net.Conn) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.clients[c] = struct{}{}
}

func (s *Server) removeClient(c net.Conn) {
	s.servingWG.Add(1)
	defer s.servingWG.Done()
	s.mutex.Lock()
	defer s.mutex.Unlock()
	delete(s.clients, c)
}

func (s *Server) sendToAllListeners(data string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	for c := range s.clients {
		if _, err := fmt.Fprintln(c, data); err != nil {
			log.Println("connevent: write to client", c, "failed:", err, "- removing")
			go s.removeClient(c)
			go c.Close()
		}
	}
}

func (s *Server) notifyClients(ctx context.Context) {
	s.servingWG.Add(1)
	defer s.servingWG.Done()
	for ctx.Err() == nil {
		event, ok := <-s.eventC
		if !ok {
			return
		}
		b, err := json.Marshal(*event)
		if err != nil {
			log.Printf("connevent: could not marshal event %v: %v", event, err)
			continue
		}
		s.sendToAllListeners(string(b))
	}
}

// Listen opens the Unix-domain socket. Call Serve afterward to accept
// subscribers. Call only once per Server.
func (s *Server) Listen() error {
	s.servingWG.Add(1)
	var err error
	s.unixListener, err = net.Listen("unix", s.filename)
	return err
}

// Serve accepts subscriber connections until ctx is done. It should run in
// its own goroutine after Listen returns successfully.
func (s *Server) Serve(ctx context.Context) error {
	defer s.servingWG.Done()
	derivedCtx, derivedCancel := context.WithCancel(ctx)
	defer derivedCancel()

	go s.notifyClients(derivedCtx)

	s.servingWG.Add(1)
	go func() {
		<-derivedCtx.Done()
		s.unixListener.Close()
		close(s.eventC)
		s.servingWG.Done()
	}()

	var err error
	for derivedCtx.Err() == nil {
		var conn net.Conn
		conn, err = s.unixListener.Accept()
		if err != nil {
			log.Printf("connevent: accept on %q failed: %v", s.filename, err)
			break
		}
		s.addClient(conn)
	}
	return err
}

// Wait blocks until all internal goroutines spawned by Listen/Serve have
// exited.
func (s *Server) Wait() {
	s.servingWG.Wait()
}

// Opened publishes a connection-opened event.
func (s *Server) Opened(socketID, src, dest string) {
	s.eventC <- &Event{Kind: Opened, Timestamp: time.Now(), SocketID: socketID, Src: src, Dest: dest}
}

// ConnClosed publishes a connection-closed event.
func (s *Server) ConnClosed(socketID string) {
	s.eventC <- &Event{Kind: Closed, Timestamp: time.Now(), SocketID: socketID}
}

// Subscribe dials an existing Server's Unix-domain socket and returns the
// connection, for use by a JSON-lines reading client (see cmd/connwatch).
func Subscribe(filename string) (net.Conn, error) {
	return net.Dial("unix", filename)
}
