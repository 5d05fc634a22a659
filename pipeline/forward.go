package pipeline

import (
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/srtkit/xtransmit/xsocket"
)

// Forward pumps bytes bidirectionally between a and b, like Route with
// Bidir set, but guarantees each message is delivered to the other side in
// full (looping Write until every byte is sent) or the route terminates,
// per spec §4.12's file-mode forward semantics. Only one copy of
// second forward.cpp's logic exists here, per SPEC_FULL.md §14.
func Forward(a, b xsocket.Socket, cfg RouteConfig, cancel *atomic.Bool) {
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		forwardPump(b, a, cfg.BufferSize, cancel)
	}()
	forwardPump(a, b, cfg.BufferSize, cancel)
	wg.Wait()
}

func forwardPump(from, to xsocket.Socket, bufSize int, cancel *atomic.Bool) {
	buf := make([]byte, bufSize)
	for !cancel.Load() {
		n, err := from.Read(buf, time.Second)
		if err != nil {
			log.Printf("pipeline: forward: read: %v", err)
			return
		}
		if n == 0 {
			continue
		}
		if err := writeFull(to, buf[:n], cancel); err != nil {
			log.Printf("pipeline: forward: write: %v", err)
			return
		}
	}
}

// writeFull loops Write until every byte of data has been accepted, or an
// error or cancel interrupts it - the "delivered in full or the route
// terminates" rule from spec §4.12.
func writeFull(to xsocket.Socket, data []byte, cancel *atomic.Bool) error {
	for len(data) > 0 {
		if cancel.Load() {
			return nil
		}
		n, err := to.Write(data, time.Second)
		if err != nil {
			return err
		}
		data = data[n:]
	}
	return nil
}
