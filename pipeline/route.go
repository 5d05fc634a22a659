package pipeline

import (
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/srtkit/xtransmit/xsocket"
)

// RouteConfig configures the route and forward pipelines, per spec §4.12.
type RouteConfig struct {
	BufferSize int
	// Bidir spawns a reverse pump (destination -> source) on another
	// goroutine alongside the forward pump.
	Bidir bool
}

// Route pumps bytes from src to dst, and from dst to src if cfg.Bidir, until
// either side's read or write fails or cancel is set. It returns once every
// pump it started has exited.
func Route(src, dst xsocket.Socket, cfg RouteConfig, cancel *atomic.Bool) {
	if !cfg.Bidir {
		pump(src, dst, cfg.BufferSize, cancel)
		return
	}
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		pump(dst, src, cfg.BufferSize, cancel)
	}()
	pump(src, dst, cfg.BufferSize, cancel)
	wg.Wait()
}

// pump copies whatever from.Read yields to to.Write, one message at a time,
// until an error or cancel.
func pump(from, to xsocket.Socket, bufSize int, cancel *atomic.Bool) {
	buf := make([]byte, bufSize)
	for !cancel.Load() {
		n, err := from.Read(buf, time.Second)
		if err != nil {
			log.Printf("pipeline: route: read: %v", err)
			return
		}
		if n == 0 {
			continue
		}
		if _, err := to.Write(buf[:n], time.Second); err != nil {
			log.Printf("pipeline: route: write: %v", err)
			return
		}
	}
}
