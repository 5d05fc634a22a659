package pipeline

import (
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/srtkit/xtransmit/dispatch"
	"github.com/srtkit/xtransmit/estimator"
	"github.com/srtkit/xtransmit/metricswriter"
	"github.com/srtkit/xtransmit/payload"
	"github.com/srtkit/xtransmit/statswriter"
	"github.com/srtkit/xtransmit/xsocket"
)

// MReceiveConfig configures the mreceive pipeline, per spec §4.12: like
// receive, but every accepted source shares one dispatch.Dispatcher thread
// instead of each getting a dedicated blocking read loop.
type MReceiveConfig struct {
	MessageSize    int
	MetricsEnabled bool
	MetricsWriter  *metricswriter.Writer
	StatsWriter    *statswriter.Writer
	Reply          bool
	// AcceptTimeout bounds each Accept poll; the mreceive loop re-checks
	// cancel between polls.
	AcceptTimeout time.Duration
}

type mreceiveHandler struct {
	cfg  MReceiveConfig
	sock xsocket.Socket
	val  *payload.Validator
	mu   *sync.Mutex
}

func (h *mreceiveHandler) onRead(sock xsocket.Socket) {
	buf := make([]byte, h.cfg.MessageSize)
	n, err := sock.Read(buf, 0)
	if err != nil {
		return
	}
	if n == 0 {
		return
	}
	if h.val != nil {
		h.mu.Lock()
		h.val.Validate(buf[:n])
		h.mu.Unlock()
	}
	if h.cfg.Reply {
		sock.Write(replyPayload, time.Second)
	}
}

// MReceive accepts connections from listener and installs a per-socket read
// handler on a shared dispatch.Dispatcher for each, per spec §4.12. It
// returns once cancel is set, after closing every socket it accepted.
func MReceive(listener xsocket.Listener, cfg MReceiveConfig, cancel *atomic.Bool) error {
	timeout := cfg.AcceptTimeout
	if timeout <= 0 {
		timeout = 200 * time.Millisecond
	}

	d := dispatch.New()
	defer d.Stop()

	var mu sync.Mutex
	sockets := make(map[string]xsocket.Socket)
	cancelFlags := make(map[string]*bool)
	defer func() {
		mu.Lock()
		defer mu.Unlock()
		for id, sock := range sockets {
			*cancelFlags[id] = true
			if cfg.StatsWriter != nil {
				cfg.StatsWriter.Remove(id)
			}
			if cfg.MetricsWriter != nil {
				cfg.MetricsWriter.Remove(id)
			}
			sock.Close()
		}
	}()

	for !cancel.Load() {
		sock, err := listener.Accept(timeout)
		if err != nil {
			log.Printf("pipeline: mreceive: accept: %v", err)
			continue
		}
		if sock == nil {
			continue
		}

		h := &mreceiveHandler{cfg: cfg, sock: sock}
		if cfg.MetricsEnabled {
			h.mu = &sync.Mutex{}
			bundle := estimator.NewBundle()
			h.val = payload.NewValidator(SystemClock{}, bundle)
			if cfg.MetricsWriter != nil {
				cfg.MetricsWriter.Add(sock.ID(), metricswriter.Source{SocketID: sock.ID(), Bundle: bundle, Mu: h.mu})
			}
		}
		if cfg.StatsWriter != nil {
			cfg.StatsWriter.Add(sock.ID(), sock)
		}

		done := false
		if err := d.Add(sock, &done, h.onRead); err != nil {
			log.Printf("pipeline: mreceive: dispatch add: %v", err)
			sock.Close()
			continue
		}
		mu.Lock()
		sockets[sock.ID()] = sock
		cancelFlags[sock.ID()] = &done
		mu.Unlock()
	}
	return nil
}
