package pipeline

import (
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/srtkit/xtransmit/connloop"
	"github.com/srtkit/xtransmit/estimator"
	"github.com/srtkit/xtransmit/metrics"
	"github.com/srtkit/xtransmit/metricswriter"
	"github.com/srtkit/xtransmit/payload"
	"github.com/srtkit/xtransmit/xsocket"
)

// ReceiveConfig configures the receive pipeline, per spec §4.12.
type ReceiveConfig struct {
	MessageSize int
	// MetricsEnabled decodes a payload.Header from every message and
	// feeds the estimators named in spec §4.4.
	MetricsEnabled bool
	// MetricsWriter, when non-nil, has this connection's estimator
	// bundle registered/deregistered around the read loop.
	MetricsWriter *metricswriter.Writer
	// Reply sends a short acknowledgement after every successfully read
	// message, per spec §4.12's "optionally send short reply" note.
	Reply bool
}

// Receive returns a connloop.Pipeline that reads until cancel, optionally
// validating a metrics header and replying, per spec §4.12.
func Receive(cfg ReceiveConfig) connloop.Pipeline {
	return func(conn xsocket.Socket, cancel *atomic.Bool) {
		runReceive(conn, cancel, cfg)
	}
}

func runReceive(conn xsocket.Socket, cancel *atomic.Bool, cfg ReceiveConfig) {
	var val *payload.Validator
	var mu *sync.Mutex
	if cfg.MetricsEnabled {
		mu = &sync.Mutex{}
		bundle := estimator.NewBundle()
		val = payload.NewValidator(SystemClock{}, bundle)
		if cfg.MetricsWriter != nil {
			cfg.MetricsWriter.Add(conn.ID(), metricswriter.Source{SocketID: conn.ID(), Bundle: bundle, Mu: mu})
			defer cfg.MetricsWriter.Remove(conn.ID())
		}
	}

	buf := make([]byte, cfg.MessageSize)
	for !cancel.Load() {
		n, err := conn.Read(buf, time.Second)
		if err != nil {
			log.Printf("pipeline: receive: read: %v", err)
			return
		}
		if n == 0 {
			continue
		}
		if val != nil {
			mu.Lock()
			if _, verr := val.Validate(buf[:n]); verr != nil {
				metrics.ErrorCount.With(prometheus.Labels{"type": "receive_validate"}).Inc()
			}
			mu.Unlock()
		}
		if cfg.Reply {
			if _, err := conn.Write(replyPayload, time.Second); err != nil {
				log.Printf("pipeline: receive: reply: %v", err)
				return
			}
		}
	}
}

var replyPayload = []byte("ack")
