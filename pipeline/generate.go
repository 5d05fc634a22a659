package pipeline

import (
	"log"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/srtkit/xtransmit/connloop"
	"github.com/srtkit/xtransmit/metrics"
	"github.com/srtkit/xtransmit/pacer"
	"github.com/srtkit/xtransmit/payload"
	"github.com/srtkit/xtransmit/xsocket"
)

// GenerateConfig configures the generate pipeline, per spec §4.12.
type GenerateConfig struct {
	MessageSize int
	// NumMessages caps the number of messages sent on one connection; 0
	// means unlimited.
	NumMessages int64
	// Duration, if positive, cancels the whole run once elapsed.
	Duration time.Duration
	// Bitrate selects the rate-pacer's target bitrate in bits/second. Set
	// to 0 when CSVPath names a playback timeline instead.
	Bitrate float64
	CSVPath string
	Spin    bool
	// MetricsEnabled stamps and advances a payload.Header on every
	// message, per spec §4.5.
	MetricsEnabled bool
	// TwoWay spawns a reader sub-task that discards whatever the peer
	// echoes back, per spec §4.12's "optionally a reader sub-task echoes
	// control" note.
	TwoWay bool
}

// Generate returns a connloop.Pipeline that drives cfg's generate loop over
// whatever connection connloop hands it. A fresh pacer and generator are
// constructed per connection, so a reconnect starts both clean.
func Generate(cfg GenerateConfig) connloop.Pipeline {
	return func(conn xsocket.Socket, cancel *atomic.Bool) {
		runGenerate(conn, cancel, cfg)
	}
}

func runGenerate(conn xsocket.Socket, cancel *atomic.Bool, cfg GenerateConfig) {
	if cfg.Duration > 0 {
		timer := time.AfterFunc(cfg.Duration, func() { cancel.Store(true) })
		defer timer.Stop()
	}

	p, err := newPacer(cfg)
	if err != nil {
		log.Printf("pipeline: generate: %v", err)
		return
	}
	if closer, ok := p.(interface{ Close() error }); ok {
		defer closer.Close()
	}

	var localDone atomic.Bool
	if cfg.TwoWay {
		go echoReader(conn, cfg.MessageSize, cancel, &localDone)
		defer localDone.Store(true)
	}

	gen := payload.NewGenerator(cfg.MetricsEnabled, SystemClock{})
	buf := make([]byte, cfg.MessageSize)
	var sent int64
	for !cancel.Load() {
		if cfg.NumMessages > 0 && sent >= cfg.NumMessages {
			return
		}
		if err := gen.Fill(buf); err != nil {
			log.Printf("pipeline: generate: fill: %v", err)
			return
		}
		if _, err := conn.Write(buf, time.Second); err != nil {
			metrics.ErrorCount.With(prometheus.Labels{"type": "generate_write"}).Inc()
			log.Printf("pipeline: generate: write: %v", err)
			return
		}
		sent++
		p.Wait(cancel)
	}
}

func newPacer(cfg GenerateConfig) (pacer.Pacer, error) {
	if cfg.CSVPath != "" {
		return pacer.NewCSVPacer(cfg.CSVPath)
	}
	return pacer.NewRatePacer(cfg.Bitrate, cfg.MessageSize, cfg.Spin), nil
}

// echoReader drains whatever the peer sends back on a twoway generate
// connection until cancel or localDone is set. It discards the data; its
// only job is to keep the peer's own write path unblocked.
func echoReader(conn xsocket.Socket, messageSize int, cancel *atomic.Bool, localDone *atomic.Bool) {
	buf := make([]byte, messageSize)
	for !cancel.Load() && !localDone.Load() {
		if _, err := conn.Read(buf, 200*time.Millisecond); err != nil {
			return
		}
	}
}
