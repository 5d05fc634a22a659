// Package pacer implements the two pacing strategies from spec §4.6: a
// target-bitrate rate-pacer, and a CSV-timeline pacer that replays a
// sequence of send offsets read from a file. Both share one operation,
// Wait, so a pipeline can hold either behind a single interface - the same
// "compute next deadline, then sleep-or-spin until it" cadence the teacher
// package used in collector/collector.go's ticker-driven Run loop,
// generalized from a fixed ticker interval to a per-wait computed deadline.
package pacer

import (
	"bufio"
	"errors"
	"os"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/srtkit/xtransmit/metrics"
)

// CsvMissing is returned by NewCSVPacer when the timeline file cannot be
// opened.
var CsvMissing = errors.New("pacer: CsvMissing")

// Pacer paces one send operation per Wait call. Wait returns early if
// cancel is set to true by another goroutine.
type Pacer interface {
	Wait(cancel *atomic.Bool)
}

// RatePacer paces sends to a target bitrate, per spec §4.6.
type RatePacer struct {
	intervalUs float64
	spin       bool

	lastSend   time.Time
	haveLast   bool
	deviation  float64 // microseconds; positive means running late
}

// NewRatePacer constructs a RatePacer for the given target bitrate (bps)
// and fixed message size (bytes). spin selects busy-polling until the
// deadline instead of sleeping.
func NewRatePacer(bps float64, messageSize int, spin bool) *RatePacer {
	interval := 10_000_000.0 / ((bps / 8) * 10 / float64(messageSize))
	return &RatePacer{intervalUs: interval, spin: spin}
}

// Wait blocks until the next paced send time, or until cancel is set.
func (p *RatePacer) Wait(cancel *atomic.Bool) {
	now := time.Now()
	if !p.haveLast {
		p.lastSend = now
		p.haveLast = true
		return
	}
	waitUs := p.intervalUs - p.deviation
	if waitUs < 0 {
		waitUs = 0
	}
	nextTime := p.lastSend.Add(time.Duration(waitUs) * time.Microsecond)

	if p.spin {
		for time.Now().Before(nextTime) {
			if cancel != nil && cancel.Load() {
				break
			}
		}
	} else if cancel == nil {
		if d := time.Until(nextTime); d > 0 {
			time.Sleep(d)
		}
	} else {
		const pollInterval = time.Millisecond
		for {
			d := time.Until(nextTime)
			if d <= 0 || cancel.Load() {
				break
			}
			if d > pollInterval {
				d = pollInterval
			}
			time.Sleep(d)
		}
	}

	actual := time.Since(p.lastSend)
	p.deviation += float64(actual.Microseconds()) - p.intervalUs
	p.lastSend = time.Now()
	metrics.PacerDeviationHistogram.Observe(p.deviation)
}

// CSVPacer replays a file of decimal fractional-second offsets from stream
// start, busy-polling to each deadline in turn. EOF rewinds to the
// beginning and resets stream start to now, per spec §4.6.
type CSVPacer struct {
	path        string
	f           *os.File
	scanner     *bufio.Scanner
	streamStart time.Time
}

// NewCSVPacer opens path and constructs a CSVPacer. It returns CsvMissing
// if the file cannot be opened.
func NewCSVPacer(path string) (*CSVPacer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, CsvMissing
	}
	p := &CSVPacer{path: path, f: f, scanner: bufio.NewScanner(f), streamStart: time.Now()}
	return p, nil
}

func (p *CSVPacer) rewind() {
	p.f.Seek(0, 0)
	p.scanner = bufio.NewScanner(p.f)
	p.streamStart = time.Now()
}

// Wait busy-polls until stream_start + (the next line's offset), or until
// cancel is set.
func (p *CSVPacer) Wait(cancel *atomic.Bool) {
	if !p.scanner.Scan() {
		p.rewind()
		if !p.scanner.Scan() {
			return // empty file: nothing to pace against
		}
	}
	line := p.scanner.Text()
	offsetSec, err := strconv.ParseFloat(line, 64)
	if err != nil {
		metrics.ErrorCount.With(prometheus.Labels{"type": "pacer_csv_parse"}).Inc()
		return
	}
	deadline := p.streamStart.Add(time.Duration(offsetSec * float64(time.Second)))
	for time.Now().Before(deadline) {
		if cancel != nil && cancel.Load() {
			return
		}
	}
}

// Close releases the underlying file.
func (p *CSVPacer) Close() error {
	return p.f.Close()
}
