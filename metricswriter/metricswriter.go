// Package metricswriter periodically drains a registry of per-connection
// estimator bundles (spec §4.4) and writes a CSV row per source to a sink.
// It shares its shape - period, sink, add/remove, one registry mutex, one
// worker - with statswriter (spec §4.9 describes both C10 and C11 this way),
// but each is its own instance type so a pipeline can run a stats writer and
// a metrics writer side by side with independent periods and sinks, exactly
// as spec §5 lists "stats writer / metrics writer threads: one per writer
// instance".
package metricswriter

import (
	"bytes"
	"io"
	"log"
	"os"
	"sync"
	"time"

	"github.com/gocarina/gocsv"

	"github.com/srtkit/xtransmit/estimator"
	"github.com/srtkit/xtransmit/metrics"
	"github.com/srtkit/xtransmit/zstd"
)

// MetricsRow is one per-connection metrics tick.
type MetricsRow struct {
	Timepoint       int64  `csv:"Timepoint"`
	Time            string `csv:"Time"`
	SocketID        string `csv:"SocketID"`
	PktProcessed    uint64 `csv:"pktProcessed"`
	PktLost         uint64 `csv:"pktLost"`
	PktReordered    uint64 `csv:"pktReordered"`
	PktReorderDist  uint32 `csv:"pktReorderDist"`
	UsJitter        int64  `csv:"usJitter"`
	UsLatencyMin    int64  `csv:"usLatencyMin"`
	UsLatencyMax    int64  `csv:"usLatencyMax"`
	UsLatencyAvg    int64  `csv:"usLatencyAvg"`
	UsDelayFactor   int64  `csv:"usDelayFactor"`
}

// Source is anything registerable with a Writer: a *estimator.Bundle plus
// the socket id it is tracking. Mu, when non-nil, is locked around every
// read of Bundle's fields - both here and by whichever pipeline goroutine
// is concurrently calling payload.Validator.Validate against the same
// Bundle - so a tick can never race a live Submit, per spec §4.12's
// "feed validator under a mutex shared with C11" rule.
type Source struct {
	SocketID string
	Bundle   *estimator.Bundle
	Mu       *sync.Mutex
}

// row renders one MetricsRow from the current bundle state, then resets the
// per-period min/max fields on Latency, per spec §4.4's "min/max reset each
// reporting period" rule.
func (s Source) row() MetricsRow {
	if s.Mu != nil {
		s.Mu.Lock()
		defer s.Mu.Unlock()
	}
	reorder := s.Bundle.Reorder.Snapshot()
	latency := s.Bundle.Latency.Snapshot()
	s.Bundle.Latency.Reset()
	row := MetricsRow{
		Timepoint:      time.Now().UnixMilli(),
		Time:           time.Now().Format(time.RFC3339Nano),
		SocketID:       s.SocketID,
		PktProcessed:   reorder.Processed,
		PktLost:        reorder.Lost,
		PktReordered:   reorder.Reordered,
		PktReorderDist: reorder.ReorderDist,
		UsJitter:       s.Bundle.Jitter.Value(),
		UsLatencyMin:   latency.Min,
		UsLatencyMax:   latency.Max,
		UsLatencyAvg:   latency.Avg,
		UsDelayFactor:  s.Bundle.DelayFactor.Value(),
	}
	s.Bundle.DelayFactor.Reset()
	return row
}

func renderCSV(rows []MetricsRow, printHeader bool) string {
	if len(rows) == 0 {
		return ""
	}
	var buf bytes.Buffer
	var err error
	if printHeader {
		err = gocsv.Marshal(rows, &buf)
	} else {
		err = gocsv.MarshalWithoutHeaders(rows, &buf)
	}
	if err != nil {
		return ""
	}
	return buf.String()
}

type entry struct {
	source      Source
	headerShown bool
}

// Writer is the metrics-writer worker from spec §4.9 (C11).
type Writer struct {
	period time.Duration
	sink   io.Writer
	closer io.Closer

	mu       sync.Mutex
	sources  map[string]*entry
	order    []string
	done     bool
	doneCond *sync.Cond
	wg       sync.WaitGroup
}

// New constructs a Writer with the given tick period. An empty path writes
// to stderr/log; compress pipes the sink through an external zstd process.
func New(period time.Duration, path string, compress bool) (*Writer, error) {
	w := &Writer{period: period, sources: make(map[string]*entry)}
	w.doneCond = sync.NewCond(&w.mu)

	if path == "" {
		w.sink = log.Writer()
	} else if compress {
		wc, err := zstd.NewWriter(path)
		if err != nil {
			return nil, err
		}
		w.sink, w.closer = wc, wc
		metrics.WriterFileCount.Inc()
	} else {
		f, err := os.Create(path)
		if err != nil {
			return nil, err
		}
		w.sink, w.closer = f, f
		metrics.WriterFileCount.Inc()
	}
	w.wg.Add(1)
	go w.run()
	return w, nil
}

// Add registers a metrics source under id.
func (w *Writer) Add(id string, source Source) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, exists := w.sources[id]; !exists {
		w.order = append(w.order, id)
	}
	w.sources[id] = &entry{source: source}
}

// Remove deregisters id.
func (w *Writer) Remove(id string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.removeLocked(id)
}

func (w *Writer) removeLocked(id string) {
	if _, ok := w.sources[id]; !ok {
		return
	}
	delete(w.sources, id)
	for i, got := range w.order {
		if got == id {
			w.order = append(w.order[:i], w.order[i+1:]...)
			break
		}
	}
}

func (w *Writer) run() {
	defer w.wg.Done()
	w.mu.Lock()
	for !w.done {
		w.mu.Unlock()
		w.tick()
		w.mu.Lock()
		if w.done {
			break
		}
		w.waitPeriod()
	}
	w.mu.Unlock()
}

func (w *Writer) waitPeriod() {
	timer := time.AfterFunc(w.period, func() { w.doneCond.Broadcast() })
	w.doneCond.Wait()
	timer.Stop()
}

// tick drains the registry once, rendering each source's row with its own
// header flag (true on that source's first tick in the current file, false
// thereafter), per spec §4.9.
func (w *Writer) tick() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, id := range w.order {
		e := w.sources[id]
		text := renderCSV([]MetricsRow{e.source.row()}, !e.headerShown)
		e.headerShown = true
		if _, err := io.WriteString(w.sink, text); err != nil {
			log.Printf("metricswriter: write for %q failed: %v", id, err)
		}
	}
}

// Stop sets the done flag, signals the worker, and waits for it to exit.
func (w *Writer) Stop() {
	w.mu.Lock()
	w.done = true
	w.mu.Unlock()
	w.doneCond.Broadcast()
	w.wg.Wait()
	if w.closer != nil {
		w.closer.Close()
	}
}
