// Package statswriter periodically drains a registry of identified CSV stats
// sources and writes their serialized text to a sink. It is a direct
// generalization of the teacher package's saver.go: the same
// registry-under-mutex plus single background worker shape, but draining
// xsocket.Socket.StatisticsCSV ticks instead of marshalling
// inetdiag.ParsedMessage into zstd-compressed protobuf files.
package statswriter

import (
	"io"
	"log"
	"os"
	"sync"
	"time"

	"github.com/srtkit/xtransmit/metrics"
	"github.com/srtkit/xtransmit/zstd"
)

// Source is anything registerable with a Writer: any xsocket.Socket
// satisfies this, since its shape is exactly
// {SupportsStatistics, StatisticsCSV}.
type Source interface {
	SupportsStatistics() bool
	StatisticsCSV(printHeader bool) string
}

type entry struct {
	source      Source
	headerShown bool
	failed      bool
}

// Writer is the periodic registry-drain worker from spec §4.9, shared in
// shape by both the stats writer (C10) and the metrics writer (C11): a
// period, a sink, add/remove of identified sources, one registry mutex, one
// worker goroutine.
type Writer struct {
	period time.Duration
	sink   io.Writer
	closer io.Closer // non-nil when sink is an owned file/zstd pipe

	mu       sync.Mutex
	sources  map[string]*entry
	order    []string
	done     bool
	doneCond *sync.Cond
	wg       sync.WaitGroup
}

// New constructs a Writer with the given tick period. An empty path writes
// to stderr/log, per spec §4.9; compress requests the sink be piped through
// an external zstd process (SPEC_FULL.md §11/§12 zstd wiring).
func New(period time.Duration, path string, compress bool) (*Writer, error) {
	w := &Writer{
		period:  period,
		sources: make(map[string]*entry),
	}
	w.doneCond = sync.NewCond(&w.mu)

	if path == "" {
		w.sink = log.Writer()
	} else if compress {
		wc, err := zstd.NewWriter(path)
		if err != nil {
			return nil, err
		}
		w.sink = wc
		w.closer = wc
		metrics.WriterFileCount.Inc()
	} else {
		f, err := os.Create(path)
		if err != nil {
			return nil, err
		}
		w.sink = f
		w.closer = f
		metrics.WriterFileCount.Inc()
	}
	w.wg.Add(1)
	go w.run()
	return w, nil
}

// Add registers source under id, replacing any existing source with the
// same id. The next tick prints a fresh header for it.
func (w *Writer) Add(id string, source Source) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, exists := w.sources[id]; !exists {
		w.order = append(w.order, id)
	}
	w.sources[id] = &entry{source: source}
}

// Remove deregisters id. It is a no-op if id is not registered.
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

// waitPeriod blocks on the condition variable for up to w.period, or until
// Stop signals it early. Caller holds w.mu.
func (w *Writer) waitPeriod() {
	timer := time.AfterFunc(w.period, func() { w.doneCond.Broadcast() })
	w.doneCond.Wait()
	timer.Stop()
}

// tick drains the registry once: serialize every source, write the
// resulting text, then remove any source that failed to serialize in a
// second pass so iteration is never disturbed mid-loop, per spec §4.9.
func (w *Writer) tick() {
	w.mu.Lock()
	if w.done {
		w.mu.Unlock()
		return
	}
	var failedIDs []string
	for _, id := range w.order {
		e := w.sources[id]
		if !e.source.SupportsStatistics() {
			continue
		}
		text := e.source.StatisticsCSV(!e.headerShown)
		if text == "" && !e.headerShown {
			failedIDs = append(failedIDs, id)
			continue
		}
		e.headerShown = true
		if _, err := io.WriteString(w.sink, text); err != nil {
			log.Printf("statswriter: write for %q failed: %v", id, err)
			failedIDs = append(failedIDs, id)
		}
	}
	for _, id := range failedIDs {
		w.removeLocked(id)
	}
	w.mu.Unlock()
}

// Stop sets the done flag, signals the worker, and waits for it to exit. It
// then closes any owned sink file.
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
