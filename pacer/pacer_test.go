package pacer_test

import (
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/srtkit/xtransmit/pacer"
)

func TestRatePacerFirstWaitIsImmediate(t *testing.T) {
	p := pacer.NewRatePacer(8_000_000, 1000, false)
	start := time.Now()
	p.Wait(nil)
	if time.Since(start) > 50*time.Millisecond {
		t.Error("first Wait should return immediately")
	}
}

func TestRatePacerSpinRespectsCancel(t *testing.T) {
	p := pacer.NewRatePacer(1, 1000, true) // tiny bitrate, long interval
	p.Wait(nil)                            // prime lastSend
	var cancel atomic.Bool
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel.Store(true)
	}()
	start := time.Now()
	p.Wait(&cancel)
	if time.Since(start) > time.Second {
		t.Error("Wait should have returned promptly after cancel was set")
	}
}

func TestCSVPacerMissingFile(t *testing.T) {
	_, err := pacer.NewCSVPacer("/nonexistent/path/to/timeline.csv")
	if err != pacer.CsvMissing {
		t.Errorf("err = %v, want CsvMissing", err)
	}
}

func TestCSVPacerRewindsOnEOF(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "timeline")
	if err != nil {
		t.Fatal(err)
	}
	f.WriteString("0.0\n0.001\n")
	f.Close()

	p, err := pacer.NewCSVPacer(f.Name())
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()

	p.Wait(nil)
	p.Wait(nil)
	// Third Wait should rewind rather than block forever.
	done := make(chan struct{})
	go func() {
		p.Wait(nil)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Wait did not return after rewinding past EOF")
	}
}
