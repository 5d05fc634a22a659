package metricswriter

import (
	"os"
	"strings"
	"testing"
	"time"

	"github.com/srtkit/xtransmit/estimator"
)

func TestWriterTicksBundle(t *testing.T) {
	tmp, err := os.CreateTemp(t.TempDir(), "metrics-*.csv")
	if err != nil {
		t.Fatalf("CreateTemp: %v", err)
	}
	tmp.Close()

	w, err := New(20*time.Millisecond, tmp.Name(), false)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	bundle := estimator.NewBundle()
	bundle.SubmitReorder(1)
	bundle.SubmitReorder(2)
	bundle.SubmitLatency(1000, 1500)

	w.Add("sock-1", Source{SocketID: "sock-1", Bundle: bundle})
	time.Sleep(80 * time.Millisecond)
	w.Stop()

	data, err := os.ReadFile(tmp.Name())
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !strings.Contains(string(data), "sock-1") {
		t.Errorf("expected socket id in output, got %q", data)
	}
	if !strings.Contains(string(data), "Timepoint") {
		t.Errorf("expected a CSV header in output, got %q", data)
	}
}

func TestWriterAddRemove(t *testing.T) {
	w, err := New(time.Hour, "", false)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer w.Stop()
	w.Add("a", Source{SocketID: "a", Bundle: estimator.NewBundle()})
	w.Remove("a")
	w.mu.Lock()
	n := len(w.order)
	w.mu.Unlock()
	if n != 0 {
		t.Errorf("order length = %d, want 0 after Remove", n)
	}
}
