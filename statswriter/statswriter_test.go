package statswriter

import (
	"os"
	"strings"
	"testing"
	"time"
)

type fakeSource struct {
	csv  string
	fail bool
}

func (f *fakeSource) SupportsStatistics() bool { return true }
func (f *fakeSource) StatisticsCSV(printHeader bool) string {
	if f.fail {
		return ""
	}
	if printHeader {
		return "header\n" + f.csv + "\n"
	}
	return f.csv + "\n"
}

func TestWriterAddRemoveAndTick(t *testing.T) {
	tmp, err := os.CreateTemp(t.TempDir(), "stats-*.csv")
	if err != nil {
		t.Fatalf("CreateTemp: %v", err)
	}
	tmp.Close()

	w, err := New(20*time.Millisecond, tmp.Name(), false)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	src := &fakeSource{csv: "row1"}
	w.Add("sock-1", src)

	time.Sleep(80 * time.Millisecond)
	w.Stop()

	data, err := os.ReadFile(tmp.Name())
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !strings.Contains(string(data), "header") {
		t.Errorf("expected a header line in output, got %q", data)
	}
	if !strings.Contains(string(data), "row1") {
		t.Errorf("expected row1 in output, got %q", data)
	}
}

func TestWriterRemovesFailingSource(t *testing.T) {
	w, err := New(10*time.Millisecond, "", false)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer w.Stop()
	w.Add("bad", &fakeSource{fail: true})

	time.Sleep(40 * time.Millisecond)

	w.mu.Lock()
	_, exists := w.sources["bad"]
	w.mu.Unlock()
	if exists {
		t.Error("failing source should have been removed from the registry")
	}
}

func TestWriterRemove(t *testing.T) {
	w, err := New(time.Hour, "", false)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer w.Stop()
	w.Add("a", &fakeSource{csv: "x"})
	w.Remove("a")
	w.mu.Lock()
	n := len(w.order)
	w.mu.Unlock()
	if n != 0 {
		t.Errorf("order length = %d, want 0 after Remove", n)
	}
}
