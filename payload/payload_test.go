package payload_test

import (
	"testing"

	"github.com/srtkit/xtransmit/payload"
)

type fakeClock struct {
	steady, sys int64
}

func (c fakeClock) SteadyNowUs() int64 { return c.steady }
func (c fakeClock) SysNowUs() int64    { return c.sys }

func TestGeneratorDisabledOnlyFillsPattern(t *testing.T) {
	g := payload.NewGenerator(false, fakeClock{})
	buf := make([]byte, 16)
	if err := g.Fill(buf); err != nil {
		t.Fatal(err)
	}
	for i, b := range buf {
		if b != byte(i) {
			t.Fatalf("buf[%d] = %d, want %d", i, b, i)
		}
	}
}

func TestGeneratorTooSmallWhenEnabled(t *testing.T) {
	g := payload.NewGenerator(true, fakeClock{steady: 10, sys: 20})
	buf := make([]byte, 8)
	if err := g.Fill(buf); err != payload.PayloadTooSmall {
		t.Errorf("err = %v, want PayloadTooSmall", err)
	}
}

func TestGeneratorHeaderRoundTrip(t *testing.T) {
	g := payload.NewGenerator(true, fakeClock{steady: 12345, sys: 67890})
	buf := make([]byte, payload.HeaderSize)
	if err := g.Fill(buf); err != nil {
		t.Fatal(err)
	}
	h, err := payload.DecodeHeader(buf)
	if err != nil {
		t.Fatal(err)
	}
	if h.SeqNo != 0 || h.SteadyClockUs != 12345 || h.SysClockUs != 67890 {
		t.Errorf("got %+v", h)
	}
}

func TestGeneratorIncrementsSeqNo(t *testing.T) {
	g := payload.NewGenerator(true, fakeClock{})
	buf := make([]byte, payload.HeaderSize)
	g.Fill(buf)
	g.Fill(buf)
	h, _ := payload.DecodeHeader(buf)
	if h.SeqNo != 1 {
		t.Errorf("SeqNo = %d, want 1", h.SeqNo)
	}
}

func TestDecodeHeaderTooSmall(t *testing.T) {
	_, err := payload.DecodeHeader(make([]byte, 31))
	if err != payload.PayloadTooSmall {
		t.Errorf("err = %v, want PayloadTooSmall", err)
	}
}

type recordingEstimators struct {
	reorderSeq  []uint32
	jitterPairs [][2]int64
	latencyPairs [][2]int64
}

func (r *recordingEstimators) SubmitReorder(seqno uint32) {
	r.reorderSeq = append(r.reorderSeq, seqno)
}
func (r *recordingEstimators) SubmitJitter(sent, now int64) {
	r.jitterPairs = append(r.jitterPairs, [2]int64{sent, now})
}
func (r *recordingEstimators) SubmitLatency(sent, now int64) {
	r.latencyPairs = append(r.latencyPairs, [2]int64{sent, now})
}

func TestValidatorFeedsEstimators(t *testing.T) {
	g := payload.NewGenerator(true, fakeClock{steady: 100, sys: 200})
	buf := make([]byte, payload.HeaderSize)
	g.Fill(buf)

	rec := &recordingEstimators{}
	v := payload.NewValidator(fakeClock{steady: 150, sys: 260}, rec)
	h, err := v.Validate(buf)
	if err != nil {
		t.Fatal(err)
	}
	if h.SeqNo != 0 {
		t.Errorf("SeqNo = %d, want 0", h.SeqNo)
	}
	if len(rec.reorderSeq) != 1 || rec.reorderSeq[0] != 0 {
		t.Errorf("reorderSeq = %v, want [0]", rec.reorderSeq)
	}
	if len(rec.jitterPairs) != 1 || rec.jitterPairs[0] != [2]int64{100, 150} {
		t.Errorf("jitterPairs = %v, want [[100 150]]", rec.jitterPairs)
	}
	if len(rec.latencyPairs) != 1 || rec.latencyPairs[0] != [2]int64{200, 260} {
		t.Errorf("latencyPairs = %v, want [[200 260]]", rec.latencyPairs)
	}
}

func TestValidatorTooSmall(t *testing.T) {
	v := payload.NewValidator(fakeClock{}, &recordingEstimators{})
	if _, err := v.Validate(make([]byte, 4)); err != payload.PayloadTooSmall {
		t.Errorf("err = %v, want PayloadTooSmall", err)
	}
}
