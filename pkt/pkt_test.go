package pkt_test

import (
	"testing"

	"github.com/srtkit/xtransmit/buffer"
	"github.com/srtkit/xtransmit/pkt"
)

func TestControlTypeRoundTrip(t *testing.T) {
	raw := make([]byte, 16)
	m := buffer.NewMutable(raw)
	raw[0] = 0x80 // control bit set
	raw[1] = byte(pkt.ACK)

	if !pkt.IsControl(m.ReadOnly()) {
		t.Fatal("expected control bit to be set")
	}
	c := pkt.NewControl(m)
	if c.Type() != pkt.ACK {
		t.Errorf("Type() = %v, want ACK", c.Type())
	}
}

func TestControlTypeInvalid(t *testing.T) {
	raw := make([]byte, 16)
	m := buffer.NewMutable(raw)
	raw[0] = 0x80
	raw[1] = 0x7E // unrecognized low byte, not USERDEFINED (0x7FFF)

	c := pkt.NewControl(m)
	if c.Type() != pkt.Invalid {
		t.Errorf("Type() = %v, want Invalid", c.Type())
	}
}

func TestDataSeqNoRoundTrip(t *testing.T) {
	raw := make([]byte, 16)
	m := buffer.NewMutable(raw)
	d := pkt.NewData(m)
	d.SetSeqNo(123456789)
	if pkt.IsControl(m.ReadOnly()) {
		t.Error("data packet should not have control bit set")
	}
	if got := d.SeqNo(); got != 123456789 {
		t.Errorf("SeqNo() = %d, want 123456789", got)
	}
}

func TestDataFieldsRoundTrip(t *testing.T) {
	raw := make([]byte, 16)
	m := buffer.NewMutable(raw)
	d := pkt.NewData(m)

	d.SetFields(0x1ABCDEF, pkt.PosFirst, true, 2, true)

	if got := d.MsgNo(); got != 0x1ABCDEF {
		t.Errorf("MsgNo() = %#x, want %#x", got, 0x1ABCDEF)
	}
	if got := d.PositionFlags(); got != pkt.PosFirst {
		t.Errorf("PositionFlags() = %v, want PosFirst", got)
	}
	if !d.InOrder() {
		t.Error("InOrder() = false, want true")
	}
	if got := d.KeyFlag(); got != 2 {
		t.Errorf("KeyFlag() = %d, want 2", got)
	}
	if !d.Retransmitted() {
		t.Error("Retransmitted() = false, want true")
	}
}

func TestDataFieldsAllZero(t *testing.T) {
	raw := make([]byte, 16)
	m := buffer.NewMutable(raw)
	d := pkt.NewData(m)
	d.SetFields(0, pkt.PosMiddle, false, 0, false)

	if d.InOrder() || d.Retransmitted() || d.KeyFlag() != 0 || d.PositionFlags() != pkt.PosMiddle {
		t.Error("expected all flags clear")
	}
}
