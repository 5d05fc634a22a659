package buffer_test

import (
	"bytes"
	"testing"

	"github.com/srtkit/xtransmit/buffer"
)

func TestViewAdvance(t *testing.T) {
	data := []byte("0123456789")
	v := buffer.NewView(data)

	v2 := v.Advance(4)
	if !bytes.Equal(v2.Bytes(), []byte("456789")) {
		t.Errorf("Advance(4) = %q, want %q", v2.Bytes(), "456789")
	}
	// original view unaffected
	if !bytes.Equal(v.Bytes(), data) {
		t.Errorf("original view mutated: %q", v.Bytes())
	}
}

func TestViewAdvancePastEnd(t *testing.T) {
	v := buffer.NewView([]byte("abc"))
	v2 := v.Advance(100)
	if v2.Len() != 0 {
		t.Errorf("Advance(100) on 3-byte view: Len() = %d, want 0", v2.Len())
	}
}

func TestMutableAliasesBackingArray(t *testing.T) {
	data := []byte("abcdef")
	m := buffer.NewMutable(data)
	m.Bytes()[0] = 'Z'
	if data[0] != 'Z' {
		t.Error("Mutable.Bytes() did not alias the original backing array")
	}
}

func TestMutableReadOnlyWidening(t *testing.T) {
	data := []byte("hello")
	m := buffer.NewMutable(data)
	v := m.ReadOnly()
	if !bytes.Equal(v.Bytes(), data) {
		t.Errorf("ReadOnly() = %q, want %q", v.Bytes(), data)
	}
}

func TestSlice(t *testing.T) {
	v := buffer.NewView([]byte("0123456789"))
	s := v.Slice(2, 3)
	if !bytes.Equal(s.Bytes(), []byte("234")) {
		t.Errorf("Slice(2,3) = %q, want %q", s.Bytes(), "234")
	}
}
