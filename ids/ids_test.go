package ids_test

import (
	"testing"

	"github.com/srtkit/xtransmit/ids"
)

func TestNewTokenIsUnique(t *testing.T) {
	a := ids.NewToken()
	b := ids.NewToken()
	if a == b {
		t.Error("expected distinct tokens")
	}
	if a == "" || b == "" {
		t.Error("expected non-empty tokens")
	}
}

func TestBootPrefixIsStable(t *testing.T) {
	a, err := ids.BootPrefix()
	if err != nil {
		t.Skipf("BootPrefix unavailable in this environment: %v", err)
	}
	b, err := ids.BootPrefix()
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Errorf("BootPrefix changed between calls: %q vs %q", a, b)
	}
}
