package xsocket

import "testing"

func TestParseEndpointBasic(t *testing.T) {
	ep, err := ParseEndpoint("srt://127.0.0.1:4200?mode=caller", false)
	if err != nil {
		t.Fatalf("ParseEndpoint: %v", err)
	}
	if ep.Kind != Reliable {
		t.Errorf("Kind = %v, want Reliable", ep.Kind)
	}
	if ep.Host != "127.0.0.1" || ep.Port != 4200 {
		t.Errorf("Host/Port = %q/%d, want 127.0.0.1/4200", ep.Host, ep.Port)
	}
	if ep.Mode != ModeCaller {
		t.Errorf("Mode = %v, want ModeCaller", ep.Mode)
	}
	if ep.Blocking {
		t.Errorf("Blocking = true, want default false")
	}
}

func TestParseEndpointUnknownOption(t *testing.T) {
	if _, err := ParseEndpoint("srt://127.0.0.1:4200?bogus=1", false); err != ErrOptionInvalid {
		t.Fatalf("err = %v, want ErrOptionInvalid", err)
	}
}

func TestParseEndpointBlockingFalseSpellings(t *testing.T) {
	for _, v := range []string{"0", "no", "off", "false", "NO"} {
		ep, err := ParseEndpoint("srt://127.0.0.1:4200?blocking="+v, true)
		if err != nil {
			t.Fatalf("ParseEndpoint(%q): %v", v, err)
		}
		if ep.Blocking {
			t.Errorf("blocking=%q: Blocking = true, want false", v)
		}
	}
}

func TestParseEndpointWeightRange(t *testing.T) {
	if _, err := ParseEndpoint("srt://127.0.0.1:4200?weight=32768", false); err != ErrOptionInvalid {
		t.Fatalf("weight=32768: err = %v, want ErrOptionInvalid", err)
	}
	ep, err := ParseEndpoint("srt://127.0.0.1:4200?weight=32767", false)
	if err != nil {
		t.Fatalf("weight=32767: %v", err)
	}
	if ep.Weight != 32767 || !ep.HasWeight {
		t.Errorf("Weight = %d, want 32767", ep.Weight)
	}
}

func TestParseEndpointGroupTypeAndRendezvousConflict(t *testing.T) {
	if _, err := ParseEndpoint("srt://127.0.0.1:4200?mode=rendezvous&grouptype=backup", false); err != ErrOptionInvalid {
		t.Fatalf("err = %v, want ErrOptionInvalid for rendezvous+grouptype", err)
	}
}

func TestParseEndpointScheme(t *testing.T) {
	cases := map[string]Kind{
		"srt://127.0.0.1:1":  Reliable,
		"udp://127.0.0.1:1":  UDP,
		"mudp://127.0.0.1:1": MUDP,
	}
	for u, want := range cases {
		ep, err := ParseEndpoint(u, false)
		if err != nil {
			t.Fatalf("ParseEndpoint(%q): %v", u, err)
		}
		if ep.Kind != want {
			t.Errorf("ParseEndpoint(%q).Kind = %v, want %v", u, ep.Kind, want)
		}
	}
}

func TestParseEndpointBadScheme(t *testing.T) {
	if _, err := ParseEndpoint("quic://127.0.0.1:1", false); err != ErrOptionInvalid {
		t.Fatalf("err = %v, want ErrOptionInvalid for unrecognized scheme", err)
	}
}
