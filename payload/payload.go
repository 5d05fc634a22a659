// Package payload generates and validates the 32-byte metrics header
// carried at the front of metrics-enabled messages: packet sequence number,
// sender system-clock micros, sender steady-clock micros, and a reserved
// filler word. The header is little-endian on the wire, a deliberate
// departure from the transport frame's own big-endian fields (see spec
// §3) - the same "own your own wire format, don't inherit the
// neighboring layer's endianness by accident" discipline the teacher
// package applied when it read netlink's native-endian payload through
// binary.Read/Write in netlink/netlink.go, generalized to this header's
// explicit little-endian commitment.
package payload

import (
	"encoding/binary"
	"errors"
)

// HeaderSize is the fixed size, in bytes, of the metrics header.
const HeaderSize = 32

// PayloadTooSmall is returned when a payload shorter than HeaderSize is
// handed to a metrics-enabled generator or validator.
var PayloadTooSmall = errors.New("payload: PayloadTooSmall")

// Header is the decoded form of a metrics header.
type Header struct {
	SeqNo        uint64
	SysClockUs   uint64
	SteadyClockUs uint64
	Reserved     uint64
}

// Clock supplies the two timestamps a Generator stamps into each header.
// SteadyNowUs need not be wall-clock; it only needs to be monotonic within
// one process run. SysNowUs is wall-clock micros since the Unix epoch.
type Clock interface {
	SteadyNowUs() int64
	SysNowUs() int64
}

// Generator fills caller-supplied buffers with a byte pattern and,
// when enabled, a metrics header. The byte pattern fill always happens;
// the header overwrite only occurs when the codec is enabled, per spec
// §4.5.
type Generator struct {
	enabled bool
	clock   Clock
	seqno   uint64
}

// NewGenerator constructs a Generator. When enabled is false, Fill only
// seeds the byte pattern and never touches seqno/clock state.
func NewGenerator(enabled bool, clock Clock) *Generator {
	return &Generator{enabled: enabled, clock: clock}
}

// Fill writes a seqno-seeded byte pattern into buf, then, if enabled,
// overwrites the first HeaderSize bytes with the metrics header and
// advances the sequence counter. Fill returns PayloadTooSmall if enabled
// and len(buf) < HeaderSize.
func (g *Generator) Fill(buf []byte) error {
	if len(buf) == 0 {
		return nil
	}
	seed := byte(g.seqno)
	for i := range buf {
		buf[i] = seed + byte(i)
	}
	if !g.enabled {
		return nil
	}
	if len(buf) < HeaderSize {
		return PayloadTooSmall
	}
	h := Header{
		SeqNo:         g.seqno,
		SteadyClockUs: uint64(g.clock.SteadyNowUs()),
		SysClockUs:    uint64(g.clock.SysNowUs()),
	}
	g.seqno++
	putHeader(buf, h)
	return nil
}

func putHeader(buf []byte, h Header) {
	binary.LittleEndian.PutUint64(buf[0:8], h.SeqNo)
	binary.LittleEndian.PutUint64(buf[8:16], h.SysClockUs)
	binary.LittleEndian.PutUint64(buf[16:24], h.SteadyClockUs)
	binary.LittleEndian.PutUint64(buf[24:32], h.Reserved)
}

// DecodeHeader reads a Header from the front of buf. It returns
// PayloadTooSmall if len(buf) < HeaderSize.
func DecodeHeader(buf []byte) (Header, error) {
	if len(buf) < HeaderSize {
		return Header{}, PayloadTooSmall
	}
	return Header{
		SeqNo:         binary.LittleEndian.Uint64(buf[0:8]),
		SysClockUs:    binary.LittleEndian.Uint64(buf[8:16]),
		SteadyClockUs: binary.LittleEndian.Uint64(buf[16:24]),
		Reserved:      binary.LittleEndian.Uint64(buf[24:32]),
	}, nil
}

// Estimators is the set of estimator sinks a Validator feeds on every
// successfully decoded header.
type Estimators interface {
	SubmitReorder(seqno uint32)
	SubmitJitter(sentSteadyUs, nowSteadyUs int64)
	SubmitLatency(sentSysUs, nowSysUs int64)
}

// Validator decodes a metrics header from each received payload and feeds
// the configured estimators, per spec §4.5.
type Validator struct {
	clock Clock
	est   Estimators
}

// NewValidator constructs a Validator.
func NewValidator(clock Clock, est Estimators) *Validator {
	return &Validator{clock: clock, est: est}
}

// Validate decodes buf's header and submits one sample to each estimator.
// It returns PayloadTooSmall if len(buf) < HeaderSize.
func (v *Validator) Validate(buf []byte) (Header, error) {
	h, err := DecodeHeader(buf)
	if err != nil {
		return Header{}, err
	}
	now := v.clock
	v.est.SubmitReorder(uint32(h.SeqNo))
	v.est.SubmitJitter(int64(h.SteadyClockUs), now.SteadyNowUs())
	v.est.SubmitLatency(int64(h.SysClockUs), now.SysNowUs())
	return h, nil
}
