// Package pkt provides typed, offset-based field access on raw transport
// frames, big-endian on the wire. It is stateless: every accessor reads or
// writes directly into a caller-owned buffer.View/buffer.Mutable, the same
// "raw bytes + fixed offsets" idiom the teacher package used for
// LinuxSockID/InetDiagMsg field access (inetdiag/structs.go), generalized
// from Linux netlink diagnostic fields to this spec's own control/data frame
// layout. Following original_source/xtransmit/pkt_ack.hpp vs pkt_data.hpp,
// control-word access and data-packet field access are kept in separate
// types rather than one monolithic decoder.
package pkt

import (
	"encoding/binary"

	"github.com/srtkit/xtransmit/buffer"
)

// ControlType enumerates the control packet type recovered from the top 15
// bits of the first 16-bit word (the top bit is the control/data flag).
type ControlType uint16

// Control packet types, per spec §4.3.
const (
	HANDSHAKE   ControlType = 0x0000
	KEEPALIVE   ControlType = 0x0001
	ACK         ControlType = 0x0002
	LOSSREPORT  ControlType = 0x0003
	CGWARNING   ControlType = 0x0004
	SHUTDOWN    ControlType = 0x0005
	ACKACK      ControlType = 0x0006
	DROPREQ     ControlType = 0x0007
	PEERERROR   ControlType = 0x0008
	USERDEFINED ControlType = 0x7FFF
	Invalid     ControlType = 0xFFFF
)

var knownControlTypes = map[ControlType]bool{
	HANDSHAKE: true, KEEPALIVE: true, ACK: true, LOSSREPORT: true,
	CGWARNING: true, SHUTDOWN: true, ACKACK: true, DROPREQ: true,
	PEERERROR: true, USERDEFINED: true,
}

const (
	controlBitMask = 0x80
	typeMask       = 0x7FFF
)

// IsControl reports whether the top bit of the first byte marks v as a
// control packet.
func IsControl(v buffer.View) bool {
	if v.Len() < 1 {
		return false
	}
	return v.Bytes()[0]&controlBitMask != 0
}

// Control is a typed view over a control packet's fixed header.
type Control struct {
	v buffer.Mutable
}

// NewControl wraps v as a Control packet view. Callers should first check
// IsControl(v.ReadOnly()).
func NewControl(v buffer.Mutable) Control {
	return Control{v: v}
}

// Type reads the 16-bit type word (offset 0) masked by 0x7FFF and classifies
// it. An unrecognized value (other than USERDEFINED) yields Invalid.
func (c Control) Type() ControlType {
	if c.v.Len() < 2 {
		return Invalid
	}
	raw := binary.BigEndian.Uint16(c.v.Bytes()[0:2])
	t := ControlType(raw & typeMask)
	if knownControlTypes[t] {
		return t
	}
	return Invalid
}

// Data is a typed view over a data packet's fixed header:
//
//	offset 0: 31-bit sequence number (sign bit zero, the control/data flag)
//	offset 4: 26-bit message number, 2-bit position flags, 1-bit in-order
//	          flag, 2-bit key flag, 1-bit retransmission flag
type Data struct {
	v buffer.Mutable
}

// NewData wraps v as a Data packet view. Callers should first check
// !IsControl(v.ReadOnly()).
func NewData(v buffer.Mutable) Data {
	return Data{v: v}
}

const seqnoMask = 0x7FFFFFFF

// SeqNo returns the 31-bit sequence number at offset 0.
func (d Data) SeqNo() uint32 {
	if d.v.Len() < 4 {
		return 0
	}
	return binary.BigEndian.Uint32(d.v.Bytes()[0:4]) & seqnoMask
}

// SetSeqNo writes the 31-bit sequence number at offset 0, leaving the
// control/data flag bit (the sign bit) at zero.
func (d Data) SetSeqNo(seq uint32) {
	binary.BigEndian.PutUint32(d.v.Bytes()[0:4], seq&seqnoMask)
}

// Position enumerates a data packet's 2-bit position flags.
type Position uint8

// Position flag values, per spec §4.3.
const (
	PosMiddle Position = 0
	PosLast   Position = 1
	PosFirst  Position = 2
	PosSingle Position = 3
)

const (
	msgNoMask      = 0x03FFFFFF
	positionShift  = 26
	positionMask   = 0x3
	inOrderShift   = 28
	inOrderMask    = 0x1
	keyFlagShift   = 29
	keyFlagMask    = 0x3
	retransShift   = 31
	retransBitMask = 0x1
)

func (d Data) fieldWord() uint32 {
	if d.v.Len() < 8 {
		return 0
	}
	return binary.BigEndian.Uint32(d.v.Bytes()[4:8])
}

// MsgNo returns the 26-bit message number at offset 4.
func (d Data) MsgNo() uint32 {
	return d.fieldWord() & msgNoMask
}

// PositionFlags returns the 2-bit message-boundary position flags.
func (d Data) PositionFlags() Position {
	return Position((d.fieldWord() >> positionShift) & positionMask)
}

// InOrder reports the 1-bit in-order delivery flag.
func (d Data) InOrder() bool {
	return (d.fieldWord()>>inOrderShift)&inOrderMask != 0
}

// KeyFlag returns the 2-bit encryption key flag.
func (d Data) KeyFlag() uint8 {
	return uint8((d.fieldWord() >> keyFlagShift) & keyFlagMask)
}

// Retransmitted reports the 1-bit retransmission flag.
func (d Data) Retransmitted() bool {
	return (d.fieldWord()>>retransShift)&retransBitMask != 0
}

// SetFields packs msgNo/position/inOrder/keyFlag/retransmitted into the
// offset-4 word in a single write.
func (d Data) SetFields(msgNo uint32, pos Position, inOrder bool, keyFlag uint8, retransmitted bool) {
	w := msgNo & msgNoMask
	w |= uint32(pos&positionMask) << positionShift
	if inOrder {
		w |= inOrderMask << inOrderShift
	}
	w |= uint32(keyFlag&keyFlagMask) << keyFlagShift
	if retransmitted {
		w |= retransBitMask << retransShift
	}
	binary.BigEndian.PutUint32(d.v.Bytes()[4:8], w)
}
