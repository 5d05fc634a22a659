package xsocket

import (
	"bytes"
	"sync/atomic"
	"time"

	"github.com/gocarina/gocsv"
)

// StatsRow is one per-socket stats tick, with the exact column layout and
// names from spec §6's CSV header. It is rendered through gocsv, the same
// mechanism the teacher package's cmd/csvtool used for snapshot rows.
type StatsRow struct {
	Timepoint           int64   `csv:"Timepoint"`
	Time                string  `csv:"Time"`
	SocketID            string  `csv:"SocketID"`
	PktFlowWindow       uint32  `csv:"pktFlowWindow"`
	PktCongestionWindow uint32  `csv:"pktCongestionWindow"`
	PktFlightSize       uint32  `csv:"pktFlightSize"`
	MsRTT               float64 `csv:"msRTT"`
	MbpsBandwidth       float64 `csv:"mbpsBandwidth"`
	MbpsMaxBW           float64 `csv:"mbpsMaxBW"`
	PktSent             uint64  `csv:"pktSent"`
	PktSndLoss          uint32  `csv:"pktSndLoss"`
	PktSndDrop          uint32  `csv:"pktSndDrop"`
	PktRetrans          uint32  `csv:"pktRetrans"`
	ByteSent            uint64  `csv:"byteSent"`
	ByteAvailSndBuf     uint64  `csv:"byteAvailSndBuf"`
	ByteSndDrop         uint64  `csv:"byteSndDrop"`
	MbpsSendRate        float64 `csv:"mbpsSendRate"`
	UsPktSndPeriod      float64 `csv:"usPktSndPeriod"`
	MsSndBuf            float64 `csv:"msSndBuf"`
	PktRecv             uint64  `csv:"pktRecv"`
	PktRcvLoss          uint32  `csv:"pktRcvLoss"`
	PktRcvDrop          uint32  `csv:"pktRcvDrop"`
	PktRcvRetrans       uint32  `csv:"pktRcvRetrans"`
	PktRcvBelated       uint32  `csv:"pktRcvBelated"`
	ByteRecv            uint64  `csv:"byteRecv"`
	ByteAvailRcvBuf     uint64  `csv:"byteAvailRcvBuf"`
	ByteRcvLoss         uint64  `csv:"byteRcvLoss"`
	ByteRcvDrop         uint64  `csv:"byteRcvDrop"`
	MbpsRecvRate        float64 `csv:"mbpsRecvRate"`
	MsRcvBuf            float64 `csv:"msRcvBuf"`
	MsRcvTsbPdDelay     float64 `csv:"msRcvTsbPdDelay"`
	PktReorderTolerance uint32  `csv:"pktReorderTolerance"`
	PktSentUnique       uint64  `csv:"pktSentUnique"`
	PktRecvUnique       uint64  `csv:"pktRecvUnique"`
}

// counters tracks the subset of spec §6's columns this raw-fd TCP/UDP
// stand-in can actually observe locally, per SPEC_FULL.md §14: there is no
// real reliable-transport statistics API to query, so congestion-window,
// RTT, and bandwidth fields are left at zero rather than fabricated. Every
// field here is updated with atomic ops so Read/Write and a concurrent
// statswriter tick never race.
type counters struct {
	pktSent, pktRecv     int64
	byteSent, byteRecv   int64
	sndBufBytes          int64
	seq                  int64
}

func (c *counters) addSent(n int) {
	atomic.AddInt64(&c.pktSent, 1)
	atomic.AddInt64(&c.byteSent, int64(n))
}

func (c *counters) addRecv(n int) {
	atomic.AddInt64(&c.pktRecv, 1)
	atomic.AddInt64(&c.byteRecv, int64(n))
}

func (c *counters) setSndBuf(n int64) {
	atomic.StoreInt64(&c.sndBufBytes, n)
}

func (c *counters) sndBuf() int64 {
	return atomic.LoadInt64(&c.sndBufBytes)
}

func (c *counters) row(socketID string) StatsRow {
	sent := uint64(atomic.LoadInt64(&c.pktSent))
	recv := uint64(atomic.LoadInt64(&c.pktRecv))
	return StatsRow{
		Timepoint:       time.Now().UnixMilli(),
		Time:            time.Now().Format(time.RFC3339Nano),
		SocketID:        socketID,
		PktSent:         sent,
		ByteSent:        uint64(atomic.LoadInt64(&c.byteSent)),
		PktRecv:         recv,
		ByteRecv:        uint64(atomic.LoadInt64(&c.byteRecv)),
		ByteAvailSndBuf: uint64(c.sndBuf()),
		PktSentUnique:   sent,
		PktRecvUnique:   recv,
	}
}

// renderCSV marshals rows through gocsv, emitting a header line first only
// when printHeader is true, per spec §4.9's "print_header=true on first
// call" convention.
func renderCSV(rows []StatsRow, printHeader bool) string {
	if len(rows) == 0 {
		return ""
	}
	var buf bytes.Buffer
	var err error
	if printHeader {
		err = gocsv.Marshal(rows, &buf)
	} else {
		err = gocsv.MarshalWithoutHeaders(rows, &buf)
	}
	if err != nil {
		return ""
	}
	return buf.String()
}
