// Package pipeline implements the per-mode packet pipelines from spec
// §4.12 (C14): generate, receive, mreceive, route, forward, file send, and
// file receive. Each pipeline is a plain function taking one or more
// xsocket.Socket handles and a shared cancellation flag; generate/receive
// are additionally exposed as connloop.Pipeline values so main.go can hand
// them straight to connloop.Run. Grounded on main.go's + saver/saver.go's
// message-flow shape (a loop that fills/drains a fixed buffer until
// cancelled) for generate/receive, and on collector/collector.go's
// sequential-then-combine shape (AF_INET then AF_INET6) as the model for
// route's source-then-destination pump.
package pipeline

import (
	"time"

	"github.com/srtkit/xtransmit/payload"
)

// SystemClock implements payload.Clock using the wall clock for
// SysNowUs and a monotonic reading for SteadyNowUs, per spec §3's "sender
// system-clock micros, sender steady-clock micros" header fields.
type SystemClock struct{}

// SysNowUs returns the current wall-clock time in microseconds since the
// Unix epoch.
func (SystemClock) SysNowUs() int64 { return time.Now().UnixMicro() }

// SteadyNowUs returns a monotonic clock reading in microseconds. Go's
// time.Now() already carries a monotonic component that arithmetic between
// two time.Time values uses automatically; UnixMicro strips it, so this
// measures elapsed time since an arbitrary fixed instant instead, which is
// all spec §3 requires ("need not be wall-clock; only needs to be
// monotonic within one process run").
func (SystemClock) SteadyNowUs() int64 { return time.Since(processStart).Microseconds() }

var processStart = time.Now()

var _ payload.Clock = SystemClock{}
