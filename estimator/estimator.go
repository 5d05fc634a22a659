// Package estimator implements the streaming quality estimators from
// spec §4.4: reorder/loss (per the RFC 4737 reordering metric referenced in
// original_source/xtransmit/rfc4737.hpp), jitter, latency, and delay
// factor. Each estimator accepts samples in arrival order, keeps O(1) state,
// and never allocates per sample - the same "submit one sample, update
// fixed-size state, no per-sample allocation" shape the teacher package used
// in cache/cache.go's Update/EndCycle cycle, generalized from a map-swap
// cache to scalar running state.
package estimator

import (
	"math"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/srtkit/xtransmit/metrics"
)

// ReorderSnapshot is a read-only view of Reorder's accumulated state.
type ReorderSnapshot struct {
	Processed   uint64
	Lost        uint64
	Reordered   uint64
	ReorderDist uint32
}

// Reorder tracks packet loss and reordering from a stream of sequence
// numbers, per spec invariant I1.
type Reorder struct {
	expected    uint32
	processed   uint64
	lost        uint64
	reordered   uint64
	reorderDist uint32
	started     bool
}

// Submit records one arriving sequence number.
func (r *Reorder) Submit(seqno uint32) {
	metrics.SubmitCountVec.With(prometheus.Labels{"estimator": "reorder"}).Inc()
	r.processed++
	if !r.started {
		r.started = true
		r.expected = seqno + 1
		return
	}
	switch {
	case seqno == r.expected:
		r.expected++
	case seqno > r.expected:
		r.lost += uint64(seqno - r.expected)
		metrics.LossCount.Add(float64(seqno - r.expected))
		r.expected = seqno + 1
	default:
		r.reordered++
		metrics.ReorderedCount.Inc()
		if dist := r.expected - seqno; dist > r.reorderDist {
			r.reorderDist = dist
		}
	}
}

// Snapshot returns the current estimator state.
func (r *Reorder) Snapshot() ReorderSnapshot {
	return ReorderSnapshot{
		Processed:   r.processed,
		Lost:        r.lost,
		Reordered:   r.reordered,
		ReorderDist: r.reorderDist,
	}
}

// Jitter tracks smoothed inter-arrival jitter using the RFC 3550-style
// 15/16 exponential filter named in spec §4.4.
type Jitter struct {
	prevDelay int64 // microseconds; 0 means "no previous sample yet"
	jitter    int64 // microseconds
}

// NewSample records one (sent, received) timestamp pair, both in
// microseconds on the same (steady) clock.
func (j *Jitter) NewSample(sentUs, nowUs int64) {
	metrics.SubmitCountVec.With(prometheus.Labels{"estimator": "jitter"}).Inc()
	delay := nowUs - sentUs
	if j.prevDelay != 0 {
		di := delay - j.prevDelay
		if di < 0 {
			di = -di
		}
		j.jitter = (j.jitter*15 + di) / 16
		metrics.JitterHistogram.Observe(float64(j.jitter) / 1e6)
	}
	j.prevDelay = delay
}

// Value returns the current smoothed jitter estimate, in microseconds.
func (j *Jitter) Value() int64 {
	return j.jitter
}

// LatencySnapshot is a read-only view of Latency's accumulated state, all
// values in microseconds.
type LatencySnapshot struct {
	Min int64
	Max int64
	Avg int64
}

// Latency tracks min/max/smoothed-average one-way latency. Min/max reset
// each reporting period; the smoothed average is retained across resets, per
// spec §4.4.
type Latency struct {
	min int64
	max int64
	avg int64 // -1 means "no samples yet"
}

// NewLatency returns a Latency estimator with min/max/avg in their initial
// (empty) state.
func NewLatency() *Latency {
	l := &Latency{avg: -1}
	l.resetMinMax()
	return l
}

func (l *Latency) resetMinMax() {
	l.min = math.MaxInt64
	l.max = math.MinInt64
}

// Submit records one (sent, received) system-clock timestamp pair, in
// microseconds.
func (l *Latency) Submit(sentSysUs, nowSysUs int64) {
	metrics.SubmitCountVec.With(prometheus.Labels{"estimator": "latency"}).Inc()
	d := nowSysUs - sentSysUs
	if d < l.min {
		l.min = d
	}
	if d > l.max {
		l.max = d
	}
	if l.avg == -1 {
		l.avg = d
	} else {
		l.avg = (l.avg*15 + d) / 16
	}
	metrics.LatencyHistogram.Observe(float64(d) / 1e6)
}

// Reset clears min/max for the next reporting period, retaining avg.
func (l *Latency) Reset() {
	l.resetMinMax()
}

// Snapshot returns the current estimator state. If no sample has been seen
// in the current period, Min/Max are both zero.
func (l *Latency) Snapshot() LatencySnapshot {
	s := LatencySnapshot{Avg: l.avg}
	if l.min <= l.max {
		s.Min, s.Max = l.min, l.max
	}
	return s
}

// DelayFactor tracks the RFC 4445-style delay factor: the spread of
// relative transit time around a per-period reference sample, per spec
// §4.4 and invariant I4.
type DelayFactor struct {
	reference  int64
	haveRef    bool
	min        int64
	max        int64
}

// NewDelayFactor returns a DelayFactor estimator awaiting its first
// reference sample.
func NewDelayFactor() *DelayFactor {
	d := &DelayFactor{}
	d.Reset()
	return d
}

// Reset marks the next sample submitted as the new reference sample.
func (d *DelayFactor) Reset() {
	d.haveRef = false
	d.reference = 0
	d.min = math.MaxInt64
	d.max = math.MinInt64
}

// Submit records one (sent, received) timestamp pair, in microseconds. The
// first sample after construction or Reset becomes the period's reference
// and does not update min/max.
func (d *DelayFactor) Submit(sentUs, nowUs int64) {
	metrics.SubmitCountVec.With(prometheus.Labels{"estimator": "delayfactor"}).Inc()
	delay := nowUs - sentUs
	if !d.haveRef {
		d.reference = delay
		d.haveRef = true
		return
	}
	r := delay - d.reference
	if r < d.min {
		d.min = r
	}
	if r > d.max {
		d.max = r
	}
}

// Value returns max-min of the relative transit time seen so far this
// period. It is zero before any non-reference sample, and zero for any
// stream whose relative transit time is constant, per spec invariant I4.
func (d *DelayFactor) Value() int64 {
	if d.min > d.max {
		return 0
	}
	return d.max - d.min
}

// Bundle groups the per-connection estimator set a metrics-enabled socket
// feeds on every validated payload. It satisfies payload.Estimators.
type Bundle struct {
	Reorder     Reorder
	Jitter      Jitter
	Latency     *Latency
	DelayFactor *DelayFactor
}

// NewBundle constructs a Bundle with Latency/DelayFactor in their initial
// empty state.
func NewBundle() *Bundle {
	return &Bundle{Latency: NewLatency(), DelayFactor: NewDelayFactor()}
}

// SubmitReorder feeds one sequence number to the reorder/loss estimator.
func (b *Bundle) SubmitReorder(seqno uint32) {
	b.Reorder.Submit(seqno)
}

// SubmitJitter feeds one steady-clock (sent, now) pair to the jitter
// estimator.
func (b *Bundle) SubmitJitter(sentSteadyUs, nowSteadyUs int64) {
	b.Jitter.NewSample(sentSteadyUs, nowSteadyUs)
}

// SubmitLatency feeds one system-clock (sent, now) pair to both the
// latency and delay-factor estimators.
func (b *Bundle) SubmitLatency(sentSysUs, nowSysUs int64) {
	b.Latency.Submit(sentSysUs, nowSysUs)
	b.DelayFactor.Submit(sentSysUs, nowSysUs)
}
