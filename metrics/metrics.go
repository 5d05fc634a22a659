// Package metrics defines Prometheus metric types and provides convenience
// methods to add accounting to the estimator, pacer, scheduler, dispatch and
// xsocket packages. This runs alongside (not instead of) the CSV/text stats
// and metrics writers the spec calls for in §4.9-4.11 - it is the ambient
// observability layer the teacher package (m-lab/tcp-info's metrics package)
// already carried.
//
// When defining new operations or metrics, these are helpful values to
// track:
//   - things coming into or going out of the system: messages, files, bytes.
//   - the success or error status of any of the above.
//   - the distribution of processing latency.
package metrics

import (
	"log"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SubmitCountVec tracks samples submitted to each estimator, by kind
	// (reorder, jitter, latency, delayfactor).
	SubmitCountVec = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "xtransmit_estimator_submit_total",
			Help: "Number of samples submitted to each streaming estimator.",
		}, []string{"estimator"})

	// LossCount tracks the cumulative loss reported by the reorder estimator.
	LossCount = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "xtransmit_reorder_lost_total",
			Help: "Cumulative packets classified as lost by the reorder estimator.",
		},
	)

	// ReorderedCount tracks the cumulative reordered-packet count.
	ReorderedCount = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "xtransmit_reorder_reordered_total",
			Help: "Cumulative packets classified as reordered by the reorder estimator.",
		},
	)

	// LatencyHistogram tracks end-to-end one-way latency samples, in seconds.
	LatencyHistogram = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name: "xtransmit_latency_seconds",
			Help: "One-way latency samples derived from the metrics payload header.",
			Buckets: []float64{
				0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05,
				0.1, 0.25, 0.5, 1, 2.5, 5, 10,
			},
		},
	)

	// JitterHistogram tracks smoothed inter-arrival jitter, in seconds.
	JitterHistogram = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "xtransmit_jitter_seconds",
			Help:    "Smoothed jitter estimate.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 16),
		},
	)

	// PacerDeviationHistogram tracks the pacer's accumulated cadence
	// deviation at each wait, in microseconds.
	PacerDeviationHistogram = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "xtransmit_pacer_deviation_microseconds",
			Help:    "Pacer accumulated deviation from target cadence at each wait.",
			Buckets: prometheus.ExponentialBuckets(1, 4, 16),
		},
	)

	// SchedulerQueueDepth tracks the number of pending tasks in the
	// scheduler's task table.
	SchedulerQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "xtransmit_scheduler_queue_depth",
			Help: "Number of tasks currently pending in the timer scheduler.",
		},
	)

	// SchedulerFiredCount counts tasks the scheduler has invoked.
	SchedulerFiredCount = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "xtransmit_scheduler_fired_total",
			Help: "Number of scheduled tasks the timer scheduler has invoked.",
		},
	)

	// DispatchEventCount counts epoll events the I/O dispatch reactor has
	// routed, by event kind (read, write, error).
	DispatchEventCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "xtransmit_dispatch_events_total",
			Help: "Epoll events observed by the I/O dispatch reactor.",
		}, []string{"kind"})

	// ReconnectCount counts reconnection attempts, by outcome.
	ReconnectCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "xtransmit_reconnect_total",
			Help: "Reconnection attempts made by the connection loop or group callback.",
		}, []string{"outcome"})

	// ErrorCount measures the number of errors, by type.
	//
	// Example usage:
	//   metrics.ErrorCount.With(prometheus.Labels{"type": "option_invalid"}).Inc()
	ErrorCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "xtransmit_error_total",
			Help: "The total number of errors encountered, by type.",
		}, []string{"type"})

	// WriterFileCount counts the number of stats/metrics sink files created.
	WriterFileCount = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "xtransmit_writer_file_total",
			Help: "Number of stats/metrics sink files created.",
		},
	)

	// MessagesSent counts payload messages written to a socket, across all
	// pipelines.
	MessagesSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "xtransmit_messages_sent_total",
			Help: "Number of payload messages successfully written to a socket.",
		},
	)

	// MessagesReceived counts payload messages read from a socket, across
	// all pipelines.
	MessagesReceived = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "xtransmit_messages_received_total",
			Help: "Number of payload messages successfully read from a socket.",
		},
	)
)

func init() {
	log.Println("Prometheus metrics in xtransmit.metrics are registered.")
}
