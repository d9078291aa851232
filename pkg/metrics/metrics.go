// Package metrics exposes Prometheus instrumentation for the Transfer
// Engine and Acceptor (spec §6.7). Every recording method is safe to call
// on a nil *Metrics, so instrumentation can be globally disabled with zero
// runtime overhead.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the registered collectors. Use New to wire it to a
// registry, or Null() for a no-op instance.
type Metrics struct {
	transfersTotal        *prometheus.CounterVec
	transferBytesTotal     prometheus.Counter
	activeTransfers        prometheus.Gauge
	retransmissionsTotal   prometheus.Counter
	requestsRejectedTotal  *prometheus.CounterVec
	transferDurationSecs   prometheus.Histogram
}

// New registers the tftpd_* collectors against reg and returns a Metrics
// handle.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		transfersTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tftpd_transfers_total",
			Help: "Total number of completed or failed transfers, by mode and result.",
		}, []string{"mode", "result"}),
		transferBytesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tftpd_transfer_bytes_total",
			Help: "Total bytes sent across all transfers.",
		}),
		activeTransfers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tftpd_active_transfers",
			Help: "Number of transfers currently in progress.",
		}),
		retransmissionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tftpd_retransmissions_total",
			Help: "Total number of DATA window retransmissions.",
		}),
		requestsRejectedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tftpd_requests_rejected_total",
			Help: "Total number of requests rejected at admission, by reason.",
		}, []string{"reason"}),
		transferDurationSecs: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "tftpd_transfer_duration_seconds",
			Help:    "Duration in seconds of every finished transfer, completed or failed.",
			Buckets: prometheus.DefBuckets,
		}),
	}
	reg.MustRegister(
		m.transfersTotal,
		m.transferBytesTotal,
		m.activeTransfers,
		m.retransmissionsTotal,
		m.requestsRejectedTotal,
		m.transferDurationSecs,
	)
	return m
}

// Null returns a Metrics handle whose methods are all no-ops.
func Null() *Metrics { return nil }

func (m *Metrics) TransferStarted() {
	if m == nil {
		return
	}
	m.activeTransfers.Inc()
}

func (m *Metrics) TransferFinished(mode, result string, bytesSent int64, durationSeconds float64) {
	if m == nil {
		return
	}
	m.activeTransfers.Dec()
	m.transfersTotal.WithLabelValues(mode, result).Inc()
	m.transferBytesTotal.Add(float64(bytesSent))
	m.transferDurationSecs.Observe(durationSeconds)
}

func (m *Metrics) Retransmission() {
	if m == nil {
		return
	}
	m.retransmissionsTotal.Inc()
}

func (m *Metrics) RequestRejected(reason string) {
	if m == nil {
		return
	}
	m.requestsRejectedTotal.WithLabelValues(reason).Inc()
}
