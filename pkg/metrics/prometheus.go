package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusRecorder is the Prometheus-backed Recorder. A nil *PrometheusRecorder
// is valid and every method on it is a no-op, so callers can construct one
// conditionally on configuration and pass the result through unconditionally.
type PrometheusRecorder struct {
	sessionsAccepted  prometheus.Counter
	sessionsRejected  *prometheus.CounterVec
	sessionsClosed    prometheus.Counter
	activeSessions    prometheus.Gauge
	transfersStarted  *prometheus.CounterVec
	transfersBytes    *prometheus.CounterVec
	transfersFailed   *prometheus.CounterVec
	transfersInterupt *prometheus.CounterVec
	transfersRetried  *prometheus.CounterVec
	syncPoints        *prometheus.CounterVec
	aborts            *prometheus.CounterVec
}

// NewPrometheusRecorder registers PeSIT server metrics against the
// package registry (GetRegistry).
// Returns nil (a valid, inert Recorder) if metrics are not enabled.
func NewPrometheusRecorder() *PrometheusRecorder {
	if !IsEnabled() {
		return nil
	}
	reg := GetRegistry()

	return &PrometheusRecorder{
		sessionsAccepted: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "pesitd_sessions_accepted_total",
			Help: "Total number of PeSIT sessions accepted.",
		}),
		sessionsRejected: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "pesitd_sessions_rejected_total",
			Help: "Total number of PeSIT sessions rejected before CONNECT completed.",
		}, []string{"reason"}),
		sessionsClosed: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "pesitd_sessions_closed_total",
			Help: "Total number of PeSIT sessions closed.",
		}),
		activeSessions: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "pesitd_active_sessions",
			Help: "Current number of active PeSIT sessions.",
		}),
		transfersStarted: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "pesitd_transfers_started_total",
			Help: "Total number of file transfers started, by direction.",
		}, []string{"direction"}),
		transfersBytes: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "pesitd_transfer_bytes_total",
			Help: "Total bytes transferred on completed transfers, by direction.",
		}, []string{"direction"}),
		transfersFailed: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "pesitd_transfers_failed_total",
			Help: "Total number of transfers that failed, by direction and diagnostic class.",
		}, []string{"direction", "diag_class"}),
		transfersInterupt: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "pesitd_transfers_interrupted_total",
			Help: "Total number of transfers interrupted (eligible for restart), by direction.",
		}, []string{"direction"}),
		transfersRetried: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "pesitd_transfers_retried_total",
			Help: "Total number of transfer restart attempts, by direction.",
		}, []string{"direction"}),
		syncPoints: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "pesitd_sync_points_total",
			Help: "Total number of sync-point checkpoints acknowledged, by direction.",
		}, []string{"direction"}),
		aborts: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "pesitd_aborts_total",
			Help: "Total number of ABORT FPDUs sent or received, by diagnostic class/code.",
		}, []string{"diag_class", "diag_code"}),
	}
}

func (m *PrometheusRecorder) RecordSessionAccepted() {
	if m == nil {
		return
	}
	m.sessionsAccepted.Inc()
}

func (m *PrometheusRecorder) RecordSessionRejected(reason string) {
	if m == nil {
		return
	}
	m.sessionsRejected.WithLabelValues(reason).Inc()
}

func (m *PrometheusRecorder) RecordSessionClosed() {
	if m == nil {
		return
	}
	m.sessionsClosed.Inc()
}

func (m *PrometheusRecorder) SetActiveSessions(count int) {
	if m == nil {
		return
	}
	m.activeSessions.Set(float64(count))
}

func (m *PrometheusRecorder) RecordTransferStarted(direction string) {
	if m == nil {
		return
	}
	m.transfersStarted.WithLabelValues(direction).Inc()
}

func (m *PrometheusRecorder) RecordTransferCompleted(direction string, bytes int64) {
	if m == nil {
		return
	}
	m.transfersBytes.WithLabelValues(direction).Add(float64(bytes))
}

func (m *PrometheusRecorder) RecordTransferFailed(direction string, diagClass byte) {
	if m == nil {
		return
	}
	m.transfersFailed.WithLabelValues(direction, fmt.Sprintf("D%d", diagClass)).Inc()
}

func (m *PrometheusRecorder) RecordTransferInterrupted(direction string) {
	if m == nil {
		return
	}
	m.transfersInterupt.WithLabelValues(direction).Inc()
}

func (m *PrometheusRecorder) RecordTransferRetried(direction string) {
	if m == nil {
		return
	}
	m.transfersRetried.WithLabelValues(direction).Inc()
}

func (m *PrometheusRecorder) RecordSyncPoint(direction string) {
	if m == nil {
		return
	}
	m.syncPoints.WithLabelValues(direction).Inc()
}

func (m *PrometheusRecorder) RecordAbort(diagClass byte, diagCode uint16) {
	if m == nil {
		return
	}
	m.aborts.WithLabelValues(fmt.Sprintf("D%d", diagClass), fmt.Sprintf("%03d", diagCode)).Inc()
}
