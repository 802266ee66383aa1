package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// StreamMetrics holds Prometheus metrics for streaming connections.
// A nil *StreamMetrics is valid and records nothing.
type StreamMetrics struct {
	ActiveSessions      prometheus.Gauge
	FramesSent          prometheus.Counter
	FrameSendDuration   prometheus.Histogram
	SessionsClosed      *prometheus.CounterVec
	ConnectionsRejected *prometheus.CounterVec
	Advances            prometheus.Counter
	SlowClientsEvicted  prometheus.Counter
	TickDuration        prometheus.Histogram
}

// NewStreamMetrics creates and registers stream metrics on the given registry.
func NewStreamMetrics(reg prometheus.Registerer) *StreamMetrics {
	m := &StreamMetrics{
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "active_sessions",
			Help:      "Number of open streaming connections.",
		}),
		FramesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "frames_sent_total",
			Help:      "Total number of snapshot frames written to listeners.",
		}),
		FrameSendDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "frame_send_duration_seconds",
			Help:      "Time spent writing one frame to a listener.",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 1},
		}),
		SessionsClosed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "sessions_closed_total",
			Help:      "Total number of closed streaming sessions, by reason.",
		}, []string{"reason"}),
		ConnectionsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "connections_rejected_total",
			Help:      "Total number of refused stream connections, by limit.",
		}, []string{"reason"}),
		Advances: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "advances_total",
			Help:      "Total number of advance steps applied to the series store.",
		}),
		SlowClientsEvicted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "slow_clients_evicted_total",
			Help:      "Listeners dropped by the broadcaster because their buffer was full.",
		}),
		TickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "broadcast_tick_duration_seconds",
			Help:      "Duration of one broadcaster tick (snapshot, encode, fan-out, advance).",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025},
		}),
	}

	reg.MustRegister(
		m.ActiveSessions, m.FramesSent, m.FrameSendDuration, m.SessionsClosed,
		m.ConnectionsRejected, m.Advances, m.SlowClientsEvicted, m.TickDuration,
	)
	return m
}

func (m *StreamMetrics) SessionOpened() {
	if m == nil {
		return
	}
	m.ActiveSessions.Inc()
}

func (m *StreamMetrics) SessionClosed(reason string) {
	if m == nil {
		return
	}
	m.ActiveSessions.Dec()
	m.SessionsClosed.WithLabelValues(reason).Inc()
}

func (m *StreamMetrics) FrameSent(d time.Duration) {
	if m == nil {
		return
	}
	m.FramesSent.Inc()
	m.FrameSendDuration.Observe(d.Seconds())
}

func (m *StreamMetrics) Advanced() {
	if m == nil {
		return
	}
	m.Advances.Inc()
}

func (m *StreamMetrics) ConnectionRejected(reason string) {
	if m == nil {
		return
	}
	m.ConnectionsRejected.WithLabelValues(reason).Inc()
}

func (m *StreamMetrics) SlowClientEvicted() {
	if m == nil {
		return
	}
	m.SlowClientsEvicted.Inc()
}

func (m *StreamMetrics) Tick(d time.Duration) {
	if m == nil {
		return
	}
	m.TickDuration.Observe(d.Seconds())
}
