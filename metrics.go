package gamenet

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors updated by a transport.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	activeConnections prometheus.Gauge
	accepted          prometheus.Counter
	disconnected      prometheus.Counter
	rejected          prometheus.Counter
	framesIn          prometheus.Counter
	framesOut         prometheus.Counter
	bytesIn           prometheus.Counter
	bytesOut          prometheus.Counter
	sendErrors        *prometheus.CounterVec
}

// NewMetrics creates the transport collectors and registers them with reg.
// A nil reg creates unregistered collectors. The role label distinguishes a
// server from a client sharing one registry.
func NewMetrics(reg prometheus.Registerer, namespace, role string) *Metrics {
	factory := promauto.With(reg)
	labels := prometheus.Labels{"role": role}

	return &Metrics{
		activeConnections: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "active_connections",
			Help:        "Number of established connections",
			ConstLabels: labels,
		}),
		accepted: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "connections_total",
			Help:        "Total number of established connections",
			ConstLabels: labels,
		}),
		disconnected: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "disconnects_total",
			Help:        "Total number of closed connections",
			ConstLabels: labels,
		}),
		rejected: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "connect_failures_total",
			Help:        "Total number of failed connection attempts",
			ConstLabels: labels,
		}),
		framesIn: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "frames_received_total",
			Help:        "Total number of frames received",
			ConstLabels: labels,
		}),
		framesOut: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "frames_sent_total",
			Help:        "Total number of frames written to sockets",
			ConstLabels: labels,
		}),
		bytesIn: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "received_bytes_total",
			Help:        "Total number of bytes received, headers included",
			ConstLabels: labels,
		}),
		bytesOut: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "sent_bytes_total",
			Help:        "Total number of bytes written, headers included",
			ConstLabels: labels,
		}),
		sendErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "send_errors_total",
			Help:        "Total number of rejected sends by reason",
			ConstLabels: labels,
		}, []string{"reason"}),
	}
}

func (m *Metrics) connected() {
	if m == nil {
		return
	}
	m.accepted.Inc()
	m.activeConnections.Inc()
}

func (m *Metrics) disconnect() {
	if m == nil {
		return
	}
	m.disconnected.Inc()
	m.activeConnections.Dec()
}

func (m *Metrics) connectFailed() {
	if m == nil {
		return
	}
	m.rejected.Inc()
}

func (m *Metrics) frameReceived(payload int) {
	if m == nil {
		return
	}
	m.framesIn.Inc()
	m.bytesIn.Add(float64(payload + HeaderSize))
}

func (m *Metrics) frameSent(payload int) {
	if m == nil {
		return
	}
	m.framesOut.Inc()
	m.bytesOut.Add(float64(payload + HeaderSize))
}

func (m *Metrics) sendFailed(reason string) {
	if m == nil {
		return
	}
	m.sendErrors.WithLabelValues(reason).Inc()
}
