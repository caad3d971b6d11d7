// internal/relay/metrics.go
package relay

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the relay's Prometheus instruments.
type Metrics struct {
	ActiveRooms    prometheus.Gauge
	ConnectedSeats prometheus.Gauge
	FramesRelayed  *prometheus.CounterVec
	FramesDropped  prometheus.Counter
	Disconnects    prometheus.Counter
}

// NewMetrics builds the instruments under namespace and registers them on reg.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ActiveRooms: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_rooms",
			Help:      "Number of open relay rooms",
		}),
		ConnectedSeats: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connected_seats",
			Help:      "Number of attached peer websockets",
		}),
		FramesRelayed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_relayed_total",
			Help:      "Frames forwarded between peers, by sending seat",
		}, []string{"seat"}),
		FramesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_dropped_total",
			Help:      "Frames dropped because the receiving side was backlogged",
		}),
		Disconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "disconnects_total",
			Help:      "Peer websockets that closed",
		}),
	}

	reg.MustRegister(
		m.ActiveRooms,
		m.ConnectedSeats,
		m.FramesRelayed,
		m.FramesDropped,
		m.Disconnects,
	)
	return m
}
