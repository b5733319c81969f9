package gateway

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the gateway's Prometheus collectors
type Metrics struct {
	Connections prometheus.Gauge
	Events      *prometheus.CounterVec
	Broadcasts  prometheus.Counter
	Dropped     prometheus.Counter
}

// NewMetrics registers the gateway collectors with reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Connections: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "booking",
			Subsystem: "gateway",
			Name:      "connections",
			Help:      "Number of open channels.",
		}),
		Events: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "booking",
			Subsystem: "gateway",
			Name:      "events_total",
			Help:      "Inbound events handled, by event name.",
		}, []string{"event"}),
		Broadcasts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "booking",
			Subsystem: "gateway",
			Name:      "broadcasts_total",
			Help:      "Events fanned out to every channel.",
		}),
		Dropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "booking",
			Subsystem: "gateway",
			Name:      "dropped_connections_total",
			Help:      "Channels closed because their send queue overflowed.",
		}),
	}
}
