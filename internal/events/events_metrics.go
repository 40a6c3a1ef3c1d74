package events

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds Prometheus metrics for event delivery.
type Metrics struct {
	EmittedTotal   *prometheus.CounterVec
	ViewersActive  prometheus.Gauge
	ViewersDropped prometheus.Counter
}

// NewMetrics registers and returns event metrics on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		EmittedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "roadwatch_events_emitted_total",
			Help: "Total events broadcast to viewers by event name.",
		}, []string{"event"}),
		ViewersActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "roadwatch_viewers_active",
			Help: "Number of connected event stream viewers.",
		}),
		ViewersDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "roadwatch_viewers_dropped_total",
			Help: "Total viewers disconnected because their buffer was full.",
		}),
	}

	reg.MustRegister(m.EmittedTotal, m.ViewersActive, m.ViewersDropped)
	return m
}

// Hooks returns BrokerHooks that update the metrics.
func (m *Metrics) Hooks() BrokerHooks {
	return BrokerHooks{
		OnEmit: func(name string) {
			m.EmittedTotal.WithLabelValues(name).Inc()
		},
		OnSubscribe: func() {
			m.ViewersActive.Inc()
		},
		OnUnsubscribe: func(dropped bool) {
			m.ViewersActive.Dec()
			if dropped {
				m.ViewersDropped.Inc()
			}
		},
	}
}
