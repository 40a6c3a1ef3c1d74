package ingest

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds Prometheus metrics for the ingestion pipeline.
type Metrics struct {
	RunsTotal    *prometheus.CounterVec
	RunDuration  prometheus.Histogram
	RecordsTotal *prometheus.CounterVec
}

// NewMetrics registers and returns ingest metrics on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "roadwatch_ingest_runs_total",
			Help: "Total ingestion runs by result.",
		}, []string{"result"}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "roadwatch_ingest_run_duration_seconds",
			Help:    "Duration of ingestion runs in seconds, stagger included.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12), // 0.1s .. ~200s
		}),
		RecordsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "roadwatch_ingest_records_total",
			Help: "Total feed records by outcome.",
		}, []string{"outcome"}),
	}

	reg.MustRegister(m.RunsTotal, m.RunDuration, m.RecordsTotal)
	return m
}

// Hooks returns pipeline Hooks that update the metrics.
func (m *Metrics) Hooks() Hooks {
	return Hooks{
		OnRun: func(rep *RunReport) {
			result := "ok"
			switch {
			case rep.Error != "":
				result = "error"
			case rep.Absent:
				result = "absent"
			case rep.Failed > 0:
				result = "partial"
			}
			m.RunsTotal.WithLabelValues(result).Inc()
			m.RunDuration.Observe(rep.Duration.Seconds())
		},
		OnRecord: func(outcome string) {
			m.RecordsTotal.WithLabelValues(outcome).Inc()
		},
	}
}
