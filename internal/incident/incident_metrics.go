package incident

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds Prometheus metrics for incident operations.
type Metrics struct {
	IncidentsTotal     *prometheus.CounterVec
	IncidentPriority   *prometheus.HistogramVec
	SubmitsTotal       *prometheus.CounterVec
	StatusUpdatesTotal *prometheus.CounterVec
	AdvisoriesTotal    *prometheus.CounterVec
}

// NewMetrics registers and returns incident metrics on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		IncidentsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "roadwatch_incidents_created_total",
			Help: "Total incidents persisted by category and entry path.",
		}, []string{"category", "source"}),
		IncidentPriority: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "roadwatch_incident_priority",
			Help:    "Priority assigned to new incidents.",
			Buckets: prometheus.LinearBuckets(1, 1, 5), // 1 .. 5
		}, []string{"category"}),
		SubmitsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "roadwatch_submits_total",
			Help: "Total operator submissions by result.",
		}, []string{"result"}),
		StatusUpdatesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "roadwatch_status_updates_total",
			Help: "Total incident status changes by new status.",
		}, []string{"status"}),
		AdvisoriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "roadwatch_advisories_sent_total",
			Help: "Total advisory messages sent, by whether they matched a template.",
		}, []string{"template"}),
	}

	reg.MustRegister(
		m.IncidentsTotal,
		m.IncidentPriority,
		m.SubmitsTotal,
		m.StatusUpdatesTotal,
		m.AdvisoriesTotal,
	)

	return m
}

// Hooks returns ServiceHooks that increment the corresponding metrics.
func (m *Metrics) Hooks() ServiceHooks {
	return ServiceHooks{
		OnSubmit: func(result string) {
			m.SubmitsTotal.WithLabelValues(result).Inc()
		},
		OnCreated: func(inc *Incident) {
			m.IncidentsTotal.WithLabelValues(string(inc.Category), string(inc.Source)).Inc()
			m.IncidentPriority.WithLabelValues(string(inc.Category)).Observe(float64(inc.Priority))
		},
		OnStatusChange: func(status Status) {
			m.StatusUpdatesTotal.WithLabelValues(string(status)).Inc()
		},
		OnAdvisory: func(matched bool) {
			label := "custom"
			if matched {
				label = "matched"
			}
			m.AdvisoriesTotal.WithLabelValues(label).Inc()
		},
	}
}
